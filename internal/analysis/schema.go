package analysis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const snapshotSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "detailedResults": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "required": ["found"],
        "properties": {
          "found": {"type": "boolean"},
          "buyScore": {"type": "number"},
          "sellScore": {"type": "number"},
          "meta": {"type": "object"}
        }
      }
    },
    "enhancedAnalysisResult": {
      "type": ["object", "null"],
      "properties": {
        "microPatterns": {
          "type": ["array", "null"],
          "items": {
            "type": "object",
            "properties": {
              "name": {"type": "string"},
              "direction": {"type": "string"},
              "strength": {"type": "number"},
              "confidence": {"type": "number"}
            }
          }
        },
        "visualAnalysis": {"type": ["object", "null"]}
      }
    },
    "timingAnalysis": {"type": ["object", "null"]},
    "fastAnalysisResults": {
      "type": ["array", "null"],
      "items": {
        "type": "object",
        "required": ["direction"],
        "properties": {
          "direction": {"type": "string"},
          "confidence": {"type": "number"}
        }
      }
    }
  }
}`

var (
	schemaOnce     sync.Once
	schemaCompiled *jsonschema.Schema
	schemaErr      error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("snapshot.json", strings.NewReader(snapshotSchema)); err != nil {
			schemaErr = err
			return
		}
		schemaCompiled, schemaErr = compiler.Compile("snapshot.json")
	})
	return schemaCompiled, schemaErr
}

// DecodeSnapshot validates raw JSON against the snapshot schema and decodes it.
func DecodeSnapshot(raw []byte) (Snapshot, error) {
	schema, err := compiledSchema()
	if err != nil {
		return Snapshot{}, fmt.Errorf("compile snapshot schema: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return Snapshot{}, fmt.Errorf("snapshot is not valid json: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return Snapshot{}, fmt.Errorf("snapshot rejected: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}
