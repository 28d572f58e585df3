package logger

import (
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
)

var (
	exchangeMu      sync.Mutex
	exchangeLog     *log.Logger
	exchangePayload bool
)

// SetExchangeWriter directs decider request/response dumps to w; nil turns
// them off.
func SetExchangeWriter(w io.Writer) {
	exchangeMu.Lock()
	defer exchangeMu.Unlock()
	if w == nil {
		exchangeLog = nil
		return
	}
	exchangeLog = log.New(w, "", log.LstdFlags)
}

// EnableExchangePayloadDump includes full request bodies in the dump.
func EnableExchangePayloadDump(enabled bool) {
	exchangeMu.Lock()
	exchangePayload = enabled
	exchangeMu.Unlock()
}

type exchangeSection struct {
	Title string
	Body  string
}

func logExchange(kind, endpoint string, sections []exchangeSection) {
	exchangeMu.Lock()
	l := exchangeLog
	exchangeMu.Unlock()
	if l == nil {
		return
	}
	var b strings.Builder
	b.WriteString("[DECIDER][")
	b.WriteString(kind)
	b.WriteString("]")
	if endpoint != "" {
		b.WriteString("[")
		b.WriteString(endpoint)
		b.WriteString("]")
	}
	b.WriteString("\n")
	for _, sec := range sections {
		t := strings.TrimSpace(sec.Title)
		if t == "" {
			t = "CONTENT"
		}
		fmt.Fprintf(&b, "--- %s ---\n", t)
		b.WriteString(sec.Body)
		if !strings.HasSuffix(sec.Body, "\n") {
			b.WriteString("\n")
		}
	}
	b.WriteString("=====\n")
	l.Print(b.String())
}

func LogExchangeRequest(endpoint, summary, payload string) {
	sections := []exchangeSection{{Title: "SUMMARY", Body: summary}}
	exchangeMu.Lock()
	withPayload := exchangePayload
	exchangeMu.Unlock()
	if withPayload && strings.TrimSpace(payload) != "" {
		sections = append(sections, exchangeSection{Title: "PAYLOAD", Body: payload})
	}
	logExchange("request", endpoint, sections)
}

func LogExchangeResponse(endpoint string, status int, raw string) {
	logExchange("response", endpoint, []exchangeSection{
		{Title: "STATUS", Body: fmt.Sprintf("%d", status)},
		{Title: "RAW", Body: raw},
	})
}
