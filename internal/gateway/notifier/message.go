package notifier

import (
	"fmt"
	"strings"
	"time"

	"autodecide/internal/pkg/text"
)

// Telegram rejects messages above 4096 characters.
const (
	maxCardLen  = 3800
	maxTitleLen = 256
	fenceOpen   = "```\n"
	fenceClose  = "```\n\n"
)

// Card is the chat layout of a notification: a header line, a fenced list of
// body lines and a footer with the display time.
type Card struct {
	Icon      string
	Title     string
	Lines     []string
	Duration  time.Duration
	Timestamp time.Time
}

// Card converts the notification into its chat layout. Blank body lines are
// dropped.
func (n Notification) Card(ts time.Time) Card {
	var lines []string
	for _, line := range strings.Split(n.Body, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, unfence(line))
		}
	}
	return Card{
		Icon:      severityIcon(n.Severity),
		Title:     strings.TrimSpace(n.Title),
		Lines:     lines,
		Duration:  n.Duration,
		Timestamp: ts,
	}
}

// Markdown renders the card within maxCardLen bytes. Body lines are cut
// inside the fence so the header, the closing fence and the footer survive.
func (c Card) Markdown() string {
	header := strings.TrimSpace(c.Icon + " " + text.Truncate(unfence(c.Title), maxTitleLen))
	var footer []string
	if c.Duration > 0 {
		footer = append(footer, "Shown for: "+c.Duration.String())
	}
	if !c.Timestamp.IsZero() {
		footer = append(footer, "Time: "+c.Timestamp.Format("2006-01-02 15:04:05 MST"))
	}
	foot := strings.Join(footer, "\n")

	var b strings.Builder
	if header != "" {
		b.WriteString(header)
		b.WriteString("\n\n")
	}
	if len(c.Lines) > 0 {
		budget := maxCardLen - b.Len() - len(foot) - len(fenceOpen) - len(fenceClose)
		b.WriteString(fenceOpen)
		for _, line := range c.Lines {
			entry := fmt.Sprintf("- %s\n", unfence(line))
			if len(entry) > budget {
				// "..." and the newline are added on top of the cut.
				if room := budget - len("...\n"); room > len("- ") {
					b.WriteString(text.Truncate(strings.TrimSuffix(entry, "\n"), room))
					b.WriteString("\n")
				}
				break
			}
			b.WriteString(entry)
			budget -= len(entry)
		}
		b.WriteString(fenceClose)
	}
	b.WriteString(foot)
	return strings.TrimSpace(b.String())
}

func unfence(s string) string {
	return strings.ReplaceAll(s, "```", "'''")
}
