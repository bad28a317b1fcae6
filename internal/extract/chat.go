package extract

import (
	"bufio"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/ahmedgfathy/contaboo/internal/patterns"
)

// Message is one parsed WhatsApp chat message with its extracted fields.
type Message struct {
	Line      int       `json:"line"`
	Sender    string    `json:"sender"`
	Timestamp string    `json:"timestamp"`
	SentAt    time.Time `json:"sent_at,omitempty"`
	Text      string    `json:"text"`
	Fields    Fields    `json:"fields"`
}

// ChatResult summarizes a parsed export.
type ChatResult struct {
	Messages []Message
	Skipped  int
}

// chatLineRE matches both export styles:
//
//	[1/7/25, 10:30:25 AM] Sender: message
//	1/7/25, 10:30 - Sender: message
var chatLineRE = regexp.MustCompile(
	`^\[?(\d{1,2}/\d{1,2}/\d{2,4}),?\s*(\d{1,2}:\d{2}(?::\d{2})?(?:\s*[AaPp][Mm])?)\]?\s*(?:-\s*)?([^:]+?):\s*(.+)$`)

// dateLayouts are day-first, as Egyptian exports are.
var dateLayouts = []string{
	"2/1/06 15:04:05", "2/1/06 15:04", "2/1/06 3:04:05 PM", "2/1/06 3:04 PM",
	"2/1/2006 15:04:05", "2/1/2006 15:04", "2/1/2006 3:04:05 PM", "2/1/2006 3:04 PM",
}

// ParseChatLine parses a single export line. ok is false for lines that do
// not start a message (system notices, blank lines, continuations).
func (p *Pipeline) ParseChatLine(line string) (Message, bool) {
	line = strings.TrimSpace(strings.TrimPrefix(line, "\ufeff"))
	// exports mark direction with invisible LRM/RLM characters
	line = strings.Map(func(r rune) rune {
		if r == '\u200e' || r == '\u200f' {
			return -1
		}
		return r
	}, line)
	m := chatLineRE.FindStringSubmatch(patterns.NormalizeDigits(line))
	if m == nil {
		return Message{}, false
	}
	date, clock, sender, text := m[1], m[2], strings.TrimSpace(m[3]), strings.TrimSpace(m[4])
	msg := Message{
		Sender:    sender,
		Timestamp: date + " " + clock,
		Text:      text,
	}
	msg.SentAt = parseTimestamp(date, clock)
	msg.Fields = p.Extract(text)
	return msg, true
}

// ParseChatLine runs the default pipeline.
func ParseChatLine(line string) (Message, bool) {
	return defaultPipeline.ParseChatLine(line)
}

// ParseChat reads a whole export. Lines that do not start a message are
// appended to the previous message; any that precede the first message are
// counted as skipped.
func (p *Pipeline) ParseChat(r io.Reader) (ChatResult, error) {
	var res ChatResult
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	lineNo := 0
	var cur *Message
	flush := func() {
		if cur == nil {
			return
		}
		cur.Fields = p.Extract(cur.Text)
		res.Messages = append(res.Messages, *cur)
		cur = nil
	}
	for sc.Scan() {
		lineNo++
		raw := sc.Text()
		if strings.TrimSpace(raw) == "" {
			continue
		}
		if msg, ok := p.ParseChatLine(raw); ok {
			flush()
			msg.Line = lineNo
			cur = &msg
			continue
		}
		if cur == nil {
			res.Skipped++
			continue
		}
		cur.Text += "\n" + strings.TrimSpace(raw)
	}
	flush()
	if err := sc.Err(); err != nil {
		return res, err
	}
	return res, nil
}

func parseTimestamp(date, clock string) time.Time {
	clock = strings.ToUpper(strings.Join(strings.Fields(clock), " "))
	if n := len(clock); n > 2 && (strings.HasSuffix(clock, "AM") || strings.HasSuffix(clock, "PM")) && clock[n-3] != ' ' {
		clock = clock[:n-2] + " " + clock[n-2:]
	}
	s := date + " " + clock
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
