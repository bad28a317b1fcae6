package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ahmedgfathy/contaboo/internal/extract"
)

// WhatsAppImporter handles .txt chat exports. A .txt file with no chat
// lines at all is read as plain text, one listing per paragraph.
type WhatsAppImporter struct {
	Pipeline *extract.Pipeline
}

func (w *WhatsAppImporter) Format() string { return "whatsapp" }

// CanHandle returns true for .txt files.
func (w *WhatsAppImporter) CanHandle(path string) bool {
	return strings.ToLower(filepath.Ext(path)) == ".txt"
}

// chatPlaceholders are bodies WhatsApp writes in place of media and
// deleted messages.
var chatPlaceholders = []string{
	"<media omitted>", "<attached:", "image omitted", "video omitted", "audio omitted",
	"this message was deleted", "you deleted this message", "تم حذف هذه الرسالة", "<الوسائط غير مضمنة>",
}

func isChatPlaceholder(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	for _, p := range chatPlaceholders {
		if strings.HasPrefix(t, p) || t == strings.Trim(p, "<>") {
			return true
		}
	}
	return false
}

// Import parses a chat export into listings, one per message.
func (w *WhatsAppImporter) Import(ctx context.Context, path string) ([]RawListing, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	x := w.Pipeline
	if x == nil {
		x = extract.NewPipeline()
	}
	chat, err := x.ParseChat(f)
	if err != nil {
		return nil, fmt.Errorf("reading chat %s: %w", path, err)
	}

	if len(chat.Messages) == 0 {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return splitTextIntoParagraphs(string(data), absPath), nil
	}

	var listings []RawListing
	for i, m := range chat.Messages {
		if isChatPlaceholder(m.Text) {
			continue
		}
		raw := RawListing{
			Message:       m.Text,
			Sender:        m.Sender,
			SourceFile:    absPath,
			SourceLine:    m.Line,
			SourceSection: fmt.Sprintf("msg-%d", i+1),
		}
		if !m.SentAt.IsZero() {
			at := m.SentAt
			raw.SentAt = &at
		}
		listings = append(listings, raw)
	}
	return listings, nil
}

// splitTextIntoParagraphs splits text on blank lines and tracks line numbers.
func splitTextIntoParagraphs(content string, absPath string) []RawListing {
	var listings []RawListing

	// Normalize line endings
	content = strings.ReplaceAll(content, "\r\n", "\n")

	paragraphs := strings.Split(content, "\n\n")
	lineNum := 1

	for i, para := range paragraphs {
		text := strings.TrimSpace(para)
		if text != "" {
			listings = append(listings, RawListing{
				Message:       text,
				SourceFile:    absPath,
				SourceLine:    lineNum,
				SourceSection: fmt.Sprintf("para-%d", i+1),
			})
		}
		lineNum += strings.Count(para, "\n") + 2
	}

	return listings
}
