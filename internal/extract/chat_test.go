package extract

import (
	"strings"
	"testing"
	"time"

	"github.com/ahmedgfathy/contaboo/internal/patterns"
)

func TestParseChatLine(t *testing.T) {
	tests := []struct {
		name   string
		line   string
		sender string
		text   string
		when   time.Time
	}{
		{
			name:   "bracketed 12h",
			line:   "[1/7/25, 10:30:25 AM] Ahmed Broker: شقة للبيع في المعادي 01012345678",
			sender: "Ahmed Broker",
			text:   "شقة للبيع في المعادي 01012345678",
			when:   time.Date(2025, 7, 1, 10, 30, 25, 0, time.UTC),
		},
		{
			name:   "bracketed 24h",
			line:   "[15/3/2024, 18:05] +20 10 1234 5678: villa for rent",
			sender: "+20 10 1234 5678",
			text:   "villa for rent",
			when:   time.Date(2024, 3, 15, 18, 5, 0, 0, time.UTC),
		},
		{
			name:   "android dash",
			line:   "3/2/24, 9:15 pm - Sara: مطلوب شقة",
			sender: "Sara",
			text:   "مطلوب شقة",
			when:   time.Date(2024, 2, 3, 21, 15, 0, 0, time.UTC),
		},
		{
			name:   "direction marks",
			line:   "\u200e[1/7/25, 10:30:25 AM] Mona: hello",
			sender: "Mona",
			text:   "hello",
			when:   time.Date(2025, 7, 1, 10, 30, 25, 0, time.UTC),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, ok := ParseChatLine(tt.line)
			if !ok {
				t.Fatalf("ParseChatLine(%q) failed", tt.line)
			}
			if msg.Sender != tt.sender {
				t.Errorf("sender = %q, want %q", msg.Sender, tt.sender)
			}
			if msg.Text != tt.text {
				t.Errorf("text = %q, want %q", msg.Text, tt.text)
			}
			if !msg.SentAt.Equal(tt.when) {
				t.Errorf("sent at = %v, want %v", msg.SentAt, tt.when)
			}
		})
	}
}

func TestParseChatLineRejects(t *testing.T) {
	for _, line := range []string{"", "just a continuation line", "Messages are end-to-end encrypted."} {
		if _, ok := ParseChatLine(line); ok {
			t.Errorf("ParseChatLine(%q) should fail", line)
		}
	}
}

func TestParseChatLineExtractsFields(t *testing.T) {
	msg, ok := ParseChatLine("[1/7/25, 10:30 AM] Ali: فيلا للبيع في الشيخ زايد 01112345678")
	if !ok {
		t.Fatal("parse failed")
	}
	if msg.Fields.PropertyType != patterns.Villa || msg.Fields.Purpose != Sale {
		t.Errorf("fields = %+v", msg.Fields)
	}
	if msg.Fields.BrokerMobile != "01112345678" {
		t.Errorf("mobile = %q", msg.Fields.BrokerMobile)
	}
}

func TestParseChat(t *testing.T) {
	export := strings.Join([]string{
		"Messages and calls are end-to-end encrypted.",
		"[1/7/25, 10:30:25 AM] Ahmed: شقة للبيع",
		"في المعادي السعر 2500000",
		"",
		"[1/7/25, 10:31:00 AM] Sara: مطلوب فيلا",
	}, "\n")

	res, err := NewPipeline().ParseChat(strings.NewReader(export))
	if err != nil {
		t.Fatalf("ParseChat: %v", err)
	}
	if res.Skipped != 1 {
		t.Errorf("skipped = %d, want 1", res.Skipped)
	}
	if len(res.Messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(res.Messages))
	}

	first := res.Messages[0]
	if first.Line != 2 {
		t.Errorf("first line = %d, want 2", first.Line)
	}
	if !strings.Contains(first.Text, "في المعادي") {
		t.Errorf("continuation not appended: %q", first.Text)
	}
	if first.Fields.Area != "المعادي" || first.Fields.Price == nil {
		t.Errorf("continuation not extracted: %+v", first.Fields)
	}
	if res.Messages[1].Fields.Purpose != Wanted {
		t.Errorf("second purpose = %q", res.Messages[1].Fields.Purpose)
	}
}
