package notify

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestParseKind(t *testing.T) {
	tests := []struct {
		in   string
		want Kind
	}{
		{"success", KindSuccess},
		{"error", KindError},
		{"warning", KindWarning},
		{"info", KindInfo},
		{"WARNING", KindWarning},
		{"", KindInfo},
		{"fatal", KindInfo},
	}

	for _, tt := range tests {
		if got := ParseKind(tt.in); got != tt.want {
			t.Errorf("ParseKind(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestConsoleSink(t *testing.T) {
	DisableColor()

	var buf bytes.Buffer
	sink := NewConsoleSink(&buf)

	sink.Deliver(Notification{Kind: KindSuccess, Message: "Logged in as alice."})
	sink.Deliver(Notification{Kind: KindError, Message: "Connection error."})

	out := buf.String()
	if !strings.Contains(out, "[SUCCESS] Logged in as alice.") {
		t.Errorf("output missing success line: %q", out)
	}
	if !strings.Contains(out, "[ERROR] Connection error.") {
		t.Errorf("output missing error line: %q", out)
	}
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	NewLogSink(logger).Deliver(Notification{Kind: KindWarning, Message: "battery low"})

	out := buf.String()
	if !strings.Contains(out, "level=WARN") || !strings.Contains(out, `message="battery low"`) {
		t.Errorf("log output = %q", out)
	}
}

func TestMulti(t *testing.T) {
	var got []Notification
	collect := SinkFunc(func(n Notification) { got = append(got, n) })

	Multi(collect, Discard, collect).Deliver(Notification{Kind: KindInfo, Message: "hi"})

	if len(got) != 2 {
		t.Fatalf("delivered %d times, want 2", len(got))
	}
}
