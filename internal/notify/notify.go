// Package notify delivers user-facing notifications.
package notify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// Kind is the severity of a notification.
type Kind string

const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
	KindWarning Kind = "warning"
	KindInfo    Kind = "info"
)

// ParseKind maps a wire type to a Kind. Unknown types are info.
func ParseKind(s string) Kind {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindSuccess:
		return KindSuccess
	case KindError:
		return KindError
	case KindWarning:
		return KindWarning
	default:
		return KindInfo
	}
}

// Notification is a message for the user.
type Notification struct {
	Kind    Kind
	Message string
}

// Sink displays notifications.
type Sink interface {
	Deliver(n Notification)
}

// SinkFunc is a function adapter for Sink.
type SinkFunc func(Notification)

func (f SinkFunc) Deliver(n Notification) {
	f(n)
}

// Discard drops every notification.
var Discard Sink = SinkFunc(func(Notification) {})

// ConsoleSink prints notifications, coloured by kind.
type ConsoleSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsoleSink writes to w, or stdout when w is nil.
func NewConsoleSink(w io.Writer) *ConsoleSink {
	if w == nil {
		w = color.Output
	}
	return &ConsoleSink{w: w}
}

// Deliver implements Sink.
func (s *ConsoleSink) Deliver(n Notification) {
	label := strings.ToUpper(string(n.Kind))
	switch n.Kind {
	case KindSuccess:
		label = color.GreenString(label)
	case KindError:
		label = color.RedString(label)
	case KindWarning:
		label = color.YellowString(label)
	default:
		label = color.CyanString(label)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, "[%s] %s\n", label, n.Message)
}

// LogSink writes notifications to a structured logger.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a LogSink. A nil logger uses slog.Default().
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

// Deliver implements Sink.
func (s *LogSink) Deliver(n Notification) {
	level := slog.LevelInfo
	switch n.Kind {
	case KindError:
		level = slog.LevelError
	case KindWarning:
		level = slog.LevelWarn
	}
	s.logger.Log(context.Background(), level, "notification", "kind", n.Kind, "message", n.Message)
}

// Multi fans a notification out to every sink.
func Multi(sinks ...Sink) Sink {
	return SinkFunc(func(n Notification) {
		for _, s := range sinks {
			s.Deliver(n)
		}
	})
}

// DisableColor turns colour output off, e.g. when stdout is not a terminal.
func DisableColor() {
	color.NoColor = true
}

