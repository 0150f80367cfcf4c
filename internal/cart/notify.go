package cart

import (
	"context"
	"sync"
)

// Level classifies a user-facing message.
type Level string

const (
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelDanger  Level = "danger"
)

// Message is a user-facing notification emitted by cart operations.
type Message struct {
	Level Level  `json:"type"`
	Text  string `json:"message"`
}

// Notifier receives user-facing messages.
type Notifier interface {
	Notify(level Level, message string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Level, string)

// Notify calls f.
func (f NotifierFunc) Notify(level Level, message string) { f(level, message) }

// Collector records messages in order. It is safe for concurrent use.
type Collector struct {
	mu       sync.Mutex
	messages []Message
}

// Notify appends the message.
func (c *Collector) Notify(level Level, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, Message{Level: level, Text: message})
}

// Messages returns the collected messages.
func (c *Collector) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

type notifierKey struct{}

// WithNotifier attaches a per-call notifier to ctx.
func WithNotifier(ctx context.Context, n Notifier) context.Context {
	return context.WithValue(ctx, notifierKey{}, n)
}

// NotifierFrom returns the notifier attached to ctx, if any.
func NotifierFrom(ctx context.Context) (Notifier, bool) {
	if ctx == nil {
		return nil, false
	}
	n, ok := ctx.Value(notifierKey{}).(Notifier)
	return n, ok && n != nil
}
