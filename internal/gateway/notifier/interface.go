package notifier

import "context"

// TextNotifier is the minimal operator channel. Implementations must honour
// ctx cancellation.
type TextNotifier interface {
	SendText(ctx context.Context, text string) error
}

// Noop drops every message.
type Noop struct{}

func (Noop) SendText(context.Context, string) error { return nil }
