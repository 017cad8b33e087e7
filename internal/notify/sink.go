package notify

import "context"

// Sink delivers one Message. A non-nil error means the worker should
// retry it later.
type Sink interface {
	Send(ctx context.Context, title, avatarURL string, msg Message) error
}
