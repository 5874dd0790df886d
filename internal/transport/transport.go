// Package transport delivers one composed email at a time through the
// owner's mail provider.
package transport

import (
	"context"
	"errors"
)

// Email is a single outbound message with resolved credentials. The
// Password field lives only for the duration of one Deliver call.
type Email struct {
	From       string
	FromName   string
	To         string
	Subject    string
	TextBody   string
	HTMLBody   string
	Attachment *AttachmentData
	Password   string
}

// AttachmentData is an attachment resolved to a filename and local path.
type AttachmentData struct {
	FileName string
	FilePath string
}

// Deliverer sends exactly one email. Implementations may be slow; callers
// must not assume a cheap synchronous call.
type Deliverer interface {
	Deliver(ctx context.Context, email *Email) error
}

// DeliveryError represents a delivery error with type information.
type DeliveryError struct {
	Temporary bool
	Message   string
}

func (e *DeliveryError) Error() string {
	return e.Message
}

// IsTemporaryError checks if the error is temporary.
func IsTemporaryError(err error) bool {
	var de *DeliveryError
	if errors.As(err, &de) {
		return de.Temporary
	}
	return true // Assume temporary if unknown
}

// DelivererFunc adapts a function to the Deliverer interface.
type DelivererFunc func(ctx context.Context, email *Email) error

func (f DelivererFunc) Deliver(ctx context.Context, email *Email) error {
	return f(ctx, email)
}
