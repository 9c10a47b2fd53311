// Package notify delivers one-time codes to users.
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/agencydesk/internal/auth/domain"
)

// ErrDeliveryFailed wraps every transport error returned by a Sender.
var ErrDeliveryFailed = errors.New("notify: delivery failed")

// Message is one code delivery. Code is plaintext and must not be logged.
type Message struct {
	Channel   domain.Channel
	To        string
	Code      string
	ExpiresAt time.Time
}

// Sender delivers a Message over its channel.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}
