package notify

import (
	"context"
	"strings"
	"sync"
	"time"
)

type outboxEntry struct {
	code      string
	expiresAt time.Time
}

// Outbox is an in-memory Sender for development and tests. It keeps the
// latest code per destination until that code expires.
type Outbox struct {
	mu   sync.RWMutex
	m    map[string]outboxEntry
	sent int
	nowF func() time.Time
}

func NewOutbox() *Outbox {
	return &Outbox{
		m:    make(map[string]outboxEntry),
		nowF: time.Now,
	}
}

// WithClock replaces the clock used for expiry checks.
func (o *Outbox) WithClock(now func() time.Time) *Outbox {
	o.nowF = now
	return o
}

func (o *Outbox) Send(ctx context.Context, msg Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.m[strings.ToLower(msg.To)] = outboxEntry{code: msg.Code, expiresAt: msg.ExpiresAt}
	o.sent++
	return nil
}

// Latest returns the most recent unexpired code sent to destination.
func (o *Outbox) Latest(destination string) (string, bool) {
	key := strings.ToLower(destination)

	o.mu.RLock()
	e, ok := o.m[key]
	o.mu.RUnlock()
	if !ok {
		return "", false
	}
	if o.nowF().After(e.expiresAt) {
		o.mu.Lock()
		delete(o.m, key)
		o.mu.Unlock()
		return "", false
	}
	return e.code, true
}

// Sent returns how many messages were accepted.
func (o *Outbox) Sent() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.sent
}
