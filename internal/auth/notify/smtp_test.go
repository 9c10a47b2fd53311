package notify

import (
	"bufio"
	"context"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/agencydesk/internal/auth/domain"
)

// fakeSMTP accepts a single session and records the DATA payload.
type fakeSMTP struct {
	ln   net.Listener
	mu   sync.Mutex
	rcpt []string
	data string
	done chan struct{}
}

func newFakeSMTP(t *testing.T) *fakeSMTP {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	f := &fakeSMTP{ln: ln, done: make(chan struct{})}
	t.Cleanup(func() { _ = ln.Close() })
	go f.serve()
	return f
}

func (f *fakeSMTP) serve() {
	defer close(f.done)
	conn, err := f.ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()

	r := bufio.NewReader(conn)
	reply := func(s string) { _, _ = conn.Write([]byte(s + "\r\n")) }
	reply("220 localhost ESMTP fake")

	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		cmd := strings.ToUpper(strings.TrimSpace(line))
		switch {
		case strings.HasPrefix(cmd, "EHLO"):
			reply("250-localhost")
			reply("250 HELP")
		case strings.HasPrefix(cmd, "MAIL FROM"):
			reply("250 OK")
		case strings.HasPrefix(cmd, "RCPT TO"):
			f.mu.Lock()
			f.rcpt = append(f.rcpt, strings.TrimSpace(line))
			f.mu.Unlock()
			reply("250 OK")
		case cmd == "DATA":
			reply("354 go ahead")
			var b strings.Builder
			for {
				l, err := r.ReadString('\n')
				if err != nil {
					return
				}
				if l == ".\r\n" {
					break
				}
				b.WriteString(l)
			}
			f.mu.Lock()
			f.data = b.String()
			f.mu.Unlock()
			reply("250 queued")
		case cmd == "QUIT":
			reply("221 bye")
			return
		default:
			reply("502 not implemented")
		}
	}
}

func TestSMTPSender_Send(t *testing.T) {
	srv := newFakeSMTP(t)
	s := &SMTPSender{Addr: srv.ln.Addr().String(), From: "no-reply@agencydesk.test", Timeout: 2 * time.Second}

	err := s.Send(context.Background(), Message{
		Channel:   domain.ChannelEmail,
		To:        "ana@example.com",
		Code:      "482913",
		ExpiresAt: time.Date(2025, 3, 1, 9, 10, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	<-srv.done

	srv.mu.Lock()
	defer srv.mu.Unlock()
	require.Len(t, srv.rcpt, 1)
	require.Contains(t, srv.rcpt[0], "ana@example.com")
	require.Contains(t, srv.data, "To: ana@example.com")
	require.Contains(t, srv.data, "482913")
	require.Contains(t, srv.data, "09:10 UTC")
}

func TestSMTPSender_Failures(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	s := &SMTPSender{Addr: addr, From: "no-reply@agencydesk.test", Timeout: time.Second}
	msg := Message{Channel: domain.ChannelEmail, To: "ana@example.com", Code: "000000", ExpiresAt: time.Now()}

	err = s.Send(context.Background(), msg)
	require.ErrorIs(t, err, ErrDeliveryFailed)

	msg.To = "not an address"
	require.ErrorIs(t, s.Send(context.Background(), msg), ErrDeliveryFailed)

	msg.To = "ana@example.com"
	msg.Channel = domain.Channel("sms")
	require.ErrorIs(t, s.Send(context.Background(), msg), ErrDeliveryFailed)
}
