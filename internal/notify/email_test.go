package notify

import (
	"context"
	"net"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSMTP accepts one session and hands back the DATA payload.
func fakeSMTP(t *testing.T) (host, port string, data <-chan string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	got := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		tp := textproto.NewConn(conn)
		tp.PrintfLine("220 fake ESMTP")
		for {
			line, err := tp.ReadLine()
			if err != nil {
				return
			}
			cmd := strings.ToUpper(line)
			switch {
			case strings.HasPrefix(cmd, "EHLO"), strings.HasPrefix(cmd, "HELO"):
				tp.PrintfLine("250 fake")
			case strings.HasPrefix(cmd, "MAIL"), strings.HasPrefix(cmd, "RCPT"):
				tp.PrintfLine("250 ok")
			case cmd == "DATA":
				tp.PrintfLine("354 go ahead")
				body, _ := tp.ReadDotBytes()
				got <- string(body)
				tp.PrintfLine("250 queued")
			case cmd == "QUIT":
				tp.PrintfLine("221 bye")
				return
			default:
				tp.PrintfLine("500 unknown")
			}
		}
	}()

	host, port, err = net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	return host, port, got
}

func TestNewEmailFromEnvironment(t *testing.T) {
	t.Setenv("SMTP_HOST", "")
	t.Setenv("SMTP_FROM", "")
	_, err := NewEmail("team@example.com", "")
	assert.ErrorContains(t, err, "SMTP_HOST")

	t.Setenv("SMTP_HOST", "smtp.example.com")
	_, err = NewEmail("team@example.com", "")
	assert.ErrorContains(t, err, "SMTP_FROM")

	t.Setenv("SMTP_FROM", "shop@example.com")
	e, err := NewEmail("team@example.com", "")
	require.NoError(t, err)
	assert.Equal(t, defaultSubject, e.subject)
	assert.Equal(t, "587", e.port)
}

func TestNewEmailValidatesAddresses(t *testing.T) {
	tests := []struct {
		name, to, from, wantErr string
	}{
		{"empty to", "", "shop@example.com", "required"},
		{"bad to", "not-an-address", "shop@example.com", "invalid recipient"},
		{"injected to", "a@example.com\r\nBcc: x@evil.com", "shop@example.com", "invalid recipient"},
		{"bad from", "team@example.com", "nope", "invalid sender"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newEmail(tt.to, tt.from, "", "smtp.example.com", "", "", "")
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestEmailSubjectCannotInjectHeaders(t *testing.T) {
	e, err := newEmail("team@example.com", "shop@example.com", "Hi\r\nBcc: x@evil.com", "smtp.example.com", "", "", "")
	require.NoError(t, err)
	msg := string(e.message(Event{Shop: "Shop", Version: 1}))
	assert.NotContains(t, msg, "\r\nBcc:")
	assert.Contains(t, msg, "Subject: Hi Bcc: x@evil.com\r\n")
}

func TestEmailSend(t *testing.T) {
	host, port, data := fakeSMTP(t)
	e, err := newEmail("team@example.com", "shop@example.com", "", host, port, "", "")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, e.Send(ctx, Event{Shop: "Corner Shop", Version: 7, Home: 2, Footer: 1}))

	select {
	case body := <-data:
		assert.Contains(t, body, "Subject: "+defaultSubject)
		assert.Contains(t, body, "Corner Shop published a new storefront layout (version 7)")
	case <-time.After(5 * time.Second):
		t.Fatal("no message delivered")
	}
}

func TestEmailSendHonorsContext(t *testing.T) {
	e, err := newEmail("team@example.com", "shop@example.com", "", "127.0.0.1", "1", "", "")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, e.Send(ctx, Event{}))
}
