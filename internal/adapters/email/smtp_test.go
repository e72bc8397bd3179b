package email

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wneessen/go-mail"
)

func newCapturingSMTP(cfg SMTPConfig, sendErr error) (*SMTPSender, *[]*mail.Msg) {
	s := NewSMTPSender(cfg)
	var got []*mail.Msg
	s.deliver = func(_ context.Context, msg *mail.Msg) error {
		got = append(got, msg)
		return sendErr
	}
	s.now = func() time.Time { return time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC) }
	return s, &got
}

func TestSMTPSender_BuildsMessage(t *testing.T) {
	s, got := newCapturingSMTP(SMTPConfig{
		Host: "smtp.example.com", Username: "u", Password: "p",
		From: "Civic Reports <noreply@example.com>",
	}, nil)

	res, err := s.Send(context.Background(), SendRequest{
		To:      []string{"alice@x.com"},
		Subject: "Complaint Status Updated",
		Text:    "Your complaint status is now: Resolved\n",
		ReplyTo: "help@example.com",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.MessageID)
	require.Len(t, *got, 1)

	msg := (*got)[0]
	rcpts, err := msg.GetRecipients()
	require.NoError(t, err)
	assert.Equal(t, []string{"alice@x.com"}, rcpts)
	assert.Equal(t, []string{"Complaint Status Updated"}, msg.GetGenHeader(mail.HeaderSubject))

	var buf bytes.Buffer
	_, err = msg.WriteTo(&buf)
	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, "noreply@example.com")
	assert.Contains(t, out, "help@example.com")
	assert.Contains(t, out, res.MessageID+"@smtp.example.com")
	assert.Contains(t, out, "Your complaint status is now: Resolved")
}

func TestSMTPSender_Defaults(t *testing.T) {
	s := NewSMTPSender(SMTPConfig{Host: "localhost"})
	assert.Equal(t, 587, s.cfg.Port)
	assert.Equal(t, DefaultSMTPTimeout, s.cfg.Timeout)
}

func TestSMTPSender_Errors(t *testing.T) {
	s, _ := newCapturingSMTP(SMTPConfig{Host: "h", From: "noreply@example.com"}, errors.New("connection refused"))

	_, err := s.Send(context.Background(), SendRequest{Subject: "s"})
	assert.ErrorIs(t, err, ErrNoRecipients)

	_, err = s.Send(context.Background(), SendRequest{To: []string{"a@x.com"}, Subject: "s"})
	assert.ErrorContains(t, err, "connection refused")

	_, err = s.Send(context.Background(), SendRequest{To: []string{"not an address"}, Subject: "s"})
	assert.ErrorContains(t, err, "smtp recipient")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Send(ctx, SendRequest{To: []string{"a@x.com"}})
	assert.ErrorIs(t, err, context.Canceled)
}

// silentRelay accepts connections and never writes a greeting.
func silentRelay(t *testing.T) (host string, port int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var mu sync.Mutex
	var conns []net.Conn
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, c)
			mu.Unlock()
		}
	}()
	t.Cleanup(func() {
		ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			c.Close()
		}
	})

	addr := ln.Addr().(*net.TCPAddr)
	return addr.IP.String(), addr.Port
}

func TestSMTPSender_SilentRelayHonoursContextDeadline(t *testing.T) {
	host, port := silentRelay(t)
	s := NewSMTPSender(SMTPConfig{Host: host, Port: port, From: "noreply@example.com"})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := s.Send(ctx, SendRequest{To: []string{"a@x.com"}, Subject: "s", Text: "b"})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestSMTPSender_SilentRelayHonoursTimeout(t *testing.T) {
	host, port := silentRelay(t)
	s := NewSMTPSender(SMTPConfig{Host: host, Port: port, From: "noreply@example.com", Timeout: 200 * time.Millisecond})

	start := time.Now()
	_, err := s.Send(context.Background(), SendRequest{To: []string{"a@x.com"}, Subject: "s", Text: "b"})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

// fakeRelay speaks just enough SMTP to accept one message without TLS or auth.
type fakeRelay struct {
	mu   sync.Mutex
	rcpt []string
	data string
}

func startFakeRelay(t *testing.T) (*fakeRelay, string, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	relay := &fakeRelay{}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go relay.serve(conn)
		}
	}()
	addr := ln.Addr().(*net.TCPAddr)
	return relay, addr.IP.String(), addr.Port
}

func (f *fakeRelay) serve(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	reply := func(s string) { conn.Write([]byte(s + "\r\n")) }

	reply("220 relay.test ESMTP")
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		verb := strings.ToUpper(strings.SplitN(line, " ", 2)[0])
		switch verb {
		case "EHLO", "HELO":
			reply("250 relay.test")
		case "RCPT":
			f.mu.Lock()
			f.rcpt = append(f.rcpt, line)
			f.mu.Unlock()
			reply("250 OK")
		case "DATA":
			reply("354 End data with <CR><LF>.<CR><LF>")
			var body strings.Builder
			for {
				l, err := r.ReadString('\n')
				if err != nil {
					return
				}
				if l == ".\r\n" {
					break
				}
				body.WriteString(l)
			}
			f.mu.Lock()
			f.data = body.String()
			f.mu.Unlock()
			reply("250 OK queued")
		case "QUIT":
			reply("221 Bye")
			return
		default:
			reply("250 OK")
		}
	}
}

func TestSMTPSender_DeliversToRelay(t *testing.T) {
	relay, host, port := startFakeRelay(t)
	s := NewSMTPSender(SMTPConfig{Host: host, Port: port, From: "noreply@example.com", Timeout: 5 * time.Second})

	res, err := s.Send(context.Background(), SendRequest{
		To:      []string{"alice@x.com"},
		Subject: "Complaint Status Updated",
		Text:    "Your complaint status is now: Resolved",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.MessageID)

	relay.mu.Lock()
	defer relay.mu.Unlock()
	require.Len(t, relay.rcpt, 1)
	assert.Contains(t, relay.rcpt[0], "alice@x.com")
	assert.Contains(t, relay.data, "Subject: Complaint Status Updated")
	assert.Contains(t, relay.data, "Your complaint status is now: Resolved")
}

