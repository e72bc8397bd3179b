package email

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/wneessen/go-mail"
)

// DefaultSMTPTimeout bounds one relay conversation when the caller sets no deadline.
const DefaultSMTPTimeout = 30 * time.Second

// SMTPConfig holds relay settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration // dial plus conversation; DefaultSMTPTimeout when zero
}

// SMTPSender delivers mail through an SMTP relay using STARTTLS when offered.
type SMTPSender struct {
	cfg     SMTPConfig
	deliver func(ctx context.Context, msg *mail.Msg) error
	now     func() time.Time
}

// NewSMTPSender creates an SMTP sender.
// PRE: cfg.Host is non-empty
func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultSMTPTimeout
	}
	s := &SMTPSender{cfg: cfg, now: time.Now}
	s.deliver = s.dialAndSend
	return s
}

// Send builds the message and hands it to the relay.
// POST: Returns once the relay accepts the message, ctx is done, or cfg.Timeout elapses
func (s *SMTPSender) Send(ctx context.Context, req SendRequest) (SendResult, error) {
	if len(req.To) == 0 {
		return SendResult{}, ErrNoRecipients
	}
	if err := ctx.Err(); err != nil {
		return SendResult{}, err
	}
	from := req.From
	if from == "" {
		from = s.cfg.From
	}

	messageID := uuid.NewString()
	msg, err := s.buildMessage(from, messageID, req)
	if err != nil {
		return SendResult{}, err
	}

	if err := s.deliver(ctx, msg); err != nil {
		slog.Error("smtp_send_failed", "error", err, "host", s.cfg.Host, "subject", req.Subject)
		return SendResult{}, fmt.Errorf("smtp send failed: %w", err)
	}

	slog.Info("email_sent", "transport", "smtp", "message_id", messageID, "subject", req.Subject)
	return SendResult{MessageID: messageID, SentAt: s.now()}, nil
}

func (s *SMTPSender) buildMessage(from, messageID string, req SendRequest) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(from); err != nil {
		return nil, fmt.Errorf("smtp from address: %w", err)
	}
	if err := msg.To(req.To...); err != nil {
		return nil, fmt.Errorf("smtp recipient: %w", err)
	}
	if req.ReplyTo != "" {
		if err := msg.ReplyTo(req.ReplyTo); err != nil {
			return nil, fmt.Errorf("smtp reply-to: %w", err)
		}
	}
	msg.Subject(req.Subject)
	msg.SetDateWithValue(s.now())
	msg.SetMessageIDWithValue(messageID + "@" + s.cfg.Host)
	msg.SetBodyString(mail.TypeTextPlain, req.Text)
	if req.HTML != "" {
		msg.AddAlternativeString(mail.TypeTextHTML, req.HTML)
	}
	return msg, nil
}

func (s *SMTPSender) dialAndSend(ctx context.Context, msg *mail.Msg) error {
	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
		mail.WithTimeout(s.cfg.Timeout),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
		mail.WithDialContextFunc(s.dial),
	}
	if s.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
		)
	}
	client, err := mail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	return client.DialAndSendWithContext(ctx, msg)
}

// dial sets a deadline on the connection so a relay that stops answering
// mid-conversation cannot hold the caller past ctx or cfg.Timeout.
func (s *SMTPSender) dial(ctx context.Context, network, addr string) (net.Conn, error) {
	d := net.Dialer{Timeout: s.cfg.Timeout}
	conn, err := d.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}
	deadline := time.Now().Add(s.cfg.Timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}
