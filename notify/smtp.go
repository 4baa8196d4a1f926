package notify

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/goliatone/go-identity"
)

// SMTPConfig holds mail server settings
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Addr returns host:port
func (c SMTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DefaultSendTimeout bounds a delivery when the context has no deadline
const DefaultSendTimeout = 30 * time.Second

// SendMailFunc is smtp.SendMail with a context. Implementations must return
// once ctx is done.
type SendMailFunc func(ctx context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPNotifier emails OTP codes
type SMTPNotifier struct {
	cfg      SMTPConfig
	renderer *Renderer
	send     SendMailFunc
	logger   identity.Logger
}

// NewSMTPNotifier creates a new SMTP notifier
func NewSMTPNotifier(cfg SMTPConfig, renderer *Renderer) *SMTPNotifier {
	return &SMTPNotifier{
		cfg:      cfg,
		renderer: renderer,
		send:     sendMail,
		logger:   identity.NopLogger(),
	}
}

// WithSendMail replaces the transport, used in tests
func (n *SMTPNotifier) WithSendMail(fn SendMailFunc) *SMTPNotifier {
	if fn != nil {
		n.send = fn
	}
	return n
}

// WithLogger overrides the logger
func (n *SMTPNotifier) WithLogger(logger identity.Logger) *SMTPNotifier {
	if logger != nil {
		n.logger = logger
	}
	return n
}

// SendOTP implements identity.Notifier
func (n *SMTPNotifier) SendOTP(ctx context.Context, dest identity.Destination, code string, purpose identity.OTPPurpose) error {
	if dest.Email == "" {
		return errors.New("smtp notifier: destination has no email")
	}

	msg, err := n.renderer.Render(dest, code, purpose)
	if err != nil {
		return err
	}

	var auth smtp.Auth
	if n.cfg.Username != "" {
		auth = smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
	}

	from := n.cfg.From
	if from == "" {
		from = n.cfg.Username
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	if err := n.send(ctx, n.cfg.Addr(), auth, from, []string{msg.To}, buildMIME(from, msg)); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("smtp notifier: %w", ctxErr)
		}
		return fmt.Errorf("smtp notifier: %w", err)
	}
	n.logger.Debug("otp email sent", "account_id", dest.AccountID, "purpose", purpose)
	return nil
}

// sendMail follows smtp.SendMail but dials with ctx and puts a deadline on
// the connection, so a stalled server cannot outlive the context.
func sendMail(ctx context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(DefaultSendTimeout)
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	c, err := smtp.NewClient(conn, host)
	if err != nil {
		return err
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: host}); err != nil {
			return err
		}
	}
	if a != nil {
		if ok, _ := c.Extension("AUTH"); !ok {
			return errors.New("server does not support AUTH")
		}
		if err := c.Auth(a); err != nil {
			return err
		}
	}
	if err := c.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

func buildMIME(from string, msg Message) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + msg.To + "\r\n")
	b.WriteString("Subject: " + msg.Subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))
	b.WriteString("\r\n")
	return []byte(b.String())
}
