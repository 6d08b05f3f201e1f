package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"net"
	"net/smtp"
	"net/textproto"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/artisan-market/api/internal/services"
)

// dialFunc opens the relay connection; tests substitute an in-memory pipe.
type dialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// defaultSendTimeout bounds a send whose context carries no deadline.
const defaultSendTimeout = 30 * time.Second

// SMTPConfig describes the mail relay.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPSink delivers notifications as multipart (plain text + HTML) mail.
type SMTPSink struct {
	host string
	addr string
	from string
	auth smtp.Auth
	dial dialFunc
	now  func() time.Time
}

var _ services.NotificationSink = (*SMTPSink)(nil)

// NewSMTPSink validates the relay configuration.
func NewSMTPSink(cfg SMTPConfig) (*SMTPSink, error) {
	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		return nil, errors.New("notify: smtp host is required")
	}
	from := strings.TrimSpace(cfg.From)
	if from == "" {
		from = strings.TrimSpace(cfg.Username)
	}
	if from == "" {
		return nil, errors.New("notify: smtp sender is required")
	}
	port := cfg.Port
	if port == 0 {
		port = 587
	}

	sink := &SMTPSink{
		host: host,
		addr: net.JoinHostPort(host, strconv.Itoa(port)),
		from: from,
		dial: (&net.Dialer{}).DialContext,
		now:  time.Now,
	}
	if cfg.Username != "" {
		sink.auth = smtp.PlainAuth("", cfg.Username, cfg.Password, host)
	}
	return sink, nil
}

// Send implements services.NotificationSink. The whole SMTP exchange runs on the caller's
// goroutine over a connection whose deadline follows ctx, so nothing is left sending once Send
// returns.
func (s *SMTPSink) Send(ctx context.Context, message services.NotificationMessage) (string, error) {
	to := strings.TrimSpace(message.To)
	if to == "" {
		return "", errors.New("notify: recipient is required")
	}

	body, err := s.compose(message)
	if err != nil {
		return "", err
	}

	conn, err := s.dial(ctx, "tcp", s.addr)
	if err != nil {
		return "", s.sendError(ctx, err)
	}
	defer conn.Close()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = s.now().Add(defaultSendTimeout)
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return "", s.sendError(ctx, err)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	if err := s.deliver(conn, to, body); err != nil {
		return "", s.sendError(ctx, err)
	}
	return messageID(message.ID, s.from), nil
}

// deliver runs one SMTP transaction: STARTTLS and AUTH when offered, then MAIL, RCPT and DATA.
func (s *SMTPSink) deliver(conn net.Conn, to string, body []byte) error {
	client, err := smtp.NewClient(conn, s.host)
	if err != nil {
		return err
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: s.host, MinVersion: tls.VersionTLS12}); err != nil {
			return err
		}
	}
	if s.auth != nil {
		if ok, _ := client.Extension("AUTH"); !ok {
			return errors.New("relay does not support AUTH")
		}
		if err := client.Auth(s.auth); err != nil {
			return err
		}
	}
	if err := client.Mail(s.from); err != nil {
		return err
	}
	if err := client.Rcpt(to); err != nil {
		return err
	}
	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(body); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return client.Quit()
}

// sendError reports a connection deadline that ctx imposed as the context error.
func (s *SMTPSink) sendError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("notify: smtp send to %s: %w", s.addr, ctxErr)
	}
	if _, ok := ctx.Deadline(); ok && errors.Is(err, os.ErrDeadlineExceeded) {
		return fmt.Errorf("notify: smtp send to %s: %w", s.addr, context.DeadlineExceeded)
	}
	return fmt.Errorf("notify: smtp send to %s: %w", s.addr, err)
}

func (s *SMTPSink) compose(message services.NotificationMessage) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	headers := []struct{ key, value string }{
		{"From", s.from},
		{"To", strings.TrimSpace(message.To)},
		{"Subject", mime.QEncoding.Encode("utf-8", message.Subject)},
		{"Date", s.now().UTC().Format(time.RFC1123Z)},
		{"Message-ID", messageID(message.ID, s.from)},
		{"MIME-Version", "1.0"},
		{"Content-Type", "multipart/alternative; boundary=" + writer.Boundary()},
	}
	var head bytes.Buffer
	for _, h := range headers {
		fmt.Fprintf(&head, "%s: %s\r\n", h.key, h.value)
	}
	head.WriteString("\r\n")

	parts := []struct{ contentType, content string }{
		{"text/plain; charset=utf-8", message.Text},
		{"text/html; charset=utf-8", message.HTML},
	}
	for _, part := range parts {
		if part.content == "" {
			continue
		}
		w, err := writer.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {part.contentType},
			"Content-Transfer-Encoding": {"8bit"},
		})
		if err != nil {
			return nil, fmt.Errorf("notify: compose mail: %w", err)
		}
		if _, err := w.Write([]byte(part.content)); err != nil {
			return nil, fmt.Errorf("notify: compose mail: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("notify: compose mail: %w", err)
	}

	return append(head.Bytes(), buf.Bytes()...), nil
}

func messageID(id, from string) string {
	domain := "localhost"
	if at := strings.LastIndex(from, "@"); at >= 0 && at < len(from)-1 {
		domain = strings.Trim(from[at+1:], "<> ")
	}
	return fmt.Sprintf("<%s@%s>", id, domain)
}
