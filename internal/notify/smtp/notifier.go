// Package smtp sends notifications through an SMTP server using the
// credential carried on each message.
package smtp

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/leadscout/leadscout/internal/lead"
)

// Config controls the SMTP notifier.
type Config struct {
	Recipients []string
	Timeout    time.Duration
}

// Notifier implements lead.Notifier over SMTP. Each send logs in with the
// message's credential, so a rotating sender pool needs no connection state.
type Notifier struct {
	cfg Config
}

// New creates an SMTP notifier.
func New(cfg Config) (*Notifier, error) {
	if len(cfg.Recipients) == 0 {
		return nil, fmt.Errorf("dispatch.recipients is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	return &Notifier{cfg: cfg}, nil
}

// Send delivers the message. SSL credentials use an implicit TLS connection;
// others use STARTTLS when the server offers it.
func (n *Notifier) Send(ctx context.Context, msg lead.Message) error {
	cred := msg.Credential
	if cred.Identity == "" || cred.Secret == "" {
		return fmt.Errorf("smtp credential is incomplete")
	}
	host := cred.Host
	if host == "" {
		host = "smtp.gmail.com"
	}
	port := cred.Port
	if port == 0 {
		if cred.SSL {
			port = 465
		} else {
			port = 587
		}
	}
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	deadline := time.Now().Add(n.cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	client, err := n.dial(ctx, addr, host, cred.SSL, deadline)
	if err != nil {
		return err
	}
	defer client.Close()

	if !cred.SSL {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(&tls.Config{ServerName: host}); err != nil {
				return fmt.Errorf("starttls: %w", err)
			}
		}
	}
	auth := smtp.PlainAuth("", cred.Identity, cred.Secret, host)
	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("smtp auth: %w", err)
	}
	if err := client.Mail(cred.Identity); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	for _, rcpt := range n.cfg.Recipients {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtp rcpt %s: %w", rcpt, err)
		}
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(buildMessage(cred.Identity, n.cfg.Recipients, msg)); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp close data: %w", err)
	}
	return client.Quit()
}

func (n *Notifier) dial(ctx context.Context, addr, host string, ssl bool, deadline time.Time) (*smtp.Client, error) {
	dialer := &net.Dialer{Deadline: deadline}
	if ssl {
		conn, err := tls.DialWithDialer(dialer, "tcp", addr, &tls.Config{ServerName: host})
		if err != nil {
			return nil, fmt.Errorf("smtp tls dial %s: %w", addr, err)
		}
		client, err := smtp.NewClient(conn, host)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("smtp handshake: %w", err)
		}
		return client, nil
	}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("smtp dial %s: %w", addr, err)
	}
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return nil, fmt.Errorf("smtp set deadline: %w", err)
	}
	client, err := smtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("smtp handshake: %w", err)
	}
	return client, nil
}

func buildMessage(from string, to []string, msg lead.Message) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	if msg.ReplyTo != "" {
		fmt.Fprintf(&b, "Reply-To: %s\r\n", msg.ReplyTo)
	}
	fmt.Fprintf(&b, "Subject: %s\r\n", sanitizeHeader(msg.Subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.Body)
	b.WriteString("\r\n")
	return []byte(b.String())
}

func sanitizeHeader(v string) string {
	v = strings.ReplaceAll(v, "\r", " ")
	return strings.ReplaceAll(v, "\n", " ")
}
