package smtp

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/mailcore/internal/model"
	"github.com/nhle/mailcore/internal/remote"
)

const dialTimeout = 30 * time.Second

// Sender submits outgoing mail over SMTP with either implicit TLS or
// STARTTLS, matching the account configuration.
type Sender struct {
	host     string
	port     string
	username string
	password string
	tls      bool
	account  string
}

// NewSender creates an SMTP sender for one account.
func NewSender(cfg model.SMTPConfig, account, password string) *Sender {
	return &Sender{
		host:     cfg.Host,
		port:     cfg.Port,
		username: cfg.Username,
		password: password,
		tls:      cfg.TLS,
		account:  account,
	}
}

// Send composes an RFC 2822 message from the draft and submits it to
// every recipient. It returns the Message-ID assigned to the message.
func (s *Sender) Send(_ context.Context, draft *model.Draft) (string, error) {
	messageID := generateMessageID(s.host)
	body := composeMessage(draft, messageID)

	recipients := make([]string, 0, len(draft.To)+len(draft.Cc)+len(draft.Bcc))
	for _, a := range draft.Recipients() {
		recipients = append(recipients, a.Addr)
	}
	if len(recipients) == 0 {
		return "", fmt.Errorf("draft %s has no recipients", draft.DraftID)
	}

	addr := s.host + ":" + s.port

	var err error
	if s.tls {
		err = s.sendWithTLS(addr, draft.From.Addr, recipients, body)
	} else {
		err = s.sendWithStartTLS(addr, draft.From.Addr, recipients, body)
	}
	if err != nil {
		return "", err
	}

	return messageID, nil
}

// sendWithTLS sends a message over an implicit TLS connection.
func (s *Sender) sendWithTLS(addr, from string, recipients []string, body string) error {
	tlsConfig := &tls.Config{ServerName: s.host}

	conn, err := tls.Dial("tcp", addr, tlsConfig)
	if err != nil {
		return &remote.ConnectionError{Addr: addr, Err: err}
	}

	client, err := smtp.NewClient(conn, s.host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("creating SMTP client: %w", err)
	}
	defer client.Close()

	if err := s.authenticate(client); err != nil {
		return err
	}

	return sendMail(client, from, recipients, body)
}

// sendWithStartTLS sends a message using STARTTLS.
func (s *Sender) sendWithStartTLS(addr, from string, recipients []string, body string) error {
	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return &remote.ConnectionError{Addr: addr, Err: err}
	}

	client, err := smtp.NewClient(conn, s.host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("creating SMTP client: %w", err)
	}
	defer client.Close()

	tlsConfig := &tls.Config{ServerName: s.host}
	if err := client.StartTLS(tlsConfig); err != nil {
		return fmt.Errorf("SMTP STARTTLS: %w", err)
	}

	if err := s.authenticate(client); err != nil {
		return err
	}

	return sendMail(client, from, recipients, body)
}

func (s *Sender) authenticate(client *smtp.Client) error {
	auth := smtp.PlainAuth("", s.username, s.password, s.host)
	if err := client.Auth(auth); err != nil {
		return &remote.AuthError{
			Account: s.account,
			Message: fmt.Sprintf("SMTP authentication failed for %s: %v", s.username, err),
		}
	}
	return nil
}

// sendMail delivers a message using an already-authenticated SMTP client.
func sendMail(client *smtp.Client, from string, recipients []string, body string) error {
	if err := client.Mail(from); err != nil {
		return fmt.Errorf("SMTP MAIL FROM: %w", err)
	}

	for _, rcpt := range recipients {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("SMTP RCPT TO %s: %w", rcpt, err)
		}
	}

	writer, err := client.Data()
	if err != nil {
		return fmt.Errorf("SMTP DATA: %w", err)
	}

	if _, err := writer.Write([]byte(body)); err != nil {
		return fmt.Errorf("writing message body: %w", err)
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("closing message body: %w", err)
	}

	return client.Quit()
}

// composeMessage renders a draft as an RFC 2822 message. Bcc addresses
// become envelope recipients only and never appear in the headers.
func composeMessage(draft *model.Draft, messageID string) string {
	var msg strings.Builder

	msg.WriteString(fmt.Sprintf("From: %s\r\n", draft.From.String()))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", joinAddresses(draft.To)))
	if len(draft.Cc) > 0 {
		msg.WriteString(fmt.Sprintf("Cc: %s\r\n", joinAddresses(draft.Cc)))
	}
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", draft.Subject))
	msg.WriteString(fmt.Sprintf("Message-ID: <%s>\r\n", messageID))
	msg.WriteString(fmt.Sprintf("Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z)))

	if draft.InReplyTo != "" {
		msg.WriteString(fmt.Sprintf("In-Reply-To: <%s>\r\n", draft.InReplyTo))
	}
	if len(draft.References) > 0 {
		refs := make([]string, 0, len(draft.References))
		for _, r := range draft.References {
			refs = append(refs, "<"+r+">")
		}
		msg.WriteString(fmt.Sprintf("References: %s\r\n", strings.Join(refs, " ")))
	}

	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(draft.BodyText)

	return msg.String()
}

func joinAddresses(addrs []model.Address) string {
	parts := make([]string, 0, len(addrs))
	for _, a := range addrs {
		parts = append(parts, a.String())
	}
	return strings.Join(parts, ", ")
}

// generateMessageID builds a globally unique Message-ID scoped to the
// sending host.
func generateMessageID(host string) string {
	return fmt.Sprintf("%s@%s", uuid.NewString(), host)
}
