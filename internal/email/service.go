// Package email delivers outbound EventLog bodies over SMTP.
package email

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"net/smtp"
	"sort"
	"strings"

	"eventlog/api/internal/htmlbridge"
	"eventlog/api/internal/meta"
)

// Config holds SMTP configuration
type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
	// To receives every outbound EventLog.
	To []string
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Service provides email sending
type Service struct {
	config Config
	server string
	auth   smtp.Auth
	send   sendFunc
}

func NewService(config Config) *Service {
	var auth smtp.Auth
	if config.Username != "" {
		auth = smtp.PlainAuth("", config.Username, config.Password, config.Host)
	}
	return &Service{
		config: config,
		server: config.Host + ":" + config.Port,
		auth:   auth,
		send:   smtp.SendMail,
	}
}

// IsConfigured returns true if email is configured
func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port != "" && s.config.From != "" && len(s.config.To) > 0
}

func (s *Service) fromHeader() string {
	if s.config.FromName == "" {
		return s.config.From
	}
	return fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", s.config.FromName), s.config.From)
}

// SendHTMLEmail sends a multipart/alternative message.
func (s *Service) SendHTMLEmail(to []string, subject, textBody, htmlBody string, headers map[string]string) error {
	if !s.IsConfigured() {
		return fmt.Errorf("email not configured")
	}
	msg := buildMessage(s.fromHeader(), to, subject, textBody, htmlBody, headers)
	if err := s.send(s.server, s.auth, s.config.From, to, msg); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

const boundary = "boundary-eventlog"

func buildMessage(from string, to []string, subject, textBody, htmlBody string, headers map[string]string) []byte {
	var msg bytes.Buffer
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	for _, key := range sortedKeys(headers) {
		fmt.Fprintf(&msg, "%s: %s\r\n", key, headers[key])
	}
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary)
	fmt.Fprintf(&msg, "\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/plain; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "%s\r\n", crlf(textBody))
	fmt.Fprintf(&msg, "\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/html; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "%s\r\n", htmlBody)
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "--%s--\r\n", boundary)
	return msg.Bytes()
}

func crlf(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "\r\n", "\n"), "\n", "\r\n")
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// RecordHeader carries the record id so replies can be routed back.
const RecordHeader = "X-EventLog-Record"

// Transport sends outbound bodies to the configured recipients.
type Transport struct {
	svc *Service
}

func NewTransport(svc *Service) *Transport {
	return &Transport{svc: svc}
}

// Deliver mails the full outbound body. The text part is the visible
// rendering flattened to text.
func (t *Transport) Deliver(ctx context.Context, recordID, subject string, out meta.Outbound) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if subject == "" {
		subject = "EventLog " + recordID
	}
	text := htmlbridge.ExtractText(out.VisibleHTML)
	return t.svc.SendHTMLEmail(t.svc.config.To, subject, text, out.Body, map[string]string{RecordHeader: recordID})
}
