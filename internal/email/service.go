// Package email sends collaboration notifications via SMTP.
package email

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"

	"naskahcollab/pkg/logger"
)

// Config holds SMTP configuration
type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
	// AppURL is the base used to build document links.
	AppURL string
}

type Invitation struct {
	To           string
	InviteeName  string
	InviterName  string
	DocumentID   string
	DocumentName string
	Permission   string
	Message      string
}

// Mailer is what the invitation flow needs from a mail transport.
type Mailer interface {
	SendInvitation(ctx context.Context, inv Invitation) error
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
	return &Service{
		config: config,
		server: config.Host + ":" + config.Port,
		auth:   smtp.PlainAuth("", config.Username, config.Password, config.Host),
		send:   smtp.SendMail,
	}
}

// IsConfigured returns true if email is configured
func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port != "" && s.config.From != ""
}

// SendHTMLEmail sends a multipart email with a plain text fallback.
func (s *Service) SendHTMLEmail(to []string, subject, textBody, htmlBody string) error {
	if !s.IsConfigured() {
		return fmt.Errorf("email not configured")
	}

	from := s.config.From
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}

	boundary := "boundary-naskah"

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary)
	fmt.Fprintf(&msg, "\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	fmt.Fprintf(&msg, "%s\r\n\r\n", textBody)

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/html; charset=UTF-8\r\n\r\n")
	fmt.Fprintf(&msg, "%s\r\n\r\n", htmlBody)
	fmt.Fprintf(&msg, "--%s--\r\n", boundary)

	return s.send(s.server, s.auth, s.config.From, to, msg.Bytes())
}

type invitationData struct {
	Invitation
	Link string
}

// SendInvitation renders and sends the "document shared with you" mail.
func (s *Service) SendInvitation(_ context.Context, inv Invitation) error {
	data := invitationData{
		Invitation: inv,
		Link:       strings.TrimRight(s.config.AppURL, "/") + "/documents/" + inv.DocumentID,
	}

	subject := fmt.Sprintf("%s shared \"%s\" with you", inv.InviterName, inv.DocumentName)
	html, err := renderInvitation(data)
	if err != nil {
		return fmt.Errorf("render invitation template: %w", err)
	}
	text := fmt.Sprintf("%s invited you to %s \"%s\": %s", inv.InviterName, inv.Permission, inv.DocumentName, data.Link)
	if inv.Message != "" {
		text += "\n\n" + inv.Message
	}
	return s.SendHTMLEmail([]string{inv.To}, subject, text, html)
}

var invitationTmpl = template.Must(template.New("invitation").Parse(invitationTemplate))

func renderInvitation(data invitationData) (string, error) {
	var buf bytes.Buffer
	if err := invitationTmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// LogMailer stands in when SMTP is not configured.
type LogMailer struct{}

func (LogMailer) SendInvitation(_ context.Context, inv Invitation) error {
	logger.Sugar.Infow("SMTP not configured, skipping invitation email",
		"to", inv.To, "document_id", inv.DocumentID, "permission", inv.Permission)
	return nil
}

// NewMailer returns the SMTP service when configured, LogMailer otherwise.
func NewMailer(config Config) Mailer {
	s := NewService(config)
	if !s.IsConfigured() {
		return LogMailer{}
	}
	return s
}

const invitationTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{.DocumentName}}</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .button { display: inline-block; padding: 12px 24px; background: #0066cc; color: white; text-decoration: none; border-radius: 4px; margin: 20px 0; }
        .message { background: #f5f5f5; padding: 12px; border-left: 3px solid #0066cc; margin: 20px 0; }
        .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 12px; color: #666; }
    </style>
</head>
<body>
    <h2>Hi {{.InviteeName}},</h2>

    <p>{{.InviterName}} invited you to <strong>{{.Permission}}</strong> the document "{{.DocumentName}}".</p>
    {{if .Message}}<div class="message">{{.Message}}</div>{{end}}

    <p>
        <a href="{{.Link}}" class="button">Open document</a>
    </p>

    <div class="footer">
        <p>If you were not expecting this invitation, you can ignore this email.</p>
    </div>
</body>
</html>`
