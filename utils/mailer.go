package utils

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"gopkg.in/gomail.v2"

	"mailwatch/config"
	"mailwatch/models"
)

// Sender delivers composed messages. *gomail.Dialer satisfies it.
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

type alertData struct {
	Type        models.EmailType
	Title       string
	Reason      string
	Timestamp   string
	Preview     string
	WatchWords  string
	Year        int
	Highlighted bool
}

var alertTemplate = template.Must(template.New("alert").Parse(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{.Type}}: {{.Title}}</title>
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { border-bottom: 1px solid #eee; padding-bottom: 10px; }
        .sensitive { color: #c0392b; }
        .alert { color: #d35400; }
        .footer { margin-top: 30px; font-size: 12px; color: #7f8c8d; text-align: center; }
    </style>
</head>
<body>
    <div class="header">
        <h2 class="{{if .Highlighted}}sensitive{{else}}alert{{end}}">{{.Type}} email received</h2>
    </div>
    <p><strong>{{.Title}}</strong></p>
    <p>{{.Reason}}</p>
    {{if .WatchWords}}<p>Matched watch words: {{.WatchWords}}</p>{{end}}
    {{if .Preview}}<blockquote>{{.Preview}}</blockquote>{{end}}
    <div class="footer">
        <p>Received {{.Timestamp}}</p>
        <p>© {{.Year}} mailwatch</p>
    </div>
</body>
</html>`))

// AlertMailer notifies ALERT_RECIPIENT about Sensitive and Alert emails.
type AlertMailer struct {
	cfg    config.SMTPConfig
	sender Sender
}

// NewAlertMailer returns nil when SMTP or the recipient is not configured.
func NewAlertMailer(cfg config.SMTPConfig) *AlertMailer {
	if !cfg.Enabled() {
		return nil
	}
	return NewAlertMailerWithSender(cfg, gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password))
}

func NewAlertMailerWithSender(cfg config.SMTPConfig, sender Sender) *AlertMailer {
	return &AlertMailer{cfg: cfg, sender: sender}
}

// ShouldAlert reports whether a record of type t warrants a notification.
func ShouldAlert(t models.EmailType) bool {
	return t == models.EmailTypeSensitive || t == models.EmailTypeAlert
}

// ComposeAlert builds the notification message for rec.
func (m *AlertMailer) ComposeAlert(rec models.EmailRecord) (*gomail.Message, error) {
	var body bytes.Buffer
	if err := alertTemplate.Execute(&body, alertData{
		Type:        rec.Type,
		Title:       rec.Title,
		Reason:      rec.Reason,
		Timestamp:   rec.Timestamp,
		Preview:     rec.BodyPreview,
		WatchWords:  strings.Join(rec.MatchedWatchWords, ", "),
		Year:        time.Now().Year(),
		Highlighted: rec.Type == models.EmailTypeSensitive,
	}); err != nil {
		return nil, fmt.Errorf("error executing template: %v", err)
	}

	from := m.cfg.FromEmail
	if from == "" {
		from = m.cfg.Username
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", from)
	msg.SetHeader("To", m.cfg.AlertRecipient)
	msg.SetHeader("Subject", fmt.Sprintf("[%s] %s", rec.Type, rec.Title))
	msg.SetBody("text/html", body.String())
	return msg, nil
}

// SendAlert mails rec if its type warrants it. Other types are ignored.
func (m *AlertMailer) SendAlert(rec models.EmailRecord) error {
	if !ShouldAlert(rec.Type) {
		return nil
	}
	msg, err := m.ComposeAlert(rec)
	if err != nil {
		return err
	}
	if err := m.sender.DialAndSend(msg); err != nil {
		return fmt.Errorf("error sending email: %v", err)
	}
	LogEvent("alert_mail_sent", map[string]interface{}{
		"type":  rec.Type,
		"title": rec.Title,
	})
	return nil
}
