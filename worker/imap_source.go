package worker

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"

	"mailwatch/config"
)

// InboxMessage is the newest message of the monitored mailbox.
type InboxMessage struct {
	Subject string
	Body    string
	Date    time.Time
}

// MailSource yields the newest message of a mailbox, or nil when it is empty.
type MailSource interface {
	Latest(ctx context.Context) (*InboxMessage, error)
}

// IMAPSource reads the monitored mailbox over IMAP. Messages are fetched with
// BODY.PEEK so their \Seen flag is left alone.
type IMAPSource struct {
	cfg config.IMAPConfig
}

func NewIMAPSource(cfg config.IMAPConfig) *IMAPSource {
	return &IMAPSource{cfg: cfg}
}

func (s *IMAPSource) dial() (*client.Client, error) {
	var (
		imapClient *client.Client
		err        error
	)
	imapAddr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	switch strings.ToUpper(s.cfg.Encryption) {
	case "SSL", "TLS":
		imapClient, err = client.DialTLS(imapAddr, &tls.Config{ServerName: s.cfg.Host})
	case "STARTTLS":
		imapClient, err = client.Dial(imapAddr)
		if err == nil {
			err = imapClient.StartTLS(&tls.Config{ServerName: s.cfg.Host})
		}
	default:
		imapClient, err = client.Dial(imapAddr)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to IMAP server: %v", err)
	}
	imapClient.Timeout = 30 * time.Second
	return imapClient, nil
}

// Latest implements MailSource.
func (s *IMAPSource) Latest(ctx context.Context) (*InboxMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	imapClient, err := s.dial()
	if err != nil {
		return nil, err
	}
	defer imapClient.Logout()

	if err := imapClient.Login(s.cfg.Username, s.cfg.Password); err != nil {
		return nil, fmt.Errorf("failed to login to IMAP server: %v", err)
	}

	mailbox := s.cfg.Mailbox
	if mailbox == "" {
		mailbox = "INBOX"
	}
	status, err := imapClient.Select(mailbox, true)
	if err != nil {
		return nil, fmt.Errorf("failed to select mailbox: %v", err)
	}
	if status.Messages == 0 {
		return nil, nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(status.Messages)

	section := &imap.BodySectionName{Peek: true}
	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- imapClient.Fetch(seqset, []imap.FetchItem{imap.FetchEnvelope, section.FetchItem()}, messages)
	}()

	var latest *InboxMessage
	for msg := range messages {
		m, err := toInboxMessage(msg, section)
		if err != nil {
			return nil, err
		}
		latest = m
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("error during fetch: %v", err)
	}
	return latest, nil
}

func toInboxMessage(msg *imap.Message, section *imap.BodySectionName) (*InboxMessage, error) {
	out := &InboxMessage{}
	if msg.Envelope != nil {
		out.Subject = msg.Envelope.Subject
		out.Date = msg.Envelope.Date
	}

	literal := msg.GetBody(section)
	if literal == nil {
		return out, nil
	}
	body, subject, err := ParseMessage(literal)
	if err != nil {
		return nil, err
	}
	out.Body = body
	if out.Subject == "" {
		out.Subject = subject
	}
	return out, nil
}

// ParseMessage returns the text body and subject of an RFC 5322 message. The
// first text/plain part wins; an HTML part is used only when there is none.
func ParseMessage(r io.Reader) (body, subject string, err error) {
	mr, err := mail.CreateReader(r)
	if err != nil {
		return "", "", fmt.Errorf("failed to create message reader: %v", err)
	}
	defer mr.Close()

	subject, _ = mr.Header.Subject()

	var bodyText, bodyHTML string
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		} else if err != nil {
			return "", "", fmt.Errorf("failed to read next part: %v", err)
		}

		h, ok := p.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, _ := h.ContentType()
		if contentType == "" {
			contentType = "text/plain"
		}
		b, err := io.ReadAll(p.Body)
		if err != nil {
			return "", "", fmt.Errorf("failed to read body: %v", err)
		}
		switch {
		case strings.HasPrefix(contentType, "text/plain") && bodyText == "":
			bodyText = string(b)
		case strings.HasPrefix(contentType, "text/html") && bodyHTML == "":
			bodyHTML = string(b)
		}
	}

	if bodyText != "" {
		return bodyText, subject, nil
	}
	return bodyHTML, subject, nil
}
