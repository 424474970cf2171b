package worker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailwatch/classifier"
	"mailwatch/models"
	"mailwatch/store"
)

type fakeSource struct {
	mu   sync.Mutex
	msgs []*InboxMessage
	err  error
}

func (f *fakeSource) Latest(context.Context) (*InboxMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if len(f.msgs) == 0 {
		return nil, nil
	}
	msg := f.msgs[0]
	if len(f.msgs) > 1 {
		f.msgs = f.msgs[1:]
	}
	return msg, nil
}

type fakePublisher struct {
	envelopes []models.Envelope
	err       error
}

func (f *fakePublisher) PublishEnvelope(env models.Envelope) error {
	f.envelopes = append(f.envelopes, env)
	return f.err
}

type fakeAlerter struct {
	sent []models.EmailRecord
}

func (f *fakeAlerter) SendAlert(rec models.EmailRecord) error {
	f.sent = append(f.sent, rec)
	return nil
}

func newTestWorker(source MailSource) (*InboxWorker, store.Store, *fakePublisher, *fakeAlerter) {
	s := store.NewMemoryStore()
	pub := &fakePublisher{}
	alerter := &fakeAlerter{}
	w := NewInboxWorker(source, classifier.New(s, nil, nil), s, pub, alerter, 0, nil)
	return w, s, pub, alerter
}

func TestCheckOnce_FirstMessageIsBaseline(t *testing.T) {
	source := &fakeSource{msgs: []*InboxMessage{
		{Subject: "old news", Body: "already here"},
		{Subject: "old news", Body: "already here"},
		{Subject: "Lunch", Body: "tomorrow?"},
	}}
	w, s, pub, _ := newTestWorker(source)
	ctx := context.Background()

	rec, err := w.CheckOnce(ctx)
	require.NoError(t, err)
	assert.Nil(t, rec, "baseline is not recorded")

	rec, err = w.CheckOnce(ctx)
	require.NoError(t, err)
	assert.Nil(t, rec, "same subject is not processed twice")

	rec, err = w.CheckOnce(ctx)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "Lunch", rec.Title)
	assert.Equal(t, models.EmailTypeNonUrgent, rec.Type)

	stored, err := s.LatestEmails(ctx, 10)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, rec.ID, stored[0].ID)

	require.Len(t, pub.envelopes, 1)
	assert.Equal(t, models.EnvelopeEmailClassified, pub.envelopes[0].Type)
	assert.Equal(t, rec.ID, pub.envelopes[0].Email.ID)
}

func TestCheckOnce_SensitiveTriggersAlert(t *testing.T) {
	source := &fakeSource{msgs: []*InboxMessage{
		{Subject: "baseline"},
		{Subject: "Reset your password", Body: "click here"},
	}}
	w, _, _, alerter := newTestWorker(source)
	ctx := context.Background()

	_, err := w.CheckOnce(ctx)
	require.NoError(t, err)
	rec, err := w.CheckOnce(ctx)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, models.EmailTypeSensitive, rec.Type)
	require.Len(t, alerter.sent, 1)
	assert.Equal(t, rec.ID, alerter.sent[0].ID)
}

func TestCheckOnce_NonUrgentDoesNotAlert(t *testing.T) {
	source := &fakeSource{msgs: []*InboxMessage{{Subject: "a"}, {Subject: "b"}}}
	w, _, _, alerter := newTestWorker(source)

	_, _ = w.CheckOnce(context.Background())
	_, err := w.CheckOnce(context.Background())
	require.NoError(t, err)
	assert.Empty(t, alerter.sent)
}

func TestCheckOnce_PublishFailureStillRecords(t *testing.T) {
	source := &fakeSource{msgs: []*InboxMessage{{Subject: "a"}, {Subject: "b"}}}
	w, s, pub, _ := newTestWorker(source)
	pub.err = errors.New("relay down")

	_, _ = w.CheckOnce(context.Background())
	rec, err := w.CheckOnce(context.Background())
	require.NoError(t, err)
	require.NotNil(t, rec)

	stored, err := s.ListEmails(context.Background())
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestCheckOnce_EmptyMailboxAndErrors(t *testing.T) {
	w, _, _, _ := newTestWorker(&fakeSource{})
	rec, err := w.CheckOnce(context.Background())
	require.NoError(t, err)
	assert.Nil(t, rec)

	w, _, _, _ = newTestWorker(&fakeSource{err: errors.New("imap down")})
	_, err = w.CheckOnce(context.Background())
	assert.EqualError(t, err, "imap down")
}

func TestNewInboxWorker_NilCollaborators(t *testing.T) {
	s := store.NewMemoryStore()
	source := &fakeSource{msgs: []*InboxMessage{{Subject: "a"}, {Subject: "urgent password"}}}
	w := NewInboxWorker(source, classifier.New(s, nil, nil), s, nil, nil, 0, nil)

	_, _ = w.CheckOnce(context.Background())
	rec, err := w.CheckOnce(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, rec)
}

func TestParseMessage(t *testing.T) {
	t.Run("multipart prefers plain text", func(t *testing.T) {
		raw := strings.Join([]string{
			"From: a@example.com",
			"To: b@example.com",
			"Subject: Quarterly report",
			"MIME-Version: 1.0",
			`Content-Type: multipart/alternative; boundary="XYZ"`,
			"",
			"--XYZ",
			"Content-Type: text/html; charset=utf-8",
			"",
			"<p>html body</p>",
			"--XYZ",
			"Content-Type: text/plain; charset=utf-8",
			"",
			"plain body",
			"--XYZ--",
			"",
		}, "\r\n")

		body, subject, err := ParseMessage(strings.NewReader(raw))
		require.NoError(t, err)
		assert.Equal(t, "Quarterly report", subject)
		assert.Equal(t, "plain body", strings.TrimSpace(body))
	})

	t.Run("html only", func(t *testing.T) {
		raw := "Subject: Hi\r\nContent-Type: text/html\r\n\r\n<b>hello</b>\r\n"
		body, subject, err := ParseMessage(strings.NewReader(raw))
		require.NoError(t, err)
		assert.Equal(t, "Hi", subject)
		assert.Contains(t, body, "<b>hello</b>")
	})

	t.Run("no content type", func(t *testing.T) {
		raw := "Subject: Plain\r\n\r\njust text\r\n"
		body, _, err := ParseMessage(strings.NewReader(raw))
		require.NoError(t, err)
		assert.Contains(t, body, "just text")
	})
}
