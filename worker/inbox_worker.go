package worker

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"mailwatch/classifier"
	"mailwatch/models"
	"mailwatch/store"
	"mailwatch/utils"
)

// errorBackoff is the extra wait after a failed check.
const errorBackoff = 5 * time.Second

// Publisher announces classified emails on the relay.
type Publisher interface {
	PublishEnvelope(env models.Envelope) error
}

// Alerter notifies a person about a classified email.
type Alerter interface {
	SendAlert(rec models.EmailRecord) error
}

// InboxWorker watches the newest message of a mailbox, classifies every new
// one, records it and announces it.
type InboxWorker struct {
	source     MailSource
	classifier *classifier.Classifier
	store      store.Store
	publisher  Publisher
	alerter    Alerter
	interval   time.Duration
	logger     *logrus.Entry
	now        func() time.Time

	mu          sync.Mutex
	lastSubject string
	primed      bool
}

// NewInboxWorker builds a worker. publisher and alerter may be nil.
func NewInboxWorker(source MailSource, c *classifier.Classifier, s store.Store, publisher Publisher, alerter Alerter, interval time.Duration, logger *logrus.Entry) *InboxWorker {
	if interval <= 0 {
		interval = time.Second
	}
	if logger == nil {
		logger = logrus.WithField("component", "inbox_worker")
	}
	return &InboxWorker{
		source:     source,
		classifier: c,
		store:      s,
		publisher:  publisher,
		alerter:    alerter,
		interval:   interval,
		logger:     logger,
		now:        time.Now,
	}
}

func (w *InboxWorker) Start(ctx context.Context) {
	w.logger.WithField("interval", w.interval).Info("Inbox worker started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Inbox worker shutting down...")
			return
		case <-ticker.C:
			if _, err := w.CheckOnce(ctx); err != nil && ctx.Err() == nil {
				utils.LogError("inbox_check", err, nil)
				select {
				case <-ctx.Done():
				case <-time.After(errorBackoff):
				}
			}
		}
	}
}

// CheckOnce looks at the newest message. It returns the recorded email, or
// nil when there was nothing new. The first message ever seen is only taken
// as the baseline.
func (w *InboxWorker) CheckOnce(ctx context.Context) (*models.EmailRecord, error) {
	msg, err := w.source.Latest(ctx)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, nil
	}

	w.mu.Lock()
	if w.primed && msg.Subject == w.lastSubject {
		w.mu.Unlock()
		return nil, nil
	}
	w.lastSubject = msg.Subject
	if !w.primed {
		w.primed = true
		w.mu.Unlock()
		w.logger.Info("Initialization complete, starting email monitoring...")
		return nil, nil
	}
	w.mu.Unlock()

	w.logger.WithField("subject", msg.Subject).Info("New email detected")

	rec, err := w.classifier.Classify(ctx, msg.Subject, msg.Body)
	if err != nil {
		return nil, err
	}
	if err := w.store.AppendEmail(ctx, &rec); err != nil {
		return nil, err
	}
	w.logger.WithFields(logrus.Fields{
		"id":   rec.ID,
		"type": rec.Type,
	}).Info("Email recorded")

	if w.publisher != nil {
		if err := w.publisher.PublishEnvelope(models.NewEmailEnvelope(rec, w.now())); err != nil {
			w.logger.WithError(err).Warn("Failed to publish email event")
		}
	}
	if w.alerter != nil && utils.ShouldAlert(rec.Type) {
		if err := w.alerter.SendAlert(rec); err != nil {
			utils.LogError("alert_mail", err, map[string]interface{}{"id": rec.ID})
		}
	}
	return &rec, nil
}
