package worker

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"mailwatch/client"
	"mailwatch/models"
)

const publisherDialTimeout = 5 * time.Second

// RelayPublisher publishes envelopes through a relay connection that it dials
// on first use, so the worker can start before the hub listens.
type RelayPublisher struct {
	url    string
	logger *logrus.Entry

	mu sync.Mutex
	rc *client.RelayClient
}

func NewRelayPublisher(url string, logger *logrus.Entry) *RelayPublisher {
	if logger == nil {
		logger = logrus.WithField("component", "relay_publisher")
	}
	return &RelayPublisher{url: url, logger: logger}
}

// PublishEnvelope implements Publisher.
func (p *RelayPublisher) PublishEnvelope(env models.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.rc == nil {
		ctx, cancel := context.WithTimeout(context.Background(), publisherDialTimeout)
		rc, err := client.DialRelay(ctx, p.url, client.WithRelayLogger(p.logger))
		cancel()
		if err != nil {
			return err
		}
		p.rc = rc
		p.logger.WithField("url", p.url).Info("Connected to relay")
	}
	return p.rc.PublishEnvelope(env)
}

func (p *RelayPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rc == nil {
		return nil
	}
	err := p.rc.Close()
	p.rc = nil
	return err
}
