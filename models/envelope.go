package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// EnvelopeType tags a message carried over the relay.
type EnvelopeType string

const (
	// EnvelopeSystem is the connection-established notice sent by the hub.
	EnvelopeSystem EnvelopeType = "system"
	// EnvelopeEmailClassified announces a newly classified email.
	EnvelopeEmailClassified EnvelopeType = "email_classified"
)

// ConnectedMessage is the text of the hub's system notice.
const ConnectedMessage = "WebSocket connection established"

var ErrEnvelopeType = errors.New("envelope has no type")

// Envelope is the typed view of a relay message. The hub itself never decodes
// it; only publishers and viewers do.
type Envelope struct {
	Type      EnvelopeType `json:"type"`
	Message   string       `json:"message,omitempty"`
	Timestamp string       `json:"timestamp,omitempty"`
	Email     *EmailRecord `json:"email,omitempty"`
}

// NewSystemEnvelope builds the notice sent to every new connection.
func NewSystemEnvelope(now time.Time) Envelope {
	return Envelope{
		Type:      EnvelopeSystem,
		Message:   ConnectedMessage,
		Timestamp: now.UTC().Format(time.RFC3339Nano),
	}
}

// NewEmailEnvelope wraps a classified record for publishing.
func NewEmailEnvelope(rec EmailRecord, now time.Time) Envelope {
	return Envelope{
		Type:      EnvelopeEmailClassified,
		Message:   fmt.Sprintf("%s: %s", rec.Type, rec.Title),
		Timestamp: now.UTC().Format(time.RFC3339Nano),
		Email:     &rec,
	}
}

// ParseEnvelope decodes a raw relay payload. Unknown types are accepted so
// that viewers stay forward compatible; a missing type is rejected.
func ParseEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("decoding envelope: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, ErrEnvelopeType
	}
	return env, nil
}
