package models

import (
	"time"
)

// EmailType is the classification label assigned by the analysis engine.
type EmailType string

const (
	EmailTypeSensitive EmailType = "Sensitive"
	EmailTypeAlert     EmailType = "Alert"
	EmailTypeNonUrgent EmailType = "Non-urgent"
)

// Known reports whether t is one of the labels viewers render specially.
// Anything else is displayed with the default style.
func (t EmailType) Known() bool {
	switch t {
	case EmailTypeSensitive, EmailTypeAlert, EmailTypeNonUrgent:
		return true
	}
	return false
}

// TimestampLayout is the wall-clock format used in EmailRecord.Timestamp.
const TimestampLayout = "2006-01-02 15:04:05"

// EmailRecord is one classified message. Records are immutable once stored.
type EmailRecord struct {
	ID                string    `gorm:"primaryKey;size:36" json:"id"`
	Type              EmailType `gorm:"size:32;index" json:"type" validate:"omitempty,oneof=Sensitive Alert Non-urgent"`
	Title             string    `json:"title" validate:"max=998"`
	Reason            string    `json:"reason"`
	Timestamp         string    `gorm:"size:32" json:"timestamp"`
	MatchedWatchWords []string  `gorm:"serializer:json" json:"matched_watch_words"`
	BodyPreview       string    `gorm:"type:text" json:"body_preview,omitempty"`

	// CreatedAt orders the history; it never leaves the server.
	CreatedAt time.Time `gorm:"index" json:"-"`
}

// PreviewLength is the number of body characters kept in BodyPreview.
const PreviewLength = 100

// BodyPreview trims body to PreviewLength runes, marking truncation with "...".
func BodyPreview(body string) string {
	runes := []rune(body)
	if len(runes) <= PreviewLength {
		return body
	}
	return string(runes[:PreviewLength]) + "..."
}

// EmailListResponse is the body of the email history endpoints.
type EmailListResponse struct {
	Status string        `json:"status,omitempty"`
	Count  int           `json:"count"`
	Emails []EmailRecord `json:"emails"`
}
