// Package store holds the authoritative email history and moderation word
// lists that viewers reconcile against.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"mailwatch/models"
)

var (
	ErrEmptyWord    = errors.New("word cannot be empty")
	ErrWordExists   = errors.New("word already exists")
	ErrWordNotFound = errors.New("word not found")
)

// DefaultLatestCount is used when a caller asks for a non-positive count.
const DefaultLatestCount = 10

// Store is the backend contract served over the REST API.
type Store interface {
	LatestEmails(ctx context.Context, count int) ([]models.EmailRecord, error)
	ListEmails(ctx context.Context) ([]models.EmailRecord, error)
	AppendEmail(ctx context.Context, rec *models.EmailRecord) error
	ClearEmails(ctx context.Context) error

	SensitiveWords(ctx context.Context) (models.SensitiveWordSet, error)
	AddSensitiveWord(ctx context.Context, word string) (models.SensitiveWordSet, error)
	RemoveSensitiveWord(ctx context.Context, word string) (models.SensitiveWordSet, error)
	ResetSensitiveWords(ctx context.Context) error

	WatchWords(ctx context.Context) ([]string, error)
	AddWatchWord(ctx context.Context, word string) ([]string, error)
	RemoveWatchWord(ctx context.Context, word string) ([]string, error)
	ResetWatchWords(ctx context.Context) error
}

// stamp fills the server-assigned fields of a new record.
func stamp(rec *models.EmailRecord, now time.Time) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp == "" {
		rec.Timestamp = now.Format(models.TimestampLayout)
	}
	if rec.MatchedWatchWords == nil {
		rec.MatchedWatchWords = []string{}
	}
	rec.CreatedAt = now
}

func normalizeCount(count int) int {
	if count <= 0 {
		return DefaultLatestCount
	}
	return count
}
