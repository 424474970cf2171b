package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"mailwatch/models"
)

// MemoryStore keeps everything in process memory. It is the default backend
// and the one used by handler tests.
type MemoryStore struct {
	mu       sync.RWMutex
	emails   []models.EmailRecord // oldest first
	defaults []string
	custom   []string
	watch    []string
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		defaults: slices.Clone(models.DefaultSensitiveWords),
		custom:   []string{},
		watch:    []string{},
		now:      time.Now,
	}
}

func (s *MemoryStore) LatestEmails(_ context.Context, count int) ([]models.EmailRecord, error) {
	count = normalizeCount(count)

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.EmailRecord, 0, min(count, len(s.emails)))
	for i := len(s.emails) - 1; i >= 0 && len(out) < count; i-- {
		out = append(out, cloneRecord(s.emails[i]))
	}
	return out, nil
}

func (s *MemoryStore) ListEmails(ctx context.Context) ([]models.EmailRecord, error) {
	s.mu.RLock()
	n := len(s.emails)
	s.mu.RUnlock()
	return s.LatestEmails(ctx, max(n, 1))
}

func (s *MemoryStore) AppendEmail(_ context.Context, rec *models.EmailRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stamp(rec, s.now())
	s.emails = append(s.emails, cloneRecord(*rec))
	return nil
}

func (s *MemoryStore) ClearEmails(context.Context) error {
	s.mu.Lock()
	s.emails = nil
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) SensitiveWords(context.Context) (models.SensitiveWordSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sensitiveSet(), nil
}

func (s *MemoryStore) AddSensitiveWord(_ context.Context, word string) (models.SensitiveWordSet, error) {
	word = models.NormalizeWord(word)
	if word == "" {
		return models.SensitiveWordSet{}, ErrEmptyWord
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if containsFold(s.defaults, word) || containsFold(s.custom, word) {
		return models.SensitiveWordSet{}, ErrWordExists
	}
	s.custom = append(s.custom, word)
	return s.sensitiveSet(), nil
}

func (s *MemoryStore) RemoveSensitiveWord(_ context.Context, word string) (models.SensitiveWordSet, error) {
	word = models.NormalizeWord(word)

	s.mu.Lock()
	defer s.mu.Unlock()

	i := slices.Index(s.custom, word)
	if i < 0 {
		return models.SensitiveWordSet{}, ErrWordNotFound
	}
	s.custom = slices.Delete(s.custom, i, i+1)
	return s.sensitiveSet(), nil
}

func (s *MemoryStore) ResetSensitiveWords(context.Context) error {
	s.mu.Lock()
	s.custom = []string{}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) WatchWords(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.watch), nil
}

func (s *MemoryStore) AddWatchWord(_ context.Context, word string) ([]string, error) {
	word = models.NormalizeWord(word)
	if word == "" {
		return nil, ErrEmptyWord
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if containsFold(s.watch, word) {
		return nil, ErrWordExists
	}
	s.watch = append(s.watch, word)
	return slices.Clone(s.watch), nil
}

func (s *MemoryStore) RemoveWatchWord(_ context.Context, word string) ([]string, error) {
	word = models.NormalizeWord(word)

	s.mu.Lock()
	defer s.mu.Unlock()

	i := slices.Index(s.watch, word)
	if i < 0 {
		return nil, ErrWordNotFound
	}
	s.watch = slices.Delete(s.watch, i, i+1)
	return slices.Clone(s.watch), nil
}

func (s *MemoryStore) ResetWatchWords(context.Context) error {
	s.mu.Lock()
	s.watch = []string{}
	s.mu.Unlock()
	return nil
}

// sensitiveSet must be called with s.mu held.
func (s *MemoryStore) sensitiveSet() models.SensitiveWordSet {
	all := make([]string, 0, len(s.defaults)+len(s.custom))
	all = append(all, s.defaults...)
	all = append(all, s.custom...)
	return models.SensitiveWordSet{
		Default: slices.Clone(s.defaults),
		Custom:  slices.Clone(s.custom),
		All:     all,
	}
}

func containsFold(words []string, word string) bool {
	key := models.FoldWord(word)
	return slices.ContainsFunc(words, func(w string) bool {
		return models.FoldWord(w) == key
	})
}

func cloneRecord(rec models.EmailRecord) models.EmailRecord {
	rec.MatchedWatchWords = slices.Clone(rec.MatchedWatchWords)
	if rec.MatchedWatchWords == nil {
		rec.MatchedWatchWords = []string{}
	}
	return rec
}
