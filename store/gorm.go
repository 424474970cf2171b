package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"mailwatch/models"
)

// GormStore persists records and word lists through gorm. It works with any
// dialect the config package opens (postgres, sqlite).
type GormStore struct {
	db  *gorm.DB
	now func() time.Time

	mu   sync.Mutex
	last time.Time
}

// NewGormStore migrates the schema and seeds the default sensitive words.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := models.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("migrating store schema: %w", err)
	}
	if err := models.SeedDefaultWords(db); err != nil {
		return nil, fmt.Errorf("seeding default words: %w", err)
	}
	return &GormStore{db: db, now: time.Now}, nil
}

func (s *GormStore) LatestEmails(ctx context.Context, count int) ([]models.EmailRecord, error) {
	var out []models.EmailRecord
	err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(normalizeCount(count)).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("querying latest emails: %w", err)
	}
	return fillWatchWords(out), nil
}

func (s *GormStore) ListEmails(ctx context.Context) ([]models.EmailRecord, error) {
	var out []models.EmailRecord
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("querying emails: %w", err)
	}
	return fillWatchWords(out), nil
}

func (s *GormStore) AppendEmail(ctx context.Context, rec *models.EmailRecord) error {
	stamp(rec, s.nextCreatedAt())
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("inserting email: %w", err)
	}
	return nil
}

// nextCreatedAt returns a strictly increasing time at microsecond precision,
// the finest resolution postgres keeps, so recency order has no ties.
func (s *GormStore) nextCreatedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.now().UTC().Truncate(time.Microsecond)
	if !t.After(s.last) {
		t = s.last.Add(time.Microsecond)
	}
	s.last = t
	return t
}

func (s *GormStore) ClearEmails(ctx context.Context) error {
	err := s.db.WithContext(ctx).
		Session(&gorm.Session{AllowGlobalUpdate: true}).
		Delete(&models.EmailRecord{}).Error
	if err != nil {
		return fmt.Errorf("clearing emails: %w", err)
	}
	return nil
}

func (s *GormStore) SensitiveWords(ctx context.Context) (models.SensitiveWordSet, error) {
	entries, err := s.entries(ctx, s.db, models.SensitiveList)
	if err != nil {
		return models.SensitiveWordSet{}, err
	}
	return sensitiveSetFromEntries(entries), nil
}

func (s *GormStore) AddSensitiveWord(ctx context.Context, word string) (models.SensitiveWordSet, error) {
	entries, err := s.add(ctx, models.SensitiveList, word)
	if err != nil {
		return models.SensitiveWordSet{}, err
	}
	return sensitiveSetFromEntries(entries), nil
}

func (s *GormStore) RemoveSensitiveWord(ctx context.Context, word string) (models.SensitiveWordSet, error) {
	entries, err := s.remove(ctx, models.SensitiveList, word)
	if err != nil {
		return models.SensitiveWordSet{}, err
	}
	return sensitiveSetFromEntries(entries), nil
}

func (s *GormStore) ResetSensitiveWords(ctx context.Context) error {
	return s.reset(ctx, models.SensitiveList)
}

func (s *GormStore) WatchWords(ctx context.Context) ([]string, error) {
	entries, err := s.entries(ctx, s.db, models.WatchList)
	if err != nil {
		return nil, err
	}
	return words(entries), nil
}

func (s *GormStore) AddWatchWord(ctx context.Context, word string) ([]string, error) {
	entries, err := s.add(ctx, models.WatchList, word)
	if err != nil {
		return nil, err
	}
	return words(entries), nil
}

func (s *GormStore) RemoveWatchWord(ctx context.Context, word string) ([]string, error) {
	entries, err := s.remove(ctx, models.WatchList, word)
	if err != nil {
		return nil, err
	}
	return words(entries), nil
}

func (s *GormStore) ResetWatchWords(ctx context.Context) error {
	return s.reset(ctx, models.WatchList)
}

func (s *GormStore) entries(ctx context.Context, db *gorm.DB, list models.WordList) ([]models.WordEntry, error) {
	var out []models.WordEntry
	err := db.WithContext(ctx).
		Where("list = ?", list).
		Order("is_default DESC").
		Order("id ASC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("querying %s words: %w", list, err)
	}
	return out, nil
}

func (s *GormStore) add(ctx context.Context, list models.WordList, word string) ([]models.WordEntry, error) {
	word = models.NormalizeWord(word)
	if word == "" {
		return nil, ErrEmptyWord
	}

	var out []models.WordEntry
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&models.WordEntry{}).
			Where("list = ? AND normal = ?", list, models.FoldWord(word)).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return ErrWordExists
		}

		entry := models.WordEntry{List: list, Word: word, Normal: models.FoldWord(word)}
		if err := tx.Create(&entry).Error; err != nil {
			return err
		}

		var err error
		out, err = s.entries(ctx, tx, list)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrWordExists) {
			return nil, err
		}
		return nil, fmt.Errorf("adding %s word: %w", list, err)
	}
	return out, nil
}

func (s *GormStore) remove(ctx context.Context, list models.WordList, word string) ([]models.WordEntry, error) {
	word = models.NormalizeWord(word)

	var out []models.WordEntry
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("list = ? AND word = ? AND is_default = ?", list, word, false).
			Delete(&models.WordEntry{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrWordNotFound
		}

		var err error
		out, err = s.entries(ctx, tx, list)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrWordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("removing %s word: %w", list, err)
	}
	return out, nil
}

func (s *GormStore) reset(ctx context.Context, list models.WordList) error {
	err := s.db.WithContext(ctx).
		Where("list = ? AND is_default = ?", list, false).
		Delete(&models.WordEntry{}).Error
	if err != nil {
		return fmt.Errorf("resetting %s words: %w", list, err)
	}
	return nil
}

func sensitiveSetFromEntries(entries []models.WordEntry) models.SensitiveWordSet {
	set := models.SensitiveWordSet{
		Default: []string{},
		Custom:  []string{},
		All:     make([]string, 0, len(entries)),
	}
	for _, e := range entries {
		if e.IsDefault {
			set.Default = append(set.Default, e.Word)
		} else {
			set.Custom = append(set.Custom, e.Word)
		}
		set.All = append(set.All, e.Word)
	}
	return set
}

func words(entries []models.WordEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Word)
	}
	return out
}

func fillWatchWords(recs []models.EmailRecord) []models.EmailRecord {
	for i := range recs {
		if recs[i].MatchedWatchWords == nil {
			recs[i].MatchedWatchWords = []string{}
		}
	}
	if recs == nil {
		recs = []models.EmailRecord{}
	}
	return recs
}
