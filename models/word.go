package models

import (
	"strings"
	"time"
)

// WordList identifies one of the two moderation lists.
type WordList string

const (
	SensitiveList WordList = "sensitive"
	WatchList     WordList = "watch"
)

func (l WordList) Valid() bool {
	return l == SensitiveList || l == WatchList
}

// WordEntry is a single word or phrase belonging to exactly one list.
// Default entries only exist in the sensitive list and cannot be removed.
type WordEntry struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	List      WordList  `gorm:"size:16;not null;uniqueIndex:idx_word_entries_list_norm" json:"list"`
	Word      string    `gorm:"not null" json:"word"`
	Normal    string    `gorm:"not null;uniqueIndex:idx_word_entries_list_norm" json:"-"`
	IsDefault bool      `gorm:"default:false" json:"is_default"`
	CreatedAt time.Time `json:"-"`
}

// DefaultSensitiveWords seed the immutable part of the sensitive list.
var DefaultSensitiveWords = []string{
	"password",
	"confidential",
	"passwords",
	"ID numbers",
	"id number",
	"credit card",
	"ssn",
	"social security",
}

// NormalizeWord trims surrounding whitespace. It is applied before every
// add or remove.
func NormalizeWord(word string) string {
	return strings.TrimSpace(word)
}

// FoldWord is the case-insensitive key used for duplicate detection.
func FoldWord(word string) string {
	return strings.ToLower(NormalizeWord(word))
}

// SensitiveWordSet is the sensitive list as fetched by viewers.
type SensitiveWordSet struct {
	Default []string `json:"default_words"`
	Custom  []string `json:"custom_words"`
	All     []string `json:"all_words"`
}

// WordRequest is the body of the add/remove endpoints.
type WordRequest struct {
	Word string `json:"word" validate:"required"`
}

// StatusResponse is the generic {status, message} body of mutation endpoints.
type StatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}
