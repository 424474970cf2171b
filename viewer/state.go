// Package viewer keeps a viewer's local picture of the backend consistent with
// the authoritative REST collections, and turns user intents into store calls.
package viewer

import (
	"context"
	"time"

	"mailwatch/client"
	"mailwatch/models"
)

// EmailFeed is the REST surface for the email history.
// *client.HTTPClient satisfies it.
type EmailFeed interface {
	LatestEmails(ctx context.Context, count int) ([]models.EmailRecord, error)
	ClearEmails(ctx context.Context) error
}

// WordStore is the REST surface for one moderation list.
// *client.WordListClient satisfies it.
type WordStore interface {
	Fetch(ctx context.Context) (client.WordSnapshot, error)
	Add(ctx context.Context, word string) error
	Remove(ctx context.Context, word string) error
	Reset(ctx context.Context) error
}

// Field names an input box of a word list.
type Field int

const (
	AddField Field = iota
	RemoveField
)

// WordListState is what a viewer shows for one list.
type WordListState struct {
	Default []string
	Current []string
	All     []string
	Loaded  bool

	AddInput    string
	RemoveInput string
}

// RelayEvent is the most recent envelope seen on the relay.
type RelayEvent struct {
	Envelope   models.Envelope
	ReceivedAt time.Time
}

// State is everything a viewer displays. Values handed out by the reconciler
// are deep copies.
type State struct {
	Emails     []models.EmailRecord
	Connected  bool
	LastUpdate time.Time

	Sensitive WordListState
	Watch     WordListState

	// Notice is the last user-visible message from a command.
	Notice string

	RelayConnected bool
	LastEvent      *RelayEvent
}

// List returns the state of list.
func (s *State) List(list models.WordList) *WordListState {
	if list == models.WatchList {
		return &s.Watch
	}
	return &s.Sensitive
}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	out := s
	out.Emails = cloneEmails(s.Emails)
	out.Sensitive = s.Sensitive.clone()
	out.Watch = s.Watch.clone()
	if s.LastEvent != nil {
		ev := *s.LastEvent
		if ev.Envelope.Email != nil {
			rec := cloneRecord(*ev.Envelope.Email)
			ev.Envelope.Email = &rec
		}
		out.LastEvent = &ev
	}
	return out
}

func (w WordListState) clone() WordListState {
	out := w
	out.Default = cloneStrings(w.Default)
	out.Current = cloneStrings(w.Current)
	out.All = cloneStrings(w.All)
	return out
}

func cloneEmails(in []models.EmailRecord) []models.EmailRecord {
	if in == nil {
		return nil
	}
	out := make([]models.EmailRecord, len(in))
	for i, rec := range in {
		out[i] = cloneRecord(rec)
	}
	return out
}

func cloneRecord(rec models.EmailRecord) models.EmailRecord {
	rec.MatchedWatchWords = cloneStrings(rec.MatchedWatchWords)
	return rec
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}
