package viewer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	"mailwatch/client"
	"mailwatch/models"
)

var errBackendDown = errors.New("connection refused")

type fakeFeed struct {
	mu      sync.Mutex
	emails  []models.EmailRecord
	err     error
	clearFn func() error

	calls atomic.Int32
	// gate, when set, blocks LatestEmails until it is closed.
	gate    chan struct{}
	started chan struct{}
}

func (f *fakeFeed) LatestEmails(ctx context.Context, count int) ([]models.EmailRecord, error) {
	f.calls.Add(1)
	if f.started != nil {
		select {
		case f.started <- struct{}{}:
		default:
		}
	}
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	n := min(count, len(f.emails))
	return append([]models.EmailRecord{}, f.emails[:n]...), nil
}

func (f *fakeFeed) ClearEmails(context.Context) error {
	if f.clearFn != nil {
		if err := f.clearFn(); err != nil {
			return err
		}
	}
	f.mu.Lock()
	f.emails = nil
	f.mu.Unlock()
	return nil
}

func (f *fakeFeed) set(emails ...models.EmailRecord) {
	f.mu.Lock()
	f.emails = emails
	f.mu.Unlock()
}

func (f *fakeFeed) fail(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

// fakeWords mimics one backend list, including its rejection messages.
type fakeWords struct {
	mu       sync.Mutex
	defaults []string
	words    []string
	fetchErr error

	mutations atomic.Int32
	fetches   atomic.Int32
}

func (f *fakeWords) Fetch(context.Context) (client.WordSnapshot, error) {
	f.fetches.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return client.WordSnapshot{}, f.fetchErr
	}
	all := append(append([]string{}, f.defaults...), f.words...)
	return client.WordSnapshot{
		Default: append([]string{}, f.defaults...),
		Current: append([]string{}, f.words...),
		All:     all,
	}, nil
}

func (f *fakeWords) Add(_ context.Context, word string) error {
	f.mutations.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, w := range append(append([]string{}, f.defaults...), f.words...) {
		if strings.EqualFold(w, word) {
			return &client.APIError{StatusCode: 400, Message: "Word already exists"}
		}
	}
	f.words = append(f.words, word)
	return nil
}

func (f *fakeWords) Remove(_ context.Context, word string) error {
	f.mutations.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, w := range f.words {
		if w == word {
			f.words = append(f.words[:i], f.words[i+1:]...)
			return nil
		}
	}
	return &client.APIError{StatusCode: 404, Message: "Word not found"}
}

func (f *fakeWords) Reset(context.Context) error {
	f.mutations.Add(1)
	f.mu.Lock()
	f.words = nil
	f.mu.Unlock()
	return nil
}

// recorder collects OnChange snapshots.
type recorder struct {
	mu     sync.Mutex
	states []State
}

func (r *recorder) OnChange(s State) {
	r.mu.Lock()
	r.states = append(r.states, s)
	r.mu.Unlock()
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.states)
}

func (r *recorder) last() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.states[len(r.states)-1]
}

func email(id, title string) models.EmailRecord {
	return models.EmailRecord{
		ID:                id,
		Type:              models.EmailTypeNonUrgent,
		Title:             title,
		Timestamp:         "2024-05-01 10:00:00",
		MatchedWatchWords: []string{},
	}
}
