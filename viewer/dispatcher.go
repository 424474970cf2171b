package viewer

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"mailwatch/client"
	"mailwatch/models"
)

// ErrNotConfirmed is returned by Reset when the user declines.
var ErrNotConfirmed = errors.New("reset not confirmed")

// Confirm asks the user a yes/no question.
type Confirm func(prompt string) bool

// Dispatcher turns user intents into store calls and refreshes the affected
// list from the backend after every successful mutation. The lists are
// independent: a failure on one never touches the other.
type Dispatcher struct {
	r       *Reconciler
	confirm Confirm
	logger  *logrus.Entry
}

// NewDispatcher binds a dispatcher to r. A nil confirm declines every reset.
func NewDispatcher(r *Reconciler, confirm Confirm) *Dispatcher {
	if confirm == nil {
		confirm = func(string) bool { return false }
	}
	return &Dispatcher{
		r:       r,
		confirm: confirm,
		logger:  r.logger.WithField("component", "dispatcher"),
	}
}

// SetInput replaces the text of one input box.
func (d *Dispatcher) SetInput(list models.WordList, field Field, value string) {
	d.r.update(func(s *State) {
		ls := s.List(list)
		if field == RemoveField {
			ls.RemoveInput = value
		} else {
			ls.AddInput = value
		}
	})
}

// Add submits the list's add input. Empty input is rejected without a
// network call. On success the input is cleared and the list re-fetched; on
// failure the backend's reason is shown and the list is left as it was.
func (d *Dispatcher) Add(ctx context.Context, list models.WordList) error {
	return d.mutate(ctx, list, AddField)
}

// Remove submits the list's remove input, with the same rules as Add.
func (d *Dispatcher) Remove(ctx context.Context, list models.WordList) error {
	return d.mutate(ctx, list, RemoveField)
}

func (d *Dispatcher) mutate(ctx context.Context, list models.WordList, field Field) error {
	store, ok := d.r.lists[list]
	if !ok || store == nil {
		return fmt.Errorf("unknown word list %q", list)
	}

	snap := d.r.Snapshot()
	input := snap.List(list).AddInput
	verb, call := "add", store.Add
	if field == RemoveField {
		input = snap.List(list).RemoveInput
		verb, call = "remove", store.Remove
	}

	word := models.NormalizeWord(input)
	if word == "" {
		d.r.setNotice(emptyInputNotice(list, field))
		return client.ErrEmptyWord
	}

	if err := call(ctx, word); err != nil {
		d.r.setNotice(failureNotice(list, verb, err))
		d.logger.WithError(err).WithFields(logrus.Fields{"list": list, "word": word}).Warn("Word list change rejected")
		return err
	}

	d.r.update(func(s *State) {
		ls := s.List(list)
		if field == RemoveField {
			ls.RemoveInput = ""
		} else {
			ls.AddInput = ""
		}
		s.Notice = successNotice(list, verb, word)
	})
	return d.refresh(ctx, list)
}

// Reset asks for confirmation and then empties the mutable part of list.
func (d *Dispatcher) Reset(ctx context.Context, list models.WordList) error {
	store, ok := d.r.lists[list]
	if !ok || store == nil {
		return fmt.Errorf("unknown word list %q", list)
	}
	if !d.confirm(resetPrompt(list)) {
		return ErrNotConfirmed
	}

	if err := store.Reset(ctx); err != nil {
		d.r.setNotice(fmt.Sprintf("Failed to reset %s words", list))
		d.logger.WithError(err).WithField("list", list).Warn("Word list reset failed")
		return err
	}
	d.r.setNotice(fmt.Sprintf("Reset %s words", list))
	return d.refresh(ctx, list)
}

// ClearEmails clears the backend history and empties the displayed list
// immediately on success.
func (d *Dispatcher) ClearEmails(ctx context.Context) error {
	if err := d.r.feed.ClearEmails(ctx); err != nil {
		d.r.setNotice("Failed to clear emails")
		d.logger.WithError(err).Warn("Clear emails failed")
		return err
	}
	d.r.clearLocal()
	return nil
}

func (d *Dispatcher) refresh(ctx context.Context, list models.WordList) error {
	if err := d.r.RefreshWords(ctx, list); err != nil {
		d.logger.WithError(err).WithField("list", list).Warn("Re-fetch after change failed")
		return fmt.Errorf("refreshing %s words: %w", list, err)
	}
	return nil
}

func emptyInputNotice(list models.WordList, field Field) string {
	if field == RemoveField {
		return fmt.Sprintf("Please enter a %s word to remove", list)
	}
	return fmt.Sprintf("Please enter a %s word", list)
}

func failureNotice(list models.WordList, verb string, err error) string {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		return fmt.Sprintf("Failed to %s: %s", verb, apiErr.Message)
	}
	return fmt.Sprintf("Failed to %s %s word", verb, list)
}

func successNotice(list models.WordList, verb, word string) string {
	if verb == "remove" {
		return fmt.Sprintf("Removed %s word: %s", list, word)
	}
	return fmt.Sprintf("Added %s word: %s", list, word)
}

func resetPrompt(list models.WordList) string {
	if list == models.SensitiveList {
		return "Are you sure you want to reset all custom sensitive words?"
	}
	return "Are you sure you want to reset all watch words?"
}
