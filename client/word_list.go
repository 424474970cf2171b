package client

import (
	"context"
	"errors"

	"github.com/valyala/fasthttp"

	"mailwatch/models"
)

// ErrEmptyWord is returned, before any network call, for an empty or
// whitespace-only word.
var ErrEmptyWord = errors.New("word cannot be empty")

// WordSnapshot is one list as the backend currently holds it. For the watch
// list Default is empty and Current equals All.
type WordSnapshot struct {
	Default []string
	Current []string
	All     []string
}

// WordListClient operates on one moderation list.
type WordListClient struct {
	http *HTTPClient
	list models.WordList
	path string
}

// Sensitive returns the client for the sensitive-word list.
func (c *HTTPClient) Sensitive() *WordListClient {
	return &WordListClient{http: c, list: models.SensitiveList, path: "/api/sensitive_words"}
}

// Watch returns the client for the watch-word list.
func (c *HTTPClient) Watch() *WordListClient {
	return &WordListClient{http: c, list: models.WatchList, path: "/api/watch_words"}
}

// WordList returns the client for list, or nil for an unknown list.
func (c *HTTPClient) WordList(list models.WordList) *WordListClient {
	switch list {
	case models.SensitiveList:
		return c.Sensitive()
	case models.WatchList:
		return c.Watch()
	}
	return nil
}

func (w *WordListClient) List() models.WordList { return w.list }

// Fetch returns the authoritative contents of the list.
func (w *WordListClient) Fetch(ctx context.Context) (WordSnapshot, error) {
	if w.list == models.WatchList {
		var resp struct {
			WatchWords []string `json:"watch_words"`
		}
		if err := w.http.doJSON(ctx, fasthttp.MethodGet, w.path, nil, &resp); err != nil {
			return WordSnapshot{}, err
		}
		words := nonNil(resp.WatchWords)
		return WordSnapshot{
			Default: []string{},
			Current: words,
			All:     append([]string(nil), words...),
		}, nil
	}

	var resp models.SensitiveWordSet
	if err := w.http.doJSON(ctx, fasthttp.MethodGet, w.path, nil, &resp); err != nil {
		return WordSnapshot{}, err
	}
	return WordSnapshot{
		Default: nonNil(resp.Default),
		Current: nonNil(resp.Custom),
		All:     nonNil(resp.All),
	}, nil
}

// Add trims word and adds it to the list.
func (w *WordListClient) Add(ctx context.Context, word string) error {
	word = models.NormalizeWord(word)
	if word == "" {
		return ErrEmptyWord
	}
	return w.http.doJSON(ctx, fasthttp.MethodPost, w.path, models.WordRequest{Word: word}, nil)
}

// Remove trims word and removes it from the list.
func (w *WordListClient) Remove(ctx context.Context, word string) error {
	word = models.NormalizeWord(word)
	if word == "" {
		return ErrEmptyWord
	}
	return w.http.doJSON(ctx, fasthttp.MethodDelete, w.path, models.WordRequest{Word: word}, nil)
}

// Reset empties the mutable part of the list.
func (w *WordListClient) Reset(ctx context.Context) error {
	return w.http.doJSON(ctx, fasthttp.MethodPost, w.path+"/reset", nil, nil)
}

func nonNil(words []string) []string {
	if words == nil {
		return []string{}
	}
	return words
}
