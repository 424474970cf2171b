package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailwatch/models"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Body   string
}

// testHandler records the last request and replies with a canned response.
type testHandler struct {
	status int
	body   string
	calls  atomic.Int32
	last   atomic.Pointer[recordedRequest]
}

func (h *testHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.calls.Add(1)
	data, _ := io.ReadAll(r.Body)
	h.last.Store(&recordedRequest{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery, Body: string(data)})

	w.Header().Set("Content-Type", "application/json")
	status := h.status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = io.WriteString(w, h.body)
}

func newTestClient(t *testing.T, h *testHandler) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c := NewHTTPClient(srv.URL + "/")
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestLatestEmails(t *testing.T) {
	h := &testHandler{body: `{"status":"success","count":1,"emails":[{"id":"1","type":"Alert","title":"t","matched_watch_words":["x"]}]}`}
	c := newTestClient(t, h)

	emails, err := c.LatestEmails(context.Background(), 20)
	require.NoError(t, err)
	require.Len(t, emails, 1)
	assert.Equal(t, models.EmailTypeAlert, emails[0].Type)
	assert.Equal(t, []string{"x"}, emails[0].MatchedWatchWords)

	req := h.last.Load()
	assert.Equal(t, http.MethodGet, req.Method)
	assert.Equal(t, "/api/emails/latest", req.Path)
	assert.Equal(t, "count=20", req.Query)
}

func TestLatestEmails_EmptyIsNotNil(t *testing.T) {
	c := newTestClient(t, &testHandler{body: `{"count":0,"emails":null}`})

	emails, err := c.LatestEmails(context.Background(), 20)
	require.NoError(t, err)
	assert.NotNil(t, emails)
	assert.Empty(t, emails)
}

func TestErrorResponsesCarryBackendMessage(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{"message field", http.StatusBadRequest, `{"status":"error","message":"Word already exists"}`, "Word already exists"},
		{"error field", http.StatusInternalServerError, `{"error":"boom"}`, "boom"},
		{"plain body", http.StatusBadGateway, "upstream down", "upstream down"},
		{"empty body", http.StatusServiceUnavailable, "", "Service Unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, &testHandler{status: tt.status, body: tt.body})

			err := c.Watch().Add(context.Background(), "word")
			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr), "got %v", err)
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.message, apiErr.Message)
		})
	}
}

func TestWordList_EmptyWordMakesNoCall(t *testing.T) {
	h := &testHandler{}
	c := newTestClient(t, h)

	for _, w := range []*WordListClient{c.Sensitive(), c.Watch()} {
		assert.ErrorIs(t, w.Add(context.Background(), "   "), ErrEmptyWord)
		assert.ErrorIs(t, w.Remove(context.Background(), ""), ErrEmptyWord)
	}
	assert.Zero(t, h.calls.Load())
}

func TestWordList_AddTrimsAndTargetsList(t *testing.T) {
	h := &testHandler{body: `{"status":"success"}`}
	c := newTestClient(t, h)

	require.NoError(t, c.Sensitive().Add(context.Background(), "  salary "))
	req := h.last.Load()
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/api/sensitive_words", req.Path)
	assert.JSONEq(t, `{"word":"salary"}`, req.Body)

	require.NoError(t, c.Watch().Remove(context.Background(), "invoice"))
	req = h.last.Load()
	assert.Equal(t, http.MethodDelete, req.Method)
	assert.Equal(t, "/api/watch_words", req.Path)

	require.NoError(t, c.Watch().Reset(context.Background()))
	assert.Equal(t, "/api/watch_words/reset", h.last.Load().Path)
}

func TestWordList_FetchShapes(t *testing.T) {
	t.Run("sensitive", func(t *testing.T) {
		c := newTestClient(t, &testHandler{body: `{"default_words":["password"],"custom_words":["salary"],"all_words":["password","salary"]}`})

		snap, err := c.Sensitive().Fetch(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []string{"password"}, snap.Default)
		assert.Equal(t, []string{"salary"}, snap.Current)
		assert.Equal(t, []string{"password", "salary"}, snap.All)
	})
	t.Run("watch", func(t *testing.T) {
		c := newTestClient(t, &testHandler{body: `{"watch_words":["invoice"]}`})

		snap, err := c.Watch().Fetch(context.Background())
		require.NoError(t, err)
		assert.Empty(t, snap.Default)
		assert.Equal(t, []string{"invoice"}, snap.Current)
		assert.Equal(t, []string{"invoice"}, snap.All)
	})
	t.Run("watch empty", func(t *testing.T) {
		c := newTestClient(t, &testHandler{body: `{}`})

		snap, err := c.Watch().Fetch(context.Background())
		require.NoError(t, err)
		assert.NotNil(t, snap.Current)
		assert.Empty(t, snap.Current)
	})
}

func TestWordList_UnknownList(t *testing.T) {
	c := NewHTTPClient("http://localhost")
	assert.Nil(t, c.WordList("bogus"))
	assert.Equal(t, models.WatchList, c.WordList(models.WatchList).List())
}

func TestCreateEmail(t *testing.T) {
	h := &testHandler{status: http.StatusCreated, body: `{"status":"success","email":{"id":"abc","type":"Sensitive","title":"t"}}`}
	c := newTestClient(t, h)

	rec, err := c.CreateEmail(context.Background(), models.EmailRecord{Type: models.EmailTypeSensitive, Title: "t"})
	require.NoError(t, err)
	assert.Equal(t, "abc", rec.ID)

	var sent models.EmailRecord
	require.NoError(t, json.Unmarshal([]byte(h.last.Load().Body), &sent))
	assert.Equal(t, "t", sent.Title)
}

func TestCanceledContextSkipsRequest(t *testing.T) {
	h := &testHandler{}
	c := newTestClient(t, h)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := c.ClearEmails(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, h.calls.Load())
}

func TestTimeout(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(block) })

	c := NewHTTPClient(srv.URL).WithTimeout(100 * time.Millisecond)
	start := time.Now()
	_, err := c.LatestEmails(context.Background(), 20)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestCancelDuringRequestReturnsPromptly(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(block) })

	c := NewHTTPClient(srv.URL).WithTimeout(5 * time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	_, err := c.LatestEmails(ctx, 20)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}
