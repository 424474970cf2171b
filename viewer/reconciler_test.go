package viewer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailwatch/client"
	"mailwatch/models"
)

func newTestReconciler(feed *fakeFeed, rec *recorder, opts Options) (*Reconciler, *fakeWords, *fakeWords) {
	sensitive := &fakeWords{defaults: []string{"password"}}
	watch := &fakeWords{}
	if rec != nil {
		opts.OnChange = rec.OnChange
	}
	return NewReconciler(feed, sensitive, watch, opts), sensitive, watch
}

func TestPollEmails_ReplacesListWholesale(t *testing.T) {
	feed := &fakeFeed{}
	feed.set(email("2", "second"), email("1", "first"))
	r, _, _ := newTestReconciler(feed, nil, Options{})

	require.NoError(t, r.PollEmails(context.Background()))
	s := r.Snapshot()
	assert.True(t, s.Connected)
	assert.False(t, s.LastUpdate.IsZero())
	require.Len(t, s.Emails, 2)
	assert.Equal(t, "2", s.Emails[0].ID)

	feed.set(email("3", "third"))
	require.NoError(t, r.PollEmails(context.Background()))
	s = r.Snapshot()
	require.Len(t, s.Emails, 1)
	assert.Equal(t, "3", s.Emails[0].ID)
}

func TestPollEmails_RequestsConfiguredCount(t *testing.T) {
	feed := &fakeFeed{}
	var emails []models.EmailRecord
	for i := 0; i < 30; i++ {
		emails = append(emails, email(string(rune('a'+i)), "m"))
	}
	feed.set(emails...)
	r, _, _ := newTestReconciler(feed, nil, Options{})

	require.NoError(t, r.PollEmails(context.Background()))
	assert.Len(t, r.Snapshot().Emails, DefaultCount)
}

func TestPollEmails_IdempotentWhenNothingChanged(t *testing.T) {
	feed := &fakeFeed{}
	feed.set(email("1", "first"))
	rec := &recorder{}
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	r, _, _ := newTestReconciler(feed, rec, Options{Now: func() time.Time {
		now = now.Add(time.Second)
		return now
	}})

	require.NoError(t, r.PollEmails(context.Background()))
	first := r.Snapshot()
	assert.Equal(t, 1, rec.count())

	require.NoError(t, r.PollEmails(context.Background()))
	second := r.Snapshot()
	assert.Equal(t, 1, rec.count(), "an unchanged poll must not notify")
	assert.Equal(t, first.Emails, second.Emails)
	assert.True(t, second.LastUpdate.After(first.LastUpdate))
}

func TestPollEmails_FailureKeepsStaleList(t *testing.T) {
	feed := &fakeFeed{}
	feed.set(email("1", "first"))
	rec := &recorder{}
	r, _, _ := newTestReconciler(feed, rec, Options{})

	require.NoError(t, r.PollEmails(context.Background()))
	feed.fail(errBackendDown)

	err := r.PollEmails(context.Background())
	assert.ErrorIs(t, err, errBackendDown)

	s := r.Snapshot()
	assert.False(t, s.Connected)
	require.Len(t, s.Emails, 1)
	assert.Equal(t, "1", s.Emails[0].ID)
	assert.False(t, rec.last().Connected)

	feed.fail(nil)
	require.NoError(t, r.PollEmails(context.Background()))
	assert.True(t, r.Snapshot().Connected)
}

func TestPollEmails_NoOverlap(t *testing.T) {
	feed := &fakeFeed{gate: make(chan struct{}), started: make(chan struct{}, 1)}
	r, _, _ := newTestReconciler(feed, nil, Options{})

	done := make(chan error, 1)
	go func() { done <- r.PollEmails(context.Background()) }()

	select {
	case <-feed.started:
	case <-time.After(2 * time.Second):
		t.Fatal("first poll never started")
	}

	assert.ErrorIs(t, r.PollEmails(context.Background()), ErrPollInFlight)
	assert.EqualValues(t, 1, feed.calls.Load())

	close(feed.gate)
	require.NoError(t, <-done)
	require.NoError(t, r.PollEmails(context.Background()))
	assert.EqualValues(t, 2, feed.calls.Load())
}

func TestPollEmails_ResultAfterCancelIsDiscarded(t *testing.T) {
	feed := &fakeFeed{gate: make(chan struct{}), started: make(chan struct{}, 1)}
	feed.set(email("1", "first"))
	rec := &recorder{}
	r, _, _ := newTestReconciler(feed, rec, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.PollEmails(ctx) }()
	<-feed.started
	cancel()

	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Zero(t, rec.count())
	assert.Empty(t, r.Snapshot().Emails)
}

func TestRun_PollsAndStops(t *testing.T) {
	feed := &fakeFeed{}
	feed.set(email("1", "first"))
	rec := &recorder{}
	r, sensitive, watch := newTestReconciler(feed, rec, Options{
		Interval:      10 * time.Millisecond,
		WordsInterval: 10 * time.Millisecond,
	})

	r.Start(context.Background())
	require.Eventually(t, func() bool { return feed.calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		s := r.Snapshot()
		return s.Sensitive.Loaded && s.Watch.Loaded
	}, 2*time.Second, 5*time.Millisecond)
	assert.Positive(t, sensitive.fetches.Load())
	assert.Positive(t, watch.fetches.Load())

	r.Stop()
	calls := feed.calls.Load()
	notified := rec.count()

	feed.set(email("2", "second"))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, calls, feed.calls.Load(), "no polls after Stop")
	assert.Equal(t, notified, rec.count(), "no callbacks after Stop")

	// Direct updates after Stop are not delivered either.
	r.HandleRelayEvent([]byte(`{"type":"system","message":"hi"}`))
	assert.Equal(t, notified, rec.count())
}

func TestRun_StopDuringInFlightPoll(t *testing.T) {
	feed := &fakeFeed{gate: make(chan struct{}), started: make(chan struct{}, 1)}
	feed.set(email("1", "first"))
	rec := &recorder{}
	r, _, _ := newTestReconciler(feed, rec, Options{})

	r.Start(context.Background())
	<-feed.started
	r.Stop()
	close(feed.gate)

	assert.Empty(t, r.Snapshot().Emails)
	for _, s := range rec.states {
		assert.Empty(t, s.Emails)
	}
}

func TestStop_AbandonsSlowBackendRequest(t *testing.T) {
	started := make(chan struct{}, 1)
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-block
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(block) })

	api := client.NewHTTPClient(srv.URL)
	rec := &recorder{}
	r := NewReconciler(api, &fakeWords{}, &fakeWords{}, Options{
		Interval:       time.Hour,
		WordsInterval:  time.Hour,
		RequestTimeout: 5 * time.Second,
		OnChange:       rec.OnChange,
	})

	r.Start(context.Background())
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("poll never reached the backend")
	}

	start := time.Now()
	r.Stop()
	assert.Less(t, time.Since(start), time.Second)
	assert.Empty(t, r.Snapshot().Emails)
}

func TestRun_RelayEventsDoNotTouchEmails(t *testing.T) {
	feed := &fakeFeed{}
	feed.set(email("1", "first"))
	events := make(chan []byte, 4)
	r, _, _ := newTestReconciler(feed, nil, Options{Interval: time.Hour, WordsInterval: time.Hour, Events: events})

	r.Start(context.Background())
	defer r.Stop()

	require.Eventually(t, func() bool { return r.Snapshot().RelayConnected }, 2*time.Second, 5*time.Millisecond)

	events <- []byte(`{"type":"email_classified","message":"Alert: Outage"}`)
	events <- []byte(`not an envelope`)
	require.Eventually(t, func() bool { return r.Snapshot().LastEvent != nil }, 2*time.Second, 5*time.Millisecond)

	s := r.Snapshot()
	assert.Equal(t, models.EnvelopeEmailClassified, s.LastEvent.Envelope.Type)
	require.Len(t, s.Emails, 1)
	assert.Equal(t, "1", s.Emails[0].ID)

	close(events)
	require.Eventually(t, func() bool { return !r.Snapshot().RelayConnected }, 2*time.Second, 5*time.Millisecond)
}

func TestRun_RelayStatusFollowsSocket(t *testing.T) {
	feed := &fakeFeed{}
	events := make(chan []byte)
	var up atomic.Bool
	up.Store(true)
	r, _, _ := newTestReconciler(feed, nil, Options{
		Interval:      10 * time.Millisecond,
		WordsInterval: time.Hour,
		Events:        events,
		RelayStatus:   up.Load,
	})

	r.Start(context.Background())
	defer r.Stop()
	require.Eventually(t, func() bool { return r.Snapshot().RelayConnected }, 2*time.Second, 5*time.Millisecond)

	// The feed channel stays open while the client reconnects.
	up.Store(false)
	require.Eventually(t, func() bool { return !r.Snapshot().RelayConnected }, 2*time.Second, 5*time.Millisecond)

	up.Store(true)
	require.Eventually(t, func() bool { return r.Snapshot().RelayConnected }, 2*time.Second, 5*time.Millisecond)
}

func TestRun_NoRelayMeansDisconnected(t *testing.T) {
	feed := &fakeFeed{}
	r, _, _ := newTestReconciler(feed, nil, Options{
		Interval:      10 * time.Millisecond,
		WordsInterval: time.Hour,
		RelayStatus:   func() bool { return true },
	})

	r.Start(context.Background())
	defer r.Stop()
	require.Eventually(t, func() bool { return feed.calls.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
	assert.False(t, r.Snapshot().RelayConnected)
}

func TestSnapshot_IsDeepCopy(t *testing.T) {
	feed := &fakeFeed{}
	rec := email("1", "first")
	rec.MatchedWatchWords = []string{"invoice"}
	feed.set(rec)
	r, _, _ := newTestReconciler(feed, nil, Options{})
	require.NoError(t, r.PollEmails(context.Background()))

	s := r.Snapshot()
	s.Emails[0].MatchedWatchWords[0] = "changed"
	s.Emails[0].Title = "changed"

	again := r.Snapshot()
	assert.Equal(t, "first", again.Emails[0].Title)
	assert.Equal(t, []string{"invoice"}, again.Emails[0].MatchedWatchWords)
}

func TestRefreshWords_ListsAreIndependent(t *testing.T) {
	r, sensitive, watch := newTestReconciler(&fakeFeed{}, nil, Options{})
	watch.words = []string{"invoice"}
	sensitive.fetchErr = errBackendDown

	r.RefreshAllWords(context.Background())
	s := r.Snapshot()
	assert.False(t, s.Sensitive.Loaded)
	assert.True(t, s.Watch.Loaded)
	assert.Equal(t, []string{"invoice"}, s.Watch.Current)
	assert.Empty(t, s.Watch.Default)
}
