package viewer

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"mailwatch/models"
)

const (
	DefaultCount          = 20
	DefaultInterval       = 2 * time.Second
	DefaultWordsInterval  = 10 * time.Second
	DefaultRequestTimeout = 5 * time.Second
)

// ErrPollInFlight is returned when a poll is requested while another poll of
// the same resource is still outstanding.
var ErrPollInFlight = errors.New("poll already in flight")

// Options tune a Reconciler. Zero values select the defaults.
type Options struct {
	Count          int
	Interval       time.Duration
	WordsInterval  time.Duration
	RequestTimeout time.Duration

	// Events, when set, is the relay feed. Relay events are recorded as the
	// last event only; they never change the displayed emails.
	Events <-chan []byte

	// RelayStatus, when set, reports whether the relay socket is currently
	// up. It is sampled on every email tick and drives State.RelayConnected.
	RelayStatus func() bool

	// OnChange receives a snapshot whenever the displayed state changes. It is
	// called from the goroutine that made the change, never concurrently, in
	// change order, and never after Stop returns.
	OnChange func(State)

	Logger *logrus.Entry
	Now    func() time.Time
}

// Reconciler polls the backend and owns the viewer State.
type Reconciler struct {
	feed  EmailFeed
	lists map[models.WordList]WordStore
	opts  Options

	mu    sync.Mutex
	state State

	// Held for the duration of a fetch of the matching resource.
	emailPoll sync.Mutex
	wordPoll  map[models.WordList]*sync.Mutex

	cbMu    sync.Mutex
	stopped bool

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	logger *logrus.Entry
}

func NewReconciler(feed EmailFeed, sensitive, watch WordStore, opts Options) *Reconciler {
	if opts.Count <= 0 {
		opts.Count = DefaultCount
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.WordsInterval <= 0 {
		opts.WordsInterval = DefaultWordsInterval
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.WithField("component", "reconciler")
	}

	return &Reconciler{
		feed: feed,
		lists: map[models.WordList]WordStore{
			models.SensitiveList: sensitive,
			models.WatchList:     watch,
		},
		opts: opts,
		wordPoll: map[models.WordList]*sync.Mutex{
			models.SensitiveList: {},
			models.WatchList:     {},
		},
		logger: logger,
	}
}

// Snapshot returns a copy of the current state.
func (r *Reconciler) Snapshot() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Clone()
}

// Run polls emails immediately and then every Interval, and word lists
// immediately and then every WordsInterval, until ctx is cancelled. Ticks
// that come due while a poll is outstanding are skipped.
func (r *Reconciler) Run(ctx context.Context) error {
	_ = r.PollEmails(ctx)
	r.RefreshAllWords(ctx)

	emailTicker := time.NewTicker(r.opts.Interval)
	defer emailTicker.Stop()
	wordsTicker := time.NewTicker(r.opts.WordsInterval)
	defer wordsTicker.Stop()

	events := r.opts.Events
	r.syncRelayStatus(events != nil)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-emailTicker.C:
			_ = r.PollEmails(ctx)
			r.syncRelayStatus(events != nil)
		case <-wordsTicker.C:
			r.RefreshAllWords(ctx)
		case payload, ok := <-events:
			if !ok {
				events = nil
				r.update(func(s *State) { s.RelayConnected = false })
				continue
			}
			r.HandleRelayEvent(payload)
		}
	}
}

// syncRelayStatus sets RelayConnected from RelayStatus. Without a status
// probe an attached feed counts as up until its channel closes.
func (r *Reconciler) syncRelayStatus(attached bool) {
	up := attached
	if attached && r.opts.RelayStatus != nil {
		up = r.opts.RelayStatus()
	}
	r.update(func(s *State) { s.RelayConnected = up })
}

// Start runs the reconciler in the background. It is a no-op when already
// started.
func (r *Reconciler) Start(ctx context.Context) {
	r.runMu.Lock()
	defer r.runMu.Unlock()
	if r.cancel != nil {
		return
	}

	r.cbMu.Lock()
	r.stopped = false
	r.cbMu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	r.cancel = cancel
	r.done = done
	go func() {
		defer close(done)
		_ = r.Run(ctx)
	}()
}

// Stop cancels the loop and waits for it to exit. An outstanding request is
// abandoned rather than awaited. No OnChange callback runs after Stop returns.
func (r *Reconciler) Stop() {
	r.runMu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.runMu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	r.cbMu.Lock()
	r.stopped = true
	r.cbMu.Unlock()
}

// PollEmails fetches the latest emails once. On success the displayed list is
// replaced wholesale and the viewer is marked connected; on failure it is
// marked disconnected and the stale list stays. It returns ErrPollInFlight
// without calling the backend while another email poll is outstanding.
func (r *Reconciler) PollEmails(ctx context.Context) error {
	if !r.emailPoll.TryLock() {
		return ErrPollInFlight
	}
	defer r.emailPoll.Unlock()

	reqCtx, cancel := context.WithTimeout(ctx, r.opts.RequestTimeout)
	emails, err := r.feed.LatestEmails(reqCtx, r.opts.Count)
	cancel()

	// A poll that outlives its loop must not touch the state.
	if ctx.Err() != nil {
		return ctx.Err()
	}

	if err != nil {
		r.update(func(s *State) {
			if s.Connected {
				r.logger.WithError(err).Warn("Lost connection to backend")
			}
			s.Connected = false
		})
		return err
	}

	now := r.opts.Now()
	r.update(func(s *State) {
		if !s.Connected {
			r.logger.Info("Connected to backend")
		}
		s.Emails = cloneEmails(emails)
		s.Connected = true
		s.LastUpdate = now
	})
	return nil
}

// RefreshAllWords refreshes both lists independently.
func (r *Reconciler) RefreshAllWords(ctx context.Context) {
	for _, list := range []models.WordList{models.SensitiveList, models.WatchList} {
		if err := r.pollWords(ctx, list, false); err != nil && !errors.Is(err, ErrPollInFlight) && ctx.Err() == nil {
			r.logger.WithError(err).WithField("list", list).Warn("Failed to fetch word list")
		}
	}
}

// RefreshWords fetches list now, waiting for any outstanding fetch of the
// same list first, and replaces the displayed list with the result.
func (r *Reconciler) RefreshWords(ctx context.Context, list models.WordList) error {
	return r.pollWords(ctx, list, true)
}

func (r *Reconciler) pollWords(ctx context.Context, list models.WordList, wait bool) error {
	store, ok := r.lists[list]
	if !ok || store == nil {
		return errors.New("unknown word list")
	}
	lock := r.wordPoll[list]
	if wait {
		lock.Lock()
	} else if !lock.TryLock() {
		return ErrPollInFlight
	}
	defer lock.Unlock()

	reqCtx, cancel := context.WithTimeout(ctx, r.opts.RequestTimeout)
	snap, err := store.Fetch(reqCtx)
	cancel()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		return err
	}

	r.update(func(s *State) {
		ls := s.List(list)
		ls.Default = cloneStrings(snap.Default)
		ls.Current = cloneStrings(snap.Current)
		ls.All = cloneStrings(snap.All)
		ls.Loaded = true
	})
	return nil
}

// HandleRelayEvent records a relay payload as the last event. Payloads that
// are not envelopes are ignored.
func (r *Reconciler) HandleRelayEvent(payload []byte) {
	env, err := models.ParseEnvelope(payload)
	if err != nil {
		r.logger.WithError(err).Debug("Ignoring relay payload")
		return
	}
	now := r.opts.Now()
	r.update(func(s *State) {
		s.LastEvent = &RelayEvent{Envelope: env, ReceivedAt: now}
	})
}

// clearLocal empties the displayed emails without waiting for a poll.
func (r *Reconciler) clearLocal() {
	r.update(func(s *State) { s.Emails = []models.EmailRecord{} })
}

func (r *Reconciler) setNotice(msg string) {
	r.update(func(s *State) { s.Notice = msg })
}

// update applies fn to the state and notifies OnChange if anything visible
// changed. LastUpdate alone does not count as a change. OnChange must not call
// back into methods that mutate the reconciler.
func (r *Reconciler) update(fn func(s *State)) {
	r.cbMu.Lock()
	defer r.cbMu.Unlock()

	r.mu.Lock()
	before := r.state.Clone()
	fn(&r.state)
	changed := !sameDisplay(before, r.state)
	snap := r.state.Clone()
	r.mu.Unlock()

	if !changed || r.stopped || r.opts.OnChange == nil {
		return
	}
	r.opts.OnChange(snap)
}

func sameDisplay(a, b State) bool {
	a.LastUpdate = time.Time{}
	b.LastUpdate = time.Time{}
	return reflect.DeepEqual(a, b)
}
