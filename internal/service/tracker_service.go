package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nsvirk/attendanceapi/internal/attendance"
	"github.com/nsvirk/attendanceapi/internal/clock"
	"github.com/nsvirk/attendanceapi/internal/config"
	"github.com/nsvirk/attendanceapi/internal/repository"
	"github.com/nsvirk/attendanceapi/pkg/utils/besteffort"
	"github.com/nsvirk/attendanceapi/pkg/utils/zaplogger"
)

// ActivityStore receives the liveness writes of one browser tab. Every call
// is last-write-wins on a timestamp, so the collector and the heartbeat can
// write the same fields without coordinating.
type ActivityStore interface {
	TouchUser(ctx context.Context, userID, sessionID string, status attendance.Status, ts clock.Timestamp) error
	TouchSession(ctx context.Context, sessionID string, ts clock.Timestamp) error
	MarkCleanup(ctx context.Context, sessionID string, at clock.Timestamp) error
	MarkUserOffline(ctx context.Context, userID string) error
}

// LivenessStore is the ActivityStore backed by the session table and the
// presence service
type LivenessStore struct {
	sessions *repository.SessionRepository
	presence *PresenceService
}

// NewLivenessStore creates a new LivenessStore
func NewLivenessStore(sessions *repository.SessionRepository, presence *PresenceService) *LivenessStore {
	return &LivenessStore{sessions: sessions, presence: presence}
}

// TouchUser mirrors the tab's session status, so a back-soon user stays
// back soon while the tab keeps pulsing
func (s *LivenessStore) TouchUser(ctx context.Context, userID, sessionID string, status attendance.Status, ts clock.Timestamp) error {
	if !status.Active() {
		status = attendance.StatusOnline
	}
	return s.presence.SetStatus(ctx, userID, sessionID, status, ts)
}

func (s *LivenessStore) TouchSession(ctx context.Context, sessionID string, ts clock.Timestamp) error {
	return s.sessions.TouchActivity(ctx, sessionID, ts)
}

func (s *LivenessStore) MarkCleanup(ctx context.Context, sessionID string, at clock.Timestamp) error {
	return s.sessions.MarkCleanup(ctx, sessionID, at)
}

func (s *LivenessStore) MarkUserOffline(ctx context.Context, userID string) error {
	return s.presence.MarkOffline(ctx, userID)
}

// unloadHintTimeout bounds the writes of a page teardown; a later sweep
// covers a hint that did not make it
const unloadHintTimeout = 5 * time.Second

// statusFunc reports the session status a tab last learned of
type statusFunc func() attendance.Status

func (f statusFunc) get() attendance.Status {
	if f == nil {
		return attendance.StatusOnline
	}
	return f()
}

// writeLiveness stores ts on the user record and, when there is one, the session
func writeLiveness(ctx context.Context, store ActivityStore, source, userID, sessionID string, status attendance.Status, ts clock.Timestamp) {
	fields := zaplogger.Fields{"user_id": userID, "session_id": sessionID}
	besteffort.Run(ctx, source+".user", fields, func(ctx context.Context) error {
		return store.TouchUser(ctx, userID, sessionID, status, ts)
	})
	if sessionID == "" {
		return
	}
	besteffort.Run(ctx, source+".session", fields, func(ctx context.Context) error {
		return store.TouchSession(ctx, sessionID, ts)
	})
}

// ActivityCollector folds interaction signals into a last-activity timestamp.
// The in-memory value moves on every signal; the store sees at most one write
// per throttle window and never two at once.
type ActivityCollector struct {
	clock     clock.Clock
	store     ActivityStore
	userID    string
	sessionID string
	throttle  time.Duration
	dispatch  func(func())
	status    statusFunc

	mu          sync.Mutex
	last        clock.Timestamp
	lastPersist clock.Timestamp
	persisted   bool
	pending     atomic.Bool
}

// NewActivityCollector creates a collector for one tab. sessionID may be
// empty before check-in, in which case only the user record is written.
func NewActivityCollector(clk clock.Clock, store ActivityStore, userID, sessionID string, throttle time.Duration) *ActivityCollector {
	return &ActivityCollector{
		clock:     clk,
		store:     store,
		userID:    userID,
		sessionID: sessionID,
		throttle:  throttle,
		dispatch:  func(fn func()) { go fn() },
	}
}

// RecordActivity notes a pointer, key, touch or scroll event, or the tab
// becoming visible or focused
func (c *ActivityCollector) RecordActivity(ctx context.Context) {
	now := c.clock.Now()

	c.mu.Lock()
	if now > c.last {
		c.last = now
	}
	due := c.dueLocked(now)
	c.mu.Unlock()
	if !due {
		return
	}

	// an overlapping attempt is dropped, not queued
	if !c.pending.CompareAndSwap(false, true) {
		return
	}

	c.mu.Lock()
	if !c.dueLocked(now) {
		c.mu.Unlock()
		c.pending.Store(false)
		return
	}
	c.lastPersist = now
	c.persisted = true
	ts := c.last
	c.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	c.dispatch(func() {
		defer c.pending.Store(false)
		ctx, cancel := context.WithTimeout(ctx, besteffort.DefaultTimeout)
		defer cancel()
		writeLiveness(ctx, c.store, "activity", c.userID, c.sessionID, c.status.get(), ts)
	})
}

func (c *ActivityCollector) dueLocked(now clock.Timestamp) bool {
	return !c.persisted || now.Sub(c.lastPersist) >= c.throttle
}

// LastActivity returns the freshest in-memory activity time, zero if none
func (c *ActivityCollector) LastActivity() clock.Timestamp {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// HeartbeatScheduler writes a liveness pulse every interval while the tab is
// visible. A hidden tab writes nothing; the reconciler covers that gap.
type HeartbeatScheduler struct {
	clock     clock.Clock
	store     ActivityStore
	userID    string
	sessionID string
	interval  time.Duration
	status    statusFunc

	mu      sync.Mutex
	ctx     context.Context
	running bool
	visible bool
	stopped bool
	timer   clock.Stopper
}

// NewHeartbeatScheduler creates a scheduler for one tab
func NewHeartbeatScheduler(clk clock.Clock, store ActivityStore, userID, sessionID string, interval time.Duration) *HeartbeatScheduler {
	return &HeartbeatScheduler{
		clock:     clk,
		store:     store,
		userID:    userID,
		sessionID: sessionID,
		interval:  interval,
	}
}

// Start writes one pulse and begins the interval. The tab is assumed visible.
func (h *HeartbeatScheduler) Start(ctx context.Context) {
	h.mu.Lock()
	if h.running || h.stopped {
		h.mu.Unlock()
		return
	}
	h.ctx = context.WithoutCancel(ctx)
	h.running = true
	h.visible = true
	h.mu.Unlock()

	h.beat()
	h.resume()
}

// SetVisible suspends the interval when the tab is hidden. Becoming visible
// writes one pulse immediately and then resumes the interval.
func (h *HeartbeatScheduler) SetVisible(visible bool) {
	h.mu.Lock()
	if !h.running || h.stopped || h.visible == visible {
		h.mu.Unlock()
		return
	}
	h.visible = visible
	if !visible {
		h.stopTimerLocked()
		h.mu.Unlock()
		return
	}
	h.mu.Unlock()

	h.beat()
	h.resume()
}

// Visible reports whether the scheduler considers the tab visible
func (h *HeartbeatScheduler) Visible() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.visible
}

// Stop clears the interval. It is safe to call more than once.
func (h *HeartbeatScheduler) Stop() {
	h.mu.Lock()
	h.stopped = true
	h.running = false
	h.stopTimerLocked()
	h.mu.Unlock()
}

// Unload asks for immediate reconciliation of the session and marks the user
// offline. The writes run detached; Unload returns at once and their outcome
// is only logged.
func (h *HeartbeatScheduler) Unload() {
	h.Stop()
	sendUnloadHint(h.store, h.userID, h.sessionID, h.clock.Now(), nil)
}

func (h *HeartbeatScheduler) resume() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.running || !h.visible || h.timer != nil {
		return
	}
	h.timer = h.clock.Every(h.interval, h.beat)
}

func (h *HeartbeatScheduler) stopTimerLocked() {
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
}

func (h *HeartbeatScheduler) beat() {
	h.mu.Lock()
	if !h.running || !h.visible {
		h.mu.Unlock()
		return
	}
	base := h.ctx
	h.mu.Unlock()

	ctx, cancel := context.WithTimeout(base, besteffort.DefaultTimeout)
	defer cancel()
	writeLiveness(ctx, h.store, "heartbeat", h.userID, h.sessionID, h.status.get(), h.clock.Now())
}

// sendUnloadHint fires the cleanup request and the offline mark without
// waiting for either. at is when the tab went away. check, when set, runs
// before the cleanup flag is written.
func sendUnloadHint(store ActivityStore, userID, sessionID string, at clock.Timestamp, check besteffort.Op) {
	fields := zaplogger.Fields{"user_id": userID, "session_id": sessionID}
	timeout := besteffort.WithTimeout(unloadHintTimeout)
	if sessionID != "" {
		besteffort.Go("unload.session", fields, func(ctx context.Context) error {
			if check != nil {
				if err := check(ctx); err != nil {
					return err
				}
			}
			return store.MarkCleanup(ctx, sessionID, at)
		}, timeout)
	}
	besteffort.Go("unload.user", fields, func(ctx context.Context) error {
		return store.MarkUserOffline(ctx, userID)
	}, timeout)
}

// Tracker owns every timer of one connected tab
type Tracker struct {
	UserID    string
	SessionID string

	collector  *ActivityCollector
	heartbeat  *HeartbeatScheduler
	challenges *ChallengeScheduler

	status   atomic.Value // attendance.Status
	ended    atomic.Bool
	stopOnce sync.Once
	onStop   func(*Tracker)
	onEnd    func()
}

// SessionEndSink is implemented by notice sinks that want to tell the tab its
// session was closed elsewhere
type SessionEndSink interface {
	SessionEnded()
}

func newTracker(userID, sessionID string, collector *ActivityCollector, heartbeat *HeartbeatScheduler, status attendance.Status) *Tracker {
	t := &Tracker{
		UserID:    userID,
		SessionID: sessionID,
		collector: collector,
		heartbeat: heartbeat,
	}
	t.status.Store(status)
	collector.status = t.presenceStatus
	heartbeat.status = t.presenceStatus
	return t
}

// Status returns the session status the tracker last learned of
func (t *Tracker) Status() attendance.Status {
	return t.status.Load().(attendance.Status)
}

// Ended reports whether the session was closed while the tab was open
func (t *Tracker) Ended() bool {
	return t.ended.Load()
}

// presenceStatus is what the tab's pulses mirror onto the user record. A
// user without a session is still present.
func (t *Tracker) presenceStatus() attendance.Status {
	if status := t.Status(); t.SessionID != "" && status.Active() {
		return status
	}
	return attendance.StatusOnline
}

// Start begins the heartbeat and, for an online session with challenges
// enabled, the challenge cadence
func (t *Tracker) Start(ctx context.Context, status attendance.Status) {
	t.heartbeat.Start(ctx)
	if t.challenges != nil && status == attendance.StatusOnline {
		t.challenges.Start()
	}
}

// Activity records an interaction event
func (t *Tracker) Activity(ctx context.Context) {
	if t.Ended() {
		return
	}
	t.collector.RecordActivity(ctx)
}

// Focus records the window regaining focus
func (t *Tracker) Focus(ctx context.Context) {
	t.Activity(ctx)
}

// Visibility records a tab visibility change
func (t *Tracker) Visibility(ctx context.Context, visible bool) {
	if t.Ended() {
		return
	}
	t.heartbeat.SetVisible(visible)
	if visible {
		t.collector.RecordActivity(ctx)
	}
}

// Acknowledge resolves a challenge notice
func (t *Tracker) Acknowledge(noticeID string) error {
	if t.challenges == nil {
		return ErrNoticeNotFound
	}
	return t.challenges.Acknowledge(noticeID)
}

// LastActivity returns the in-memory last activity time
func (t *Tracker) LastActivity() clock.Timestamp {
	return t.collector.LastActivity()
}

// SessionStatusChanged pauses challenges while back soon. A closed session
// ends the tracker for good; later signals from the tab are ignored.
func (t *Tracker) SessionStatusChanged(status attendance.Status) {
	if t.Ended() {
		return
	}
	switch status {
	case attendance.StatusOnline, attendance.StatusBackSoon:
		t.status.Store(status)
	case attendance.StatusOffline:
		if !t.ended.CompareAndSwap(false, true) {
			return
		}
		t.status.Store(status)
		t.Stop()
		if t.onEnd != nil {
			t.onEnd()
		}
		return
	default:
		return
	}
	if t.challenges == nil {
		return
	}
	if status == attendance.StatusOnline {
		t.challenges.Resume()
	} else {
		t.challenges.Pause()
	}
}

// Unload sends the page teardown hint and stops the tracker
func (t *Tracker) Unload() {
	t.heartbeat.Unload()
	t.Stop()
}

// Stop clears every timer the tracker owns. It is safe to call more than once.
func (t *Tracker) Stop() {
	t.stopOnce.Do(func() {
		t.heartbeat.Stop()
		if t.challenges != nil {
			t.challenges.Stop()
		}
		if t.onStop != nil {
			t.onStop(t)
		}
	})
}

// TrackerService creates the per-tab trackers and routes session status
// changes to them
type TrackerService struct {
	clock    clock.Clock
	store    ActivityStore
	sessions *repository.SessionRepository
	users    *repository.UserRepository
	timings  config.Timings

	mu       sync.Mutex
	trackers map[string]map[*Tracker]struct{}
}

// NewTrackerService creates a new TrackerService
func NewTrackerService(clk clock.Clock, store ActivityStore, sessions *repository.SessionRepository, users *repository.UserRepository, timings config.Timings) *TrackerService {
	return &TrackerService{
		clock:    clk,
		store:    store,
		sessions: sessions,
		users:    users,
		timings:  timings,
		trackers: make(map[string]map[*Tracker]struct{}),
	}
}

// Open validates the tab's session and starts a tracker for it. sessionID may
// be empty for a user who has not checked in yet.
func (s *TrackerService) Open(ctx context.Context, userID, sessionID string, armer ChallengeArmer, sink NoticeSink) (*Tracker, error) {
	status := attendance.StatusOffline
	if sessionID != "" {
		sess, err := s.sessions.Get(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if sess.UserID != userID {
			return nil, ErrForbidden
		}
		if !sess.Status.Active() {
			return nil, attendance.ErrSessionClosed
		}
		status = sess.Status
		if sess.NeedsCleanup {
			besteffort.Run(ctx, "tracker.clear_cleanup", zaplogger.Fields{"session_id": sessionID}, func(ctx context.Context) error {
				return s.sessions.ClearCleanup(ctx, sessionID)
			})
		}
	}

	challengesEnabled := false
	user, err := s.users.Get(ctx, userID)
	switch {
	case err == nil:
		challengesEnabled = user.ChallengesEnabled
	case !errors.Is(err, repository.ErrNotFound):
		return nil, err
	}

	t := newTracker(userID, sessionID,
		NewActivityCollector(s.clock, s.store, userID, sessionID, s.timings.ActivityThrottle),
		NewHeartbeatScheduler(s.clock, s.store, userID, sessionID, s.timings.HeartbeatInterval),
		status)
	t.onStop = s.unregister
	if ender, ok := sink.(SessionEndSink); ok {
		t.onEnd = ender.SessionEnded
	}
	if challengesEnabled && sessionID != "" {
		t.challenges = NewChallengeScheduler(s.clock, s.timings, armer, sink)
	}

	s.register(t)
	t.Start(ctx, status)

	zaplogger.Debug("Tracker started", zaplogger.Fields{
		"user_id":    userID,
		"session_id": sessionID,
		"challenges": challengesEnabled,
	})
	return t, nil
}

// Unload handles the beacon sent during page teardown. It never blocks.
func (s *TrackerService) Unload(userID, sessionID string) {
	sendUnloadHint(s.store, userID, sessionID, s.clock.Now(), func(ctx context.Context) error {
		sess, err := s.sessions.Get(ctx, sessionID)
		if err != nil {
			return err
		}
		if sess.UserID != userID {
			return ErrForbidden
		}
		return nil
	})
}

// SessionStatusChanged forwards a status transition to the session's trackers
func (s *TrackerService) SessionStatusChanged(sessionID string, status attendance.Status) {
	s.mu.Lock()
	trackers := make([]*Tracker, 0, len(s.trackers[sessionID]))
	for t := range s.trackers[sessionID] {
		trackers = append(trackers, t)
	}
	s.mu.Unlock()

	for _, t := range trackers {
		t.SessionStatusChanged(status)
	}
}

// sessionEvent is the part of a session change notification the trackers use
type sessionEvent struct {
	ID     string            `json:"id"`
	Status attendance.Status `json:"status"`
}

// Follow applies session changes published by any process, a sweep started
// from the CLI or another instance included, until events is closed
func (s *TrackerService) Follow(events <-chan string) {
	for payload := range events {
		var ev sessionEvent
		if err := json.Unmarshal([]byte(payload), &ev); err != nil || ev.ID == "" {
			zaplogger.Debug("Ignoring session event", zaplogger.Fields{"payload": payload})
			continue
		}
		s.SessionStatusChanged(ev.ID, ev.Status)
	}
}

// Active returns the number of running trackers
func (s *TrackerService) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, set := range s.trackers {
		n += len(set)
	}
	return n
}

// StopAll stops every tracker, used on shutdown
func (s *TrackerService) StopAll() {
	s.mu.Lock()
	var all []*Tracker
	for _, set := range s.trackers {
		for t := range set {
			all = append(all, t)
		}
	}
	s.mu.Unlock()

	for _, t := range all {
		t.Stop()
	}
}

func (s *TrackerService) register(t *Tracker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.trackers[t.SessionID]
	if !ok {
		set = make(map[*Tracker]struct{})
		s.trackers[t.SessionID] = set
	}
	set[t] = struct{}{}
}

func (s *TrackerService) unregister(t *Tracker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.trackers[t.SessionID]
	delete(set, t)
	if len(set) == 0 {
		delete(s.trackers, t.SessionID)
	}
}
