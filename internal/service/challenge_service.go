package service

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nsvirk/attendanceapi/internal/clock"
	"github.com/nsvirk/attendanceapi/internal/config"
)

var ErrNoticeNotFound = errors.New("notice not found")

// ChallengeKind names a liveness challenge
type ChallengeKind string

const (
	ChallengeCaptcha ChallengeKind = "captcha"
	ChallengeFace    ChallengeKind = "face_verification"
)

// Notice warns the user that a challenge is about to be armed
type Notice struct {
	ID       string          `json:"id"`
	Kind     ChallengeKind   `json:"kind"`
	Message  string          `json:"message"`
	Sound    bool            `json:"sound"`
	RaisedAt clock.Timestamp `json:"raised_at"`
	ArmsAt   clock.Timestamp `json:"arms_at"`
	Resolved bool            `json:"resolved"`
}

// ChallengeArmer starts the actual challenge. Validating the answer is not
// the scheduler's concern.
type ChallengeArmer interface {
	ArmChallenge(kind ChallengeKind)
}

// NoticeSink displays notices
type NoticeSink interface {
	NoticeRaised(n Notice)
	NoticeDismissed(id string)
	NoticeRemoved(id string)
}

type activeNotice struct {
	Notice
	timer clock.Stopper
}

// ChallengeScheduler runs the CAPTCHA and face verification cadence of one
// online session. Each kind has its own timer on the same cycle and raises a
// notice lead time before it is armed.
type ChallengeScheduler struct {
	clock   clock.Clock
	timings config.Timings
	armer   ChallengeArmer
	sink    NoticeSink
	newID   func() string

	mu      sync.Mutex
	running bool
	stopped bool
	gen     int // bumped on every clear so stale timer callbacks do nothing
	cycle   map[ChallengeKind]clock.Stopper
	arming  map[ChallengeKind]clock.Stopper
	notices map[string]*activeNotice
}

// NewChallengeScheduler creates a stopped scheduler
func NewChallengeScheduler(clk clock.Clock, timings config.Timings, armer ChallengeArmer, sink NoticeSink) *ChallengeScheduler {
	return &ChallengeScheduler{
		clock:   clk,
		timings: timings,
		armer:   armer,
		sink:    sink,
		newID:   uuid.NewString,
		cycle:   make(map[ChallengeKind]clock.Stopper),
		arming:  make(map[ChallengeKind]clock.Stopper),
		notices: make(map[string]*activeNotice),
	}
}

// Start begins a fresh cycle from now
func (s *ChallengeScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running || s.stopped {
		return
	}
	s.running = true
	s.startKindLocked(ChallengeCaptcha, s.timings.CaptchaLead)
	s.startKindLocked(ChallengeFace, s.timings.FaceVerificationLead)
}

// Resume restarts the cycle after Pause
func (s *ChallengeScheduler) Resume() { s.Start() }

// Pause clears every timer and withdraws the open notices. Used while the
// session is back soon.
func (s *ChallengeScheduler) Pause() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	ids := s.clearLocked()
	s.mu.Unlock()

	for _, id := range ids {
		s.sink.NoticeRemoved(id)
	}
}

// Stop clears every timer for good. It is safe to call more than once.
func (s *ChallengeScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	s.running = false
	s.clearLocked()
}

// Acknowledge marks the notice resolved and removes it shortly after
func (s *ChallengeScheduler) Acknowledge(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notices[id]
	if !ok {
		return ErrNoticeNotFound
	}
	if n.Resolved {
		return nil
	}
	n.Resolved = true
	n.timer.Stop()
	n.timer = s.clock.AfterFunc(s.timings.NoticeRemoveAfterAck, func() { s.remove(id) })
	return nil
}

// Notices returns the notices currently shown
func (s *ChallengeScheduler) Notices() []Notice {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Notice, 0, len(s.notices))
	for _, n := range s.notices {
		out = append(out, n.Notice)
	}
	return out
}

func (s *ChallengeScheduler) startKindLocked(kind ChallengeKind, lead time.Duration) {
	cycle := s.timings.ChallengeCycle
	gen := s.gen
	s.cycle[kind] = s.clock.AfterFunc(cycle-lead, func() {
		s.mu.Lock()
		if !s.running || s.gen != gen {
			s.mu.Unlock()
			return
		}
		s.cycle[kind] = s.clock.Every(cycle, func() { s.warn(gen, kind, lead) })
		s.mu.Unlock()

		s.warn(gen, kind, lead)
	})
}

func (s *ChallengeScheduler) warn(gen int, kind ChallengeKind, lead time.Duration) {
	s.mu.Lock()
	if !s.running || s.gen != gen {
		s.mu.Unlock()
		return
	}
	now := s.clock.Now()
	n := &activeNotice{Notice: Notice{
		ID:       s.newID(),
		Kind:     kind,
		Message:  noticeMessage(kind, lead),
		Sound:    kind == ChallengeCaptcha,
		RaisedAt: now,
		ArmsAt:   now.Add(lead),
	}}
	id := n.ID
	n.timer = s.clock.AfterFunc(s.timings.NoticeAutoDismiss, func() { s.dismiss(id) })
	s.notices[id] = n

	if prev, ok := s.arming[kind]; ok {
		prev.Stop()
	}
	s.arming[kind] = s.clock.AfterFunc(lead, func() { s.arm(gen, kind) })
	notice := n.Notice
	s.mu.Unlock()

	s.sink.NoticeRaised(notice)
}

func (s *ChallengeScheduler) arm(gen int, kind ChallengeKind) {
	s.mu.Lock()
	if !s.running || s.gen != gen {
		s.mu.Unlock()
		return
	}
	delete(s.arming, kind)
	s.mu.Unlock()

	s.armer.ArmChallenge(kind)
}

func (s *ChallengeScheduler) dismiss(id string) {
	s.mu.Lock()
	n, ok := s.notices[id]
	if !ok || n.Resolved {
		s.mu.Unlock()
		return
	}
	delete(s.notices, id)
	s.mu.Unlock()

	s.sink.NoticeDismissed(id)
}

func (s *ChallengeScheduler) remove(id string) {
	s.mu.Lock()
	_, ok := s.notices[id]
	delete(s.notices, id)
	s.mu.Unlock()

	if ok {
		s.sink.NoticeRemoved(id)
	}
}

// clearLocked stops every timer and forgets the notices, returning their ids
func (s *ChallengeScheduler) clearLocked() []string {
	s.gen++
	for kind, t := range s.cycle {
		t.Stop()
		delete(s.cycle, kind)
	}
	for kind, t := range s.arming {
		t.Stop()
		delete(s.arming, kind)
	}
	ids := make([]string, 0, len(s.notices))
	for id, n := range s.notices {
		n.timer.Stop()
		delete(s.notices, id)
		ids = append(ids, id)
	}
	return ids
}

func noticeMessage(kind ChallengeKind, lead time.Duration) string {
	in := fmt.Sprintf("%d seconds", int(lead/time.Second))
	if lead >= time.Minute && lead%time.Minute == 0 {
		in = fmt.Sprintf("%d minutes", int(lead/time.Minute))
	}
	switch kind {
	case ChallengeFace:
		return "Face verification required in " + in + ". Please get your camera ready."
	default:
		return "CAPTCHA verification required in " + in + "."
	}
}
