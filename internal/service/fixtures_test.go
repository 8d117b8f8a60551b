package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nsvirk/attendanceapi/internal/attendance"
	"github.com/nsvirk/attendanceapi/internal/clock"
	"github.com/nsvirk/attendanceapi/internal/config"
	"github.com/nsvirk/attendanceapi/internal/repository"
	"github.com/nsvirk/attendanceapi/internal/testutil"
	"github.com/nsvirk/attendanceapi/pkg/utils/logger"
	"gorm.io/gorm"
)

// 2024-10-18 09:00:00 in logical milliseconds
const start = clock.Timestamp(1_729_242_000_000)

// recordingStore is an ActivityStore that keeps every write in memory
type recordingStore struct {
	mu       sync.Mutex
	users    []clock.Timestamp
	statuses []attendance.Status
	sessions []clock.Timestamp
	cleanups []string
	offline  []string
	err      error
	block    chan struct{}
}

func (s *recordingStore) wait() {
	if s.block != nil {
		<-s.block
	}
}

func (s *recordingStore) TouchUser(ctx context.Context, userID, sessionID string, status attendance.Status, ts clock.Timestamp) error {
	s.wait()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.users = append(s.users, ts)
	s.statuses = append(s.statuses, status)
	return nil
}

func (s *recordingStore) TouchSession(ctx context.Context, sessionID string, ts clock.Timestamp) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sessions = append(s.sessions, ts)
	return nil
}

func (s *recordingStore) MarkCleanup(ctx context.Context, sessionID string, at clock.Timestamp) error {
	s.wait()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.cleanups = append(s.cleanups, sessionID)
	return nil
}

func (s *recordingStore) MarkUserOffline(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.offline = append(s.offline, userID)
	return nil
}

func (s *recordingStore) userWrites() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

func (s *recordingStore) lastStatus() attendance.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.statuses) == 0 {
		return ""
	}
	return s.statuses[len(s.statuses)-1]
}

func (s *recordingStore) sessionWrites() []clock.Timestamp {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]clock.Timestamp(nil), s.sessions...)
}

func (s *recordingStore) unloads() ([]string, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.cleanups...), append([]string(nil), s.offline...)
}

// recordingSink collects challenge notices and armed challenges
type recordingSink struct {
	mu        sync.Mutex
	raised    []Notice
	dismissed []string
	removed   []string
	armed     []ChallengeKind
	ended     int
}

func (s *recordingSink) NoticeRaised(n Notice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.raised = append(s.raised, n)
}

func (s *recordingSink) NoticeDismissed(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dismissed = append(s.dismissed, id)
}

func (s *recordingSink) NoticeRemoved(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removed = append(s.removed, id)
}

func (s *recordingSink) ArmChallenge(kind ChallengeKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.armed = append(s.armed, kind)
}

func (s *recordingSink) SessionEnded() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ended++
}

func (s *recordingSink) endedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}

func (s *recordingSink) armedKinds() []ChallengeKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ChallengeKind(nil), s.armed...)
}

// env wires the services over in-memory SQLite and Redis
type env struct {
	db        *gorm.DB
	clock     *clock.Fake
	timings   config.Timings
	sessions  *repository.SessionRepository
	users     *repository.UserRepository
	logs      *repository.ActivityLogRepository
	presence  *PresenceService
	audit     *AuditService
	incidents *logger.Logger
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db := testutil.OpenDB(t)
	redisClient, _ := testutil.OpenRedis(t)
	clk := clock.NewFake(start)
	timings := config.DefaultTimings()

	users := repository.NewUserRepository(db)
	logs := repository.NewActivityLogRepository(db)
	return &env{
		db:        db,
		clock:     clk,
		timings:   timings,
		sessions:  repository.NewSessionRepository(db),
		users:     users,
		logs:      logs,
		presence:  NewPresenceService(users, repository.NewPresenceRepository(redisClient, time.Minute), clk, timings.PresenceThreshold),
		audit:     NewAuditService(logs, users),
		incidents: logger.New(db, "reconciler"),
	}
}

func (e *env) reconciler(store SessionStore) *ReconcilerService {
	if store == nil {
		store = e.sessions
	}
	return NewReconcilerService(store, e.presence, e.audit, e.incidents, e.clock, e.timings.StaleSessionThreshold)
}

func (e *env) sessionService() *SessionService {
	return NewSessionService(e.sessions, e.users, e.presence, e.audit, e.clock)
}
