package service

import (
	"github.com/nsvirk/attendanceapi/internal/clock"
	"github.com/nsvirk/attendanceapi/internal/config"
	"github.com/nsvirk/attendanceapi/internal/repository"
	"github.com/nsvirk/attendanceapi/pkg/utils/logger"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Services holds every service of one process, wired to the same stores and clock
type Services struct {
	Sessions   *SessionService
	Trackers   *TrackerService
	Presence   *PresenceService
	Audit      *AuditService
	Reconciler *ReconcilerService
	Publisher  *PublishService
	Cron       *CronService
}

// Options carries the settings the services need beyond the stores
type Options struct {
	Timings      config.Timings
	PostgresDsn  string
	EventChannel string
}

// NewServices wires the services together. Session status transitions, user
// triggered or forced by a sweep, are routed to the open trackers.
func NewServices(db *gorm.DB, redisClient *redis.Client, clk clock.Clock, opts Options) *Services {
	t := opts.Timings
	sessions := repository.NewSessionRepository(db)
	users := repository.NewUserRepository(db)
	logs := repository.NewActivityLogRepository(db)

	presence := NewPresenceService(users, repository.NewPresenceRepository(redisClient, 2*t.PresenceThreshold), clk, t.PresenceThreshold)
	audit := NewAuditService(logs, users)
	reconciler := NewReconcilerService(sessions, presence, audit, logger.New(db, "reconciler"), clk, t.StaleSessionThreshold)
	trackers := NewTrackerService(clk, NewLivenessStore(sessions, presence), sessions, users, t)

	sessionService := NewSessionService(sessions, users, presence, audit, clk)
	sessionService.SetStatusListener(trackers)
	reconciler.SetStatusListener(trackers)

	return &Services{
		Sessions:   sessionService,
		Trackers:   trackers,
		Presence:   presence,
		Audit:      audit,
		Reconciler: reconciler,
		Publisher:  NewPublishService(redisClient, opts.PostgresDsn, opts.EventChannel),
		Cron:       NewCronService(t, reconciler, presence),
	}
}
