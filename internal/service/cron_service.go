package service

import (
	"context"
	"time"

	"github.com/nsvirk/attendanceapi/internal/config"
	"github.com/nsvirk/attendanceapi/pkg/utils/zaplogger"
	"github.com/robfig/cron/v3"
)

// CronService is the service for the cron jobs
type CronService struct {
	c          *cron.Cron
	timings    config.Timings
	reconciler *ReconcilerService
	presence   *PresenceService
}

// NewCronService creates a new CronService
func NewCronService(timings config.Timings, reconciler *ReconcilerService, presence *PresenceService) *CronService {
	return &CronService{
		// a sweep still running when the next one is due is not doubled up
		c:          cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		timings:    timings,
		reconciler: reconciler,
		presence:   presence,
	}
}

// Start starts the cron service
func (cs *CronService) Start() {
	zaplogger.Info("Initializing CronService")
	cs.registerJobs()

	// ------------------------------------------------------------
	// Add your STARTUP jobs here
	// ------------------------------------------------------------
	cs.addStartupJob("Stale Session SWEEP Job", cs.staleSessionSweepJob, 5*time.Second)
	// ------------------------------------------------------------

	cs.c.Start()
}

func (cs *CronService) registerJobs() {
	// ------------------------------------------------------------
	// Add your SCHEDULED jobs here
	// ------------------------------------------------------------
	cs.addScheduledJob("Stale Session SWEEP Job", cs.staleSessionSweepJob, every(cs.timings.SweepInterval))
	cs.addScheduledJob("User Presence CLEANUP Job", cs.presenceCleanupJob, every(cs.timings.SweepInterval))
}

// Stop stops the scheduler and waits for running jobs
func (cs *CronService) Stop() {
	<-cs.c.Stop().Done()
	zaplogger.Info("CronService stopped")
}

// addStartupJob adds a startup job to the cron service
func (cs *CronService) addStartupJob(name string, job func(), delay time.Duration) {
	go func() {
		time.Sleep(delay)
		zaplogger.Info("STARTED STARTUP job", zaplogger.Fields{
			"job": name,
		})
		job()
		zaplogger.Info("COMPLETED STARTUP job", zaplogger.Fields{
			"job": name,
		})
	}()
	zaplogger.Info("QUEUED STARTUP job", zaplogger.Fields{
		"job": name,
	})
}

func (cs *CronService) addScheduledJob(name string, job func(), schedule string) {
	_, err := cs.c.AddFunc(schedule, func() {
		zaplogger.Debug("STARTED SCHEDULED JOB", zaplogger.Fields{
			"job": name,
		})
		job()
		zaplogger.Debug("COMPLETED SCHEDULED JOB", zaplogger.Fields{
			"job": name,
		})
	})
	if err != nil {
		zaplogger.Error("FAILED TO QUEUE SCHEDULED JOB", zaplogger.Fields{
			"job":   name,
			"error": err.Error(),
		})
		return
	}
	zaplogger.Info("QUEUED SCHEDULED job", zaplogger.Fields{
		"job":      name,
		"schedule": schedule,
	})
}

// staleSessionSweepJob closes sessions whose tab went silent
func (cs *CronService) staleSessionSweepJob() {
	jobName := "Stale Session SWEEP Job "
	ctx, cancel := context.WithTimeout(context.Background(), cs.timings.SweepInterval)
	defer cancel()

	if _, err := cs.reconciler.Sweep(ctx); err != nil {
		zaplogger.Error(jobName, zaplogger.Fields{
			"error": err.Error(),
		})
	}
}

// presenceCleanupJob marks silent users offline
func (cs *CronService) presenceCleanupJob() {
	jobName := "User Presence CLEANUP Job "
	ctx, cancel := context.WithTimeout(context.Background(), cs.timings.SweepInterval)
	defer cancel()

	changed, err := cs.presence.Cleanup(ctx)
	if err != nil {
		zaplogger.Error(jobName, zaplogger.Fields{
			"error": err.Error(),
		})
		return
	}
	if changed > 0 {
		zaplogger.Info(jobName, zaplogger.Fields{
			"users_offline": changed,
		})
	}
}

func every(d time.Duration) string {
	return "@every " + d.String()
}
