package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nsvirk/attendanceapi/internal/attendance"
	"github.com/nsvirk/attendanceapi/internal/clock"
	"github.com/nsvirk/attendanceapi/internal/repository"
	"github.com/nsvirk/attendanceapi/pkg/utils/zaplogger"
)

// PresenceService keeps the simple per-user presence indicator: the status
// column on the user record plus a TTL-bound Redis entry. It is eventually
// consistent with the open session and never used for billed time.
type PresenceService struct {
	users     *repository.UserRepository
	cache     *repository.PresenceRepository
	clock     clock.Clock
	threshold time.Duration
}

// NewPresenceService creates a new PresenceService. Users silent for longer
// than threshold are marked offline by Cleanup.
func NewPresenceService(users *repository.UserRepository, cache *repository.PresenceRepository, clk clock.Clock, threshold time.Duration) *PresenceService {
	return &PresenceService{users: users, cache: cache, clock: clk, threshold: threshold}
}

// SetStatus mirrors status onto the user record and the cache
func (s *PresenceService) SetStatus(ctx context.Context, userID, sessionID string, status attendance.Status, ts clock.Timestamp) error {
	if status == attendance.StatusOffline {
		return s.MarkOffline(ctx, userID)
	}
	dbErr := s.users.UpdatePresence(ctx, userID, string(status), ts.Ptr())
	cacheErr := s.cache.Set(ctx, repository.Presence{
		UserID:    userID,
		SessionID: sessionID,
		Status:    string(status),
		LastSeen:  ts.Millis(),
	})
	return errors.Join(dbErr, cacheErr)
}

// MarkOffline sets the user offline and drops the cached entry
func (s *PresenceService) MarkOffline(ctx context.Context, userID string) error {
	dbErr := s.users.UpdatePresence(ctx, userID, string(attendance.StatusOffline), nil)
	cacheErr := s.cache.Remove(ctx, userID)
	return errors.Join(dbErr, cacheErr)
}

// ListOnline returns the users with an unexpired presence entry
func (s *PresenceService) ListOnline(ctx context.Context) ([]repository.Presence, error) {
	return s.cache.ListOnline(ctx)
}

// Cleanup marks offline every user whose last activity is older than the
// presence threshold and returns how many were changed
func (s *PresenceService) Cleanup(ctx context.Context) (int, error) {
	before := s.clock.Now().Add(-s.threshold)
	stale, err := s.users.ListStalePresence(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("failed to list stale users: %w", err)
	}

	changed := 0
	for _, user := range stale {
		ok, err := s.users.SetOfflineIfStale(ctx, user.ID, before)
		if err != nil {
			if !repository.IsPermissionDenied(err) {
				zaplogger.Error("Failed to clear stale presence", zaplogger.Fields{
					"user_id": user.ID,
					"error":   err,
				})
			}
			continue
		}
		if !ok {
			continue
		}
		changed++
		if err := s.cache.Remove(ctx, user.ID); err != nil {
			zaplogger.Warn("Failed to drop cached presence", zaplogger.Fields{
				"user_id": user.ID,
				"error":   err,
			})
		}
	}
	return changed, nil
}
