package service

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/nsvirk/attendanceapi/internal/repository"
	"github.com/nsvirk/attendanceapi/pkg/utils/zaplogger"
	"github.com/redis/go-redis/v9"
)

// PublishService relays session change notifications from Postgres to a
// Redis channel, where every API instance can pick them up
type PublishService struct {
	redisClient  *redis.Client
	pgConnStr    string
	redisChannel string
}

// NewPublishService creates a new PublishService
func NewPublishService(redisClient *redis.Client, pgConnStr, redisChannel string) *PublishService {
	return &PublishService{
		redisClient:  redisClient,
		pgConnStr:    pgConnStr,
		redisChannel: redisChannel,
	}
}

// Run listens on the sessions NOTIFY channel until ctx is done
func (s *PublishService) Run(ctx context.Context) error {
	listener := pq.NewListener(s.pgConnStr, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			zaplogger.Error("PostgreSQL listener event", zaplogger.Fields{"event": int(ev), "error": err})
		}
	})
	defer listener.Close()

	if err := listener.Listen(repository.SessionEventChannel); err != nil {
		return fmt.Errorf("failed to listen on %s: %w", repository.SessionEventChannel, err)
	}
	zaplogger.Info("Listening for session events", zaplogger.Fields{"channel": repository.SessionEventChannel})

	for {
		select {
		case <-ctx.Done():
			return nil
		case n := <-listener.Notify:
			// nil after a reconnect; events sent while disconnected are lost
			if n == nil {
				continue
			}
			if err := s.Publish(ctx, n.Extra); err != nil {
				zaplogger.Error("Failed to publish to Redis", zaplogger.Fields{"error": err})
			}
		case <-time.After(90 * time.Second):
			go func() {
				if err := listener.Ping(); err != nil {
					zaplogger.Error("Error pinging PostgreSQL", zaplogger.Fields{"error": err})
				}
			}()
		}
	}
}

// Publish sends one session event payload to the Redis channel
func (s *PublishService) Publish(ctx context.Context, payload string) error {
	return s.redisClient.Publish(ctx, s.redisChannel, payload).Err()
}

// Subscribe streams session event payloads until ctx is done
func (s *PublishService) Subscribe(ctx context.Context) (<-chan string, error) {
	sub := s.redisClient.Subscribe(ctx, s.redisChannel)
	// wait for the subscription so no event published after return is missed
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", s.redisChannel, err)
	}

	out := make(chan string, 16)
	go func() {
		defer close(out)
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- msg.Payload:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
