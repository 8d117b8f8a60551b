package repository

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/nsvirk/attendanceapi/internal/config"
	"github.com/nsvirk/attendanceapi/pkg/utils/zaplogger"
	"github.com/redis/go-redis/v9"
)

// ConnectRedis connects to the Redis instance holding presence keys and the
// session event channel
func ConnectRedis(cfg *config.Config) (*redis.Client, error) {
	zaplogger.Info(config.SingleLine)
	zaplogger.Info("Initializing Redis")
	zaplogger.Info(config.SingleLine)

	db, err := strconv.Atoi(cfg.RedisDB)
	if err != nil || db < 0 {
		return nil, fmt.Errorf("invalid redis db %q", cfg.RedisDB)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:       net.JoinHostPort(cfg.RedisHost, cfg.RedisPort),
		Password:   cfg.RedisPassword,
		DB:         db,
		ClientName: "attendanceapi",
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		redisClient.Close()
		return nil, fmt.Errorf("failed to ping Redis at %s: %w", redisClient.Options().Addr, err)
	}
	zaplogger.Info("  * connected", zaplogger.Fields{"db": db})
	return redisClient, nil
}
