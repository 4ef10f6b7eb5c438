package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/mstfa13/asura-backend/internal/config"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// SetupRedis connects to Redis and verifies the connection with a ping.
func SetupRedis(ctx context.Context, redisCfg *config.RedisConfig) (*redis.Client, error) {
	addr := fmt.Sprintf("%s:%s", redisCfg.Host, redisCfg.Port)

	db, err := strconv.Atoi(redisCfg.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis DB number: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: redisCfg.RedisPassword,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logrus.WithField("addr", addr).Info("Redis connection established successfully")
	return rdb, nil
}
