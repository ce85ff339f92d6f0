package cache

import (
	"context"
	"fmt"
	"log"
	"time"

	"donationpay/internal/config"

	"github.com/go-redis/redis/v8"
)

// InitRedis connects and pings Redis. The client backs the reconciliation
// lock and the readiness probe.
func InitRedis(cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	log.Println("[Redis] connected")
	return client, nil
}
