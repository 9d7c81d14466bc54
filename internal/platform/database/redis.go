package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/SlpAus/chat-stats-bot/internal/platform/config"
)

const redisPingTimeout = 5 * time.Second

// OpenRedis 创建Redis客户端，并用Ping命令来测试连接是否成功
func OpenRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("无法连接到Redis: %w", err)
	}

	log.Info().Str("address", cfg.Address).Int("db", cfg.DB).Msg("Redis 连接成功")
	return rdb, nil
}
