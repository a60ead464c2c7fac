package repo

import (
	"context"
	"fmt"
	"time"

	"ludo-service/internal/config"
	"ludo-service/pkg/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisPingTimeout = 5 * time.Second

var RDB *redis.Client

func InitRedis() {
	conf := config.GlobalConfig.Redis
	client, err := OpenRedis(conf)
	if err != nil {
		logger.Log.Fatal("Failed to connect to Redis", zap.String("addr", conf.Addr), zap.Error(err))
	}
	RDB = client
}

// OpenRedis connects and pings. Rate limits, dedupe results, join locks and
// room codes all live here, so the service refuses to start without it.
func OpenRedis(conf config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     conf.Addr,
		Password: conf.Password,
		DB:       conf.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), redisPingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", conf.Addr, err)
	}
	return client, nil
}
