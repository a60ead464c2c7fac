package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"ludo-service/internal/service/game"
	"ludo-service/pkg/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// LogSink writes notifications to the service log.
type LogSink struct {
	log *zap.Logger
}

func NewLogSink() *LogSink {
	return &LogSink{log: logger.Named("notify")}
}

func (s *LogSink) Notify(_ context.Context, n game.Notification) error {
	s.log.Info("player notification",
		zap.String("matchID", n.MatchID),
		zap.String("playerID", n.PlayerID),
		zap.String("kind", n.Kind),
		zap.String("message", n.Message),
	)
	return nil
}

// RedisSink publishes notifications on a per-player channel for the push
// service to pick up.
type RedisSink struct {
	rdb *redis.Client
}

func NewRedisSink(rdb *redis.Client) *RedisSink {
	return &RedisSink{rdb: rdb}
}

func (s *RedisSink) Notify(ctx context.Context, n game.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return s.rdb.Publish(ctx, buildChannel(n.PlayerID), data).Err()
}

func buildChannel(playerID string) string {
	return fmt.Sprintf("ludo:notify:%s", playerID)
}

// Fanout delivers to every sink and joins their errors.
type Fanout []game.Notifier

func (f Fanout) Notify(ctx context.Context, n game.Notification) error {
	var errs []error
	for _, sink := range f {
		if err := sink.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
