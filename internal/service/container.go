package service

import (
	"context"

	"ludo-service/internal/config"
	"ludo-service/internal/service/game"
	"ludo-service/internal/service/gateway"
	"ludo-service/internal/service/match"
	"ludo-service/internal/service/notify"
	"ludo-service/internal/service/stake"
	"ludo-service/internal/service/transport"
	"ludo-service/internal/service/wallet"
	"ludo-service/pkg/logger"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Container struct {
	Game     *game.Service
	Hub      *transport.Hub
	Forfeit  *game.CountdownForfeit
	Gateway  *gateway.Gateway
	Match    *match.Service
	Recorder *match.Recorder
	Stakes   *stake.Service
	Wallet   *wallet.Service

	relay *transport.NATSRelay
	cfg   *config.Config
}

func NewContainer(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *Container {
	clock := clockwork.NewRealClock()

	hub := transport.NewHub(cfg.Game.HubBuffer)
	forfeit := game.NewCountdownForfeit(cfg.Game.ForfeitGrace, clock)
	hub.SetPresenceListener(forfeit)

	walletSvc := wallet.NewService(db)
	stakes := stake.NewService(db)
	recorder := match.NewRecorder(db)
	notifier := notify.Fanout{notify.NewLogSink(), notify.NewRedisSink(rdb)}

	engine := game.NewService(game.Config{
		MinActionInterval: cfg.Game.MinActionInterval,
		RollLock:          cfg.Game.RollLock,
		CaptureLock:       cfg.Game.CaptureLock,
	},
		game.WithClock(clock),
		game.WithPublisher(hub),
		game.WithSettler(walletSvc),
		game.WithNotifier(notifier),
		game.WithRecorder(recorder),
		game.WithHeartbeats(forfeit),
	)
	forfeit.Attach(engine)

	gw := gateway.New(engine,
		gateway.NewRedisRateLimiter(rdb, cfg.Gateway.RateLimit, cfg.Gateway.RateWindow, clock),
		gateway.NewRedisResultStore(rdb, cfg.Gateway.DedupeTTL),
		gateway.Config{
			RateLimit:     cfg.Gateway.RateLimit,
			RateWindow:    cfg.Gateway.RateWindow,
			DedupeTTL:     cfg.Gateway.DedupeTTL,
			ActionTimeout: cfg.Gateway.ActionTimeout,
		},
	)

	matchCfg := match.DefaultConfig()
	matchCfg.WaitTimeout = cfg.Match.WaitTimeout
	matchCfg.ResultRetention = cfg.Match.ResultRetention
	matchCfg.SweepInterval = cfg.Match.SweepInterval
	matchCfg.CheckSameNetwork = cfg.Match.CheckSameNetwork

	return &Container{
		Game:     engine,
		Hub:      hub,
		Forfeit:  forfeit,
		Gateway:  gw,
		Match:    match.NewService(rdb, engine, walletSvc, stakes, recorder, matchCfg, clock),
		Recorder: recorder,
		Stakes:   stakes,
		Wallet:   walletSvc,
		cfg:      cfg,
	}
}

// Start connects the cross-node relay when enabled and launches the match
// sweeper.
func (c *Container) Start(ctx context.Context) error {
	if c.cfg.NATS.Enabled {
		relay, err := transport.ConnectRelay(transport.RelayConfig{
			URL:           c.cfg.NATS.URL,
			MaxReconnects: c.cfg.NATS.MaxReconnects,
			ReconnectWait: c.cfg.NATS.ReconnectWait,
		}, c.Hub)
		if err != nil {
			return err
		}
		if err := relay.Start(); err != nil {
			return err
		}
		c.relay = relay
		logger.Log.Info("frame relay connected", zap.String("url", c.cfg.NATS.URL))
	}
	c.Match.StartSweeper(ctx)
	return nil
}

// Close stops the relay and waits for in-flight settlements.
func (c *Container) Close() {
	if c.relay != nil {
		if err := c.relay.Close(); err != nil {
			logger.Log.Warn("relay close failed", zap.Error(err))
		}
	}
	c.Game.Wait()
}
