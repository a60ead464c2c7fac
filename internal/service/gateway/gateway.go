package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	appErr "ludo-service/pkg/errors"
	"ludo-service/pkg/logger"
	"ludo-service/pkg/protocol"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Engine is the slice of the match state machine the gateway forwards to.
type Engine interface {
	RollDice(ctx context.Context, matchID, playerID string) (*protocol.ActionResult, error)
	MoveToken(ctx context.Context, matchID, playerID string, tokenID int) (*protocol.ActionResult, error)
	RequestSync(ctx context.Context, matchID, playerID string) (*protocol.ActionResult, error)
	Heartbeat(ctx context.Context, matchID, playerID string) (*protocol.ActionResult, error)
}

type Config struct {
	RateLimit     int
	RateWindow    time.Duration
	DedupeTTL     time.Duration
	ActionTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		RateLimit:     20,
		RateWindow:    10 * time.Second,
		DedupeTTL:     5 * time.Minute,
		ActionTimeout: 5 * time.Second,
	}
}

type Gateway struct {
	engine  Engine
	limiter RateLimiter
	results ResultStore
	cfg     Config

	inflight singleflight.Group
}

func New(engine Engine, limiter RateLimiter, results ResultStore, cfg Config) *Gateway {
	return &Gateway{
		engine:  engine,
		limiter: limiter,
		results: results,
		cfg:     cfg,
	}
}

// Submit authenticates, deduplicates and rate limits one envelope, then
// forwards it to the state machine. subject is the authenticated caller.
func (g *Gateway) Submit(ctx context.Context, subject string, env protocol.ActionEnvelope) (*protocol.ActionResult, error) {
	if subject == "" || subject != env.PlayerID {
		return nil, appErr.ErrUnauthorized
	}
	if err := env.Validate(); err != nil {
		return nil, err
	}

	if !env.Kind.Mutating() {
		if err := g.allow(ctx, env); err != nil {
			return nil, err
		}
		return g.dispatch(ctx, env)
	}

	key := buildResultKey(env.MatchID, env.PlayerID, env.ClientActionID)
	executed := false
	v, err, _ := g.inflight.Do(key, func() (any, error) {
		executed = true
		return g.submitOnce(ctx, key, env)
	})
	if err != nil {
		return nil, err
	}
	out := v.(outcome)
	if !executed {
		out.duplicate = true
	}

	if out.duplicate {
		logger.Log.Debug("duplicate action",
			zap.String("matchID", env.MatchID),
			zap.String("playerID", env.PlayerID),
			zap.String("clientActionID", env.ClientActionID),
		)
	}
	if out.err != nil {
		if out.duplicate {
			return nil, appErr.Duplicate(out.err)
		}
		return nil, out.err
	}
	if out.duplicate {
		dup := *out.result
		dup.Duplicate = true
		dup.Warning = appErr.CodeDuplicateAction
		return &dup, nil
	}
	return out.result, nil
}

type outcome struct {
	result    *protocol.ActionResult
	err       error
	duplicate bool
}

// submitOnce runs with every concurrent copy of the same clientActionId
// collapsed onto it.
func (g *Gateway) submitOnce(ctx context.Context, key string, env protocol.ActionEnvelope) (outcome, error) {
	stored, err := g.results.Load(ctx, key)
	if err != nil {
		return outcome{}, fmt.Errorf("load action result: %w", err)
	}
	if stored != nil {
		if stored.Error != nil {
			return outcome{err: stored.Error.Err(), duplicate: true}, nil
		}
		return outcome{result: stored.Result, duplicate: true}, nil
	}

	if err := g.allow(ctx, env); err != nil {
		return outcome{err: err}, nil
	}

	result, err := g.dispatch(ctx, env)
	if cacheable(err) {
		record := StoredResult{Result: result}
		if err != nil {
			body := protocol.NewErrorBody(err)
			record = StoredResult{Error: &body}
		}
		if saveErr := g.results.Save(ctx, key, record); saveErr != nil {
			logger.Log.Warn("action result not retained",
				zap.String("matchID", env.MatchID),
				zap.String("clientActionID", env.ClientActionID),
				zap.Error(saveErr),
			)
		}
	}
	return outcome{result: result, err: err}, nil
}

func (g *Gateway) allow(ctx context.Context, env protocol.ActionEnvelope) error {
	ok, err := g.limiter.Allow(ctx, buildRateKey(env.MatchID, env.PlayerID))
	if err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	if !ok {
		logger.Log.Info("action rate limited",
			zap.String("matchID", env.MatchID),
			zap.String("playerID", env.PlayerID),
			zap.String("kind", string(env.Kind)),
		)
		return appErr.ErrRateLimited
	}
	return nil
}

func (g *Gateway) dispatch(ctx context.Context, env protocol.ActionEnvelope) (*protocol.ActionResult, error) {
	if g.cfg.ActionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.cfg.ActionTimeout)
		defer cancel()
	}
	switch env.Kind {
	case protocol.ActionRollDice:
		return g.engine.RollDice(ctx, env.MatchID, env.PlayerID)
	case protocol.ActionMoveToken:
		return g.engine.MoveToken(ctx, env.MatchID, env.PlayerID, *env.TokenID)
	case protocol.ActionRequestSync:
		return g.engine.RequestSync(ctx, env.MatchID, env.PlayerID)
	case protocol.ActionHeartbeat:
		return g.engine.Heartbeat(ctx, env.MatchID, env.PlayerID)
	default:
		return nil, appErr.ErrInvalidAction
	}
}

// cacheable reports whether a result is final for its clientActionId. Soft
// rejections and internal failures may succeed on retry and are not kept.
func cacheable(err error) bool {
	if err == nil {
		return true
	}
	var coded *appErr.Error
	if !errors.As(err, &coded) {
		return false
	}
	return !coded.Soft()
}

func buildResultKey(matchID, playerID, clientActionID string) string {
	return fmt.Sprintf("ludo:action:%s:%s:%s", matchID, playerID, clientActionID)
}

func buildRateKey(matchID, playerID string) string {
	return fmt.Sprintf("ludo:rate:%s:%s", matchID, playerID)
}
