package game

import (
	"context"
	"errors"
	"sync"
	"time"

	appErr "ludo-service/pkg/errors"
	"ludo-service/pkg/logger"
	"ludo-service/pkg/protocol"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const reasonDisconnect = "disconnect"

// Forfeiter ends a match in the opponent's favour.
type Forfeiter interface {
	Forfeit(ctx context.Context, matchID, playerID, reason string) (*protocol.ActionResult, error)
}

// CountdownForfeit is a disconnect policy: a player that sends no heartbeat
// for Grace forfeits the match. Heartbeats are the authority; an open
// subscription only restarts the countdown once, it does not hold it off.
type CountdownForfeit struct {
	grace time.Duration
	clock clockwork.Clock

	mu        sync.Mutex
	forfeiter Forfeiter
	timers    map[countdownKey]clockwork.Timer
}

type countdownKey struct {
	matchID  string
	playerID string
}

func NewCountdownForfeit(grace time.Duration, clock clockwork.Clock) *CountdownForfeit {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &CountdownForfeit{
		grace:  grace,
		clock:  clock,
		timers: make(map[countdownKey]clockwork.Timer),
	}
}

// Attach sets the target of expired countdowns. The game service and the
// policy reference each other, so this is wired after both exist.
func (p *CountdownForfeit) Attach(f Forfeiter) {
	p.mu.Lock()
	p.forfeiter = f
	p.mu.Unlock()
}

func (p *CountdownForfeit) ObserveHeartbeat(matchID, playerID string, _ time.Time) {
	p.arm(matchID, playerID)
}

// PlayerOnline is called by the presence layer when a subscription opens.
func (p *CountdownForfeit) PlayerOnline(matchID, playerID string) {
	p.arm(matchID, playerID)
}

// PlayerOffline starts a countdown if none is running.
func (p *CountdownForfeit) PlayerOffline(matchID, playerID string) {
	key := countdownKey{matchID, playerID}
	p.mu.Lock()
	_, running := p.timers[key]
	p.mu.Unlock()
	if !running {
		p.arm(matchID, playerID)
	}
}

// Pending reports whether a countdown is running for the player.
func (p *CountdownForfeit) Pending(matchID, playerID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.timers[countdownKey{matchID, playerID}]
	return ok
}

// Clear cancels every countdown of a match.
func (p *CountdownForfeit) Clear(matchID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for key, t := range p.timers {
		if key.matchID == matchID {
			t.Stop()
			delete(p.timers, key)
		}
	}
}

func (p *CountdownForfeit) arm(matchID, playerID string) {
	if p.grace <= 0 {
		return
	}
	key := countdownKey{matchID, playerID}

	p.mu.Lock()
	defer p.mu.Unlock()
	if t, ok := p.timers[key]; ok {
		t.Stop()
	}
	var timer clockwork.Timer
	timer = p.clock.AfterFunc(p.grace, func() {
		p.mu.Lock()
		if p.timers[key] != timer {
			p.mu.Unlock()
			return
		}
		delete(p.timers, key)
		f := p.forfeiter
		p.mu.Unlock()
		p.expire(f, key)
	})
	p.timers[key] = timer
}

func (p *CountdownForfeit) expire(f Forfeiter, key countdownKey) {
	if f == nil {
		return
	}
	_, err := f.Forfeit(context.Background(), key.matchID, key.playerID, reasonDisconnect)
	switch {
	case err == nil:
		logger.Log.Info("disconnect countdown expired",
			zap.String("matchID", key.matchID),
			zap.String("playerID", key.playerID),
			zap.Duration("grace", p.grace),
		)
		p.Clear(key.matchID)
	case errors.Is(err, appErr.ErrInvalidState), errors.Is(err, appErr.ErrMatchNotFound):
		// match not playing; nothing to forfeit
	default:
		logger.Log.Warn("disconnect forfeit failed",
			zap.String("matchID", key.matchID),
			zap.String("playerID", key.playerID),
			zap.Error(err),
		)
	}
}
