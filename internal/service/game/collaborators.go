package game

//go:generate mockgen -source=collaborators.go -destination=mocks/mock_collaborators.go -package=mocks

import (
	"context"
	"time"

	"ludo-service/pkg/protocol"
	"ludo-service/pkg/utils/random"
)

// Publisher fans a committed frame out to every subscriber of the match.
// It is called with the match lock held and must not block.
type Publisher interface {
	Publish(frame protocol.Frame)
}

// DiceSource produces server-side rolls; client input never reaches it.
type DiceSource interface {
	Roll() (int, error)
}

// Settlement is handed to the wallet collaborator once per finished match.
type Settlement struct {
	MatchID  string
	WinnerID string
	LoserID  string
	Wager    int64
	Reward   int64
	Reason   string
	Final    protocol.Snapshot
}

// Settler must tolerate duplicate invocation for the same match.
type Settler interface {
	SettleMatch(ctx context.Context, s Settlement) error
}

type Notification struct {
	MatchID  string
	PlayerID string
	Kind     string
	Message  string
}

// Notifier is best effort; failures are logged and dropped.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// MatchRecorder persists match lifecycle snapshots (never action envelopes).
type MatchRecorder interface {
	RecordMatch(ctx context.Context, snap protocol.Snapshot) error
}

// HeartbeatObserver receives liveness acknowledgements. Forfeit countdowns
// live behind it so the state machine carries no disconnect policy.
type HeartbeatObserver interface {
	ObserveHeartbeat(matchID, playerID string, at time.Time)
}

type cryptoDice struct{}

func (cryptoDice) Roll() (int, error) {
	return random.Dice()
}

type nopPublisher struct{}

func (nopPublisher) Publish(protocol.Frame) {}

type nopHeartbeats struct{}

func (nopHeartbeats) ObserveHeartbeat(string, string, time.Time) {}
