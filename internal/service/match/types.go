package match

import (
	"context"
	"time"

	"ludo-service/internal/model"
)

// CreateRequest opens a match either at a stake tier or at explicit amounts.
// A non-zero TierID wins over Wager and Reward.
type CreateRequest struct {
	PlayerID string
	Identity string
	TierID   int64
	Wager    int64
	Reward   int64
	IP       string
}

type JoinRequest struct {
	PlayerID string
	Identity string
	RoomCode string
	IP       string
}

// BalanceChecker reports a player's spendable balance.
type BalanceChecker interface {
	Available(ctx context.Context, playerID string) (int64, error)
}

// TierSource resolves an enabled stake tier.
type TierSource interface {
	GetTier(ctx context.Context, id int64) (*model.StakeTier, error)
}

type seatRecord struct {
	PlayerID string    `json:"playerId"`
	IP       string    `json:"ip"`
	JoinedAt time.Time `json:"joinedAt"`
}
