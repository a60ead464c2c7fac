package model

import (
	"time"

	"gorm.io/datatypes"
)

// Wallet & Billing

type Wallet struct {
	PlayerID         string `gorm:"primaryKey;size:64"`
	BalanceTotal     int64
	BalanceAvailable int64
	BalanceFrozen    int64
	TotalWin         int64
	TotalConsume     int64
	UpdatedAt        time.Time
}

type BillingLog struct {
	ID           int64  `gorm:"primaryKey;autoIncrement"`
	PlayerID     string `gorm:"size:64;index"`
	Type         string // win/lose/adjust
	Delta        int64
	BalanceAfter int64
	MatchID      string `gorm:"size:64;index"`
	MetaJSON     datatypes.JSON
	CreatedAt    time.Time
}

// Stake tiers

type StakeTier struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	Name      string `gorm:"size:64"`
	Wager     int64
	Reward    int64
	Sort      int
	Status    string `gorm:"size:16;default:enabled"` // enabled/disabled
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Match history

type MatchRecord struct {
	ID          string `gorm:"primaryKey;size:64"`
	RoomCode    string `gorm:"size:16;index"`
	Status      string `gorm:"size:16"` // idle/waiting/playing/result
	Version     int64
	Wager       int64
	Reward      int64
	WinnerID    string `gorm:"size:64"`
	PlayersJSON datatypes.JSON
	ResultJSON  datatypes.JSON
	CreatedAt   time.Time
	UpdatedAt   time.Time
	EndedAt     *time.Time
}

// Settlement marks a match as paid out. One row per match.
type Settlement struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	MatchID   string `gorm:"size:64;uniqueIndex"`
	WinnerID  string `gorm:"size:64"`
	LoserID   string `gorm:"size:64"`
	Wager     int64
	Reward    int64
	Reason    string `gorm:"size:32"`
	CreatedAt time.Time
}

func All() []interface{} {
	return []interface{}{
		&Wallet{},
		&BillingLog{},
		&MatchRecord{},
		&Settlement{},
		&StakeTier{},
	}
}
