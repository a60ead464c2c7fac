package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ludo-service/internal/model"
	"ludo-service/internal/service/game"
	appErr "ludo-service/pkg/errors"
	"ludo-service/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

func (s *Service) GetWallet(ctx context.Context, playerID string) (*model.Wallet, error) {
	var wallet model.Wallet
	err := s.db.WithContext(ctx).Where("player_id = ?", playerID).First(&wallet).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &model.Wallet{PlayerID: playerID}, nil
		}
		return nil, err
	}
	return &wallet, nil
}

// Available returns the spendable balance used for the wager check at join.
func (s *Service) Available(ctx context.Context, playerID string) (int64, error) {
	w, err := s.GetWallet(ctx, playerID)
	if err != nil {
		return 0, err
	}
	return w.BalanceAvailable, nil
}

// Adjust applies a manual delta and writes a billing log.
func (s *Service) Adjust(ctx context.Context, playerID string, delta int64, note string) (*model.Wallet, error) {
	var out model.Wallet
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		book := newWalletBook(tx)
		wallet, err := book.Ensure(playerID)
		if err != nil {
			return err
		}
		if wallet.BalanceAvailable+delta < 0 {
			return appErr.ErrInsufficientBalance
		}
		wallet.BalanceAvailable += delta
		wallet.BalanceTotal += delta
		if err := book.SaveAll(now); err != nil {
			return err
		}
		out = *wallet
		return tx.Create(&model.BillingLog{
			PlayerID:     playerID,
			Type:         "adjust",
			Delta:        delta,
			BalanceAfter: wallet.BalanceAvailable,
			MetaJSON:     mustJSON(map[string]interface{}{"note": note}),
			CreatedAt:    now,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// SettleMatch pays out a finished match. A second call for the same match
// is a no-op, so retries and duplicate GAME_END deliveries are safe.
func (s *Service) SettleMatch(ctx context.Context, st game.Settlement) error {
	if st.MatchID == "" || st.WinnerID == "" {
		return fmt.Errorf("%w: settlement needs match and winner", appErr.ErrInvalidAction)
	}
	now := time.Now()

	settled := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := model.Settlement{
			MatchID:   st.MatchID,
			WinnerID:  st.WinnerID,
			LoserID:   st.LoserID,
			Wager:     st.Wager,
			Reward:    st.Reward,
			Reason:    st.Reason,
			CreatedAt: now,
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}

		book := newWalletBook(tx)
		logs := make([]model.BillingLog, 0, 2)
		meta := mustJSON(map[string]interface{}{
			"matchId": st.MatchID,
			"reason":  st.Reason,
			"version": st.Final.Version,
		})

		winner, err := book.Ensure(st.WinnerID)
		if err != nil {
			return err
		}
		gain := st.Reward - st.Wager
		winner.BalanceAvailable += gain
		winner.BalanceTotal += gain
		winner.TotalWin += gain
		logs = append(logs, model.BillingLog{
			PlayerID:     st.WinnerID,
			Type:         "win",
			Delta:        gain,
			BalanceAfter: winner.BalanceAvailable,
			MatchID:      st.MatchID,
			MetaJSON:     meta,
			CreatedAt:    now,
		})

		if st.LoserID != "" && st.Wager > 0 {
			loser, err := book.Ensure(st.LoserID)
			if err != nil {
				return err
			}
			loser.BalanceAvailable -= st.Wager
			loser.BalanceTotal -= st.Wager
			loser.TotalConsume += st.Wager
			logs = append(logs, model.BillingLog{
				PlayerID:     st.LoserID,
				Type:         "lose",
				Delta:        -st.Wager,
				BalanceAfter: loser.BalanceAvailable,
				MatchID:      st.MatchID,
				MetaJSON:     meta,
				CreatedAt:    now,
			})
		}

		if err := book.SaveAll(now); err != nil {
			return err
		}
		if err := tx.Create(&logs).Error; err != nil {
			return err
		}
		settled = true
		return nil
	})
	if err != nil {
		return err
	}

	if settled {
		logger.Log.Info("match settled",
			zap.String("matchID", st.MatchID),
			zap.String("winnerID", st.WinnerID),
			zap.Int64("reward", st.Reward),
		)
	} else {
		logger.Log.Info("match already settled", zap.String("matchID", st.MatchID))
	}
	return nil
}

// walletBook loads each wallet once per transaction under a row lock.
type walletBook struct {
	tx      *gorm.DB
	wallets map[string]*model.Wallet
}

func newWalletBook(tx *gorm.DB) *walletBook {
	return &walletBook{tx: tx, wallets: make(map[string]*model.Wallet)}
}

func (b *walletBook) Ensure(playerID string) (*model.Wallet, error) {
	if w, ok := b.wallets[playerID]; ok {
		return w, nil
	}
	var w model.Wallet
	err := b.tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("player_id = ?", playerID).
		FirstOrCreate(&w, model.Wallet{PlayerID: playerID}).Error
	if err != nil {
		return nil, err
	}
	b.wallets[playerID] = &w
	return &w, nil
}

func (b *walletBook) SaveAll(now time.Time) error {
	for _, w := range b.wallets {
		w.UpdatedAt = now
		if err := b.tx.Save(w).Error; err != nil {
			return err
		}
	}
	return nil
}

func mustJSON(v interface{}) datatypes.JSON {
	raw, err := json.Marshal(v)
	if err != nil {
		return datatypes.JSON([]byte("{}"))
	}
	return datatypes.JSON(raw)
}
