package match

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"ludo-service/internal/service/game"
	appErr "ludo-service/pkg/errors"
	"ludo-service/pkg/logger"
	"ludo-service/pkg/protocol"
	netutil "ludo-service/pkg/utils/net"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Config struct {
	JoinLockTTL      time.Duration
	RoomCodeTTL      time.Duration
	WaitTimeout      time.Duration
	ResultRetention  time.Duration
	SweepInterval    time.Duration
	CheckSameNetwork bool
}

func DefaultConfig() Config {
	return Config{
		JoinLockTTL:      10 * time.Second,
		RoomCodeTTL:      2 * time.Hour,
		WaitTimeout:      10 * time.Minute,
		ResultRetention:  5 * time.Minute,
		SweepInterval:    30 * time.Second,
		CheckSameNetwork: true,
	}
}

// Service drives the match lifecycle around the state machine: room codes,
// seating checks, start, cancellation of matches that never began and
// eviction of finished ones.
type Service struct {
	rdb      *redis.Client
	engine   *game.Service
	balances BalanceChecker
	tiers    TierSource
	recorder *Recorder
	clock    clockwork.Clock
	cfg      Config

	startOnce sync.Once
}

func NewService(rdb *redis.Client, engine *game.Service, balances BalanceChecker, tiers TierSource, recorder *Recorder, cfg Config, clock clockwork.Clock) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{
		rdb:      rdb,
		engine:   engine,
		balances: balances,
		tiers:    tiers,
		recorder: recorder,
		clock:    clock,
		cfg:      cfg,
	}
}

// Create opens a match and seats its creator.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*protocol.Snapshot, error) {
	if strings.TrimSpace(req.PlayerID) == "" {
		return nil, appErr.ErrUnauthorized
	}
	if req.TierID != 0 {
		if s.tiers == nil {
			return nil, appErr.ErrStakeNotFound
		}
		tier, err := s.tiers.GetTier(ctx, req.TierID)
		if err != nil {
			return nil, err
		}
		req.Wager, req.Reward = tier.Wager, tier.Reward
	}
	if req.Wager < 0 || req.Reward < 0 {
		return nil, fmt.Errorf("%w: negative amount", appErr.ErrInvalidAction)
	}
	if err := s.checkBalance(ctx, req.PlayerID, req.Wager); err != nil {
		return nil, err
	}

	snap, err := s.engine.CreateMatch(ctx, game.CreateParams{Wager: req.Wager, Reward: req.Reward})
	if err != nil {
		return nil, err
	}
	if err := s.rdb.Set(ctx, buildRoomKey(snap.RoomCode), snap.MatchID, s.cfg.RoomCodeTTL).Err(); err != nil {
		logger.Log.Warn("room code index write failed", zap.String("matchID", snap.MatchID), zap.Error(err))
	}

	return s.seat(ctx, snap.MatchID, JoinRequest{
		PlayerID: req.PlayerID,
		Identity: req.Identity,
		RoomCode: snap.RoomCode,
		IP:       req.IP,
	})
}

// Join seats a player in the match behind a room code.
func (s *Service) Join(ctx context.Context, req JoinRequest) (*protocol.Snapshot, error) {
	if strings.TrimSpace(req.PlayerID) == "" {
		return nil, appErr.ErrUnauthorized
	}
	matchID, err := s.resolveRoom(ctx, req.RoomCode)
	if err != nil {
		return nil, err
	}
	return s.seat(ctx, matchID, req)
}

func (s *Service) seat(ctx context.Context, matchID string, req JoinRequest) (*protocol.Snapshot, error) {
	lockKey := buildJoinLockKey(req.PlayerID)
	gotLock, err := s.rdb.SetNX(ctx, lockKey, matchID, s.cfg.JoinLockTTL).Result()
	if err != nil {
		return nil, err
	}
	if !gotLock {
		return nil, appErr.ErrJoinInProgress
	}
	defer s.rdb.Del(ctx, lockKey)

	snap, err := s.engine.Snapshot(matchID)
	if err != nil {
		return nil, err
	}
	if err := s.checkBalance(ctx, req.PlayerID, snap.Wager); err != nil {
		return nil, err
	}
	if err := s.checkNetwork(ctx, matchID, req); err != nil {
		return nil, err
	}

	if _, err := s.engine.Join(ctx, matchID, game.PlayerInfo{ID: req.PlayerID, Identity: req.Identity}); err != nil {
		return nil, err
	}

	seat := seatRecord{PlayerID: req.PlayerID, IP: req.IP, JoinedAt: s.clock.Now()}
	if data, err := json.Marshal(seat); err == nil {
		seatsKey := buildSeatsKey(matchID)
		pipe := s.rdb.TxPipeline()
		pipe.HSet(ctx, seatsKey, req.PlayerID, data)
		pipe.Expire(ctx, seatsKey, s.cfg.RoomCodeTTL)
		if _, err := pipe.Exec(ctx); err != nil {
			logger.Log.Warn("seat record write failed", zap.String("matchID", matchID), zap.Error(err))
		}
	}

	logger.Log.Info("player seated",
		zap.String("matchID", matchID),
		zap.String("playerID", req.PlayerID),
		zap.String("ip", req.IP),
	)
	out, err := s.engine.Snapshot(matchID)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Start begins play once both seats are taken. Only a participant may start.
func (s *Service) Start(ctx context.Context, matchID, playerID string) (*protocol.ActionResult, error) {
	snap, err := s.engine.Snapshot(matchID)
	if err != nil {
		return nil, err
	}
	if snap.PlayerIndex(playerID) < 0 {
		return nil, appErr.ErrUnauthorized
	}
	return s.engine.Start(ctx, matchID)
}

// Cancel abandons a match that has not started yet.
func (s *Service) Cancel(ctx context.Context, matchID, playerID string) error {
	snap, err := s.engine.Snapshot(matchID)
	if err != nil {
		return err
	}
	if snap.PlayerIndex(playerID) < 0 {
		return appErr.ErrUnauthorized
	}
	return s.abandon(ctx, matchID, "player")
}

func (s *Service) abandon(ctx context.Context, matchID, reason string) error {
	snap, err := s.engine.Abandon(ctx, matchID)
	if err != nil {
		return err
	}
	s.cleanup(ctx, snap)
	if s.recorder != nil {
		if err := s.recorder.recordCancelled(ctx, snap); err != nil {
			logger.Log.Warn("cancelled match not recorded", zap.String("matchID", matchID), zap.Error(err))
		}
	}
	logger.Log.Info("match cancelled",
		zap.String("matchID", matchID),
		zap.String("reason", reason),
	)
	return nil
}

// StartSweeper launches the background sweep loop. It stops with ctx.
func (s *Service) StartSweeper(ctx context.Context) {
	s.startOnce.Do(func() {
		go s.runSweeper(ctx)
	})
}

func (s *Service) runSweeper(ctx context.Context) {
	ticker := s.clock.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			s.Sweep(ctx)
		}
	}
}

// Sweep cancels matches that waited too long for an opponent and evicts
// finished matches after their retention period.
func (s *Service) Sweep(ctx context.Context) {
	now := s.clock.Now()
	var stale, finished []protocol.Snapshot
	s.engine.Range(func(snap protocol.Snapshot) bool {
		switch snap.Status {
		case protocol.StatusIdle, protocol.StatusWaiting:
			if s.cfg.WaitTimeout > 0 && now.Sub(time.UnixMilli(snap.CreatedAt)) >= s.cfg.WaitTimeout {
				stale = append(stale, snap)
			}
		case protocol.StatusResult:
			if now.Sub(time.UnixMilli(snap.EndedAt)) >= s.cfg.ResultRetention {
				finished = append(finished, snap)
			}
		}
		return true
	})

	for _, snap := range stale {
		if err := s.abandon(ctx, snap.MatchID, "timeout"); err != nil && !errors.Is(err, appErr.ErrInvalidState) {
			logger.Log.Warn("stale match cancel failed", zap.String("matchID", snap.MatchID), zap.Error(err))
		}
	}
	for _, snap := range finished {
		s.engine.Evict(snap.MatchID)
		s.cleanup(ctx, snap)
		logger.Log.Debug("finished match evicted", zap.String("matchID", snap.MatchID))
	}
}

func (s *Service) resolveRoom(ctx context.Context, code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return "", appErr.ErrMatchNotFound
	}
	matchID, err := s.rdb.Get(ctx, buildRoomKey(code)).Result()
	if err == nil {
		return matchID, nil
	}
	if !errors.Is(err, redis.Nil) {
		return "", err
	}
	if id, ok := s.engine.FindByRoomCode(code); ok {
		return id, nil
	}
	return "", appErr.ErrMatchNotFound
}

func (s *Service) checkBalance(ctx context.Context, playerID string, wager int64) error {
	if wager <= 0 || s.balances == nil {
		return nil
	}
	available, err := s.balances.Available(ctx, playerID)
	if err != nil {
		return err
	}
	if available < wager {
		return appErr.ErrInsufficientBalance
	}
	return nil
}

// checkNetwork refuses to seat two players from the same /24.
func (s *Service) checkNetwork(ctx context.Context, matchID string, req JoinRequest) error {
	if !s.cfg.CheckSameNetwork || req.IP == "" {
		return nil
	}
	seats, err := s.rdb.HGetAll(ctx, buildSeatsKey(matchID)).Result()
	if err != nil {
		return err
	}
	for playerID, raw := range seats {
		if playerID == req.PlayerID {
			continue
		}
		var seat seatRecord
		if err := json.Unmarshal([]byte(raw), &seat); err != nil {
			continue
		}
		if netutil.SameNetwork(seat.IP, req.IP) {
			logger.Log.Warn("same network join refused",
				zap.String("matchID", matchID),
				zap.String("playerID", req.PlayerID),
				zap.String("seatedID", seat.PlayerID),
			)
			return appErr.ErrSameNetwork
		}
	}
	return nil
}

func (s *Service) cleanup(ctx context.Context, snap protocol.Snapshot) {
	s.rdb.Del(ctx, buildRoomKey(snap.RoomCode), buildSeatsKey(snap.MatchID))
}

func buildRoomKey(code string) string {
	return fmt.Sprintf("match:room:%s", strings.ToUpper(code))
}

func buildSeatsKey(matchID string) string {
	return fmt.Sprintf("match:seats:%s", matchID)
}

func buildJoinLockKey(playerID string) string {
	return fmt.Sprintf("match:join:lock:%s", playerID)
}
