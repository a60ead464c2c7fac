package game

import (
	"context"
	"strings"
	"sync"
	"time"

	appErr "ludo-service/pkg/errors"
	"ludo-service/pkg/logger"
	"ludo-service/pkg/protocol"
	"ludo-service/pkg/utils/random"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const (
	roomCodeLength    = 6
	collaboratorLimit = 10 * time.Second
)

type Config struct {
	// MinActionInterval is the per-player floor between accepted roll/move actions.
	MinActionInterval time.Duration
	// RollLock and CaptureLock attach an ANIMATION_LOCK deadline to the frame.
	RollLock    time.Duration
	CaptureLock time.Duration
}

func DefaultConfig() Config {
	return Config{
		MinActionInterval: 300 * time.Millisecond,
		RollLock:          0,
		CaptureLock:       800 * time.Millisecond,
	}
}

type Option func(*Service)

func WithClock(c clockwork.Clock) Option {
	return func(s *Service) { s.clock = c }
}

func WithDice(d DiceSource) Option {
	return func(s *Service) { s.dice = d }
}

// WithPublisher routes committed frames to the broadcast layer.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithSettler(st Settler) Option {
	return func(s *Service) { s.settler = st }
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func WithRecorder(r MatchRecorder) Option {
	return func(s *Service) { s.recorder = r }
}

func WithHeartbeats(h HeartbeatObserver) Option {
	return func(s *Service) { s.heartbeats = h }
}

// Service is the authoritative match state machine. Matches live in an arena
// keyed by id; each one is serialized by its own runtime lock.
type Service struct {
	cfg        Config
	clock      clockwork.Clock
	dice       DiceSource
	publisher  Publisher
	settler    Settler
	notifier   Notifier
	recorder   MatchRecorder
	heartbeats HeartbeatObserver

	runtimes sync.Map // matchID -> *matchRuntime
	pending  sync.WaitGroup
}

func NewService(cfg Config, opts ...Option) *Service {
	s := &Service{
		cfg:        cfg,
		clock:      clockwork.NewRealClock(),
		dice:       cryptoDice{},
		publisher:  nopPublisher{},
		heartbeats: nopHeartbeats{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type CreateParams struct {
	MatchID  string
	RoomCode string
	Wager    int64
	Reward   int64
}

type PlayerInfo struct {
	ID       string
	Identity string
}

// CreateMatch registers an idle match in the arena.
func (s *Service) CreateMatch(ctx context.Context, params CreateParams) (*protocol.Snapshot, error) {
	matchID := strings.TrimSpace(params.MatchID)
	if matchID == "" {
		matchID = uuid.NewString()
	}
	roomCode := params.RoomCode
	if roomCode == "" {
		roomCode = random.Code(roomCodeLength)
	}
	snap := protocol.Snapshot{
		MatchID:     matchID,
		RoomCode:    roomCode,
		Status:      protocol.StatusIdle,
		Players:     []protocol.Player{},
		LegalTokens: []int{},
		Wager:       params.Wager,
		Reward:      params.Reward,
		CreatedAt:   s.clock.Now().UnixMilli(),
	}
	rt := newMatchRuntime(snap)
	if _, loaded := s.runtimes.LoadOrStore(matchID, rt); loaded {
		return nil, appErr.ErrInvalidState
	}
	s.record(ctx, snap)

	logger.Log.Info("match created",
		zap.String("matchID", matchID),
		zap.String("roomCode", roomCode),
		zap.Int64("wager", params.Wager),
	)
	out := snap.Clone()
	return &out, nil
}

// Join seats a player. The first join opens the match (idle -> waiting).
func (s *Service) Join(ctx context.Context, matchID string, player PlayerInfo) (*protocol.ActionResult, error) {
	if strings.TrimSpace(player.ID) == "" {
		return nil, appErr.ErrUnauthorized
	}
	rt, err := s.runtime(matchID)
	if err != nil {
		return nil, err
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if rt.snap.Status != protocol.StatusIdle && rt.snap.Status != protocol.StatusWaiting {
		return nil, appErr.ErrInvalidState
	}
	if rt.snap.PlayerIndex(player.ID) >= 0 {
		return nil, appErr.ErrAlreadyJoined
	}
	if len(rt.snap.Players) >= protocol.PlayersPerMatch {
		return nil, appErr.ErrMatchFull
	}

	next := rt.snap.Clone()
	identity := player.Identity
	if identity == "" {
		identity = player.ID
	}
	next.Players = append(next.Players, protocol.NewPlayer(player.ID, identity, seatColors[len(next.Players)]))
	if next.Status == protocol.StatusIdle {
		next.Status = protocol.StatusWaiting
	}
	frame, err := rt.commitSnapshotLocked(next)
	if err != nil {
		return nil, err
	}
	s.publisher.Publish(frame)
	s.record(ctx, rt.snap)

	logger.Log.Info("player joined match",
		zap.String("matchID", matchID),
		zap.String("playerID", player.ID),
		zap.Int("seat", len(rt.snap.Players)-1),
	)
	return s.resultLocked(rt, protocol.ActionRequestSync, &frame), nil
}

// Start moves a full match from waiting to playing; seat 0 opens.
func (s *Service) Start(ctx context.Context, matchID string) (*protocol.ActionResult, error) {
	rt, err := s.runtime(matchID)
	if err != nil {
		return nil, err
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if rt.snap.Status != protocol.StatusWaiting || len(rt.snap.Players) != protocol.PlayersPerMatch {
		return nil, appErr.ErrInvalidState
	}
	next := rt.snap.Clone()
	next.Status = protocol.StatusPlaying
	next.CurrentTurnIndex = 0
	next.DiceValue = 0
	next.LegalTokens = []int{}
	frame, err := rt.commitSnapshotLocked(next)
	if err != nil {
		return nil, err
	}
	s.publisher.Publish(frame)
	s.record(ctx, rt.snap)

	logger.Log.Info("match started", zap.String("matchID", matchID), zap.Int64("version", frame.Version))
	return s.resultLocked(rt, protocol.ActionRequestSync, &frame), nil
}

func (s *Service) RollDice(ctx context.Context, matchID, playerID string) (*protocol.ActionResult, error) {
	rt, err := s.runtime(matchID)
	if err != nil {
		return nil, err
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()

	now := s.clock.Now()
	idx, err := rt.checkTurnLocked(playerID, now, s.cfg.MinActionInterval)
	if err != nil {
		return nil, err
	}
	if rt.snap.DiceValue != 0 {
		return nil, appErr.ErrRollInProgress
	}
	value, err := s.dice.Roll()
	if err != nil {
		return nil, err
	}
	if value < 1 || value > 6 {
		return nil, appErr.ErrInvalidAction
	}

	events := rt.rollEventsLocked(idx, value)
	if s.cfg.RollLock > 0 {
		events = append(events, lockEvent(now, s.cfg.RollLock, "roll"))
	}
	frame := rt.commitLocked(events)
	rt.lastAction[playerID] = now
	s.publisher.Publish(frame)

	logger.Log.Debug("dice rolled",
		zap.String("matchID", matchID),
		zap.String("playerID", playerID),
		zap.Int("value", value),
		zap.Int64("version", frame.Version),
	)
	return s.resultLocked(rt, protocol.ActionRollDice, &frame), nil
}

func (s *Service) MoveToken(ctx context.Context, matchID, playerID string, tokenID int) (*protocol.ActionResult, error) {
	rt, err := s.runtime(matchID)
	if err != nil {
		return nil, err
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()

	now := s.clock.Now()
	idx, err := rt.checkTurnLocked(playerID, now, s.cfg.MinActionInterval)
	if err != nil {
		return nil, err
	}
	if rt.snap.DiceValue == 0 || !rt.snap.IsLegalToken(tokenID) {
		return nil, appErr.ErrInvalidToken
	}

	out := rt.moveEventsLocked(idx, tokenID)
	events := out.events
	if out.captured && s.cfg.CaptureLock > 0 {
		events = append(events, lockEvent(now, s.cfg.CaptureLock, "capture"))
	}
	if out.finished {
		events = append(events, rt.gameEndEventLocked(events, idx, reasonAllHome, now))
	}
	frame := rt.commitLocked(events)
	rt.lastAction[playerID] = now
	s.publisher.Publish(frame)

	logger.Log.Debug("token moved",
		zap.String("matchID", matchID),
		zap.String("playerID", playerID),
		zap.Int("tokenID", tokenID),
		zap.Bool("captured", out.captured),
		zap.Int64("version", frame.Version),
	)
	if out.finished {
		s.finishLocked(ctx, rt, reasonAllHome)
	}
	return s.resultLocked(rt, protocol.ActionMoveToken, &frame), nil
}

// RequestSync returns the full snapshot. It never mutates state.
func (s *Service) RequestSync(ctx context.Context, matchID, playerID string) (*protocol.ActionResult, error) {
	rt, err := s.runtime(matchID)
	if err != nil {
		return nil, err
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if _, err := rt.participantLocked(playerID); err != nil {
		return nil, err
	}
	return s.resultLocked(rt, protocol.ActionRequestSync, nil), nil
}

// Heartbeat acknowledges liveness without touching match state.
func (s *Service) Heartbeat(ctx context.Context, matchID, playerID string) (*protocol.ActionResult, error) {
	rt, err := s.runtime(matchID)
	if err != nil {
		return nil, err
	}
	rt.mu.Lock()
	if _, err := rt.participantLocked(playerID); err != nil {
		rt.mu.Unlock()
		return nil, err
	}
	result := &protocol.ActionResult{
		Kind:       protocol.ActionHeartbeat,
		MatchID:    matchID,
		Version:    rt.snap.Version,
		ServerTime: s.clock.Now().UnixMilli(),
	}
	rt.mu.Unlock()

	s.heartbeats.ObserveHeartbeat(matchID, playerID, s.clock.Now())
	return result, nil
}

// Forfeit ends a playing match in the opponent's favour. Disconnect policies
// call it; the state machine itself never decides to forfeit.
func (s *Service) Forfeit(ctx context.Context, matchID, playerID, reason string) (*protocol.ActionResult, error) {
	rt, err := s.runtime(matchID)
	if err != nil {
		return nil, err
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()

	idx, err := rt.participantLocked(playerID)
	if err != nil {
		return nil, err
	}
	if rt.snap.Status != protocol.StatusPlaying {
		return nil, appErr.ErrInvalidState
	}
	if reason == "" {
		reason = "forfeit"
	}
	winner := rt.nextTurnLocked(idx)
	frame := rt.commitLocked([]protocol.Event{rt.gameEndEventLocked(nil, winner, reason, s.clock.Now())})
	s.publisher.Publish(frame)

	logger.Log.Info("match forfeited",
		zap.String("matchID", matchID),
		zap.String("playerID", playerID),
		zap.String("reason", reason),
	)
	s.finishLocked(ctx, rt, reason)
	return s.resultLocked(rt, protocol.ActionRequestSync, &frame), nil
}

// Snapshot returns a copy of the canonical state.
func (s *Service) Snapshot(matchID string) (protocol.Snapshot, error) {
	rt, err := s.runtime(matchID)
	if err != nil {
		return protocol.Snapshot{}, err
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.snap.Clone(), nil
}

// FindByRoomCode resolves a room code among live matches.
func (s *Service) FindByRoomCode(code string) (string, bool) {
	var found string
	s.runtimes.Range(func(key, value any) bool {
		rt := value.(*matchRuntime)
		rt.mu.Lock()
		match := strings.EqualFold(rt.snap.RoomCode, code)
		rt.mu.Unlock()
		if match {
			found = key.(string)
			return false
		}
		return true
	})
	return found, found != ""
}

// Abandon removes a match that never started. Matches in play or finished
// cannot be abandoned.
func (s *Service) Abandon(ctx context.Context, matchID string) (protocol.Snapshot, error) {
	rt, err := s.runtime(matchID)
	if err != nil {
		return protocol.Snapshot{}, err
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if rt.snap.Status != protocol.StatusIdle && rt.snap.Status != protocol.StatusWaiting {
		return protocol.Snapshot{}, appErr.ErrInvalidState
	}
	s.runtimes.Delete(matchID)
	logger.Log.Info("match abandoned", zap.String("matchID", matchID), zap.Int("players", len(rt.snap.Players)))
	return rt.snap.Clone(), nil
}

// Range calls fn with a copy of every live match until fn returns false.
func (s *Service) Range(fn func(snap protocol.Snapshot) bool) {
	s.runtimes.Range(func(_, value any) bool {
		rt := value.(*matchRuntime)
		rt.mu.Lock()
		snap := rt.snap.Clone()
		rt.mu.Unlock()
		return fn(snap)
	})
}

// Evict drops a finished match from the arena.
func (s *Service) Evict(matchID string) {
	s.runtimes.Delete(matchID)
}

// Wait blocks until end-of-match collaborator calls have returned.
func (s *Service) Wait() {
	s.pending.Wait()
}

func (s *Service) runtime(matchID string) (*matchRuntime, error) {
	if v, ok := s.runtimes.Load(matchID); ok {
		return v.(*matchRuntime), nil
	}
	return nil, appErr.ErrMatchNotFound
}

func (s *Service) resultLocked(rt *matchRuntime, kind protocol.ActionKind, frame *protocol.Frame) *protocol.ActionResult {
	result := &protocol.ActionResult{
		Kind:       kind,
		MatchID:    rt.snap.MatchID,
		Version:    rt.snap.Version,
		Frame:      frame,
		ServerTime: s.clock.Now().UnixMilli(),
	}
	if frame == nil {
		snap := rt.snap.Clone()
		result.Snapshot = &snap
	}
	return result
}

// finishLocked hands the final state to collaborators exactly once.
func (s *Service) finishLocked(ctx context.Context, rt *matchRuntime, reason string) {
	final := rt.snap.Clone()
	rt.finishOnce.Do(func() {
		s.pending.Add(1)
		go func() {
			defer s.pending.Done()
			s.onFinish(context.WithoutCancel(ctx), final, reason)
		}()
	})
}

func (s *Service) onFinish(ctx context.Context, final protocol.Snapshot, reason string) {
	ctx, cancel := context.WithTimeout(ctx, collaboratorLimit)
	defer cancel()

	s.record(ctx, final)

	winnerIdx := final.PlayerIndex(final.WinnerID)
	loserID := ""
	if winnerIdx >= 0 && len(final.Players) == protocol.PlayersPerMatch {
		loserID = final.Players[(winnerIdx+1)%len(final.Players)].ID
	}

	if s.settler != nil {
		err := s.settler.SettleMatch(ctx, Settlement{
			MatchID:  final.MatchID,
			WinnerID: final.WinnerID,
			LoserID:  loserID,
			Wager:    final.Wager,
			Reward:   final.Reward,
			Reason:   reason,
			Final:    final,
		})
		if err != nil {
			logger.Log.Error("match settlement failed",
				zap.String("matchID", final.MatchID),
				zap.String("winnerID", final.WinnerID),
				zap.Error(err),
			)
		}
	}

	if s.notifier != nil {
		for _, p := range final.Players {
			kind := "match_lost"
			if p.ID == final.WinnerID {
				kind = "match_won"
			}
			if err := s.notifier.Notify(ctx, Notification{
				MatchID:  final.MatchID,
				PlayerID: p.ID,
				Kind:     kind,
				Message:  reason,
			}); err != nil {
				logger.Log.Warn("notification dropped", zap.String("matchID", final.MatchID), zap.Error(err))
			}
		}
	}
}

func (s *Service) record(ctx context.Context, snap protocol.Snapshot) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.RecordMatch(ctx, snap.Clone()); err != nil {
		logger.Log.Warn("match record failed",
			zap.String("matchID", snap.MatchID),
			zap.String("status", string(snap.Status)),
			zap.Error(err),
		)
	}
}
