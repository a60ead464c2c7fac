package reconcile

import (
	"errors"
	"sort"
	"time"

	appErr "ludo-service/pkg/errors"
	"ludo-service/pkg/protocol"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// ErrInputDisabled is returned by Begin while the action cannot be taken:
// not our turn, the same action already in flight, or an animation lock.
var ErrInputDisabled = errors.New("input disabled")

const DefaultMinAnim = 600 * time.Millisecond

type Options struct {
	PlayerID string
	MatchID  string
	MinAnim  time.Duration
	Clock    clockwork.Clock
	Logger   *zap.Logger

	// OnResync is called when a frame gap is detected.
	OnResync func()
	// OnTransportFailure hands connectivity errors to the supervisor.
	OnTransportFailure func(error)
	// OnHold is called when a broadcast frame confirms a prediction before
	// its animation has run. Settle must be called again after d.
	OnHold func(actionID string, d time.Duration)
	// OnError surfaces a rejected action to the player once its rollback
	// animation has finished.
	OnError func(error)
}

// Prediction is one optimistic action. It never writes the replica.
type Prediction struct {
	ActionID    string
	Kind        protocol.ActionKind
	TokenID     int
	StartedAt   time.Time
	BaseVersion int64
	Confirmed   *protocol.ActionResult
	// ConfirmedVersion is the version of the broadcast frame carrying this
	// action, or 0 while only the response has been seen.
	ConfirmedVersion int64
	Err              error

	base protocol.Snapshot
}

// Settled reports whether the server has answered.
func (p Prediction) Settled() bool {
	return p.Confirmed != nil || p.Err != nil
}

// View is what the client renders: authoritative state plus the overlay.
// While Held is set the UI keeps showing it until HoldUntil, so a confirmed
// dice value or token position lands when its animation ends.
type View struct {
	Snapshot  protocol.Snapshot
	Pending   []Prediction
	Held      *protocol.Snapshot
	HoldUntil time.Time
	Locked    bool
	Synced    bool
}

// Engine is not safe for concurrent use; the session drives it from one
// goroutine.
type Engine struct {
	opts    Options
	replica *Replica
	overlay map[string]*Prediction
	skew    time.Duration
}

func New(opts Options) *Engine {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.MinAnim < 0 {
		opts.MinAnim = 0
	}
	return &Engine{
		opts:    opts,
		replica: NewReplica(),
		overlay: make(map[string]*Prediction),
	}
}

func (e *Engine) Replica() *Replica { return e.replica }

// InputEnabled reports whether the local player may start kind now.
func (e *Engine) InputEnabled(kind protocol.ActionKind) bool {
	if !kind.Mutating() {
		return true
	}
	if !e.replica.Synced() {
		return false
	}
	snap := e.replica.snap
	current, ok := snap.CurrentPlayer()
	if !ok || current.ID != e.opts.PlayerID {
		return false
	}
	if e.locked() {
		return false
	}
	for _, p := range e.overlay {
		if p.Kind == kind || p.ConfirmedVersion > 0 {
			return false
		}
	}
	switch kind {
	case protocol.ActionRollDice:
		return snap.DiceValue == 0
	case protocol.ActionMoveToken:
		return snap.DiceValue != 0 && len(snap.LegalTokens) > 0
	}
	return false
}

// Begin starts an optimistic action and returns the envelope to submit.
// A move is pre-checked against the legal tokens the server sent with the
// roll; the server still decides.
func (e *Engine) Begin(kind protocol.ActionKind, tokenID *int) (protocol.ActionEnvelope, error) {
	if !e.InputEnabled(kind) {
		return protocol.ActionEnvelope{}, ErrInputDisabled
	}
	token := -1
	if kind == protocol.ActionMoveToken {
		if tokenID == nil || !e.replica.snap.IsLegalToken(*tokenID) {
			return protocol.ActionEnvelope{}, appErr.ErrInvalidToken
		}
		token = *tokenID
	}

	now := e.opts.Clock.Now()
	env := protocol.ActionEnvelope{
		Kind:            kind,
		MatchID:         e.matchID(),
		PlayerID:        e.opts.PlayerID,
		TokenID:         tokenID,
		ClientActionID:  uuid.NewString(),
		ClientTimestamp: now.UnixMilli(),
	}
	if kind.Mutating() {
		e.overlay[env.ClientActionID] = &Prediction{
			ActionID:    env.ClientActionID,
			Kind:        kind,
			TokenID:     token,
			StartedAt:   now,
			BaseVersion: e.replica.Version(),
			base:        e.replica.Snapshot(),
		}
	}
	return env, nil
}

// Succeed records the server's answer and returns how long the animation
// must still run before Settle.
func (e *Engine) Succeed(actionID string, result *protocol.ActionResult) time.Duration {
	if result != nil && result.ServerTime > 0 {
		e.skew = time.UnixMilli(result.ServerTime).Sub(e.opts.Clock.Now())
	}
	p, ok := e.overlay[actionID]
	if !ok {
		return 0
	}
	p.Confirmed = result
	return e.remaining(p)
}

// Fail records a rejection or transport failure and returns the delay
// before the rollback is shown.
func (e *Engine) Fail(actionID string, err error) time.Duration {
	if appErr.IsTransport(err) && e.opts.OnTransportFailure != nil {
		e.opts.OnTransportFailure(err)
	}
	if errors.Is(err, appErr.ErrVersionConflict) {
		e.resync()
	}
	p, ok := e.overlay[actionID]
	if !ok {
		return 0
	}
	if p.ConfirmedVersion > 0 {
		// the broadcast already proved the action applied
		return e.remaining(p)
	}
	p.Err = err
	return e.remaining(p)
}

// Settle ends a prediction whose server answer is in and whose animation
// has run long enough.
func (e *Engine) Settle(actionID string) {
	p, ok := e.overlay[actionID]
	if !ok || !p.Settled() {
		return
	}
	if e.remaining(p) > 0 {
		return
	}
	e.drop(p)
}

// ApplyFrame feeds a broadcast frame to the replica. A frame carrying one
// of our own predicted actions confirms it and the prediction is held for
// the rest of its animation. Any other prediction made against an older
// version is discarded once a newer frame lands.
func (e *Engine) ApplyFrame(f protocol.Frame) protocol.Disposition {
	d := e.replica.Apply(f)
	switch d {
	case protocol.FrameApply:
		e.confirm(f)
		e.discardBefore(e.replica.Version())
	case protocol.FrameReplace:
		e.discardBefore(e.replica.Version())
	case protocol.FrameGap:
		e.opts.Logger.Debug("frame gap",
			zap.Int64("have", e.replica.Version()),
			zap.Int64("got", f.Version),
		)
		e.resync()
	}
	return d
}

// ApplySnapshot installs a request_sync result.
func (e *Engine) ApplySnapshot(snap protocol.Snapshot) bool {
	if !e.replica.Reset(snap) {
		return false
	}
	e.discardBefore(e.replica.Version())
	return true
}

func (e *Engine) View() View {
	pending := make([]Prediction, 0, len(e.overlay))
	for _, p := range e.overlay {
		pending = append(pending, *p)
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].StartedAt.Before(pending[j].StartedAt)
	})
	v := View{
		Snapshot: e.replica.Snapshot(),
		Pending:  pending,
		Locked:   e.locked(),
		Synced:   e.replica.Synced(),
	}
	for i := range pending {
		p := &pending[i]
		if p.ConfirmedVersion == 0 || e.remaining(p) == 0 {
			continue
		}
		held := p.base.Clone()
		v.Held = &held
		v.HoldUntil = p.StartedAt.Add(e.opts.MinAnim)
		break
	}
	return v
}

func (e *Engine) confirm(f protocol.Frame) {
	for _, p := range e.overlay {
		if p.ConfirmedVersion > 0 || p.BaseVersion+1 != f.Version || !e.carries(f, p) {
			continue
		}
		p.ConfirmedVersion = f.Version
		p.Err = nil
		if p.Confirmed == nil {
			frame := f
			p.Confirmed = &protocol.ActionResult{Kind: p.Kind, MatchID: f.MatchID, Version: f.Version, Frame: &frame}
		}
		left := e.remaining(p)
		if left == 0 {
			e.drop(p)
			continue
		}
		if e.opts.OnHold != nil {
			e.opts.OnHold(p.ActionID, left)
		}
	}
}

// carries reports whether f holds the local player's event for p.
func (e *Engine) carries(f protocol.Frame, p *Prediction) bool {
	for _, ev := range f.Events {
		switch pl := ev.Payload.(type) {
		case protocol.DiceRoll:
			if p.Kind == protocol.ActionRollDice && pl.PlayerID == e.opts.PlayerID {
				return true
			}
		case protocol.TokenMove:
			if p.Kind == protocol.ActionMoveToken && pl.PlayerID == e.opts.PlayerID && pl.TokenID == p.TokenID {
				return true
			}
		}
	}
	return false
}

func (e *Engine) discardBefore(version int64) {
	for _, p := range e.overlay {
		if p.BaseVersion < version && p.ConfirmedVersion != version {
			e.drop(p)
		}
	}
}

func (e *Engine) drop(p *Prediction) {
	delete(e.overlay, p.ActionID)
	if p.Err == nil || errors.Is(p.Err, appErr.ErrVersionConflict) {
		return
	}
	if e.opts.OnError != nil {
		e.opts.OnError(p.Err)
	}
}

func (e *Engine) remaining(p *Prediction) time.Duration {
	left := e.opts.MinAnim - e.opts.Clock.Since(p.StartedAt)
	if left < 0 {
		return 0
	}
	return left
}

func (e *Engine) locked() bool {
	until := e.replica.snap.LockUntil
	if until == 0 {
		return false
	}
	serverNow := e.opts.Clock.Now().Add(e.skew)
	return serverNow.Before(time.UnixMilli(until))
}

func (e *Engine) resync() {
	if e.opts.OnResync != nil {
		e.opts.OnResync()
	}
}

func (e *Engine) matchID() string {
	if e.opts.MatchID != "" {
		return e.opts.MatchID
	}
	return e.replica.snap.MatchID
}
