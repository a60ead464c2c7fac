package supervisor

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

type Status string

const (
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
	StatusReconnecting Status = "reconnecting"
)

// Phase is the state of the reconnection machine.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseBackingOff Phase = "backing_off"
	PhaseAttempting Phase = "attempting"
)

var (
	ErrHeartbeatMissed = errors.New("heartbeat missed")
	ErrIdleSweep       = errors.New("transport degraded")
	ErrBackgrounded    = errors.New("resumed after long background")
)

// Health is the connection state of one client in one match.
type Health struct {
	Status           Status
	Phase            Phase
	MissedHeartbeats int
	LastResponse     time.Time
	Attempt          int
	NextAttempt      time.Time
	Terminal         bool
	LastErr          error
}

// Transport is the client connection the supervisor keeps alive.
type Transport interface {
	Heartbeat(ctx context.Context) error
	// Reconnect re-establishes the channel and resubscribes to the match.
	Reconnect(ctx context.Context) error
	// Resync fetches the authoritative snapshot into the replica.
	Resync(ctx context.Context) error
	Healthy() bool
}

type Config struct {
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
	MissThreshold     int
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	Jitter            time.Duration
	MaxAttempts       int
	AttemptTimeout    time.Duration
	// ShortBackground is the longest background period that only needs a
	// resync on return.
	ShortBackground time.Duration
	SweepInterval   time.Duration
}

func DefaultConfig() Config {
	return Config{
		HeartbeatInterval: 5 * time.Second,
		HeartbeatTimeout:  3 * time.Second,
		MissThreshold:     2,
		BaseDelay:         time.Second,
		MaxDelay:          30 * time.Second,
		Jitter:            500 * time.Millisecond,
		MaxAttempts:       8,
		AttemptTimeout:    10 * time.Second,
		ShortBackground:   30 * time.Second,
		SweepInterval:     30 * time.Second,
	}
}

type Options struct {
	Clock  clockwork.Clock
	Logger *zap.Logger
	// Jitter returns a random extra delay in [0, max). Defaults to math/rand.
	Jitter func(max time.Duration) time.Duration
	// OnStatus observes every health change. It is called without locks held.
	OnStatus func(Health)
}

// Supervisor watches heartbeats and drives reconnection with exponential
// backoff. Reconnection is a single-timer state machine: idle, backing off,
// attempting. Any transition bumps the epoch so callbacks from a superseded
// timer are dropped.
type Supervisor struct {
	transport Transport
	cfg       Config
	clock     clockwork.Clock
	log       *zap.Logger
	jitter    func(time.Duration) time.Duration
	onStatus  func(Health)

	mu           sync.Mutex
	health       Health
	epoch        uint64
	timer        clockwork.Timer
	beat         clockwork.Timer
	sweep        clockwork.Timer
	playing      bool
	background   bool
	backgroundAt time.Time
	started      bool
	stopped      bool
	ctx          context.Context
	cancel       context.CancelFunc
}

func New(transport Transport, cfg Config, opts Options) *Supervisor {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Jitter == nil {
		opts.Jitter = randomJitter
	}
	if cfg.MissThreshold <= 0 {
		cfg.MissThreshold = 1
	}
	return &Supervisor{
		transport: transport,
		cfg:       cfg,
		clock:     opts.Clock,
		log:       opts.Logger,
		jitter:    opts.Jitter,
		onStatus:  opts.OnStatus,
		health:    Health{Status: StatusDisconnected, Phase: PhaseIdle},
	}
}

// Start begins supervising a transport that has just connected.
func (s *Supervisor) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.ctx, s.cancel = context.WithCancel(ctx)
	h := s.connectedLocked()
	s.mu.Unlock()
	s.notify(h)
}

// Stop cancels every timer and in-flight transport call.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.epoch++
	s.stopTimersLocked()
	s.stopSweepLocked()
	s.mu.Unlock()
	s.cancel()
}

func (s *Supervisor) Health() Health {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.health
}

// MarkConnected records a connection established by any path and cancels a
// pending reconnection attempt.
func (s *Supervisor) MarkConnected() {
	s.mu.Lock()
	if !s.activeLocked() {
		s.mu.Unlock()
		return
	}
	h := s.connectedLocked()
	s.mu.Unlock()
	s.notify(h)
}

// MarkDisconnected reports a transport failure seen outside the heartbeat,
// such as a failed write or a request timeout.
func (s *Supervisor) MarkDisconnected(err error) {
	s.mu.Lock()
	if !s.activeLocked() || s.health.Status != StatusConnected {
		s.mu.Unlock()
		return
	}
	hs := s.disconnectLocked(err)
	s.mu.Unlock()
	s.notify(hs...)
}

// Retry restarts reconnection after a terminal failure.
func (s *Supervisor) Retry() {
	s.mu.Lock()
	if !s.activeLocked() || !s.health.Terminal {
		s.mu.Unlock()
		return
	}
	s.health.Terminal = false
	s.health.Attempt = 0
	h := s.scheduleLocked(s.delay(0))
	s.mu.Unlock()
	s.notify(h)
}

// Background suspends heartbeats while the app is not in the foreground.
func (s *Supervisor) Background() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.activeLocked() || s.background {
		return
	}
	s.background = true
	s.backgroundAt = s.clock.Now()
	if s.beat != nil {
		s.beat.Stop()
		s.beat = nil
	}
	s.stopSweepLocked()
}

// Foreground resumes supervision. A short absence only resyncs; a long one
// runs a full reconnection cycle because the missed heartbeat count no
// longer means anything.
func (s *Supervisor) Foreground() {
	s.mu.Lock()
	if !s.activeLocked() || !s.background {
		s.mu.Unlock()
		return
	}
	s.background = false
	away := s.clock.Since(s.backgroundAt)
	if s.playing {
		s.armSweepLocked()
	}

	if s.health.Status != StatusConnected {
		s.mu.Unlock()
		return
	}
	if away > s.cfg.ShortBackground {
		s.log.Info("long background, reconnecting", zap.Duration("away", away))
		s.health.MissedHeartbeats = 0
		hs := s.disconnectNowLocked(ErrBackgrounded)
		s.mu.Unlock()
		s.notify(hs...)
		return
	}

	s.armBeatLocked()
	epoch := s.epoch
	ctx := s.ctx
	s.mu.Unlock()

	go func() {
		rctx, cancel := clockwork.WithTimeout(ctx, s.clock, s.cfg.AttemptTimeout)
		err := s.transport.Resync(rctx)
		cancel()
		if err == nil {
			return
		}
		s.log.Warn("resync after background failed", zap.Error(err))
		s.mu.Lock()
		if s.epoch != epoch || s.health.Status != StatusConnected {
			s.mu.Unlock()
			return
		}
		hs := s.disconnectLocked(err)
		s.mu.Unlock()
		s.notify(hs...)
	}()
}

// SetPlaying toggles the periodic idle-channel sweep.
func (s *Supervisor) SetPlaying(playing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.activeLocked() || s.playing == playing {
		return
	}
	s.playing = playing
	if playing && !s.background {
		s.armSweepLocked()
		return
	}
	s.stopSweepLocked()
}

func (s *Supervisor) activeLocked() bool {
	return s.started && !s.stopped
}

func (s *Supervisor) connectedLocked() Health {
	s.epoch++
	s.stopTimersLocked()
	s.health.Status = StatusConnected
	s.health.Phase = PhaseIdle
	s.health.MissedHeartbeats = 0
	s.health.Attempt = 0
	s.health.NextAttempt = time.Time{}
	s.health.Terminal = false
	s.health.LastErr = nil
	s.health.LastResponse = s.clock.Now()
	if !s.background {
		s.armBeatLocked()
	}
	return s.health
}

// disconnectLocked moves to disconnected and schedules the first attempt at
// the base delay.
func (s *Supervisor) disconnectLocked(err error) []Health {
	s.epoch++
	s.stopTimersLocked()
	s.health.Status = StatusDisconnected
	s.health.Phase = PhaseIdle
	s.health.Attempt = 0
	s.health.LastErr = err
	down := s.health
	s.log.Warn("connection lost", zap.Error(err), zap.Int("missed", s.health.MissedHeartbeats))
	return []Health{down, s.scheduleLocked(s.delay(0))}
}

func (s *Supervisor) disconnectNowLocked(err error) []Health {
	s.epoch++
	s.stopTimersLocked()
	s.health.Status = StatusDisconnected
	s.health.Phase = PhaseIdle
	s.health.Attempt = 0
	s.health.LastErr = err
	down := s.health
	return []Health{down, s.scheduleLocked(0)}
}

// scheduleLocked arms the single reconnection timer.
func (s *Supervisor) scheduleLocked(d time.Duration) Health {
	s.epoch++
	if s.timer != nil {
		s.timer.Stop()
	}
	epoch := s.epoch
	s.health.Status = StatusReconnecting
	s.health.Phase = PhaseBackingOff
	s.health.NextAttempt = s.clock.Now().Add(d)
	s.timer = s.clock.AfterFunc(d, func() { s.attempt(epoch) })
	return s.health
}

func (s *Supervisor) attempt(epoch uint64) {
	s.mu.Lock()
	if s.stopped || s.epoch != epoch {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.health.Phase = PhaseAttempting
	s.health.NextAttempt = time.Time{}
	attempting := s.health
	ctx := s.ctx
	s.mu.Unlock()
	s.notify(attempting)

	actx, cancel := clockwork.WithTimeout(ctx, s.clock, s.cfg.AttemptTimeout)
	err := s.transport.Reconnect(actx)
	if err == nil {
		err = s.transport.Resync(actx)
	}
	cancel()

	s.mu.Lock()
	if s.stopped || s.epoch != epoch {
		s.mu.Unlock()
		return
	}
	if err == nil {
		h := s.connectedLocked()
		s.mu.Unlock()
		s.log.Info("reconnected", zap.Int("attempts", attempting.Attempt+1))
		s.notify(h)
		return
	}

	s.health.Attempt++
	s.health.LastErr = err
	if s.cfg.MaxAttempts > 0 && s.health.Attempt >= s.cfg.MaxAttempts {
		s.epoch++
		s.health.Status = StatusDisconnected
		s.health.Phase = PhaseIdle
		s.health.Terminal = true
		h := s.health
		s.mu.Unlock()
		s.log.Warn("reconnection given up", zap.Int("attempts", h.Attempt), zap.Error(err))
		s.notify(h)
		return
	}
	h := s.scheduleLocked(s.delay(s.health.Attempt))
	s.mu.Unlock()
	s.log.Info("reconnect attempt failed",
		zap.Int("attempt", h.Attempt),
		zap.Time("next", h.NextAttempt),
		zap.Error(err),
	)
	s.notify(h)
}

func (s *Supervisor) armBeatLocked() {
	if s.beat != nil {
		s.beat.Stop()
	}
	epoch := s.epoch
	s.beat = s.clock.AfterFunc(s.cfg.HeartbeatInterval, func() { s.heartbeat(epoch) })
}

func (s *Supervisor) heartbeat(epoch uint64) {
	s.mu.Lock()
	if s.stopped || s.background || s.epoch != epoch || s.health.Status != StatusConnected {
		s.mu.Unlock()
		return
	}
	s.armBeatLocked()
	ctx := s.ctx
	s.mu.Unlock()

	hctx, cancel := clockwork.WithTimeout(ctx, s.clock, s.cfg.HeartbeatTimeout)
	err := s.transport.Heartbeat(hctx)
	cancel()

	s.mu.Lock()
	if s.stopped || s.epoch != epoch || s.health.Status != StatusConnected {
		s.mu.Unlock()
		return
	}
	if err == nil {
		s.health.MissedHeartbeats = 0
		s.health.LastResponse = s.clock.Now()
		s.mu.Unlock()
		return
	}
	s.health.MissedHeartbeats++
	s.log.Debug("heartbeat missed", zap.Int("missed", s.health.MissedHeartbeats), zap.Error(err))
	if s.health.MissedHeartbeats < s.cfg.MissThreshold {
		h := s.health
		s.mu.Unlock()
		s.notify(h)
		return
	}
	hs := s.disconnectLocked(ErrHeartbeatMissed)
	s.mu.Unlock()
	s.notify(hs...)
}

func (s *Supervisor) armSweepLocked() {
	if s.cfg.SweepInterval <= 0 {
		return
	}
	if s.sweep != nil {
		s.sweep.Stop()
	}
	s.sweep = s.clock.AfterFunc(s.cfg.SweepInterval, s.sweepOnce)
}

func (s *Supervisor) stopSweepLocked() {
	if s.sweep != nil {
		s.sweep.Stop()
		s.sweep = nil
	}
}

func (s *Supervisor) sweepOnce() {
	s.mu.Lock()
	if s.stopped || !s.playing || s.background {
		s.mu.Unlock()
		return
	}
	s.armSweepLocked()
	if s.health.Status != StatusConnected {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	if s.transport.Healthy() {
		return
	}

	s.mu.Lock()
	if s.stopped || s.health.Status != StatusConnected {
		s.mu.Unlock()
		return
	}
	s.log.Info("idle sweep found a degraded channel")
	hs := s.disconnectNowLocked(ErrIdleSweep)
	s.mu.Unlock()
	s.notify(hs...)
}

func (s *Supervisor) stopTimersLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.beat != nil {
		s.beat.Stop()
		s.beat = nil
	}
}

// delay is min(base·2^attempt, cap) plus jitter. A zero MaxDelay leaves the
// growth uncapped short of overflow.
func (s *Supervisor) delay(attempt int) time.Duration {
	d := s.cfg.BaseDelay
	for i := 0; i < attempt && (s.cfg.MaxDelay <= 0 || d < s.cfg.MaxDelay); i++ {
		if d > math.MaxInt64/2 {
			d = math.MaxInt64
			break
		}
		d *= 2
	}
	if s.cfg.MaxDelay > 0 && d > s.cfg.MaxDelay {
		d = s.cfg.MaxDelay
	}
	if s.cfg.Jitter > 0 && d < math.MaxInt64-s.cfg.Jitter {
		d += s.jitter(s.cfg.Jitter)
	}
	return d
}

func (s *Supervisor) notify(hs ...Health) {
	if s.onStatus == nil {
		return
	}
	for _, h := range hs {
		s.onStatus(h)
	}
}

func randomJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(max)))
}
