// Package client is the player-side half of the match protocol: one
// websocket session feeding a reconciliation engine, kept alive by a
// heartbeat supervisor.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"ludo-service/pkg/client/reconcile"
	"ludo-service/pkg/client/supervisor"
	appErr "ludo-service/pkg/errors"
	"ludo-service/pkg/protocol"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

var ErrClosed = errors.New("session closed")

// Conn is the subset of *websocket.Conn the session uses.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, url string, header http.Header) (Conn, error)
}

// WebsocketDialer dials with gorilla/websocket.
type WebsocketDialer struct {
	Dialer *websocket.Dialer
}

func (d WebsocketDialer) Dial(ctx context.Context, url string, header http.Header) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, _, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

type Config struct {
	// URL is the match stream, e.g. ws://host/ws/matches/{matchId}.
	URL            string
	Token          string
	PlayerID       string
	MatchID        string
	RequestTimeout time.Duration
	MinAnim        time.Duration
	Supervisor     supervisor.Config
}

func DefaultConfig() Config {
	return Config{
		RequestTimeout: 5 * time.Second,
		MinAnim:        reconcile.DefaultMinAnim,
		Supervisor:     supervisor.DefaultConfig(),
	}
}

type Options struct {
	Clock  clockwork.Clock
	Logger *zap.Logger
	Dialer Dialer

	// Hooks run on the session goroutine and must not call back into
	// blocking Session methods.
	OnView     func(reconcile.View)
	OnError    func(error)
	OnPresence func(protocol.Presence)
	// OnHealth runs on supervisor goroutines.
	OnHealth func(supervisor.Health)
}

type reply struct {
	result *protocol.ActionResult
	err    error
}

// Session serializes every input that touches the replica (frames,
// responses, settle timers) through one event loop goroutine.
type Session struct {
	cfg    Config
	clock  clockwork.Clock
	log    *zap.Logger
	dialer Dialer
	opts   Options

	engine *reconcile.Engine
	sup    *supervisor.Supervisor

	events    chan func()
	closed    chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	conn    Conn
	healthy bool
	pending map[string]chan reply

	writeMu   sync.Mutex
	resyncing atomic.Bool
}

// Dial connects to the match stream and starts supervision.
func Dial(ctx context.Context, cfg Config, opts Options) (*Session, error) {
	if cfg.URL == "" || cfg.PlayerID == "" {
		return nil, fmt.Errorf("%w: url and player are required", appErr.ErrInvalidAction)
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultConfig().RequestTimeout
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Dialer == nil {
		opts.Dialer = WebsocketDialer{}
	}

	s := &Session{
		cfg:     cfg,
		clock:   opts.Clock,
		log:     opts.Logger.With(zap.String("playerID", cfg.PlayerID), zap.String("matchID", cfg.MatchID)),
		dialer:  opts.Dialer,
		opts:    opts,
		events:  make(chan func(), 64),
		closed:  make(chan struct{}),
		pending: make(map[string]chan reply),
	}
	s.sup = supervisor.New(s, cfg.Supervisor, supervisor.Options{
		Clock:    s.clock,
		Logger:   s.log.Named("supervisor"),
		OnStatus: opts.OnHealth,
	})
	s.engine = reconcile.New(reconcile.Options{
		PlayerID:           cfg.PlayerID,
		MatchID:            cfg.MatchID,
		MinAnim:            cfg.MinAnim,
		Clock:              s.clock,
		Logger:             s.log.Named("reconcile"),
		OnResync:           s.resyncAsync,
		OnTransportFailure: s.sup.MarkDisconnected,
		OnHold:             s.settleAfter,
		OnError: func(err error) {
			if opts.OnError != nil {
				opts.OnError(err)
			}
		},
	})

	if err := s.connect(ctx); err != nil {
		return nil, err
	}
	s.sup.Start(context.Background())
	go s.loop()
	return s, nil
}

func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.sup.Stop()
		close(s.closed)
		s.mu.Lock()
		conn := s.conn
		s.conn = nil
		s.healthy = false
		s.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
	})
}

func (s *Session) Roll(ctx context.Context) error {
	return s.act(ctx, protocol.ActionRollDice, nil)
}

func (s *Session) Move(ctx context.Context, tokenID int) error {
	return s.act(ctx, protocol.ActionMoveToken, &tokenID)
}

func (s *Session) InputEnabled(kind protocol.ActionKind) bool {
	var ok bool
	s.do(func() { ok = s.engine.InputEnabled(kind) })
	return ok
}

func (s *Session) View() reconcile.View {
	var v reconcile.View
	s.do(func() { v = s.engine.View() })
	return v
}

func (s *Session) Health() supervisor.Health { return s.sup.Health() }

func (s *Session) Background() { s.sup.Background() }

func (s *Session) Foreground() { s.sup.Foreground() }

// Retry restarts reconnection after the supervisor gave up.
func (s *Session) Retry() { s.sup.Retry() }

// act runs one optimistic action: begin the overlay, submit, then settle
// once the minimum animation has elapsed.
func (s *Session) act(ctx context.Context, kind protocol.ActionKind, tokenID *int) error {
	var (
		env protocol.ActionEnvelope
		err error
	)
	if !s.do(func() {
		env, err = s.engine.Begin(kind, tokenID)
		if err == nil {
			s.publishView()
		}
	}) {
		return ErrClosed
	}
	if err != nil {
		return err
	}

	result, err := s.request(ctx, env)
	s.do(func() {
		var delay time.Duration
		if err != nil {
			delay = s.engine.Fail(env.ClientActionID, err)
		} else {
			delay = s.engine.Succeed(env.ClientActionID, result)
		}
		s.settleAfter(env.ClientActionID, delay)
		s.publishView()
	})
	return err
}

// Heartbeat, Reconnect, Resync and Healthy make the session the
// supervisor's transport.

func (s *Session) Heartbeat(ctx context.Context) error {
	_, err := s.request(ctx, s.envelope(protocol.ActionHeartbeat))
	return err
}

func (s *Session) Reconnect(ctx context.Context) error {
	return s.connect(ctx)
}

func (s *Session) Resync(ctx context.Context) error {
	res, err := s.request(ctx, s.envelope(protocol.ActionRequestSync))
	if err != nil {
		return err
	}
	if res.Snapshot == nil {
		return fmt.Errorf("%w: sync without snapshot", appErr.ErrChannelError)
	}
	snap := *res.Snapshot
	if !s.do(func() {
		s.engine.ApplySnapshot(snap)
		s.publishView()
	}) {
		return ErrClosed
	}
	return nil
}

func (s *Session) Healthy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil && s.healthy
}

func (s *Session) connect(ctx context.Context) error {
	header := http.Header{}
	if s.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+s.cfg.Token)
	}
	conn, err := s.dialer.Dial(ctx, s.cfg.URL, header)
	if err != nil {
		return fmt.Errorf("%w: %v", appErr.ErrChannelError, err)
	}

	s.mu.Lock()
	select {
	case <-s.closed:
		s.mu.Unlock()
		_ = conn.Close()
		return ErrClosed
	default:
	}
	old := s.conn
	s.conn = conn
	s.healthy = true
	s.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	go s.readLoop(conn)
	s.log.Info("match stream connected")
	return nil
}

func (s *Session) request(ctx context.Context, env protocol.ActionEnvelope) (*protocol.ActionResult, error) {
	ch := make(chan reply, 1)
	s.mu.Lock()
	conn := s.conn
	if conn == nil || !s.healthy {
		s.mu.Unlock()
		return nil, appErr.ErrChannelError
	}
	s.pending[env.ClientActionID] = ch
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.pending, env.ClientActionID)
		s.mu.Unlock()
	}()

	data, err := json.Marshal(protocol.Message{
		Type:           protocol.MessageAction,
		ClientActionID: env.ClientActionID,
		Action:         &env,
	})
	if err != nil {
		return nil, err
	}
	s.writeMu.Lock()
	err = conn.WriteMessage(websocket.TextMessage, data)
	s.writeMu.Unlock()
	if err != nil {
		s.log.Info("action write failed", zap.String("kind", string(env.Kind)), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", appErr.ErrChannelError, err)
	}

	timer := s.clock.NewTimer(s.cfg.RequestTimeout)
	defer timer.Stop()
	select {
	case r := <-ch:
		return r.result, r.err
	case <-timer.Chan():
		return nil, appErr.ErrTimeout
	case <-ctx.Done():
		return nil, appErr.ErrTimeout
	case <-s.closed:
		return nil, ErrClosed
	}
}

func (s *Session) readLoop(conn Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.dropConn(conn, err)
			return
		}
		var msg protocol.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			s.log.Warn("undecodable message", zap.Error(err))
			continue
		}
		s.dispatch(msg)
	}
}

func (s *Session) dispatch(msg protocol.Message) {
	switch msg.Type {
	case protocol.MessageFrame:
		if msg.Frame == nil {
			return
		}
		frame := *msg.Frame
		s.post(func() {
			s.engine.ApplyFrame(frame)
			s.publishView()
		})
	case protocol.MessagePresence:
		if msg.Presence == nil || s.opts.OnPresence == nil {
			return
		}
		presence := *msg.Presence
		s.post(func() { s.opts.OnPresence(presence) })
	case protocol.MessageResult, protocol.MessageError:
		if msg.ClientActionID != "" && s.deliver(msg) {
			return
		}
		if msg.Result != nil && msg.Result.Snapshot != nil {
			snap := *msg.Result.Snapshot
			s.post(func() {
				s.engine.ApplySnapshot(snap)
				s.publishView()
			})
			return
		}
		if msg.Error != nil {
			s.log.Info("unsolicited error", zap.String("code", msg.Error.Code))
		}
	}
}

func (s *Session) deliver(msg protocol.Message) bool {
	s.mu.Lock()
	ch, ok := s.pending[msg.ClientActionID]
	s.mu.Unlock()
	if !ok {
		return false
	}
	r := reply{result: msg.Result}
	if msg.Type == protocol.MessageError {
		r = reply{err: appErr.ErrChannelError}
		if msg.Error != nil {
			r.err = msg.Error.Err()
		}
	}
	select {
	case ch <- r:
	default:
	}
	return true
}

// dropConn fails in-flight requests on a dead connection and tells the
// supervisor, unless conn was already replaced.
func (s *Session) dropConn(conn Conn, err error) {
	s.mu.Lock()
	if s.conn != conn {
		s.mu.Unlock()
		return
	}
	s.healthy = false
	for id, ch := range s.pending {
		select {
		case ch <- reply{err: appErr.ErrChannelError}:
		default:
		}
		delete(s.pending, id)
	}
	s.mu.Unlock()

	select {
	case <-s.closed:
		return
	default:
	}
	s.log.Info("match stream lost", zap.Error(err))
	s.sup.MarkDisconnected(fmt.Errorf("%w: %v", appErr.ErrChannelError, err))
}

func (s *Session) envelope(kind protocol.ActionKind) protocol.ActionEnvelope {
	return protocol.ActionEnvelope{
		Kind:            kind,
		MatchID:         s.cfg.MatchID,
		PlayerID:        s.cfg.PlayerID,
		ClientActionID:  uuid.NewString(),
		ClientTimestamp: s.clock.Now().UnixMilli(),
	}
}

func (s *Session) settleAfter(actionID string, d time.Duration) {
	if d <= 0 {
		s.engine.Settle(actionID)
		return
	}
	s.clock.AfterFunc(d, func() {
		s.post(func() {
			s.engine.Settle(actionID)
			s.publishView()
		})
	})
}

// resyncAsync is called on the loop when a frame gap shows up, so the
// request runs elsewhere.
func (s *Session) resyncAsync() {
	if !s.resyncing.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer s.resyncing.Store(false)
		ctx, cancel := clockwork.WithTimeout(context.Background(), s.clock, s.cfg.RequestTimeout)
		defer cancel()
		if err := s.Resync(ctx); err != nil {
			s.log.Warn("gap resync failed", zap.Error(err))
			if appErr.IsTransport(err) {
				s.sup.MarkDisconnected(err)
			}
		}
	}()
}

func (s *Session) publishView() {
	v := s.engine.View()
	s.sup.SetPlaying(v.Synced && v.Snapshot.Status == protocol.StatusPlaying)
	if s.opts.OnView != nil {
		s.opts.OnView(v)
	}
}

func (s *Session) loop() {
	for {
		select {
		case fn := <-s.events:
			fn()
		case <-s.closed:
			return
		}
	}
}

func (s *Session) post(fn func()) {
	select {
	case s.events <- fn:
	case <-s.closed:
	}
}

// do runs fn on the loop and waits for it.
func (s *Session) do(fn func()) bool {
	done := make(chan struct{})
	select {
	case s.events <- func() { fn(); close(done) }:
	case <-s.closed:
		return false
	}
	select {
	case <-done:
		return true
	case <-s.closed:
		return false
	}
}
