package game_test

import (
	"context"
	"errors"
	"math/rand/v2"
	"reflect"
	"sync"
	"testing"
	"time"

	"ludo-service/internal/service/game"
	"ludo-service/internal/service/game/mocks"
	appErr "ludo-service/pkg/errors"
	"ludo-service/pkg/protocol"

	"github.com/jonboulle/clockwork"
	"go.uber.org/mock/gomock"
)

type scriptedDice struct {
	mu     sync.Mutex
	values []int
}

func (d *scriptedDice) Roll() (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.values) == 0 {
		return 0, errors.New("dice script exhausted")
	}
	v := d.values[0]
	d.values = d.values[1:]
	return v, nil
}

type randomDice struct {
	rng *rand.Rand
}

func (d randomDice) Roll() (int, error) {
	return d.rng.IntN(6) + 1, nil
}

type frameLog struct {
	mu     sync.Mutex
	frames []protocol.Frame
}

func (l *frameLog) Publish(f protocol.Frame) {
	l.mu.Lock()
	l.frames = append(l.frames, f)
	l.mu.Unlock()
}

func (l *frameLog) since(n int) []protocol.Frame {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]protocol.Frame(nil), l.frames[n:]...)
}

func newEngine(t *testing.T, dice game.DiceSource, opts ...game.Option) (*game.Service, *clockwork.FakeClock, *frameLog) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	log := &frameLog{}
	cfg := game.Config{MinActionInterval: 300 * time.Millisecond, CaptureLock: 800 * time.Millisecond}
	opts = append([]game.Option{game.WithClock(clock), game.WithDice(dice), game.WithPublisher(log)}, opts...)
	return game.NewService(cfg, opts...), clock, log
}

func startedMatch(t *testing.T, svc *game.Service) string {
	t.Helper()
	ctx := context.Background()
	snap, err := svc.CreateMatch(ctx, game.CreateParams{Wager: 100, Reward: 190})
	if err != nil {
		t.Fatalf("create match: %v", err)
	}
	if snap.Status != protocol.StatusIdle || snap.Version != 0 || snap.RoomCode == "" {
		t.Fatalf("unexpected new match: %+v", snap)
	}
	if _, err := svc.Join(ctx, snap.MatchID, game.PlayerInfo{ID: "a", Identity: "alice"}); err != nil {
		t.Fatalf("join a: %v", err)
	}
	if _, err := svc.Join(ctx, snap.MatchID, game.PlayerInfo{ID: "b", Identity: "bob"}); err != nil {
		t.Fatalf("join b: %v", err)
	}
	res, err := svc.Start(ctx, snap.MatchID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if res.Version != 3 {
		t.Fatalf("expected version 3 after start, got %d", res.Version)
	}
	return snap.MatchID
}

// playingSnapshot seats alice (red) and bob (yellow) in a running match.
func playingSnapshot(matchID string) protocol.Snapshot {
	return protocol.Snapshot{
		MatchID: matchID,
		Status:  protocol.StatusPlaying,
		Players: []protocol.Player{
			protocol.NewPlayer("a", "alice", protocol.ColorRed),
			protocol.NewPlayer("b", "bob", protocol.ColorYellow),
		},
		LegalTokens: []int{},
		Version:     10,
		Wager:       100,
		Reward:      190,
	}
}

func eventTypes(f *protocol.Frame) []protocol.EventType {
	out := make([]protocol.EventType, 0, len(f.Events))
	for _, e := range f.Events {
		out = append(out, e.Type())
	}
	return out
}

func mustSnapshot(t *testing.T, svc *game.Service, matchID string) protocol.Snapshot {
	t.Helper()
	snap, err := svc.Snapshot(matchID)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	return snap
}

func TestBaseExitRetainsTurnThenSwitches(t *testing.T) {
	svc, clock, _ := newEngine(t, &scriptedDice{values: []int{6, 3}})
	ctx := context.Background()
	matchID := startedMatch(t, svc)

	snap := mustSnapshot(t, svc, matchID)
	if snap.Status != protocol.StatusPlaying || snap.CurrentTurnIndex != 0 {
		t.Fatalf("expected alice to open, got status %s turn %d", snap.Status, snap.CurrentTurnIndex)
	}
	if snap.Players[0].Color != protocol.ColorRed || snap.Players[1].Color != protocol.ColorYellow {
		t.Fatalf("unexpected seat colors: %s %s", snap.Players[0].Color, snap.Players[1].Color)
	}

	res, err := svc.RollDice(ctx, matchID, "a")
	if err != nil {
		t.Fatalf("roll: %v", err)
	}
	if res.Version != 4 || !reflect.DeepEqual(eventTypes(res.Frame), []protocol.EventType{protocol.EventDiceRoll}) {
		t.Fatalf("unexpected roll frame: v%d %v", res.Version, eventTypes(res.Frame))
	}
	if snap = mustSnapshot(t, svc, matchID); !reflect.DeepEqual(snap.LegalTokens, []int{0, 1, 2, 3}) {
		t.Fatalf("expected every base token legal on a six, got %v", snap.LegalTokens)
	}

	clock.Advance(time.Second)
	res, err = svc.MoveToken(ctx, matchID, "a", 0)
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	snap = mustSnapshot(t, svc, matchID)
	if res.Version != 5 || snap.Players[0].Tokens[0].Position != 1 {
		t.Fatalf("expected token on position 1 at v5, got v%d pos %d", res.Version, snap.Players[0].Tokens[0].Position)
	}
	if snap.CurrentTurnIndex != 0 || snap.DiceValue != 0 {
		t.Fatalf("six must retain the turn, got turn %d dice %d", snap.CurrentTurnIndex, snap.DiceValue)
	}

	clock.Advance(time.Second)
	if _, err := svc.RollDice(ctx, matchID, "a"); err != nil {
		t.Fatalf("second roll: %v", err)
	}
	if snap = mustSnapshot(t, svc, matchID); !reflect.DeepEqual(snap.LegalTokens, []int{0}) {
		t.Fatalf("only the token on the path can move a three, got %v", snap.LegalTokens)
	}

	clock.Advance(time.Second)
	res, err = svc.MoveToken(ctx, matchID, "a", 0)
	if err != nil {
		t.Fatalf("second move: %v", err)
	}
	want := []protocol.EventType{protocol.EventTokenMove, protocol.EventTurnSwitch}
	if got := eventTypes(res.Frame); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	snap = mustSnapshot(t, svc, matchID)
	if snap.Version != 7 || snap.Players[0].Tokens[0].Position != 4 || snap.CurrentTurnIndex != 1 {
		t.Fatalf("unexpected state after plain move: v%d pos %d turn %d",
			snap.Version, snap.Players[0].Tokens[0].Position, snap.CurrentTurnIndex)
	}
}

func TestRollWithoutLegalMoveSwitchesTurnInSameFrame(t *testing.T) {
	svc, _, log := newEngine(t, &scriptedDice{values: []int{4}})
	matchID := startedMatch(t, svc)
	seen := len(log.since(0))

	res, err := svc.RollDice(context.Background(), matchID, "a")
	if err != nil {
		t.Fatalf("roll: %v", err)
	}
	want := []protocol.EventType{protocol.EventDiceRoll, protocol.EventTurnSwitch}
	if got := eventTypes(res.Frame); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for _, e := range res.Frame.Events {
		if e.Version != res.Version {
			t.Fatalf("event carries v%d, frame is v%d", e.Version, res.Version)
		}
	}
	snap := mustSnapshot(t, svc, matchID)
	if snap.CurrentTurnIndex != 1 || snap.DiceValue != 0 || snap.Version != 4 {
		t.Fatalf("unexpected state: turn %d dice %d v%d", snap.CurrentTurnIndex, snap.DiceValue, snap.Version)
	}
	if published := log.since(seen); len(published) != 1 || published[0].Version != 4 {
		t.Fatalf("expected exactly one broadcast frame, got %d", len(published))
	}
}

func TestRejectionsLeaveStateUnchanged(t *testing.T) {
	ctx := context.Background()
	svc, clock, _ := newEngine(t, &scriptedDice{values: []int{3, 5}})
	seed := playingSnapshot("m-reject")
	seed.Players[0].Tokens[0].Position = 10
	svc.SeedMatch(seed)

	if _, err := svc.RollDice(ctx, "m-reject", "b"); !errors.Is(err, appErr.ErrNotYourTurn) {
		t.Fatalf("expected NOT_YOUR_TURN, got %v", err)
	}
	if _, err := svc.MoveToken(ctx, "m-reject", "a", 0); !errors.Is(err, appErr.ErrInvalidToken) {
		t.Fatalf("move without a roll should be INVALID_TOKEN, got %v", err)
	}
	if _, err := svc.RollDice(ctx, "m-reject", "mallory"); !errors.Is(err, appErr.ErrUnauthorized) {
		t.Fatalf("expected UNAUTHORIZED for outsider, got %v", err)
	}
	if _, err := svc.RollDice(ctx, "missing", "a"); !errors.Is(err, appErr.ErrMatchNotFound) {
		t.Fatalf("expected MATCH_NOT_FOUND, got %v", err)
	}

	if _, err := svc.RollDice(ctx, "m-reject", "a"); err != nil {
		t.Fatalf("roll: %v", err)
	}
	clock.Advance(time.Second)
	before := mustSnapshot(t, svc, "m-reject")

	if _, err := svc.RollDice(ctx, "m-reject", "a"); !errors.Is(err, appErr.ErrRollInProgress) {
		t.Fatalf("expected ROLL_IN_PROGRESS, got %v", err)
	}
	if _, err := svc.MoveToken(ctx, "m-reject", "a", 1); !errors.Is(err, appErr.ErrInvalidToken) {
		t.Fatalf("base token on a three should be INVALID_TOKEN, got %v", err)
	}
	if _, err := svc.MoveToken(ctx, "m-reject", "a", 9); !errors.Is(err, appErr.ErrInvalidToken) {
		t.Fatalf("unknown token should be INVALID_TOKEN, got %v", err)
	}
	if after := mustSnapshot(t, svc, "m-reject"); !reflect.DeepEqual(before, after) {
		t.Fatalf("rejected actions changed state:\nbefore %+v\nafter  %+v", before, after)
	}
}

func TestActionTooFast(t *testing.T) {
	ctx := context.Background()
	svc, clock, _ := newEngine(t, &scriptedDice{values: []int{6, 2}})
	matchID := startedMatch(t, svc)

	if _, err := svc.RollDice(ctx, matchID, "a"); err != nil {
		t.Fatalf("roll: %v", err)
	}
	before := mustSnapshot(t, svc, matchID)

	clock.Advance(100 * time.Millisecond)
	_, err := svc.RollDice(ctx, matchID, "a")
	if !errors.Is(err, appErr.ErrActionTooFast) {
		t.Fatalf("expected ACTION_TOO_FAST, got %v", err)
	}
	if !appErr.IsSoft(err) {
		t.Fatal("ACTION_TOO_FAST should be a soft rejection")
	}
	after := mustSnapshot(t, svc, matchID)
	if after.Version != before.Version || after.DiceValue != before.DiceValue {
		t.Fatalf("too-fast roll changed state: v%d->v%d dice %d->%d",
			before.Version, after.Version, before.DiceValue, after.DiceValue)
	}

	clock.Advance(time.Second)
	if _, err := svc.MoveToken(ctx, matchID, "a", 0); err != nil {
		t.Fatalf("move after window: %v", err)
	}
}

func TestCaptureRetainsTurn(t *testing.T) {
	ctx := context.Background()
	svc, clock, _ := newEngine(t, &scriptedDice{values: []int{3}})
	seed := playingSnapshot("m-capture")
	seed.CurrentTurnIndex = 1
	seed.Players[0].Tokens[0].Position = 4  // red square 3
	seed.Players[1].Tokens[0].Position = 27 // yellow 30 is square 3
	svc.SeedMatch(seed)

	if _, err := svc.RollDice(ctx, "m-capture", "b"); err != nil {
		t.Fatalf("roll: %v", err)
	}
	clock.Advance(time.Second)
	res, err := svc.MoveToken(ctx, "m-capture", "b", 0)
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	want := []protocol.EventType{protocol.EventTokenMove, protocol.EventCapture, protocol.EventAnimationLock}
	if got := eventTypes(res.Frame); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	capture := res.Frame.Events[1].Payload.(protocol.Capture)
	if capture.Square != 3 || len(capture.Captured) != 1 || capture.Captured[0].PlayerID != "a" {
		t.Fatalf("unexpected capture payload: %+v", capture)
	}
	if want := clock.Now().Add(800 * time.Millisecond).UnixMilli(); res.Frame.LockUntil() != want {
		t.Fatalf("expected lock until %d, got %d", want, res.Frame.LockUntil())
	}

	snap := mustSnapshot(t, svc, "m-capture")
	if snap.Players[0].Tokens[0].Position != protocol.BasePosition {
		t.Fatalf("captured token should be back at base, got %d", snap.Players[0].Tokens[0].Position)
	}
	if snap.Players[1].Tokens[0].Position != 30 || snap.CurrentTurnIndex != 1 {
		t.Fatalf("capturer should sit on 30 and keep the turn, got pos %d turn %d",
			snap.Players[1].Tokens[0].Position, snap.CurrentTurnIndex)
	}
	if snap.PendingCapture == nil || snap.PendingCapture.ByPlayerID != "b" {
		t.Fatalf("expected pending capture by b, got %+v", snap.PendingCapture)
	}
	if snap.Version != 12 {
		t.Fatalf("expected v12 after two actions from v10, got v%d", snap.Version)
	}
}

func TestSafeSquareBlocksCapture(t *testing.T) {
	ctx := context.Background()
	svc, clock, _ := newEngine(t, &scriptedDice{values: []int{3}})
	seed := playingSnapshot("m-safe")
	seed.CurrentTurnIndex = 1
	seed.Players[0].Tokens[0].Position = 9  // red square 8, a star
	seed.Players[1].Tokens[0].Position = 32 // yellow 35 is square 8
	svc.SeedMatch(seed)

	if _, err := svc.RollDice(ctx, "m-safe", "b"); err != nil {
		t.Fatalf("roll: %v", err)
	}
	clock.Advance(time.Second)
	res, err := svc.MoveToken(ctx, "m-safe", "b", 0)
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	want := []protocol.EventType{protocol.EventTokenMove, protocol.EventTurnSwitch}
	if got := eventTypes(res.Frame); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	snap := mustSnapshot(t, svc, "m-safe")
	if snap.Players[0].Tokens[0].Position != 9 || snap.CurrentTurnIndex != 0 {
		t.Fatalf("token on a safe square must survive, got pos %d turn %d",
			snap.Players[0].Tokens[0].Position, snap.CurrentTurnIndex)
	}
}

func TestReachingHomeEndsMatchAndSettlesOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	settler := mocks.NewMockSettler(ctrl)
	notifier := mocks.NewMockNotifier(ctrl)
	recorder := mocks.NewMockMatchRecorder(ctrl)

	settler.EXPECT().SettleMatch(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, s game.Settlement) error {
			if s.MatchID != "m-home" || s.WinnerID != "a" || s.LoserID != "b" || s.Reward != 190 {
				t.Errorf("unexpected settlement: %+v", s)
			}
			if s.Final.Status != protocol.StatusResult {
				t.Errorf("settlement should carry the final state, got %s", s.Final.Status)
			}
			return nil
		}).Times(1)
	notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).Return(nil).Times(2)
	recorder.EXPECT().RecordMatch(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	ctx := context.Background()
	svc, clock, _ := newEngine(t, &scriptedDice{values: []int{2}},
		game.WithSettler(settler), game.WithNotifier(notifier), game.WithRecorder(recorder))
	seed := playingSnapshot("m-home")
	for i := 0; i < 3; i++ {
		seed.Players[0].Tokens[i].Position = protocol.HomePosition
	}
	seed.Players[0].HomeCount = 3
	seed.Players[0].Tokens[3].Position = 55
	svc.SeedMatch(seed)

	if _, err := svc.RollDice(ctx, "m-home", "a"); err != nil {
		t.Fatalf("roll: %v", err)
	}
	snap := mustSnapshot(t, svc, "m-home")
	if !reflect.DeepEqual(snap.LegalTokens, []int{3}) {
		t.Fatalf("home tokens must not move, got legal %v", snap.LegalTokens)
	}
	clock.Advance(time.Second)

	res, err := svc.MoveToken(ctx, "m-home", "a", 3)
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	want := []protocol.EventType{protocol.EventTokenMove, protocol.EventGameEnd}
	if got := eventTypes(res.Frame); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}

	snap = mustSnapshot(t, svc, "m-home")
	end := res.Frame.Events[1].Payload.(protocol.GameEnd)
	if !reflect.DeepEqual(end.Final, snap) {
		t.Fatalf("GAME_END final snapshot differs from server state:\nfinal  %+v\nserver %+v", end.Final, snap)
	}
	if snap.Status != protocol.StatusResult || snap.WinnerID != "a" || snap.Players[0].HomeCount != 4 {
		t.Fatalf("unexpected final state: %+v", snap)
	}

	if _, err := svc.Forfeit(ctx, "m-home", "b", "late"); !errors.Is(err, appErr.ErrInvalidState) {
		t.Fatalf("forfeit after result should be INVALID_STATE, got %v", err)
	}
	if _, err := svc.RollDice(ctx, "m-home", "a"); !errors.Is(err, appErr.ErrInvalidState) {
		t.Fatalf("roll after result should be INVALID_STATE, got %v", err)
	}
	svc.Wait()
}

func TestForfeitAwardsOpponent(t *testing.T) {
	ctrl := gomock.NewController(t)
	settler := mocks.NewMockSettler(ctrl)
	settler.EXPECT().SettleMatch(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, s game.Settlement) error {
			if s.WinnerID != "b" || s.Reason != "disconnect" {
				t.Errorf("unexpected settlement: %+v", s)
			}
			return errors.New("wallet unavailable")
		}).Times(1)

	svc, _, _ := newEngine(t, &scriptedDice{}, game.WithSettler(settler))
	svc.SeedMatch(playingSnapshot("m-forfeit"))

	res, err := svc.Forfeit(context.Background(), "m-forfeit", "a", "disconnect")
	if err != nil {
		t.Fatalf("forfeit: %v", err)
	}
	if res.Version != 11 || res.Frame == nil || res.Frame.Events[0].Type() != protocol.EventGameEnd {
		t.Fatalf("unexpected forfeit result: %+v", res)
	}
	snap := mustSnapshot(t, svc, "m-forfeit")
	if snap.Status != protocol.StatusResult || snap.WinnerID != "b" {
		t.Fatalf("expected b to win by forfeit, got %s %q", snap.Status, snap.WinnerID)
	}
	svc.Wait()
}

func TestRequestSyncAndHeartbeatDoNotMutate(t *testing.T) {
	ctx := context.Background()
	svc, _, log := newEngine(t, &scriptedDice{})
	matchID := startedMatch(t, svc)
	published := len(log.since(0))

	first, err := svc.RequestSync(ctx, matchID, "b")
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	second, err := svc.RequestSync(ctx, matchID, "b")
	if err != nil {
		t.Fatalf("sync again: %v", err)
	}
	if first.Snapshot == nil || !reflect.DeepEqual(*first.Snapshot, *second.Snapshot) {
		t.Fatal("repeated request_sync should return identical snapshots")
	}
	if first.Version != 3 || first.Frame != nil {
		t.Fatalf("unexpected sync result: %+v", first)
	}

	hb, err := svc.Heartbeat(ctx, matchID, "a")
	if err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	if hb.Version != 3 {
		t.Fatalf("heartbeat should report the current version, got %d", hb.Version)
	}
	if got := len(log.since(0)); got != published {
		t.Fatalf("read-only calls published %d frames", got-published)
	}
	if _, err := svc.RequestSync(ctx, matchID, "mallory"); !errors.Is(err, appErr.ErrUnauthorized) {
		t.Fatalf("expected UNAUTHORIZED, got %v", err)
	}
}

func TestJoinAndStartRules(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newEngine(t, &scriptedDice{})
	snap, err := svc.CreateMatch(ctx, game.CreateParams{MatchID: "m-join", RoomCode: "ROOM42"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.CreateMatch(ctx, game.CreateParams{MatchID: "m-join"}); !errors.Is(err, appErr.ErrInvalidState) {
		t.Fatalf("duplicate match id should be rejected, got %v", err)
	}
	if id, ok := svc.FindByRoomCode("room42"); !ok || id != snap.MatchID {
		t.Fatalf("room code lookup failed: %q %v", id, ok)
	}

	if _, err := svc.Start(ctx, "m-join"); !errors.Is(err, appErr.ErrInvalidState) {
		t.Fatalf("start of idle match should fail, got %v", err)
	}
	res, err := svc.Join(ctx, "m-join", game.PlayerInfo{ID: "a"})
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if !res.Frame.IsSync() || res.Version != 1 {
		t.Fatalf("join should broadcast a SYNC frame at v1, got %+v", res.Frame)
	}
	if _, err := svc.Join(ctx, "m-join", game.PlayerInfo{ID: "a"}); !errors.Is(err, appErr.ErrAlreadyJoined) {
		t.Fatalf("expected ALREADY_JOINED, got %v", err)
	}
	if _, err := svc.Start(ctx, "m-join"); !errors.Is(err, appErr.ErrInvalidState) {
		t.Fatalf("start with one player should fail, got %v", err)
	}
	if _, err := svc.RollDice(ctx, "m-join", "a"); !errors.Is(err, appErr.ErrInvalidState) {
		t.Fatalf("roll before start should fail, got %v", err)
	}
	if _, err := svc.Join(ctx, "m-join", game.PlayerInfo{ID: "b"}); err != nil {
		t.Fatalf("join b: %v", err)
	}
	if _, err := svc.Join(ctx, "m-join", game.PlayerInfo{ID: "c"}); !errors.Is(err, appErr.ErrMatchFull) {
		t.Fatalf("expected MATCH_FULL, got %v", err)
	}
	if _, err := svc.Start(ctx, "m-join"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := svc.Join(ctx, "m-join", game.PlayerInfo{ID: "c"}); !errors.Is(err, appErr.ErrInvalidState) {
		t.Fatalf("join after start should be INVALID_STATE, got %v", err)
	}

	svc.Evict("m-join")
	if _, err := svc.Snapshot("m-join"); !errors.Is(err, appErr.ErrMatchNotFound) {
		t.Fatalf("evicted match should be gone, got %v", err)
	}
}

// A replica that folds every broadcast frame in order must equal the server
// snapshot after every accepted action.
func TestReplicaMatchesServerThroughWholeGame(t *testing.T) {
	ctx := context.Background()
	svc, clock, log := newEngine(t, randomDice{rng: rand.New(rand.NewPCG(7, 11))})
	matchID := startedMatch(t, svc)

	var replica protocol.Snapshot
	applied := 0
	catchUp := func() {
		for _, f := range log.since(applied) {
			switch protocol.Classify(replica.Version, f) {
			case protocol.FrameApply, protocol.FrameReplace:
				protocol.Apply(&replica, f)
			default:
				t.Fatalf("frame v%d out of order for replica at v%d", f.Version, replica.Version)
			}
			applied++
		}
	}

	for i := 0; i < 5000; i++ {
		catchUp()
		server := mustSnapshot(t, svc, matchID)
		if !reflect.DeepEqual(replica.Clone(), server) {
			t.Fatalf("replica diverged at v%d:\nreplica %+v\nserver  %+v", server.Version, replica, server)
		}
		if server.Status == protocol.StatusResult {
			break
		}

		clock.Advance(time.Second)
		current := server.Players[server.CurrentTurnIndex].ID
		var err error
		if server.DiceValue == 0 {
			_, err = svc.RollDice(ctx, matchID, current)
		} else {
			_, err = svc.MoveToken(ctx, matchID, current, server.LegalTokens[len(server.LegalTokens)-1])
		}
		if err != nil {
			t.Fatalf("action %d at v%d: %v", i, server.Version, err)
		}
		if got := mustSnapshot(t, svc, matchID).Version; got != server.Version+1 {
			t.Fatalf("version moved %d -> %d", server.Version, got)
		}
	}
	svc.Wait()
}
