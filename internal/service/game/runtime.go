package game

import (
	"sync"
	"time"

	appErr "ludo-service/pkg/errors"
	"ludo-service/pkg/protocol"
)

const (
	reasonNoMoves = "no_moves"
	reasonMoved   = "moved"
	reasonAllHome = "all_home"
)

// matchRuntime is the single writer for one match. Every read and write of
// snap happens under mu; distinct matches never share a lock.
type matchRuntime struct {
	mu sync.Mutex

	snap       protocol.Snapshot
	lastAction map[string]time.Time

	finishOnce sync.Once
}

func newMatchRuntime(snap protocol.Snapshot) *matchRuntime {
	return &matchRuntime{
		snap:       snap,
		lastAction: make(map[string]time.Time),
	}
}

// commitLocked stamps events with the next version and folds them into the
// canonical snapshot through the same reducer clients use.
func (rt *matchRuntime) commitLocked(events []protocol.Event) protocol.Frame {
	version := rt.snap.Version + 1
	for i := range events {
		events[i].Version = version
	}
	frame := protocol.Frame{
		MatchID: rt.snap.MatchID,
		Version: version,
		Events:  events,
	}
	protocol.Apply(&rt.snap, frame)
	return frame
}

// commitSnapshotLocked replaces state wholesale and emits a SYNC frame.
// Status never moves backwards.
func (rt *matchRuntime) commitSnapshotLocked(next protocol.Snapshot) (protocol.Frame, error) {
	if next.Status != rt.snap.Status && !rt.snap.Status.CanAdvanceTo(next.Status) {
		return protocol.Frame{}, appErr.ErrInvalidState
	}
	next.Version = rt.snap.Version + 1
	return rt.commitLocked([]protocol.Event{{Payload: protocol.Sync{Snapshot: next.Clone()}}}), nil
}

func (rt *matchRuntime) participantLocked(playerID string) (int, error) {
	idx := rt.snap.PlayerIndex(playerID)
	if idx < 0 {
		return -1, appErr.ErrUnauthorized
	}
	return idx, nil
}

// checkTurnLocked applies the shared preconditions of roll and move.
func (rt *matchRuntime) checkTurnLocked(playerID string, now time.Time, minInterval time.Duration) (int, error) {
	idx, err := rt.participantLocked(playerID)
	if err != nil {
		return -1, err
	}
	if rt.snap.Status != protocol.StatusPlaying {
		return -1, appErr.ErrInvalidState
	}
	if last, ok := rt.lastAction[playerID]; ok && minInterval > 0 && now.Sub(last) < minInterval {
		return -1, appErr.ErrActionTooFast
	}
	if idx != rt.snap.CurrentTurnIndex {
		return -1, appErr.ErrNotYourTurn
	}
	return idx, nil
}

func (rt *matchRuntime) nextTurnLocked(from int) int {
	return (from + 1) % len(rt.snap.Players)
}

// rollEventsLocked builds the frame body for an accepted roll.
func (rt *matchRuntime) rollEventsLocked(idx, value int) []protocol.Event {
	player := rt.snap.Players[idx]
	legal := LegalTokens(player, value)
	events := []protocol.Event{{Payload: protocol.DiceRoll{
		PlayerID:    player.ID,
		PlayerIndex: idx,
		Value:       value,
		LegalTokens: legal,
	}}}
	if len(legal) == 0 {
		events = append(events, protocol.Event{Payload: protocol.TurnSwitch{
			From:   idx,
			To:     rt.nextTurnLocked(idx),
			Reason: reasonNoMoves,
		}})
	}
	return events
}

type moveOutcome struct {
	events   []protocol.Event
	captured bool
	home     bool
	finished bool
}

// moveEventsLocked builds the frame body for moving tokenID with the pending
// roll. The caller has already checked that tokenID is legal.
func (rt *matchRuntime) moveEventsLocked(idx, tokenID int) moveOutcome {
	player := rt.snap.Players[idx]
	from := player.Tokens[tokenID].Position
	to, _ := Destination(from, rt.snap.DiceValue)

	var out moveOutcome
	out.home = to == protocol.HomePosition
	out.events = append(out.events, protocol.Event{Payload: protocol.TokenMove{
		PlayerID:    player.ID,
		PlayerIndex: idx,
		TokenID:     tokenID,
		From:        from,
		To:          to,
		Home:        out.home,
	}})

	square, captured := capturesAt(rt.snap, idx, to)
	if len(captured) > 0 {
		out.captured = true
		out.events = append(out.events, protocol.Event{Payload: protocol.Capture{
			ByPlayerID: player.ID,
			Square:     square,
			Captured:   captured,
		}})
	}

	if out.home && player.HomeCount+1 == protocol.TokensPerPlayer {
		out.finished = true
		return out
	}
	if rt.snap.DiceValue == protocol.ExitRoll || out.captured || out.home {
		return out
	}
	out.events = append(out.events, protocol.Event{Payload: protocol.TurnSwitch{
		From:   idx,
		To:     rt.nextTurnLocked(idx),
		Reason: reasonMoved,
	}})
	return out
}

// gameEndEventLocked previews events on a copy of the state so the GAME_END
// payload carries the exact final snapshot the frame produces.
func (rt *matchRuntime) gameEndEventLocked(events []protocol.Event, winnerIdx int, reason string, now time.Time) protocol.Event {
	version := rt.snap.Version + 1
	final := rt.snap.Clone()
	protocol.Apply(&final, protocol.Frame{MatchID: rt.snap.MatchID, Version: version, Events: events})
	winner := final.Players[winnerIdx]
	final.Status = protocol.StatusResult
	final.WinnerID = winner.ID
	final.EndedAt = now.UnixMilli()
	final.DiceValue = 0
	final.LegalTokens = []int{}
	return protocol.Event{Payload: protocol.GameEnd{
		WinnerID:    winner.ID,
		WinnerIndex: winnerIdx,
		Reason:      reason,
		Final:       final,
	}}
}

func lockEvent(now time.Time, d time.Duration, reason string) protocol.Event {
	return protocol.Event{
		LockUntil: now.Add(d).UnixMilli(),
		Payload:   protocol.AnimationLock{Reason: reason},
	}
}
