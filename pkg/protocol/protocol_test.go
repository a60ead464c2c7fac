package protocol_test

import (
	"encoding/json"
	"reflect"
	"testing"

	"ludo-service/pkg/protocol"
)

func TestClassify(t *testing.T) {
	delta := func(v int64) protocol.Frame {
		return protocol.Frame{Version: v, Events: []protocol.Event{{Version: v, Payload: protocol.TurnSwitch{To: 1}}}}
	}
	sync := func(v int64) protocol.Frame {
		return protocol.Frame{Version: v, Events: []protocol.Event{{Version: v, Payload: protocol.Sync{}}}}
	}

	cases := []struct {
		name string
		last int64
		in   protocol.Frame
		want protocol.Disposition
	}{
		{"next", 4, delta(5), protocol.FrameApply},
		{"duplicate", 4, delta(4), protocol.FrameStale},
		{"old", 4, delta(2), protocol.FrameStale},
		{"gap", 4, delta(7), protocol.FrameGap},
		{"sync ahead", 4, sync(9), protocol.FrameReplace},
		{"sync same", 4, sync(4), protocol.FrameReplace},
		{"sync behind", 4, sync(3), protocol.FrameStale},
	}
	for _, tc := range cases {
		if got := protocol.Classify(tc.last, tc.in); got != tc.want {
			t.Fatalf("%s: expected %s, got %s", tc.name, tc.want, got)
		}
	}
}

func TestFrameDecodesTypedPayloads(t *testing.T) {
	frame := protocol.Frame{
		MatchID: "m1",
		Version: 3,
		Events: []protocol.Event{
			{Version: 3, Payload: protocol.TokenMove{PlayerID: "a", TokenID: 2, From: 4, To: 9}},
			{Version: 3, Payload: protocol.Capture{ByPlayerID: "a", Square: 9, Captured: []protocol.CapturedToken{{PlayerID: "b", PlayerIndex: 1, TokenID: 0, From: 35}}}},
			{Version: 3, LockUntil: 1700000000000, Payload: protocol.AnimationLock{Reason: "capture"}},
		},
	}
	raw, err := json.Marshal(frame)
	if err != nil {
		t.Fatalf("marshal frame: %v", err)
	}
	var decoded protocol.Frame
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}
	if !reflect.DeepEqual(frame, decoded) {
		t.Fatalf("decoded frame differs:\nwant %+v\ngot  %+v", frame, decoded)
	}
	if decoded.LockUntil() != 1700000000000 {
		t.Fatalf("expected lock deadline, got %d", decoded.LockUntil())
	}
}

func TestUnknownEventTypeRejected(t *testing.T) {
	var e protocol.Event
	err := json.Unmarshal([]byte(`{"type":"TELEPORT","version":1,"data":{}}`), &e)
	if err == nil {
		t.Fatalf("expected unknown event type to fail")
	}
}

func TestApplyMoveCaptureAndSwitch(t *testing.T) {
	snap := protocol.Snapshot{
		Status:  protocol.StatusPlaying,
		Players: []protocol.Player{protocol.NewPlayer("a", "A", protocol.ColorRed), protocol.NewPlayer("b", "B", protocol.ColorYellow)},
		Version: 7,
	}
	snap.Players[0].Tokens[1].Position = 20
	snap.Players[1].Tokens[3].Position = 49
	snap.DiceValue = 3
	snap.LegalTokens = []int{1}

	protocol.Apply(&snap, protocol.Frame{Version: 8, Events: []protocol.Event{
		{Version: 8, Payload: protocol.TokenMove{PlayerID: "a", PlayerIndex: 0, TokenID: 1, From: 20, To: 23}},
		{Version: 8, Payload: protocol.Capture{ByPlayerID: "a", Square: 22, Captured: []protocol.CapturedToken{{PlayerID: "b", PlayerIndex: 1, TokenID: 3, From: 49}}}},
	}})

	if snap.Version != 8 {
		t.Fatalf("expected version 8, got %d", snap.Version)
	}
	if snap.Players[0].Tokens[1].Position != 23 || snap.Players[1].Tokens[3].Position != 0 {
		t.Fatalf("unexpected token positions: %+v", snap.Players)
	}
	if snap.DiceValue != 0 || len(snap.LegalTokens) != 0 {
		t.Fatalf("dice should be consumed, got %d %v", snap.DiceValue, snap.LegalTokens)
	}
	if snap.PendingCapture == nil || snap.PendingCapture.Square != 22 {
		t.Fatalf("expected pending capture, got %+v", snap.PendingCapture)
	}
}

func TestCloneIsDeep(t *testing.T) {
	snap := protocol.Snapshot{Players: []protocol.Player{protocol.NewPlayer("a", "A", protocol.ColorRed)}, LegalTokens: []int{0}}
	clone := snap.Clone()
	clone.Players[0].Tokens[0].Position = 10
	clone.LegalTokens[0] = 3
	if snap.Players[0].Tokens[0].Position != 0 || snap.LegalTokens[0] != 0 {
		t.Fatalf("clone shares memory with source")
	}
}

func TestEnvelopeValidate(t *testing.T) {
	token := 1
	ok := protocol.ActionEnvelope{Kind: protocol.ActionMoveToken, MatchID: "m", PlayerID: "p", TokenID: &token, ClientActionID: "c1"}
	if err := ok.Validate(); err != nil {
		t.Fatalf("expected valid envelope, got %v", err)
	}
	missingToken := ok
	missingToken.TokenID = nil
	if err := missingToken.Validate(); err == nil {
		t.Fatalf("expected move without token to fail")
	}
	heartbeat := protocol.ActionEnvelope{Kind: protocol.ActionHeartbeat, MatchID: "m", PlayerID: "p"}
	if err := heartbeat.Validate(); err != nil {
		t.Fatalf("heartbeat without client action id should be valid: %v", err)
	}
}

func TestStatusOnlyAdvances(t *testing.T) {
	cases := []struct {
		from, to protocol.Status
		want     bool
	}{
		{protocol.StatusIdle, protocol.StatusWaiting, true},
		{protocol.StatusWaiting, protocol.StatusPlaying, true},
		{protocol.StatusPlaying, protocol.StatusResult, true},
		{protocol.StatusPlaying, protocol.StatusWaiting, false},
		{protocol.StatusResult, protocol.StatusPlaying, false},
		{protocol.StatusPlaying, protocol.StatusPlaying, false},
		{protocol.Status("bogus"), protocol.StatusResult, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanAdvanceTo(tc.to); got != tc.want {
			t.Fatalf("%s -> %s = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}
