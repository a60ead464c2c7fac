package protocol

import (
	"encoding/json"
	"fmt"
)

type EventType string

const (
	EventDiceRoll      EventType = "DICE_ROLL"
	EventTokenMove     EventType = "TOKEN_MOVE"
	EventCapture       EventType = "CAPTURE"
	EventTurnSwitch    EventType = "TURN_SWITCH"
	EventGameEnd       EventType = "GAME_END"
	EventSync          EventType = "SYNC"
	EventAnimationLock EventType = "ANIMATION_LOCK"
)

// Payload is the closed set of event bodies. Only types in this package
// implement it.
type Payload interface {
	EventType() EventType
	isPayload()
}

type DiceRoll struct {
	PlayerID    string `json:"playerId"`
	PlayerIndex int    `json:"playerIndex"`
	Value       int    `json:"value"`
	LegalTokens []int  `json:"legalTokens"`
}

type TokenMove struct {
	PlayerID    string `json:"playerId"`
	PlayerIndex int    `json:"playerIndex"`
	TokenID     int    `json:"tokenId"`
	From        int    `json:"from"`
	To          int    `json:"to"`
	Home        bool   `json:"home"`
}

type Capture struct {
	ByPlayerID string          `json:"byPlayerId"`
	Square     int             `json:"square"`
	Captured   []CapturedToken `json:"captured"`
}

type TurnSwitch struct {
	From   int    `json:"from"`
	To     int    `json:"to"`
	Reason string `json:"reason"`
}

type GameEnd struct {
	WinnerID    string   `json:"winnerId"`
	WinnerIndex int      `json:"winnerIndex"`
	Reason      string   `json:"reason"`
	Final       Snapshot `json:"final"`
}

type Sync struct {
	Snapshot Snapshot `json:"snapshot"`
}

type AnimationLock struct {
	Reason string `json:"reason"`
}

func (DiceRoll) EventType() EventType      { return EventDiceRoll }
func (TokenMove) EventType() EventType     { return EventTokenMove }
func (Capture) EventType() EventType       { return EventCapture }
func (TurnSwitch) EventType() EventType    { return EventTurnSwitch }
func (GameEnd) EventType() EventType       { return EventGameEnd }
func (Sync) EventType() EventType          { return EventSync }
func (AnimationLock) EventType() EventType { return EventAnimationLock }

func (DiceRoll) isPayload()      {}
func (TokenMove) isPayload()     {}
func (Capture) isPayload()       {}
func (TurnSwitch) isPayload()    {}
func (GameEnd) isPayload()       {}
func (Sync) isPayload()          {}
func (AnimationLock) isPayload() {}

// Event is one ServerEvent. Version equals the match version at emission.
// LockUntil (unix ms) is set on ANIMATION_LOCK events.
type Event struct {
	Version   int64
	LockUntil int64
	Payload   Payload
}

func (e Event) Type() EventType {
	if e.Payload == nil {
		return ""
	}
	return e.Payload.EventType()
}

// Visitor handles every event kind. Adding a payload type without extending
// Visitor fails to compile wherever Accept is implemented.
type Visitor interface {
	VisitDiceRoll(Event, DiceRoll)
	VisitTokenMove(Event, TokenMove)
	VisitCapture(Event, Capture)
	VisitTurnSwitch(Event, TurnSwitch)
	VisitGameEnd(Event, GameEnd)
	VisitSync(Event, Sync)
	VisitAnimationLock(Event, AnimationLock)
}

func (e Event) Accept(v Visitor) {
	switch p := e.Payload.(type) {
	case DiceRoll:
		v.VisitDiceRoll(e, p)
	case TokenMove:
		v.VisitTokenMove(e, p)
	case Capture:
		v.VisitCapture(e, p)
	case TurnSwitch:
		v.VisitTurnSwitch(e, p)
	case GameEnd:
		v.VisitGameEnd(e, p)
	case Sync:
		v.VisitSync(e, p)
	case AnimationLock:
		v.VisitAnimationLock(e, p)
	}
}

type wireEvent struct {
	Type      EventType       `json:"type"`
	Version   int64           `json:"version"`
	LockUntil int64           `json:"lockUntil,omitempty"`
	Data      json.RawMessage `json:"data"`
}

func (e Event) MarshalJSON() ([]byte, error) {
	if e.Payload == nil {
		return nil, fmt.Errorf("event has no payload")
	}
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireEvent{
		Type:      e.Payload.EventType(),
		Version:   e.Version,
		LockUntil: e.LockUntil,
		Data:      data,
	})
}

func (e *Event) UnmarshalJSON(raw []byte) error {
	var w wireEvent
	if err := json.Unmarshal(raw, &w); err != nil {
		return err
	}
	payload, err := decodePayload(w.Type, w.Data)
	if err != nil {
		return err
	}
	e.Version = w.Version
	e.LockUntil = w.LockUntil
	e.Payload = payload
	return nil
}

func decodePayload(t EventType, data json.RawMessage) (Payload, error) {
	switch t {
	case EventDiceRoll:
		var p DiceRoll
		err := json.Unmarshal(data, &p)
		return p, err
	case EventTokenMove:
		var p TokenMove
		err := json.Unmarshal(data, &p)
		return p, err
	case EventCapture:
		var p Capture
		err := json.Unmarshal(data, &p)
		return p, err
	case EventTurnSwitch:
		var p TurnSwitch
		err := json.Unmarshal(data, &p)
		return p, err
	case EventGameEnd:
		var p GameEnd
		err := json.Unmarshal(data, &p)
		return p, err
	case EventSync:
		var p Sync
		err := json.Unmarshal(data, &p)
		return p, err
	case EventAnimationLock:
		var p AnimationLock
		err := json.Unmarshal(data, &p)
		return p, err
	default:
		return nil, fmt.Errorf("unknown event type %q", t)
	}
}

// Frame groups every event produced by one accepted mutation. All events in
// a frame carry the frame's version and are applied together.
type Frame struct {
	MatchID string  `json:"matchId"`
	Version int64   `json:"version"`
	Events  []Event `json:"events"`
}

// IsSync reports whether the frame carries an absolute snapshot.
func (f Frame) IsSync() bool {
	for _, e := range f.Events {
		if e.Type() == EventSync {
			return true
		}
	}
	return false
}

// LockUntil returns the animation-lock deadline carried by the frame, if any.
func (f Frame) LockUntil() int64 {
	var until int64
	for _, e := range f.Events {
		if e.Type() == EventAnimationLock && e.LockUntil > until {
			until = e.LockUntil
		}
	}
	return until
}

type MessageType string

const (
	MessageFrame    MessageType = "frame"
	MessagePresence MessageType = "presence"
	MessageResult   MessageType = "result"
	MessageError    MessageType = "error"
	MessageAction   MessageType = "action"
)

// Message is the websocket envelope in both directions.
type Message struct {
	Type           MessageType     `json:"type"`
	ClientActionID string          `json:"clientActionId,omitempty"`
	Frame          *Frame          `json:"frame,omitempty"`
	Presence       *Presence       `json:"presence,omitempty"`
	Result         *ActionResult   `json:"result,omitempty"`
	Error          *ErrorBody      `json:"error,omitempty"`
	Action         *ActionEnvelope `json:"action,omitempty"`
}
