// Package protocol defines the wire contract shared by the match server and
// its clients: match snapshots, action envelopes, versioned event frames and
// the reducer both sides use to apply them.
package protocol

import (
	"errors"
	"strings"

	appErr "ludo-service/pkg/errors"
)

type Status string

const (
	StatusIdle    Status = "idle"
	StatusWaiting Status = "waiting"
	StatusPlaying Status = "playing"
	StatusResult  Status = "result"
)

// rank orders statuses; transitions only move to a higher rank.
func (s Status) rank() int {
	switch s {
	case StatusIdle:
		return 0
	case StatusWaiting:
		return 1
	case StatusPlaying:
		return 2
	case StatusResult:
		return 3
	default:
		return -1
	}
}

// CanAdvanceTo reports whether moving from s to next keeps status monotonic.
func (s Status) CanAdvanceTo(next Status) bool {
	return next.rank() > s.rank() && s.rank() >= 0
}

type Color string

const (
	ColorRed    Color = "red"
	ColorGreen  Color = "green"
	ColorYellow Color = "yellow"
	ColorBlue   Color = "blue"
)

const (
	PlayersPerMatch = 2
	TokensPerPlayer = 4

	BasePosition      = 0
	FirstPathPosition = 1
	LastPathPosition  = 51
	HomePosition      = 57
	ExitRoll          = 6
)

type Token struct {
	ID       int `json:"id"`
	Position int `json:"position"`
}

func (t Token) AtBase() bool { return t.Position == BasePosition }

func (t Token) IsHome() bool { return t.Position == HomePosition }

type Player struct {
	ID        string  `json:"id"`
	Identity  string  `json:"identity"`
	Color     Color   `json:"color"`
	Tokens    []Token `json:"tokens"`
	HomeCount int     `json:"homeCount"`
}

// NewPlayer returns a player with all four tokens at base.
func NewPlayer(id, identity string, color Color) Player {
	tokens := make([]Token, TokensPerPlayer)
	for i := range tokens {
		tokens[i] = Token{ID: i}
	}
	return Player{ID: id, Identity: identity, Color: color, Tokens: tokens}
}

type CapturedToken struct {
	PlayerID    string `json:"playerId"`
	PlayerIndex int    `json:"playerIndex"`
	TokenID     int    `json:"tokenId"`
	From        int    `json:"from"`
}

type PendingCapture struct {
	ByPlayerID string          `json:"byPlayerId"`
	Square     int             `json:"square"`
	Captured   []CapturedToken `json:"captured"`
}

// Snapshot is the full, absolute state of one match at Version.
type Snapshot struct {
	MatchID          string          `json:"matchId"`
	RoomCode         string          `json:"roomCode"`
	Status           Status          `json:"status"`
	Players          []Player        `json:"players"`
	CurrentTurnIndex int             `json:"currentTurnIndex"`
	DiceValue        int             `json:"diceValue"`
	LegalTokens      []int           `json:"legalTokens"`
	PendingCapture   *PendingCapture `json:"pendingCapture,omitempty"`
	Version          int64           `json:"version"`
	Wager            int64           `json:"wager"`
	Reward           int64           `json:"reward"`
	WinnerID         string          `json:"winnerId,omitempty"`
	LockUntil        int64           `json:"lockUntil,omitempty"`
	CreatedAt        int64           `json:"createdAt"`
	EndedAt          int64           `json:"endedAt,omitempty"`
}

// Clone returns a deep copy; snapshots handed across goroutines are always clones.
func (s Snapshot) Clone() Snapshot {
	out := s
	if s.Players != nil {
		out.Players = make([]Player, len(s.Players))
		for i, p := range s.Players {
			if p.Tokens != nil {
				p.Tokens = append(make([]Token, 0, len(p.Tokens)), p.Tokens...)
			}
			out.Players[i] = p
		}
	}
	if s.LegalTokens != nil {
		out.LegalTokens = append(make([]int, 0, len(s.LegalTokens)), s.LegalTokens...)
	}
	if s.PendingCapture != nil {
		pc := *s.PendingCapture
		if pc.Captured != nil {
			pc.Captured = append(make([]CapturedToken, 0, len(pc.Captured)), pc.Captured...)
		}
		out.PendingCapture = &pc
	}
	return out
}

func (s Snapshot) PlayerIndex(playerID string) int {
	for i, p := range s.Players {
		if p.ID == playerID {
			return i
		}
	}
	return -1
}

// CurrentPlayer returns the player whose turn it is, if the match is playing.
func (s Snapshot) CurrentPlayer() (Player, bool) {
	if s.Status != StatusPlaying || s.CurrentTurnIndex < 0 || s.CurrentTurnIndex >= len(s.Players) {
		return Player{}, false
	}
	return s.Players[s.CurrentTurnIndex], true
}

func (s Snapshot) IsLegalToken(tokenID int) bool {
	for _, id := range s.LegalTokens {
		if id == tokenID {
			return true
		}
	}
	return false
}

type ActionKind string

const (
	ActionRollDice    ActionKind = "roll_dice"
	ActionMoveToken   ActionKind = "move_token"
	ActionHeartbeat   ActionKind = "heartbeat"
	ActionRequestSync ActionKind = "request_sync"
)

// Mutating reports whether the kind can change match state.
func (k ActionKind) Mutating() bool {
	return k == ActionRollDice || k == ActionMoveToken
}

// ActionEnvelope is one client request. It is consumed once by the gateway
// and never stored; only its result is retained for duplicate detection.
type ActionEnvelope struct {
	Kind            ActionKind `json:"actionKind"`
	MatchID         string     `json:"matchId"`
	PlayerID        string     `json:"playerId"`
	TokenID         *int       `json:"tokenId,omitempty"`
	ClientActionID  string     `json:"clientActionId"`
	ClientTimestamp int64      `json:"clientTimestamp"`
}

func (a ActionEnvelope) Validate() error {
	if strings.TrimSpace(a.MatchID) == "" || strings.TrimSpace(a.PlayerID) == "" {
		return appErr.ErrInvalidAction
	}
	switch a.Kind {
	case ActionRollDice, ActionHeartbeat, ActionRequestSync:
	case ActionMoveToken:
		if a.TokenID == nil {
			return appErr.ErrInvalidToken
		}
	default:
		return appErr.ErrInvalidAction
	}
	if a.Kind.Mutating() && strings.TrimSpace(a.ClientActionID) == "" {
		return appErr.ErrInvalidAction
	}
	return nil
}

// ActionResult is the synchronous success payload of a request. Mutations
// mirror the broadcast frame; request_sync carries a snapshot.
type ActionResult struct {
	Kind       ActionKind `json:"actionKind"`
	MatchID    string     `json:"matchId"`
	Version    int64      `json:"version"`
	Frame      *Frame     `json:"frame,omitempty"`
	Snapshot   *Snapshot  `json:"snapshot,omitempty"`
	ServerTime int64      `json:"serverTime"`
	Duplicate  bool       `json:"duplicate,omitempty"`
	Warning    string     `json:"warning,omitempty"`
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Warning string `json:"warning,omitempty"`
}

// NewErrorBody renders err for the wire. Uncoded errors are reported as
// INTERNAL without their text.
func NewErrorBody(err error) ErrorBody {
	code := appErr.CodeOf(err)
	if code == appErr.CodeInternal {
		return ErrorBody{Code: code, Message: "internal error"}
	}
	body := ErrorBody{Code: code, Message: err.Error()}
	if code != appErr.CodeDuplicateAction && errors.Is(err, appErr.ErrDuplicateAction) {
		body.Warning = appErr.CodeDuplicateAction
	}
	return body
}

// Err maps the body back to a sentinel-comparable error.
func (b ErrorBody) Err() error {
	err := appErr.FromCode(b.Code, b.Message)
	if b.Warning == appErr.CodeDuplicateAction {
		return appErr.Duplicate(err)
	}
	return err
}

// Presence lists the participants holding a live subscription. Informational only.
type Presence struct {
	MatchID string   `json:"matchId"`
	Online  []string `json:"online"`
}
