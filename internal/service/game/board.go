package game

import "ludo-service/pkg/protocol"

const loopSquares = 52

// Each color enters the shared loop at its own offset; relative position 1
// is the color's start square.
var startOffsets = map[protocol.Color]int{
	protocol.ColorRed:    0,
	protocol.ColorGreen:  13,
	protocol.ColorYellow: 26,
	protocol.ColorBlue:   39,
}

// Seat colors in join order. Two-player matches sit on opposite corners.
var seatColors = []protocol.Color{protocol.ColorRed, protocol.ColorYellow}

// Start squares plus the star square eight steps past each start.
var safeSquares = map[int]bool{
	0: true, 13: true, 26: true, 39: true,
	8: true, 21: true, 34: true, 47: true,
}

// Square maps a relative path position to an absolute loop square. Only
// positions on the common path (1..51) have one.
func Square(color protocol.Color, position int) (int, bool) {
	if position < protocol.FirstPathPosition || position > protocol.LastPathPosition {
		return 0, false
	}
	return (startOffsets[color] + position - 1) % loopSquares, true
}

func IsSafeSquare(square int) bool {
	return safeSquares[square]
}

// Destination returns where a token at position lands with roll, and whether
// the move is legal. Base tokens need exactly a six; nothing overshoots home.
func Destination(position, roll int) (int, bool) {
	switch {
	case roll < 1 || roll > 6:
		return 0, false
	case position == protocol.BasePosition:
		if roll == protocol.ExitRoll {
			return protocol.FirstPathPosition, true
		}
		return 0, false
	case position >= protocol.HomePosition:
		return 0, false
	}
	to := position + roll
	if to > protocol.HomePosition {
		return 0, false
	}
	return to, true
}

// LegalTokens lists the token ids of player that can move with roll.
func LegalTokens(player protocol.Player, roll int) []int {
	legal := make([]int, 0, len(player.Tokens))
	for _, t := range player.Tokens {
		if _, ok := Destination(t.Position, roll); ok {
			legal = append(legal, t.ID)
		}
	}
	return legal
}

// capturesAt finds opponent tokens sitting on the square mover lands on.
func capturesAt(snap protocol.Snapshot, moverIndex, to int) (int, []protocol.CapturedToken) {
	mover := snap.Players[moverIndex]
	square, ok := Square(mover.Color, to)
	if !ok || IsSafeSquare(square) {
		return 0, nil
	}
	var captured []protocol.CapturedToken
	for idx, p := range snap.Players {
		if idx == moverIndex {
			continue
		}
		for _, t := range p.Tokens {
			if t.AtBase() || t.IsHome() {
				continue
			}
			if sq, ok := Square(p.Color, t.Position); ok && sq == square {
				captured = append(captured, protocol.CapturedToken{
					PlayerID:    p.ID,
					PlayerIndex: idx,
					TokenID:     t.ID,
					From:        t.Position,
				})
			}
		}
	}
	return square, captured
}
