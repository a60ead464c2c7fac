package protocol

// Apply folds a frame into s. The server commits its own state through Apply
// and clients apply broadcast frames through it, so a replica at version V-1
// that applies frame V lands on exactly the server's state at V.
func Apply(s *Snapshot, f Frame) {
	a := applier{s: s}
	for _, e := range f.Events {
		e.Accept(&a)
	}
	s.Version = f.Version
}

type applier struct {
	s *Snapshot
}

func (a *applier) token(playerIndex, tokenID int) *Token {
	if playerIndex < 0 || playerIndex >= len(a.s.Players) {
		return nil
	}
	tokens := a.s.Players[playerIndex].Tokens
	if tokenID < 0 || tokenID >= len(tokens) {
		return nil
	}
	return &tokens[tokenID]
}

func (a *applier) VisitDiceRoll(_ Event, p DiceRoll) {
	a.s.DiceValue = p.Value
	a.s.LegalTokens = append([]int{}, p.LegalTokens...)
	a.s.PendingCapture = nil
}

func (a *applier) VisitTokenMove(_ Event, p TokenMove) {
	if t := a.token(p.PlayerIndex, p.TokenID); t != nil {
		t.Position = p.To
	}
	if p.Home && p.PlayerIndex >= 0 && p.PlayerIndex < len(a.s.Players) {
		a.s.Players[p.PlayerIndex].HomeCount++
	}
	a.s.DiceValue = 0
	a.s.LegalTokens = []int{}
}

func (a *applier) VisitCapture(_ Event, p Capture) {
	for _, c := range p.Captured {
		if t := a.token(c.PlayerIndex, c.TokenID); t != nil {
			t.Position = BasePosition
		}
	}
	a.s.PendingCapture = &PendingCapture{
		ByPlayerID: p.ByPlayerID,
		Square:     p.Square,
		Captured:   append([]CapturedToken(nil), p.Captured...),
	}
}

func (a *applier) VisitTurnSwitch(_ Event, p TurnSwitch) {
	a.s.CurrentTurnIndex = p.To
	a.s.DiceValue = 0
	a.s.LegalTokens = []int{}
}

func (a *applier) VisitGameEnd(_ Event, p GameEnd) {
	a.s.Status = StatusResult
	a.s.WinnerID = p.WinnerID
	a.s.EndedAt = p.Final.EndedAt
	a.s.DiceValue = 0
	a.s.LegalTokens = []int{}
}

func (a *applier) VisitSync(_ Event, p Sync) {
	*a.s = p.Snapshot.Clone()
}

func (a *applier) VisitAnimationLock(e Event, _ AnimationLock) {
	a.s.LockUntil = e.LockUntil
}
