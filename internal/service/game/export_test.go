package game

import "ludo-service/pkg/protocol"

// SeedMatch installs a match at an arbitrary state.
func (s *Service) SeedMatch(snap protocol.Snapshot) {
	s.runtimes.Store(snap.MatchID, newMatchRuntime(snap.Clone()))
}
