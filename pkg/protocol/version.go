package protocol

// Disposition is what a replica does with an incoming frame.
type Disposition int

const (
	// FrameApply: frame is exactly lastApplied+1.
	FrameApply Disposition = iota
	// FrameStale: already applied or older; delivery is at-least-once.
	FrameStale
	// FrameGap: frames were lost; discard and request a full sync.
	FrameGap
	// FrameReplace: SYNC frame, replaces the replica wholesale.
	FrameReplace
)

func (d Disposition) String() string {
	switch d {
	case FrameApply:
		return "apply"
	case FrameStale:
		return "stale"
	case FrameGap:
		return "gap"
	case FrameReplace:
		return "replace"
	default:
		return "unknown"
	}
}

// Classify compares a frame's version against the last applied version.
// A SYNC frame older than lastApplied is stale; anything else replaces.
func Classify(lastApplied int64, f Frame) Disposition {
	if f.IsSync() {
		// versions applied to a replica never decrease, so an older SYNC is
		// dropped rather than allowed to roll state back
		if f.Version < lastApplied {
			return FrameStale
		}
		return FrameReplace
	}
	switch {
	case f.Version == lastApplied+1:
		return FrameApply
	case f.Version <= lastApplied:
		return FrameStale
	default:
		return FrameGap
	}
}
