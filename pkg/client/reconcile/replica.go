// Package reconcile keeps a client's view of a match: the authoritative
// replica written only by server frames, and a cosmetic overlay of the
// player's own in-flight actions.
package reconcile

import (
	"ludo-service/pkg/protocol"
)

// Replica is the client's copy of the server state. Only frames and sync
// snapshots write it.
type Replica struct {
	snap   protocol.Snapshot
	synced bool
}

func NewReplica() *Replica {
	return &Replica{}
}

// Synced reports whether the replica has been seeded by a snapshot.
func (r *Replica) Synced() bool { return r.synced }

func (r *Replica) Version() int64 { return r.snap.Version }

func (r *Replica) Snapshot() protocol.Snapshot { return r.snap.Clone() }

// Apply folds a frame in according to its version. Before the first
// snapshot only SYNC frames are usable; anything else reports a gap.
func (r *Replica) Apply(f protocol.Frame) protocol.Disposition {
	if !r.synced && !f.IsSync() {
		return protocol.FrameGap
	}
	d := protocol.Classify(r.snap.Version, f)
	switch d {
	case protocol.FrameApply, protocol.FrameReplace:
		protocol.Apply(&r.snap, f)
		r.synced = true
	}
	return d
}

// Reset replaces the replica with a snapshot from request_sync. An older
// snapshot than the one already held is ignored.
func (r *Replica) Reset(snap protocol.Snapshot) bool {
	if r.synced && snap.Version < r.snap.Version {
		return false
	}
	r.snap = snap.Clone()
	r.synced = true
	return true
}
