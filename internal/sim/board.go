package sim

import (
	"math"
	"time"

	"smartbus-simulator/internal/transit"
)

// Board holds the ETAs shown to the user. A shown value only moves when the new exact
// estimate differs from the one behind the shown value by at least Threshold minutes.
// Threshold 0 disables the damping.
type Board struct {
	Threshold float64

	target    string
	updatedAt time.Time
	shown     map[string]shownETA
}

type shownETA struct {
	minutes int
	exact   float64
}

func NewBoard(threshold float64) *Board {
	return &Board{Threshold: threshold, shown: make(map[string]shownETA)}
}

// Apply supersedes the board with snap. Vehicles missing from snap are dropped, new ones
// appear at once, existing ones change only past the threshold. It reports whether
// anything visible changed.
func (b *Board) Apply(snap transit.Snapshot) bool {
	changed := false
	if snap.Target != b.target {
		b.target = snap.Target
		b.shown = make(map[string]shownETA, len(snap.ETAs))
		changed = true
	}
	next := make(map[string]shownETA, len(snap.ETAs))
	for id, minutes := range snap.ETAs {
		exact, ok := snap.Exact[id]
		if !ok {
			exact = float64(minutes)
		}
		cur := shownETA{minutes: minutes, exact: exact}
		prev, ok := b.shown[id]
		switch {
		case !ok:
			next[id] = cur
			changed = true
		case math.Abs(exact-prev.exact) >= b.Threshold:
			next[id] = cur
			if cur.minutes != prev.minutes {
				changed = true
			}
		default:
			next[id] = prev
		}
	}
	for id := range b.shown {
		if _, ok := snap.ETAs[id]; !ok {
			changed = true
		}
	}
	b.shown = next
	if changed {
		b.updatedAt = snap.ComputedAt
	}
	return changed
}

// Snapshot returns a copy of what is currently shown.
func (b *Board) Snapshot() transit.Snapshot {
	etas := make(map[string]int, len(b.shown))
	for id, s := range b.shown {
		etas[id] = s.minutes
	}
	return transit.Snapshot{Target: b.target, ComputedAt: b.updatedAt, ETAs: etas}
}
