package sim

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"smartbus-simulator/internal/transit"
)

func snap(target string, exact map[string]float64) transit.Snapshot {
	s := transit.Snapshot{Target: target, ComputedAt: time.Now(), ETAs: map[string]int{}, Exact: exact}
	for id, e := range exact {
		m := int(e)
		if float64(m) < e {
			m++
		}
		s.ETAs[id] = m
	}
	return s
}

func TestBoardSmoothing(t *testing.T) {
	b := NewBoard(1)

	assert.True(t, b.Apply(snap("A", map[string]float64{"bus": 9.9})))
	assert.Equal(t, 10, b.Snapshot().ETAs["bus"])

	// 8.95 rounds to 9 but is within a minute of the shown estimate
	assert.False(t, b.Apply(snap("A", map[string]float64{"bus": 8.95})))
	assert.Equal(t, 10, b.Snapshot().ETAs["bus"])

	assert.True(t, b.Apply(snap("A", map[string]float64{"bus": 8.8})))
	assert.Equal(t, 9, b.Snapshot().ETAs["bus"])
}

func TestBoardWithoutDamping(t *testing.T) {
	b := NewBoard(0)
	b.Apply(snap("A", map[string]float64{"bus": 9.9}))

	assert.False(t, b.Apply(snap("A", map[string]float64{"bus": 9.5})), "same rounded minute")
	assert.True(t, b.Apply(snap("A", map[string]float64{"bus": 8.95})))
	assert.Equal(t, 9, b.Snapshot().ETAs["bus"])
}

func TestBoardSupersedesVehicles(t *testing.T) {
	b := NewBoard(1)
	b.Apply(snap("A", map[string]float64{"bus-1": 4, "bus-2": 7}))

	assert.True(t, b.Apply(snap("A", map[string]float64{"bus-2": 7, "bus-3": 12})))
	assert.Equal(t, map[string]int{"bus-2": 7, "bus-3": 12}, b.Snapshot().ETAs)
}

func TestBoardTargetChangeResets(t *testing.T) {
	b := NewBoard(5)
	b.Apply(snap("A", map[string]float64{"bus": 10}))

	assert.True(t, b.Apply(snap("B", map[string]float64{"bus": 9})))
	got := b.Snapshot()
	assert.Equal(t, "B", got.Target)
	assert.Equal(t, 9, got.ETAs["bus"])
}

func TestBoardWithoutExactValues(t *testing.T) {
	b := NewBoard(1)
	b.Apply(transit.Snapshot{Target: "A", ETAs: map[string]int{"bus": 5}})
	assert.True(t, b.Apply(transit.Snapshot{Target: "A", ETAs: map[string]int{"bus": 4}}))
	assert.Equal(t, 4, b.Snapshot().ETAs["bus"])
}
