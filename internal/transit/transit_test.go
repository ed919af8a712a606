package transit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFareLookup(t *testing.T) {
	fares := FareTable{"A": {"B": 15}}

	tests := []struct {
		name      string
		from, to  string
		reverse   bool
		want      float64
		wantFound bool
	}{
		{name: "direct", from: "A", to: "B", reverse: false, want: 15, wantFound: true},
		{name: "reverse fallback", from: "B", to: "A", reverse: true, want: 15, wantFound: true},
		{name: "strict one direction", from: "B", to: "A", reverse: false, want: 0, wantFound: false},
		{name: "miss both directions", from: "A", to: "C", reverse: true, want: 0, wantFound: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, found := fares.Lookup(tt.from, tt.to, tt.reverse)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantFound, found)
		})
	}
}

func TestFareLookupPrefersDirectEntry(t *testing.T) {
	fares := FareTable{}
	fares.Set("A", "B", 15)
	fares.Set("B", "A", 20)

	got, ok := fares.Lookup("B", "A", true)
	require.True(t, ok)
	assert.Equal(t, 20.0, got)
}

func TestNetworkLookups(t *testing.T) {
	n := &Network{
		Stops: []Stop{{"A", 0, 0}, {"B", 0, 1}, {"C", 1, 1}},
		Routes: []Route{
			{ID: "loop", Stops: []string{"A", "B", "C"}},
		},
	}

	s, idx, ok := n.StopByName("B")
	require.True(t, ok)
	assert.Equal(t, 1, idx)
	assert.Equal(t, 1.0, s.Point().Lng)

	_, _, ok = n.StopByName("Z")
	assert.False(t, ok)

	r, ok := n.Route("loop")
	require.True(t, ok)
	assert.Equal(t, []Stop{{"A", 0, 0}, {"B", 0, 1}, {"C", 1, 1}}, n.RouteStops(r))

	_, ok = n.Route("missing")
	assert.False(t, ok)
}
