package topology

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestDimsCreate(t *testing.T) {
	tests := []struct {
		n    int
		want [3]int
	}{
		{1, [3]int{1, 1, 1}},
		{2, [3]int{2, 1, 1}},
		{4, [3]int{2, 2, 1}},
		{6, [3]int{3, 2, 1}},
		{8, [3]int{2, 2, 2}},
		{12, [3]int{3, 2, 2}},
		{7, [3]int{7, 1, 1}},
	}
	for _, tt := range tests {
		got := DimsCreate(tt.n)
		if got != tt.want {
			t.Errorf("DimsCreate(%d) = %v, want %v", tt.n, got, tt.want)
		}
	}
}

func TestNewRejectsMismatchedDims(t *testing.T) {
	_, err := New(4, [3]int{3, 1, 1}, [3]bool{})
	assert.ErrorIs(t, err, ErrBadDims)
	_, err = New(0, [3]int{}, [3]bool{})
	assert.ErrorIs(t, err, ErrBadSize)
}

func TestCoordsRoundTrip(t *testing.T) {
	g, err := New(12, [3]int{}, [3]bool{true, true, true})
	require.NoError(t, err)
	for r := 0; r < g.Size(); r++ {
		assert.Equal(t, r, g.RankOf(g.Coords(r)))
	}
	assert.Equal(t, [3]int{0, 0, 1}, g.Coords(1))
}

func TestNeighbor(t *testing.T) {
	g, err := New(4, [3]int{4, 1, 1}, [3]bool{true, false, false})
	require.NoError(t, err)
	assert.Equal(t, 3, g.Neighbor(0, 0, -1))
	assert.Equal(t, 0, g.Neighbor(3, 0, 1))
	assert.Equal(t, -1, g.Neighbor(0, 1, 1))

	open, err := New(4, [3]int{4, 1, 1}, [3]bool{})
	require.NoError(t, err)
	assert.Equal(t, -1, open.Neighbor(0, 0, -1))
	assert.Equal(t, 1, open.Neighbor(0, 0, 1))
}

func TestNeighborsAreDistinct(t *testing.T) {
	g, err := New(2, [3]int{2, 1, 1}, [3]bool{true, true, true})
	require.NoError(t, err)
	assert.Equal(t, []int{1}, g.Neighbors(0))

	one, err := New(1, [3]int{}, [3]bool{true, true, true})
	require.NoError(t, err)
	assert.Empty(t, one.Neighbors(0))
}

func TestSubdomainAndOwner(t *testing.T) {
	box := r3.Vec{X: 10, Y: 10, Z: 10}
	g, err := New(2, [3]int{2, 1, 1}, [3]bool{true, true, true})
	require.NoError(t, err)

	lo, hi := g.Subdomain(1, box)
	assert.Equal(t, r3.Vec{X: 5}, lo)
	assert.Equal(t, r3.Vec{X: 10, Y: 10, Z: 10}, hi)

	assert.Equal(t, 0, g.Owner(r3.Vec{X: 4.9, Y: 1, Z: 1}, box))
	assert.Equal(t, 1, g.Owner(r3.Vec{X: 5, Y: 1, Z: 1}, box))
	assert.Equal(t, 1, g.Owner(r3.Vec{X: -0.5, Y: 1, Z: 1}, box))
	assert.Equal(t, 0, g.Owner(r3.Vec{X: 10.5, Y: 1, Z: 1}, box))
}

func TestOwnerClampsOpenDims(t *testing.T) {
	box := r3.Vec{X: 10, Y: 10, Z: 10}
	g, err := New(2, [3]int{2, 1, 1}, [3]bool{})
	require.NoError(t, err)
	assert.Equal(t, 0, g.Owner(r3.Vec{X: -3}, box))
	assert.Equal(t, 1, g.Owner(r3.Vec{X: 13}, box))
	assert.False(t, g.InBox(r3.Vec{X: 13}, box))
	assert.True(t, g.InBox(r3.Vec{X: 3}, box))
}

func TestFold(t *testing.T) {
	box := r3.Vec{X: 10, Y: 10, Z: 10}
	g, err := New(1, [3]int{}, [3]bool{true, false, true})
	require.NoError(t, err)
	got := g.Fold(r3.Vec{X: -1, Y: -1, Z: 21}, box)
	assert.InDelta(t, 9, got.X, 1e-12)
	assert.Equal(t, -1.0, got.Y)
	assert.InDelta(t, 1, got.Z, 1e-12)
}
