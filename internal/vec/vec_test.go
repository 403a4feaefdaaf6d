package vec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestGetSet(t *testing.T) {
	var v r3.Vec
	for d := 0; d < Dims; d++ {
		Set(&v, d, float64(d+1))
	}
	assert.Equal(t, r3.Vec{X: 1, Y: 2, Z: 3}, v)
	for d := 0; d < Dims; d++ {
		assert.Equal(t, float64(d+1), Get(v, d))
	}
}

func TestArrayRoundTrip(t *testing.T) {
	a := [3]float64{1.5, -2, 7}
	assert.Equal(t, a, ToArray(FromArray(a)))
	assert.Equal(t, 6.0, Volume(r3.Vec{X: 1, Y: 2, Z: 3}))
}
