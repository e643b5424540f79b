package interval

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsInvertedBounds(t *testing.T) {
	_, err := NewInt(5, 4)
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = NewFloat(1.5, 1.0, 0.01)
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = NewFloat(0, 1, -0.1)
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = NewFloat(math.NaN(), 1, 0)
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestNewAcceptsValidBounds(t *testing.T) {
	for _, tc := range []struct{ min, max int32 }{
		{0, 0},
		{-3, 7},
		{math.MinInt32, math.MaxInt32},
	} {
		iv, err := NewInt(tc.min, tc.max)
		require.NoError(t, err)
		assert.Equal(t, tc.min, iv.Min())
		assert.Equal(t, tc.max, iv.Max())
		assert.False(t, iv.IsEmpty())
	}
}

func TestIntegerIntervalsIgnoreTolerance(t *testing.T) {
	iv, err := New[int32](1, 3, 5)
	require.NoError(t, err)
	assert.Zero(t, iv.Tolerance())
	assert.False(t, iv.Contains(4))
}

func TestFloatEqualityUsesTolerance(t *testing.T) {
	a, _ := NewFloat(1.0, 2.0, 0.01)
	b, _ := NewFloat(1.005, 1.995, 0.01)
	c, _ := NewFloat(1.05, 2.0, 0.01)

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.True(t, Empty[float64]().Equal(Empty[float64]()))
	assert.False(t, a.Equal(Empty[float64]()))
}

func TestIdenticalIgnoresTolerance(t *testing.T) {
	a, _ := NewFloat(1.0, 2.0, 0.01)
	b, _ := NewFloat(1.005, 1.995, 0.01)

	assert.False(t, a.Identical(b))
	assert.True(t, a.Identical(a))
	assert.True(t, Empty[float64]().Identical(Empty[float64]()))
	assert.False(t, NewSet(a).Identical(NewSet(b)))
	assert.True(t, NewSet(a, b).Identical(NewSet(a)))
}

func TestIntegerEqualityIsExact(t *testing.T) {
	a, _ := NewInt(1, 2)
	b, _ := NewInt(1, 3)
	assert.False(t, a.Equal(b))
	assert.True(t, a.Equal(a))
}

func TestIntervalSupersetAndContains(t *testing.T) {
	outer, _ := NewFloat(0, 10, 0.1)
	inner, _ := NewFloat(2, 10.05, 0)

	assert.True(t, outer.IsSupersetOf(inner))
	assert.False(t, inner.IsSupersetOf(outer))
	assert.True(t, outer.Contains(-0.05))
	assert.False(t, outer.Contains(-0.5))

	assert.False(t, Empty[float64]().IsSupersetOf(inner))
	assert.True(t, Empty[float64]().IsSupersetOf(Empty[float64]()))
}

func TestIntersectWithinTolerance(t *testing.T) {
	a, _ := NewFloat(0, 1.0, 0.01)
	b, _ := NewFloat(1.005, 2, 0.01)

	got := a.Intersect(b)
	require.False(t, got.IsEmpty())
	assert.InDelta(t, 1.0, got.Min(), 1e-12)
	assert.InDelta(t, 1.005, got.Max(), 1e-12)

	c, _ := NewFloat(1.5, 2, 0.01)
	assert.True(t, a.Intersect(c).IsEmpty())
}

func TestLimits(t *testing.T) {
	lo, hi := Limits[int32]()
	assert.Equal(t, int32(math.MinInt32), lo)
	assert.Equal(t, int32(math.MaxInt32), hi)

	flo, fhi := Limits[float64]()
	assert.Equal(t, -math.MaxFloat64, flo)
	assert.Equal(t, math.MaxFloat64, fhi)
}

func TestPointIsPoint(t *testing.T) {
	p := Point(4.2, 0.001)
	assert.True(t, p.IsPoint())
	assert.Equal(t, "[4.2, 4.2]", p.String())
	assert.Equal(t, "∅", Empty[int32]().String())
}
