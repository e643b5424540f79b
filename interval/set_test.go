package interval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ints(t *testing.T, bounds ...int32) []Interval[int32] {
	t.Helper()
	require.Zero(t, len(bounds)%2, "bounds come in pairs")
	out := make([]Interval[int32], 0, len(bounds)/2)
	for i := 0; i < len(bounds); i += 2 {
		iv, err := NewInt(bounds[i], bounds[i+1])
		require.NoError(t, err)
		out = append(out, iv)
	}
	return out
}

func TestUnionOfAppendsDisjointTail(t *testing.T) {
	s := NewSet(ints(t, 0, 2)...)
	iv := ints(t, 10, 12)[0]

	got := UnionOf(s, iv)
	assert.Equal(t, "[0, 2] ∪ [10, 12]", got.String())
	// the input is untouched
	assert.Equal(t, "[0, 2]", s.String())
}

func TestUnionOfMergesAndAbsorbs(t *testing.T) {
	s := NewSet(ints(t, 0, 2, 5, 6, 8, 9, 20, 30)...)
	got := UnionOf(s, ints(t, 3, 8)[0])

	// [0,2] touches 3, [5,6] is covered, [8,9] overlaps
	assert.Equal(t, "[0, 9] ∪ [20, 30]", got.String())
}

func TestUnionOfInsertsInOrder(t *testing.T) {
	s := NewSet(ints(t, 20, 30, 0, 2)...)
	got := UnionOf(s, ints(t, 10, 12)[0])
	assert.Equal(t, "[0, 2] ∪ [10, 12] ∪ [20, 30]", got.String())
}

func TestUnionOfFloatsMergesWithinTolerance(t *testing.T) {
	a, _ := NewFloat(0, 1, 0.01)
	b, _ := NewFloat(1.005, 2, 0.01)
	c, _ := NewFloat(2.5, 3, 0.01)

	got := NewSet(a, b, c)
	require.Equal(t, 2, got.Len())
	assert.Equal(t, 0.0, got.Min())
	assert.Equal(t, 3.0, got.Max())
}

func TestUnionIsSupersetOfOperands(t *testing.T) {
	a := NewSet(ints(t, 0, 4, 10, 14)...)
	b := NewSet(ints(t, 3, 11, 40, 41)...)

	u := a.Union(b)
	assert.True(t, u.IsSupersetOfSet(a))
	assert.True(t, u.IsSupersetOfSet(b))
	assert.True(t, a.Union(a).Equal(a))
}

func TestIntersectionOfClipsAndDrops(t *testing.T) {
	s := NewSet(ints(t, 0, 5, 10, 15, 20, 25)...)
	got := IntersectionOf(s, ints(t, 3, 12)[0])
	assert.Equal(t, "[3, 5] ∪ [10, 12]", got.String())

	assert.True(t, IntersectionOf(Set[int32]{}, ints(t, 0, 1)[0]).IsEmpty())
	assert.True(t, IntersectionOf(s, Empty[int32]()).IsEmpty())
}

func TestIntersectLaws(t *testing.T) {
	a := NewSet(ints(t, 0, 4, 10, 14)...)
	b := NewSet(ints(t, 3, 11)...)
	disjoint := NewSet(ints(t, 100, 200)...)

	assert.True(t, a.Intersect(a).Equal(a))
	assert.True(t, a.Intersect(disjoint).IsEmpty())

	x := a.Intersect(b)
	assert.Equal(t, "[3, 4] ∪ [10, 11]", x.String())
	for _, v := range []int32{3, 4, 10, 11} {
		assert.True(t, a.Contains(v) && b.Contains(v))
		assert.True(t, x.Contains(v))
	}
	for _, v := range []int32{0, 5, 9, 12} {
		assert.False(t, x.Contains(v))
	}
}

func TestSetSupersetOfEmpty(t *testing.T) {
	var empty Set[int32]
	assert.True(t, empty.IsSupersetOf(Empty[int32]()))
	assert.False(t, empty.IsSupersetOf(ints(t, 1, 1)[0]))
	assert.False(t, empty.Contains(0))
	assert.Equal(t, "∅", empty.String())
}

func TestFullSetBounds(t *testing.T) {
	full := FullSet[int32](0)
	lo, hi := Limits[int32]()
	assert.Equal(t, lo, full.Min())
	assert.Equal(t, hi, full.Max())
	assert.True(t, full.Hull().Equal(Full[int32](0)))
}
