package csp

import (
	"maps"
	"math"
	"sort"

	"github.com/signalsfoundry/radio-emulator/interval"
)

// Kind is the element type of a variable.
type Kind int

const (
	// KindInt variables range over bounded 32-bit integers.
	KindInt Kind = iota
	// KindFloat variables range over float64 values compared with a tolerance.
	KindFloat
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int32"
	case KindFloat:
		return "float64"
	default:
		return "unknown"
	}
}

// Region is the feasible region of one variable. Only the set matching Kind
// is meaningful.
type Region struct {
	kind   Kind
	ints   interval.Set[int32]
	floats interval.Set[float64]
}

// IntRegion wraps an integer set.
func IntRegion(s interval.Set[int32]) Region { return Region{kind: KindInt, ints: s} }

// FloatRegion wraps a float set.
func FloatRegion(s interval.Set[float64]) Region { return Region{kind: KindFloat, floats: s} }

func emptyRegion(kind Kind) Region { return Region{kind: kind} }

// Kind returns the element type of the region.
func (r Region) Kind() Kind { return r.kind }

// Ints returns the integer set of a KindInt region.
func (r Region) Ints() interval.Set[int32] { return r.ints }

// Floats returns the float set of a KindFloat region.
func (r Region) Floats() interval.Set[float64] { return r.floats }

// IsEmpty reports whether no value is feasible.
func (r Region) IsEmpty() bool {
	switch r.kind {
	case KindInt:
		return r.ints.IsEmpty()
	case KindFloat:
		return r.floats.IsEmpty()
	}
	return true
}

// Min returns the smallest feasible value, or NaN when the region is empty.
func (r Region) Min() float64 {
	if r.IsEmpty() {
		return math.NaN()
	}
	switch r.kind {
	case KindInt:
		return float64(r.ints.Min())
	default:
		return r.floats.Min()
	}
}

// Max returns the largest feasible value, or NaN when the region is empty.
func (r Region) Max() float64 {
	if r.IsEmpty() {
		return math.NaN()
	}
	switch r.kind {
	case KindInt:
		return float64(r.ints.Max())
	default:
		return r.floats.Max()
	}
}

// Contains reports whether v is feasible. Non-integral values are never
// members of an integer region.
func (r Region) Contains(v float64) bool {
	switch r.kind {
	case KindInt:
		if v != math.Trunc(v) || v < math.MinInt32 || v > math.MaxInt32 {
			return false
		}
		return r.ints.Contains(int32(v))
	case KindFloat:
		return r.floats.Contains(v)
	}
	return false
}

// Bounds returns the constituent intervals as [min, max] pairs.
func (r Region) Bounds() [][2]float64 {
	var out [][2]float64
	switch r.kind {
	case KindInt:
		for _, iv := range r.ints.Intervals() {
			out = append(out, [2]float64{float64(iv.Min()), float64(iv.Max())})
		}
	case KindFloat:
		for _, iv := range r.floats.Intervals() {
			out = append(out, [2]float64{iv.Min(), iv.Max()})
		}
	}
	return out
}

// Equal compares regions of the same kind; floats compare within tolerance.
func (r Region) Equal(o Region) bool {
	if r.kind != o.kind {
		return false
	}
	switch r.kind {
	case KindInt:
		return r.ints.Equal(o.ints)
	default:
		return r.floats.Equal(o.floats)
	}
}

// Identical is Equal without float tolerance.
func (r Region) Identical(o Region) bool {
	if r.kind != o.kind {
		return false
	}
	if r.kind == KindInt {
		return r.ints.Identical(o.ints)
	}
	return r.floats.Identical(o.floats)
}

func (r Region) String() string {
	switch r.kind {
	case KindInt:
		return r.ints.String()
	default:
		return r.floats.String()
	}
}

// union and intersect expect operands of the same kind; mixed-kind operands
// go through convertTo first.
func (r Region) union(o Region) Region {
	switch r.kind {
	case KindInt:
		return IntRegion(r.ints.Union(o.ints))
	default:
		return FloatRegion(r.floats.Union(o.floats))
	}
}

func (r Region) intersect(o Region) Region {
	switch r.kind {
	case KindInt:
		return IntRegion(r.ints.Intersect(o.ints))
	default:
		return FloatRegion(r.floats.Intersect(o.floats))
	}
}

// convertTo re-expresses r in another kind. Float intervals shrink inward to
// the integers they contain; integer intervals widen to floats with tol.
func (r Region) convertTo(kind Kind, tol float64) Region {
	if r.kind == kind {
		return r
	}
	switch kind {
	case KindInt:
		var out interval.Set[int32]
		for _, iv := range r.floats.Intervals() {
			if bounded, ok := intBounds(math.Ceil(iv.Min()), math.Floor(iv.Max())); ok {
				out = interval.UnionOf(out, bounded)
			}
		}
		return IntRegion(out)
	default:
		var out interval.Set[float64]
		for _, iv := range r.ints.Intervals() {
			if f, err := interval.NewFloat(float64(iv.Min()), float64(iv.Max()), tol); err == nil {
				out = interval.UnionOf(out, f)
			}
		}
		return FloatRegion(out)
	}
}

// intBounds clamps [lo, hi] to the int32 domain.
func intBounds(lo, hi float64) (interval.Interval[int32], bool) {
	lo = math.Max(lo, math.MinInt32)
	hi = math.Min(hi, math.MaxInt32)
	if math.IsNaN(lo) || math.IsNaN(hi) || lo > hi {
		return interval.Interval[int32]{}, false
	}
	iv, err := interval.NewInt(int32(lo), int32(hi))
	return iv, err == nil
}

// FeasibleRegionLimits maps every registered variable to its current region.
type FeasibleRegionLimits map[string]Region

// Clone returns a shallow copy; regions are immutable values.
func (l FeasibleRegionLimits) Clone() FeasibleRegionLimits {
	return maps.Clone(l)
}

// Equal reports whether both maps hold equal regions for the same keys.
func (l FeasibleRegionLimits) Equal(o FeasibleRegionLimits) bool {
	return maps.EqualFunc(l, o, Region.Equal)
}

// Identical compares every region exactly.
func (l FeasibleRegionLimits) Identical(o FeasibleRegionLimits) bool {
	return maps.EqualFunc(l, o, Region.Identical)
}

// Keys returns the variable keys in lexical order.
func (l FeasibleRegionLimits) Keys() []string {
	keys := make([]string, 0, len(l))
	for k := range l {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
