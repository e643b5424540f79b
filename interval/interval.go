// Package interval implements closed numeric intervals and ordered unions of
// them. The two element types are bounded 32-bit integers and float64 values;
// float intervals carry a comparison tolerance that is used for equality and
// containment checks.
package interval

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidArgument reports a malformed interval (min > max, NaN bounds or a
// negative tolerance).
var ErrInvalidArgument = errors.New("invalid argument")

// Number is the set of element types an Interval can hold.
type Number interface {
	~int32 | ~float64
}

// Interval is the closed range [min, max]. The zero value is the empty
// interval.
type Interval[T Number] struct {
	min, max T
	tol      T
	nonEmpty bool
}

// New constructs [min, max] with the given tolerance. Integer intervals ignore
// the tolerance and compare exactly.
func New[T Number](min, max, tol T) (Interval[T], error) {
	if min != min || max != max || tol != tol {
		return Interval[T]{}, fmt.Errorf("%w: NaN bound", ErrInvalidArgument)
	}
	if tol < 0 {
		return Interval[T]{}, fmt.Errorf("%w: negative tolerance %v", ErrInvalidArgument, tol)
	}
	if min > max {
		return Interval[T]{}, fmt.Errorf("%w: min %v > max %v", ErrInvalidArgument, min, max)
	}
	if Integral[T]() {
		tol = 0
	}
	return Interval[T]{min: min, max: max, tol: tol, nonEmpty: true}, nil
}

// NewInt constructs an integer interval.
func NewInt(min, max int32) (Interval[int32], error) {
	return New(min, max, 0)
}

// NewFloat constructs a float interval. The tolerance is mandatory for
// floating point ranges.
func NewFloat(min, max, tol float64) (Interval[float64], error) {
	return New(min, max, tol)
}

// Point returns the degenerate interval [v, v]. A negative tolerance is
// treated as zero.
func Point[T Number](v, tol T) Interval[T] {
	if tol < 0 || Integral[T]() {
		tol = 0
	}
	return Interval[T]{min: v, max: v, tol: tol, nonEmpty: true}
}

// Empty returns the empty interval.
func Empty[T Number]() Interval[T] {
	return Interval[T]{}
}

// Full returns the whole representable domain of T.
func Full[T Number](tol T) Interval[T] {
	lo, hi := Limits[T]()
	if tol < 0 || Integral[T]() {
		tol = 0
	}
	return Interval[T]{min: lo, max: hi, tol: tol, nonEmpty: true}
}

// Limits returns the smallest and largest finite values of T:
// [MinInt32, MaxInt32] or [-MaxFloat64, MaxFloat64].
func Limits[T Number]() (T, T) {
	if Integral[T]() {
		lo, hi := int64(math.MinInt32), int64(math.MaxInt32)
		return T(lo), T(hi)
	}
	hi := math.MaxFloat64
	return T(-hi), T(hi)
}

// Integral reports whether T is the integer element type.
func Integral[T Number]() bool {
	var one T = 1
	return one/2 == 0
}

// IsEmpty reports whether the interval holds no values.
func (iv Interval[T]) IsEmpty() bool { return !iv.nonEmpty }

// Min returns the lower bound. It is meaningless for the empty interval.
func (iv Interval[T]) Min() T { return iv.min }

// Max returns the upper bound. It is meaningless for the empty interval.
func (iv Interval[T]) Max() T { return iv.max }

// Tolerance returns the comparison tolerance (always 0 for integers).
func (iv Interval[T]) Tolerance() T { return iv.tol }

// IsPoint reports whether the interval is a single value, up to tolerance.
func (iv Interval[T]) IsPoint() bool {
	return iv.nonEmpty && float64(iv.max)-float64(iv.min) <= float64(iv.tol)
}

// Contains reports whether v lies inside the interval, up to tolerance.
func (iv Interval[T]) Contains(v T) bool {
	if !iv.nonEmpty {
		return false
	}
	tol := float64(iv.tol)
	return float64(v) >= float64(iv.min)-tol && float64(v) <= float64(iv.max)+tol
}

// IsSupersetOf reports whether every value of o lies in iv. The empty
// interval is a superset only of itself.
func (iv Interval[T]) IsSupersetOf(o Interval[T]) bool {
	if !o.nonEmpty {
		return true
	}
	if !iv.nonEmpty {
		return false
	}
	tol := float64(maxOf(iv.tol, o.tol))
	return float64(o.min) >= float64(iv.min)-tol && float64(o.max) <= float64(iv.max)+tol
}

// Equal compares bounds exactly for integers and within the larger of the two
// tolerances for floats.
func (iv Interval[T]) Equal(o Interval[T]) bool {
	if !iv.nonEmpty || !o.nonEmpty {
		return iv.nonEmpty == o.nonEmpty
	}
	tol := float64(maxOf(iv.tol, o.tol))
	return math.Abs(float64(iv.min)-float64(o.min)) <= tol &&
		math.Abs(float64(iv.max)-float64(o.max)) <= tol
}

// Identical compares bounds exactly, ignoring tolerance.
func (iv Interval[T]) Identical(o Interval[T]) bool {
	if !iv.nonEmpty || !o.nonEmpty {
		return iv.nonEmpty == o.nonEmpty
	}
	return iv.min == o.min && iv.max == o.max
}

// Overlaps reports whether the two intervals share at least one value, up to
// tolerance.
func (iv Interval[T]) Overlaps(o Interval[T]) bool {
	if !iv.nonEmpty || !o.nonEmpty {
		return false
	}
	tol := float64(maxOf(iv.tol, o.tol))
	return float64(o.min) <= float64(iv.max)+tol && float64(iv.min) <= float64(o.max)+tol
}

// touches is Overlaps extended to adjacency: consecutive integers, or float
// intervals separated by no more than the tolerance.
func (iv Interval[T]) touches(o Interval[T]) bool {
	if !iv.nonEmpty || !o.nonEmpty {
		return false
	}
	gap := float64(maxOf(iv.tol, o.tol))
	if Integral[T]() {
		gap = 1
	}
	return float64(o.min) <= float64(iv.max)+gap && float64(iv.min) <= float64(o.max)+gap
}

// Intersect returns the overlap of the two intervals, or the empty interval.
// When the intervals only meet within tolerance the result spans the gap
// between them.
func (iv Interval[T]) Intersect(o Interval[T]) Interval[T] {
	if !iv.Overlaps(o) {
		return Interval[T]{}
	}
	lo, hi := maxOf(iv.min, o.min), minOf(iv.max, o.max)
	if lo > hi {
		lo, hi = hi, lo
	}
	return Interval[T]{min: lo, max: hi, tol: maxOf(iv.tol, o.tol), nonEmpty: true}
}

// Hull returns the smallest interval containing both operands.
func (iv Interval[T]) Hull(o Interval[T]) Interval[T] {
	switch {
	case !iv.nonEmpty:
		return o
	case !o.nonEmpty:
		return iv
	}
	return Interval[T]{
		min:      minOf(iv.min, o.min),
		max:      maxOf(iv.max, o.max),
		tol:      maxOf(iv.tol, o.tol),
		nonEmpty: true,
	}
}

func (iv Interval[T]) String() string {
	if !iv.nonEmpty {
		return "∅"
	}
	return fmt.Sprintf("[%v, %v]", iv.min, iv.max)
}

func minOf[T Number](a, b T) T {
	if a < b {
		return a
	}
	return b
}

func maxOf[T Number](a, b T) T {
	if a > b {
		return a
	}
	return b
}
