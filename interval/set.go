package interval

import (
	"slices"
	"strings"
)

// Set is an ordered union of pairwise disjoint, non-adjacent intervals. The
// zero value is the empty set. Sets are immutable: UnionOf and IntersectionOf
// return new values and never modify their inputs.
type Set[T Number] struct {
	ivs []Interval[T]
}

// NewSet builds the union of the given intervals.
func NewSet[T Number](ivs ...Interval[T]) Set[T] {
	var s Set[T]
	for _, iv := range ivs {
		s = UnionOf(s, iv)
	}
	return s
}

// FullSet returns the set covering the whole domain of T.
func FullSet[T Number](tol T) Set[T] {
	return Set[T]{ivs: []Interval[T]{Full(tol)}}
}

// UnionOf dilates s by iv. Every interval of s that overlaps or touches iv is
// absorbed into a single hull; the rest keep their order around it.
func UnionOf[T Number](s Set[T], iv Interval[T]) Set[T] {
	if iv.IsEmpty() {
		return s
	}

	out := make([]Interval[T], 0, len(s.ivs)+1)
	merged := iv
	placed := false
	for _, cur := range s.ivs {
		switch {
		case placed:
			out = append(out, cur)
		case cur.touches(merged):
			merged = merged.Hull(cur)
		case cur.max < merged.min:
			out = append(out, cur)
		default:
			out = append(out, merged, cur)
			placed = true
		}
	}
	if !placed {
		out = append(out, merged)
	}
	return Set[T]{ivs: out}
}

// IntersectionOf erodes s by iv: each interval is clipped to its overlap with
// iv and intervals without overlap are dropped.
func IntersectionOf[T Number](s Set[T], iv Interval[T]) Set[T] {
	if s.IsEmpty() || iv.IsEmpty() {
		return Set[T]{}
	}

	var out Set[T]
	for _, cur := range s.ivs {
		if clipped := cur.Intersect(iv); !clipped.IsEmpty() {
			out = UnionOf(out, clipped)
		}
	}
	return out
}

// Union returns s ∪ o.
func (s Set[T]) Union(o Set[T]) Set[T] {
	out := s
	for _, iv := range o.ivs {
		out = UnionOf(out, iv)
	}
	return out
}

// Intersect returns s ∩ o.
func (s Set[T]) Intersect(o Set[T]) Set[T] {
	var out Set[T]
	for _, iv := range o.ivs {
		out = out.Union(IntersectionOf(s, iv))
	}
	return out
}

// IsEmpty reports whether the set holds no values.
func (s Set[T]) IsEmpty() bool { return len(s.ivs) == 0 }

// Len returns the number of disjoint intervals in the set.
func (s Set[T]) Len() int { return len(s.ivs) }

// Intervals returns a copy of the constituent intervals in ascending order.
func (s Set[T]) Intervals() []Interval[T] { return slices.Clone(s.ivs) }

// Min returns the smallest value of the set, or the zero value when empty.
func (s Set[T]) Min() T {
	if s.IsEmpty() {
		var zero T
		return zero
	}
	return s.ivs[0].min
}

// Max returns the largest value of the set, or the zero value when empty.
func (s Set[T]) Max() T {
	if s.IsEmpty() {
		var zero T
		return zero
	}
	return s.ivs[len(s.ivs)-1].max
}

// Hull returns the smallest single interval covering the set.
func (s Set[T]) Hull() Interval[T] {
	var out Interval[T]
	for _, iv := range s.ivs {
		out = out.Hull(iv)
	}
	return out
}

// Contains reports whether v is a member of the set.
func (s Set[T]) Contains(v T) bool {
	for _, iv := range s.ivs {
		if iv.Contains(v) {
			return true
		}
	}
	return false
}

// IsSupersetOf reports whether a single interval of s covers iv. The empty set
// is a superset only of the empty interval.
func (s Set[T]) IsSupersetOf(iv Interval[T]) bool {
	if iv.IsEmpty() {
		return true
	}
	for _, cur := range s.ivs {
		if cur.IsSupersetOf(iv) {
			return true
		}
	}
	return false
}

// IsSupersetOfSet reports whether every interval of o is covered by s.
func (s Set[T]) IsSupersetOfSet(o Set[T]) bool {
	for _, iv := range o.ivs {
		if !s.IsSupersetOf(iv) {
			return false
		}
	}
	return true
}

// Equal compares two sets interval by interval.
func (s Set[T]) Equal(o Set[T]) bool {
	return slices.EqualFunc(s.ivs, o.ivs, Interval[T].Equal)
}

// Identical reports whether both sets hold exactly the same bounds.
func (s Set[T]) Identical(o Set[T]) bool {
	return slices.EqualFunc(s.ivs, o.ivs, Interval[T].Identical)
}

func (s Set[T]) String() string {
	if s.IsEmpty() {
		return "∅"
	}
	parts := make([]string, len(s.ivs))
	for i, iv := range s.ivs {
		parts[i] = iv.String()
	}
	return strings.Join(parts, " ∪ ")
}
