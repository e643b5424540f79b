package csp

import (
	"fmt"
	"slices"
)

// branch is the conjunction of every constraint sharing one condition.
type branch struct {
	cond        CondID
	constraints []Constraint
}

// group gathers the conditional constraints that target one variable.
type group struct {
	lhs      string
	branches []*branch
	// viability used by the last dilation
	dilated []bool
}

// conditionGroups indexes conditional constraints by left-hand variable and
// then by condition. Both levels keep insertion order.
func (s *Solver) conditionGroups() []*group {
	var groups []*group
	byLHS := make(map[string]*group)
	for _, rec := range s.constraints {
		c := rec.Constraint
		if !c.IsConditional() {
			continue
		}
		g, ok := byLHS[c.LHS]
		if !ok {
			g = &group{lhs: c.LHS}
			byLHS[c.LHS] = g
			groups = append(groups, g)
		}
		idx := slices.IndexFunc(g.branches, func(b *branch) bool { return b.cond == c.Cond })
		if idx < 0 {
			g.branches = append(g.branches, &branch{cond: c.Cond})
			idx = len(g.branches) - 1
		}
		g.branches[idx].constraints = append(g.branches[idx].constraints, c)
	}
	return groups
}

func (s *Solver) propagate() (int, error) {
	for key, v := range s.vars {
		s.limits[key] = v.full()
	}
	groups := s.conditionGroups()

	for iteration := 1; iteration <= s.maxIterations; iteration++ {
		snapshot := s.limits.Clone()

		for _, g := range groups {
			s.dilate(g)
		}
		s.erodeConstants()
		s.erodeLinked()
		for _, g := range groups {
			s.erodeConditions(g)
		}

		// exact; a strict cycle creeps by one ULP per pass
		if s.limits.Identical(snapshot) {
			return iteration, nil
		}
	}
	return s.maxIterations, fmt.Errorf("%w: no fixed point after %d iterations over %d constraints",
		ErrMaxPropagationLoops, s.maxIterations, len(s.constraints))
}

// implied returns the region a branch allows for its left-hand variable.
func (s *Solver) implied(b *branch) Region {
	v := s.vars[b.constraints[0].LHS]
	r := v.full()
	for _, c := range b.constraints {
		r = r.intersect(v.relation(c.Op, c.RHS.Value()))
	}
	return r
}

// condRegions folds a condition chain into one allowed region per tested
// variable.
func (s *Solver) condRegions(id CondID) map[string]Region {
	out := make(map[string]Region, 1)
	for ; id != NoCondition; id = s.conds[id].And {
		cond := s.conds[id]
		rel := s.vars[cond.Var].relation(cond.Op, cond.RHS.Value())
		if r, ok := out[cond.Var]; ok {
			rel = r.intersect(rel)
		}
		out[cond.Var] = rel
	}
	return out
}

// holds reports whether a condition chain can still be met by the current
// regions of the variables it tests.
func (s *Solver) holds(id CondID) bool {
	for key, rel := range s.condRegions(id) {
		if s.limits[key].intersect(rel).IsEmpty() {
			return false
		}
	}
	return true
}

// viable reports, per branch, whether its condition holds. An otherwise
// branch is viable only when no other branch of the group is.
func (s *Solver) viable(g *group) []bool {
	out := make([]bool, len(g.branches))
	anyHolds := false
	for i, b := range g.branches {
		cond := s.conds[b.cond]
		if cond.Otherwise {
			continue
		}
		out[i] = s.holds(b.cond)
		anyHolds = anyHolds || out[i]
	}
	if !anyHolds {
		for i, b := range g.branches {
			if s.conds[b.cond].Otherwise {
				out[i] = true
			}
		}
	}
	return out
}

// dilate rebuilds the region of a conditional variable as the union of its
// viable branches. With no viable branch the region is empty.
func (s *Solver) dilate(g *group) {
	region := emptyRegion(s.vars[g.lhs].kind)
	g.dilated = s.viable(g)
	for i, ok := range g.dilated {
		if ok {
			region = region.union(s.implied(g.branches[i]))
		}
	}
	s.limits[g.lhs] = region
}

func (s *Solver) erodeConstants() {
	for _, rec := range s.constraints {
		c := rec.Constraint
		if c.IsConditional() || !c.RHS.IsConst() {
			continue
		}
		v := s.vars[c.LHS]
		s.limits[c.LHS] = s.limits[c.LHS].intersect(v.relation(c.Op, c.RHS.Value()))
	}
}

// erodeLinked narrows both sides of every variable-to-variable constraint.
// Each side is computed from the other side's region before the update.
func (s *Solver) erodeLinked() {
	for _, rec := range s.constraints {
		c := rec.Constraint
		if !c.RHS.IsVar() {
			continue
		}
		lk, rk := c.LHS, c.RHS.Key()
		left, right := s.limits[lk], s.limits[rk]

		if lk == rk {
			if c.Op == OpGT || c.Op == OpLT {
				s.limits[lk] = emptyRegion(left.kind)
			}
			continue
		}

		lv, rv := s.vars[lk], s.vars[rk]
		s.limits[lk] = left.intersect(lv.linked(c.Op, right))
		s.limits[rk] = right.intersect(rv.linked(c.Op.converse(), left))
	}
}

// erodeConditions narrows the condition variable of a group to the values
// whose branch is still compatible with the left-hand region. It only applies
// when every non-otherwise branch tests one and the same variable and no
// otherwise branch is compatible. A group whose viability changed since its
// dilation is left for the next iteration.
func (s *Solver) erodeConditions(g *group) {
	if !slices.Equal(g.dilated, s.viable(g)) {
		return
	}
	lhs := s.limits[g.lhs]
	condVar := ""
	var allowed Region
	for _, b := range g.branches {
		if s.conds[b.cond].Otherwise {
			if !lhs.intersect(s.implied(b)).IsEmpty() {
				return
			}
			continue
		}
		regions := s.condRegions(b.cond)
		if len(regions) != 1 {
			return
		}
		for key, rel := range regions {
			switch {
			case condVar == "":
				condVar = key
				allowed = emptyRegion(rel.kind)
			case condVar != key:
				return
			}
			if !lhs.intersect(s.implied(b)).IsEmpty() {
				allowed = allowed.union(rel)
			}
		}
	}
	if condVar == "" || condVar == g.lhs {
		return
	}
	s.limits[condVar] = s.limits[condVar].intersect(allowed)
}
