package csp

import (
	"testing"

	"github.com/signalsfoundry/radio-emulator/interval"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func floatRegion(t *testing.T, lo, hi float64) Region {
	t.Helper()
	iv, err := interval.NewFloat(lo, hi, 1e-6)
	require.NoError(t, err)
	return FloatRegion(interval.NewSet(iv))
}

func TestErodeConditionsWaitsForStableViability(t *testing.T) {
	s := NewSolver()
	gainBands(t, s, false)
	groups := s.conditionGroups()
	require.Len(t, groups, 1)
	g := groups[0]

	// both bands viable at dilation, then freq moves into the high band only
	s.dilate(g)
	require.Equal(t, []bool{true, true}, g.dilated)
	s.limits["freq"] = floatRegion(t, 1500, 6000)
	s.limits["gain"] = floatRegion(t, 65, 65)

	s.erodeConditions(g)
	assert.Equal(t, 1500.0, s.limits["freq"].Min())
	assert.Equal(t, 6000.0, s.limits["freq"].Max())

	// with viability unchanged since dilation the condition variable narrows
	s.limits["freq"] = floatRegion(t, 70, 6000)
	s.dilate(g)
	s.limits["gain"] = floatRegion(t, 65, 65)
	s.erodeConditions(g)
	assert.Equal(t, 70.0, s.limits["freq"].Min())
	assert.Equal(t, 1000.0, s.limits["freq"].Max())
}
