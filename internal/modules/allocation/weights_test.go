package allocation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertSumsToOne(t *testing.T, weights []float64) {
	t.Helper()
	sum := 0.0
	for _, w := range weights {
		require.GreaterOrEqual(t, w, 0.0)
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestEqualWeights(t *testing.T) {
	w := equalWeights(4)
	assertSumsToOne(t, w)
	for _, v := range w {
		assert.Equal(t, 0.25, v)
	}
}

func TestShiftPositive(t *testing.T) {
	shifted := shiftPositive([]float64{-2, 0, 3})
	assert.InDelta(t, 0.1, shifted[0], 1e-9)
	assert.InDelta(t, 2.1, shifted[1], 1e-9)
	assert.InDelta(t, 5.1, shifted[2], 1e-9)

	// Already positive values are untouched.
	assert.Equal(t, []float64{1, 2}, shiftPositive([]float64{1, 2}))
}

func TestReturnWeightedOrdering(t *testing.T) {
	w := returnWeighted([]float64{-5, 2, 10})
	assertSumsToOne(t, w)
	assert.Less(t, w[0], w[1])
	assert.Less(t, w[1], w[2])
}

func TestRiskParityFavorsLowRisk(t *testing.T) {
	w := riskParity([]float64{0.1, 0.2, 0.4})
	assertSumsToOne(t, w)
	assert.Greater(t, w[0], w[1])
	assert.Greater(t, w[1], w[2])
}

func TestRiskAdjusted(t *testing.T) {
	w := riskAdjusted([]float64{10, 10}, []float64{0.1, 0.2})
	assertSumsToOne(t, w)
	assert.Greater(t, w[0], w[1])
}

func TestBlendBrackets(t *testing.T) {
	schemes := map[string][]float64{
		MethodRiskParity:     {0.8, 0.2},
		MethodSharpeWeighted: {0.4, 0.6},
		MethodRiskAdjusted:   {0.2, 0.8},
	}

	tests := []struct {
		riskTolerance float64
		want          []float64
	}{
		{0.1, []float64{0.75*0.8 + 0.25*0.4, 0.75*0.2 + 0.25*0.6}},
		{0.25, []float64{0.75*0.8 + 0.25*0.4, 0.75*0.2 + 0.25*0.6}},
		{0.5, []float64{0.5*0.8 + 0.5*0.4, 0.5*0.2 + 0.5*0.6}},
		{0.75, []float64{0.5*0.4 + 0.5*0.2, 0.5*0.6 + 0.5*0.8}},
		{0.9, []float64{0.25*0.4 + 0.75*0.2, 0.25*0.6 + 0.75*0.8}},
	}

	for _, tt := range tests {
		got := blend(tt.riskTolerance, schemes)
		assertSumsToOne(t, got)
		for i := range tt.want {
			assert.InDeltaf(t, tt.want[i], got[i], 1e-9, "risk tolerance %v index %d", tt.riskTolerance, i)
		}
	}
}

func TestNormalizeZeroSum(t *testing.T) {
	w := normalize([]float64{0, 0, 0})
	assertSumsToOne(t, w)
}
