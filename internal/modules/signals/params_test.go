package signals

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFractalLagsFor_Buckets(t *testing.T) {
	testCases := []struct {
		window   int
		expected []int
	}{
		{30, []int{5, 10, 20}},
		{50, []int{5, 10, 20}},
		{51, []int{10, 20, 40}},
		{100, []int{10, 20, 40}},
		{150, []int{15, 30, 60}},
		{200, []int{15, 30, 60}},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.expected, FractalLagsFor(tc.window), "window %d", tc.window)
	}
}

func TestDefault_IsValid(t *testing.T) {
	p := Default()
	require.NoError(t, p.Validate())

	// Daily and weekly weights each sum to 1.0
	w := p.Weights
	assert.InDelta(t, 1.0, w.MACD+w.RSI+w.Stoch+w.Complexity, 1e-9)
	assert.InDelta(t, 1.0, w.WeeklyMACD+w.WeeklyRSI+w.WeeklyStoch+w.WeeklyComplexity, 1e-9)
}

func TestWeightPresets_SumToOne(t *testing.T) {
	for i, w := range WeightPresets() {
		assert.InDelta(t, 1.0, w.MACD+w.RSI+w.Stoch+w.Complexity, 1e-9, "preset %d daily", i)
		assert.InDelta(t, 1.0, w.WeeklyMACD+w.WeeklyRSI+w.WeeklyStoch+w.WeeklyComplexity, 1e-9, "preset %d weekly", i)
	}
}

func TestValidate_RejectsBadPeriods(t *testing.T) {
	p := Default()
	p.MACDFast = 30 // >= slow
	assert.Error(t, p.Validate())

	p = Default()
	p.RSIPeriod = 1
	assert.Error(t, p.Validate())

	p = Default()
	p.Reactivity = 0
	assert.Error(t, p.Validate())
}

func TestParseParameters_RoundTrip(t *testing.T) {
	original := Default()
	original.MACDFast = 10
	original.FractalWindow = 150
	original.FractalLags = FractalLagsFor(150)

	encoded, err := original.Encode()
	require.NoError(t, err)

	decoded, err := ParseParameters(encoded)
	require.NoError(t, err)
	assert.Equal(t, original, decoded)
}

func TestParseParameters_EmptyYieldsDefault(t *testing.T) {
	p, err := ParseParameters("")
	require.NoError(t, err)
	assert.Equal(t, Default(), p)

	p, err = ParseParameters("{}")
	require.NoError(t, err)
	assert.Equal(t, Default(), p)
}

func TestParseParameters_DerivesLags(t *testing.T) {
	p, err := ParseParameters(`{"fractal_window": 200, "macd_fast": 12, "macd_slow": 26, "macd_signal": 9, "rsi_period": 14, "stochastic_k_period": 14, "stochastic_d_period": 3, "sell_rolling_std": 20, "buy_rolling_std": 20, "reactivity": 1.0}`)
	require.NoError(t, err)
	assert.Equal(t, []int{15, 30, 60}, p.FractalLags)
}

func TestMaxWindow(t *testing.T) {
	p := Default()
	// FractalWindow 100 dominates the default set
	assert.Equal(t, 100, p.MaxWindow())

	p.FractalWindow = 50
	p.FractalLags = FractalLagsFor(50)
	// MACD slow+signal = 35 now dominates
	assert.Equal(t, 35, p.MaxWindow())
}
