package formulas

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMean(t *testing.T) {
	assert.Equal(t, 0.0, Mean(nil))
	assert.InDelta(t, 2.0, Mean([]float64{1, 2, 3}), 1e-9)
}

func TestStdDev(t *testing.T) {
	assert.Equal(t, 0.0, StdDev([]float64{1}))
	// Sample standard deviation of {2, 4, 4, 4, 5, 5, 7, 9}
	assert.InDelta(t, 2.138, StdDev([]float64{2, 4, 4, 4, 5, 5, 7, 9}), 0.001)
}

func TestCalculateReturns(t *testing.T) {
	returns := CalculateReturns([]float64{100, 110, 99})
	assert.Len(t, returns, 2)
	assert.InDelta(t, 0.10, returns[0], 1e-9)
	assert.InDelta(t, -0.10, returns[1], 1e-9)

	assert.Empty(t, CalculateReturns([]float64{100}))
}

func TestRollingMean(t *testing.T) {
	data := []float64{1, 2, 3, 4, 5}

	out := RollingMean(data, 3)
	assert.Len(t, out, 5)
	assert.True(t, math.IsNaN(out[0]))
	assert.True(t, math.IsNaN(out[1]))
	assert.InDelta(t, 2.0, out[2], 1e-9)
	assert.InDelta(t, 3.0, out[3], 1e-9)
	assert.InDelta(t, 4.0, out[4], 1e-9)
}

func TestRollingMean_RecoversAfterNaNPrefix(t *testing.T) {
	// Indicator series start with a NaN warm-up prefix. Windows overlapping
	// the prefix are undefined, but once the window has moved fully past it
	// the mean must be defined again.
	const prefix, window = 30, 20
	data := make([]float64, 100)
	for i := range data {
		if i < prefix {
			data[i] = math.NaN()
		} else {
			data[i] = float64(i)
		}
	}

	out := RollingMean(data, window)

	for i := 0; i < prefix+window-1; i++ {
		assert.Truef(t, math.IsNaN(out[i]), "index %d should be undefined", i)
	}
	for i := prefix + window - 1; i < len(data); i++ {
		assert.Falsef(t, math.IsNaN(out[i]), "index %d should be defined", i)
	}
	// Window [30..49]: mean of 30..49 = 39.5
	assert.InDelta(t, 39.5, out[49], 1e-9)
	assert.InDelta(t, 89.5, out[99], 1e-9)
}

func TestRollingStdDev(t *testing.T) {
	data := []float64{1, 1, 1, 5, 1}

	out := RollingStdDev(data, 3)
	assert.True(t, math.IsNaN(out[1]))
	assert.InDelta(t, 0.0, out[2], 1e-9)
	assert.Greater(t, out[3], 0.0)
}

func TestRollingMean_WindowLargerThanData(t *testing.T) {
	out := RollingMean([]float64{1, 2}, 5)
	for _, v := range out {
		assert.True(t, math.IsNaN(v))
	}
}
