package allocation

import "math"

// Weighting scheme names. The final allocation blends two of them according
// to the portfolio's risk tolerance.
const (
	MethodEqualWeight    = "equal_weight"
	MethodReturnWeighted = "return_weighted"
	MethodSharpeWeighted = "sharpe_weighted"
	MethodRiskParity     = "risk_parity"
	MethodRiskAdjusted   = "risk_adjusted"
	MethodFinal          = "final"
)

// minRisk floors the drawdown-based risk measure so inverse-risk weights
// stay finite.
const minRisk = 0.01

func equalWeights(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 1.0 / float64(n)
	}
	return w
}

// shiftPositive makes all values strictly positive by shifting them up when
// any are negative, preserving their ordering.
func shiftPositive(vals []float64) []float64 {
	minVal := math.Inf(1)
	for _, v := range vals {
		if v < minVal {
			minVal = v
		}
	}

	out := make([]float64, len(vals))
	copy(out, vals)
	if minVal < 0 {
		for i := range out {
			out[i] += -minVal + 0.1
		}
	}
	return out
}

func normalize(vals []float64) []float64 {
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	out := make([]float64, len(vals))
	if sum == 0 {
		return equalWeights(len(vals))
	}
	for i, v := range vals {
		out[i] = v / sum
	}
	return out
}

func returnWeighted(returns []float64) []float64 {
	return normalize(shiftPositive(returns))
}

func sharpeWeighted(sharpes []float64) []float64 {
	return normalize(shiftPositive(sharpes))
}

func riskParity(risks []float64) []float64 {
	inv := make([]float64, len(risks))
	for i, r := range risks {
		inv[i] = 1.0 / r
	}
	return normalize(inv)
}

func riskAdjusted(returns, risks []float64) []float64 {
	adj := make([]float64, len(returns))
	for i := range returns {
		adj[i] = returns[i] / risks[i]
	}
	return normalize(shiftPositive(adj))
}

// blend combines the weighting schemes according to risk tolerance: low
// tolerance leans on risk parity, high tolerance on risk-adjusted return.
// The result is renormalized to sum to one.
func blend(riskTolerance float64, schemes map[string][]float64) []float64 {
	var a, b []float64
	var wa, wb float64

	switch {
	case riskTolerance <= 0.25:
		a, wa = schemes[MethodRiskParity], 0.75
		b, wb = schemes[MethodSharpeWeighted], 0.25
	case riskTolerance <= 0.5:
		a, wa = schemes[MethodRiskParity], 0.5
		b, wb = schemes[MethodSharpeWeighted], 0.5
	case riskTolerance <= 0.75:
		a, wa = schemes[MethodSharpeWeighted], 0.5
		b, wb = schemes[MethodRiskAdjusted], 0.5
	default:
		a, wa = schemes[MethodSharpeWeighted], 0.25
		b, wb = schemes[MethodRiskAdjusted], 0.75
	}

	out := make([]float64, len(a))
	for i := range out {
		out[i] = wa*a[i] + wb*b[i]
	}
	return normalize(out)
}
