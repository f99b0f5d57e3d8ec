package optimization

import "github.com/aristath/quantfolio/internal/modules/backtest"

// Trial is one completed evaluation of the objective function.
type Trial struct {
	Params  map[string]float64
	Loss    float64
	Metrics backtest.Metrics
}

// trialLog accumulates completed trials for the sampler and tracks the
// incumbent best (lowest loss, first on ties).
type trialLog struct {
	all []Trial
}

func (t *trialLog) add(trial Trial) {
	t.all = append(t.all, trial)
}

func (t *trialLog) best() (Trial, bool) {
	if len(t.all) == 0 {
		return Trial{}, false
	}
	best := t.all[0]
	for _, trial := range t.all[1:] {
		if trial.Loss < best.Loss {
			best = trial
		}
	}
	return best, true
}
