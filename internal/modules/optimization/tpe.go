package optimization

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/stat/distuv"
)

// tpeSampler implements Tree-structured Parzen Estimator sampling. Each
// dimension is modeled independently: completed trials are split by loss into
// a good set (the gamma fraction with the lowest losses) and a bad set, each
// set is turned into a kernel density estimate, and the next point maximizes
// the density ratio good/bad over a batch of candidates drawn from the good
// estimator.
type tpeSampler struct {
	space    []paramDef
	rng      *rand.Rand
	nStartup int     // random trials before the estimator kicks in
	gamma    float64 // fraction of trials considered good
	nCand    int     // candidates scored per dimension
}

func newTPESampler(space []paramDef, rng *rand.Rand) *tpeSampler {
	return &tpeSampler{
		space:    space,
		rng:      rng,
		nStartup: 10,
		gamma:    0.25,
		nCand:    24,
	}
}

// suggest produces the next point to evaluate given the trial history.
func (s *tpeSampler) suggest(history []Trial) map[string]float64 {
	sample := make(map[string]float64, len(s.space))

	if len(history) < s.nStartup {
		for _, d := range s.space {
			sample[d.name] = s.sampleUniform(d)
		}
		return sample
	}

	good, bad := s.split(history)
	for _, d := range s.space {
		if d.kind == kindChoice {
			sample[d.name] = s.suggestChoice(d, good, bad)
		} else {
			sample[d.name] = s.suggestNumeric(d, good, bad)
		}
	}
	return sample
}

// split partitions the history by loss into the good (lowest-loss) and bad
// sets. Both sets are always non-empty.
func (s *tpeSampler) split(history []Trial) (good, bad []Trial) {
	nGood := int(math.Ceil(s.gamma * float64(len(history))))
	if nGood < 1 {
		nGood = 1
	}
	if nGood >= len(history) {
		nGood = len(history) - 1
	}

	sorted := make([]Trial, len(history))
	copy(sorted, history)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j].Loss < sorted[j-1].Loss; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	return sorted[:nGood], sorted[nGood:]
}

func (s *tpeSampler) sampleUniform(d paramDef) float64 {
	switch d.kind {
	case kindChoice:
		return float64(s.rng.Intn(d.choices))
	case kindQuantized:
		return d.quantize(d.low + s.rng.Float64()*(d.high-d.low))
	default:
		return d.low + s.rng.Float64()*(d.high-d.low)
	}
}

// suggestNumeric draws candidates from the good-set Parzen estimator and
// keeps the one with the highest good/bad density ratio.
func (s *tpeSampler) suggestNumeric(d paramDef, good, bad []Trial) float64 {
	goodVals := observations(d.name, good)
	badVals := observations(d.name, bad)
	if len(goodVals) == 0 {
		return s.sampleUniform(d)
	}

	best := math.NaN()
	bestScore := math.Inf(-1)

	for c := 0; c < s.nCand; c++ {
		center := goodVals[s.rng.Intn(len(goodVals))]
		v := center + s.rng.NormFloat64()*s.bandwidth(d, len(goodVals))
		v = math.Min(d.high, math.Max(d.low, v))
		if d.kind == kindQuantized {
			v = d.quantize(v)
		}

		score := s.density(d, v, goodVals) / s.density(d, v, badVals)
		if score > bestScore {
			bestScore = score
			best = v
		}
	}
	return best
}

// bandwidth is the kernel width for a Parzen estimator over n observations,
// shrinking as the set grows.
func (s *tpeSampler) bandwidth(d paramDef, n int) float64 {
	return (d.high - d.low) / math.Sqrt(float64(n)+1)
}

// density evaluates a Parzen mixture at v. A uniform prior component keeps
// the estimate non-zero everywhere so ratios stay finite.
func (s *tpeSampler) density(d paramDef, v float64, obs []float64) float64 {
	prior := 1.0 / (d.high - d.low)
	if len(obs) == 0 {
		return prior
	}

	kernel := distuv.Normal{Sigma: s.bandwidth(d, len(obs))}
	total := prior
	for _, center := range obs {
		kernel.Mu = center
		total += kernel.Prob(v)
	}
	return total / float64(len(obs)+1)
}

// suggestChoice samples candidate indices from the good set's smoothed
// category counts and keeps the one with the highest probability ratio.
func (s *tpeSampler) suggestChoice(d paramDef, good, bad []Trial) float64 {
	goodProbs := choiceProbs(d, good)
	badProbs := choiceProbs(d, bad)

	bestIdx := 0
	bestScore := math.Inf(-1)
	for c := 0; c < s.nCand; c++ {
		idx := sampleIndex(goodProbs, s.rng)
		score := goodProbs[idx] / badProbs[idx]
		if score > bestScore {
			bestScore = score
			bestIdx = idx
		}
	}
	return float64(bestIdx)
}

// choiceProbs returns add-one smoothed category probabilities over trials.
func choiceProbs(d paramDef, set []Trial) []float64 {
	counts := make([]float64, d.choices)
	total := float64(d.choices)
	for i := range counts {
		counts[i] = 1
	}
	for _, t := range set {
		if v, ok := t.Params[d.name]; ok {
			idx := int(v)
			if idx >= 0 && idx < d.choices {
				counts[idx]++
				total++
			}
		}
	}
	for i := range counts {
		counts[i] /= total
	}
	return counts
}

func sampleIndex(probs []float64, rng *rand.Rand) int {
	r := rng.Float64()
	acc := 0.0
	for i, p := range probs {
		acc += p
		if r < acc {
			return i
		}
	}
	return len(probs) - 1
}

func observations(name string, set []Trial) []float64 {
	vals := make([]float64, 0, len(set))
	for _, t := range set {
		if v, ok := t.Params[name]; ok {
			vals = append(vals, v)
		}
	}
	return vals
}
