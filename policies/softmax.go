package policies

import (
	"math"

	"gonum.org/v1/gonum/stat/sampleuv"

	"github.com/jaypierce/moos-ivp-agent/core"
)

// SoftmaxLearner learns like QLearner but explores by sampling actions from
// the Boltzmann distribution of their values. The exploration rate handed in
// by the synchronizer is the temperature; at 0 it acts greedily.
type SoftmaxLearner struct {
	*QLearner
}

var _ core.Learner = &SoftmaxLearner{}

func NewSoftmaxLearner(config QLearnConfig) *SoftmaxLearner {
	return &SoftmaxLearner{QLearner: NewQLearner(config)}
}

func (s *SoftmaxLearner) SelectAction(state int, temperature float64) int {
	if temperature <= 0 {
		return s.table.ArgMax(state)
	}
	vals := s.table.Values(state)
	largestValue := vals[0]
	for _, v := range vals {
		if v > largestValue {
			largestValue = v
		}
	}

	// Normalizing
	sum := float64(0)
	for i := range vals {
		vals[i] = math.Exp((vals[i] - largestValue) / temperature)
		sum += vals[i]
	}
	weights := make([]float64, len(vals))
	for i, v := range vals {
		weights[i] = v / sum
	}
	i, ok := sampleuv.NewWeighted(weights, s.rand).Take()
	if !ok {
		return s.table.ArgMax(state)
	}
	return i
}

type SoftmaxLearnerConstructor struct {
	config QLearnConfig
}

var _ core.LearnerConstructor = &SoftmaxLearnerConstructor{}

func NewSoftmaxLearnerConstructor(config QLearnConfig) *SoftmaxLearnerConstructor {
	return &SoftmaxLearnerConstructor{config: config}
}

func (c *SoftmaxLearnerConstructor) NewLearner(stateSpace, actionSpace int) core.Learner {
	q := NewQLearnerConstructor(c.config).NewLearner(stateSpace, actionSpace).(*QLearner)
	return &SoftmaxLearner{QLearner: q}
}
