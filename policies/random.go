package policies

import (
	"time"

	erand "golang.org/x/exp/rand"

	"github.com/jaypierce/moos-ivp-agent/core"
)

// RandomLearner picks uniformly and learns nothing. It is the baseline the
// other learners are compared against.
type RandomLearner struct {
	actions int
	rand    *erand.Rand
}

var _ core.Learner = &RandomLearner{}

func NewRandomLearner(actions int, seed uint64) *RandomLearner {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &RandomLearner{
		actions: actions,
		rand:    erand.New(erand.NewSource(seed)),
	}
}

func (r *RandomLearner) SelectAction(_ int, _ float64) int {
	return r.rand.Intn(r.actions)
}

func (r *RandomLearner) RecordTransition(_ core.Transition) {}

func (r *RandomLearner) OnEpisodeBoundary(_ int) error { return nil }

type RandomLearnerConstructor struct {
	Seed uint64
}

var _ core.LearnerConstructor = &RandomLearnerConstructor{}

func (r *RandomLearnerConstructor) NewLearner(_, actionSpace int) core.Learner {
	return NewRandomLearner(actionSpace, r.Seed)
}
