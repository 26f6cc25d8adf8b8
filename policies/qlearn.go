package policies

import (
	"fmt"
	"path/filepath"
	"time"

	erand "golang.org/x/exp/rand"

	"github.com/jaypierce/moos-ivp-agent/core"
)

type QLearnConfig struct {
	Alpha float64
	Gamma float64
	// value of unseen state-action pairs
	Initial float64

	// where OnEpisodeBoundary records the table, nothing is saved when empty
	SaveDir     string
	Fingerprint string
	Actions     []core.Action
	StateSpace  int

	// 0 seeds from the clock
	Seed uint64
}

func (c QLearnConfig) source() erand.Source {
	seed := c.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return erand.NewSource(seed)
}

// QLearner is tabular Q-learning with epsilon-greedy exploration.
type QLearner struct {
	table  *QTable
	config QLearnConfig
	frozen bool

	rand *erand.Rand
}

var _ core.Learner = &QLearner{}

func NewQLearner(config QLearnConfig) *QLearner {
	source := config.source()
	return &QLearner{
		table:  NewQTable(len(config.Actions), config.Initial, source),
		config: config,
		rand:   erand.New(source),
	}
}

func (q *QLearner) Table() *QTable {
	return q.table
}

// Freeze stops all updates and saves, used when running a trained table.
func (q *QLearner) Freeze() {
	q.frozen = true
}

func (q *QLearner) SelectAction(state int, epsilon float64) int {
	if q.rand.Float64() < epsilon {
		return q.rand.Intn(q.table.Actions())
	}
	return q.table.ArgMax(state)
}

func (q *QLearner) RecordTransition(t core.Transition) {
	if q.frozen {
		return
	}
	if t.Terminal {
		q.table.Set(t.Prev, t.Action, t.Reward)
		return
	}
	curVal := q.table.Get(t.Prev, t.Action)
	nextVal := q.table.Max(t.Next)
	newVal := (1-q.config.Alpha)*curVal + q.config.Alpha*(t.Reward+q.config.Gamma*nextVal)
	q.table.Set(t.Prev, t.Action, newVal)
}

func (q *QLearner) OnEpisodeBoundary(episodeCount int) error {
	if q.frozen || q.config.SaveDir == "" {
		return nil
	}
	return q.Record(filepath.Join(q.config.SaveDir, fmt.Sprintf("episode_%d.jsonl", episodeCount)), episodeCount)
}

func (q *QLearner) Record(path string, episode int) error {
	return q.table.Record(path, TableHeader{
		Fingerprint: q.config.Fingerprint,
		StateSpace:  q.config.StateSpace,
		Actions:     q.config.Actions,
		Episode:     episode,
	})
}

// Load replaces the table with a recorded one. The recording must come from
// the same field and action table.
func (q *QLearner) Load(path string) error {
	header, table, err := readTable(path, q.table.Actions())
	if err != nil {
		return err
	}
	if q.config.Fingerprint != "" && header.Fingerprint != q.config.Fingerprint {
		return fmt.Errorf("%w: %s has fingerprint %.12s, field is %.12s", ErrFieldMismatch, path, header.Fingerprint, q.config.Fingerprint)
	}
	if q.config.StateSpace > 0 && header.StateSpace != q.config.StateSpace {
		return fmt.Errorf("%w: %s covers %d states, field has %d", ErrFieldMismatch, path, header.StateSpace, q.config.StateSpace)
	}
	for i, a := range header.Actions {
		if a != q.config.Actions[i] {
			return fmt.Errorf("%w: action %d is %+v, configured %+v", ErrTableFormat, i, a, q.config.Actions[i])
		}
	}
	q.table.table = table
	return nil
}

type QLearnerConstructor struct {
	config QLearnConfig
}

var _ core.LearnerConstructor = &QLearnerConstructor{}

func NewQLearnerConstructor(config QLearnConfig) *QLearnerConstructor {
	return &QLearnerConstructor{config: config}
}

func (c *QLearnerConstructor) NewLearner(stateSpace, actionSpace int) core.Learner {
	config := c.config
	config.StateSpace = stateSpace
	if len(config.Actions) != actionSpace {
		config.Actions = make([]core.Action, actionSpace)
		copy(config.Actions, c.config.Actions)
	}
	return NewQLearner(config)
}
