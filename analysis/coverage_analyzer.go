package analysis

import (
	"path"
	"slices"

	"github.com/jaypierce/moos-ivp-agent/core"
	"github.com/jaypierce/moos-ivp-agent/util"
)

type CoverageDataset struct {
	Episodes     []int `json:"episodes"`
	Decisions    []int `json:"decisions"`
	UniqueStates []int `json:"unique_states"`
}

func (c *CoverageDataset) Copy() *CoverageDataset {
	return &CoverageDataset{
		Episodes:     slices.Clone(c.Episodes),
		Decisions:    slices.Clone(c.Decisions),
		UniqueStates: slices.Clone(c.UniqueStates),
	}
}

// CoverageAnalyzer tracks how many distinct decision states the learner has
// visited after each recorded episode and saves the curve to coverage.json.
type CoverageAnalyzer struct {
	savePath string
	states   map[int]bool
	dataset  *CoverageDataset
}

var _ core.Analyzer = &CoverageAnalyzer{}

func NewCoverageAnalyzer(savePath string) *CoverageAnalyzer {
	return &CoverageAnalyzer{
		savePath: path.Join(savePath, "coverage.json"),
		states:   make(map[int]bool),
		dataset: &CoverageDataset{
			Episodes:     make([]int, 0),
			Decisions:    make([]int, 0),
			UniqueStates: make([]int, 0),
		},
	}
}

func (c *CoverageAnalyzer) Analyze(s *core.EpisodeSummary, trace *core.Trace) {
	if s.Stale {
		return
	}
	for _, step := range trace.Steps() {
		c.states[step.State] = true
	}
	lastDecisions := 0
	if len(c.dataset.Decisions) > 0 {
		lastDecisions = c.dataset.Decisions[len(c.dataset.Decisions)-1]
	}
	c.dataset.Episodes = append(c.dataset.Episodes, s.Index)
	c.dataset.Decisions = append(c.dataset.Decisions, lastDecisions+trace.Len())
	c.dataset.UniqueStates = append(c.dataset.UniqueStates, len(c.states))
}

func (c *CoverageAnalyzer) DataSet() *CoverageDataset {
	return c.dataset.Copy()
}

func (c *CoverageAnalyzer) Close() error {
	return util.SaveJson(c.savePath, c.dataset)
}
