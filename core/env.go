package core

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// EpisodeContext accumulates what the Synchronizer knows about the episode
// in progress. Count and the last simulator episode number survive Reset.
type EpisodeContext struct {
	EpisodeCount   int
	LastEpisodeNum int

	EpisodeReward float64
	MinDistance   float64
	LoopTimes     []float64
	Decisions     int

	Trace *Trace

	knownEpisode bool
	lastHelmTime float64
	helmSeen     bool
}

func NewEpisodeContext() *EpisodeContext {
	e := &EpisodeContext{}
	e.Reset()
	return e
}

// Reset clears the per-episode accumulators.
func (e *EpisodeContext) Reset() {
	e.EpisodeReward = 0
	e.MinDistance = math.Inf(1)
	e.LoopTimes = e.LoopTimes[:0]
	e.Decisions = 0
	e.Trace = NewTrace()
	e.helmSeen = false
}

// IsNewEpisode reports whether num differs from the last seen simulator
// episode number.
func (e *EpisodeContext) IsNewEpisode(num int) bool {
	return !e.knownEpisode || num != e.LastEpisodeNum
}

func (e *EpisodeContext) KnowsEpisode() bool {
	return e.knownEpisode
}

func (e *EpisodeContext) MarkEpisode(num int) {
	e.LastEpisodeNum = num
	e.knownEpisode = true
}

func (e *EpisodeContext) ObserveHelmTime(t float64) {
	if e.helmSeen {
		e.LoopTimes = append(e.LoopTimes, t-e.lastHelmTime)
	}
	e.lastHelmTime = t
	e.helmSeen = true
}

func (e *EpisodeContext) ObserveDistance(d float64) {
	if d < e.MinDistance {
		e.MinDistance = d
	}
}

// MeanLoopTime is the average HELM_TIME delta between snapshots, 0 before
// two snapshots were seen.
func (e *EpisodeContext) MeanLoopTime() float64 {
	if len(e.LoopTimes) == 0 {
		return 0
	}
	return stat.Mean(e.LoopTimes, nil)
}

// EpisodeSummary is handed to analyzers at every episode boundary.
type EpisodeSummary struct {
	// Index counts recorded episodes before this one
	Index int
	// Number is the simulator's episode number
	Number    int
	Reward    float64
	Duration  float64
	Success   bool
	Stale     bool
	Evaluate  bool
	Epsilon   float64
	Decisions int
	// +Inf when the vehicle position was never observed
	MinDistance float64
	AvgDelta    float64
}
