package analysis

import (
	"fmt"
	"io"
	"math"

	"github.com/jaypierce/moos-ivp-agent/core"
)

// Status is a single line that is rewritten in place, see
// util.ParallelOutput.
type Status interface {
	Set(string)
}

// ConsoleAnalyzer prints one line per episode and keeps a progress status
// up to date.
type ConsoleAnalyzer struct {
	out    io.Writer
	status Status
	total  int

	recorded int
	stale    int
}

var _ core.Analyzer = &ConsoleAnalyzer{}

// NewConsoleAnalyzer writes episode lines to out. total is the number of
// episodes the run is expected to record, 0 when unbounded. status may be nil.
func NewConsoleAnalyzer(out io.Writer, status Status, total int) *ConsoleAnalyzer {
	return &ConsoleAnalyzer{
		out:    out,
		status: status,
		total:  total,
	}
}

func (c *ConsoleAnalyzer) Analyze(s *core.EpisodeSummary, _ *core.Trace) {
	if s.Stale {
		c.stale++
		fmt.Fprintf(c.out, "Discarded episode %d, Duration: %.2f\n", s.Number, s.Duration)
	} else {
		c.recorded++
		fmt.Fprintln(c.out, FormatSummary(s))
	}
	if c.status != nil {
		c.status.Set(c.progress(s))
	}
}

func (c *ConsoleAnalyzer) progress(s *core.EpisodeSummary) string {
	mode := "Training"
	if s.Evaluate {
		mode = "Evaluating"
	}
	total := "?"
	if c.total > 0 {
		total = fmt.Sprint(c.total)
	}
	return fmt.Sprintf("%s: %d/%s episodes, %d discarded, epsilon %.4f", mode, c.recorded, total, c.stale, s.Epsilon)
}

func (c *ConsoleAnalyzer) Close() error {
	return nil
}

// FormatSummary renders the per-episode console line.
func FormatSummary(s *core.EpisodeSummary) string {
	minDist := "n/a"
	if !math.IsInf(s.MinDistance, 1) {
		minDist = fmt.Sprintf("%.2f", s.MinDistance)
	}
	return fmt.Sprintf(
		"Episode: %d, Reward: %v, Duration: %.2f, Success: %v, Min Dist: %s, Epsilon: %.4f, Avg Delta: %.2f",
		s.Index, s.Reward, s.Duration, s.Success, minDist, s.Epsilon, s.AvgDelta,
	)
}
