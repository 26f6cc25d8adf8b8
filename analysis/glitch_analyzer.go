package analysis

import (
	"bytes"
	"fmt"
	"os"
	"path"

	"github.com/jaypierce/moos-ivp-agent/core"
)

// GlitchAnalyzer keeps a record of every discarded episode under glitches/
// so simulator hiccups can be inspected after the run.
type GlitchAnalyzer struct {
	savePath  string
	threshold float64
	count     int
}

var _ core.Analyzer = &GlitchAnalyzer{}

func NewGlitchAnalyzer(savePath string, threshold float64) *GlitchAnalyzer {
	return &GlitchAnalyzer{
		savePath:  path.Join(savePath, "glitches"),
		threshold: threshold,
	}
}

func (a *GlitchAnalyzer) Analyze(s *core.EpisodeSummary, trace *core.Trace) {
	if !s.Stale {
		return
	}
	if _, err := os.Stat(a.savePath); os.IsNotExist(err) {
		os.MkdirAll(a.savePath, 0755)
	}
	a.count++

	buf := new(bytes.Buffer)
	buf.WriteString(fmt.Sprintf("Episode %d lasted %.2fs, below the %.2fs viability threshold\n", s.Number, s.Duration, a.threshold))
	buf.WriteString(fmt.Sprintf("Reported success: %v\nDecisions before discard: %d\nAvg Delta: %.2f\n", s.Success, s.Decisions, s.AvgDelta))
	if last := trace.Last(); last != nil {
		buf.WriteString(fmt.Sprintf("Last decision at (%.2f, %.2f), helm %.2f\n", last.X, last.Y, last.HelmTime))
	}
	for i, step := range trace.Steps() {
		buf.WriteString(fmt.Sprintf("%d: helm %.2f state %d action %d at (%.2f, %.2f)\n", i, step.HelmTime, step.State, step.Action, step.X, step.Y))
	}

	file := path.Join(a.savePath, fmt.Sprintf("glitch_%d.txt", s.Number))
	os.WriteFile(file, buf.Bytes(), 0644)
}

// Count is the number of discarded episodes seen.
func (a *GlitchAnalyzer) Count() int {
	return a.count
}

func (a *GlitchAnalyzer) Close() error {
	return nil
}
