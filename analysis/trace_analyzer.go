package analysis

import (
	"bytes"
	"fmt"
	"os"
	"path"

	"github.com/jaypierce/moos-ivp-agent/core"
)

// TraceAnalyzer writes the decisions of every episode past a threshold to
// traces/ under the run directory.
type TraceAnalyzer struct {
	savePath string
	encoder  *core.StateEncoder
	actions  []core.Action
	// will save the trace to the file only after the episode index reaches this threshold
	thresholdEpisode int
}

var _ core.Analyzer = &TraceAnalyzer{}

func NewTraceAnalyzer(savePath string, threshold int, encoder *core.StateEncoder, actions []core.Action) (*TraceAnalyzer, error) {
	dir := path.Join(savePath, "traces")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &TraceAnalyzer{
		savePath:         dir,
		encoder:          encoder,
		actions:          append([]core.Action(nil), actions...),
		thresholdEpisode: threshold,
	}, nil
}

func (a *TraceAnalyzer) Analyze(s *core.EpisodeSummary, trace *core.Trace) {
	if s.Index < a.thresholdEpisode || trace.Len() == 0 {
		return
	}
	buf := new(bytes.Buffer)
	buf.WriteString(FormatSummary(s) + "\n\n")
	for i, step := range trace.Steps() {
		buf.WriteString(fmt.Sprintf("Step %d\n%s\n", i, a.stepToString(step)))
	}

	fileName := fmt.Sprintf("trace_%d.txt", s.Index)
	if s.Stale {
		fileName = fmt.Sprintf("discarded_trace_%d.txt", s.Number)
	}
	os.WriteFile(path.Join(a.savePath, fileName), buf.Bytes(), 0644)
}

func (a *TraceAnalyzer) stepToString(step *core.Step) string {
	return fmt.Sprintf(
		"Helm time: %.2f\nPosition: (%.2f, %.2f)\nState: %d %s\nAction: %s\nReward so far: %v\n",
		step.HelmTime,
		step.X, step.Y,
		step.State, a.cellsToString(step.State),
		a.actionToString(step.Action),
		step.Reward,
	)
}

func (a *TraceAnalyzer) cellsToString(state int) string {
	if a.encoder == nil {
		return ""
	}
	cells, err := a.encoder.Decode(state)
	if err != nil {
		return err.Error()
	}
	out := "["
	for i, cell := range cells {
		if i > 0 {
			out += " "
		}
		idx, ok := cell.Index()
		if !ok {
			out += cell.String()
			continue
		}
		p, _, _ := a.encoder.Field().IndexToPoint(idx)
		out += fmt.Sprintf("%s@(%g, %g)", cell, p.X, p.Y)
	}
	return out + "]"
}

func (a *TraceAnalyzer) actionToString(action int) string {
	if action < 0 || action >= len(a.actions) {
		return fmt.Sprintf("%d (unknown)", action)
	}
	act := a.actions[action]
	return fmt.Sprintf("%d (speed %.1f, course %.0f)", action, act.Speed, act.Course)
}

func (a *TraceAnalyzer) Close() error {
	return nil
}
