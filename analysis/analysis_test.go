package analysis

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/xuri/excelize/v2"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/jaypierce/moos-ivp-agent/core"
	"github.com/jaypierce/moos-ivp-agent/field"
	"github.com/jaypierce/moos-ivp-agent/util"
)

func summaries() []*core.EpisodeSummary {
	return []*core.EpisodeSummary{
		{Index: 0, Number: 1, Reward: 49, Duration: 31.256, Success: true, Epsilon: 0.4, Decisions: 2, MinDistance: 4.5, AvgDelta: 0.25},
		{Index: 1, Number: 2, Reward: -3, Duration: 1.2, Stale: true, Epsilon: 0.4, Decisions: 4, MinDistance: math.Inf(1)},
		{Index: 1, Number: 3, Reward: -53, Duration: 60, Success: false, Epsilon: 0.3995, Decisions: 3, MinDistance: 22.123, AvgDelta: 0.5},
	}
}

func trace(states ...int) *core.Trace {
	t := core.NewTrace()
	for i, s := range states {
		t.AddStep(&core.Step{State: s, Action: i % 2, X: float64(10 * i), Y: 30, HelmTime: float64(i)})
	}
	return t
}

type recordedStatus struct {
	lines []string
}

func (r *recordedStatus) Set(s string) {
	r.lines = append(r.lines, s)
}

func TestConsoleAnalyzer(t *testing.T) {
	out := new(bytes.Buffer)
	status := &recordedStatus{}
	c := NewConsoleAnalyzer(out, status, 10)
	for _, s := range summaries() {
		c.Analyze(s, trace(1, 2))
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	want := []string{
		"Episode: 0, Reward: 49, Duration: 31.26, Success: true, Min Dist: 4.50, Epsilon: 0.4000, Avg Delta: 0.25",
		"Discarded episode 2, Duration: 1.20",
		"Episode: 1, Reward: -53, Duration: 60.00, Success: false, Min Dist: 22.12, Epsilon: 0.3995, Avg Delta: 0.50",
	}
	if diff := cmp.Diff(want, lines); diff != "" {
		t.Fatalf("console output mismatch (-want +got):\n%s", diff)
	}
	if got := status.lines[len(status.lines)-1]; got != "Training: 2/10 episodes, 1 discarded, epsilon 0.3995" {
		t.Fatalf("status = %q", got)
	}
}

func TestFormatSummaryUnknownDistance(t *testing.T) {
	s := &core.EpisodeSummary{MinDistance: math.Inf(1)}
	if line := FormatSummary(s); !strings.Contains(line, "Min Dist: n/a") {
		t.Fatalf("line = %q", line)
	}
}

func TestWorkbookAnalyzer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "episodes.xlsx")
	w, err := NewWorkbookAnalyzer(path)
	if err != nil {
		t.Fatalf("workbook: %v", err)
	}
	for _, s := range summaries() {
		w.Analyze(s, trace())
	}
	if w.Rows() != 3 {
		t.Fatalf("Rows() = %d", w.Rows())
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	if diff := cmp.Diff([]string{episodeSheet, summarySheet}, f.GetSheetList()); diff != "" {
		t.Fatalf("sheets mismatch (-want +got):\n%s", diff)
	}
	rows, err := f.GetRows(episodeSheet)
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("%d rows, want header and 3 episodes", len(rows))
	}
	if diff := cmp.Diff(episodeHeaders, rows[0]); diff != "" {
		t.Fatalf("header mismatch (-want +got):\n%s", diff)
	}
	if rows[1][1] != "1" || rows[1][4] != "TRUE" || rows[2][5] != "TRUE" {
		t.Fatalf("unexpected rows %v", rows[1:3])
	}

	rate, err := f.GetCellValue(summarySheet, "B3")
	if err != nil {
		t.Fatal(err)
	}
	if rate != "0.5" {
		t.Fatalf("success rate = %q", rate)
	}
	recorded, _ := f.GetCellValue(summarySheet, "B1")
	discarded, _ := f.GetCellValue(summarySheet, "B2")
	if recorded != "2" || discarded != "1" {
		t.Fatalf("recorded %q, discarded %q", recorded, discarded)
	}
}

func TestTraceAnalyzer(t *testing.T) {
	dir := t.TempDir()
	d, err := field.New([]r2.Vec{{X: 0, Y: 0}, {X: 0, Y: 60}, {X: 100, Y: 60}, {X: 100, Y: 0}}, 10)
	if err != nil {
		t.Fatal(err)
	}
	encoder, err := core.NewStateEncoder(d)
	if err != nil {
		t.Fatal(err)
	}
	actions := core.DefaultSyncConfig().Actions
	a, err := NewTraceAnalyzer(dir, 1, encoder, actions)
	if err != nil {
		t.Fatal(err)
	}

	all := summaries()
	a.Analyze(all[0], trace(d.ToDiscreteIndex(10, 30)))
	a.Analyze(all[2], trace(d.ToDiscreteIndex(10, 30), 0))

	if _, err := os.Stat(filepath.Join(dir, "traces", "trace_0.txt")); !os.IsNotExist(err) {
		t.Fatalf("trace below the threshold was written: %v", err)
	}
	bs, err := os.ReadFile(filepath.Join(dir, "traces", "trace_1.txt"))
	if err != nil {
		t.Fatalf("read trace: %v", err)
	}
	content := string(bs)
	for _, want := range []string{"Step 0", "Step 1", "@(10, 30)", "out-of-bounds", "speed 2.0, course 45"} {
		if !strings.Contains(content, want) {
			t.Errorf("trace is missing %q:\n%s", want, content)
		}
	}
}

func TestCoverageAnalyzer(t *testing.T) {
	dir := t.TempDir()
	c := NewCoverageAnalyzer(dir)
	all := summaries()
	c.Analyze(all[0], trace(3, 4, 3))
	c.Analyze(all[1], trace(9, 9))
	c.Analyze(all[2], trace(4, 5))

	want := &CoverageDataset{
		Episodes:     []int{0, 1},
		Decisions:    []int{3, 5},
		UniqueStates: []int{2, 3},
	}
	if diff := cmp.Diff(want, c.DataSet()); diff != "" {
		t.Fatalf("dataset mismatch (-want +got):\n%s", diff)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	saved := &CoverageDataset{}
	if err := util.LoadJson(filepath.Join(dir, "coverage.json"), saved); err != nil {
		t.Fatalf("load: %v", err)
	}
	if diff := cmp.Diff(want, saved); diff != "" {
		t.Fatalf("saved dataset mismatch (-want +got):\n%s", diff)
	}
}

func TestGlitchAnalyzer(t *testing.T) {
	dir := t.TempDir()
	g := NewGlitchAnalyzer(dir, 2)
	for _, s := range summaries() {
		g.Analyze(s, trace(1, 4))
	}
	if g.Count() != 1 {
		t.Fatalf("Count() = %d", g.Count())
	}
	entries, err := os.ReadDir(filepath.Join(dir, "glitches"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "glitch_2.txt" {
		t.Fatalf("unexpected glitch files %v", entries)
	}
	bs, err := os.ReadFile(filepath.Join(dir, "glitches", "glitch_2.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(bs), "Last decision at (10.00, 30.00), helm 1.00\n") {
		t.Fatalf("last decision missing:\n%s", bs)
	}

	// an episode discarded before any decision has no last position
	empty := NewGlitchAnalyzer(t.TempDir(), 2)
	for _, s := range summaries() {
		empty.Analyze(s, core.NewTrace())
	}
	bs, err = os.ReadFile(filepath.Join(empty.savePath, "glitch_2.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(bs), "Last decision") {
		t.Fatalf("empty trace reported a last decision:\n%s", bs)
	}
}
