package analysis

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"github.com/jaypierce/moos-ivp-agent/core"
)

const (
	episodeSheet = "Episodes"
	summarySheet = "Summary"
)

var episodeHeaders = []string{
	"Index", "Episode", "Reward", "Duration (s)", "Success", "Discarded",
	"Min Dist", "Epsilon", "Decisions", "Avg Delta (s)",
}

// WorkbookAnalyzer collects one row per episode into an xlsx workbook which
// is written on Close.
type WorkbookAnalyzer struct {
	path string
	file *excelize.File
	row  int

	recorded  int
	successes int
	stale     int
	reward    float64
}

var _ core.Analyzer = &WorkbookAnalyzer{}

func NewWorkbookAnalyzer(path string) (*WorkbookAnalyzer, error) {
	f := excelize.NewFile()
	if _, err := f.NewSheet(episodeSheet); err != nil {
		f.Close()
		return nil, err
	}
	if _, err := f.NewSheet(summarySheet); err != nil {
		f.Close()
		return nil, err
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		f.Close()
		return nil, err
	}
	headers := episodeHeaders
	if err := f.SetSheetRow(episodeSheet, "A1", &headers); err != nil {
		f.Close()
		return nil, err
	}
	return &WorkbookAnalyzer{
		path: path,
		file: f,
		row:  2,
	}, nil
}

func (w *WorkbookAnalyzer) Analyze(s *core.EpisodeSummary, _ *core.Trace) {
	var minDist interface{} = ""
	if !math.IsInf(s.MinDistance, 1) {
		minDist = s.MinDistance
	}
	rowData := []interface{}{
		s.Index,
		s.Number,
		s.Reward,
		s.Duration,
		s.Success,
		s.Stale,
		minDist,
		s.Epsilon,
		s.Decisions,
		s.AvgDelta,
	}
	_ = w.file.SetSheetRow(episodeSheet, fmt.Sprintf("A%d", w.row), &rowData)
	w.row++

	if s.Stale {
		w.stale++
		return
	}
	w.recorded++
	w.reward += s.Reward
	if s.Success {
		w.successes++
	}
}

// Rows is the number of episode rows written so far.
func (w *WorkbookAnalyzer) Rows() int {
	return w.row - 2
}

func (w *WorkbookAnalyzer) Close() error {
	defer w.file.Close()

	successRate, meanReward := 0.0, 0.0
	if w.recorded > 0 {
		successRate = float64(w.successes) / float64(w.recorded)
		meanReward = w.reward / float64(w.recorded)
	}
	summary := [][]interface{}{
		{"Recorded episodes", w.recorded},
		{"Discarded episodes", w.stale},
		{"Success rate", successRate},
		{"Mean reward", meanReward},
	}
	for i, row := range summary {
		_ = w.file.SetSheetRow(summarySheet, fmt.Sprintf("A%d", i+1), &row)
	}

	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return err
	}
	if err := w.file.SaveAs(w.path); err != nil {
		return fmt.Errorf("saving workbook %s: %w", w.path, err)
	}
	return nil
}
