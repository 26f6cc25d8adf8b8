package policies

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"

	erand "golang.org/x/exp/rand"

	"github.com/jaypierce/moos-ivp-agent/core"
)

var (
	ErrTableFormat   = errors.New("malformed q-table file")
	ErrFieldMismatch = errors.New("q-table was trained on a different field")
)

// TableHeader is the first line of a recorded table. It binds the values to
// the field and action table they were learned on.
type TableHeader struct {
	Fingerprint string        `json:"fingerprint"`
	StateSpace  int           `json:"state_space"`
	Actions     []core.Action `json:"actions"`
	Episode     int           `json:"episode,omitempty"`
}

type tableRow struct {
	State   int       `json:"state"`
	Entries []float64 `json:"entries"`
}

// QTable maps decision states to one value per action. States are added
// lazily with every action at the initial value.
type QTable struct {
	table   map[int][]float64
	actions int
	initial float64

	rand *erand.Rand
}

func NewQTable(actions int, initial float64, source erand.Source) *QTable {
	return &QTable{
		table:   make(map[int][]float64),
		actions: actions,
		initial: initial,
		rand:    erand.New(source),
	}
}

func (q *QTable) row(state int) []float64 {
	values, ok := q.table[state]
	if !ok {
		values = make([]float64, q.actions)
		for i := range values {
			values[i] = q.initial
		}
		q.table[state] = values
	}
	return values
}

func (q *QTable) Get(state, action int) float64 {
	if values, ok := q.table[state]; ok {
		return values[action]
	}
	return q.initial
}

func (q *QTable) Set(state, action int, val float64) {
	q.row(state)[action] = val
}

// Values returns a copy of the action values of state.
func (q *QTable) Values(state int) []float64 {
	if values, ok := q.table[state]; ok {
		return slices.Clone(values)
	}
	values := make([]float64, q.actions)
	for i := range values {
		values[i] = q.initial
	}
	return values
}

func (q *QTable) HasState(state int) bool {
	_, ok := q.table[state]
	return ok
}

func (q *QTable) Max(state int) float64 {
	values, ok := q.table[state]
	if !ok {
		return q.initial
	}
	return slices.Max(values)
}

// ArgMax picks uniformly among the best actions of state.
func (q *QTable) ArgMax(state int) int {
	values, ok := q.table[state]
	if !ok {
		return q.rand.Intn(q.actions)
	}
	maxActions := make([]int, 0)
	maxVal := math.Inf(-1)
	for a, val := range values {
		if val > maxVal {
			maxActions = maxActions[:0]
			maxVal = val
		}
		if val == maxVal {
			maxActions = append(maxActions, a)
		}
	}
	if len(maxActions) == 0 {
		// every value is NaN
		return q.rand.Intn(q.actions)
	}
	return maxActions[q.rand.Intn(len(maxActions))]
}

func (q *QTable) Size() int {
	return len(q.table)
}

func (q *QTable) Actions() int {
	return q.actions
}

// Record writes the header and one line per state, ordered by state.
func (q *QTable) Record(path string, header TableHeader) error {
	bs := new(bytes.Buffer)
	enc := json.NewEncoder(bs)
	if err := enc.Encode(header); err != nil {
		return fmt.Errorf("encoding table header: %w", err)
	}

	states := make([]int, 0, len(q.table))
	for state := range q.table {
		states = append(states, state)
	}
	slices.Sort(states)
	for _, state := range states {
		if err := enc.Encode(tableRow{State: state, Entries: q.table[state]}); err != nil {
			return fmt.Errorf("encoding state %d: %w", state, err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, bs.Bytes(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Read replaces the table with the contents of a recorded file.
func (q *QTable) Read(path string) (TableHeader, error) {
	header, table, err := readTable(path, q.actions)
	if err != nil {
		return header, err
	}
	q.table = table
	return header, nil
}

func readTable(path string, actions int) (TableHeader, map[int][]float64, error) {
	var header TableHeader
	file, err := os.Open(path)
	if err != nil {
		return header, nil, fmt.Errorf("error reading file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16<<20)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return header, nil, err
		}
		return header, nil, fmt.Errorf("%w: %s is empty", ErrTableFormat, path)
	}
	if err := json.Unmarshal(scanner.Bytes(), &header); err != nil {
		return header, nil, fmt.Errorf("%w: header: %w", ErrTableFormat, err)
	}
	if len(header.Actions) != actions {
		return header, nil, fmt.Errorf("%w: %d actions recorded, table has %d", ErrTableFormat, len(header.Actions), actions)
	}

	table := make(map[int][]float64)
	for line := 2; scanner.Scan(); line++ {
		var row tableRow
		if err := json.Unmarshal(scanner.Bytes(), &row); err != nil {
			return header, nil, fmt.Errorf("%w: line %d: %w", ErrTableFormat, line, err)
		}
		if len(row.Entries) != actions {
			return header, nil, fmt.Errorf("%w: line %d has %d entries", ErrTableFormat, line, len(row.Entries))
		}
		if row.State < 0 || (header.StateSpace > 0 && row.State >= header.StateSpace) {
			return header, nil, fmt.Errorf("%w: line %d: state %d outside the state space", ErrTableFormat, line, row.State)
		}
		table[row.State] = row.Entries
	}
	if err := scanner.Err(); err != nil {
		return header, nil, err
	}
	return header, table, nil
}
