package core

import (
	"errors"
	"fmt"
	"math"

	"github.com/jaypierce/moos-ivp-agent/bridge"
	"github.com/jaypierce/moos-ivp-agent/field"
)

var ErrStateSpace = errors.New("decision state space too large")

// StateEncoder combines the own vehicle's cell with the cells of tracked
// vehicles into a single decision state. Each cell is one digit of radix
// SpaceSize, the own vehicle being the least significant.
type StateEncoder struct {
	field   *field.Discretizer
	tracked []string
	size    int
}

func NewStateEncoder(d *field.Discretizer, tracked ...string) (*StateEncoder, error) {
	size := 1
	radix := d.SpaceSize()
	for i := 0; i <= len(tracked); i++ {
		if size > math.MaxInt32/radix {
			return nil, fmt.Errorf("%w: %d tracked vehicles over %d cells", ErrStateSpace, len(tracked), radix)
		}
		size *= radix
	}
	return &StateEncoder{
		field:   d,
		tracked: append([]string(nil), tracked...),
		size:    size,
	}, nil
}

func (e *StateEncoder) Size() int {
	return e.size
}

func (e *StateEncoder) Tracked() []string {
	return append([]string(nil), e.tracked...)
}

func (e *StateEncoder) Field() *field.Discretizer {
	return e.field
}

// Cells locates the own vehicle followed by every tracked vehicle. A tracked
// vehicle without a usable node report is off the field.
func (e *StateEncoder) Cells(s *bridge.Snapshot) []field.Cell {
	cells := make([]field.Cell, 0, 1+len(e.tracked))
	cells = append(cells, e.field.Locate(s.NavX, s.NavY))
	for _, name := range e.tracked {
		x, y, ok := s.NodeReports[name].Position()
		if !ok {
			cells = append(cells, field.OutOfBounds)
			continue
		}
		cells = append(cells, e.field.Locate(x, y))
	}
	return cells
}

func (e *StateEncoder) Encode(s *bridge.Snapshot) int {
	state := 0
	for i, cell := range e.Cells(s) {
		state += cell.Raw() * e.weight(i)
	}
	return state
}

// Decode splits a decision state back into its cells.
func (e *StateEncoder) Decode(state int) ([]field.Cell, error) {
	if state < 0 || state >= e.size {
		return nil, fmt.Errorf("%w: state %d outside [0, %d)", field.ErrRange, state, e.size)
	}
	radix := e.field.SpaceSize()
	cells := make([]field.Cell, 0, 1+len(e.tracked))
	for i := 0; i <= len(e.tracked); i++ {
		cells = append(cells, field.FromRaw(state%radix))
		state /= radix
	}
	return cells, nil
}

func (e *StateEncoder) weight(i int) int {
	w := 1
	for ; i > 0; i-- {
		w *= e.field.SpaceSize()
	}
	return w
}
