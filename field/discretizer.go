package field

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/jaypierce/moos-ivp-agent/util"
)

var (
	ErrInvalidField = errors.New("invalid field definition")
	ErrRange        = errors.New("index is outside of discrete space")
)

// tolerance used by the half-plane test so that grid points lying exactly
// on the boundary count as inside the field
const boundaryTolerance = 1e-9

// GridPoint is a coordinate pair snapped to the discretizer grid.
type GridPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Cell is the discrete location of a position: either an in-bounds grid
// point with its index or out of bounds. The zero value is OutOfBounds.
type Cell struct {
	index    int
	inBounds bool
}

// OutOfBounds is the cell of every position that is not on the field.
var OutOfBounds = Cell{}

// InBounds returns the cell for the given (non-zero) index.
func InBounds(index int) Cell {
	return Cell{index: index, inBounds: true}
}

// Index returns the index of the cell and whether the cell is on the field.
func (c Cell) Index() (int, bool) {
	return c.index, c.inBounds
}

// Raw converts the cell into the table integer, 0 for OutOfBounds.
func (c Cell) Raw() int {
	if !c.inBounds {
		return 0
	}
	return c.index
}

// FromRaw is the inverse of Raw.
func FromRaw(raw int) Cell {
	if raw <= 0 {
		return OutOfBounds
	}
	return InBounds(raw)
}

func (c Cell) String() string {
	if !c.inBounds {
		return "out-of-bounds"
	}
	return fmt.Sprintf("cell(%d)", c.index)
}

// grid coordinates of a candidate point: offset + (i*res, j*res)
type gridKey struct {
	i, j int
}

// Discretizer maps continuous coordinates onto a finite set of grid points
// inside a convex polygon. The index map is built once in New and never
// modified afterwards, so a Discretizer can be shared between goroutines.
type Discretizer struct {
	corners    []r2.Vec
	resolution float64
	offset     r2.Vec
	// +1 for counter-clockwise corners, -1 for clockwise
	winding float64

	pointIndex map[gridKey]int
	// indexPoint[0] is unused, it stands for OutOfBounds
	indexPoint []gridKey
}

// New builds the grid over the bounding box of the corners and assigns
// indices, starting at 1, to every grid point inside the polygon. Points are
// scanned by increasing x then increasing y.
func New(corners []r2.Vec, resolution float64) (*Discretizer, error) {
	if len(corners) < 3 {
		return nil, fmt.Errorf("%w: need at least 3 corners, got %d", ErrInvalidField, len(corners))
	}
	if !(resolution > 0) || math.IsInf(resolution, 1) {
		return nil, fmt.Errorf("%w: resolution must be positive, got %v", ErrInvalidField, resolution)
	}
	area := signedArea(corners)
	if math.Abs(area) < boundaryTolerance {
		return nil, fmt.Errorf("%w: corners do not enclose an area", ErrInvalidField)
	}
	for k := range corners {
		if r2.Norm(edge(corners, k)) == 0 {
			return nil, fmt.Errorf("%w: corner %d repeats the previous corner", ErrInvalidField, k)
		}
	}

	d := &Discretizer{
		corners:    append([]r2.Vec(nil), corners...),
		resolution: resolution,
		winding:    math.Copysign(1, area),
		pointIndex: make(map[gridKey]int),
		indexPoint: []gridKey{{}},
	}

	box := boundingBox(corners)
	d.offset = box.Min
	stepsX := int(math.Floor((box.Max.X-box.Min.X)/resolution + boundaryTolerance))
	stepsY := int(math.Floor((box.Max.Y-box.Min.Y)/resolution + boundaryTolerance))

	for i := 0; i <= stepsX; i++ {
		for j := 0; j <= stepsY; j++ {
			key := gridKey{i: i, j: j}
			if !d.contains(d.vec(key)) {
				continue
			}
			d.pointIndex[key] = len(d.indexPoint)
			d.indexPoint = append(d.indexPoint, key)
		}
	}
	return d, nil
}

// SpaceSize is the number of indices, OutOfBounds included.
func (d *Discretizer) SpaceSize() int {
	return len(d.indexPoint)
}

func (d *Discretizer) Resolution() float64 {
	return d.resolution
}

// Points returns the in-bounds grid points ordered by index; Points()[k]
// has index k+1.
func (d *Discretizer) Points() []GridPoint {
	out := make([]GridPoint, 0, len(d.indexPoint)-1)
	for _, key := range d.indexPoint[1:] {
		out = append(out, d.point(key))
	}
	return out
}

// ToDiscretePoint snaps (x, y) to the nearest grid point. The boolean is
// false when the snapped point is not on the field.
func (d *Discretizer) ToDiscretePoint(x, y float64) (GridPoint, bool) {
	key, ok := d.snap(x, y)
	if !ok {
		return GridPoint{}, false
	}
	if _, ok := d.pointIndex[key]; !ok {
		return GridPoint{}, false
	}
	return d.point(key), true
}

// Locate returns the cell of (x, y).
func (d *Discretizer) Locate(x, y float64) Cell {
	key, ok := d.snap(x, y)
	if !ok {
		return OutOfBounds
	}
	idx, ok := d.pointIndex[key]
	if !ok {
		return OutOfBounds
	}
	return InBounds(idx)
}

// ToDiscreteIndex returns the index of (x, y), 0 when off the field.
func (d *Discretizer) ToDiscreteIndex(x, y float64) int {
	return d.Locate(x, y).Raw()
}

// IndexToPoint is the inverse lookup. Index 0 yields ok == false.
func (d *Discretizer) IndexToPoint(idx int) (GridPoint, bool, error) {
	if idx < 0 || idx >= len(d.indexPoint) {
		return GridPoint{}, false, fmt.Errorf("%w: %d not in [0, %d)", ErrRange, idx, len(d.indexPoint))
	}
	if idx == 0 {
		return GridPoint{}, false, nil
	}
	return d.point(d.indexPoint[idx]), true, nil
}

// Fingerprint identifies the index assignment. Two discretizers with the
// same fingerprint agree on every index.
func (d *Discretizer) Fingerprint() string {
	corners := make([][2]float64, len(d.corners))
	for i, c := range d.corners {
		corners[i] = [2]float64{c.X, c.Y}
	}
	return util.JsonHash(map[string]interface{}{
		"corners":    corners,
		"resolution": d.resolution,
	})
}

func (d *Discretizer) snap(x, y float64) (gridKey, bool) {
	if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
		return gridKey{}, false
	}
	fi := math.RoundToEven((x - d.offset.X) / d.resolution)
	fj := math.RoundToEven((y - d.offset.Y) / d.resolution)
	if fi < 0 || fj < 0 || fi > math.MaxInt32 || fj > math.MaxInt32 {
		return gridKey{}, false
	}
	return gridKey{i: int(fi), j: int(fj)}, true
}

func (d *Discretizer) vec(key gridKey) r2.Vec {
	return r2.Vec{
		X: d.offset.X + float64(key.i)*d.resolution,
		Y: d.offset.Y + float64(key.j)*d.resolution,
	}
}

func (d *Discretizer) point(key gridKey) GridPoint {
	v := d.vec(key)
	return GridPoint{X: v.X, Y: v.Y}
}

// contains runs the half-plane test against every edge. The signed distance
// is positive on the left of an edge, so counter-clockwise polygons keep
// their interior on the left and clockwise ones on the right.
func (d *Discretizer) contains(p r2.Vec) bool {
	for k := range d.corners {
		if d.winding*lineDistance(d.corners[k], d.corners[(k+1)%len(d.corners)], p) < -boundaryTolerance {
			return false
		}
	}
	return true
}

// lineDistance is the signed perpendicular distance of p to the line a->b.
func lineDistance(a, b, p r2.Vec) float64 {
	e := r2.Sub(b, a)
	return r2.Cross(e, r2.Sub(p, a)) / r2.Norm(e)
}

func edge(corners []r2.Vec, k int) r2.Vec {
	return r2.Sub(corners[(k+1)%len(corners)], corners[k])
}

// shoelace formula
func signedArea(corners []r2.Vec) float64 {
	sum := 0.0
	for k := range corners {
		sum += r2.Cross(corners[k], corners[(k+1)%len(corners)])
	}
	return sum / 2
}

func boundingBox(corners []r2.Vec) r2.Box {
	box := r2.Box{Min: corners[0], Max: corners[0]}
	for _, c := range corners[1:] {
		box.Min.X = math.Min(box.Min.X, c.X)
		box.Min.Y = math.Min(box.Min.Y, c.Y)
		box.Max.X = math.Max(box.Max.X, c.X)
		box.Max.Y = math.Max(box.Max.Y, c.Y)
	}
	return box
}
