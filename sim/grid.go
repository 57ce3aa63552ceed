package sim

import (
	"fmt"
	"math"
)

// Position is a cell coordinate on the grid. Valid positions satisfy 0 <= X, Y < N.
type Position struct {
	X int `json:"x" yaml:"x"`
	Y int `json:"y" yaml:"y"`
}

func (p Position) String() string {
	return fmt.Sprintf("(%d,%d)", p.X, p.Y)
}

// Step returns the position offset by (dx, dy).
func (p Position) Step(dx, dy int) Position {
	return Position{X: p.X + dx, Y: p.Y + dy}
}

// Chebyshev returns the 8-connected grid distance between a and b.
func Chebyshev(a, b Position) int {
	return max(absInt(a.X-b.X), absInt(a.Y-b.Y))
}

// Euclidean returns the straight-line distance between a and b.
func Euclidean(a, b Position) float64 {
	return math.Hypot(float64(a.X-b.X), float64(a.Y-b.Y))
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// clampUnit clamps v to {-1, 0, 1}.
func clampUnit(v int) int {
	return max(-1, min(1, v))
}

// CellKind is the static content of a grid cell.
type CellKind int

const (
	CellEmpty CellKind = iota
	CellHospital
	CellBuilding
)

func (k CellKind) String() string {
	switch k {
	case CellEmpty:
		return "empty"
	case CellHospital:
		return "hospital"
	case CellBuilding:
		return "building"
	default:
		return fmt.Sprintf("cell(%d)", int(k))
	}
}

// Grid is the static N×N world. Moving obstacles and drones are not stored here;
// only Hospital and Building occupancy is.
type Grid struct {
	n     int
	cells []CellKind // row-major, index y*n + x
}

// NewGrid creates an empty n×n grid. Panics if n < 1.
func NewGrid(n int) *Grid {
	if n < 1 {
		panic(fmt.Sprintf("NewGrid: size must be >= 1, got %d", n))
	}
	return &Grid{n: n, cells: make([]CellKind, n*n)}
}

// Size returns the grid side length N.
func (g *Grid) Size() int {
	return g.n
}

// InBounds reports whether p lies inside [0,N)×[0,N).
func (g *Grid) InBounds(p Position) bool {
	return p.X >= 0 && p.X < g.n && p.Y >= 0 && p.Y < g.n
}

// Kind returns the cell kind at p. Out-of-bounds positions report CellEmpty.
func (g *Grid) Kind(p Position) CellKind {
	if !g.InBounds(p) {
		return CellEmpty
	}
	return g.cells[p.Y*g.n+p.X]
}

// SetKind overwrites the cell at p. Out-of-bounds writes are ignored.
func (g *Grid) SetKind(p Position, k CellKind) {
	if !g.InBounds(p) {
		return
	}
	g.cells[p.Y*g.n+p.X] = k
}

// Passable reports whether a drone may occupy p.
func (g *Grid) Passable(p Position) bool {
	return g.InBounds(p) && g.cells[p.Y*g.n+p.X] != CellBuilding
}

// Reset empties every cell, including buildings.
func (g *Grid) Reset() {
	clear(g.cells)
}

// Cells returns a row-major copy of the grid, suitable for snapshots.
func (g *Grid) Cells() []CellKind {
	out := make([]CellKind, len(g.cells))
	copy(out, g.cells)
	return out
}

// Count returns the number of cells of kind k.
func (g *Grid) Count(k CellKind) int {
	n := 0
	for _, c := range g.cells {
		if c == k {
			n++
		}
	}
	return n
}
