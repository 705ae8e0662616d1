// Package window accumulates obstruction snapshots into timeslot-aligned
// evidence grids. A single writer appends samples to the open Timeslot;
// closed Timeslots hand off to the resolver over a bounded channel and
// are never written again.
package window

import (
	"fmt"

	"github.com/large-farva/skylock/internal/sky"
)

// Grid is one window's obstruction evidence: a square boolean bitmap,
// row-major, true = obstructed. Within a window cells only ever turn
// on, so the union is monotonic.
type Grid struct {
	size  int
	cells []bool
	count int
}

// NewGrid returns an all-clear grid of size x size cells.
func NewGrid(size int) *Grid {
	return &Grid{size: size, cells: make([]bool, size*size)}
}

// Size returns the grid dimension (cells per side).
func (g *Grid) Size() int { return g.size }

// Count returns how many cells are currently obstructed.
func (g *Grid) Count() int { return g.count }

// Obstructed reports whether the cell is marked. Cells outside the
// bitmap are never obstructed.
func (g *Grid) Obstructed(c sky.Cell) bool {
	if c.X < 0 || c.X >= g.size || c.Y < 0 || c.Y >= g.size {
		return false
	}
	return g.cells[c.Y*g.size+c.X]
}

// Merge ORs a raw row-major snapshot into the union. A snapshot whose
// cell count does not match the grid is rejected with
// ErrDimensionMismatch.
func (g *Grid) Merge(cells []bool) error {
	if len(cells) != len(g.cells) {
		return fmt.Errorf("%w: snapshot has %d cells, grid wants %d",
			ErrDimensionMismatch, len(cells), len(g.cells))
	}
	for i, v := range cells {
		if v && !g.cells[i] {
			g.cells[i] = true
			g.count++
		}
	}
	return nil
}

// Clone returns an independent copy.
func (g *Grid) Clone() *Grid {
	out := &Grid{size: g.size, cells: make([]bool, len(g.cells)), count: g.count}
	copy(out.cells, g.cells)
	return out
}

// Cells returns a copy of the raw bitmap.
func (g *Grid) Cells() []bool {
	out := make([]bool, len(g.cells))
	copy(out, g.cells)
	return out
}
