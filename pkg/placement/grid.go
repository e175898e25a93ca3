package placement

import (
	"github.com/m-mizutani/goerr/v2"
)

const (
	Rows     = 5
	Cols     = 5
	MaxSlots = Rows * Cols

	// gridInset is the distance of the first row/column from the top/left edge, in percent.
	gridInset = 12
	// rowSpan and colSpan are the distances between the first and last row/column.
	rowSpan = 75
	colSpan = 76
)

var errSlotOutOfRange = goerr.New("slot index out of range")

// Slot is one candidate bubble position, as percentage offsets of the display surface.
type Slot struct {
	Top  float64
	Left float64
}

// Grid is the fixed set of candidate slots. It is built once and never modified.
type Grid struct {
	slots [MaxSlots]Slot
}

// NewGrid lays out Rows×Cols slots row by row.
func NewGrid() *Grid {
	g := &Grid{}
	for i := range g.slots {
		row := i / Cols
		col := i % Cols
		g.slots[i] = Slot{
			Top:  gridInset + float64(row)*(rowSpan/float64(Rows-1)),
			Left: gridInset + float64(col)*(colSpan/float64(Cols-1)),
		}
	}
	return g
}

var defaultGrid = NewGrid()

// DefaultGrid returns the shared grid used by Resolve.
func DefaultGrid() *Grid {
	return defaultGrid
}

// SlotAt returns the base position of slot index.
func (g *Grid) SlotAt(index int) (Slot, error) {
	if index < 0 || index >= MaxSlots {
		return Slot{}, goerr.Wrap(errSlotOutOfRange, "invalid slot", goerr.V("index", index))
	}
	return g.slots[index], nil
}

// Len is always MaxSlots.
func (g *Grid) Len() int {
	return len(g.slots)
}
