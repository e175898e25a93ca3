package placement_test

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/m-mizutani/bubbleboard/pkg/model"
	"github.com/m-mizutani/bubbleboard/pkg/placement"
	"github.com/m-mizutani/gt"
)

func near(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func subs(ids ...string) []*model.Submission {
	out := make([]*model.Submission, 0, len(ids))
	for _, id := range ids {
		out = append(out, &model.Submission{
			ID:   model.SubmissionID(id),
			Text: "text of " + id,
		})
	}
	return out
}

func TestHash(t *testing.T) {
	testCases := []struct {
		input string
		want  int64
	}{
		{"", 7},
		{"a", 314},
		{"b", 315},
		{"go", 10031},
		{"rust", 9976939},
		{"😀", 1779626}, // surrogate pair, two code units
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			gt.Equal(t, placement.Hash(tc.input), tc.want)
		})
	}
}

func TestGridSlotAt(t *testing.T) {
	grid := placement.NewGrid()
	gt.Equal(t, grid.Len(), placement.MaxSlots)

	first, err := grid.SlotAt(0)
	gt.NoError(t, err)
	gt.True(t, near(first.Top, 12))
	gt.True(t, near(first.Left, 12))

	last, err := grid.SlotAt(placement.MaxSlots - 1)
	gt.NoError(t, err)
	gt.True(t, near(last.Top, 87))
	gt.True(t, near(last.Left, 88))

	middle, err := grid.SlotAt(12)
	gt.NoError(t, err)
	gt.True(t, near(middle.Top, 49.5))
	gt.True(t, near(middle.Left, 50))

	_, err = grid.SlotAt(-1)
	gt.Error(t, err)
	_, err = grid.SlotAt(placement.MaxSlots)
	gt.Error(t, err)
}

func TestResolveKnownLayout(t *testing.T) {
	bubbles := placement.Resolve(subs("rust", "go", "a", "b"))
	gt.A(t, bubbles).Length(4)

	expected := []struct {
		id    string
		slot  int
		top   float64
		left  float64
		style model.Palette
	}{
		{"rust-0", 14, 50.7, 88.8, model.PaletteEmerald},
		{"go-1", 6, 31.15, 31.4, model.PaletteCyan},
		{"a-2", 15, 69.85, 13.2, model.PaletteRose}, // prefers 14, probes to 15
		{"b-3", 16, 66.65, 32.2, model.PaletteAmber}, // prefers 15, probes to 16
	}

	for i, exp := range expected {
		b := bubbles[i]
		gt.Equal(t, b.ID, exp.id)
		gt.Equal(t, b.Slot, exp.slot)
		gt.True(t, near(b.Top, exp.top)).Describe(fmt.Sprintf("top of %s: %v", exp.id, b.Top))
		gt.True(t, near(b.Left, exp.left)).Describe(fmt.Sprintf("left of %s: %v", exp.id, b.Left))
		gt.Equal(t, b.Style, exp.style)
	}
}

func TestResolveCapacity(t *testing.T) {
	ids := make([]string, 30)
	for i := range ids {
		ids[i] = fmt.Sprintf("submission-%02d", i)
	}

	bubbles := placement.Resolve(subs(ids...))
	gt.A(t, bubbles).Length(placement.MaxSlots)

	for i, b := range bubbles {
		gt.Equal(t, b.ID, fmt.Sprintf("submission-%02d-%d", i, i))
	}
}

func TestResolveSkipsEmptyText(t *testing.T) {
	input := subs("x", "y", "z")
	input[1].Text = ""

	bubbles := placement.Resolve(input)
	gt.A(t, bubbles).Length(2)
	gt.Equal(t, bubbles[0].ID, "x-0")
	gt.Equal(t, bubbles[1].ID, "z-2")

	// the skipped entry must not hold a slot
	without := placement.Resolve(subs("x", "z"))
	gt.Equal(t, bubbles[1].Slot, without[1].Slot)
}

func TestResolveSkipsEmptyWithinCapacity(t *testing.T) {
	ids := make([]string, 27)
	for i := range ids {
		ids[i] = fmt.Sprintf("row-%d", i)
	}
	input := subs(ids...)
	input[3].Text = ""
	input[10] = nil

	bubbles := placement.Resolve(input)
	gt.A(t, bubbles).Length(placement.MaxSlots)
	gt.Equal(t, bubbles[len(bubbles)-1].ID, "row-26-26")
}

func TestResolveFallbackIdentifier(t *testing.T) {
	createdAt := time.Date(2026, 10, 19, 8, 30, 0, 0, time.UTC)
	input := []*model.Submission{
		{Text: "no id", CreatedAt: createdAt},
		{Text: "no id or time"},
	}

	bubbles := placement.Resolve(input)
	gt.A(t, bubbles).Length(2)
	gt.Equal(t, bubbles[0].ID, "2026-10-19T08:30:00Z-0-0")
	gt.Equal(t, bubbles[1].ID, "unknown-1-1")
}

func TestResolveDuplicateIdentifiers(t *testing.T) {
	bubbles := placement.Resolve(subs("same", "same"))
	gt.A(t, bubbles).Length(2)
	gt.NotEqual(t, bubbles[0].ID, bubbles[1].ID)
	gt.NotEqual(t, bubbles[0].Slot, bubbles[1].Slot)
	gt.Equal(t, bubbles[1].Slot, (bubbles[0].Slot+1)%placement.MaxSlots)
}

func TestResolveEmpty(t *testing.T) {
	gt.A(t, placement.Resolve(nil)).Length(0)
}
