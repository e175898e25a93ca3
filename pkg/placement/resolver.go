package placement

import (
	"strconv"
	"time"

	"github.com/m-mizutani/bubbleboard/pkg/model"
)

const (
	jitterStep   = 0.4
	jitterRange  = 9
	jitterOffset = 4
	jitterDivide = 19

	minTop  = 5.0
	maxTop  = 92.0
	minLeft = 10.0
	maxLeft = 90.0
)

// Placement is the resolved position for one identifier within a single pass.
type Placement struct {
	Hash  int64
	Slot  int
	Top   float64
	Left  float64
	Style model.Palette
}

// pass holds the taken-slot set of one Resolve call. It is discarded afterwards, so a
// changed input list can move every bubble.
type pass struct {
	grid   *Grid
	taken  [MaxSlots]bool
	placed int
}

func (p *pass) full() bool {
	return p.placed >= MaxSlots
}

// place assigns the next slot for identifier. Callers must check full() first; the probe
// loop relies on at least one free slot.
func (p *pass) place(identifier string) Placement {
	hash := Hash(identifier)

	slot := int(abs64(hash) % MaxSlots)
	for p.taken[slot] {
		slot = (slot + 1) % MaxSlots
	}
	p.taken[slot] = true
	p.placed++

	base := p.grid.slots[slot]
	jitterTop := float64(hash%jitterRange-jitterOffset) * jitterStep
	jitterLeft := float64((hash/jitterDivide)%jitterRange-jitterOffset) * jitterStep

	return Placement{
		Hash:  hash,
		Slot:  slot,
		Top:   clamp(base.Top+jitterTop, minTop, maxTop),
		Left:  clamp(base.Left+jitterLeft, minLeft, maxLeft),
		Style: model.Palettes[abs64(hash)%int64(len(model.Palettes))],
	}
}

// Identifier is the placement key of the submission at index: its id, or
// "{created_at}-{index}" when the id is missing.
func Identifier(sub *model.Submission, index int) string {
	if sub.ID != "" {
		return string(sub.ID)
	}
	createdAt := "unknown"
	if !sub.CreatedAt.IsZero() {
		createdAt = sub.CreatedAt.Format(time.RFC3339Nano)
	}
	return createdAt + "-" + strconv.Itoa(index)
}

// Resolve places submissions (newest first) on the default grid.
func Resolve(subs []*model.Submission) []*model.Bubble {
	return DefaultGrid().Resolve(subs)
}

// Resolve maps submissions to bubbles in input order. Entries without text are skipped
// without consuming a slot, and at most MaxSlots bubbles are produced.
func (g *Grid) Resolve(subs []*model.Submission) []*model.Bubble {
	p := &pass{grid: g}
	bubbles := make([]*model.Bubble, 0, min(len(subs), MaxSlots))

	for index, sub := range subs {
		// The cap counts placed bubbles, not input rows: empty rows among the first
		// MaxSlots let later rows fill the board.
		if p.full() {
			break
		}
		if sub == nil || sub.Text == "" {
			continue
		}

		identifier := Identifier(sub, index)
		pl := p.place(identifier)

		bubbles = append(bubbles, &model.Bubble{
			ID:    identifier + "-" + strconv.Itoa(index),
			Text:  sub.Text,
			Top:   pl.Top,
			Left:  pl.Left,
			Slot:  pl.Slot,
			Style: pl.Style,
		})
	}

	return bubbles
}

func clamp(v, lo, hi float64) float64 {
	return max(lo, min(hi, v))
}
