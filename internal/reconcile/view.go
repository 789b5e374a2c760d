package reconcile

import "shoplist/internal/board"

// View is the presentation side of the list. Calls arrive from whichever
// goroutine performed the change; implementations hand them to their own loop.
type View interface {
	Render(cards []board.Card)
	ToggleDone(card board.Card)
	ScrollPosition() board.Position
	ScrollTo(pos board.Position)
}

// NopView discards presentation calls; used by one-shot commands.
type NopView struct{}

func (NopView) Render([]board.Card)            {}
func (NopView) ToggleDone(board.Card)          {}
func (NopView) ScrollPosition() board.Position { return board.Position{} }
func (NopView) ScrollTo(board.Position)        {}
