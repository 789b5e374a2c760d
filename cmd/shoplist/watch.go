package main

import (
	"fmt"
	"io"
	"sync"
	"time"

	"shoplist/internal/board"
	"shoplist/internal/render"
)

// watchView prints the whole list after every render and one line per
// toggle. It has no scroll position.
type watchView struct {
	mu  sync.Mutex
	out io.Writer
	now func() time.Time
}

func newWatchView(out io.Writer) *watchView {
	return &watchView{out: out, now: time.Now}
}

func (v *watchView) Render(cards []board.Card) {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := v.out
	fmt.Fprintf(out, "-- %s --\n", v.now().Format(time.TimeOnly))
	_ = render.Cards(out, cards, 0)
}

func (v *watchView) ToggleDone(card board.Card) {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := v.out
	fmt.Fprintln(out, string(card.ID())+"  "+render.Line(card))
}

func (v *watchView) ScrollPosition() board.Position { return board.Position{} }

func (v *watchView) ScrollTo(board.Position) {}

func (v *watchView) SetStatus(text string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := v.out
	fmt.Fprintf(out, "-- %s --\n", text)
}
