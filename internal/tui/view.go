package tui

import (
	"sync"
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"

	"shoplist/internal/board"
)

type cardsMsg struct{ cards []board.Card }

type toggledMsg struct{ card board.Card }

type scrollToMsg struct{ pos board.Position }

type statusMsg struct{ text string }

// ProgramView forwards reconciler output into a running program. Calls made
// while no program is attached are dropped; the program loads the list itself
// on start.
type ProgramView struct {
	mu     sync.Mutex
	send   func(tea.Msg)
	scroll atomic.Int64
}

func NewProgramView() *ProgramView {
	return &ProgramView{}
}

func (v *ProgramView) attach(send func(tea.Msg)) {
	v.mu.Lock()
	v.send = send
	v.mu.Unlock()
}

func (v *ProgramView) post(msg tea.Msg) {
	v.mu.Lock()
	send := v.send
	v.mu.Unlock()
	if send != nil {
		send(msg)
	}
}

func (v *ProgramView) Render(cards []board.Card) {
	v.post(cardsMsg{cards: cards})
}

func (v *ProgramView) ToggleDone(card board.Card) {
	v.post(toggledMsg{card: card})
}

func (v *ProgramView) ScrollPosition() board.Position {
	return board.Position{Y: int(v.scroll.Load())}
}

func (v *ProgramView) ScrollTo(pos board.Position) {
	v.post(scrollToMsg{pos: pos})
}

// SetStatus shows the connection state in the header.
func (v *ProgramView) SetStatus(text string) {
	v.post(statusMsg{text: text})
}

func (v *ProgramView) storeScroll(y int) {
	v.scroll.Store(int64(y))
}
