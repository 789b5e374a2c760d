package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"shoplist/internal/board"
	"shoplist/internal/itemstore"
	"shoplist/internal/protocol"
	"shoplist/internal/render"
)

// Actions is the reconciler surface the terminal client drives.
type Actions interface {
	FullRefresh(ctx context.Context) error
	RefreshTags(ctx context.Context) error
	ToggleDone(ctx context.Context, id protocol.ItemID) error
	Create(ctx context.Context, data itemstore.ItemData) (itemstore.Item, error)
	Update(ctx context.Context, id protocol.ItemID, data itemstore.ItemData) error
	Delete(ctx context.Context, id protocol.ItemID) error
	DeleteAllDone(ctx context.Context) (int, error)
	ToggleFilter(tag string) bool
	Filters() board.FilterSet
	Tags() []string
}

type mode int

const (
	modeBrowse mode = iota
	modeForm
	modeConfirm
)

const untaggedChipLabel = "untagged"

type actionDoneMsg struct {
	what string
	err  error
}

type clearedMsg struct {
	n   int
	err error
}

type Model struct {
	ctx        context.Context
	actions    Actions
	view       *ProgramView
	deployment string
	keys       keyMap
	help       help.Model

	cards   []board.Card
	cursor  int
	top     int
	chips   []string
	chip    int
	filters board.FilterSet

	mode      mode
	editing   protocol.ItemID
	title     textinput.Model
	tags      textinput.Model
	focusTags bool

	status  string
	notice  string
	lastErr string
	width   int
	height  int
}

func NewModel(ctx context.Context, actions Actions, view *ProgramView, deployment string) Model {
	if view == nil {
		view = NewProgramView()
	}
	title := textinput.New()
	title.Placeholder = "Milk"
	title.CharLimit = 200
	tags := textinput.New()
	tags.Placeholder = "Dairy, Cold"
	tags.CharLimit = 200

	return Model{
		ctx:        ctx,
		actions:    actions,
		view:       view,
		deployment: deployment,
		keys:       newKeyMap(),
		help:       help.New(),
		title:      title,
		tags:       tags,
		status:     "connecting",
		chips:      []string{board.NoTagsFilter},
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.refresh(), m.do("load tags", m.actions.RefreshTags))
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.follow()
		return m, nil

	case tea.FocusMsg:
		// Coming back to the terminal reloads the list; the reconciler keeps
		// the scroll position.
		return m, m.refresh()

	case cardsMsg:
		m.cards = msg.cards
		m.syncChips()
		m.clampCursor()
		return m, nil

	case toggledMsg:
		for i := range m.cards {
			if m.cards[i].ID() == msg.card.ID() {
				m.cards[i].Done = msg.card.Done
				m.cards[i].Item.Done = msg.card.Done
				break
			}
		}
		return m, nil

	case scrollToMsg:
		m.cursor = msg.pos.Y
		m.clampCursor()
		return m, nil

	case statusMsg:
		m.status = msg.text
		return m, nil

	case actionDoneMsg:
		if msg.err != nil {
			m.lastErr = fmt.Sprintf("%s: %v", msg.what, msg.err)
		} else {
			m.lastErr = ""
		}
		return m, nil

	case clearedMsg:
		m.notice = fmt.Sprintf("deleted %d items", msg.n)
		if msg.err != nil {
			m.lastErr = fmt.Sprintf("delete all done: %v", msg.err)
		}
		return m, nil

	case tea.KeyMsg:
		switch m.mode {
		case modeForm:
			return m.updateForm(msg)
		case modeConfirm:
			return m.updateConfirm(msg)
		default:
			return m.updateBrowse(msg)
		}
	}

	if m.mode == modeForm {
		return m.updateInputs(msg)
	}
	return m, nil
}

func (m Model) updateBrowse(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.up):
		m.move(-1)
	case key.Matches(msg, m.keys.down):
		m.move(1)
	case key.Matches(msg, m.keys.toggle):
		if card, ok := m.selected(); ok {
			id := card.ID()
			return m, m.do("toggle done", func(ctx context.Context) error {
				return m.actions.ToggleDone(ctx, id)
			})
		}
	case key.Matches(msg, m.keys.add):
		return m.openForm("", itemstore.Item{})
	case key.Matches(msg, m.keys.edit):
		if card, ok := m.selected(); ok {
			return m.openForm(card.ID(), card.Item)
		}
	case key.Matches(msg, m.keys.remove):
		if card, ok := m.selected(); ok {
			id := card.ID()
			return m, m.do("delete", func(ctx context.Context) error {
				return m.actions.Delete(ctx, id)
			})
		}
	case key.Matches(msg, m.keys.clearDone):
		m.mode = modeConfirm
	case key.Matches(msg, m.keys.nextChip):
		if len(m.chips) > 0 {
			m.chip = (m.chip + 1) % len(m.chips)
		}
	case key.Matches(msg, m.keys.prevChip):
		if len(m.chips) > 0 {
			m.chip = (m.chip - 1 + len(m.chips)) % len(m.chips)
		}
	case key.Matches(msg, m.keys.applyChip):
		if m.chip < len(m.chips) {
			tag := m.chips[m.chip]
			actions := m.actions
			return m, func() tea.Msg {
				actions.ToggleFilter(tag)
				return nil
			}
		}
	case key.Matches(msg, m.keys.refresh):
		return m, m.refresh()
	case key.Matches(msg, m.keys.toggleHelp):
		m.help.ShowAll = !m.help.ShowAll
	}
	return m, nil
}

func (m Model) openForm(id protocol.ItemID, item itemstore.Item) (tea.Model, tea.Cmd) {
	m.mode = modeForm
	m.editing = id
	m.title.SetValue(item.Title)
	m.tags.SetValue(strings.Join(item.Tags, ", "))
	m.focusTags = false
	m.tags.Blur()
	return m, m.title.Focus()
}

func (m Model) updateForm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.closeForm()
		return m, nil
	case "tab", "shift+tab":
		m.focusTags = !m.focusTags
		if m.focusTags {
			m.title.Blur()
			return m, m.tags.Focus()
		}
		m.tags.Blur()
		return m, m.title.Focus()
	case "enter":
		data := itemstore.ItemData{Title: m.title.Value(), Tags: splitTags(m.tags.Value())}
		if strings.TrimSpace(data.Title) == "" {
			m.lastErr = "title is required"
			return m, nil
		}
		id := m.editing
		m.closeForm()
		if id == "" {
			return m, m.do("add", func(ctx context.Context) error {
				_, err := m.actions.Create(ctx, data)
				return err
			})
		}
		return m, m.do("edit", func(ctx context.Context) error {
			return m.actions.Update(ctx, id, data)
		})
	}
	return m.updateInputs(msg)
}

func (m Model) updateInputs(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	if m.focusTags {
		m.tags, cmd = m.tags.Update(msg)
	} else {
		m.title, cmd = m.title.Update(msg)
	}
	return m, cmd
}

func (m *Model) closeForm() {
	m.mode = modeBrowse
	m.editing = ""
	m.title.Blur()
	m.tags.Blur()
	m.title.SetValue("")
	m.tags.SetValue("")
}

func (m Model) updateConfirm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "enter":
		m.mode = modeBrowse
		ctx, actions := m.ctx, m.actions
		return m, func() tea.Msg {
			n, err := actions.DeleteAllDone(ctx)
			return clearedMsg{n: n, err: err}
		}
	case "n", "esc", "q":
		m.mode = modeBrowse
	}
	return m, nil
}

func (m Model) refresh() tea.Cmd {
	return m.do("refresh", m.actions.FullRefresh)
}

func (m Model) do(what string, fn func(context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return actionDoneMsg{what: what, err: fn(ctx)}
	}
}

func (m Model) visible() []board.Card {
	out := make([]board.Card, 0, len(m.cards))
	for _, c := range m.cards {
		if c.Visible {
			out = append(out, c)
		}
	}
	return out
}

func (m Model) selected() (board.Card, bool) {
	vis := m.visible()
	if m.cursor < 0 || m.cursor >= len(vis) {
		return board.Card{}, false
	}
	return vis[m.cursor], true
}

func (m *Model) move(delta int) {
	m.cursor += delta
	m.clampCursor()
}

func (m *Model) clampCursor() {
	n := len(m.visible())
	if m.cursor >= n {
		m.cursor = n - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
	m.follow()
	m.view.storeScroll(m.cursor)
}

// follow keeps the cursor inside the visible window of the list.
func (m *Model) follow() {
	h := m.listHeight()
	if m.cursor < m.top {
		m.top = m.cursor
	}
	if m.cursor >= m.top+h {
		m.top = m.cursor - h + 1
	}
	if m.top < 0 {
		m.top = 0
	}
}

func (m Model) listHeight() int {
	h := m.height - 6
	if h < 3 {
		h = 3
	}
	return h
}

func (m *Model) syncChips() {
	chips := append(m.actions.Tags(), board.NoTagsFilter)
	m.chips = chips
	if m.chip >= len(chips) {
		m.chip = len(chips) - 1
	}
	m.filters = m.actions.Filters()
}

func (m Model) View() string {
	header := headerStyle.Render("shoplist · "+m.deployment) + "  " + mutedStyle.Render(m.status)

	var body string
	switch m.mode {
	case modeForm:
		body = m.viewForm()
	case modeConfirm:
		body = modalStyle.Render("Delete all done items? (y/n)")
	default:
		body = m.viewCards()
	}

	footer := m.help.View(m.keys)
	lines := []string{header, m.viewChips(), "", body, ""}
	if m.lastErr != "" {
		lines = append(lines, errorStyle.Render(m.lastErr))
	} else if m.notice != "" {
		lines = append(lines, mutedStyle.Render(m.notice))
	}
	lines = append(lines, footer)
	return strings.Join(lines, "\n")
}

func (m Model) viewChips() string {
	parts := make([]string, 0, len(m.chips))
	for i, tag := range m.chips {
		label := tag
		if tag == board.NoTagsFilter {
			label = untaggedChipLabel
		}
		style := chipStyle
		if m.filters.Has(tag) {
			style = chipActiveStyle
		}
		if i == m.chip {
			style = style.Inherit(chipCursorStyle)
		}
		parts = append(parts, style.Render(label))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func (m Model) viewCards() string {
	vis := m.visible()
	if len(vis) == 0 {
		return mutedStyle.Render("Nothing to buy.")
	}
	end := m.top + m.listHeight()
	if end > len(vis) {
		end = len(vis)
	}
	rows := make([]string, 0, end-m.top)
	for i := m.top; i < end; i++ {
		card := vis[i]
		line := render.Line(card)
		if card.Done {
			line = doneStyle.Render(line)
		}
		if i == m.cursor {
			line = selectedStyle.Render("> ") + line
		} else {
			line = "  " + line
		}
		rows = append(rows, line)
	}
	return strings.Join(rows, "\n")
}

func (m Model) viewForm() string {
	heading := "New item"
	if m.editing != "" {
		heading = "Edit item"
	}
	content := strings.Join([]string{
		headerStyle.Render(heading),
		formLabelStyle.Render("Title") + m.title.View(),
		formLabelStyle.Render("Tags") + m.tags.View(),
		mutedStyle.Render("tab: switch field  enter: save  esc: cancel"),
	}, "\n")
	return modalStyle.Render(content)
}

func splitTags(raw string) []string {
	parts := strings.Split(raw, ",")
	return itemstore.NormalizeTags(parts)
}
