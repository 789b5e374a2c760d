package render

import (
	"fmt"
	"io"
	"strings"

	xansi "github.com/charmbracelet/x/ansi"

	"shoplist/internal/board"
	"shoplist/internal/journal"
)

const (
	doneMark = "[x]"
	openMark = "[ ]"
	ellipsis = "…"
)

// Line renders one card without its id: "[x] Milk  #Dairy #Cold".
func Line(c board.Card) string {
	mark := openMark
	if c.Done {
		mark = doneMark
	}
	var b strings.Builder
	b.WriteString(mark)
	b.WriteString(" ")
	b.WriteString(c.Item.Title)
	if len(c.Item.Tags) > 0 {
		b.WriteString("  ")
		b.WriteString(TagList(c.Item.Tags))
	}
	return b.String()
}

func TagList(tags []string) string {
	parts := make([]string, 0, len(tags))
	for _, t := range tags {
		parts = append(parts, "#"+t)
	}
	return strings.Join(parts, " ")
}

// Cards writes one line per visible card, ids aligned in the first column.
// width <= 0 disables truncation.
func Cards(w io.Writer, cards []board.Card, width int) error {
	idWidth := 0
	for _, c := range cards {
		if !c.Visible {
			continue
		}
		if n := xansi.StringWidth(string(c.ID())); n > idWidth {
			idWidth = n
		}
	}
	for _, c := range cards {
		if !c.Visible {
			continue
		}
		id := string(c.ID())
		line := id + strings.Repeat(" ", idWidth-xansi.StringWidth(id)) + "  " + Line(c)
		if width > 0 {
			line = xansi.Truncate(line, width, ellipsis)
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

func Tags(w io.Writer, tags []string) error {
	for _, t := range tags {
		if _, err := fmt.Fprintln(w, t); err != nil {
			return err
		}
	}
	return nil
}

// History writes journal entries newest first.
func History(w io.Writer, entries []journal.Entry) error {
	for _, e := range entries {
		line := fmt.Sprintf("%s  %-9s  %-7s  %s  %s",
			e.CreatedAt.Format("2006-01-02 15:04:05"), e.ActionType, e.Status, e.ItemID, e.Name)
		if e.LastError != "" {
			line += "  (" + e.LastError + ")"
		}
		if _, err := fmt.Fprintln(w, strings.TrimRight(line, " ")); err != nil {
			return err
		}
	}
	return nil
}
