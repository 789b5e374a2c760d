package render

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"shoplist/internal/board"
	"shoplist/internal/itemstore"
	"shoplist/internal/journal"
	"shoplist/internal/protocol"
)

func card(id, title string, done, visible bool, tags ...string) board.Card {
	return board.Card{Item: itemstore.Item{ID: protocol.ItemID(id), Title: title, Tags: tags, Done: done}, Done: done, Visible: visible}
}

func TestLine(t *testing.T) {
	if got := Line(card("A", "Milk", false, true)); got != "[ ] Milk" {
		t.Fatalf("expected open line, got %q", got)
	}
	if got := Line(card("B", "Cheese", true, true, "Dairy", "Cold")); got != "[x] Cheese  #Dairy #Cold" {
		t.Fatalf("expected done line with tags, got %q", got)
	}
}

func TestCards_AlignsIDsAndSkipsHidden(t *testing.T) {
	var buf bytes.Buffer
	err := Cards(&buf, []board.Card{
		card("1", "Milk", false, true),
		card("hidden", "Bread", false, false),
		card("123", "Eggs", true, true),
	}, 0)
	if err != nil {
		t.Fatalf("cards failed: %v", err)
	}
	want := "1    [ ] Milk\n123  [x] Eggs\n"
	if buf.String() != want {
		t.Fatalf("expected %q, got %q", want, buf.String())
	}
}

func TestCards_Truncates(t *testing.T) {
	var buf bytes.Buffer
	if err := Cards(&buf, []board.Card{card("1", "A very long shopping item title", false, true)}, 12); err != nil {
		t.Fatalf("cards failed: %v", err)
	}
	line := strings.TrimSuffix(buf.String(), "\n")
	if !strings.HasSuffix(line, ellipsis) {
		t.Fatalf("expected truncated line, got %q", line)
	}
}

func TestHistory(t *testing.T) {
	var buf bytes.Buffer
	at := time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC)
	err := History(&buf, []journal.Entry{
		{ItemID: "A", Name: "Milk", ActionType: "CROSSED", Status: "failed", LastError: errors.New("collect: 502 Bad Gateway").Error(), CreatedAt: at},
	})
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"2026-10-18 09:30:00", "CROSSED", "failed", "Milk", "(collect: 502 Bad Gateway)"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in %q", want, out)
		}
	}
}
