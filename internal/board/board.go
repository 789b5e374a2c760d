package board

import (
	"shoplist/internal/itemstore"
	"shoplist/internal/protocol"
)

// Card is the local view state of one rendered item.
type Card struct {
	Item    itemstore.Item
	Done    bool
	Visible bool
}

func (c Card) ID() protocol.ItemID {
	return c.Item.ID
}

// Position is a scroll position in the rendered list.
type Position struct {
	X int
	Y int
}

// Board holds the rendered cards in display order plus an id index kept in
// step with every mutation. Board is not safe for concurrent use; callers
// serialize access.
type Board struct {
	cards   []*Card
	byID    map[protocol.ItemID]*Card
	filters FilterSet
	tags    []string
}

func New() *Board {
	return &Board{byID: map[protocol.ItemID]*Card{}}
}

// Replace discards every card and renders items in the given order, then
// re-applies the active filters.
func (b *Board) Replace(items []itemstore.Item) {
	b.cards = make([]*Card, 0, len(items))
	b.byID = make(map[protocol.ItemID]*Card, len(items))
	for _, it := range items {
		b.insert(len(b.cards), it)
	}
	b.ApplyFilters()
}

// Prepend adds a card above all others, the way a freshly created item shows up.
func (b *Board) Prepend(item itemstore.Item) *Card {
	c := b.insert(0, item)
	c.Visible = b.filters.Matches(c.Item)
	return c
}

func (b *Board) insert(at int, item itemstore.Item) *Card {
	if old, ok := b.byID[item.ID]; ok && item.ID != "" {
		b.removeCard(old)
		if at > len(b.cards) {
			at = len(b.cards)
		}
	}
	c := &Card{Item: cloneItem(item), Done: item.Done}
	b.cards = append(b.cards, nil)
	copy(b.cards[at+1:], b.cards[at:])
	b.cards[at] = c
	if item.ID != "" {
		b.byID[item.ID] = c
	}
	return c
}

func (b *Board) Lookup(id protocol.ItemID) (Card, bool) {
	c, ok := b.byID[id]
	if !ok {
		return Card{}, false
	}
	return snapshotCard(c), true
}

// Toggle flips the done flag of a rendered card.
func (b *Board) Toggle(id protocol.ItemID) (Card, bool) {
	c, ok := b.byID[id]
	if !ok {
		return Card{}, false
	}
	c.Done = !c.Done
	c.Item.Done = c.Done
	return snapshotCard(c), true
}

// Update replaces title and tags of a rendered card in place.
func (b *Board) Update(id protocol.ItemID, data itemstore.ItemData) (Card, bool) {
	c, ok := b.byID[id]
	if !ok {
		return Card{}, false
	}
	c.Item.Title = data.Title
	c.Item.Tags = append([]string(nil), data.Tags...)
	c.Visible = b.filters.Matches(c.Item)
	return snapshotCard(c), true
}

func (b *Board) Remove(id protocol.ItemID) bool {
	c, ok := b.byID[id]
	if !ok {
		return false
	}
	b.removeCard(c)
	return true
}

func (b *Board) removeCard(c *Card) {
	for i, cur := range b.cards {
		if cur == c {
			b.cards = append(b.cards[:i], b.cards[i+1:]...)
			break
		}
	}
	delete(b.byID, c.Item.ID)
}

func (b *Board) Len() int {
	return len(b.cards)
}

// DoneIDs returns the ids of all done cards, visible or not.
func (b *Board) DoneIDs() []protocol.ItemID {
	out := make([]protocol.ItemID, 0)
	for _, c := range b.cards {
		if c.Done && c.Item.ID != "" {
			out = append(out, c.Item.ID)
		}
	}
	return out
}

func (b *Board) Snapshot() []Card {
	out := make([]Card, 0, len(b.cards))
	for _, c := range b.cards {
		out = append(out, snapshotCard(c))
	}
	return out
}

func (b *Board) Visible() []Card {
	out := make([]Card, 0, len(b.cards))
	for _, c := range b.cards {
		if c.Visible {
			out = append(out, snapshotCard(c))
		}
	}
	return out
}

func (b *Board) ApplyFilters() {
	for _, c := range b.cards {
		c.Visible = b.filters.Matches(c.Item)
	}
}

func (b *Board) Filters() FilterSet {
	return b.filters.Clone()
}

// ToggleFilter flips one filter and re-evaluates visibility.
func (b *Board) ToggleFilter(tag string) bool {
	active := b.filters.Toggle(tag)
	b.ApplyFilters()
	return active
}

func (b *Board) SetTags(tags []string) {
	b.tags = append([]string(nil), tags...)
}

// Tags returns the known tag labels in backend order.
func (b *Board) Tags() []string {
	return append([]string(nil), b.tags...)
}

func snapshotCard(c *Card) Card {
	out := *c
	out.Item = cloneItem(c.Item)
	return out
}

func cloneItem(it itemstore.Item) itemstore.Item {
	if it.Tags != nil {
		it.Tags = append([]string(nil), it.Tags...)
	}
	return it
}
