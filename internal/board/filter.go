package board

import (
	"sort"

	"shoplist/internal/itemstore"
)

// NoTagsFilter selects items without any tag. It cannot collide with a real
// tag label the backend hands out.
const NoTagsFilter = "42ef91e6101f62a0"

// FilterSet holds the active tag filters. The zero value shows every item.
type FilterSet struct {
	active map[string]struct{}
}

func NewFilterSet(tags ...string) FilterSet {
	fs := FilterSet{}
	for _, t := range tags {
		fs.Add(t)
	}
	return fs
}

func (f *FilterSet) Add(tag string) {
	if f.active == nil {
		f.active = map[string]struct{}{}
	}
	f.active[tag] = struct{}{}
}

func (f *FilterSet) Remove(tag string) {
	delete(f.active, tag)
}

// Toggle flips tag and reports whether it is active afterwards.
func (f *FilterSet) Toggle(tag string) bool {
	if f.Has(tag) {
		f.Remove(tag)
		return false
	}
	f.Add(tag)
	return true
}

func (f FilterSet) Has(tag string) bool {
	_, ok := f.active[tag]
	return ok
}

func (f FilterSet) Len() int {
	return len(f.active)
}

func (f FilterSet) Active() []string {
	out := make([]string, 0, len(f.active))
	for t := range f.active {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func (f FilterSet) Clone() FilterSet {
	return NewFilterSet(f.Active()...)
}

// Matches reports whether item is visible under the filter set: any active
// tag on the item, or no tags at all while NoTagsFilter is active.
func (f FilterSet) Matches(item itemstore.Item) bool {
	if len(f.active) == 0 {
		return true
	}
	if len(item.Tags) == 0 {
		return f.Has(NoTagsFilter)
	}
	for _, t := range item.Tags {
		if f.Has(t) {
			return true
		}
	}
	return false
}
