package protocol

import "strings"

const (
	doneUpdatesSuffix = "_doneUpdates"
	newItemSuffix     = "_newItem"
)

// Topics names the two broker channels of one deployment.
type Topics struct {
	DoneUpdates string
	NewItem     string
}

func NewTopics(deployment string) Topics {
	d := strings.TrimSpace(deployment)
	return Topics{
		DoneUpdates: d + doneUpdatesSuffix,
		NewItem:     d + newItemSuffix,
	}
}

// All returns the topics in subscription order.
func (t Topics) All() []string {
	return []string{t.DoneUpdates, t.NewItem}
}
