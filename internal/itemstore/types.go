package itemstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"shoplist/internal/protocol"
)

type Item struct {
	ID    protocol.ItemID `json:"id"`
	Title string          `json:"title"`
	Tags  []string        `json:"tags"`
	Done  bool            `json:"done"`
}

// UnmarshalJSON accepts done as a boolean or as 0/1, which older backends send.
func (it *Item) UnmarshalJSON(b []byte) error {
	var raw struct {
		ID    protocol.ItemID `json:"id"`
		Title string          `json:"title"`
		Tags  []string        `json:"tags"`
		Done  json.RawMessage `json:"done"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	done, err := decodeFlag(raw.Done)
	if err != nil {
		return fmt.Errorf("item %s: %w", raw.ID, err)
	}
	*it = Item{ID: raw.ID, Title: raw.Title, Tags: raw.Tags, Done: done}
	return nil
}

func (it Item) HasTag(tag string) bool {
	for _, t := range it.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// ItemData is the editable part of an item.
type ItemData struct {
	ID    protocol.ItemID `json:"id,omitempty"`
	Title string          `json:"title"`
	Tags  []string        `json:"tags"`
}

type itemEnvelope struct {
	ItemData ItemData `json:"itemData"`
}

type doneBody struct {
	Done bool `json:"done"`
}

type tagsResponse struct {
	Tags []string `json:"tags"`
}

// CollectRecord is the telemetry record posted when an item is crossed off or restored.
type CollectRecord struct {
	ActionType string          `json:"action_type"`
	Name       string          `json:"name"`
	ItemID     protocol.ItemID `json:"item_id"`
	Latitude   *float64        `json:"latitude"`
	Longitude  *float64        `json:"longitude"`
	UserAgent  string          `json:"user_agent"`
	UserKey    string          `json:"user_key"`
}

const (
	ActionCrossed   = "CROSSED"
	ActionUncrossed = "UNCROSSED"
)

func ActionTypeFor(done bool) string {
	if done {
		return ActionCrossed
	}
	return ActionUncrossed
}

func decodeFlag(raw json.RawMessage) (bool, error) {
	raw = bytes.TrimSpace(raw)
	switch string(raw) {
	case "", "null", "false", "0":
		return false, nil
	case "true", "1":
		return true, nil
	}
	return false, fmt.Errorf("invalid done flag %s", raw)
}

// NormalizeTags trims every tag, drops empty ones and removes duplicates while
// keeping the first occurrence, matching what the tag input accepts.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
