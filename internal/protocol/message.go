package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// AtLeastOnce is the MQTT quality-of-service level used for every subscription.
const AtLeastOnce byte = 1

// ItemID is the backend's opaque item identifier. Payloads may carry it as a
// JSON string or number; both decode to the same text, and numbers are written
// in their shortest form so 7, 7.0 and 7e0 name the same item.
type ItemID string

func (id *ItemID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ItemID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("item id must be a string or number: %w", err)
	}
	*id = ItemID(canonicalNumber(n))
	return nil
}

func canonicalNumber(n json.Number) string {
	if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
		return strconv.FormatInt(i, 10)
	}
	f, err := n.Float64()
	if err != nil {
		return n.String()
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func (id ItemID) String() string {
	return string(id)
}

// ChangeNotification announces that an item's done flag changed somewhere.
type ChangeNotification struct {
	ID     ItemID `json:"id"`
	Status bool   `json:"status"`
}

var ErrMissingID = errors.New("missing item id")

func DecodeChangeNotification(payload []byte) (ChangeNotification, error) {
	var n ChangeNotification
	if err := json.Unmarshal(payload, &n); err != nil {
		return ChangeNotification{}, err
	}
	if strings.TrimSpace(string(n.ID)) == "" {
		return ChangeNotification{}, ErrMissingID
	}
	return n, nil
}

func EncodeChangeNotification(n ChangeNotification) ([]byte, error) {
	if strings.TrimSpace(string(n.ID)) == "" {
		return nil, ErrMissingID
	}
	return json.Marshal(n)
}
