package store

import (
	"bytes"
	"encoding/json"
	"strconv"
)

var serverValueJSON = []byte(`{".sv":"timestamp"}`)

// ServerTimestamp asks the store to write its own clock, in milliseconds
// since the epoch.
var ServerTimestamp = map[string]any{".sv": "timestamp"}

// Timestamp is a store-assigned time in milliseconds since the epoch. The zero
// value marshals as the server timestamp placeholder, so a zero Timestamp in a
// written struct is filled in by the store.
type Timestamp int64

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t == 0 {
		return serverValueJSON, nil
	}
	return strconv.AppendInt(nil, int64(t), 10), nil
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || b[0] == 'n' || b[0] == '{' {
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*t = Timestamp(f)
	return nil
}

func isServerTimestamp(m map[string]any) bool {
	if len(m) != 1 {
		return false
	}
	v, ok := m[".sv"].(string)
	return ok && v == "timestamp"
}
