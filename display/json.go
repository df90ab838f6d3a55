package display

import (
	"encoding/json"
)

// MarshalJSON pretty-prints v with two-space indentation, the one JSON shape
// every command emits.
func MarshalJSON(v interface{}) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}
