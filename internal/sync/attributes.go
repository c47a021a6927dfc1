package sync

import (
	"encoding/json"
	"fmt"
)

// AttributeMap normalizes the aggregator's loosely shaped attribute
// payloads. Clients send either a bare string per key or an object with a
// "value" field; both shapes collapse to an optional string. Any other
// shape is a decode error rather than a silently ignored value.
type AttributeMap map[string]*string

type attributeObject struct {
	Value *string `json:"value"`
}

func (m *AttributeMap) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	out := make(AttributeMap, len(raw))
	for key, value := range raw {
		var asString string
		if err := json.Unmarshal(value, &asString); err == nil {
			out[key] = &asString
			continue
		}

		if string(value) == "null" {
			out[key] = nil
			continue
		}

		var asObject attributeObject
		if err := json.Unmarshal(value, &asObject); err == nil {
			out[key] = asObject.Value
			continue
		}

		return fmt.Errorf("attribute %q: expected string or {value} object", key)
	}

	*m = out
	return nil
}

// Get returns the attribute value, or nil when absent or explicitly null.
func (m AttributeMap) Get(key string) *string {
	if m == nil {
		return nil
	}
	return m[key]
}
