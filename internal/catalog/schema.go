package catalog

import "encoding/json"

// marshalSchema round-trips an SDK tool input schema (an opaque `any`
// that's already JSON-marshalable) into a plain map.
func marshalSchema(schema any) (map[string]interface{}, bool) {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil, false
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, false
	}
	return m, true
}
