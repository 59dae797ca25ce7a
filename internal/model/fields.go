package model

import (
	"encoding/json"
	"fmt"
)

// Fields is a shallow JSON object as exchanged with the store.
type Fields map[string]json.RawMessage

// Set marshals value into key.
func (f Fields) Set(key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal field %s: %w", key, err)
	}
	f[key] = raw
	return nil
}

// Merge overlays src on top of f. Keys in src replace keys in f.
func (f Fields) Merge(src Fields) Fields {
	for k, v := range src {
		f[k] = v
	}
	return f
}

// FieldsOf converts any JSON-encodable value into Fields.
func FieldsOf(value interface{}) (Fields, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	fields := Fields{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// FieldsFromMap converts a params map into Fields.
func FieldsFromMap(params map[string]interface{}) (Fields, error) {
	fields := make(Fields, len(params))
	for k, v := range params {
		if err := fields.Set(k, v); err != nil {
			return nil, err
		}
	}
	return fields, nil
}

// splitExtra returns the keys of data not listed in known.
func splitExtra(data []byte, known map[string]struct{}) (map[string]json.RawMessage, error) {
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	for k := range known {
		delete(all, k)
	}
	if len(all) == 0 {
		return nil, nil
	}
	return all, nil
}

// joinExtra adds extra keys to an encoded object without overriding typed fields.
func joinExtra(base []byte, extra map[string]json.RawMessage) ([]byte, error) {
	if len(extra) == 0 {
		return base, nil
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(base, &all); err != nil {
		return nil, err
	}
	for k, v := range extra {
		if _, ok := all[k]; !ok {
			all[k] = v
		}
	}
	return json.Marshal(all)
}
