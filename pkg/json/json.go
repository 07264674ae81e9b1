/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package json

import (
	"bytes"
	"encoding/json"
)

// Unmarshal parses the JSON-encoded data and stores the result in the value pointed to by v.
func Unmarshal(data []byte, v interface{}) error {
	d := json.NewDecoder(bytes.NewReader(data))
	if err := d.Decode(v); err != nil {
		return err
	}
	return nil
}

// UnmarshalStrict behaves like Unmarshal but rejects unknown fields.
func UnmarshalStrict(data []byte, v interface{}) error {
	d := json.NewDecoder(bytes.NewReader(data))
	d.DisallowUnknownFields()
	return d.Decode(v)
}

// MarshalSilently converts the given value to its JSON representation.
func MarshalSilently(v interface{}) []byte {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}

// ShallowMerge overlays the top-level fields of patch onto base and returns
// the merged document. Fields present in patch win; nested objects are
// replaced, not merged.
func ShallowMerge(base, patch []byte) ([]byte, error) {
	merged := map[string]json.RawMessage{}
	if len(base) > 0 {
		if err := Unmarshal(base, &merged); err != nil {
			return nil, err
		}
	}
	overlay := map[string]json.RawMessage{}
	if len(patch) > 0 {
		if err := Unmarshal(patch, &overlay); err != nil {
			return nil, err
		}
	}
	for k, v := range overlay {
		merged[k] = v
	}
	return json.Marshal(merged)
}
