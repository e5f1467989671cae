package fhir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Object is a JSON object whose member values are kept undecoded. Resource
// members that no transformation touches travel through an Object so the
// encoded output keeps every member the input carried.
type Object map[string]json.RawMessage

// ParseObject decodes data as a JSON object. A JSON null or any non-object
// value is an error.
func ParseObject(data []byte) (Object, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("expected a JSON object")
	}
	var obj Object
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return nil, err
	}
	return obj, nil
}

// Has reports whether key is present, including when its value is null.
func (o Object) Has(key string) bool {
	_, ok := o[key]
	return ok
}

// Decode unmarshals the member named key into v. It returns false without
// touching v when the member is absent or null.
func (o Object) Decode(key string, v any) (bool, error) {
	raw, ok := o[key]
	if !ok || isNull(raw) {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return true, fmt.Errorf("%s: %w", key, err)
	}
	return true, nil
}

// String returns the member named key when it is a JSON string.
func (o Object) String(key string) string {
	var s string
	if ok, err := o.Decode(key, &s); !ok || err != nil {
		return ""
	}
	return s
}

// Set marshals v into the member named key.
func (o Object) Set(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	o[key] = raw
	return nil
}

// Delete removes the member named key.
func (o Object) Delete(key string) {
	delete(o, key)
}

// Clone returns a shallow copy. The raw member values are never mutated in
// place, so sharing them between copies is safe.
func (o Object) Clone() Object {
	if o == nil {
		return nil
	}
	out := make(Object, len(o))
	for k, v := range o {
		out[k] = v
	}
	return out
}

// Contains reports whether any member value contains needle verbatim
// (case-insensitive). Used by leakage checks over encoded output.
func (o Object) Contains(needle string) bool {
	if needle == "" {
		return false
	}
	n := strings.ToLower(needle)
	for _, v := range o {
		if strings.Contains(strings.ToLower(string(v)), n) {
			return true
		}
	}
	return false
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// marshalWithExtra encodes v and adds the members of extra that v did not
// already produce.
func marshalWithExtra(v any, extra Object) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil || len(extra) == 0 {
		return data, err
	}
	var obj Object
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, err
	}
	for k, raw := range extra {
		if _, ok := obj[k]; !ok {
			obj[k] = raw
		}
	}
	return json.Marshal(obj)
}

// unmarshalWithExtra decodes data into v and returns the members whose keys
// are not listed in known.
func unmarshalWithExtra(data []byte, v any, known []string) (Object, error) {
	if err := json.Unmarshal(data, v); err != nil {
		return nil, err
	}
	var obj Object
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, err
	}
	for _, k := range known {
		delete(obj, k)
	}
	if len(obj) == 0 {
		return nil, nil
	}
	return obj, nil
}
