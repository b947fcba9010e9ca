package settings

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"sort"
)

var (
	ErrDocumentNotFound = errors.New("settings: document not found")
	ErrInvalidDocument  = errors.New("settings: invalid document")
)

// SyncDocument maps whitelisted setting names to arbitrary JSON values.
type SyncDocument map[string]json.RawMessage

// Clone returns a copy that shares no value buffers with d
func (d SyncDocument) Clone() SyncDocument {
	if d == nil {
		return nil
	}
	out := make(SyncDocument, len(d))
	for k, v := range d {
		out[k] = append(json.RawMessage(nil), v...)
	}
	return out
}

// Keys returns the field names in sorted order
func (d SyncDocument) Keys() []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Set marshals v into field name
func (d SyncDocument) Set(name string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	d[name] = raw
	return nil
}

// Get unmarshals field name into v. It reports false when the field is absent.
func (d SyncDocument) Get(name string, v any) (bool, error) {
	raw, ok := d[name]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, v)
}

// Canonical returns a stable encoding: sorted keys at every depth, no
// insignificant whitespace, numbers kept verbatim.
func (d SyncDocument) Canonical() ([]byte, error) {
	if d == nil {
		return []byte("null"), nil
	}
	generic := make(map[string]any, len(d))
	for k, v := range d {
		val, err := decodeValue(v)
		if err != nil {
			return nil, errors.Join(ErrInvalidDocument, err)
		}
		generic[k] = val
	}
	return json.Marshal(generic)
}

// Hash returns the hex sha256 of the canonical encoding
func (d SyncDocument) Hash() (string, error) {
	b, err := d.Canonical()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// Equal compares two documents by canonical encoding
func Equal(a, b SyncDocument) bool {
	ca, errA := a.Canonical()
	cb, errB := b.Canonical()
	return errA == nil && errB == nil && bytes.Equal(ca, cb)
}

func decodeValue(raw json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func canonicalValue(raw json.RawMessage) (string, error) {
	v, err := decodeValue(raw)
	if err != nil {
		return "", err
	}
	b, err := json.Marshal(v)
	return string(b), err
}

// isEmptyValue reports null, "", [], {} and missing values as empty
func isEmptyValue(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return true
	}
	switch string(trimmed) {
	case "null", `""`:
		return true
	}
	v, err := decodeValue(trimmed)
	if err != nil {
		return false
	}
	switch t := v.(type) {
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}
	return false
}
