package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Key derives the cache key for a job request: the job type plus a
// SHA-256 of the canonicalized params. Semantically identical requests
// differing only in case, surrounding whitespace, object key order, or
// scalar array order produce the same key.
//
// Canonicalization rules:
//   - object keys are sorted
//   - strings are trimmed and case-folded
//   - arrays whose elements are all scalars are sorted by their canonical
//     encoding; arrays containing objects or nested arrays keep order,
//     since position is assumed meaningful there
//   - numbers keep their JSON source representation
func Key(jobType string, params json.RawMessage) (string, error) {
	canonical, err := Normalize(params)
	if err != nil {
		return "", fmt.Errorf("normalize params: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return jobType + ":" + hex.EncodeToString(sum[:]), nil
}

// Normalize returns the canonical encoding of a JSON params payload.
// The output is deterministic: equal inputs under the rules documented on
// Key produce byte-identical output.
func Normalize(params json.RawMessage) ([]byte, error) {
	if len(params) == 0 {
		return []byte("null"), nil
	}
	dec := json.NewDecoder(strings.NewReader(string(params)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	var sb strings.Builder
	if err := writeCanonical(&sb, v); err != nil {
		return nil, err
	}
	return []byte(sb.String()), nil
}

func writeCanonical(sb *strings.Builder, v any) error {
	switch t := v.(type) {
	case nil:
		sb.WriteString("null")
	case bool:
		if t {
			sb.WriteString("true")
		} else {
			sb.WriteString("false")
		}
	case json.Number:
		sb.WriteString(t.String())
	case string:
		enc, err := json.Marshal(strings.ToLower(strings.TrimSpace(t)))
		if err != nil {
			return err
		}
		sb.Write(enc)
	case []any:
		return writeCanonicalArray(sb, t)
	case map[string]any:
		return writeCanonicalObject(sb, t)
	default:
		return fmt.Errorf("unsupported JSON value %T", v)
	}
	return nil
}

func writeCanonicalObject(sb *strings.Builder, m map[string]any) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sb.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		enc, err := json.Marshal(k)
		if err != nil {
			return err
		}
		sb.Write(enc)
		sb.WriteByte(':')
		if err := writeCanonical(sb, m[k]); err != nil {
			return err
		}
	}
	sb.WriteByte('}')
	return nil
}

func writeCanonicalArray(sb *strings.Builder, arr []any) error {
	parts := make([]string, len(arr))
	scalars := true
	for i, el := range arr {
		switch el.(type) {
		case map[string]any, []any:
			scalars = false
		}
		var inner strings.Builder
		if err := writeCanonical(&inner, el); err != nil {
			return err
		}
		parts[i] = inner.String()
	}
	if scalars {
		sort.Strings(parts)
	}
	sb.WriteByte('[')
	for i, p := range parts {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(p)
	}
	sb.WriteByte(']')
	return nil
}
