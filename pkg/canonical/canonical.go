// Package canonical provides deterministic, order-independent JSON
// serialization of structured data, used as the hashing input for proof and
// batch identities. Two deep-equal values always hash identically no matter
// in which order their keys were originally inserted.
package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// Canonicalize recursively sorts object keys lexicographically while
// preserving array order and primitive leaves unchanged. Struct values are
// round-tripped through JSON first, so declaration order never leaks into the
// result. The input is not mutated.
func Canonicalize(v any) (any, error) {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		out := orderedObject{keys: keys, values: make(map[string]any, len(val))}
		for _, k := range keys {
			child, err := Canonicalize(val[k])
			if err != nil {
				return nil, err
			}
			out.values[k] = child
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			child, err := Canonicalize(item)
			if err != nil {
				return nil, err
			}
			out[i] = child
		}
		return out, nil
	case orderedObject:
		return val, nil
	case string, float64, bool, nil, json.Number:
		return val, nil
	default:
		decoded, err := roundTrip(val)
		if err != nil {
			return nil, err
		}
		return Canonicalize(decoded)
	}
}

// Marshal produces the canonical JSON encoding of v.
func Marshal(v any) ([]byte, error) {
	canon, err := Canonicalize(v)
	if err != nil {
		return nil, err
	}

	return json.Marshal(canon)
}

// Hash returns the hex-encoded SHA-256 digest of the canonical JSON
// serialization of v.
func Hash(v any) (string, error) {
	encoded, err := Marshal(v)
	if err != nil {
		return "", err
	}

	return HashBytes(encoded), nil
}

// HashBytes returns the hex-encoded SHA-256 digest of raw bytes.
func HashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// orderedObject is a JSON object that serializes its keys in the explicit
// order given, rather than in map iteration order.
type orderedObject struct {
	keys   []string
	values map[string]any
}

func (o orderedObject) MarshalJSON() ([]byte, error) {
	var buf []byte
	buf = append(buf, '{')
	for i, k := range o.keys {
		if i > 0 {
			buf = append(buf, ',')
		}

		keyEncoded, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf = append(buf, keyEncoded...)
		buf = append(buf, ':')

		valueEncoded, err := json.Marshal(o.values[k])
		if err != nil {
			return nil, err
		}
		buf = append(buf, valueEncoded...)
	}
	buf = append(buf, '}')

	return buf, nil
}

func roundTrip(v any) (any, error) {
	encoded, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: %w", err)
	}

	var decoded any
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		return nil, fmt.Errorf("canonicalize: %w", err)
	}

	return decoded, nil
}
