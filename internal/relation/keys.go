package relation

import (
	"fmt"

	"tidb-hierarchy/internal/recursive"
)

type keyKind int

const (
	kindInteger keyKind = iota + 1
	kindString
)

func (k keyKind) String() string {
	switch k {
	case kindInteger:
		return "integer"
	case kindString:
		return "string"
	default:
		return "unknown"
	}
}

// originKey extracts and validates the key of a single origin.
func originKey(origin Record, column string) (interface{}, keyKind, error) {
	if origin == nil {
		return nil, 0, fmt.Errorf("%w: origin is nil", ErrInvalidOriginKey)
	}
	raw, ok := origin[column]
	if !ok {
		return nil, 0, fmt.Errorf("%w: column %q missing", ErrInvalidOriginKey, column)
	}
	switch v := raw.(type) {
	case nil:
		return nil, 0, fmt.Errorf("%w: column %q is null", ErrInvalidOriginKey, column)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return v, kindInteger, nil
	case []byte:
		return stringKey(string(v))
	case string:
		return stringKey(v)
	default:
		return nil, 0, fmt.Errorf("%w: unsupported key type %T", ErrInvalidOriginKey, raw)
	}
}

func stringKey(v string) (interface{}, keyKind, error) {
	if v == "" {
		return nil, 0, fmt.Errorf("%w: empty string key", ErrInvalidOriginKey)
	}
	return v, kindString, nil
}

// originKeys returns the distinct keys of origins in first-seen order. All keys
// must share one kind.
func originKeys(origins []Record, column string) ([]interface{}, error) {
	keys := make([]interface{}, 0, len(origins))
	seen := make(map[string]struct{}, len(origins))
	var kind keyKind
	for i, origin := range origins {
		key, k, err := originKey(origin, column)
		if err != nil {
			return nil, fmt.Errorf("origin %d: %w", i, err)
		}
		if kind == 0 {
			kind = k
		} else if k != kind {
			return nil, fmt.Errorf("%w: origin %d has %s key, batch uses %s keys", ErrInvalidOriginKey, i, k, kind)
		}
		normalized := recursive.KeyString(key)
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		keys = append(keys, key)
	}
	return keys, nil
}
