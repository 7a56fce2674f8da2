package recursive

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"tidb-hierarchy/internal/sqlutil"
)

var (
	// ErrMissingTraversalMetadata is returned when a row lacks usable depth or path columns.
	ErrMissingTraversalMetadata = errors.New("traversal row is missing depth or path metadata")
	// ErrCyclicPath is returned when a row's path repeats a key.
	ErrCyclicPath = errors.New("traversal path repeats a key")
)

// Path is the ordered list of keys visited from the anchor row to the current row.
// Values are never modified in place; Extend returns a new Path.
type Path []string

// ParsePath splits a rendered path on separator and unescapes each segment.
func ParsePath(raw, separator string) Path {
	if raw == "" {
		return nil
	}
	segments := strings.Split(raw, separator)
	for i, seg := range segments {
		segments[i] = sqlutil.UnescapePathKey(seg, separator)
	}
	return Path(segments)
}

// Extend returns a copy of p with key appended.
func (p Path) Extend(key string) Path {
	next := make(Path, len(p), len(p)+1)
	copy(next, p)
	return append(next, key)
}

// Contains reports whether key already appears in p.
func (p Path) Contains(key string) bool {
	for _, seg := range p {
		if seg == key {
			return true
		}
	}
	return false
}

// First returns the first segment, or "" for an empty path.
func (p Path) First() string {
	if len(p) == 0 {
		return ""
	}
	return p[0]
}

// HasRepeat reports whether any key appears twice.
func (p Path) HasRepeat() bool {
	seen := make(map[string]struct{}, len(p))
	for _, seg := range p {
		if _, ok := seen[seg]; ok {
			return true
		}
		seen[seg] = struct{}{}
	}
	return false
}

// Join renders p using separator, escaping it inside segments.
func (p Path) Join(separator string) string {
	segments := make([]string, len(p))
	for i, seg := range p {
		segments[i] = sqlutil.EscapePathKey(seg, separator)
	}
	return strings.Join(segments, separator)
}

// Row is one result of a traversal: the node attributes plus depth, path and
// the link value that joined it to the previous row.
type Row struct {
	Attributes map[string]interface{}
	Depth      int
	Path       Path
	LinkKey    interface{}
}

// FirstPathSegment returns the key the traversal started from.
func (r Row) FirstPathSegment() string {
	return r.Path.First()
}

// Get returns an attribute value.
func (r Row) Get(column string) interface{} {
	return r.Attributes[column]
}

// RowFromRecord splits a scanned record into node attributes and traversal metadata.
func RowFromRecord(record map[string]interface{}, columns Columns) (Row, error) {
	columns = columns.WithDefaults()

	rawDepth, ok := record[columns.Depth]
	if !ok || rawDepth == nil {
		return Row{}, fmt.Errorf("%w: column %q not present", ErrMissingTraversalMetadata, columns.Depth)
	}
	depth, err := depthValue(rawDepth)
	if err != nil {
		return Row{}, fmt.Errorf("%w: %v", ErrMissingTraversalMetadata, err)
	}

	rawPath, ok := record[columns.Path]
	if !ok || rawPath == nil {
		return Row{}, fmt.Errorf("%w: column %q not present", ErrMissingTraversalMetadata, columns.Path)
	}
	pathText := KeyString(rawPath)
	if pathText == "" {
		return Row{}, fmt.Errorf("%w: empty path", ErrMissingTraversalMetadata)
	}
	path := ParsePath(pathText, columns.PathSeparator)
	if path.HasRepeat() {
		return Row{}, fmt.Errorf("%w: %s", ErrCyclicPath, pathText)
	}

	attrs := make(map[string]interface{}, len(record))
	for k, v := range record {
		switch k {
		case columns.Depth, columns.Path, columns.Link:
			continue
		}
		attrs[k] = v
	}

	return Row{
		Attributes: attrs,
		Depth:      depth,
		Path:       path,
		LinkKey:    record[columns.Link],
	}, nil
}

func depthValue(v interface{}) (int, error) {
	switch d := v.(type) {
	case int:
		return d, nil
	case int8:
		return int(d), nil
	case int16:
		return int(d), nil
	case int32:
		return int(d), nil
	case int64:
		return int(d), nil
	case uint8:
		return int(d), nil
	case uint16:
		return int(d), nil
	case uint32:
		return int(d), nil
	case uint64:
		if d > math.MaxInt32 {
			return 0, fmt.Errorf("depth %d out of range", d)
		}
		return int(d), nil
	case float64:
		if d != math.Trunc(d) {
			return 0, fmt.Errorf("depth %v is not an integer", d)
		}
		return int(d), nil
	case []byte:
		return strconv.Atoi(strings.TrimSpace(string(d)))
	case string:
		return strconv.Atoi(strings.TrimSpace(d))
	default:
		return 0, fmt.Errorf("unsupported depth type %T", v)
	}
}

// KeyString normalises a key value for use as a dictionary key. Byte slices
// returned by drivers are treated as text.
func KeyString(v interface{}) string {
	switch k := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(k)
	case string:
		return k
	default:
		return fmt.Sprint(k)
	}
}
