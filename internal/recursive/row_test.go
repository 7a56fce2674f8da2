package recursive

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRowFromRecord(t *testing.T) {
	t.Run("splits metadata from attributes", func(t *testing.T) {
		row, err := RowFromRecord(map[string]interface{}{
			"id":        int64(2),
			"parent_id": int64(1),
			"link_key":  int64(3),
			"depth":     int64(-2),
			"path":      []byte("3.2"),
		}, Columns{})
		require.NoError(t, err)

		assert.Equal(t, -2, row.Depth)
		assert.Equal(t, Path{"3", "2"}, row.Path)
		assert.Equal(t, "3", row.FirstPathSegment())
		assert.Equal(t, int64(3), row.LinkKey)
		assert.Equal(t, map[string]interface{}{"id": int64(2), "parent_id": int64(1)}, row.Attributes)
	})

	t.Run("accepts textual depth", func(t *testing.T) {
		row, err := RowFromRecord(map[string]interface{}{"depth": "-1", "path": "5"}, Columns{})
		require.NoError(t, err)
		assert.Equal(t, -1, row.Depth)
	})

	t.Run("custom column names", func(t *testing.T) {
		row, err := RowFromRecord(map[string]interface{}{"lvl": 0, "trail": "a/b"}, Columns{Depth: "lvl", Path: "trail", PathSeparator: "/"})
		require.NoError(t, err)
		assert.Equal(t, Path{"a", "b"}, row.Path)
	})

	t.Run("unescapes separator inside keys", func(t *testing.T) {
		row, err := RowFromRecord(map[string]interface{}{"depth": -2, "path": "v1%2E2.v1.100%25"}, Columns{})
		require.NoError(t, err)
		assert.Equal(t, Path{"v1.2", "v1", "100%"}, row.Path)
		assert.Equal(t, "v1.2", row.FirstPathSegment())
		assert.Equal(t, "v1%2E2.v1.100%25", row.Path.Join("."))
	})

	t.Run("missing depth", func(t *testing.T) {
		_, err := RowFromRecord(map[string]interface{}{"path": "1"}, Columns{})
		assert.ErrorIs(t, err, ErrMissingTraversalMetadata)
	})

	t.Run("missing path", func(t *testing.T) {
		_, err := RowFromRecord(map[string]interface{}{"depth": -1}, Columns{})
		assert.ErrorIs(t, err, ErrMissingTraversalMetadata)
	})

	t.Run("malformed depth", func(t *testing.T) {
		_, err := RowFromRecord(map[string]interface{}{"depth": "deep", "path": "1"}, Columns{})
		assert.ErrorIs(t, err, ErrMissingTraversalMetadata)
	})

	t.Run("repeated key in path", func(t *testing.T) {
		_, err := RowFromRecord(map[string]interface{}{"depth": -3, "path": "1.2.1"}, Columns{})
		assert.ErrorIs(t, err, ErrCyclicPath)
	})
}

func TestPathExtendDoesNotAlias(t *testing.T) {
	base := make(Path, 1, 4)
	base[0] = "1"

	left := base.Extend("2")
	right := base.Extend("3")

	assert.Equal(t, Path{"1", "2"}, left)
	assert.Equal(t, Path{"1", "3"}, right)
	assert.Equal(t, Path{"1"}, base)
	assert.True(t, left.Contains("2"))
	assert.False(t, right.Contains("2"))
	assert.Equal(t, "1.3", right.Join("."))
}

func TestKeyString(t *testing.T) {
	assert.Equal(t, "4", KeyString(int64(4)))
	assert.Equal(t, "abc", KeyString([]byte("abc")))
	assert.Equal(t, "abc", KeyString("abc"))
	assert.Equal(t, "", KeyString(nil))
}

func TestBaseDictionary(t *testing.T) {
	rows := []Row{
		{Depth: 0, Path: Path{"4"}},
		{Depth: 0, Path: Path{"7"}},
		{Depth: -1, Path: Path{"4", "3"}},
		{Depth: -1, Path: Path{"7", "3"}},
		{Depth: -2, Path: Path{"4", "3", "2"}},
	}

	dict := BaseDictionary(rows)
	require.Len(t, dict, 2)
	assert.Equal(t, []Row{rows[0], rows[2], rows[4]}, dict["4"])
	assert.Equal(t, []Row{rows[1], rows[3]}, dict["7"])
}
