package loader

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidb-hierarchy/internal/dbexec"
	"tidb-hierarchy/internal/relation"
)

func TestNewBatchingContext(t *testing.T) {
	t.Run("creates context with batch state", func(t *testing.T) {
		ctx := NewBatchingContext(context.Background())
		state, ok := GetBatchState(ctx)
		require.True(t, ok)
		require.NotNil(t, state)
		assert.EqualValues(t, 0, state.GetCacheHits())
		assert.EqualValues(t, 0, state.GetCacheMisses())
	})

	t.Run("handles nil context", func(t *testing.T) {
		//nolint:staticcheck // intentionally testing nil handling
		//lint:ignore SA1012 intentionally testing nil handling
		ctx := NewBatchingContext(nil)
		_, ok := GetBatchState(ctx)
		require.True(t, ok)
	})

	t.Run("returns false without batch state", func(t *testing.T) {
		state, ok := GetBatchState(context.Background())
		assert.False(t, ok)
		assert.Nil(t, state)
	})
}

func TestBatchedAncestorsWithoutStateFallsBack(t *testing.T) {
	l := New(nil, Options{})
	rows, ok, err := l.BatchedAncestors(context.Background(), nodesDefinition(), "nodes", relation.Record{"id": int64(4)})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, rows)

	ctx := NewBatchingContext(context.Background())
	_, ok, err = l.BatchedAncestors(ctx, nodesDefinition(), "unseeded", relation.Record{"id": int64(4)})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBatchedAncestorsRunsOneQueryForSiblings(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()

	l := New(dbexec.NewStandardExecutor(db), Options{})
	def := nodesDefinition()
	siblings := []relation.Record{{"id": int64(4)}, {"id": int64(7)}, {"id": int64(9)}}

	expectQuery(t, mock, explainOne(t, l, def, siblings...), sqlmock.NewRows(traversalColumns).
		AddRow(int64(3), int64(2), "c", int64(4), int64(-1), "3").
		AddRow(int64(3), int64(2), "c", int64(7), int64(-1), "3").
		AddRow(int64(2), nil, "b", int64(3), int64(-2), "3.2"))

	ctx := NewBatchingContext(context.Background())
	SeedOrigins(ctx, "nodes", siblings)

	first, ok, err := l.BatchedAncestors(ctx, def, "nodes", siblings[0])
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []interface{}{int64(3), int64(2)}, rowIDs(first))

	second, ok, err := l.BatchedAncestors(ctx, def, "nodes", siblings[1])
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []interface{}{int64(3), int64(2)}, rowIDs(second))

	third, ok, err := l.BatchedAncestors(ctx, def, "nodes", siblings[2])
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotNil(t, third)
	assert.Empty(t, third)

	require.NoError(t, mock.ExpectationsWereMet())
	state, _ := GetBatchState(ctx)
	assert.EqualValues(t, 1, state.GetCacheMisses())
	assert.EqualValues(t, 2, state.GetCacheHits())
}

func TestBatchedAncestorsSeparatesRelationSettings(t *testing.T) {
	def := nodesDefinition()
	withSelf := def
	withSelf.AndSelf = true
	assert.NotEqual(t, relationKey(def, "p"), relationKey(withSelf, "p"))

	bounded := def
	bounded.MaxDepth = 2
	assert.NotEqual(t, relationKey(def, "p"), relationKey(bounded, "p"))
}
