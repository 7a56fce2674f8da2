package loader

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidb-hierarchy/internal/dbexec"
	"tidb-hierarchy/internal/relation"
	"tidb-hierarchy/internal/sqlutil"
)

func TestExplainNodes(t *testing.T) {
	l := New(nil, Options{Dialect: sqlutil.Postgres})
	def := nodesDefinition()
	def.Columns = []string{"id", "parent_id", "name"}

	stmt, err := l.ExplainNodes(def, []interface{}{4, 7})
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT "nodes"."id", "nodes"."parent_id", "nodes"."name" FROM "nodes" WHERE "nodes"."id" IN ($1,$2) ORDER BY "nodes"."id" ASC`,
		stmt.SQL)
	assert.Equal(t, []interface{}{4, 7}, stmt.Args)
}

func TestExplainNodesRejectsEmptyKeys(t *testing.T) {
	l := New(nil, Options{})
	_, err := l.ExplainNodes(nodesDefinition(), nil)
	assert.ErrorIs(t, err, relation.ErrInvalidOriginKey)
}

func TestNodes(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()

	l := New(dbexec.NewStandardExecutor(db), Options{})
	def := nodesDefinition()
	keys := []interface{}{int64(2), int64(3)}

	stmt, err := l.ExplainNodes(def, keys)
	require.NoError(t, err)
	assert.Contains(t, stmt.SQL, "SELECT `nodes`.* FROM `nodes`")

	expectQuery(t, mock, stmt, sqlmock.NewRows([]string{"id", "parent_id", "name"}).
		AddRow(int64(2), int64(1), []byte("two")).
		AddRow(int64(3), int64(2), []byte("three")))

	records, err := l.Nodes(context.Background(), def, keys)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
	require.Len(t, records, 2)
	assert.Equal(t, "two", records[0]["name"])
	assert.Equal(t, int64(2), records[1]["parent_id"])
}

func TestNodesWithoutKeysSkipsQuery(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()

	l := New(dbexec.NewStandardExecutor(db), Options{})
	records, err := l.Nodes(context.Background(), nodesDefinition(), nil)
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteNodesStringKeys(t *testing.T) {
	l := setupSQLite(t, chainSchema)

	records, err := l.Nodes(context.Background(), nodesDefinition(), []interface{}{"7", "4", "99"})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, int64(4), records[0]["id"])
	assert.Equal(t, "seven", records[1]["name"])
}
