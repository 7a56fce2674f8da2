package resolver

import (
	"context"
	"database/sql"
	"encoding/json"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/graphql-go/graphql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"tidb-hierarchy/internal/dbexec"
	"tidb-hierarchy/internal/loader"
	"tidb-hierarchy/internal/relation"
	"tidb-hierarchy/internal/sqlutil"
)

const chainSchema = `
	CREATE TABLE nodes (id INTEGER PRIMARY KEY, parent_id INTEGER, name TEXT NOT NULL);
	INSERT INTO nodes (id, parent_id, name) VALUES
		(1, NULL, 'root'),
		(2, 1, 'two'),
		(3, 2, 'three'),
		(4, 3, 'four'),
		(7, 3, 'seven'),
		(8, NULL, 'lonely');
`

type nodeJSON struct {
	Key        string                 `json:"key"`
	ParentKey  *string                `json:"parentKey"`
	Depth      *int                   `json:"depth"`
	Path       []string               `json:"path"`
	LinkKey    *string                `json:"linkKey"`
	Attributes map[string]interface{} `json:"attributes"`
	Ancestors  []nodeJSON             `json:"ancestors"`
}

func nodesDefinition() relation.Definition {
	return relation.Definition{
		Table:        "nodes",
		KeyColumn:    "id",
		ParentColumn: "parent_id",
	}
}

func newSQLiteSchema(t *testing.T, opts Options) graphql.Schema {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(chainSchema)
	require.NoError(t, err)

	l := loader.New(dbexec.NewStandardExecutor(db), loader.Options{Dialect: sqlutil.SQLite})
	schema, err := NewResolver(l, nodesDefinition(), opts).BuildGraphQLSchema()
	require.NoError(t, err)
	return schema
}

func execute(t *testing.T, ctx context.Context, schema graphql.Schema, query string, out interface{}) {
	t.Helper()

	result := graphql.Do(graphql.Params{
		Schema:        schema,
		RequestString: query,
		Context:       ctx,
	})
	require.Empty(t, result.Errors, "unexpected errors: %v", result.Errors)

	raw, err := json.Marshal(result.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, out))
}

func keys(nodes []nodeJSON) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.Key
	}
	return out
}

func TestNodeAncestors(t *testing.T) {
	schema := newSQLiteSchema(t, Options{IntegerKeys: true})

	var data struct {
		Node nodeJSON `json:"node"`
	}
	execute(t, context.Background(), schema, `{
		node(key: "4") {
			key parentKey depth path attributes
			ancestors { key depth path linkKey }
		}
	}`, &data)

	node := data.Node
	assert.Equal(t, "4", node.Key)
	require.NotNil(t, node.ParentKey)
	assert.Equal(t, "3", *node.ParentKey)
	assert.Nil(t, node.Depth)
	assert.Nil(t, node.Path)
	assert.Equal(t, "four", node.Attributes["name"])

	require.Len(t, node.Ancestors, 3)
	assert.Equal(t, []string{"3", "2", "1"}, keys(node.Ancestors))
	for i, ancestor := range node.Ancestors {
		require.NotNil(t, ancestor.Depth)
		assert.Equal(t, -(i + 1), *ancestor.Depth)
	}
	assert.Equal(t, []string{"3"}, node.Ancestors[0].Path)
	assert.Equal(t, []string{"3", "2", "1"}, node.Ancestors[2].Path)
	require.NotNil(t, node.Ancestors[0].LinkKey)
}

func TestNodeAncestorsArguments(t *testing.T) {
	schema := newSQLiteSchema(t, Options{IntegerKeys: true})

	var data struct {
		Node struct {
			WithSelf []nodeJSON `json:"withSelf"`
			Nearest  []nodeJSON `json:"nearest"`
		} `json:"node"`
	}
	execute(t, context.Background(), schema, `{
		node(key: 4) {
			withSelf: ancestors(andSelf: true) { key depth }
			nearest: ancestors(maxDepth: 1) { key }
		}
	}`, &data)

	assert.Equal(t, []string{"4", "3", "2", "1"}, keys(data.Node.WithSelf))
	require.NotNil(t, data.Node.WithSelf[0].Depth)
	assert.Equal(t, 0, *data.Node.WithSelf[0].Depth)
	assert.Equal(t, []string{"3"}, keys(data.Node.Nearest))
}

func TestNodeRootAndUnknown(t *testing.T) {
	schema := newSQLiteSchema(t, Options{IntegerKeys: true})

	var data struct {
		Root    *nodeJSON `json:"root"`
		Unknown *nodeJSON `json:"unknown"`
	}
	execute(t, context.Background(), schema, `{
		root: node(key: "1") { key parentKey ancestors { key } }
		unknown: node(key: "99") { key }
	}`, &data)

	require.NotNil(t, data.Root)
	assert.Nil(t, data.Root.ParentKey)
	assert.Empty(t, data.Root.Ancestors)
	assert.NotNil(t, data.Root.Ancestors)
	assert.Nil(t, data.Unknown)
}

func TestNodeRejectsNonIntegerKey(t *testing.T) {
	schema := newSQLiteSchema(t, Options{IntegerKeys: true})

	result := graphql.Do(graphql.Params{
		Schema:        schema,
		RequestString: `{ node(key: "abc") { key } }`,
		Context:       context.Background(),
	})
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Message, "invalid node key")
}

func TestNodesBatchesSiblingAncestors(t *testing.T) {
	schema := newSQLiteSchema(t, Options{IntegerKeys: true})
	ctx := loader.NewBatchingContext(context.Background())

	var data struct {
		Nodes []nodeJSON `json:"nodes"`
	}
	execute(t, ctx, schema, `{
		nodes(keys: ["8", "7", "4", "99"]) { key ancestors { key } }
	}`, &data)

	require.Len(t, data.Nodes, 3)
	assert.Equal(t, []string{"4", "7", "8"}, keys(data.Nodes))
	assert.Equal(t, []string{"3", "2", "1"}, keys(data.Nodes[0].Ancestors))
	assert.Equal(t, []string{"3", "2", "1"}, keys(data.Nodes[1].Ancestors))
	assert.Empty(t, data.Nodes[2].Ancestors)

	state, ok := loader.GetBatchState(ctx)
	require.True(t, ok)
	assert.Equal(t, int32(1), state.GetCacheMisses())
	assert.Equal(t, int32(2), state.GetCacheHits())
}

func TestNodesNestedAncestors(t *testing.T) {
	schema := newSQLiteSchema(t, Options{IntegerKeys: true})
	ctx := loader.NewBatchingContext(context.Background())

	var data struct {
		Nodes []nodeJSON `json:"nodes"`
	}
	execute(t, ctx, schema, `{
		nodes(keys: ["4"]) { key ancestors { key ancestors { key } } }
	}`, &data)

	require.Len(t, data.Nodes, 1)
	ancestors := data.Nodes[0].Ancestors
	require.Len(t, ancestors, 3)
	assert.Equal(t, []string{"2", "1"}, keys(ancestors[0].Ancestors))
	assert.Equal(t, []string{"1"}, keys(ancestors[1].Ancestors))
	assert.Empty(t, ancestors[2].Ancestors)
}

func TestNodesWithoutBatchingContext(t *testing.T) {
	schema := newSQLiteSchema(t, Options{IntegerKeys: true})

	var data struct {
		Nodes []nodeJSON `json:"nodes"`
	}
	execute(t, context.Background(), schema, `{
		nodes(keys: ["4", "7"]) { key ancestors(andSelf: true) { key } }
	}`, &data)

	require.Len(t, data.Nodes, 2)
	assert.Equal(t, []string{"4", "3", "2", "1"}, keys(data.Nodes[0].Ancestors))
	assert.Equal(t, []string{"7", "3", "2", "1"}, keys(data.Nodes[1].Ancestors))
}

func TestNodesWithAncestor(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	def := nodesDefinition()
	l := loader.New(dbexec.NewStandardExecutor(db), loader.Options{})
	schema, err := NewResolver(l, def, Options{}).BuildGraphQLSchema()
	require.NoError(t, err)

	stmt, err := l.ExplainNodesWithAncestor(def, loader.AncestorFilter{Column: "name", Value: "two"})
	require.NoError(t, err)
	mock.ExpectQuery(regexp.QuoteMeta(stmt.SQL)).
		WithArgs("two").
		WillReturnRows(sqlmock.NewRows([]string{"id", "parent_id", "name"}).
			AddRow(int64(3), int64(2), []byte("three")).
			AddRow(int64(4), int64(3), []byte("four")))

	var data struct {
		NodesWithAncestor []nodeJSON `json:"nodesWithAncestor"`
	}
	execute(t, context.Background(), schema, `{
		nodesWithAncestor(column: "name", value: "two") { key attributes }
	}`, &data)

	require.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, []string{"3", "4"}, keys(data.NodesWithAncestor))
	assert.Equal(t, "four", data.NodesWithAncestor[1].Attributes["name"])
}

func TestNodesWithAncestorRequiresValue(t *testing.T) {
	schema := newSQLiteSchema(t, Options{})

	result := graphql.Do(graphql.Params{
		Schema:        schema,
		RequestString: `{ nodesWithAncestor(column: "name") { key } }`,
		Context:       context.Background(),
	})
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Message, "value is required")
}

func TestBuildGraphQLSchemaRejectsInvalidDefinition(t *testing.T) {
	_, err := NewResolver(loader.New(nil, loader.Options{}), relation.Definition{Table: "nodes"}, Options{}).BuildGraphQLSchema()
	assert.ErrorIs(t, err, relation.ErrInvalidDefinition)
}

func TestDefinitionForArgs(t *testing.T) {
	def := nodesDefinition()
	def.MaxDepth = 5
	r := NewResolver(nil, def, Options{})

	got := r.definitionForArgs(map[string]interface{}{"andSelf": true, "maxDepth": 2})
	assert.True(t, got.AndSelf)
	assert.Equal(t, 2, got.MaxDepth)

	got = r.definitionForArgs(nil)
	assert.False(t, got.AndSelf)
	assert.Equal(t, 5, got.MaxDepth)
}

func TestKeyArg(t *testing.T) {
	r := NewResolver(nil, nodesDefinition(), Options{})
	key, err := r.keyArg("a-1")
	require.NoError(t, err)
	assert.Equal(t, "a-1", key)

	_, err = r.keyArg("  ")
	assert.ErrorIs(t, err, errInvalidKey)

	r = NewResolver(nil, nodesDefinition(), Options{IntegerKeys: true})
	key, err = r.keyArg(" 42 ")
	require.NoError(t, err)
	assert.Equal(t, int64(42), key)
}
