package recursive

import (
	"strings"
	"testing"

	sq "github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidb-hierarchy/internal/sqlutil"
)

func adjacencySource() Source {
	return Source{
		Table: "nodes",
		Key:   "id",
		Link: Link{
			Table:        "nodes",
			Ref:          "__link",
			ChildColumn:  "id",
			ParentColumn: "parent_id",
		},
	}
}

func inConstraint(column string, keys ...interface{}) Constraint {
	return func(b sq.SelectBuilder) sq.SelectBuilder {
		return b.Where(sq.Eq{column: keys})
	}
}

func TestQueryRequiresExpression(t *testing.T) {
	q := NewQuery(sqlutil.MySQL, Columns{}, adjacencySource())
	_, _, err := q.ToSql()
	assert.ErrorIs(t, err, ErrNoExpression)
}

func TestQueryExcludeSelfAscending(t *testing.T) {
	q := NewQuery(sqlutil.MySQL, Columns{}, adjacencySource()).
		WithRelationshipExpression(Ascending, inConstraint("`__link`.`id`", 4, 7), -1, nil, nil, UnionDistinct)

	sql, args, err := q.ToSql()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(sql, "WITH RECURSIVE `__hierarchy` AS (SELECT `nodes`.*, `__link`.`id` AS `link_key`, -1 AS `depth`, REPLACE(REPLACE(CAST(`nodes`.`id` AS CHAR(65535)), '%', '%25'), '.', '%2E') AS `path` FROM `nodes` JOIN `nodes` AS `__link` ON `__link`.`parent_id` = `nodes`.`id` WHERE `__link`.`id` IN (?,?) UNION SELECT "), sql)
	assert.Contains(t, sql, "`__hierarchy`.`depth` - 1 AS `depth`")
	assert.Contains(t, sql, "CONCAT(`__hierarchy`.`path`, '.', REPLACE(REPLACE(CAST(`nodes`.`id` AS CHAR(65535)), '%', '%25'), '.', '%2E')) AS `path`")
	assert.Contains(t, sql, "JOIN `__hierarchy` ON `__hierarchy`.`id` = `__link`.`id`")
	assert.Contains(t, sql, "WHERE NOT (LOCATE(CONCAT('.', REPLACE(REPLACE(CAST(`nodes`.`id` AS CHAR(65535)), '%', '%25'), '.', '%2E'), '.'), CONCAT('.', `__hierarchy`.`path`, '.')) > 0)")
	assert.True(t, strings.HasSuffix(sql, ") SELECT * FROM `__hierarchy` AS `nodes` ORDER BY `nodes`.`depth` DESC, `nodes`.`path` ASC, `nodes`.`link_key` ASC"), sql)
	assert.Equal(t, []interface{}{4, 7}, args)
}

func TestQueryIncludeSelf(t *testing.T) {
	q := NewQuery(sqlutil.MySQL, Columns{}, adjacencySource()).
		WithRelationshipExpression(Ascending, inConstraint("`nodes`.`id`", 4), 0, nil, nil, UnionAll)

	sql, args, err := q.ToSql()
	require.NoError(t, err)

	assert.Contains(t, sql, "(SELECT `nodes`.*, `nodes`.`id` AS `link_key`, 0 AS `depth`, REPLACE(REPLACE(CAST(`nodes`.`id` AS CHAR(65535)), '%', '%25'), '.', '%2E') AS `path` FROM `nodes` WHERE `nodes`.`id` IN (?) UNION ALL SELECT ")
	assert.Equal(t, []interface{}{4}, args)
}

func TestQueryMaxDepthAndPostgresPlaceholders(t *testing.T) {
	q := NewQuery(sqlutil.Postgres, Columns{}, adjacencySource()).
		WithRelationshipExpression(Ascending, inConstraint(`"__link"."id"`, 1, 2), -1, nil, nil, UnionDistinct).
		WithMaxDepth(3)

	sql, args, err := q.ToSql()
	require.NoError(t, err)

	assert.Contains(t, sql, `"__link"."id" IN ($1,$2)`)
	assert.Contains(t, sql, `"__hierarchy"."depth" > $3`)
	assert.NotContains(t, sql, "?")
	assert.Equal(t, []interface{}{1, 2, -3}, args)
}

func TestQueryDescending(t *testing.T) {
	q := NewQuery(sqlutil.SQLite, Columns{}, adjacencySource()).
		WithRelationshipExpression(Descending, inConstraint(`"__link"."parent_id"`, 1), 1, nil, nil, UnionAll).
		WithMaxDepth(2)

	sql, args, err := q.ToSql()
	require.NoError(t, err)

	assert.Contains(t, sql, `"__link"."parent_id" AS "link_key", 1 AS "depth"`)
	assert.Contains(t, sql, `JOIN "nodes" AS "__link" ON "__link"."id" = "nodes"."id"`)
	assert.Contains(t, sql, `"__hierarchy"."depth" + 1 AS "depth"`)
	assert.Contains(t, sql, `JOIN "__hierarchy" ON "__hierarchy"."id" = "__link"."parent_id"`)
	assert.Contains(t, sql, `"__hierarchy"."depth" < ?`)
	assert.Contains(t, sql, `ORDER BY "nodes"."depth" ASC`)
	assert.Equal(t, []interface{}{1, 2}, args)
}

func TestQueryFromOverrideAndSelect(t *testing.T) {
	aliased := adjacencySource()
	aliased.Ref = "__hierarchy_self_0"
	aliased.Link.Ref = "__hierarchy_self_0_link"

	q := NewQuery(sqlutil.MySQL, Columns{CTE: "ancestors_cte"}, adjacencySource()).
		WithRelationshipExpression(Ascending, func(b sq.SelectBuilder) sq.SelectBuilder {
			return b.Where("`__hierarchy_self_0_link`.`id` = `nodes`.`id`")
		}, -1, &aliased, []string{"1"}, UnionAll).
		Unordered().
		Where(sq.Eq{"`__hierarchy_self_0`.`name`": "root"})

	sql, args, err := q.ToSql()
	require.NoError(t, err)

	assert.Contains(t, sql, "FROM `nodes` AS `__hierarchy_self_0` JOIN `nodes` AS `__hierarchy_self_0_link` ON `__hierarchy_self_0_link`.`parent_id` = `__hierarchy_self_0`.`id`")
	assert.True(t, strings.HasSuffix(sql, ") SELECT 1 FROM `ancestors_cte` AS `__hierarchy_self_0` WHERE `__hierarchy_self_0`.`name` = ?"), sql)
	assert.NotContains(t, sql, "ORDER BY")
	assert.Equal(t, []interface{}{"root"}, args)
	assert.Equal(t, "__hierarchy_self_0", q.Source().Reference())
}

func TestQueryExplicitColumns(t *testing.T) {
	src := adjacencySource()
	src.Columns = []string{"id", "parent_id", "name"}
	q := NewQuery(sqlutil.MySQL, Columns{}, src).
		WithRelationshipExpression(Ascending, inConstraint("`__link`.`id`", 3), -1, nil, nil, UnionAll)

	sql, _, err := q.ToSql()
	require.NoError(t, err)
	assert.Contains(t, sql, "SELECT `nodes`.`id`, `nodes`.`parent_id`, `nodes`.`name`, `__link`.`id` AS `link_key`")
	assert.NotContains(t, sql, "`nodes`.*")
}

func TestReplaceTableReference(t *testing.T) {
	tests := []struct {
		name     string
		expr     string
		expected string
	}{
		{"quoted", "COUNT(`nodes`.`id`)", "COUNT(`alias`.`id`)"},
		{"bare", "nodes.name = 'x'", "alias.name = 'x'"},
		{"longer identifier untouched", "subnodes.id", "subnodes.id"},
		{"no reference", "COUNT(*)", "COUNT(*)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ReplaceTableReference(sqlutil.MySQL, tt.expr, "nodes", "alias"))
		})
	}
}

func TestDirectionAndUnionStrings(t *testing.T) {
	assert.Equal(t, "asc", Ascending.String())
	assert.Equal(t, "desc", Descending.String())
	assert.Equal(t, "unionAll", UnionAll.String())
	assert.Equal(t, "union", UnionDistinct.String())
}
