package relation

import (
	"strconv"
	"testing"

	sq "github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidb-hierarchy/internal/sqlutil"
)

func TestRelationExistenceQueryOtherTable(t *testing.T) {
	def := nodesDefinition()
	def.ParentTable = "assignments"
	rel, err := NewAncestors(def, sqlutil.MySQL)
	require.NoError(t, err)

	existence, err := rel.RelationExistenceQuery("", nil)
	require.NoError(t, err)
	assert.Equal(t, "nodes", existence.Ref)

	sql, _, err := existence.ToSql()
	require.NoError(t, err)
	assert.Contains(t, sql, "WHERE `__link`.`id` = `assignments`.`id` UNION ALL SELECT")
	assert.NotContains(t, sql, "ORDER BY")
}

func TestRelationExistenceQueryParentKeyColumn(t *testing.T) {
	def := nodesDefinition()
	def.ParentTable = "assignments"
	def.ParentKeyColumn = "node_id"
	rel, err := NewAncestors(def, sqlutil.MySQL)
	require.NoError(t, err)

	existence, err := rel.RelationExistenceQuery("", nil)
	require.NoError(t, err)
	sql, _, err := existence.ToSql()
	require.NoError(t, err)
	assert.Contains(t, sql, "WHERE `__link`.`id` = `assignments`.`node_id` UNION ALL SELECT")
}

func TestRelationExistenceQueryNilScopeKeepsAliasesDistinct(t *testing.T) {
	rel, err := NewAncestors(nodesDefinition(), sqlutil.MySQL)
	require.NoError(t, err)

	first, err := rel.RelationExistenceQueryForSelfRelation(nil)
	require.NoError(t, err)
	second, err := rel.RelationExistenceQuery("nodes", nil)
	require.NoError(t, err)

	assert.Equal(t, "__hierarchy_self_0", first.Ref)
	assert.Equal(t, "__hierarchy_self_1", second.Ref)
}

func TestRelationExistenceQueryForSelfRelation(t *testing.T) {
	rel, err := NewAncestors(nodesDefinition(), sqlutil.MySQL)
	require.NoError(t, err)

	scope := NewAliasScope()
	existence, err := rel.RelationExistenceQuery("nodes", scope, "1")
	require.NoError(t, err)
	assert.Equal(t, "__hierarchy_self_0", existence.Ref)

	existence.Where("name", "root")
	sql, args, err := existence.ToSql()
	require.NoError(t, err)

	assert.Contains(t, sql, "FROM `nodes` AS `__hierarchy_self_0` JOIN `nodes` AS `__hierarchy_self_0_link`")
	assert.Contains(t, sql, "WHERE `__hierarchy_self_0_link`.`id` = `nodes`.`id` UNION ALL")
	assert.Contains(t, sql, "SELECT 1 FROM `__hierarchy` AS `__hierarchy_self_0` WHERE `__hierarchy_self_0`.`name` = ?")
	assert.Equal(t, []interface{}{"root"}, args)

	second, err := rel.RelationExistenceQueryForSelfRelation(scope)
	require.NoError(t, err)
	assert.Equal(t, "__hierarchy_self_1", second.Ref)
}

func TestRelationExistenceQueryIncludeSelfCorrelatesNodeKey(t *testing.T) {
	def := nodesDefinition()
	def.AndSelf = true
	rel, err := NewAncestors(def, sqlutil.MySQL)
	require.NoError(t, err)

	existence, err := rel.RelationExistenceQueryForSelfRelation(NewAliasScope())
	require.NoError(t, err)
	sql, _, err := existence.ToSql()
	require.NoError(t, err)
	assert.Contains(t, sql, "WHERE `__hierarchy_self_0`.`id` = `nodes`.`id` UNION ALL")
}

func TestRelationExistenceQueryRewritesColumns(t *testing.T) {
	rel, err := NewAncestors(nodesDefinition(), sqlutil.MySQL)
	require.NoError(t, err)

	existence, err := rel.RelationExistenceQueryForSelfRelation(NewAliasScope(), "COUNT(`nodes`.`id`)")
	require.NoError(t, err)
	existence.WhereExpr("nodes.name LIKE ?", "r%")

	sql, args, err := existence.ToSql()
	require.NoError(t, err)
	assert.Contains(t, sql, "SELECT COUNT(`__hierarchy_self_0`.`id`) FROM `__hierarchy` AS `__hierarchy_self_0`")
	assert.Contains(t, sql, "WHERE __hierarchy_self_0.name LIKE ?")
	assert.Equal(t, []interface{}{"r%"}, args)
}

func TestRelationExistenceQueryAliasCollision(t *testing.T) {
	rel, err := NewAncestors(nodesDefinition(), sqlutil.MySQL)
	require.NoError(t, err)

	reserved := make([]string, 0, defaultAliasAttempts)
	for i := 0; i < defaultAliasAttempts; i++ {
		reserved = append(reserved, aliasName(i))
	}
	_, err = rel.RelationExistenceQueryForSelfRelation(NewAliasScope(reserved...))
	assert.ErrorIs(t, err, ErrAliasCollision)
}

func TestWhereHasAncestorConvertsPlaceholders(t *testing.T) {
	rel, err := NewAncestors(nodesDefinition(), sqlutil.Postgres)
	require.NoError(t, err)

	existence, err := rel.RelationExistenceQueryForSelfRelation(NewAliasScope(), "1")
	require.NoError(t, err)
	existence.Where("name", "root")

	outer := sq.Select(`"nodes".*`).From(`"nodes"`).Where(sq.Eq{`"nodes"."tenant"`: "acme"})
	outer, err = WhereHasAncestor(outer, existence)
	require.NoError(t, err)

	sql, args, err := outer.PlaceholderFormat(sq.Dollar).ToSql()
	require.NoError(t, err)
	assert.Contains(t, sql, `"nodes"."tenant" = $1`)
	assert.Contains(t, sql, `AND EXISTS (WITH RECURSIVE "__hierarchy" AS (`)
	assert.Contains(t, sql, `"__hierarchy_self_0"."name" = $2)`)
	assert.NotContains(t, sql, "?")
	assert.Equal(t, []interface{}{"acme", "root"}, args)
}

func TestAliasScopeSkipsReservedNames(t *testing.T) {
	scope := NewAliasScope("__hierarchy_self_0", "__hierarchy_self_1_link")
	alias, err := scope.Next()
	require.NoError(t, err)
	assert.Equal(t, "__hierarchy_self_2", alias)

	alias, err = scope.Next()
	require.NoError(t, err)
	assert.Equal(t, "__hierarchy_self_3", alias)
}

func aliasName(i int) string {
	return defaultAliasPrefix + "_" + strconv.Itoa(i)
}
