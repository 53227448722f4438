package query

import (
	"testing"

	"github.com/mxk/litedb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderSimpleSelect(t *testing.T) {
	q := From("readers")
	sql, args, err := Render(q, nil)
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "readers"`, sql)
	assert.Empty(t, args)
}

func TestRenderFilterComposesWithAND(t *testing.T) {
	q := From("readers").
		Filter(Equal{Left: Col("age"), Right: Lit(42)}).
		Filter(Equal{Left: Col("name"), Right: Lit("Arthur")})
	sql, args, err := Render(q, nil)
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "readers" WHERE "age" = ? AND "name" = ?`, sql)
	require.Len(t, args, 2)
	assert.Equal(t, litedb.NewInt64(42), args[0])
	assert.Equal(t, litedb.NewText("Arthur"), args[1])
}

func TestRenderEqualNullRewrite(t *testing.T) {
	q := From("readers").Filter(Equal{Left: Col("age"), Right: Value{V: litedb.Null}})
	sql, _, err := Render(q, nil)
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "readers" WHERE "age" IS NULL`, sql)
}

func TestRenderNotEqualNullRewrite(t *testing.T) {
	q := From("readers").Filter(NotEqual{Left: Value{V: litedb.Null}, Right: Col("age")})
	sql, _, err := Render(q, nil)
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "readers" WHERE "age" IS NOT NULL`, sql)
}

func TestRenderEmptyInListCollapses(t *testing.T) {
	q := From("readers").Filter(InList{Expr: Col("id")})
	sql, _, err := Render(q, nil)
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "readers" WHERE 0`, sql)
}

func TestRenderNotEmptyInListCollapses(t *testing.T) {
	q := From("readers").Filter(Not{Expr: InList{Expr: Col("id")}})
	sql, _, err := Render(q, nil)
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "readers" WHERE 1`, sql)
}

func TestRenderReverseFlipsExistingOrdering(t *testing.T) {
	q := From("readers").OrderBy(Asc(Col("name"))).Reverse()
	sql, _, err := Render(q, nil)
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "readers" ORDER BY "name" DESC`, sql)
}

func TestRenderReverseWithoutOrderingUsesPrimaryKey(t *testing.T) {
	q := From("readers").Reverse()
	lookup := func(table string) (litedb.PrimaryKey, error) {
		return litedb.PrimaryKey{Kind: litedb.PKRowID, Columns: []string{"id"}}, nil
	}
	sql, _, err := Render(q, lookup)
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "readers" ORDER BY "id" DESC`, sql)
}

func TestRenderReverseWithoutPrimaryKeyFails(t *testing.T) {
	q := From("readers").Reverse()
	lookup := func(table string) (litedb.PrimaryKey, error) {
		return litedb.PrimaryKey{Kind: litedb.PKNone}, nil
	}
	_, _, err := Render(q, lookup)
	require.Error(t, err)
	var schemaErr *litedb.SchemaError
	require.ErrorAs(t, err, &schemaErr)
}

func TestRenderReverseReverseEquivalence(t *testing.T) {
	base := From("readers").OrderBy(Asc(Col("name")))
	sqlBase, _, err := Render(base, nil)
	require.NoError(t, err)
	sqlTwice, _, err := Render(base.Reverse().Reverse(), nil)
	require.NoError(t, err)
	assert.Equal(t, sqlBase, sqlTwice)
}

func TestRenderCountOnPlainStarSelect(t *testing.T) {
	q := From("readers")
	sql, _, err := RenderCount(q, nil)
	require.NoError(t, err)
	assert.Equal(t, `SELECT COUNT(*) FROM "readers"`, sql)
}

func TestRenderCountWrapsWhenLimited(t *testing.T) {
	q := From("readers").Limit(10)
	sql, _, err := RenderCount(q, nil)
	require.NoError(t, err)
	assert.Equal(t, `SELECT COUNT(*) FROM (SELECT * FROM "readers" LIMIT 10) AS "count_subquery"`, sql)
}

func TestRenderContainsClosedRangeUsesBetween(t *testing.T) {
	q := From("readers").Filter(Contains(Col("age"), Closed(10, 20)))
	sql, args, err := Render(q, nil)
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "readers" WHERE "age" BETWEEN ? AND ?`, sql)
	require.Len(t, args, 2)
	assert.Equal(t, litedb.NewInt64(10), args[0])
	assert.Equal(t, litedb.NewInt64(20), args[1])
}

func TestRenderContainsHalfOpenRangeUsesComparisonPair(t *testing.T) {
	q := From("readers").Filter(Contains(Col("age"), HalfOpen(10, 20)))
	sql, args, err := Render(q, nil)
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "readers" WHERE "age" >= ? AND "age" < ?`, sql)
	require.Len(t, args, 2)
	assert.Equal(t, litedb.NewInt64(10), args[0])
	assert.Equal(t, litedb.NewInt64(20), args[1])
}

func TestRenderContainsSequenceUsesInList(t *testing.T) {
	q := From("readers").Filter(Contains(Col("name"), Seq("Arthur", "Barbara")))
	sql, args, err := Render(q, nil)
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "readers" WHERE "name" IN (?, ?)`, sql)
	require.Len(t, args, 2)
	assert.Equal(t, litedb.NewText("Arthur"), args[0])
	assert.Equal(t, litedb.NewText("Barbara"), args[1])
}

func TestRenderCollateInsidesParens(t *testing.T) {
	q := From("readers").Filter(Collate{Expr: Not{Expr: Equal{Left: Col("name"), Right: Lit("x")}}, Collation: "NOCASE"})
	sql, _, err := Render(q, nil)
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "readers" WHERE NOT ("name" = ? COLLATE NOCASE)`, sql)
	// i.e. COLLATE lands inside Not's own closing parenthesis, not in a
	// fresh pair wrapped around the whole negation.
}
