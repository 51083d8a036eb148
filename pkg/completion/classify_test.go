package completion

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/sqlsense/pkg/parser"
	"github.com/leapstack-labs/sqlsense/pkg/token"
)

// cursorAt extracts the ~ marker from the SQL and returns the text without
// it plus the marker's position.
func cursorAt(t *testing.T, sql string) (string, token.Position) {
	t.Helper()
	idx := strings.Index(sql, "~")
	require.GreaterOrEqual(t, idx, 0, "no cursor marker in %q", sql)

	before := sql[:idx]
	line := 1 + strings.Count(before, "\n")
	col := idx - strings.LastIndex(before, "\n")
	return strings.Replace(sql, "~", "", 1), token.Position{Line: line, Col: col}
}

func classifyAt(t *testing.T, sql string) Context {
	t.Helper()
	text, cursor := cursorAt(t, sql)
	return Classify(parser.Parse(text), cursor)
}

func TestClassify_TableModes(t *testing.T) {
	tests := []struct {
		name     string
		sql      string
		mode     Mode
		database string
		schema   string
	}{
		{"from", "SELECT * FROM ~", ModeFrom, "", ""},
		{"from qualified", "SELECT * FROM dbo.~", ModeFromQualified, "", "dbo"},
		{"from cross db", "SELECT * FROM Northwind.dbo.~", ModeFromCrossDB, "Northwind", "dbo"},
		{"join", "SELECT * FROM Employees e JOIN ~", ModeJoin, "", ""},
		{"join qualified", "SELECT * FROM Employees e LEFT JOIN dbo.~", ModeJoinQualified, "", "dbo"},
		{"join cross db", "SELECT * FROM Employees e JOIN Northwind.dbo.~", ModeJoinCrossDB, "Northwind", "dbo"},
		{"apply", "SELECT * FROM Employees e CROSS APPLY ~", ModeJoin, "", ""},
		{"dangling join modifier", "SELECT * FROM Employees e LEFT ~", ModeJoin, "", ""},
		{"update", "UPDATE ~", ModeUpdate, "", ""},
		{"delete from", "DELETE FROM ~", ModeDelete, "", ""},
		{"truncate table", "TRUNCATE TABLE ~", ModeTruncate, "", ""},
		{"alter table", "ALTER TABLE ~", ModeAlter, "", ""},
		{"insert into", "INSERT INTO ~", ModeInsert, "", ""},
		{"merge into", "MERGE INTO ~", ModeMerge, "", ""},
		{"merge using", "MERGE INTO Target t USING ~", ModeMergeUsing, "", ""},
		{"merge using qualified", "MERGE INTO Target t USING dbo.~", ModeMergeUsingQualified, "", "dbo"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := classifyAt(t, tt.sql)
			assert.Equal(t, tt.mode, ctx.Mode)
			assert.Equal(t, tt.database, ctx.FilterDatabase)
			assert.Equal(t, tt.schema, ctx.FilterSchema)
		})
	}
}

func TestClassify_ColumnModes(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		mode Mode
	}{
		{"select list", "SELECT ~ FROM Employees", ModeSelect},
		{"where", "SELECT Name FROM Employees WHERE ~", ModeWhere},
		{"where after connective", "SELECT Name FROM Employees WHERE Id = 1 AND ~", ModeWhere},
		{"on", "SELECT * FROM A a JOIN B b ON ~", ModeOn},
		{"on after connective", "SELECT * FROM A a JOIN B b ON b.Id = a.Id AND ~", ModeOn},
		{"group by", "SELECT Dept FROM Employees GROUP BY ~", ModeGroupBy},
		{"having", "SELECT Dept FROM Employees GROUP BY Dept HAVING ~", ModeHaving},
		{"order by", "SELECT * FROM Employees ORDER BY ~", ModeOrderBy},
		{"set", "UPDATE Employees SET ~", ModeSet},
		{"values", "INSERT INTO Employees (Name) VALUES (~", ModeValues},
		{"insert columns", "INSERT INTO Employees (~", ModeInsertColumns},
		{"insert columns mid list", "INSERT INTO Employees (Name, ~", ModeInsertColumns},
		{"output", "DELETE FROM Employees OUTPUT ~", ModeOutput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := classifyAt(t, tt.sql)
			assert.Equal(t, tt.mode, ctx.Mode)
		})
	}
}

func TestClassify_MergeInsertColumns(t *testing.T) {
	ctx := classifyAt(t, "MERGE INTO T USING S ON T.Id = S.Id WHEN NOT MATCHED THEN INSERT (~")
	assert.Equal(t, ModeMergeInsertColumns, ctx.Mode)
}

func TestClassify_ColumnQualifiers(t *testing.T) {
	t.Run("alias dot", func(t *testing.T) {
		ctx := classifyAt(t, "SELECT e.~ FROM Employees e")
		assert.Equal(t, ModeSelect, ctx.Mode)
		assert.Equal(t, "e", ctx.Alias)
	})

	t.Run("alias in condition", func(t *testing.T) {
		ctx := classifyAt(t, "SELECT * FROM A a JOIN B b ON b.Id = a.Id AND b.~")
		assert.Equal(t, ModeOn, ctx.Mode)
		assert.Equal(t, "b", ctx.Alias)
	})

	t.Run("output pseudo table", func(t *testing.T) {
		ctx := classifyAt(t, "DELETE FROM Employees OUTPUT deleted.~")
		assert.Equal(t, ModeOutput, ctx.Mode)
		assert.Equal(t, "deleted", ctx.PseudoTable)
		assert.Empty(t, ctx.Alias)
	})
}

func TestClassify_PartialWord(t *testing.T) {
	ctx := classifyAt(t, "SELECT * FROM Emp~")
	assert.Equal(t, ModeFrom, ctx.Mode)
	assert.Equal(t, "Emp", ctx.Word)

	ctx = classifyAt(t, "SELECT * FROM dbo.Emp~")
	assert.Equal(t, ModeFromQualified, ctx.Mode)
	assert.Equal(t, "dbo", ctx.FilterSchema)
	assert.Equal(t, "Emp", ctx.Word)
}

func TestClassify_Comments(t *testing.T) {
	t.Run("inside line comment", func(t *testing.T) {
		ctx := classifyAt(t, "SELECT * FROM t -- note ~")
		assert.Equal(t, ModeNone, ctx.Mode)
	})

	t.Run("inside block comment", func(t *testing.T) {
		ctx := classifyAt(t, "SELECT /* ~ */ Name FROM t")
		assert.Equal(t, ModeNone, ctx.Mode)
	})
}

func TestClassify_DanglingJoinModifierDoesNotCaptureLaterClauses(t *testing.T) {
	// the stray LEFT records a join range, but it ends where parsing
	// resumed; the cursor after the WHERE connective belongs to WHERE
	ctx := classifyAt(t, "SELECT * FROM A a LEFT WHERE x = 1 AND ~")
	assert.Equal(t, ModeWhere, ctx.Mode)

	ctx = classifyAt(t, "SELECT * FROM A a LEFT WHERE x = 1 ORDER BY ~")
	assert.Equal(t, ModeOrderBy, ctx.Mode)
}

func TestClassify_SubqueryInnermostWins(t *testing.T) {
	// both the outer and inner WHERE ranges contain the cursor; the inner
	// subquery's clause must decide
	ctx := classifyAt(t, "SELECT * FROM Employees e WHERE Id IN (SELECT OrderId FROM Orders o WHERE o.Total > 1 AND ~")
	assert.Equal(t, ModeWhere, ctx.Mode)
}

func TestClassify_KeywordAfterDotIgnored(t *testing.T) {
	// Date is a column name here, not a governing keyword
	ctx := classifyAt(t, "SELECT o.Date, ~ FROM Orders o")
	assert.Equal(t, ModeSelect, ctx.Mode)
}

func TestClassify_StatementBoundaryStopsWindow(t *testing.T) {
	ctx := classifyAt(t, "UPDATE t SET a = 1;\nSELECT ~")
	assert.Equal(t, ModeSelect, ctx.Mode)
}

func TestClassify_UseDatabase(t *testing.T) {
	ctx := classifyAt(t, "USE ~")
	assert.Equal(t, ModeDatabase, ctx.Mode)

	ctx = classifyAt(t, "USE Northwind.~")
	assert.Equal(t, ModeSchema, ctx.Mode)
	assert.Equal(t, "Northwind", ctx.FilterDatabase)
}

func TestClassify_Procedure(t *testing.T) {
	ctx := classifyAt(t, "EXEC ~")
	assert.Equal(t, ModeProcedure, ctx.Mode)
}

func TestClassify_EmptyInput(t *testing.T) {
	ctx := Classify(parser.Parse(""), token.Position{Line: 1, Col: 1})
	assert.Equal(t, ModeNone, ctx.Mode)
	assert.Nil(t, ctx.Statement)
}
