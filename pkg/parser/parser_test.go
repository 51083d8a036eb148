package parser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/sqlsense/pkg/token"
)

func columnNames(cols []ColumnInfo) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Name
	}
	return out
}

func TestParse_SimpleSelect(t *testing.T) {
	res := Parse("SELECT e.Name, e.Age FROM dbo.Employees e WHERE e.Age > 30;")
	require.Len(t, res.Statements, 1)

	stmt := res.Statements[0]
	assert.Equal(t, StmtSelect, stmt.Type)

	require.Len(t, stmt.Tables, 1)
	tbl := stmt.Tables[0]
	assert.Equal(t, "dbo", tbl.Schema)
	assert.Equal(t, "Employees", tbl.Name)
	assert.Equal(t, "e", tbl.Alias)

	require.Len(t, stmt.Columns, 2)
	assert.Equal(t, []string{"Name", "Age"}, columnNames(stmt.Columns))
	assert.Equal(t, "e", stmt.Columns[0].SourceTable)
	assert.Equal(t, "Employees", stmt.Columns[0].ParentTable)
	assert.Equal(t, "dbo", stmt.Columns[0].ParentSchema)

	for _, key := range []string{"select", "from", "where"} {
		span, ok := stmt.Clauses[key]
		require.True(t, ok, "missing clause %q", key)
		assert.False(t, span.Open, "clause %q should be closed", key)
	}
	assert.False(t, stmt.Span.Open)
}

func TestParse_StatementTypes(t *testing.T) {
	tests := []struct {
		sql      string
		expected StatementType
	}{
		{"SELECT 1", StmtSelect},
		{"WITH c AS (SELECT 1 AS x) SELECT x FROM c", StmtSelect},
		{"INSERT INTO t VALUES (1)", StmtInsert},
		{"UPDATE t SET a = 1", StmtUpdate},
		{"DELETE FROM t", StmtDelete},
		{"MERGE INTO t USING s ON t.Id = s.Id WHEN MATCHED THEN DELETE;", StmtMerge},
		{"CREATE TABLE t (Id INT)", StmtCreate},
		{"DROP TABLE t", StmtDrop},
		{"EXEC sp_help", StmtExec},
		{"DECLARE @x INT", StmtDeclare},
		{"SET NOCOUNT ON", StmtSet},
		{"USE Northwind", StmtUse},
		{"PRINT 'hello'", StmtOther},
	}

	for _, tt := range tests {
		t.Run(tt.sql, func(t *testing.T) {
			res := Parse(tt.sql)
			require.Len(t, res.Statements, 1)
			assert.Equal(t, tt.expected, res.Statements[0].Type)
		})
	}
}

func TestParse_AliasIsolationPerStatement(t *testing.T) {
	res := Parse("SELECT * FROM Employees e;\nSELECT * FROM Departments d;")
	require.Len(t, res.Statements, 2)

	first, second := res.Statements[0], res.Statements[1]
	assert.NotNil(t, first.Table("e"))
	assert.Nil(t, first.Table("d"))
	assert.Nil(t, second.Table("e"))
	assert.NotNil(t, second.Table("d"))
}

func TestParse_BatchIndexes(t *testing.T) {
	res := Parse("SELECT 1\nGO\nSELECT 2\nGO\nSELECT 3")
	require.Len(t, res.Statements, 3)
	for i, stmt := range res.Statements {
		assert.Equal(t, i, stmt.BatchIndex)
	}
}

func TestParse_CTEColumnInheritance(t *testing.T) {
	res := Parse(`WITH Ranked (Id, Rank) AS (
    SELECT EmpId, ROW_NUMBER() OVER (ORDER BY Salary DESC) AS rn
    FROM Employees
)
SELECT * FROM Ranked;`)
	require.Len(t, res.Statements, 1)

	stmt := res.Statements[0]
	require.Len(t, stmt.CTEs, 1)
	cte := stmt.CTEs[0]
	assert.Equal(t, "Ranked", cte.Name)
	// explicit column list renames by position, keeping resolved parents
	assert.Equal(t, []string{"Id", "Rank"}, columnNames(cte.Columns))
	assert.Equal(t, "Employees", cte.Columns[0].ParentTable)

	require.Len(t, stmt.Tables, 1)
	assert.True(t, stmt.Tables[0].IsCTE)
	assert.Equal(t, "Ranked", stmt.Tables[0].Name)
}

func TestParse_RecursiveCTESeesItself(t *testing.T) {
	res := Parse(`WITH Walk AS (
    SELECT Id, ParentId FROM Nodes WHERE ParentId IS NULL
    UNION ALL
    SELECT n.Id, n.ParentId FROM Nodes n JOIN Walk w ON w.Id = n.ParentId
)
SELECT * FROM Walk;`)
	require.Len(t, res.Statements, 1)

	stmt := res.Statements[0]
	require.Len(t, stmt.CTEs, 1)
	var selfRef bool
	for _, tbl := range stmt.CTEs[0].Tables {
		if tbl.Name == "Walk" {
			selfRef = tbl.IsCTE
		}
	}
	assert.True(t, selfRef, "self-reference should be flagged as CTE")
}

func TestParse_CorrelatedSubquery(t *testing.T) {
	res := Parse(`SELECT e.Name,
    (SELECT COUNT(*) FROM Orders o WHERE o.EmpId = e.Id) AS OrderCount
FROM Employees e;`)
	require.Len(t, res.Statements, 1)

	stmt := res.Statements[0]
	assert.Equal(t, []string{"Name", "OrderCount"}, columnNames(stmt.Columns))

	require.Len(t, stmt.Subqueries, 1)
	sq := stmt.Subqueries[0]
	assert.Equal(t, "OrderCount", sq.Alias)
	require.Len(t, sq.Tables, 1)
	assert.Equal(t, "Orders", sq.Tables[0].Name)
	assert.Equal(t, "o", sq.Tables[0].Alias)
}

func TestParse_DerivedTable(t *testing.T) {
	res := Parse("SELECT x.Name FROM (SELECT Name FROM Employees) x;")
	require.Len(t, res.Statements, 1)

	stmt := res.Statements[0]
	assert.Empty(t, stmt.Tables)
	require.Len(t, stmt.Subqueries, 1)
	sq := stmt.Subqueries[0]
	assert.Equal(t, "x", sq.Alias)
	assert.Equal(t, []string{"Name"}, columnNames(sq.Columns))
	assert.Equal(t, "Employees", sq.Columns[0].ParentTable)
}

func TestParse_UpdateTargetFoldIn(t *testing.T) {
	t.Run("alias target resolved through FROM", func(t *testing.T) {
		res := Parse("UPDATE e SET e.Salary = 1 FROM Employees e WHERE e.Id = 2;")
		require.Len(t, res.Statements, 1)

		stmt := res.Statements[0]
		assert.Equal(t, StmtUpdate, stmt.Type)
		require.Len(t, stmt.Tables, 1)
		assert.Equal(t, "Employees", stmt.Tables[0].Name)
		assert.Equal(t, "e", stmt.Tables[0].Alias)

		assert.Contains(t, stmt.Clauses, "set")
		assert.Contains(t, stmt.Clauses, "from")
		assert.Contains(t, stmt.Clauses, "where")
	})

	t.Run("plain target", func(t *testing.T) {
		res := Parse("UPDATE Employees SET Salary = 1 WHERE Id = 2;")
		stmt := res.Statements[0]
		require.Len(t, stmt.Tables, 1)
		assert.Equal(t, "Employees", stmt.Tables[0].Name)
	})
}

func TestParse_DeleteTargetFoldIn(t *testing.T) {
	res := Parse("DELETE o FROM Orders o WHERE o.Total < 0;")
	require.Len(t, res.Statements, 1)

	stmt := res.Statements[0]
	assert.Equal(t, StmtDelete, stmt.Type)
	require.Len(t, stmt.Tables, 1)
	assert.Equal(t, "Orders", stmt.Tables[0].Name)
	assert.Equal(t, "o", stmt.Tables[0].Alias)
}

func TestParse_Merge(t *testing.T) {
	res := Parse(`MERGE INTO Target t USING Source s ON t.Id = s.Id
WHEN MATCHED THEN UPDATE SET t.Name = s.Name
WHEN NOT MATCHED THEN INSERT (Id, Name) VALUES (s.Id, s.Name);`)
	require.Len(t, res.Statements, 1)

	stmt := res.Statements[0]
	assert.Equal(t, StmtMerge, stmt.Type)

	require.Len(t, stmt.Tables, 2)
	assert.Equal(t, "Target", stmt.Tables[0].Name)
	assert.Equal(t, "t", stmt.Tables[0].Alias)
	assert.Equal(t, "Source", stmt.Tables[1].Name)
	assert.Equal(t, "s", stmt.Tables[1].Alias)

	for _, key := range []string{"using", "on_1", "set", "merge_insert_columns", "values"} {
		assert.Contains(t, stmt.Clauses, key)
	}
	assert.Equal(t, []string{"Id", "Name"}, stmt.InsertColumns)
}

func TestParse_InsertVariants(t *testing.T) {
	t.Run("values with column list", func(t *testing.T) {
		res := Parse("INSERT INTO Employees (Name, Age) VALUES ('a', 30);")
		stmt := res.Statements[0]
		assert.Equal(t, StmtInsert, stmt.Type)
		assert.Equal(t, []string{"Name", "Age"}, stmt.InsertColumns)
		assert.Contains(t, stmt.Clauses, "insert_columns")
		assert.Contains(t, stmt.Clauses, "values")
		require.Len(t, stmt.Tables, 1)
		assert.Equal(t, "Employees", stmt.Tables[0].Name)
	})

	t.Run("insert select", func(t *testing.T) {
		res := Parse("INSERT INTO Archive SELECT * FROM Employees;")
		stmt := res.Statements[0]
		require.Len(t, stmt.Tables, 2)
		assert.Equal(t, "Archive", stmt.Tables[0].Name)
		assert.Equal(t, "Employees", stmt.Tables[1].Name)
	})
}

func TestParse_JoinClauses(t *testing.T) {
	res := Parse(`SELECT e.Name FROM Employees e
JOIN Departments d ON d.Id = e.DeptId
LEFT JOIN Offices o ON o.Id = d.OfficeId
WHERE d.Name = 'Sales' GROUP BY e.Name HAVING COUNT(*) > 1 ORDER BY e.Name;`)
	require.Len(t, res.Statements, 1)

	stmt := res.Statements[0]
	for _, key := range []string{
		"select", "from", "join_1", "on_1", "join_2", "on_2",
		"where", "group_by", "having", "order_by",
	} {
		assert.Contains(t, stmt.Clauses, key)
	}
	require.Len(t, stmt.Tables, 3)
}

func TestParse_OpenEndedClauses(t *testing.T) {
	t.Run("where under the cursor", func(t *testing.T) {
		res := Parse("SELECT Name FROM Employees WHERE ")
		stmt := res.Statements[0]
		span, ok := stmt.Clauses["where"]
		require.True(t, ok)
		assert.True(t, span.Open)
		assert.True(t, stmt.Span.Open)
	})

	t.Run("from under the cursor", func(t *testing.T) {
		res := Parse("SELECT a, b FROM ")
		stmt := res.Statements[0]
		span, ok := stmt.Clauses["from"]
		require.True(t, ok)
		assert.True(t, span.Open)
	})

	t.Run("join modifier without join", func(t *testing.T) {
		res := Parse("SELECT * FROM Employees e LEFT ")
		stmt := res.Statements[0]
		span, ok := stmt.Clauses["join_1"]
		require.True(t, ok)
		assert.True(t, span.Open)
	})

	t.Run("join modifier followed by more clauses closes", func(t *testing.T) {
		res := Parse("SELECT * FROM Employees e LEFT WHERE Id = 1")
		stmt := res.Statements[0]
		span, ok := stmt.Clauses["join_1"]
		require.True(t, ok)
		assert.False(t, span.Open, "the statement continued past the modifier")
		assert.False(t, span.Contains(token.Position{Line: 1, Col: 40}))
		where, ok := stmt.Clauses["where"]
		require.True(t, ok)
		assert.True(t, where.Contains(token.Position{Line: 1, Col: 40}))
	})

	t.Run("join without target closes mid statement", func(t *testing.T) {
		res := Parse("SELECT * FROM Employees e JOIN WHERE Id = 1")
		stmt := res.Statements[0]
		span, ok := stmt.Clauses["join_1"]
		require.True(t, ok)
		assert.False(t, span.Open)
	})
}

func TestParse_TempTableLifecycle(t *testing.T) {
	res := Parse(`CREATE TABLE #tmp (Id INT, Name VARCHAR(50))
SELECT * FROM #tmp
DROP TABLE #tmp`)

	info, ok := res.TempTables["#tmp"]
	require.True(t, ok)
	assert.Equal(t, "#tmp", info.Name)
	assert.Equal(t, []string{"Id", "Name"}, columnNames(info.Columns))
	assert.Equal(t, 0, info.CreatedInBatch)
	assert.False(t, info.IsGlobal)
	assert.Equal(t, 3, info.DroppedAtLine)

	assert.NotNil(t, res.TempTableAt("#tmp", 0))
	assert.Nil(t, res.TempTableAt("#tmp", 1), "local temp table is batch-scoped")
}

func TestParse_GlobalTempTableCrossesBatches(t *testing.T) {
	res := Parse("CREATE TABLE ##shared (A INT)\nGO\nSELECT * FROM ##shared")

	info := res.TempTableAt("##shared", 1)
	require.NotNil(t, info)
	assert.True(t, info.IsGlobal)
	assert.NotNil(t, res.TempTableAt("##shared", 0))
}

func TestParse_SelectIntoTempTable(t *testing.T) {
	res := Parse("SELECT Id, Name INTO #out FROM Employees;")
	stmt := res.Statements[0]
	assert.Equal(t, "#out", stmt.TempTableName)

	info, ok := res.TempTables["#out"]
	require.True(t, ok)
	assert.Equal(t, []string{"Id", "Name"}, columnNames(info.Columns))
}

func TestParse_TableVariable(t *testing.T) {
	res := Parse("DECLARE @t TABLE (Id INT, Val VARCHAR(10));\nSELECT * FROM @t;")
	require.Len(t, res.Statements, 2)

	decl := res.Statements[0]
	assert.Equal(t, StmtDeclare, decl.Type)
	require.Len(t, decl.Tables, 1)
	assert.True(t, decl.Tables[0].IsTableVariable)
	assert.Equal(t, []string{"Id", "Val"}, columnNames(decl.Columns))

	sel := res.Statements[1]
	require.Len(t, sel.Tables, 1)
	assert.True(t, sel.Tables[0].IsTableVariable)
	assert.Equal(t, "@t", sel.Tables[0].Name)
	// @t after FROM is a table variable, not a scalar parameter
	assert.Empty(t, sel.Parameters)
}

func TestParse_Parameters(t *testing.T) {
	res := Parse("SELECT * FROM Employees WHERE Id = @id AND @ID > 0 AND @@ROWCOUNT > 0;")
	stmt := res.Statements[0]

	require.Len(t, stmt.Parameters, 2)
	assert.Equal(t, "@id", stmt.Parameters[0].FullName)
	assert.False(t, stmt.Parameters[0].IsSystem)
	assert.Equal(t, "@@ROWCOUNT", stmt.Parameters[1].FullName)
	assert.True(t, stmt.Parameters[1].IsSystem)
}

func TestParse_StarColumns(t *testing.T) {
	res := Parse("SELECT e.*, d.Name FROM Employees e JOIN Departments d ON d.Id = e.DeptId;")
	stmt := res.Statements[0]

	require.Len(t, stmt.Columns, 2)
	assert.True(t, stmt.Columns[0].IsStar)
	assert.Equal(t, "e", stmt.Columns[0].SourceTable)
	assert.Equal(t, "Name", stmt.Columns[1].Name)
}

func TestParse_ExpressionColumns(t *testing.T) {
	res := Parse("SELECT Price * Quantity AS Total FROM OrderLines;")
	stmt := res.Statements[0]

	require.Len(t, stmt.Columns, 1)
	col := stmt.Columns[0]
	assert.Equal(t, "Total", col.Name)
	require.Len(t, col.ExpressionColumns, 2)
	assert.Equal(t, "Price", col.ExpressionColumns[0].Name)
	assert.Equal(t, "Quantity", col.ExpressionColumns[1].Name)
}

func TestParse_StatementAt(t *testing.T) {
	res := Parse("SELECT 1;\nSELECT 2;")
	require.Len(t, res.Statements, 2)

	assert.Equal(t, res.Statements[0], res.StatementAt(token.Position{Line: 1, Col: 3}))
	assert.Equal(t, res.Statements[1], res.StatementAt(token.Position{Line: 2, Col: 3}))
}

func TestParse_CustomBatchSeparator(t *testing.T) {
	res := ParseWithOptions("SELECT 1\nRUN\nSELECT 2", Options{Lex: LexOptions{BatchSeparator: "RUN"}})
	require.Len(t, res.Statements, 2)
	assert.Equal(t, 0, res.Statements[0].BatchIndex)
	assert.Equal(t, 1, res.Statements[1].BatchIndex)
}

// The parser must terminate on any input, however malformed. These inputs
// poke at the loops most likely to stall: unbalanced parens, repeated
// keywords, dangling dots, and truncation at every prefix of a statement.
func TestParse_TerminatesOnAdversarialInput(t *testing.T) {
	inputs := []string{
		"",
		"((((((((((",
		"))))))))))",
		"SELECT SELECT SELECT",
		"FROM FROM FROM",
		"WHEN MATCHED WHEN MATCHED",
		"MERGE MERGE MERGE",
		"a.b.c.d.e.f.g.h",
		"SELECT a.,b., FROM .",
		"UPDATE SET FROM WHERE",
		"WITH AS AS AS SELECT",
		"INSERT INTO (((",
		", , , , ,",
		"GO GO GO",
		strings.Repeat("JOIN ", 200),
		strings.Repeat("SELECT * FROM t; ", 50),
	}

	for _, input := range inputs {
		res := Parse(input)
		require.NotNil(t, res, "input %q", input)
	}
}

func TestParse_TruncationAtEveryPrefix(t *testing.T) {
	full := "WITH c AS (SELECT Id FROM Base) SELECT c.Id, x.Name FROM c JOIN (SELECT Name FROM Other) x ON x.Id = c.Id WHERE c.Id > 0 ORDER BY c.Id;"
	for i := 0; i <= len(full); i++ {
		res := Parse(full[:i])
		require.NotNil(t, res, "prefix of length %d", i)
	}
}
