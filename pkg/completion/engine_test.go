package completion

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/sqlsense/internal/metadata"
	"github.com/leapstack-labs/sqlsense/internal/testutil"
	"github.com/leapstack-labs/sqlsense/pkg/catalog"
	"github.com/leapstack-labs/sqlsense/pkg/token"
)

func newTestProvider() *metadata.StaticProvider {
	return metadata.NewStaticFromTables("dbo",
		catalog.Table{
			Schema: "dbo", Name: "Employees",
			Columns: []catalog.Column{
				{Name: "Id", Type: "int", IsPrimaryKey: true},
				{Name: "Name", Type: "varchar(100)"},
				{Name: "DeptId", Type: "int"},
			},
			ForeignKeys: []catalog.ForeignKey{
				{Name: "fk_emp_dept", Columns: []string{"DeptId"}, RefSchema: "dbo", RefTable: "Departments", RefColumns: []string{"Id"}},
			},
		},
		catalog.Table{
			Schema: "dbo", Name: "Departments",
			Columns: []catalog.Column{
				{Name: "Id", Type: "int", IsPrimaryKey: true},
				{Name: "Name", Type: "varchar(100)"},
			},
		},
		catalog.Table{
			Schema: "dbo", Name: "Orders",
			Columns: []catalog.Column{
				{Name: "Id", Type: "int", IsPrimaryKey: true},
				{Name: "EmployeeId", Type: "int"},
				{Name: "CustomerId", Type: "int"},
				{Name: "Total", Type: "decimal(10,2)"},
			},
			ForeignKeys: []catalog.ForeignKey{
				{Name: "fk_orders_emp", Columns: []string{"EmployeeId"}, RefSchema: "dbo", RefTable: "Employees", RefColumns: []string{"Id"}},
				{Name: "fk_orders_cust", Columns: []string{"CustomerId"}, RefSchema: "dbo", RefTable: "Customers", RefColumns: []string{"Id"}},
			},
		},
		catalog.Table{
			Schema: "dbo", Name: "Customers",
			Columns: []catalog.Column{
				{Name: "Id", Type: "int", IsPrimaryKey: true},
				{Name: "Name", Type: "varchar(100)"},
				{Name: "CountryId", Type: "int"},
			},
			ForeignKeys: []catalog.ForeignKey{
				{Name: "fk_cust_country", Columns: []string{"CountryId"}, RefSchema: "dbo", RefTable: "Countries", RefColumns: []string{"Id"}},
			},
		},
		catalog.Table{
			Schema: "dbo", Name: "Countries",
			Columns: []catalog.Column{
				{Name: "Id", Type: "int", IsPrimaryKey: true},
				{Name: "Name", Type: "varchar(100)"},
			},
		},
		catalog.Table{
			Schema: "sales", Name: "Invoices",
			Columns: []catalog.Column{
				{Name: "Id", Type: "int", IsPrimaryKey: true},
				{Name: "OrderId", Type: "int"},
			},
		},
	)
}

func completeAt(t *testing.T, e *Engine, sql string) *Completion {
	t.Helper()
	text, cursor := cursorAt(t, sql)
	comp, err := e.Complete(context.Background(), text, cursor)
	require.NoError(t, err)
	return comp
}

func labels(cands []Candidate) []string {
	out := make([]string, 0, len(cands))
	for _, c := range cands {
		out = append(out, c.Label)
	}
	return out
}

func TestEngine_TableCandidates(t *testing.T) {
	e := NewEngine(newTestProvider(), testutil.NewTestLogger(t))

	t.Run("unqualified lists every table", func(t *testing.T) {
		comp := completeAt(t, e, "SELECT * FROM ~")
		got := labels(comp.Candidates)
		assert.Contains(t, got, "Employees")
		assert.Contains(t, got, "Orders")
		assert.Contains(t, got, "Invoices")
		for _, c := range comp.Candidates {
			assert.Equal(t, KindTable, c.Kind)
		}
	})

	t.Run("schema qualifier restricts", func(t *testing.T) {
		comp := completeAt(t, e, "SELECT * FROM sales.~")
		assert.Equal(t, []string{"Invoices"}, labels(comp.Candidates))
	})

	t.Run("word prefix filters", func(t *testing.T) {
		comp := completeAt(t, e, "SELECT * FROM Emp~")
		assert.Equal(t, []string{"Employees"}, labels(comp.Candidates))
	})
}

func TestEngine_JoinSuggestions(t *testing.T) {
	e := NewEngine(newTestProvider(), testutil.NewTestLogger(t))
	comp := completeAt(t, e, "SELECT * FROM Orders o JOIN ~")

	var joins []Candidate
	for _, c := range comp.Candidates {
		if c.Kind == KindJoin {
			joins = append(joins, c)
		}
	}
	require.Len(t, joins, 4)

	// hop 1 in FK declaration order, then hop 2
	assert.Equal(t, "Employees", joins[0].Label)
	assert.Equal(t, "Orders.EmployeeId = Employees.Id", joins[0].Detail)
	assert.Equal(t, "Customers", joins[1].Label)
	assert.Equal(t, "Departments (via Employees)", joins[2].Label)
	assert.Equal(t, "Countries (via Customers)", joins[3].Label)

	// join suggestions come before plain table candidates
	assert.Equal(t, KindJoin, comp.Candidates[0].Kind)

	// the table already in the query is not offered again
	assert.NotContains(t, labels(comp.Candidates), "Orders")
}

func TestEngine_JoinDepthLimit(t *testing.T) {
	e := NewEngine(newTestProvider(), testutil.NewTestLogger(t))
	e.SetMaxJoinDepth(1)
	comp := completeAt(t, e, "SELECT * FROM Orders o JOIN ~")

	got := labels(comp.Candidates)
	assert.NotContains(t, got, "Departments (via Employees)")
	assert.Contains(t, got, "Customers")
}

func TestEngine_ColumnsForAlias(t *testing.T) {
	e := NewEngine(newTestProvider(), testutil.NewTestLogger(t))
	comp := completeAt(t, e, "SELECT e.~ FROM Employees e")

	assert.Equal(t, []string{"Id", "Name", "DeptId"}, labels(comp.Candidates))
	assert.Equal(t, "int", comp.Candidates[0].Detail)
	assert.Equal(t, KindColumn, comp.Candidates[0].Kind)
}

func TestEngine_UnqualifiedColumnsDedup(t *testing.T) {
	e := NewEngine(newTestProvider(), testutil.NewTestLogger(t))
	comp := completeAt(t, e, "SELECT ~ FROM Employees e JOIN Departments d ON e.DeptId = d.Id")

	// Id and Name appear in both tables but once in the list
	assert.Equal(t, []string{"Id", "Name", "DeptId"}, labels(comp.Candidates))
}

func TestEngine_CTEColumns(t *testing.T) {
	e := NewEngine(newTestProvider(), testutil.NewTestLogger(t))
	comp := completeAt(t, e, "WITH Active (Id, Name) AS (SELECT Id, Name FROM Employees) SELECT a.~ FROM Active a")

	assert.Equal(t, []string{"Id", "Name"}, labels(comp.Candidates))
}

func TestEngine_CorrelatedSubqueryAlias(t *testing.T) {
	e := NewEngine(newTestProvider(), testutil.NewTestLogger(t))

	// the outer alias stays visible inside the subquery
	comp := completeAt(t, e, "SELECT Name FROM Employees e WHERE EXISTS (SELECT 1 FROM Orders o WHERE o.EmployeeId = e.~")
	assert.Equal(t, []string{"Id", "Name", "DeptId"}, labels(comp.Candidates))

	// the inner alias resolves against the subquery's own table
	comp = completeAt(t, e, "SELECT Name FROM Employees e WHERE EXISTS (SELECT 1 FROM Orders o WHERE o.~")
	assert.Equal(t, []string{"Id", "EmployeeId", "CustomerId", "Total"}, labels(comp.Candidates))
}

func TestEngine_TempTableColumns(t *testing.T) {
	e := NewEngine(newTestProvider(), testutil.NewTestLogger(t))
	comp := completeAt(t, e, "CREATE TABLE #tmp (Id INT, Name VARCHAR(50));\nSELECT t.~ FROM #tmp t")

	assert.Equal(t, []string{"Id", "Name"}, labels(comp.Candidates))
}

func TestEngine_TempTableCandidate(t *testing.T) {
	e := NewEngine(newTestProvider(), testutil.NewTestLogger(t))
	comp := completeAt(t, e, "CREATE TABLE #tmp (Id INT);\nSELECT * FROM ~")

	got := labels(comp.Candidates)
	assert.Contains(t, got, "#tmp")
	assert.Contains(t, got, "Employees")
}

func TestEngine_TableVariableColumns(t *testing.T) {
	e := NewEngine(newTestProvider(), testutil.NewTestLogger(t))
	comp := completeAt(t, e, "DECLARE @t TABLE (Id INT, Total DECIMAL(10,2));\nSELECT v.~ FROM @t v")

	assert.Equal(t, []string{"Id", "Total"}, labels(comp.Candidates))
}

func TestEngine_InsertColumns(t *testing.T) {
	e := NewEngine(newTestProvider(), testutil.NewTestLogger(t))
	comp := completeAt(t, e, "INSERT INTO Employees (~")

	assert.Equal(t, []string{"Id", "Name", "DeptId"}, labels(comp.Candidates))
}

func TestEngine_OutputPseudoTable(t *testing.T) {
	e := NewEngine(newTestProvider(), testutil.NewTestLogger(t))
	comp := completeAt(t, e, "DELETE FROM Employees OUTPUT deleted.~")

	assert.Equal(t, []string{"Id", "Name", "DeptId"}, labels(comp.Candidates))
}

func TestEngine_UnknownTableDegrades(t *testing.T) {
	e := NewEngine(newTestProvider(), testutil.NewTestLogger(t))
	comp := completeAt(t, e, "SELECT x.~ FROM Missing x")

	assert.Empty(t, comp.Candidates)
}

func TestEngine_DatabaseSchemaProcedure(t *testing.T) {
	provider, err := metadata.ParseStatic([]byte(`
default_schema: dbo
databases:
  - name: Northwind
    schemas:
      - name: dbo
        tables:
          - name: Employees
            columns:
              - name: Id
                type: int
      - name: sales
        tables:
          - name: Invoices
            columns:
              - name: Id
                type: int
    procedures:
      - schema: dbo
        name: usp_GetEmployee
`))
	require.NoError(t, err)
	e := NewEngine(provider, testutil.NewTestLogger(t))

	comp := completeAt(t, e, "USE ~")
	assert.Equal(t, []string{"Northwind"}, labels(comp.Candidates))

	comp = completeAt(t, e, "USE Northwind.~")
	assert.Equal(t, []string{"dbo", "sales"}, labels(comp.Candidates))

	comp = completeAt(t, e, "EXEC ~")
	assert.Equal(t, []string{"usp_GetEmployee"}, labels(comp.Candidates))
}

func TestEngine_CanceledContext(t *testing.T) {
	e := NewEngine(newTestProvider(), testutil.NewTestLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Complete(ctx, "SELECT * FROM ", token.Position{Line: 1, Col: 15})
	assert.ErrorIs(t, err, context.Canceled)
}
