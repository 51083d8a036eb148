package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/sqlsense/internal/metadata"
	"github.com/leapstack-labs/sqlsense/internal/testutil"
	"github.com/leapstack-labs/sqlsense/pkg/catalog"
	"github.com/leapstack-labs/sqlsense/pkg/completion"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	provider := metadata.NewStaticFromTables("dbo",
		catalog.Table{
			Schema: "dbo", Name: "Employees",
			Columns: []catalog.Column{
				{Name: "Id", Type: "int", IsPrimaryKey: true},
				{Name: "Name", Type: "varchar(100)"},
			},
		},
		catalog.Table{
			Schema: "dbo", Name: "Orders",
			Columns: []catalog.Column{
				{Name: "Id", Type: "int", IsPrimaryKey: true},
				{Name: "CustomerId", Type: "int"},
			},
			ForeignKeys: []catalog.ForeignKey{
				{Name: "fk_orders_cust", Columns: []string{"CustomerId"}, RefSchema: "dbo", RefTable: "Customers", RefColumns: []string{"Id"}},
			},
		},
		catalog.Table{
			Schema: "dbo", Name: "Customers",
			Columns: []catalog.Column{{Name: "Id", Type: "int", IsPrimaryKey: true}},
		},
	)
	log := testutil.NewTestLogger(t)
	return New(Config{
		Provider:     provider,
		Engine:       completion.NewEngine(provider, log),
		MaxJoinDepth: 2,
		Logger:       log,
	})
}

func postJSON(t *testing.T, h http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth(t *testing.T) {
	h := newTestServer(t).routes()

	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestHandleParse(t *testing.T) {
	h := newTestServer(t).routes()

	rec := postJSON(t, h, "/v1/parse", parseRequest{
		SQL: "SELECT e.Name FROM dbo.Employees e WHERE e.Id = @id",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp parseResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Statements, 1)

	stmt := resp.Statements[0]
	assert.Equal(t, "select", stmt.Type)
	assert.Equal(t, 0, stmt.Batch)
	require.Len(t, stmt.Tables, 1)
	assert.Equal(t, "dbo.Employees", stmt.Tables[0].Name)
	assert.Equal(t, "e", stmt.Tables[0].Alias)
	require.Len(t, stmt.Columns, 1)
	assert.Equal(t, "Name", stmt.Columns[0].Name)
	assert.Equal(t, []string{"@id"}, stmt.Parameters)
	assert.Contains(t, stmt.Clauses, "where")
}

func TestHandleParse_TempTables(t *testing.T) {
	h := newTestServer(t).routes()

	rec := postJSON(t, h, "/v1/parse", parseRequest{
		SQL: "CREATE TABLE #tmp (Id INT)",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp parseResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Contains(t, resp.TempTables, "#tmp")
	assert.Equal(t, []string{"Id"}, resp.TempTables["#tmp"].Columns)
}

func TestHandleParse_BadJSON(t *testing.T) {
	h := newTestServer(t).routes()

	req := httptest.NewRequest(http.MethodPost, "/v1/parse", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleComplete(t *testing.T) {
	h := newTestServer(t).routes()

	rec := postJSON(t, h, "/v1/complete", completeRequest{
		SQL:  "SELECT * FROM ",
		Line: 1,
		Col:  15,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp completeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "from", resp.Mode)

	var labels []string
	for _, c := range resp.Candidates {
		labels = append(labels, c.Label)
	}
	assert.Contains(t, labels, "Employees")
	assert.Contains(t, labels, "Orders")
}

func TestHandleComplete_ColumnMode(t *testing.T) {
	h := newTestServer(t).routes()

	sql := "SELECT e. FROM Employees e"
	rec := postJSON(t, h, "/v1/complete", completeRequest{
		SQL:  sql,
		Line: 1,
		Col:  10, // right after "e."
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp completeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "select", resp.Mode)
	assert.Equal(t, "e", resp.Alias)
	require.Len(t, resp.Candidates, 2)
	assert.Equal(t, "Id", resp.Candidates[0].Label)
}

func TestHandleJoins(t *testing.T) {
	h := newTestServer(t).routes()

	rec := postJSON(t, h, "/v1/joins", joinsRequest{Tables: []string{"Orders"}})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp joinsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Suggestions, 1)
	assert.Equal(t, 1, resp.Suggestions[0].Hops)
	assert.Equal(t, "Customers", resp.Suggestions[0].Label)
	assert.Equal(t, "Orders.CustomerId = Customers.Id", resp.Suggestions[0].Detail)
}

func TestHandleJoins_Errors(t *testing.T) {
	h := newTestServer(t).routes()

	rec := postJSON(t, h, "/v1/joins", joinsRequest{Tables: []string{"Nope"}})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = postJSON(t, h, "/v1/joins", joinsRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
