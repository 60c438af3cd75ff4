/*
scenarios_test.go - Tests for demo scenario loading

Tests for:
- Every scenario loads without error
- The calling employee survives the reset
- Scenario data (stock, invoices, history) matches the description
*/
package api

import (
	"net/http"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/backoffice/auth"
)

func TestScenario_AllScenariosLoadWithoutError(t *testing.T) {
	ts := newTestServer(t)
	admin, _ := ts.signup("admin@example.com", auth.RoleEmployee)

	for _, s := range scenarios {
		t.Run(s.ID, func(t *testing.T) {
			rec := ts.do(http.MethodPost, "/api/scenarios/load", admin, LoadScenarioRequest{ScenarioID: s.ID})
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			rec = ts.do(http.MethodGet, "/api/scenarios/current", admin, nil)
			require.Equal(t, http.StatusOK, rec.Code)
			var current ScenarioDTO
			decode(t, rec, &current)
			assert.Equal(t, s.ID, current.ID)
		})
	}
}

func TestScenario_UnknownRejected(t *testing.T) {
	ts := newTestServer(t)
	admin, _ := ts.signup("admin@example.com", auth.RoleEmployee)

	rec := ts.do(http.MethodPost, "/api/scenarios/load", admin, LoadScenarioRequest{ScenarioID: "nope"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestScenario_CallerSurvivesReset(t *testing.T) {
	// GIVEN: An employee with a token that is not a demo account
	ts := newTestServer(t)
	admin, _ := ts.signup("ops@example.com", auth.RoleEmployee)

	// WHEN: Loading the starter catalog
	rec := ts.do(http.MethodPost, "/api/scenarios/load", admin, LoadScenarioRequest{ScenarioID: "starter-catalog"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// THEN: The token still works and the demo accounts exist
	rec = ts.do(http.MethodGet, "/api/users", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var users []UserDTO
	decode(t, rec, &users)
	assert.Len(t, users, 4)

	rec = ts.do(http.MethodPost, "/api/auth/login", "", LoginRequest{Email: "alice@example.com", Password: demoPassword})
	assert.Equal(t, http.StatusOK, rec.Code)

	// AND: Reset empties the catalog but keeps the caller
	rec = ts.do(http.MethodPost, "/api/scenarios/reset", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = ts.do(http.MethodGet, "/api/products", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = ts.do(http.MethodGet, "/api/scenarios/current", admin, nil)
	assert.Equal(t, "null\n", rec.Body.String())
}

func TestScenario_FirstSalesDebitsStock(t *testing.T) {
	ts := newTestServer(t)
	admin, _ := ts.signup("admin@example.com", auth.RoleEmployee)

	rec := ts.do(http.MethodPost, "/api/scenarios/load", admin, LoadScenarioRequest{ScenarioID: "first-sales"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, int64(39), ts.stockOf("headphones"))
	assert.Equal(t, int64(118), ts.stockOf("charger"))
	assert.Equal(t, int64(197), ts.stockOf("wool-socks"))

	rec = ts.do(http.MethodGet, "/api/invoices", admin, nil)
	var invoices []InvoiceDTO
	decode(t, rec, &invoices)
	assert.Len(t, invoices, 3)
}

func TestScenario_SalesYearHistory(t *testing.T) {
	// GIVEN: The sales year scenario
	ts := newTestServer(t)
	admin, _ := ts.signup("admin@example.com", auth.RoleEmployee)
	rec := ts.do(http.MethodPost, "/api/scenarios/load", admin, LoadScenarioRequest{ScenarioID: "sales-year"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// WHEN: Reconstructing the current year
	p := currentPeriod()
	rec = ts.do(http.MethodGet, "/api/sales/history/"+strconv.Itoa(p.Year), admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var year []SnapshotDTO
	decode(t, rec, &year)

	// THEN: One snapshot per earlier month, January being the amendment
	require.Len(t, year, int(p.Month)-1)
	for i, s := range year {
		assert.Equal(t, i+1, s.Month)
	}
	if len(year) > 0 {
		assert.NotEmpty(t, year[0].AmendsID)
	}

	// AND: The report covers the current month with the earlier ones as history
	rec = ts.do(http.MethodPost, "/api/sales/report", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var rep ReportDTO
	decode(t, rec, &rep)
	assert.Equal(t, int(p.Month), rep.Snapshot.Month)
	assert.Len(t, rep.History, int(p.Month)-1)
}

func TestScenario_LowStockRejectsOversell(t *testing.T) {
	ts := newTestServer(t)
	admin, _ := ts.signup("admin@example.com", auth.RoleEmployee)
	rec := ts.do(http.MethodPost, "/api/scenarios/load", admin, LoadScenarioRequest{ScenarioID: "low-stock"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(http.MethodPost, "/api/sales", admin, SaleRequest{
		Products: []SaleLineRequest{{ProductID: "last-console", Quantity: 1}, {ProductID: "sold-out-board", Quantity: 1}},
	})

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, int64(1), ts.stockOf("last-console"))
}
