/*
handlers_test.go - HTTP tests for the back office API

Tests for:
- Authentication and role checks
- Product administration and stock adjustments
- Sales, invoices and ownership
- Aggregation, reconstruction, amendment, report
- Error envelope codes and the metrics endpoint

Requests go through NewRouter over a transactional memory store. Tokens are
issued with the real clock.
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/backoffice/auth"
	"github.com/warp/backoffice/commerce"
	"github.com/warp/backoffice/commerce/store"
	"github.com/warp/backoffice/metrics"
	"github.com/warp/backoffice/report"
	"golang.org/x/crypto/bcrypt"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type fakeGenerator struct {
	mu      sync.Mutex
	prompts []string
	text    string
	err     error
}

func (f *fakeGenerator) Generate(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

type testServer struct {
	t       *testing.T
	router  http.Handler
	handler *Handler
	store   *store.TxMemory
	gen     *fakeGenerator
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	mem := store.NewTxMemory()
	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{})

	svc := commerce.NewService(mem, commerce.Options{Location: time.UTC, Logger: logger})
	authSvc := &auth.Service{
		Users:  mem,
		Tokens: &auth.TokenIssuer{Secret: []byte("test-secret")},
		Cost:   bcrypt.MinCost,
	}
	m := metrics.New("")
	gen := &fakeGenerator{text: "Sales are up."}
	reports := &report.Service{
		History:   svc.History,
		Products:  mem,
		Generator: gen,
		Metrics:   m,
		Logger:    logger,
	}

	h := NewHandler(svc, authSvc, reports, m, logger)
	return &testServer{t: t, router: NewRouter(h), handler: h, store: mem, gen: gen}
}

func (ts *testServer) do(method, path, token string, body any) *httptest.ResponseRecorder {
	ts.t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(ts.t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

// signup registers and logs in, returning the bearer token and user id.
func (ts *testServer) signup(email string, role auth.Role) (string, string) {
	ts.t.Helper()

	rec := ts.do(http.MethodPost, "/api/auth/register", "", RegisterRequest{
		Username: strings.Split(email, "@")[0],
		Email:    email,
		Password: "secret123",
		Role:     string(role),
	})
	require.Equal(ts.t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = ts.do(http.MethodPost, "/api/auth/login", "", LoginRequest{Email: email, Password: "secret123"})
	require.Equal(ts.t, http.StatusOK, rec.Code, rec.Body.String())

	var resp LoginResponse
	decode(ts.t, rec, &resp)
	return resp.Token, resp.User.ID
}

func (ts *testServer) createProduct(token, id, price string, stock int64) {
	ts.t.Helper()
	rec := ts.do(http.MethodPost, "/api/products", token, CreateProductRequest{
		ID:       id,
		Name:     "Product " + id,
		Price:    decimal.RequireFromString(price),
		Stock:    stock,
		Category: "Home",
	})
	require.Equal(ts.t, http.StatusCreated, rec.Code, rec.Body.String())
}

func (ts *testServer) stockOf(id string) int64 {
	ts.t.Helper()
	p, err := ts.store.GetProduct(context.Background(), commerce.ProductID(id))
	require.NoError(ts.t, err)
	return p.Stock
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst), rec.Body.String())
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp ErrorResponse
	decode(t, rec, &resp)
	return resp.Code
}

func currentPeriod() commerce.Period {
	return commerce.PeriodOf(time.Now(), time.UTC)
}

// =============================================================================
// HEALTH / AUTH
// =============================================================================

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/healthz", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

func TestAuth_RegisterLoginAndBrowse(t *testing.T) {
	// GIVEN: A registered customer
	ts := newTestServer(t)
	token, userID := ts.signup("carla@example.com", auth.RoleCustomer)
	assert.NotEmpty(t, userID)

	// WHEN: Listing products with the token
	rec := ts.do(http.MethodGet, "/api/products", token, nil)

	// THEN: The empty catalog is returned
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestAuth_MissingAndBadToken(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/api/products", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "UNAUTHORIZED", errorCode(t, rec))

	rec = ts.do(http.MethodGet, "/api/products", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuth_WrongPassword(t *testing.T) {
	ts := newTestServer(t)
	ts.signup("carla@example.com", auth.RoleCustomer)

	rec := ts.do(http.MethodPost, "/api/auth/login", "", LoginRequest{Email: "carla@example.com", Password: "nope-nope"})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuth_DuplicateEmail(t *testing.T) {
	ts := newTestServer(t)
	ts.signup("carla@example.com", auth.RoleCustomer)

	rec := ts.do(http.MethodPost, "/api/auth/register", "", RegisterRequest{
		Username: "carla2", Email: "CARLA@example.com", Password: "secret123",
	})

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "DUPLICATE_ENTITY", errorCode(t, rec))
}

func TestAuth_RegisterValidation(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/api/auth/register", "", `{"username": "x", "email": "not-an-email", "password": "1"}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var resp struct {
		Code    string            `json:"code"`
		Details map[string]string `json:"details"`
	}
	decode(t, rec, &resp)
	assert.Equal(t, "INVALID_INPUT", resp.Code)
	assert.Contains(t, resp.Details, "email")
	assert.Contains(t, resp.Details, "password")
}

func TestAuth_CustomerCannotUseBackOffice(t *testing.T) {
	ts := newTestServer(t)
	token, _ := ts.signup("carla@example.com", auth.RoleCustomer)

	for _, path := range []string{"/api/users", "/api/invoices", "/api/sales/history", "/api/scenarios"} {
		rec := ts.do(http.MethodGet, path, token, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code, path)
	}
}

// =============================================================================
// PRODUCTS / STOCK
// =============================================================================

func TestProducts_CreateGetUpdate(t *testing.T) {
	ts := newTestServer(t)
	admin, _ := ts.signup("admin@example.com", auth.RoleEmployee)
	ts.createProduct(admin, "lamp", "42.00", 5)

	rec := ts.do(http.MethodPatch, "/api/products/lamp", admin, `{"price": "39.90", "category": "electronics"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var p ProductDTO
	decode(t, rec, &p)
	assert.True(t, decimal.RequireFromString("39.90").Equal(p.Price))
	assert.Equal(t, "Electronics", p.Category)
	assert.Equal(t, int64(5), p.Stock)

	rec = ts.do(http.MethodGet, "/api/products/missing", admin, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", errorCode(t, rec))
}

func TestProducts_CreateRejectsDuplicateAndInvalid(t *testing.T) {
	ts := newTestServer(t)
	admin, _ := ts.signup("admin@example.com", auth.RoleEmployee)
	ts.createProduct(admin, "lamp", "42.00", 5)

	rec := ts.do(http.MethodPost, "/api/products", admin, CreateProductRequest{
		ID: "lamp", Name: "Lamp", Price: decimal.NewFromInt(1),
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(http.MethodPost, "/api/products", admin, `{"name": "Rug", "price": "-1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodPost, "/api/products", admin, `{"name": "Rug", "price": "10", "category": "Garden"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProducts_CustomerCannotCreate(t *testing.T) {
	ts := newTestServer(t)
	token, _ := ts.signup("carla@example.com", auth.RoleCustomer)

	rec := ts.do(http.MethodPost, "/api/products", token, CreateProductRequest{Name: "Lamp", Price: decimal.NewFromInt(1)})

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "FORBIDDEN", errorCode(t, rec))
}

func TestProducts_Import(t *testing.T) {
	ts := newTestServer(t)
	admin, _ := ts.signup("admin@example.com", auth.RoleEmployee)

	rec := ts.do(http.MethodPost, "/api/products/import", admin, demoCatalogJSON)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Imported int `json:"imported"`
	}
	decode(t, rec, &resp)
	assert.Equal(t, 7, resp.Imported)
	assert.Equal(t, int64(40), ts.stockOf("headphones"))

	rec = ts.do(http.MethodPost, "/api/products/import", admin, `{"products": []}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStock_AdjustKeepsFloor(t *testing.T) {
	// GIVEN: A product with stock 3
	ts := newTestServer(t)
	admin, _ := ts.signup("admin@example.com", auth.RoleEmployee)
	ts.createProduct(admin, "lamp", "42.00", 3)

	// WHEN: Removing 5
	rec := ts.do(http.MethodPost, "/api/products/lamp/stock", admin, AdjustStockRequest{Delta: -5})

	// THEN: Rejected with details, stock unchanged
	require.Equal(t, http.StatusConflict, rec.Code)
	var resp struct {
		Code    string         `json:"code"`
		Details map[string]any `json:"details"`
	}
	decode(t, rec, &resp)
	assert.Equal(t, "INSUFFICIENT_STOCK", resp.Code)
	assert.Equal(t, float64(3), resp.Details["available"])
	assert.Equal(t, int64(3), ts.stockOf("lamp"))

	// AND: +5 then -5 round trips
	rec = ts.do(http.MethodPost, "/api/products/lamp/stock", admin, AdjustStockRequest{Delta: 5})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = ts.do(http.MethodPost, "/api/products/lamp/stock", admin, AdjustStockRequest{Delta: -5})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(3), ts.stockOf("lamp"))
}

func TestStock_ZeroDeltaRejected(t *testing.T) {
	ts := newTestServer(t)
	admin, _ := ts.signup("admin@example.com", auth.RoleEmployee)
	ts.createProduct(admin, "lamp", "42.00", 3)

	rec := ts.do(http.MethodPost, "/api/products/lamp/stock", admin, `{"delta": 0}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// SALES / INVOICES
// =============================================================================

func TestSale_DebitsStockAndRecordsInvoice(t *testing.T) {
	// GIVEN: Product A at 10.00 with stock 5
	ts := newTestServer(t)
	admin, _ := ts.signup("admin@example.com", auth.RoleEmployee)
	customer, customerID := ts.signup("carla@example.com", auth.RoleCustomer)
	ts.createProduct(admin, "a", "10.00", 5)

	// WHEN: The customer buys 3
	rec := ts.do(http.MethodPost, "/api/sales", customer, SaleRequest{
		Products: []SaleLineRequest{{ProductID: "a", Quantity: 3}},
	})

	// THEN: Invoice of 30.00 owned by the customer, stock 2
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var inv InvoiceDTO
	decode(t, rec, &inv)
	assert.Equal(t, customerID, inv.UserID)
	assert.True(t, decimal.NewFromInt(30).Equal(inv.TotalAmount))
	assert.Equal(t, int64(2), ts.stockOf("a"))

	// AND: The owner can read it, another customer can not
	rec = ts.do(http.MethodGet, "/api/invoices/"+inv.ID, customer, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	other, _ := ts.signup("bruno@example.com", auth.RoleCustomer)
	rec = ts.do(http.MethodGet, "/api/invoices/"+inv.ID, other, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = ts.do(http.MethodGet, "/api/invoices/user/"+customerID, other, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSale_InsufficientStockLeavesEverythingUntouched(t *testing.T) {
	// GIVEN: A at stock 5, B at stock 1
	ts := newTestServer(t)
	admin, _ := ts.signup("admin@example.com", auth.RoleEmployee)
	customer, customerID := ts.signup("carla@example.com", auth.RoleCustomer)
	ts.createProduct(admin, "a", "10.00", 5)
	ts.createProduct(admin, "b", "4.00", 1)

	// WHEN: Buying 2 A and 2 B
	rec := ts.do(http.MethodPost, "/api/sales", customer, SaleRequest{
		Products: []SaleLineRequest{{ProductID: "a", Quantity: 2}, {ProductID: "b", Quantity: 2}},
	})

	// THEN: 409, no stock moved, no invoice
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "INSUFFICIENT_STOCK", errorCode(t, rec))
	assert.Equal(t, int64(5), ts.stockOf("a"))
	assert.Equal(t, int64(1), ts.stockOf("b"))

	rec = ts.do(http.MethodGet, "/api/invoices/user/"+customerID, customer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestSale_Validation(t *testing.T) {
	ts := newTestServer(t)
	customer, _ := ts.signup("carla@example.com", auth.RoleCustomer)

	rec := ts.do(http.MethodPost, "/api/sales", customer, `{"products": []}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodPost, "/api/sales", customer, `{"products": [{"product_id": "a", "quantity": 0}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodPost, "/api/sales", customer, `{"products": [{"product_id": "ghost", "quantity": 1}]}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSale_OnBehalfOfAnotherUser(t *testing.T) {
	ts := newTestServer(t)
	admin, _ := ts.signup("admin@example.com", auth.RoleEmployee)
	customer, customerID := ts.signup("carla@example.com", auth.RoleCustomer)
	_, otherID := ts.signup("bruno@example.com", auth.RoleCustomer)
	ts.createProduct(admin, "a", "10.00", 5)

	// Employee sells for the customer
	rec := ts.do(http.MethodPost, "/api/sales", admin, SaleRequest{
		UserID:   customerID,
		Products: []SaleLineRequest{{ProductID: "a", Quantity: 1}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var inv InvoiceDTO
	decode(t, rec, &inv)
	assert.Equal(t, customerID, inv.UserID)

	// Customer can not sell for someone else
	rec = ts.do(http.MethodPost, "/api/sales", customer, SaleRequest{
		UserID:   otherID,
		Products: []SaleLineRequest{{ProductID: "a", Quantity: 1}},
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestInvoices_PeriodQueryAndCorrection(t *testing.T) {
	ts := newTestServer(t)
	admin, _ := ts.signup("admin@example.com", auth.RoleEmployee)
	ts.createProduct(admin, "a", "10.00", 5)

	rec := ts.do(http.MethodPost, "/api/sales", admin, SaleRequest{Products: []SaleLineRequest{{ProductID: "a", Quantity: 2}}})
	require.Equal(t, http.StatusCreated, rec.Code)
	var inv InvoiceDTO
	decode(t, rec, &inv)

	p := currentPeriod()
	rec = ts.do(http.MethodGet, "/api/invoices/period/"+strconv.Itoa(p.Year)+"/"+strconv.Itoa(int(p.Month)), admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var invoices []InvoiceDTO
	decode(t, rec, &invoices)
	require.Len(t, invoices, 1)

	rec = ts.do(http.MethodGet, "/api/invoices/period/2025/13", admin, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_PERIOD", errorCode(t, rec))

	// Correction recomputes the total and leaves stock alone
	rec = ts.do(http.MethodPut, "/api/invoices/"+inv.ID, admin, CorrectInvoiceRequest{
		Products: []LineItemRequest{{ProductID: "a", Quantity: 1, UnitPrice: decimal.RequireFromString("9.50")}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &inv)
	assert.True(t, decimal.RequireFromString("9.50").Equal(inv.TotalAmount))
	assert.Equal(t, int64(3), ts.stockOf("a"))

	rec = ts.do(http.MethodDelete, "/api/invoices/"+inv.ID, admin, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = ts.do(http.MethodGet, "/api/invoices/"+inv.ID, admin, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// SALES HISTORY / REPORT
// =============================================================================

func TestHistory_AggregateTwiceLatestWins(t *testing.T) {
	// GIVEN: One sale this month
	ts := newTestServer(t)
	admin, _ := ts.signup("admin@example.com", auth.RoleEmployee)
	ts.createProduct(admin, "a", "10.00", 5)
	rec := ts.do(http.MethodPost, "/api/sales", admin, SaleRequest{Products: []SaleLineRequest{{ProductID: "a", Quantity: 3}}})
	require.Equal(t, http.StatusCreated, rec.Code)

	p := currentPeriod()
	body := AggregateRequest{Month: int(p.Month), Year: p.Year}

	// WHEN: Aggregating the month twice
	rec = ts.do(http.MethodPost, "/api/sales/history", admin, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var first SnapshotDTO
	decode(t, rec, &first)
	assert.True(t, decimal.NewFromInt(30).Equal(first.TotalSalesAmount))
	assert.Equal(t, int64(3), first.TotalProductsSold)
	assert.Equal(t, 1, first.TotalInvoices)

	rec = ts.do(http.MethodPost, "/api/sales/history", admin, body)
	require.Equal(t, http.StatusCreated, rec.Code)
	var second SnapshotDTO
	decode(t, rec, &second)

	// THEN: Both are kept, the year view holds the second
	rec = ts.do(http.MethodGet, "/api/sales/history", admin, nil)
	var all []SnapshotDTO
	decode(t, rec, &all)
	assert.Len(t, all, 2)

	rec = ts.do(http.MethodGet, "/api/sales/history/"+strconv.Itoa(p.Year), admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var year []SnapshotDTO
	decode(t, rec, &year)
	require.Len(t, year, 1)
	assert.Equal(t, second.ID, year[0].ID)
}

func TestHistory_PeriodErrors(t *testing.T) {
	ts := newTestServer(t)
	admin, _ := ts.signup("admin@example.com", auth.RoleEmployee)

	rec := ts.do(http.MethodPost, "/api/sales/history", admin, AggregateRequest{Month: 13, Year: 2025})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_PERIOD", errorCode(t, rec))

	rec = ts.do(http.MethodPost, "/api/sales/history", admin, AggregateRequest{Month: 1, Year: 2001})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "NO_INVOICES_FOUND", errorCode(t, rec))

	rec = ts.do(http.MethodGet, "/api/sales/history/abc", admin, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSnapshots_AmendWinsReconstruction(t *testing.T) {
	ts := newTestServer(t)
	admin, _ := ts.signup("admin@example.com", auth.RoleEmployee)
	ts.createProduct(admin, "a", "10.00", 5)
	ts.do(http.MethodPost, "/api/sales", admin, SaleRequest{Products: []SaleLineRequest{{ProductID: "a", Quantity: 1}}})

	p := currentPeriod()
	rec := ts.do(http.MethodPost, "/api/sales/history", admin, AggregateRequest{Month: int(p.Month), Year: p.Year})
	require.Equal(t, http.StatusCreated, rec.Code)
	var snap SnapshotDTO
	decode(t, rec, &snap)

	rec = ts.do(http.MethodPatch, "/api/sales/snapshots/"+snap.ID, admin, `{"total_sales_amount": "12.00"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var amended SnapshotDTO
	decode(t, rec, &amended)
	assert.Equal(t, snap.ID, amended.AmendsID)

	rec = ts.do(http.MethodGet, "/api/sales/history/"+strconv.Itoa(p.Year), admin, nil)
	var year []SnapshotDTO
	decode(t, rec, &year)
	require.Len(t, year, 1)
	assert.Equal(t, amended.ID, year[0].ID)
	assert.True(t, decimal.NewFromInt(12).Equal(year[0].TotalSalesAmount))

	// The source is still readable
	rec = ts.do(http.MethodGet, "/api/sales/snapshots/"+snap.ID, admin, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReport_GeneratesNarrative(t *testing.T) {
	ts := newTestServer(t)
	admin, _ := ts.signup("admin@example.com", auth.RoleEmployee)
	ts.createProduct(admin, "a", "10.00", 5)
	ts.do(http.MethodPost, "/api/sales", admin, SaleRequest{Products: []SaleLineRequest{{ProductID: "a", Quantity: 2}}})

	rec := ts.do(http.MethodPost, "/api/sales/report", admin, nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var rep ReportDTO
	decode(t, rec, &rep)
	assert.Equal(t, "Sales are up.", rep.Narrative)
	assert.True(t, decimal.NewFromInt(20).Equal(rep.Snapshot.TotalSalesAmount))
	assert.Contains(t, ts.gen.prompts[0], "Product a")
}

func TestReport_Failures(t *testing.T) {
	ts := newTestServer(t)
	admin, _ := ts.signup("admin@example.com", auth.RoleEmployee)

	// No invoices this month
	rec := ts.do(http.MethodPost, "/api/sales/report", admin, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	// Generator down
	ts.createProduct(admin, "a", "10.00", 5)
	ts.do(http.MethodPost, "/api/sales", admin, SaleRequest{Products: []SaleLineRequest{{ProductID: "a", Quantity: 1}}})
	ts.gen.err = errors.New("quota exceeded")
	rec = ts.do(http.MethodPost, "/api/sales/report", admin, nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "REPORT_GENERATION_FAILED", errorCode(t, rec))

	// Not configured
	ts.handler.Reports = nil
	rec = ts.do(http.MethodPost, "/api/sales/report", admin, nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

// =============================================================================
// USERS / METRICS
// =============================================================================

func TestUsers_UpdateRoleTakesEffect(t *testing.T) {
	// GIVEN: A customer
	ts := newTestServer(t)
	admin, _ := ts.signup("admin@example.com", auth.RoleEmployee)
	customer, customerID := ts.signup("carla@example.com", auth.RoleCustomer)

	// WHEN: Promoted to employee
	rec := ts.do(http.MethodPatch, "/api/users/"+customerID, admin, UpdateUserRequest{Role: "employee"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// THEN: The existing token now reaches back office routes
	rec = ts.do(http.MethodGet, "/api/users", customer, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// AND: A deleted user's token stops working
	rec = ts.do(http.MethodDelete, "/api/users/"+customerID, admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = ts.do(http.MethodGet, "/api/products", customer, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	admin, _ := ts.signup("admin@example.com", auth.RoleEmployee)
	ts.createProduct(admin, "a", "10.00", 5)
	ts.do(http.MethodPost, "/api/sales", admin, SaleRequest{Products: []SaleLineRequest{{ProductID: "a", Quantity: 2}}})

	rec := ts.do(http.MethodGet, "/metrics", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `backoffice_sales_total{outcome="ok"} 1`)
	assert.Contains(t, body, "backoffice_units_sold_total 2")
	assert.Contains(t, body, `route="/api/sales"`)
}
