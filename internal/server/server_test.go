package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/fuelledger/internal/clock"
	"github.com/smallbiznis/fuelledger/internal/config"
	customerdomain "github.com/smallbiznis/fuelledger/internal/customer/domain"
	customerrepo "github.com/smallbiznis/fuelledger/internal/customer/repository"
	customersvc "github.com/smallbiznis/fuelledger/internal/customer/service"
	invoicedomain "github.com/smallbiznis/fuelledger/internal/invoice/domain"
	invoicerepo "github.com/smallbiznis/fuelledger/internal/invoice/repository"
	invoicesvc "github.com/smallbiznis/fuelledger/internal/invoice/service"
	ledgerdomain "github.com/smallbiznis/fuelledger/internal/ledger/domain"
	ledgerrepo "github.com/smallbiznis/fuelledger/internal/ledger/repository"
	ledgersvc "github.com/smallbiznis/fuelledger/internal/ledger/service"
	paymentdomain "github.com/smallbiznis/fuelledger/internal/payment/domain"
	paymentrepo "github.com/smallbiznis/fuelledger/internal/payment/repository"
	paymentsvc "github.com/smallbiznis/fuelledger/internal/payment/service"
	saledomain "github.com/smallbiznis/fuelledger/internal/sale/domain"
	salerepo "github.com/smallbiznis/fuelledger/internal/sale/repository"
	salesvc "github.com/smallbiznis/fuelledger/internal/sale/service"
	shiftdomain "github.com/smallbiznis/fuelledger/internal/shift/domain"
	shiftrepo "github.com/smallbiznis/fuelledger/internal/shift/repository"
	shiftsvc "github.com/smallbiznis/fuelledger/internal/shift/service"
	"github.com/smallbiznis/fuelledger/internal/store"
	"github.com/smallbiznis/fuelledger/internal/store/storetest"
	"github.com/smallbiznis/fuelledger/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type envelope struct {
	Data     json.RawMessage      `json:"data"`
	PageInfo *pagination.PageInfo `json:"page_info"`
	Error    *errorPayload        `json:"error"`
}

type testServer struct {
	engine  *gin.Engine
	backend *storetest.FaultBackend
}

func newTestServer(t *testing.T) testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	backend := storetest.Wrap(storetest.NewSQLite(t,
		customerdomain.Schema(),
		shiftdomain.Schema(),
		saledomain.Schema(),
		invoicedomain.Schema(),
		paymentdomain.Schema(),
		ledgerdomain.Schema(),
	))
	node, err := snowflake.NewNode(9)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 7, 1, 8, 0, 0, 0, time.UTC))
	log := zap.NewNop()
	recon := config.NewStaticReconciliationConfigHolder(config.DefaultReconciliationConfig())

	customers := customersvc.New(customersvc.Params{Log: log, GenID: node, Repo: customerrepo.New(backend, time.Second), Clock: clk})
	sales := salesvc.New(salesvc.Params{Log: log, GenID: node, Repo: salerepo.New(backend, time.Second), Clock: clk})
	ledger := ledgersvc.NewService(ledgersvc.Params{Log: log, GenID: node, Repo: ledgerrepo.New(backend, time.Second), Clock: clk})
	shifts := shiftsvc.New(shiftsvc.Params{
		Log:         log,
		GenID:       node,
		Repo:        shiftrepo.New(backend, time.Second),
		Clock:       clk,
		CashSales:   salesvc.NewCashSalesSource(sales),
		ReconConfig: recon,
	})
	invoices := invoicesvc.NewService(invoicesvc.ServiceParam{
		Log:         log,
		GenID:       node,
		Repo:        invoicerepo.New(backend, time.Second),
		Customers:   customers,
		Sales:       sales,
		LedgerSvc:   ledger,
		Clock:       clk,
		ReconConfig: recon,
	})
	payments := paymentsvc.NewService(paymentsvc.Params{
		Log:       log,
		GenID:     node,
		Repo:      paymentrepo.New(backend, time.Second),
		Customers: customers,
		Invoices:  invoices,
		LedgerSvc: ledger,
		Clock:     clk,
	})

	engine := gin.New()
	engine.Use(ErrorHandlingMiddleware())
	NewServer(ServerParams{
		Gin:         engine,
		Backend:     backend,
		ShiftSvc:    shifts,
		SaleSvc:     sales,
		InvoiceSvc:  invoices,
		PaymentSvc:  payments,
		CustomerSvc: customers,
		LedgerSvc:   ledger,
	})
	return testServer{engine: engine, backend: backend}
}

func (s testServer) do(t *testing.T, method, path string, body any) (int, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec.Code, env
}

func (s testServer) createCustomer(t *testing.T, limit string) customerdomain.Customer {
	t.Helper()
	code, env := s.do(t, http.MethodPost, "/v1/customers", map[string]any{
		"name":          "Harbor Logistics",
		"credit_limit":  limit,
		"payment_terms": "Net 30",
	})
	require.Equal(t, http.StatusCreated, code)
	var customer customerdomain.Customer
	require.NoError(t, json.Unmarshal(env.Data, &customer))
	return customer
}

func TestCustomerRoutes(t *testing.T) {
	srv := newTestServer(t)
	customer := srv.createCustomer(t, "500")
	assert.Equal(t, customerdomain.StatusActive, customer.Status)

	code, env := srv.do(t, http.MethodGet, "/v1/customers/"+customer.ID.String(), nil)
	require.Equal(t, http.StatusOK, code)
	var fetched customerdomain.Customer
	require.NoError(t, json.Unmarshal(env.Data, &fetched))
	assert.Equal(t, customer.ID, fetched.ID)
	assert.True(t, decimal.NewFromInt(500).Equal(fetched.CreditLimit))

	code, env = srv.do(t, http.MethodPatch, "/v1/customers/"+customer.ID.String(), map[string]any{
		"status": "suspended",
	})
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(env.Data, &fetched))
	assert.Equal(t, customerdomain.StatusSuspended, fetched.Status)

	code, env = srv.do(t, http.MethodGet, "/v1/customers/987654321", nil)
	assert.Equal(t, http.StatusNotFound, code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "not_found", env.Error.Type)
	assert.Equal(t, "customer_not_found", env.Error.Code)

	code, env = srv.do(t, http.MethodGet, "/v1/customers/abc", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "validation_error", env.Error.Type)
}

func TestListCustomersWalksPages(t *testing.T) {
	srv := newTestServer(t)
	created := []customerdomain.Customer{
		srv.createCustomer(t, "100"),
		srv.createCustomer(t, "200"),
		srv.createCustomer(t, "300"),
	}

	code, env := srv.do(t, http.MethodGet, "/v1/customers?page_size=2", nil)
	require.Equal(t, http.StatusOK, code)
	var page []customerdomain.Customer
	require.NoError(t, json.Unmarshal(env.Data, &page))
	require.Len(t, page, 2)
	assert.Equal(t, created[2].ID, page[0].ID)
	assert.Equal(t, created[1].ID, page[1].ID)
	require.NotNil(t, env.PageInfo)
	require.True(t, env.PageInfo.HasMore)

	code, env = srv.do(t, http.MethodGet, "/v1/customers?page_size=2&page_token="+url.QueryEscape(env.PageInfo.NextPageToken), nil)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(env.Data, &page))
	require.Len(t, page, 1)
	assert.Equal(t, created[0].ID, page[0].ID)
	require.NotNil(t, env.PageInfo)
	assert.False(t, env.PageInfo.HasMore)
	assert.Empty(t, env.PageInfo.NextPageToken)

	code, env = srv.do(t, http.MethodGet, "/v1/customers?page_token=garbage!", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "invalid_page_token", env.Error.Code)

	code, env = srv.do(t, http.MethodGet, "/v1/customers?page_size=abc", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "invalid_page_size", env.Error.Code)

	code, env = srv.do(t, http.MethodGet, "/v1/customers?page_size=1000", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "invalid_page_size", env.Error.Code)
}

func TestCreateCustomerValidation(t *testing.T) {
	srv := newTestServer(t)

	code, env := srv.do(t, http.MethodPost, "/v1/customers", map[string]any{
		"name":         "Harbor Logistics",
		"credit_limit": "-1",
	})
	assert.Equal(t, http.StatusBadRequest, code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "invalid_credit_limit", env.Error.Code)
	require.Len(t, env.Error.Errors, 1)
	assert.Equal(t, "credit_limit", env.Error.Errors[0].Field)
	assert.Equal(t, 0, srv.backend.Calls(customerdomain.TableName, storetest.OpInsert))

	req := httptest.NewRequest(http.MethodPost, "/v1/customers", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	srv.engine.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestShiftLifecycleRoutes(t *testing.T) {
	srv := newTestServer(t)
	start := map[string]any{
		"employee_id":  "11",
		"station_id":   "21",
		"dispenser_id": "31",
		"initial_cash": "100",
		"fuel_readings": []map[string]any{
			{"fuel_type_id": "41", "initial_reading": "1000"},
		},
	}

	code, env := srv.do(t, http.MethodPost, "/v1/shifts", start)
	require.Equal(t, http.StatusCreated, code)
	var shift shiftdomain.Shift
	require.NoError(t, json.Unmarshal(env.Data, &shift))
	assert.Equal(t, shiftdomain.StatusActive, shift.Status)

	code, env = srv.do(t, http.MethodPost, "/v1/shifts", start)
	assert.Equal(t, http.StatusConflict, code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "active_shift_exists", env.Error.Code)

	code, env = srv.do(t, http.MethodGet, "/v1/employees/11/shift", nil)
	require.Equal(t, http.StatusOK, code)
	var current shiftdomain.Shift
	require.NoError(t, json.Unmarshal(env.Data, &current))
	assert.Equal(t, shift.ID, current.ID)

	code, env = srv.do(t, http.MethodPost, "/v1/shifts/"+shift.ID.String()+"/end", map[string]any{
		"final_readings": map[string]string{"41": "1250"},
		"cash_collected": "100",
	})
	require.Equal(t, http.StatusOK, code)
	var ended shiftdomain.EndShiftResult
	require.NoError(t, json.Unmarshal(env.Data, &ended))
	assert.Equal(t, shiftdomain.StatusCompleted, ended.Shift.Status)
	require.Len(t, ended.Report.Fuel, 1)
	require.NotNil(t, ended.Report.Fuel[0].Dispensed)
	assert.True(t, decimal.NewFromInt(250).Equal(*ended.Report.Fuel[0].Dispensed))

	code, env = srv.do(t, http.MethodPost, "/v1/shifts/"+shift.ID.String()+"/end", map[string]any{
		"cash_collected": "100",
	})
	assert.Equal(t, http.StatusConflict, code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "invalid_state", env.Error.Type)

	code, _ = srv.do(t, http.MethodGet, "/v1/employees/11/shift", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, env = srv.do(t, http.MethodGet, "/v1/stations/21/shifts?from=2026-07-01&to=2026-07-01", nil)
	require.Equal(t, http.StatusOK, code)
	var listed []shiftdomain.Shift
	require.NoError(t, json.Unmarshal(env.Data, &listed))
	assert.Len(t, listed, 1)

	code, _ = srv.do(t, http.MethodGet, "/v1/stations/21/shifts?from=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestSaleRoutes(t *testing.T) {
	srv := newTestServer(t)
	sale := map[string]any{
		"station_id":      "21",
		"dispenser_id":    "31",
		"employee_id":     "11",
		"fuel_type_id":    "41",
		"quantity_liters": "10",
		"price_per_liter": "1.85",
		"payment_method":  "cash",
	}

	code, env := srv.do(t, http.MethodPost, "/v1/sales", sale)
	require.Equal(t, http.StatusCreated, code)
	var recorded saledomain.Sale
	require.NoError(t, json.Unmarshal(env.Data, &recorded))
	assert.True(t, decimal.RequireFromString("18.5").Equal(recorded.TotalAmount))

	code, env = srv.do(t, http.MethodGet, "/v1/stations/21/cash-sales?from=2026-07-01&to=2026-07-01", nil)
	require.Equal(t, http.StatusOK, code)
	var total struct {
		Total decimal.Decimal `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &total))
	assert.True(t, decimal.RequireFromString("18.5").Equal(total.Total))

	code, _ = srv.do(t, http.MethodGet, "/v1/stations/21/cash-sales", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	sale["quantity_liters"] = "0"
	code, env = srv.do(t, http.MethodPost, "/v1/sales", sale)
	assert.Equal(t, http.StatusBadRequest, code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "invalid_quantity", env.Error.Code)
}

func TestInvoiceAndOverpaymentRoutes(t *testing.T) {
	srv := newTestServer(t)
	customer := srv.createCustomer(t, "1000")

	code, env := srv.do(t, http.MethodPost, "/v1/invoices", map[string]any{
		"customer_id": customer.ID.String(),
		"issue_date":  "2026-07-01",
		"items": []map[string]any{
			{"description": "Diesel", "quantity": "40", "unit_price": "2.5"},
		},
	})
	require.Equal(t, http.StatusCreated, code)
	var created invoicedomain.CreateInvoiceResult
	require.NoError(t, json.Unmarshal(env.Data, &created))
	invoice := created.Invoice
	assert.True(t, decimal.NewFromInt(100).Equal(invoice.TotalAmount))
	assert.Equal(t, invoicedomain.InvoiceStatusPending, invoice.Status)

	code, env = srv.do(t, http.MethodPost, "/v1/payments", map[string]any{
		"customer_id":    customer.ID.String(),
		"invoice_id":     invoice.ID.String(),
		"amount":         "130",
		"payment_method": "bank_transfer",
	})
	require.Equal(t, http.StatusUnprocessableEntity, code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "overpayment", env.Error.Type)
	assert.Equal(t, "30.00", env.Error.Details["excess"])
	var result paymentdomain.RecordPaymentResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.True(t, result.PaymentRecorded)

	code, env = srv.do(t, http.MethodGet, "/v1/invoices/"+invoice.ID.String(), nil)
	require.Equal(t, http.StatusOK, code)
	var fetched invoicedomain.Invoice
	require.NoError(t, json.Unmarshal(env.Data, &fetched))
	assert.True(t, fetched.PaidAmount.IsZero())

	code, env = srv.do(t, http.MethodPost, "/v1/payments", map[string]any{
		"customer_id":    customer.ID.String(),
		"invoice_id":     invoice.ID.String(),
		"amount":         "100",
		"payment_method": "cash",
	})
	require.Equal(t, http.StatusCreated, code)
	require.NoError(t, json.Unmarshal(env.Data, &result))
	require.NotNil(t, result.Invoice)
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, result.Invoice.Status)

	code, env = srv.do(t, http.MethodGet, "/v1/customers/"+customer.ID.String()+"/payments", nil)
	require.Equal(t, http.StatusOK, code)
	var payments []paymentdomain.Payment
	require.NoError(t, json.Unmarshal(env.Data, &payments))
	assert.Len(t, payments, 2)

	code, env = srv.do(t, http.MethodGet, "/v1/invoices/"+invoice.ID.String()+"/items", nil)
	require.Equal(t, http.StatusOK, code)
	var items []invoicedomain.InvoiceItemWithContext
	require.NoError(t, json.Unmarshal(env.Data, &items))
	require.Len(t, items, 1)
	assert.Nil(t, items[0].Sale)
}

func TestPaymentPartialFailureRoute(t *testing.T) {
	srv := newTestServer(t)
	customer := srv.createCustomer(t, "1000")
	srv.backend.Fail(customerdomain.TableName, storetest.OpUpdate, store.ErrTimeout)

	code, env := srv.do(t, http.MethodPost, "/v1/payments", map[string]any{
		"customer_id":    customer.ID.String(),
		"amount":         "25",
		"payment_method": "cash",
	})
	require.Equal(t, http.StatusCreated, code)
	var result paymentdomain.RecordPaymentResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.True(t, result.PaymentRecorded)
	assert.True(t, result.BalanceUpdateFailed)
}

func TestStoreErrorsMapToGatewayStatuses(t *testing.T) {
	srv := newTestServer(t)
	customer := srv.createCustomer(t, "1000")

	srv.backend.Fail(customerdomain.TableName, storetest.OpGet, store.ErrTimeout)
	code, env := srv.do(t, http.MethodGet, "/v1/customers/"+customer.ID.String(), nil)
	assert.Equal(t, http.StatusGatewayTimeout, code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "store_timeout", env.Error.Type)

	srv.backend.Fail(customerdomain.TableName, storetest.OpGet, store.ErrUnavailable)
	code, env = srv.do(t, http.MethodGet, "/v1/customers/"+customer.ID.String(), nil)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "store_unavailable", env.Error.Type)
}

func TestHealthAndFallback(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.engine.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)

	code, env := srv.do(t, http.MethodGet, "/v1/nowhere", nil)
	assert.Equal(t, http.StatusNotFound, code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "not_found", env.Error.Type)
}
