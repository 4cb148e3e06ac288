package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/fuelledger/internal/clock"
	"github.com/smallbiznis/fuelledger/internal/config"
	customerdomain "github.com/smallbiznis/fuelledger/internal/customer/domain"
	customerrepo "github.com/smallbiznis/fuelledger/internal/customer/repository"
	customersvc "github.com/smallbiznis/fuelledger/internal/customer/service"
	"github.com/smallbiznis/fuelledger/internal/errs"
	invoicedomain "github.com/smallbiznis/fuelledger/internal/invoice/domain"
	"github.com/smallbiznis/fuelledger/internal/invoice/repository"
	ledgerdomain "github.com/smallbiznis/fuelledger/internal/ledger/domain"
	ledgerrepo "github.com/smallbiznis/fuelledger/internal/ledger/repository"
	ledgersvc "github.com/smallbiznis/fuelledger/internal/ledger/service"
	saledomain "github.com/smallbiznis/fuelledger/internal/sale/domain"
	salerepo "github.com/smallbiznis/fuelledger/internal/sale/repository"
	salesvc "github.com/smallbiznis/fuelledger/internal/sale/service"
	"github.com/smallbiznis/fuelledger/internal/store"
	"github.com/smallbiznis/fuelledger/internal/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	svc       *Service
	backend   *storetest.FaultBackend
	clock     *clock.FakeClock
	customers customerdomain.Service
	sales     saledomain.Service
	ledger    ledgerdomain.Service
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	backend := storetest.Wrap(storetest.NewSQLite(t,
		invoicedomain.Schema(),
		customerdomain.Schema(),
		saledomain.Schema(),
		ledgerdomain.Schema(),
	))
	node, err := snowflake.NewNode(5)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC))
	log := zap.NewNop()

	customers := customersvc.New(customersvc.Params{
		Log:   log,
		GenID: node,
		Repo:  customerrepo.New(backend, time.Second),
		Clock: clk,
	})
	sales := salesvc.New(salesvc.Params{
		Log:   log,
		GenID: node,
		Repo:  salerepo.New(backend, time.Second),
		Clock: clk,
	})
	ledger := ledgersvc.NewService(ledgersvc.Params{
		Log:   log,
		GenID: node,
		Repo:  ledgerrepo.New(backend, time.Second),
		Clock: clk,
	})

	svc := NewService(ServiceParam{
		Log:         log,
		GenID:       node,
		Repo:        repository.New(backend, time.Second),
		Customers:   customers,
		Sales:       sales,
		LedgerSvc:   ledger,
		Clock:       clk,
		ReconConfig: config.NewStaticReconciliationConfigHolder(config.DefaultReconciliationConfig()),
	}).(*Service)

	return fixture{svc: svc, backend: backend, clock: clk, customers: customers, sales: sales, ledger: ledger}
}

func (f fixture) customer(t *testing.T, limit int64) customerdomain.Customer {
	t.Helper()
	c, err := f.customers.Create(context.Background(), customerdomain.CreateCustomerRequest{
		Name:        "Harbor Logistics",
		CreditLimit: decimal.NewFromInt(limit),
	})
	require.NoError(t, err)
	return c
}

func (f fixture) sale(t *testing.T, qty, price string) saledomain.Sale {
	t.Helper()
	vehicle := snowflake.ID(900)
	s, err := f.sales.RecordSale(context.Background(), saledomain.RecordSaleRequest{
		StationID:      1,
		DispenserID:    2,
		EmployeeID:     3,
		VehicleID:      &vehicle,
		FuelTypeID:     11,
		QuantityLiters: decimal.RequireFromString(qty),
		PricePerLiter:  decimal.RequireFromString(price),
		PaymentMethod:  saledomain.PaymentMethodCreditAccount,
	})
	require.NoError(t, err)
	return s
}

func item(qty, price string) invoicedomain.InvoiceItemInput {
	return invoicedomain.InvoiceItemInput{
		Description: "Diesel",
		Quantity:    decimal.RequireFromString(qty),
		UnitPrice:   decimal.RequireFromString(price),
	}
}

func (f fixture) invoiceFor(t *testing.T, customerID snowflake.ID, items ...invoicedomain.InvoiceItemInput) invoicedomain.Invoice {
	t.Helper()
	res, err := f.svc.CreateInvoice(context.Background(), invoicedomain.CreateInvoiceRequest{
		CustomerID: customerID,
		Items:      items,
	})
	require.NoError(t, err)
	return res.Invoice
}

func TestCreateInvoiceComputesTotal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.customer(t, 1000)

	bogus := decimal.NewFromInt(1)
	first := item("10", "2.5")
	first.TotalPrice = &bogus
	res, err := f.svc.CreateInvoice(ctx, invoicedomain.CreateInvoiceRequest{
		CustomerID:  c.ID,
		Items:       []invoicedomain.InvoiceItemInput{first, item("4", "12.25")},
		TotalAmount: &bogus,
		Notes:       " monthly ",
	})
	require.NoError(t, err)

	inv := res.Invoice
	assert.True(t, inv.TotalAmount.Equal(decimal.NewFromInt(74)))
	assert.True(t, inv.Items[0].TotalPrice.Equal(decimal.NewFromInt(25)))
	assert.True(t, inv.PaidAmount.IsZero())
	assert.Equal(t, invoicedomain.InvoiceStatusPending, inv.Status)
	assert.Equal(t, "monthly", inv.Notes)
	assert.Equal(t, "INV-20260401-"+inv.ID.String(), inv.InvoiceNumber)
	assert.True(t, inv.DueDate.Equal(inv.IssueDate.AddDate(0, 0, 30)))
	assert.False(t, res.CreditLimitExceeded)
	assert.False(t, res.BalanceUpdateFailed)

	stored, err := f.svc.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.True(t, stored.TotalAmount.Equal(decimal.NewFromInt(74)))
	require.Len(t, stored.Items, 2)

	customer, err := f.customers.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, customer.CurrentBalance.Equal(decimal.NewFromInt(74)))

	entries, err := f.ledger.ListEntries(ctx, ledgerdomain.ListEntriesRequest{CustomerID: c.ID})
	require.NoError(t, err)
	require.Len(t, entries.Entries, 1)
	assert.Equal(t, ledgerdomain.SourceTypeInvoice, entries.Entries[0].SourceType)
	assert.Equal(t, inv.ID, entries.Entries[0].SourceID)
}

func TestCreateInvoiceValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.customer(t, 1000)
	issue := f.clock.Now()

	cases := []struct {
		name string
		req  invoicedomain.CreateInvoiceRequest
		want error
	}{
		{"no items", invoicedomain.CreateInvoiceRequest{CustomerID: c.ID}, invoicedomain.ErrEmptyItems},
		{"zero quantity", invoicedomain.CreateInvoiceRequest{CustomerID: c.ID, Items: []invoicedomain.InvoiceItemInput{item("0", "1")}}, invoicedomain.ErrInvalidQuantity},
		{"negative price", invoicedomain.CreateInvoiceRequest{CustomerID: c.ID, Items: []invoicedomain.InvoiceItemInput{item("1", "-1")}}, invoicedomain.ErrInvalidUnitPrice},
		{"due before issue", invoicedomain.CreateInvoiceRequest{CustomerID: c.ID, IssueDate: issue, DueDate: issue, Items: []invoicedomain.InvoiceItemInput{item("1", "1")}}, invoicedomain.ErrInvalidDueDate},
		{"no customer", invoicedomain.CreateInvoiceRequest{Items: []invoicedomain.InvoiceItemInput{item("1", "1")}}, invoicedomain.ErrInvalidCustomer},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.CreateInvoice(ctx, tc.req)
			assert.ErrorIs(t, err, tc.want)
			assert.ErrorIs(t, err, errs.ErrValidation)
		})
	}
	assert.Equal(t, 0, f.backend.Calls(invoicedomain.TableName, storetest.OpInsert))
}

func TestCreateInvoiceCustomerChecks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateInvoice(ctx, invoicedomain.CreateInvoiceRequest{CustomerID: 404, Items: []invoicedomain.InvoiceItemInput{item("1", "1")}})
	assert.ErrorIs(t, err, customerdomain.ErrNotFound)

	c := f.customer(t, 100)
	status := customerdomain.StatusSuspended
	_, err = f.customers.Update(ctx, c.ID, customerdomain.UpdateCustomerRequest{Status: &status})
	require.NoError(t, err)

	_, err = f.svc.CreateInvoice(ctx, invoicedomain.CreateInvoiceRequest{CustomerID: c.ID, Items: []invoicedomain.InvoiceItemInput{item("1", "1")}})
	assert.ErrorIs(t, err, errs.ErrInvalidState)
}

func TestCreateInvoiceCreditLimitFlag(t *testing.T) {
	f := newFixture(t)
	c := f.customer(t, 50)

	res, err := f.svc.CreateInvoice(context.Background(), invoicedomain.CreateInvoiceRequest{
		CustomerID: c.ID,
		Items:      []invoicedomain.InvoiceItemInput{item("30", "2")},
	})
	require.NoError(t, err)
	assert.True(t, res.CreditLimitExceeded)
}

func TestCreateInvoiceDuplicateNumber(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.customer(t, 1000)
	s := f.sale(t, "10", "2")

	_, err := f.svc.CreateInvoice(ctx, invoicedomain.CreateInvoiceRequest{CustomerID: c.ID, InvoiceNumber: "INV-1", Items: []invoicedomain.InvoiceItemInput{item("1", "1")}})
	require.NoError(t, err)

	withSale := item("10", "2")
	withSale.SaleID = &s.ID
	_, err = f.svc.CreateInvoice(ctx, invoicedomain.CreateInvoiceRequest{CustomerID: c.ID, InvoiceNumber: "INV-1", Items: []invoicedomain.InvoiceItemInput{withSale}})
	assert.ErrorIs(t, err, invoicedomain.ErrDuplicateInvoiceNumber)
	assert.ErrorIs(t, err, errs.ErrConflict)

	// The stamp taken before the failed insert is released.
	got, err := f.sales.GetSale(ctx, s.ID)
	require.NoError(t, err)
	assert.False(t, got.Invoiced())

	customer, err := f.customers.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, customer.CurrentBalance.Equal(decimal.NewFromInt(1)))
}

func TestCreateInvoiceStampsSales(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.customer(t, 1000)
	a := f.sale(t, "10", "2")
	b := f.sale(t, "5", "3")

	first := item("10", "2")
	first.SaleID = &a.ID
	second := item("5", "3")
	second.SaleID = &b.ID
	inv := f.invoiceFor(t, c.ID, first, second, item("1", "4"))

	for _, id := range []snowflake.ID{a.ID, b.ID} {
		got, err := f.sales.GetSale(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, got.InvoiceID)
		assert.Equal(t, inv.ID, *got.InvoiceID)
	}

	items, err := f.svc.GetInvoiceItemsWithContext(ctx, inv.ID)
	require.NoError(t, err)
	require.Len(t, items, 3)
	require.NotNil(t, items[0].Sale)
	assert.Equal(t, a.ID, items[0].Sale.SaleID)
	assert.Equal(t, a.FuelTypeID, items[0].Sale.FuelTypeID)
	assert.Equal(t, *a.VehicleID, *items[0].Sale.VehicleID)
	assert.True(t, a.TransactionDate.Equal(items[0].Sale.TransactionDate))
	assert.True(t, a.QuantityLiters.Equal(items[0].Sale.QuantityLiters))
	assert.True(t, a.TotalAmount.Equal(items[0].Sale.TotalAmount))
	require.NotNil(t, items[1].Sale)
	assert.Equal(t, b.ID, items[1].Sale.SaleID)
	assert.Nil(t, items[2].Sale)
}

func TestCreateInvoiceRejectsBilledSale(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.customer(t, 1000)
	fresh := f.sale(t, "10", "2")
	billed := f.sale(t, "5", "2")

	billedItem := item("5", "2")
	billedItem.SaleID = &billed.ID
	first := f.invoiceFor(t, c.ID, billedItem)

	freshItem := item("10", "2")
	freshItem.SaleID = &fresh.ID
	_, err := f.svc.CreateInvoice(ctx, invoicedomain.CreateInvoiceRequest{
		CustomerID: c.ID,
		Items:      []invoicedomain.InvoiceItemInput{freshItem, billedItem},
	})
	assert.ErrorIs(t, err, saledomain.ErrSaleAlreadyInvoiced)
	assert.ErrorIs(t, err, errs.ErrConflict)

	got, err := f.sales.GetSale(ctx, fresh.ID)
	require.NoError(t, err)
	assert.False(t, got.Invoiced(), "partial stamps are released")

	got, err = f.sales.GetSale(ctx, billed.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, *got.InvoiceID)

	invoices, err := f.svc.ListInvoices(ctx, invoicedomain.ListInvoicesRequest{CustomerID: c.ID})
	require.NoError(t, err)
	assert.Len(t, invoices.Invoices, 1)

	_, err = f.svc.CreateInvoice(ctx, invoicedomain.CreateInvoiceRequest{
		CustomerID: c.ID,
		Items:      []invoicedomain.InvoiceItemInput{freshItem, freshItem},
	})
	assert.ErrorIs(t, err, invoicedomain.ErrDuplicateSaleReference)

	missing := snowflake.ID(31337)
	ghost := item("1", "1")
	ghost.SaleID = &missing
	_, err = f.svc.CreateInvoice(ctx, invoicedomain.CreateInvoiceRequest{CustomerID: c.ID, Items: []invoicedomain.InvoiceItemInput{ghost}})
	assert.ErrorIs(t, err, saledomain.ErrNotFound)
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestCreateInvoiceRejectsAnotherCustomersSale(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.customer(t, 1000)
	other := f.customer(t, 1000)

	walkIn := f.sale(t, "10", "2")
	vehicle := snowflake.ID(900)
	foreign, err := f.sales.RecordSale(ctx, saledomain.RecordSaleRequest{
		StationID:      1,
		DispenserID:    2,
		EmployeeID:     3,
		CustomerID:     &other.ID,
		VehicleID:      &vehicle,
		FuelTypeID:     11,
		QuantityLiters: decimal.RequireFromString("4"),
		PricePerLiter:  decimal.RequireFromString("2"),
		PaymentMethod:  saledomain.PaymentMethodCreditAccount,
	})
	require.NoError(t, err)

	walkInItem := item("10", "2")
	walkInItem.SaleID = &walkIn.ID
	foreignItem := item("4", "2")
	foreignItem.SaleID = &foreign.ID
	_, err = f.svc.CreateInvoice(ctx, invoicedomain.CreateInvoiceRequest{
		CustomerID: c.ID,
		Items:      []invoicedomain.InvoiceItemInput{walkInItem, foreignItem},
	})
	assert.ErrorIs(t, err, invoicedomain.ErrSaleCustomerMismatch)
	assert.ErrorIs(t, err, errs.ErrValidation)

	for _, id := range []snowflake.ID{walkIn.ID, foreign.ID} {
		got, err := f.sales.GetSale(ctx, id)
		require.NoError(t, err)
		assert.False(t, got.Invoiced())
	}
	customer, err := f.customers.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, customer.CurrentBalance.IsZero())
	assert.Equal(t, 0, f.backend.Calls(invoicedomain.TableName, storetest.OpInsert))

	inv := f.invoiceFor(t, other.ID, foreignItem)
	got, err := f.sales.GetSale(ctx, foreign.ID)
	require.NoError(t, err)
	assert.Equal(t, inv.ID, *got.InvoiceID)
}

func TestCreateInvoiceBalanceUpdateFailed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.customer(t, 1000)

	f.backend.Fail(customerdomain.TableName, storetest.OpUpdate, store.ErrUnavailable)
	res, err := f.svc.CreateInvoice(ctx, invoicedomain.CreateInvoiceRequest{CustomerID: c.ID, Items: []invoicedomain.InvoiceItemInput{item("2", "5")}})
	require.NoError(t, err)
	assert.True(t, res.BalanceUpdateFailed)
	assert.ErrorIs(t, res.BalanceError, errs.ErrStoreUnavailable)

	_, err = f.svc.GetInvoice(ctx, res.Invoice.ID)
	assert.NoError(t, err)
}

func TestCreateInvoiceOverdueWhenPastDue(t *testing.T) {
	f := newFixture(t)
	c := f.customer(t, 1000)
	issue := f.clock.Now().AddDate(0, -2, 0)

	res, err := f.svc.CreateInvoice(context.Background(), invoicedomain.CreateInvoiceRequest{
		CustomerID: c.ID,
		IssueDate:  issue,
		DueDate:    issue.AddDate(0, 0, 30),
		Items:      []invoicedomain.InvoiceItemInput{item("1", "1")},
	})
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusOverdue, res.Invoice.Status)
}

func TestApplyPaymentSequence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.customer(t, 1000)
	inv := f.invoiceFor(t, c.ID, item("1", "100"))

	res, err := f.svc.ApplyPayment(ctx, invoicedomain.ApplyPaymentRequest{InvoiceID: inv.ID, CustomerID: c.ID, PaymentID: 1, Amount: decimal.NewFromInt(60)})
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusPartiallyPaid, res.Invoice.Status)
	assert.True(t, res.Invoice.PaidAmount.Equal(decimal.NewFromInt(60)))
	assert.Equal(t, int64(2), res.Invoice.Version)

	res, err = f.svc.ApplyPayment(ctx, invoicedomain.ApplyPaymentRequest{InvoiceID: inv.ID, PaymentID: 2, Amount: decimal.NewFromInt(40)})
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, res.Invoice.Status)
	assert.True(t, res.Invoice.PaidAmount.Equal(decimal.NewFromInt(100)))
	assert.True(t, res.Invoice.HasPayment(1))
	assert.True(t, res.Invoice.HasPayment(2))

	again, err := f.svc.ApplyPayment(ctx, invoicedomain.ApplyPaymentRequest{InvoiceID: inv.ID, PaymentID: 2, Amount: decimal.NewFromInt(40)})
	require.NoError(t, err)
	assert.True(t, again.AlreadyApplied)
	assert.True(t, again.Invoice.PaidAmount.Equal(decimal.NewFromInt(100)))
}

func TestApplyPaymentOverpayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.customer(t, 1000)
	inv := f.invoiceFor(t, c.ID, item("1", "100"))

	_, err := f.svc.ApplyPayment(ctx, invoicedomain.ApplyPaymentRequest{InvoiceID: inv.ID, PaymentID: 1, Amount: decimal.NewFromInt(70)})
	require.NoError(t, err)

	res, err := f.svc.ApplyPayment(ctx, invoicedomain.ApplyPaymentRequest{InvoiceID: inv.ID, PaymentID: 2, Amount: decimal.NewFromInt(50)})
	assert.ErrorIs(t, err, invoicedomain.ErrWouldOverpay)
	assert.ErrorIs(t, err, errs.ErrOverpayment)
	require.NotNil(t, res.Excess)
	assert.True(t, res.Excess.Equal(decimal.NewFromInt(20)))

	stored, err := f.svc.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.True(t, stored.PaidAmount.Equal(decimal.NewFromInt(70)))
	assert.Equal(t, invoicedomain.InvoiceStatusPartiallyPaid, stored.Status)
	assert.False(t, stored.HasPayment(2))
}

func TestApplyPaymentCustomerMismatch(t *testing.T) {
	f := newFixture(t)
	c := f.customer(t, 1000)
	inv := f.invoiceFor(t, c.ID, item("1", "100"))

	_, err := f.svc.ApplyPayment(context.Background(), invoicedomain.ApplyPaymentRequest{InvoiceID: inv.ID, CustomerID: c.ID + 1, PaymentID: 1, Amount: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, invoicedomain.ErrCustomerMismatch)
}

func TestApplyPaymentConcurrent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.customer(t, 1000)
	inv := f.invoiceFor(t, c.ID, item("1", "100"))

	const payments = 4
	var wg sync.WaitGroup
	errCh := make(chan error, payments)
	for i := 1; i <= payments; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			_, err := f.svc.ApplyPayment(ctx, invoicedomain.ApplyPaymentRequest{
				InvoiceID: inv.ID,
				PaymentID: snowflake.ID(id),
				Amount:    decimal.NewFromInt(25),
			})
			errCh <- err
		}(i)
	}
	wg.Wait()
	close(errCh)

	succeeded := 0
	for err := range errCh {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, invoicedomain.ErrConcurrentModification)
	}

	stored, err := f.svc.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	expected := decimal.NewFromInt(int64(25 * succeeded))
	assert.True(t, stored.PaidAmount.Equal(expected), "paid %s, want %s", stored.PaidAmount, expected)
	assert.Len(t, stored.AppliedPaymentIDs, succeeded)
}

func TestMarkOverdue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.customer(t, 1000)

	due := f.invoiceFor(t, c.ID, item("1", "10"))
	partial := f.invoiceFor(t, c.ID, item("1", "10"))
	_, err := f.svc.ApplyPayment(ctx, invoicedomain.ApplyPaymentRequest{InvoiceID: partial.ID, PaymentID: 1, Amount: decimal.NewFromInt(5)})
	require.NoError(t, err)

	later := f.clock.Now().AddDate(0, 0, 31)
	marked, err := f.svc.MarkOverdue(ctx, later, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, marked)

	got, err := f.svc.GetInvoice(ctx, due.ID)
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusOverdue, got.Status)

	got, err = f.svc.GetInvoice(ctx, partial.ID)
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusPartiallyPaid, got.Status)

	marked, err = f.svc.MarkOverdue(ctx, later, 100)
	require.NoError(t, err)
	assert.Equal(t, 0, marked)

	res, err := f.svc.ApplyPayment(ctx, invoicedomain.ApplyPaymentRequest{InvoiceID: due.ID, PaymentID: 2, Amount: decimal.NewFromInt(10)})
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, res.Invoice.Status)
}

func TestStatusFor(t *testing.T) {
	now := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	total := decimal.NewFromInt(100)
	future := now.Add(24 * time.Hour)
	past := now.Add(-24 * time.Hour)

	assert.Equal(t, invoicedomain.InvoiceStatusPending, invoicedomain.StatusFor(total, decimal.Zero, future, now))
	assert.Equal(t, invoicedomain.InvoiceStatusOverdue, invoicedomain.StatusFor(total, decimal.Zero, past, now))
	assert.Equal(t, invoicedomain.InvoiceStatusPartiallyPaid, invoicedomain.StatusFor(total, decimal.NewFromInt(1), past, now))
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, invoicedomain.StatusFor(total, total, future, now))
}

func TestTermsDays(t *testing.T) {
	assert.Equal(t, 30, termsDays("Net 30"))
	assert.Equal(t, 15, termsDays("net 15"))
	assert.Equal(t, 30, termsDays("on receipt"))
	assert.Equal(t, 30, termsDays(""))
}
