package checkout

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopfront/internal/domain"
	"shopfront/internal/metrics"
)

func TestCheckoutItemsFreezesLinesAndReserves(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	buyer := f.user(t)
	p := f.product(t, 3)

	inv, err := f.service().CheckoutItems(ctx, buyer.ID, []Item{{ProductID: p.ID, Option: redM}})
	require.NoError(t, err)

	want := domain.Invoice{
		UserID:          buyer.ID,
		DeliveryAddress: buyer.Address,
		Lines: []domain.InvoiceLine{
			{ProductID: p.ID, Name: p.Name, Price: p.Price, Currency: "USD", Option: redM},
		},
	}
	opts := cmp.Options{
		cmpopts.IgnoreFields(domain.Invoice{}, "ID", "CreatedAt"),
		cmp.Comparer(func(a, b decimal.Decimal) bool { return a.Equal(b) }),
	}
	if diff := cmp.Diff(want, *inv, opts); diff != "" {
		t.Errorf("invoice mismatch (-want +got):\n%s", diff)
	}

	stock, bought := f.stock(t, p.ID)
	assert.Equal(t, 2, stock)
	assert.Equal(t, 1, bought)

	exp, err := f.stores.Invoices.GetExpiry(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExpiryPending, exp.State)
	assert.Equal(t, f.now.Add(time.Hour), exp.ExpiresAt)
}

func TestCheckoutRejectsUnknownOption(t *testing.T) {
	f := newFixture(t)
	buyer := f.user(t)
	p := f.product(t, 3)

	_, err := f.service().CheckoutItems(context.Background(), buyer.ID, []Item{
		{ProductID: p.ID, Option: redM},
		{ProductID: p.ID, Option: domain.Option{Color: "green", Size: "M"}},
	})
	require.Error(t, err)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
	assert.EqualError(t, err, "no picked color")

	stock, bought := f.stock(t, p.ID)
	assert.Equal(t, 3, stock)
	assert.Zero(t, bought)
}

func TestCheckoutMissingProductIsValidation(t *testing.T) {
	f := newFixture(t)
	buyer := f.user(t)

	_, err := f.service().CheckoutItems(context.Background(), buyer.ID, []Item{{ProductID: "gone", Option: redM}})
	assert.True(t, domain.IsKind(err, domain.KindValidation))

	_, err = f.service().CheckoutItems(context.Background(), buyer.ID, nil)
	assert.True(t, domain.IsKind(err, domain.KindValidation))
}

func TestCheckoutBasketAllOrNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	buyer := f.user(t)
	basketID := buyer.MainBasketID()
	plenty := f.product(t, 5)
	empty := f.product(t, 0)

	f.addLine(t, basketID, plenty.ID, redM)
	f.addLine(t, basketID, plenty.ID, redM)
	f.addLine(t, basketID, empty.ID, redM)

	_, err := f.service().CheckoutBasket(ctx, buyer.ID, basketID)
	require.Error(t, err)
	assert.Equal(t, domain.KindOutOfStock, domain.KindOf(err))
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)

	var de *domain.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, empty.ID, de.Details["productId"])

	stock, bought := f.stock(t, plenty.ID)
	assert.Equal(t, 5, stock)
	assert.Zero(t, bought)

	invoices, err := f.stores.Invoices.ListByUser(ctx, buyer.ID)
	require.NoError(t, err)
	assert.Empty(t, invoices)

	b, err := f.stores.Baskets.GetByID(ctx, basketID)
	require.NoError(t, err)
	assert.Len(t, b.Lines, 3, "basket must be untouched")
}

func TestCheckoutBasketClearsLines(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	buyer := f.user(t)
	basketID := buyer.MainBasketID()
	p1, p2 := f.product(t, 2), f.product(t, 2)

	f.addLine(t, basketID, p1.ID, redM)
	f.addLine(t, basketID, p2.ID, domain.Option{Color: "black", Size: "L"})

	inv, err := f.service().CheckoutBasket(ctx, buyer.ID, basketID)
	require.NoError(t, err)
	assert.Len(t, inv.Lines, 2)

	b, err := f.stores.Baskets.GetByID(ctx, basketID)
	require.NoError(t, err)
	assert.Empty(t, b.Lines)

	for _, id := range []string{p1.ID, p2.ID} {
		stock, bought := f.stock(t, id)
		assert.Equal(t, 1, stock)
		assert.Equal(t, 1, bought)
	}

	_, err = f.service().CheckoutBasket(ctx, buyer.ID, basketID)
	assert.True(t, domain.IsKind(err, domain.KindValidation), "empty basket")
}

func TestCheckoutBasketRequiresActiveMembership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.user(t)
	stranger := f.user(t)
	basketID := owner.MainBasketID()
	f.addLine(t, basketID, f.product(t, 1).ID, redM)

	_, err := f.service().CheckoutBasket(ctx, stranger.ID, basketID)
	assert.True(t, domain.IsKind(err, domain.KindForbidden))

	require.NoError(t, f.stores.Users.AddMembership(ctx, stranger.ID, domain.Membership{BasketID: basketID, Status: domain.MembershipPending}))
	_, err = f.service().CheckoutBasket(ctx, stranger.ID, basketID)
	assert.True(t, domain.IsKind(err, domain.KindForbidden), "pending members cannot buy")

	require.NoError(t, f.stores.Users.SetMembershipStatus(ctx, stranger.ID, basketID, domain.MembershipPending, domain.MembershipAccepted))
	inv, err := f.service().CheckoutBasket(ctx, stranger.ID, basketID)
	require.NoError(t, err)
	assert.Equal(t, stranger.ID, inv.UserID)
	assert.Equal(t, stranger.Address, inv.DeliveryAddress)
}

func TestConcurrentCheckoutOfLastUnit(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, 1)
	svc := f.service()
	buyers := []*domain.User{f.user(t), f.user(t)}

	var (
		wg   sync.WaitGroup
		errs = make([]error, len(buyers))
	)
	for i, b := range buyers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = svc.CheckoutItems(context.Background(), b.ID, []Item{{ProductID: p.ID, Option: redM}})
		}()
	}
	wg.Wait()

	var ok, out int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case domain.IsKind(err, domain.KindOutOfStock):
			out++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, out)

	stock, bought := f.stock(t, p.ID)
	assert.Zero(t, stock)
	assert.Equal(t, 1, bought)
}

func TestInvoiceFailureReleasesReservations(t *testing.T) {
	f := newFixture(t)
	buyer := f.user(t)
	p := f.product(t, 2)

	stores := failingInvoices{f.stores}.stores()
	svc := New(stores, time.Hour, nil, WithClock(f.clock))

	_, err := svc.CheckoutItems(context.Background(), buyer.ID, []Item{
		{ProductID: p.ID, Option: redM},
		{ProductID: p.ID, Option: redM},
	})
	require.Error(t, err)
	assert.Equal(t, domain.KindInternal, domain.KindOf(err))
	assert.ErrorIs(t, err, errBoom)

	stock, bought := f.stock(t, p.ID)
	assert.Equal(t, 2, stock)
	assert.Zero(t, bought)
}

func TestCancelledRequestStillRollsBack(t *testing.T) {
	f := newFixture(t)
	buyer := f.user(t)
	ok := f.product(t, 1)
	soldOut := f.product(t, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.service().CheckoutItems(ctx, buyer.ID, []Item{
		{ProductID: ok.ID, Option: redM},
		{ProductID: soldOut.ID, Option: redM},
	})
	assert.True(t, domain.IsKind(err, domain.KindOutOfStock))

	stock, _ := f.stock(t, ok.ID)
	assert.Equal(t, 1, stock)
}

func TestCheckoutMetrics(t *testing.T) {
	f := newFixture(t)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	svc := f.service(WithMetrics(m))
	buyer := f.user(t)
	p := f.product(t, 1)

	_, err := svc.CheckoutItems(context.Background(), buyer.ID, []Item{{ProductID: p.ID, Option: redM}})
	require.NoError(t, err)
	_, err = svc.CheckoutItems(context.Background(), buyer.ID, []Item{{ProductID: p.ID, Option: redM}})
	require.Error(t, err)

	expected := `
# HELP shopfront_checkout_total Checkout attempts by entry path and outcome.
# TYPE shopfront_checkout_total counter
shopfront_checkout_total{outcome="out_of_stock",path="direct"} 1
shopfront_checkout_total{outcome="success",path="direct"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "shopfront_checkout_total"))
}

func TestCheckoutBasketKeepsLinesAddedMeanwhile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.user(t)
	coOwner := f.user(t)
	basketID := owner.MainBasketID()
	bought, late := f.product(t, 2), f.product(t, 2)
	require.NoError(t, f.stores.Users.AddMembership(ctx, coOwner.ID, domain.Membership{BasketID: basketID, Status: domain.MembershipAccepted}))

	f.addLine(t, basketID, bought.ID, redM)

	stores := f.stores
	stores.Baskets = &busyBasket{
		Repository: f.stores.Baskets,
		afterRead:  func() { f.addLine(t, basketID, late.ID, redM) },
	}
	svc := New(stores, time.Hour, nil, WithClock(f.clock))

	inv, err := svc.CheckoutBasket(ctx, owner.ID, basketID)
	require.NoError(t, err)
	require.Len(t, inv.Lines, 1)
	assert.Equal(t, bought.ID, inv.Lines[0].ProductID)

	b, err := f.stores.Baskets.GetByID(ctx, basketID)
	require.NoError(t, err)
	require.Len(t, b.Lines, 1, "line added during checkout must survive")
	assert.Equal(t, late.ID, b.Lines[0].ProductID)

	stock, sold := f.stock(t, late.ID)
	assert.Equal(t, 2, stock)
	assert.Zero(t, sold)
}

func TestInvoiceLinesSurviveProductEdit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	buyer := f.user(t)
	p := f.product(t, 2)

	inv, err := f.service().CheckoutItems(ctx, buyer.ID, []Item{{ProductID: p.ID, Option: redM}})
	require.NoError(t, err)

	edited := *p
	edited.Name = "Renamed"
	edited.Price = decimal.RequireFromString("99.00")
	edited.Colors = []string{"green"}
	_, err = f.stores.Products.Update(ctx, edited)
	require.NoError(t, err)

	got, err := f.stores.Invoices.GetByID(ctx, inv.ID)
	require.NoError(t, err)
	want := []domain.InvoiceLine{{ProductID: p.ID, Name: p.Name, Price: p.Price, Currency: "USD", Option: redM}}
	if diff := cmp.Diff(want, got.Lines, cmp.Comparer(func(a, b decimal.Decimal) bool { return a.Equal(b) })); diff != "" {
		t.Errorf("invoice lines changed (-want +got):\n%s", diff)
	}
}

func TestCheckoutInTxReleasesOnInvoiceFailure(t *testing.T) {
	f := newFixture(t)
	buyer := f.user(t)
	p := f.product(t, 2)
	tx := &failingTx{store: f.store}
	svc := f.service(WithTx(tx))

	_, err := svc.CheckoutItems(context.Background(), buyer.ID, []Item{
		{ProductID: p.ID, Option: redM},
		{ProductID: p.ID, Option: redM},
	})
	require.Error(t, err)
	assert.Equal(t, domain.KindInternal, domain.KindOf(err))
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 1, tx.calls)

	stock, bought := f.stock(t, p.ID)
	assert.Equal(t, 2, stock)
	assert.Zero(t, bought)
}

func TestCheckoutInTxCommits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	buyer := f.user(t)
	p1, p2 := f.product(t, 1), f.product(t, 1)
	svc := f.service(WithTx(f.store))

	inv, err := svc.CheckoutItems(ctx, buyer.ID, []Item{
		{ProductID: p2.ID, Option: redM},
		{ProductID: p1.ID, Option: redM},
	})
	require.NoError(t, err)
	require.Len(t, inv.Lines, 2)
	assert.Equal(t, p2.ID, inv.Lines[0].ProductID, "invoice keeps the requested line order")

	_, err = f.stores.Invoices.GetExpiry(ctx, inv.ID)
	require.NoError(t, err)
	for _, id := range []string{p1.ID, p2.ID} {
		stock, bought := f.stock(t, id)
		assert.Zero(t, stock)
		assert.Equal(t, 1, bought)
	}
}
