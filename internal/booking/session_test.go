package booking

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-travel/internal/catalog"
	"github.com/noah-isme/backend-travel/internal/discount"
	"github.com/noah-isme/backend-travel/internal/order"
	"github.com/noah-isme/backend-travel/internal/pricing"
)

type fakeValidator struct {
	mu      sync.Mutex
	calls   []discount.Request
	respond func(ctx context.Context, req discount.Request) (discount.Result, error)
}

func (f *fakeValidator) Validate(ctx context.Context, req discount.Request) (discount.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	respond := f.respond
	f.mu.Unlock()
	if respond != nil {
		return respond(ctx, req)
	}
	return discount.Result{}, nil
}

func (f *fakeValidator) lastCall() (discount.Request, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return discount.Request{}, false
	}
	return f.calls[len(f.calls)-1], true
}

type fakeOrders struct {
	mu     sync.Mutex
	last   order.CreateRequest
	create func(ctx context.Context, req order.CreateRequest) (order.Order, error)
}

func (f *fakeOrders) Create(ctx context.Context, req order.CreateRequest) (order.Order, error) {
	f.mu.Lock()
	f.last = req
	create := f.create
	f.mu.Unlock()
	if create != nil {
		return create(ctx, req)
	}
	return order.Order{ID: "ord-1", Status: "PENDING_PAYMENT"}, nil
}

func (f *fakeOrders) lastRequest() order.CreateRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

func intPtr(n int) *int { return &n }

func openTrip() catalog.Product {
	return catalog.Product{
		ID:       "bromo-3d2n",
		Type:     catalog.TypeOpenTrip,
		Title:    "Bromo Sunrise 3D2N",
		Currency: "IDR",
		Tiers: pricing.TierTable{
			{MinPax: 1, MaxPax: intPtr(2), Price: 550_000},
			{MinPax: 3, MaxPax: intPtr(5), Price: 500_000},
			{MinPax: 6, MaxPax: nil, Price: 450_000},
		},
		Addons: pricing.AddonCatalog{
			{Name: "photographer", Price: 150_000},
			{Name: "private_tent", Price: 75_000},
		},
		RequiresDates: true,
	}
}

func newTestSession(t *testing.T, validator discount.Validator) *Session {
	t.Helper()
	ds := discount.NewSession(validator, discount.Config{
		Debounce: 10 * time.Millisecond,
		Timeout:  time.Second,
		Logger:   zerolog.Nop(),
	})
	return NewSession("sess-1", openTrip(), ds)
}

func goodContact() ContactInput {
	return ContactInput{Name: "Ayu Lestari", Email: "ayu@example.com", Phone: "+62811111111"}
}

func TestSessionDefaults(t *testing.T) {
	s := newTestSession(t, &fakeValidator{})
	unitCount, addons, _ := s.Snapshot()
	require.Equal(t, 1, unitCount)
	require.Empty(t, addons)

	state, orderID, fields := s.State()
	require.Equal(t, SubmitReady, state)
	require.Empty(t, orderID)
	require.Empty(t, fields)

	totals := s.Totals()
	require.Equal(t, pricing.Money(550_000), totals.UnitPrice)
	require.Equal(t, pricing.Money(550_000), totals.GrandTotal)
}

func TestToggleAddon(t *testing.T) {
	s := newTestSession(t, &fakeValidator{})

	on, err := s.ToggleAddon("photographer")
	require.NoError(t, err)
	require.True(t, on)
	require.Equal(t, pricing.Money(150_000), s.Totals().AddonTotal)

	off, err := s.ToggleAddon("photographer")
	require.NoError(t, err)
	require.False(t, off)
	require.Zero(t, s.Totals().AddonTotal)

	_, err = s.ToggleAddon("jetski")
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestUnitCountDrivesTierPrice(t *testing.T) {
	s := newTestSession(t, &fakeValidator{})
	require.NoError(t, s.SetUnitCount(4))
	require.Equal(t, pricing.Money(500_000), s.Totals().UnitPrice)
	require.Equal(t, pricing.Money(2_000_000), s.Totals().Subtotal)

	require.ErrorIs(t, s.SetUnitCount(0), ErrInvalidInput)
}

func TestTotalsIncludeConfirmedDiscount(t *testing.T) {
	validator := &fakeValidator{respond: func(_ context.Context, _ discount.Request) (discount.Result, error) {
		return discount.Result{DiscountAmount: 200_000}, nil
	}}
	s := newTestSession(t, validator)
	require.NoError(t, s.SetUnitCount(3))

	ds := s.Discount()
	ds.SetCode("hemat10")
	state := ds.Apply(context.Background())
	require.Equal(t, discount.StatusApplied, state.Status)

	totals := s.Totals()
	require.Equal(t, pricing.Money(200_000), totals.Discount)
	require.Equal(t, pricing.Money(1_300_000), totals.GrandTotal)
}

func TestInputChangeForwardsSnapshotToValidator(t *testing.T) {
	validator := &fakeValidator{respond: func(_ context.Context, _ discount.Request) (discount.Result, error) {
		return discount.Result{DiscountAmount: 50_000}, nil
	}}
	s := newTestSession(t, validator)

	ds := s.Discount()
	ds.SetCode("HEMAT10")
	ds.Apply(context.Background())

	require.NoError(t, s.SetUnitCount(6))
	require.NoError(t, s.SetExtra(ExtraStartDate, "2026-09-10"))

	require.Eventually(t, func() bool {
		req, ok := validator.lastCall()
		return ok && req.UnitCount == 6 && req.DateRange != nil && req.DateRange.Start == "2026-09-10"
	}, time.Second, 5*time.Millisecond)
}

func TestSubmitHappyPath(t *testing.T) {
	validator := &fakeValidator{respond: func(_ context.Context, _ discount.Request) (discount.Result, error) {
		return discount.Result{DiscountAmount: 100_000}, nil
	}}
	orders := &fakeOrders{}
	s := newTestSession(t, validator)
	require.NoError(t, s.SetUnitCount(3))
	require.NoError(t, s.SetExtra(ExtraStartDate, "2026-09-10"))
	require.NoError(t, s.SetExtra(ExtraEndDate, "2026-09-12"))

	ds := s.Discount()
	ds.SetCode("HEMAT10")
	ds.Apply(context.Background())

	submitter := NewSubmitter(orders, time.Second, "IDR", zerolog.Nop())
	created, err := submitter.Submit(context.Background(), s, goodContact())
	require.NoError(t, err)
	require.Equal(t, "ord-1", created.ID)

	sent := orders.lastRequest()
	require.Equal(t, "HEMAT10", sent.DiscountCode)
	require.Equal(t, pricing.Money(1_500_000), sent.Subtotal)
	require.Equal(t, pricing.Money(100_000), sent.Discount)
	require.Equal(t, pricing.Money(1_400_000), sent.GrandTotal)
	require.Equal(t, "IDR", sent.Currency)

	state, orderID, _ := s.State()
	require.Equal(t, SubmitSucceeded, state)
	require.Equal(t, "ord-1", orderID)

	require.ErrorIs(t, s.SetUnitCount(5), ErrSubmitted)
	_, err = submitter.Submit(context.Background(), s, goodContact())
	require.ErrorIs(t, err, ErrSubmitted)
}

func TestSubmitOmitsUnconfirmedCode(t *testing.T) {
	validator := &fakeValidator{respond: func(_ context.Context, _ discount.Request) (discount.Result, error) {
		return discount.Result{DiscountAmount: 0, Message: "minimum spend not met"}, nil
	}}
	orders := &fakeOrders{}
	s := newTestSession(t, validator)
	require.NoError(t, s.SetExtra(ExtraStartDate, "2026-09-10"))
	require.NoError(t, s.SetExtra(ExtraEndDate, "2026-09-12"))

	ds := s.Discount()
	ds.SetCode("HEMAT10")
	state := ds.Apply(context.Background())
	require.Equal(t, discount.StatusRejected, state.Status)

	submitter := NewSubmitter(orders, time.Second, "IDR", zerolog.Nop())
	_, err := submitter.Submit(context.Background(), s, goodContact())
	require.NoError(t, err)

	sent := orders.lastRequest()
	require.Empty(t, sent.DiscountCode)
	require.Zero(t, sent.Discount)
}

func TestSubmitValidationErrors(t *testing.T) {
	orders := &fakeOrders{}
	s := newTestSession(t, &fakeValidator{})
	submitter := NewSubmitter(orders, time.Second, "IDR", zerolog.Nop())

	_, err := submitter.Submit(context.Background(), s, ContactInput{Name: "A", Email: "nope", Phone: ""})
	require.ErrorIs(t, err, ErrValidation)

	state, _, fields := s.State()
	require.Equal(t, SubmitReady, state)
	require.Contains(t, fields, "contact.name")
	require.Contains(t, fields, "contact.email")
	require.Contains(t, fields, "contact.phone")
	require.Contains(t, fields, ExtraStartDate)
	require.Contains(t, fields, ExtraEndDate)

	// Correcting the form clears the way for another attempt.
	require.NoError(t, s.SetExtra(ExtraStartDate, "2026-09-10"))
	require.NoError(t, s.SetExtra(ExtraEndDate, "2026-09-12"))
	_, err = submitter.Submit(context.Background(), s, goodContact())
	require.NoError(t, err)
}

func TestSubmitRemoteFieldErrors(t *testing.T) {
	orders := &fakeOrders{create: func(_ context.Context, _ order.CreateRequest) (order.Order, error) {
		return order.Order{}, &order.ValidationError{Fields: map[string]string{"start_date": "date is fully booked"}}
	}}
	s := newTestSession(t, &fakeValidator{})
	require.NoError(t, s.SetExtra(ExtraStartDate, "2026-09-10"))
	require.NoError(t, s.SetExtra(ExtraEndDate, "2026-09-12"))

	submitter := NewSubmitter(orders, time.Second, "IDR", zerolog.Nop())
	_, err := submitter.Submit(context.Background(), s, goodContact())
	require.ErrorIs(t, err, ErrValidation)

	state, _, fields := s.State()
	require.Equal(t, SubmitReady, state)
	require.Equal(t, "date is fully booked", fields["start_date"])
}

func TestSubmitBlocksReentrantCall(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	orders := &fakeOrders{create: func(_ context.Context, _ order.CreateRequest) (order.Order, error) {
		close(entered)
		<-release
		return order.Order{ID: "ord-slow"}, nil
	}}
	s := newTestSession(t, &fakeValidator{})
	require.NoError(t, s.SetExtra(ExtraStartDate, "2026-09-10"))
	require.NoError(t, s.SetExtra(ExtraEndDate, "2026-09-12"))

	submitter := NewSubmitter(orders, 5*time.Second, "IDR", zerolog.Nop())
	done := make(chan error, 1)
	go func() {
		_, err := submitter.Submit(context.Background(), s, goodContact())
		done <- err
	}()
	<-entered

	_, err := submitter.Submit(context.Background(), s, goodContact())
	require.ErrorIs(t, err, ErrSubmitInFlight)

	close(release)
	require.NoError(t, <-done)
}

func TestStoreLifecycle(t *testing.T) {
	store := NewStore(time.Minute)
	t.Cleanup(store.Close)

	s := newTestSession(t, &fakeValidator{})
	store.Put(s)

	got, err := store.Get(s.ID)
	require.NoError(t, err)
	require.Same(t, s, got)

	store.Delete(s.ID)
	_, err = store.Get(s.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStoreEvictsIdleSessions(t *testing.T) {
	store := NewStore(time.Minute)
	t.Cleanup(store.Close)

	s := newTestSession(t, &fakeValidator{})
	s.mu.Lock()
	s.touchedAt = time.Now().Add(-2 * time.Minute)
	s.mu.Unlock()
	store.Put(s)

	store.evictIdle()
	_, err := store.Get(s.ID)
	require.ErrorIs(t, err, ErrNotFound)
}
