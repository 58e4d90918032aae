package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/dahlia/internal/models"
)

type fixture struct {
	orchestrator *Orchestrator
	ledger       *memoryLedger
	orders       *memoryOrderStore
	addresses    *memoryAddresses
	address      models.Address
	codMethodID  uuid.UUID
	gwMethodID   uuid.UUID
	voucherID    uuid.UUID
}

func newFixture(t *testing.T, stock map[uuid.UUID]int, variants map[uuid.UUID]VariantDetail) *fixture {
	t.Helper()

	address := testAddress()
	addresses := newMemoryAddresses(address)
	ledger := newMemoryLedger(stock)
	orders := newMemoryOrderStore()

	codMethodID := uuid.New()
	gwMethodID := uuid.New()
	voucherID := uuid.New()

	orchestrator, err := NewOrchestrator(OrchestratorDeps{
		Ledger:    ledger,
		Orders:    orders,
		Snapshots: NewSnapshotService(addresses, fixedClock(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))),
		Machine:   NewStateMachine(orders),
		Catalog:   &stubCatalog{variants: variants},
		Payments: &stubPayments{methods: map[uuid.UUID]models.PaymentMethod{
			codMethodID: {BaseModel: models.BaseModel{ID: codMethodID}, Name: "Cash on delivery", Kind: models.PaymentMethodCOD, IsActive: true},
			gwMethodID:  {BaseModel: models.BaseModel{ID: gwMethodID}, Name: "Online payment", Kind: models.PaymentMethodGateway, IsActive: true},
		}},
		Vouchers: &stubVouchers{vouchers: map[uuid.UUID]models.Voucher{
			voucherID: {BaseModel: models.BaseModel{ID: voucherID}, Code: "WELCOME50", DiscountAmount: 50, IsActive: true},
		}},
		ShippingFee: 30,
		Clock:       fixedClock(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)),
	})
	require.NoError(t, err)

	return &fixture{
		orchestrator: orchestrator,
		ledger:       ledger,
		orders:       orders,
		addresses:    addresses,
		address:      address,
		codMethodID:  codMethodID,
		gwMethodID:   gwMethodID,
		voucherID:    voucherID,
	}
}

func variantDetail(id uuid.UUID, name, label string, price float64) VariantDetail {
	return VariantDetail{
		Variant: models.ProductVariant{
			BaseModel: models.BaseModel{ID: id},
			Label:     label,
			Price:     price,
			IsActive:  true,
		},
		ProductName: name,
	}
}

func TestCreateOrderHappyPath(t *testing.T) {
	variantA := uuid.New()
	fix := newFixture(t,
		map[uuid.UUID]int{variantA: 5},
		map[uuid.UUID]VariantDetail{variantA: variantDetail(variantA, "Linen Shirt", "White / M", 120)},
	)

	order, err := fix.orchestrator.CreateOrder(context.Background(), CreateOrderInput{
		UserID:          uuid.New(),
		Items:           []CreateOrderItemInput{{VariantID: variantA, Quantity: 2}},
		AddressID:       fix.address.ID,
		PaymentMethodID: fix.codMethodID,
	})
	require.NoError(t, err)

	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Equal(t, models.PaymentStatusUnpaid, order.PaymentStatus)
	assert.Equal(t, models.PaymentMethodCOD, order.PaymentMethodKind)
	assert.Equal(t, fmt.Sprintf("DH%d%06d", 2025, 1), order.Code)
	assert.Equal(t, 240.0, order.Total)
	assert.Equal(t, 30.0, order.ShippingFee)
	assert.Equal(t, order.Total+order.ShippingFee, order.FinalTotal)
	assert.Equal(t, fix.address.AddressLine, order.AddressSnapshot.AddressLine)
	assert.False(t, order.AddressSnapshot.CapturedAt.IsZero())

	require.Len(t, order.Items, 1)
	assert.Equal(t, "Linen Shirt", order.Items[0].ProductName)
	assert.Equal(t, 120.0, order.Items[0].UnitPrice)
	assert.Equal(t, 240.0, order.Items[0].LineTotal)

	assert.Equal(t, 3, fix.ledger.available(variantA))
}

func TestCreateOrderRollsBackOnPartialReservation(t *testing.T) {
	variantA, variantB, variantC := uuid.New(), uuid.New(), uuid.New()
	fix := newFixture(t,
		map[uuid.UUID]int{variantA: 10, variantB: 10, variantC: 1},
		map[uuid.UUID]VariantDetail{
			variantA: variantDetail(variantA, "Shirt", "M", 100),
			variantB: variantDetail(variantB, "Trousers", "32", 150),
			variantC: variantDetail(variantC, "Jacket", "L", 300),
		},
	)

	_, err := fix.orchestrator.CreateOrder(context.Background(), CreateOrderInput{
		UserID: uuid.New(),
		Items: []CreateOrderItemInput{
			{VariantID: variantA, Quantity: 2},
			{VariantID: variantB, Quantity: 3},
			{VariantID: variantC, Quantity: 2},
		},
		AddressID:       fix.address.ID,
		PaymentMethodID: fix.codMethodID,
	})

	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, variantC, stockErr.VariantID)
	assert.Equal(t, 2, stockErr.Requested)
	assert.Equal(t, 1, stockErr.Available)

	// Earlier reservations are fully unwound and nothing was persisted.
	assert.Equal(t, 10, fix.ledger.available(variantA))
	assert.Equal(t, 10, fix.ledger.available(variantB))
	assert.Equal(t, 1, fix.ledger.available(variantC))
	assert.Equal(t, 0, fix.orders.count())
}

func TestCreateOrderRollsBackOnMissingAddress(t *testing.T) {
	variantA := uuid.New()
	fix := newFixture(t,
		map[uuid.UUID]int{variantA: 4},
		map[uuid.UUID]VariantDetail{variantA: variantDetail(variantA, "Shirt", "M", 100)},
	)

	_, err := fix.orchestrator.CreateOrder(context.Background(), CreateOrderInput{
		UserID:          uuid.New(),
		Items:           []CreateOrderItemInput{{VariantID: variantA, Quantity: 2}},
		AddressID:       uuid.New(),
		PaymentMethodID: fix.codMethodID,
	})

	assert.ErrorIs(t, err, ErrAddressNotFound)
	assert.Equal(t, 4, fix.ledger.available(variantA))
	assert.Equal(t, 0, fix.orders.count())
}

func TestCreateOrderFreezesVoucherDiscount(t *testing.T) {
	variantA := uuid.New()
	fix := newFixture(t,
		map[uuid.UUID]int{variantA: 5},
		map[uuid.UUID]VariantDetail{variantA: variantDetail(variantA, "Shirt", "M", 100)},
	)

	voucherID := fix.voucherID
	order, err := fix.orchestrator.CreateOrder(context.Background(), CreateOrderInput{
		UserID:          uuid.New(),
		Items:           []CreateOrderItemInput{{VariantID: variantA, Quantity: 2}},
		AddressID:       fix.address.ID,
		PaymentMethodID: fix.gwMethodID,
		VoucherID:       &voucherID,
	})
	require.NoError(t, err)

	assert.Equal(t, 50.0, order.DiscountAmount)
	assert.Equal(t, 150.0, order.Total)
	assert.Equal(t, order.Total+order.ShippingFee, order.FinalTotal)
}

func TestCancelReleasesStockExactlyOnce(t *testing.T) {
	variantA := uuid.New()
	fix := newFixture(t,
		map[uuid.UUID]int{variantA: 2},
		map[uuid.UUID]VariantDetail{variantA: variantDetail(variantA, "Shirt", "M", 100)},
	)

	order, err := fix.orchestrator.CreateOrder(context.Background(), CreateOrderInput{
		UserID:          uuid.New(),
		Items:           []CreateOrderItemInput{{VariantID: variantA, Quantity: 2}},
		AddressID:       fix.address.ID,
		PaymentMethodID: fix.codMethodID,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, fix.ledger.available(variantA))

	// A second order for the drained variant fails with insufficient stock.
	_, err = fix.orchestrator.CreateOrder(context.Background(), CreateOrderInput{
		UserID:          uuid.New(),
		Items:           []CreateOrderItemInput{{VariantID: variantA, Quantity: 1}},
		AddressID:       fix.address.ID,
		PaymentMethodID: fix.codMethodID,
	})
	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)

	// Cancelling the first order restores the full quantity.
	cancelled, err := fix.orchestrator.CancelOrder(context.Background(), order.ID, ActorCustomer)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, cancelled.Status)
	assert.Equal(t, 2, fix.ledger.available(variantA))

	// Cancelling again is rejected by the state machine and must not
	// release stock a second time.
	_, err = fix.orchestrator.CancelOrder(context.Background(), order.ID, ActorCustomer)
	var trErr *TransitionError
	require.ErrorAs(t, err, &trErr)
	assert.Equal(t, RuleTerminalStateImmutable, trErr.Rule)
	assert.Equal(t, 2, fix.ledger.available(variantA))
}

func TestCancelRejectedAfterShipping(t *testing.T) {
	variantA := uuid.New()
	fix := newFixture(t,
		map[uuid.UUID]int{variantA: 3},
		map[uuid.UUID]VariantDetail{variantA: variantDetail(variantA, "Shirt", "M", 100)},
	)

	order, err := fix.orchestrator.CreateOrder(context.Background(), CreateOrderInput{
		UserID:          uuid.New(),
		Items:           []CreateOrderItemInput{{VariantID: variantA, Quantity: 1}},
		AddressID:       fix.address.ID,
		PaymentMethodID: fix.codMethodID,
	})
	require.NoError(t, err)

	_, err = fix.orchestrator.ChangeStatus(context.Background(), order.ID, models.OrderStatusProcessing, "", ActorAdmin)
	require.NoError(t, err)
	_, err = fix.orchestrator.ChangeStatus(context.Background(), order.ID, models.OrderStatusShipped, "", ActorAdmin)
	require.NoError(t, err)

	_, err = fix.orchestrator.CancelOrder(context.Background(), order.ID, ActorCustomer)
	var trErr *TransitionError
	require.ErrorAs(t, err, &trErr)
	assert.Equal(t, RuleIllegalStatusTransition, trErr.Rule)
	assert.Equal(t, 2, fix.ledger.available(variantA))
}

func TestCreateOrderRollsBackOnReserveStorageError(t *testing.T) {
	variantA, variantB := uuid.New(), uuid.New()

	address := testAddress()
	addresses := newMemoryAddresses(address)
	inner := newMemoryLedger(map[uuid.UUID]int{variantA: 10, variantB: 10})
	ledger := &faultyLedger{memoryLedger: inner, failVariant: variantB, err: errors.New("driver: bad connection")}
	orders := newMemoryOrderStore()

	codMethodID := uuid.New()
	orchestrator, err := NewOrchestrator(OrchestratorDeps{
		Ledger:    ledger,
		Orders:    orders,
		Snapshots: NewSnapshotService(addresses, fixedClock(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))),
		Machine:   NewStateMachine(orders),
		Catalog: &stubCatalog{variants: map[uuid.UUID]VariantDetail{
			variantA: variantDetail(variantA, "Shirt", "M", 100),
			variantB: variantDetail(variantB, "Trousers", "32", 150),
		}},
		Payments: &stubPayments{methods: map[uuid.UUID]models.PaymentMethod{
			codMethodID: {BaseModel: models.BaseModel{ID: codMethodID}, Name: "Cash on delivery", Kind: models.PaymentMethodCOD, IsActive: true},
		}},
		ShippingFee: 30,
		Clock:       fixedClock(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)),
	})
	require.NoError(t, err)

	_, err = orchestrator.CreateOrder(context.Background(), CreateOrderInput{
		UserID: uuid.New(),
		Items: []CreateOrderItemInput{
			{VariantID: variantA, Quantity: 2},
			{VariantID: variantB, Quantity: 1},
		},
		AddressID:       address.ID,
		PaymentMethodID: codMethodID,
	})

	require.EqualError(t, err, "driver: bad connection")

	// The errored reserve left its counter untouched, and the earlier
	// reservation was unwound.
	assert.Equal(t, 10, inner.available(variantA))
	assert.Equal(t, 10, inner.available(variantB))
	assert.Equal(t, 0, orders.count())
}

func TestCancelWithPaymentChangeRejected(t *testing.T) {
	variantA := uuid.New()
	fix := newFixture(t,
		map[uuid.UUID]int{variantA: 2},
		map[uuid.UUID]VariantDetail{variantA: variantDetail(variantA, "Shirt", "M", 100)},
	)

	order, err := fix.orchestrator.CreateOrder(context.Background(), CreateOrderInput{
		UserID:          uuid.New(),
		Items:           []CreateOrderItemInput{{VariantID: variantA, Quantity: 2}},
		AddressID:       fix.address.ID,
		PaymentMethodID: fix.codMethodID,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, fix.ledger.available(variantA))

	// A payment status riding along on a cancellation request is rejected,
	// not silently dropped.
	_, err = fix.orchestrator.ChangeStatus(context.Background(), order.ID, models.OrderStatusCancelled, models.PaymentStatusPaid, ActorAdmin)
	var trErr *TransitionError
	require.ErrorAs(t, err, &trErr)
	assert.Equal(t, RulePaymentStatusNotAdminControlled, trErr.Rule)

	// The order was not cancelled and no stock came back.
	stored, err := fix.orders.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, stored.Status)
	assert.Equal(t, models.PaymentStatusUnpaid, stored.PaymentStatus)
	assert.Equal(t, 0, fix.ledger.available(variantA))
}

func TestConcurrentCreateNeverOversells(t *testing.T) {
	const (
		initialStock = 10
		perOrder     = 3
		attempts     = 8
	)

	variantA := uuid.New()
	fix := newFixture(t,
		map[uuid.UUID]int{variantA: initialStock},
		map[uuid.UUID]VariantDetail{variantA: variantDetail(variantA, "Shirt", "M", 100)},
	)

	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := fix.orchestrator.CreateOrder(context.Background(), CreateOrderInput{
				UserID:          uuid.New(),
				Items:           []CreateOrderItemInput{{VariantID: variantA, Quantity: perOrder}},
				AddressID:       fix.address.ID,
				PaymentMethodID: fix.codMethodID,
			})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var succeeded, failed int
	for err := range results {
		if err == nil {
			succeeded++
			continue
		}
		var stockErr *InsufficientStockError
		require.ErrorAs(t, err, &stockErr)
		failed++
	}

	wantSucceeded := initialStock / perOrder
	assert.Equal(t, wantSucceeded, succeeded)
	assert.Equal(t, attempts-wantSucceeded, failed)
	assert.Equal(t, initialStock-wantSucceeded*perOrder, fix.ledger.available(variantA))
	assert.GreaterOrEqual(t, fix.ledger.available(variantA), 0)
}

func TestCheckAvailableIsAdvisory(t *testing.T) {
	variantA := uuid.New()
	fix := newFixture(t,
		map[uuid.UUID]int{variantA: 2},
		map[uuid.UUID]VariantDetail{variantA: variantDetail(variantA, "Shirt", "M", 100)},
	)

	ok, err := fix.orchestrator.CheckAvailable(context.Background(), variantA, 2)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = fix.orchestrator.CheckAvailable(context.Background(), variantA, 3)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSetPaymentStatusThroughOrchestrator(t *testing.T) {
	variantA := uuid.New()
	fix := newFixture(t,
		map[uuid.UUID]int{variantA: 2},
		map[uuid.UUID]VariantDetail{variantA: variantDetail(variantA, "Shirt", "M", 100)},
	)

	order, err := fix.orchestrator.CreateOrder(context.Background(), CreateOrderInput{
		UserID:          uuid.New(),
		Items:           []CreateOrderItemInput{{VariantID: variantA, Quantity: 1}},
		AddressID:       fix.address.ID,
		PaymentMethodID: fix.gwMethodID,
	})
	require.NoError(t, err)

	updated, err := fix.orchestrator.SetPaymentStatus(context.Background(), order.ID, models.PaymentStatusPaid)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPaid, updated.PaymentStatus)
}
