package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/example/dahlia/internal/models"
)

// Notifier receives fire-and-forget order lifecycle notifications.
type Notifier interface {
	NotifyOrderCreated(order *models.Order)
	NotifyOrderCancelled(order *models.Order)
}

// OrchestratorDeps bundles the collaborators required to construct an Orchestrator.
type OrchestratorDeps struct {
	Ledger      StockLedger
	Orders      OrderStore
	Snapshots   *SnapshotService
	Machine     *StateMachine
	Catalog     CatalogReader
	Payments    PaymentMethodReader
	Vouchers    VoucherReader
	ShippingFee float64
	Notifier    Notifier
	Clock       func() time.Time
}

// Orchestrator sequences the stock ledger, snapshot service and state machine
// for order creation, cancellation and status changes. It is the single entry
// point the HTTP layer uses.
type Orchestrator struct {
	ledger      StockLedger
	orders      OrderStore
	snapshots   *SnapshotService
	machine     *StateMachine
	catalog     CatalogReader
	payments    PaymentMethodReader
	vouchers    VoucherReader
	shippingFee float64
	notifier    Notifier
	clock       func() time.Time
}

func NewOrchestrator(deps OrchestratorDeps) (*Orchestrator, error) {
	if deps.Ledger == nil {
		return nil, errors.New("orchestrator: stock ledger is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("orchestrator: order store is required")
	}
	if deps.Snapshots == nil {
		return nil, errors.New("orchestrator: snapshot service is required")
	}
	if deps.Machine == nil {
		return nil, errors.New("orchestrator: state machine is required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("orchestrator: catalog reader is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("orchestrator: payment method reader is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Orchestrator{
		ledger:      deps.Ledger,
		orders:      deps.Orders,
		snapshots:   deps.Snapshots,
		machine:     deps.Machine,
		catalog:     deps.Catalog,
		payments:    deps.Payments,
		vouchers:    deps.Vouchers,
		shippingFee: deps.ShippingFee,
		notifier:    deps.Notifier,
		clock:       clock,
	}, nil
}

// CreateOrderItemInput is one requested order line.
type CreateOrderItemInput struct {
	VariantID uuid.UUID
	Quantity  int
}

// CreateOrderInput carries everything needed to place an order.
type CreateOrderInput struct {
	UserID          uuid.UUID
	Items           []CreateOrderItemInput
	AddressID       uuid.UUID
	PaymentMethodID uuid.UUID
	VoucherID       *uuid.UUID
}

type reservation struct {
	variantID uuid.UUID
	quantity  int
}

// CreateOrder reserves stock line by line, captures the address snapshot,
// freezes prices and totals, and persists the order in pending/unpaid. Any
// failure after the first successful reservation releases every reservation
// made for this request before returning, so the caller only ever sees one
// final success or one final typed error.
func (o *Orchestrator) CreateOrder(ctx context.Context, in CreateOrderInput) (*models.Order, error) {
	if len(in.Items) == 0 {
		return nil, errors.New("order must contain at least one item")
	}
	for _, item := range in.Items {
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("invalid quantity %d for variant %s", item.Quantity, item.VariantID)
		}
	}

	method, err := o.payments.LoadPaymentMethod(ctx, in.PaymentMethodID)
	if err != nil {
		return nil, err
	}

	var reserved []reservation
	var items []models.OrderItem
	var total float64

	for _, line := range in.Items {
		detail, err := o.catalog.LoadVariant(ctx, line.VariantID)
		if err != nil {
			o.releaseAll(ctx, reserved)
			return nil, err
		}

		if _, err := o.ledger.TryReserve(ctx, line.VariantID, line.Quantity); err != nil {
			o.releaseAll(ctx, reserved)
			return nil, err
		}
		reserved = append(reserved, reservation{variantID: line.VariantID, quantity: line.Quantity})

		lineTotal := detail.Variant.Price * float64(line.Quantity)
		total += lineTotal
		items = append(items, models.OrderItem{
			ProductVariantID: line.VariantID,
			ProductName:      detail.ProductName,
			VariantLabel:     detail.Variant.Label,
			Quantity:         line.Quantity,
			UnitPrice:        detail.Variant.Price,
			LineTotal:        lineTotal,
		})
	}

	snapshot, err := o.snapshots.Capture(ctx, in.AddressID)
	if err != nil {
		o.releaseAll(ctx, reserved)
		return nil, err
	}

	var discount float64
	var voucherID *uuid.UUID
	if in.VoucherID != nil && o.vouchers != nil {
		voucher, err := o.vouchers.LoadVoucher(ctx, *in.VoucherID)
		if err != nil {
			o.releaseAll(ctx, reserved)
			return nil, err
		}
		discount = voucher.DiscountAmount
		if discount > total {
			discount = total
		}
		voucherID = in.VoucherID
	}
	total -= discount

	code, err := o.nextOrderCode(ctx)
	if err != nil {
		o.releaseAll(ctx, reserved)
		return nil, err
	}

	addressID := in.AddressID
	order := &models.Order{
		UserID:            in.UserID,
		Code:              code,
		Status:            models.OrderStatusPending,
		PaymentStatus:     models.PaymentStatusUnpaid,
		PaymentMethodID:   &method.ID,
		PaymentMethodKind: method.Kind,
		AddressID:         &addressID,
		AddressSnapshot:   snapshot,
		VoucherID:         voucherID,
		DiscountAmount:    discount,
		Total:             total,
		ShippingFee:       o.shippingFee,
		FinalTotal:        total + o.shippingFee,
		PlacedAt:          o.clock(),
		Items:             items,
	}

	if err := o.orders.CreateOrder(ctx, order); err != nil {
		o.releaseAll(ctx, reserved)
		return nil, err
	}

	if o.notifier != nil {
		go o.notifier.NotifyOrderCreated(order)
	}

	return order, nil
}

// CancelOrder transitions the order to cancelled and, only if the transition
// succeeds, releases every reserved line exactly once.
func (o *Orchestrator) CancelOrder(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error) {
	order, err := o.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return o.cancel(ctx, order, actor)
}

func (o *Orchestrator) cancel(ctx context.Context, order *models.Order, actor Actor) (*models.Order, error) {
	updated, err := o.machine.Transition(ctx, order, models.OrderStatusCancelled, "", actor)
	if err != nil {
		return nil, err
	}

	for _, item := range order.Items {
		if err := o.ledger.Release(ctx, item.ProductVariantID, item.Quantity); err != nil {
			log.Printf("[Order] failed to release %d of variant %s for cancelled order %s: %v",
				item.Quantity, item.ProductVariantID, order.Code, err)
		}
	}

	if o.notifier != nil {
		go o.notifier.NotifyOrderCancelled(updated)
	}

	return updated, nil
}

// ChangeStatus delegates to the state machine; it has no stock or address side
// effects beyond the COD auto-paid derivation the machine performs itself. A
// payment status riding along on the request is checked before the cancel
// branch too, so it is rejected rather than dropped.
func (o *Orchestrator) ChangeStatus(ctx context.Context, orderID uuid.UUID, toStatus models.OrderStatus, requestedPayment models.PaymentStatus, actor Actor) (*models.Order, error) {
	order, err := o.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if requestedPayment != "" && requestedPayment != order.PaymentStatus {
		return nil, paymentNotAdminControlled(order.PaymentStatus, requestedPayment)
	}

	if toStatus == models.OrderStatusCancelled {
		return o.cancel(ctx, order, actor)
	}
	return o.machine.Transition(ctx, order, toStatus, requestedPayment, actor)
}

// SetPaymentStatus applies a terminal gateway outcome to an order.
func (o *Orchestrator) SetPaymentStatus(ctx context.Context, orderID uuid.UUID, outcome models.PaymentStatus) (*models.Order, error) {
	order, err := o.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return o.machine.SetPaymentStatus(ctx, order, outcome)
}

// ResolveDisplayAddress exposes the snapshot service's display resolution to
// the HTTP layer.
func (o *Orchestrator) ResolveDisplayAddress(ctx context.Context, order *models.Order) (DisplayAddress, error) {
	return o.snapshots.ResolveForDisplay(ctx, order)
}

// CheckAvailable is the advisory pre-flight stock read for UI checks.
func (o *Orchestrator) CheckAvailable(ctx context.Context, variantID uuid.UUID, qty int) (bool, error) {
	return o.ledger.CheckAvailable(ctx, variantID, qty)
}

func (o *Orchestrator) releaseAll(ctx context.Context, reserved []reservation) {
	for i := len(reserved) - 1; i >= 0; i-- {
		r := reserved[i]
		if err := o.ledger.Release(ctx, r.variantID, r.quantity); err != nil {
			log.Printf("[Order] failed to roll back reservation of %d for variant %s: %v",
				r.quantity, r.variantID, err)
		}
	}
}

func (o *Orchestrator) nextOrderCode(ctx context.Context) (string, error) {
	year := o.clock().Year()
	seq, err := o.orders.NextOrderSequence(ctx, year)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("DH%d%06d", year, seq), nil
}
