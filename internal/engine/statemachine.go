package engine

import (
	"context"

	"github.com/example/dahlia/internal/models"
)

// Actor identifies who asked for a transition.
type Actor string

const (
	ActorCustomer Actor = "customer"
	ActorAdmin    Actor = "admin"
	ActorGateway  Actor = "gateway"
)

var statusRank = map[models.OrderStatus]int{
	models.OrderStatusPending:    0,
	models.OrderStatusProcessing: 1,
	models.OrderStatusShipped:    2,
	models.OrderStatusDelivered:  3,
}

func isTerminal(status models.OrderStatus) bool {
	return status == models.OrderStatusDelivered || status == models.OrderStatusCancelled
}

// StateMachine is the single authority for which (status, paymentStatus)
// change is legal, parameterized by the order's payment method kind. Status
// moves forward-only through pending -> processing -> shipped -> delivered;
// cancellation is allowed from pending or processing only; delivered and
// cancelled are terminal.
type StateMachine struct {
	orders OrderStore
}

func NewStateMachine(orders OrderStore) *StateMachine {
	return &StateMachine{orders: orders}
}

// Transition validates and persists a status change. Payment status is never
// caller-supplied: for cash-on-delivery orders it flips to paid as a side
// effect of entering delivered (the courier collects cash), and for gateway
// orders it is owned by the payment callback. Any explicit requestedPayment
// differing from the current value is rejected regardless of actor. Only
// admins may advance fulfilment status; other actors are limited to
// cancellation.
func (m *StateMachine) Transition(ctx context.Context, order *models.Order, toStatus models.OrderStatus, requestedPayment models.PaymentStatus, actor Actor) (*models.Order, error) {
	if requestedPayment != "" && requestedPayment != order.PaymentStatus {
		return nil, paymentNotAdminControlled(order.PaymentStatus, requestedPayment)
	}

	if actor != ActorAdmin && toStatus != models.OrderStatusCancelled {
		return nil, illegalTransition(order.Status, toStatus)
	}

	if err := validateStatusChange(order.Status, toStatus); err != nil {
		return nil, err
	}

	newPayment := order.PaymentStatus
	if toStatus == models.OrderStatusDelivered && order.PaymentMethodKind == models.PaymentMethodCOD {
		newPayment = models.PaymentStatusPaid
	}

	if err := m.orders.UpdateOrderState(ctx, order.ID, order.Status, toStatus, newPayment); err != nil {
		return nil, err
	}

	updated := *order
	updated.Status = toStatus
	updated.PaymentStatus = newPayment
	return &updated, nil
}

func validateStatusChange(from, to models.OrderStatus) error {
	if isTerminal(from) {
		return terminalImmutable(string(from), string(to))
	}
	if to == from {
		return illegalTransition(from, to)
	}

	if to == models.OrderStatusCancelled {
		if from == models.OrderStatusPending || from == models.OrderStatusProcessing {
			return nil
		}
		// Shipped goods are already in the fulfilment pipeline.
		return illegalTransition(from, to)
	}

	fromRank, fromOK := statusRank[from]
	toRank, toOK := statusRank[to]
	if !fromOK || !toOK {
		return illegalTransition(from, to)
	}
	if toRank < fromRank {
		return backwardTransition(from, to)
	}
	if toRank != fromRank+1 {
		return illegalTransition(from, to)
	}
	return nil
}

// SetPaymentStatus records the terminal outcome reported by the external
// payment gateway. It applies only to online_gateway orders: cash-on-delivery
// payment is derived on delivery and no other caller has authority over it.
// A duplicate callback for an already-recorded outcome is a no-op.
func (m *StateMachine) SetPaymentStatus(ctx context.Context, order *models.Order, outcome models.PaymentStatus) (*models.Order, error) {
	if outcome != models.PaymentStatusPaid && outcome != models.PaymentStatusFailed {
		return nil, paymentNotAdminControlled(order.PaymentStatus, outcome)
	}
	if order.PaymentMethodKind != models.PaymentMethodGateway {
		return nil, paymentNotAdminControlled(order.PaymentStatus, outcome)
	}
	if order.Status == models.OrderStatusCancelled {
		return nil, terminalImmutable(string(order.Status), string(outcome))
	}

	if order.PaymentStatus == outcome {
		return order, nil
	}
	if order.PaymentStatus != models.PaymentStatusUnpaid {
		return nil, terminalImmutable(string(order.PaymentStatus), string(outcome))
	}

	if err := m.orders.UpdatePaymentStatus(ctx, order.ID, order.PaymentStatus, outcome); err != nil {
		return nil, err
	}

	updated := *order
	updated.PaymentStatus = outcome
	return &updated, nil
}
