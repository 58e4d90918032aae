package engine

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/example/dahlia/internal/models"
)

var (
	// ErrAddressNotFound is returned when the delivery address cannot be
	// loaded at order-creation time.
	ErrAddressNotFound = errors.New("address not found")

	// ErrAddressUnavailable marks an order whose address reference is dangling
	// and whose snapshot was never written. This is a data-migration gap, not
	// a normal runtime state; callers should flag the order for manual review.
	ErrAddressUnavailable = errors.New("address unavailable")

	ErrOrderNotFound         = errors.New("order not found")
	ErrVariantNotFound       = errors.New("product variant not found")
	ErrPaymentMethodNotFound = errors.New("payment method not found")
	ErrVoucherNotFound       = errors.New("voucher not found")

	// ErrStaleOrderState is returned when a conditional state update matched
	// no row because another writer got there first.
	ErrStaleOrderState = errors.New("order state changed concurrently")
)

// InsufficientStockError names the variant that could not be reserved so the
// caller can present an actionable message. A failed conditional decrement at
// the storage layer surfaces as this error too: it means the quantity was
// unavailable at that instant.
type InsufficientStockError struct {
	VariantID uuid.UUID
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for variant %s: requested %d, available %d",
		e.VariantID, e.Requested, e.Available)
}

// TransitionRule identifies which state-machine rule rejected a transition.
type TransitionRule string

const (
	RuleIllegalStatusTransition         TransitionRule = "illegal_status_transition"
	RuleBackwardTransition              TransitionRule = "backward_transition"
	RuleTerminalStateImmutable          TransitionRule = "terminal_state_immutable"
	RulePaymentStatusNotAdminControlled TransitionRule = "payment_status_not_admin_controlled"
)

// TransitionError is returned verbatim to the admin surface; violations are
// never retried or silently coerced.
type TransitionError struct {
	Rule TransitionRule
	From string
	To   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s -> %s", e.Rule, e.From, e.To)
}

func illegalTransition(from, to models.OrderStatus) error {
	return &TransitionError{Rule: RuleIllegalStatusTransition, From: string(from), To: string(to)}
}

func backwardTransition(from, to models.OrderStatus) error {
	return &TransitionError{Rule: RuleBackwardTransition, From: string(from), To: string(to)}
}

func terminalImmutable(from, to string) error {
	return &TransitionError{Rule: RuleTerminalStateImmutable, From: from, To: to}
}

func paymentNotAdminControlled(from, to models.PaymentStatus) error {
	return &TransitionError{Rule: RulePaymentStatusNotAdminControlled, From: string(from), To: string(to)}
}
