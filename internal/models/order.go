package models

import (
	"time"

	"github.com/google/uuid"
)

// OrderStatus is the fulfilment state of an order.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// PaymentStatus is the payment state of an order, tracked orthogonally to OrderStatus.
type PaymentStatus string

const (
	PaymentStatusUnpaid PaymentStatus = "unpaid"
	PaymentStatusPaid   PaymentStatus = "paid"
	PaymentStatusFailed PaymentStatus = "failed"
)

// PaymentMethodKind distinguishes how an order is paid for.
type PaymentMethodKind string

const (
	PaymentMethodCOD     PaymentMethodKind = "cash_on_delivery"
	PaymentMethodGateway PaymentMethodKind = "online_gateway"
)

// AddressSnapshot is the order-owned copy of the delivery address, captured at
// order creation and never mutated afterwards. It carries no foreign key to the
// source address on purpose: editing or deleting the live address must not
// change what an order was shipped to.
type AddressSnapshot struct {
	FullName    string    `json:"full_name"`
	Phone       string    `json:"phone"`
	AddressLine string    `json:"address_line"`
	Ward        string    `json:"ward"`
	District    string    `json:"district"`
	City        string    `json:"city"`
	PostalCode  string    `json:"postal_code"`
	IsDefault   bool      `json:"is_default"`
	CapturedAt  time.Time `json:"captured_at"`
}

type Order struct {
	BaseModel
	UserID            uuid.UUID         `gorm:"type:uuid;index" json:"user_id"`
	User              *User             `json:"user,omitempty"`
	Code              string            `gorm:"uniqueIndex" json:"code"`
	Status            OrderStatus       `json:"status"`
	PaymentStatus     PaymentStatus     `json:"payment_status"`
	PaymentMethodID   *uuid.UUID        `gorm:"type:uuid" json:"payment_method_id"`
	PaymentMethod     *PaymentMethod    `json:"payment_method,omitempty"`
	PaymentMethodKind PaymentMethodKind `json:"payment_method_kind"`
	AddressID         *uuid.UUID        `gorm:"type:uuid" json:"address_id"`
	AddressSnapshot   AddressSnapshot   `gorm:"embedded;embeddedPrefix:snapshot_" json:"address_snapshot"`
	VoucherID         *uuid.UUID        `gorm:"type:uuid" json:"voucher_id"`
	DiscountAmount    float64           `json:"discount_amount"`
	Total             float64           `json:"total"`
	ShippingFee       float64           `json:"shipping_fee"`
	FinalTotal        float64           `json:"final_total"`
	PlacedAt          time.Time         `json:"placed_at"`
	Items             []OrderItem       `json:"items,omitempty"`
}

// OrderItem freezes quantity and prices at order time; line amounts are never
// recomputed from the live catalog.
type OrderItem struct {
	BaseModel
	OrderID          uuid.UUID `gorm:"type:uuid;index" json:"order_id"`
	ProductVariantID uuid.UUID `gorm:"type:uuid;index" json:"product_variant_id"`
	ProductName      string    `json:"product_name"`
	VariantLabel     string    `json:"variant_label"`
	Quantity         int       `json:"quantity"`
	UnitPrice        float64   `json:"unit_price"`
	LineTotal        float64   `json:"line_total"`
}

// OrderCounter allocates per-year sequence numbers for order codes.
type OrderCounter struct {
	Year  int   `gorm:"primaryKey" json:"year"`
	Value int64 `json:"value"`
}
