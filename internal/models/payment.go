package models

type PaymentMethod struct {
	BaseModel
	Name     string            `json:"name"`
	Kind     PaymentMethodKind `json:"kind"`
	Image    string            `json:"image"`
	IsActive bool              `json:"is_active"`
}

// Voucher holds a fixed discount amount. The amount applied to an order is
// copied onto the order at creation and is immutable afterwards, matching the
// price-freezing rule for order items.
type Voucher struct {
	BaseModel
	Code           string  `gorm:"uniqueIndex" json:"code"`
	DiscountAmount float64 `json:"discount_amount"`
	IsActive       bool    `json:"is_active"`
}
