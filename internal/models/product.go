package models

import "github.com/google/uuid"

type Product struct {
	BaseModel
	Slug             string           `gorm:"uniqueIndex" json:"slug"`
	Name             string           `json:"name"`
	ShortDescription string           `json:"short_description"`
	LongDescription  string           `json:"long_description"`
	BasePrice        float64          `json:"base_price"`
	Currency         string           `json:"currency"`
	HeroImage        string           `json:"hero_image"`
	IsActive         bool             `json:"is_active"`
	Variants         []ProductVariant `json:"variants,omitempty"`
}

// ProductVariant is a concrete purchasable SKU (product x color x size).
// AvailableQuantity is mutated exclusively through the stock ledger's
// conditional update; no other code path may write it.
type ProductVariant struct {
	BaseModel
	ProductID         uuid.UUID `gorm:"type:uuid;index" json:"product_id"`
	SKU               string    `gorm:"uniqueIndex" json:"sku"`
	Color             string    `json:"color"`
	Size              string    `json:"size"`
	Label             string    `json:"label"`
	Price             float64   `json:"price"`
	AvailableQuantity int       `json:"available_quantity"`
	IsActive          bool      `json:"is_active"`
}
