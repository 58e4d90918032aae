package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/dahlia/internal/engine"
	"github.com/example/dahlia/internal/models"
	"github.com/example/dahlia/internal/utils"
)

// ProductHandler serves catalog reads and advisory stock checks.
type ProductHandler struct {
	db     *gorm.DB
	orders *engine.Orchestrator
}

// NewProductHandler constructs ProductHandler.
func NewProductHandler(db *gorm.DB, orders *engine.Orchestrator) *ProductHandler {
	return &ProductHandler{db: db, orders: orders}
}

// ListProducts returns active products with their variants.
func (h *ProductHandler) ListProducts(c *fiber.Ctx) error {
	pg := utils.ParsePagination(c)
	query := h.db.Model(&models.Product{}).Where("is_active = ?", true)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}

	var products []models.Product
	if err := query.Preload("Variants").
		Order("created_at desc").
		Limit(pg.Limit).Offset(pg.Offset).
		Find(&products).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    products,
		"pagination": fiber.Map{
			"current_page":   pg.Page,
			"items_per_page": pg.Limit,
			"total_items":    total,
		},
	})
}

// GetProduct returns a single product by slug or id.
func (h *ProductHandler) GetProduct(c *fiber.Ctx) error {
	param := c.Params("id")

	var product models.Product
	query := h.db.Preload("Variants")
	if id, err := uuid.Parse(param); err == nil {
		query = query.Where("id = ?", id)
	} else {
		query = query.Where("slug = ?", param)
	}

	if err := query.First(&product).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return fiber.NewError(fiber.StatusNotFound, "product not found")
		}
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": product})
}

// CheckVariantAvailability is the advisory pre-flight stock read for the UI.
// It may race with concurrent orders, so clients must still handle an
// insufficient-stock rejection at checkout.
func (h *ProductHandler) CheckVariantAvailability(c *fiber.Ctx) error {
	variantID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	quantity := c.QueryInt("quantity", 1)
	if quantity <= 0 {
		return fiber.NewError(fiber.StatusBadRequest, "quantity must be positive")
	}

	available, err := h.orders.CheckAvailable(c.Context(), variantID, quantity)
	if err != nil {
		return mapEngineError(err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"variant_id": variantID,
			"quantity":   quantity,
			"available":  available,
			"advisory":   true,
		},
	})
}
