package handlers

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/dahlia/internal/engine"
	"github.com/example/dahlia/internal/models"
)

// PaymentHandler exposes payment methods and receives gateway callbacks.
type PaymentHandler struct {
	db     *gorm.DB
	orders *engine.Orchestrator
}

// NewPaymentHandler constructs PaymentHandler.
func NewPaymentHandler(db *gorm.DB, orders *engine.Orchestrator) *PaymentHandler {
	return &PaymentHandler{db: db, orders: orders}
}

// ListPaymentMethods returns active payment methods.
func (h *PaymentHandler) ListPaymentMethods(c *fiber.Ctx) error {
	var methods []models.PaymentMethod
	if err := h.db.Where("is_active = ?", true).Find(&methods).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": methods})
}

type gatewayCallbackRequest struct {
	OrderID       string `json:"order_id"`
	Outcome       string `json:"outcome"`
	TransactionID string `json:"transaction_id"`
}

// GatewayCallback records the terminal outcome the payment gateway reports for
// an order. Duplicate callbacks for an already-recorded outcome return 200
// without changing anything.
func (h *PaymentHandler) GatewayCallback(c *fiber.Ctx) error {
	var req gatewayCallbackRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	orderID, err := uuid.Parse(req.OrderID)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid order_id")
	}

	outcome := models.PaymentStatus(req.Outcome)
	if outcome != models.PaymentStatusPaid && outcome != models.PaymentStatusFailed {
		return fiber.NewError(fiber.StatusBadRequest, "outcome must be paid or failed")
	}

	order, err := h.orders.SetPaymentStatus(c.Context(), orderID, outcome)
	if err != nil {
		return mapEngineError(err)
	}

	log.Printf("[Gateway] order %s payment recorded as %s (tx %s)", order.Code, outcome, req.TransactionID)

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"order_id":       order.ID,
			"payment_status": order.PaymentStatus,
		},
	})
}
