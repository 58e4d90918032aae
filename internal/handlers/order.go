package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/dahlia/internal/engine"
	"github.com/example/dahlia/internal/middleware"
	"github.com/example/dahlia/internal/models"
	"github.com/example/dahlia/internal/utils"
)

// OrderHandler manages order endpoints.
type OrderHandler struct {
	db     *gorm.DB
	orders *engine.Orchestrator
}

// NewOrderHandler constructs OrderHandler.
func NewOrderHandler(db *gorm.DB, orders *engine.Orchestrator) *OrderHandler {
	return &OrderHandler{db: db, orders: orders}
}

type orderItemRequest struct {
	VariantID string `json:"variant_id"`
	Quantity  int    `json:"quantity"`
}

type createOrderRequest struct {
	Items           []orderItemRequest `json:"items"`
	AddressID       string             `json:"address_id"`
	PaymentMethodID string             `json:"payment_method_id"`
	VoucherID       string             `json:"voucher_id"`
}

// CreateOrder allows authenticated users to place an order.
func (h *OrderHandler) CreateOrder(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var req createOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if len(req.Items) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "order must contain at least one item")
	}

	addressID, err := uuid.Parse(req.AddressID)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid address_id")
	}
	paymentMethodID, err := uuid.Parse(req.PaymentMethodID)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid payment_method_id")
	}

	input := engine.CreateOrderInput{
		UserID:          userID,
		AddressID:       addressID,
		PaymentMethodID: paymentMethodID,
	}
	for _, item := range req.Items {
		variantID, err := uuid.Parse(item.VariantID)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid variant_id")
		}
		if item.Quantity <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "quantity must be positive")
		}
		input.Items = append(input.Items, engine.CreateOrderItemInput{
			VariantID: variantID,
			Quantity:  item.Quantity,
		})
	}
	if req.VoucherID != "" {
		voucherID, err := uuid.Parse(req.VoucherID)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid voucher_id")
		}
		input.VoucherID = &voucherID
	}

	order, err := h.orders.CreateOrder(c.Context(), input)
	if err != nil {
		return mapEngineError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": order})
}

// ListOrders returns orders for the authenticated user.
func (h *OrderHandler) ListOrders(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	pg := utils.ParsePagination(c)
	query := h.db.Where("user_id = ?", userID).Model(&models.Order{})

	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}

	var orders []models.Order
	if err := query.Preload("Items").
		Order("placed_at desc").
		Limit(pg.Limit).Offset(pg.Offset).
		Find(&orders).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    orders,
		"pagination": fiber.Map{
			"current_page":   pg.Page,
			"items_per_page": pg.Limit,
			"total_items":    total,
		},
	})
}

// GetOrder returns a single order for the authenticated user, with the
// delivery address resolved through the snapshot service.
func (h *OrderHandler) GetOrder(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	var order models.Order
	if err := h.db.Preload("Items").
		First(&order, "id = ? AND user_id = ?", id, userID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return fiber.NewError(fiber.StatusNotFound, "order not found")
		}
		return err
	}

	response := fiber.Map{"success": true, "data": order}

	display, err := h.orders.ResolveDisplayAddress(c.Context(), &order)
	switch {
	case err == nil:
		response["delivery_address"] = display
	case errors.Is(err, engine.ErrAddressUnavailable):
		response["delivery_address"] = nil
		response["needs_manual_review"] = true
	default:
		return err
	}

	return c.JSON(response)
}

// CancelOrder cancels the authenticated user's order if it is still cancellable.
func (h *OrderHandler) CancelOrder(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	// Ownership check before touching the engine.
	var order models.Order
	if err := h.db.Select("id").First(&order, "id = ? AND user_id = ?", id, userID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return fiber.NewError(fiber.StatusNotFound, "order not found")
		}
		return err
	}

	cancelled, err := h.orders.CancelOrder(c.Context(), id, engine.ActorCustomer)
	if err != nil {
		return mapEngineError(err)
	}

	return c.JSON(fiber.Map{"success": true, "data": cancelled})
}

type changeStatusRequest struct {
	Status        string `json:"status"`
	PaymentStatus string `json:"payment_status"`
}

// ChangeStatus is the admin endpoint for advancing an order through fulfilment.
func (h *OrderHandler) ChangeStatus(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	var req changeStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.Status == "" {
		return fiber.NewError(fiber.StatusBadRequest, "status is required")
	}

	order, err := h.orders.ChangeStatus(c.Context(), id,
		models.OrderStatus(req.Status), models.PaymentStatus(req.PaymentStatus), engine.ActorAdmin)
	if err != nil {
		return mapEngineError(err)
	}

	return c.JSON(fiber.Map{"success": true, "data": order})
}

type changePaymentStatusRequest struct {
	PaymentStatus string `json:"payment_status"`
}

// ChangePaymentStatus exists so the admin UI gets an explicit, typed rejection:
// payment status is derived for COD orders and gateway-owned for online ones.
func (h *OrderHandler) ChangePaymentStatus(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	var req changePaymentStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.PaymentStatus == "" {
		return fiber.NewError(fiber.StatusBadRequest, "payment_status is required")
	}

	var order models.Order
	if err := h.db.First(&order, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return fiber.NewError(fiber.StatusNotFound, "order not found")
		}
		return err
	}

	// Admins have no authority over payment status at all; echoing the
	// current value does not make the request legitimate.
	if models.PaymentStatus(req.PaymentStatus) == order.PaymentStatus {
		return fiber.NewError(fiber.StatusForbidden,
			"payment status is not admin controlled")
	}

	// Keeping the current status while requesting a payment change routes the
	// request through the state machine's payment-authority rule.
	updated, err := h.orders.ChangeStatus(c.Context(), id, order.Status,
		models.PaymentStatus(req.PaymentStatus), engine.ActorAdmin)
	if err != nil {
		return mapEngineError(err)
	}

	return c.JSON(fiber.Map{"success": true, "data": updated})
}

// mapEngineError translates engine errors into HTTP errors, preserving the
// typed detail so the UI can present an actionable message.
func mapEngineError(err error) error {
	var stockErr *engine.InsufficientStockError
	if errors.As(err, &stockErr) {
		return fiber.NewError(fiber.StatusConflict, stockErr.Error())
	}

	var trErr *engine.TransitionError
	if errors.As(err, &trErr) {
		if trErr.Rule == engine.RulePaymentStatusNotAdminControlled {
			return fiber.NewError(fiber.StatusForbidden, trErr.Error())
		}
		return fiber.NewError(fiber.StatusConflict, trErr.Error())
	}

	switch {
	case errors.Is(err, engine.ErrAddressNotFound):
		return fiber.NewError(fiber.StatusNotFound, "address not found")
	case errors.Is(err, engine.ErrOrderNotFound):
		return fiber.NewError(fiber.StatusNotFound, "order not found")
	case errors.Is(err, engine.ErrVariantNotFound):
		return fiber.NewError(fiber.StatusNotFound, "product variant not found")
	case errors.Is(err, engine.ErrPaymentMethodNotFound):
		return fiber.NewError(fiber.StatusNotFound, "payment method not found")
	case errors.Is(err, engine.ErrVoucherNotFound):
		return fiber.NewError(fiber.StatusNotFound, "voucher not found")
	case errors.Is(err, engine.ErrStaleOrderState):
		return fiber.NewError(fiber.StatusConflict, "order state changed, reload and retry")
	}

	return err
}
