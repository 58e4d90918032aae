package routes

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/example/dahlia/internal/config"
	"github.com/example/dahlia/internal/engine"
	"github.com/example/dahlia/internal/handlers"
	"github.com/example/dahlia/internal/middleware"
	"github.com/example/dahlia/internal/services"
)

// Register wires up all HTTP routes.
func Register(app *fiber.App, db *gorm.DB, cfg *config.Config) {
	telegramService := services.NewTelegramService(cfg.TelegramBotToken, cfg.TelegramAdminChat)

	store := engine.NewStore(db)
	orchestrator, err := engine.NewOrchestrator(engine.OrchestratorDeps{
		Ledger:      engine.NewStockLedger(db),
		Orders:      store,
		Snapshots:   engine.NewSnapshotService(store, nil),
		Machine:     engine.NewStateMachine(store),
		Catalog:     store,
		Payments:    store,
		Vouchers:    store,
		ShippingFee: cfg.ShippingFee,
		Notifier:    telegramService,
	})
	if err != nil {
		log.Fatalf("failed to build order orchestrator: %v", err)
	}

	authHandler := handlers.NewAuthHandler(db, cfg)
	productHandler := handlers.NewProductHandler(db, orchestrator)
	orderHandler := handlers.NewOrderHandler(db, orchestrator)
	paymentHandler := handlers.NewPaymentHandler(db, orchestrator)
	profileHandler := handlers.NewProfileHandler(db)
	adminHandler := handlers.NewAdminHandler(db)

	api := app.Group("/api")

	// Auth routes
	auth := api.Group("/auth")
	auth.Post("/register", authHandler.Register)
	auth.Post("/login", authHandler.Login)

	// Catalog reads
	products := api.Group("/products")
	products.Get("/", productHandler.ListProducts)
	products.Get("/:id", productHandler.GetProduct)
	api.Get("/variants/:id/availability", productHandler.CheckVariantAvailability)

	// Payment methods and the gateway callback
	api.Get("/payment-methods", paymentHandler.ListPaymentMethods)
	api.Post("/payments/gateway/callback",
		middleware.GatewayAuthMiddleware(cfg.GatewayCallbackKey),
		paymentHandler.GatewayCallback)

	// Protected routes
	protected := api.Group("", middleware.AuthMiddleware(cfg))

	protected.Post("/orders", orderHandler.CreateOrder)
	protected.Get("/orders", orderHandler.ListOrders)
	protected.Get("/orders/:id", orderHandler.GetOrder)
	protected.Patch("/orders/:id/cancel", orderHandler.CancelOrder)

	protected.Get("/profile", profileHandler.GetProfile)
	protected.Put("/profile", profileHandler.UpdateProfile)
	protected.Get("/profile/addresses", profileHandler.ListAddresses)
	protected.Post("/profile/addresses", profileHandler.CreateAddress)
	protected.Put("/profile/addresses/:id", profileHandler.UpdateAddress)
	protected.Delete("/profile/addresses/:id", profileHandler.DeleteAddress)

	// Admin routes
	admin := api.Group("/admin", middleware.AuthMiddleware(cfg), middleware.RequireAdmin())
	admin.Get("/orders", adminHandler.ListOrders)
	admin.Get("/stats", adminHandler.DashboardStats)
	admin.Put("/orders/:id/status", orderHandler.ChangeStatus)
	admin.Put("/orders/:id/payment-status", orderHandler.ChangePaymentStatus)
}
