package routes

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"gorm.io/gorm"

	"github.com/example/pps/internal/config"
	"github.com/example/pps/internal/gateway"
	"github.com/example/pps/internal/handlers"
	"github.com/example/pps/internal/middleware"
	"github.com/example/pps/internal/models"
	"github.com/example/pps/internal/ratelimit"
	"github.com/example/pps/internal/repository"
	"github.com/example/pps/internal/services"
)

// Dependencies are the long-lived components built at startup.
type Dependencies struct {
	DB        *gorm.DB
	Config    *config.Config
	Logger    *slog.Logger
	Limiter   *ratelimit.Limiter
	Gateways  *gateway.Registry
	Publisher services.Publisher
	Probes    []handlers.Probe
}

// NewApp returns a fiber app with the shared error handler installed.
func NewApp(logger *slog.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "Payment Processing Intermediary",
		ErrorHandler:          handlers.ErrorHandler(logger),
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	return app
}

// Register wires up all HTTP routes. Requests pass through the stages in
// this order: correlation, admission, then for webhooks signature
// verification, and finally the handler.
func Register(app *fiber.App, deps Dependencies) error {
	merchantRepo := repository.NewMerchantRepo(deps.DB)
	transactionRepo := repository.NewTransactionRepo(deps.DB)
	webhookRepo := repository.NewWebhookRepo(deps.DB)

	transactionService := services.NewTransactionService(
		merchantRepo,
		transactionRepo,
		deps.Gateways,
		deps.Config.GatewayTimeout,
		deps.Config.ReservationLease,
	)
	webhookService := services.NewWebhookService(transactionRepo, webhookRepo, deps.Gateways, deps.Publisher)

	transactionHandler := handlers.NewTransactionHandler(transactionService, deps.Logger)
	webhookHandler := handlers.NewWebhookHandler(webhookService, deps.Logger)
	healthHandler := handlers.NewHealthHandler(deps.Probes...)

	app.Use(middleware.Correlation())

	app.Get("/-/live", healthHandler.Live)
	app.Get("/-/ready", healthHandler.Ready)

	api := app.Group("/api/v1", middleware.RateLimit(deps.Limiter, deps.Config.RateLimitFailOpen, deps.Logger))

	transactions := api.Group("/transactions")
	transactions.Post("/initiate", transactionHandler.Initiate)
	transactions.Get("/", middleware.MerchantAuth(transactionService), transactionHandler.ListTransactions)
	transactions.Get("/:id", middleware.MerchantAuth(transactionService), transactionHandler.GetTransaction)

	webhooks := api.Group("/webhooks")
	for path, kind := range map[string]models.Gateway{
		"/paystack":    models.GatewayPaystack,
		"/flutterwave": models.GatewayFlutterwave,
	} {
		provider, err := deps.Gateways.Get(kind)
		if err != nil {
			return err
		}
		webhooks.Post(path, middleware.WebhookSignature(provider, deps.Logger), webhookHandler.Receive(kind))
	}

	return nil
}
