package main // Entry point package

import (
	"context"
	"log" // Logging library

	"github.com/joho/godotenv"    // Loads .env files in development
	"github.com/labstack/echo/v4" // Echo web framework

	"github.com/recomplejos/court-booking/internal/availability"
	"github.com/recomplejos/court-booking/internal/config"
	"github.com/recomplejos/court-booking/internal/crypto"
	"github.com/recomplejos/court-booking/internal/database"
	"github.com/recomplejos/court-booking/internal/handler"
	"github.com/recomplejos/court-booking/internal/hold"
	"github.com/recomplejos/court-booking/internal/middleware"
	"github.com/recomplejos/court-booking/internal/payment"
	"github.com/recomplejos/court-booking/internal/queue"
	"github.com/recomplejos/court-booking/internal/repository"
	"github.com/recomplejos/court-booking/internal/router"
	"github.com/recomplejos/court-booking/internal/store"
	"github.com/recomplejos/court-booking/internal/token"
	"github.com/recomplejos/court-booking/internal/webhook"
)

func main() {
	_ = godotenv.Load() // .env is optional; real deployments use the environment
	cfg := config.Load()
	ctx := context.Background()

	// Durable storage: facility configuration and gateway credentials.
	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("mysql: %v", err)
	}
	if err := database.Migrate(ctx, db); err != nil {
		log.Fatalf("mysql: %v", err)
	}
	sealer, err := crypto.New(cfg.CredentialKeyHex)
	if err != nil {
		log.Fatalf("credential key: %v", err)
	}
	facilityRepo := repository.NewFacilityRepo(db)
	facilityCache := repository.NewFacilityCache(facilityRepo, cfg.FacilityCacheTTL)
	credRepo := repository.NewCredentialRepo(db, sealer)

	// Live reservation state: Redis when reachable, in-process otherwise.
	// The memory fallback keeps a single instance working through a
	// Redis outage but gives up cross-instance exclusivity and restart
	// survival, so it is loudly logged.
	var (
		slotStore    store.Store
		sessionIndex store.Index
	)
	rdb := config.NewRedisClient()
	if rdb != nil {
		slotStore = store.NewRedisStore(rdb)
		sessionIndex = store.NewRedisIndex(rdb, cfg.SessionIndexTTL)
	} else {
		log.Printf("WARNING: redis unreachable, using in-memory reservation store")
		slotStore = store.NewMemoryStore()
		sessionIndex = store.NewMemoryIndex()
	}

	// Payment gateway and the components built on it.
	gateway := payment.NewClient(payment.Config{
		BaseURL:      cfg.MPBaseURL,
		AuthURL:      cfg.MPAuthURL,
		ClientID:     cfg.MPClientID,
		ClientSecret: cfg.MPClientSecret,
		RedirectURI:  cfg.MPRedirectURI,
		Timeout:      cfg.GatewayTimeout,
	})
	tokens := token.NewManager(credRepo, gateway)
	holds := hold.NewManager(slotStore, cfg.HoldLease, cfg.SweepInterval)
	orchestrator := payment.NewOrchestrator(slotStore, sessionIndex, tokens, gateway, holds, payment.ReturnURLs{
		Success:      cfg.PublicBaseURL + "/pago/exito",
		Pending:      cfg.PublicBaseURL + "/pago/pendiente",
		Failure:      cfg.PublicBaseURL + "/pago/error",
		Notification: cfg.BackendBaseURL + "/webhook/mp",
	})
	validator := availability.NewValidator(facilityCache)

	// Confirmations travel through RabbitMQ: the reconciler publishes,
	// the consumer fans out to the owner's WhatsApp and email.
	publisher := queue.NewPublisher()
	reconciler := webhook.NewReconciler(slotStore, sessionIndex, tokens, gateway, publisher)
	notifier := queue.NewOwnerNotifier()
	notifier.WhatsAppToken = cfg.WhatsAppToken
	notifier.WhatsAppPhoneID = cfg.WhatsAppPhoneID
	notifier.AdminWhatsAppTo = cfg.AdminWhatsAppTo
	notifier.ResendAPIKey = cfg.ResendAPIKey
	notifier.ResendFrom = cfg.ResendFrom
	notifier.AdminEmail = cfg.AdminEmail
	consumer := queue.NewConsumer(facilityCache, notifier)

	go holds.RunSweeper(ctx)
	go consumer.Run(ctx)

	e := echo.New()
	// The limiter is registered per route group, never globally: the
	// webhook endpoint must always acknowledge gateway deliveries.
	limiter := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb)

	bookingHandler := handler.NewBookingHandler(validator, facilityCache, holds, orchestrator, slotStore)
	facilityHandler := handler.NewFacilityHandler(facilityRepo, facilityCache)
	oauthHandler := handler.NewOAuthHandler(gateway, tokens, cfg.StateSecret)
	webhookHandler := handler.NewWebhookHandler(reconciler)

	router.RegisterRoutes(e, bookingHandler, limiter)
	router.RegisterOperator(e, bookingHandler, facilityHandler, oauthHandler, cfg.AdminToken, limiter)
	router.RegisterWebhook(e, webhookHandler)

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)
	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
