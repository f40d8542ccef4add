package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cafeflow/cafeflow-backend/internal/stock/consumers"
	"github.com/cafeflow/cafeflow-backend/internal/stock/events"
	"github.com/cafeflow/cafeflow-backend/internal/stock/handler"
	"github.com/cafeflow/cafeflow-backend/internal/stock/repository"
	"github.com/cafeflow/cafeflow-backend/internal/stock/service"
	"github.com/cafeflow/cafeflow-backend/pkg/config"
	"github.com/cafeflow/cafeflow-backend/pkg/database"
	"github.com/cafeflow/cafeflow-backend/pkg/httputil"
	"github.com/cafeflow/cafeflow-backend/pkg/logger"
	"github.com/cafeflow/cafeflow-backend/pkg/messaging"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func main() {
	// Load configuration with validation (fails fast in production if required config is missing)
	cfg, err := config.LoadWithValidation("stock-service")
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New("stock-service", cfg.Server.Environment)
	log.Info().Msg("starting Stock Service")

	// Connect to database
	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// Connect to RabbitMQ
	rmq, err := messaging.New(&cfg.RabbitMQ, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
	}
	defer rmq.Close()

	// Initialize event publisher
	publisher, err := events.NewStockEventPublisher(rmq, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create event publisher")
	}

	// Initialize ledger store
	store := repository.NewStore(db, cfg.Stock, log)

	// Initialize services
	alertGenerator := service.NewAlertGenerator(store, cfg.Stock)
	deductionEngine := service.NewDeductionEngine(store, alertGenerator, publisher, log)
	adjustmentService := service.NewAdjustmentService(store, deductionEngine, publisher, log)
	reconciliationProcessor := service.NewReconciliationProcessor(store, publisher, cfg.Stock, log)
	ingredientService := service.NewIngredientService(store, log)

	// Initialize handlers
	ingredientHandler := handler.NewIngredientHandler(ingredientService, log)
	batchHandler := handler.NewBatchHandler(adjustmentService, log)
	deductionHandler := handler.NewDeductionHandler(deductionEngine, log)
	adjustmentHandler := handler.NewAdjustmentHandler(adjustmentService, log)
	reconciliationHandler := handler.NewReconciliationHandler(reconciliationProcessor, log)
	alertHandler := handler.NewAlertHandler(alertGenerator, log)

	// Start order event consumer
	orderConsumer, err := consumers.NewOrderEventConsumer(rmq, deductionEngine, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create order event consumer")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := orderConsumer.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start order event consumer")
	}

	// Create router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(httputil.ActorMiddleware) // Resolve acting staff member from headers

	// CORS for the POS frontend
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-Staff-ID", "X-Staff-Name"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]interface{}{
			"status":   "ok",
			"service":  "stock-service",
			"database": db.Health(r.Context()),
			"rabbitmq": rmq.Health(),
		})
	})

	// Routes
	r.Route("/api/v1/stock", func(r chi.Router) {
		r.Route("/ingredients", func(r chi.Router) {
			r.Get("/", ingredientHandler.List)
			r.Post("/", ingredientHandler.Create)
			r.Get("/{id}", ingredientHandler.Get)
			r.Put("/{id}", ingredientHandler.Update)
			r.Get("/{id}/movements", ingredientHandler.Movements)
			r.Get("/{id}/batches", ingredientHandler.ListBatches)
			r.Post("/{id}/batches", batchHandler.Receive)
		})

		r.Route("/deductions", func(r chi.Router) {
			r.Post("/", deductionHandler.Deduct)
			r.Post("/preview", deductionHandler.Preview)
		})

		r.Post("/adjustments", adjustmentHandler.Adjust)
		r.Post("/waste", adjustmentHandler.RecordWaste)
		r.Post("/reconciliations", reconciliationHandler.Reconcile)

		r.Get("/alerts", alertHandler.List)
	})

	// Create server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Cancel context to stop consumers
	cancel()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
