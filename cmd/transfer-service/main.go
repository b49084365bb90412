package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/retailops/retailops-backend/internal/transfer/events"
	"github.com/retailops/retailops-backend/internal/transfer/handler"
	"github.com/retailops/retailops-backend/internal/transfer/repository"
	"github.com/retailops/retailops-backend/internal/transfer/service"
	"github.com/retailops/retailops-backend/pkg/config"
	"github.com/retailops/retailops-backend/pkg/database"
	"github.com/retailops/retailops-backend/pkg/httputil"
	"github.com/retailops/retailops-backend/pkg/logger"
	"github.com/retailops/retailops-backend/pkg/messaging"
)

func main() {
	// Load configuration with validation (fails fast in production if required config is missing)
	cfg, err := config.LoadWithValidation("transfer-service")
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New("transfer-service", cfg.Server.Environment)
	log.Info().Msg("starting Transfer Service")

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

	// Initialize event publisher and sync queue
	publisher, err := events.NewTransferEventPublisher(rmq, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create event publisher")
	}
	syncQueue, err := events.NewSyncQueue(rmq, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create sync queue")
	}

	// Initialize repositories
	transferRepo := repository.NewTransferRepository(db)
	shipmentRepo := repository.NewShipmentRepository(db)
	receiptRepo := repository.NewReceiptRepository(db)
	lockRepo := repository.NewPackLockRepository(db)
	idempotencyRepo := repository.NewIdempotencyRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	// Initialize services
	sink := service.NewOpsSink(auditRepo, publisher, log)
	ledger := service.NewLedger(idempotencyRepo, log)
	transferService := service.NewTransferService(transferRepo, shipmentRepo, receiptRepo, auditRepo, log)
	lineService := service.NewLineService(db, transferRepo, publisher, syncQueue, sink, log)
	packingService := service.NewPackingService(db, transferRepo, shipmentRepo, publisher, syncQueue, sink, log)
	receivingService := service.NewReceivingService(db, transferRepo, shipmentRepo, receiptRepo, publisher, syncQueue, sink, log)
	lockService := service.NewLockService(lockRepo, cfg.Lock, log)

	// Initialize handlers
	transferHandler := handler.NewTransferHandler(transferService, log)
	lineHandler := handler.NewLineHandler(lineService, ledger, log)
	packingHandler := handler.NewPackingHandler(packingService, ledger, log)
	receivingHandler := handler.NewReceivingHandler(receivingService, ledger, log)
	lockHandler := handler.NewLockHandler(lockService, log)

	// Create router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(cors.Handler(cors.Options{
		AllowOriginFunc: func(r *http.Request, origin string) bool {
			if origin == "http://localhost:3000" || origin == "http://localhost:5173" {
				return true
			}
			return cfg.Server.Environment != config.EnvProduction
		},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-Test-Actor"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(httputil.ActorMiddleware(&cfg.JWT, cfg.Server.Environment))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]interface{}{
			"status":   "healthy",
			"service":  "transfer-service",
			"database": db.Health(r.Context()),
			"rabbitmq": rmq.Health(),
		})
	})

	// API routes
	r.Route("/api/v1/transfers", func(r chi.Router) {
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", transferHandler.Get)
			r.Get("/shipments", transferHandler.ListShipments)
			r.Get("/receipts", transferHandler.ListReceipts)
			r.Get("/discrepancies", transferHandler.ListDiscrepancies)
			r.Get("/audit", transferHandler.AuditTrail)

			r.Route("/items", func(r chi.Router) {
				r.Post("/", lineHandler.Add)
				r.Put("/{itemId}", lineHandler.UpdateQty)
				r.Delete("/{itemId}", lineHandler.Remove)
			})

			r.Post("/pack", packingHandler.Submit)
			r.Post("/receive", receivingHandler.Submit)

			r.Get("/lock", lockHandler.Status)
			r.Post("/lock", lockHandler.Mutate)
		})
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

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
