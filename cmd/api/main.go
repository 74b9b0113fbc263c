package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/snaglog/snaglog-api/internal/ai"
	"github.com/snaglog/snaglog-api/internal/config"
	"github.com/snaglog/snaglog-api/internal/database"
	"github.com/snaglog/snaglog-api/internal/handlers"
	"github.com/snaglog/snaglog-api/internal/middleware"
	"github.com/snaglog/snaglog-api/internal/models"
	"github.com/snaglog/snaglog-api/internal/photo"
	"github.com/snaglog/snaglog-api/internal/repository"
	"github.com/snaglog/snaglog-api/internal/services/payment"
	"github.com/snaglog/snaglog-api/internal/services/printer"
	"github.com/snaglog/snaglog-api/internal/services/reports"
	"github.com/snaglog/snaglog-api/internal/storage"
	"github.com/snaglog/snaglog-api/internal/websocket"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// 2. Initialize database (Detects Embedded vs External automatically)
	db, err := database.Connect(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	// Note: db.Close() is called manually in shutdown handler below

	// 3. Synchronize schema
	log.Println("🚀 Synchronizing database schema...")
	if err := db.Migrate(cfg.Database.Alter, &models.Report{}, &models.Snag{}); err != nil {
		log.Printf("⚠️ Migration warning: %v\n", err)
	} else {
		log.Println("✅ Schema synchronized successfully")
	}

	// 4. Blob storage
	store, err := storage.NewMinioStore(cfg.Storage)
	if err != nil {
		log.Fatalf("Failed to create storage client: %v", err)
	}
	initCtx, initCancel := context.WithTimeout(context.Background(), 15*time.Second)
	if err := store.EnsureBucket(initCtx); err != nil {
		log.Printf("⚠️ Storage: bucket check failed: %v", err)
	}
	initCancel()

	// 5. Vision model (analysis degrades to sentinel records without it)
	var vision ai.VisionModel
	gemini, err := ai.NewGeminiClient(context.Background(), cfg.Gemini.APIKey, cfg.Gemini.Model)
	if err != nil {
		log.Printf("⚠️ AI: Gemini unavailable, photos will need manual review: %v", err)
	} else {
		defer gemini.Close()
		vision = gemini
		log.Printf("✅ AI: Gemini client ready (%s)", cfg.Gemini.Model)
	}

	// 6. Payments
	gateway := payment.NewGateway(cfg.Stripe)
	if cfg.Stripe.SecretKey == "" {
		log.Println("⚠️ Payments: STRIPE_SECRET_KEY not set, checkout is disabled")
	}

	// 7. Progress events
	hubCtx, hubCancel := context.WithCancel(context.Background())
	hub := websocket.NewHub()
	go hub.Run(hubCtx)

	// 8. Report pipeline
	service := reports.NewService(reports.Deps{
		Store: repository.NewReportRepository(db.DB),
		Blobs: store,
		Normalizer: photo.NewNormalizer(photo.Options{
			JPEGQuality:  cfg.Pipeline.JPEGQuality,
			HEICQuality:  cfg.Pipeline.HEICQuality,
			MaxDimension: cfg.Pipeline.MaxImageDimension,
		}),
		Analyzer: ai.NewAnalyzer(vision, store, cfg.Pipeline.AnalysisTimeout),
		Renderer: printer.NewReportRenderer(store, cfg.FrontendURL),
		Payments: gateway,
		Notifier: hub,
	}, reports.Options{
		AnalysisConcurrency: cfg.Pipeline.AnalysisConcurrency,
		UploadConcurrency:   cfg.Pipeline.UploadConcurrency,
		AnalysisStaleAfter:  cfg.Pipeline.AnalysisStaleAfter,
		RenderStaleAfter:    cfg.Pipeline.RenderStaleAfter,
		MaxPhotos:           cfg.Pipeline.MaxPhotos,
		FrontendURL:         cfg.FrontendURL,
	})

	// 9. Set up HTTP router
	router := handlers.NewRouter(handlers.Deps{
		Reports:  service,
		Events:   gateway,
		Auth:     middleware.NewAuthenticator(cfg.JWTSecret),
		Hub:      hub,
		Upgrader: websocket.Upgrader(cfg.FrontendURL),
		Limits: handlers.UploadLimits{
			MaxPhotoBytes: cfg.Pipeline.MaxPhotoBytes,
			MaxPhotos:     cfg.Pipeline.MaxPhotos,
		},
		Ping: db.Ping,
	})

	// 10. Start server with graceful shutdown
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           middleware.CORS(cfg.FrontendURL)(router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Channel to listen for shutdown signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	// Start server in goroutine
	go func() {
		log.Printf("🚀 SnagLog API (%s) starting on port %s\n", cfg.NodeEnv, cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for shutdown signal
	sig := <-shutdown
	log.Printf("\n⚠️  Received signal: %v. Shutting down gracefully...\n", sig)

	// Create context with timeout for graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Shutdown HTTP server
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	// Close progress listeners
	hubCancel()

	// Close database (this also stops embedded PostgreSQL)
	log.Println("🛑 Closing database connection...")
	if err := db.Close(); err != nil {
		log.Printf("Database close error: %v", err)
	}

	log.Println("✅ Shutdown complete")
}
