package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/snaglog/snaglog-api/internal/config"
	"github.com/snaglog/snaglog-api/internal/database"
	"github.com/snaglog/snaglog-api/internal/models"
	"github.com/snaglog/snaglog-api/internal/repository"
	"github.com/snaglog/snaglog-api/internal/storage"
)

func main() {
	ownerID := flag.String("owner", "", "user id that will own the demo report")
	flag.Parse()
	if *ownerID == "" {
		log.Fatal("❌ -owner is required")
	}

	fmt.Println("🌱 SnagLog Demo Report Seeder")

	// Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}

	// Connect to database
	db, err := database.Connect(cfg.Database)
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Migrate(cfg.Database.Alter, &models.Report{}, &models.Snag{}); err != nil {
		log.Fatalf("❌ Migration failed: %v", err)
	}

	store, err := storage.NewMinioStore(cfg.Storage)
	if err != nil {
		log.Fatalf("❌ Failed to create storage client: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if err := store.EnsureBucket(ctx); err != nil {
		log.Fatalf("❌ Bucket check failed: %v", err)
	}

	report, err := seedDemoReport(ctx, repository.NewReportRepository(db.DB), store, *ownerID)
	if err != nil {
		log.Fatalf("❌ Seeding failed: %v", err)
	}

	fmt.Printf("✅ Demo report %s created with %d snags (status %s)\n", report.ShortID(), len(report.Snags), report.Status)
}
