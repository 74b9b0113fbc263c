package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/snaglog/snaglog-api/internal/config"
	"github.com/snaglog/snaglog-api/internal/database"
	"github.com/snaglog/snaglog-api/internal/models"
	"github.com/snaglog/snaglog-api/internal/repository"
)

func main() {
	ownerID := flag.String("owner", "", "user id whose reports are listed")
	flag.Parse()
	if *ownerID == "" {
		fmt.Println("❌ -owner is required")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("❌ Failed to load config: %v\n", err)
		os.Exit(1)
	}

	db, err := database.Connect(cfg.Database)
	if err != nil {
		fmt.Printf("❌ Failed to connect: %v\n", err)
		fmt.Println("\n💡 Try starting the server first:")
		fmt.Println("   go run ./cmd/api")
		os.Exit(1)
	}
	defer db.Close()

	repo := repository.NewReportRepository(db.DB)
	list, err := repo.ListReports(context.Background(), *ownerID)
	if err != nil {
		fmt.Printf("❌ Failed to list reports: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("╔═══════════════════════════════════════════════════════════╗")
	fmt.Println("║               📊 SnagLog Report Overview                  ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Reports for %s: %d\n\n", *ownerID, len(list))

	for i := range list {
		printReport(&list[i])
	}
}

func printReport(report *models.Report) {
	s := models.Summarize(report.Snags)
	fmt.Printf("📋 [%s] %s\n", report.ShortID(), report.PropertyAddress)
	fmt.Println("──────────────────────────────────────────────────────────")
	fmt.Printf("  Status: %s | Payment: %s\n", report.Status, report.PaymentStatus)
	fmt.Printf("  Snags: %d (minor %d, moderate %d, major %d, unrated %d)\n",
		s.Counts.Total, s.Counts.Minor, s.Counts.Moderate, s.Counts.Major, s.Counts.Unrated)
	for _, g := range s.ByRoom {
		fmt.Printf("  └─ %-20s %3d\n", g.Key, g.Counts.Total)
	}
	if report.DocumentURL != "" {
		fmt.Printf("  Document: %s\n", report.DocumentURL)
	}
	fmt.Println()
}
