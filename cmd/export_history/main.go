package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/mroshb/tiktok_claims/internal/config"
	"github.com/mroshb/tiktok_claims/internal/database"
	"github.com/mroshb/tiktok_claims/internal/reports"
	"github.com/mroshb/tiktok_claims/internal/repositories"
	"github.com/mroshb/tiktok_claims/pkg/logger"
	"github.com/mroshb/tiktok_claims/pkg/utils"
)

func main() {
	from := flag.String("from", "", "first day to export, YYYY-MM-DD (claim timezone)")
	to := flag.String("to", "", "last day to export, inclusive; defaults to -from")
	out := flag.String("out", "tiktok_claim_history.xlsx", "output workbook path")
	flag.Parse()

	if *from == "" {
		fmt.Fprintln(os.Stderr, "-from is required")
		flag.Usage()
		os.Exit(2)
	}
	if *to == "" {
		*to = *from
	}

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment")
	}
	logger.Init()
	defer logger.Sync()

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("Failed to load config", err)
	}

	calendar, err := utils.NewCalendar(cfg.ClaimTimezone)
	if err != nil {
		logger.Fatal("Invalid claim timezone", err)
	}
	start, err := calendar.ParseDate(*from)
	if err != nil {
		logger.Fatal("Invalid -from date", err)
	}
	last, err := calendar.ParseDate(*to)
	if err != nil {
		logger.Fatal("Invalid -to date", err)
	}
	end := last.AddDate(0, 0, 1)
	if !end.After(start) {
		logger.Fatal("Invalid range", fmt.Errorf("-to %s is before -from %s", *to, *from))
	}

	db, err := database.Connect(cfg)
	if err != nil {
		logger.Fatal("Failed to connect to database", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	entries, err := repositories.NewHistoryRepository(db).ListBetween(ctx, start, end)
	if err != nil {
		logger.Fatal("Failed to load claim history", err)
	}

	f, err := reports.BuildHistoryWorkbook(entries, calendar.Location())
	if err != nil {
		logger.Fatal("Failed to build workbook", err)
	}
	defer f.Close()

	if err := f.SaveAs(*out); err != nil {
		logger.Fatal("Failed to save workbook", err)
	}

	fmt.Printf("Exported %d history entries to %s\n", len(entries), *out)
}
