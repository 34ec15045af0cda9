package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"nhlcrawl/internal/config"
	"nhlcrawl/internal/crawl"
	"nhlcrawl/internal/domain"
	"nhlcrawl/internal/manifest"
	"nhlcrawl/internal/nhlapi"
	"nhlcrawl/internal/store"
	"nhlcrawl/internal/util"
)

func main() {
	startStr := flag.String("start-date", "", "first date to crawl (inclusive), YYYY-MM-DD or YYYYMMDD")
	endStr := flag.String("end-date", "", "last date to crawl (inclusive), YYYY-MM-DD or YYYYMMDD")
	flag.Parse()

	if *startStr == "" || *endStr == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfgPath := "config/nhlcrawl.yaml"
	if p := os.Getenv("NHLCRAWL_CONFIG"); p != "" {
		cfgPath = p
	}
	if _, err := os.Stat(cfgPath); err != nil {
		// No config file: run on defaults plus environment.
		cfgPath = ""
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level)
	util.SetDefault(logger)

	start, err := parseDate(*startStr)
	if err != nil {
		log.Fatalf("invalid -start-date: %v", err)
	}
	end, err := parseDate(*endStr)
	if err != nil {
		log.Fatalf("invalid -end-date: %v", err)
	}
	dateRange, err := domain.NewDateRange(start, end)
	if err != nil {
		log.Fatalf("invalid date range: %v", err)
	}

	var sink store.ObjectSink
	if cfg.Storage.LocalDir != "" {
		sink, err = store.NewFSSink(cfg.Storage.LocalDir)
		if err != nil {
			log.Fatalf("failed to open local output dir: %v", err)
		}
		slog.Info("writing partitions to local directory", "dir", cfg.Storage.LocalDir)
	} else {
		sink, err = store.NewS3Sink(cfg.Storage.Bucket, cfg.Storage.Endpoint, cfg.Storage.Region)
		if err != nil {
			log.Fatalf("failed to create S3 client: %v", err)
		}
		slog.Info("writing partitions to S3", "bucket", cfg.Storage.Bucket, "endpoint", cfg.Storage.Endpoint)
	}

	var m *manifest.Store
	if cfg.Storage.ManifestPath != "" {
		m, err = manifest.Open(cfg.Storage.ManifestPath)
		if err != nil {
			log.Fatalf("failed to open run manifest: %v", err)
		}
		defer m.Close()
	}

	api := nhlapi.NewClient(cfg.API.BaseURL)
	crawler := crawl.New(
		api,
		sink,
		m,
		cfg.Crawl.MaxWorkers,
		cfg.Crawl.RateLimitPerMin,
		cfg.Crawl.RetryAttempts,
		time.Duration(cfg.Crawl.RetryBaseDelayMS)*time.Millisecond,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	report, err := crawler.Crawl(ctx, dateRange)
	if err != nil {
		log.Fatalf("crawl failed: %v", err)
	}

	// Individual game skips are reported but do not fail the run.
	slog.Info("run finished",
		"days", report.Days,
		"games", report.Games,
		"written", report.Written,
		"skipped", report.Skipped,
	)
	for _, f := range report.Failures() {
		slog.Warn("needs backfill",
			"gameId", f.GameID,
			"date", f.Date.Format("2006-01-02"),
			"stage", string(f.Status),
		)
	}
}

// parseDate accepts the dashed and compact date forms the original job took
// on its command line.
func parseDate(s string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", s)
	if err == nil {
		return t, nil
	}
	return time.Parse("20060102", s)
}
