package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"payables/internal/config"
	"payables/internal/extract/openai"
	"payables/internal/handler"
	"payables/internal/matching"
	"payables/internal/notify/noop"
	"payables/internal/notify/ses"
	"payables/internal/ocr/vision"
	"payables/internal/poller"
	"payables/internal/port"
	"payables/internal/router"
	"payables/internal/service"
	s3storage "payables/internal/storage/s3"
	"payables/internal/store/airtable"
	"payables/internal/store/postgres"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Record store: Airtable or Postgres, same structured query surface.
	var store port.RecordStore
	switch cfg.Store.Backend {
	case "postgres":
		db, derr := postgres.NewDB(&cfg.DB)
		if derr != nil {
			return fmt.Errorf("failed to connect to database: %w", derr)
		}
		defer db.Close()
		store = postgres.NewStore(db)
	case "airtable":
		store = airtable.NewClient(&cfg.Store)
	default:
		return fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}

	// Object storage
	s3Client, err := s3storage.NewS3Client(&cfg.S3)
	if err != nil {
		return fmt.Errorf("failed to initialize S3 client: %w", err)
	}

	// OCR
	ocrClient, err := vision.NewExtractor(ctx, &cfg.OCR)
	if err != nil {
		return fmt.Errorf("failed to initialize Vision client: %w", err)
	}
	defer func() { _ = ocrClient.Close() }()

	// Structured extraction
	extractor := openai.NewExtractor(&cfg.Matcher)

	// Reviewer alerts
	var alerts port.AlertSender
	switch cfg.Email.Provider {
	case "ses":
		alerts, err = ses.NewSESSender(cfg.Email.Region, cfg.Email.FromAddress, cfg.Email.FromName, cfg.Email.ReviewerAddress)
		if err != nil {
			return fmt.Errorf("failed to initialize SES sender: %w", err)
		}
	default:
		alerts = noop.NewNoopSender()
	}

	// Status poller registry
	registry := poller.NewRegistry(time.Duration(cfg.Poll.IntervalSecs) * time.Second)
	defer registry.Shutdown()

	// Services
	matcher := matching.NewService(store, extractor)
	fileSvc := service.NewFileService(store, s3Client, ocrClient, extractor, matcher, alerts, registry, cfg)
	invoiceSvc := service.NewInvoiceService(store, matcher)
	statusSvc := service.NewStatusService(fileSvc, invoiceSvc, registry)
	exportSvc := service.NewExportService(store, s3Client, &cfg.Export)

	// Match queue worker
	worker := service.NewMatchQueueWorker(store, matcher, fileSvc, &cfg.Queue)
	go worker.Run(ctx)

	// Handlers
	fileH := handler.NewFileHandler(fileSvc, statusSvc)
	invoiceH := handler.NewInvoiceHandler(invoiceSvc, statusSvc, exportSvc)
	healthH := handler.NewHealthHandler(store)

	r := router.Setup(fileH, invoiceH, healthH, cfg.CORS.AllowedOrigins)

	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Server starting on %s", cfg.Server.Port)
		if serr := srv.ListenAndServe(); serr != nil && serr != http.ErrServerClosed {
			errCh <- serr
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	log.Printf("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}
