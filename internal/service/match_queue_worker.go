package service

import (
	"context"
	"log"
	"sync"
	"time"

	"payables/internal/config"
	"payables/internal/domain"
	"payables/internal/matching"
	"payables/internal/port"
)

// MatchQueueWorker retries rate-limited match attempts. Invoices that a
// pipeline run could not match because the provider throttled us stay
// Pending with a Retry-After stamp; this worker picks them up once the
// stamp has passed.
type MatchQueueWorker struct {
	store       port.RecordStore
	matcher     matching.Service
	files       FileService
	interval    time.Duration
	maxAttempts int
	sem         chan struct{}
	wg          sync.WaitGroup
}

// NewMatchQueueWorker creates a worker from queue configuration.
func NewMatchQueueWorker(store port.RecordStore, matcher matching.Service, files FileService, cfg *config.QueueConfig) *MatchQueueWorker {
	interval := time.Duration(cfg.PollIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 10 * time.Second
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 5
	}
	return &MatchQueueWorker{
		store:       store,
		matcher:     matcher,
		files:       files,
		interval:    interval,
		maxAttempts: cfg.MaxRetries,
		sem:         make(chan struct{}, concurrency),
	}
}

// Run polls until ctx is cancelled, then waits for in-flight matches.
func (w *MatchQueueWorker) Run(ctx context.Context) {
	log.Printf("matchQueueWorker: starting, interval %s", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("matchQueueWorker: stopping")
			w.wg.Wait()
			return
		case <-ticker.C:
			w.dispatchDue(ctx)
		}
	}
}

// dispatchDue lists Pending invoices whose retry stamp has passed and
// dispatches each on the semaphore-bounded pool.
func (w *MatchQueueWorker) dispatchDue(ctx context.Context) {
	now := time.Now().UTC().Format(time.RFC3339)
	records, err := w.store.List(ctx, domain.TableInvoices, port.Query{
		Conditions: []port.Condition{
			{Field: domain.FieldInvoiceStatus, Op: port.OpEqual, Value: string(domain.InvoiceStatusPending)},
			{Field: domain.FieldRetryAfter, Op: port.OpIsBefore, Value: now},
		},
	})
	if err != nil {
		log.Printf("matchQueueWorker: listing due invoices failed: %v", err)
		return
	}

	for _, rec := range records {
		inv := domain.InvoiceFromFields(rec.ID, rec.Fields)
		attempts := int(domain.FieldFloat(rec.Fields, domain.FieldMatchAttempts))

		if w.maxAttempts > 0 && attempts >= w.maxAttempts {
			w.exhaustRetries(ctx, inv)
			continue
		}

		select {
		case w.sem <- struct{}{}:
		case <-ctx.Done():
			return
		}

		w.wg.Add(1)
		go func(inv *domain.Invoice, attempts int) {
			defer w.wg.Done()
			defer func() { <-w.sem }()
			w.processInvoice(inv, attempts)
		}(inv, attempts)
	}
}

// processInvoice runs one retry attempt under its own deadline so a
// worker shutdown does not abandon a half-finished match.
func (w *MatchQueueWorker) processInvoice(inv *domain.Invoice, attempts int) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	_, err := w.store.Update(ctx, domain.TableInvoices, []port.RecordPatch{{
		ID:     inv.ID,
		Fields: map[string]any{domain.FieldMatchAttempts: attempts + 1},
	}})
	if err != nil {
		log.Printf("matchQueueWorker: bumping attempts on invoice %s failed: %v", inv.ID, err)
		return
	}

	if err := w.matcher.MatchInvoice(ctx, inv.ID); err != nil {
		log.Printf("matchQueueWorker: retry %d for invoice %s failed: %v", attempts+1, inv.ID, err)
	}

	if inv.FileID != "" {
		if err := w.files.ReconcileFile(ctx, inv.FileID); err != nil {
			log.Printf("matchQueueWorker: reconciling file %s failed: %v", inv.FileID, err)
		}
	}
}

// exhaustRetries gives up on an invoice that burned through its retry
// budget and surfaces the failure on its file.
func (w *MatchQueueWorker) exhaustRetries(ctx context.Context, inv *domain.Invoice) {
	log.Printf("matchQueueWorker: invoice %s exhausted %d retries, marking errored", inv.ID, w.maxAttempts)
	_, err := w.store.Update(ctx, domain.TableInvoices, []port.RecordPatch{{
		ID: inv.ID,
		Fields: map[string]any{
			domain.FieldInvoiceStatus:    string(domain.InvoiceStatusError),
			domain.FieldErrorCode:        domain.ErrCodeMatchFailed,
			domain.FieldErrorDescription: "rate limit retries exhausted",
		},
	}})
	if err != nil {
		log.Printf("matchQueueWorker: marking invoice %s errored failed: %v", inv.ID, err)
		return
	}
	if inv.FileID != "" {
		if err := w.files.ReconcileFile(ctx, inv.FileID); err != nil {
			log.Printf("matchQueueWorker: reconciling file %s failed: %v", inv.FileID, err)
		}
	}
}
