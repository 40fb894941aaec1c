package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/JonMunkholm/valuedcustomer/internal/config"
	"github.com/JonMunkholm/valuedcustomer/internal/logging"
	"github.com/google/uuid"
)

// DefaultImportTimeout bounds one import, body parse through commit.
const DefaultImportTimeout = 30 * time.Second

// DefaultMaxAttempts is how many times an import is tried when another
// writer claims the same identifiers first.
const DefaultMaxAttempts = 3

// Recorder receives pipeline measurements. internal/metrics implements it.
type Recorder interface {
	ImportSucceeded(inserted, discarded int, d time.Duration)
	ImportFailed(code string, d time.Duration)
	ImportRetried()
	ExportRendered(mode RenderMode, rows int)
}

type nopRecorder struct{}

func (nopRecorder) ImportSucceeded(int, int, time.Duration) {}
func (nopRecorder) ImportFailed(string, time.Duration)      {}
func (nopRecorder) ImportRetried()                          {}
func (nopRecorder) ExportRendered(RenderMode, int)          {}

// Service runs imports and exports against a Store.
type Service struct {
	store       Store
	limiter     *ImportLimiter
	recorder    Recorder
	timeout     time.Duration
	maxAttempts int
}

// NewService creates a Service. recorder may be nil.
func NewService(store Store, cfg config.ImportConfig, recorder Recorder) (*Service, error) {
	if store == nil {
		return nil, errors.New("core: store is required")
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultImportTimeout
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}

	return &Service{
		store:       store,
		limiter:     NewImportLimiter(cfg.MaxConcurrent, cfg.MaxWaitTime),
		recorder:    recorder,
		timeout:     timeout,
		maxAttempts: attempts,
	}, nil
}

// ImportUpload imports the CSV file embedded in a raw multipart body.
func (s *Service) ImportUpload(ctx context.Context, body []byte, contentType string) (*ImportResult, error) {
	start := time.Now()

	payload, fileName, err := ExtractFile(body, BoundaryFromContentType(contentType))
	if err != nil {
		s.recorder.ImportFailed(MapError(err).Code, time.Since(start))
		return nil, fmt.Errorf("extract upload: %w", err)
	}

	return s.ImportCSV(ctx, fileName, payload)
}

// ImportCSV validates payload and persists its rows as one batch.
func (s *Service) ImportCSV(ctx context.Context, fileName, payload string) (*ImportResult, error) {
	start := time.Now()

	if err := s.limiter.Acquire(ctx); err != nil {
		s.recorder.ImportFailed(MapError(err).Code, time.Since(start))
		return nil, err
	}
	defer s.limiter.Release()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	batchID := uuid.NewString()
	logger := logging.WithFields(ctx, "batch_id", batchID, "file", fileName)

	result, err := s.importBatch(ctx, batchID, fileName, payload)
	if err != nil {
		msg := MapError(err)
		s.recorder.ImportFailed(msg.Code, time.Since(start))
		logger.Warn("import failed",
			"code", msg.Code,
			"error", err,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return nil, err
	}

	result.Duration = time.Since(start)
	s.recorder.ImportSucceeded(len(result.Accepted), result.Discarded, result.Duration)
	logger.Info("import completed",
		"rows", len(result.Accepted),
		"discarded", result.Discarded,
		"duration_ms", result.Duration.Milliseconds(),
	)
	return result, nil
}

func (s *Service) importBatch(ctx context.Context, batchID, fileName, payload string) (*ImportResult, error) {
	batch, err := ParseBatch(fileName, payload)
	if err != nil {
		return nil, fmt.Errorf("parse upload: %w", err)
	}

	result := &ImportResult{
		BatchID:   batchID,
		FileName:  fileName,
		Discarded: countBlankNames(batch),
	}
	if result.Discarded == len(batch.Rows) {
		// Nothing to persist; no identifiers are consumed.
		result.Accepted = []AcceptedRow{}
		return result, nil
	}

	var planned []NewCustomer
	write := BatchWrite{
		Plan: func(cursor Identifier) ([]NewCustomer, error) {
			rows, _, err := PlanImport(batch, cursor)
			if err != nil {
				return nil, err
			}
			planned = rows
			return rows, nil
		},
		Record: ImportRecord{
			BatchID:       batchID,
			FileName:      fileName,
			RowsDiscarded: result.Discarded,
			Source:        SourceFromContext(ctx),
		},
	}

	logger := logging.WithFields(ctx, "batch_id", batchID)
	for attempt := 1; ; attempt++ {
		customers, err := s.store.ImportBatch(ctx, write)
		if err == nil {
			result.Accepted = acceptedRows(planned)
			result.Customers = customers
			return result, nil
		}

		if errors.Is(err, ErrDuplicateIdentifier) && attempt < s.maxAttempts && ctx.Err() == nil {
			s.recorder.ImportRetried()
			logger.Warn("identifier conflict, retrying import", "attempt", attempt, "error", err)
			continue
		}
		return nil, classifyStoreError(ctx, err)
	}
}

// classifyStoreError attaches the pipeline sentinel for a failed store call.
func classifyStoreError(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, ErrIdentifierOverflow):
		return fmt.Errorf("allocate identifiers: %w", err)
	case errors.Is(ctx.Err(), context.DeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrRequestTimeout, err)
	case errors.Is(err, ErrPersistence):
		return err
	default:
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
}

// ExportResult is a rendered export.
type ExportResult struct {
	Customers []Customer
	CSV       string
}

// Export loads the customers with the given identifiers and renders them.
// Unknown identifiers are ignored; ErrNotFound is returned when none match.
func (s *Service) Export(ctx context.Context, identifiers []string, mode RenderMode) (*ExportResult, error) {
	ids, err := parseIdentifierSet(identifiers)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	customers, err := s.store.FindByIdentifiers(ctx, ids)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %w", ErrRequestTimeout, err)
		}
		return nil, fmt.Errorf("find customers: %w", err)
	}
	if len(customers) == 0 {
		return nil, ErrNotFound
	}

	if mode == ModeStatus {
		ResolveCompanyNames(customers)
	}

	s.recorder.ExportRendered(mode, len(customers))
	return &ExportResult{
		Customers: customers,
		CSV:       NewExporter(mode).Render(customers),
	}, nil
}

func parseIdentifierSet(identifiers []string) ([]Identifier, error) {
	if len(identifiers) == 0 {
		return nil, fmt.Errorf("%w: no identifiers given", ErrInvalidIdentifier)
	}
	seen := make(map[Identifier]bool, len(identifiers))
	ids := make([]Identifier, 0, len(identifiers))
	for _, raw := range identifiers {
		id, err := ParseIdentifier(raw)
		if err != nil {
			return nil, err
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids, nil
}

// RecentImports returns the latest import history entries, newest first.
func (s *Service) RecentImports(ctx context.Context, limit int) ([]ImportRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	return s.store.RecentImports(ctx, limit)
}

// Ping checks the store.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// LimiterStatus reports import slot usage.
func (s *Service) LimiterStatus() LimiterStatus {
	return s.limiter.Status()
}

// WaitForImports blocks until in-flight imports finish or ctx ends.
func (s *Service) WaitForImports(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}
