package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/certverify/internal/cache"
	"github.com/example/certverify/internal/certificate"
	"github.com/example/certverify/internal/events"
	"github.com/example/certverify/internal/logging"
	"github.com/example/certverify/internal/repository"
)

// ErrStillProcessing is returned by GetResult while a run is in flight.
var ErrStillProcessing = errors.New("verification still processing")

const processingMarker = "processing"

// VerificationRepository defines the persistence operations needed by the use case.
type VerificationRepository interface {
	SaveLog(ctx context.Context, log *repository.VerificationLog) error
	FindByRequestIDAndUser(ctx context.Context, requestID, userID string) (*repository.VerificationLog, error)
	FindDuplicatesByFingerprint(ctx context.Context, userID, fp, excludeRequestID string) ([]*repository.VerificationLog, error)
	AggregateMetrics(ctx context.Context) (*repository.MetricsAggregation, error)
}

// Cache is the key/value surface the use case needs from Redis.
type Cache interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string) (string, error)
}

// VerificationUseCase encapsulates business logic for the verification flow.
type VerificationUseCase struct {
	repo           VerificationRepository
	cache          Cache
	analyzer       *Analyzer
	publisher      events.Publisher
	logger         *zap.Logger
	resultTTL      time.Duration
	processingTTL  time.Duration
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// StoredVerification is what GetResult hands back, from cache or database.
type StoredVerification struct {
	RequestID    string                          `json:"request_id"`
	UserID       string                          `json:"user_id"`
	FileName     string                          `json:"file_name"`
	Result       *certificate.VerificationResult `json:"result"`
	ProcessingMs int64                           `json:"processing_ms"`
	CreatedAt    time.Time                       `json:"created_at"`
}

// DuplicateReport lists the owner's earlier runs over the same file.
type DuplicateReport struct {
	Request    *repository.VerificationLog
	Duplicates []*repository.VerificationLog
}

// NewVerificationUseCase constructs a new use case instance. publisher may be
// nil when event publishing is disabled.
func NewVerificationUseCase(repo VerificationRepository, resultCache Cache, analyzer *Analyzer, publisher events.Publisher, logger *zap.Logger) *VerificationUseCase {
	return &VerificationUseCase{
		repo:           repo,
		cache:          resultCache,
		analyzer:       analyzer,
		publisher:      publisher,
		logger:         logger.Named("verification_usecase"),
		resultTTL:      5 * time.Minute,
		processingTTL:  time.Minute,
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
}

// WithResultTTL overrides how long finished results stay in Redis.
func (uc *VerificationUseCase) WithResultTTL(ttl time.Duration) *VerificationUseCase {
	if ttl > 0 {
		uc.resultTTL = ttl
	}
	return uc
}

func resultKey(requestID string) string {
	return fmt.Sprintf("verification:%s", requestID)
}

// VerifyCertificate runs the pipeline for one upload and records the outcome.
func (uc *VerificationUseCase) VerifyCertificate(ctx context.Context, userID string, file certificate.UploadedFile) (string, *certificate.VerificationResult, error) {
	requestID := uuid.NewString()
	opLogger := logging.WithOperation(uc.logger, "usecase.verify_certificate", requestID)
	key := resultKey(requestID)

	if err := uc.withRedisRetry(ctx, requestID, "cache.set.processing", func() error {
		return uc.cache.Set(ctx, key, processingMarker, uc.processingTTL)
	}); err != nil {
		// The verdict does not depend on Redis; GetResult reports not found
		// until the row is persisted.
		opLogger.Warn("failed to set processing flag", zap.Error(err))
	}

	start := time.Now()
	result := uc.analyzer.analyze(ctx, requestID, file)
	elapsed := time.Since(start)

	encoded, err := json.Marshal(result)
	if err != nil {
		opLogger.Error("failed to serialize verification result", zap.Error(err))
		return "", nil, logging.NewOperationError("usecase.encode_result", requestID, err)
	}

	log := repository.NewVerificationLog(requestID, userID, file, result, string(encoded), elapsed)
	if err := uc.repo.SaveLog(ctx, log); err != nil {
		wrapped := logging.NewOperationError("usecase.save_log", requestID, err)
		opLogger.Error("failed to persist verification log", zap.Error(wrapped))
		return "", nil, wrapped
	}

	stored := StoredVerification{
		RequestID:    requestID,
		UserID:       userID,
		FileName:     file.Name,
		Result:       result,
		ProcessingMs: log.ProcessingMs,
		CreatedAt:    log.CreatedAt,
	}
	serialized, err := json.Marshal(stored)
	if err != nil {
		opLogger.Error("failed to serialize cached verification", zap.Error(err))
		return "", nil, err
	}

	if err := uc.withRedisRetry(ctx, requestID, "cache.set.result", func() error {
		return uc.cache.Set(ctx, key, string(serialized), uc.resultTTL)
	}); err != nil {
		// The row is already persisted; GetResult falls back to it.
		opLogger.Warn("failed to cache verification result", zap.Error(err))
	}

	uc.publish(ctx, opLogger, events.NewVerifiedEvent(requestID, userID, result, log.CreatedAt))

	return requestID, result, nil
}

func (uc *VerificationUseCase) publish(ctx context.Context, opLogger *zap.Logger, ev events.VerifiedEvent) {
	if uc.publisher == nil {
		return
	}
	if err := events.PublishVerified(ctx, uc.publisher, ev); err != nil {
		opLogger.Warn("failed to publish verification event", zap.Error(err))
	}
}

// GetResult retrieves a cached verification outcome or loads from persistence.
func (uc *VerificationUseCase) GetResult(ctx context.Context, userID, requestID string) (*StoredVerification, error) {
	opLogger := logging.WithOperation(uc.logger, "usecase.get_result", requestID)

	cached, err := uc.withRedisGet(ctx, requestID, "cache.get.result", resultKey(requestID))
	switch {
	case err == nil && cached == processingMarker:
		return nil, ErrStillProcessing
	case err == nil:
		var payload StoredVerification
		if err := json.Unmarshal([]byte(cached), &payload); err != nil {
			opLogger.Warn("failed to decode cached result", zap.Error(err))
			break
		}
		if payload.UserID != userID {
			return nil, repository.ErrNotFound
		}
		return &payload, nil
	case !cache.IsMiss(err):
		opLogger.Warn("failed to read cache", zap.Error(err))
	}

	log, err := uc.repo.FindByRequestIDAndUser(ctx, requestID, userID)
	if err != nil {
		return nil, err
	}
	return storedFromLog(log)
}

func storedFromLog(log *repository.VerificationLog) (*StoredVerification, error) {
	var result certificate.VerificationResult
	if err := json.Unmarshal([]byte(log.Result), &result); err != nil {
		return nil, logging.NewOperationError("usecase.decode_result", log.RequestID, err)
	}
	return &StoredVerification{
		RequestID:    log.RequestID,
		UserID:       log.UserID,
		FileName:     log.FileName,
		Result:       &result,
		ProcessingMs: log.ProcessingMs,
		CreatedAt:    log.CreatedAt,
	}, nil
}

// GetDuplicateReport builds a duplicate detection report for a verification request.
func (uc *VerificationUseCase) GetDuplicateReport(ctx context.Context, userID, requestID string) (*DuplicateReport, error) {
	log, err := uc.repo.FindByRequestIDAndUser(ctx, requestID, userID)
	if err != nil {
		return nil, err
	}

	duplicates, err := uc.repo.FindDuplicatesByFingerprint(ctx, userID, log.Fingerprint, log.RequestID)
	if err != nil {
		return nil, err
	}

	return &DuplicateReport{
		Request:    log,
		Duplicates: duplicates,
	}, nil
}

func (uc *VerificationUseCase) withRedisRetry(ctx context.Context, requestID, operation string, fn func() error) error {
	if uc.retryAttempts <= 1 {
		err := fn()
		return logging.NewOperationError(operation, requestID, err)
	}

	backoff := uc.initialBackoff
	opLogger := logging.WithOperation(uc.logger, operation, requestID)
	var err error
	for attempt := 0; attempt < uc.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, requestID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= uc.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("redis operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}
		if cache.IsMiss(err) {
			return err
		}

		if !logging.IsTransient(err) || attempt == uc.retryAttempts-1 {
			opLogger.Error("redis operation failed", zap.Error(err), zap.Int("attempt", attempt+1))
			return logging.NewOperationError(operation, requestID, err)
		}

		opLogger.Warn("transient redis error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, requestID, err)
}

func (uc *VerificationUseCase) withRedisGet(ctx context.Context, requestID, operation, cacheKey string) (string, error) {
	var result string
	err := uc.withRedisRetry(ctx, requestID, operation, func() error {
		value, err := uc.cache.Get(ctx, cacheKey)
		if err != nil {
			return err
		}
		result = value
		return nil
	})
	if err != nil {
		return "", err
	}
	return result, nil
}
