package repository

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/certverify/internal/certificate"
	"github.com/example/certverify/internal/logging"
)

// ErrNotFound is returned when no verification matches the request and owner.
var ErrNotFound = errors.New("verification not found")

// VerificationLog is one persisted verification run.
type VerificationLog struct {
	ID                uint      `gorm:"primaryKey"`
	RequestID         string    `gorm:"column:request_id;uniqueIndex;size:64"`
	UserID            string    `gorm:"column:user_id;index;size:64"`
	Status            string    `gorm:"column:status;index;size:16"`
	Fingerprint       string    `gorm:"column:fingerprint;index;size:64"`
	CertificateNumber string    `gorm:"column:certificate_number;size:64"`
	FileName          string    `gorm:"column:file_name;size:255"`
	MediaType         string    `gorm:"column:media_type;size:128"`
	SizeBytes         int64     `gorm:"column:size_bytes"`
	UsedFallback      bool      `gorm:"column:used_fallback"`
	IssueCount        int       `gorm:"column:issue_count"`
	Result            string    `gorm:"column:result;type:text"`
	ProcessingMs      int64     `gorm:"column:processing_ms"`
	CreatedAt         time.Time `gorm:"column:created_at"`
}

// TableName overrides the default table name.
func (VerificationLog) TableName() string {
	return "verification_logs"
}

// NewVerificationLog flattens a result into a row. result is the JSON
// encoding of res, stored verbatim for later retrieval.
func NewVerificationLog(requestID, userID string, file certificate.UploadedFile, res *certificate.VerificationResult, result string, elapsed time.Duration) *VerificationLog {
	log := &VerificationLog{
		RequestID:    requestID,
		UserID:       userID,
		Status:       string(res.Status),
		Fingerprint:  res.Evidence.Fingerprint.String(),
		FileName:     file.Name,
		MediaType:    file.MediaType,
		SizeBytes:    file.DeclaredSize,
		UsedFallback: res.Evidence.UsedFallback,
		IssueCount:   len(res.Issues),
		Result:       result,
		ProcessingMs: elapsed.Milliseconds(),
		CreatedAt:    time.Now().UTC(),
	}
	if res.MatchedRecord != nil {
		log.CertificateNumber = res.MatchedRecord.CertificateNumber
	}
	return log
}

// MetricsAggregation holds the raw counters behind the metrics summary.
type MetricsAggregation struct {
	TotalCount                 int64   `gorm:"column:total_count"`
	ValidCount                 int64   `gorm:"column:valid_count"`
	SuspectCount               int64   `gorm:"column:suspect_count"`
	InvalidCount               int64   `gorm:"column:invalid_count"`
	FallbackCount              int64   `gorm:"column:fallback_count"`
	AverageProcessingLatencyMs float64 `gorm:"column:avg_processing_ms"`
}

// VerificationRepository provides persistence APIs for verification logs.
type VerificationRepository struct {
	db             *gorm.DB
	logger         *zap.Logger
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewVerificationRepository creates a new repository instance.
func NewVerificationRepository(db *gorm.DB, logger *zap.Logger) *VerificationRepository {
	return &VerificationRepository{
		db:             db,
		logger:         logger.Named("verification_repository"),
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
}

// AutoMigrate ensures the schema is available.
func (r *VerificationRepository) AutoMigrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&VerificationLog{})
}

// SaveLog persists a verification log entry.
func (r *VerificationRepository) SaveLog(ctx context.Context, log *VerificationLog) error {
	return r.executeWithRetry(ctx, "repository.save_log", log.RequestID, func() error {
		return r.db.WithContext(ctx).Create(log).Error
	})
}

// FindByRequestIDAndUser retrieves a verification log matching the request and owner.
func (r *VerificationRepository) FindByRequestIDAndUser(ctx context.Context, requestID, userID string) (*VerificationLog, error) {
	var log VerificationLog
	err := r.executeWithRetry(ctx, "repository.find_log", requestID, func() error {
		err := r.db.WithContext(ctx).First(&log, "request_id = ? AND user_id = ?", requestID, userID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return &log, nil
}

// FindDuplicatesByFingerprint lists the owner's other runs over the same file,
// newest first.
func (r *VerificationRepository) FindDuplicatesByFingerprint(ctx context.Context, userID, fp, excludeRequestID string) ([]*VerificationLog, error) {
	var logs []*VerificationLog
	err := r.executeWithRetry(ctx, "repository.find_duplicates", excludeRequestID, func() error {
		logs = nil
		return r.db.WithContext(ctx).
			Where("user_id = ? AND fingerprint = ? AND request_id <> ?", userID, fp, excludeRequestID).
			Order("created_at DESC").
			Find(&logs).Error
	})
	if err != nil {
		return nil, err
	}
	return logs, nil
}

// AggregateMetrics computes verdict counts and latency across all runs.
func (r *VerificationRepository) AggregateMetrics(ctx context.Context) (*MetricsAggregation, error) {
	var agg MetricsAggregation
	err := r.executeWithRetry(ctx, "repository.aggregate_metrics", "", func() error {
		return r.db.WithContext(ctx).
			Model(&VerificationLog{}).
			Select(`COUNT(*) AS total_count,
				COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS valid_count,
				COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS suspect_count,
				COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS invalid_count,
				COALESCE(SUM(CASE WHEN used_fallback THEN 1 ELSE 0 END), 0) AS fallback_count,
				COALESCE(AVG(processing_ms), 0) AS avg_processing_ms`,
				string(certificate.StatusValid), string(certificate.StatusSuspect), string(certificate.StatusInvalid)).
			Scan(&agg).Error
	})
	if err != nil {
		return nil, err
	}
	return &agg, nil
}

func (r *VerificationRepository) executeWithRetry(ctx context.Context, operation, requestID string, fn func() error) error {
	attempts := r.retryAttempts
	if attempts < 1 {
		attempts = 1
	}

	backoff := r.initialBackoff
	opLogger := logging.WithOperation(r.logger, operation, requestID)
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, requestID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= r.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("database operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}
		if errors.Is(err, ErrNotFound) {
			return err
		}

		if !logging.IsTransient(err) || attempt == attempts-1 {
			opLogger.Error("database operation failed", zap.Error(err), zap.Int("attempt", attempt+1))
			return logging.NewOperationError(operation, requestID, err)
		}

		opLogger.Warn("transient database error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, requestID, err)
}
