package repository

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/photo-relay/internal/logging"
)

// TransferLog records the outcome of one transfer cycle. Only metadata is
// persisted, never image or payload bytes.
type TransferLog struct {
	ID            uint      `gorm:"primaryKey"`
	TransferID    string    `gorm:"column:transfer_id;uniqueIndex;size:64"`
	UserID        string    `gorm:"column:user_id;size:64;index"`
	SourceWidth   int       `gorm:"column:source_width"`
	SourceHeight  int       `gorm:"column:source_height"`
	TargetWidth   int       `gorm:"column:target_width"`
	TargetHeight  int       `gorm:"column:target_height"`
	InputBytes    int       `gorm:"column:input_bytes"`
	EncodedBytes  int       `gorm:"column:encoded_bytes"`
	ChunkCount    int       `gorm:"column:chunk_count"`
	Delivered     bool      `gorm:"column:delivered"`
	FailureReason string    `gorm:"column:failure_reason;size:64"`
	CreatedAt     time.Time `gorm:"column:created_at"`
}

// TableName overrides the default table name.
func (TransferLog) TableName() string {
	return "transfer_logs"
}

// MetricsAggregation holds the raw aggregates computed by the database.
type MetricsAggregation struct {
	TotalCount          int64
	DeliveredCount      int64
	AverageChunkCount   float64
	AverageEncodedBytes float64
}

// TransferRepository provides persistence APIs for transfer logs.
type TransferRepository struct {
	db             *gorm.DB
	logger         *zap.Logger
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewTransferRepository creates a new repository instance.
func NewTransferRepository(db *gorm.DB, logger *zap.Logger) *TransferRepository {
	return &TransferRepository{
		db:             db,
		logger:         logger.Named("transfer_repository"),
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
}

// AutoMigrate ensures the schema is available.
func (r *TransferRepository) AutoMigrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&TransferLog{})
}

// SaveLog persists a transfer log entry.
func (r *TransferRepository) SaveLog(ctx context.Context, log *TransferLog) error {
	return r.executeWithRetry(ctx, "repository.save_log", log.TransferID, func() error {
		return r.db.WithContext(ctx).Create(log).Error
	})
}

// FindByTransferIDAndUser retrieves a transfer log matching the id and owner.
func (r *TransferRepository) FindByTransferIDAndUser(ctx context.Context, transferID, userID string) (*TransferLog, error) {
	var log TransferLog
	err := r.executeWithRetry(ctx, "repository.find_transfer", transferID, func() error {
		return r.db.WithContext(ctx).First(&log, "transfer_id = ? AND user_id = ?", transferID, userID).Error
	})
	if err != nil {
		return nil, err
	}
	return &log, nil
}

// AggregateMetrics computes transfer totals and averages across all rows.
func (r *TransferRepository) AggregateMetrics(ctx context.Context) (*MetricsAggregation, error) {
	var agg MetricsAggregation
	err := r.executeWithRetry(ctx, "repository.aggregate_metrics", "", func() error {
		return r.db.WithContext(ctx).
			Model(&TransferLog{}).
			Select("COUNT(*) AS total_count, " +
				"COALESCE(SUM(CASE WHEN delivered THEN 1 ELSE 0 END), 0) AS delivered_count, " +
				"COALESCE(AVG(chunk_count), 0) AS average_chunk_count, " +
				"COALESCE(AVG(encoded_bytes), 0) AS average_encoded_bytes").
			Scan(&agg).Error
	})
	if err != nil {
		return nil, err
	}
	return &agg, nil
}

func (r *TransferRepository) executeWithRetry(ctx context.Context, operation, transferID string, fn func() error) error {
	if r.retryAttempts <= 1 {
		return logging.NewOperationError(operation, transferID, fn())
	}

	backoff := r.initialBackoff
	opLogger := logging.WithOperation(r.logger, operation, transferID)
	var err error
	for attempt := 0; attempt < r.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, transferID, ctx.Err())
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

		if !isTransientError(err) || attempt == r.retryAttempts-1 {
			opLogger.Error("database operation failed", zap.Error(err), zap.Int("attempt", attempt+1))
			return logging.NewOperationError(operation, transferID, err)
		}

		opLogger.Warn("transient database error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, transferID, err)
}

func isTransientError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var temporary interface{ Temporary() bool }
	if errors.As(err, &temporary) && temporary.Temporary() {
		return true
	}

	return false
}
