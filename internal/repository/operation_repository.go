package repository

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gopkg.in/guregu/null.v4"
	"gorm.io/gorm"

	"github.com/example/id-bridge/internal/retry"
)

// Outcome values stored on operation logs.
const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeCanceled = "canceled"
)

// OperationLog is the audit record written for every bridge operation. It
// never carries images, tokens or OCR fields.
type OperationLog struct {
	ID        uint        `gorm:"primaryKey"`
	RequestID string      `gorm:"column:request_id;uniqueIndex;size:64"`
	UserID    string      `gorm:"column:user_id;size:64;index"`
	Operation string      `gorm:"column:operation;size:64;index"`
	DeviceID  null.String `gorm:"column:device_id;size:128"`
	Outcome   string      `gorm:"column:outcome;size:16"`
	ErrorCode null.String `gorm:"column:error_code;size:64"`
	LatencyMs int64       `gorm:"column:latency_ms"`
	CreatedAt time.Time   `gorm:"column:created_at;index"`
}

// TableName overrides the default table name.
func (OperationLog) TableName() string {
	return "operation_logs"
}

// OperationCount is the per-operation slice of the metrics aggregation.
type OperationCount struct {
	Operation    string
	Total        int64
	Success      int64
	AvgLatencyMs float64
}

// MetricsAggregation holds the raw counters behind the metrics summary.
type MetricsAggregation struct {
	TotalCount       int64
	SuccessCount     int64
	CanceledCount    int64
	AverageLatencyMs float64
	ByOperation      []OperationCount
}

// OperationRepository provides persistence APIs for operation logs.
type OperationRepository struct {
	db             *gorm.DB
	logger         *zap.Logger
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewOperationRepository creates a new repository instance.
func NewOperationRepository(db *gorm.DB, logger *zap.Logger) *OperationRepository {
	return &OperationRepository{
		db:             db,
		logger:         logger.Named("operation_repository"),
		retryAttempts:  retry.DefaultPolicy.Attempts,
		initialBackoff: retry.DefaultPolicy.InitialBackoff,
		maxBackoff:     retry.DefaultPolicy.MaxBackoff,
	}
}

// AutoMigrate ensures the schema is available.
func (r *OperationRepository) AutoMigrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&OperationLog{})
}

// SaveLog persists an operation log entry.
func (r *OperationRepository) SaveLog(ctx context.Context, log *OperationLog) error {
	return r.executeWithRetry(ctx, "repository.save_log", log.RequestID, func() error {
		return r.db.WithContext(ctx).Create(log).Error
	})
}

// FindByRequestIDAndUser retrieves an operation log matching the request and caller.
func (r *OperationRepository) FindByRequestIDAndUser(ctx context.Context, requestID, userID string) (*OperationLog, error) {
	var log OperationLog
	err := r.executeWithRetry(ctx, "repository.find_log", requestID, func() error {
		return r.db.WithContext(ctx).First(&log, "request_id = ? AND user_id = ?", requestID, userID).Error
	})
	if err != nil {
		return nil, err
	}
	return &log, nil
}

// AggregateMetrics computes totals, outcome counts and latencies over all logs.
func (r *OperationRepository) AggregateMetrics(ctx context.Context) (*MetricsAggregation, error) {
	var totals struct {
		Total        int64
		Success      int64
		Canceled     int64
		AvgLatencyMs float64
	}
	var rows []OperationCount

	err := r.executeWithRetry(ctx, "repository.aggregate_metrics", "", func() error {
		if err := r.db.WithContext(ctx).
			Model(&OperationLog{}).
			Select(`COUNT(*) AS total,
				COALESCE(SUM(CASE WHEN outcome = ? THEN 1 ELSE 0 END), 0) AS success,
				COALESCE(SUM(CASE WHEN outcome = ? THEN 1 ELSE 0 END), 0) AS canceled,
				COALESCE(AVG(latency_ms), 0) AS avg_latency_ms`, OutcomeSuccess, OutcomeCanceled).
			Scan(&totals).Error; err != nil {
			return err
		}
		rows = rows[:0]
		return r.db.WithContext(ctx).
			Model(&OperationLog{}).
			Select(`operation,
				COUNT(*) AS total,
				COALESCE(SUM(CASE WHEN outcome = ? THEN 1 ELSE 0 END), 0) AS success,
				COALESCE(AVG(latency_ms), 0) AS avg_latency_ms`, OutcomeSuccess).
			Group("operation").
			Order("operation").
			Scan(&rows).Error
	})
	if err != nil {
		return nil, err
	}

	return &MetricsAggregation{
		TotalCount:       totals.Total,
		SuccessCount:     totals.Success,
		CanceledCount:    totals.Canceled,
		AverageLatencyMs: totals.AvgLatencyMs,
		ByOperation:      rows,
	}, nil
}

func (r *OperationRepository) executeWithRetry(ctx context.Context, operation, requestID string, fn func() error) error {
	policy := retry.Policy{
		Attempts:       r.retryAttempts,
		InitialBackoff: r.initialBackoff,
		MaxBackoff:     r.maxBackoff,
	}
	return retry.Do(ctx, r.logger, policy, operation, requestID, fn)
}
