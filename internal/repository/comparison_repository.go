package repository

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/example/face-compare/internal/retry"
)

// ComparisonLog represents one persisted comparison.
type ComparisonLog struct {
	ID         uint      `gorm:"primaryKey"`
	RequestID  string    `gorm:"column:request_id;uniqueIndex;size:64"`
	UserID     string    `gorm:"column:user_id;size:64;index"`
	Match      bool      `gorm:"column:matched"`
	Confidence float64   `gorm:"column:confidence"`
	Distance   float64   `gorm:"column:distance"`
	Threshold  float64   `gorm:"column:threshold"`
	Faulted    bool      `gorm:"column:failed;index"`
	Error      string    `gorm:"column:error_message;type:text"`
	HashA      string    `gorm:"column:hash_a;size:40"`
	HashB      string    `gorm:"column:hash_b;size:40"`
	Model      string    `gorm:"column:model;size:32"`
	Metric     string    `gorm:"column:metric;size:32"`
	LatencyMs  int64     `gorm:"column:latency_ms"`
	Cached     bool      `gorm:"column:cached"`
	CreatedAt  time.Time `gorm:"column:created_at;index"`
}

// TableName overrides the default table name.
func (ComparisonLog) TableName() string {
	return "comparison_logs"
}

// Failed reports whether the comparison ended in a fault. The fault message may be empty.
func (l *ComparisonLog) Failed() bool {
	return l.Faulted
}

// MetricsAggregation holds raw aggregates over all comparison logs.
type MetricsAggregation struct {
	TotalCount       int64
	MatchCount       int64
	FailureCount     int64
	AverageDistance  float64
	AverageLatencyMs float64
}

// ComparisonRepository provides persistence APIs for comparison logs.
type ComparisonRepository struct {
	db     *gorm.DB
	logger *zap.Logger
	policy retry.Policy
}

// Open connects to the database named by driver ("postgres" or "sqlite").
func Open(driver, dsn string, logLevel gormlogger.LogLevel) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	return gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Default.LogMode(logLevel)})
}

// NewComparisonRepository creates a new repository instance.
func NewComparisonRepository(db *gorm.DB, logger *zap.Logger) *ComparisonRepository {
	return &ComparisonRepository{
		db:     db,
		logger: logger.Named("comparison_repository"),
		policy: retry.Default,
	}
}

// AutoMigrate ensures the schema is available.
func (r *ComparisonRepository) AutoMigrate(ctx context.Context) error {
	return r.policy.Do(ctx, r.logger, "repository.auto_migrate", "", func() error {
		return r.db.WithContext(ctx).AutoMigrate(&ComparisonLog{})
	})
}

// SaveLog persists a comparison log entry.
func (r *ComparisonRepository) SaveLog(ctx context.Context, log *ComparisonLog) error {
	return r.policy.Do(ctx, r.logger, "repository.save_log", log.RequestID, func() error {
		return r.db.WithContext(ctx).Create(log).Error
	})
}

// FindByRequestID retrieves the comparison log for requestID.
func (r *ComparisonRepository) FindByRequestID(ctx context.Context, requestID string) (*ComparisonLog, error) {
	var log ComparisonLog
	err := r.policy.Do(ctx, r.logger, "repository.find_by_request_id", requestID, func() error {
		return r.db.WithContext(ctx).First(&log, "request_id = ?", requestID).Error
	})
	if err != nil {
		return nil, err
	}
	return &log, nil
}

// AggregateMetrics computes totals and averages over all stored comparisons.
// Failed comparisons are excluded from the distance average since they carry the sentinel distance.
func (r *ComparisonRepository) AggregateMetrics(ctx context.Context) (*MetricsAggregation, error) {
	var row struct {
		TotalCount       int64
		MatchCount       int64
		FailureCount     int64
		AverageDistance  *float64
		AverageLatencyMs *float64
	}
	err := r.policy.Do(ctx, r.logger, "repository.aggregate_metrics", "", func() error {
		return r.db.WithContext(ctx).
			Model(&ComparisonLog{}).
			Select(`COUNT(*) AS total_count,
				COALESCE(SUM(CASE WHEN matched THEN 1 ELSE 0 END), 0) AS match_count,
				COALESCE(SUM(CASE WHEN failed THEN 1 ELSE 0 END), 0) AS failure_count,
				AVG(CASE WHEN NOT failed THEN distance END) AS average_distance,
				AVG(latency_ms) AS average_latency_ms`).
			Scan(&row).Error
	})
	if err != nil {
		return nil, err
	}

	agg := &MetricsAggregation{
		TotalCount:   row.TotalCount,
		MatchCount:   row.MatchCount,
		FailureCount: row.FailureCount,
	}
	if row.AverageDistance != nil {
		agg.AverageDistance = *row.AverageDistance
	}
	if row.AverageLatencyMs != nil {
		agg.AverageLatencyMs = *row.AverageLatencyMs
	}
	return agg, nil
}
