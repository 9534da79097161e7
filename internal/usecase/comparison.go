package usecase

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/example/face-compare/internal/compare"
	"github.com/example/face-compare/internal/faceverify"
	"github.com/example/face-compare/internal/logging"
	"github.com/example/face-compare/internal/repository"
	"github.com/example/face-compare/internal/retry"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	resultTTL = 5 * time.Minute
	pairTTL   = 10 * time.Minute
)

// ComparisonRepository defines the persistence operations needed by the use case.
type ComparisonRepository interface {
	SaveLog(ctx context.Context, log *repository.ComparisonLog) error
	FindByRequestID(ctx context.Context, requestID string) (*repository.ComparisonLog, error)
	AggregateMetrics(ctx context.Context) (*repository.MetricsAggregation, error)
}

// ImageComparer is satisfied by *compare.Invoker.
type ImageComparer interface {
	CompareImages(ctx context.Context, a, b faceverify.Image) compare.Result
}

// Comparison is a stored or freshly computed comparison.
type Comparison struct {
	RequestID string         `json:"request_id"`
	UserID    string         `json:"user_id,omitempty"`
	Result    compare.Result `json:"result"`
	Cached    bool           `json:"cached"`
	CreatedAt time.Time      `json:"created_at"`
}

// ComparisonUseCase encapsulates the comparison flow behind the HTTP API.
type ComparisonUseCase struct {
	repo     ComparisonRepository
	cache    Cache
	comparer ImageComparer
	logger   *zap.Logger
	policy   retry.Policy
	now      func() time.Time
}

// NewComparisonUseCase constructs a new use case instance.
func NewComparisonUseCase(repo ComparisonRepository, cache Cache, comparer ImageComparer, logger *zap.Logger) *ComparisonUseCase {
	return &ComparisonUseCase{
		repo:     repo,
		cache:    cache,
		comparer: comparer,
		logger:   logger.Named("comparison_usecase"),
		policy:   retry.Default,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Compare runs one comparison, reusing a cached verdict for an identical image pair.
// The returned error covers persistence and caching only; verifier faults live in the Result.
func (uc *ComparisonUseCase) Compare(ctx context.Context, userID string, imageA, imageB []byte) (*Comparison, error) {
	requestID := uuid.NewString()
	opLogger := logging.WithOperation(uc.logger, "usecase.compare", requestID)

	hashA, hashB := sha1Hex(imageA), sha1Hex(imageB)
	pairKey := pairCacheKey(hashA, hashB)

	start := time.Now()
	result, cached := uc.lookupPair(ctx, requestID, pairKey)
	if !cached {
		result = uc.comparer.CompareImages(ctx, faceverify.Image{Data: imageA}, faceverify.Image{Data: imageB})
	}
	latency := time.Since(start)

	log := &repository.ComparisonLog{
		RequestID:  requestID,
		UserID:     userID,
		Match:      result.Match,
		Confidence: result.Confidence,
		Distance:   result.Distance,
		Threshold:  result.Threshold,
		Faulted:    result.Failed(),
		Error:      result.Err,
		HashA:      hashA,
		HashB:      hashB,
		Model:      faceverify.ModelVGGFace,
		Metric:     faceverify.MetricCosine,
		LatencyMs:  latency.Milliseconds(),
		Cached:     cached,
		CreatedAt:  uc.now(),
	}
	if err := uc.repo.SaveLog(ctx, log); err != nil {
		wrapped := logging.NewOperationError("usecase.save_log", requestID, err)
		opLogger.Error("failed to persist comparison log", zap.Error(wrapped))
		return nil, wrapped
	}

	comparison := &Comparison{
		RequestID: requestID,
		UserID:    userID,
		Result:    result,
		Cached:    cached,
		CreatedAt: log.CreatedAt,
	}

	serialized, err := json.Marshal(comparison)
	if err != nil {
		opLogger.Error("failed to serialize comparison", zap.Error(err))
		return nil, err
	}
	if err := uc.policy.Do(ctx, uc.logger, "cache.set.result", requestID, func() error {
		return uc.cache.Set(ctx, resultCacheKey(requestID), string(serialized), resultTTL)
	}); err != nil {
		opLogger.Error("failed to cache comparison", zap.Error(err))
		return nil, err
	}

	if !cached && !result.Failed() {
		uc.storePair(ctx, requestID, pairKey, result)
	}

	opLogger.Info("comparison stored",
		zap.Bool("match", result.Match),
		zap.Bool("failed", result.Failed()),
		zap.Bool("cached", cached),
		zap.Int64("latency_ms", log.LatencyMs),
	)
	return comparison, nil
}

// GetResult retrieves a cached comparison or loads it from persistence.
func (uc *ComparisonUseCase) GetResult(ctx context.Context, requestID string) (*Comparison, error) {
	opLogger := logging.WithOperation(uc.logger, "usecase.get_result", requestID)

	raw, hit, err := uc.cacheGet(ctx, requestID, "cache.get.result", resultCacheKey(requestID))
	if err != nil {
		opLogger.Warn("failed to read cache", zap.Error(err))
	}
	if hit {
		var cached Comparison
		decodeErr := json.Unmarshal([]byte(raw), &cached)
		if decodeErr == nil {
			return &cached, nil
		}
		opLogger.Warn("failed to decode cached comparison", zap.Error(decodeErr))
	}

	log, err := uc.repo.FindByRequestID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	return comparisonFromLog(log), nil
}

func (uc *ComparisonUseCase) lookupPair(ctx context.Context, requestID, key string) (compare.Result, bool) {
	raw, hit, err := uc.cacheGet(ctx, requestID, "cache.get.pair", key)
	if err != nil {
		logging.WithOperation(uc.logger, "usecase.lookup_pair", requestID).Warn("failed to read pair cache", zap.Error(err))
	}
	if !hit {
		return compare.Result{}, false
	}

	var result compare.Result
	if err := json.Unmarshal([]byte(raw), &result); err != nil || result.Failed() {
		return compare.Result{}, false
	}
	return result, true
}

func (uc *ComparisonUseCase) storePair(ctx context.Context, requestID, key string, result compare.Result) {
	serialized, err := json.Marshal(result)
	if err == nil {
		err = uc.policy.Do(ctx, uc.logger, "cache.set.pair", requestID, func() error {
			return uc.cache.Set(ctx, key, string(serialized), pairTTL)
		})
	}
	if err != nil {
		logging.WithOperation(uc.logger, "usecase.store_pair", requestID).Warn("failed to cache pair verdict", zap.Error(err))
	}
}

// cacheGet reports a miss as hit=false with a nil error.
func (uc *ComparisonUseCase) cacheGet(ctx context.Context, requestID, operation, key string) (string, bool, error) {
	var (
		value string
		hit   bool
	)
	err := uc.policy.Do(ctx, uc.logger, operation, requestID, func() error {
		v, err := uc.cache.Get(ctx, key)
		if errors.Is(err, ErrCacheMiss) {
			return nil
		}
		if err != nil {
			return err
		}
		value, hit = v, true
		return nil
	})
	if err != nil {
		return "", false, err
	}
	return value, hit, nil
}

func comparisonFromLog(log *repository.ComparisonLog) *Comparison {
	result := compare.Success(log.Match, log.Distance, log.Threshold)
	if log.Failed() {
		result = compare.Failure(log.Error)
	}
	return &Comparison{
		RequestID: log.RequestID,
		UserID:    log.UserID,
		Result:    result,
		Cached:    log.Cached,
		CreatedAt: log.CreatedAt,
	}
}

func resultCacheKey(requestID string) string {
	return fmt.Sprintf("comparison:%s", requestID)
}

func pairCacheKey(hashA, hashB string) string {
	return fmt.Sprintf("comparison:pair:%s:%s", hashA, hashB)
}

func sha1Hex(data []byte) string {
	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:])
}
