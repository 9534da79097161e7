package usecase

import "context"

// MetricsSummary represents aggregated comparison insights.
type MetricsSummary struct {
	TotalComparisons int64   `json:"total_comparisons"`
	Matches          int64   `json:"matches"`
	Failures         int64   `json:"failures"`
	MatchRate        float64 `json:"match_rate"`
	AverageDistance  float64 `json:"average_distance"`
	AverageLatencyMs float64 `json:"average_latency_ms"`
}

// GetMetricsSummary aggregates comparison metrics from persisted logs.
// MatchRate is computed over comparisons that produced a verdict.
func (uc *ComparisonUseCase) GetMetricsSummary(ctx context.Context) (*MetricsSummary, error) {
	aggregation, err := uc.repo.AggregateMetrics(ctx)
	if err != nil {
		return nil, err
	}

	summary := &MetricsSummary{
		TotalComparisons: aggregation.TotalCount,
		Matches:          aggregation.MatchCount,
		Failures:         aggregation.FailureCount,
		AverageDistance:  aggregation.AverageDistance,
		AverageLatencyMs: aggregation.AverageLatencyMs,
	}

	if verdicts := aggregation.TotalCount - aggregation.FailureCount; verdicts > 0 {
		summary.MatchRate = float64(aggregation.MatchCount) / float64(verdicts)
	}

	return summary, nil
}
