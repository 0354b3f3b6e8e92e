package usecase

import "context"

// MetricsSummary represents aggregated verification insights.
type MetricsSummary struct {
	TotalRequests              int64   `json:"total_requests"`
	ValidRequests              int64   `json:"valid_requests"`
	SuspectRequests            int64   `json:"suspect_requests"`
	InvalidRequests            int64   `json:"invalid_requests"`
	ValidRate                  float64 `json:"valid_rate"`
	FallbackRate               float64 `json:"fallback_rate"`
	AverageProcessingLatencyMs float64 `json:"average_processing_latency_ms"`
}

// GetMetricsSummary aggregates verification metrics from persisted logs.
func (uc *VerificationUseCase) GetMetricsSummary(ctx context.Context) (*MetricsSummary, error) {
	aggregation, err := uc.repo.AggregateMetrics(ctx)
	if err != nil {
		return nil, err
	}

	summary := &MetricsSummary{
		TotalRequests:              aggregation.TotalCount,
		ValidRequests:              aggregation.ValidCount,
		SuspectRequests:            aggregation.SuspectCount,
		InvalidRequests:            aggregation.InvalidCount,
		AverageProcessingLatencyMs: aggregation.AverageProcessingLatencyMs,
	}

	if aggregation.TotalCount > 0 {
		total := float64(aggregation.TotalCount)
		summary.ValidRate = float64(aggregation.ValidCount) / total
		summary.FallbackRate = float64(aggregation.FallbackCount) / total
	}

	return summary, nil
}
