package usecase

import "context"

// OperationMetrics is the per-operation part of the summary.
type OperationMetrics struct {
	Total            int64   `json:"total"`
	Successful       int64   `json:"successful"`
	SuccessRate      float64 `json:"success_rate"`
	AverageLatencyMs float64 `json:"average_latency_ms"`
}

// MetricsSummary represents aggregated operation insights.
type MetricsSummary struct {
	TotalOperations      int64                       `json:"total_operations"`
	SuccessfulOperations int64                       `json:"successful_operations"`
	CanceledOperations   int64                       `json:"canceled_operations"`
	SuccessRate          float64                     `json:"success_rate"`
	AverageLatencyMs     float64                     `json:"average_latency_ms"`
	ByOperation          map[string]OperationMetrics `json:"by_operation"`
}

// GetMetricsSummary aggregates operation metrics from persisted logs.
func (uc *BridgeUseCase) GetMetricsSummary(ctx context.Context) (*MetricsSummary, error) {
	aggregation, err := uc.repo.AggregateMetrics(ctx)
	if err != nil {
		return nil, err
	}

	summary := &MetricsSummary{
		TotalOperations:      aggregation.TotalCount,
		SuccessfulOperations: aggregation.SuccessCount,
		CanceledOperations:   aggregation.CanceledCount,
		AverageLatencyMs:     aggregation.AverageLatencyMs,
		ByOperation:          make(map[string]OperationMetrics, len(aggregation.ByOperation)),
	}
	if aggregation.TotalCount > 0 {
		summary.SuccessRate = float64(aggregation.SuccessCount) / float64(aggregation.TotalCount)
	}

	for _, row := range aggregation.ByOperation {
		m := OperationMetrics{
			Total:            row.Total,
			Successful:       row.Success,
			AverageLatencyMs: row.AvgLatencyMs,
		}
		if row.Total > 0 {
			m.SuccessRate = float64(row.Success) / float64(row.Total)
		}
		summary.ByOperation[row.Operation] = m
	}

	return summary, nil
}
