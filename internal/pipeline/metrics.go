package pipeline

import "context"

// MetricsSummary represents aggregated transfer insights.
type MetricsSummary struct {
	TotalTransfers      int64   `json:"total_transfers"`
	DeliveredTransfers  int64   `json:"delivered_transfers"`
	DeliveryRate        float64 `json:"delivery_rate"`
	AverageChunkCount   float64 `json:"average_chunk_count"`
	AverageEncodedBytes float64 `json:"average_encoded_bytes"`
}

// GetMetricsSummary aggregates transfer metrics from persisted logs.
func (p *Pipeline) GetMetricsSummary(ctx context.Context) (*MetricsSummary, error) {
	aggregation, err := p.repo.AggregateMetrics(ctx)
	if err != nil {
		return nil, err
	}

	summary := &MetricsSummary{
		TotalTransfers:      aggregation.TotalCount,
		DeliveredTransfers:  aggregation.DeliveredCount,
		AverageChunkCount:   aggregation.AverageChunkCount,
		AverageEncodedBytes: aggregation.AverageEncodedBytes,
	}

	if aggregation.TotalCount > 0 {
		summary.DeliveryRate = float64(aggregation.DeliveredCount) / float64(aggregation.TotalCount)
	}

	return summary, nil
}
