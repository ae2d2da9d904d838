package observability

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"go.uber.org/zap"
)

// CloudWatchAPI is the subset of the CloudWatch client used for metrics.
type CloudWatchAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// Metrics publishes operational metrics to CloudWatch. A nil client disables it.
type Metrics struct {
	namespace string
	client    CloudWatchAPI
	logger    *zap.Logger
}

// NewMetrics creates a new metrics instance
func NewMetrics(namespace string, client CloudWatchAPI, logger *zap.Logger) *Metrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Metrics{
		namespace: namespace,
		client:    client,
		logger:    logger,
	}
}

// RecordLatency records latency for any operation
func (m *Metrics) RecordLatency(ctx context.Context, operation string, latency time.Duration) {
	m.put(ctx, types.MetricDatum{
		MetricName: aws.String("OperationLatency"),
		Dimensions: dimensions(map[string]string{"Operation": operation}),
		Value:      aws.Float64(float64(latency.Milliseconds())),
		Unit:       types.StandardUnitMilliseconds,
		Timestamp:  aws.Time(time.Now()),
	})
}

// RecordError records error occurrences
func (m *Metrics) RecordError(ctx context.Context, operation, errorType string) {
	m.put(ctx, types.MetricDatum{
		MetricName: aws.String("Errors"),
		Dimensions: dimensions(map[string]string{"Operation": operation, "ErrorType": errorType}),
		Value:      aws.Float64(1),
		Unit:       types.StandardUnitCount,
		Timestamp:  aws.Time(time.Now()),
	})
}

// RecordBusinessMetric records custom business metrics such as chunks ingested
func (m *Metrics) RecordBusinessMetric(ctx context.Context, name string, value float64, dims map[string]string) {
	m.put(ctx, types.MetricDatum{
		MetricName: aws.String(name),
		Dimensions: dimensions(dims),
		Value:      aws.Float64(value),
		Unit:       types.StandardUnitCount,
		Timestamp:  aws.Time(time.Now()),
	})
}

func (m *Metrics) put(ctx context.Context, datum types.MetricDatum) {
	if m == nil || m.client == nil {
		return
	}

	_, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: []types.MetricDatum{datum},
	})
	if err != nil {
		// Metrics never fail the operation being measured
		m.logger.Warn("Failed to send metrics",
			zap.String("metric", aws.ToString(datum.MetricName)),
			zap.Error(err))
	}
}

func dimensions(in map[string]string) []types.Dimension {
	out := make([]types.Dimension, 0, len(in))
	for name, value := range in {
		if value == "" {
			continue
		}
		out = append(out, types.Dimension{
			Name:  aws.String(name),
			Value: aws.String(value),
		})
	}
	return out
}
