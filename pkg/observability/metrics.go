package observability

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"go.uber.org/zap"
)

// PutMetricDataAPI is the slice of the CloudWatch client the recorder uses
type PutMetricDataAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// Metrics publishes reconciliation metrics to CloudWatch
type Metrics struct {
	namespace string
	client    PutMetricDataAPI
	logger    *zap.Logger
	now       func() time.Time
}

// NewMetrics creates a new metrics instance. A nil client disables publishing.
func NewMetrics(namespace string, client PutMetricDataAPI, logger *zap.Logger) *Metrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Metrics{
		namespace: namespace,
		client:    client,
		logger:    logger,
		now:       time.Now,
	}
}

// RecordOperation records the latency and outcome of a draft operation
func (m *Metrics) RecordOperation(ctx context.Context, operation string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	dims := dimensions("Operation", operation, "Status", status)

	m.put(ctx,
		m.datum("OperationLatency", float64(duration.Milliseconds()), types.StandardUnitMilliseconds, dims),
		m.datum("OperationCount", 1, types.StandardUnitCount, dims),
	)
}

// RecordConflicts records how many conflicts of a kind a proposal raised
func (m *Metrics) RecordConflicts(ctx context.Context, kind string, count int) {
	if count <= 0 {
		return
	}
	m.put(ctx, m.datum("Conflicts", float64(count), types.StandardUnitCount, dimensions("Kind", kind)))
}

// RecordPreview records one sandbox run
func (m *Metrics) RecordPreview(ctx context.Context, ok, stale bool) {
	result := "failed"
	if ok {
		result = "passed"
	}
	if stale {
		result = "stale"
	}
	m.put(ctx, m.datum("PreviewRuns", 1, types.StandardUnitCount, dimensions("Result", result)))
}

// RecordActiveSessions records the number of open drafts
func (m *Metrics) RecordActiveSessions(ctx context.Context, count int) {
	m.put(ctx, m.datum("ActiveSessions", float64(count), types.StandardUnitCount, nil))
}

func (m *Metrics) datum(name string, value float64, unit types.StandardUnit, dims []types.Dimension) types.MetricDatum {
	return types.MetricDatum{
		MetricName: aws.String(name),
		Dimensions: dims,
		Value:      aws.Float64(value),
		Unit:       unit,
		Timestamp:  aws.Time(m.now()),
	}
}

func (m *Metrics) put(ctx context.Context, data ...types.MetricDatum) {
	if m == nil || m.client == nil {
		return
	}

	input := &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: data,
	}

	// Metrics never fail the operation they describe
	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Warn("Failed to send metrics", zap.String("namespace", m.namespace), zap.Error(err))
	}
}

// dimensions builds CloudWatch dimensions from name/value pairs
func dimensions(pairs ...string) []types.Dimension {
	dims := make([]types.Dimension, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		dims = append(dims, types.Dimension{
			Name:  aws.String(pairs[i]),
			Value: aws.String(pairs[i+1]),
		})
	}
	return dims
}
