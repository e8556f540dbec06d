package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCloudWatch struct {
	inputs []*cloudwatch.PutMetricDataInput
	err    error
}

func (f *fakeCloudWatch) PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	f.inputs = append(f.inputs, params)
	return &cloudwatch.PutMetricDataOutput{}, f.err
}

func TestCloudWatchRecordOperation(t *testing.T) {
	fake := &fakeCloudWatch{}
	m := NewMetrics("BlueprintDrafts", fake, nil)

	m.RecordOperation(context.Background(), "commit", 42*time.Millisecond, errors.New("boom"))

	require.Len(t, fake.inputs, 1)
	input := fake.inputs[0]
	assert.Equal(t, "BlueprintDrafts", aws.ToString(input.Namespace))
	require.Len(t, input.MetricData, 2)
	assert.Equal(t, "OperationLatency", aws.ToString(input.MetricData[0].MetricName))
	assert.Equal(t, 42.0, aws.ToFloat64(input.MetricData[0].Value))
	assert.Equal(t, "Status", aws.ToString(input.MetricData[0].Dimensions[1].Name))
	assert.Equal(t, "failure", aws.ToString(input.MetricData[0].Dimensions[1].Value))
}

func TestCloudWatchSkipsEmptyConflictsAndSwallowsErrors(t *testing.T) {
	fake := &fakeCloudWatch{err: errors.New("throttled")}
	m := NewMetrics("BlueprintDrafts", fake, nil)

	m.RecordConflicts(context.Background(), "node", 0)
	assert.Empty(t, fake.inputs)

	m.RecordPreview(context.Background(), true, true)
	require.Len(t, fake.inputs, 1)
	assert.Equal(t, "stale", aws.ToString(fake.inputs[0].MetricData[0].Dimensions[0].Value))
}

func TestCloudWatchWithoutClientIsNoop(t *testing.T) {
	m := NewMetrics("BlueprintDrafts", nil, nil)
	assert.NotPanics(t, func() {
		m.RecordOperation(context.Background(), "open", time.Millisecond, nil)
		m.RecordActiveSessions(context.Background(), 3)
	})
}

func TestPrometheusCounters(t *testing.T) {
	p := NewPrometheusMetrics()
	ctx := context.Background()

	p.RecordOperation(ctx, "edit", time.Millisecond, nil)
	p.RecordOperation(ctx, "edit", time.Millisecond, nil)
	p.RecordOperation(ctx, "edit", time.Millisecond, errors.New("bad op"))
	p.RecordConflicts(ctx, "edge", 3)
	p.RecordPreview(ctx, false, false)
	p.RecordActiveSessions(ctx, 4)

	assert.Equal(t, 2.0, testutil.ToFloat64(p.OperationsTotal.WithLabelValues("edit", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.OperationsTotal.WithLabelValues("edit", "failure")))
	assert.Equal(t, 3.0, testutil.ToFloat64(p.ConflictsTotal.WithLabelValues("edge")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.PreviewsTotal.WithLabelValues("failed")))
	assert.Equal(t, 4.0, testutil.ToFloat64(p.SessionsActive))
}

func TestPrometheusHandlerExposesMetrics(t *testing.T) {
	p := NewPrometheusMetrics()
	p.ObserveRequest(http.MethodGet, "/api/v2/sessions/{id}", http.StatusOK, 5*time.Millisecond)

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `drafts_http_requests_total{method="GET",route="/api/v2/sessions/{id}",status="200"} 1`)
}

func TestMultiRecorderFansOut(t *testing.T) {
	p1 := NewPrometheusMetrics()
	p2 := NewPrometheusMetrics()
	m := NewMultiRecorder(p1, nil, p2)
	require.Equal(t, 2, m.Len())

	m.RecordConflicts(context.Background(), "node", 2)
	m.RecordActiveSessions(context.Background(), 7)

	for _, p := range []*PrometheusMetrics{p1, p2} {
		assert.Equal(t, 2.0, testutil.ToFloat64(p.ConflictsTotal.WithLabelValues("node")))
		assert.Equal(t, 7.0, testutil.ToFloat64(p.SessionsActive))
	}
}

func TestDisabledTracerRunsFunction(t *testing.T) {
	boom := errors.New("boom")
	for _, tracer := range []*Tracer{nil, NewTracer("drafts", false)} {
		called := false
		err := tracer.TraceFunction(context.Background(), "commit", func(ctx context.Context) error {
			called = true
			return boom
		})
		assert.True(t, called)
		assert.ErrorIs(t, err, boom)
		assert.False(t, tracer.Enabled())
	}
}
