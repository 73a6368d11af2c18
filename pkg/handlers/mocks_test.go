package handlers

import (
	"context"
	"strings"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/TFMV/nlq/pkg/models"
)

// MockQueryService is a mock implementation of services.QueryService
type MockQueryService struct {
	mock.Mock
}

func (m *MockQueryService) TranslateAndExecute(ctx context.Context, text string, schemaSummary string) (*models.QueryResult, error) {
	args := m.Called(ctx, text, schemaSummary)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.QueryResult), args.Error(1)
}

func (m *MockQueryService) Translate(ctx context.Context, text string, schemaSummary string) (*models.QueryPlan, error) {
	args := m.Called(ctx, text, schemaSummary)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.QueryPlan), args.Error(1)
}

func (m *MockQueryService) ExecutePlan(ctx context.Context, planText string) (*models.QueryResult, error) {
	args := m.Called(ctx, planText)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.QueryResult), args.Error(1)
}

// MockSchemaService is a mock implementation of services.SchemaService
type MockSchemaService struct {
	mock.Mock
}

func (m *MockSchemaService) Summary(ctx context.Context) (*models.SchemaSummary, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SchemaSummary), args.Error(1)
}

func (m *MockSchemaService) SummaryText(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockSchemaService) ListCollections(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockSchemaService) DescribeCollection(ctx context.Context, name string) (*models.CollectionInfo, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CollectionInfo), args.Error(1)
}

func (m *MockSchemaService) SampleCollection(ctx context.Context, name string, size int) (*models.ResultSet, error) {
	args := m.Called(ctx, name, size)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ResultSet), args.Error(1)
}

func (m *MockSchemaService) Invalidate() {
	m.Called()
}

// nopLogger discards log output.
type nopLogger struct{}

func (nopLogger) Debug(msg string, keysAndValues ...interface{}) {}
func (nopLogger) Info(msg string, keysAndValues ...interface{})  {}
func (nopLogger) Warn(msg string, keysAndValues ...interface{})  {}
func (nopLogger) Error(msg string, keysAndValues ...interface{}) {}

// recordingMetrics counts every metric call under "name|label=value,...".
type recordingMetrics struct {
	mu     sync.Mutex
	counts map[string]int
	timers map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{counts: map[string]int{}, timers: map[string]int{}}
}

func metricKey(name string, labels []string) string {
	pairs := make([]string, 0, len(labels)/2)
	for i := 0; i+1 < len(labels); i += 2 {
		pairs = append(pairs, labels[i]+"="+labels[i+1])
	}
	if len(pairs) == 0 {
		return name
	}
	return name + "|" + strings.Join(pairs, ",")
}

func (m *recordingMetrics) IncrementCounter(name string, labels ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[metricKey(name, labels)]++
}

func (m *recordingMetrics) RecordHistogram(name string, value float64, labels ...string) {}

func (m *recordingMetrics) RecordGauge(name string, value float64, labels ...string) {}

func (m *recordingMetrics) StartTimer(name string) Timer {
	return &recordingTimer{metrics: m, name: name}
}

func (m *recordingMetrics) count(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[key]
}

func (m *recordingMetrics) stopped(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timers[name]
}

type recordingTimer struct {
	metrics *recordingMetrics
	name    string
}

func (t *recordingTimer) Stop() {
	t.metrics.mu.Lock()
	defer t.metrics.mu.Unlock()
	t.metrics.timers[t.name]++
}
