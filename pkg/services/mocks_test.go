package services

import (
	"context"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/TFMV/nlq/pkg/models"
)

// mockLogger implements Logger
type mockLogger struct {
	debugFunc func(msg string, keysAndValues ...interface{})
	infoFunc  func(msg string, keysAndValues ...interface{})
	warnFunc  func(msg string, keysAndValues ...interface{})
	errorFunc func(msg string, keysAndValues ...interface{})
}

func (m *mockLogger) Debug(msg string, keysAndValues ...interface{}) {
	if m.debugFunc != nil {
		m.debugFunc(msg, keysAndValues...)
	}
}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{}) {
	if m.infoFunc != nil {
		m.infoFunc(msg, keysAndValues...)
	}
}

func (m *mockLogger) Warn(msg string, keysAndValues ...interface{}) {
	if m.warnFunc != nil {
		m.warnFunc(msg, keysAndValues...)
	}
}

func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {
	if m.errorFunc != nil {
		m.errorFunc(msg, keysAndValues...)
	}
}

// mockMetricsCollector implements MetricsCollector
type mockMetricsCollector struct {
	incrementCounterFunc func(name string, labels ...string)
	recordHistogramFunc  func(name string, value float64, labels ...string)
	recordGaugeFunc      func(name string, value float64, labels ...string)
	startTimerFunc       func(name string) Timer
}

func (m *mockMetricsCollector) IncrementCounter(name string, labels ...string) {
	if m.incrementCounterFunc != nil {
		m.incrementCounterFunc(name, labels...)
	}
}

func (m *mockMetricsCollector) RecordHistogram(name string, value float64, labels ...string) {
	if m.recordHistogramFunc != nil {
		m.recordHistogramFunc(name, value, labels...)
	}
}

func (m *mockMetricsCollector) RecordGauge(name string, value float64, labels ...string) {
	if m.recordGaugeFunc != nil {
		m.recordGaugeFunc(name, value, labels...)
	}
}

func (m *mockMetricsCollector) StartTimer(name string) Timer {
	if m.startTimerFunc != nil {
		return m.startTimerFunc(name)
	}
	return &mockTimer{}
}

// mockTimer implements Timer
type mockTimer struct{}

func (m *mockTimer) Stop() time.Duration {
	return 0
}

// counterRecorder records counter increments by name.
type counterRecorder struct {
	mu     sync.Mutex
	counts map[string]int
	labels map[string][]string
}

func newCounterRecorder() *counterRecorder {
	return &counterRecorder{
		counts: make(map[string]int),
		labels: make(map[string][]string),
	}
}

func (c *counterRecorder) collector() *mockMetricsCollector {
	return &mockMetricsCollector{
		incrementCounterFunc: func(name string, labels ...string) {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.counts[name]++
			c.labels[name] = labels
		},
	}
}

func (c *counterRecorder) count(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[name]
}

// mockDocumentReader implements repositories.DocumentReader
type mockDocumentReader struct {
	findFunc   func(ctx context.Context, collection string, filter models.Value, limit int) ([]bson.Raw, error)
	existsFunc func(ctx context.Context, collection string) (bool, error)
}

func (m *mockDocumentReader) Find(ctx context.Context, collection string, filter models.Value, limit int) ([]bson.Raw, error) {
	if m.findFunc == nil {
		return nil, nil
	}
	return m.findFunc(ctx, collection, filter, limit)
}

func (m *mockDocumentReader) CollectionExists(ctx context.Context, collection string) (bool, error) {
	if m.existsFunc == nil {
		return true, nil
	}
	return m.existsFunc(ctx, collection)
}

// mockGateway implements ModelGateway
type mockGateway struct {
	generateFunc func(ctx context.Context, prompt string) (string, error)
	calls        int
}

func (m *mockGateway) Generate(ctx context.Context, prompt string) (string, error) {
	m.calls++
	return m.generateFunc(ctx, prompt)
}

// mockProjector implements Projector
type mockProjector struct {
	projectAllFunc func(docs []bson.Raw) ([]models.Value, error)
}

func (m *mockProjector) ProjectAll(docs []bson.Raw) ([]models.Value, error) {
	if m.projectAllFunc != nil {
		return m.projectAllFunc(docs)
	}
	out := make([]models.Value, 0, len(docs))
	for i := range docs {
		out = append(out, models.Object(models.Field{Key: "n", Value: models.Int(int64(i))}))
	}
	return out, nil
}

// rawDocs builds n BSON documents {"n": i}.
func rawDocs(n int) []bson.Raw {
	docs := make([]bson.Raw, 0, n)
	for i := 0; i < n; i++ {
		b, err := bson.Marshal(bson.D{{Key: "n", Value: int32(i)}})
		if err != nil {
			panic(err)
		}
		docs = append(docs, b)
	}
	return docs
}
