package services

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

// mockSeedWriter implements repositories.SeedWriter
type mockSeedWriter struct {
	counts   map[string]int64
	written  map[string][]interface{}
	countErr error
}

func newMockSeedWriter() *mockSeedWriter {
	return &mockSeedWriter{
		counts:  make(map[string]int64),
		written: make(map[string][]interface{}),
	}
}

func (m *mockSeedWriter) Count(ctx context.Context, collection string) (int64, error) {
	return m.counts[collection], m.countErr
}

func (m *mockSeedWriter) Replace(ctx context.Context, collection string, docs []interface{}) (int, error) {
	m.written[collection] = docs
	m.counts[collection] = int64(len(docs))
	return len(docs), nil
}

func (m *mockSeedWriter) Insert(ctx context.Context, collection string, docs []interface{}) (int, error) {
	m.written[collection] = append(m.written[collection], docs...)
	m.counts[collection] += int64(len(docs))
	return len(docs), nil
}

var seedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestSeedService(writer *mockSeedWriter, seed int64) SeedService {
	return NewSeedService(writer, rand.New(rand.NewSource(seed)), func() time.Time { return seedNow }, &mockLogger{}, &mockMetricsCollector{})
}

func TestSeedService_Seed(t *testing.T) {
	writer := newMockSeedWriter()

	report, err := newTestSeedService(writer, 42).Seed(context.Background(), false)
	require.NoError(t, err)

	assert.Equal(t, map[string]int{
		DepartmentsCollection: 5,
		EmployeesCollection:   50,
		ProjectsCollection:    10,
	}, report.Inserted)
	assert.Empty(t, report.Skipped)

	codes := map[string]bool{}
	for _, d := range writer.written[DepartmentsCollection] {
		codes[d.(bson.D).Map()["code"].(string)] = true
	}
	assert.Equal(t, map[string]bool{"ENG": true, "MKT": true, "FIN": true, "HR": true, "SALES": true}, codes)

	for i, e := range writer.written[EmployeesCollection] {
		doc := e.(bson.D).Map()
		assert.True(t, codes[doc["department"].(string)])
		assert.Equal(t, []string{"English (Native)"}, doc["languages"].([]string)[:1])
		age := doc["age"].(int32)
		assert.GreaterOrEqual(t, age, int32(22))
		assert.Less(t, age, int32(52))
		joined := doc["joinDate"].(time.Time)
		assert.False(t, joined.After(seedNow))
		if i < seedRecentHires {
			assert.True(t, joined.After(seedNow.AddDate(0, 0, -31)), "recent hires joined within 30 days")
		}
	}

	for _, p := range writer.written[ProjectsCollection] {
		doc := p.(bson.D).Map()
		budget := doc["budget"].(float64)
		assert.GreaterOrEqual(t, budget, 10000.0)
		assert.LessOrEqual(t, budget, 100000.0)
	}
}

func TestSeedService_Deterministic(t *testing.T) {
	a, b := newMockSeedWriter(), newMockSeedWriter()

	_, err := newTestSeedService(a, 7).Seed(context.Background(), false)
	require.NoError(t, err)
	_, err = newTestSeedService(b, 7).Seed(context.Background(), false)
	require.NoError(t, err)

	assert.Equal(t, a.written, b.written)
}

func TestSeedService_SkipsSeededCollections(t *testing.T) {
	writer := newMockSeedWriter()
	writer.counts[EmployeesCollection] = 3

	report, err := newTestSeedService(writer, 1).Seed(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, []string{EmployeesCollection}, report.Skipped)
	assert.NotContains(t, report.Inserted, EmployeesCollection)
	assert.Nil(t, writer.written[EmployeesCollection])

	report, err = newTestSeedService(writer, 1).Seed(context.Background(), true)
	require.NoError(t, err)
	assert.Empty(t, report.Skipped)
	assert.Equal(t, 50, report.Inserted[EmployeesCollection])
}

func TestSeedService_CountError(t *testing.T) {
	writer := newMockSeedWriter()
	writer.countErr = assert.AnError

	_, err := newTestSeedService(writer, 1).Seed(context.Background(), false)
	assert.ErrorIs(t, err, assert.AnError)
}
