package services

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/TFMV/nlq/pkg/cache"
	"github.com/TFMV/nlq/pkg/errors"
	"github.com/TFMV/nlq/pkg/infrastructure/converter"
	"github.com/TFMV/nlq/pkg/models"
	"github.com/TFMV/nlq/pkg/repositories"
)

// Schema introspection bounds.
const (
	DefaultSchemaSampleSize = 10
	MaxSampleSize           = 100
)

const summaryCacheKey = "summary"

// schemaService implements SchemaService.
type schemaService struct {
	reader     repositories.MetadataReader
	projector  Projector
	database   string
	sampleSize int
	cache      cache.Cache[*models.SchemaSummary]
	logger     Logger
	metrics    MetricsCollector
}

// NewSchemaService creates a new schema service. Summaries are kept in
// summaries until they expire or Invalidate is called.
func NewSchemaService(
	reader repositories.MetadataReader,
	projector Projector,
	database string,
	sampleSize int,
	summaries cache.Cache[*models.SchemaSummary],
	logger Logger,
	metrics MetricsCollector,
) SchemaService {
	if sampleSize <= 0 {
		sampleSize = DefaultSchemaSampleSize
	}
	return &schemaService{
		reader:     reader,
		projector:  projector,
		database:   database,
		sampleSize: sampleSize,
		cache:      summaries,
		logger:     logger,
		metrics:    metrics,
	}
}

// Summary returns the cached schema summary, introspecting on a miss.
func (s *schemaService) Summary(ctx context.Context) (*models.SchemaSummary, error) {
	if summary, ok := s.cache.Get(ctx, summaryCacheKey); ok {
		s.metrics.IncrementCounter("schema_cache_hits")
		return summary, nil
	}
	s.metrics.IncrementCounter("schema_cache_misses")

	timer := s.metrics.StartTimer("schema_introspection")
	defer timer.Stop()

	names, err := s.reader.ListCollections(ctx)
	if err != nil {
		s.logger.Error("Failed to list collections", "error", err)
		return nil, errors.Wrap(err, errors.CodeExecutionError, "failed to list collections")
	}

	summary := &models.SchemaSummary{
		Database:    s.database,
		Collections: make([]models.CollectionInfo, 0, len(names)),
		GeneratedAt: time.Now().UTC(),
	}
	for _, name := range names {
		docs, err := s.reader.Sample(ctx, name, s.sampleSize)
		if err != nil {
			s.logger.Error("Failed to sample collection", "error", err, "collection", name)
			return nil, errors.Wrapf(err, errors.CodeExecutionError, "failed to sample collection %q", name)
		}
		summary.Collections = append(summary.Collections, describe(name, docs))
	}

	s.cache.Put(ctx, summaryCacheKey, summary)
	s.logger.Debug("Schema introspected", "collections", len(names), "sample_size", s.sampleSize)
	return summary, nil
}

// SummaryText renders the summary in the plain-text prompt format.
func (s *schemaService) SummaryText(ctx context.Context) (string, error) {
	summary, err := s.Summary(ctx)
	if err != nil {
		return "", err
	}
	return FormatSchemaSummary(summary), nil
}

// ListCollections returns the names of the introspected collections.
func (s *schemaService) ListCollections(ctx context.Context) ([]string, error) {
	summary, err := s.Summary(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(summary.Collections))
	for _, c := range summary.Collections {
		names = append(names, c.Name)
	}
	return names, nil
}

// DescribeCollection returns the sampled field paths of one collection.
func (s *schemaService) DescribeCollection(ctx context.Context, name string) (*models.CollectionInfo, error) {
	summary, err := s.Summary(ctx)
	if err != nil {
		return nil, err
	}
	for i := range summary.Collections {
		if summary.Collections[i].Name == name {
			info := summary.Collections[i]
			return &info, nil
		}
	}
	return nil, collectionNotFound(name)
}

// SampleCollection returns up to size projected documents of a known
// collection. size is clamped to [1, MaxSampleSize].
func (s *schemaService) SampleCollection(ctx context.Context, name string, size int) (*models.ResultSet, error) {
	if _, err := s.DescribeCollection(ctx, name); err != nil {
		return nil, err
	}

	switch {
	case size < 1:
		size = 1
	case size > MaxSampleSize:
		size = MaxSampleSize
	}

	docs, err := s.reader.Sample(ctx, name, size)
	if err != nil {
		s.logger.Error("Failed to sample collection", "error", err, "collection", name)
		return nil, errors.Wrapf(err, errors.CodeExecutionError, "failed to sample collection %q", name).
			AtStage(errors.StageExecute)
	}

	records, err := s.projector.ProjectAll(docs)
	if err != nil {
		return nil, err
	}
	return models.NewResultSet(records), nil
}

// Invalidate drops the cached summary.
func (s *schemaService) Invalidate() {
	s.cache.Clear(context.Background())
}

func collectionNotFound(name string) error {
	return errors.Newf(errors.CodeCollectionNotFound, "collection %q not found", name).
		WithDetail("collection", name)
}

// FormatSchemaSummary renders
//
//	Schema: default
//	Tables:
//	- employees
//	  - name: string
func FormatSchemaSummary(summary *models.SchemaSummary) string {
	var sb strings.Builder
	sb.WriteString("Schema: default\nTables:\n")
	if summary == nil {
		return sb.String()
	}
	for _, c := range summary.Collections {
		sb.WriteString("- ")
		sb.WriteString(c.Name)
		sb.WriteByte('\n')
		for _, f := range c.Fields {
			sb.WriteString("  - ")
			sb.WriteString(f.Path)
			sb.WriteString(": ")
			sb.WriteString(strings.Join(f.Types, "|"))
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

// describe merges the field paths and types seen across docs.
func describe(name string, docs []bson.Raw) models.CollectionInfo {
	types := make(map[string]map[string]struct{})
	for _, doc := range docs {
		collectFields(doc, "", types)
	}

	paths := make([]string, 0, len(types))
	for p := range types {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	fields := make([]models.FieldInfo, 0, len(paths))
	for _, p := range paths {
		names := make([]string, 0, len(types[p]))
		for t := range types[p] {
			names = append(names, t)
		}
		sort.Strings(names)
		fields = append(fields, models.FieldInfo{Path: p, Types: names})
	}

	return models.CollectionInfo{Name: name, SampledDocs: len(docs), Fields: fields}
}

// collectFields records leaf paths of doc. Sub-documents are flattened
// with dots; arrays become "path[]" and are described by their first
// element.
func collectFields(doc bson.Raw, prefix string, types map[string]map[string]struct{}) {
	elems, err := doc.Elements()
	if err != nil {
		return
	}
	for _, e := range elems {
		path := e.Key()
		if prefix != "" {
			path = prefix + "." + path
		}
		v := e.Value()

		switch v.Type {
		case bson.TypeEmbeddedDocument:
			sub, ok := v.DocumentOK()
			if !ok {
				continue
			}
			if subElems, _ := sub.Elements(); len(subElems) == 0 {
				addType(types, path, converter.TypeName(v.Type))
				continue
			}
			collectFields(sub, path, types)
		case bson.TypeArray:
			arr, ok := v.ArrayOK()
			if !ok {
				continue
			}
			values, _ := arr.Values()
			if len(values) == 0 {
				addType(types, path+"[]", converter.TypeName(v.Type))
				continue
			}
			first := values[0]
			if sub, ok := first.DocumentOK(); ok {
				collectFields(sub, path+"[]", types)
				continue
			}
			addType(types, path+"[]", converter.TypeName(first.Type))
		default:
			addType(types, path, converter.TypeName(v.Type))
		}
	}
}

func addType(types map[string]map[string]struct{}, path, typeName string) {
	set, ok := types[path]
	if !ok {
		set = make(map[string]struct{})
		types[path] = set
	}
	set[typeName] = struct{}{}
}
