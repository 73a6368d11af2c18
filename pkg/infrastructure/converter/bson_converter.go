// Package converter projects store-native documents into models.Value trees
// and models.Value records into Apache Arrow.
package converter

import (
	"encoding/base64"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"

	"github.com/TFMV/nlq/pkg/errors"
	"github.com/TFMV/nlq/pkg/models"
)

// DefaultMaxDepth bounds the nesting of sub-documents and arrays below a record.
const DefaultMaxDepth = 100

// DateLayout is the canonical rendering of store datetimes.
const DateLayout = "2006-01-02T15:04:05.000Z07:00"

// maxSafeInteger is the largest integer every JSON consumer reads exactly.
const maxSafeInteger = 1 << 53

// BSONConverter converts BSON documents to models.Value.
type BSONConverter struct {
	maxDepth int
	logger   zerolog.Logger
}

// NewBSONConverter creates a converter. A non-positive maxDepth selects DefaultMaxDepth.
func NewBSONConverter(maxDepth int, logger zerolog.Logger) *BSONConverter {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &BSONConverter{
		maxDepth: maxDepth,
		logger:   logger,
	}
}

// ProjectAll converts every document, failing on the first bad one.
func (c *BSONConverter) ProjectAll(docs []bson.Raw) ([]models.Value, error) {
	out := make([]models.Value, 0, len(docs))
	for i, doc := range docs {
		v, qerr := c.document(doc, 0)
		if qerr != nil {
			return nil, qerr.WithDetail("record", i)
		}
		out = append(out, v)
	}
	return out, nil
}

// Project converts a single document into an object value.
func (c *BSONConverter) Project(doc bson.Raw) (models.Value, error) {
	v, qerr := c.document(doc, 0)
	if qerr != nil {
		return models.Null(), qerr
	}
	return v, nil
}

func (c *BSONConverter) document(doc bson.Raw, depth int) (models.Value, *errors.QueryError) {
	if depth > c.maxDepth {
		return models.Null(), c.tooDeep()
	}
	elems, err := doc.Elements()
	if err != nil {
		return models.Null(), errors.Wrap(err, errors.CodeExecutionError, "malformed document").
			AtStage(errors.StageProject)
	}
	fields := make([]models.Field, 0, len(elems))
	for _, e := range elems {
		v, qerr := c.value(e.Value(), depth)
		if qerr != nil {
			return models.Null(), qerr
		}
		fields = append(fields, models.Field{Key: e.Key(), Value: v})
	}
	return models.Object(fields...), nil
}

func (c *BSONConverter) array(arr bson.Raw, depth int) (models.Value, *errors.QueryError) {
	if depth > c.maxDepth {
		return models.Null(), c.tooDeep()
	}
	values, err := arr.Values()
	if err != nil {
		return models.Null(), errors.Wrap(err, errors.CodeExecutionError, "malformed array").
			AtStage(errors.StageProject)
	}
	elems := make([]models.Value, 0, len(values))
	for _, rv := range values {
		v, qerr := c.value(rv, depth)
		if qerr != nil {
			return models.Null(), qerr
		}
		elems = append(elems, v)
	}
	return models.Array(elems...), nil
}

func (c *BSONConverter) value(rv bson.RawValue, depth int) (models.Value, *errors.QueryError) {
	switch rv.Type {
	case bson.TypeEmbeddedDocument:
		doc, ok := rv.DocumentOK()
		if !ok {
			return models.Null(), c.malformed(rv.Type)
		}
		return c.document(doc, depth+1)
	case bson.TypeArray:
		arr, ok := rv.ArrayOK()
		if !ok {
			return models.Null(), c.malformed(rv.Type)
		}
		return c.array(arr, depth+1)
	case bson.TypeString:
		return models.String(rv.StringValue()), nil
	case bson.TypeInt32:
		return models.Int(int64(rv.Int32())), nil
	case bson.TypeInt64:
		i := rv.Int64()
		if i > maxSafeInteger || i < -maxSafeInteger {
			return models.String(strconv.FormatInt(i, 10)), nil
		}
		return models.Int(i), nil
	case bson.TypeDouble:
		return double(rv.Double()), nil
	case bson.TypeDecimal128:
		return models.String(rv.Decimal128().String()), nil
	case bson.TypeBoolean:
		return models.Bool(rv.Boolean()), nil
	case bson.TypeNull, bson.TypeUndefined:
		return models.Null(), nil
	case bson.TypeObjectID:
		return models.String(rv.ObjectID().Hex()), nil
	case bson.TypeDateTime:
		return models.String(time.UnixMilli(rv.DateTime()).UTC().Format(DateLayout)), nil
	case bson.TypeTimestamp:
		t, i := rv.Timestamp()
		return models.Object(
			models.Field{Key: "t", Value: models.Int(int64(t))},
			models.Field{Key: "i", Value: models.Int(int64(i))},
		), nil
	case bson.TypeBinary:
		_, data := rv.Binary()
		return models.String(base64.StdEncoding.EncodeToString(data)), nil
	case bson.TypeRegex:
		pattern, options := rv.Regex()
		return models.String("/" + pattern + "/" + options), nil
	case bson.TypeJavaScript:
		return models.String(rv.JavaScript()), nil
	case bson.TypeSymbol:
		return models.String(rv.Symbol()), nil
	case bson.TypeCodeWithScope:
		code, _ := rv.CodeWithScope()
		return models.String(code), nil
	case bson.TypeDBPointer:
		ns, oid := rv.DBPointer()
		return models.String(ns + "/" + oid.Hex()), nil
	case bson.TypeMinKey:
		return models.String("MinKey"), nil
	case bson.TypeMaxKey:
		return models.String("MaxKey"), nil
	}

	c.logger.Warn().Str("bson_type", rv.Type.String()).Msg("Unknown BSON type in result")
	return models.Null(), errors.Newf(errors.CodeExecutionError, "unsupported value type %s", rv.Type).
		AtStage(errors.StageProject)
}

func (c *BSONConverter) malformed(t bsontype.Type) *errors.QueryError {
	return errors.Newf(errors.CodeExecutionError, "malformed %s value", t).AtStage(errors.StageProject)
}

func (c *BSONConverter) tooDeep() *errors.QueryError {
	return errors.Newf(errors.CodeExecutionError, "document nesting exceeds %d levels", c.maxDepth).
		AtStage(errors.StageProject).
		WithDetail("max_depth", c.maxDepth)
}

func double(f float64) models.Value {
	switch {
	case math.IsNaN(f):
		return models.String("NaN")
	case math.IsInf(f, 1):
		return models.String("Infinity")
	case math.IsInf(f, -1):
		return models.String("-Infinity")
	}
	return models.Float(f)
}

// TypeName returns the schema type name of a BSON value type.
func TypeName(t bsontype.Type) string {
	switch t {
	case bson.TypeString:
		return "string"
	case bson.TypeInt32, bson.TypeInt64, bson.TypeDouble, bson.TypeDecimal128:
		return "number"
	case bson.TypeBoolean:
		return "boolean"
	case bson.TypeDateTime, bson.TypeTimestamp:
		return "date"
	case bson.TypeObjectID:
		return "objectId"
	case bson.TypeArray:
		return "array"
	case bson.TypeEmbeddedDocument:
		return "document"
	case bson.TypeNull, bson.TypeUndefined:
		return "null"
	case bson.TypeBinary:
		return "binary"
	case bson.TypeRegex:
		return "regex"
	case bson.TypeJavaScript, bson.TypeCodeWithScope:
		return "javascript"
	case bson.TypeSymbol:
		return "symbol"
	case bson.TypeMinKey, bson.TypeMaxKey:
		return "key"
	}
	return fmt.Sprintf("unknown(%d)", byte(t))
}
