package mongodb

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/TFMV/nlq/pkg/errors"
	"github.com/TFMV/nlq/pkg/models"
)

// ToBSONFilter converts a sanitized filter object into a driver document.
// Key order is kept. Two single-key wrappers are recognized:
// {"$oid": "<24 hex>"} becomes an ObjectID and {"$date": "<RFC 3339>"}
// becomes a datetime; anything else that does not match is passed through
// as a plain sub-document.
func ToBSONFilter(filter models.Value) (bson.D, error) {
	if !filter.IsObject() {
		return nil, errors.Newf(errors.CodeInvalidFilterShape, "filter must be an object, got %s", filter.Kind()).
			AtStage(errors.StageExecute)
	}
	return toDocument(filter), nil
}

func toDocument(v models.Value) bson.D {
	fields := v.Fields()
	doc := make(bson.D, 0, len(fields))
	for _, f := range fields {
		doc = append(doc, bson.E{Key: f.Key, Value: toBSON(f.Value)})
	}
	return doc
}

func toBSON(v models.Value) interface{} {
	switch v.Kind() {
	case models.KindNull:
		return nil
	case models.KindBool:
		b, _ := v.AsBool()
		return b
	case models.KindNumber:
		if i, ok := v.AsInt(); ok {
			return i
		}
		f, _ := v.AsNumber()
		return f
	case models.KindString:
		s, _ := v.AsString()
		return s
	case models.KindArray:
		elems := v.Elements()
		arr := make(bson.A, 0, len(elems))
		for _, e := range elems {
			arr = append(arr, toBSON(e))
		}
		return arr
	case models.KindObject:
		if wrapped, ok := unwrap(v); ok {
			return wrapped
		}
		return toDocument(v)
	}
	return nil
}

func unwrap(v models.Value) (interface{}, bool) {
	if v.Len() != 1 {
		return nil, false
	}
	if raw, ok := v.Get("$oid"); ok {
		if s, isString := raw.AsString(); isString {
			if oid, err := primitive.ObjectIDFromHex(s); err == nil {
				return oid, true
			}
		}
		return nil, false
	}
	if raw, ok := v.Get("$date"); ok {
		if s, isString := raw.AsString(); isString {
			if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
				return primitive.NewDateTimeFromTime(t), true
			}
		}
	}
	return nil, false
}
