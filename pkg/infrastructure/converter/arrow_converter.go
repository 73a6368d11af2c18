package converter

import (
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/TFMV/nlq/pkg/errors"
	"github.com/TFMV/nlq/pkg/models"
)

type columnKind uint8

const (
	columnNull columnKind = iota
	columnBool
	columnInt
	columnFloat
	columnString
)

// InferArrowSchema derives one nullable column per top-level key, ordered
// by first appearance. Columns holding only booleans or only numbers keep
// that type; every other column, including nested values, is a string.
func InferArrowSchema(records []models.Value) *arrow.Schema {
	var order []string
	kinds := make(map[string]columnKind)

	for _, rec := range records {
		for _, f := range rec.Fields() {
			prev, seen := kinds[f.Key]
			if !seen {
				order = append(order, f.Key)
			}
			kinds[f.Key] = mergeKind(prev, kindOf(f.Value))
		}
	}

	fields := make([]arrow.Field, 0, len(order))
	for _, name := range order {
		fields = append(fields, arrow.Field{Name: name, Type: arrowType(kinds[name]), Nullable: true})
	}
	return arrow.NewSchema(fields, nil)
}

func kindOf(v models.Value) columnKind {
	switch v.Kind() {
	case models.KindNull:
		return columnNull
	case models.KindBool:
		return columnBool
	case models.KindNumber:
		if _, ok := v.AsInt(); ok {
			return columnInt
		}
		return columnFloat
	}
	return columnString
}

func mergeKind(a, b columnKind) columnKind {
	switch {
	case a == b:
		return a
	case a == columnNull:
		return b
	case b == columnNull:
		return a
	case (a == columnInt && b == columnFloat) || (a == columnFloat && b == columnInt):
		return columnFloat
	}
	return columnString
}

func arrowType(k columnKind) arrow.DataType {
	switch k {
	case columnBool:
		return arrow.FixedWidthTypes.Boolean
	case columnInt:
		return arrow.PrimitiveTypes.Int64
	case columnFloat:
		return arrow.PrimitiveTypes.Float64
	}
	return arrow.BinaryTypes.String
}

// ToArrowRecord builds a single record batch from records using schema.
// The caller must release the returned record.
func ToArrowRecord(alloc memory.Allocator, schema *arrow.Schema, records []models.Value) arrow.Record {
	builder := array.NewRecordBuilder(alloc, schema)
	defer builder.Release()

	for i, field := range schema.Fields() {
		fb := builder.Field(i)
		for _, rec := range records {
			v, ok := rec.Get(field.Name)
			if !ok || v.IsNull() {
				fb.AppendNull()
				continue
			}
			switch b := fb.(type) {
			case *array.BooleanBuilder:
				bv, _ := v.AsBool()
				b.Append(bv)
			case *array.Int64Builder:
				iv, _ := v.AsInt()
				b.Append(iv)
			case *array.Float64Builder:
				fv, _ := v.AsNumber()
				b.Append(fv)
			case *array.StringBuilder:
				if s, isString := v.AsString(); isString {
					b.Append(s)
				} else {
					b.Append(v.String())
				}
			}
		}
	}
	return builder.NewRecord()
}

// WriteArrowStream writes records to w as an Arrow IPC stream.
func WriteArrowStream(w io.Writer, alloc memory.Allocator, records []models.Value) error {
	schema := InferArrowSchema(records)
	rec := ToArrowRecord(alloc, schema, records)
	defer rec.Release()

	writer := ipc.NewWriter(w, ipc.WithSchema(schema), ipc.WithAllocator(alloc))
	if err := writer.Write(rec); err != nil {
		writer.Close()
		return errors.Wrap(err, errors.CodeInternal, "failed to write arrow record").AtStage(errors.StageProject)
	}
	if err := writer.Close(); err != nil {
		return errors.Wrap(err, errors.CodeInternal, "failed to close arrow stream").AtStage(errors.StageProject)
	}
	return nil
}
