package mongodb

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/TFMV/nlq/pkg/errors"
	"github.com/TFMV/nlq/pkg/models"
)

func parse(t *testing.T, s string) models.Value {
	t.Helper()
	v, err := models.ParseValue([]byte(s))
	require.NoError(t, err)
	return v
}

func TestToBSONFilter(t *testing.T) {
	got, err := ToBSONFilter(parse(t, `{"name":{"$regex":"john","$options":"i"},"age":{"$gte":30,"$lt":40.5},"dept":{"$in":["ENG","HR"]},"manager":null,"active":true}`))
	require.NoError(t, err)

	want := bson.D{
		{Key: "name", Value: bson.D{{Key: "$regex", Value: "john"}, {Key: "$options", Value: "i"}}},
		{Key: "age", Value: bson.D{{Key: "$gte", Value: int64(30)}, {Key: "$lt", Value: 40.5}}},
		{Key: "dept", Value: bson.D{{Key: "$in", Value: bson.A{"ENG", "HR"}}}},
		{Key: "manager", Value: nil},
		{Key: "active", Value: true},
	}
	assert.Equal(t, want, got)
}

func TestToBSONFilter_Combinators(t *testing.T) {
	got, err := ToBSONFilter(parse(t, `{"$or":[{"status":"open"},{"total":{"$gt":100}}]}`))
	require.NoError(t, err)

	assert.Equal(t, bson.D{{Key: "$or", Value: bson.A{
		bson.D{{Key: "status", Value: "open"}},
		bson.D{{Key: "total", Value: bson.D{{Key: "$gt", Value: int64(100)}}}},
	}}}, got)
}

func TestToBSONFilter_Wrappers(t *testing.T) {
	got, err := ToBSONFilter(parse(t, `{"_id":{"$oid":"65f1c0ffee0123456789abcd"},"joinDate":{"$gte":{"$date":"2024-01-01T00:00:00Z"}}}`))
	require.NoError(t, err)

	oid, err := primitive.ObjectIDFromHex("65f1c0ffee0123456789abcd")
	require.NoError(t, err)
	assert.Equal(t, oid, got[0].Value)

	gte := got[1].Value.(bson.D)[0].Value
	assert.Equal(t, primitive.NewDateTimeFromTime(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)), gte)
}

func TestToBSONFilter_WrapperLookalikes(t *testing.T) {
	got, err := ToBSONFilter(parse(t, `{"a":{"$oid":"not-hex"},"b":{"$date":"yesterday"},"c":{"$oid":"65f1c0ffee0123456789abcd","x":1}}`))
	require.NoError(t, err)

	assert.Equal(t, bson.D{{Key: "$oid", Value: "not-hex"}}, got[0].Value)
	assert.Equal(t, bson.D{{Key: "$date", Value: "yesterday"}}, got[1].Value)
	assert.IsType(t, bson.D{}, got[2].Value)
}

func TestToBSONFilter_NotObject(t *testing.T) {
	_, err := ToBSONFilter(models.Array())
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidFilterShape, errors.GetCode(err))
}
