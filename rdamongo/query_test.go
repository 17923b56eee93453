package rdamongo

import (
	"testing"

	"github.com/lemmego/rda"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestBuildFilterEmpty(t *testing.T) {
	assert.Equal(t, bson.M{}, buildFilter(nil))
}

func TestBuildFilterSingleCondition(t *testing.T) {
	filter := buildFilter([]rda.Condition{
		rda.WhereCondition("status", rda.OpEqual, "published"),
	})

	assert.Equal(t, bson.M{"status": "published"}, filter)
}

func TestBuildFilterJoinsWithAnd(t *testing.T) {
	filter := buildFilter([]rda.Condition{
		rda.WhereCondition("status", rda.OpEqual, "published"),
		rda.WhereCondition("views", rda.OpGreaterThan, 10),
	})

	expected := bson.M{"$and": []bson.M{
		{"status": "published"},
		{"views": bson.M{"$gt": 10}},
	}}
	assert.Equal(t, expected, filter)
}

func TestOperatorTranslation(t *testing.T) {
	translate := func(field string, op rda.Operator, value interface{}) bson.M {
		return operatorFilter(rda.WhereCondition(field, op, value))
	}

	assert.Equal(t, bson.M{"status": "draft"}, translate("status", rda.OpEqual, "draft"))
	assert.Equal(t, bson.M{"status": bson.M{"$ne": "draft"}}, translate("status", rda.OpNotEqual, "draft"))
	assert.Equal(t, bson.M{"views": bson.M{"$gt": 10}}, translate("views", rda.OpGreaterThan, 10))
	assert.Equal(t, bson.M{"views": bson.M{"$gte": 10}}, translate("views", rda.OpGreaterThanOrEqual, 10))
	assert.Equal(t, bson.M{"views": bson.M{"$lt": 10}}, translate("views", rda.OpLessThan, 10))
	assert.Equal(t, bson.M{"views": bson.M{"$lte": 10}}, translate("views", rda.OpLessThanOrEqual, 10))
	assert.Equal(t, bson.M{"deleted_at": nil}, translate("deleted_at", rda.OpIsNull, nil))
	assert.Equal(t, bson.M{"deleted_at": bson.M{"$ne": nil}}, translate("deleted_at", rda.OpIsNotNull, nil))
}

func TestLikeBecomesCaseInsensitiveRegex(t *testing.T) {
	filter := operatorFilter(rda.WhereCondition("title", rda.OpLike, "intro%"))

	assert.Equal(t, bson.M{"title": bson.M{"$regex": "intro.*", "$options": "i"}}, filter)
}

func TestInTranslation(t *testing.T) {
	filter := operatorFilter(rda.WhereCondition("status", rda.OpIn, []interface{}{"draft", "published"}))

	assert.Equal(t, bson.M{"status": bson.M{"$in": []interface{}{"draft", "published"}}}, filter)
}

func TestIDFieldTranslation(t *testing.T) {
	hex := "64f1c0de12ab34cd56ef7890"
	objectID, err := primitive.ObjectIDFromHex(hex)
	require.NoError(t, err)

	filter := operatorFilter(rda.WhereCondition("id", rda.OpEqual, hex))
	assert.Equal(t, bson.M{"_id": objectID}, filter)

	// Identifiers that are not 24-char hex stay plain strings.
	uuid := "0f4d2a6c-9b1e-4c57-8d3a-5e6f7a8b9c0d"
	filter = operatorFilter(rda.WhereCondition("id", rda.OpEqual, uuid))
	assert.Equal(t, bson.M{"_id": uuid}, filter)

	filter = operatorFilter(rda.WhereCondition("id", rda.OpIn, []interface{}{hex, uuid}))
	assert.Equal(t, bson.M{"_id": bson.M{"$in": []interface{}{objectID, uuid}}}, filter)
}

func TestFindOptionsWindowAndSort(t *testing.T) {
	q := rda.NewQuery("articles",
		rda.Fields("id", "title"),
		rda.OrderBy("created_at", rda.OrderDesc),
		rda.OrderBy("id", rda.OrderAsc),
		rda.Limit(5),
		rda.Offset(10))

	opts := findOptions(q)

	assert.Equal(t, bson.M{"_id": 1, "title": 1}, opts.Projection)
	assert.Equal(t, bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}}, opts.Sort)
	require.NotNil(t, opts.Limit)
	assert.EqualValues(t, 5, *opts.Limit)
	require.NotNil(t, opts.Skip)
	assert.EqualValues(t, 10, *opts.Skip)
}

func TestFindOptionsEmptyQuery(t *testing.T) {
	opts := findOptions(rda.NewQuery("articles"))

	assert.Nil(t, opts.Projection)
	assert.Nil(t, opts.Sort)
	assert.Nil(t, opts.Limit)
	assert.Nil(t, opts.Skip)
}

func TestRowToDocRenamesID(t *testing.T) {
	row := map[string]interface{}{
		"id":    "intro-post",
		"title": "Intro",
	}

	doc := rowToDoc(row)

	assert.Equal(t, bson.M{"_id": "intro-post", "title": "Intro"}, doc)
	assert.Equal(t, map[string]interface{}{"id": "intro-post", "title": "Intro"}, row)
}

func TestRereadFilterDropsChangedColumns(t *testing.T) {
	q := rda.NewQuery("articles",
		rda.Where("id", rda.OpEqual, "intro-post"),
		rda.WhereNull("deleted_at"))

	filter := rereadFilter(q, map[string]interface{}{"deleted_at": "2026-01-01T00:00:00Z"})

	assert.Equal(t, bson.M{"_id": "intro-post"}, filter)
}
