package rdamongo

import (
	"strings"

	"github.com/lemmego/rda"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// =====================================
// Query Translation
// =====================================

// buildFilter translates query conditions into a MongoDB filter
// document. A single condition maps directly, several are joined
// under $and.
func buildFilter(conditions []rda.Condition) bson.M {
	if len(conditions) == 0 {
		return bson.M{}
	}

	filters := make([]bson.M, 0, len(conditions))
	for _, cond := range conditions {
		filters = append(filters, operatorFilter(cond))
	}
	if len(filters) == 1 {
		return filters[0]
	}
	return bson.M{"$and": filters}
}

// operatorFilter translates one condition into its bson form
func operatorFilter(cond rda.Condition) bson.M {
	field := fieldName(cond.Field())
	value := convertValue(field, cond.Value())

	switch cond.Operator() {
	case rda.OpEqual:
		return bson.M{field: value}
	case rda.OpNotEqual:
		return bson.M{field: bson.M{"$ne": value}}
	case rda.OpGreaterThan:
		return bson.M{field: bson.M{"$gt": value}}
	case rda.OpGreaterThanOrEqual:
		return bson.M{field: bson.M{"$gte": value}}
	case rda.OpLessThan:
		return bson.M{field: bson.M{"$lt": value}}
	case rda.OpLessThanOrEqual:
		return bson.M{field: bson.M{"$lte": value}}
	case rda.OpLike:
		pattern, _ := cond.Value().(string)
		pattern = strings.ReplaceAll(pattern, "%", ".*")
		return bson.M{field: bson.M{"$regex": pattern, "$options": "i"}}
	case rda.OpIn:
		return bson.M{field: bson.M{"$in": convertValues(field, cond.Value())}}
	case rda.OpIsNull:
		return bson.M{field: nil}
	case rda.OpIsNotNull:
		return bson.M{field: bson.M{"$ne": nil}}
	default:
		return bson.M{field: value}
	}
}

// findOptions maps projection, ordering and windowing onto driver
// find options.
func findOptions(q *rda.Query) *options.FindOptions {
	opts := options.Find()

	if len(q.Fields) > 0 {
		projection := bson.M{}
		for _, field := range q.Fields {
			projection[fieldName(field)] = 1
		}
		opts.SetProjection(projection)
	}
	if len(q.Orders) > 0 {
		sort := bson.D{}
		for _, order := range q.Orders {
			direction := 1
			if order.Direction == rda.OrderDesc {
				direction = -1
			}
			sort = append(sort, bson.E{Key: fieldName(order.Field), Value: direction})
		}
		opts.SetSort(sort)
	}
	if q.Limit != nil {
		opts.SetLimit(int64(*q.Limit))
	}
	if q.Offset != nil {
		opts.SetSkip(int64(*q.Offset))
	}
	return opts
}

// fieldName maps the conventional id column onto MongoDB's _id
func fieldName(field string) string {
	if field == rda.DefaultIDColumn {
		return "_id"
	}
	return field
}

// convertValue upgrades _id strings to ObjectIDs when they parse as
// one. Identifiers from other stores stay plain strings.
func convertValue(field string, value interface{}) interface{} {
	if field != "_id" {
		return value
	}
	if str, ok := value.(string); ok {
		if objectID, err := primitive.ObjectIDFromHex(str); err == nil {
			return objectID
		}
	}
	return value
}

func convertValues(field string, value interface{}) []interface{} {
	values, ok := value.([]interface{})
	if !ok {
		return []interface{}{convertValue(field, value)}
	}
	converted := make([]interface{}, 0, len(values))
	for _, v := range values {
		converted = append(converted, convertValue(field, v))
	}
	return converted
}

// rowToDoc copies a row into a bson document, renaming the id key to
// _id. The caller's map is left untouched.
func rowToDoc(row map[string]interface{}) bson.M {
	doc := bson.M{}
	for key, value := range row {
		doc[fieldName(key)] = convertValue(fieldName(key), value)
	}
	return doc
}

// rereadFilter rebuilds the query filter without conditions on
// columns the update just changed, so the read-back still finds the
// document after a guarded column moved.
func rereadFilter(q *rda.Query, changes map[string]interface{}) bson.M {
	kept := make([]rda.Condition, 0, len(q.Conditions))
	for _, cond := range q.Conditions {
		if _, changed := changes[cond.Field()]; changed {
			continue
		}
		kept = append(kept, cond)
	}
	return buildFilter(kept)
}
