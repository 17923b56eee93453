package rda

import "testing"

func TestNewQueryAppliesOptions(t *testing.T) {
	q := NewQuery("articles",
		Where("status", OpEqual, "published"),
		WhereNull("deleted_at"),
		OrderBy("created_at", OrderDesc),
		Limit(5),
		Offset(10),
	)

	if q.Collection != "articles" {
		t.Errorf("Expected collection 'articles', got '%s'", q.Collection)
	}
	if len(q.Conditions) != 2 {
		t.Fatalf("Expected 2 conditions, got %d", len(q.Conditions))
	}

	first := q.Conditions[0]
	if first.Field() != "status" || first.Operator() != OpEqual || first.Value() != "published" {
		t.Errorf("Unexpected first condition: %s", first.String())
	}
	second := q.Conditions[1]
	if second.Field() != "deleted_at" || second.Operator() != OpIsNull || second.Value() != nil {
		t.Errorf("Unexpected second condition: %s", second.String())
	}

	if len(q.Orders) != 1 || q.Orders[0].Field != "created_at" || q.Orders[0].Direction != OrderDesc {
		t.Errorf("Unexpected orders: %+v", q.Orders)
	}
	if q.Limit == nil || *q.Limit != 5 {
		t.Errorf("Expected limit 5, got %v", q.Limit)
	}
	if q.Offset == nil || *q.Offset != 10 {
		t.Errorf("Expected offset 10, got %v", q.Offset)
	}
}

func TestBasicConditionString(t *testing.T) {
	tests := []struct {
		cond     Condition
		expected string
	}{
		{BasicCondition{FieldName: "id", Op: OpEqual, Val: "x"}, "id = ?"},
		{BasicCondition{FieldName: "age", Op: OpGreaterThan, Val: 18}, "age > ?"},
		{BasicCondition{FieldName: "deleted_at", Op: OpIsNull}, "deleted_at IS NULL"},
		{BasicCondition{FieldName: "deleted_at", Op: OpIsNotNull}, "deleted_at IS NOT NULL"},
	}

	for _, tt := range tests {
		if got := tt.cond.String(); got != tt.expected {
			t.Errorf("Expected '%s', got '%s'", tt.expected, got)
		}
	}
}

func TestWhereInCondition(t *testing.T) {
	q := NewQuery("articles", WhereIn("status", []interface{}{"draft", "published"}))

	if len(q.Conditions) != 1 {
		t.Fatalf("Expected 1 condition, got %d", len(q.Conditions))
	}
	cond := q.Conditions[0]
	if cond.Operator() != OpIn {
		t.Errorf("Expected IN operator, got %s", cond.Operator())
	}
	values, ok := cond.Value().([]interface{})
	if !ok || len(values) != 2 {
		t.Errorf("Expected 2 IN values, got %v", cond.Value())
	}
}

func TestFieldsOption(t *testing.T) {
	q := NewQuery("articles", Fields("id", "title"))

	if len(q.Fields) != 2 || q.Fields[0] != "id" || q.Fields[1] != "title" {
		t.Errorf("Unexpected fields: %v", q.Fields)
	}
}

func TestQueryString(t *testing.T) {
	q := NewQuery("articles",
		Where("status", OpEqual, "published"),
		WhereNull("deleted_at"),
		OrderBy("created_at", OrderDesc),
		Limit(5),
		Offset(10),
	)

	want := "articles WHERE status = ? AND deleted_at IS NULL ORDER BY created_at DESC LIMIT 5 OFFSET 10"
	if got := q.String(); got != want {
		t.Errorf("Expected '%s', got '%s'", want, got)
	}

	var nilQuery *Query
	if nilQuery.String() != "" {
		t.Error("Expected empty string for nil query")
	}
}
