package domain

import (
	"encoding/json"
	"testing"
)

func TestAttributeValueConversions(t *testing.T) {
	tests := []struct {
		name     string
		value    AttributeValue
		wantInt  int64
		wantBool bool
		wantStr  string
	}{
		{"integer", IntValue(500), 500, true, "500"},
		{"zero integer", IntValue(0), 0, false, "0"},
		{"boolean yes", BoolValue(true), 1, true, "Y"},
		{"string number", StringValue("42"), 42, false, "42"},
		{"string flag", StringValue("Y"), 0, true, "Y"},
		{"real", RealValue(2.5), 2, true, "2.5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.value.Integer(); got != tt.wantInt {
				t.Errorf("Integer() = %d, want %d", got, tt.wantInt)
			}
			if got := tt.value.Boolean(); got != tt.wantBool {
				t.Errorf("Boolean() = %v, want %v", got, tt.wantBool)
			}
			if got := tt.value.String(); got != tt.wantStr {
				t.Errorf("String() = %q, want %q", got, tt.wantStr)
			}
		})
	}
}

func TestParseAttributeValue(t *testing.T) {
	v, err := ParseAttributeValue(AttrInteger, " 500 ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Type() != AttrInteger || v.Integer() != 500 {
		t.Errorf("expected integer 500, got %v %v", v.Type(), v)
	}

	if _, err := ParseAttributeValue(AttrInteger, "five"); err == nil {
		t.Error("expected error for non-numeric integer")
	}
}

func TestAttributeSetDefaultsAndCount(t *testing.T) {
	set := NewAttributeSet()
	set.SetString("field_name", 0, "id")
	set.SetString("field_name", 1, "amount")
	set.SetInteger("batchSize", 0, 500)

	if got := set.Count("field_name"); got != 2 {
		t.Errorf("expected count 2, got %d", got)
	}
	if got := set.Integer("batchSize", 0, 0); got != 500 {
		t.Errorf("expected 500, got %d", got)
	}
	if got := set.Integer("commit", 0, 100); got != 100 {
		t.Errorf("expected default 100, got %d", got)
	}
	if got := set.Boolean("missing", 0, true); !got {
		t.Error("expected default true")
	}

	set.Delete("field_name")
	if got := set.Count("field_name"); got != 0 {
		t.Errorf("expected count 0 after delete, got %d", got)
	}
}

func TestAttributeSetRecordsSorted(t *testing.T) {
	set := NewAttributeSet()
	set.SetInteger("b", 1, 2)
	set.SetInteger("b", 0, 1)
	set.SetInteger("a", 0, 0)

	records := set.Records(7)
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	if records[0].Code != "a" || records[1].Index != 0 || records[2].Index != 1 {
		t.Errorf("unexpected order: %+v", records)
	}
	for _, r := range records {
		if r.OwnerID != 7 {
			t.Errorf("expected owner 7, got %d", r.OwnerID)
		}
	}
}

func TestAttributeSetJSON(t *testing.T) {
	set := NewAttributeSet()
	set.SetInteger("batchSize", 0, 500)
	set.SetBoolean("lazy", 0, true)

	data, err := json.Marshal(set)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	decoded := NewAttributeSet()
	if err := json.Unmarshal(data, decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if v, ok := decoded.Get("batchSize", 0); !ok || v.Type() != AttrInteger || v.Integer() != 500 {
		t.Errorf("expected integer 500, got %v (found=%v)", v, ok)
	}
	if !decoded.Boolean("lazy", 0, false) {
		t.Error("expected lazy=true")
	}
}
