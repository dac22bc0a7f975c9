package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// AttributeType is the stored type of an attribute value
type AttributeType byte

const (
	AttrString  AttributeType = 'S'
	AttrInteger AttributeType = 'I'
	AttrReal    AttributeType = 'R'
	AttrBoolean AttributeType = 'B'
)

func (t AttributeType) String() string {
	switch t {
	case AttrString:
		return "String"
	case AttrInteger:
		return "Integer"
	case AttrReal:
		return "Number"
	case AttrBoolean:
		return "Boolean"
	}
	return "Unknown"
}

// ParseAttributeType accepts the names produced by String
func ParseAttributeType(s string) (AttributeType, error) {
	switch strings.ToLower(s) {
	case "string", "":
		return AttrString, nil
	case "integer":
		return AttrInteger, nil
	case "number", "real":
		return AttrReal, nil
	case "boolean":
		return AttrBoolean, nil
	}
	return 0, fmt.Errorf("unknown attribute type %q", s)
}

// AttributeValue is a typed scalar: boolean, integer, real or string.
type AttributeValue struct {
	typ AttributeType
	b   bool
	i   int64
	f   float64
	s   string
}

func BoolValue(b bool) AttributeValue        { return AttributeValue{typ: AttrBoolean, b: b} }
func IntValue(i int64) AttributeValue        { return AttributeValue{typ: AttrInteger, i: i} }
func RealValue(f float64) AttributeValue     { return AttributeValue{typ: AttrReal, f: f} }
func StringValue(s string) AttributeValue    { return AttributeValue{typ: AttrString, s: s} }
func (v AttributeValue) Type() AttributeType { return v.typ }

// Boolean returns the value as a boolean. Strings follow the "Y"/"N"
// convention, numbers are true when non-zero.
func (v AttributeValue) Boolean() bool {
	switch v.typ {
	case AttrBoolean:
		return v.b
	case AttrInteger:
		return v.i != 0
	case AttrReal:
		return v.f != 0
	case AttrString:
		return strings.EqualFold(v.s, "Y") || strings.EqualFold(v.s, "true")
	}
	return false
}

// Integer returns the value as an integer, truncating reals.
func (v AttributeValue) Integer() int64 {
	switch v.typ {
	case AttrBoolean:
		if v.b {
			return 1
		}
		return 0
	case AttrInteger:
		return v.i
	case AttrReal:
		return int64(v.f)
	case AttrString:
		n, _ := strconv.ParseInt(strings.TrimSpace(v.s), 10, 64)
		return n
	}
	return 0
}

// Real returns the value as a float64
func (v AttributeValue) Real() float64 {
	switch v.typ {
	case AttrInteger:
		return float64(v.i)
	case AttrReal:
		return v.f
	case AttrString:
		f, _ := strconv.ParseFloat(strings.TrimSpace(v.s), 64)
		return f
	case AttrBoolean:
		if v.b {
			return 1
		}
	}
	return 0
}

// String returns the canonical text form of the value. It is also the form
// used on the wire.
func (v AttributeValue) String() string {
	switch v.typ {
	case AttrBoolean:
		if v.b {
			return "Y"
		}
		return "N"
	case AttrInteger:
		return strconv.FormatInt(v.i, 10)
	case AttrReal:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	}
	return v.s
}

// ParseAttributeValue rebuilds a value from its type and canonical text
func ParseAttributeValue(t AttributeType, text string) (AttributeValue, error) {
	switch t {
	case AttrBoolean:
		return BoolValue(strings.EqualFold(text, "Y") || strings.EqualFold(text, "true")), nil
	case AttrInteger:
		n, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
		if err != nil {
			return AttributeValue{}, fmt.Errorf("integer attribute: %w", err)
		}
		return IntValue(n), nil
	case AttrReal:
		f, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
		if err != nil {
			return AttributeValue{}, fmt.Errorf("real attribute: %w", err)
		}
		return RealValue(f), nil
	case AttrString:
		return StringValue(text), nil
	}
	return AttributeValue{}, fmt.Errorf("unknown attribute type %q", byte(t))
}

// AttributeKey addresses one value: a code and its array index
type AttributeKey struct {
	Code  string
	Index int
}

// AttributeRecord is one stored row of an attribute table
type AttributeRecord struct {
	OwnerID ObjectID
	Code    string
	Index   int
	Value   AttributeValue
}

// AttributeSet is the in-memory attribute bag of one owner
type AttributeSet struct {
	values map[AttributeKey]AttributeValue
}

// NewAttributeSet creates an empty set
func NewAttributeSet() *AttributeSet {
	return &AttributeSet{values: make(map[AttributeKey]AttributeValue)}
}

// Set stores a value under (code, index), replacing any previous one
func (a *AttributeSet) Set(code string, index int, v AttributeValue) {
	if a.values == nil {
		a.values = make(map[AttributeKey]AttributeValue)
	}
	a.values[AttributeKey{Code: code, Index: index}] = v
}

func (a *AttributeSet) SetBoolean(code string, index int, b bool)  { a.Set(code, index, BoolValue(b)) }
func (a *AttributeSet) SetInteger(code string, index int, i int64) { a.Set(code, index, IntValue(i)) }
func (a *AttributeSet) SetReal(code string, index int, f float64)  { a.Set(code, index, RealValue(f)) }
func (a *AttributeSet) SetString(code string, index int, s string) { a.Set(code, index, StringValue(s)) }

// Get returns the value stored under (code, index)
func (a *AttributeSet) Get(code string, index int) (AttributeValue, bool) {
	if a == nil || a.values == nil {
		return AttributeValue{}, false
	}
	v, ok := a.values[AttributeKey{Code: code, Index: index}]
	return v, ok
}

// Boolean returns the stored boolean or def when absent
func (a *AttributeSet) Boolean(code string, index int, def bool) bool {
	if v, ok := a.Get(code, index); ok {
		return v.Boolean()
	}
	return def
}

// Integer returns the stored integer or def when absent
func (a *AttributeSet) Integer(code string, index int, def int64) int64 {
	if v, ok := a.Get(code, index); ok {
		return v.Integer()
	}
	return def
}

// Real returns the stored real or def when absent
func (a *AttributeSet) Real(code string, index int, def float64) float64 {
	if v, ok := a.Get(code, index); ok {
		return v.Real()
	}
	return def
}

// String returns the stored string or def when absent
func (a *AttributeSet) String(code string, index int, def string) string {
	if v, ok := a.Get(code, index); ok {
		return v.String()
	}
	return def
}

// Count returns the number of distinct indexes stored under code
func (a *AttributeSet) Count(code string) int {
	if a == nil {
		return 0
	}
	n := 0
	for k := range a.values {
		if k.Code == code {
			n++
		}
	}
	return n
}

// Delete removes every index of code
func (a *AttributeSet) Delete(code string) {
	if a == nil {
		return
	}
	for k := range a.values {
		if k.Code == code {
			delete(a.values, k)
		}
	}
}

// Len returns the number of stored values
func (a *AttributeSet) Len() int {
	if a == nil {
		return 0
	}
	return len(a.values)
}

// Records returns the set as attribute rows for owner, sorted by code then
// index so that writes and exports are deterministic.
func (a *AttributeSet) Records(owner ObjectID) []AttributeRecord {
	if a == nil {
		return nil
	}
	records := make([]AttributeRecord, 0, len(a.values))
	for k, v := range a.values {
		records = append(records, AttributeRecord{OwnerID: owner, Code: k.Code, Index: k.Index, Value: v})
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].Code != records[j].Code {
			return records[i].Code < records[j].Code
		}
		return records[i].Index < records[j].Index
	})
	return records
}

// AttributeSetFromRecords rebuilds a set from stored rows
func AttributeSetFromRecords(records []AttributeRecord) *AttributeSet {
	set := NewAttributeSet()
	for _, r := range records {
		set.Set(r.Code, r.Index, r.Value)
	}
	return set
}

type attributeJSON struct {
	Code  string `json:"code"`
	Index int    `json:"index"`
	Type  string `json:"type"`
	Value string `json:"value"`
}

// MarshalJSON encodes the set as a sorted list of typed values
func (a *AttributeSet) MarshalJSON() ([]byte, error) {
	records := a.Records(0)
	out := make([]attributeJSON, 0, len(records))
	for _, r := range records {
		out = append(out, attributeJSON{Code: r.Code, Index: r.Index, Type: r.Value.Type().String(), Value: r.Value.String()})
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the list form written by MarshalJSON
func (a *AttributeSet) UnmarshalJSON(data []byte) error {
	var in []attributeJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	a.values = make(map[AttributeKey]AttributeValue, len(in))
	for _, item := range in {
		t, err := ParseAttributeType(item.Type)
		if err != nil {
			return err
		}
		v, err := ParseAttributeValue(t, item.Value)
		if err != nil {
			return fmt.Errorf("attribute %s[%d]: %w", item.Code, item.Index, err)
		}
		a.Set(item.Code, item.Index, v)
	}
	return nil
}
