package models

import (
	"strconv"
)

// ValueKind identifies which variant a Value holds
type ValueKind int

const (
	// KindNull is ZFS's "-" (property has no value)
	KindNull ValueKind = iota
	KindInt
	KindText
)

// Value is a single ZFS property value: null, integer or text
type Value struct {
	kind ValueKind
	i    int64
	s    string
}

// Null returns the value ZFS reports as "-"
func Null() Value {
	return Value{kind: KindNull}
}

// Int returns an integer value
func Int(i int64) Value {
	return Value{kind: KindInt, i: i}
}

// Text returns a string value
func Text(s string) Value {
	return Value{kind: KindText, s: s}
}

// Kind returns the variant held by v
func (v Value) Kind() ValueKind {
	return v.kind
}

// IsNull reports whether v is the null value
func (v Value) IsNull() bool {
	return v.kind == KindNull
}

// Int64 returns the integer held by v, ok is false for other variants
func (v Value) Int64() (int64, bool) {
	return v.i, v.kind == KindInt
}

// Text returns the string held by v, ok is false for other variants
func (v Value) Text() (string, bool) {
	return v.s, v.kind == KindText
}

// String renders v the way zfs would print it
func (v Value) String() string {
	switch v.kind {
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindText:
		return v.s
	default:
		return "-"
	}
}

// Properties is an insertion-ordered map of property name to Value
type Properties struct {
	keys   []string
	values map[string]Value
}

// NewProperties creates an empty property map
func NewProperties() *Properties {
	return &Properties{values: make(map[string]Value)}
}

// Set stores value under name, keeping the original position of an existing key
func (p *Properties) Set(name string, value Value) {
	if p.values == nil {
		p.values = make(map[string]Value)
	}
	if _, exists := p.values[name]; !exists {
		p.keys = append(p.keys, name)
	}
	p.values[name] = value
}

// Get returns the value stored under name
func (p *Properties) Get(name string) (Value, bool) {
	v, ok := p.values[name]
	return v, ok
}

// Has reports whether name was ever loaded
func (p *Properties) Has(name string) bool {
	_, ok := p.values[name]
	return ok
}

// Keys returns property names in insertion order
func (p *Properties) Keys() []string {
	out := make([]string, len(p.keys))
	copy(out, p.keys)
	return out
}

// Len returns the number of stored properties
func (p *Properties) Len() int {
	return len(p.keys)
}

// Merge overwrites every pair in pairs and leaves other keys untouched
func (p *Properties) Merge(pairs []Property) {
	for _, pair := range pairs {
		p.Set(pair.Name, pair.Value)
	}
}

// Equal reports whether both maps hold the same keys and values
func (p *Properties) Equal(other *Properties) bool {
	if p.Len() != other.Len() {
		return false
	}
	for name, v := range p.values {
		ov, ok := other.values[name]
		if !ok || ov != v {
			return false
		}
	}
	return true
}

// Property is one parsed (name, value) pair from a listing row
type Property struct {
	Name  string
	Value Value
}

// IntProperties lists the property names whose values are coerced to integers
var IntProperties = map[string]struct{}{
	"allocated":            {},
	"available":            {},
	"capacity":             {},
	"checkpoint":           {},
	"createtxg":            {},
	"expandsize":           {},
	"filesystem_count":     {},
	"filesystem_limit":     {},
	"fragmentation":        {},
	"free":                 {},
	"freeing":              {},
	"leaked":               {},
	"logicalreferenced":    {},
	"logicalused":          {},
	"objsetid":             {},
	"quota":                {},
	"referenced":           {},
	"refquota":             {},
	"refreservation":       {},
	"reservation":          {},
	"size":                 {},
	"snapshot_count":       {},
	"snapshot_limit":       {},
	"used":                 {},
	"usedbychildren":       {},
	"usedbydataset":        {},
	"usedbyrefreservation": {},
	"usedbysnapshots":      {},
	"userrefs":             {},
	"volsize":              {},
	"written":              {},
}

// IsIntProperty reports whether values of name are coerced to integers
func IsIntProperty(name string) bool {
	_, ok := IntProperties[name]
	return ok
}
