// Package fieldmap resolves loosely structured input records against a note
// type's ordered field names.
//
// Three strategies are tried in a fixed priority order and exactly one of
// them is selected per record:
//
//  1. Explicit: the record carries a "fields" object whose keys must all be
//     note type fields (case-sensitive).
//  2. Legacy pair: the record has both "front" and "back"; the note type must
//     have "Front" and "Back" fields.
//  3. Flexible: record keys are matched to note type fields case-insensitively
//     and unmatched keys are ignored.
//
// Once a strategy is selected the others are never attempted, even when the
// selected strategy fails.
package fieldmap

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cast"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/jingkaihe/skillkit/pkg/skillerr"
	"github.com/jingkaihe/skillkit/pkg/utils"
)

// Reserved record keys.
const (
	ExplicitKey = "fields"
	FrontKey    = "front"
	BackKey     = "back"
	TagsKey     = "tags"

	// FrontField and BackField are the note type fields the legacy pair maps onto.
	FrontField = "Front"
	BackField  = "Back"
)

// Record is one input record as produced by a reader or CLI flags.
type Record map[string]any

// Shape is the detected strategy for a record. Values are declared in
// priority order.
type Shape int

const (
	ShapeExplicit Shape = iota
	ShapeLegacyPair
	ShapeFlexible
)

func (s Shape) String() string {
	switch s {
	case ShapeExplicit:
		return "explicit"
	case ShapeLegacyPair:
		return "legacy-pair"
	case ShapeFlexible:
		return "flexible"
	default:
		return fmt.Sprintf("Shape(%d)", int(s))
	}
}

// DetectShape picks the strategy for rec from key presence alone.
func DetectShape(rec Record) Shape {
	if _, ok := rec[ExplicitKey]; ok {
		return ShapeExplicit
	}
	_, hasFront := rec[FrontKey]
	_, hasBack := rec[BackKey]
	if hasFront && hasBack {
		return ShapeLegacyPair
	}
	return ShapeFlexible
}

// Mapping is a resolved field mapping. Keys are always note type field names
// and iterate in note type order.
type Mapping struct {
	om *orderedmap.OrderedMap[string, string]
}

func newMapping() *Mapping {
	return &Mapping{om: orderedmap.New[string, string]()}
}

// Get returns the value mapped to field.
func (m *Mapping) Get(field string) (string, bool) {
	return m.om.Get(field)
}

// Len returns the number of mapped fields.
func (m *Mapping) Len() int {
	return m.om.Len()
}

// Keys returns the mapped field names in note type order.
func (m *Mapping) Keys() []string {
	keys := make([]string, 0, m.om.Len())
	for pair := m.om.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

// ToMap copies the mapping into a plain map.
func (m *Mapping) ToMap() map[string]string {
	out := make(map[string]string, m.om.Len())
	for pair := m.om.Oldest(); pair != nil; pair = pair.Next() {
		out[pair.Key] = pair.Value
	}
	return out
}

// MarshalJSON keeps note type order.
func (m *Mapping) MarshalJSON() ([]byte, error) {
	return m.om.MarshalJSON()
}

// Result is the outcome of Resolve.
type Result struct {
	Shape   Shape
	Mapping *Mapping
	// Ignored lists record keys the flexible strategy could not match.
	Ignored []string
}

// Resolve maps rec onto the ordered field names of a note type.
func Resolve(rec Record, schema []string) (*Result, error) {
	switch shape := DetectShape(rec); shape {
	case ShapeExplicit:
		m, err := resolveExplicit(rec[ExplicitKey], schema)
		if err != nil {
			return nil, err
		}
		return &Result{Shape: shape, Mapping: m}, nil
	case ShapeLegacyPair:
		m, err := resolveLegacyPair(rec, schema)
		if err != nil {
			return nil, err
		}
		return &Result{Shape: shape, Mapping: m}, nil
	default:
		m, ignored, err := resolveFlexible(rec, schema)
		if err != nil {
			return nil, err
		}
		return &Result{Shape: ShapeFlexible, Mapping: m, Ignored: ignored}, nil
	}
}

func resolveExplicit(raw any, schema []string) (*Mapping, error) {
	fields, ok := asStringMap(raw)
	if !ok {
		return nil, skillerr.SchemaMismatch("%q must be an object mapping field names to values, got %T", ExplicitKey, raw)
	}

	valid := make(map[string]bool, len(schema))
	for _, name := range schema {
		valid[name] = true
	}

	// Report offending keys deterministically.
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if valid[k] {
			continue
		}
		msg := fmt.Sprintf("field %q is not in the note type; valid fields: %s", k, utils.QuoteList(schema))
		if suggestion := utils.ClosestMatch(k, schema); suggestion != "" {
			msg += fmt.Sprintf(" (did you mean %q?)", suggestion)
		}
		return nil, skillerr.SchemaMismatch("%s", msg)
	}

	m := newMapping()
	for _, name := range schema {
		v, ok := fields[name]
		if !ok {
			continue
		}
		s, err := Stringify(v)
		if err != nil {
			return nil, skillerr.SchemaMismatch("field %q: %v", name, err)
		}
		m.om.Set(name, s)
	}
	return m, nil
}

func resolveLegacyPair(rec Record, schema []string) (*Mapping, error) {
	var hasFront, hasBack bool
	for _, name := range schema {
		switch name {
		case FrontField:
			hasFront = true
		case BackField:
			hasBack = true
		}
	}
	if !hasFront || !hasBack {
		example := "<field>"
		if len(schema) > 0 {
			example = schema[0]
		}
		return nil, skillerr.SchemaMismatch(
			"note type does not have %q and %q fields (fields: %s); use {%q: {%q: \"...\"}} instead of front/back",
			FrontField, BackField, utils.QuoteList(schema), ExplicitKey, example)
	}

	front, err := Stringify(rec[FrontKey])
	if err != nil {
		return nil, skillerr.SchemaMismatch("%q: %v", FrontKey, err)
	}
	back, err := Stringify(rec[BackKey])
	if err != nil {
		return nil, skillerr.SchemaMismatch("%q: %v", BackKey, err)
	}

	m := newMapping()
	for _, name := range schema {
		switch name {
		case FrontField:
			m.om.Set(name, front)
		case BackField:
			m.om.Set(name, back)
		}
	}
	return m, nil
}

func resolveFlexible(rec Record, schema []string) (*Mapping, []string, error) {
	recordKeys := make([]string, 0, len(rec))
	for k := range rec {
		if strings.EqualFold(k, TagsKey) {
			continue
		}
		recordKeys = append(recordKeys, k)
	}
	sort.Strings(recordKeys)

	// First key in sorted order wins when keys differ only by case.
	byLower := make(map[string]string, len(recordKeys))
	for _, k := range recordKeys {
		lk := strings.ToLower(k)
		if _, exists := byLower[lk]; !exists {
			byLower[lk] = k
		}
	}

	m := newMapping()
	used := make(map[string]bool, len(rec))
	for _, name := range schema {
		key, ok := byLower[strings.ToLower(name)]
		if !ok {
			continue
		}
		s, err := Stringify(rec[key])
		if err != nil {
			return nil, nil, skillerr.SchemaMismatch("field %q: %v", name, err)
		}
		m.om.Set(name, s)
		used[key] = true
	}

	if m.Len() == 0 {
		return nil, nil, skillerr.NoFieldsMapped(
			"no input keys match the note type fields; note type fields: %s; input keys: %s",
			utils.QuoteList(schema), utils.QuoteList(recordKeys))
	}

	var ignored []string
	for _, k := range recordKeys {
		if !used[k] {
			ignored = append(ignored, k)
		}
	}
	return m, ignored, nil
}

// Stringify coerces an input value to the string stored in a note field.
// Scalars use their natural representation, composites are JSON encoded and
// nil becomes the empty string.
func Stringify(v any) (string, error) {
	if v == nil {
		return "", nil
	}
	switch v.(type) {
	case map[string]any, map[any]any, []any:
		b, err := json.Marshal(normalizeYAML(v))
		if err != nil {
			return "", errors.Wrap(err, "failed to encode value")
		}
		return string(b), nil
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		b, jerr := json.Marshal(v)
		if jerr != nil {
			return "", errors.Wrapf(err, "cannot convert %T to string", v)
		}
		return string(b), nil
	}
	return s, nil
}

func asStringMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Record:
		return m, true
	case map[string]string:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[k] = val
		}
		return out, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[fmt.Sprint(k)] = val
		}
		return out, true
	default:
		return nil, false
	}
}

// normalizeYAML converts map[any]any values so they can be JSON encoded.
func normalizeYAML(v any) any {
	switch t := v.(type) {
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalizeYAML(val)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalizeYAML(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalizeYAML(val)
		}
		return out
	default:
		return v
	}
}
