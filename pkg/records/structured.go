package records

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"

	"github.com/jingkaihe/skillkit/pkg/fieldmap"
	"github.com/jingkaihe/skillkit/pkg/skillerr"
)

const structuredShape = "an array of card objects, e.g. [{\"front\": \"...\", \"back\": \"...\"}] or [{\"fields\": {\"Text\": \"...\"}}]"

// cardObject splits a structured card into its tags and everything else.
type cardObject struct {
	Tags any            `mapstructure:"tags"`
	Rest map[string]any `mapstructure:",remain"`
}

// ReadJSON reads a JSON array of card objects. name labels entry sources.
func ReadJSON(r io.Reader, name string) ([]Entry, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		if err == io.EOF {
			return nil, skillerr.Format("%s is empty: expected %s", name, structuredShape)
		}
		return nil, skillerr.FormatWrap(err, "%s is not valid JSON", name)
	}
	if dec.More() {
		return nil, skillerr.Format("%s has trailing data after the top-level array", name)
	}
	return fromDocument(doc, name)
}

// ReadYAML reads a YAML sequence of card mappings.
func ReadYAML(r io.Reader, name string) ([]Entry, error) {
	var doc any
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if err == io.EOF {
			return nil, skillerr.Format("%s is empty: expected %s", name, structuredShape)
		}
		return nil, skillerr.FormatWrap(err, "%s is not valid YAML", name)
	}
	return fromDocument(doc, name)
}

func fromDocument(doc any, name string) ([]Entry, error) {
	items, ok := doc.([]any)
	if !ok {
		return nil, skillerr.Format("%s must contain %s, got %s", name, structuredShape, describe(doc))
	}

	entries := make([]Entry, 0, len(items))
	for i, item := range items {
		source := fmt.Sprintf("%s[%d]", name, i)
		entry, err := decodeCard(item, source)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func decodeCard(item any, source string) (Entry, error) {
	obj, ok := toStringKeyed(item)
	if !ok {
		return Entry{}, skillerr.Format("%s: each card must be an object, got %s", source, describe(item))
	}
	if fields, has := obj[fieldmap.ExplicitKey]; has {
		if _, ok := toStringKeyed(fields); !ok {
			return Entry{}, skillerr.Format("%s: %q must be an object mapping field names to values, got %s",
				source, fieldmap.ExplicitKey, describe(fields))
		}
	}

	var tagKeys []string
	for k := range obj {
		if strings.EqualFold(k, fieldmap.TagsKey) {
			tagKeys = append(tagKeys, k)
		}
	}
	if len(tagKeys) > 1 {
		sort.Strings(tagKeys)
		return Entry{}, skillerr.Format("%s: tags given more than once (%s)", source, strings.Join(tagKeys, ", "))
	}

	var card cardObject
	// The tags key matches in any case, like the CSV Tags column.
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:    &card,
		MatchName: strings.EqualFold,
	})
	if err != nil {
		return Entry{}, err
	}
	if err := dec.Decode(obj); err != nil {
		return Entry{}, skillerr.FormatWrap(err, "%s: invalid card object", source)
	}

	tags, err := normalizeTags(card.Tags)
	if err != nil {
		return Entry{}, skillerr.Format("%s: %v", source, err)
	}

	rec := fieldmap.Record(card.Rest)
	if rec == nil {
		rec = fieldmap.Record{}
	}
	return Entry{Record: rec, Tags: tags, Source: source}, nil
}

// normalizeTags accepts a comma separated string or a list of scalars.
func normalizeTags(v any) ([]string, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		return ParseTags(t), nil
	case []any:
		var tags []string
		for _, item := range t {
			switch item.(type) {
			case map[string]any, map[any]any, []any:
				return nil, fmt.Errorf("%q must be a string or a list of strings", fieldmap.TagsKey)
			}
			s, err := cast.ToStringE(item)
			if err != nil {
				return nil, fmt.Errorf("%q must be a string or a list of strings", fieldmap.TagsKey)
			}
			if s = strings.TrimSpace(s); s != "" {
				tags = append(tags, s)
			}
		}
		return tags, nil
	default:
		return nil, fmt.Errorf("%q must be a string or a list of strings, got %s", fieldmap.TagsKey, describe(v))
	}
}

// toStringKeyed returns v as a string keyed object. YAML mappings with
// non-string keys have their keys formatted.
func toStringKeyed(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
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

func describe(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any, map[any]any:
		return "an object"
	case []any:
		return "an array"
	case string:
		return "a string"
	case bool:
		return "a boolean"
	case json.Number, int, int64, float64:
		return "a number"
	default:
		return fmt.Sprintf("%T", v)
	}
}
