package fieldmap

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jingkaihe/skillkit/pkg/skillerr"
)

var (
	basicSchema = []string{"Front", "Back"}
	clozeSchema = []string{"Text", "Extra", "Hint"}
)

func TestDetectShape(t *testing.T) {
	tests := []struct {
		name     string
		record   Record
		expected Shape
	}{
		{"explicit wins over legacy", Record{"fields": map[string]any{}, "front": "a", "back": "b"}, ShapeExplicit},
		{"legacy pair", Record{"front": "a", "back": "b"}, ShapeLegacyPair},
		{"front only is flexible", Record{"front": "a"}, ShapeFlexible},
		{"capitalized keys are flexible", Record{"Front": "a", "Back": "b"}, ShapeFlexible},
		{"empty record", Record{}, ShapeFlexible},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DetectShape(tt.record))
		})
	}
}

func TestShapeOrder(t *testing.T) {
	assert.Less(t, int(ShapeExplicit), int(ShapeLegacyPair))
	assert.Less(t, int(ShapeLegacyPair), int(ShapeFlexible))
	assert.Equal(t, "legacy-pair", ShapeLegacyPair.String())
}

func TestResolve_Explicit(t *testing.T) {
	t.Run("partial mapping is legal", func(t *testing.T) {
		rec := Record{"fields": map[string]any{"Text": "2+2", "Extra": "basic"}}

		res, err := Resolve(rec, clozeSchema)
		require.NoError(t, err)
		assert.Equal(t, ShapeExplicit, res.Shape)
		assert.Equal(t, map[string]string{"Text": "2+2", "Extra": "basic"}, res.Mapping.ToMap())
		assert.Equal(t, []string{"Text", "Extra"}, res.Mapping.Keys())
		_, hasHint := res.Mapping.Get("Hint")
		assert.False(t, hasHint)
	})

	t.Run("values are stringified", func(t *testing.T) {
		rec := Record{"fields": map[string]any{"Text": 4, "Extra": true, "Hint": nil}}

		res, err := Resolve(rec, clozeSchema)
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"Text": "4", "Extra": "true", "Hint": ""}, res.Mapping.ToMap())
	})

	t.Run("unknown key fails naming key and valid fields", func(t *testing.T) {
		rec := Record{"fields": map[string]any{"Txt": "2+2"}}

		_, err := Resolve(rec, clozeSchema)
		require.Error(t, err)
		assert.True(t, skillerr.Is(err, skillerr.KindSchemaMismatch))
		assert.Contains(t, err.Error(), `"Txt"`)
		assert.Contains(t, err.Error(), `"Text", "Extra", "Hint"`)
		assert.Contains(t, err.Error(), `did you mean "Text"`)
	})

	t.Run("matching is case-sensitive", func(t *testing.T) {
		rec := Record{"fields": map[string]any{"text": "2+2"}}

		_, err := Resolve(rec, clozeSchema)
		require.Error(t, err)
		assert.True(t, skillerr.Is(err, skillerr.KindSchemaMismatch))
	})

	t.Run("failure never falls back to other strategies", func(t *testing.T) {
		rec := Record{"fields": map[string]any{"Nope": "x"}, "front": "a", "back": "b", "Front": "c"}

		_, err := Resolve(rec, basicSchema)
		require.Error(t, err)
		assert.True(t, skillerr.Is(err, skillerr.KindSchemaMismatch))
	})

	t.Run("non-object fields value", func(t *testing.T) {
		_, err := Resolve(Record{"fields": "Text"}, clozeSchema)
		require.Error(t, err)
		assert.True(t, skillerr.Is(err, skillerr.KindSchemaMismatch))
	})

	t.Run("yaml style map keys", func(t *testing.T) {
		rec := Record{"fields": map[any]any{"Text": "x"}}

		res, err := Resolve(rec, clozeSchema)
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"Text": "x"}, res.Mapping.ToMap())
	})
}

func TestResolve_LegacyPair(t *testing.T) {
	t.Run("maps to Front and Back", func(t *testing.T) {
		rec := Record{"front": "dog", "back": "chien", "tags": "animals,french"}

		res, err := Resolve(rec, basicSchema)
		require.NoError(t, err)
		assert.Equal(t, ShapeLegacyPair, res.Shape)
		assert.Equal(t, map[string]string{"Front": "dog", "Back": "chien"}, res.Mapping.ToMap())
	})

	t.Run("priority over flexible matches", func(t *testing.T) {
		schema := []string{"Front", "Back", "Notes"}
		rec := Record{"front": "dog", "back": "chien", "notes": "ignored"}

		res, err := Resolve(rec, schema)
		require.NoError(t, err)
		assert.Equal(t, 2, res.Mapping.Len())
		assert.Equal(t, []string{"Front", "Back"}, res.Mapping.Keys())
	})

	t.Run("schema without Back fails", func(t *testing.T) {
		rec := Record{"front": "dog", "back": "chien"}

		_, err := Resolve(rec, []string{"Front", "Extra"})
		require.Error(t, err)
		assert.True(t, skillerr.Is(err, skillerr.KindSchemaMismatch))
	})

	t.Run("error suggests explicit form with first field", func(t *testing.T) {
		rec := Record{"front": "dog", "back": "chien"}

		_, err := Resolve(rec, clozeSchema)
		require.Error(t, err)
		assert.True(t, skillerr.Is(err, skillerr.KindSchemaMismatch))
		assert.Contains(t, err.Error(), `{"fields": {"Text": "..."}}`)
	})
}

func TestResolve_Flexible(t *testing.T) {
	t.Run("case-insensitive match in schema order", func(t *testing.T) {
		rec := Record{"BACK": "Haus", "front": "house"}

		res, err := Resolve(rec, []string{"Front", "Back"})
		require.NoError(t, err)
		assert.Equal(t, ShapeFlexible, res.Shape)
		assert.Equal(t, []string{"Front", "Back"}, res.Mapping.Keys())
		assert.Equal(t, map[string]string{"Front": "house", "Back": "Haus"}, res.Mapping.ToMap())
	})

	t.Run("csv style headers", func(t *testing.T) {
		rec := Record{"Back": "Haus"}

		res, err := Resolve(rec, basicSchema)
		require.NoError(t, err)
		assert.Equal(t, ShapeFlexible, res.Shape)
		assert.Equal(t, map[string]string{"Back": "Haus"}, res.Mapping.ToMap())
	})

	t.Run("order follows schema", func(t *testing.T) {
		rec := Record{"hint": "h", "TEXT": "t", "extra": "e"}

		res, err := Resolve(rec, clozeSchema)
		require.NoError(t, err)
		assert.Equal(t, []string{"Text", "Extra", "Hint"}, res.Mapping.Keys())

		b, err := json.Marshal(res.Mapping)
		require.NoError(t, err)
		assert.JSONEq(t, `{"Text":"t","Extra":"e","Hint":"h"}`, string(b))
		assert.Equal(t, `{"Text":"t","Extra":"e","Hint":"h"}`, string(b))
	})

	t.Run("unmatched keys ignored and reported", func(t *testing.T) {
		rec := Record{"Text": "t", "source": "book", "page": 12}

		res, err := Resolve(rec, clozeSchema)
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"Text": "t"}, res.Mapping.ToMap())
		assert.Equal(t, []string{"page", "source"}, res.Ignored)
	})

	t.Run("tags key never matches a field", func(t *testing.T) {
		rec := Record{"Tags": "x", "Front": "f"}

		res, err := Resolve(rec, []string{"Front", "Tags"})
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"Front": "f"}, res.Mapping.ToMap())
	})

	t.Run("nothing matched", func(t *testing.T) {
		rec := Record{"question": "q", "answer": "a", "tags": []any{"x"}}

		_, err := Resolve(rec, basicSchema)
		require.Error(t, err)
		assert.True(t, skillerr.Is(err, skillerr.KindNoFieldsMapped))
		assert.Contains(t, err.Error(), `"Front", "Back"`)
		assert.Contains(t, err.Error(), `"answer", "question"`)
		assert.NotContains(t, err.Error(), `"tags"`)
	})

	t.Run("keys differing only by case pick a stable winner", func(t *testing.T) {
		rec := Record{"FRONT": "upper", "Front": "title"}

		for i := 0; i < 10; i++ {
			res, err := Resolve(rec, []string{"Front"})
			require.NoError(t, err)
			v, _ := res.Mapping.Get("Front")
			assert.Equal(t, "upper", v)
		}
	})
}

func TestResolve_KeysAlwaysInSchema(t *testing.T) {
	records := []Record{
		{"fields": map[string]any{"Front": "a"}},
		{"front": "a", "back": "b"},
		{"FRONT": "a", "extra": "x", "whatever": 1},
	}

	for _, rec := range records {
		res, err := Resolve(rec, basicSchema)
		require.NoError(t, err)
		for _, k := range res.Mapping.Keys() {
			assert.Contains(t, basicSchema, k)
		}
	}
}

func TestStringify(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{"nil", nil, ""},
		{"string", "x", "x"},
		{"int", 42, "42"},
		{"float", 1.5, "1.5"},
		{"json whole number", float64(2), "2"},
		{"bool", false, "false"},
		{"list", []any{"a", 1}, `["a",1]`},
		{"object", map[string]any{"k": "v"}, `{"k":"v"}`},
		{"yaml object", map[any]any{"k": "v"}, `{"k":"v"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Stringify(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}
