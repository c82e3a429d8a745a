package anki

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/jingkaihe/skillkit/pkg/db"
	"github.com/jingkaihe/skillkit/pkg/fieldmap"
)

var schemas = []SchemaVersion{SchemaLegacy, SchemaModern}

func newTestCollection(t *testing.T, schema SchemaVersion) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "collection.anki2")
	require.NoError(t, CreateCollection(context.Background(), path, schema))
	return path
}

func openTestCollection(t *testing.T, path string) *Collection {
	t.Helper()
	c, err := Open(context.Background(), path, OpenOptions{})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func withRawDB(t *testing.T, path string, fn func(*sqlx.DB)) {
	t.Helper()
	sqlDB, err := db.OpenSQLite(context.Background(), path, db.Options{})
	require.NoError(t, err)
	defer sqlDB.Close()
	fn(sqlDB)
}

func addTestDeck(t *testing.T, path string, schema SchemaVersion, id int64, name string, filtered bool) {
	t.Helper()
	withRawDB(t, path, func(sqlDB *sqlx.DB) {
		if schema == SchemaModern {
			kind := encodeNormalDeckKind(1)
			if filtered {
				kind = protowire.AppendTag(nil, deckKindFilteredField, protowire.BytesType)
				kind = protowire.AppendBytes(kind, nil)
			}
			_, err := sqlDB.Exec("INSERT INTO decks (id, name, mtime_secs, usn, common, kind) VALUES (?, ?, 0, 0, ?, ?)",
				id, strings.ReplaceAll(name, DeckSeparator, "\x1f"), []byte{}, kind)
			require.NoError(t, err)
			return
		}

		var raw string
		require.NoError(t, sqlDB.Get(&raw, "SELECT decks FROM col"))
		decks := map[string]any{}
		require.NoError(t, json.Unmarshal([]byte(raw), &decks))
		dyn := 0
		if filtered {
			dyn = 1
		}
		decks[strconv.FormatInt(id, 10)] = map[string]any{"id": id, "name": name, "dyn": dyn}
		b, err := json.Marshal(decks)
		require.NoError(t, err)
		_, err = sqlDB.Exec("UPDATE col SET decks = ?", string(b))
		require.NoError(t, err)
	})
}

func addTestNoteType(t *testing.T, path string, schema SchemaVersion, nt NoteType) {
	t.Helper()
	withRawDB(t, path, func(sqlDB *sqlx.DB) {
		if schema == SchemaModern {
			_, err := sqlDB.Exec("INSERT INTO notetypes (id, name, mtime_secs, usn, config) VALUES (?, ?, 0, 0, ?)",
				nt.ID, nt.Name, encodeNotetypeConfig(nt.Kind, nt.SortField, ""))
			require.NoError(t, err)
			for i, f := range nt.Fields {
				_, err := sqlDB.Exec("INSERT INTO fields (ntid, ord, name, config) VALUES (?, ?, ?, ?)", nt.ID, i, f, []byte{})
				require.NoError(t, err)
			}
			for _, tmpl := range nt.Templates {
				_, err := sqlDB.Exec("INSERT INTO templates (ntid, ord, name, mtime_secs, usn, config) VALUES (?, ?, ?, 0, 0, ?)",
					nt.ID, tmpl.Ord, tmpl.Name, encodeTemplateConfig(tmpl.QuestionFormat, tmpl.AnswerFormat))
				require.NoError(t, err)
			}
			return
		}

		var raw string
		require.NoError(t, sqlDB.Get(&raw, "SELECT models FROM col"))
		models := map[string]any{}
		require.NoError(t, json.Unmarshal([]byte(raw), &models))
		models[strconv.FormatInt(nt.ID, 10)] = legacyModelJSON(nt, time.Now())
		b, err := json.Marshal(models)
		require.NoError(t, err)
		_, err = sqlDB.Exec("UPDATE col SET models = ?", string(b))
		require.NoError(t, err)
	})
}

// vocabNoteType has two templates so that a note can produce one or two cards.
var vocabNoteType = NoteType{
	ID:     1700000000100,
	Name:   "Vocab",
	Kind:   KindStandard,
	Fields: []string{"Word", "Meaning", "Example"},
	Templates: []Template{
		{Ord: 0, Name: "Recognition", QuestionFormat: "{{Word}}", AnswerFormat: "{{Meaning}}"},
		{Ord: 1, Name: "Recall", QuestionFormat: "{{#Example}}{{Meaning}}<br>{{text:Example}}{{/Example}}", AnswerFormat: "{{Word}}"},
	},
}

func resolve(t *testing.T, nt *NoteType, rec fieldmap.Record) *fieldmap.Mapping {
	t.Helper()
	res, err := fieldmap.Resolve(rec, nt.Fields)
	require.NoError(t, err)
	return res.Mapping
}

func countRows(t *testing.T, c *Collection, table string) int {
	t.Helper()
	var n int
	require.NoError(t, c.db.Get(&n, "SELECT COUNT(*) FROM "+table))
	return n
}
