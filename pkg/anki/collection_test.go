package anki

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jingkaihe/skillkit/pkg/db"
	"github.com/jingkaihe/skillkit/pkg/skillerr"
)

func TestCreateAndOpen(t *testing.T) {
	for _, schema := range schemas {
		t.Run(schema.String(), func(t *testing.T) {
			path := newTestCollection(t, schema)
			c := openTestCollection(t, path)

			assert.Equal(t, schema, c.Schema())
			assert.Equal(t, path, c.Path())

			decks := c.Decks()
			require.Len(t, decks, 1)
			assert.Equal(t, Deck{ID: DefaultDeckID, Name: DefaultDeckName}, decks[0])

			noteTypes := c.NoteTypes()
			require.Len(t, noteTypes, 2)

			basic := noteTypes[0]
			assert.Equal(t, BasicNoteTypeName, basic.Name)
			assert.Equal(t, KindStandard, basic.Kind)
			assert.Equal(t, []string{"Front", "Back"}, basic.Fields)
			require.Len(t, basic.Templates, 1)
			assert.Equal(t, "Card 1", basic.Templates[0].Name)
			assert.Equal(t, "{{Front}}", basic.Templates[0].QuestionFormat)

			cloze := noteTypes[1]
			assert.Equal(t, ClozeNoteTypeName, cloze.Name)
			assert.Equal(t, KindCloze, cloze.Kind)
			assert.Equal(t, []string{"Text", "Back Extra"}, cloze.Fields)
			assert.Equal(t, "{{cloze:Text}}", cloze.Templates[0].QuestionFormat)
		})
	}
}

func TestCreateCollection_RefusesExisting(t *testing.T) {
	path := newTestCollection(t, SchemaLegacy)
	err := CreateCollection(context.Background(), path, SchemaLegacy)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	err = CreateCollection(context.Background(), filepath.Join(t.TempDir(), "x.anki2"), SchemaVersion(5))
	require.Error(t, err)
}

func TestCreateCollection_Version(t *testing.T) {
	path := newTestCollection(t, SchemaModern)
	withRawDB(t, path, func(sqlDB *sqlx.DB) {
		version, err := db.NewMigrationRunner(sqlDB).Version(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(2), version)

		var ver int
		require.NoError(t, sqlDB.Get(&ver, "SELECT ver FROM col"))
		assert.Equal(t, 18, ver)
	})
}

func TestCatalog_NestedAndFilteredDecks(t *testing.T) {
	for _, schema := range schemas {
		t.Run(schema.String(), func(t *testing.T) {
			path := newTestCollection(t, schema)
			addTestDeck(t, path, schema, 10, "French", false)
			addTestDeck(t, path, schema, 11, "French::Verbs", false)
			addTestDeck(t, path, schema, 12, "Cram", true)
			addTestNoteType(t, path, schema, vocabNoteType)

			c := openTestCollection(t, path)

			names := make([]string, 0)
			for _, d := range c.Decks() {
				names = append(names, d.Name)
			}
			assert.Equal(t, []string{"Cram", "Default", "French", "French::Verbs"}, names)

			cram, err := c.DeckByName("cram")
			require.NoError(t, err)
			assert.True(t, cram.Filtered)

			verbs, err := c.DeckByName("french::verbs")
			require.NoError(t, err)
			assert.Equal(t, int64(11), verbs.ID)
			assert.False(t, verbs.Filtered)

			vocab, err := c.NoteTypeByName("VOCAB")
			require.NoError(t, err)
			assert.Equal(t, vocabNoteType.Fields, vocab.Fields)
			require.Len(t, vocab.Templates, 2)
			assert.Equal(t, "Recall", vocab.Templates[1].Name)

			nt, ok := c.NoteType(vocabNoteType.ID)
			require.True(t, ok)
			assert.Equal(t, "Vocab", nt.Name)
			_, ok = c.NoteType(42)
			assert.False(t, ok)

			assert.Equal(t, "French::Verbs", c.DeckName(11))
			assert.Equal(t, "Unknown", c.DeckName(999))
		})
	}
}

func TestDeckByName_NotFound(t *testing.T) {
	path := newTestCollection(t, SchemaLegacy)
	addTestDeck(t, path, SchemaLegacy, 10, "Spanish", false)
	c := openTestCollection(t, path)

	_, err := c.DeckByName("Spansh")
	require.Error(t, err)
	assert.True(t, skillerr.Is(err, skillerr.KindNotFound))
	assert.Equal(t, `Deck not found: Spansh (did you mean "Spanish"?). Use list-decks to see available decks.`, err.Error())
}

func TestNoteTypeByName_NotFound(t *testing.T) {
	path := newTestCollection(t, SchemaModern)
	c := openTestCollection(t, path)

	_, err := c.NoteTypeByName("Fancy")
	require.Error(t, err)
	assert.True(t, skillerr.Is(err, skillerr.KindNotFound))
	assert.Equal(t, `Note type not found: Fancy. Available note types: "Basic", "Cloze"`, err.Error())
}

func TestOpen_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := Open(ctx, filepath.Join(t.TempDir(), "missing.anki2"), OpenOptions{})
	require.Error(t, err)
	assert.True(t, skillerr.Is(err, skillerr.KindNotFound))

	notAnki := filepath.Join(t.TempDir(), "other.db")
	sqlDB, err := db.OpenSQLite(ctx, notAnki, db.Options{Create: true})
	require.NoError(t, err)
	_, err = sqlDB.Exec("CREATE TABLE things (id INTEGER)")
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	_, err = Open(ctx, notAnki, OpenOptions{})
	require.Error(t, err)
	assert.True(t, skillerr.Is(err, skillerr.KindCollaborator))
	assert.Contains(t, err.Error(), "is not an Anki collection")

	garbage := filepath.Join(t.TempDir(), "garbage.anki2")
	require.NoError(t, os.WriteFile(garbage, []byte("definitely not sqlite, just some bytes to fill a header"), 0o644))
	_, err = Open(ctx, garbage, OpenOptions{})
	require.Error(t, err)
	assert.True(t, skillerr.Is(err, skillerr.KindCollaborator))
}

func TestClose_Idempotent(t *testing.T) {
	path := newTestCollection(t, SchemaLegacy)
	c, err := Open(context.Background(), path, OpenOptions{})
	require.NoError(t, err)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	var nilCollection *Collection
	assert.NoError(t, nilCollection.Close())
}

func TestSave_Locked(t *testing.T) {
	ctx := context.Background()
	path := newTestCollection(t, SchemaLegacy)
	c := openTestCollection(t, path)

	holder, err := db.OpenSQLite(ctx, path, db.Options{})
	require.NoError(t, err)
	defer holder.Close()
	tx, err := holder.Beginx()
	require.NoError(t, err)
	defer tx.Rollback()
	_, err = tx.Exec("UPDATE col SET mod = mod")
	require.NoError(t, err)

	require.NoError(t, c.db.Close())
	c.db, err = db.OpenSQLite(ctx, path, db.Options{BusyTimeout: 1})
	require.NoError(t, err)

	basic, err := c.NoteTypeByName("Basic")
	require.NoError(t, err)
	require.NoError(t, c.AddNote(DefaultDeckID, basic, resolve(t, basic, map[string]any{"front": "q", "back": "a"}), nil))

	err = c.Save(ctx)
	require.Error(t, err)
	assert.True(t, skillerr.Is(err, skillerr.KindLocked))
	assert.Equal(t, LockedMessage, err.Error())
	assert.Equal(t, 1, c.Pending())
}

func TestSchemaAndKindStrings(t *testing.T) {
	assert.Equal(t, "legacy", SchemaLegacy.String())
	assert.Equal(t, "modern", SchemaModern.String())
	assert.Equal(t, "unknown", SchemaVersion(3).String())
	assert.Equal(t, "Standard", KindStandard.String())
	assert.Equal(t, "Cloze", KindCloze.String())
}

func TestNormalizeTags(t *testing.T) {
	assert.Equal(t, []string{"a", "multi_word", "B"}, NormalizeTags([]string{" a ", "multi word", "", "B", "A", "b"}))
	assert.Nil(t, NormalizeTags(nil))
	assert.Equal(t, " x y ", joinTags([]string{"x", "y"}))
	assert.Equal(t, "", joinTags(nil))
	assert.Equal(t, []string{"x", "y"}, splitTags(" x  y "))
}
