package anki

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jingkaihe/skillkit/pkg/fieldmap"
	"github.com/jingkaihe/skillkit/pkg/skillerr"
)

func TestAddNoteAndSave(t *testing.T) {
	for _, schema := range schemas {
		t.Run(schema.String(), func(t *testing.T) {
			ctx := context.Background()
			path := newTestCollection(t, schema)
			c := openTestCollection(t, path)

			basic, err := c.NoteTypeByName("Basic")
			require.NoError(t, err)

			require.NoError(t, c.AddNote(DefaultDeckID, basic,
				resolve(t, basic, fieldmap.Record{"front": "<b>dog</b>", "back": "chien"}), []string{"animals", "french vocab"}))
			require.NoError(t, c.AddNote(DefaultDeckID, basic,
				resolve(t, basic, fieldmap.Record{"front": "bonjour", "back": "hello"}), nil))
			assert.Equal(t, 2, c.Pending())
			assert.Equal(t, 0, countRows(t, c, "notes"))

			require.NoError(t, c.Save(ctx))
			assert.Equal(t, 0, c.Pending())
			assert.Equal(t, 2, countRows(t, c, "notes"))
			assert.Equal(t, 2, countRows(t, c, "cards"))

			type noteRow struct {
				ID   int64  `db:"id"`
				GUID string `db:"guid"`
				Tags string `db:"tags"`
				Flds string `db:"flds"`
				Sfld string `db:"sfld"`
				Csum int64  `db:"csum"`
				Usn  int    `db:"usn"`
			}
			var notes []noteRow
			require.NoError(t, c.db.Select(&notes, "SELECT id, guid, tags, flds, sfld, csum, usn FROM notes ORDER BY id"))
			require.Len(t, notes, 2)

			assert.Equal(t, "<b>dog</b>\x1fchien", notes[0].Flds)
			assert.Equal(t, "dog", notes[0].Sfld)
			assert.Equal(t, int64(3834974802), notes[0].Csum)
			assert.Equal(t, " animals french_vocab ", notes[0].Tags)
			assert.Equal(t, -1, notes[0].Usn)
			assert.NotEmpty(t, notes[0].GUID)
			assert.NotEqual(t, notes[0].GUID, notes[1].GUID)
			assert.Equal(t, int64(527556852), notes[1].Csum)
			assert.Equal(t, "", notes[1].Tags)
			assert.Greater(t, notes[1].ID, notes[0].ID)

			var dues []int64
			require.NoError(t, c.db.Select(&dues, "SELECT due FROM cards ORDER BY id"))
			assert.Equal(t, []int64{1, 2}, dues)

			note, err := c.Note(ctx, notes[0].ID)
			require.NoError(t, err)
			front, ok := note.Field("Front")
			require.True(t, ok)
			assert.Equal(t, "<b>dog</b>", front)
			assert.Equal(t, []string{"<b>dog</b>", "chien"}, note.FieldValues())
			assert.Equal(t, []string{"animals", "french_vocab"}, note.Tags)

			cards, err := c.CardsOfNote(ctx, note.ID)
			require.NoError(t, err)
			require.Len(t, cards, 1)
			assert.Equal(t, DefaultDeckID, cards[0].DeckID)
			assert.Equal(t, CardTypeNew, cards[0].Type)
			assert.Equal(t, QueueNew, cards[0].Queue)

			card, err := c.Card(ctx, cards[0].ID)
			require.NoError(t, err)
			assert.Equal(t, note.ID, card.NoteID)

			_, err = c.Note(ctx, 1)
			assert.True(t, skillerr.Is(err, skillerr.KindNotFound))
			_, err = c.Card(ctx, 1)
			assert.True(t, skillerr.Is(err, skillerr.KindNotFound))

			// a second batch continues the due sequence
			require.NoError(t, c.AddNote(DefaultDeckID, basic,
				resolve(t, basic, fieldmap.Record{"front": "chat", "back": "cat"}), []string{"Animals"}))
			require.NoError(t, c.Save(ctx))
			var lastDue int64
			require.NoError(t, c.db.Get(&lastDue, "SELECT MAX(due) FROM cards"))
			assert.Equal(t, int64(3), lastDue)
		})
	}
}

func TestSave_RegistersTagsAndNextPos(t *testing.T) {
	ctx := context.Background()

	t.Run("legacy", func(t *testing.T) {
		c := openTestCollection(t, newTestCollection(t, SchemaLegacy))
		basic, err := c.NoteTypeByName("Basic")
		require.NoError(t, err)
		require.NoError(t, c.AddNote(DefaultDeckID, basic, resolve(t, basic, fieldmap.Record{"front": "a"}), []string{"one", "two"}))
		require.NoError(t, c.Save(ctx))

		var raw string
		require.NoError(t, c.db.Get(&raw, "SELECT tags FROM col"))
		tags := map[string]int{}
		require.NoError(t, json.Unmarshal([]byte(raw), &tags))
		assert.Equal(t, map[string]int{"one": -1, "two": -1}, tags)

		require.NoError(t, c.db.Get(&raw, "SELECT conf FROM col"))
		conf := map[string]any{}
		require.NoError(t, json.Unmarshal([]byte(raw), &conf))
		assert.Equal(t, float64(2), conf["nextPos"])
	})

	t.Run("modern", func(t *testing.T) {
		c := openTestCollection(t, newTestCollection(t, SchemaModern))
		basic, err := c.NoteTypeByName("Basic")
		require.NoError(t, err)
		require.NoError(t, c.AddNote(DefaultDeckID, basic, resolve(t, basic, fieldmap.Record{"front": "a"}), []string{"one", "two"}))
		require.NoError(t, c.AddNote(DefaultDeckID, basic, resolve(t, basic, fieldmap.Record{"front": "b"}), []string{"ONE"}))
		require.NoError(t, c.Save(ctx))

		var tags []string
		require.NoError(t, c.db.Select(&tags, "SELECT tag FROM tags ORDER BY tag"))
		assert.Equal(t, []string{"one", "two"}, tags)

		var nextPos []byte
		require.NoError(t, c.db.Get(&nextPos, "SELECT val FROM config WHERE KEY = 'nextPos'"))
		assert.Equal(t, "3", string(nextPos))
	})
}

func TestAddNote_Cloze(t *testing.T) {
	ctx := context.Background()
	c := openTestCollection(t, newTestCollection(t, SchemaModern))
	cloze, err := c.NoteTypeByName("Cloze")
	require.NoError(t, err)

	rec := fieldmap.Record{"fields": map[string]any{"Text": "{{c1::Paris}} is the capital of {{c2::France}}, {{c1::yes}}"}}
	require.NoError(t, c.AddNote(DefaultDeckID, cloze, resolve(t, cloze, rec), nil))
	require.NoError(t, c.Save(ctx))

	var ords []int
	require.NoError(t, c.db.Select(&ords, "SELECT ord FROM cards ORDER BY ord"))
	assert.Equal(t, []int{0, 1}, ords)

	noCloze := fieldmap.Record{"fields": map[string]any{"Text": "no deletions here"}}
	require.NoError(t, c.AddNote(DefaultDeckID, cloze, resolve(t, cloze, noCloze), nil))
	require.NoError(t, c.Save(ctx))

	var lastOrds []int
	require.NoError(t, c.db.Select(&lastOrds,
		"SELECT c.ord FROM cards c JOIN notes n ON n.id = c.nid WHERE n.flds LIKE 'no deletions%' ORDER BY c.ord"))
	assert.Equal(t, []int{0}, lastOrds)
}

func TestAddNote_EmptyFrontGetsFirstCard(t *testing.T) {
	for _, schema := range []SchemaVersion{SchemaLegacy, SchemaModern} {
		t.Run(schema.String(), func(t *testing.T) {
			ctx := context.Background()
			path := newTestCollection(t, schema)
			c := openTestCollection(t, path)
			basic, err := c.NoteTypeByName("Basic")
			require.NoError(t, err)

			backOnly := resolve(t, basic, fieldmap.Record{"Back": "Haus"})
			require.NoError(t, c.AddNote(DefaultDeckID, basic, backOnly, []string{"german"}))
			require.NoError(t, c.Save(ctx))

			var ords []int
			require.NoError(t, c.db.Select(&ords, "SELECT ord FROM cards"))
			assert.Equal(t, []int{0}, ords)

			var flds string
			require.NoError(t, c.db.Get(&flds, "SELECT flds FROM notes"))
			assert.Equal(t, "\x1fHaus", flds)
		})
	}
}

func TestAddNote_TemplateSelection(t *testing.T) {
	ctx := context.Background()
	path := newTestCollection(t, SchemaLegacy)
	addTestNoteType(t, path, SchemaLegacy, vocabNoteType)
	c := openTestCollection(t, path)
	vocab, err := c.NoteTypeByName("Vocab")
	require.NoError(t, err)

	require.NoError(t, c.AddNote(DefaultDeckID, vocab,
		resolve(t, vocab, fieldmap.Record{"fields": map[string]any{"Word": "chat", "Meaning": "cat"}}), nil))
	require.NoError(t, c.AddNote(DefaultDeckID, vocab,
		resolve(t, vocab, fieldmap.Record{"fields": map[string]any{"Word": "chien", "Meaning": "dog", "Example": "le chien"}}), nil))
	require.NoError(t, c.Save(ctx))

	var ords []int
	require.NoError(t, c.db.Select(&ords, "SELECT ord FROM cards ORDER BY nid, ord"))
	assert.Equal(t, []int{0, 0, 1}, ords)
}

func TestAddNote_Rejections(t *testing.T) {
	path := newTestCollection(t, SchemaLegacy)
	addTestDeck(t, path, SchemaLegacy, 12, "Cram", true)
	c := openTestCollection(t, path)
	basic, err := c.NoteTypeByName("Basic")
	require.NoError(t, err)
	good := resolve(t, basic, fieldmap.Record{"front": "q", "back": "a"})

	err = c.AddNote(999, basic, good, nil)
	assert.True(t, skillerr.Is(err, skillerr.KindNotFound))

	err = c.AddNote(12, basic, good, nil)
	assert.True(t, skillerr.Is(err, skillerr.KindCollaborator))
	assert.Contains(t, err.Error(), "filtered deck")

	err = c.AddNote(DefaultDeckID, &NoteType{ID: 5, Name: "Ghost"}, good, nil)
	assert.True(t, skillerr.Is(err, skillerr.KindNotFound))

	cloze, err := c.NoteTypeByName("Cloze")
	require.NoError(t, err)
	err = c.AddNote(DefaultDeckID, cloze, good, nil)
	assert.True(t, skillerr.Is(err, skillerr.KindSchemaMismatch))

	assert.Equal(t, 0, c.Pending())
}

func TestAddNote_ReadOnly(t *testing.T) {
	path := newTestCollection(t, SchemaLegacy)
	c, err := Open(context.Background(), path, OpenOptions{ReadOnly: true})
	require.NoError(t, err)
	defer c.Close()

	basic, err := c.NoteTypeByName("Basic")
	require.NoError(t, err)
	err = c.AddNote(DefaultDeckID, basic, resolve(t, basic, fieldmap.Record{"front": "q"}), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read-only")
}

func TestSave_IsAtomic(t *testing.T) {
	for _, schema := range schemas {
		t.Run(schema.String(), func(t *testing.T) {
			ctx := context.Background()
			c := openTestCollection(t, newTestCollection(t, schema))
			basic, err := c.NoteTypeByName("Basic")
			require.NoError(t, err)

			for _, front := range []string{"one", "two", "three"} {
				require.NoError(t, c.AddNote(DefaultDeckID, basic, resolve(t, basic, fieldmap.Record{"front": front}), []string{"batch"}))
			}

			_, err = c.db.Exec(`CREATE TRIGGER fail_third AFTER INSERT ON cards
				WHEN (SELECT COUNT(*) FROM cards) >= 3
				BEGIN SELECT RAISE(ABORT, 'disk full'); END`)
			require.NoError(t, err)

			err = c.Save(ctx)
			require.Error(t, err)
			assert.True(t, skillerr.Is(err, skillerr.KindCollaborator))
			assert.Equal(t, 3, c.Pending())
			assert.Equal(t, 0, countRows(t, c, "notes"))
			assert.Equal(t, 0, countRows(t, c, "cards"))

			_, err = c.db.Exec("DROP TRIGGER fail_third")
			require.NoError(t, err)
			require.NoError(t, c.Save(ctx))
			assert.Equal(t, 3, countRows(t, c, "notes"))
		})
	}
}

func TestClose_DiscardsPending(t *testing.T) {
	ctx := context.Background()
	path := newTestCollection(t, SchemaLegacy)
	c, err := Open(ctx, path, OpenOptions{})
	require.NoError(t, err)
	basic, err := c.NoteTypeByName("Basic")
	require.NoError(t, err)
	require.NoError(t, c.AddNote(DefaultDeckID, basic, resolve(t, basic, fieldmap.Record{"front": "q"}), nil))
	require.NoError(t, c.Close())

	reopened := openTestCollection(t, path)
	assert.Equal(t, 0, countRows(t, reopened, "notes"))
}

func TestGenerateCards(t *testing.T) {
	tests := []struct {
		name   string
		nt     *NoteType
		fields []string
		want   []int
	}{
		{name: "front filled", nt: &stockNoteTypes[0], fields: []string{"q", ""}, want: []int{0}},
		{name: "front blank html", nt: &stockNoteTypes[0], fields: []string{"<br> &nbsp;", "a"}, want: nil},
		{name: "image counts", nt: &stockNoteTypes[0], fields: []string{`<img src="a.png">`, ""}, want: []int{0}},
		{name: "section with filled body", nt: &vocabNoteType, fields: []string{"", "", "example"}, want: []int{1}},
		{name: "empty section", nt: &vocabNoteType, fields: []string{"", "meaning", ""}, want: nil},
		{name: "both templates", nt: &vocabNoteType, fields: []string{"w", "m", "e"}, want: []int{0, 1}},
		{name: "cloze", nt: &stockNoteTypes[1], fields: []string{"{{c3::a}} {{c1::b}}", "{{c2::ignored}}"}, want: []int{0, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, generateCards(tt.nt, tt.fields))
		})
	}
}

func TestTemplateRefs(t *testing.T) {
	refs := templateRefs("{{#Extra}}{{hint:Extra}}{{/Extra}} {{FrontSide}} {{! note }} {{ Front }} {{type:cloze:Text}}")
	require.Len(t, refs, 3)
	assert.Equal(t, fieldRef{name: "Extra", filters: []string{"hint"}}, refs[0])
	assert.Equal(t, "Front", refs[1].name)
	assert.Equal(t, []string{"type", "cloze"}, refs[2].filters)
}

func TestNewGUID(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		g := newGUID()
		assert.NotEmpty(t, g)
		assert.LessOrEqual(t, len(g), 10)
		for _, r := range g {
			assert.Contains(t, guidAlphabet, string(r))
		}
		seen[g] = true
	}
	assert.Len(t, seen, 100)
}
