package anki

import (
	"context"
	"encoding/json"
	"os"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/jingkaihe/skillkit/pkg/db"
	"github.com/jingkaihe/skillkit/pkg/logger"
)

// Identifiers of the objects every new collection starts with.
const (
	DefaultDeckID     int64 = 1
	DefaultDeckName         = "Default"
	BasicNoteTypeID   int64 = 1700000000001
	BasicNoteTypeName       = "Basic"
	ClozeNoteTypeID   int64 = 1700000000002
	ClozeNoteTypeName       = "Cloze"
)

const defaultCSS = ".card {\n  font-family: arial;\n  font-size: 20px;\n  text-align: center;\n}\n"

// stockNoteTypes are the note types a new collection is seeded with.
var stockNoteTypes = []NoteType{
	{
		ID:     BasicNoteTypeID,
		Name:   BasicNoteTypeName,
		Kind:   KindStandard,
		Fields: []string{"Front", "Back"},
		Templates: []Template{{
			Ord:            0,
			Name:           "Card 1",
			QuestionFormat: "{{Front}}",
			AnswerFormat:   "{{FrontSide}}\n\n<hr id=answer>\n\n{{Back}}",
		}},
	},
	{
		ID:     ClozeNoteTypeID,
		Name:   ClozeNoteTypeName,
		Kind:   KindCloze,
		Fields: []string{"Text", "Back Extra"},
		Templates: []Template{{
			Ord:            0,
			Name:           "Cloze",
			QuestionFormat: "{{cloze:Text}}",
			AnswerFormat:   "{{cloze:Text}}<br>\n{{Back Extra}}",
		}},
	},
}

const coreTablesDDL = `
CREATE TABLE col (
    id integer PRIMARY KEY,
    crt integer NOT NULL,
    mod integer NOT NULL,
    scm integer NOT NULL,
    ver integer NOT NULL,
    dty integer NOT NULL,
    usn integer NOT NULL,
    ls integer NOT NULL,
    conf text NOT NULL,
    models text NOT NULL,
    decks text NOT NULL,
    dconf text NOT NULL,
    tags text NOT NULL
);
CREATE TABLE notes (
    id integer PRIMARY KEY,
    guid text NOT NULL,
    mid integer NOT NULL,
    mod integer NOT NULL,
    usn integer NOT NULL,
    tags text NOT NULL,
    flds text NOT NULL,
    sfld integer NOT NULL,
    csum integer NOT NULL,
    flags integer NOT NULL,
    data text NOT NULL
);
CREATE TABLE cards (
    id integer PRIMARY KEY,
    nid integer NOT NULL,
    did integer NOT NULL,
    ord integer NOT NULL,
    mod integer NOT NULL,
    usn integer NOT NULL,
    type integer NOT NULL,
    queue integer NOT NULL,
    due integer NOT NULL,
    ivl integer NOT NULL,
    factor integer NOT NULL,
    reps integer NOT NULL,
    lapses integer NOT NULL,
    left integer NOT NULL,
    odue integer NOT NULL,
    odid integer NOT NULL,
    flags integer NOT NULL,
    data text NOT NULL
);
CREATE TABLE revlog (
    id integer PRIMARY KEY,
    cid integer NOT NULL,
    usn integer NOT NULL,
    ease integer NOT NULL,
    ivl integer NOT NULL,
    lastIvl integer NOT NULL,
    factor integer NOT NULL,
    time integer NOT NULL,
    type integer NOT NULL
);
CREATE INDEX ix_notes_usn ON notes (usn);
CREATE INDEX ix_cards_usn ON cards (usn);
CREATE INDEX ix_revlog_usn ON revlog (usn);
CREATE INDEX ix_cards_nid ON cards (nid);
CREATE INDEX ix_cards_sched ON cards (did, queue, due);
CREATE INDEX ix_revlog_cid ON revlog (cid);
CREATE INDEX ix_notes_csum ON notes (csum);
`

const legacyTablesDDL = `
CREATE TABLE graves (
    usn integer NOT NULL,
    oid integer NOT NULL,
    type integer NOT NULL
);
`

const modernTablesDDL = `
CREATE TABLE graves (
    oid integer NOT NULL,
    type integer NOT NULL,
    usn integer NOT NULL,
    PRIMARY KEY (oid, type)
) WITHOUT ROWID;
CREATE TABLE deck_config (
    id integer PRIMARY KEY NOT NULL,
    name text NOT NULL COLLATE unicase,
    mtime_secs integer NOT NULL,
    usn integer NOT NULL,
    config blob NOT NULL
);
CREATE TABLE config (
    KEY text NOT NULL PRIMARY KEY,
    usn integer NOT NULL,
    mtime_secs integer NOT NULL,
    val blob NOT NULL
) WITHOUT ROWID;
CREATE TABLE fields (
    ntid integer NOT NULL,
    ord integer NOT NULL,
    name text NOT NULL COLLATE unicase,
    config blob NOT NULL,
    PRIMARY KEY (ntid, ord)
) WITHOUT ROWID;
CREATE UNIQUE INDEX idx_fields_name_ntid ON fields (name, ntid);
CREATE TABLE templates (
    ntid integer NOT NULL,
    ord integer NOT NULL,
    name text NOT NULL COLLATE unicase,
    mtime_secs integer NOT NULL,
    usn integer NOT NULL,
    config blob NOT NULL,
    PRIMARY KEY (ntid, ord)
) WITHOUT ROWID;
CREATE UNIQUE INDEX idx_templates_name_ntid ON templates (name, ntid);
CREATE TABLE notetypes (
    id integer NOT NULL PRIMARY KEY,
    name text NOT NULL COLLATE unicase,
    mtime_secs integer NOT NULL,
    usn integer NOT NULL,
    config blob NOT NULL
);
CREATE UNIQUE INDEX idx_notetypes_name ON notetypes (name);
CREATE TABLE decks (
    id integer PRIMARY KEY NOT NULL,
    name text NOT NULL COLLATE unicase,
    mtime_secs integer NOT NULL,
    usn integer NOT NULL,
    common blob NOT NULL,
    kind blob NOT NULL
);
CREATE UNIQUE INDEX idx_decks_name ON decks (name);
CREATE TABLE tags (
    tag text NOT NULL PRIMARY KEY COLLATE unicase,
    usn integer NOT NULL,
    collapsed boolean NOT NULL,
    config blob NULL
) WITHOUT ROWID;
`

// CreateCollection creates an empty collection at path with a Default deck
// and the Basic and Cloze note types. An existing file is never overwritten.
func CreateCollection(ctx context.Context, path string, schema SchemaVersion) error {
	if schema != SchemaLegacy && schema != SchemaModern {
		return errors.Errorf("unsupported collection schema %d", schema)
	}
	if _, err := os.Stat(path); err == nil {
		return errors.Errorf("collection already exists: %s", path)
	}

	sqlDB, err := db.OpenSQLite(ctx, path, db.Options{Create: true})
	if err != nil {
		return errors.Wrap(err, "failed to create collection")
	}
	defer sqlDB.Close()

	now := time.Now()
	runner := db.NewMigrationRunner(sqlDB)
	migrations := []db.Migration{
		{
			Version:     1,
			Description: "create tables",
			Up: func(ctx context.Context, tx *sqlx.Tx) error {
				ddl := coreTablesDDL + legacyTablesDDL
				if schema == SchemaModern {
					ddl = coreTablesDDL + modernTablesDDL
				}
				_, err := tx.ExecContext(ctx, ddl)
				return err
			},
		},
		{
			Version:     2,
			Description: "seed default deck and note types",
			Up: func(ctx context.Context, tx *sqlx.Tx) error {
				if schema == SchemaModern {
					return seedModern(ctx, tx, now)
				}
				return seedLegacy(ctx, tx, now)
			},
		},
	}
	if err := runner.Run(ctx, migrations); err != nil {
		return errors.Wrap(err, "failed to create collection")
	}

	logger.G(ctx).WithField("collection", path).WithField("schema", schema.String()).Debug("created collection")
	return nil
}

func dayStart(now time.Time) int64 {
	y, m, d := now.Date()
	return time.Date(y, m, d, 4, 0, 0, 0, now.Location()).Unix()
}

func seedLegacy(ctx context.Context, tx *sqlx.Tx, now time.Time) error {
	models := map[string]any{}
	for _, nt := range stockNoteTypes {
		models[strconv.FormatInt(nt.ID, 10)] = legacyModelJSON(nt, now)
	}
	decks := map[string]any{
		strconv.FormatInt(DefaultDeckID, 10): map[string]any{
			"id": DefaultDeckID, "name": DefaultDeckName, "mod": now.Unix(), "usn": 0,
			"dyn": 0, "conf": 1, "desc": "", "collapsed": false, "browserCollapsed": false,
			"newToday": []int{0, 0}, "revToday": []int{0, 0}, "lrnToday": []int{0, 0}, "timeToday": []int{0, 0},
			"extendNew": 0, "extendRev": 0,
		},
	}
	dconf := map[string]any{
		"1": map[string]any{"id": 1, "name": "Default", "mod": 0, "usn": 0, "maxTaken": 60, "autoplay": true, "timer": 0, "replayq": true, "dyn": false},
	}
	conf := map[string]any{
		"nextPos": 1, "estTimes": true, "activeDecks": []int64{DefaultDeckID}, "sortType": "noteFld",
		"timeLim": 0, "sortBackwards": false, "addToCur": true, "curDeck": DefaultDeckID,
		"newSpread": 0, "dueCounts": true, "curModel": BasicNoteTypeID, "collapseTime": 1200,
	}

	values := make([]any, 0, 5)
	for _, v := range []any{conf, models, decks, dconf, map[string]int{}} {
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		values = append(values, string(b))
	}

	_, err := tx.ExecContext(ctx,
		`INSERT INTO col (id, crt, mod, scm, ver, dty, usn, ls, conf, models, decks, dconf, tags)
		 VALUES (1, ?, ?, ?, ?, 0, 0, 0, ?, ?, ?, ?, ?)`,
		append([]any{dayStart(now), now.UnixMilli(), now.UnixMilli(), int(SchemaLegacy)}, values...)...)
	return err
}

func legacyModelJSON(nt NoteType, now time.Time) map[string]any {
	flds := make([]map[string]any, len(nt.Fields))
	for i, name := range nt.Fields {
		flds[i] = map[string]any{
			"name": name, "ord": i, "sticky": false, "rtl": false,
			"font": "Arial", "size": 20, "media": []string{},
		}
	}
	tmpls := make([]map[string]any, len(nt.Templates))
	for i, t := range nt.Templates {
		tmpls[i] = map[string]any{
			"name": t.Name, "ord": t.Ord, "qfmt": t.QuestionFormat, "afmt": t.AnswerFormat,
			"bqfmt": "", "bafmt": "", "did": nil,
		}
	}
	return map[string]any{
		"id": nt.ID, "name": nt.Name, "type": int(nt.Kind), "mod": now.Unix(), "usn": 0,
		"sortf": nt.SortField, "did": DefaultDeckID, "tmpls": tmpls, "flds": flds,
		"css": defaultCSS, "latexPre": "", "latexPost": "", "tags": []string{}, "vers": []int{},
		"req": [][]any{{0, "any", []int{0}}},
	}
}

func seedModern(ctx context.Context, tx *sqlx.Tx, now time.Time) error {
	secs := now.Unix()
	_, err := tx.ExecContext(ctx,
		`INSERT INTO col (id, crt, mod, scm, ver, dty, usn, ls, conf, models, decks, dconf, tags)
		 VALUES (1, ?, ?, ?, ?, 0, 0, 0, '', '', '', '', '')`,
		dayStart(now), now.UnixMilli(), now.UnixMilli(), int(SchemaModern))
	if err != nil {
		return err
	}

	for _, nt := range stockNoteTypes {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO notetypes (id, name, mtime_secs, usn, config) VALUES (?, ?, ?, 0, ?)",
			nt.ID, nt.Name, secs, encodeNotetypeConfig(nt.Kind, nt.SortField, defaultCSS)); err != nil {
			return err
		}
		for i, name := range nt.Fields {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO fields (ntid, ord, name, config) VALUES (?, ?, ?, ?)",
				nt.ID, i, name, []byte{}); err != nil {
				return err
			}
		}
		for _, t := range nt.Templates {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO templates (ntid, ord, name, mtime_secs, usn, config) VALUES (?, ?, ?, ?, 0, ?)",
				nt.ID, t.Ord, t.Name, secs, encodeTemplateConfig(t.QuestionFormat, t.AnswerFormat)); err != nil {
				return err
			}
		}
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO decks (id, name, mtime_secs, usn, common, kind) VALUES (?, ?, ?, 0, ?, ?)",
		DefaultDeckID, DefaultDeckName, secs, []byte{}, encodeNormalDeckKind(1)); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO deck_config (id, name, mtime_secs, usn, config) VALUES (1, 'Default', ?, 0, ?)",
		secs, []byte{}); err != nil {
		return err
	}
	for key, val := range map[string]string{
		"nextPos":  "1",
		"curDeck":  strconv.FormatInt(DefaultDeckID, 10),
		"curModel": strconv.FormatInt(BasicNoteTypeID, 10),
	} {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO config (KEY, usn, mtime_secs, val) VALUES (?, 0, ?, ?)",
			key, secs, []byte(val)); err != nil {
			return err
		}
	}
	return nil
}
