package anki

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"modernc.org/sqlite"

	"github.com/jingkaihe/skillkit/pkg/db"
	"github.com/jingkaihe/skillkit/pkg/logger"
	"github.com/jingkaihe/skillkit/pkg/skillerr"
	"github.com/jingkaihe/skillkit/pkg/utils"
)

// Anki declares text columns of modern collections with this collation.
const unicaseCollation = "unicase"

func init() {
	sqlite.MustRegisterCollationUtf8(unicaseCollation, func(left, right string) int {
		return strings.Compare(strings.ToLower(left), strings.ToLower(right))
	})
}

// ankiProcessNames are executable names of the Anki desktop app.
var ankiProcessNames = []string{"anki", "AnkiMac"}

// OpenOptions controls how a collection is opened.
type OpenOptions struct {
	// ReadOnly opens the file without write access; AddNote and Save fail.
	ReadOnly bool
	// CheckRunning refuses to open for writing while the Anki app runs.
	CheckRunning bool
}

// Collection is an open Anki collection.
type Collection struct {
	path     string
	db       *sqlx.DB
	schema   SchemaVersion
	readOnly bool
	created  int64
	cat      *catalog
	pending  []*pendingNote
	now      func() time.Time
	log      *logrus.Entry
}

// Open opens the collection at path. Callers must Close it.
func Open(ctx context.Context, path string, opts OpenOptions) (*Collection, error) {
	log := logger.G(ctx).WithField("collection", path)

	if !fileExists(path) {
		return nil, skillerr.NotFound("collection file not found: %s", path)
	}

	if opts.CheckRunning && !opts.ReadOnly {
		proc, err := utils.FindProcessByName(ctx, ankiProcessNames...)
		if err != nil {
			log.WithError(err).Debug("could not check for a running Anki process")
		} else if proc != nil {
			log.WithField("pid", proc.PID).WithField("process", proc.Name).Warn("Anki is running")
			return nil, skillerr.Locked(LockedMessage)
		}
	}

	sqlDB, err := db.OpenSQLite(ctx, path, db.Options{ReadOnly: opts.ReadOnly})
	if err != nil {
		return nil, classify(err, "Failed to open collection")
	}

	c := &Collection{
		path:     path,
		db:       sqlDB,
		readOnly: opts.ReadOnly,
		now:      time.Now,
		log:      log,
	}
	if err := c.load(ctx); err != nil {
		sqlDB.Close()
		return nil, err
	}

	log.WithField("schema", c.schema.String()).
		WithField("decks", len(c.cat.decks)).
		WithField("note_types", len(c.cat.noteTypes)).
		Debug("opened collection")
	return c, nil
}

func (c *Collection) load(ctx context.Context) error {
	hasCol, err := db.TableExists(ctx, c.db, "col")
	if err != nil {
		return classify(err, "Failed to open collection")
	}
	if !hasCol {
		return skillerr.Collaborator(nil, "Failed to open collection: %s is not an Anki collection", c.path)
	}

	var row struct {
		Crt int64 `db:"crt"`
		Ver int   `db:"ver"`
	}
	if err := c.db.GetContext(ctx, &row, "SELECT crt, ver FROM col LIMIT 1"); err != nil {
		return classify(err, "Failed to open collection")
	}
	c.created = row.Crt

	modern, err := db.TableExists(ctx, c.db, "notetypes")
	if err != nil {
		return classify(err, "Failed to open collection")
	}
	c.schema = SchemaLegacy
	if modern {
		c.schema = SchemaModern
	}

	cat, err := loadCatalog(ctx, c.db, c.schema)
	if err != nil {
		return classify(err, "Failed to open collection")
	}
	c.cat = cat
	return nil
}

// classify maps a storage error onto the skill error taxonomy.
func classify(err error, action string) error {
	if db.IsBusy(err) {
		return skillerr.Locked(LockedMessage)
	}
	return skillerr.Collaborator(err, "%s", action)
}

// Close releases the collection. Unsaved notes are discarded. Safe to call
// more than once.
func (c *Collection) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	if n := len(c.pending); n > 0 {
		c.log.WithField("notes", n).Warn("discarding unsaved notes")
		c.pending = nil
	}
	err := c.db.Close()
	c.db = nil
	if err != nil {
		return skillerr.Collaborator(err, "failed to close collection")
	}
	return nil
}

// Path returns the collection file path.
func (c *Collection) Path() string {
	return c.path
}

// Schema returns the detected on-disk layout.
func (c *Collection) Schema() SchemaVersion {
	return c.schema
}

// Decks returns all decks sorted by name.
func (c *Collection) Decks() []Deck {
	return c.cat.sortedDecks()
}

// DeckByName finds a deck by its full name, compared case-insensitively.
func (c *Collection) DeckByName(name string) (*Deck, error) {
	names := make([]string, 0, len(c.cat.decks))
	for _, d := range c.cat.decks {
		if strings.EqualFold(d.Name, name) {
			deck := *d
			return &deck, nil
		}
		names = append(names, d.Name)
	}

	msg := fmt.Sprintf("Deck not found: %s", name)
	if suggestion := utils.ClosestMatch(name, names); suggestion != "" {
		msg += fmt.Sprintf(" (did you mean %q?)", suggestion)
	}
	return nil, skillerr.NotFound("%s. Use list-decks to see available decks.", msg)
}

// DeckName returns the name of the deck with id, or "Unknown".
func (c *Collection) DeckName(id int64) string {
	if d, ok := c.cat.decks[id]; ok {
		return d.Name
	}
	return "Unknown"
}

// NoteTypes returns all note types sorted by name.
func (c *Collection) NoteTypes() []NoteType {
	return c.cat.sortedNoteTypes()
}

// NoteTypeByName finds a note type by name, compared case-insensitively. The
// error lists every available note type.
func (c *Collection) NoteTypeByName(name string) (*NoteType, error) {
	for _, nt := range c.cat.noteTypes {
		if strings.EqualFold(nt.Name, name) {
			found := *nt
			return &found, nil
		}
	}

	all := c.cat.sortedNoteTypes()
	names := make([]string, len(all))
	for i, nt := range all {
		names[i] = nt.Name
	}
	return nil, skillerr.NotFound("Note type not found: %s. Available note types: %s", name, utils.QuoteList(names))
}

// NoteType returns the note type with id.
func (c *Collection) NoteType(id int64) (*NoteType, bool) {
	nt, ok := c.cat.noteTypes[id]
	if !ok {
		return nil, false
	}
	found := *nt
	return &found, true
}
