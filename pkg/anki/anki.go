// Package anki reads and writes a local Anki collection file.
//
// The collection is opened directly as a SQLite database. Both the legacy
// layout (note types and decks stored as JSON in the col table) and the
// modern layout (notetypes, fields, templates and decks tables with protobuf
// config blobs) are understood. New notes are buffered by AddNote and written
// in a single transaction by Save; existing notes and cards are never
// modified.
package anki

import (
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// DeckSeparator joins the components of a nested deck name.
const DeckSeparator = "::"

// LockedMessage is shown whenever another process holds the collection.
const LockedMessage = "Collection is locked. Close Anki and try again."

// SchemaVersion identifies the on-disk layout of a collection.
type SchemaVersion int

const (
	// SchemaLegacy stores note types, decks and tags as JSON in the col table (schema 11).
	SchemaLegacy SchemaVersion = 11
	// SchemaModern stores them in dedicated tables (schema 18).
	SchemaModern SchemaVersion = 18
)

func (s SchemaVersion) String() string {
	switch s {
	case SchemaLegacy:
		return "legacy"
	case SchemaModern:
		return "modern"
	default:
		return "unknown"
	}
}

// NoteTypeKind distinguishes standard note types from cloze note types.
type NoteTypeKind int

const (
	KindStandard NoteTypeKind = 0
	KindCloze    NoteTypeKind = 1
)

func (k NoteTypeKind) String() string {
	if k == KindCloze {
		return "Cloze"
	}
	return "Standard"
}

// Deck is a named grouping of cards.
type Deck struct {
	ID   int64
	Name string
	// Filtered decks are built from searches and cannot receive new cards.
	Filtered bool
}

// Template is one card template of a note type.
type Template struct {
	Ord            int
	Name           string
	QuestionFormat string
	AnswerFormat   string
}

// NoteType is the schema of a note: its ordered field names and templates.
type NoteType struct {
	ID        int64
	Name      string
	Kind      NoteTypeKind
	Fields    []string
	Templates []Template
	SortField int
}

// FieldIndex returns the position of the named field, matched
// case-insensitively, or -1.
func (nt *NoteType) FieldIndex(name string) int {
	for i, f := range nt.Fields {
		if strings.EqualFold(f, name) {
			return i
		}
	}
	return -1
}

// Note is a stored note with its fields in note type order.
type Note struct {
	ID         int64
	GUID       string
	NoteTypeID int64
	Fields     *orderedmap.OrderedMap[string, string]
	Tags       []string
	// Mod is the modification time in seconds.
	Mod int64
}

// Field returns the value of the named field.
func (n *Note) Field(name string) (string, bool) {
	return n.Fields.Get(name)
}

// FieldValues returns the field values in note type order.
func (n *Note) FieldValues() []string {
	values := make([]string, 0, n.Fields.Len())
	for pair := n.Fields.Oldest(); pair != nil; pair = pair.Next() {
		values = append(values, pair.Value)
	}
	return values
}

// Card queue and type values as stored by Anki.
const (
	CardTypeNew        = 0
	CardTypeLearning   = 1
	CardTypeReview     = 2
	CardTypeRelearning = 3

	QueueSchedBuried = -3
	QueueUserBuried  = -2
	QueueSuspended   = -1
	QueueNew         = 0
	QueueLearning    = 1
	QueueReview      = 2
	QueueDayLearning = 3
)

// Card is one reviewable card generated from a note.
type Card struct {
	ID     int64
	NoteID int64
	DeckID int64
	// OrigDeckID is set while the card sits in a filtered deck.
	OrigDeckID int64
	Ord        int
	Type       int
	Queue      int
	Due        int64
	Interval   int64
}

// joinTags renders tags the way the notes table stores them.
func joinTags(tags []string) string {
	if len(tags) == 0 {
		return ""
	}
	return " " + strings.Join(tags, " ") + " "
}

func splitTags(s string) []string {
	return strings.Fields(s)
}

// NormalizeTags trims tags, replaces inner whitespace with underscores and
// removes case-insensitive duplicates keeping the first spelling.
func NormalizeTags(tags []string) []string {
	var out []string
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = strings.Join(strings.Fields(t), "_")
		if t == "" {
			continue
		}
		key := strings.ToLower(t)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, t)
	}
	return out
}
