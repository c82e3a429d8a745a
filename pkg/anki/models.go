package anki

import (
	"database/sql/driver"
	"encoding/json"
	"sort"
	"strconv"

	"github.com/pkg/errors"
)

// JSONField is a generic type for handling JSON marshaling/unmarshaling in database
type JSONField[T any] struct {
	Data T
}

// Scan implements the sql.Scanner interface for reading from database
func (j *JSONField[T]) Scan(value any) error {
	if value == nil {
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.Errorf("cannot scan %T into JSONField", value)
		}
		bytes = []byte(str)
	}
	if len(bytes) == 0 {
		return nil
	}

	return json.Unmarshal(bytes, &j.Data)
}

// Value implements the driver.Valuer interface for writing to database
func (j JSONField[T]) Value() (driver.Value, error) {
	b, err := json.Marshal(j.Data)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// legacyModel is a note type as stored in col.models.
type legacyModel struct {
	Name  string           `json:"name"`
	Type  int              `json:"type"`
	SortF int              `json:"sortf"`
	Tmpls []legacyTemplate `json:"tmpls"`
	Flds  []legacyField    `json:"flds"`
}

type legacyTemplate struct {
	Name string `json:"name"`
	Ord  int    `json:"ord"`
	Qfmt string `json:"qfmt"`
	Afmt string `json:"afmt"`
}

type legacyField struct {
	Name string `json:"name"`
	Ord  int    `json:"ord"`
}

// legacyDeck is a deck as stored in col.decks.
type legacyDeck struct {
	Name string `json:"name"`
	Dyn  int    `json:"dyn"`
}

// dbLegacyCol holds the JSON columns of the col table in a legacy collection.
type dbLegacyCol struct {
	Models JSONField[map[string]legacyModel] `db:"models"`
	Decks  JSONField[map[string]legacyDeck]  `db:"decks"`
}

func (m legacyModel) toNoteType(id int64) NoteType {
	flds := append([]legacyField(nil), m.Flds...)
	sort.SliceStable(flds, func(i, j int) bool { return flds[i].Ord < flds[j].Ord })
	tmpls := append([]legacyTemplate(nil), m.Tmpls...)
	sort.SliceStable(tmpls, func(i, j int) bool { return tmpls[i].Ord < tmpls[j].Ord })

	nt := NoteType{
		ID:        id,
		Name:      m.Name,
		Kind:      NoteTypeKind(m.Type),
		SortField: m.SortF,
	}
	for _, f := range flds {
		nt.Fields = append(nt.Fields, f.Name)
	}
	for _, t := range tmpls {
		nt.Templates = append(nt.Templates, Template{
			Ord:            t.Ord,
			Name:           t.Name,
			QuestionFormat: t.Qfmt,
			AnswerFormat:   t.Afmt,
		})
	}
	return nt
}

// dbCardRow is a card joined with the note columns search needs.
type dbCardRow struct {
	ID         int64  `db:"id"`
	NoteID     int64  `db:"nid"`
	DeckID     int64  `db:"did"`
	OrigDeckID int64  `db:"odid"`
	Ord        int    `db:"ord"`
	Type       int    `db:"type"`
	Queue      int    `db:"queue"`
	Due        int64  `db:"due"`
	Interval   int64  `db:"ivl"`
	NoteTypeID int64  `db:"mid"`
	Tags       string `db:"tags"`
	Fields     string `db:"flds"`
}

func (r *dbCardRow) toCard() Card {
	return Card{
		ID:         r.ID,
		NoteID:     r.NoteID,
		DeckID:     r.DeckID,
		OrigDeckID: r.OrigDeckID,
		Ord:        r.Ord,
		Type:       r.Type,
		Queue:      r.Queue,
		Due:        r.Due,
		Interval:   r.Interval,
	}
}

// dbNote is a row of the notes table.
type dbNote struct {
	ID     int64  `db:"id"`
	GUID   string `db:"guid"`
	MID    int64  `db:"mid"`
	Mod    int64  `db:"mod"`
	Tags   string `db:"tags"`
	Fields string `db:"flds"`
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid id %q", s)
	}
	return id, nil
}
