package anki

import (
	"context"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

// catalog is the set of decks and note types loaded when a collection opens.
type catalog struct {
	decks     map[int64]*Deck
	noteTypes map[int64]*NoteType
}

func loadCatalog(ctx context.Context, db sqlx.QueryerContext, schema SchemaVersion) (*catalog, error) {
	if schema == SchemaModern {
		return loadModernCatalog(ctx, db)
	}
	return loadLegacyCatalog(ctx, db)
}

func loadLegacyCatalog(ctx context.Context, db sqlx.QueryerContext) (*catalog, error) {
	var col dbLegacyCol
	if err := sqlx.GetContext(ctx, db, &col, "SELECT models, decks FROM col LIMIT 1"); err != nil {
		return nil, errors.Wrap(err, "failed to read note types and decks")
	}

	c := &catalog{decks: map[int64]*Deck{}, noteTypes: map[int64]*NoteType{}}
	for key, m := range col.Models.Data {
		id, err := parseID(key)
		if err != nil {
			return nil, errors.Wrap(err, "invalid note type")
		}
		nt := m.toNoteType(id)
		c.noteTypes[id] = &nt
	}
	for key, d := range col.Decks.Data {
		id, err := parseID(key)
		if err != nil {
			return nil, errors.Wrap(err, "invalid deck")
		}
		c.decks[id] = &Deck{ID: id, Name: d.Name, Filtered: d.Dyn != 0}
	}
	return c, nil
}

type dbNotetype struct {
	ID     int64  `db:"id"`
	Name   string `db:"name"`
	Config []byte `db:"config"`
}

type dbField struct {
	NoteTypeID int64  `db:"ntid"`
	Ord        int    `db:"ord"`
	Name       string `db:"name"`
}

type dbTemplate struct {
	NoteTypeID int64  `db:"ntid"`
	Ord        int    `db:"ord"`
	Name       string `db:"name"`
	Config     []byte `db:"config"`
}

type dbDeck struct {
	ID   int64  `db:"id"`
	Name string `db:"name"`
	Kind []byte `db:"kind"`
}

func loadModernCatalog(ctx context.Context, db sqlx.QueryerContext) (*catalog, error) {
	c := &catalog{decks: map[int64]*Deck{}, noteTypes: map[int64]*NoteType{}}

	var notetypes []dbNotetype
	if err := sqlx.SelectContext(ctx, db, &notetypes, "SELECT id, name, config FROM notetypes"); err != nil {
		return nil, errors.Wrap(err, "failed to read note types")
	}
	for _, row := range notetypes {
		cfg, err := decodeNotetypeConfig(row.Config)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid config for note type %q", row.Name)
		}
		c.noteTypes[row.ID] = &NoteType{ID: row.ID, Name: row.Name, Kind: cfg.kind, SortField: cfg.sortField}
	}

	var fields []dbField
	if err := sqlx.SelectContext(ctx, db, &fields, "SELECT ntid, ord, name FROM fields ORDER BY ntid, ord"); err != nil {
		return nil, errors.Wrap(err, "failed to read note type fields")
	}
	for _, f := range fields {
		if nt, ok := c.noteTypes[f.NoteTypeID]; ok {
			nt.Fields = append(nt.Fields, f.Name)
		}
	}

	var templates []dbTemplate
	if err := sqlx.SelectContext(ctx, db, &templates, "SELECT ntid, ord, name, config FROM templates ORDER BY ntid, ord"); err != nil {
		return nil, errors.Wrap(err, "failed to read card templates")
	}
	for _, t := range templates {
		nt, ok := c.noteTypes[t.NoteTypeID]
		if !ok {
			continue
		}
		qfmt, afmt, err := decodeTemplateConfig(t.Config)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid config for template %q of %q", t.Name, nt.Name)
		}
		nt.Templates = append(nt.Templates, Template{Ord: t.Ord, Name: t.Name, QuestionFormat: qfmt, AnswerFormat: afmt})
	}

	var decks []dbDeck
	if err := sqlx.SelectContext(ctx, db, &decks, "SELECT id, name, kind FROM decks"); err != nil {
		return nil, errors.Wrap(err, "failed to read decks")
	}
	for _, d := range decks {
		filtered, err := decodeDeckKind(d.Kind)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid kind for deck %q", d.Name)
		}
		c.decks[d.ID] = &Deck{
			ID:       d.ID,
			Name:     strings.ReplaceAll(d.Name, "\x1f", DeckSeparator),
			Filtered: filtered,
		}
	}
	return c, nil
}

func (c *catalog) sortedDecks() []Deck {
	out := make([]Deck, 0, len(c.decks))
	for _, d := range c.decks {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (c *catalog) sortedNoteTypes() []NoteType {
	out := make([]NoteType, 0, len(c.noteTypes))
	for _, nt := range c.noteTypes {
		out = append(out, *nt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Protobuf field numbers of the config messages stored by modern collections.
const (
	notetypeKindField      protowire.Number = 1
	notetypeSortFieldField protowire.Number = 2
	notetypeCSSField       protowire.Number = 3

	templateQFormatField protowire.Number = 1
	templateAFormatField protowire.Number = 2

	deckKindNormalField   protowire.Number = 1
	deckKindFilteredField protowire.Number = 2
	deckNormalConfigField protowire.Number = 1
)

type notetypeConfig struct {
	kind      NoteTypeKind
	sortField int
}

func decodeNotetypeConfig(b []byte) (notetypeConfig, error) {
	var cfg notetypeConfig
	err := walkMessage(b, func(num protowire.Number, typ protowire.Type, v uint64, _ []byte) {
		if typ != protowire.VarintType {
			return
		}
		switch num {
		case notetypeKindField:
			cfg.kind = NoteTypeKind(v)
		case notetypeSortFieldField:
			cfg.sortField = int(v)
		}
	})
	return cfg, err
}

func decodeTemplateConfig(b []byte) (qfmt, afmt string, err error) {
	err = walkMessage(b, func(num protowire.Number, typ protowire.Type, _ uint64, raw []byte) {
		if typ != protowire.BytesType {
			return
		}
		switch num {
		case templateQFormatField:
			qfmt = string(raw)
		case templateAFormatField:
			afmt = string(raw)
		}
	})
	return qfmt, afmt, err
}

func decodeDeckKind(b []byte) (filtered bool, err error) {
	err = walkMessage(b, func(num protowire.Number, typ protowire.Type, _ uint64, _ []byte) {
		if num == deckKindFilteredField && typ == protowire.BytesType {
			filtered = true
		}
	})
	return filtered, err
}

// walkMessage calls fn for every top-level field of a protobuf message.
// Varint fields pass their value, length-delimited fields their payload.
func walkMessage(b []byte, fn func(num protowire.Number, typ protowire.Type, varint uint64, raw []byte)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		switch typ {
		case protowire.VarintType:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return protowire.ParseError(m)
			}
			fn(num, typ, v, nil)
			b = b[m:]
		case protowire.BytesType:
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return protowire.ParseError(m)
			}
			fn(num, typ, 0, v)
			b = b[m:]
		default:
			m := protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return protowire.ParseError(m)
			}
			b = b[m:]
		}
	}
	return nil
}

func encodeNotetypeConfig(kind NoteTypeKind, sortField int, css string) []byte {
	var b []byte
	if kind != KindStandard {
		b = protowire.AppendTag(b, notetypeKindField, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(kind))
	}
	if sortField != 0 {
		b = protowire.AppendTag(b, notetypeSortFieldField, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(sortField))
	}
	if css != "" {
		b = protowire.AppendTag(b, notetypeCSSField, protowire.BytesType)
		b = protowire.AppendString(b, css)
	}
	return b
}

func encodeTemplateConfig(qfmt, afmt string) []byte {
	var b []byte
	b = protowire.AppendTag(b, templateQFormatField, protowire.BytesType)
	b = protowire.AppendString(b, qfmt)
	b = protowire.AppendTag(b, templateAFormatField, protowire.BytesType)
	b = protowire.AppendString(b, afmt)
	return b
}

func encodeNormalDeckKind(configID int64) []byte {
	var normal []byte
	normal = protowire.AppendTag(normal, deckNormalConfigField, protowire.VarintType)
	normal = protowire.AppendVarint(normal, uint64(configID))

	var b []byte
	b = protowire.AppendTag(b, deckKindNormalField, protowire.BytesType)
	return protowire.AppendBytes(b, normal)
}
