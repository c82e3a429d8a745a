package anki

import (
	"context"
	"database/sql"
	"sort"
	"strings"

	"github.com/pkg/errors"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/jingkaihe/skillkit/pkg/skillerr"
)

const cardRowQuery = `
SELECT c.id, c.nid, c.did, c.odid, c.ord, c.type, c.queue, c.due, c.ivl,
       n.mid, n.tags, n.flds
FROM cards c
JOIN notes n ON n.id = c.nid`

// FindCards returns the ids of cards matching query, in creation order.
func (c *Collection) FindCards(ctx context.Context, query string) ([]int64, error) {
	cards, err := c.search(ctx, query)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, len(cards))
	for i, card := range cards {
		ids[i] = card.row.ID
	}
	return ids, nil
}

// FindNotes returns the ids of notes with at least one card matching query,
// in creation order.
func (c *Collection) FindNotes(ctx context.Context, query string) ([]int64, error) {
	cards, err := c.search(ctx, query)
	if err != nil {
		return nil, err
	}
	seen := make(map[int64]bool)
	var ids []int64
	for _, card := range cards {
		if !seen[card.row.NoteID] {
			seen[card.row.NoteID] = true
			ids = append(ids, card.row.NoteID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (c *Collection) search(ctx context.Context, query string) ([]*searchCard, error) {
	match, err := compileQuery(query, c.searchEnv())
	if err != nil {
		return nil, err
	}

	rows, err := c.db.QueryxContext(ctx, cardRowQuery+" ORDER BY c.id")
	if err != nil {
		return nil, classify(err, "failed to search collection")
	}
	defer rows.Close()

	var matched []*searchCard
	for rows.Next() {
		var row dbCardRow
		if err := rows.StructScan(&row); err != nil {
			return nil, classify(err, "failed to search collection")
		}
		card := newSearchCard(&row)
		if match(card) {
			matched = append(matched, card)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, "failed to search collection")
	}

	c.log.WithField("query", query).WithField("cards", len(matched)).Debug("searched collection")
	return matched, nil
}

// Note loads a note with its fields keyed by the note type's field names.
func (c *Collection) Note(ctx context.Context, id int64) (*Note, error) {
	var row dbNote
	err := c.db.GetContext(ctx, &row, "SELECT id, guid, mid, mod, tags, flds FROM notes WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, skillerr.NotFound("note not found: %d", id)
	}
	if err != nil {
		return nil, classify(err, "failed to read note")
	}

	nt, ok := c.cat.noteTypes[row.MID]
	if !ok {
		return nil, skillerr.Collaborator(nil, "note %d uses unknown note type %d", id, row.MID)
	}

	values := strings.Split(row.Fields, fieldSeparator)
	fields := orderedmap.New[string, string]()
	for i, name := range nt.Fields {
		v := ""
		if i < len(values) {
			v = values[i]
		}
		fields.Set(name, v)
	}

	return &Note{
		ID:         row.ID,
		GUID:       row.GUID,
		NoteTypeID: row.MID,
		Fields:     fields,
		Tags:       splitTags(row.Tags),
		Mod:        row.Mod,
	}, nil
}

// CardsOfNote returns the cards generated from a note ordered by template.
func (c *Collection) CardsOfNote(ctx context.Context, noteID int64) ([]Card, error) {
	var rows []dbCardRow
	err := c.db.SelectContext(ctx, &rows, cardRowQuery+" WHERE c.nid = ? ORDER BY c.ord, c.id", noteID)
	if err != nil {
		return nil, classify(err, "failed to read cards")
	}
	cards := make([]Card, len(rows))
	for i := range rows {
		cards[i] = rows[i].toCard()
	}
	return cards, nil
}

// Card loads a single card.
func (c *Collection) Card(ctx context.Context, id int64) (*Card, error) {
	var row dbCardRow
	err := c.db.GetContext(ctx, &row, cardRowQuery+" WHERE c.id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, skillerr.NotFound("card not found: %d", id)
	}
	if err != nil {
		return nil, classify(err, "failed to read card")
	}
	card := row.toCard()
	return &card, nil
}
