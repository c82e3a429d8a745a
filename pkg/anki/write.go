package anki

import (
	"context"
	"crypto/sha1"
	"encoding/binary"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jingkaihe/skillkit/pkg/fieldmap"
	"github.com/jingkaihe/skillkit/pkg/skillerr"
	"github.com/jingkaihe/skillkit/pkg/utils"
)

const fieldSeparator = "\x1f"

// pendingNote is a note accepted by AddNote but not yet saved.
type pendingNote struct {
	deckID   int64
	noteType *NoteType
	fields   []string
	tags     []string
	ords     []int
	guid     string
}

// AddNote validates a note built from mapping and buffers it for Save.
// Mapping keys must be field names of nt; omitted fields are left empty.
func (c *Collection) AddNote(deckID int64, nt *NoteType, mapping *fieldmap.Mapping, tags []string) error {
	if c.readOnly {
		return skillerr.Collaborator(nil, "collection %s was opened read-only", c.path)
	}
	deck, ok := c.cat.decks[deckID]
	if !ok {
		return skillerr.NotFound("deck not found: %d", deckID)
	}
	if deck.Filtered {
		return skillerr.Collaborator(nil, "cannot add cards to filtered deck %q", deck.Name)
	}
	stored, ok := c.cat.noteTypes[nt.ID]
	if !ok {
		return skillerr.NotFound("note type not found: %s", nt.Name)
	}

	fields := make([]string, len(stored.Fields))
	for _, key := range mapping.Keys() {
		idx := indexOf(stored.Fields, key)
		if idx < 0 {
			return skillerr.SchemaMismatch("field %q is not in note type %q; valid fields: %s",
				key, stored.Name, utils.QuoteList(stored.Fields))
		}
		fields[idx], _ = mapping.Get(key)
	}

	ords := generateCards(stored, fields)
	if len(ords) == 0 {
		// Like Anki's add_note, a note whose fronts all render empty still
		// gets the first card.
		if len(stored.Templates) == 0 {
			return skillerr.Collaborator(nil, "note type %q has no card templates", stored.Name)
		}
		ords = []int{fallbackOrd(stored)}
		c.log.WithField("note_type", stored.Name).WithField("ord", ords[0]).Debug("no template rendered, adding first card")
	}

	c.pending = append(c.pending, &pendingNote{
		deckID:   deckID,
		noteType: stored,
		fields:   fields,
		tags:     NormalizeTags(tags),
		ords:     ords,
		guid:     newGUID(),
	})
	return nil
}

// Pending returns the number of notes waiting for Save.
func (c *Collection) Pending() int {
	return len(c.pending)
}

// Save writes every pending note and its cards in one transaction. On
// failure nothing is written and the pending notes are kept.
func (c *Collection) Save(ctx context.Context) (err error) {
	if len(c.pending) == 0 {
		return nil
	}
	if c.readOnly {
		return skillerr.Collaborator(nil, "collection %s was opened read-only", c.path)
	}

	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return classify(err, "Failed to save collection")
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	now := c.now()
	nowMs, nowSecs := now.UnixMilli(), now.Unix()

	var maxNoteID, maxCardID, maxDue int64
	if err = tx.GetContext(ctx, &maxNoteID, "SELECT COALESCE(MAX(id), 0) FROM notes"); err != nil {
		return classify(err, "Failed to save collection")
	}
	if err = tx.GetContext(ctx, &maxCardID, "SELECT COALESCE(MAX(id), 0) FROM cards"); err != nil {
		return classify(err, "Failed to save collection")
	}
	if err = tx.GetContext(ctx, &maxDue, "SELECT COALESCE(MAX(due), 0) FROM cards WHERE type = ?", CardTypeNew); err != nil {
		return classify(err, "Failed to save collection")
	}

	noteID := max(nowMs, maxNoteID+1)
	cardID := max(nowMs, maxCardID+1)
	due := maxDue + 1

	var allTags []string
	cards := 0
	for _, p := range c.pending {
		sortIdx := p.noteType.SortField
		if sortIdx < 0 || sortIdx >= len(p.fields) {
			sortIdx = 0
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO notes (id, guid, mid, mod, usn, tags, flds, sfld, csum, flags, data)
			 VALUES (?, ?, ?, ?, -1, ?, ?, ?, ?, 0, '')`,
			noteID, p.guid, p.noteType.ID, nowSecs, joinTags(p.tags),
			strings.Join(p.fields, fieldSeparator), utils.StripHTML(p.fields[sortIdx]), fieldChecksum(p.fields[0]))
		if err != nil {
			return classify(err, "Failed to save collection")
		}

		for _, ord := range p.ords {
			_, err = tx.ExecContext(ctx,
				`INSERT INTO cards (id, nid, did, ord, mod, usn, type, queue, due, ivl, factor, reps, lapses, left, odue, odid, flags, data)
				 VALUES (?, ?, ?, ?, ?, -1, ?, ?, ?, 0, 0, 0, 0, 0, 0, 0, 0, '')`,
				cardID, noteID, p.deckID, ord, nowSecs, CardTypeNew, QueueNew, due)
			if err != nil {
				return classify(err, "Failed to save collection")
			}
			cardID++
			cards++
		}

		allTags = append(allTags, p.tags...)
		noteID++
		due++
	}

	if err = c.registerTags(ctx, tx, NormalizeTags(allTags)); err != nil {
		return err
	}
	if err = c.bumpNextPos(ctx, tx, due, nowSecs); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, "UPDATE col SET mod = ?", nowMs); err != nil {
		return classify(err, "Failed to save collection")
	}

	if err = tx.Commit(); err != nil {
		return classify(err, "Failed to save collection")
	}

	c.log.WithField("notes", len(c.pending)).WithField("cards", cards).Info("saved notes")
	c.pending = nil
	return nil
}

func (c *Collection) registerTags(ctx context.Context, tx *sqlx.Tx, tags []string) error {
	if len(tags) == 0 {
		return nil
	}

	if c.schema == SchemaModern {
		for _, tag := range tags {
			if _, err := tx.ExecContext(ctx,
				"INSERT OR IGNORE INTO tags (tag, usn, collapsed, config) VALUES (?, -1, 0, NULL)", tag); err != nil {
				return classify(err, "Failed to save collection")
			}
		}
		return nil
	}

	var registry JSONField[map[string]int]
	if err := tx.GetContext(ctx, &registry, "SELECT tags FROM col LIMIT 1"); err != nil {
		return classify(err, "Failed to save collection")
	}
	if registry.Data == nil {
		registry.Data = map[string]int{}
	}
	known := make(map[string]bool, len(registry.Data))
	for t := range registry.Data {
		known[strings.ToLower(t)] = true
	}
	for _, tag := range tags {
		if !known[strings.ToLower(tag)] {
			registry.Data[tag] = -1
		}
	}
	if _, err := tx.ExecContext(ctx, "UPDATE col SET tags = ?", registry); err != nil {
		return classify(err, "Failed to save collection")
	}
	return nil
}

// bumpNextPos advances the collection's new card position counter when the
// collection tracks one.
func (c *Collection) bumpNextPos(ctx context.Context, tx *sqlx.Tx, next, nowSecs int64) error {
	if c.schema == SchemaModern {
		_, err := tx.ExecContext(ctx,
			"UPDATE config SET val = ?, usn = -1, mtime_secs = ? WHERE KEY = 'nextPos'",
			[]byte(strconv.FormatInt(next, 10)), nowSecs)
		if err != nil {
			return classify(err, "Failed to save collection")
		}
		return nil
	}

	var conf JSONField[map[string]any]
	if err := tx.GetContext(ctx, &conf, "SELECT conf FROM col LIMIT 1"); err != nil {
		return classify(err, "Failed to save collection")
	}
	if conf.Data == nil {
		return nil
	}
	if _, ok := conf.Data["nextPos"]; !ok {
		return nil
	}
	conf.Data["nextPos"] = next
	if _, err := tx.ExecContext(ctx, "UPDATE col SET conf = ?", conf); err != nil {
		return classify(err, "Failed to save collection")
	}
	return nil
}

var (
	templateRefRe = regexp.MustCompile(`\{\{([^{}]+)\}\}`)
	clozeRe       = regexp.MustCompile(`\{\{c(\d+)::`)
)

// specialFields are template references that are not note fields.
var specialFields = map[string]bool{
	"FrontSide": true, "Tags": true, "Type": true, "Deck": true,
	"Subdeck": true, "Card": true, "CardFlag": true, "CardID": true,
}

type fieldRef struct {
	name    string
	filters []string
}

// templateRefs lists the field references of a template, skipping
// conditional section markers and comments.
func templateRefs(format string) []fieldRef {
	var refs []fieldRef
	for _, m := range templateRefRe.FindAllStringSubmatch(format, -1) {
		inner := strings.TrimSpace(m[1])
		if inner == "" || strings.ContainsAny(inner[:1], "#^/!") {
			continue
		}
		parts := strings.Split(inner, ":")
		name := strings.TrimSpace(parts[len(parts)-1])
		if specialFields[name] {
			continue
		}
		refs = append(refs, fieldRef{name: name, filters: parts[:len(parts)-1]})
	}
	return refs
}

// generateCards returns the template ordinals of the cards a note produces.
func generateCards(nt *NoteType, fields []string) []int {
	if nt.Kind == KindCloze {
		return clozeOrdinals(nt, fields)
	}

	var ords []int
	for _, t := range nt.Templates {
		for _, ref := range templateRefs(renderSections(t.QuestionFormat, nt.Fields, fields)) {
			idx := indexOf(nt.Fields, ref.name)
			if idx >= 0 && !fieldIsEmpty(fields[idx]) {
				ords = append(ords, t.Ord)
				break
			}
		}
	}
	return ords
}

// fallbackOrd is the ordinal used when no template renders: c1 for cloze,
// otherwise the first template.
func fallbackOrd(nt *NoteType) int {
	if nt.Kind == KindCloze {
		return 0
	}
	first := nt.Templates[0].Ord
	for _, t := range nt.Templates[1:] {
		first = min(first, t.Ord)
	}
	return first
}

var sectionOpenRe = regexp.MustCompile(`\{\{([#^])\s*([^{}]+?)\s*\}\}`)

// renderSections resolves {{#Field}} and {{^Field}} sections against the note
// values, keeping the body of sections that would render.
func renderSections(format string, names, values []string) string {
	for {
		loc := sectionOpenRe.FindStringSubmatchIndex(format)
		if loc == nil {
			return format
		}
		kind := format[loc[2]:loc[3]]
		name := format[loc[4]:loc[5]]
		rest := format[loc[1]:]

		closeTag := "{{/" + name + "}}"
		end := strings.Index(rest, closeTag)
		if end < 0 {
			format = format[:loc[0]] + rest
			continue
		}
		body := rest[:end]
		idx := indexOf(names, name)
		filled := idx >= 0 && !fieldIsEmpty(values[idx])
		if (kind == "#") != filled {
			body = ""
		}
		format = format[:loc[0]] + body + rest[end+len(closeTag):]
	}
}

func clozeOrdinals(nt *NoteType, fields []string) []int {
	var sources []int
	if len(nt.Templates) > 0 {
		for _, ref := range templateRefs(nt.Templates[0].QuestionFormat) {
			for _, f := range ref.filters {
				if strings.TrimSpace(f) == "cloze" {
					if idx := indexOf(nt.Fields, ref.name); idx >= 0 {
						sources = append(sources, idx)
					}
				}
			}
		}
	}
	if len(sources) == 0 {
		for i := range fields {
			sources = append(sources, i)
		}
	}

	seen := make(map[int]bool)
	var ords []int
	for _, idx := range sources {
		for _, m := range clozeRe.FindAllStringSubmatch(fields[idx], -1) {
			n, err := strconv.Atoi(m[1])
			if err != nil || n < 1 || seen[n] {
				continue
			}
			seen[n] = true
			ords = append(ords, n-1)
		}
	}
	sort.Ints(ords)
	return ords
}

func fieldIsEmpty(v string) bool {
	if strings.Contains(strings.ToLower(v), "<img") {
		return false
	}
	return strings.TrimSpace(utils.StripHTML(v)) == ""
}

func indexOf(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}

// fieldChecksum is the duplicate check value Anki stores in notes.csum: the
// first 32 bits of the SHA-1 of the stripped first field.
func fieldChecksum(first string) int64 {
	sum := sha1.Sum([]byte(utils.StripHTML(first)))
	return int64(binary.BigEndian.Uint32(sum[:4]))
}

const guidAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!#$%&()*+,-./:;<=>?@[]^_`{|}~"

// newGUID returns a random note GUID in Anki's base91 form.
func newGUID() string {
	id := uuid.New()
	n := binary.BigEndian.Uint64(id[:8])
	if n == 0 {
		return string(guidAlphabet[0])
	}
	var buf []byte
	base := uint64(len(guidAlphabet))
	for n > 0 {
		buf = append(buf, guidAlphabet[n%base])
		n /= base
	}
	for i, j := 0, len(buf)-1; i < j; i, j = i+1, j-1 {
		buf[i], buf[j] = buf[j], buf[i]
	}
	return string(buf)
}
