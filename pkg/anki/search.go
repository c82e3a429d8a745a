package anki

import (
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/gobwas/glob"

	"github.com/jingkaihe/skillkit/pkg/skillerr"
	"github.com/jingkaihe/skillkit/pkg/utils"
)

// The search language is a subset of Anki's browser search:
//
//	dog cat            both terms (AND)
//	dog or cat         either term
//	-dog               negation
//	(dog or cat) -x    grouping
//	"a phrase"         quoted text
//	deck:French*       deck name, subdecks included
//	tag:verb           tag, child tags included; tag:none
//	note:Basic         note type name
//	card:1 card:Card*  template ordinal or name
//	is:new|learn|review|due|suspended|buried
//	did: nid: cid: mid: comma separated ids
//	added:7            added in the last 7 days
//	Front:dog*         named field content
//
// "*" matches any run of characters and "_" a single character; a
// backslash makes either literal.

type tokenKind int

const (
	tokWord tokenKind = iota
	tokLParen
	tokRParen
	tokOr
	tokNot
)

type token struct {
	kind tokenKind
	text string
}

func tokenize(q string) ([]token, error) {
	var tokens []token
	runes := []rune(q)
	for i := 0; i < len(runes); {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
			continue
		case r == '(':
			tokens = append(tokens, token{kind: tokLParen})
			i++
			continue
		case r == ')':
			tokens = append(tokens, token{kind: tokRParen})
			i++
			continue
		case r == '-' && i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) && runes[i+1] != ')':
			tokens = append(tokens, token{kind: tokNot})
			i++
			continue
		}

		var sb strings.Builder
		quoted, inQuote := false, false
		for ; i < len(runes); i++ {
			r = runes[i]
			if !inQuote && (unicode.IsSpace(r) || r == '(' || r == ')') {
				break
			}
			if r == '"' {
				inQuote = !inQuote
				quoted = true
				continue
			}
			if r == '\\' && i+1 < len(runes) && runes[i+1] == '"' {
				sb.WriteRune('"')
				i++
				continue
			}
			sb.WriteRune(r)
		}
		if inQuote {
			return nil, skillerr.Format("invalid search %q: unterminated quote", q)
		}

		word := sb.String()
		switch {
		case !quoted && strings.EqualFold(word, "or"):
			tokens = append(tokens, token{kind: tokOr})
		case !quoted && strings.EqualFold(word, "and"):
		default:
			tokens = append(tokens, token{kind: tokWord, text: word})
		}
	}
	return tokens, nil
}

type expr interface{}

type andExpr []expr

type orExpr []expr

type notExpr struct{ x expr }

type termExpr struct {
	key   string
	value string
	// text terms have no key
	text bool
}

type parser struct {
	query  string
	tokens []token
	pos    int
}

// parseQuery parses q into an expression tree. An empty query yields nil,
// which matches every card.
func parseQuery(q string) (expr, error) {
	tokens, err := tokenize(q)
	if err != nil {
		return nil, err
	}
	p := &parser{query: q, tokens: tokens}
	e, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.pos < len(p.tokens) {
		return nil, p.errorf("unbalanced parentheses")
	}
	return e, nil
}

func (p *parser) errorf(format string, args ...any) error {
	return skillerr.Format("invalid search %q: "+format, append([]any{p.query}, args...)...)
}

func (p *parser) peek() (token, bool) {
	if p.pos >= len(p.tokens) {
		return token{}, false
	}
	return p.tokens[p.pos], true
}

func (p *parser) parseOr() (expr, error) {
	first, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	items := []expr{first}
	for {
		tok, ok := p.peek()
		if !ok || tok.kind != tokOr {
			break
		}
		p.pos++
		next, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		if first == nil || next == nil {
			return nil, p.errorf("\"or\" needs a term on both sides")
		}
		items = append(items, next)
	}
	if len(items) == 1 {
		return first, nil
	}
	return orExpr(items), nil
}

func (p *parser) parseAnd() (expr, error) {
	var items []expr
	for {
		tok, ok := p.peek()
		if !ok || tok.kind == tokRParen || tok.kind == tokOr {
			break
		}
		e, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	switch len(items) {
	case 0:
		return nil, nil
	case 1:
		return items[0], nil
	default:
		return andExpr(items), nil
	}
}

func (p *parser) parseUnary() (expr, error) {
	tok, _ := p.peek()
	p.pos++
	switch tok.kind {
	case tokNot:
		next, ok := p.peek()
		if !ok || next.kind == tokRParen || next.kind == tokOr {
			return nil, p.errorf("\"-\" must be followed by a term")
		}
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return notExpr{x: x}, nil
	case tokLParen:
		e, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		closing, ok := p.peek()
		if !ok || closing.kind != tokRParen {
			return nil, p.errorf("unbalanced parentheses")
		}
		p.pos++
		if e == nil {
			return nil, p.errorf("empty parentheses")
		}
		return e, nil
	case tokRParen:
		return nil, p.errorf("unbalanced parentheses")
	default:
		return parseTerm(tok.text), nil
	}
}

func parseTerm(word string) termExpr {
	for i := 0; i < len(word); i++ {
		switch word[i] {
		case '\\':
			i++
		case ':':
			if i == 0 {
				return termExpr{value: word, text: true}
			}
			return termExpr{key: word[:i], value: word[i+1:]}
		}
	}
	return termExpr{value: word, text: true}
}

// searchCard is a card row prepared for matching.
type searchCard struct {
	row    *dbCardRow
	fields []string
	tags   []string
}

func newSearchCard(row *dbCardRow) *searchCard {
	return &searchCard{
		row:    row,
		fields: strings.Split(row.Fields, fieldSeparator),
		tags:   splitTags(row.Tags),
	}
}

type matcher func(*searchCard) bool

func matchAll(*searchCard) bool { return true }

// searchEnv is the collection state terms are compiled against.
type searchEnv struct {
	cat *catalog
	// today is the scheduler day number, counted from collection creation.
	today int64
	now   time.Time
}

func (c *Collection) searchEnv() *searchEnv {
	now := c.now()
	today := int64(0)
	if c.created > 0 {
		today = (now.Unix() - c.created) / 86400
	}
	return &searchEnv{cat: c.cat, today: today, now: now}
}

func compileQuery(q string, env *searchEnv) (matcher, error) {
	e, err := parseQuery(q)
	if err != nil {
		return nil, err
	}
	return env.compile(q, e)
}

func (env *searchEnv) compile(q string, e expr) (matcher, error) {
	switch x := e.(type) {
	case nil:
		return matchAll, nil
	case andExpr:
		ms, err := env.compileAll(q, x)
		if err != nil {
			return nil, err
		}
		return func(c *searchCard) bool {
			for _, m := range ms {
				if !m(c) {
					return false
				}
			}
			return true
		}, nil
	case orExpr:
		ms, err := env.compileAll(q, x)
		if err != nil {
			return nil, err
		}
		return func(c *searchCard) bool {
			for _, m := range ms {
				if m(c) {
					return true
				}
			}
			return false
		}, nil
	case notExpr:
		m, err := env.compile(q, x.x)
		if err != nil {
			return nil, err
		}
		return func(c *searchCard) bool { return !m(c) }, nil
	case termExpr:
		return env.compileTerm(q, x)
	default:
		return nil, skillerr.Format("invalid search %q", q)
	}
}

func (env *searchEnv) compileAll(q string, es []expr) ([]matcher, error) {
	ms := make([]matcher, 0, len(es))
	for _, e := range es {
		m, err := env.compile(q, e)
		if err != nil {
			return nil, err
		}
		ms = append(ms, m)
	}
	return ms, nil
}

// unsupportedKeys are Anki search keys this subset rejects rather than
// treating them as field names.
var unsupportedKeys = map[string]bool{
	"prop": true, "rated": true, "re": true, "nc": true, "flag": true,
	"dupe": true, "introduced": true, "resched": true, "preset": true, "edited": true,
}

func (env *searchEnv) compileTerm(q string, t termExpr) (matcher, error) {
	if t.text {
		return env.textMatcher(q, t.value)
	}

	switch key := strings.ToLower(t.key); key {
	case "deck":
		return env.deckMatcher(q, t.value)
	case "tag":
		return tagMatcher(q, t.value)
	case "note":
		return env.noteTypeMatcher(q, t.value)
	case "card":
		return env.cardMatcher(q, t.value)
	case "is":
		return env.stateMatcher(q, t.value)
	case "did", "nid", "cid", "mid":
		return idMatcher(q, key, t.value)
	case "added":
		return env.addedMatcher(q, t.value)
	default:
		if unsupportedKeys[key] {
			return nil, skillerr.Format("invalid search %q: %s: searches are not supported", q, key)
		}
		return env.fieldMatcher(q, t.key, t.value)
	}
}

func compilePattern(q, pattern string) (glob.Glob, error) {
	g, err := glob.Compile(toGlob(strings.ToLower(pattern)))
	if err != nil {
		return nil, skillerr.FormatWrap(err, "invalid search %q", q)
	}
	return g, nil
}

// toGlob translates Anki wildcards into gobwas/glob syntax.
func toGlob(pattern string) string {
	var sb strings.Builder
	runes := []rune(pattern)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch r {
		case '\\':
			if i+1 < len(runes) {
				i++
				sb.WriteString(glob.QuoteMeta(string(runes[i])))
			} else {
				sb.WriteString(`\\`)
			}
		case '*':
			sb.WriteRune('*')
		case '_':
			sb.WriteRune('?')
		default:
			sb.WriteString(glob.QuoteMeta(string(r)))
		}
	}
	return sb.String()
}

// hierarchyMatcher matches a name or any of its "::" descendants.
func hierarchyMatcher(q, pattern string) (func(string) bool, error) {
	self, err := compilePattern(q, pattern)
	if err != nil {
		return nil, err
	}
	children, err := compilePattern(q, pattern+DeckSeparator+"*")
	if err != nil {
		return nil, err
	}
	return func(name string) bool {
		name = strings.ToLower(name)
		return self.Match(name) || children.Match(name)
	}, nil
}

func (env *searchEnv) deckMatcher(q, value string) (matcher, error) {
	if value == "*" {
		return matchAll, nil
	}
	match, err := hierarchyMatcher(q, value)
	if err != nil {
		return nil, err
	}
	ids := make(map[int64]bool)
	for id, d := range env.cat.decks {
		if match(d.Name) {
			ids[id] = true
		}
	}
	return func(c *searchCard) bool {
		return ids[c.row.DeckID] || (c.row.OrigDeckID != 0 && ids[c.row.OrigDeckID])
	}, nil
}

func tagMatcher(q, value string) (matcher, error) {
	if strings.EqualFold(value, "none") {
		return func(c *searchCard) bool { return len(c.tags) == 0 }, nil
	}
	match, err := hierarchyMatcher(q, value)
	if err != nil {
		return nil, err
	}
	return func(c *searchCard) bool {
		for _, tag := range c.tags {
			if match(tag) {
				return true
			}
		}
		return false
	}, nil
}

func (env *searchEnv) noteTypeMatcher(q, value string) (matcher, error) {
	g, err := compilePattern(q, value)
	if err != nil {
		return nil, err
	}
	ids := make(map[int64]bool)
	for id, nt := range env.cat.noteTypes {
		if g.Match(strings.ToLower(nt.Name)) {
			ids[id] = true
		}
	}
	return func(c *searchCard) bool { return ids[c.row.NoteTypeID] }, nil
}

type templateKey struct {
	noteTypeID int64
	ord        int
}

func (env *searchEnv) cardMatcher(q, value string) (matcher, error) {
	if n, err := strconv.Atoi(value); err == nil {
		return func(c *searchCard) bool { return c.row.Ord == n-1 }, nil
	}
	g, err := compilePattern(q, value)
	if err != nil {
		return nil, err
	}
	keys := make(map[templateKey]bool)
	for id, nt := range env.cat.noteTypes {
		if nt.Kind == KindCloze {
			continue
		}
		for _, t := range nt.Templates {
			if g.Match(strings.ToLower(t.Name)) {
				keys[templateKey{id, t.Ord}] = true
			}
		}
	}
	return func(c *searchCard) bool { return keys[templateKey{c.row.NoteTypeID, c.row.Ord}] }, nil
}

func (env *searchEnv) stateMatcher(q, value string) (matcher, error) {
	switch strings.ToLower(value) {
	case "new":
		return func(c *searchCard) bool { return c.row.Type == CardTypeNew }, nil
	case "learn":
		return func(c *searchCard) bool {
			return c.row.Queue == QueueLearning || c.row.Queue == QueueDayLearning
		}, nil
	case "review":
		return func(c *searchCard) bool {
			return c.row.Type == CardTypeReview || c.row.Type == CardTypeRelearning
		}, nil
	case "due":
		nowSecs := env.now.Unix()
		return func(c *searchCard) bool {
			switch c.row.Queue {
			case QueueReview, QueueDayLearning:
				return c.row.Due <= env.today
			case QueueLearning:
				return c.row.Due <= nowSecs
			}
			return false
		}, nil
	case "suspended":
		return func(c *searchCard) bool { return c.row.Queue == QueueSuspended }, nil
	case "buried":
		return func(c *searchCard) bool {
			return c.row.Queue == QueueUserBuried || c.row.Queue == QueueSchedBuried
		}, nil
	default:
		return nil, skillerr.Format("invalid search %q: unknown state is:%s", q, value)
	}
}

func idMatcher(q, key, value string) (matcher, error) {
	ids := make(map[int64]bool)
	for _, part := range strings.Split(value, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return nil, skillerr.Format("invalid search %q: %s: expects comma separated ids", q, key)
		}
		ids[id] = true
	}

	var get func(*dbCardRow) int64
	switch key {
	case "did":
		return func(c *searchCard) bool {
			return ids[c.row.DeckID] || (c.row.OrigDeckID != 0 && ids[c.row.OrigDeckID])
		}, nil
	case "nid":
		get = func(r *dbCardRow) int64 { return r.NoteID }
	case "cid":
		get = func(r *dbCardRow) int64 { return r.ID }
	default:
		get = func(r *dbCardRow) int64 { return r.NoteTypeID }
	}
	return func(c *searchCard) bool { return ids[get(c.row)] }, nil
}

func (env *searchEnv) addedMatcher(q, value string) (matcher, error) {
	days, err := strconv.Atoi(value)
	if err != nil || days < 1 {
		return nil, skillerr.Format("invalid search %q: added: expects a positive number of days", q)
	}
	cutoff := env.now.Add(-time.Duration(days) * 24 * time.Hour).UnixMilli()
	return func(c *searchCard) bool { return c.row.ID >= cutoff }, nil
}

func (env *searchEnv) fieldMatcher(q, name, value string) (matcher, error) {
	g, err := compilePattern(q, value)
	if err != nil {
		return nil, err
	}
	fieldName := strings.ReplaceAll(name, `\:`, ":")
	index := make(map[int64]int)
	for id, nt := range env.cat.noteTypes {
		if i := nt.FieldIndex(fieldName); i >= 0 {
			index[id] = i
		}
	}
	return func(c *searchCard) bool {
		i, ok := index[c.row.NoteTypeID]
		if !ok || i >= len(c.fields) {
			return false
		}
		return g.Match(strings.ToLower(c.fields[i]))
	}, nil
}

func (env *searchEnv) textMatcher(q, value string) (matcher, error) {
	if value == "" || value == "*" {
		return matchAll, nil
	}
	g, err := compilePattern(q, "*"+value+"*")
	if err != nil {
		return nil, err
	}
	return func(c *searchCard) bool {
		for _, f := range c.fields {
			if g.Match(strings.ToLower(utils.StripHTML(f))) {
				return true
			}
		}
		return false
	}, nil
}
