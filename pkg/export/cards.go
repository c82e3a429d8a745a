package export

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/pkg/errors"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/jingkaihe/skillkit/pkg/utils"
)

const missingField = "N/A"

// Card is one exported note with the deck of its first card.
type Card struct {
	NoteID   int64
	Fields   *orderedmap.OrderedMap[string, string]
	Tags     []string
	Deck     string
	NoteType string
}

// Front returns the Front field, else the first field.
func (c *Card) Front() string {
	return c.fieldOr("Front", 0)
}

// Back returns the Back field, else the second field.
func (c *Card) Back() string {
	return c.fieldOr("Back", 1)
}

func (c *Card) fieldOr(name string, position int) string {
	if c.Fields == nil {
		return missingField
	}
	if v, ok := c.Fields.Get(name); ok {
		return v
	}
	i := 0
	for pair := c.Fields.Oldest(); pair != nil; pair = pair.Next() {
		if i == position {
			return pair.Value
		}
		i++
	}
	return missingField
}

// orderedFields marshals note fields as a JSON object in note type order.
// The ordered map's own MarshalJSON escapes <, > and & and renders an empty
// map as null; field values are HTML and an empty note still has {} fields.
type orderedFields struct {
	om *orderedmap.OrderedMap[string, string]
}

func (f orderedFields) MarshalJSON() ([]byte, error) {
	if f.om == nil || f.om.Len() == 0 {
		return []byte("{}"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for pair := f.om.Oldest(); pair != nil; pair = pair.Next() {
		if buf.Len() > 1 {
			buf.WriteByte(',')
		}
		k, err := marshalUnescaped(pair.Key)
		if err != nil {
			return nil, err
		}
		v, err := marshalUnescaped(pair.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

type jsonCard struct {
	Fields   orderedFields `json:"fields"`
	Tags     []string      `json:"tags"`
	Deck     string        `json:"deck"`
	NoteType string        `json:"note_type,omitempty"`
}

// WriteCards renders cards in format. The JSON, CSV and Markdown renderings
// contain exactly one entry per card.
func WriteCards(w io.Writer, format Format, cards []Card) error {
	switch format {
	case FormatJSON:
		return writeCardsJSON(w, cards)
	case FormatCSV:
		return writeCardsCSV(w, cards)
	case FormatMarkdown:
		return writeCardsMarkdown(w, cards)
	case FormatText:
		return writeCardsText(w, cards)
	default:
		_, err := ParseFormat(string(format))
		return err
	}
}

func writeCardsJSON(w io.Writer, cards []Card) error {
	out := make([]jsonCard, len(cards))
	for i, c := range cards {
		tags := c.Tags
		if tags == nil {
			tags = []string{}
		}
		out[i] = jsonCard{Fields: orderedFields{om: c.Fields}, Tags: tags, Deck: c.Deck, NoteType: c.NoteType}
	}

	var buf bytes.Buffer
	enc := jsonEncoder(&buf)
	if err := enc.Encode(out); err != nil {
		return errors.Wrap(err, "failed to encode cards")
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// writeCardsCSV uses the union of field names in first-seen order followed
// by Tags and Deck as the header. Every cell is quoted.
func writeCardsCSV(w io.Writer, cards []Card) error {
	var columns []string
	seen := map[string]bool{}
	for _, c := range cards {
		if c.Fields == nil {
			continue
		}
		for pair := c.Fields.Oldest(); pair != nil; pair = pair.Next() {
			if !seen[pair.Key] {
				seen[pair.Key] = true
				columns = append(columns, pair.Key)
			}
		}
	}

	bw := bufio.NewWriter(w)
	writeLine := func(cells []string) {
		for i, cell := range cells {
			if i > 0 {
				bw.WriteByte(',')
			}
			bw.WriteString(quoteCSV(cell))
		}
		bw.WriteString("\r\n")
	}

	writeLine(append(append([]string{}, columns...), "Tags", "Deck"))
	for _, c := range cards {
		row := make([]string, 0, len(columns)+2)
		for _, col := range columns {
			v := ""
			if c.Fields != nil {
				v, _ = c.Fields.Get(col)
			}
			row = append(row, v)
		}
		row = append(row, strings.Join(c.Tags, ","), c.Deck)
		writeLine(row)
	}
	return bw.Flush()
}

func writeCardsMarkdown(w io.Writer, cards []Card) error {
	conv := md.NewConverter("", true, nil)
	toMarkdown := func(s string) string {
		out, err := conv.ConvertString(s)
		if err != nil {
			return utils.FlattenWhitespace(utils.StripHTML(s))
		}
		return utils.FlattenWhitespace(strings.TrimSpace(out))
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "# Anki Cards (%d cards)\n", len(cards))
	for _, c := range cards {
		fmt.Fprintf(bw, "\n- **%s** → %s\n  - Deck: %s\n  - Tags: %s\n",
			toMarkdown(c.Front()), toMarkdown(c.Back()), c.Deck, strings.Join(c.Tags, ", "))
	}
	return bw.Flush()
}

func writeCardsText(w io.Writer, cards []Card) error {
	bw := bufio.NewWriter(w)
	for _, c := range cards {
		fmt.Fprintf(bw, "[%s] %s → %s (tags: %s)\n",
			c.Deck,
			utils.FlattenWhitespace(utils.StripHTML(c.Front())),
			utils.FlattenWhitespace(utils.StripHTML(c.Back())),
			strings.Join(c.Tags, ", "))
	}
	return bw.Flush()
}
