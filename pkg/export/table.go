package export

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/spf13/cast"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/jingkaihe/skillkit/pkg/utils"
)

// TableWriter streams a result set. WriteHeader must be called once before
// any row; Close flushes buffered output.
type TableWriter interface {
	WriteHeader(columns []string) error
	WriteRow(values []any) error
	Close() error
}

// NewTableWriter returns a TableWriter for format.
func NewTableWriter(w io.Writer, format Format) (TableWriter, error) {
	switch format {
	case FormatCSV:
		return &csvTable{w: csv.NewWriter(w)}, nil
	case FormatJSON:
		return &jsonTable{w: bufio.NewWriter(w)}, nil
	case FormatMarkdown:
		return &markdownTable{w: bufio.NewWriter(w)}, nil
	case FormatText:
		return &textTable{w: tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)}, nil
	default:
		_, err := ParseFormat(string(format))
		return nil, err
	}
}

// Cell renders a value for text based formats. NULL becomes the empty string.
func Cell(v any) string {
	if v == nil {
		return ""
	}
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return s
}

type csvTable struct {
	w *csv.Writer
}

func (t *csvTable) WriteHeader(columns []string) error {
	return t.w.Write(columns)
}

func (t *csvTable) WriteRow(values []any) error {
	row := make([]string, len(values))
	for i, v := range values {
		row[i] = Cell(v)
	}
	return t.w.Write(row)
}

func (t *csvTable) Close() error {
	t.w.Flush()
	return t.w.Error()
}

type jsonTable struct {
	w       *bufio.Writer
	columns []string
	rows    int
}

func (t *jsonTable) WriteHeader(columns []string) error {
	t.columns = columns
	_, err := t.w.WriteString("[")
	return err
}

func (t *jsonTable) WriteRow(values []any) error {
	obj := orderedmap.New[string, any](len(t.columns))
	for i, col := range t.columns {
		var v any
		if i < len(values) {
			v = values[i]
		}
		if b, ok := v.([]byte); ok {
			v = string(b)
		}
		obj.Set(col, v)
	}

	var sb strings.Builder
	enc := jsonEncoder(&sb)
	enc.SetIndent("  ", "  ")
	if err := enc.Encode(obj); err != nil {
		return errors.Wrap(err, "failed to encode row")
	}

	sep := ",\n  "
	if t.rows == 0 {
		sep = "\n  "
	}
	t.rows++
	_, err := t.w.WriteString(sep + strings.TrimRight(sb.String(), "\n"))
	return err
}

func (t *jsonTable) Close() error {
	if t.rows > 0 {
		t.w.WriteString("\n")
	}
	t.w.WriteString("]\n")
	return t.w.Flush()
}

type markdownTable struct {
	w *bufio.Writer
}

func markdownCell(s string) string {
	return strings.ReplaceAll(utils.FlattenWhitespace(s), "|", `\|`)
}

func (t *markdownTable) WriteHeader(columns []string) error {
	cells := make([]string, len(columns))
	seps := make([]string, len(columns))
	for i, c := range columns {
		cells[i] = markdownCell(c)
		seps[i] = "---"
	}
	_, err := fmt.Fprintf(t.w, "| %s |\n| %s |\n", strings.Join(cells, " | "), strings.Join(seps, " | "))
	return err
}

func (t *markdownTable) WriteRow(values []any) error {
	cells := make([]string, len(values))
	for i, v := range values {
		cells[i] = markdownCell(Cell(v))
	}
	_, err := fmt.Fprintf(t.w, "| %s |\n", strings.Join(cells, " | "))
	return err
}

func (t *markdownTable) Close() error {
	return t.w.Flush()
}

type textTable struct {
	w *tabwriter.Writer
}

func (t *textTable) WriteHeader(columns []string) error {
	_, err := fmt.Fprintln(t.w, strings.Join(columns, "\t"))
	return err
}

func (t *textTable) WriteRow(values []any) error {
	cells := make([]string, len(values))
	for i, v := range values {
		cells[i] = strings.ReplaceAll(utils.FlattenWhitespace(Cell(v)), "\t", " ")
	}
	_, err := fmt.Fprintln(t.w, strings.Join(cells, "\t"))
	return err
}

func (t *textTable) Close() error {
	return t.w.Flush()
}
