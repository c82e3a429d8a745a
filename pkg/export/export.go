// Package export renders skill results as JSON, CSV, Markdown or plain text.
package export

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/rogpeppe/go-internal/lockedfile"

	"github.com/jingkaihe/skillkit/pkg/skillerr"
)

// Format is an output format name as accepted by --format.
type Format string

const (
	FormatJSON     Format = "json"
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "markdown"
	FormatText     Format = "text"
)

// Formats lists every supported format in the order shown in help text.
var Formats = []Format{FormatJSON, FormatCSV, FormatMarkdown, FormatText}

// ParseFormat validates a --format value. Matching is case-insensitive and
// "md" is accepted for markdown.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatJSON, FormatCSV, FormatMarkdown, FormatText:
		return f, nil
	case "md":
		return FormatMarkdown, nil
	default:
		names := make([]string, len(Formats))
		for i, f := range Formats {
			names[i] = string(f)
		}
		return "", skillerr.Configuration("unsupported output format %q (choose one of: %s)", s, strings.Join(names, ", "))
	}
}

// WriteToFile renders with fn into memory and writes the result to path while
// holding an exclusive lock on the file. Nothing is written when fn fails.
func WriteToFile(path string, fn func(io.Writer) error) error {
	var buf bytes.Buffer
	if err := fn(&buf); err != nil {
		return err
	}
	if err := lockedfile.Write(path, &buf, 0o644); err != nil {
		return skillerr.Collaborator(err, "failed to write %s", path)
	}
	return nil
}

// marshalUnescaped encodes v as JSON without escaping <, > and &, which are
// common in card fields.
func marshalUnescaped(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, errors.Wrap(err, "failed to encode JSON")
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// quoteCSV quotes a cell unconditionally, doubling embedded quotes.
func quoteCSV(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func jsonEncoder(w io.Writer) *json.Encoder {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc
}
