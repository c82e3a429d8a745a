package records

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/jingkaihe/skillkit/pkg/fieldmap"
	"github.com/jingkaihe/skillkit/pkg/skillerr"
)

const (
	tagsColumn = "Tags"
	csvShape   = "a header row followed by one row per card, e.g. Front,Back,Tags"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ReadCSV reads a header-and-rows CSV file. Blank cells are dropped and the
// Tags column becomes the entry's tags.
func ReadCSV(r io.Reader, name string) ([]Entry, error) {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}

	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, skillerr.Format("%s is empty: expected %s", name, csvShape)
	}
	if err != nil {
		return nil, skillerr.FormatWrap(err, "failed to read header of %s", name)
	}

	tagsIdx := -1
	columns := make([]string, len(header))
	seen := make(map[string]bool, len(header))
	for i, col := range header {
		col = strings.TrimSpace(col)
		if col == "" {
			return nil, skillerr.Format("%s: header column %d is empty; expected %s", name, i+1, csvShape)
		}
		if seen[col] {
			return nil, skillerr.Format("%s: duplicate header column %q", name, col)
		}
		seen[col] = true
		columns[i] = col
		if tagsIdx < 0 && strings.EqualFold(col, tagsColumn) {
			tagsIdx = i
		}
	}

	var entries []Entry
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, skillerr.FormatWrap(err, "failed to read %s", name)
		}
		line, _ := cr.FieldPos(0)
		source := fmt.Sprintf("%s:%d", name, line)
		if len(row) > len(columns) {
			return nil, skillerr.Format("%s: row has %d columns, header has %d", source, len(row), len(columns))
		}

		rec := fieldmap.Record{}
		var tags []string
		for i, cell := range row {
			if i == tagsIdx {
				tags = ParseTags(cell)
				continue
			}
			if strings.TrimSpace(cell) == "" {
				continue
			}
			rec[columns[i]] = cell
		}
		if len(rec) == 0 && len(tags) == 0 {
			// blank line
			continue
		}
		entries = append(entries, Entry{Record: rec, Tags: tags, Source: source})
	}
	return entries, nil
}
