// Package records reads bulk card input files into field mapper records.
//
// Structured files (JSON arrays and YAML sequences of objects) pass every key
// except "tags" through untouched. CSV files use their header row as keys,
// drop blank cells and turn a "Tags" column into the tag list. Any malformed
// file fails the whole read so a bad file never produces a partial import.
package records

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pkg/errors"

	"github.com/jingkaihe/skillkit/pkg/fieldmap"
	"github.com/jingkaihe/skillkit/pkg/skillerr"
)

// Entry is one record read from an input source together with its tags.
type Entry struct {
	Record fieldmap.Record
	Tags   []string
	// Source locates the record for error messages, e.g. "cards.csv:3".
	Source string
}

// ReadFile reads all entries of a .json, .yaml, .yml or .csv file.
func ReadFile(path string) ([]Entry, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, skillerr.NotFound("input file not found: %s", path)
		}
		return nil, errors.Wrapf(err, "failed to stat input file %s", path)
	}
	if info.IsDir() {
		return nil, skillerr.Format("input path %s is a directory, expected a .json, .yaml or .csv file", path)
	}

	ext := strings.ToLower(filepath.Ext(path))
	if !isSupported(ext) {
		return nil, skillerr.Format("input file must be .json, .yaml, .yml or .csv: %s", path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open input file %s", path)
	}
	defer f.Close()

	name := filepath.Base(path)
	switch ext {
	case ".json":
		return ReadJSON(f, name)
	case ".yaml", ".yml":
		return ReadYAML(f, name)
	default:
		return ReadCSV(f, name)
	}
}

func isSupported(ext string) bool {
	switch ext {
	case ".json", ".yaml", ".yml", ".csv":
		return true
	}
	return false
}

// ExpandInputs resolves each pattern to the files it names. Plain paths are
// returned as-is so ReadFile can report them missing; glob patterns must
// match at least one file.
func ExpandInputs(patterns []string) ([]string, error) {
	var paths []string
	seen := make(map[string]bool)
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		if !hasMeta(pattern) {
			if !seen[pattern] {
				seen[pattern] = true
				paths = append(paths, pattern)
			}
			continue
		}

		matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, skillerr.FormatWrap(err, "invalid input pattern %q", pattern)
		}
		if len(matches) == 0 {
			return nil, skillerr.NotFound("no input files match %q", pattern)
		}
		sort.Strings(matches)
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				paths = append(paths, m)
			}
		}
	}
	return paths, nil
}

func hasMeta(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[{")
}

// ReadAll reads every file in order and concatenates their entries. The
// first failing file aborts the read.
func ReadAll(paths []string) ([]Entry, error) {
	var all []Entry
	for _, p := range paths {
		entries, err := ReadFile(p)
		if err != nil {
			return nil, err
		}
		all = append(all, entries...)
	}
	return all, nil
}

// ParseTags splits a comma separated tag string, trimming blanks.
func ParseTags(s string) []string {
	var tags []string
	for _, t := range strings.Split(s, ",") {
		t = strings.TrimSpace(t)
		if t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
