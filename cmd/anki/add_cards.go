package main

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jingkaihe/skillkit/pkg/anki"
	"github.com/jingkaihe/skillkit/pkg/cli"
	"github.com/jingkaihe/skillkit/pkg/fieldmap"
	"github.com/jingkaihe/skillkit/pkg/logger"
	"github.com/jingkaihe/skillkit/pkg/records"
	"github.com/jingkaihe/skillkit/pkg/skillerr"
)

const commandLineSource = "command line"

// AddCardsConfig holds configuration for the add-cards command
type AddCardsConfig struct {
	Deck     string
	NoteType string
	Inputs   []string
	Front    string
	Back     string
	Fields   []string
	Tags     string
	DryRun   bool
	Force    bool
}

// NewAddCardsConfig creates a new AddCardsConfig with default values
func NewAddCardsConfig() *AddCardsConfig {
	return &AddCardsConfig{
		Deck:     "",
		NoteType: anki.BasicNoteTypeName,
		Inputs:   nil,
		Front:    "",
		Back:     "",
		Fields:   nil,
		Tags:     "",
		DryRun:   false,
		Force:    false,
	}
}

func newAddCardsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add-cards",
		Short: "Add new cards to the Anki collection",
		Long: `Add new cards to the Anki collection. Requires Anki to be closed.

Cards come either from input files (--input, repeatable, glob patterns allowed)
or from a single card given on the command line with --front/--back or
--field Name=Value. Every record is mapped onto the note type before anything
is written; one failing record aborts the whole batch.

Examples:
  anki add-cards --deck Spanish --front "el perro" --back "the dog" --tags animals
  anki add-cards --deck Spanish --note-type Cloze --field "Text={{c1::Hola}} means hello"
  anki add-cards --deck Spanish --input cards.csv --input "more/*.json" --dry-run`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return addCards(cmd, getAddCardsConfigFromFlags(cmd))
		},
	}

	defaults := NewAddCardsConfig()
	cmd.Flags().String("deck", defaults.Deck, "Target deck name")
	cmd.Flags().String("note-type", defaults.NoteType, "Note type of the new notes")
	cmd.Flags().StringArray("input", defaults.Inputs, "CSV, JSON or YAML file with card data (repeatable, globs allowed)")
	cmd.Flags().String("front", defaults.Front, "Card front (for a single card)")
	cmd.Flags().String("back", defaults.Back, "Card back (for a single card)")
	cmd.Flags().StringArray("field", defaults.Fields, "Field value as Name=Value (for a single card, repeatable)")
	cmd.Flags().String("tags", defaults.Tags, "Comma-separated tags added to every card")
	cmd.Flags().Bool("dry-run", defaults.DryRun, "Validate and show the cards without writing them")
	cmd.Flags().Bool("force", defaults.Force, "Skip the check for a running Anki app")
	_ = cmd.MarkFlagRequired("deck")
	return cmd
}

func getAddCardsConfigFromFlags(cmd *cobra.Command) *AddCardsConfig {
	config := NewAddCardsConfig()
	if deck, err := cmd.Flags().GetString("deck"); err == nil {
		config.Deck = deck
	}
	if noteType, err := cmd.Flags().GetString("note-type"); err == nil && noteType != "" {
		config.NoteType = noteType
	}
	if inputs, err := cmd.Flags().GetStringArray("input"); err == nil {
		config.Inputs = inputs
	}
	if front, err := cmd.Flags().GetString("front"); err == nil {
		config.Front = front
	}
	if back, err := cmd.Flags().GetString("back"); err == nil {
		config.Back = back
	}
	if fields, err := cmd.Flags().GetStringArray("field"); err == nil {
		config.Fields = fields
	}
	if tags, err := cmd.Flags().GetString("tags"); err == nil {
		config.Tags = tags
	}
	if dryRun, err := cmd.Flags().GetBool("dry-run"); err == nil {
		config.DryRun = dryRun
	}
	if force, err := cmd.Flags().GetBool("force"); err == nil {
		config.Force = force
	}
	return config
}

// collectEntries gathers the input records from files or the command line.
func collectEntries(config *AddCardsConfig) ([]records.Entry, error) {
	single := config.Front != "" || config.Back != "" || len(config.Fields) > 0
	extraTags := records.ParseTags(config.Tags)

	switch {
	case len(config.Inputs) > 0 && single:
		return nil, skillerr.Configuration("use either --input or --front/--back/--field, not both")
	case len(config.Inputs) > 0:
		paths, err := records.ExpandInputs(config.Inputs)
		if err != nil {
			return nil, err
		}
		entries, err := records.ReadAll(paths)
		if err != nil {
			return nil, err
		}
		if len(entries) == 0 {
			return nil, skillerr.Format("no cards found in %s", strings.Join(paths, ", "))
		}
		for i := range entries {
			entries[i].Tags = append(entries[i].Tags, extraTags...)
		}
		return entries, nil
	case !single:
		return nil, skillerr.Configuration("Must provide either --input file or --front/--back arguments")
	}

	rec := fieldmap.Record{}
	if len(config.Fields) > 0 {
		if config.Front != "" || config.Back != "" {
			return nil, skillerr.Configuration("--field cannot be combined with --front/--back")
		}
		fields := make(map[string]any, len(config.Fields))
		for _, f := range config.Fields {
			name, value, ok := strings.Cut(f, "=")
			name = strings.TrimSpace(name)
			if !ok || name == "" {
				return nil, skillerr.Configuration("invalid --field %q, expected Name=Value", f)
			}
			fields[name] = value
		}
		rec[fieldmap.ExplicitKey] = fields
	} else {
		if config.Front == "" || config.Back == "" {
			return nil, skillerr.Configuration("--front and --back must be given together")
		}
		rec[fieldmap.FrontKey] = config.Front
		rec[fieldmap.BackKey] = config.Back
	}
	return []records.Entry{{Record: rec, Tags: extraTags, Source: commandLineSource}}, nil
}

type mappedCard struct {
	source  string
	mapping *fieldmap.Mapping
	tags    []string
}

// mapEntries resolves every entry against the note type and reports all
// failures together.
func mapEntries(cmd *cobra.Command, entries []records.Entry, nt *anki.NoteType) ([]mappedCard, error) {
	log := logger.G(cmd.Context()).WithField("note_type", nt.Name)

	var merr *multierror.Error
	cards := make([]mappedCard, 0, len(entries))
	for _, e := range entries {
		res, err := fieldmap.Resolve(e.Record, nt.Fields)
		if err != nil {
			merr = multierror.Append(merr, errors.Wrap(err, e.Source))
			continue
		}
		if len(res.Ignored) > 0 {
			keys := strings.Join(res.Ignored, ", ")
			log.WithField("source", e.Source).WithField("keys", keys).Debug("ignored input keys")
			cli.Printer(cmd).Warning(fmt.Sprintf("%s: ignored keys that match no %s field: %s", e.Source, nt.Name, keys))
		}
		cards = append(cards, mappedCard{source: e.Source, mapping: res.Mapping, tags: e.Tags})
	}
	if err := merr.ErrorOrNil(); err != nil {
		return nil, err
	}
	return cards, nil
}

func addCards(cmd *cobra.Command, config *AddCardsConfig) error {
	ctx := cmd.Context()

	entries, err := collectEntries(config)
	if err != nil {
		return err
	}

	col, err := openCollection(cmd, anki.OpenOptions{
		ReadOnly:     config.DryRun,
		CheckRunning: !config.Force,
	})
	if err != nil {
		return err
	}
	defer col.Close()

	deck, err := col.DeckByName(config.Deck)
	if err != nil {
		return err
	}
	if deck.Filtered {
		return skillerr.Configuration("cannot add cards to filtered deck %q", deck.Name)
	}
	nt, err := col.NoteTypeByName(config.NoteType)
	if err != nil {
		return err
	}

	cards, err := mapEntries(cmd, entries, nt)
	if err != nil {
		return err
	}

	log := logger.G(ctx).WithField("deck", deck.Name).WithField("note_type", nt.Name)

	if config.DryRun {
		cli.Linef(cmd, "Dry run: would add %d card(s) to deck '%s' using note type '%s'", len(cards), deck.Name, nt.Name)
		for _, c := range cards {
			cli.Linef(cmd, "  %s", describeCard(c))
		}
		return nil
	}

	var merr *multierror.Error
	for _, c := range cards {
		if err := col.AddNote(deck.ID, nt, c.mapping, c.tags); err != nil {
			merr = multierror.Append(merr, errors.Wrap(err, c.source))
		}
	}
	if err := merr.ErrorOrNil(); err != nil {
		return err
	}

	if err := col.Save(ctx); err != nil {
		return err
	}
	log.WithField("notes", len(cards)).Debug("added notes")

	cli.Linef(cmd, "Successfully added %d card(s) to deck '%s'", len(cards), deck.Name)
	return nil
}

func describeCard(c mappedCard) string {
	parts := make([]string, 0, c.mapping.Len())
	for _, key := range c.mapping.Keys() {
		v, _ := c.mapping.Get(key)
		parts = append(parts, fmt.Sprintf("%s=%q", key, v))
	}
	s := fmt.Sprintf("%s: %s", c.source, strings.Join(parts, ", "))
	if len(c.tags) > 0 {
		s += fmt.Sprintf(" [tags: %s]", strings.Join(anki.NormalizeTags(c.tags), ", "))
	}
	return s
}
