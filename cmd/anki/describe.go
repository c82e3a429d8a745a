package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/jingkaihe/skillkit/pkg/anki"
	"github.com/jingkaihe/skillkit/pkg/cli"
	"github.com/jingkaihe/skillkit/pkg/utils"
)

const (
	maxSamples     = 3
	sampleMaxChars = 80
)

func newListDecksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-decks",
		Short: "List all decks in the collection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return listDecks(cmd)
		},
	}
}

func listDecks(cmd *cobra.Command) error {
	ctx := cmd.Context()
	col, err := openCollection(cmd, anki.OpenOptions{ReadOnly: true})
	if err != nil {
		return err
	}
	defer col.Close()

	decks := col.Decks()
	cli.Linef(cmd, "Found %d decks:\n", len(decks))
	for _, d := range decks {
		cardIDs, err := col.FindCards(ctx, fmt.Sprintf("did:%d", d.ID))
		if err != nil {
			return err
		}
		cli.Linef(cmd, "  %s: %d cards", d.Name, len(cardIDs))
	}
	return nil
}

func newListNoteTypesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-note-types",
		Short: "List all note types in the collection with their fields",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return listNoteTypes(cmd)
		},
	}
}

func listNoteTypes(cmd *cobra.Command) error {
	col, err := openCollection(cmd, anki.OpenOptions{ReadOnly: true})
	if err != nil {
		return err
	}
	defer col.Close()

	noteTypes := col.NoteTypes()
	cli.Linef(cmd, "Found %d note type(s):\n", len(noteTypes))
	for _, nt := range noteTypes {
		cli.Linef(cmd, "  %s (%s)", nt.Name, nt.Kind)
		cli.Linef(cmd, "    Fields: %s", strings.Join(nt.Fields, ", "))
	}
	return nil
}

// DescribeDeckConfig holds configuration for the describe-deck and
// describe-deck-note-types commands
type DescribeDeckConfig struct {
	Deck string
}

// NewDescribeDeckConfig creates a new DescribeDeckConfig with default values
func NewDescribeDeckConfig() *DescribeDeckConfig {
	return &DescribeDeckConfig{
		Deck: "",
	}
}

func getDescribeDeckConfigFromFlags(cmd *cobra.Command) *DescribeDeckConfig {
	config := NewDescribeDeckConfig()
	if deck, err := cmd.Flags().GetString("deck"); err == nil {
		config.Deck = deck
	}
	return config
}

func addDeckFlag(cmd *cobra.Command) {
	defaults := NewDescribeDeckConfig()
	cmd.Flags().String("deck", defaults.Deck, "Deck name")
	_ = cmd.MarkFlagRequired("deck")
}

func newDescribeDeckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "describe-deck",
		Short: "Show card counts and tags of a deck",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return describeDeck(cmd, getDescribeDeckConfigFromFlags(cmd))
		},
	}
	addDeckFlag(cmd)
	return cmd
}

func describeDeck(cmd *cobra.Command, config *DescribeDeckConfig) error {
	ctx := cmd.Context()
	col, err := openCollection(cmd, anki.OpenOptions{ReadOnly: true})
	if err != nil {
		return err
	}
	defer col.Close()

	deck, err := col.DeckByName(config.Deck)
	if err != nil {
		return err
	}

	count := func(extra string) (int, error) {
		q := fmt.Sprintf("did:%d", deck.ID)
		if extra != "" {
			q += " " + extra
		}
		ids, err := col.FindCards(ctx, q)
		return len(ids), err
	}

	cli.Linef(cmd, "Deck: %s", deck.Name)
	for _, row := range []struct{ label, query string }{
		{"Total cards", ""},
		{"New", "is:new"},
		{"Due", "is:due"},
		{"Suspended", "is:suspended"},
	} {
		n, err := count(row.query)
		if err != nil {
			return err
		}
		cli.Linef(cmd, "  %s: %d", row.label, n)
	}

	noteIDs, err := col.FindNotes(ctx, fmt.Sprintf("did:%d", deck.ID))
	if err != nil {
		return err
	}
	seen := map[string]bool{}
	var tags []string
	for _, id := range noteIDs {
		note, err := col.Note(ctx, id)
		if err != nil {
			return err
		}
		for _, t := range note.Tags {
			if !seen[t] {
				seen[t] = true
				tags = append(tags, t)
			}
		}
	}
	if len(tags) > 0 {
		sort.Strings(tags)
		cli.Linef(cmd, "  Tags: %s", strings.Join(tags, ", "))
	}
	return nil
}

func newDescribeDeckNoteTypesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "describe-deck-note-types",
		Short: "Show note types used in a deck with sample data",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return describeDeckNoteTypes(cmd, getDescribeDeckConfigFromFlags(cmd))
		},
	}
	addDeckFlag(cmd)
	return cmd
}

type noteTypeUsage struct {
	noteType *anki.NoteType
	samples  []*orderedmap.OrderedMap[string, string]
}

func describeDeckNoteTypes(cmd *cobra.Command, config *DescribeDeckConfig) error {
	ctx := cmd.Context()
	col, err := openCollection(cmd, anki.OpenOptions{ReadOnly: true})
	if err != nil {
		return err
	}
	defer col.Close()

	deck, err := col.DeckByName(config.Deck)
	if err != nil {
		return err
	}

	noteIDs, err := col.FindNotes(ctx, fmt.Sprintf("did:%d", deck.ID))
	if err != nil {
		return err
	}
	if len(noteIDs) == 0 {
		cli.Linef(cmd, "No cards found in deck: %s", deck.Name)
		return nil
	}

	usage := map[string]*noteTypeUsage{}
	for _, id := range noteIDs {
		note, err := col.Note(ctx, id)
		if err != nil {
			return err
		}
		nt, ok := col.NoteType(note.NoteTypeID)
		if !ok {
			continue
		}
		u, ok := usage[nt.Name]
		if !ok {
			u = &noteTypeUsage{noteType: nt}
			usage[nt.Name] = u
		}
		if len(u.samples) < maxSamples {
			u.samples = append(u.samples, note.Fields)
		}
	}

	names := make([]string, 0, len(usage))
	for name := range usage {
		names = append(names, name)
	}
	sort.Strings(names)

	cli.Linef(cmd, "Deck: %s", deck.Name)
	cli.Linef(cmd, "Found %d note type(s) in use:\n", len(usage))
	for _, name := range names {
		u := usage[name]
		cli.Linef(cmd, "  %s (%s)", name, u.noteType.Kind)
		cli.Linef(cmd, "    Fields: %s", strings.Join(u.noteType.Fields, ", "))
		cli.Linef(cmd, "    Sample cards:")
		for i, sample := range u.samples {
			cli.Linef(cmd, "      Sample %d:", i+1)
			for pair := sample.Oldest(); pair != nil; pair = pair.Next() {
				value := utils.FlattenWhitespace(utils.Truncate(pair.Value, sampleMaxChars))
				cli.Linef(cmd, "        %s: %s", pair.Key, value)
			}
		}
		cli.Linef(cmd, "")
	}
	return nil
}
