package main

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/jingkaihe/skillkit/pkg/anki"
	"github.com/jingkaihe/skillkit/pkg/cli"
	"github.com/jingkaihe/skillkit/pkg/export"
	"github.com/jingkaihe/skillkit/pkg/logger"
)

// ReadCardsConfig holds configuration for the read-cards command
type ReadCardsConfig struct {
	Query  string
	Output string
	Format string
}

// NewReadCardsConfig creates a new ReadCardsConfig with default values
func NewReadCardsConfig() *ReadCardsConfig {
	return &ReadCardsConfig{
		Query:  "",
		Output: "",
		Format: string(export.FormatText),
	}
}

func newReadCardsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "read-cards",
		Short: "Query and export cards from the Anki collection",
		Long: `Query and export cards from the Anki collection.

Examples:
  anki read-cards --query "tag:german"
  anki read-cards --query "deck:Spanish is:due" --format json
  anki read-cards --query "added:7" --format markdown --output recent.md`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return readCards(cmd, getReadCardsConfigFromFlags(cmd))
		},
	}

	defaults := NewReadCardsConfig()
	cmd.Flags().String("query", defaults.Query, `Anki search query (e.g., "tag:german", "is:due")`)
	cmd.Flags().String("output", defaults.Output, "Output file path (prints to stdout if not specified)")
	cmd.Flags().String("format", defaults.Format, "Output format: json, csv, markdown or text")
	_ = cmd.MarkFlagRequired("query")
	return cmd
}

func getReadCardsConfigFromFlags(cmd *cobra.Command) *ReadCardsConfig {
	config := NewReadCardsConfig()
	if query, err := cmd.Flags().GetString("query"); err == nil {
		config.Query = query
	}
	if output, err := cmd.Flags().GetString("output"); err == nil {
		config.Output = output
	}
	if format, err := cmd.Flags().GetString("format"); err == nil {
		config.Format = format
	}
	return config
}

func readCards(cmd *cobra.Command, config *ReadCardsConfig) error {
	ctx := cmd.Context()

	format, err := export.ParseFormat(config.Format)
	if err != nil {
		return err
	}

	col, err := openCollection(cmd, anki.OpenOptions{ReadOnly: true})
	if err != nil {
		return err
	}
	defer col.Close()

	noteIDs, err := col.FindNotes(ctx, config.Query)
	if err != nil {
		return err
	}
	if len(noteIDs) == 0 {
		cli.Linef(cmd, "No cards found matching query: %s", config.Query)
		return nil
	}

	cards, err := loadCards(ctx, col, noteIDs)
	if err != nil {
		return err
	}
	logger.G(ctx).WithField("query", config.Query).WithField("notes", len(cards)).Debug("read cards")

	render := func(w io.Writer) error {
		return export.WriteCards(w, format, cards)
	}

	if config.Output != "" {
		if err := export.WriteToFile(config.Output, render); err != nil {
			return err
		}
		cli.Linef(cmd, "Exported %d cards to %s", len(cards), config.Output)
		return nil
	}

	if format == export.FormatText {
		cli.Linef(cmd, "Found %d cards:\n", len(cards))
	}
	return render(cmd.OutOrStdout())
}

// loadCards builds one export record per note. The deck is the deck of the
// note's first card, or its home deck while that card sits in a filtered deck.
func loadCards(ctx context.Context, col *anki.Collection, noteIDs []int64) ([]export.Card, error) {
	cards := make([]export.Card, 0, len(noteIDs))
	for _, id := range noteIDs {
		note, err := col.Note(ctx, id)
		if err != nil {
			return nil, err
		}

		deck := "Unknown"
		noteCards, err := col.CardsOfNote(ctx, id)
		if err != nil {
			return nil, err
		}
		if len(noteCards) > 0 {
			deckID := noteCards[0].DeckID
			if noteCards[0].OrigDeckID != 0 {
				deckID = noteCards[0].OrigDeckID
			}
			deck = col.DeckName(deckID)
		}

		noteType := ""
		if nt, ok := col.NoteType(note.NoteTypeID); ok {
			noteType = nt.Name
		}

		cards = append(cards, export.Card{
			NoteID:   note.ID,
			Fields:   note.Fields,
			Tags:     note.Tags,
			Deck:     deck,
			NoteType: noteType,
		})
	}
	return cards, nil
}
