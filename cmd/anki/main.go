// Command anki reads and adds cards in a local Anki collection.
package main

import (
	_ "embed"

	"github.com/spf13/cobra"

	"github.com/jingkaihe/skillkit/pkg/anki"
	"github.com/jingkaihe/skillkit/pkg/cli"
)

//go:embed SKILL.md
var skillDoc []byte

func newRootCmd() *cobra.Command {
	root := cli.NewRootCommand("anki", "Read and add cards in a local Anki collection")
	root.Long = `Anki skill for reading and writing cards.

The collection file is located from --collection, then ANKI_COLLECTION_PATH,
then the default Anki data directory of ANKI_PROFILE.`
	root.PersistentFlags().String("collection", "", "Path to collection.anki2 file (auto-detected if not specified)")

	root.AddCommand(
		newReadCardsCmd(),
		newListDecksCmd(),
		newListNoteTypesCmd(),
		newDescribeDeckCmd(),
		newDescribeDeckNoteTypesCmd(),
		newAddCardsCmd(),
		cli.NewSkillCommand(skillDoc),
		cli.NewVersionCommand("anki"),
	)
	return root
}

// openCollection locates and opens the collection for a command. The caller
// must Close it.
func openCollection(cmd *cobra.Command, opts anki.OpenOptions) (*anki.Collection, error) {
	ctx := cmd.Context()
	cfg := cli.ConfigFrom(ctx)

	explicit, _ := cmd.Flags().GetString("collection")
	path, err := anki.LocateCollection(explicit, cfg.Anki.CollectionPath, cfg.Anki.Profile)
	if err != nil {
		return nil, err
	}
	return anki.Open(ctx, path, opts)
}

func main() {
	cli.Main(newRootCmd())
}
