package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var (
	flagLimit     int
	flagPath      string
	flagAutoIndex bool
)

var recallCmd = &cobra.Command{
	Use:   "recall <query>",
	Short: "Find the chunks most similar to a query",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root := flagPath
		if root == "" {
			wd, err := os.Getwd()
			if err != nil {
				return err
			}
			root = wd
		}

		eng, err := newEngine(root)
		if err != nil {
			return err
		}
		defer eng.Close()

		res, err := eng.Recall(args[0], flagLimit, flagPath, flagAutoIndex)
		if err != nil {
			return err
		}

		if res.AutoIndex != nil && res.AutoIndex.Indexed {
			fmt.Println(dimStyle.Render(fmt.Sprintf("reindexed: %s (%d chunks)", res.AutoIndex.Reason, res.AutoIndex.ChunksIndexed)))
		}

		if res.Count == 0 {
			fmt.Println("No matches.")
			return nil
		}

		fmt.Println(headerStyle.Render(fmt.Sprintf("%d matches for %q", res.Count, res.Query)))
		for i, m := range res.Matches {
			source := m.Metadata["source"]
			fmt.Printf("\n%s %s %s\n", scoreStyle.Render(fmt.Sprintf("%2d. %.4f", i+1, m.Score)),
				pathStyle.Render(source), dimStyle.Render(m.ID))
			fmt.Println(indent(snippet(m.Text), "    "))
		}
		return nil
	},
}

// snippet trims a chunk body for terminal display.
func snippet(text string) string {
	text = strings.TrimSpace(text)
	const maxLen = 300
	if len(text) > maxLen {
		text = text[:maxLen] + "..."
	}
	return text
}

func indent(text, prefix string) string {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}

func init() {
	recallCmd.Flags().IntVarP(&flagLimit, "limit", "n", 5, "maximum number of matches")
	recallCmd.Flags().StringVar(&flagPath, "path", "", "directory to search (default: previously indexed root, then cwd)")
	recallCmd.Flags().BoolVar(&flagAutoIndex, "auto-index", false, "refresh the index before searching")
	rootCmd.AddCommand(recallCmd)
}
