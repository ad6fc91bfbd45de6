package cmd

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
)

var flagForce bool

var indexCmd = &cobra.Command{
	Use:   "index [path]",
	Short: "Build or refresh the index for a directory tree",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root := "."
		if len(args) == 1 {
			root = args[0]
		}
		absRoot, err := filepath.Abs(root)
		if err != nil {
			return err
		}

		eng, err := newEngine(absRoot)
		if err != nil {
			return err
		}
		defer eng.Close()

		start := time.Now()
		res, err := eng.Index(absRoot, flagForce)
		if err != nil {
			return err
		}
		elapsed := time.Since(start).Round(time.Millisecond)

		if !res.Indexed {
			fmt.Printf("%s (%d files, %d chunks)\n", res.Reason, res.Files, res.Chunks)
			return nil
		}

		fmt.Println(headerStyle.Render(fmt.Sprintf("Indexed %s in %s", res.Root, elapsed)))
		fmt.Printf("  Reason:  %s\n", res.Reason)
		if res.FullRebuild {
			fmt.Printf("  Mode:    full rebuild\n")
		} else {
			fmt.Printf("  Mode:    incremental (%d new, %d updated, %d removed)\n",
				len(res.NewFiles), len(res.UpdatedFiles), len(res.RemovedFiles))
		}
		fmt.Printf("  Files:   %d discovered, %d indexed, %d skipped\n", res.Files, res.IndexedFiles, res.FilesSkipped)
		fmt.Printf("  Chunks:  %d indexed, %d total\n", res.ChunksIndexed, res.Chunks)
		return nil
	},
}

func init() {
	indexCmd.Flags().BoolVar(&flagForce, "force", false, "discard the existing index and rebuild from scratch")
	rootCmd.AddCommand(indexCmd)
}
