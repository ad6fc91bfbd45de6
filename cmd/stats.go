package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show index statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		wd, err := os.Getwd()
		if err != nil {
			return err
		}

		eng, err := newEngine(wd)
		if err != nil {
			return err
		}
		defer eng.Close()

		st, err := eng.Stats()
		if err != nil {
			return err
		}

		fmt.Println(headerStyle.Render("Index statistics"))
		fmt.Printf("  Backend:      %s\n", st.Backend)
		if st.PersistPath != "" {
			fmt.Printf("  Store:        %s\n", st.PersistPath)
		}
		fmt.Printf("  Files:        %d\n", st.TotalFiles)
		fmt.Printf("  Chunks:       %d\n", st.TotalChunks)
		if st.ModelID == "" {
			fmt.Println(dimStyle.Render("  (index has not been created yet)"))
			return nil
		}
		fmt.Printf("  Model:        %s\n", st.ModelID)
		fmt.Printf("  Root:         %s\n", pathStyle.Render(st.Root))
		fmt.Printf("  Indexed at:   %s\n", st.IndexedAt.Local().Format("2006-01-02 15:04:05"))
		fmt.Printf("  Chunk size:   %d\n", st.ChunkSize)
		fmt.Printf("  Overlap:      %d\n", st.Overlap)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
