package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"ragrep/internal/embedder"
	"ragrep/internal/engine"
	"ragrep/internal/ignore"
	"ragrep/internal/store"

	"github.com/spf13/cobra"
)

var (
	flagDB        string
	flagEmbedder  string
	flagOllama    string
	flagModel     string
	flagChunkSize int
	flagOverlap   int
	flagMemory    bool
	flagVerbose   bool
)

var rootCmd = &cobra.Command{
	Use:   "ragrep",
	Short: "Incremental semantic search over a directory tree",
	Long: `ragrep maintains a local vector index over the text files under a
directory and answers similarity queries against it. Unchanged files are
never re-embedded; the index is patched incrementally.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "index database path (default <root>/.ragrep/index.db)")
	rootCmd.PersistentFlags().StringVar(&flagEmbedder, "embedder", "ollama", "embedding backend: ollama or openai")
	rootCmd.PersistentFlags().StringVar(&flagOllama, "ollama", "http://localhost:11434", "ollama base URL")
	rootCmd.PersistentFlags().StringVar(&flagModel, "model", "nomic-embed-text", "embedding model")
	rootCmd.PersistentFlags().IntVar(&flagChunkSize, "chunk-size", 1000, "chunk window size in bytes")
	rootCmd.PersistentFlags().IntVar(&flagOverlap, "chunk-overlap", 200, "overlap between consecutive chunks in bytes")
	rootCmd.PersistentFlags().BoolVar(&flagMemory, "memory", false, "use an ephemeral in-memory store instead of SQLite")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "verbose logging")
}

// newLogger builds the CLI logger honoring --verbose.
func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if flagVerbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// newGateway builds the configured embedding gateway.
func newGateway() (embedder.Gateway, error) {
	switch flagEmbedder {
	case "ollama":
		return embedder.NewOllama(flagOllama, flagModel), nil
	case "openai":
		return embedder.NewOpenAI(flagModel)
	default:
		return nil, fmt.Errorf("unknown embedder %q (want ollama or openai)", flagEmbedder)
	}
}

// dbPathFor resolves the store location for a root directory.
func dbPathFor(root string) string {
	if flagDB != "" {
		return flagDB
	}
	return filepath.Join(root, ".ragrep", "index.db")
}

// newEngine wires a fully configured engine for the given root. The
// caller must Close it on every exit path.
func newEngine(root string) (*engine.Engine, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	gw, err := newGateway()
	if err != nil {
		return nil, err
	}

	logger := newLogger()
	cfg := engine.Config{
		StorePath:    dbPathFor(absRoot),
		Gateway:      gw,
		ChunkSize:    flagChunkSize,
		ChunkOverlap: flagOverlap,
		Ignore:       ignore.FromRoot(absRoot),
		Logger:       logger,
	}

	if flagMemory {
		return engine.NewWithStore(store.NewMemoryStore(), cfg)
	}
	return engine.New(cfg)
}
