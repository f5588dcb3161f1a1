package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/lazypower/recall/internal/config"
	"github.com/lazypower/recall/internal/decay"
	"github.com/lazypower/recall/internal/engine"
	"github.com/lazypower/recall/internal/store"
)

var (
	cfgFile    string
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "recall",
	Short: "Decay-weighted retrieval over a markdown memory folder",
	Long: `Recall indexes a folder of markdown memories and ranks what it finds by
relevance and recency, so fresh knowledge outranks stale knowledge. Reading a
memory refreshes it. Searching does not.`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.recall/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print results as JSON")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(readCmd)
	rootCmd.AddCommand(contextCmd)
	rootCmd.AddCommand(similarCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(weightCmd)
	rootCmd.AddCommand(assumptionCmd)
}

// loadConfig reads --config (or the default path) with environment overrides.
func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		var err error
		path, err = config.DefaultPath()
		if err != nil {
			return nil, err
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// openEngine opens the database and builds an engine from cfg. The caller
// closes the returned DB.
func openEngine(cfg *config.Config) (*store.DB, *engine.Engine, error) {
	dbPath, err := cfg.DBPath()
	if err != nil {
		return nil, nil, fmt.Errorf("resolve db path: %w", err)
	}
	root, err := cfg.MemoryRoot()
	if err != nil {
		return nil, nil, fmt.Errorf("resolve memory root: %w", err)
	}

	db, err := store.Open(dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}

	eng, err := engine.New(db, engine.Options{
		MemoryRoot: root,
		Exclude:    cfg.Memory.Exclude,
		Embedding: engine.EmbedderConfig{
			Provider:   cfg.Embedding.Provider,
			OllamaURL:  cfg.Embedding.OllamaURL,
			Model:      cfg.Embedding.Model,
			OpenAIKey:  cfg.Embedding.OpenAIKey,
			Dimensions: cfg.Embedding.Dimensions,
		},
		Calculator: decay.NewCalculator(cfg.DecayConfig()),
	})
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("create engine: %w", err)
	}
	return db, eng, nil
}

// withEngine loads config, opens the engine, runs fn and closes the database.
func withEngine(fn func(cfg *config.Config, eng *engine.Engine) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, eng, err := openEngine(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(cfg, eng)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
