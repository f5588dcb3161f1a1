package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lazypower/recall/internal/decay"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.ListenAddr() != "127.0.0.1:37777" {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
	if got := cfg.DecayConfig(); got != decay.DefaultConfig() {
		t.Errorf("DecayConfig = %+v, want %+v", got, decay.DefaultConfig())
	}
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 37777 || cfg.Search.PageSize != 10 {
		t.Errorf("defaults not kept: %+v", cfg)
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	original := Default()
	original.Server.Port = 8080
	original.Memory.Root = "/srv/memory"
	original.Memory.Exclude = []string{"archive/**"}
	original.Embedding.Provider = "tfidf"
	original.Decay.Function = "exponential"
	original.Decay.GraceDaysDefault = 14

	if err := original.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if loaded.Server.Port != 8080 {
		t.Errorf("port = %d", loaded.Server.Port)
	}
	if loaded.Memory.Root != "/srv/memory" || len(loaded.Memory.Exclude) != 1 {
		t.Errorf("memory = %+v", loaded.Memory)
	}
	if loaded.Embedding.Provider != "tfidf" {
		t.Errorf("provider = %q", loaded.Embedding.Provider)
	}
	dc := loaded.DecayConfig()
	if dc.Function != decay.FunctionExponential || dc.DefaultGraceDays != 14 || dc.HalfLifeDays != 30 {
		t.Errorf("decay = %+v", dc)
	}
}

func TestLoadPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("decay:\n  half_life_days: 60\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Decay.HalfLifeDays != 60 {
		t.Errorf("half life = %d, want 60", cfg.Decay.HalfLifeDays)
	}
	if cfg.Decay.GraceDaysSequential != 7 || cfg.Server.Bind != "127.0.0.1" {
		t.Errorf("unset keys lost their defaults: %+v", cfg)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("RECALL_DECAY_HALF_LIFE_DAYS", "45")
	t.Setenv("RECALL_DECAY_FUNCTION", "exponential")
	t.Setenv("RECALL_SERVER_CORS_ORIGINS", "http://a.test, http://b.test")
	t.Setenv("RECALL_EMBEDDING_PROVIDER", "none")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Decay.HalfLifeDays != 45 {
		t.Errorf("half life = %d, want 45", cfg.Decay.HalfLifeDays)
	}
	if cfg.DecayConfig().Function != decay.FunctionExponential {
		t.Errorf("function = %s", cfg.Decay.Function)
	}
	if strings.Join(cfg.Server.CORSOrigins, "|") != "http://a.test|http://b.test" {
		t.Errorf("cors = %v", cfg.Server.CORSOrigins)
	}
	if cfg.Embedding.Provider != "none" {
		t.Errorf("provider = %q", cfg.Embedding.Provider)
	}
}

func TestLegacyEnv(t *testing.T) {
	t.Setenv("MAENIFOLD_DECAY_GRACE_DAYS_DEFAULT", "21")
	t.Setenv("MAENIFOLD_DECAY_HALF_LIFE_DAYS", "20")
	t.Setenv("MAENIFOLD_ROOT", "/legacy/memory")
	t.Setenv("MAENIFOLD_SNIPPET_LENGTH", "500")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Decay.GraceDaysDefault != 21 || cfg.Decay.HalfLifeDays != 20 {
		t.Errorf("decay = %+v", cfg.Decay)
	}
	if cfg.Memory.Root != "/legacy/memory" {
		t.Errorf("root = %q", cfg.Memory.Root)
	}

	// RECALL_ wins over the legacy name.
	t.Setenv("RECALL_DECAY_HALF_LIFE_DAYS", "90")
	cfg, err = Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Decay.HalfLifeDays != 90 {
		t.Errorf("half life = %d, want 90", cfg.Decay.HalfLifeDays)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"port", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"provider", func(c *Config) { c.Embedding.Provider = "bert" }, "embedding.provider"},
		{"openai key", func(c *Config) { c.Embedding.Provider = "openai" }, "openai_key"},
		{"function", func(c *Config) { c.Decay.Function = "linear" }, "decay.function"},
		{"grace", func(c *Config) { c.Decay.GraceDaysWorkflows = -1 }, "grace"},
		{"half life", func(c *Config) { c.Decay.HalfLifeDays = 0 }, "half_life_days"},
		{"power law", func(c *Config) { c.Decay.PowerLawB = 0 }, "power_law"},
		{"stage", func(c *Config) { c.Search.MinScoreStage = "during" }, "min_score_stage"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want error mentioning %q", err, tt.want)
			}
		})
	}
}

func TestPaths(t *testing.T) {
	cfg := Default()
	cfg.Database.Path = "/tmp/x.db"
	if p, err := cfg.DBPath(); err != nil || p != "/tmp/x.db" {
		t.Errorf("DBPath = %q, %v", p, err)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home dir")
	}
	cfg.Memory.Root = "~/notes"
	if p, err := cfg.MemoryRoot(); err != nil || p != filepath.Join(home, "notes") {
		t.Errorf("MemoryRoot = %q, %v", p, err)
	}
}
