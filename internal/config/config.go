package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/lazypower/recall/internal/decay"
	"github.com/lazypower/recall/internal/store"
)

// EnvPrefix prefixes environment overrides: RECALL_DECAY_HALF_LIFE_DAYS sets
// decay.half_life_days.
const EnvPrefix = "RECALL_"

// Config holds all recall configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" koanf:"server"`
	Database  DatabaseConfig  `yaml:"database" koanf:"database"`
	Memory    MemoryConfig    `yaml:"memory" koanf:"memory"`
	Embedding EmbeddingConfig `yaml:"embedding" koanf:"embedding"`
	Decay     DecaySettings   `yaml:"decay" koanf:"decay"`
	Search    SearchConfig    `yaml:"search" koanf:"search"`
}

type ServerConfig struct {
	Bind        string   `yaml:"bind" koanf:"bind"`
	Port        int      `yaml:"port" koanf:"port"`
	CORSOrigins []string `yaml:"cors_origins" koanf:"cors_origins"`
}

type DatabaseConfig struct {
	Path string `yaml:"path" koanf:"path"` // empty resolves to store.DefaultDBPath()
}

type MemoryConfig struct {
	Root    string   `yaml:"root" koanf:"root"` // empty resolves to ~/.recall/memory
	Exclude []string `yaml:"exclude" koanf:"exclude"`
}

type EmbeddingConfig struct {
	Provider   string `yaml:"provider" koanf:"provider"` // auto, ollama, openai, tfidf, none
	OllamaURL  string `yaml:"ollama_url" koanf:"ollama_url"`
	Model      string `yaml:"model" koanf:"model"`
	OpenAIKey  string `yaml:"openai_key" koanf:"openai_key"`
	Dimensions int    `yaml:"dimensions" koanf:"dimensions"`
}

type DecaySettings struct {
	Function            string  `yaml:"function" koanf:"function"` // exponential or power-law
	GraceDaysSequential int64   `yaml:"grace_days_sequential" koanf:"grace_days_sequential"`
	GraceDaysWorkflows  int64   `yaml:"grace_days_workflows" koanf:"grace_days_workflows"`
	GraceDaysDefault    int64   `yaml:"grace_days_default" koanf:"grace_days_default"`
	HalfLifeDays        int64   `yaml:"half_life_days" koanf:"half_life_days"`
	PowerLawA           float64 `yaml:"power_law_a" koanf:"power_law_a"`
	PowerLawB           float64 `yaml:"power_law_b" koanf:"power_law_b"`
}

type SearchConfig struct {
	MinScoreStage string `yaml:"min_score_stage" koanf:"min_score_stage"` // post or pre
	PageSize      int    `yaml:"page_size" koanf:"page_size"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	d := decay.DefaultConfig()
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 37777,
		},
		Embedding: EmbeddingConfig{
			Provider:  "auto",
			OllamaURL: "http://localhost:11434",
		},
		Decay: DecaySettings{
			Function:            d.Function.String(),
			GraceDaysSequential: d.SequentialGraceDays,
			GraceDaysWorkflows:  d.WorkflowGraceDays,
			GraceDaysDefault:    d.DefaultGraceDays,
			HalfLifeDays:        d.HalfLifeDays,
			PowerLawA:           d.PowerLawA,
			PowerLawB:           d.PowerLawB,
		},
		Search: SearchConfig{
			MinScoreStage: "post",
			PageSize:      10,
		},
	}
}

// DefaultPath returns the default config file: ~/.recall/config.yaml
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".recall", "config.yaml"), nil
}

// legacyEnv maps the older MAENIFOLD_* variables onto config keys.
var legacyEnv = map[string]string{
	"MAENIFOLD_ROOT":                        "memory.root",
	"MAENIFOLD_DATABASE_PATH":               "database.path",
	"MAENIFOLD_DECAY_FUNCTION":              "decay.function",
	"MAENIFOLD_DECAY_GRACE_DAYS_SEQUENTIAL": "decay.grace_days_sequential",
	"MAENIFOLD_DECAY_GRACE_DAYS_WORKFLOWS":  "decay.grace_days_workflows",
	"MAENIFOLD_DECAY_GRACE_DAYS_DEFAULT":    "decay.grace_days_default",
	"MAENIFOLD_DECAY_HALF_LIFE_DAYS":        "decay.half_life_days",
}

// listKeys are split on commas when set from the environment.
var listKeys = map[string]bool{
	"server.cors_origins": true,
	"memory.exclude":      true,
}

// Load layers defaults, the YAML file at path (skipped when it does not
// exist), legacy MAENIFOLD_* variables and RECALL_* variables, in that order.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("accessing config %s: %w", path, err)
		}
	}

	if err := k.Load(env.ProviderWithValue("MAENIFOLD_", ".", func(key, value string) (string, any) {
		return legacyEnv[key], value
	}), nil); err != nil {
		return nil, fmt.Errorf("loading legacy env: %w", err)
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", func(key, value string) (string, any) {
		name := envKey(key)
		if listKeys[name] {
			return name, splitList(value)
		}
		return name, value
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	return &cfg, nil
}

// envKey turns RECALL_DECAY_HALF_LIFE_DAYS into decay.half_life_days. The
// first segment names the section.
func envKey(name string) string {
	s := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
	section, rest, ok := strings.Cut(s, "_")
	if !ok {
		return s
	}
	return section + "." + rest
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Save writes the configuration to path as YAML.
func (c *Config) Save(path string) error {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

var validProviders = map[string]bool{
	"auto": true, "ollama": true, "openai": true, "tfidf": true, "none": true,
}

// Validate checks that the configuration contains usable values.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if p := strings.ToLower(c.Embedding.Provider); p != "" && !validProviders[p] {
		return fmt.Errorf("invalid embedding.provider %q: must be one of auto, ollama, openai, tfidf, none", c.Embedding.Provider)
	}
	if strings.EqualFold(c.Embedding.Provider, "openai") && c.Embedding.OpenAIKey == "" {
		return fmt.Errorf("embedding.openai_key is required for the openai provider")
	}
	if c.Embedding.Dimensions < 0 {
		return fmt.Errorf("embedding.dimensions must be non-negative")
	}

	switch strings.ToLower(c.Decay.Function) {
	case "", "exponential", "power-law", "powerlaw", "power_law", "actr", "act-r":
	default:
		return fmt.Errorf("invalid decay.function %q: must be exponential or power-law", c.Decay.Function)
	}
	if c.Decay.GraceDaysSequential < 0 || c.Decay.GraceDaysWorkflows < 0 || c.Decay.GraceDaysDefault < 0 {
		return fmt.Errorf("decay grace days must be non-negative")
	}
	if c.Decay.HalfLifeDays <= 0 {
		return fmt.Errorf("decay.half_life_days must be positive")
	}
	if c.Decay.PowerLawA <= 0 || c.Decay.PowerLawB <= 0 {
		return fmt.Errorf("decay.power_law_a and decay.power_law_b must be positive")
	}

	switch strings.ToLower(c.Search.MinScoreStage) {
	case "", "post", "post-decay", "pre", "pre-decay", "predecay", "content":
	default:
		return fmt.Errorf("invalid search.min_score_stage %q: must be pre or post", c.Search.MinScoreStage)
	}
	if c.Search.PageSize < 0 {
		return fmt.Errorf("search.page_size must be non-negative")
	}
	return nil
}

// DecayConfig converts the decay section into calculator parameters.
func (c *Config) DecayConfig() decay.Config {
	return decay.Config{
		Function:            decay.ParseFunction(c.Decay.Function),
		SequentialGraceDays: c.Decay.GraceDaysSequential,
		WorkflowGraceDays:   c.Decay.GraceDaysWorkflows,
		DefaultGraceDays:    c.Decay.GraceDaysDefault,
		HalfLifeDays:        c.Decay.HalfLifeDays,
		PowerLawA:           c.Decay.PowerLawA,
		PowerLawB:           c.Decay.PowerLawB,
	}
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}

// DBPath returns the configured database path or the default one.
func (c *Config) DBPath() (string, error) {
	if c.Database.Path != "" {
		return expandHome(c.Database.Path)
	}
	return store.DefaultDBPath()
}

// MemoryRoot returns the configured memory root or ~/.recall/memory.
func (c *Config) MemoryRoot() (string, error) {
	if c.Memory.Root != "" {
		return expandHome(c.Memory.Root)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".recall", "memory"), nil
}

func expandHome(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~")), nil
}
