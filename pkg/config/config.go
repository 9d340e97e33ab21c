/*
Package config holds the explicit configuration value that is handed to every
component constructor. Nothing in the module reads configuration from global
state; the CLI loads a Config once through viper and passes it down.
*/
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/cohesivestack/valgo"
	"github.com/spf13/viper"

	"github.com/theapemachine/recall/pkg/errors"
)

const (
	BackendMemory = "memory"
	BackendQdrant = "qdrant"
	BackendNeo4j  = "neo4j"
)

// Config is the root configuration value.
type Config struct {
	Database   Database   `mapstructure:"database"`
	Activation Activation `mapstructure:"activation"`
	Retrieval  Retrieval  `mapstructure:"retrieval"`
	Provider   Provider   `mapstructure:"provider"`
	Logging    Logging    `mapstructure:"logging"`
	Snapshot   Snapshot   `mapstructure:"snapshot"`
}

// Database selects and configures the vector and graph backends.
type Database struct {
	VectorBackend  string        `mapstructure:"vector_backend"`
	VectorDim      int           `mapstructure:"vector_dim"`
	VectorURI      string        `mapstructure:"vector_uri"`
	GraphBackend   string        `mapstructure:"graph_backend"`
	GraphURI       string        `mapstructure:"graph_uri"`
	GraphUser      string        `mapstructure:"graph_user"`
	GraphPassword  string        `mapstructure:"graph_password"`
	GraphDatabase  string        `mapstructure:"graph_database"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// Activation tunes the spreading activation engine and its prefetch cache.
type Activation struct {
	DecayFactor         float64                       `mapstructure:"decay_factor"`
	ActivationThreshold float64                       `mapstructure:"activation_threshold"`
	MaxDepth            int                           `mapstructure:"max_depth"`
	CacheSize           int                           `mapstructure:"cache_size"`
	CrossModalTrigger   float64                       `mapstructure:"cross_modal_trigger"`
	CrossModalResults   int                           `mapstructure:"cross_modal_results"`
	PrimingSeeds        []string                      `mapstructure:"priming_seeds"`
	ExpansionSeeds      []string                      `mapstructure:"expansion_seeds"`
	Attention           map[string]map[string]float64 `mapstructure:"attention"`
}

// Retrieval bounds how much recalled memory is handed to generation.
type Retrieval struct {
	ContextBudgetItems int `mapstructure:"context_budget_items"`
	ContextBudgetChars int `mapstructure:"context_budget_chars"`
	EpisodicResults    int `mapstructure:"episodic_results"`
}

// Provider selects the embedding and generation collaborators.
type Provider struct {
	Embedder       string        `mapstructure:"embedder"`
	EmbeddingModel string        `mapstructure:"embedding_model"`
	Generator      string        `mapstructure:"generator"`
	Model          string        `mapstructure:"model"`
	Temperature    float64       `mapstructure:"temperature"`
	MaxTokens      int           `mapstructure:"max_tokens"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

// Logging configures the charmbracelet logger.
type Logging struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
	JSON  bool   `mapstructure:"json"`
}

// Snapshot points at the object store used for memory snapshots.
type Snapshot struct {
	Endpoint  string `mapstructure:"endpoint"`
	Bucket    string `mapstructure:"bucket"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Database: Database{
			VectorBackend:  BackendMemory,
			VectorDim:      256,
			GraphBackend:   BackendMemory,
			GraphDatabase:  "neo4j",
			ConnectTimeout: 5 * time.Second,
		},
		Activation: Activation{
			DecayFactor:         0.5,
			ActivationThreshold: 0.1,
			MaxDepth:            3,
			CacheSize:           100,
			CrossModalTrigger:   0.8,
			CrossModalResults:   2,
			PrimingSeeds:        []string{"Python", "Bug", "PowerShell", "API", "学习", "朋友"},
			ExpansionSeeds:      []string{"Docker", "JavaScript", "Framework", "Exception"},
		},
		Retrieval: Retrieval{
			ContextBudgetItems: 5,
			ContextBudgetChars: 200,
			EpisodicResults:    3,
		},
		Provider: Provider{
			Embedder:    "fallback",
			Temperature: 0.7,
			MaxTokens:   2000,
			Timeout:     30 * time.Second,
		},
		Logging: Logging{
			Level: "info",
		},
		Snapshot: Snapshot{
			Bucket: "recall-snapshots",
		},
	}
}

/*
Load reads a Config out of v, starting from Default so that absent keys keep
their default values. Environment variables prefixed with RECALL_ override
file values, e.g. RECALL_ACTIVATION_DECAY_FACTOR.
*/
func Load(v *viper.Viper) (Config, error) {
	cfg := Default()

	if v == nil {
		return cfg, cfg.Validate()
	}

	v.SetEnvPrefix("RECALL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	registerDefaults(v, cfg)

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err)
	}

	return cfg, cfg.Validate()
}

/*
registerDefaults makes every key known to viper, which AutomaticEnv needs in
order to pick environment overrides up during Unmarshal.
*/
func registerDefaults(v *viper.Viper, cfg Config) {
	defaults := map[string]any{
		"database.vector_backend":          cfg.Database.VectorBackend,
		"database.vector_dim":              cfg.Database.VectorDim,
		"database.vector_uri":              cfg.Database.VectorURI,
		"database.graph_backend":           cfg.Database.GraphBackend,
		"database.graph_uri":               cfg.Database.GraphURI,
		"database.graph_user":              cfg.Database.GraphUser,
		"database.graph_password":          cfg.Database.GraphPassword,
		"database.graph_database":          cfg.Database.GraphDatabase,
		"database.connect_timeout":         cfg.Database.ConnectTimeout,
		"activation.decay_factor":          cfg.Activation.DecayFactor,
		"activation.activation_threshold":  cfg.Activation.ActivationThreshold,
		"activation.max_depth":             cfg.Activation.MaxDepth,
		"activation.cache_size":            cfg.Activation.CacheSize,
		"activation.cross_modal_trigger":   cfg.Activation.CrossModalTrigger,
		"activation.cross_modal_results":   cfg.Activation.CrossModalResults,
		"activation.priming_seeds":         cfg.Activation.PrimingSeeds,
		"activation.expansion_seeds":       cfg.Activation.ExpansionSeeds,
		"retrieval.context_budget_items":   cfg.Retrieval.ContextBudgetItems,
		"retrieval.context_budget_chars":   cfg.Retrieval.ContextBudgetChars,
		"retrieval.episodic_results":       cfg.Retrieval.EpisodicResults,
		"provider.embedder":                cfg.Provider.Embedder,
		"provider.embedding_model":         cfg.Provider.EmbeddingModel,
		"provider.generator":               cfg.Provider.Generator,
		"provider.model":                   cfg.Provider.Model,
		"provider.temperature":             cfg.Provider.Temperature,
		"provider.max_tokens":              cfg.Provider.MaxTokens,
		"provider.timeout":                 cfg.Provider.Timeout,
		"logging.level":                    cfg.Logging.Level,
		"logging.file":                     cfg.Logging.File,
		"logging.json":                     cfg.Logging.JSON,
		"snapshot.endpoint":                cfg.Snapshot.Endpoint,
		"snapshot.bucket":                  cfg.Snapshot.Bucket,
		"snapshot.access_key":              cfg.Snapshot.AccessKey,
		"snapshot.secret_key":              cfg.Snapshot.SecretKey,
		"snapshot.use_ssl":                 cfg.Snapshot.UseSSL,
	}

	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

/*
Validate checks the static configuration. A failure here is the only
condition the module treats as fatal, and only at construction time.
*/
func (cfg Config) Validate() error {
	val := valgo.Is(
		valgo.Int(cfg.Database.VectorDim, "database.vector_dim").GreaterThan(0),
	).Is(
		valgo.String(cfg.Database.VectorBackend, "database.vector_backend").InSlice([]string{BackendMemory, BackendQdrant}),
	).Is(
		valgo.String(cfg.Database.GraphBackend, "database.graph_backend").InSlice([]string{BackendMemory, BackendNeo4j}),
	).Is(
		valgo.Float64(cfg.Activation.DecayFactor, "activation.decay_factor").GreaterOrEqualTo(0),
	).Is(
		valgo.Float64(cfg.Activation.ActivationThreshold, "activation.activation_threshold").GreaterOrEqualTo(0),
	).Is(
		valgo.Int(cfg.Activation.MaxDepth, "activation.max_depth").GreaterThan(0),
	).Is(
		valgo.Int(cfg.Activation.CacheSize, "activation.cache_size").GreaterOrEqualTo(0),
	).Is(
		valgo.Int(cfg.Activation.CrossModalResults, "activation.cross_modal_results").GreaterOrEqualTo(0),
	).Is(
		valgo.Int(cfg.Retrieval.ContextBudgetItems, "retrieval.context_budget_items").GreaterThan(0),
	).Is(
		valgo.Int(cfg.Retrieval.ContextBudgetChars, "retrieval.context_budget_chars").GreaterThan(0),
	)

	if cfg.Database.VectorBackend == BackendQdrant {
		val.Is(valgo.String(cfg.Database.VectorURI, "database.vector_uri").Not().Blank())
	}

	if cfg.Database.GraphBackend == BackendNeo4j {
		val.Is(valgo.String(cfg.Database.GraphURI, "database.graph_uri").Not().Blank())
	}

	if !val.Valid() {
		return fmt.Errorf("%w: %v", errors.ErrInvalidConfig, val.Error())
	}

	return nil
}
