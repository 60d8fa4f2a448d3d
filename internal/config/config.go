// Package config handles configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/scenegraph/sgeval/internal/dataset"
	apperrors "github.com/scenegraph/sgeval/internal/pkg/errors"
	"github.com/scenegraph/sgeval/internal/pkg/logger"
)

// Config holds all application configuration.
type Config struct {
	// Server configuration
	Host string `envconfig:"SGEVAL_HOST" yaml:"host"`
	Port int    `envconfig:"SGEVAL_PORT" yaml:"port"`

	// Dataset selection and reference data
	Dataset DatasetConfig `yaml:"dataset"`

	// Metric settings
	Eval EvalConfig `yaml:"eval"`

	// Head/body/tail predicate strata
	Buckets BucketsConfig `yaml:"buckets"`

	// Local report output
	Output OutputConfig `yaml:"output"`

	// Report sinks
	Sink SinkConfig `yaml:"sink"`

	// Event bus configuration
	Bus BusConfig `yaml:"bus"`

	// Logging configuration
	Log LogConfig `yaml:"log"`

	// Security configuration
	Security SecurityConfig `yaml:"security"`
}

// DatasetConfig selects the dataset variant, split and reference files.
type DatasetConfig struct {
	Kind          string `envconfig:"SGEVAL_DATASET_KIND" yaml:"kind"`
	Split         string `envconfig:"SGEVAL_DATASET_SPLIT" yaml:"split"`
	Root          string `envconfig:"SGEVAL_DATASET_ROOT" yaml:"root"`
	ObjectVocab   string `envconfig:"SGEVAL_OBJECT_VOCAB" yaml:"object_vocab"`     // overrides the kind's default
	RelationVocab string `envconfig:"SGEVAL_RELATION_VOCAB" yaml:"relation_vocab"` // overrides the kind's default
	Cooccurrence  string `envconfig:"SGEVAL_COOCCURRENCE" yaml:"cooccurrence"`     // empty disables zero-shot metrics
	NoneClass     string `envconfig:"SGEVAL_NONE_CLASS" yaml:"none_class"`         // empty when the vocabulary has none
	Outputs       string `envconfig:"SGEVAL_OUTPUTS" yaml:"outputs"`               // recorded model outputs (JSONL)
}

// EvalConfig holds metric settings.
type EvalConfig struct {
	ObjectKs         []int  `envconfig:"SGEVAL_OBJECT_KS" yaml:"object_ks"`
	RelationKs       []int  `envconfig:"SGEVAL_RELATION_KS" yaml:"relation_ks"`
	TripletKs        []int  `envconfig:"SGEVAL_TRIPLET_KS" yaml:"triplet_ks"`
	RecallKs         []int  `envconfig:"SGEVAL_RECALL_KS" yaml:"recall_ks"`
	Combination      string `envconfig:"SGEVAL_COMBINATION" yaml:"combination"`
	TripletBranch    string `envconfig:"SGEVAL_TRIPLET_BRANCH" yaml:"triplet_branch"`
	CalRecall        bool   `envconfig:"SGEVAL_CAL_RECALL" yaml:"cal_recall"`
	ProgressInterval int    `envconfig:"SGEVAL_PROGRESS_INTERVAL" yaml:"progress_interval"` // seconds
}

// BucketsConfig defines the predicate strata. Mode "names" uses the name
// lists; mode "frequency" splits by the training counts into thirds.
type BucketsConfig struct {
	Mode   string   `envconfig:"SGEVAL_BUCKETS_MODE" yaml:"mode"`
	Head   []string `yaml:"head"`
	Body   []string `yaml:"body"`
	Tail   []string `yaml:"tail"`
	Counts []int    `envconfig:"SGEVAL_BUCKETS_COUNTS" yaml:"counts"`
}

// OutputConfig holds local report output settings.
type OutputConfig struct {
	Dir           string `envconfig:"SGEVAL_OUTPUT_DIR" yaml:"dir"`
	SaveArtifacts bool   `envconfig:"SGEVAL_SAVE_ARTIFACTS" yaml:"save_artifacts"`
}

// SinkConfig selects where reports go.
type SinkConfig struct {
	Types       []string `envconfig:"SGEVAL_SINKS" yaml:"types"`
	RedisURL    string   `envconfig:"SGEVAL_REDIS_URL" yaml:"redis_url"`
	RedisPrefix string   `envconfig:"SGEVAL_REDIS_PREFIX" yaml:"redis_prefix"`
	RedisTTL    int      `envconfig:"SGEVAL_REDIS_TTL" yaml:"redis_ttl"` // hours, 0 = keep forever
}

// BusConfig holds event bus settings.
type BusConfig struct {
	Type         string `envconfig:"SGEVAL_BUS_TYPE" yaml:"type"`
	KafkaBrokers string `envconfig:"SGEVAL_KAFKA_BROKERS" yaml:"kafka_brokers"`
	KafkaGroup   string `envconfig:"SGEVAL_KAFKA_GROUP" yaml:"kafka_group"`
	KafkaPrefix  string `envconfig:"SGEVAL_KAFKA_TOPIC_PREFIX" yaml:"kafka_topic_prefix"`
	Journal      string `envconfig:"SGEVAL_BUS_JOURNAL" yaml:"journal"` // JSONL event journal, empty = off
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `envconfig:"SGEVAL_LOG_LEVEL" yaml:"level"`
	Format string `envconfig:"SGEVAL_LOG_FORMAT" yaml:"format"`
}

// SecurityConfig holds security settings.
type SecurityConfig struct {
	RateLimit int `envconfig:"SGEVAL_RATE_LIMIT" yaml:"rate_limit"` // requests per second per client, 0 = disabled
}

// Default returns the built-in configuration without reading files or env.
func Default() *Config {
	cfg := &Config{}
	setDefaults(cfg)
	return cfg
}

// Load loads configuration from environment variables and optional config file.
func Load(configPath string) (*Config, error) {
	// Set defaults first
	cfg := Default()

	// Load from YAML file if provided (overrides defaults)
	if configPath != "" {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, apperrors.Wrap(apperrors.CodeConfiguration, "loading config file", err)
		}
	}

	// Override with environment variables (highest priority)
	if err := envconfig.Process("", cfg); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeConfiguration, "processing env config", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables only.
func LoadFromEnv() (*Config, error) {
	return Load("")
}

func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

func setDefaults(cfg *Config) {
	cfg.Host = "0.0.0.0"
	cfg.Port = 8090

	cfg.Dataset = DatasetConfig{
		Kind:      string(dataset.KindWS),
		Split:     string(dataset.SplitValidation),
		Root:      "./data",
		NoneClass: "none",
	}

	cfg.Eval = EvalConfig{
		ObjectKs:         []int{1, 5, 10},
		RelationKs:       []int{1, 3, 5},
		TripletKs:        []int{50, 100},
		RecallKs:         []int{20, 50, 100},
		Combination:      "top1",
		TripletBranch:    "3d",
		CalRecall:        false,
		ProgressInterval: 10,
	}

	cfg.Buckets = BucketsConfig{
		Mode: "names",
	}

	cfg.Output = OutputConfig{
		Dir: "./results",
	}

	cfg.Sink = SinkConfig{
		Types:       []string{"file"},
		RedisURL:    "redis://localhost:6379",
		RedisPrefix: "sgeval:metrics:",
	}

	cfg.Bus = BusConfig{
		Type:       "memory",
		KafkaGroup: "sgeval",
	}

	cfg.Log = LogConfig{
		Level:  "info",
		Format: "text",
	}
}

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var errs []string

	// Server validation
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, "port must be between 1 and 65535")
	}

	// Dataset validation
	if _, err := dataset.ParseKind(c.Dataset.Kind); err != nil {
		errs = append(errs, fmt.Sprintf("invalid dataset kind: %q (must be one of %s)", c.Dataset.Kind, kindList()))
	}
	if _, err := dataset.ParseSplit(c.Dataset.Split); err != nil {
		errs = append(errs, fmt.Sprintf("invalid split: %q (must be train_scans, validation_scans or test_scans)", c.Dataset.Split))
	}

	// Eval validation
	for _, set := range []struct {
		name string
		ks   []int
	}{
		{"object_ks", c.Eval.ObjectKs},
		{"relation_ks", c.Eval.RelationKs},
		{"triplet_ks", c.Eval.TripletKs},
		{"recall_ks", c.Eval.RecallKs},
	} {
		if msg := checkKs(set.name, set.ks); msg != "" {
			errs = append(errs, msg)
		}
	}

	validCombinations := map[string]bool{"top1": true, "predicate": true}
	if !validCombinations[c.Eval.Combination] {
		errs = append(errs, fmt.Sprintf("invalid combination: %s (must be top1 or predicate)", c.Eval.Combination))
	}

	validBranches := map[string]bool{"2d": true, "3d": true}
	if !validBranches[c.Eval.TripletBranch] {
		errs = append(errs, fmt.Sprintf("invalid triplet branch: %s (must be 2d or 3d)", c.Eval.TripletBranch))
	}

	if c.Eval.ProgressInterval < 0 {
		errs = append(errs, "progress_interval must not be negative")
	}

	// Buckets validation
	switch c.Buckets.Mode {
	case "names":
	case "frequency":
		if len(c.Buckets.Counts) == 0 {
			errs = append(errs, "buckets.counts is required in frequency mode")
		}
	default:
		errs = append(errs, fmt.Sprintf("invalid buckets mode: %s (must be names or frequency)", c.Buckets.Mode))
	}

	// Sink validation
	validSinks := map[string]bool{"file": true, "redis": true, "bus": true}
	for _, s := range c.Sink.Types {
		if !validSinks[s] {
			errs = append(errs, fmt.Sprintf("invalid sink type: %s (must be file, redis, or bus)", s))
		}
	}
	if c.Sink.RedisTTL < 0 {
		errs = append(errs, "redis_ttl must not be negative")
	}

	// Bus validation
	validBusTypes := map[string]bool{"memory": true, "kafka": true}
	if !validBusTypes[c.Bus.Type] {
		errs = append(errs, fmt.Sprintf("invalid bus type: %s (must be memory or kafka)", c.Bus.Type))
	}
	if c.Bus.Type == "kafka" && strings.TrimSpace(c.Bus.KafkaBrokers) == "" {
		errs = append(errs, "kafka_brokers is required for the kafka bus")
	}

	// Log validation
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Sprintf("invalid log level: %s (must be debug, info, warn, or error)", c.Log.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		errs = append(errs, fmt.Sprintf("invalid log format: %s (must be text or json)", c.Log.Format))
	}

	// Security validation
	if c.Security.RateLimit < 0 {
		errs = append(errs, "rate_limit must not be negative")
	}

	if len(errs) > 0 {
		return apperrors.ConfigurationError(fmt.Sprintf("config validation failed:\n  - %s", strings.Join(errs, "\n  - ")))
	}

	return nil
}

func checkKs(name string, ks []int) string {
	if len(ks) == 0 {
		return name + " must not be empty"
	}
	for _, k := range ks {
		if k < 1 {
			return fmt.Sprintf("%s must be positive, got %d", name, k)
		}
	}
	return ""
}

func kindList() string {
	kinds := dataset.Kinds()
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	return strings.Join(names, ", ")
}

// Address returns the server address.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// HasSink reports whether the sink type is enabled.
func (c *Config) HasSink(name string) bool {
	for _, s := range c.Sink.Types {
		if s == name {
			return true
		}
	}
	return false
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Log.Level == "debug"
}
