package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the likeness pipeline
type Config struct {
	// Log configuration
	Log LogConfig `mapstructure:"log"`

	// Server configuration
	Server ServerConfig `mapstructure:"server"`

	// Telemetry configuration
	Telemetry TelemetryConfig `mapstructure:"telemetry"`

	// Alert configuration
	Alert AlertConfig `mapstructure:"alert"`

	// Circuit Breaker configuration
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`

	// Backends is the inference endpoint pool, used in order
	Backends []BackendConfig `mapstructure:"backends"`

	Decoding   DecodingConfig   `mapstructure:"decoding"`
	Retry      RetryConfig      `mapstructure:"retry"`
	Similarity SimilarityConfig `mapstructure:"similarity"`
	Cluster    ClusterConfig    `mapstructure:"cluster"`
	Symbolic   SymbolicConfig   `mapstructure:"symbolic"`
	Scoring    ScoringConfig    `mapstructure:"scoring"`
	Features   FeaturesConfig   `mapstructure:"features"`
	Paths      PathsConfig      `mapstructure:"paths"`
}

// AlertConfig holds configuration for alerting
type AlertConfig struct {
	Enabled  bool     `mapstructure:"enabled"`
	SMTPHost string   `mapstructure:"smtp_host"`
	SMTPPort int      `mapstructure:"smtp_port"`
	Username string   `mapstructure:"username"`
	Password string   `mapstructure:"password"`
	From     string   `mapstructure:"from"`
	To       []string `mapstructure:"to"`

	// FailureRatio triggers an alert when a scoring run's call_failed share reaches it
	FailureRatio float64 `mapstructure:"failure_ratio"`
}

// CircuitBreakerConfig holds configuration for circuit breakers
type CircuitBreakerConfig struct {
	Enabled          bool    `mapstructure:"enabled"`
	MaxRequests      uint32  `mapstructure:"max_requests"`
	Interval         int     `mapstructure:"interval"` // in seconds
	Timeout          int     `mapstructure:"timeout"`  // in seconds
	ReadyToTripRatio float64 `mapstructure:"ready_to_trip_ratio"`
}

// TelemetryConfig holds configuration for telemetry
type TelemetryConfig struct {
	ParquetPath string `mapstructure:"parquet_path"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // gin mode: debug, release, test
}

// BackendConfig describes one inference endpoint
type BackendConfig struct {
	Name    string `mapstructure:"name"`
	Kind    string `mapstructure:"kind"` // ollama, openai, gemini
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
	APIKey  string `mapstructure:"api_key"`
}

// DecodingConfig holds the generation parameters sent with every request
type DecodingConfig struct {
	Temperature float32 `mapstructure:"temperature"`
	TopP        float32 `mapstructure:"top_p"`
	Seed        int     `mapstructure:"seed"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// RetryConfig holds the per-call retry policy
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	Delay       time.Duration `mapstructure:"delay"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// SimilarityConfig holds shingle sizes for the similarity features
type SimilarityConfig struct {
	ReferenceNGram    int `mapstructure:"reference_ngram"`
	PeerNGram         int `mapstructure:"peer_ngram"`
	PeerMaxPopulation int `mapstructure:"peer_max_population"`
}

// TierConfig maps a population ceiling to a cluster count
type TierConfig struct {
	MaxPopulation int `mapstructure:"max_population"`
	Clusters      int `mapstructure:"clusters"`
}

// ClusterConfig holds clustering and cluster analysis settings
type ClusterConfig struct {
	NGramMin        int          `mapstructure:"ngram_min"`
	NGramMax        int          `mapstructure:"ngram_max"`
	Tiers           []TierConfig `mapstructure:"tiers"`
	DefaultClusters int          `mapstructure:"default_clusters"`
	MaxClusters     int          `mapstructure:"max_clusters"`
	NInit           int          `mapstructure:"n_init"`
	MaxIter         int          `mapstructure:"max_iter"`
	Seed            uint64       `mapstructure:"seed"`
	SampleSize      int          `mapstructure:"sample_size"`
	RubricExcerpt   int          `mapstructure:"rubric_excerpt"`
}

// SymbolicWeights are the contributions of each surface feature
type SymbolicWeights struct {
	Bold           float64 `mapstructure:"bold"`
	Headings       float64 `mapstructure:"headings"`
	Rules          float64 `mapstructure:"rules"`
	Bullets        float64 `mapstructure:"bullets"`
	Connectives    float64 `mapstructure:"connectives"`
	SentenceLength float64 `mapstructure:"sentence_length"`
}

// SymbolicConfig holds the symbolic scorer settings
type SymbolicConfig struct {
	Weights             SymbolicWeights `mapstructure:"weights"`
	SentenceLengthScale float64         `mapstructure:"sentence_length_scale"`
	MaxScore            float64         `mapstructure:"max_score"`
	Connectives         []string        `mapstructure:"connectives"`
}

// ScoringConfig holds likeness scoring settings
type ScoringConfig struct {
	Concurrency      int     `mapstructure:"concurrency"`
	SuspectThreshold float64 `mapstructure:"suspect_threshold"`
	// FeatureFormat renders prompt features as "tsv" or "yaml"
	FeatureFormat string `mapstructure:"feature_format"`
}

// FeaturesConfig holds feature computation settings
type FeaturesConfig struct {
	ParallelQuestions int `mapstructure:"parallel_questions"`
}

// PathsConfig holds input and output locations
type PathsConfig struct {
	Answers     string `mapstructure:"answers"`
	References  string `mapstructure:"references"`
	Rubrics     string `mapstructure:"rubrics"`
	Tables      string `mapstructure:"tables"`
	Checkpoints string `mapstructure:"checkpoints"`
	CallLog     string `mapstructure:"call_log"`
}

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	// Set defaults
	setDefaults()

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Override with environment variables if present
	overrideWithEnv(config)

	return config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// Log defaults
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "color")

	// Server defaults
	viper.SetDefault("server.host", "localhost")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.mode", "release")

	viper.SetDefault("alert.failure_ratio", 0.5)

	viper.SetDefault("circuit_breaker.enabled", false)
	viper.SetDefault("circuit_breaker.max_requests", 1)
	viper.SetDefault("circuit_breaker.interval", 60)
	viper.SetDefault("circuit_breaker.timeout", 30)
	viper.SetDefault("circuit_breaker.ready_to_trip_ratio", 0.6)

	viper.SetDefault("decoding.temperature", 0.0)
	viper.SetDefault("decoding.top_p", 1.0)
	viper.SetDefault("decoding.seed", 42)
	viper.SetDefault("decoding.max_tokens", 1024)

	viper.SetDefault("retry.max_attempts", 3)
	viper.SetDefault("retry.delay", 2*time.Second)
	viper.SetDefault("retry.timeout", 120*time.Second)

	viper.SetDefault("similarity.reference_ngram", 3)
	viper.SetDefault("similarity.peer_ngram", 3)
	viper.SetDefault("similarity.peer_max_population", 500)

	viper.SetDefault("cluster.ngram_min", 3)
	viper.SetDefault("cluster.ngram_max", 5)
	viper.SetDefault("cluster.tiers", []map[string]any{
		{"max_population": 4, "clusters": 1},
		{"max_population": 10, "clusters": 2},
		{"max_population": 20, "clusters": 3},
	})
	viper.SetDefault("cluster.default_clusters", 4)
	viper.SetDefault("cluster.max_clusters", 4)
	viper.SetDefault("cluster.n_init", 10)
	viper.SetDefault("cluster.max_iter", 300)
	viper.SetDefault("cluster.seed", 42)
	viper.SetDefault("cluster.sample_size", 10)
	viper.SetDefault("cluster.rubric_excerpt", 800)

	viper.SetDefault("symbolic.weights.bold", 0.3)
	viper.SetDefault("symbolic.weights.headings", 0.2)
	viper.SetDefault("symbolic.weights.rules", 0.1)
	viper.SetDefault("symbolic.weights.bullets", 0.1)
	viper.SetDefault("symbolic.weights.connectives", 0.2)
	viper.SetDefault("symbolic.weights.sentence_length", 0.1)
	viper.SetDefault("symbolic.sentence_length_scale", 10.0)
	viper.SetDefault("symbolic.max_score", 1.0)

	viper.SetDefault("scoring.concurrency", 2)
	viper.SetDefault("scoring.suspect_threshold", 0.7)
	viper.SetDefault("scoring.feature_format", "tsv")

	viper.SetDefault("features.parallel_questions", 1)

	viper.SetDefault("paths.answers", "data/answers.yaml")
	viper.SetDefault("paths.references", "data/references")
	viper.SetDefault("paths.rubrics", "data/rubrics")
	viper.SetDefault("paths.tables", "output/tables")
	viper.SetDefault("paths.checkpoints", "output/checkpoints")
	viper.SetDefault("paths.call_log", "output/calls")

	// Telemetry defaults
	home, err := os.UserHomeDir()
	if err == nil {
		defaultPath := filepath.Join(home, ".likeness", "telemetry")
		viper.SetDefault("telemetry.parquet_path", defaultPath)
	}
}

// overrideWithEnv overrides config with environment variables
func overrideWithEnv(config *Config) {
	// OLLAMA_BASE_URLS replaces the configured ollama endpoints
	if urls := os.Getenv("OLLAMA_BASE_URLS"); urls != "" {
		model := os.Getenv("OLLAMA_MODEL")
		var kept []BackendConfig
		for _, b := range config.Backends {
			if strings.EqualFold(b.Kind, "ollama") || b.Kind == "" {
				if model == "" {
					model = b.Model
				}
				continue
			}
			kept = append(kept, b)
		}
		var ollama []BackendConfig
		for i, u := range strings.Split(urls, ",") {
			u = strings.TrimSpace(u)
			if u == "" {
				continue
			}
			ollama = append(ollama, BackendConfig{
				Name:    fmt.Sprintf("ollama-%d", i),
				Kind:    "ollama",
				BaseURL: u,
				Model:   model,
			})
		}
		config.Backends = append(ollama, kept...)
	}

	for i := range config.Backends {
		b := &config.Backends[i]
		if b.APIKey != "" {
			continue
		}
		switch strings.ToLower(b.Kind) {
		case "openai":
			b.APIKey = os.Getenv("OPENAI_API_KEY")
		case "gemini":
			b.APIKey = os.Getenv("GEMINI_API_KEY")
		}
	}

	if dir := os.Getenv("LIKENESS_TABLES_DIR"); dir != "" {
		config.Paths.Tables = dir
	}

	// Server settings
	if host := os.Getenv("SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		var p int
		if _, err := fmt.Sscanf(port, "%d", &p); err == nil {
			config.Server.Port = p
		}
	}

	// Telemetry settings
	if path := os.Getenv("TELEMETRY_PARQUET_PATH"); path != "" {
		config.Telemetry.ParquetPath = path
	}
}

// Validate checks value ranges. Backends are only required when
// requireBackends is set, since feature computation needs none.
func (c *Config) Validate(requireBackends bool) error {
	var errs []error
	if c.Similarity.ReferenceNGram < 1 || c.Similarity.PeerNGram < 1 {
		errs = append(errs, errors.New("similarity n-gram sizes must be >= 1"))
	}
	if c.Cluster.NGramMin < 1 || c.Cluster.NGramMin > c.Cluster.NGramMax {
		errs = append(errs, fmt.Errorf("cluster n-gram range [%d,%d] is invalid", c.Cluster.NGramMin, c.Cluster.NGramMax))
	}
	if c.Scoring.Concurrency < 1 {
		errs = append(errs, errors.New("scoring.concurrency must be >= 1"))
	}
	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, errors.New("retry.max_attempts must be >= 1"))
	}
	if c.Symbolic.MaxScore <= 0 || c.Symbolic.MaxScore > 1 {
		errs = append(errs, fmt.Errorf("symbolic.max_score %v must be in (0,1]", c.Symbolic.MaxScore))
	}
	if c.Scoring.SuspectThreshold < 0 || c.Scoring.SuspectThreshold > 1 {
		errs = append(errs, fmt.Errorf("scoring.suspect_threshold %v must be in [0,1]", c.Scoring.SuspectThreshold))
	}
	if requireBackends && len(c.Backends) == 0 {
		errs = append(errs, errors.New("no backends configured"))
	}
	return errors.Join(errs...)
}
