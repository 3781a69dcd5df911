package common

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// DefaultConfigFile is picked up from the working directory when no --config flag is given.
const DefaultConfigFile = "addiction.toml"

// Config represents the application configuration
type Config struct {
	Storage   StorageConfig   `toml:"storage"`
	Logging   LoggingConfig   `toml:"logging"`
	Importer  ImporterConfig  `toml:"importer"`
	Crawler   CrawlerConfig   `toml:"crawler"`
	Chunker   ChunkerConfig   `toml:"chunker"`
	Embedding EmbeddingConfig `toml:"embedding"`
	Server    ServerConfig    `toml:"server"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path       string `toml:"path"`        // Database directory path
	SyncWrites bool   `toml:"sync_writes"` // fsync every commit
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs (default: "15:04:05")
	Dir        string   `toml:"dir"`         // Directory for log and crash files
}

// ImporterConfig controls how Pocket CSV exports are parsed
type ImporterConfig struct {
	TagDelimiters string `toml:"tag_delimiters"` // Any of these runes separates tags (default: "|,")
}

// CrawlerConfig contains article fetching configuration
type CrawlerConfig struct {
	UserAgent         string   `toml:"user_agent"`
	Concurrency       int      `toml:"concurrency"`        // Number of fetch workers
	MaxAttempts       int      `toml:"max_attempts"`       // Attempts before a transient failure becomes final
	RequestTimeout    Duration `toml:"request_timeout"`    // Per-request timeout, covers body read
	InitialBackoff    Duration `toml:"initial_backoff"`    // Delay before the first retry
	MaxBackoff        Duration `toml:"max_backoff"`        // Upper bound for retry delay
	BackoffMultiplier float64  `toml:"backoff_multiplier"` // Growth factor between retries
	MaxRedirects      int      `toml:"max_redirects"`
	MaxBodySize       int64    `toml:"max_body_size"`     // Bytes read from a response body
	PerHostInterval   Duration `toml:"per_host_interval"` // Minimum spacing between requests to one host
}

// ChunkerConfig controls how extracted text is split before embedding
type ChunkerConfig struct {
	MaxChars int `toml:"max_chars"` // Upper bound per chunk, counted in runes
	Overlap  int `toml:"overlap"`   // Trailing context carried into the next chunk
}

// EmbeddingConfig selects and tunes the embedding provider
type EmbeddingConfig struct {
	Provider          string   `toml:"provider"` // "openrouter" or "gemini"
	BaseURL           string   `toml:"base_url"` // OpenAI-compatible endpoint root
	APIKey            string   `toml:"api_key"`
	Model             string   `toml:"model"`
	Dimension         int      `toml:"dimension"` // Expected vector size, 0 accepts whatever the model returns
	BatchSize         int      `toml:"batch_size"`
	Concurrency       int      `toml:"concurrency"`
	RequestsPerSecond float64  `toml:"requests_per_second"`
	Timeout           Duration `toml:"timeout"`
	MaxAttempts       int      `toml:"max_attempts"`
	InitialBackoff    Duration `toml:"initial_backoff"`
	MaxBackoff        Duration `toml:"max_backoff"`
	UserAgent         string   `toml:"user_agent"` // Sent to OpenAI-compatible endpoints
}

type ServerConfig struct {
	Port         int    `toml:"port"`
	Host         string `toml:"host"`
	TemplatesDir string `toml:"templates_dir"` // Page templates here replace the built-in ones of the same name
}

// Duration is a time.Duration that reads and writes as a Go duration string ("30s", "5m").
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	*d = Duration(parsed)
	return nil
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "addiction.db",
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout"},
			TimeFormat: "15:04:05",
			Dir:        "logs",
		},
		Importer: ImporterConfig{
			TagDelimiters: "|,",
		},
		Crawler: CrawlerConfig{
			UserAgent:         "reading-addiction/" + GetVersion() + " bot",
			Concurrency:       16,
			MaxAttempts:       3,
			RequestTimeout:    Duration(30 * time.Second),
			InitialBackoff:    Duration(time.Second),
			MaxBackoff:        Duration(30 * time.Second),
			BackoffMultiplier: 2.0,
			MaxRedirects:      10,
			MaxBodySize:       10 * 1024 * 1024, // 10 MiB
			PerHostInterval:   Duration(250 * time.Millisecond),
		},
		Chunker: ChunkerConfig{
			MaxChars: 5000,
			Overlap:  200,
		},
		Embedding: EmbeddingConfig{
			Provider:          "openrouter",
			BaseURL:           "https://openrouter.ai/api/v1",
			Model:             "qwen/qwen3-embedding-8b",
			BatchSize:         32,
			Concurrency:       2,
			RequestsPerSecond: 2,
			Timeout:           Duration(60 * time.Second),
			MaxAttempts:       4,
			InitialBackoff:    Duration(2 * time.Second),
			MaxBackoff:        Duration(time.Minute),
			UserAgent:         "reading-addiction/" + GetVersion(),
		},
		Server: ServerConfig{
			Host: "localhost",
			Port: 3000,
		},
	}
}

// LoadFromFiles loads configuration from multiple files with priority: defaults -> file1 -> file2 -> ... -> env.
// Later files override earlier ones. With no paths, addiction.toml in the working directory is used if present.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	if len(paths) == 0 {
		if _, err := os.Stat(DefaultConfigFile); err == nil {
			paths = []string{DefaultConfigFile}
		}
	}

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	if err := applyEnvOverrides(config); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies ADDICTION_* environment variables on top of file configuration
func applyEnvOverrides(config *Config) error {
	var errs []error

	envString := func(name string, target *string) {
		if v := os.Getenv(name); v != "" {
			*target = v
		}
	}
	envInt := func(name string, target *int) {
		if v := os.Getenv(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			*target = n
		}
	}
	envFloat := func(name string, target *float64) {
		if v := os.Getenv(name); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			*target = f
		}
	}
	envDuration := func(name string, target *Duration) {
		if v := os.Getenv(name); v != "" {
			if err := target.UnmarshalText([]byte(v)); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
			}
		}
	}

	envString("ADDICTION_DB", &config.Storage.Badger.Path)

	envString("ADDICTION_LOG_LEVEL", &config.Logging.Level)
	envString("ADDICTION_LOG_DIR", &config.Logging.Dir)
	if output := os.Getenv("ADDICTION_LOG_OUTPUT"); output != "" {
		config.Logging.Output = splitList(output)
	}

	envString("ADDICTION_IMPORTER_TAG_DELIMITERS", &config.Importer.TagDelimiters)

	envString("ADDICTION_CRAWLER_USER_AGENT", &config.Crawler.UserAgent)
	envInt("ADDICTION_CRAWLER_CONCURRENCY", &config.Crawler.Concurrency)
	envInt("ADDICTION_CRAWLER_MAX_ATTEMPTS", &config.Crawler.MaxAttempts)
	envDuration("ADDICTION_CRAWLER_REQUEST_TIMEOUT", &config.Crawler.RequestTimeout)

	envInt("ADDICTION_CHUNKER_MAX_CHARS", &config.Chunker.MaxChars)
	envInt("ADDICTION_CHUNKER_OVERLAP", &config.Chunker.Overlap)

	envString("ADDICTION_EMBEDDING_PROVIDER", &config.Embedding.Provider)
	envString("ADDICTION_EMBEDDING_BASE_URL", &config.Embedding.BaseURL)
	envString("ADDICTION_EMBEDDING_MODEL", &config.Embedding.Model)
	envInt("ADDICTION_EMBEDDING_DIMENSION", &config.Embedding.Dimension)
	envInt("ADDICTION_EMBEDDING_BATCH_SIZE", &config.Embedding.BatchSize)
	envInt("ADDICTION_EMBEDDING_CONCURRENCY", &config.Embedding.Concurrency)
	envFloat("ADDICTION_EMBEDDING_REQUESTS_PER_SECOND", &config.Embedding.RequestsPerSecond)
	envString("ADDICTION_EMBEDDING_USER_AGENT", &config.Embedding.UserAgent)

	// API keys: ADDICTION_ prefix wins over the provider's conventional variable
	if apiKey := os.Getenv("ADDICTION_EMBEDDING_API_KEY"); apiKey != "" {
		config.Embedding.APIKey = apiKey
	} else if config.Embedding.APIKey == "" {
		switch config.Embedding.Provider {
		case "gemini":
			config.Embedding.APIKey = firstEnv("GEMINI_API_KEY", "GOOGLE_API_KEY")
		default:
			config.Embedding.APIKey = os.Getenv("OPENROUTER_API_KEY")
		}
	}

	envString("ADDICTION_SERVER_HOST", &config.Server.Host)
	envInt("ADDICTION_SERVER_PORT", &config.Server.Port)
	envString("ADDICTION_SERVER_TEMPLATES_DIR", &config.Server.TemplatesDir)

	if len(errs) > 0 {
		return fmt.Errorf("invalid environment override: %w", errors.Join(errs...))
	}
	return nil
}

// ApplyFlagOverrides applies command-line flags; they have the highest priority
func ApplyFlagOverrides(config *Config, dbPath string, port int) {
	if dbPath != "" {
		config.Storage.Badger.Path = dbPath
	}
	if port > 0 {
		config.Server.Port = port
	}
}

// Validate rejects settings the pipeline cannot run with
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Storage.Badger.Path) == "" {
		errs = append(errs, errors.New("storage.badger.path is required"))
	}
	if c.Crawler.Concurrency <= 0 {
		errs = append(errs, fmt.Errorf("crawler.concurrency must be positive, got %d", c.Crawler.Concurrency))
	}
	if c.Crawler.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("crawler.max_attempts must be positive, got %d", c.Crawler.MaxAttempts))
	}
	if c.Crawler.RequestTimeout <= 0 {
		errs = append(errs, errors.New("crawler.request_timeout must be positive"))
	}
	if c.Crawler.BackoffMultiplier < 1 {
		errs = append(errs, fmt.Errorf("crawler.backoff_multiplier must be >= 1, got %g", c.Crawler.BackoffMultiplier))
	}
	if c.Crawler.MaxBodySize <= 0 {
		errs = append(errs, errors.New("crawler.max_body_size must be positive"))
	}
	if c.Chunker.MaxChars <= 0 {
		errs = append(errs, fmt.Errorf("chunker.max_chars must be positive, got %d", c.Chunker.MaxChars))
	}
	if c.Chunker.Overlap < 0 || c.Chunker.Overlap >= c.Chunker.MaxChars {
		errs = append(errs, fmt.Errorf("chunker.overlap must be in [0, max_chars), got %d", c.Chunker.Overlap))
	}
	switch c.Embedding.Provider {
	case "openrouter", "gemini":
	default:
		errs = append(errs, fmt.Errorf("embedding.provider must be openrouter or gemini, got %q", c.Embedding.Provider))
	}
	if c.Embedding.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("embedding.batch_size must be positive, got %d", c.Embedding.BatchSize))
	}
	if c.Embedding.Concurrency <= 0 {
		errs = append(errs, fmt.Errorf("embedding.concurrency must be positive, got %d", c.Embedding.Concurrency))
	}
	if c.Embedding.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("embedding.max_attempts must be positive, got %d", c.Embedding.MaxAttempts))
	}
	if c.Embedding.Dimension < 0 {
		errs = append(errs, fmt.Errorf("embedding.dimension must not be negative, got %d", c.Embedding.Dimension))
	}

	return errors.Join(errs...)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func firstEnv(names ...string) string {
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}
