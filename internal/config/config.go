package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the annfeed tools.
type Config struct {
	Service     Service     `yaml:"service"`
	Live        Live        `yaml:"live"`
	Feed        Feed        `yaml:"feed"`
	Relay       Relay       `yaml:"relay"`
	Storage     Storage     `yaml:"storage"`
	Alpaca      Alpaca      `yaml:"alpaca"`
	Attachments Attachments `yaml:"attachments"`
	Logging     Logging     `yaml:"logging"`
}

// Service describes the announcements REST service.
type Service struct {
	Backend         string        `yaml:"backend"` // "rest", "alpaca", or "archive"
	BaseURL         string        `yaml:"base_url"`
	Token           string        `yaml:"token"`
	Timeout         time.Duration `yaml:"timeout"`
	RatePerSecond   float64       `yaml:"rate_per_second"`
	PaginationStyle string        `yaml:"pagination_style"` // "page" or "offset"
	UnfilteredCap   int           `yaml:"unfiltered_cap"`
}

// Live describes the push channel.
type Live struct {
	Transport    string        `yaml:"transport"` // "websocket", "grpc", or "none"
	WebSocketURL string        `yaml:"websocket_url"`
	GRPCAddr     string        `yaml:"grpc_addr"`
	BackoffBase  time.Duration `yaml:"backoff_base"`
	BackoffMax   time.Duration `yaml:"backoff_max"`
}

// Feed holds view and polling parameters.
type Feed struct {
	PageSize           int           `yaml:"page_size"`
	PollInterval       time.Duration `yaml:"poll_interval"`
	MarketPollInterval time.Duration `yaml:"market_poll_interval"`
	ClampLines         int           `yaml:"clamp_lines"`
	ResizeDebounce     time.Duration `yaml:"resize_debounce"`
}

// Relay holds listener configuration for the fan-out relay.
type Relay struct {
	HTTPAddr     string `yaml:"http_addr"`
	GRPCAddr     string `yaml:"grpc_addr"`
	UpstreamURL  string `yaml:"upstream_url"`
	SnapshotSize int    `yaml:"snapshot_size"`
	SeenLimit    int    `yaml:"seen_limit"`
}

// Storage holds paths for the announcement archive.
type Storage struct {
	Backend    string `yaml:"backend"` // "parquet" or "sqlite"
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Alpaca holds credentials and endpoints for the Alpaca news backend.
type Alpaca struct {
	APIKey          string `yaml:"api_key"`
	APISecret       string `yaml:"api_secret"`
	BaseURL         string `yaml:"base_url"`
	DataURL         string `yaml:"data_url"`
	RateLimitPerMin int    `yaml:"rate_limit_per_min"`
}

// Attachments controls where downloaded and viewed files are written.
type Attachments struct {
	DownloadDir string `yaml:"download_dir"`
	Opener      string `yaml:"opener"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Default returns the configuration used when a field is absent from the
// YAML file.
func Default() *Config {
	return &Config{
		Service: Service{
			Backend:         "rest",
			BaseURL:         "http://localhost:8000/api",
			Timeout:         15 * time.Second,
			RatePerSecond:   5,
			PaginationStyle: "page",
			UnfilteredCap:   1000,
		},
		Live: Live{
			Transport:   "websocket",
			BackoffBase: time.Second,
			BackoffMax:  30 * time.Second,
		},
		Feed: Feed{
			PageSize:           20,
			PollInterval:       60 * time.Second,
			MarketPollInterval: 15 * time.Second,
			ClampLines:         3,
			ResizeDebounce:     150 * time.Millisecond,
		},
		Relay: Relay{
			HTTPAddr:     ":8090",
			GRPCAddr:     ":50061",
			SnapshotSize: 200,
			SeenLimit:    50000,
		},
		Storage: Storage{
			Backend: "parquet",
			DataDir: "data",
		},
		Alpaca: Alpaca{
			RateLimitPerMin: 200,
		},
		Attachments: Attachments{
			DownloadDir: "downloads",
		},
		Logging: Logging{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads the YAML configuration file at the given path on top of the
// defaults and then applies environment variable overrides. A ".env" file in
// the working directory, if present, is loaded first without replacing
// variables that are already set.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// LoadOrDefault behaves like Load but falls back to defaults plus
// environment overrides when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, nil
	}
	if !os.IsNotExist(err) {
		return nil, err
	}
	cfg = Default()
	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ANNFEED_API_URL"); v != "" {
		cfg.Service.BaseURL = v
	}
	if v := os.Getenv("ANNFEED_TOKEN"); v != "" {
		cfg.Service.Token = v
	}
	if v := os.Getenv("ANNFEED_BACKEND"); v != "" {
		cfg.Service.Backend = v
	}
	if v := os.Getenv("ANNFEED_PAGINATION_STYLE"); v != "" {
		cfg.Service.PaginationStyle = v
	}

	if v := os.Getenv("ANNFEED_PUSH_TRANSPORT"); v != "" {
		cfg.Live.Transport = v
	}
	if v := os.Getenv("ANNFEED_PUSH_URL"); v != "" {
		cfg.Live.WebSocketURL = v
	}
	if v := os.Getenv("ANNFEED_PUSH_GRPC"); v != "" {
		cfg.Live.GRPCAddr = v
	}

	if v := os.Getenv("ANNFEED_PAGE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Feed.PageSize = n
		}
	}

	if v := os.Getenv("ANNFEED_UPSTREAM_URL"); v != "" {
		cfg.Relay.UpstreamURL = v
	}

	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Standard Alpaca env vars (canonical names used by the SDK).
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}
