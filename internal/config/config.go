package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultPath is used when neither --config nor MARKETPULSE_CONFIG is set.
	DefaultPath = "config/marketpulse.yaml"
	envPrefix   = "marketpulse"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for marketpulse.
type Config struct {
	Storage  Storage        `mapstructure:"storage" yaml:"storage"`
	Alpaca   Alpaca         `mapstructure:"alpaca" yaml:"alpaca"`
	Logging  Logging        `mapstructure:"logging" yaml:"logging"`
	Gather   GatherConfig   `mapstructure:"gather" yaml:"gather"`
	Backtest BacktestConfig `mapstructure:"backtest" yaml:"backtest"`
	Model    ModelConfig    `mapstructure:"model" yaml:"model"`
	Metrics  MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
	Report   ReportConfig   `mapstructure:"report" yaml:"report"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `mapstructure:"data_dir" yaml:"data_dir"`
	SQLitePath string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
}

// Alpaca holds credentials and endpoints for the Alpaca market data API.
type Alpaca struct {
	APIKey    string `mapstructure:"api_key" yaml:"api_key"`
	APISecret string `mapstructure:"api_secret" yaml:"api_secret"`
	DataURL   string `mapstructure:"data_url" yaml:"data_url"`
	// TradingURL is the trading API used for the session calendar. Empty
	// falls back to weekday arithmetic.
	TradingURL string `mapstructure:"trading_url" yaml:"trading_url"`
	Feed       string `mapstructure:"feed" yaml:"feed"`
}

// Logging configures the application logger.
type Logging struct {
	Level            string   `mapstructure:"level" yaml:"level"`
	Encoding         string   `mapstructure:"encoding" yaml:"encoding"`
	OutputPaths      []string `mapstructure:"output_paths" yaml:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths" yaml:"error_output_paths"`
}

// GatherConfig controls daily price ingestion.
type GatherConfig struct {
	Tickers         []string      `mapstructure:"tickers" yaml:"tickers"`
	StartDate       string        `mapstructure:"start_date" yaml:"start_date"`
	BatchSize       int           `mapstructure:"batch_size" yaml:"batch_size"`
	MaxWorkers      int           `mapstructure:"max_workers" yaml:"max_workers"`
	RateLimitPerMin int           `mapstructure:"rate_limit_per_min" yaml:"rate_limit_per_min"`
	MaxRetries      int           `mapstructure:"max_retries" yaml:"max_retries"`
	RetryDelay      time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
}

// BacktestConfig defines the rule-based strategy run.
type BacktestConfig struct {
	StrategyID    string  `mapstructure:"strategy_id" yaml:"strategy_id"`
	MinRows       int     `mapstructure:"min_rows" yaml:"min_rows"`
	StartEquity   float64 `mapstructure:"start_equity" yaml:"start_equity"`
	RiskFreeDaily float64 `mapstructure:"risk_free_daily" yaml:"risk_free_daily"`
	MaxWorkers    int     `mapstructure:"max_workers" yaml:"max_workers"`
}

// ModelConfig defines the classifier run.
type ModelConfig struct {
	ModelID    string   `mapstructure:"model_id" yaml:"model_id"`
	Features   []string `mapstructure:"features" yaml:"features"`
	Horizon    int      `mapstructure:"horizon" yaml:"horizon"`
	Threshold  float64  `mapstructure:"threshold" yaml:"threshold"`
	TrainRatio float64  `mapstructure:"train_ratio" yaml:"train_ratio"`
	MinTrain   int      `mapstructure:"min_train" yaml:"min_train"`
	MinTest    int      `mapstructure:"min_test" yaml:"min_test"`
	C          float64  `mapstructure:"c" yaml:"c"`
	MaxIter    int      `mapstructure:"max_iter" yaml:"max_iter"`
}

// MetricsConfig controls the Prometheus textfile written after each run.
type MetricsConfig struct {
	TextfilePath string `mapstructure:"textfile_path" yaml:"textfile_path"`
}

// ReportConfig controls report output.
type ReportConfig struct {
	XLSXPath string `mapstructure:"xlsx_path" yaml:"xlsx_path"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, applies defaults
// and environment variable overrides, and validates the result. An empty
// path uses MARKETPULSE_CONFIG or DefaultPath; a missing default file is not
// an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	explicit := path != ""
	if !explicit {
		path = os.Getenv("MARKETPULSE_CONFIG")
		explicit = path != ""
	}
	if path == "" {
		path = DefaultPath
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("reading config %q: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("storage.data_dir", "data")
	v.SetDefault("storage.sqlite_path", "data/marketpulse.db")

	v.SetDefault("alpaca.data_url", "https://data.alpaca.markets")
	v.SetDefault("alpaca.trading_url", "https://paper-api.alpaca.markets")
	v.SetDefault("alpaca.feed", "iex")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.encoding", "console")
	v.SetDefault("logging.output_paths", []string{"stdout"})
	v.SetDefault("logging.error_output_paths", []string{"stderr"})

	v.SetDefault("gather.start_date", "2020-01-01")
	v.SetDefault("gather.batch_size", 100)
	v.SetDefault("gather.max_workers", 4)
	v.SetDefault("gather.rate_limit_per_min", 200)
	v.SetDefault("gather.max_retries", 3)
	v.SetDefault("gather.retry_delay", "2s")

	v.SetDefault("backtest.strategy_id", "MA20_GT_MA50")
	v.SetDefault("backtest.min_rows", 60)
	v.SetDefault("backtest.start_equity", 1.0)
	v.SetDefault("backtest.risk_free_daily", 0.0)
	v.SetDefault("backtest.max_workers", 4)

	v.SetDefault("model.model_id", "LR_TECH_SENT_V2")
	v.SetDefault("model.features", []string{"ma_20", "ma_50", "volatility_20", "avg_sentiment"})
	v.SetDefault("model.horizon", 5)
	v.SetDefault("model.threshold", 0.55)
	v.SetDefault("model.train_ratio", 0.75)
	v.SetDefault("model.min_train", 120)
	v.SetDefault("model.min_test", 30)
	v.SetDefault("model.c", 1.0)
	v.SetDefault("model.max_iter", 2000)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Standard Alpaca env vars (highest priority, the names used by the SDK).
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var err error

	if c.Storage.DataDir == "" {
		err = multierr.Append(err, errors.New("storage.data_dir must not be empty"))
	}
	if c.Storage.SQLitePath == "" {
		err = multierr.Append(err, errors.New("storage.sqlite_path must not be empty"))
	}
	switch c.Logging.Encoding {
	case "console", "json":
	default:
		err = multierr.Append(err, fmt.Errorf("logging.encoding %q must be console or json", c.Logging.Encoding))
	}
	if _, perr := time.Parse(time.DateOnly, c.Gather.StartDate); perr != nil {
		err = multierr.Append(err, fmt.Errorf("gather.start_date: %w", perr))
	}
	if c.Gather.BatchSize <= 0 {
		err = multierr.Append(err, errors.New("gather.batch_size must be positive"))
	}
	if c.Backtest.StrategyID == "" {
		err = multierr.Append(err, errors.New("backtest.strategy_id must not be empty"))
	}
	if c.Backtest.MinRows < 2 {
		err = multierr.Append(err, errors.New("backtest.min_rows must be at least 2"))
	}
	if c.Backtest.StartEquity <= 0 {
		err = multierr.Append(err, errors.New("backtest.start_equity must be positive"))
	}
	if c.Backtest.MaxWorkers <= 0 {
		err = multierr.Append(err, errors.New("backtest.max_workers must be positive"))
	}
	if c.Model.ModelID == "" {
		err = multierr.Append(err, errors.New("model.model_id must not be empty"))
	}
	if len(c.Model.Features) == 0 {
		err = multierr.Append(err, errors.New("model.features must not be empty"))
	}
	if c.Model.Horizon <= 0 {
		err = multierr.Append(err, errors.New("model.horizon must be positive"))
	}
	if c.Model.Threshold < 0 || c.Model.Threshold > 1 {
		err = multierr.Append(err, errors.New("model.threshold must lie in [0,1]"))
	}
	if c.Model.TrainRatio <= 0 || c.Model.TrainRatio >= 1 {
		err = multierr.Append(err, errors.New("model.train_ratio must lie in (0,1)"))
	}
	if c.Model.MinTrain < 0 || c.Model.MinTest < 0 {
		err = multierr.Append(err, errors.New("model.min_train and model.min_test must not be negative"))
	}
	if c.Model.C <= 0 {
		err = multierr.Append(err, errors.New("model.c must be positive"))
	}

	return err
}

// Write dumps cfg as YAML. Credentials are masked.
func Write(w io.Writer, cfg *Config) error {
	out := *cfg
	out.Alpaca.APIKey = mask(out.Alpaca.APIKey)
	out.Alpaca.APISecret = mask(out.Alpaca.APISecret)

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&out); err != nil {
		return err
	}
	return enc.Close()
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "****"
}
