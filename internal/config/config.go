package config

import (
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/comps-cli/internal/db"
	"github.com/sells-group/comps-cli/internal/listing"
	"github.com/sells-group/comps-cli/internal/model"
	"github.com/sells-group/comps-cli/internal/resilience"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig         `yaml:"store" mapstructure:"store"`
	Log        LogConfig           `yaml:"log" mapstructure:"log"`
	Sync       SyncConfig          `yaml:"sync" mapstructure:"sync"`
	Source     SourceConfig        `yaml:"source" mapstructure:"source"`
	Retry      RetryConfig         `yaml:"retry" mapstructure:"retry"`
	Monitoring MonitoringConfig    `yaml:"monitoring" mapstructure:"monitoring"`
	Templates  map[string][]string `yaml:"templates" mapstructure:"templates"`
	Stopwords  []string            `yaml:"stopwords" mapstructure:"stopwords"`
}

// StoreConfig configures the database backend. For sqlite the URL is a
// file path.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// SyncConfig configures a price sync run.
type SyncConfig struct {
	Category        string   `yaml:"category" mapstructure:"category"`
	Workers         int      `yaml:"workers" mapstructure:"workers"`
	Limit           int      `yaml:"limit" mapstructure:"limit"`
	ScoreGate       int      `yaml:"score_gate" mapstructure:"score_gate"`
	MaxResults      int      `yaml:"max_results" mapstructure:"max_results"`
	PageSize        int      `yaml:"page_size" mapstructure:"page_size"`
	Currency        string   `yaml:"currency" mapstructure:"currency"`
	Table           string   `yaml:"table" mapstructure:"table"`
	CatalogTable    string   `yaml:"catalog_table" mapstructure:"catalog_table"`
	IDColumn        string   `yaml:"id_column" mapstructure:"id_column"`
	Segments        []string `yaml:"segments" mapstructure:"segments"`
	EmptyPolicy     string   `yaml:"empty_policy" mapstructure:"empty_policy"`
	ItemTimeoutSecs int      `yaml:"item_timeout_secs" mapstructure:"item_timeout_secs"`
	HostDelayMs     int      `yaml:"host_delay_ms" mapstructure:"host_delay_ms"`
	LockPath        string   `yaml:"lock_path" mapstructure:"lock_path"`
	Schedule        string   `yaml:"schedule" mapstructure:"schedule"`
}

// SourceConfig describes the marketplace search endpoint.
type SourceConfig struct {
	Name       string `yaml:"name" mapstructure:"name"`
	BaseURL    string `yaml:"base_url" mapstructure:"base_url"`
	Format     string `yaml:"format" mapstructure:"format"`
	Pagination string `yaml:"pagination" mapstructure:"pagination"`

	QueryParam  string `yaml:"query_param" mapstructure:"query_param"`
	PageParam   string `yaml:"page_param" mapstructure:"page_param"`
	OffsetParam string `yaml:"offset_param" mapstructure:"offset_param"`
	LimitParam  string `yaml:"limit_param" mapstructure:"limit_param"`
	CursorParam string `yaml:"cursor_param" mapstructure:"cursor_param"`

	ItemsPath      string `yaml:"items_path" mapstructure:"items_path"`
	TitlePath      string `yaml:"title_path" mapstructure:"title_path"`
	PricePath      string `yaml:"price_path" mapstructure:"price_path"`
	URLPath        string `yaml:"url_path" mapstructure:"url_path"`
	NextCursorPath string `yaml:"next_cursor_path" mapstructure:"next_cursor_path"`

	ItemSelector  string `yaml:"item_selector" mapstructure:"item_selector"`
	TitleSelector string `yaml:"title_selector" mapstructure:"title_selector"`
	PriceSelector string `yaml:"price_selector" mapstructure:"price_selector"`
	LinkSelector  string `yaml:"link_selector" mapstructure:"link_selector"`
	NextSelector  string `yaml:"next_selector" mapstructure:"next_selector"`

	PriceUnit   string            `yaml:"price_unit" mapstructure:"price_unit"`
	UserAgent   string            `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs int               `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	Headers     map[string]string `yaml:"headers" mapstructure:"headers"`
}

// RetryConfig holds the fetch and persist retry policies.
type RetryConfig struct {
	Fetch   RetryPolicyConfig `yaml:"fetch" mapstructure:"fetch"`
	Persist RetryPolicyConfig `yaml:"persist" mapstructure:"persist"`
}

// RetryPolicyConfig is the file form of a resilience.Policy.
type RetryPolicyConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// MonitoringConfig configures run health checks.
type MonitoringConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	LookbackHours        int     `yaml:"lookback_hours" mapstructure:"lookback_hours"`
	MissingRateThreshold float64 `yaml:"missing_rate_threshold" mapstructure:"missing_rate_threshold"`
	MinProcessed         int     `yaml:"min_processed" mapstructure:"min_processed"`
	StaleAfterHours      int     `yaml:"stale_after_hours" mapstructure:"stale_after_hours"`
}

// Policy layers the configured values over base. Unset values keep base.
func (r RetryPolicyConfig) Policy(base resilience.Policy) resilience.Policy {
	return resilience.FromSettings(base, r.MaxAttempts, r.InitialBackoffMs, r.MaxBackoffMs, r.Multiplier, r.JitterFraction)
}

// HTTPConfig converts the source section to a listing.HTTPConfig.
func (s SourceConfig) HTTPConfig() (listing.HTTPConfig, error) {
	pagination, err := listing.ParsePagination(s.Pagination)
	if err != nil {
		return listing.HTTPConfig{}, eris.Wrap(err, "config: source.pagination")
	}
	unit := listing.PriceUnit(strings.ToLower(s.PriceUnit))
	switch unit {
	case "", listing.UnitMajor, listing.UnitMinor:
	default:
		return listing.HTTPConfig{}, eris.Errorf("config: source.price_unit must be major or minor, got %q", s.PriceUnit)
	}
	return listing.HTTPConfig{
		Name:           s.Name,
		BaseURL:        s.BaseURL,
		Format:         strings.ToLower(s.Format),
		Pagination:     pagination,
		QueryParam:     s.QueryParam,
		PageParam:      s.PageParam,
		OffsetParam:    s.OffsetParam,
		LimitParam:     s.LimitParam,
		CursorParam:    s.CursorParam,
		ItemsPath:      s.ItemsPath,
		TitlePath:      s.TitlePath,
		PricePath:      s.PricePath,
		URLPath:        s.URLPath,
		NextCursorPath: s.NextCursorPath,
		ItemSelector:   s.ItemSelector,
		TitleSelector:  s.TitleSelector,
		PriceSelector:  s.PriceSelector,
		LinkSelector:   s.LinkSelector,
		NextSelector:   s.NextSelector,
		PriceUnit:      unit,
		UserAgent:      s.UserAgent,
		Timeout:        time.Duration(s.TimeoutSecs) * time.Second,
		Headers:        s.Headers,
	}, nil
}

// SegmentList parses the configured segments.
func (s SyncConfig) SegmentList() ([]model.Segment, error) {
	out := make([]model.Segment, 0, len(s.Segments))
	for _, raw := range s.Segments {
		seg, ok := model.ParseSegment(strings.ToLower(strings.TrimSpace(raw)))
		if !ok {
			return nil, eris.Errorf("config: unknown segment %q", raw)
		}
		out = append(out, seg)
	}
	return out, nil
}

// ItemTimeout returns the per-item timeout.
func (s SyncConfig) ItemTimeout() time.Duration {
	return time.Duration(s.ItemTimeoutSecs) * time.Second
}

// HostDelay returns the minimum spacing between requests to one host.
func (s SyncConfig) HostDelay() time.Duration {
	return time.Duration(s.HostDelayMs) * time.Millisecond
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("COMPS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("sync.workers", 4)
	v.SetDefault("sync.score_gate", 50)
	v.SetDefault("sync.max_results", 200)
	v.SetDefault("sync.page_size", 50)
	v.SetDefault("sync.currency", "USD")
	v.SetDefault("sync.table", "price_stats")
	v.SetDefault("sync.catalog_table", "catalog_items")
	v.SetDefault("sync.segments", []string{"raw", "graded", "all"})
	v.SetDefault("sync.empty_policy", "skip")
	v.SetDefault("sync.item_timeout_secs", 120)
	v.SetDefault("sync.host_delay_ms", 1000)
	v.SetDefault("sync.lock_path", "/tmp/comps-cli-sync.lock")
	v.SetDefault("source.format", "json")
	v.SetDefault("source.pagination", "offset")
	v.SetDefault("source.query_param", "q")
	v.SetDefault("source.price_unit", "major")
	v.SetDefault("source.user_agent", "comps-cli/1.0")
	v.SetDefault("source.timeout_secs", 30)
	v.SetDefault("retry.fetch.max_attempts", 3)
	v.SetDefault("retry.fetch.initial_backoff_ms", 500)
	v.SetDefault("retry.fetch.max_backoff_ms", 30000)
	v.SetDefault("retry.fetch.multiplier", 2.0)
	v.SetDefault("retry.fetch.jitter_fraction", 0.25)
	v.SetDefault("retry.persist.max_attempts", 5)
	v.SetDefault("retry.persist.initial_backoff_ms", 200)
	v.SetDefault("retry.persist.max_backoff_ms", 5000)
	v.SetDefault("retry.persist.multiplier", 2.0)
	v.SetDefault("retry.persist.jitter_fraction", 0.25)
	v.SetDefault("monitoring.lookback_hours", 24)
	v.SetDefault("monitoring.missing_rate_threshold", 0.5)
	v.SetDefault("monitoring.min_processed", 10)
	v.SetDefault("monitoring.stale_after_hours", 48)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command needs. Mode is "sync" for a full
// run or "store" for commands that only touch the database.
func (c *Config) Validate(mode string) error {
	var problems []string

	if c.Store.DatabaseURL == "" {
		problems = append(problems, "store.database_url is required")
	}
	if _, err := db.ParseDialect(c.Store.Driver); err != nil {
		problems = append(problems, "store.driver must be postgres or sqlite")
	}

	if mode == "sync" {
		if c.Source.BaseURL == "" {
			problems = append(problems, "source.base_url is required")
		}
		if c.Sync.Workers < 1 {
			problems = append(problems, "sync.workers must be at least 1")
		}
		if c.Sync.ScoreGate < 0 || c.Sync.ScoreGate > 100 {
			problems = append(problems, "sync.score_gate must be between 0 and 100")
		}
		if c.Sync.MaxResults < 0 {
			problems = append(problems, "sync.max_results must not be negative")
		}
		switch c.Sync.EmptyPolicy {
		case "", "skip", "heartbeat":
		default:
			problems = append(problems, "sync.empty_policy must be skip or heartbeat")
		}
		if _, err := c.Sync.SegmentList(); err != nil {
			problems = append(problems, "sync.segments: "+err.Error())
		}
		if c.Retry.Fetch.MaxAttempts < 1 || c.Retry.Persist.MaxAttempts < 1 {
			problems = append(problems, "retry max_attempts must be at least 1")
		}
	}

	if len(problems) > 0 {
		return eris.Errorf("config: invalid: %s", strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger. Format "auto" picks the
// console encoder when stderr is a terminal.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if consoleFormat(cfg.Format) {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}

func consoleFormat(format string) bool {
	switch format {
	case "console":
		return true
	case "auto":
		fd := os.Stderr.Fd()
		return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
	default:
		return false
	}
}
