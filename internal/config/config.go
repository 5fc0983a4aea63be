package config

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"
	"time"

	"LevelSentinel/internal/fusion"
	"LevelSentinel/internal/model"
	"LevelSentinel/internal/service"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. SR_TELEGRAM_BOT_TOKEN.
const EnvPrefix = "SR"

// Config holds all application configuration.
type Config struct {
	Env      string `yaml:"env"`
	LogLevel string `yaml:"log_level" split_words:"true"`
	Proxy    string `yaml:"proxy"`

	Symbols    []string `yaml:"symbols"`
	Timeframes []string `yaml:"timeframes"`

	Schedule struct {
		Cron       string `yaml:"cron"`
		RunOnStart bool   `yaml:"run_on_start" split_words:"true"`
	} `yaml:"schedule"`

	DataSource struct {
		Type      string  `yaml:"type"` // binance, rest or mock
		BaseURL   string  `yaml:"base_url" split_words:"true"`
		APIKey    string  `yaml:"api_key" split_words:"true"`
		APISecret string  `yaml:"api_secret" split_words:"true"`
		RateLimit float64 `yaml:"rate_limit" split_words:"true"` // requests per second
	} `yaml:"data_source" split_words:"true"`

	// Candles overrides the per-timeframe candle count.
	Candles map[string]int `yaml:"candles"`

	Database struct {
		Type        string `yaml:"type"` // sqlite, postgres or memory
		SQLitePath  string `yaml:"sqlite_path" envconfig:"SQLITE_PATH"`
		PostgresDSN string `yaml:"postgres_dsn" split_words:"true"`
	} `yaml:"database"`

	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Kafka struct {
		Brokers     []string `yaml:"brokers"`
		LevelsTopic string   `yaml:"levels_topic" split_words:"true"`
		BatchTopic  string   `yaml:"batch_topic" split_words:"true"`
	} `yaml:"kafka"`

	Telegram struct {
		BotToken string `yaml:"bot_token" split_words:"true"`
		ChatID   int64  `yaml:"chat_id" split_words:"true"`
	} `yaml:"telegram"`

	Sentry struct {
		DSN     string `yaml:"dsn"`
		Release string `yaml:"release"`
	} `yaml:"sentry"`

	API struct {
		Addr           string   `yaml:"addr"`
		JWTSecret      string   `yaml:"jwt_secret" split_words:"true"`
		AllowedOrigins []string `yaml:"allowed_origins" split_words:"true"`
	} `yaml:"api"`

	Levels Levels `yaml:"levels" ignored:"true"`
}

// Levels holds algorithm overrides. Zero values keep the defaults.
type Levels struct {
	VolumeProfile struct {
		Bins           map[string]int `yaml:"bins"`
		MinVolumeRatio float64        `yaml:"min_volume_ratio"`
		TopNodes       int            `yaml:"top_nodes"`
		RatioScale     float64        `yaml:"ratio_scale"`
	} `yaml:"volume_profile"`

	Pivots struct {
		Left             int     `yaml:"left"`
		Right            int     `yaml:"right"`
		ClusterTolerance float64 `yaml:"cluster_tolerance"`
		TouchTolerance   float64 `yaml:"touch_tolerance"`
		MinTouches       int     `yaml:"min_touches"`
	} `yaml:"pivots"`

	PriceAction struct {
		WickRatio      float64 `yaml:"wick_ratio"`
		DojiBodyRatio  float64 `yaml:"doji_body_ratio"`
		WickTolerance  float64 `yaml:"wick_tolerance"`
		MinOccurrences int     `yaml:"min_occurrences"`

		PatternWickRatio     float64 `yaml:"pattern_wick_ratio"`
		PatternOppositeRatio float64 `yaml:"pattern_opposite_ratio"`
		EngulfingBodyRatio   float64 `yaml:"engulfing_body_ratio"`
		HammerStrength       int     `yaml:"hammer_strength"`
		ShootingStarStrength int     `yaml:"shooting_star_strength"`
		EngulfingStrength    int     `yaml:"engulfing_strength"`
	} `yaml:"price_action"`

	Fusion struct {
		Weights struct {
			VolumeProfile *float64 `yaml:"volume_profile"`
			PivotPoints   *float64 `yaml:"pivot_points"`
			PriceAction   *float64 `yaml:"price_action"`
		} `yaml:"weights"`
		MergeTolerance      float64 `yaml:"merge_tolerance"`
		MinStrength         int     `yaml:"min_strength"`
		MaxSupportLevels    int     `yaml:"max_support_levels"`
		MaxResistanceLevels int     `yaml:"max_resistance_levels"`
	} `yaml:"fusion"`

	Validity map[string]time.Duration `yaml:"validity"`
}

// Load reads config from a YAML file, then .env, then SR_* environment
// overrides, then fills defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("env overrides: %w", err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Env == "" {
		c.Env = "development"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if len(c.Symbols) == 0 {
		c.Symbols = []string{"BTC", "BNB"}
	}
	if len(c.Timeframes) == 0 {
		c.Timeframes = []string{"15m", "1h", "4h"}
	}
	if c.Schedule.Cron == "" {
		c.Schedule.Cron = "0 */10 * * * *"
	}
	if c.DataSource.Type == "" {
		c.DataSource.Type = "binance"
	}
	if c.DataSource.RateLimit == 0 {
		c.DataSource.RateLimit = 10
	}
	if c.Database.Type == "" {
		c.Database.Type = "sqlite"
	}
	if c.Database.SQLitePath == "" {
		c.Database.SQLitePath = "data/levels.db"
	}
	if c.Kafka.LevelsTopic == "" {
		c.Kafka.LevelsTopic = "sr.levels"
	}
	if c.Kafka.BatchTopic == "" {
		c.Kafka.BatchTopic = "sr.batches"
	}
	if c.API.Addr == "" {
		c.API.Addr = ":8080"
	}
}

// Validate checks the configuration is complete and consistent.
func (c *Config) Validate() error {
	if _, err := c.ParsedSymbols(); err != nil {
		return fmt.Errorf("symbols: %w", err)
	}
	if _, err := c.ParsedTimeframes(); err != nil {
		return fmt.Errorf("timeframes: %w", err)
	}

	switch c.DataSource.Type {
	case "binance", "mock":
	case "rest":
		if c.DataSource.BaseURL == "" {
			return fmt.Errorf("data_source.base_url is required for the rest source")
		}
	default:
		return fmt.Errorf("data_source.type %q is not one of binance, rest, mock", c.DataSource.Type)
	}
	if c.DataSource.RateLimit < 0 {
		return fmt.Errorf("data_source.rate_limit must not be negative")
	}

	switch c.Database.Type {
	case "sqlite", "memory":
	case "postgres":
		if c.Database.PostgresDSN == "" {
			return fmt.Errorf("database.postgres_dsn is required for the postgres store")
		}
	default:
		return fmt.Errorf("database.type %q is not one of sqlite, postgres, memory", c.Database.Type)
	}

	if c.Telegram.BotToken != "" && c.Telegram.ChatID == 0 {
		return fmt.Errorf("telegram.chat_id is required when telegram.bot_token is set")
	}
	if _, err := c.CandleCounts(); err != nil {
		return err
	}
	if _, err := c.Engine(); err != nil {
		return err
	}
	return nil
}

// ParsedSymbols returns the configured symbols.
func (c *Config) ParsedSymbols() ([]model.Symbol, error) {
	return model.ParseSymbols(c.Symbols)
}

// ParsedTimeframes returns the configured timeframes.
func (c *Config) ParsedTimeframes() ([]model.Timeframe, error) {
	return model.ParseTimeframes(c.Timeframes)
}

// CandleCounts returns the default candle counts with the configured
// overrides applied.
func (c *Config) CandleCounts() (map[model.Timeframe]int, error) {
	counts := service.DefaultCandleCounts()
	over, err := timeframeMap("candles", c.Candles)
	if err != nil {
		return nil, err
	}
	for _, tf := range slices.Sorted(maps.Keys(over)) {
		if over[tf] <= 0 {
			return nil, fmt.Errorf("candles.%s must be positive", tf)
		}
		counts[tf] = over[tf]
	}
	return counts, nil
}

// Engine builds the level engine from the defaults and the levels section.
func (c *Config) Engine() (*fusion.Engine, error) {
	e := fusion.NewEngine()
	l := c.Levels

	bins, err := timeframeMap("levels.volume_profile.bins", l.VolumeProfile.Bins)
	if err != nil {
		return nil, err
	}
	for _, tf := range slices.Sorted(maps.Keys(bins)) {
		if bins[tf] <= 0 {
			return nil, fmt.Errorf("levels.volume_profile.bins.%s must be positive", tf)
		}
		e.VolumeProfile.Bins[tf] = bins[tf]
	}
	setFloat(&e.VolumeProfile.MinVolumeRatio, l.VolumeProfile.MinVolumeRatio)
	setInt(&e.VolumeProfile.TopNodes, l.VolumeProfile.TopNodes)
	setFloat(&e.VolumeProfile.RatioScale, l.VolumeProfile.RatioScale)

	setInt(&e.Pivots.Left, l.Pivots.Left)
	setInt(&e.Pivots.Right, l.Pivots.Right)
	setFloat(&e.Pivots.ClusterTolerance, l.Pivots.ClusterTolerance)
	setFloat(&e.Pivots.TouchTolerance, l.Pivots.TouchTolerance)
	setInt(&e.Pivots.MinTouches, l.Pivots.MinTouches)

	setFloat(&e.PriceAction.WickRatio, l.PriceAction.WickRatio)
	setFloat(&e.PriceAction.DojiBodyRatio, l.PriceAction.DojiBodyRatio)
	setFloat(&e.PriceAction.WickTolerance, l.PriceAction.WickTolerance)
	setInt(&e.PriceAction.MinOccurrences, l.PriceAction.MinOccurrences)
	setFloat(&e.PriceAction.PatternWickRatio, l.PriceAction.PatternWickRatio)
	setFloat(&e.PriceAction.PatternOppositeRatio, l.PriceAction.PatternOppositeRatio)
	setFloat(&e.PriceAction.EngulfingBodyRatio, l.PriceAction.EngulfingBodyRatio)
	setInt(&e.PriceAction.HammerStrength, l.PriceAction.HammerStrength)
	setInt(&e.PriceAction.ShootingStarStrength, l.PriceAction.ShootingStarStrength)
	setInt(&e.PriceAction.EngulfingStrength, l.PriceAction.EngulfingStrength)

	w := l.Fusion.Weights
	for _, o := range []struct {
		name string
		src  *float64
		dst  *float64
	}{
		{"volume_profile", w.VolumeProfile, &e.Fusion.Weights.VolumeProfile},
		{"pivot_points", w.PivotPoints, &e.Fusion.Weights.PivotPoints},
		{"price_action", w.PriceAction, &e.Fusion.Weights.PriceAction},
	} {
		if o.src == nil {
			continue
		}
		if *o.src < 0 {
			return nil, fmt.Errorf("levels.fusion.weights.%s must not be negative", o.name)
		}
		*o.dst = *o.src
	}
	setFloat(&e.Fusion.MergeTolerance, l.Fusion.MergeTolerance)
	setInt(&e.Fusion.MinStrength, l.Fusion.MinStrength)
	setInt(&e.Fusion.MaxSupportLevels, l.Fusion.MaxSupportLevels)
	setInt(&e.Fusion.MaxResistanceLevels, l.Fusion.MaxResistanceLevels)

	validity, err := timeframeMap("levels.validity", l.Validity)
	if err != nil {
		return nil, err
	}
	for _, tf := range slices.Sorted(maps.Keys(validity)) {
		if validity[tf] <= 0 {
			return nil, fmt.Errorf("levels.validity.%s must be positive", tf)
		}
		e.Validity[tf] = validity[tf]
	}

	if err := checkEngine(e); err != nil {
		return nil, err
	}
	return e, nil
}

// checkEngine range-checks the merged parameters in a fixed order.
func checkEngine(e *fusion.Engine) error {
	for _, c := range []struct {
		name     string
		v        int
		min, max int
	}{
		{"levels.volume_profile.top_nodes", e.VolumeProfile.TopNodes, 1, 0},
		{"levels.pivots.left", e.Pivots.Left, 1, 0},
		{"levels.pivots.right", e.Pivots.Right, 1, 0},
		{"levels.pivots.min_touches", e.Pivots.MinTouches, 1, 0},
		{"levels.price_action.min_occurrences", e.PriceAction.MinOccurrences, 1, 0},
		{"levels.price_action.hammer_strength", e.PriceAction.HammerStrength, 1, 10},
		{"levels.price_action.shooting_star_strength", e.PriceAction.ShootingStarStrength, 1, 10},
		{"levels.price_action.engulfing_strength", e.PriceAction.EngulfingStrength, 1, 10},
		{"levels.fusion.min_strength", e.Fusion.MinStrength, 1, 10},
		{"levels.fusion.max_support_levels", e.Fusion.MaxSupportLevels, 1, 0},
		{"levels.fusion.max_resistance_levels", e.Fusion.MaxResistanceLevels, 1, 0},
	} {
		if c.v < c.min {
			return fmt.Errorf("%s must be at least %d", c.name, c.min)
		}
		if c.max > 0 && c.v > c.max {
			return fmt.Errorf("%s must be at most %d", c.name, c.max)
		}
	}

	for _, c := range []struct {
		name string
		v    float64
	}{
		{"levels.volume_profile.min_volume_ratio", e.VolumeProfile.MinVolumeRatio},
		{"levels.pivots.cluster_tolerance", e.Pivots.ClusterTolerance},
		{"levels.pivots.touch_tolerance", e.Pivots.TouchTolerance},
		{"levels.price_action.wick_tolerance", e.PriceAction.WickTolerance},
		{"levels.fusion.merge_tolerance", e.Fusion.MergeTolerance},
	} {
		if c.v < 0 {
			return fmt.Errorf("%s must not be negative", c.name)
		}
	}
	return nil
}

// timeframeMap converts a timeframe-keyed map, rejecting unknown keys.
func timeframeMap[V any](section string, in map[string]V) (map[model.Timeframe]V, error) {
	out := make(map[model.Timeframe]V, len(in))
	for _, k := range slices.Sorted(maps.Keys(in)) {
		tf, err := model.ParseTimeframe(k)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", section, err)
		}
		out[tf] = in[k]
	}
	return out, nil
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setFloat(dst *float64, v float64) {
	if v != 0 {
		*dst = v
	}
}
