package engine

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"qxbot/pkg/confkit"
)

// Config carries every knob of the risk-managed execution engine: sizing
// bounds, streak thresholds, the daily loss circuit breaker, cooldowns and
// the signal thresholds. Trading is disabled unless switched on explicitly;
// a disabled engine still runs full cycles and logs the orders it would
// have placed.
type Config struct {
	TradingEnabled bool `yaml:"trading_enabled"`

	BasePercent float64 `yaml:"base_percent"`
	MinPercent  float64 `yaml:"min_percent"`
	MaxPercent  float64 `yaml:"max_percent"`

	WinStreakThreshold  int `yaml:"win_streak_threshold"`
	LossStreakThreshold int `yaml:"loss_streak_threshold"`

	DailyLossLimitPercent float64 `yaml:"daily_loss_limit_percent"`

	CooldownRaw      string        `yaml:"cooldown"`
	Cooldown         time.Duration `yaml:"-"`
	CycleIntervalRaw string        `yaml:"cycle_interval"`
	CycleInterval    time.Duration `yaml:"-"`
	TradeDurationRaw string        `yaml:"trade_duration"`
	TradeDuration    time.Duration `yaml:"-"`

	MinAmount float64 `yaml:"min_amount"`
	MaxAmount float64 `yaml:"max_amount"`

	MinPayoutPercent float64 `yaml:"min_payout_percent"`

	RSIBuyThreshold  float64 `yaml:"rsi_buy_threshold"`
	RSISellThreshold float64 `yaml:"rsi_sell_threshold"`
	ATRMax           float64 `yaml:"atr_max"`

	// SnapshotPath, when set, points at the file the day risk snapshot is
	// persisted to after every cycle and restored from at startup.
	SnapshotPath string `yaml:"snapshot_path"`
}

// LoadConfig reads engine configuration from disk.
func LoadConfig(path string) (*Config, error) {
	confkit.LoadDotenvOnce()
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open engine config: %w", err)
	}
	defer file.Close()
	return LoadConfigFromReader(file)
}

// MustLoad reads engine configuration from the default project location and panics on error.
func MustLoad() *Config {
	path := confkit.MustProjectPath("etc/engine.yaml")
	cfg, err := LoadConfig(path)
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadConfigFromReader constructs a Config from an io.Reader.
func LoadConfigFromReader(r io.Reader) (*Config, error) {
	confkit.LoadDotenvOnce()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read engine config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal engine config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.parseDurations(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.BasePercent == 0 {
		c.BasePercent = 5
	}
	if c.MinPercent == 0 {
		c.MinPercent = 2
	}
	if c.MaxPercent == 0 {
		c.MaxPercent = 5
	}
	if c.WinStreakThreshold == 0 {
		c.WinStreakThreshold = 2
	}
	if c.LossStreakThreshold == 0 {
		c.LossStreakThreshold = 2
	}
	if c.DailyLossLimitPercent == 0 {
		c.DailyLossLimitPercent = 10
	}
	if strings.TrimSpace(c.CooldownRaw) == "" {
		c.CooldownRaw = "5m"
	}
	if strings.TrimSpace(c.CycleIntervalRaw) == "" {
		c.CycleIntervalRaw = "60s"
	}
	if strings.TrimSpace(c.TradeDurationRaw) == "" {
		c.TradeDurationRaw = "120s"
	}
	if c.MinAmount == 0 {
		c.MinAmount = 1
	}
	if c.MaxAmount == 0 {
		c.MaxAmount = 5000
	}
	if c.RSIBuyThreshold == 0 {
		c.RSIBuyThreshold = 35
	}
	if c.RSISellThreshold == 0 {
		c.RSISellThreshold = 65
	}
	if c.ATRMax == 0 {
		c.ATRMax = 0.05
	}
}

func (c *Config) parseDurations() error {
	for _, d := range []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"cooldown", c.CooldownRaw, &c.Cooldown},
		{"cycle_interval", c.CycleIntervalRaw, &c.CycleInterval},
		{"trade_duration", c.TradeDurationRaw, &c.TradeDuration},
	} {
		v, err := time.ParseDuration(d.raw)
		if err != nil || v <= 0 {
			return fmt.Errorf("engine config: invalid %s %q", d.name, d.raw)
		}
		*d.dst = v
	}
	return nil
}

// Validate rejects configurations the engine cannot run safely under.
func (c *Config) Validate() error {
	if c.MinPercent <= 0 {
		return fmt.Errorf("engine config: min_percent must be positive")
	}
	if c.MaxPercent < c.MinPercent {
		return fmt.Errorf("engine config: max_percent %.2f below min_percent %.2f", c.MaxPercent, c.MinPercent)
	}
	if c.BasePercent < c.MinPercent || c.BasePercent > c.MaxPercent {
		return fmt.Errorf("engine config: base_percent %.2f outside [%.2f, %.2f]",
			c.BasePercent, c.MinPercent, c.MaxPercent)
	}
	if c.WinStreakThreshold < 1 || c.LossStreakThreshold < 1 {
		return fmt.Errorf("engine config: streak thresholds must be at least 1")
	}
	if c.DailyLossLimitPercent <= 0 || c.DailyLossLimitPercent > 100 {
		return fmt.Errorf("engine config: daily_loss_limit_percent %.2f outside (0, 100]", c.DailyLossLimitPercent)
	}
	if c.MinAmount <= 0 {
		return fmt.Errorf("engine config: min_amount must be positive")
	}
	if c.MaxAmount < c.MinAmount {
		return fmt.Errorf("engine config: max_amount %.2f below min_amount %.2f", c.MaxAmount, c.MinAmount)
	}
	if c.MinPayoutPercent < 0 || c.MinPayoutPercent > 100 {
		return fmt.Errorf("engine config: min_payout_percent %.2f outside [0, 100]", c.MinPayoutPercent)
	}
	if c.RSIBuyThreshold >= c.RSISellThreshold {
		return fmt.Errorf("engine config: rsi_buy_threshold %.2f must be below rsi_sell_threshold %.2f",
			c.RSIBuyThreshold, c.RSISellThreshold)
	}
	if c.ATRMax <= 0 {
		return fmt.Errorf("engine config: atr_max must be positive")
	}
	return nil
}
