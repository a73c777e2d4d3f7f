package market

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"qxbot/pkg/confkit"
)

// Config controls which indicators the snapshot provider computes and over
// what candle history.
type Config struct {
	TimeframeRaw string        `yaml:"timeframe"`
	Timeframe    time.Duration `yaml:"-"`
	CandleCount  int           `yaml:"candle_count"`
	Indicators   []string      `yaml:"indicators"`

	RSIPeriod  int `yaml:"rsi_period"`
	SMAPeriod  int `yaml:"sma_period"`
	EMAPeriod  int `yaml:"ema_period"`
	ATRPeriod  int `yaml:"atr_period"`
	MACDFast   int `yaml:"macd_fast"`
	MACDSlow   int `yaml:"macd_slow"`
	MACDSignal int `yaml:"macd_signal"`
}

// LoadConfig reads configuration from disk.
func LoadConfig(path string) (*Config, error) {
	confkit.LoadDotenvOnce()
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open market config: %w", err)
	}
	defer file.Close()
	return LoadConfigFromReader(file)
}

// MustLoad reads market configuration from the default project location and panics on error.
func MustLoad() *Config {
	path := confkit.MustProjectPath("etc/market.yaml")
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
		return nil, fmt.Errorf("read market config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal market config: %w", err)
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
	if strings.TrimSpace(c.TimeframeRaw) == "" {
		c.TimeframeRaw = "60s"
	}
	if c.CandleCount == 0 {
		c.CandleCount = 120
	}
	if len(c.Indicators) == 0 {
		c.Indicators = []string{IndicatorRSI, IndicatorSMA, IndicatorATR}
	}
	for i, name := range c.Indicators {
		c.Indicators[i] = strings.ToUpper(strings.TrimSpace(name))
	}
	if c.RSIPeriod == 0 {
		c.RSIPeriod = 14
	}
	if c.SMAPeriod == 0 {
		c.SMAPeriod = 20
	}
	if c.EMAPeriod == 0 {
		c.EMAPeriod = 20
	}
	if c.ATRPeriod == 0 {
		c.ATRPeriod = 14
	}
	if c.MACDFast == 0 {
		c.MACDFast = 12
	}
	if c.MACDSlow == 0 {
		c.MACDSlow = 26
	}
	if c.MACDSignal == 0 {
		c.MACDSignal = 9
	}
}

func (c *Config) parseDurations() error {
	d, err := time.ParseDuration(c.TimeframeRaw)
	if err != nil || d <= 0 {
		return fmt.Errorf("market config: invalid timeframe %q", c.TimeframeRaw)
	}
	c.Timeframe = d
	return nil
}

// Validate rejects unknown indicators and history windows too short to warm
// any configured indicator up.
func (c *Config) Validate() error {
	known := map[string]bool{
		IndicatorRSI: true, IndicatorSMA: true, IndicatorEMA: true,
		IndicatorATR: true, IndicatorMACD: true,
	}
	for _, name := range c.Indicators {
		if !known[name] {
			return fmt.Errorf("market config: unknown indicator %q", name)
		}
	}
	for _, p := range []struct {
		name  string
		value int
	}{
		{"rsi_period", c.RSIPeriod},
		{"sma_period", c.SMAPeriod},
		{"ema_period", c.EMAPeriod},
		{"atr_period", c.ATRPeriod},
		{"macd_fast", c.MACDFast},
		{"macd_slow", c.MACDSlow},
		{"macd_signal", c.MACDSignal},
	} {
		if p.value <= 0 {
			return fmt.Errorf("market config: %s must be positive", p.name)
		}
	}
	if c.MACDFast >= c.MACDSlow {
		return fmt.Errorf("market config: macd_fast must be below macd_slow")
	}
	if c.CandleCount <= c.maxWarmup() {
		return fmt.Errorf("market config: candle_count %d cannot warm up configured indicators (need > %d)",
			c.CandleCount, c.maxWarmup())
	}
	return nil
}

func (c *Config) maxWarmup() int {
	max := 0
	for _, name := range c.Indicators {
		var p int
		switch name {
		case IndicatorRSI:
			p = c.RSIPeriod
		case IndicatorSMA:
			p = c.SMAPeriod
		case IndicatorEMA:
			p = c.EMAPeriod
		case IndicatorATR:
			p = c.ATRPeriod
		case IndicatorMACD:
			p = c.MACDSlow + c.MACDSignal
		}
		if p > max {
			max = p
		}
	}
	return max
}
