package broker

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"qxbot/pkg/confkit"
)

// Config captures configuration for one or more broker providers.
type Config struct {
	Default   string                     `yaml:"default"`
	Providers map[string]*ProviderConfig `yaml:"providers"`
}

// ProviderConfig describes how to construct a specific broker provider instance.
type ProviderConfig struct {
	Type     string `yaml:"type"`
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
	Demo     bool   `yaml:"demo"`
	Lang     string `yaml:"lang"`
	BaseURL  string `yaml:"base_url"`
	FeedURL  string `yaml:"feed_url"`

	TimeoutRaw        string        `yaml:"timeout"`
	Timeout           time.Duration `yaml:"-"`
	MaxRetries        int           `yaml:"max_retries"`
	InitialBackoffRaw string        `yaml:"initial_backoff"`
	InitialBackoff    time.Duration `yaml:"-"`
}

// ProviderBuilder constructs a Provider from configuration.
type ProviderBuilder func(name string, cfg *ProviderConfig) (Provider, error)

var (
	providerRegistry   = make(map[string]ProviderBuilder)
	providerRegistryMu sync.RWMutex
)

// RegisterProvider associates a builder with a broker provider type.
func RegisterProvider(typeName string, builder ProviderBuilder) {
	providerRegistryMu.Lock()
	defer providerRegistryMu.Unlock()
	providerRegistry[strings.ToLower(strings.TrimSpace(typeName))] = builder
}

func lookupProviderBuilder(typeName string) (ProviderBuilder, bool) {
	providerRegistryMu.RLock()
	defer providerRegistryMu.RUnlock()
	builder, ok := providerRegistry[strings.ToLower(strings.TrimSpace(typeName))]
	return builder, ok
}

// LoadConfig reads configuration from disk.
func LoadConfig(path string) (*Config, error) {
	confkit.LoadDotenvOnce()
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open broker config: %w", err)
	}
	defer file.Close()
	return LoadConfigFromReader(file)
}

// MustLoad reads broker configuration from the default project location and panics on error.
func MustLoad() *Config {
	path := confkit.MustProjectPath("etc/broker.yaml")
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
		return nil, fmt.Errorf("read broker config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal broker config: %w", err)
	}
	if err := cfg.normalise(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalise() error {
	if c.Providers == nil {
		c.Providers = make(map[string]*ProviderConfig)
	}
	for name, provider := range c.Providers {
		if provider == nil {
			provider = &ProviderConfig{}
			c.Providers[name] = provider
		}
		provider.expandEnv()
		if err := provider.parseDurations(name); err != nil {
			return err
		}
	}
	c.Default = strings.TrimSpace(c.Default)
	return nil
}

// Validate checks structural consistency of the provider registry config.
func (c *Config) Validate() error {
	if len(c.Providers) == 0 {
		return fmt.Errorf("broker config: at least one provider is required")
	}
	if c.Default == "" {
		return fmt.Errorf("broker config: default provider is required")
	}
	if _, ok := c.Providers[c.Default]; !ok {
		return fmt.Errorf("broker config: default provider %q is not defined", c.Default)
	}
	for name, provider := range c.Providers {
		if err := provider.validate(name); err != nil {
			return err
		}
	}
	return nil
}

// BuildProviders instantiates every configured provider through the registry.
func (c *Config) BuildProviders() (map[string]Provider, error) {
	out := make(map[string]Provider, len(c.Providers))
	for name, pc := range c.Providers {
		builder, ok := lookupProviderBuilder(pc.Type)
		if !ok {
			return nil, fmt.Errorf("broker config: provider %q has unsupported type %q", name, pc.Type)
		}
		p, err := builder(name, pc)
		if err != nil {
			return nil, fmt.Errorf("broker config: build provider %q: %w", name, err)
		}
		out[name] = p
	}
	return out, nil
}

func (p *ProviderConfig) expandEnv() {
	p.Email = os.ExpandEnv(p.Email)
	p.Password = os.ExpandEnv(p.Password)
	p.BaseURL = os.ExpandEnv(p.BaseURL)
	p.FeedURL = os.ExpandEnv(p.FeedURL)
}

func (p *ProviderConfig) parseDurations(name string) error {
	if strings.TrimSpace(p.TimeoutRaw) != "" {
		d, err := time.ParseDuration(p.TimeoutRaw)
		if err != nil || d <= 0 {
			return fmt.Errorf("broker config: provider %q has invalid timeout %q", name, p.TimeoutRaw)
		}
		p.Timeout = d
	}
	if strings.TrimSpace(p.InitialBackoffRaw) != "" {
		d, err := time.ParseDuration(p.InitialBackoffRaw)
		if err != nil || d <= 0 {
			return fmt.Errorf("broker config: provider %q has invalid initial_backoff %q", name, p.InitialBackoffRaw)
		}
		p.InitialBackoff = d
	}
	return nil
}

func (p *ProviderConfig) validate(name string) error {
	typ := strings.ToLower(strings.TrimSpace(p.Type))
	if typ == "" {
		return fmt.Errorf("broker config: provider %q is missing type", name)
	}
	// Credentials are checked by the provider at Connect time, not here: the
	// config may describe venues whose credentials only exist in the
	// environment that actually connects to them.
	if p.MaxRetries < 0 {
		return fmt.Errorf("broker config: provider %q has negative max_retries", name)
	}
	return nil
}
