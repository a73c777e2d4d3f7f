package cli

import (
	"fmt"
	"strings"

	"github.com/zeromicro/go-zero/core/logx"

	"qxbot/internal/config"
	"qxbot/pkg/confkit"
)

// ConfigSummaryLines returns human readable lines describing the loaded app config.
func ConfigSummaryLines(cfg *config.Config) []string {
	if cfg == nil {
		return []string{"Configuration: <nil>"}
	}

	lines := []string{
		fmt.Sprintf("Environment: %s", cfg.Env),
		fmt.Sprintf("Journal dir: %s", cfg.JournalDir),
		fmt.Sprintf("Postgres: %s", presence(cfg.Postgres.DSN != "")),
		fmt.Sprintf("Cache: %s", presence(len(cfg.CacheRedis) > 0)),
		fmt.Sprintf("Guards: %s", presence(cfg.Guards.Enabled)),
		sectionLine("Engine config", cfg.Engine),
		sectionLine("Broker config", cfg.Broker),
		sectionLine("Market config", cfg.Market),
	}

	if cfg.Engine.Value != nil {
		mode := "DRY RUN"
		if cfg.Engine.Value.TradingEnabled {
			mode = "LIVE"
		}
		lines = append(lines, fmt.Sprintf("Trading mode: %s", mode))
	}

	return lines
}

// LogConfigSummary emits the configuration summary using logx.
func LogConfigSummary(cfg *config.Config) {
	lines := ConfigSummaryLines(cfg)
	if len(lines) == 0 {
		return
	}
	logx.Info("configuration summary")
	for _, line := range lines {
		logx.Infof("config • %s", line)
	}
}

func presence(ok bool) string {
	if ok {
		return "configured"
	}
	return "not configured"
}

func sectionLine[T any](name string, section confkit.Section[T]) string {
	switch {
	case strings.TrimSpace(section.File) != "":
		return fmt.Sprintf("%s: %s", name, section.File)
	case section.Value != nil:
		return fmt.Sprintf("%s: inline", name)
	default:
		return fmt.Sprintf("%s: not configured", name)
	}
}
