package config

import (
	"qxbot/pkg/broker"
	"qxbot/pkg/engine"
	"qxbot/pkg/market"
)

// MustLoadBroker loads etc/broker.yaml from the project root and panics on error.
// It isolates broker config so tests that only need provider wiring do not have
// to assemble a full application config.
func MustLoadBroker() *broker.Config {
	return broker.MustLoad()
}

// MustBuildBrokerProviders loads broker config from the default path
// and builds provider instances; returns the map and default provider name.
func MustBuildBrokerProviders() (map[string]broker.Provider, string) {
	cfg := MustLoadBroker()
	providers, err := cfg.BuildProviders()
	if err != nil {
		panic(err)
	}
	return providers, cfg.Default
}

// MustLoadEngine loads the default engine configuration and panics on error.
func MustLoadEngine() *engine.Config {
	return engine.MustLoad()
}

// MustLoadMarket loads the default market configuration and panics on error.
func MustLoadMarket() *market.Config {
	return market.MustLoad()
}
