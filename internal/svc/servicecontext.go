package svc

import (
	"log"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx driver
	"github.com/zeromicro/go-zero/core/stores/sqlx"

	"qxbot/internal/config"
	"qxbot/internal/model"
	"qxbot/internal/persistence"
	brokerpkg "qxbot/pkg/broker"
	"qxbot/pkg/broker/guards"
	_ "qxbot/pkg/broker/qxapi"
	_ "qxbot/pkg/broker/sim"
	enginepkg "qxbot/pkg/engine"
	"qxbot/pkg/journal"
	marketpkg "qxbot/pkg/market"
)

type ServiceContext struct {
	Config config.Config

	BrokerConfig    *brokerpkg.Config
	BrokerProviders map[string]brokerpkg.Provider
	DefaultBroker   brokerpkg.Provider

	MarketConfig *marketpkg.Config
	Market       marketpkg.Provider

	EngineConfig *enginepkg.Config

	Journal *journal.Writer

	// Optional DB-backed trade persistence; nil Recorder disables it.
	DBConn               sqlx.SqlConn
	TradesModel          model.TradesModel
	EquitySnapshotsModel model.EquitySnapshotsModel
	Recorder             *persistence.Recorder
}

func NewServiceContext(c config.Config) *ServiceContext {
	svc := &ServiceContext{
		Config:  c,
		Journal: journal.NewWriter(c.JournalDir),
	}

	if c.Broker.Value == nil {
		log.Fatalf("broker config section is required")
	}
	brokerCfg := c.Broker.Value
	// Test environment never touches real accounts.
	if c.IsTestEnv() {
		for _, provider := range brokerCfg.Providers {
			provider.Demo = true
		}
	}
	providers, err := brokerCfg.BuildProviders()
	if err != nil {
		log.Fatalf("failed to build broker providers: %v", err)
	}
	svc.BrokerConfig = brokerCfg
	svc.BrokerProviders = providers
	if brokerCfg.Default != "" {
		svc.DefaultBroker = providers[brokerCfg.Default]
	}
	if svc.DefaultBroker == nil {
		log.Fatalf("broker config names no default provider")
	}

	if c.Guards.Enabled {
		svc.DefaultBroker = guards.New(
			svc.DefaultBroker,
			c.Guards.OrdersPerMinute,
			time.Duration(c.Guards.DuplicateWindowSec)*time.Second,
		)
	}

	if c.Market.Value == nil {
		log.Fatalf("market config section is required")
	}
	svc.MarketConfig = c.Market.Value
	svc.Market = marketpkg.NewCandleProvider(c.Market.Value, svc.DefaultBroker)

	if c.Engine.Value == nil {
		log.Fatalf("engine config section is required")
	}
	svc.EngineConfig = c.Engine.Value

	// Only inject DB models when a DSN is provided; the engine runs fine
	// journal-only. Cached models need the cache nodes alongside the DSN.
	if c.Postgres.DSN != "" {
		if len(c.CacheRedis) == 0 {
			log.Fatalf("cacheRedis nodes are required when postgres is configured")
		}
		conn := sqlx.NewSqlConn("pgx", c.Postgres.DSN)
		svc.DBConn = conn
		svc.TradesModel = model.NewTradesModel(conn, c.CacheRedis)
		svc.EquitySnapshotsModel = model.NewEquitySnapshotsModel(conn, c.CacheRedis)
		svc.Recorder = persistence.NewRecorder(svc.TradesModel, svc.EquitySnapshotsModel)
	}

	return svc
}
