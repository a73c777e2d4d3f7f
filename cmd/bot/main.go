package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"qxbot/internal/cli"
	"qxbot/internal/config"
	"qxbot/internal/svc"
	"qxbot/pkg/engine"
)

const connectTimeout = 2 * time.Minute

var configFile = flag.String("f", "etc/qxbot.yaml", "the config file")

func main() {
	flag.Parse()

	c := config.MustLoad(*configFile)
	c.MustSetUp()
	defer logx.Close()

	cli.LogConfigSummary(c)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svcCtx := svc.NewServiceContext(*c)

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	err := svcCtx.DefaultBroker.Connect(connectCtx)
	cancel()
	if err != nil {
		logx.Errorf("broker connect failed: %v", err)
		os.Exit(1)
	}

	opts := []engine.Option{
		engine.WithJournal(svcCtx.Journal),
	}
	if svcCtx.Recorder != nil {
		opts = append(opts, engine.WithTradeRecorder(svcCtx.Recorder))
	}

	controller := engine.NewController(svcCtx.EngineConfig, svcCtx.DefaultBroker, svcCtx.Market, opts...)

	logx.Infof("bot starting, env=%s trading_enabled=%v", c.Env, svcCtx.EngineConfig.TradingEnabled)
	if err := controller.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			logx.Info("bot stopped")
			return
		}
		logx.Errorf("bot exited: %v", err)
		os.Exit(1)
	}
	logx.Info("bot stopped")
}
