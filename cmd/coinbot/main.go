// coinbot watches a source wallet's Polymarket trades and replicates them,
// coalesced and risk-checked, onto its own account.
package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/web3guy0/coinbot/internal/coalescer"
	"github.com/web3guy0/coinbot/internal/config"
	"github.com/web3guy0/coinbot/internal/execclient"
	"github.com/web3guy0/coinbot/internal/intake"
	"github.com/web3guy0/coinbot/internal/killswitch"
	"github.com/web3guy0/coinbot/internal/marketcache"
	"github.com/web3guy0/coinbot/internal/metrics"
	"github.com/web3guy0/coinbot/internal/model"
	"github.com/web3guy0/coinbot/internal/notify"
	"github.com/web3guy0/coinbot/internal/orchestrator"
	"github.com/web3guy0/coinbot/internal/pnl"
	"github.com/web3guy0/coinbot/internal/policy"
	"github.com/web3guy0/coinbot/internal/risktracker"
	"github.com/web3guy0/coinbot/internal/state"
	"github.com/web3guy0/coinbot/internal/telemetry"
)

const version = "1.0.0"

// maxWSDisconnectAlertSeconds is a fixed 10-second alert threshold; no
// environment variable overrides it.
const maxWSDisconnectAlertSeconds = 10

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("no .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	log.Info().
		Str("version", version).
		Str("source_wallet", cfg.Copy.SourceWallet).
		Str("copy_mode", cfg.Copy.CopyMode).
		Bool("dry_run", cfg.Execution.DryRun).
		Msg("coinbot_starting")

	store, err := state.Open(cfg.DatabaseDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open state store")
	}

	pnlStore, err := pnl.NewStore(store.DB())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open pnl store")
	}
	pnlTracker := pnl.New(cfg.Execution.FeeBps, pnlStore.Save)
	if rows, err := pnlStore.LoadAll(); err != nil {
		log.Warn().Err(err).Msg("failed to restore positions")
	} else {
		for _, row := range rows {
			pnlTracker.Restore(row.MarketID, row.Outcome, positionOf(row))
		}
		log.Info().Int("count", len(rows)).Msg("positions_restored")
	}

	marketCache := marketcache.New(cfg.Polymarket.GammaAPIURL, 60*time.Second)

	coalescerInst := coalescer.New(coalescer.Config{
		CoalesceMs:        cfg.Copy.CoalesceMs,
		MaxSlippageBps:    cfg.Execution.MaxSlippageBps,
		NetOppositeTrades: cfg.Copy.NetOppositeTrades,
	})

	policyInst := policy.New(policy.Config{
		SizingMode:              policy.SizingMode(cfg.Sizing.Mode),
		FixedOrderNotionalUSD:   cfg.Sizing.FixedOrderNotionalUSD,
		SizeMultiplier:          cfg.Sizing.SizeMultiplier,
		MinOrderNotionalUSD:     cfg.Sizing.MinOrderNotionalUSD,
		MaxNotionalPerOrderUSD:  cfg.Sizing.MaxNotionalPerOrderUSD,
		MaxSlippageBps:          cfg.Execution.MaxSlippageBps,
		NearExpiryCutoffSeconds: cfg.Execution.NearExpiryCutoffSeconds,
		MaxSourceStalenessMs:    cfg.Execution.MaxSourceStalenessMs,
	})

	riskTracker := risktracker.New(risktracker.Config{
		MaxTotalNotionalPer15mWindowUSD: cfg.Sizing.MaxTotalNotionalPer15mWindowUSD,
		MaxNotionalPerMarketUSD:         cfg.Sizing.MaxNotionalPerMarketUSD,
		MaxDailyTradedVolumeUSD:         cfg.Sizing.MaxDailyTradedVolumeUSD,
	})

	execClient, err := execclient.New(execclient.Config{
		ClobURL:               cfg.Polymarket.ClobURL,
		PrivateKeyHex:         cfg.Polymarket.PrivateKey,
		FunderAddress:         cfg.Polymarket.Funder,
		APIKey:                cfg.Polymarket.APIKey,
		APISecret:             cfg.Polymarket.APISecret,
		APIPassphrase:         cfg.Polymarket.APIPassphrase,
		DryRun:                cfg.Execution.DryRun,
		MaxRetries:            cfg.Execution.MaxRetries,
		RequestTimeoutSeconds: cfg.Execution.RequestTimeoutSeconds,
	}, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build order client")
	}
	lifecycle := execclient.NewLifecycleStore()

	killSwitch := killswitch.New()
	autoGuard := killswitch.NewAutoKillGuard(killSwitch, killswitch.Thresholds{
		MaxErrorRate:                 cfg.AutoKill.MaxErrorRate,
		MaxP95LatencyMs:              cfg.AutoKill.MaxP95LatencyMs,
		RecoverMaxErrorRate:          cfg.AutoKill.RecoverMaxErrorRate,
		RecoverMaxP95LatencyMs:       cfg.AutoKill.RecoverMaxP95LatencyMs,
		RecoveryConsecutiveSnapshots: cfg.AutoKill.RecoveryConsecutiveSnapshots,
	})

	metricsColl := metrics.New()

	auditLogger, err := telemetry.NewCopyAuditLogger(cfg.Telemetry.OutDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open copy audit log")
	}
	shadowLogger, err := telemetry.NewShadowDecisionLogger(cfg.Telemetry.OutDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open shadow decision log")
	}
	snapshotWriter, err := telemetry.NewSnapshotWriter(cfg.Telemetry.OutDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open snapshot writer")
	}
	alertEval := telemetry.NewAlertEvaluator(telemetry.AlertThresholds{
		P95CopyDelayMs:   cfg.AutoKill.MaxP95LatencyMs,
		MaxRejectRate:    cfg.AutoKill.MaxErrorRate,
		MaxWSDisconnectS: maxWSDisconnectAlertSeconds,
	})

	notifier, err := notify.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
	if err != nil {
		log.Warn().Err(err).Msg("telegram notifier disabled")
		notifier = notify.NewNoop()
	}

	orch := orchestrator.New(
		orchestrator.Config{SnapshotInterval: time.Duration(cfg.Telemetry.SnapshotIntervalSeconds) * time.Second},
		coalescerInst, policyInst, riskTracker, execClient, lifecycle, marketCache,
		pnlTracker, killSwitch, autoGuard, metricsColl, auditLogger, shadowLogger,
		snapshotWriter, alertEval, notifier,
	)

	stop := make(chan struct{})

	activityPoller := intake.NewSourceWalletActivityPoller(
		intake.DefaultActivityPollerConfig(cfg.Polymarket.DataAPIURL, cfg.Copy.SourceWallet),
		store, orch.SubmitEvent)
	tradeFeedWatcher := intake.NewSourceWalletTradeFeedWatcher(
		intake.TradeFeedWatcherConfig{
			WSURL:        cfg.Polymarket.WSURL,
			DataAPIURL:   cfg.Polymarket.DataAPIURL,
			SourceWallet: cfg.Copy.SourceWallet,
		}, store, orch.SubmitEvent)

	go activityPoller.Run(stop)
	go tradeFeedWatcher.Run(stop)

	done := make(chan struct{})
	go func() {
		orch.Run(stop)
		close(done)
	}()

	log.Info().Msg("coinbot_started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("coinbot_shutting_down")
	close(stop)
	<-done
	log.Info().Msg("coinbot_stopped")
}

func positionOf(row pnl.PositionRecord) model.Position {
	return model.Position{Qty: row.Qty, AvgPrice: row.AvgPrice}
}
