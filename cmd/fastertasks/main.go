package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ArkLabsHQ/fastertasks/internal/config"
	"github.com/ArkLabsHQ/fastertasks/internal/core/application"
	"github.com/ArkLabsHQ/fastertasks/internal/infrastructure/contract"
	"github.com/ArkLabsHQ/fastertasks/internal/infrastructure/db"
	"github.com/ArkLabsHQ/fastertasks/internal/infrastructure/metrics"
	"github.com/ArkLabsHQ/fastertasks/internal/infrastructure/pricefeed"
	scheduler "github.com/ArkLabsHQ/fastertasks/internal/infrastructure/scheduler/gocron"
	"github.com/ArkLabsHQ/fastertasks/internal/infrastructure/verification"
	grpcservice "github.com/ArkLabsHQ/fastertasks/internal/interface/grpc"
	"github.com/ArkLabsHQ/fastertasks/utils"
	"github.com/getsentry/sentry-go"
	sentrylogrus "github.com/getsentry/sentry-go/logrus"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// nolint:all
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"

	sentryDsn = ""
)

const (
	dialTimeout   = 15 * time.Second
	priceCacheTTL = time.Minute
	journalDir    = "journal"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.WithError(err).Fatal("invalid config")
	}

	log.SetLevel(log.Level(cfg.LogLevel))

	sentryEnabled := !cfg.DisableTelemetry && sentryDsn != ""

	if sentryEnabled {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              sentryDsn,
			Environment:      "prod",
			AttachStacktrace: true,
			Release:          version,
		}); err != nil {
			log.Fatal(err)
		}

		sentryLevels := []log.Level{log.ErrorLevel, log.FatalLevel, log.PanicLevel}
		sentryHook, err := sentrylogrus.New(sentryLevels, sentry.ClientOptions{
			Dsn:              sentryDsn,
			AttachStacktrace: true,
		})
		if err != nil {
			log.Fatal(err)
		}

		log.AddHook(sentryHook)

		defer func() {
			sentry.Flush(5 * time.Second)
			sentryHook.Flush(5 * time.Second)
		}()
	}

	log.Info("starting fastertasks...")

	metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)

	dbSvc, err := db.NewService(db.ServiceConfig{
		Datadir: filepath.Join(cfg.Datadir, journalDir),
		Logger:  log.StandardLogger(),
	})
	if err != nil {
		log.WithError(err).Fatal("failed to open db")
	}

	dialCtx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	gateway, closeRPC, err := contract.Dial(
		dialCtx, cfg.RPCURL, cfg.ContractAddr(),
		contract.WithSubscriptions(utils.IsWebsocketURL(cfg.RPCURL)),
		contract.WithEventPollInterval(cfg.EventPollIntervalDuration()),
	)
	cancel()
	if err != nil {
		log.WithError(err).Fatal("failed to connect to ledger")
	}

	wallet, err := cfg.WalletProvider()
	if err != nil {
		log.WithError(err).Fatal("failed to init wallet provider")
	}
	if wallet == nil {
		log.Warn("no wallet provider configured, running read-only")
	}

	liveFeed, err := pricefeed.NewCoingeckoService(cfg.PriceURL)
	if err != nil {
		log.WithError(err).Fatal("failed to init price feed")
	}
	priceFeed := pricefeed.NewCachedFeed(liveFeed, priceCacheTTL, clockwork.NewRealClock())

	buildInfo := application.BuildInfo{
		Version: version,
		Commit:  commit,
		Date:    date,
	}

	appCfg := application.Config{
		Network: cfg.Network(),
		Mirror: application.MirrorConfig{
			MaxConcurrentReads: cfg.MaxConcurrentReads,
			ReadsPerSecond:     cfg.ReadsPerSecond,
		},
		Transactions: application.CoordinatorConfig{
			ConfirmationTimeout:  cfg.ConfirmationTimeoutDuration(),
			PollInterval:         cfg.ReceiptPollIntervalDuration(),
			DroppedAfter:         cfg.DroppedAfterDuration(),
			TrackingHorizon:      cfg.TrackingHorizonDuration(),
			OwnerCanAllocate:     cfg.OwnerCanAllocate,
			RestrictTaskCreation: cfg.RestrictTaskCreation,
		},
		RefreshInterval:       cfg.RefreshIntervalDuration(),
		DefaultPlatformFeeBps: cfg.DefaultPlatformFeeBps,
		FallbackPrice:         decimal.NewFromFloat(cfg.FallbackPrice),
		MinFundingUSD:         decimal.NewFromFloat(cfg.MinFundingUSD),
	}

	appSvc, err := application.NewService(
		buildInfo, appCfg, gateway, wallet, dbSvc, priceFeed,
		verification.NewService(), scheduler.NewScheduler(),
	)
	if err != nil {
		log.WithError(err).Fatal("failed to init application service")
	}

	svc, err := grpcservice.NewService(grpcservice.Config{
		GRPCPort: cfg.GRPCPort,
		HTTPPort: cfg.HTTPPort,
	}, appSvc, sentryEnabled)
	if err != nil {
		log.WithError(err).Fatal("failed to init interface service")
	}

	log.RegisterExitHandler(func() {
		svc.Stop()
		if wallet != nil {
			wallet.Close()
		}
		closeRPC()
		dbSvc.Close()
	})

	log.Info("starting service...")
	if err := svc.Start(); err != nil {
		log.Fatal(err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	<-sigChan

	log.Info("shutting down service...")
	log.Exit(0)
}
