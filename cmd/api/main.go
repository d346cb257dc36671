package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"fxarena/internal/auth"
	"fxarena/internal/betting"
	"fxarena/internal/competition"
	"fxarena/internal/config"
	"fxarena/internal/db"
	"fxarena/internal/execution"
	"fxarena/internal/httpserver"
	"fxarena/internal/pricefeed"
	"fxarena/internal/wallet"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger, err := newLogger(cfg.Mode)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx := context.Background()

	var walletStore wallet.Store
	var execStore execution.Store
	var compStore competition.Store
	var betStore betting.Store
	if cfg.DBDSN != "" {
		pool, err := db.NewPool(ctx, cfg.DBDSN)
		if err != nil {
			logger.Fatal("database connect failed", zap.Error(err))
		}
		defer pool.Close()
		walletStore = wallet.NewPostgresStore(pool)
		execStore = execution.NewPostgresStore(pool)
		compStore = competition.NewPostgresStore(pool)
		betStore = betting.NewPostgresStore(pool)
		logger.Info("using postgres stores")
	} else {
		walletStore = wallet.NewMemoryStore()
		execStore = execution.NewMemoryStore()
		compStore = competition.NewMemoryStore()
		betStore = betting.NewMemoryStore()
		logger.Warn("DB_DSN not set, using in-memory stores")
	}

	var feed pricefeed.Feed
	var stopFeed func()
	if cfg.QuoteFeedURL != "" {
		live := pricefeed.NewLiveFeed(cfg.QuoteFeedURL, logger)
		live.Start()
		feed, stopFeed = live, live.Stop
	} else {
		synth := pricefeed.NewSyntheticFeed(pricefeed.SyntheticConfig{
			Seed:       cfg.FeedSeed,
			SpreadPips: cfg.SpreadPips,
			Logger:     logger,
		})
		synth.Start()
		feed, stopFeed = synth, synth.Stop
	}
	defer stopFeed()

	markup, err := decimal.NewFromString(cfg.SpreadMarkupPips)
	if err != nil {
		logger.Fatal("invalid SPREAD_MARKUP_PIPS", zap.Error(err))
	}
	maxSlip, err := decimal.NewFromString(cfg.MaxSlippagePips)
	if err != nil {
		logger.Fatal("invalid MAX_SLIPPAGE_PIPS", zap.Error(err))
	}

	walletSvc := wallet.NewService(walletStore, logger)
	engine := execution.NewEngine(execStore, feed, execution.Config{
		SpreadMarkupPips: markup,
		MaxSlippagePips:  maxSlip,
	}, logger)
	monitor := execution.NewMonitor(engine, execStore, feed, cfg.MonitorInterval, logger)
	monitor.Start()
	defer monitor.Stop()

	compSvc := competition.NewService(compStore, walletSvc, engine, logger)
	betSvc := betting.NewService(betStore, walletSvc, compSvc, logger)
	authSvc := auth.NewService(cfg.JWTIssuer, []byte(cfg.JWTSecret), cfg.JWTTTL)

	router := httpserver.NewRouter(httpserver.RouterDeps{
		AuthService:        authSvc,
		WalletHandler:      wallet.NewHandler(walletSvc, cfg.FaucetEnabled, cfg.FaucetMaxTokens),
		ExecutionHandler:   execution.NewHandler(engine),
		CompetitionHandler: competition.NewHandler(compSvc),
		BettingHandler:     betting.NewHandler(betSvc),
		MarketHandler:      pricefeed.NewHandler(feed, cfg.WSOrigin),
		InternalToken:      cfg.InternalToken,
	})
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	logger.Info("server listening", zap.String("addr", cfg.HTTPAddr), zap.String("mode", cfg.Mode))

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown", zap.Error(err))
		}
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger(mode string) (*zap.Logger, error) {
	if mode == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
