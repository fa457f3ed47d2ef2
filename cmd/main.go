package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Krchnk/valutatrade-wallet/internal/audit"
	"github.com/Krchnk/valutatrade-wallet/internal/auth"
	"github.com/Krchnk/valutatrade-wallet/internal/cli"
	"github.com/Krchnk/valutatrade-wallet/internal/config"
	"github.com/Krchnk/valutatrade-wallet/internal/domain"
	"github.com/Krchnk/valutatrade-wallet/internal/handlers"
	"github.com/Krchnk/valutatrade-wallet/internal/ledger"
	"github.com/Krchnk/valutatrade-wallet/internal/metrics"
	"github.com/Krchnk/valutatrade-wallet/internal/rates"
	"github.com/Krchnk/valutatrade-wallet/internal/storages"
	"github.com/Krchnk/valutatrade-wallet/internal/storages/jsonfile"
	"github.com/Krchnk/valutatrade-wallet/internal/storages/postgres"

	cors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var logger = logrus.New()

func init() {
	logger.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetFormatter(&logrus.JSONFormatter{})
}

// setLogLevel applies LOG_LEVEL to both loggers. Without it the CLI only
// reports warnings so that command output stays readable.
func setLogLevel(raw string, serving bool) {
	lvl, err := logrus.ParseLevel(raw)
	if err != nil {
		lvl = logrus.WarnLevel
		if serving {
			lvl = logrus.InfoLevel
		}
	}
	logger.SetLevel(lvl)
	logrus.SetLevel(lvl)
}

const tokenTTL = 24 * time.Hour

func main() {
	configPath := flag.String("c", "config.env", "path to config file")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [-c config.env] <command> [flags]\n", os.Args[0])
		fmt.Fprintln(os.Stderr, "  serve    run the HTTP API")
		fmt.Fprintln(os.Stderr, "  run without a command to list the wallet commands")
	}
	flag.Parse()
	args := flag.Args()
	serving := len(args) > 0 && args[0] == "serve"

	setLogLevel(os.Getenv("LOG_LEVEL"), serving)
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.WithError(err).Fatal("failed to load config")
	}
	setLogLevel(cfg.LogLevel, serving)
	logger.WithFields(logrus.Fields{
		"storage":  cfg.Storage.Driver,
		"data_dir": cfg.Storage.DataDir,
		"funding":  cfg.BuyFunding,
	}).Info("configuration loaded")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, cfg, args, serving)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, cfg config.Config, args []string, serving bool) int {
	registry := domain.DefaultRegistry()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewWalletMetrics(reg)

	files := jsonfile.NewStore(cfg.Storage.UsersPath(), cfg.Storage.PortfoliosPath(), cfg.Storage.SessionPath())
	var accounts storages.AccountStore = files
	if cfg.Storage.Driver == "postgres" {
		pg, err := postgres.NewStorage(ctx, cfg.DBConfig)
		if err != nil {
			logger.WithError(err).Error("failed to connect to database")
			return cli.ExitError
		}
		defer pg.Close()
		accounts = pg
	}

	actions, err := audit.Open(cfg.ActionsLog)
	if err != nil {
		logger.WithError(err).WithField("path", cfg.ActionsLog).Error("failed to open actions log")
		return cli.ExitError
	}
	defer actions.Close()

	cache := rates.NewCache(cfg.Rates, registry, m)
	if cfg.Parser.ExchangeRateAPIKey == "" {
		logger.Warn("EXCHANGERATE_API_KEY not set, fiat rates will not be updated")
	}
	aggregator := rates.NewAggregator(cache, m,
		rates.NewCoinGeckoSource(cfg.Parser),
		rates.NewExchangeRateAPISource(cfg.Parser),
	)

	users := auth.NewService(accounts, files, actions, m, cfg.BcryptCost)
	l := ledger.New(accounts, cache, registry, cfg.Rates.TTL,
		ledger.WithFunding(ledger.PolicyByName(cfg.BuyFunding)),
		ledger.WithAudit(actions),
		ledger.WithMetrics(m),
	)

	if serving {
		return serve(ctx, cfg, reg, handlers.NewHandler(users, auth.NewTokenIssuer(cfg.JWTSecret, tokenTTL), l, cache, aggregator, cfg), aggregator)
	}
	return cli.New(users, l, cache, aggregator, registry, cfg.Rates.TTL, os.Stdout).Run(ctx, args)
}

func serve(ctx context.Context, cfg config.Config, reg *prometheus.Registry, h *handlers.Handler, aggregator *rates.Aggregator) int {
	router := gin.Default()

	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:3000"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.Use(loggingMiddleware())

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	h.RegisterRoutes(router)

	if cfg.Rates.UpdateInterval > 0 {
		go aggregator.Run(ctx, cfg.Rates.UpdateInterval)
		logger.WithField("interval", cfg.Rates.UpdateInterval.String()).Info("background rates updater started")
	}

	srv := &http.Server{Addr: cfg.HTTPPort, Handler: router}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("failed to shut down server")
		}
	}()

	logger.WithField("port", cfg.HTTPPort).Info("starting HTTP server")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Error("failed to run server")
		return cli.ExitError
	}
	logger.Info("server stopped")
	return cli.ExitOK
}

func loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		logger.WithFields(logrus.Fields{
			"method": c.Request.Method,
			"path":   path,
		}).Debug("request received")

		c.Next()

		fields := logrus.Fields{
			"method":   c.Request.Method,
			"path":     path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start),
		}

		if len(c.Errors) > 0 {
			logger.WithFields(fields).WithError(c.Errors.Last()).Error("request failed")
		} else {
			logger.WithFields(fields).Info("request completed")
		}
	}
}
