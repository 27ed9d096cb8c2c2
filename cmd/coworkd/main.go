package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cowork/internal/api"
	"cowork/internal/audit"
	"cowork/internal/booking"
	"cowork/internal/config"
	"cowork/internal/db"
	"cowork/internal/events"
	"cowork/internal/lock"
	"cowork/internal/metrics"
	"cowork/internal/model"
	"cowork/internal/notify"
	"cowork/internal/strapi"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// readiness probes a dependency for /readyz.
type readiness struct {
	name  string
	check func(ctx context.Context) error
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}

	cfg, err := config.Load(os.Getenv("COWORK_CONFIG_PATH"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var rdb *redis.Client
	var probes []readiness
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		probes = append(probes, readiness{"redis", func(ctx context.Context) error { return rdb.Ping(ctx).Err() }})
	}

	bus := events.NewBus(&logger)
	opts := []booking.Option{booking.WithEventBus(bus)}
	if rdb != nil {
		opts = append(opts, booking.WithLocker(lock.NewSlotLocker(rdb, cfg.LockTTL(), 2*time.Second)))
	}

	// Holidays come from the catalog in both modes; spaces and add-ons are synced only in SQLite mode.
	var repo booking.Repository
	var syncCatalog config.CatalogHandler
	var tables audit.TableSource
	if cfg.CMS.Enabled {
		client := strapi.NewClient(cfg.CMS.BaseURL, cfg.CMS.APIToken, &logger)
		if rdb != nil && cfg.CMS.CacheTTLSeconds > 0 {
			client.UseRedisCache(rdb, cfg.CMSCacheTTL())
		}
		if rdb == nil {
			logger.Warn().Msg("CMS mode without redis: concurrent bookings are not serialized")
		}
		repo = client
		// Editing the catalog file also drops cached CMS spaces and add-ons.
		syncCatalog = func(ctx context.Context, _ *config.CatalogConfig) error {
			return client.InvalidateCatalog(ctx)
		}
		probes = append(probes, readiness{"cms", client.HealthCheck})
		logger.Info().Str("base_url", cfg.CMS.BaseURL).Msg("using CMS repository")
	} else {
		database, err := db.NewDB(cfg.Database.Path, &logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("open db error")
		}
		defer database.Close()

		repo = database
		tables = database
		syncCatalog = database.SyncCatalogFromConfig
		probes = append(probes, readiness{"db", database.PingContext})

		go db.NewBackupService(database, cfg.Backup, &logger).Start(ctx)
	}

	rules := booking.Rules{
		MinAdvance: cfg.BookingMinAdvance(),
		MaxAdvance: cfg.BookingMaxAdvance(),
		SlotStep:   cfg.SlotStep(),
		Location:   cfg.Location(),
	}
	svc := booking.NewService(repo, rules, &logger, opts...)

	if cfg.Catalog.Path != "" {
		apply := func(ctx context.Context, catalog *config.CatalogConfig) error {
			if syncCatalog != nil {
				if err := syncCatalog(ctx, catalog); err != nil {
					return err
				}
			}
			svc.SetHolidays(catalog)
			return nil
		}
		if err := config.WatchCatalog(ctx, cfg.Catalog.Path, cfg.CatalogReloadInterval(), apply, &logger); err != nil {
			logger.Fatal().Err(err).Str("path", cfg.Catalog.Path).Msg("load catalog")
		}
	} else if !cfg.CMS.Enabled {
		logger.Warn().Msg("catalog.path is empty: no spaces will be bookable")
	}

	if cfg.Telegram.Enabled {
		notifier, err := notify.New(cfg.Telegram.BotToken, cfg.Telegram.Managers, &logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("create telegram notifier")
		}
		notifier.Subscribe(bus)
		if cfg.Telegram.ReportIntervalHours > 0 {
			go startReportLoop(ctx, svc, notifier, time.Duration(cfg.Telegram.ReportIntervalHours)*time.Hour, cfg.Location(), &logger)
		}
		if cfg.Telegram.MonthlyAudit {
			if tables != nil {
				go startAuditLoop(ctx, tables, notifier, cfg.Location(), &logger)
			} else {
				logger.Warn().Msg("telegram.monthly_audit needs the SQLite repository; skipped")
			}
		}
	}

	if cfg.Monitoring.HealthCheckPort == 0 {
		cfg.Monitoring.HealthCheckPort = 8090
	}
	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, probes, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		if cfg.Monitoring.PrometheusPort == 0 {
			cfg.Monitoring.PrometheusPort = 9090
		}
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	server := api.NewHTTPServer(api.Options{
		Address:   cfg.Server.Address,
		APIKeys:   cfg.Server.APIKeys,
		RateLimit: cfg.Server.RateLimitPerSec,
		RateBurst: cfg.Server.RateLimitBurst,
	}, svc, &logger)

	logger.Info().Msg("coworking booking service started")
	if err := server.Start(ctx); err != nil {
		logger.Error().Err(err).Msg("http server error")
	}

	// Let in-flight notifications finish before the process exits.
	bus.Wait()
	logger.Info().Msg("stopped")
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Logging.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	if cfg.Logging.Format == "json" {
		return zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
	}
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	return zerolog.New(output).Level(level).With().Timestamp().Logger()
}

// startReportLoop sends managers the reservations of the coming week as a workbook.
func startReportLoop(ctx context.Context, svc *booking.Service, notifier *notify.Notifier, interval time.Duration, loc *time.Location, logger *zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		from, to := reportRange(time.Now(), loc)

		var buf bytes.Buffer
		n, err := svc.Export(ctx, from, to, &buf)
		if err != nil {
			logger.Error().Err(err).Msg("report export failed")
			continue
		}
		caption := fmt.Sprintf("Reservations %s .. %s: %d", from.Format(model.DateLayout), to.Format(model.DateLayout), n)
		if err := notifier.SendDocument(ctx, audit.Filename(from, to), buf.Bytes(), caption); err != nil {
			logger.Error().Err(err).Msg("report delivery failed")
			continue
		}
		logger.Info().Int("reservations", n).Msg("report sent")
	}
}

// reportRange returns the seven calendar days starting today in loc.
func reportRange(now time.Time, loc *time.Location) (from, to time.Time) {
	from = model.DateOf(now.In(loc))
	return from, from.AddDate(0, 0, 6)
}

// startAuditLoop sends managers a dump of every table on the 1st of each month.
func startAuditLoop(ctx context.Context, tables audit.TableSource, notifier *notify.Notifier, loc *time.Location, logger *zerolog.Logger) {
	for {
		next := audit.NextMonthlyRun(time.Now().In(loc))
		logger.Info().Time("at", next).Msg("next audit scheduled")

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		runCtx, cancel := context.WithTimeout(ctx, 10*time.Minute)
		if err := audit.SendTables(runCtx, tables, notifier, time.Now().In(loc)); err != nil {
			logger.Error().Err(err).Msg("audit export failed")
		} else {
			logger.Info().Msg("audit report sent")
		}
		cancel()
	}
}

func startHealthServer(ctx context.Context, port int, probes []readiness, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctxPing, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		for _, p := range probes {
			if err := p.check(ctxPing); err != nil {
				http.Error(w, p.name+" not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("health server error")
	}
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
