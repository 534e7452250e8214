// Command medscribe is the consultation recording and diarization server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/solinvox/medscribe/internal/app"
	"github.com/solinvox/medscribe/internal/config"
	"github.com/solinvox/medscribe/internal/finalize"
	"github.com/solinvox/medscribe/internal/health"
	"github.com/solinvox/medscribe/internal/observe"
	"github.com/solinvox/medscribe/internal/resilience"
	"github.com/solinvox/medscribe/internal/server"
	"github.com/solinvox/medscribe/pkg/audio/ingest"
	diarizehttp "github.com/solinvox/medscribe/pkg/provider/diarize/http"
	statusws "github.com/solinvox/medscribe/pkg/provider/status/ws"
	"github.com/solinvox/medscribe/pkg/store"
	memstore "github.com/solinvox/medscribe/pkg/store/memory"
	"github.com/solinvox/medscribe/pkg/store/postgres"
)

// defaultBytesPerSecond is the capture byte rate when audio is not configured:
// 16 kHz mono 16-bit PCM.
const defaultBytesPerSecond = 32000

var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "medscribe: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "medscribe: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("medscribe starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		slog.Error("failed to create metrics", "err", err)
		return 1
	}

	// ── Diarization backend ───────────────────────────────────────────────────
	var diaOpts []diarizehttp.Option
	if cfg.Diarizer.APIKey != "" {
		diaOpts = append(diaOpts, diarizehttp.WithAPIKey(cfg.Diarizer.APIKey))
	}
	if cfg.Diarizer.TimeoutSeconds > 0 {
		diaOpts = append(diaOpts, diarizehttp.WithTimeout(secondsToDuration(cfg.Diarizer.TimeoutSeconds)))
	}
	client, err := diarizehttp.New(cfg.Diarizer.BaseURL, diaOpts...)
	if err != nil {
		slog.Error("failed to create diarizer client", "err", err)
		return 1
	}
	diarizer := resilience.NewDiarizeGuard(client, resilience.CircuitBreakerConfig{Name: "diarizer"})

	// ── Transcription status feed ─────────────────────────────────────────────
	feedURL := cfg.StatusFeed.BaseURL
	if feedURL == "" {
		feedURL = toWebsocketURL(cfg.Diarizer.BaseURL)
	}
	feed, err := statusws.New(feedURL, statusFeedOptions(cfg)...)
	if err != nil {
		slog.Error("failed to create status feed subscriber", "err", err)
		return 1
	}

	// ── Consultation store ────────────────────────────────────────────────────
	var st store.ConsultationStore
	var pg *postgres.Store
	if cfg.Store.PostgresDSN != "" {
		pg, err = postgres.New(ctx, cfg.Store.PostgresDSN)
		if err != nil {
			slog.Error("failed to connect to postgres", "err", err)
			return 1
		}
		defer pg.Close()
		st = pg
		slog.Info("consultation store ready", "backend", "postgres")
	} else {
		st = memstore.New()
		slog.Warn("no postgres_dsn configured, consultations are kept in memory only")
	}

	// ── Finalizer + session manager ───────────────────────────────────────────
	var finOpts []finalize.Option
	if cfg.Finalize.WaitTimeoutSeconds > 0 {
		finOpts = append(finOpts, finalize.WithWaitTimeout(secondsToDuration(cfg.Finalize.WaitTimeoutSeconds)))
	}
	finalizer := finalize.New(st, diarizer, feed, finOpts...)

	byteRate := cfg.Audio.BytesPerSecond()
	if byteRate == 0 {
		byteRate = defaultBytesPerSecond
	}
	recorder, err := ingest.NewRecorder(byteRate)
	if err != nil {
		slog.Error("failed to create audio recorder", "err", err)
		return 1
	}

	manager := app.NewManager(app.ManagerConfig{
		Recorder:  recorder,
		Diarizer:  diarizer,
		Finalizer: finalizer,
		Pipeline:  cfg.Pipeline,
		Metrics:   metrics,
	})

	// ── HTTP routes ───────────────────────────────────────────────────────────
	mux := http.NewServeMux()
	server.New(manager).Register(mux)
	health.New(healthCheckers(pg, diarizer)...).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	addr := cfg.Server.ListenAddr
	if addr == "" {
		addr = ":8080"
	}
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           observe.Middleware(metrics)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, updated *config.Config) {
		d := config.Diff(old, updated)
		if d.LogLevelChanged {
			slog.SetDefault(newLogger(d.NewLogLevel))
			slog.Info("log level updated", "log_level", d.NewLogLevel)
		}
		if d.PipelineChanged {
			manager.SetPipelineConfig(d.NewPipeline)
			slog.Info("pipeline tunables updated, applies to new recordings")
		}
		if d.FinalizeChanged {
			finalizer.SetWaitTimeout(secondsToDuration(d.NewFinalize.WaitTimeoutSeconds))
			slog.Info("finalize wait timeout updated",
				"wait_timeout_seconds", d.NewFinalize.WaitTimeoutSeconds)
		}
	})
	if err != nil {
		slog.Error("failed to start config watcher", "err", err)
		return 1
	}
	defer watcher.Stop()

	// ── Serve ─────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server ready", "addr", addr, "tls", cfg.Server.TLS != nil)
		var err error
		if tls := cfg.Server.TLS; tls != nil {
			err = httpSrv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = httpSrv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received, stopping…")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("http shutdown error", "err", err)
		}
		// Stop remaining recordings and let their finalizations land.
		if err := manager.Shutdown(shutdownCtx); err != nil {
			slog.Warn("some finalizations still running at shutdown", "err", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// healthCheckers assembles the readiness probes: database connectivity (when
// postgres is configured) and the diarizer circuit breaker.
func healthCheckers(pg *postgres.Store, guard *resilience.DiarizeGuard) []health.Checker {
	var checkers []health.Checker
	if pg != nil {
		checkers = append(checkers, health.Checker{
			Name:  "store",
			Check: pg.Ping,
		})
	}
	checkers = append(checkers, health.Checker{
		Name: "diarizer",
		Check: func(context.Context) error {
			if guard.BreakerState() == resilience.StateOpen {
				return errors.New("circuit breaker is open")
			}
			return nil
		},
	})
	return checkers
}

// statusFeedOptions forwards the diarizer API key to the feed when set.
func statusFeedOptions(cfg *config.Config) []statusws.Option {
	if cfg.Diarizer.APIKey == "" {
		return nil
	}
	return []statusws.Option{statusws.WithAPIKey(cfg.Diarizer.APIKey)}
}

// toWebsocketURL switches an http(s) base URL to the ws(s) scheme.
func toWebsocketURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	default:
		return base
	}
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
