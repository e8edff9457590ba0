package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/mongo/otelmongo"
	"golang.org/x/sync/errgroup"

	apihttp "torrentbridge/internal/api/http"
	"torrentbridge/internal/app"
	"torrentbridge/internal/bridge"
	"torrentbridge/internal/domain/ports"
	"torrentbridge/internal/metrics"
	"torrentbridge/internal/repository/memory"
	mongorepo "torrentbridge/internal/repository/mongo"
	"torrentbridge/internal/services/torrent/engine/anacrolix"
	"torrentbridge/internal/telemetry"
	"torrentbridge/internal/usecase"
)

func main() {
	cfg := app.LoadConfig()
	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "torrentbridge",
		Endpoint:    cfg.OTLPEndpoint,
		SampleRate:  cfg.TraceSampleRate,
	})
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	logger.Info("configuration loaded",
		slog.String("bridgeAddr", cfg.BridgeAddr),
		slog.String("streamHost", cfg.StreamHost),
		slog.String("dataDir", cfg.TorrentDataDir),
		slog.Int("listenPort", cfg.ListenPort),
		slog.Bool("seed", cfg.Seed),
		slog.Bool("journal", cfg.MongoURI != ""),
		slog.String("logLevel", cfg.LogLevel),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, mongoClient, err := openJournal(rootCtx, cfg, logger)
	if err != nil {
		logger.Error("job journal unavailable", slog.String("error", err.Error()))
		os.Exit(1)
	}

	engine, err := anacrolix.New(anacrolix.Config{
		DataDir:    cfg.TorrentDataDir,
		ListenPort: cfg.ListenPort,
		Seed:       cfg.Seed,
		Verbose:    cfg.LogLevel == "debug",
		Logger:     logger,
	})
	if err != nil {
		logger.Error("torrent engine init failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	fs := afero.NewOsFs()

	var dispatcher *bridge.Dispatcher
	hub := bridge.NewHub(func(clientID string, frame []byte) {
		if err := dispatcher.Submit(rootCtx, frame); err != nil {
			logger.Debug("host frame dropped",
				slog.String("clientId", clientID),
				slog.String("error", err.Error()),
			)
		}
	}, logger)

	manager := usecase.NewManager(usecase.ManagerConfig{
		Engine:           engine,
		Repo:             repo,
		Sink:             hub,
		Fs:               fs,
		Logger:           logger,
		MetadataTimeout:  cfg.MetadataTimeout,
		SampleInterval:   cfg.SampleInterval,
		ProgressInterval: cfg.ProgressInterval,
	})

	streamServer := apihttp.NewServer(
		apihttp.WithLogger(logger),
		apihttp.WithFs(fs),
		apihttp.WithRateLimit(cfg.StreamRateRPS, cfg.StreamRateBurst),
		apihttp.WithAllowedOrigins(cfg.CORSAllowedOrigins),
	)
	listener := apihttp.NewListener(streamServer,
		apihttp.WithBindHost(cfg.StreamHost),
		apihttp.WithListenerLogger(logger),
	)

	dispatcher = bridge.NewDispatcher(bridge.DispatcherConfig{
		Jobs:   manager,
		Stream: listener,
		Tidier: usecase.TidySubtitles{Fs: fs, Logger: logger},
		Images: usecase.EncodeImage{Fs: fs},
		Sink:   hub,
		Logger: logger,
	})

	go func() {
		n, err := manager.Restore(rootCtx)
		if err != nil {
			logger.Warn("job restore failed", slog.String("error", err.Error()))
			return
		}
		if n > 0 {
			logger.Info("jobs restored", slog.Int("count", n))
		}
	}()

	bridgeSrv := bridge.NewHTTPServer(cfg.BridgeAddr, bridge.NewHandler(hub, prometheus.DefaultGatherer, logger))

	g, ctx := errgroup.WithContext(rootCtx)
	g.Go(func() error {
		hub.Run()
		return nil
	})
	g.Go(func() error {
		return dispatcher.Run(ctx)
	})
	g.Go(func() error {
		logger.Info("bridge listening", slog.String("addr", cfg.BridgeAddr))
		if err := bridgeSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := listener.Stop(shutdownCtx); err != nil {
			logger.Warn("streaming server shutdown error", slog.String("error", err.Error()))
		}
		hub.Close()
		if err := bridgeSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("bridge shutdown error", slog.String("error", err.Error()))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("sidecar stopped with error", slog.String("error", err.Error()))
	}

	manager.Close()
	if err := engine.Close(); err != nil {
		logger.Warn("engine close error", slog.String("error", err.Error()))
	}
	if mongoClient != nil {
		if err := mongoClient.Disconnect(context.Background()); err != nil {
			logger.Warn("mongo disconnect error", slog.String("error", err.Error()))
		}
	}
	logger.Info("sidecar stopped")
}

// openJournal connects the Mongo job journal, or falls back to memory when
// no URI is configured.
func openJournal(ctx context.Context, cfg app.Config, logger *slog.Logger) (ports.JobRepository, *mongo.Client, error) {
	if cfg.MongoURI == "" {
		logger.Info("using in-memory job journal")
		return memory.NewJobRepository(), nil, nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongorepo.Connect(connectCtx, cfg.MongoURI, options.Client().SetMonitor(otelmongo.NewMonitor()))
	if err != nil {
		return nil, nil, err
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, err
	}

	repo := mongorepo.NewJobRepository(client, cfg.MongoDatabase, cfg.MongoCollection)
	if err := repo.EnsureIndexes(connectCtx); err != nil {
		logger.Warn("mongo ensure indexes failed", slog.String("error", err.Error()))
	}
	return repo, client, nil
}

func newLogger(levelRaw, formatRaw string) *slog.Logger {
	level := parseLogLevel(levelRaw)
	options := &slog.HandlerOptions{Level: level}
	format := strings.ToLower(strings.TrimSpace(formatRaw))
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, options))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, options))
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
