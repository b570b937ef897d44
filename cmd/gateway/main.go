// cmd/gateway/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"archaeoscan-gateway/internal/alerting"
	"archaeoscan-gateway/internal/anomaly"
	"archaeoscan-gateway/internal/api"
	"archaeoscan-gateway/internal/config"
	"archaeoscan-gateway/internal/ingest"
	"archaeoscan-gateway/internal/logger"
	"archaeoscan-gateway/internal/metrics"
	"archaeoscan-gateway/internal/pipeline"
	"archaeoscan-gateway/internal/publish"
	"archaeoscan-gateway/internal/scoring"
	"archaeoscan-gateway/internal/simulator"
	"archaeoscan-gateway/internal/status"
	"archaeoscan-gateway/internal/storage"
	"archaeoscan-gateway/internal/websocket"
)

func main() {
	configPath := flag.String("config", ".", "Path to the configuration file directory")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Error("gateway stopped with error", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Initialize Components ---
	m := metrics.New()
	store := storage.NewMemoryStore(cfg.Storage.HistoryLength, cfg.Storage.SummaryBuffer, cfg.Storage.SensorTimeout)
	store.SetMaxSensors(cfg.Storage.MaxSensors)
	hub := websocket.NewHub(log)
	hub.OnClientCount = m.SetWebSocketClients
	detector := anomaly.NewDetector(cfg.Anomaly.Thresholds, log)
	alerter := alerting.NewAlerter(hub, m, log)
	tracker := status.NewTracker(store, alerter, cfg.Storage.SensorTimeout)
	scoringOpts := scoring.Options{ZeroAsMissing: cfg.Scoring.ZeroAsMissing}

	sinks, closers, err := buildSinks(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		for _, c := range closers {
			if err := c.Close(); err != nil {
				log.Warn("close sink", zap.Error(err))
			}
		}
	}()

	proc := pipeline.New(pipeline.Options{
		QueueSize:      cfg.Pipeline.QueueSize,
		PublishTimeout: cfg.Pipeline.PublishTimeout,
		SinkBuffer:     cfg.Pipeline.SinkBuffer,
		Scoring:        scoringOpts,
	}, detector, store, alerter, hub, m, log, sinks...)

	reporter, err := status.NewReporter(cfg.Status.Heartbeat, tracker, hub, log)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	goRun := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil {
				log.Error("component exited", zap.String("component", name), zap.Error(err))
			}
		}()
	}

	goRun("ws-hub", func(ctx context.Context) error { hub.Run(ctx); return nil })
	goRun("pipeline", func(ctx context.Context) error { proc.Run(ctx); return nil })

	for _, src := range buildSources(cfg, proc, m, log) {
		tracker.AddSource(src)
		goRun(src.Name(), src.Run)
	}
	if cfg.Simulator.Enabled {
		sim := simulator.New(cfg.Simulator.Interval, cfg.Simulator.Seed, proc, log)
		goRun("simulator", sim.Run)
	}

	reporter.Start()
	defer reporter.Stop()

	// --- Setup HTTP Servers ---
	apiHandler := api.NewAPIHandler(api.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		Scoring:        scoringOpts,
	}, store, proc, detector, hub, alerter, tracker, log)

	servers := []*http.Server{
		{Addr: fmt.Sprintf(":%d", cfg.Server.DataPort), Handler: api.SetupDataRouter(apiHandler, m), ReadHeaderTimeout: 5 * time.Second},
		{Addr: fmt.Sprintf(":%d", cfg.Server.UIPort), Handler: api.SetupUIRouter(apiHandler, m), ReadHeaderTimeout: 5 * time.Second},
	}
	serveErr := make(chan error, len(servers))
	for _, srv := range servers {
		srv := srv
		go func() {
			log.Info("http server listening", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- fmt.Errorf("listen %s: %w", srv.Addr, err)
			}
		}()
	}

	// --- Graceful Shutdown ---
	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case runErr = <-serveErr:
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("http shutdown", zap.String("addr", srv.Addr), zap.Error(err))
		}
	}
	wg.Wait()
	log.Info("gateway stopped")
	return runErr
}

func buildSources(cfg config.Config, proc *pipeline.Processor, m *metrics.Metrics, log *zap.Logger) []ingest.Source {
	var sources []ingest.Source
	if cfg.Upstream.Enabled {
		sources = append(sources, ingest.NewWebSocketSource(cfg.Upstream.URL, cfg.Upstream.ReconnectInterval,
			cfg.Upstream.MaxReconnectAttempts, proc, m, log))
	}
	if cfg.MQTT.Enabled {
		sources = append(sources, ingest.NewMQTTSource(cfg.MQTT, proc, m, log))
	}
	if cfg.Kafka.ConsumeEnabled {
		sources = append(sources, ingest.NewKafkaSource(cfg.Kafka.Brokers, cfg.Kafka.SnapshotTopic, cfg.Kafka.GroupID, proc, m, log))
	}
	return sources
}

func buildSinks(cfg config.Config, log *zap.Logger) ([]pipeline.Publisher, []io.Closer, error) {
	var (
		sinks   []pipeline.Publisher
		closers []io.Closer
	)
	if cfg.Kafka.PublishEnabled {
		p := publish.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.SummaryTopic)
		sinks = append(sinks, p)
		closers = append(closers, p)
	}
	if cfg.Redis.Enabled {
		p := publish.NewRedisPublisher(cfg.Redis)
		sinks = append(sinks, p)
		closers = append(closers, p)
	}
	if cfg.RabbitMQ.Enabled {
		p, err := publish.NewRabbitPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange, cfg.RabbitMQ.RoutingKey)
		if err != nil {
			for _, c := range closers {
				c.Close()
			}
			return nil, nil, err
		}
		sinks = append(sinks, publish.WithRetry(p, publish.DefaultBackoff(), log))
		closers = append(closers, p)
	}
	for _, s := range sinks {
		log.Info("summary sink enabled", zap.String("sink", s.Name()))
	}
	return sinks, closers, nil
}
