package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/signalsfoundry/radio-emulator/core"
	"github.com/signalsfoundry/radio-emulator/internal/configsvc"
	"github.com/signalsfoundry/radio-emulator/internal/logging"
	"github.com/signalsfoundry/radio-emulator/internal/observability"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
)

// Config holds the server settings taken from flags.
type Config struct {
	ListenAddress  string
	MetricsAddress string
	ProfilePath    string
	LogLevel       string
	LogFormat      string
	MaxIterations  int
	// Registerer receives the metrics; nil selects a fresh registry.
	Registerer prometheus.Registerer
}

func parseFlags(args []string) (Config, error) {
	fs := flag.NewFlagSet("config-server", flag.ContinueOnError)
	cfg := Config{}
	fs.StringVar(&cfg.ListenAddress, "grpc-addr", ":50051", "TCP address the config gRPC server listens on")
	fs.StringVar(&cfg.MetricsAddress, "metrics-addr", ":9090", "HTTP address for Prometheus /metrics; empty disables it")
	fs.StringVar(&cfg.ProfilePath, "profile", "configs/radios.yaml", "Radio profile (.yaml, .yml or .json)")
	fs.StringVar(&cfg.LogLevel, "log-level", envOrDefault("RADIO_LOG_LEVEL", "info"), "debug, info, warn or error")
	fs.StringVar(&cfg.LogFormat, "log-format", envOrDefault("RADIO_LOG_FORMAT", "text"), "text or json")
	fs.IntVar(&cfg.MaxIterations, "max-iterations", 0, "Propagation loop cap per solver; 0 keeps the solver default")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}
	log := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv("config-server"), log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.Err(err))
		os.Exit(1)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	lis, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		log.Error(ctx, "failed to listen for gRPC", logging.String("addr", cfg.ListenAddress), logging.Err(err))
		os.Exit(1)
	}

	if err := run(ctx, cfg, log, lis); err != nil {
		log.Error(ctx, "config server exited", logging.Err(err))
		os.Exit(1)
	}
}

// run loads the profile and serves until ctx is cancelled.
func run(ctx context.Context, cfg Config, log logging.Logger, lis net.Listener) error {
	reg := cfg.Registerer
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	collector, err := observability.NewConfigCollector(reg)
	if err != nil {
		return err
	}

	kb := newKnowledgeBase(cfg, collector, log)
	loadProfile(ctx, log, kb, cfg.ProfilePath)

	server := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			configsvc.RequestIDUnaryServerInterceptor(log),
			configsvc.TracingUnaryServerInterceptor(),
			collector.UnaryServerInterceptor(),
		),
	)
	configsvc.RegisterConfigServiceServer(server, configsvc.NewService(kb, log))

	metricsSrv := serveMetrics(cfg.MetricsAddress, collector, log)

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting config gRPC server", logging.String("addr", lis.Addr().String()))
		serveErr <- server.Serve(lis)
	}()

	var result error
	select {
	case <-ctx.Done():
		log.Info(context.Background(), "shutting down config server")
		server.GracefulStop()
		<-serveErr
	case err := <-serveErr:
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			result = err
		}
	}

	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	return result
}

func newKnowledgeBase(cfg Config, collector *observability.ConfigCollector, log logging.Logger) *core.KnowledgeBase {
	return core.NewKnowledgeBase(
		core.WithRadioCountRecorder(collector),
		core.WithRadioDefaults(func(radioID string) []core.RadioOption {
			opts := []core.RadioOption{
				core.WithRadioLogger(log),
				core.WithPropagationObserver(collector),
				core.WithLockMetrics(collector.ForRadio(radioID)),
			}
			if cfg.MaxIterations > 0 {
				opts = append(opts, core.WithMaxIterations(cfg.MaxIterations))
			}
			return opts
		}),
	)
}

func serveMetrics(addr string, collector *observability.ConfigCollector, log logging.Logger) *http.Server {
	if addr == "" || collector == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}

func loadProfile(ctx context.Context, log logging.Logger, kb *core.KnowledgeBase, path string) {
	if path == "" {
		return
	}

	profile, err := core.LoadProfileFile(ctx, kb, path)
	if err != nil {
		log.Warn(ctx, "profile rejected, knowledge base left unchanged", logging.String("path", path), logging.Err(err))
		return
	}
	for _, r := range profile.Rejected {
		log.Warn(ctx, "initial lock rejected", logging.String("detail", r))
	}

	log.Info(ctx, "loaded radio profile",
		logging.String("path", path),
		logging.Int("transceivers", len(profile.TransceiverIDs)),
		logging.Int("radios", len(profile.RadioIDs)),
	)
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
