package main

import (
	"context"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"github.com/GoSim-25-26J-441/co2sim-core/internal/control"
	"github.com/GoSim-25-26J-441/co2sim-core/internal/formation"
	"github.com/GoSim-25-26J-441/co2sim-core/internal/server"
	"github.com/GoSim-25-26J-441/co2sim-core/internal/simclient"
	"github.com/GoSim-25-26J-441/co2sim-core/internal/storage"
	"github.com/GoSim-25-26J-441/co2sim-core/pkg/config"
	"github.com/GoSim-25-26J-441/co2sim-core/pkg/logger"
	"github.com/GoSim-25-26J-441/co2sim-core/pkg/utils"
)

func main() {
	var configPath string
	var grpcAddr string
	var httpAddr string
	var logLevel string

	flag.StringVar(&configPath, "config", "", "path to config YAML (defaults are used when empty)")
	flag.StringVar(&grpcAddr, "grpc-addr", "", "gRPC listen address (overrides config)")
	flag.StringVar(&httpAddr, "http-addr", "", "HTTP listen address (overrides config)")
	flag.StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error; overrides config)")
	flag.Parse()

	cfg := config.DefaultConfig()
	if configPath != "" {
		loaded, err := config.LoadConfig(configPath)
		if err != nil {
			logger.Error("failed to load config", "path", configPath, "error", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if grpcAddr != "" {
		cfg.Server.GRPCAddr = grpcAddr
	}
	if httpAddr != "" {
		cfg.Server.HTTPAddr = httpAddr
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	logger.SetDefault(logger.NewWithFormat(cfg.LogLevel, cfg.LogFormat, os.Stdout))

	if err := run(cfg); err != nil {
		logger.Error("co2simd exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var db *storage.DB
	if cfg.Formations.Source == "sqlite" || cfg.Storage.ArchiveResults {
		var err error
		db, err = storage.Open(cfg.Storage.Path)
		if err != nil {
			return err
		}
		defer db.Close()
	}

	var source formation.Source = formation.CSVSource{Dir: cfg.Formations.Dir}
	if cfg.Formations.Source == "sqlite" {
		source = db
	}
	formations := formation.NewRegistry(source)

	client := newSimulatorClient(cfg.Simulator, formations)

	opts := control.Options{
		Client:     client,
		Formations: formations,
		Params:     cfg.Simulation,
		Search:     cfg.Search,
	}
	if cfg.Storage.ArchiveResults {
		opts.Archive = db
	}
	if n := cfg.Notifications; n.CallbackURL != "" {
		opts.Notifier = control.NewNotifier(n.CallbackURL, n.MaxRetries,
			utils.BackoffFromConfig(n.Backoff, n.BaseMs, 0),
			time.Duration(n.TimeoutMs)*time.Millisecond)
	}

	controller, err := control.NewController(opts)
	if err != nil {
		return err
	}

	// TODO: Configure gRPC server security (TLS, authentication) before exposing
	// the service outside a trusted network.
	grpcServer := grpc.NewServer()
	server.RegisterWellSearchServer(grpcServer, server.NewGRPCServer(controller, cfg.Server.StreamInterval()))

	grpcLis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		return err
	}

	// No WriteTimeout: snapshot streams and single simulations outlive any fixed deadline.
	httpSrv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           server.NewHTTPServer(controller, cfg.Server.StreamInterval()).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		logger.Info("gRPC server listening", "addr", cfg.Server.GRPCAddr)
		if err := grpcServer.Serve(grpcLis); err != nil {
			logger.Error("gRPC server error", "error", err)
			stop()
		}
	}()

	go func() {
		logger.Info("HTTP server listening", "addr", cfg.Server.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown requested")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := controller.Shutdown(shutdownCtx); err != nil {
		logger.Warn("searches did not exit before the shutdown deadline", "error", err)
	}
	grpcServer.Stop()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown error", "error", err)
	}
	return nil
}

// newSimulatorClient builds the configured backend, wrapped in the domain
// guard when enabled
func newSimulatorClient(cfg config.SimulatorConfig, formations *formation.Registry) simclient.Client {
	var client simclient.Client
	switch cfg.Backend {
	case "exec":
		client = simclient.NewExecClient(cfg.Command, cfg.Args...)
		logger.Info("using external simulator", "command", cfg.Command)
	default:
		client = simclient.NewSyntheticClient(cfg.Seed, 0)
		logger.Info("using synthetic simulator", "seed", cfg.Seed)
	}
	if !cfg.GuardDomain {
		return client
	}
	return simclient.NewDomainGuard(client, func(name string) (simclient.Domain, error) {
		return formations.Get(context.Background(), name)
	})
}
