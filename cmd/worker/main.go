package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nidzo732/fleetwork/pkg/config"
	"github.com/nidzo732/fleetwork/pkg/discovery"
	"github.com/nidzo732/fleetwork/pkg/executor"
	"github.com/nidzo732/fleetwork/pkg/log"
	"github.com/nidzo732/fleetwork/pkg/metrics"
	"github.com/nidzo732/fleetwork/pkg/worker"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if os.Getenv(executor.ChildEnvVar) == "1" {
		if err := executor.RunChild(os.Stdin, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "fleetwork-worker",
	Short:   "fleetwork worker: runs submitted tasks in their own process and relays their primitive calls to the master",
	Version: Version,
	RunE:    runWorker,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("fleetwork-worker %s (%s)\n", Version, Commit))
	rootCmd.Flags().StringP("config", "c", "", "path to the worker YAML config (required)")
	rootCmd.Flags().String("metrics-addr", "127.0.0.1:9091", "address to serve /metrics and /health on")
	_ = rootCmd.MarkFlagRequired("config")
}

func runWorker(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("config")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

	cfg, err := config.LoadWorker(path)
	if err != nil {
		return err
	}
	log.Init(cfg.LogConfig())

	wireCfg, err := cfg.Security.WireConfig(cfg.TimeoutSeconds)
	if err != nil {
		return fmt.Errorf("worker: %w", err)
	}
	w, err := worker.New(worker.Config{
		ListenAddr:    cfg.ListenAddr,
		MasterAddr:    cfg.MasterAddr,
		WireConfig:    wireCfg,
		QueueCapacity: cfg.QueueCapacity,
	})
	if err != nil {
		return fmt.Errorf("worker: %w", err)
	}

	metrics.SetVersion(Version)
	metrics.RegisterComponent("listener", true, "ready")
	go func() {
		http.Handle("/metrics", metrics.Handler())
		http.Handle("/health", metrics.HealthHandler())
		http.Handle("/ready", metrics.ReadyHandler())
		http.Handle("/live", metrics.LivenessHandler())
		if err := http.ListenAndServe(metricsAddr, nil); err != nil {
			log.WithComponent("worker").Error().Err(err).Msg("metrics server stopped")
		}
	}()
	log.WithComponent("worker").Info().Str("addr", cfg.ListenAddr).Str("master", cfg.MasterAddr).Msg("worker serving")

	errCh := make(chan error, 1)
	go func() { errCh <- w.Serve() }()
	metrics.RegisterComponent("dispatcher", true, "ready")

	var announcer *discovery.Announcer
	if cfg.Discovery.Enabled {
		announcer = discovery.NewAnnouncer(cfg.ListenAddr, cfg.Discovery.GroupAddr, cfg.Discovery.IntervalDuration())
		announcer.Start()
		log.WithComponent("worker").Info().Str("group", cfg.Discovery.GroupAddr).Msg("discovery announcer started")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.WithComponent("worker").Info().Msg("shutting down")
		if announcer != nil {
			announcer.Stop()
		}
		w.Stop()
		<-errCh
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("worker: %w", err)
		}
	}
	return nil
}
