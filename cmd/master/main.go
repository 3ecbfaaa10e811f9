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
	"github.com/nidzo732/fleetwork/pkg/log"
	"github.com/nidzo732/fleetwork/pkg/metrics"
	"github.com/nidzo732/fleetwork/pkg/workgroup"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "fleetwork-master",
	Short:   "fleetwork master: dispatches tasks to a worker pool and mediates its coordination primitives",
	Version: Version,
	RunE:    runMaster,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("fleetwork-master %s (%s)\n", Version, Commit))
	rootCmd.Flags().StringP("config", "c", "", "path to the master YAML config (required)")
	rootCmd.Flags().String("metrics-addr", "127.0.0.1:9090", "address to serve /metrics and /health on")
	_ = rootCmd.MarkFlagRequired("config")
}

func runMaster(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("config")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

	cfg, err := config.LoadMaster(path)
	if err != nil {
		return err
	}
	log.Init(cfg.LogConfig())

	wireCfg, err := cfg.Security.WireConfig(cfg.TimeoutSeconds)
	if err != nil {
		return fmt.Errorf("master: %w", err)
	}
	wgCfg := workgroup.Config{
		ListenAddr:    cfg.ListenAddr,
		WireConfig:    wireCfg,
		QueueCapacity: cfg.QueueCapacity,
		Salvage:       cfg.SalvagePolicy(),
	}
	for _, w := range cfg.WorkerSpecs() {
		wgCfg.Workers = append(wgCfg.Workers, workgroup.WorkerSpec{ID: w.ID, Addr: w.Addr})
	}

	wg, err := workgroup.New(wgCfg)
	if err != nil {
		return fmt.Errorf("master: %w", err)
	}

	metrics.SetVersion(Version)
	metrics.RegisterComponent("listener", true, "ready")
	go func() {
		http.Handle("/metrics", metrics.Handler())
		http.Handle("/health", metrics.HealthHandler())
		http.Handle("/ready", metrics.ReadyHandler())
		http.Handle("/live", metrics.LivenessHandler())
		if err := http.ListenAndServe(metricsAddr, nil); err != nil {
			log.WithComponent("master").Error().Err(err).Msg("metrics server stopped")
		}
	}()
	log.WithComponent("master").Info().Str("addr", cfg.ListenAddr).Str("metrics", metricsAddr).Msg("master serving")

	errCh := make(chan error, 1)
	go func() { errCh <- wg.Serve() }()
	metrics.RegisterComponent("dispatcher", true, "ready")

	var collector *discovery.Collector
	if cfg.Discovery.Enabled {
		collector, err = discovery.NewCollector(cfg.Discovery.GroupAddr)
		if err != nil {
			log.WithComponent("master").Warn().Err(err).Msg("discovery disabled: cannot start collector")
		} else {
			collector.Start()
			log.WithComponent("master").Info().Str("group", cfg.Discovery.GroupAddr).Msg("discovery collector listening")
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.WithComponent("master").Info().Msg("shutting down")
		if collector != nil {
			collector.Stop()
		}
		wg.Stop()
		<-errCh
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("master: %w", err)
		}
	}

	if err := wg.Err(); err != nil {
		return err
	}
	return nil
}
