package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"livevlm/core"
	"livevlm/inference"
	"livevlm/logging"
	"livevlm/shutdown"
	"livevlm/store"
	"livevlm/telemetry"
	"livevlm/webui"
)

// snapshotRetention bounds how far back the snapshot archive keeps
// history. Older rows are pruned at startup.
const snapshotRetention = 7 * 24 * time.Hour

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		// Use fmt here since logger isn't initialized yet
		fmt.Printf("Note: .env file not loaded: %v\n", err)
	}

	config, err := core.LoadConfig()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(config.DevMode, config.LogFile)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		zap.Int("history_capacity", config.HistoryCapacity),
		zap.String("backend_override", config.BackendOverride),
		zap.Int("device_index", config.DeviceIndex),
		zap.Duration("poll_interval", config.PollInterval),
		zap.String("vlm_model", config.VLMModel),
		zap.String("vlm_api_base", config.VLMAPIBase),
		zap.Int("sampling_interval_frames", config.SamplingIntervalFrames),
		zap.String("host", config.Host),
		zap.Int("port", config.Port),
		zap.Bool("dev_mode", config.DevMode),
	)

	manager := shutdown.NewManager(logger)
	manager.Register("logger", 0, func(ctx context.Context) error {
		logger.Sync()
		return nil
	})

	// Hardware telemetry: one collector, one poll loop.
	variant, err := telemetry.ParseVariant(config.BackendOverride)
	if err != nil {
		logger.Fatal("invalid backend override", zap.Error(err))
	}
	collector := telemetry.New(telemetry.Config{
		HistoryCapacity: config.HistoryCapacity,
		BackendOverride: variant,
		DeviceIndex:     config.DeviceIndex,
	}, logger)
	manager.Register("collector", 30, func(ctx context.Context) error {
		collector.Close()
		return nil
	})

	sampler := telemetry.NewSampler(collector, config.PollInterval, logger)

	// Optional snapshot persistence.
	var snapshots *store.SnapshotStore
	if config.SnapshotDBPath != "" {
		snapshots, err = store.OpenWithDefaults(config.SnapshotDBPath)
		if err != nil {
			logger.Fatal("failed to open snapshot store",
				zap.String("path", config.SnapshotDBPath),
				zap.Error(err))
		}
		pruned, err := snapshots.PruneBefore(context.Background(), time.Now().Add(-snapshotRetention))
		if err != nil {
			logger.Warn("failed to prune old snapshots", zap.Error(err))
		}
		count, err := snapshots.Count(context.Background())
		if err != nil {
			logger.Warn("failed to count snapshots", zap.Error(err))
		}
		sampler.OnSnapshot(func(snap telemetry.Snapshot) {
			if err := snapshots.Save(context.Background(), snap); err != nil {
				logger.Warn("failed to persist snapshot", zap.Error(err))
			}
		})
		manager.Register("snapshot store", 35, func(ctx context.Context) error {
			return snapshots.Close()
		})
		logger.Info("snapshot persistence enabled",
			zap.String("path", config.SnapshotDBPath),
			zap.Int64("stored_snapshots", count),
			zap.Int64("pruned", pruned))
	}

	// Vision-language inference over an OpenAI-compatible endpoint.
	client, err := inference.NewClient(inference.ClientConfig{
		Model:   config.VLMModel,
		APIBase: config.VLMAPIBase,
		APIKey:  config.VLMAPIKey,
	})
	if err != nil {
		logger.Fatal("failed to create inference client", zap.Error(err))
	}

	coordinator := inference.NewCoordinator(client, inference.Config{
		SamplingInterval: config.SamplingIntervalFrames,
		Prompt:           config.VLMPrompt,
		CallTimeout:      config.InferenceTimeout,
	}, logger)

	srvCfg := webui.DefaultServerConfig()
	srvCfg.Host = config.Host
	srvCfg.Port = config.Port
	srv := webui.NewServer(srvCfg, sampler, collector, coordinator, coordinator, logger)
	if snapshots != nil {
		srv.SetSnapshotArchive(snapshots)
	}

	poller := webui.NewPoller(sampler, coordinator, srv.Broadcaster(), config.PollInterval, logger)

	manager.Start()
	ctx := manager.Context()

	sampler.Start(ctx)
	manager.Register("sampler", 20, func(shutdownCtx context.Context) error {
		sampler.Stop()
		return nil
	})

	go poller.Run(ctx)

	manager.Register("http server", 10, func(shutdownCtx context.Context) error {
		return srv.Shutdown(shutdownCtx)
	})

	printBanner(config)

	go func() {
		if err := srv.Start(ctx); err != nil {
			logger.Error("server stopped", zap.Error(err))
		}
	}()

	manager.Wait()
	if err := manager.Shutdown(); err != nil {
		logger.Error("shutdown finished with errors", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("goodbye")
}

// printBanner prints the dashboard URLs for every usable interface so
// the operator can open the UI from another machine on the LAN.
func printBanner(config core.Config) {
	bold := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen)

	bold.Println("\nLiveVLM dashboard ready")
	for _, addr := range networkAddresses(config.Host) {
		green.Printf("  http://%s:%d\n", addr, config.Port)
	}
	fmt.Println()
}

// networkAddresses lists the IPv4 addresses the server is reachable on.
// Docker bridge addresses (172.17.*) are skipped since they are rarely
// what the operator wants.
func networkAddresses(host string) []string {
	if host != "" && host != "0.0.0.0" {
		return []string{host}
	}

	addrs := []string{"localhost"}
	ifaceAddrs, err := net.InterfaceAddrs()
	if err != nil {
		return addrs
	}
	for _, a := range ifaceAddrs {
		ipNet, ok := a.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		ip4 := ipNet.IP.To4()
		if ip4 == nil || strings.HasPrefix(ip4.String(), "172.17.") {
			continue
		}
		addrs = append(addrs, ip4.String())
	}
	return addrs
}
