package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rewardnet/config"
	"rewardnet/native/campaign"
	"rewardnet/native/campaign/hooks"
	"rewardnet/observability/logging"
	"rewardnet/observability/metrics"
	"rewardnet/rpc"
	"rewardnet/state"
	"rewardnet/storage"
)

func main() {
	configPath := flag.String("config", "./config.toml", "path to the daemon configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Setup("campaignd", cfg.Environment)

	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
	if err != nil {
		logger.Error("open state database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	manager, err := state.NewManager(db)
	if err != nil {
		logger.Error("load registry state", "error", err)
		os.Exit(1)
	}

	engine := campaign.NewEngine()
	engine.SetState(manager)
	engine.SetEmitter(metrics.NewCollector(nil))
	engine.SetPauses(cfg)

	policyAddr, err := parseAddress(cfg.Policy.ModuleAddress)
	if err != nil {
		logger.Error("parse policy module address", "error", err)
		os.Exit(1)
	}
	engine.RegisterPolicy(policyAddr, hooks.NewManager(campaign.RegistryAddress, nil))

	mux := http.NewServeMux()
	mux.Handle("/", rpc.NewServer(engine))
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              cfg.RPCAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("rpc server listening", "address", cfg.RPCAddress, "network", cfg.NetworkName)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("rpc server", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown rpc server", "error", err)
	}
	if err := manager.Commit(); err != nil {
		logger.Error("flush registry state", "error", err)
	}
}

func parseAddress(s string) ([20]byte, error) {
	var addr [20]byte
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil {
		return addr, err
	}
	if len(raw) != 20 {
		return addr, fmt.Errorf("address must be 20 bytes, got %d", len(raw))
	}
	copy(addr[:], raw)
	return addr, nil
}
