// Package cmd contains the entry points for running the proxy service.
// It wires the configuration, upstream clients, API server, and config file
// watcher together and handles graceful shutdown on OS signals.
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ricejack10/openai-nim-proxy2/internal/api"
	"github.com/ricejack10/openai-nim-proxy2/internal/config"
	"github.com/ricejack10/openai-nim-proxy2/internal/logging"
	nimopenai "github.com/ricejack10/openai-nim-proxy2/internal/translator/nim/openai"
	"github.com/ricejack10/openai-nim-proxy2/internal/util"
	"github.com/ricejack10/openai-nim-proxy2/internal/watcher"
)

// StartService builds the upstream clients, starts the API server, and blocks
// until a shutdown signal is received.
func StartService(cfg *config.Config, configPath string) {
	util.SetLogLevel(cfg)
	if err := logging.ConfigureLogOutput(cfg.LoggingToFile); err != nil {
		log.Errorf("failed to configure log output: %v", err)
	}

	nimopenai.SetReasoningDisplay(cfg.Reasoning.DisplayEnabled())

	cliClients := watcher.BuildClients(cfg)

	apiServer := api.NewServer(cfg, cliClients)

	serverErr := make(chan error, 1)
	go func() {
		log.Infof("starting API server on port %d", cfg.Port)
		serverErr <- apiServer.Start()
	}()

	watcherCtx, watcherCancel := context.WithCancel(context.Background())
	defer watcherCancel()

	fileWatcher, errWatcher := watcher.NewWatcher(configPath, apiServer.UpdateClients)
	if errWatcher != nil {
		log.Errorf("failed to create config watcher, hot reload disabled: %v", errWatcher)
	} else {
		fileWatcher.SetConfig(cfg)
		fileWatcher.SetClients(cliClients)
		if errStart := fileWatcher.Start(watcherCtx); errStart != nil {
			log.Errorf("failed to start config watcher, hot reload disabled: %v", errStart)
		}
		defer func() {
			_ = fileWatcher.Stop()
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Infof("received signal %s, shutting down...", sig)
	case err := <-serverErr:
		if err != nil {
			log.Fatalf("API server failed: %v", err)
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := apiServer.Stop(ctx); err != nil {
		log.Errorf("error stopping API server: %v", err)
	}
	log.Info("shutdown complete")
}
