// Package watcher provides file system monitoring for the proxy server.
// It watches the configuration file for changes and automatically rebuilds
// upstream clients when the file is modified, enabling hot-reloading without
// a server restart.
package watcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"

	"github.com/ricejack10/openai-nim-proxy2/internal/client"
	"github.com/ricejack10/openai-nim-proxy2/internal/config"
	"github.com/ricejack10/openai-nim-proxy2/internal/interfaces"
	nimopenai "github.com/ricejack10/openai-nim-proxy2/internal/translator/nim/openai"
	"github.com/ricejack10/openai-nim-proxy2/internal/util"
)

// Watcher monitors the configuration file and rebuilds clients on change.
type Watcher struct {
	configPath     string
	config         *config.Config
	clients        []interfaces.Client
	clientsMutex   sync.RWMutex
	reloadCallback func([]interfaces.Client, *config.Config)
	watcher        *fsnotify.Watcher
	lastConfigHash string
}

// NewWatcher creates a new file watcher instance.
func NewWatcher(configPath string, reloadCallback func([]interfaces.Client, *config.Config)) (*Watcher, error) {
	watcher, errNewWatcher := fsnotify.NewWatcher()
	if errNewWatcher != nil {
		return nil, errNewWatcher
	}

	return &Watcher{
		configPath:     configPath,
		reloadCallback: reloadCallback,
		watcher:        watcher,
	}, nil
}

// Start begins watching the configuration file.
func (w *Watcher) Start(ctx context.Context) error {
	if errAddConfig := w.watcher.Add(w.configPath); errAddConfig != nil {
		log.Errorf("failed to watch config file %s: %v", w.configPath, errAddConfig)
		return errAddConfig
	}
	log.Debugf("watching config file: %s", w.configPath)

	go w.processEvents(ctx)

	return nil
}

// Stop stops the file watcher.
func (w *Watcher) Stop() error {
	return w.watcher.Close()
}

// SetConfig updates the current configuration.
func (w *Watcher) SetConfig(cfg *config.Config) {
	w.clientsMutex.Lock()
	defer w.clientsMutex.Unlock()
	w.config = cfg
}

// SetClients sets the current client list.
func (w *Watcher) SetClients(clients []interfaces.Client) {
	w.clientsMutex.Lock()
	defer w.clientsMutex.Unlock()
	w.clients = clients
}

// processEvents handles file system events.
func (w *Watcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case errWatch, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Errorf("file watcher error: %v", errWatch)
		}
	}
}

// handleEvent processes individual file system events.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Name != w.configPath || (event.Op&fsnotify.Write != fsnotify.Write && event.Op&fsnotify.Create != fsnotify.Create) {
		return
	}

	log.Debugf("file system event detected: %s %s", event.Op.String(), event.Name)

	data, err := os.ReadFile(w.configPath)
	if err != nil {
		log.Errorf("failed to read config file for hash check: %v", err)
		return
	}
	if len(data) == 0 {
		log.Debugf("ignoring empty config file write event")
		return
	}
	sum := sha256.Sum256(data)
	newHash := hex.EncodeToString(sum[:])

	w.clientsMutex.RLock()
	currentHash := w.lastConfigHash
	w.clientsMutex.RUnlock()

	if currentHash != "" && currentHash == newHash {
		log.Debugf("config file content unchanged (hash match), skipping reload")
		return
	}
	log.Infof("config file changed, reloading: %s", w.configPath)
	if w.reloadConfig() {
		w.clientsMutex.Lock()
		w.lastConfigHash = newHash
		w.clientsMutex.Unlock()
	}
}

// reloadConfig reloads the configuration and rebuilds the upstream clients.
func (w *Watcher) reloadConfig() bool {
	log.Debugf("starting config reload from: %s", w.configPath)

	newConfig, errLoadConfig := config.LoadConfig(w.configPath)
	if errLoadConfig != nil {
		log.Errorf("failed to reload config: %v", errLoadConfig)
		return false
	}

	w.clientsMutex.Lock()
	oldConfig := w.config
	w.config = newConfig
	w.clientsMutex.Unlock()

	// Always apply the current log level based on the latest config.
	util.SetLogLevel(newConfig)

	if oldConfig != nil {
		log.Debugf("config changes detected:")
		if oldConfig.Port != newConfig.Port {
			log.Debugf("  port: %d -> %d", oldConfig.Port, newConfig.Port)
		}
		if oldConfig.Debug != newConfig.Debug {
			log.Debugf("  debug: %t -> %t", oldConfig.Debug, newConfig.Debug)
		}
		if oldConfig.ProxyURL != newConfig.ProxyURL {
			log.Debugf("  proxy-url: %s -> %s", oldConfig.ProxyURL, newConfig.ProxyURL)
		}
		if oldConfig.RequestLog != newConfig.RequestLog {
			log.Debugf("  request-log: %t -> %t", oldConfig.RequestLog, newConfig.RequestLog)
		}
		if oldConfig.LoggingToFile != newConfig.LoggingToFile {
			log.Debugf("  logging-to-file: %t -> %t", oldConfig.LoggingToFile, newConfig.LoggingToFile)
		}
		if oldConfig.Reasoning.DisplayEnabled() != newConfig.Reasoning.DisplayEnabled() {
			log.Debugf("  reasoning.display: %t -> %t", oldConfig.Reasoning.DisplayEnabled(), newConfig.Reasoning.DisplayEnabled())
		}
		if oldConfig.NIM.BaseURL != newConfig.NIM.BaseURL {
			log.Debugf("  nim.base-url: %s -> %s", oldConfig.NIM.BaseURL, newConfig.NIM.BaseURL)
		}
		if len(oldConfig.NIM.APIKeys) != len(newConfig.NIM.APIKeys) {
			log.Debugf("  nim.api-keys count: %d -> %d", len(oldConfig.NIM.APIKeys), len(newConfig.NIM.APIKeys))
		}
		if len(oldConfig.NIM.Models) != len(newConfig.NIM.Models) {
			log.Debugf("  nim.models count: %d -> %d", len(oldConfig.NIM.Models), len(newConfig.NIM.Models))
		}
		if len(oldConfig.APIKeys) != len(newConfig.APIKeys) {
			log.Debugf("  api-keys count: %d -> %d", len(oldConfig.APIKeys), len(newConfig.APIKeys))
		}
		if oldConfig.AllowLocalhostUnauthenticated != newConfig.AllowLocalhostUnauthenticated {
			log.Debugf("  allow-localhost-unauthenticated: %t -> %t", oldConfig.AllowLocalhostUnauthenticated, newConfig.AllowLocalhostUnauthenticated)
		}
	}

	nimopenai.SetReasoningDisplay(newConfig.Reasoning.DisplayEnabled())

	log.Infof("config successfully reloaded, triggering client reload")
	w.reloadClients()
	return true
}

// reloadClients rebuilds the upstream clients from the current config.
func (w *Watcher) reloadClients() {
	w.clientsMutex.RLock()
	cfg := w.config
	oldClientCount := len(w.clients)
	w.clientsMutex.RUnlock()

	if cfg == nil {
		log.Error("config is nil, cannot reload clients")
		return
	}

	// Unregister old clients before creating new ones so model refcounts stay balanced.
	w.clientsMutex.RLock()
	oldClients := w.clients
	w.clientsMutex.RUnlock()
	for _, oldClient := range oldClients {
		oldClient.SetUnavailable()
		if u, ok := any(oldClient).(interface{ UnregisterClient() }); ok {
			u.UnregisterClient()
		}
	}

	newClients := BuildClients(cfg)

	w.clientsMutex.Lock()
	w.clients = newClients
	w.clientsMutex.Unlock()

	log.Infof("client reload complete - old: %d clients, new: %d clients", oldClientCount, len(newClients))

	if w.reloadCallback != nil {
		log.Debugf("triggering server update callback")
		w.reloadCallback(newClients, cfg)
	}
}

// BuildClients creates the upstream client list from the configuration.
func BuildClients(cfg *config.Config) []interfaces.Client {
	nimClient := client.NewNIMClient(cfg)
	return []interfaces.Client{nimClient}
}
