// Command server runs the OpenAI-compatible proxy for NVIDIA NIM.
// It loads the YAML configuration, sets up logging, and starts the
// HTTP service with hot configuration reloading.
package main

import (
	"flag"
	"os"
	"path"

	log "github.com/sirupsen/logrus"

	"github.com/ricejack10/openai-nim-proxy2/internal/cmd"
	"github.com/ricejack10/openai-nim-proxy2/internal/config"
	"github.com/ricejack10/openai-nim-proxy2/internal/logging"
)

func init() {
	logging.SetupBaseLogger()
}

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "configuration file path")
	flag.Parse()

	if configPath == "" {
		wd, errWd := os.Getwd()
		if errWd != nil {
			log.Fatalf("failed to get working directory: %v", errWd)
		}
		configPath = path.Join(wd, "config.yaml")
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	cmd.StartService(cfg, configPath)
}
