package main

import (
	"flag"
	"log"
	"os"
	"strings"

	"MarketEngine/internal/di"
	"MarketEngine/pkg/config"
	"MarketEngine/pkg/server"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	mode := flag.String("mode", server.ModeAll, "run mode: "+strings.Join(server.Modes, ", "))
	fullReload := flag.Bool("full-reload", false, "load every artifact, ignoring the checkpoint")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	app, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}

	if err := app.Run(server.RunOptions{Mode: *mode, FullReload: *fullReload}); err != nil {
		os.Exit(1)
	}
}
