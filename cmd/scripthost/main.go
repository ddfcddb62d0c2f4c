package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/zeusync/zeuscript/internal/host"
	"github.com/zeusync/zeuscript/internal/injector"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to host config (YAML)")
		scenePath  = flag.String("scene", "", "Scene manifest, overrides the config")
		consoleAdr = flag.String("console", "", "Console listen address, overrides the config")
		logLevel   = flag.String("log", "", "Log level: debug, info, warn, error, silent")
	)
	flag.Parse()

	cfg := host.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = host.LoadConfig(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
	}
	if *scenePath != "" {
		cfg.Scene = *scenePath
	}
	if *consoleAdr != "" {
		cfg.ConsoleAddr = *consoleAdr
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	h, err := injector.InitializeHost(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating host: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := h.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error running host: %v\n", err)
		os.Exit(1)
	}
}
