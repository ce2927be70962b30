package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/danmuck/oraclectl/internal/logging"
	"github.com/danmuck/oraclectl/internal/oracle"
	"github.com/danmuck/oraclectl/internal/protocol/jsonrpc"
	"github.com/danmuck/oraclectl/internal/server"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to TOML config file")
		debugAddr  = flag.String("debug-addr", "", "serve debug endpoints on this address")
		logLevel   = flag.String("log-level", "", "log level (trace|debug|info|warn|error|disabled)")
	)
	flag.Parse()

	cfg := defaultServiceConfig()
	if *configPath != "" {
		loaded, err := loadServiceConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "oraclectl: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if *debugAddr != "" {
		cfg.DebugAddr = *debugAddr
	}

	logger := logging.Configure(logging.ProfileRuntime, cfg.Name)
	// Flags outrank both the config file and the environment.
	if *logLevel != "" {
		lvl, ok := logging.ParseLevel(*logLevel)
		if !ok {
			fmt.Fprintf(os.Stderr, "oraclectl: unknown log level %q\n", *logLevel)
			os.Exit(1)
		}
		logger = logger.Level(lvl)
	} else if lvl, ok := logging.ParseLevel(cfg.LogLevel); ok && os.Getenv(logging.EnvLogLevel) == "" {
		logger = logger.Level(lvl)
	}

	registry := oracle.Builtins()

	if cfg.DebugAddr != "" {
		server.NewDebug(cfg.Name, cfg.DebugAddr, registry, logger).Start()
	}

	engineCfg := oracle.DefaultConfig()
	if cfg.MaxLineBytes > 0 {
		engineCfg.Limits = jsonrpc.Limits{MaxLineBytes: cfg.MaxLineBytes}
	}

	engine := oracle.NewEngine(os.Stdin, os.Stdout, registry, engineCfg, logger)
	if err := engine.Run(); err != nil {
		logger.Error().Err(err).Msg("session failed")
		os.Exit(1)
	}
}
