package config

import (
	"flag"
	"fmt"
	"strconv"
)

var (
	flagConfig   = flag.String("config", "", "Path to config file")
	flagDebug    = flag.Bool("debug", false, "Enable debug logging")
	flagSeed     = flag.String("seed", "", "Terrain seed (overrides config)")
	flagMapSize  = flag.Int("map-size", 0, "Tiles per map side")
	flagListen   = flag.String("listen", "", "Websocket listen address")
	flagSnapshot = flag.String("snapshot", "", "Snapshot to load instead of generating")
	flagLogFile  = flag.String("log-file", "", "Log file path")
)

// ParseFlags parses command-line flags. Call this early in main().
func ParseFlags() {
	flag.Parse()
}

// ConfigPath returns the explicit config path if provided via --config flag.
func ConfigPath() string {
	return *flagConfig
}

// applyFlags applies CLI flag overrides to the config.
func applyFlags(cfg *Config) error {
	if *flagDebug {
		cfg.Logging.Level = "debug"
	}
	if *flagSeed != "" {
		seed, err := strconv.ParseInt(*flagSeed, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid --seed %q: %w", *flagSeed, err)
		}
		cfg.Terrain.Seed = seed
	}
	if *flagMapSize > 0 {
		cfg.Terrain.MapSize = *flagMapSize
	}
	if *flagListen != "" {
		cfg.Server.Listen = *flagListen
	}
	if *flagSnapshot != "" {
		cfg.Storage.LoadOnStart = *flagSnapshot
	}
	if *flagLogFile != "" {
		cfg.Logging.LogFile = *flagLogFile
	}
	return nil
}
