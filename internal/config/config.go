// Package config handles simulation configuration loading and management.
package config

import (
	"fmt"
	"time"

	"github.com/Faultbox/midgard-sim/internal/movement"
	"github.com/Faultbox/midgard-sim/internal/pathfind"
	"github.com/Faultbox/midgard-sim/internal/terrain"
	"github.com/Faultbox/midgard-sim/internal/world"
)

// Config holds all simulation settings.
type Config struct {
	Terrain  TerrainConfig     `yaml:"terrain"`
	Search   pathfind.Options  `yaml:"search"`
	Movement movement.Settings `yaml:"movement"`
	World    WorldConfig       `yaml:"world"`
	Storage  StorageConfig     `yaml:"storage"`
	Server   ServerConfig      `yaml:"server"`
	Logging  LoggingConfig     `yaml:"logging"`
}

// TerrainConfig holds generation inputs.
type TerrainConfig struct {
	Seed      int64               `yaml:"seed"`
	MapSize   int                 `yaml:"map_size"`   // tiles per side, even
	RulesFile string              `yaml:"rules_file"` // optional yaml biome rules; built-in rules when empty
	Noise     terrain.NoiseParams `yaml:"noise"`
}

// WorldConfig holds world-space layout and population settings.
type WorldConfig struct {
	TileSize float64              `yaml:"tile_size"` // world units per tile
	NPCs     int                  `yaml:"npcs"`      // non-player agents scattered at startup
	Objects  world.ObjectSettings `yaml:"objects"`
	Wander   world.WanderSettings `yaml:"wander"`
}

// StorageConfig holds snapshot persistence paths.
type StorageConfig struct {
	SnapshotDir string `yaml:"snapshot_dir"`
	CatalogDB   string `yaml:"catalog_db"`
	LoadOnStart string `yaml:"load_on_start"` // snapshot to restore instead of generating
}

// ServerConfig holds the websocket endpoint and tick loop settings.
type ServerConfig struct {
	Listen       string        `yaml:"listen"`
	TickRateHz   int           `yaml:"tick_rate_hz"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
	JSON    bool   `yaml:"json"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Terrain: TerrainConfig{
			Seed:    1337,
			MapSize: 128,
			Noise:   terrain.DefaultNoiseParams(),
		},
		Search:   pathfind.DefaultOptions(),
		Movement: movement.DefaultSettings(),
		World: WorldConfig{
			TileSize: 1,
			Objects:  world.DefaultObjectSettings(),
			Wander:   world.DefaultWanderSettings(),
		},
		Storage: StorageConfig{
			SnapshotDir: "snapshots",
			CatalogDB:   "snapshots/catalog.db",
		},
		Server: ServerConfig{
			Listen:       "127.0.0.1:8090",
			TickRateHz:   20,
			WriteTimeout: 5 * time.Second,
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}

// Validate reports settings the simulation cannot run with.
func (c *Config) Validate() error {
	if c.Terrain.MapSize <= 0 || c.Terrain.MapSize%2 != 0 {
		return fmt.Errorf("terrain.map_size must be positive and even, got %d", c.Terrain.MapSize)
	}
	if err := c.Search.Validate(); err != nil {
		return err
	}
	if c.Movement.Speed <= 0 {
		return fmt.Errorf("movement.speed must be positive, got %v", c.Movement.Speed)
	}
	if c.World.TileSize <= 0 {
		return fmt.Errorf("world.tile_size must be positive, got %v", c.World.TileSize)
	}
	if c.World.NPCs < 0 {
		return fmt.Errorf("world.npcs must not be negative, got %d", c.World.NPCs)
	}
	if ch := c.World.Objects.TreeChance; ch < 0 || ch > 1 {
		return fmt.Errorf("world.objects.tree_chance must be in [0, 1], got %v", ch)
	}
	if w := c.World.Wander; w.Enabled && (w.Radius <= 0 || w.Interval <= 0) {
		return fmt.Errorf("world.wander needs a positive radius and interval, got %d and %v", w.Radius, w.Interval)
	}
	if c.Server.TickRateHz <= 0 {
		return fmt.Errorf("server.tick_rate_hz must be positive, got %d", c.Server.TickRateHz)
	}
	return nil
}

// TickInterval returns the wall-clock duration of one simulation tick.
func (c *Config) TickInterval() time.Duration {
	return time.Second / time.Duration(c.Server.TickRateHz)
}
