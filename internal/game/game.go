// Package game wires configuration, storage, the world and the websocket
// endpoint together and runs the fixed-rate tick loop.
package game

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Faultbox/midgard-sim/internal/config"
	"github.com/Faultbox/midgard-sim/internal/logger"
	"github.com/Faultbox/midgard-sim/internal/storage/catalogdb"
	"github.com/Faultbox/midgard-sim/internal/terrain"
	"github.com/Faultbox/midgard-sim/internal/transport/ws"
	"github.com/Faultbox/midgard-sim/internal/world"
)

// Game is a running simulation server.
type Game struct {
	cfg     *config.Config
	log     *zap.Logger
	world   *world.World
	catalog *catalogdb.DB
	ws      *ws.Server
}

// New builds the world from cfg and restores or generates its terrain.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Game, error) {
	log = logger.OrNop(log)
	log.Info("initializing simulation",
		zap.Int64("seed", cfg.Terrain.Seed),
		zap.Int("map_size", cfg.Terrain.MapSize),
		zap.Int("tick_rate_hz", cfg.Server.TickRateHz))

	settings, err := WorldSettings(cfg)
	if err != nil {
		return nil, err
	}
	w, err := world.New(settings, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create world: %w", err)
	}

	g := &Game{cfg: cfg, log: log, world: w}

	if cfg.Storage.CatalogDB != "" {
		g.catalog, err = catalogdb.Open(cfg.Storage.CatalogDB)
		if err != nil {
			return nil, fmt.Errorf("failed to open snapshot catalog: %w", err)
		}
	}

	t, err := LoadOrGenerate(ctx, cfg, w.Catalog(), settings.Rules, g.catalog, log)
	if err != nil {
		g.Close()
		return nil, err
	}
	w.LoadTerrain(t)

	if n := cfg.World.NPCs; n > 0 {
		ids, err := w.SpawnNPCs(n, 0)
		if err != nil {
			g.Close()
			return nil, fmt.Errorf("failed to spawn npcs: %w", err)
		}
		log.Info("npcs spawned", zap.Int("count", len(ids)), zap.Bool("wander", cfg.World.Wander.Enabled))
	}

	g.ws = ws.NewServer(w, log)
	g.ws.SetWriteTimeout(cfg.Server.WriteTimeout)

	log.Info("simulation initialized")
	return g, nil
}

// WorldSettings maps configuration onto world settings, loading the biome
// rules file if one is configured.
func WorldSettings(cfg *config.Config) (world.Settings, error) {
	catalog := terrain.DefaultCatalog()
	var (
		rules *terrain.RuleSet
		err   error
	)
	if cfg.Terrain.RulesFile != "" {
		rules, err = terrain.LoadRules(cfg.Terrain.RulesFile, catalog)
	} else {
		rules, err = terrain.DefaultRules(catalog)
	}
	if err != nil {
		return world.Settings{}, fmt.Errorf("biome rules: %w", err)
	}
	return world.Settings{
		MapSize:  cfg.Terrain.MapSize,
		TileSize: cfg.World.TileSize,
		Noise:    cfg.Terrain.Noise,
		Rules:    rules,
		Search:   cfg.Search,
		Movement: cfg.Movement,
		Objects:  cfg.World.Objects,
		Wander:   cfg.World.Wander,
	}, nil
}

// World returns the simulated world.
func (g *Game) World() *world.World {
	return g.world
}

// Handler returns the HTTP routes served by Run.
func (g *Game) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/ws", g.ws.Handler())
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, _ *http.Request) {
		rw.WriteHeader(http.StatusOK)
	})
	return mux
}

// Run serves the websocket endpoint and ticks the world until ctx ends.
func (g *Game) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              g.cfg.Server.Listen,
		Handler:           g.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		g.log.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	eg.Go(func() error {
		<-ctx.Done()
		g.ws.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	eg.Go(func() error {
		return g.tickLoop(ctx)
	})

	g.log.Info("starting tick loop", zap.Duration("interval", g.cfg.TickInterval()))
	return eg.Wait()
}

func (g *Game) tickLoop(ctx context.Context) error {
	ticker := time.NewTicker(g.cfg.TickInterval())
	defer ticker.Stop()

	start := time.Now()
	ticks := 0
	statsTimer := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			t := now.Sub(start).Seconds()
			g.world.Wander(t)
			if err := g.world.Tick(ctx, t); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("tick: %w", err)
			}
			ticks++
			if time.Since(statsTimer) >= 10*time.Second {
				g.log.Debug("tick stats", zap.Int("ticks", ticks), zap.Int("agents", len(g.world.Agents())))
				ticks = 0
				statsTimer = time.Now()
			}
		}
	}
}

// Close releases storage handles.
func (g *Game) Close() {
	g.log.Info("closing simulation")
	if g.ws != nil {
		g.ws.Close()
	}
	if g.catalog != nil {
		if err := g.catalog.Close(); err != nil {
			g.log.Warn("closing snapshot catalog", zap.Error(err))
		}
	}
}
