package game

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/Faultbox/midgard-sim/internal/config"
	"github.com/Faultbox/midgard-sim/internal/storage/catalogdb"
	"github.com/Faultbox/midgard-sim/internal/storage/snapshot"
	"github.com/Faultbox/midgard-sim/internal/terrain"
)

// LoadOrGenerate returns the terrain to start with.
//
// An explicit storage.load_on_start snapshot wins. Otherwise the catalog is
// consulted for a snapshot of the configured seed and size, and only when
// none exists is the terrain generated, saved and recorded. catalog may be nil.
func LoadOrGenerate(ctx context.Context, cfg *config.Config, biomes *terrain.Catalog, rules *terrain.RuleSet,
	catalog *catalogdb.DB, log *zap.Logger) (*terrain.Terrain, error) {
	if path := cfg.Storage.LoadOnStart; path != "" {
		t, err := LoadSnapshot(path, biomes)
		if err != nil {
			return nil, err
		}
		log.Info("terrain restored from snapshot", zap.String("path", path), zap.Int64("seed", t.Seed))
		return t, nil
	}

	seed, size := cfg.Terrain.Seed, cfg.Terrain.MapSize
	if catalog != nil {
		e, err := catalog.Lookup(ctx, seed, size)
		switch {
		case err == nil:
			t, err := LoadSnapshot(e.Path, biomes)
			if err == nil {
				log.Info("terrain restored from catalog", zap.String("path", e.Path))
				return t, nil
			}
			log.Warn("catalogued snapshot unreadable, regenerating", zap.String("path", e.Path), zap.Error(err))
		case !errors.Is(err, catalogdb.ErrNotFound):
			return nil, err
		}
	}

	t, err := terrain.Generate(ctx, seed, size, cfg.Terrain.Noise, rules)
	if err != nil {
		return nil, fmt.Errorf("generating terrain: %w", err)
	}
	if catalog != nil && cfg.Storage.SnapshotDir != "" {
		path := filepath.Join(cfg.Storage.SnapshotDir, snapshot.Filename(seed, size))
		if err := SaveSnapshot(ctx, t, path, catalog); err != nil {
			// The generated terrain is still usable.
			log.Warn("saving snapshot", zap.String("path", path), zap.Error(err))
		} else {
			log.Info("terrain snapshot saved", zap.String("path", path))
		}
	}
	return t, nil
}

// LoadSnapshot reads a snapshot and resolves its biomes against biomes.
func LoadSnapshot(path string, biomes *terrain.Catalog) (*terrain.Terrain, error) {
	snap, err := snapshot.Read(path)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot %s: %w", path, err)
	}
	t, err := snap.ToTerrain(biomes)
	if err != nil {
		return nil, fmt.Errorf("restoring snapshot %s: %w", path, err)
	}
	return t, nil
}

// SaveSnapshot writes t to path and records it in catalog when catalog is non-nil.
func SaveSnapshot(ctx context.Context, t *terrain.Terrain, path string, catalog *catalogdb.DB) error {
	if err := snapshot.Write(path, snapshot.FromTerrain(t)); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if catalog == nil {
		return nil
	}
	return catalog.Record(ctx, catalogdb.Entry{
		Seed:      t.Seed,
		Size:      t.Size,
		Path:      path,
		Histogram: t.Histogram(),
	})
}
