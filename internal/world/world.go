// Package world owns the simulation state: the generated terrain, the cell
// index derived from it, and the agents walking on it.
package world

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"

	"go.uber.org/zap"

	"github.com/Faultbox/midgard-sim/internal/grid"
	"github.com/Faultbox/midgard-sim/internal/logger"
	"github.com/Faultbox/midgard-sim/internal/movement"
	"github.com/Faultbox/midgard-sim/internal/pathfind"
	"github.com/Faultbox/midgard-sim/internal/terrain"
	m "github.com/Faultbox/midgard-sim/pkg/math"
)

var (
	// ErrNoTerrain is returned by operations that need a generated map.
	ErrNoTerrain = errors.New("world: no terrain loaded")
	// ErrUnknownAgent is returned for agent ids that were never spawned.
	ErrUnknownAgent = errors.New("world: unknown agent")
	// ErrNoCell is returned when a coordinate has no registered cell.
	ErrNoCell = errors.New("world: coordinate has no cell")
	// ErrImpassable is returned when an agent would be placed on an impassable cell.
	ErrImpassable = errors.New("world: cell is impassable")
)

// Settings configures a World.
type Settings struct {
	MapSize  int
	TileSize float64
	Noise    terrain.NoiseParams
	Rules    *terrain.RuleSet // nil uses the default rules over the default catalog
	Search   pathfind.Options
	Movement movement.Settings
	Objects  ObjectSettings
	Wander   WanderSettings
}

// DefaultSettings returns a 128x128 map with unit tiles and default tuning.
func DefaultSettings() Settings {
	return Settings{
		MapSize:  128,
		TileSize: 1,
		Noise:    terrain.DefaultNoiseParams(),
		Search:   pathfind.DefaultOptions(),
		Movement: movement.DefaultSettings(),
		Objects:  DefaultObjectSettings(),
		Wander:   DefaultWanderSettings(),
	}
}

// World is the simulation context. All exported methods are safe for
// concurrent use; Tick serializes against cell mutation.
type World struct {
	settings Settings
	log      *zap.Logger
	rules    *terrain.RuleSet
	index    *grid.Index
	finder   *pathfind.Finder

	mu        sync.RWMutex
	terrain   *terrain.Terrain
	agents    map[AgentID]*agent
	nextCell  grid.CellID
	nextAgent AgentID
	now       float64 // time of the last tick
	removed   bool    // cells were destroyed since the last tick

	objects    map[ObjectID]*object
	objectAt   map[grid.Coord]ObjectID
	nextObject ObjectID

	rng        *rand.Rand // npc placement and wander targets, reseeded per terrain
	nextWander float64

	cmdMu   sync.Mutex
	pending []Command
}

// New creates an empty world. Call GenerateTerrain or LoadTerrain before
// spawning agents.
func New(settings Settings, log *zap.Logger) (*World, error) {
	if settings.MapSize <= 0 || settings.MapSize%2 != 0 {
		return nil, fmt.Errorf("world: map size must be positive and even, got %d", settings.MapSize)
	}
	if settings.TileSize <= 0 {
		return nil, fmt.Errorf("world: tile size must be positive, got %v", settings.TileSize)
	}
	rules := settings.Rules
	if rules == nil {
		var err error
		if rules, err = terrain.DefaultRules(terrain.DefaultCatalog()); err != nil {
			return nil, fmt.Errorf("world: default rules: %w", err)
		}
	}

	index := grid.NewIndex()
	return &World{
		settings: settings,
		log:      logger.OrNop(log).Named("world"),
		rules:    rules,
		index:    index,
		finder:   pathfind.NewFinder(index, settings.Search),
		agents:   make(map[AgentID]*agent),
		objects:  make(map[ObjectID]*object),
		objectAt: make(map[grid.Coord]ObjectID),
		rng:      rand.New(rand.NewPCG(0, wanderStream)),
	}, nil
}

// Catalog returns the biome catalog the world classifies terrain with.
func (w *World) Catalog() *terrain.Catalog {
	return w.rules.Catalog()
}

// Settings returns the settings the world was created with.
func (w *World) Settings() Settings {
	return w.settings
}

// Terrain returns the current terrain, or nil before generation.
func (w *World) Terrain() *terrain.Terrain {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.terrain
}

// Index returns the cell index. Callers must treat it as read-only.
func (w *World) Index() *grid.Index {
	return w.index
}

// GenerateTerrain generates a map for seed and installs it with LoadTerrain.
func (w *World) GenerateTerrain(ctx context.Context, seed int64) (*terrain.Terrain, error) {
	t, err := terrain.Generate(ctx, seed, w.settings.MapSize, w.settings.Noise, w.rules)
	if err != nil {
		return nil, fmt.Errorf("generating terrain: %w", err)
	}
	w.LoadTerrain(t)
	return t, nil
}

// wanderStream separates the wander generator from the tree placement rolls.
const wanderStream = 0x6d6964676172640a

// LoadTerrain replaces the world's terrain. Every existing cell, agent and
// object is dropped, one cell per tile is created with its biome's move
// cost, and trees are placed on the configured biome.
func (w *World) LoadTerrain(t *terrain.Terrain) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.index.Clear()
	clear(w.agents)
	w.terrain = t

	for i, b := range t.Biomes {
		x, z := t.CoordAt(i)
		w.createCellLocked(grid.C(x, z), b.MoveCost)
	}
	w.placeObjectsLocked(t)
	w.rng = rand.New(rand.NewPCG(uint64(t.Seed), wanderStream))
	w.nextWander = 0
	w.removed = false

	w.log.Info("terrain loaded",
		zap.Int64("seed", t.Seed),
		zap.Int("size", t.Size),
		zap.Int("cells", w.index.Len()),
		zap.Int("objects", len(w.objects)),
		zap.Any("biomes", t.Histogram()))
}

// CreateCell registers a cell at c with the given move cost and returns its
// id. A cell already at c is evicted and the conflict is logged.
func (w *World) CreateCell(c grid.Coord, cost float64) grid.CellID {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.createCellLocked(c, cost)
}

func (w *World) createCellLocked(c grid.Coord, cost float64) grid.CellID {
	w.nextCell++
	id := w.nextCell
	if evicted, conflict := w.index.Insert(c, id, cost); conflict {
		w.log.Warn("cell overwritten at occupied coordinate",
			zap.Stringer("coord", c),
			zap.Uint64("evicted", uint64(evicted)),
			zap.Uint64("cell", uint64(id)))
	}
	return id
}

// DestroyCell removes a cell and any object standing on it. Unknown ids are
// ignored. Paths leading through the cell are cut on the next Tick.
func (w *World) DestroyCell(id grid.CellID) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.destroyCellLocked(id)
}

func (w *World) destroyCellLocked(id grid.CellID) bool {
	c, _ := w.index.LookupByID(id)
	if !w.index.Remove(id) {
		w.log.Debug("destroy of unknown cell ignored", zap.Uint64("cell", uint64(id)))
		return false
	}
	if obj, ok := w.objectAt[c]; ok {
		w.removeObjectLocked(obj)
	}
	w.removed = true
	return true
}

// WorldPosition maps a grid coordinate to the world-space center of its tile.
func (w *World) WorldPosition(c grid.Coord) m.Vec3 {
	s := w.settings.TileSize
	return m.Vec3{X: float64(c.X) * s, Z: float64(c.Z) * s}
}

// CellAt maps a world-space position to the tile containing it.
func (w *World) CellAt(p m.Vec3) grid.Coord {
	s := w.settings.TileSize
	return grid.C(int(math.Round(p.X/s)), int(math.Round(p.Z/s)))
}

func (w *World) hasCell(c grid.Coord) bool {
	_, ok := w.index.LookupByCoord(c)
	return ok
}

func (w *World) costAt(c grid.Coord) float64 {
	cost, _ := w.index.CostAt(c)
	return cost
}
