package world

import (
	"math"

	"go.uber.org/zap"

	"github.com/Faultbox/midgard-sim/internal/grid"
)

// WanderSettings controls the idle roaming of non-player agents.
type WanderSettings struct {
	Enabled  bool    `yaml:"enabled"`
	Radius   int     `yaml:"radius"`   // targets are drawn from [-Radius, Radius) on both axes
	Interval float64 `yaml:"interval"` // seconds between wander rounds
}

// DefaultWanderSettings returns wandering off, with a 10 cell radius at 1 Hz
// when enabled.
func DefaultWanderSettings() WanderSettings {
	return WanderSettings{Radius: 10, Interval: 1}
}

// SpawnNPC places a new idle non-player agent on c at time now. NPCs wander
// when wandering is enabled; otherwise they behave like any other agent.
func (w *World) SpawnNPC(c grid.Coord, now float64) (AgentID, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	a, err := w.spawnLocked(c, now)
	if err != nil {
		return 0, err
	}
	a.npc = true
	return a.id, nil
}

// SpawnNPCs scatters up to n non-player agents over random passable cells.
// It gives up after a bounded number of attempts on maps with little
// passable ground.
func (w *World) SpawnNPCs(n int, now float64) ([]AgentID, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.terrain == nil {
		return nil, ErrNoTerrain
	}
	half := w.terrain.Half
	ids := make([]AgentID, 0, n)
	for tries := 0; len(ids) < n && tries < n*64; tries++ {
		c := grid.C(w.rng.IntN(2*half)-half, w.rng.IntN(2*half)-half)
		cost, ok := w.index.CostAt(c)
		if !ok || math.IsInf(cost, 1) {
			continue
		}
		a, err := w.spawnLocked(c, now)
		if err != nil {
			return ids, err
		}
		a.npc = true
		ids = append(ids, a.id)
	}
	if len(ids) < n {
		w.log.Warn("not enough passable ground for npcs",
			zap.Int("requested", n), zap.Int("spawned", len(ids)))
	}
	return ids, nil
}

// Wander queues a move for every idle NPC to a random cell near the one it
// rests on. Rounds run at most once per Interval; calls in between do
// nothing. It returns the number of moves queued.
func (w *World) Wander(now float64) int {
	cfg := w.settings.Wander
	if !cfg.Enabled || cfg.Radius <= 0 {
		return 0
	}

	var moves []Command
	w.mu.Lock()
	if w.terrain == nil || now < w.nextWander {
		w.mu.Unlock()
		return 0
	}
	w.nextWander += cfg.Interval
	if w.nextWander <= now {
		w.nextWander = now + cfg.Interval
	}
	for _, a := range w.agents {
		if !a.npc || a.chop != 0 {
			continue
		}
		if _, walking := a.follower.Current(); walking {
			continue
		}
		moves = append(moves, CommandMove{Agent: a.id, Goal: w.wanderGoalLocked(a.follower.Past().Cell, cfg.Radius)})
	}
	w.mu.Unlock()

	for _, cmd := range moves {
		w.Submit(cmd)
	}
	if len(moves) > 0 {
		w.log.Debug("npcs wandering", zap.Int("agents", len(moves)))
	}
	return len(moves)
}

// wanderGoalLocked draws a target offset from [-r, r) on both axes, never the
// origin itself, clamped to the map.
func (w *World) wanderGoalLocked(from grid.Coord, r int) grid.Coord {
	var dx, dz int
	for dx == 0 && dz == 0 {
		dx = w.rng.IntN(2*r) - r
		dz = w.rng.IntN(2*r) - r
	}
	half := w.terrain.Half
	return grid.C(
		min(max(from.X+dx, -half), half-1),
		min(max(from.Z+dz, -half), half-1),
	)
}
