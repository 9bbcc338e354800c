package world

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Faultbox/midgard-sim/internal/grid"
	"github.com/Faultbox/midgard-sim/internal/movement"
	"github.com/Faultbox/midgard-sim/internal/pathfind"
	"github.com/Faultbox/midgard-sim/internal/terrain"
)

// newGrassWorld returns a 16x16 world where every tile is grass (cost 10).
func newGrassWorld(t *testing.T) (*World, *observer.ObservedLogs) {
	t.Helper()
	return newUniformWorld(t, terrain.BiomeGrass, nil)
}

// newUniformWorld returns a 16x16 world covered by one biome. Agents move one
// tile per 0.1s.
func newUniformWorld(t *testing.T, biome string, tweak func(*Settings)) (*World, *observer.ObservedLogs) {
	t.Helper()
	rules, err := terrain.ParseRules([]byte("rules:\n  - {biome: "+biome+", height: [0, 1], heat: [0, 1]}\n"), terrain.DefaultCatalog())
	if err != nil {
		t.Fatalf("ParseRules: %v", err)
	}

	settings := DefaultSettings()
	settings.MapSize = 16
	settings.Rules = rules
	settings.Movement = movement.Settings{Speed: 10, ReachEpsilon: 0.001}
	if tweak != nil {
		tweak(&settings)
	}

	core, logs := observer.New(zapcore.DebugLevel)
	w, err := New(settings, zap.New(core))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := w.GenerateTerrain(context.Background(), 1); err != nil {
		t.Fatalf("GenerateTerrain: %v", err)
	}
	return w, logs
}

func countLevel(logs *observer.ObservedLogs, msg string, level zapcore.Level) int {
	n := 0
	for _, e := range logs.FilterMessage(msg).All() {
		if e.Level == level {
			n++
		}
	}
	return n
}

func TestNewRejectsBadSettings(t *testing.T) {
	s := DefaultSettings()
	s.MapSize = 15
	if _, err := New(s, nil); err == nil {
		t.Error("expected error for odd map size")
	}
	s = DefaultSettings()
	s.TileSize = 0
	if _, err := New(s, nil); err == nil {
		t.Error("expected error for zero tile size")
	}
}

func TestGenerateTerrainCreatesOneCellPerTile(t *testing.T) {
	w, _ := newGrassWorld(t)

	if got := w.Index().Len(); got != 16*16 {
		t.Fatalf("index has %d cells, want 256", got)
	}
	for _, c := range []grid.Coord{grid.C(-8, -8), grid.C(7, 7), grid.C(0, 0)} {
		cost, ok := w.Index().CostAt(c)
		if !ok || cost != 10 {
			t.Errorf("CostAt(%v) = %v, %v", c, cost, ok)
		}
	}
	if _, ok := w.Index().LookupByCoord(grid.C(8, 0)); ok {
		t.Error("cell registered outside the map")
	}
}

func TestLoadTerrainDropsAgents(t *testing.T) {
	w, _ := newGrassWorld(t)
	if _, err := w.SpawnAgent(grid.C(0, 0), 0); err != nil {
		t.Fatalf("SpawnAgent: %v", err)
	}
	if _, err := w.GenerateTerrain(context.Background(), 2); err != nil {
		t.Fatalf("GenerateTerrain: %v", err)
	}
	if len(w.Agents()) != 0 {
		t.Error("regeneration should drop agents")
	}
	if w.Terrain().Seed != 2 {
		t.Errorf("seed = %d, want 2", w.Terrain().Seed)
	}
}

func TestCreateCellConflictEvictsAndWarns(t *testing.T) {
	w, logs := newGrassWorld(t)
	old, _ := w.Index().LookupByCoord(grid.C(1, 1))

	id := w.CreateCell(grid.C(1, 1), 3)

	if _, ok := w.Index().LookupByID(old); ok {
		t.Error("evicted cell still resolvable by id")
	}
	if got, _ := w.Index().LookupByCoord(grid.C(1, 1)); got != id {
		t.Errorf("coordinate maps to %d, want %d", got, id)
	}
	if n := countLevel(logs, "cell overwritten at occupied coordinate", zapcore.WarnLevel); n != 1 {
		t.Errorf("conflict warnings = %d, want 1", n)
	}
}

func TestDestroyCell(t *testing.T) {
	w, _ := newGrassWorld(t)
	id, _ := w.Index().LookupByCoord(grid.C(2, 2))

	if !w.DestroyCell(id) {
		t.Fatal("DestroyCell returned false for a live cell")
	}
	if w.DestroyCell(id) {
		t.Error("second DestroyCell should be a no-op")
	}
	if _, ok := w.Index().LookupByCoord(grid.C(2, 2)); ok {
		t.Error("coordinate still mapped after destroy")
	}
}

func TestWorldPositionUsesTileSize(t *testing.T) {
	s := DefaultSettings()
	s.TileSize = 2.5
	w, err := New(s, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	p := w.WorldPosition(grid.C(2, -4))
	if p.X != 5 || p.Y != 0 || p.Z != -10 {
		t.Errorf("WorldPosition = %+v", p)
	}
	if c := w.CellAt(p); c != grid.C(2, -4) {
		t.Errorf("CellAt = %v", c)
	}
}

func TestSpawnAgentErrors(t *testing.T) {
	empty, err := New(DefaultSettings(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := empty.SpawnAgent(grid.C(0, 0), 0); !errors.Is(err, ErrNoTerrain) {
		t.Errorf("expected ErrNoTerrain, got %v", err)
	}

	w, _ := newGrassWorld(t)
	if _, err := w.SpawnAgent(grid.C(100, 0), 0); !errors.Is(err, ErrNoCell) {
		t.Errorf("expected ErrNoCell, got %v", err)
	}
	w.CreateCell(grid.C(3, 3), math.Inf(1))
	if _, err := w.SpawnAgent(grid.C(3, 3), 0); !errors.Is(err, ErrImpassable) {
		t.Errorf("expected ErrImpassable, got %v", err)
	}
}

func TestTickWalksAgentAlongPath(t *testing.T) {
	w, _ := newGrassWorld(t)
	ctx := context.Background()
	id, err := w.SpawnAgent(grid.C(0, 0), 0)
	if err != nil {
		t.Fatalf("SpawnAgent: %v", err)
	}

	w.Submit(CommandMove{Agent: id, Goal: grid.C(3, 0)})
	if w.Pending() != 1 {
		t.Fatalf("pending = %d, want 1", w.Pending())
	}
	if err := w.Tick(ctx, 0); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if w.Pending() != 0 {
		t.Error("tick should drain the queue")
	}

	a, _ := w.Agent(id)
	if !a.Walking || a.Target != grid.C(1, 0) {
		t.Fatalf("after first tick: %+v", a)
	}
	if len(a.Remaining) != 2 {
		t.Errorf("remaining = %v, want 2 waypoints", a.Remaining)
	}

	if err := w.Tick(ctx, 0.05); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	a, _ = w.Agent(id)
	if math.Abs(a.Pose.Position.X-0.5) > 1e-9 || a.Pose.State != movement.StateWalking {
		t.Errorf("mid-segment pose = %+v", a.Pose)
	}

	for _, now := range []float64{0.1, 0.2, 0.3} {
		if err := w.Tick(ctx, now); err != nil {
			t.Fatalf("Tick: %v", err)
		}
	}
	a, _ = w.Agent(id)
	if a.Walking || a.Past.Cell != grid.C(3, 0) || a.Pose.State != movement.StateIdle {
		t.Errorf("final state = %+v", a)
	}
}

func TestTickSearchFailuresAreLogged(t *testing.T) {
	w, logs := newGrassWorld(t)
	ctx := context.Background()
	id, _ := w.SpawnAgent(grid.C(0, 0), 0)

	// Impassable goal
	w.CreateCell(grid.C(5, 5), math.Inf(1))
	w.Submit(CommandMove{Agent: id, Goal: grid.C(5, 5)})
	if err := w.Tick(ctx, 0); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	a, _ := w.Agent(id)
	if !errors.Is(a.LastError, pathfind.ErrGoalImpassable) || a.Walking {
		t.Errorf("agent = %+v", a)
	}
	if countLevel(logs, "path rejected: goal impassable", zapcore.DebugLevel) != 1 {
		t.Error("expected a debug log for the impassable goal")
	}

	// Off the map
	w.Submit(CommandMove{Agent: id, Goal: grid.C(50, 0)})
	w.Tick(ctx, 0.1)
	if countLevel(logs, "path lookup miss", zapcore.WarnLevel) != 1 {
		t.Error("expected a warning for the lookup miss")
	}

	// Walled in
	for _, d := range grid.Neighbors8 {
		w.CreateCell(grid.C(-4, -4).Add(d.Offset), math.Inf(1))
	}
	w.Submit(CommandMove{Agent: id, Goal: grid.C(-4, -4)})
	w.Tick(ctx, 0.2)
	if countLevel(logs, "no path found", zapcore.ErrorLevel) != 1 {
		t.Error("expected an error log for search exhaustion")
	}
	a, _ = w.Agent(id)
	if !errors.Is(a.LastError, pathfind.ErrNoPath) {
		t.Errorf("LastError = %v, want ErrNoPath", a.LastError)
	}

	// A later success clears the error
	w.Submit(CommandMove{Agent: id, Goal: grid.C(1, 0)})
	w.Tick(ctx, 0.3)
	a, _ = w.Agent(id)
	if a.LastError != nil || !a.Walking {
		t.Errorf("agent = %+v, want walking without error", a)
	}
}

func TestTickLastMoveWinsAndStopCancels(t *testing.T) {
	w, _ := newGrassWorld(t)
	ctx := context.Background()
	a1, _ := w.SpawnAgent(grid.C(0, 0), 0)
	a2, _ := w.SpawnAgent(grid.C(0, 1), 0)

	w.Submit(CommandMove{Agent: a1, Goal: grid.C(3, 0)})
	w.Submit(CommandMove{Agent: a1, Goal: grid.C(-3, 0)})
	w.Submit(CommandMove{Agent: a2, Goal: grid.C(3, 1)})
	w.Submit(CommandStop{Agent: a2})
	w.Submit(CommandMove{Agent: 999, Goal: grid.C(1, 1)})
	if err := w.Tick(ctx, 0); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	v1, _ := w.Agent(a1)
	if !v1.Walking || v1.Target != grid.C(-1, 0) {
		t.Errorf("agent 1 = %+v, want heading to (-1,0,0)", v1)
	}
	v2, _ := w.Agent(a2)
	if v2.Walking {
		t.Errorf("agent 2 = %+v, want idle after stop", v2)
	}

	views := w.Agents()
	if len(views) != 2 || views[0].ID != a1 || views[1].ID != a2 {
		t.Errorf("Agents() = %+v", views)
	}
}

func TestTickDestroyCellCommand(t *testing.T) {
	w, _ := newGrassWorld(t)
	id, _ := w.Index().LookupByCoord(grid.C(4, 4))
	w.Submit(CommandDestroyCell{Cell: id})
	if err := w.Tick(context.Background(), 0); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if _, ok := w.Index().LookupByID(id); ok {
		t.Error("cell should be destroyed by the command")
	}
}

func TestTickCutsPathAtDestroyedWaypoint(t *testing.T) {
	w, logs := newGrassWorld(t)
	ctx := context.Background()
	id, _ := w.SpawnAgent(grid.C(0, 0), 0)

	w.Submit(CommandMove{Agent: id, Goal: grid.C(3, 0)})
	if err := w.Tick(ctx, 0); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	cell, _ := w.Index().LookupByCoord(grid.C(3, 0))
	if !w.DestroyCell(cell) {
		t.Fatal("DestroyCell failed")
	}

	for _, now := range []float64{0.1, 0.2, 0.3, 0.4} {
		if err := w.Tick(ctx, now); err != nil {
			t.Fatalf("Tick: %v", err)
		}
	}
	a, _ := w.Agent(id)
	if a.Walking || a.Past.Cell != grid.C(2, 0) {
		t.Fatalf("agent = %+v, want at rest on (2,0,0)", a)
	}
	if _, ok := w.Index().LookupByCoord(a.Past.Cell); !ok {
		t.Error("agent rests on an unregistered cell")
	}
	if !errors.Is(a.LastError, ErrNoCell) {
		t.Errorf("last error = %v, want ErrNoCell", a.LastError)
	}
	if n := countLevel(logs, "waypoint not in map", zapcore.WarnLevel); n != 1 {
		t.Errorf("got %d waypoint warnings, want 1", n)
	}

	// Replanning from the rest cell routes around the hole.
	w.Submit(CommandMove{Agent: id, Goal: grid.C(5, 0)})
	if err := w.Tick(ctx, 0.5); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	a, _ = w.Agent(id)
	if a.LastError != nil || !a.Walking {
		t.Errorf("replan failed: %+v", a)
	}
	for _, c := range append(a.Remaining, a.Target) {
		if c == grid.C(3, 0) {
			t.Errorf("replanned path %v crosses the destroyed cell", a.Remaining)
		}
	}
}

func TestTickCancelsWhenPursuedWaypointDestroyed(t *testing.T) {
	w, logs := newGrassWorld(t)
	ctx := context.Background()
	id, _ := w.SpawnAgent(grid.C(0, 0), 0)

	w.Submit(CommandMove{Agent: id, Goal: grid.C(2, 0)})
	if err := w.Tick(ctx, 0); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if err := w.Tick(ctx, 0.05); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	cell, _ := w.Index().LookupByCoord(grid.C(1, 0))
	w.Submit(CommandDestroyCell{Cell: cell})
	if err := w.Tick(ctx, 0.06); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	a, _ := w.Agent(id)
	if a.Walking || a.Past.Cell != grid.C(0, 0) || a.Pose.State != movement.StateIdle {
		t.Fatalf("agent = %+v, want cancelled onto (0,0,0)", a)
	}
	if a.Pose.Position.Length() > 1e-9 {
		t.Errorf("position = %+v, want back on the origin", a.Pose.Position)
	}
	if !errors.Is(a.LastError, ErrNoCell) {
		t.Errorf("last error = %v, want ErrNoCell", a.LastError)
	}
	if n := countLevel(logs, "waypoint not in map", zapcore.WarnLevel); n != 1 {
		t.Errorf("got %d waypoint warnings, want 1", n)
	}

	w.Submit(CommandMove{Agent: id, Goal: grid.C(2, 0)})
	if err := w.Tick(ctx, 0.1); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if a, _ = w.Agent(id); a.LastError != nil || !a.Walking || a.Target == grid.C(1, 0) {
		t.Errorf("replan around the hole failed: %+v", a)
	}
}

func TestTickCancelledContext(t *testing.T) {
	w, _ := newGrassWorld(t)
	id, _ := w.SpawnAgent(grid.C(0, 0), 0)
	w.Submit(CommandMove{Agent: id, Goal: grid.C(3, 3)})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := w.Tick(ctx, 0); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestFindPathWrappers(t *testing.T) {
	w, logs := newGrassWorld(t)

	path, err := w.FindPath(grid.C(0, 0), grid.C(2, 2))
	if err != nil || path[len(path)-1] != grid.C(2, 2) {
		t.Fatalf("FindPath = %v, %v", path, err)
	}
	res, err := w.FindPathDebug(grid.C(0, 0), grid.C(2, 0))
	if err != nil || len(res.Explored) == 0 {
		t.Fatalf("FindPathDebug = %+v, %v", res, err)
	}

	if _, err := w.FindPath(grid.C(0, 0), grid.C(99, 0)); !errors.Is(err, pathfind.ErrUnknownCell) {
		t.Errorf("expected ErrUnknownCell, got %v", err)
	}
	if countLevel(logs, "path lookup miss", zapcore.WarnLevel) != 1 {
		t.Error("expected a lookup miss warning")
	}
}

func TestConcurrentSubmitAndTick(t *testing.T) {
	w, _ := newGrassWorld(t)
	ctx := context.Background()
	var ids []AgentID
	for x := -4; x < 4; x++ {
		id, err := w.SpawnAgent(grid.C(x, 0), 0)
		if err != nil {
			t.Fatalf("SpawnAgent: %v", err)
		}
		ids = append(ids, id)
	}

	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Submit(CommandMove{Agent: id, Goal: grid.C(i-4, 6)})
			_ = w.Agents()
		}()
	}
	wg.Wait()

	for step := 0; step < 200; step++ {
		if err := w.Tick(ctx, float64(step)*0.05); err != nil {
			t.Fatalf("Tick: %v", err)
		}
	}
	for i, id := range ids {
		a, _ := w.Agent(id)
		if a.Walking || a.Past.Cell != grid.C(i-4, 6) {
			t.Errorf("agent %d = %+v, want resting on (%d,0,6)", id, a, i-4)
		}
	}
}

func TestNowTracksLastTick(t *testing.T) {
	w, _ := newGrassWorld(t)
	if w.Now() != 0 {
		t.Errorf("Now before any tick = %v", w.Now())
	}
	w.Tick(context.Background(), 1.25)
	if w.Now() != 1.25 {
		t.Errorf("Now = %v, want 1.25", w.Now())
	}
}
