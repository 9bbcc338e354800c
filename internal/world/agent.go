package world

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	"go.uber.org/zap"

	"github.com/Faultbox/midgard-sim/internal/grid"
	"github.com/Faultbox/midgard-sim/internal/movement"
)

// AgentID identifies a spawned agent.
type AgentID uint64

type agent struct {
	id       AgentID
	npc      bool
	follower *movement.Follower
	lastErr  error
	chop     ObjectID // object to remove once the current walk ends, 0 for none
}

// AgentView is a copy of an agent's observable state.
type AgentView struct {
	ID        AgentID
	NPC       bool
	Pose      movement.Pose
	Past      movement.PastCell
	Target    grid.Coord // valid when Walking
	Walking   bool
	Remaining []grid.Coord
	Chopping  ObjectID // 0 unless walking to chop an object
	LastError error    // outcome of the most recent failed move request, nil after a success
}

func (a *agent) view() AgentView {
	target, walking := a.follower.Current()
	return AgentView{
		ID:        a.id,
		NPC:       a.npc,
		Pose:      a.follower.Pose(),
		Past:      a.follower.Past(),
		Target:    target,
		Walking:   walking,
		Remaining: a.follower.Remaining(),
		Chopping:  a.chop,
		LastError: a.lastErr,
	}
}

// SpawnAgent places a new idle agent on c at time now.
func (w *World) SpawnAgent(c grid.Coord, now float64) (AgentID, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	a, err := w.spawnLocked(c, now)
	if err != nil {
		return 0, err
	}
	return a.id, nil
}

func (w *World) spawnLocked(c grid.Coord, now float64) (*agent, error) {
	if w.terrain == nil {
		return nil, ErrNoTerrain
	}
	cost, ok := w.index.CostAt(c)
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrNoCell, c)
	}
	if math.IsInf(cost, 1) {
		return nil, fmt.Errorf("%w: %v", ErrImpassable, c)
	}

	w.nextAgent++
	a := &agent{
		id:       w.nextAgent,
		follower: movement.NewFollower(c, now, w.WorldPosition(c), w.settings.Movement),
	}
	w.agents[a.id] = a
	w.log.Debug("agent spawned", zap.Uint64("agent", uint64(a.id)), zap.Stringer("cell", c))
	return a, nil
}

// Agent returns a snapshot of one agent.
func (w *World) Agent(id AgentID) (AgentView, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	a, ok := w.agents[id]
	if !ok {
		return AgentView{}, false
	}
	return a.view(), true
}

// Agents returns snapshots of every agent ordered by id.
func (w *World) Agents() []AgentView {
	w.mu.RLock()
	defer w.mu.RUnlock()
	views := make([]AgentView, 0, len(w.agents))
	for _, a := range w.agents {
		views = append(views, a.view())
	}
	slices.SortFunc(views, func(a, b AgentView) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return views
}
