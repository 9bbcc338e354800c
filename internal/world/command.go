package world

import (
	"context"
	"fmt"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Faultbox/midgard-sim/internal/grid"
	"github.com/Faultbox/midgard-sim/internal/pathfind"
)

// Command is a request queued for the next tick.
type Command interface {
	isCommand()
}

// CommandMove asks an agent to walk to Goal.
type CommandMove struct {
	Agent AgentID
	Goal  grid.Coord
}

// CommandStop drops an agent's remaining path. The segment in progress is
// completed so the agent comes to rest on a cell.
type CommandStop struct {
	Agent AgentID
}

// CommandDestroyCell removes a cell from the index.
type CommandDestroyCell struct {
	Cell grid.CellID
}

// CommandChop sends an agent to an object's cell and removes the object once
// the agent arrives there. A later move or stop for the agent abandons it.
type CommandChop struct {
	Agent  AgentID
	Object ObjectID
}

func (CommandMove) isCommand()        {}
func (CommandStop) isCommand()        {}
func (CommandDestroyCell) isCommand() {}
func (CommandChop) isCommand()        {}

// Submit queues cmd for the next Tick.
func (w *World) Submit(cmd Command) {
	w.cmdMu.Lock()
	w.pending = append(w.pending, cmd)
	w.cmdMu.Unlock()
}

// Now returns the time passed to the most recent Tick.
func (w *World) Now() float64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.now
}

// Pending returns the number of queued commands.
func (w *World) Pending() int {
	w.cmdMu.Lock()
	defer w.cmdMu.Unlock()
	return len(w.pending)
}

type moveRequest struct {
	agent *agent
	start grid.Coord
	goal  grid.Coord
	chop  ObjectID

	result pathfind.Result
	err    error
}

// Tick runs one simulation step at time now (seconds).
//
// Queued commands are applied in submission order, except that move
// requests are searched together after the others: cell destruction and
// stops take effect first, then every move runs its search in parallel
// against the unchanged index. The last move or chop submitted for an agent
// wins. Paths through destroyed cells are cut before planning: an agent
// pursuing a removed cell is put back on the cell it left. Finally every
// follower advances to now, objects age, and agents that reached a chop
// target remove it.
//
// Tick returns an error only if ctx ends during the search phase; search
// failures are per-agent and only logged.
func (w *World) Tick(ctx context.Context, now float64) error {
	w.cmdMu.Lock()
	cmds := w.pending
	w.pending = nil
	w.cmdMu.Unlock()

	w.mu.Lock()
	defer w.mu.Unlock()
	dt := now - w.now
	w.now = now

	moves := w.applyCommands(cmds)
	if w.removed {
		w.dropMissingWaypoints(now)
		w.removed = false
	}
	// Starting points are read after stops and cuts so a halted agent plans from its rest cell.
	for _, mv := range moves {
		mv.start = mv.agent.follower.Anchor()
	}
	if err := w.search(ctx, moves); err != nil {
		return err
	}
	for _, mv := range moves {
		if mv.err != nil {
			mv.agent.lastErr = mv.err
			mv.agent.chop = 0
			w.logSearchFailure(mv.agent.id, mv.start, mv.goal, len(mv.result.Explored), mv.err)
			continue
		}
		mv.agent.lastErr = nil
		mv.agent.chop = mv.chop
		mv.agent.follower.SetPath(mv.result.Path, now)
	}

	for _, a := range w.agents {
		a.follower.Update(now, w.WorldPosition, w.costAt)
	}
	w.ageObjectsLocked(dt)
	w.finishChopsLocked()
	return nil
}

func (w *World) applyCommands(cmds []Command) []*moveRequest {
	var (
		moves   []*moveRequest
		byAgent = make(map[AgentID]*moveRequest)
	)
	for _, cmd := range cmds {
		switch c := cmd.(type) {
		case CommandMove:
			a, ok := w.agents[c.Agent]
			if !ok {
				w.log.Warn("move for unknown agent", zap.Uint64("agent", uint64(c.Agent)))
				continue
			}
			moves = queueMove(moves, byAgent, a, c.Goal, 0)
		case CommandChop:
			a, ok := w.agents[c.Agent]
			if !ok {
				w.log.Warn("chop for unknown agent", zap.Uint64("agent", uint64(c.Agent)))
				continue
			}
			o, ok := w.objects[c.Object]
			if !ok {
				w.log.Warn("chop of unknown object",
					zap.Uint64("agent", uint64(c.Agent)), zap.Uint64("object", uint64(c.Object)))
				a.lastErr = fmt.Errorf("%w: %d", ErrUnknownObject, c.Object)
				continue
			}
			moves = queueMove(moves, byAgent, a, o.cell, o.id)
		case CommandStop:
			a, ok := w.agents[c.Agent]
			if !ok {
				w.log.Warn("stop for unknown agent", zap.Uint64("agent", uint64(c.Agent)))
				continue
			}
			a.follower.Stop()
			a.chop = 0
			if mv, ok := byAgent[c.Agent]; ok {
				// A stop after a move in the same tick cancels it.
				delete(byAgent, c.Agent)
				moves = removeMove(moves, mv)
			}
		case CommandDestroyCell:
			w.destroyCellLocked(c.Cell)
		default:
			w.log.Warn("unknown command", zap.String("type", fmt.Sprintf("%T", cmd)))
		}
	}
	return moves
}

func queueMove(moves []*moveRequest, byAgent map[AgentID]*moveRequest, a *agent, goal grid.Coord, chop ObjectID) []*moveRequest {
	if mv, ok := byAgent[a.id]; ok {
		mv.goal, mv.chop = goal, chop
		return moves
	}
	mv := &moveRequest{agent: a, goal: goal, chop: chop}
	byAgent[a.id] = mv
	return append(moves, mv)
}

// dropMissingWaypoints cuts paths at the first waypoint whose cell has been
// removed. An agent whose pursued waypoint is gone is cancelled back onto its
// PastCell; otherwise it finishes the waypoints before the gap.
func (w *World) dropMissingWaypoints(now float64) {
	for _, a := range w.agents {
		cur, walking := a.follower.Current()
		if !walking {
			continue
		}
		missing, cut := cur, !w.hasCell(cur)
		if cut {
			a.follower.Cancel(now, w.WorldPosition)
		} else {
			missing, cut = a.follower.TrimQueue(w.hasCell)
		}
		if !cut {
			continue
		}
		w.log.Warn("waypoint not in map",
			zap.Uint64("agent", uint64(a.id)),
			zap.Stringer("cell", missing),
			zap.Stringer("anchor", a.follower.Anchor()))
		a.lastErr = fmt.Errorf("%w: waypoint %v", ErrNoCell, missing)
	}
}

func removeMove(moves []*moveRequest, mv *moveRequest) []*moveRequest {
	for i, x := range moves {
		if x == mv {
			return append(moves[:i], moves[i+1:]...)
		}
	}
	return moves
}

// search runs the move searches concurrently. The index has no writers
// while w.mu is held, so concurrent readers see one consistent state.
func (w *World) search(ctx context.Context, moves []*moveRequest) error {
	if len(moves) == 0 {
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, mv := range moves {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			mv.result, mv.err = w.finder.FindPathDebug(mv.start, mv.goal)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("tick search: %w", err)
	}
	return nil
}
