package world

import (
	"errors"

	"go.uber.org/zap"

	"github.com/Faultbox/midgard-sim/internal/grid"
	"github.com/Faultbox/midgard-sim/internal/pathfind"
)

// FindPath searches the current cell index from start to goal.
func (w *World) FindPath(start, goal grid.Coord) ([]grid.Coord, error) {
	res, err := w.FindPathDebug(start, goal)
	return res.Path, err
}

// FindPathDebug is FindPath that also returns the cells the search expanded.
func (w *World) FindPathDebug(start, goal grid.Coord) (pathfind.Result, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	res, err := w.finder.FindPathDebug(start, goal)
	if err != nil {
		w.logSearchFailure(0, start, goal, len(res.Explored), err)
	}
	return res, err
}

// logSearchFailure reports a failed search at the level its cause warrants.
// None of them is fatal; the request is simply dropped.
func (w *World) logSearchFailure(id AgentID, start, goal grid.Coord, explored int, err error) {
	fields := []zap.Field{
		zap.Stringer("start", start),
		zap.Stringer("goal", goal),
		zap.Error(err),
	}
	if id != 0 {
		fields = append(fields, zap.Uint64("agent", uint64(id)))
	}

	switch {
	case errors.Is(err, pathfind.ErrGoalImpassable):
		w.log.Debug("path rejected: goal impassable", fields...)
	case errors.Is(err, pathfind.ErrUnknownCell):
		w.log.Warn("path lookup miss", fields...)
	case errors.Is(err, pathfind.ErrBudgetExceeded):
		w.log.Error("path search exceeded node budget", append(fields, zap.Int("explored", explored))...)
	default:
		w.log.Error("no path found", append(fields, zap.Int("explored", explored))...)
	}
}
