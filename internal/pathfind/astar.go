// Package pathfind computes weighted shortest paths over the tile grid with A*.
package pathfind

import (
	"container/heap"
	"errors"
	"fmt"
	"math"

	"github.com/Faultbox/midgard-sim/internal/grid"
)

var (
	// ErrUnknownCell is returned when start or goal has no registered cell.
	ErrUnknownCell = errors.New("pathfind: coordinate has no cell")
	// ErrGoalImpassable is the fast rejection for goals with infinite cost.
	ErrGoalImpassable = errors.New("pathfind: goal is impassable")
	// ErrNoPath is returned when the open set empties before reaching the goal.
	ErrNoPath = errors.New("pathfind: no path found")
	// ErrBudgetExceeded is returned when the search expands more than Options.MaxNodes cells.
	ErrBudgetExceeded = errors.New("pathfind: node budget exceeded")
)

// Field is the read side of the cost field: coordinate lookup plus per-cell cost.
// *grid.Index implements it.
type Field interface {
	LookupByCoord(c grid.Coord) (grid.CellID, bool)
	Cost(id grid.CellID) (float64, bool)
}

// Options tunes the search.
//
// Traversing an edge costs (cost(a) + cost(b)) / weight, so the larger
// cardinal weight makes straight steps cheaper per edge while a diagonal
// still beats the two cardinal steps it replaces. The heuristic is the
// Euclidean distance to the goal times HeuristicWeight. Any weight above the
// admissible bound makes the search greedy: it expands fewer cells but the
// returned path is not guaranteed to be minimum-cost. An expanded cell that
// is later reached more cheaply is reopened and expanded again, so it can
// appear more than once in Result.Explored.
type Options struct {
	CardinalWeight  float64 `yaml:"cardinal_weight"`
	DiagonalWeight  float64 `yaml:"diagonal_weight"`
	HeuristicWeight float64 `yaml:"heuristic_weight"`
	MaxNodes        int     `yaml:"max_nodes"` // expansion cap, <= 0 means unbounded
}

// DefaultOptions returns the standard weights with a 65536-expansion cap.
func DefaultOptions() Options {
	return Options{
		CardinalWeight:  2,
		DiagonalWeight:  1.41,
		HeuristicWeight: 3,
		MaxNodes:        1 << 16,
	}
}

// Validate reports invalid weights.
func (o Options) Validate() error {
	if o.CardinalWeight <= 0 || o.DiagonalWeight <= 0 {
		return fmt.Errorf("pathfind: edge weights must be positive (cardinal %v, diagonal %v)", o.CardinalWeight, o.DiagonalWeight)
	}
	if o.HeuristicWeight < 0 {
		return fmt.Errorf("pathfind: heuristic weight must not be negative, got %v", o.HeuristicWeight)
	}
	return nil
}

// Result is a search outcome with diagnostics.
type Result struct {
	Path     []grid.Coord // start..goal inclusive
	Cost     float64      // accumulated edge cost of Path
	Explored []grid.Coord // cells expanded, in expansion order
}

// Finder runs searches against one cost field.
type Finder struct {
	field Field
	opts  Options
}

// NewFinder creates a finder. Invalid options fall back to DefaultOptions.
func NewFinder(field Field, opts Options) *Finder {
	if opts.Validate() != nil {
		opts = DefaultOptions()
	}
	return &Finder{field: field, opts: opts}
}

// Options returns the options in effect.
func (f *Finder) Options() Options {
	return f.opts
}

// FindPath returns the waypoints from start to goal, both included.
func (f *Finder) FindPath(start, goal grid.Coord) ([]grid.Coord, error) {
	res, err := f.FindPathDebug(start, goal)
	if err != nil {
		return nil, err
	}
	return res.Path, nil
}

// FindPathDebug is FindPath that also reports the expanded cells. Explored is
// populated on failure too, except for the precondition rejections.
func (f *Finder) FindPathDebug(start, goal grid.Coord) (Result, error) {
	goalCost, err := f.cellCost(goal)
	if err != nil {
		return Result{}, err
	}
	if math.IsInf(goalCost, 1) {
		return Result{}, fmt.Errorf("%w: %v", ErrGoalImpassable, goal)
	}
	startCost, err := f.cellCost(start)
	if err != nil {
		return Result{}, err
	}

	var (
		open    openSet
		seq     uint64
		nodes   = make(map[grid.Coord]*node)
		blocked = make(map[grid.Coord]struct{})
		res     Result
	)

	push := func(n *node) {
		n.seq = seq
		seq++
		heap.Push(&open, n)
	}

	first := &node{coord: start, cost: startCost, g: 0}
	first.f = f.heuristic(start, goal)
	nodes[start] = first
	push(first)

	for open.Len() > 0 {
		if f.opts.MaxNodes > 0 && len(res.Explored) >= f.opts.MaxNodes {
			return res, fmt.Errorf("%w: %d expansions from %v to %v", ErrBudgetExceeded, len(res.Explored), start, goal)
		}

		current := heap.Pop(&open).(*node)
		res.Explored = append(res.Explored, current.coord)

		if current.coord == goal {
			res.Path = reconstruct(current)
			res.Cost = current.g
			return res, nil
		}

		for _, dir := range grid.Neighbors8 {
			nc := current.coord.Add(dir.Offset)

			neighbor, seen := nodes[nc]
			if _, ok := blocked[nc]; ok {
				continue
			}

			var cost float64
			if seen {
				cost = neighbor.cost
			} else {
				c, err := f.cellCost(nc)
				if err != nil || math.IsInf(c, 1) {
					// Unregistered cells are the implicit map boundary.
					blocked[nc] = struct{}{}
					continue
				}
				cost = c
			}

			weight := f.opts.CardinalWeight
			if dir.Diagonal {
				weight = f.opts.DiagonalWeight
			}
			g := current.g + (current.cost+cost)/weight
			if math.IsInf(g, 1) || math.IsNaN(g) {
				continue
			}

			if !seen {
				neighbor = &node{coord: nc, cost: cost, g: g, parent: current}
				neighbor.f = g + f.heuristic(nc, goal)
				nodes[nc] = neighbor
				push(neighbor)
			} else if g < neighbor.g {
				neighbor.f += g - neighbor.g
				neighbor.g = g
				neighbor.parent = current
				if neighbor.index < 0 {
					// Already expanded: reopen it.
					push(neighbor)
				} else {
					heap.Fix(&open, neighbor.index)
				}
			}
		}
	}

	return res, fmt.Errorf("%w: %v to %v after %d expansions", ErrNoPath, start, goal, len(res.Explored))
}

// IsWalkable reports whether c has a cell with finite cost.
func (f *Finder) IsWalkable(c grid.Coord) bool {
	cost, err := f.cellCost(c)
	return err == nil && !math.IsInf(cost, 1)
}

func (f *Finder) cellCost(c grid.Coord) (float64, error) {
	id, ok := f.field.LookupByCoord(c)
	if !ok {
		return 0, fmt.Errorf("%w: %v", ErrUnknownCell, c)
	}
	cost, ok := f.field.Cost(id)
	if !ok {
		// The id vanished between the two lookups.
		return 0, fmt.Errorf("%w: %v (cell %d)", ErrUnknownCell, c, id)
	}
	return cost, nil
}

// heuristic is the inflated Euclidean distance between two cells.
func (f *Finder) heuristic(a, b grid.Coord) float64 {
	dx := float64(b.X - a.X)
	dy := float64(b.Y - a.Y)
	dz := float64(b.Z - a.Z)
	return math.Sqrt(dx*dx+dy*dy+dz*dz) * f.opts.HeuristicWeight
}

func reconstruct(n *node) []grid.Coord {
	var path []grid.Coord
	for ; n != nil; n = n.parent {
		path = append(path, n.coord)
	}
	// Built goal to start
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}
