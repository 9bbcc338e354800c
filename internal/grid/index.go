package grid

import (
	"math"
	"sync"
)

// CellID identifies a cell object. Zero is never a valid id.
type CellID uint64

type cell struct {
	coord Coord
	cost  float64
}

// Index is the bidirectional coordinate <-> cell mapping plus per-cell movement
// cost. Both directions are updated under one lock, so a reader never observes
// a coordinate whose id does not map back to it. Safe for concurrent use.
type Index struct {
	mu      sync.RWMutex
	byCoord map[Coord]CellID
	cells   map[CellID]cell
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{
		byCoord: make(map[Coord]CellID),
		cells:   make(map[CellID]cell),
	}
}

// Insert registers id at c with the given movement cost.
//
// If c is already held by a different id, that id is evicted from both
// directions and returned with conflict set; callers should report it. If id
// was registered elsewhere it is moved, releasing its old coordinate.
func (ix *Index) Insert(c Coord, id CellID, cost float64) (evicted CellID, conflict bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if old, ok := ix.byCoord[c]; ok && old != id {
		delete(ix.cells, old)
		evicted, conflict = old, true
	}
	if prev, ok := ix.cells[id]; ok && prev.coord != c {
		delete(ix.byCoord, prev.coord)
	}
	ix.byCoord[c] = id
	ix.cells[id] = cell{coord: c, cost: cost}
	return evicted, conflict
}

// Remove clears id from both directions. Removing an unknown id is a no-op and returns false.
func (ix *Index) Remove(id CellID) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	c, ok := ix.cells[id]
	if !ok {
		return false
	}
	delete(ix.cells, id)
	if ix.byCoord[c.coord] == id {
		delete(ix.byCoord, c.coord)
	}
	return true
}

// SetCost updates the movement cost of a registered cell.
func (ix *Index) SetCost(id CellID, cost float64) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	c, ok := ix.cells[id]
	if !ok {
		return false
	}
	c.cost = cost
	ix.cells[id] = c
	return true
}

// LookupByCoord returns the cell registered at c.
func (ix *Index) LookupByCoord(c Coord) (CellID, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	id, ok := ix.byCoord[c]
	return id, ok
}

// LookupByID returns the coordinate of a cell.
func (ix *Index) LookupByID(id CellID) (Coord, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	c, ok := ix.cells[id]
	return c.coord, ok
}

// Cost returns the movement cost of a cell.
func (ix *Index) Cost(id CellID) (float64, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	c, ok := ix.cells[id]
	return c.cost, ok
}

// CostAt returns the movement cost of the cell at c. Unregistered
// coordinates report false and an infinite cost.
func (ix *Index) CostAt(c Coord) (float64, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	id, ok := ix.byCoord[c]
	if !ok {
		return math.Inf(1), false
	}
	return ix.cells[id].cost, true
}

// Len returns the number of registered cells.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.cells)
}

// Each calls fn for every registered cell until fn returns false. The index
// is read-locked for the duration, so fn must not mutate it.
func (ix *Index) Each(fn func(id CellID, c Coord, cost float64) bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	for id, c := range ix.cells {
		if !fn(id, c.coord, c.cost) {
			return
		}
	}
}

// Clear removes every cell.
func (ix *Index) Clear() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	clear(ix.byCoord)
	clear(ix.cells)
}
