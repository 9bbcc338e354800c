package pathfind

import "github.com/Faultbox/midgard-sim/internal/grid"

// node is one search state. Expanded nodes stay in the node map so they can be reopened.
type node struct {
	coord  grid.Coord
	cost   float64 // movement cost of the cell itself
	g      float64 // path cost from start
	f      float64 // g + inflated heuristic
	parent *node

	index int    // position in the heap, -1 once popped
	seq   uint64 // insertion order, breaks f ties
}

// openSet is a min-heap on f. Equal f pops in insertion order so results are
// reproducible for a fixed neighbor order.
type openSet []*node

func (h openSet) Len() int { return len(h) }

func (h openSet) Less(i, j int) bool {
	if h[i].f != h[j].f {
		return h[i].f < h[j].f
	}
	return h[i].seq < h[j].seq
}

func (h openSet) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *openSet) Push(x any) {
	n := x.(*node)
	n.index = len(*h)
	*h = append(*h, n)
}

func (h *openSet) Pop() any {
	old := *h
	last := len(old) - 1
	n := old[last]
	old[last] = nil
	n.index = -1
	*h = old[:last]
	return n
}
