package world

import (
	"cmp"
	"errors"
	"math/rand/v2"
	"slices"

	"go.uber.org/zap"

	"github.com/Faultbox/midgard-sim/internal/grid"
	"github.com/Faultbox/midgard-sim/internal/terrain"
)

// ErrUnknownObject is returned for object ids that do not exist or were removed.
var ErrUnknownObject = errors.New("world: unknown object")

// ObjectID identifies a world object.
type ObjectID uint64

// ObjectKind classifies world objects.
type ObjectKind uint8

const (
	ObjectTree ObjectKind = iota + 1
)

func (k ObjectKind) String() string {
	if k == ObjectTree {
		return "tree"
	}
	return "unknown"
}

// ObjectSettings controls the object layer placed on generated terrain.
type ObjectSettings struct {
	TreeBiome  string  `yaml:"tree_biome"`  // biome trees grow on
	TreeChance float64 `yaml:"tree_chance"` // probability per tile of that biome, 0 disables trees
	GrowthTime float64 `yaml:"growth_time"` // seconds until a tree reaches full size
}

// DefaultObjectSettings returns palm trees on one sand tile in a hundred,
// fully grown after 100 seconds.
func DefaultObjectSettings() ObjectSettings {
	return ObjectSettings{
		TreeBiome:  terrain.BiomeSand,
		TreeChance: 0.01,
		GrowthTime: 100,
	}
}

type object struct {
	id   ObjectID
	kind ObjectKind
	cell grid.Coord
	age  float64
}

// ObjectView is a copy of an object's observable state.
type ObjectView struct {
	ID    ObjectID
	Kind  ObjectKind
	Cell  grid.Coord
	Age   float64 // seconds since the terrain was loaded
	Scale float64 // growth in [0, 1]
}

func (w *World) objectView(o *object) ObjectView {
	scale := 1.0
	if g := w.settings.Objects.GrowthTime; g > 0 {
		scale = min(o.age/g, 1)
	}
	return ObjectView{ID: o.id, Kind: o.kind, Cell: o.cell, Age: o.age, Scale: scale}
}

// treeRoll returns the deterministic placement roll of a tile. It depends only
// on the seed and the coordinate, so regenerating or restoring a map yields
// the same trees.
func treeRoll(seed int64, x, z int) float64 {
	key := uint64(uint32(int32(x)))<<32 | uint64(uint32(int32(z)))
	return rand.New(rand.NewPCG(uint64(seed), key)).Float64()
}

// placeObjectsLocked rebuilds the object layer for t.
func (w *World) placeObjectsLocked(t *terrain.Terrain) {
	clear(w.objects)
	clear(w.objectAt)

	cfg := w.settings.Objects
	if cfg.TreeChance <= 0 {
		return
	}
	for i, b := range t.Biomes {
		if b.Name != cfg.TreeBiome {
			continue
		}
		x, z := t.CoordAt(i)
		if treeRoll(t.Seed, x, z) >= cfg.TreeChance {
			continue
		}
		w.nextObject++
		o := &object{id: w.nextObject, kind: ObjectTree, cell: grid.C(x, z)}
		w.objects[o.id] = o
		w.objectAt[o.cell] = o.id
	}
}

func (w *World) ageObjectsLocked(dt float64) {
	if dt <= 0 {
		return
	}
	for _, o := range w.objects {
		o.age += dt
	}
}

func (w *World) removeObjectLocked(id ObjectID) (*object, bool) {
	o, ok := w.objects[id]
	if !ok {
		return nil, false
	}
	delete(w.objects, id)
	delete(w.objectAt, o.cell)
	return o, true
}

// Object returns a snapshot of one object.
func (w *World) Object(id ObjectID) (ObjectView, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	o, ok := w.objects[id]
	if !ok {
		return ObjectView{}, false
	}
	return w.objectView(o), true
}

// ObjectAt returns the object standing on c.
func (w *World) ObjectAt(c grid.Coord) (ObjectView, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	id, ok := w.objectAt[c]
	if !ok {
		return ObjectView{}, false
	}
	return w.objectView(w.objects[id]), true
}

// Objects returns snapshots of every object ordered by id.
func (w *World) Objects() []ObjectView {
	w.mu.RLock()
	defer w.mu.RUnlock()
	views := make([]ObjectView, 0, len(w.objects))
	for _, o := range w.objects {
		views = append(views, w.objectView(o))
	}
	slices.SortFunc(views, func(a, b ObjectView) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return views
}

// finishChopsLocked removes the targets of agents that have come to rest.
// An agent that stopped anywhere but on its target gives up.
func (w *World) finishChopsLocked() {
	for _, a := range w.agents {
		if a.chop == 0 {
			continue
		}
		if _, walking := a.follower.Current(); walking {
			continue
		}
		id := a.chop
		a.chop = 0

		o, ok := w.objects[id]
		switch {
		case !ok:
			w.log.Debug("chop target already gone",
				zap.Uint64("agent", uint64(a.id)), zap.Uint64("object", uint64(id)))
		case a.follower.Past().Cell != o.cell:
			w.log.Debug("chop abandoned away from target",
				zap.Uint64("agent", uint64(a.id)), zap.Uint64("object", uint64(id)))
		default:
			w.removeObjectLocked(id)
			w.log.Info("object chopped",
				zap.Uint64("agent", uint64(a.id)),
				zap.Uint64("object", uint64(id)),
				zap.Stringer("kind", o.kind),
				zap.Stringer("cell", o.cell))
		}
	}
}
