package terrain

// Terrain is the immutable result of one generation run. Tiles are addressed by
// centered coordinates in [-Half, Half) on both axes and stored row-major in
// flat arrays indexed by (x+Half) + (z+Half)*Size.
type Terrain struct {
	Seed    int64
	Size    int
	Half    int
	Heights []float64
	Heats   []float64
	Biomes  []*Biome
}

// Len returns the number of tiles.
func (t *Terrain) Len() int {
	return t.Size * t.Size
}

// InBounds reports whether the centered coordinate lies on the map.
func (t *Terrain) InBounds(x, z int) bool {
	return x >= -t.Half && x < t.Size-t.Half && z >= -t.Half && z < t.Size-t.Half
}

// Index maps a centered coordinate to its array slot. The coordinate must be in bounds.
func (t *Terrain) Index(x, z int) int {
	return (x + t.Half) + (z+t.Half)*t.Size
}

// CoordAt maps an array slot back to its centered coordinate.
func (t *Terrain) CoordAt(i int) (x, z int) {
	return i%t.Size - t.Half, i/t.Size - t.Half
}

// Tile is a read-only view of one generated tile.
type Tile struct {
	X, Z   int
	Height float64
	Heat   float64
	Biome  *Biome
}

// At returns the tile at a centered coordinate.
func (t *Terrain) At(x, z int) (Tile, bool) {
	if !t.InBounds(x, z) {
		return Tile{}, false
	}
	i := t.Index(x, z)
	return Tile{X: x, Z: z, Height: t.Heights[i], Heat: t.Heats[i], Biome: t.Biomes[i]}, true
}

// Histogram counts tiles per biome name.
func (t *Terrain) Histogram() map[string]int {
	h := make(map[string]int)
	for _, b := range t.Biomes {
		h[b.Name]++
	}
	return h
}
