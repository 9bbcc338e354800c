// Package terrain generates seeded height and heat fields and classifies every
// tile into a biome with a fixed movement cost.
package terrain

import (
	"fmt"
	"math"
)

// Biome names in the default catalog.
const (
	BiomeGrass        = "grass"
	BiomeWater        = "water"
	BiomeSand         = "sand"
	BiomeMountain     = "mountain"
	BiomeMountainSnow = "mountain_snow"
	BiomeVoid         = "void"
)

// Impassable is the movement cost of tiles agents can never enter.
var Impassable = math.Inf(1)

// Color is an 8-bit RGB triple.
type Color [3]uint8

// Biome is an immutable terrain classification. Tiles reference biomes owned by a Catalog.
type Biome struct {
	Name     string
	MoveCost float64
	Color    Color
}

// Passable reports whether agents can enter tiles of this biome.
func (b *Biome) Passable() bool {
	return b != nil && !math.IsInf(b.MoveCost, 1)
}

func (b *Biome) String() string {
	if b == nil {
		return "<nil>"
	}
	return b.Name
}

// Catalog owns the biome definitions of a world. It is read-only after construction.
type Catalog struct {
	biomes   []*Biome
	byName   map[string]*Biome
	fallback *Biome
}

// NewCatalog builds a catalog from biome definitions. The biome named fallback is
// assigned to tiles no rule matches; it must be present in the list.
func NewCatalog(fallback string, biomes ...Biome) (*Catalog, error) {
	c := &Catalog{byName: make(map[string]*Biome, len(biomes))}
	for i := range biomes {
		b := biomes[i]
		if b.Name == "" {
			return nil, fmt.Errorf("biome %d has empty name", i)
		}
		if b.MoveCost <= 0 || math.IsNaN(b.MoveCost) {
			return nil, fmt.Errorf("biome %s: move cost must be positive, got %v", b.Name, b.MoveCost)
		}
		if _, dup := c.byName[b.Name]; dup {
			return nil, fmt.Errorf("biome %s defined twice", b.Name)
		}
		c.biomes = append(c.biomes, &b)
		c.byName[b.Name] = &b
	}
	c.fallback = c.byName[fallback]
	if c.fallback == nil {
		return nil, fmt.Errorf("fallback biome %q not in catalog", fallback)
	}
	return c, nil
}

// DefaultCatalog returns the built-in biome set with an impassable void fallback.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(BiomeVoid,
		Biome{Name: BiomeGrass, MoveCost: 10, Color: Color{0, 128, 0}},
		Biome{Name: BiomeWater, MoveCost: Impassable, Color: Color{0, 0, 128}},
		Biome{Name: BiomeSand, MoveCost: 15, Color: Color{255, 255, 0}},
		Biome{Name: BiomeMountain, MoveCost: Impassable, Color: Color{128, 128, 128}},
		Biome{Name: BiomeMountainSnow, MoveCost: Impassable, Color: Color{128, 128, 128}},
		Biome{Name: BiomeVoid, MoveCost: Impassable, Color: Color{0, 0, 0}},
	)
	if err != nil {
		panic(err) // static data
	}
	return c
}

// Get returns the biome with the given name.
func (c *Catalog) Get(name string) (*Biome, bool) {
	b, ok := c.byName[name]
	return b, ok
}

// Fallback returns the biome assigned when no rule matches.
func (c *Catalog) Fallback() *Biome {
	return c.fallback
}

// All returns the biomes in definition order.
func (c *Catalog) All() []*Biome {
	out := make([]*Biome, len(c.biomes))
	copy(out, c.biomes)
	return out
}
