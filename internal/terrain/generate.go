package terrain

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Generate builds the terrain for a seed. Output is a pure function of seed,
// size, params and rules; rows are produced in parallel bands that write
// disjoint slots, so the band layout never affects the result.
func Generate(ctx context.Context, seed int64, size int, params NoiseParams, rules *RuleSet) (*Terrain, error) {
	if size <= 0 || size%2 != 0 {
		return nil, fmt.Errorf("map size must be positive and even, got %d", size)
	}
	if rules == nil {
		return nil, fmt.Errorf("nil rule set")
	}

	t := &Terrain{
		Seed:    seed,
		Size:    size,
		Half:    size / 2,
		Heights: make([]float64, size*size),
		Heats:   make([]float64, size*size),
		Biomes:  make([]*Biome, size*size),
	}
	f := newFields(seed, params)

	workers := runtime.GOMAXPROCS(0)
	if workers > size {
		workers = size
	}
	rowsPerBand := (size + workers - 1) / workers

	g, ctx := errgroup.WithContext(ctx)
	for start := 0; start < size; start += rowsPerBand {
		end := min(start+rowsPerBand, size)
		g.Go(func() error {
			for row := start; row < end; row++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				z := row - t.Half
				for col := 0; col < size; col++ {
					x := col - t.Half
					i := col + row*size
					h, heat := f.sample(x, z)
					t.Heights[i] = h
					t.Heats[i] = heat
					t.Biomes[i] = rules.Resolve(h, heat)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("generating terrain for seed %d: %w", seed, err)
	}
	return t, nil
}
