package terrain

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func generateDefault(t *testing.T, seed int64, size int) *Terrain {
	t.Helper()
	rules, err := DefaultRules(DefaultCatalog())
	if err != nil {
		t.Fatalf("DefaultRules: %v", err)
	}
	ter, err := Generate(context.Background(), seed, size, DefaultNoiseParams(), rules)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	return ter
}

func TestGenerateDeterministic(t *testing.T) {
	a := generateDefault(t, 1337, 64)
	b := generateDefault(t, 1337, 64)

	for i := 0; i < a.Len(); i++ {
		if math.Float64bits(a.Heights[i]) != math.Float64bits(b.Heights[i]) {
			t.Fatalf("height %d differs: %v vs %v", i, a.Heights[i], b.Heights[i])
		}
		if math.Float64bits(a.Heats[i]) != math.Float64bits(b.Heats[i]) {
			t.Fatalf("heat %d differs: %v vs %v", i, a.Heats[i], b.Heats[i])
		}
		if a.Biomes[i].Name != b.Biomes[i].Name {
			t.Fatalf("biome %d differs: %s vs %s", i, a.Biomes[i], b.Biomes[i])
		}
	}
}

func TestGenerateSeedsDiffer(t *testing.T) {
	a := generateDefault(t, 1, 32)
	b := generateDefault(t, 2, 32)

	same := true
	for i := range a.Heights {
		if a.Heights[i] != b.Heights[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("different seeds produced identical height fields")
	}
}

func TestGenerateFieldsInUnitRange(t *testing.T) {
	ter := generateDefault(t, 7, 64)
	for i := range ter.Heights {
		if h := ter.Heights[i]; h < 0 || h > 1 {
			t.Fatalf("height %d out of range: %v", i, h)
		}
		if h := ter.Heats[i]; h < 0 || h > 1 {
			t.Fatalf("heat %d out of range: %v", i, h)
		}
		if ter.Biomes[i] == nil {
			t.Fatalf("tile %d has no biome", i)
		}
	}
}

func TestResolvedBiomeHonoursRules(t *testing.T) {
	ter := generateDefault(t, 99, 64)
	rules, _ := DefaultRules(DefaultCatalog())

	for i := range ter.Biomes {
		h, heat := ter.Heights[i], ter.Heats[i]

		best := math.MinInt
		var matched []Rule
		for _, r := range rules.Rules() {
			if r.Matches(h, heat) {
				matched = append(matched, r)
				best = max(best, r.Priority)
			}
		}
		if len(matched) == 0 {
			if ter.Biomes[i].Name != BiomeVoid {
				t.Fatalf("tile %d: no rule matches but got %s", i, ter.Biomes[i])
			}
			continue
		}

		ok := false
		for _, r := range matched {
			if r.Biome.Name == ter.Biomes[i].Name && r.Priority == best {
				ok = true
			}
		}
		if !ok {
			t.Fatalf("tile %d (h=%.3f heat=%.3f): got %s, not a top-priority match", i, h, heat, ter.Biomes[i])
		}
	}
}

func TestGenerateRejectsBadSize(t *testing.T) {
	rules, _ := DefaultRules(DefaultCatalog())
	for _, size := range []int{0, -4, 31} {
		if _, err := Generate(context.Background(), 1, size, DefaultNoiseParams(), rules); err == nil {
			t.Errorf("size %d: expected error", size)
		}
	}
}

func TestGenerateCancelled(t *testing.T) {
	rules, _ := DefaultRules(DefaultCatalog())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Generate(ctx, 1, 64, DefaultNoiseParams(), rules)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestCoordIndexRoundTrip(t *testing.T) {
	ter := generateDefault(t, 3, 16)

	if ter.Half != 8 {
		t.Fatalf("Half = %d, want 8", ter.Half)
	}
	for i := 0; i < ter.Len(); i++ {
		x, z := ter.CoordAt(i)
		if !ter.InBounds(x, z) {
			t.Fatalf("CoordAt(%d) = (%d,%d) out of bounds", i, x, z)
		}
		if got := ter.Index(x, z); got != i {
			t.Fatalf("Index(CoordAt(%d)) = %d", i, got)
		}
	}

	if x, z := ter.CoordAt(0); x != -8 || z != -8 {
		t.Errorf("CoordAt(0) = (%d,%d), want (-8,-8)", x, z)
	}
	if ter.InBounds(8, 0) || ter.InBounds(0, -9) {
		t.Error("expected [-Half, Half) bounds")
	}
	if _, ok := ter.At(8, 0); ok {
		t.Error("At outside bounds should fail")
	}
	tile, ok := ter.At(-8, 7)
	if !ok || tile.Biome == nil {
		t.Errorf("At(-8,7) = %+v, %v", tile, ok)
	}
}

func TestHistogramCountsEveryTile(t *testing.T) {
	ter := generateDefault(t, 5, 32)
	total := 0
	for _, n := range ter.Histogram() {
		total += n
	}
	if total != ter.Len() {
		t.Errorf("histogram total = %d, want %d", total, ter.Len())
	}
}

func TestGapInRulesFallsBackToVoid(t *testing.T) {
	cat := DefaultCatalog()
	rs, err := ParseRules([]byte(`
rules:
  - {biome: grass, priority: 0, height: [0, 0.4], heat: [0, 1]}
  - {biome: mountain, priority: 0, height: [0.6, 1], heat: [0, 1]}
`), cat)
	if err != nil {
		t.Fatalf("ParseRules: %v", err)
	}

	if b := rs.Resolve(0.5, 0.5); b != cat.Fallback() || b.Passable() {
		t.Errorf("gap resolved to %s, want impassable void", b)
	}
	if b := rs.Resolve(0.4, 0.0); b.Name != BiomeGrass {
		t.Errorf("inclusive max resolved to %s, want grass", b)
	}
}

func TestResolvePriorityAndOrder(t *testing.T) {
	cat := DefaultCatalog()
	grass, _ := cat.Get(BiomeGrass)
	sand, _ := cat.Get(BiomeSand)
	mountain, _ := cat.Get(BiomeMountain)
	all := Range{0, 1}

	rs, err := NewRuleSet(cat, []Rule{
		{Priority: 1, Biome: grass, Height: all, Heat: all},
		{Priority: 1, Biome: sand, Height: all, Heat: all},
		{Priority: 5, Biome: mountain, Height: Range{0.9, 1}, Heat: all},
	})
	if err != nil {
		t.Fatalf("NewRuleSet: %v", err)
	}

	if b := rs.Resolve(0.5, 0.5); b != grass {
		t.Errorf("tie resolved to %s, want first rule (grass)", b)
	}
	if b := rs.Resolve(0.95, 0.5); b != mountain {
		t.Errorf("got %s, want higher priority mountain", b)
	}
}

func TestNewRuleSetRejectsForeignBiome(t *testing.T) {
	foreign := &Biome{Name: BiomeGrass, MoveCost: 1}
	_, err := NewRuleSet(DefaultCatalog(), []Rule{{Biome: foreign, Height: Range{0, 1}, Heat: Range{0, 1}}})
	if err == nil {
		t.Error("expected error for biome not owned by catalog")
	}

	cat := DefaultCatalog()
	own, _ := cat.Get(BiomeGrass)
	if _, err := NewRuleSet(cat, []Rule{{Biome: own, Height: Range{0.8, 0.2}, Heat: Range{0, 1}}}); err == nil {
		t.Error("expected error for inverted range")
	}
}

func TestParseRulesUnknownBiome(t *testing.T) {
	_, err := ParseRules([]byte("rules:\n  - {biome: lava, height: [0, 1], heat: [0, 1]}\n"), DefaultCatalog())
	if err == nil {
		t.Error("expected error for unknown biome")
	}
}

func TestLoadRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	data := []byte("rules:\n  - {biome: sand, priority: 3, height: [0, 1], heat: [0, 1]}\n")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	rs, err := LoadRules(path, DefaultCatalog())
	if err != nil {
		t.Fatalf("LoadRules: %v", err)
	}
	if b := rs.Resolve(0.1, 0.9); b.Name != BiomeSand {
		t.Errorf("got %s, want sand", b)
	}

	if _, err := LoadRules(filepath.Join(t.TempDir(), "missing.yaml"), DefaultCatalog()); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestCatalog(t *testing.T) {
	cat := DefaultCatalog()
	if len(cat.All()) != 6 {
		t.Errorf("expected 6 biomes, got %d", len(cat.All()))
	}
	water, ok := cat.Get(BiomeWater)
	if !ok || water.Passable() {
		t.Error("water should exist and be impassable")
	}
	grass, _ := cat.Get(BiomeGrass)
	if !grass.Passable() || grass.MoveCost != 10 {
		t.Errorf("grass = %+v", grass)
	}
	sand, _ := cat.Get(BiomeSand)
	if !sand.Passable() || sand.MoveCost != 15 {
		t.Errorf("sand = %+v", sand)
	}
	for _, name := range []string{BiomeMountain, BiomeMountainSnow, BiomeVoid} {
		if b, ok := cat.Get(name); !ok || b.Passable() {
			t.Errorf("%s should exist and be impassable", name)
		}
	}

	if _, err := NewCatalog("void", Biome{Name: "grass", MoveCost: 1}); err == nil {
		t.Error("expected error for missing fallback")
	}
	if _, err := NewCatalog("a", Biome{Name: "a", MoveCost: 0}); err == nil {
		t.Error("expected error for zero cost")
	}
	if _, err := NewCatalog("a", Biome{Name: "a", MoveCost: 1}, Biome{Name: "a", MoveCost: 2}); err == nil {
		t.Error("expected error for duplicate name")
	}
}

func TestDefaultRulesClassification(t *testing.T) {
	rs, err := DefaultRules(DefaultCatalog())
	if err != nil {
		t.Fatalf("DefaultRules: %v", err)
	}
	tests := []struct {
		height, heat float64
		want         string
	}{
		{0.05, 0.5, BiomeWater},
		{0.15, 0.5, BiomeSand},
		{0.2, 0.5, BiomeGrass}, // sand and grass tie, grass is listed first
		{0.5, 0.5, BiomeGrass},
		{0.8, 0.9, BiomeGrass},
		{0.9, 0.9, BiomeMountain},
		{0.9, 0.2, BiomeMountain}, // snow ties with mountain and loses on order
	}
	for _, tt := range tests {
		if b := rs.Resolve(tt.height, tt.heat); b.Name != tt.want {
			t.Errorf("Resolve(%v, %v) = %s, want %s", tt.height, tt.heat, b, tt.want)
		}
	}
}
