// terrainctl is a CLI utility for generating, inspecting and storing terrain.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/Faultbox/midgard-sim/internal/game"
	"github.com/Faultbox/midgard-sim/internal/grid"
	"github.com/Faultbox/midgard-sim/internal/pathfind"
	"github.com/Faultbox/midgard-sim/internal/storage/catalogdb"
	"github.com/Faultbox/midgard-sim/internal/storage/snapshot"
	"github.com/Faultbox/midgard-sim/internal/terrain"
	"github.com/Faultbox/midgard-sim/internal/world"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	var err error
	switch command {
	case "gen", "info":
		err = cmdGen(args)
	case "map":
		err = cmdMap(args)
	case "path":
		err = cmdPath(args)
	case "save":
		err = cmdSave(args)
	case "load":
		err = cmdLoad(args)
	case "list", "ls":
		err = cmdList(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`terrainctl - terrain generation and pathfinding utility

Usage:
  terrainctl <command> [options]

Commands:
  gen   [-seed N] [-size N] [-rules file]        Generate and summarize terrain
  map   [-seed N] [-size N] [-snapshot file]     Print an ASCII biome map
  path  [-seed N] [-size N] [-explored] x1,z1 x2,z2
                                                 Search a path and draw it
  save  [-seed N] [-size N] [-dir D] [-db F]     Generate, write snapshot, record it
  load  <snapshot>                               Show a snapshot summary
  list  [-db F]                                  List recorded snapshots

Examples:
  terrainctl gen -seed 42 -size 128
  terrainctl map -seed 42 -size 64
  terrainctl path -seed 42 -size 64 -explored -10,-10 20,5
  terrainctl save -seed 42 -size 256 -dir snapshots
  terrainctl list -db snapshots/catalog.db`)
}

// terrainFlags are shared by every command that needs a terrain.
type terrainFlags struct {
	seed     *int64
	size     *int
	rules    *string
	snapshot *string
}

func addTerrainFlags(fs *flag.FlagSet) terrainFlags {
	return terrainFlags{
		seed:     fs.Int64("seed", 1337, "Terrain seed"),
		size:     fs.Int("size", 64, "Tiles per map side (even)"),
		rules:    fs.String("rules", "", "Biome rules yaml (built-in rules when empty)"),
		snapshot: fs.String("snapshot", "", "Read terrain from a snapshot instead of generating"),
	}
}

func (tf terrainFlags) ruleSet() (*terrain.RuleSet, error) {
	catalog := terrain.DefaultCatalog()
	if *tf.rules != "" {
		return terrain.LoadRules(*tf.rules, catalog)
	}
	return terrain.DefaultRules(catalog)
}

func (tf terrainFlags) load(ctx context.Context) (*terrain.Terrain, *terrain.RuleSet, error) {
	rules, err := tf.ruleSet()
	if err != nil {
		return nil, nil, err
	}
	if *tf.snapshot != "" {
		t, err := game.LoadSnapshot(*tf.snapshot, rules.Catalog())
		return t, rules, err
	}
	t, err := terrain.Generate(ctx, *tf.seed, *tf.size, terrain.DefaultNoiseParams(), rules)
	return t, rules, err
}

func cmdGen(args []string) error {
	fs := flag.NewFlagSet("gen", flag.ExitOnError)
	tf := addTerrainFlags(fs)
	fs.Parse(args)

	t, _, err := tf.load(context.Background())
	if err != nil {
		return err
	}
	printSummary(t)
	return nil
}

func printSummary(t *terrain.Terrain) {
	fmt.Printf("Seed:  %d\n", t.Seed)
	fmt.Printf("Size:  %dx%d (coords %d..%d)\n", t.Size, t.Size, -t.Half, t.Size-t.Half-1)
	fmt.Printf("Tiles: %d\n", t.Len())
	fmt.Println()
	fmt.Println("Tiles by biome:")

	type biomeStat struct {
		name  string
		count int
	}
	var stats []biomeStat
	for name, count := range t.Histogram() {
		stats = append(stats, biomeStat{name, count})
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].count != stats[j].count {
			return stats[i].count > stats[j].count
		}
		return stats[i].name < stats[j].name
	})
	for _, s := range stats {
		fmt.Printf("  %-14s %6d  %5.1f%%\n", s.name, s.count, 100*float64(s.count)/float64(t.Len()))
	}
}

func cmdMap(args []string) error {
	fs := flag.NewFlagSet("map", flag.ExitOnError)
	tf := addTerrainFlags(fs)
	fs.Parse(args)

	t, _, err := tf.load(context.Background())
	if err != nil {
		return err
	}
	fmt.Print(renderMap(t, nil))
	return nil
}

func cmdPath(args []string) error {
	fs := flag.NewFlagSet("path", flag.ExitOnError)
	tf := addTerrainFlags(fs)
	explored := fs.Bool("explored", false, "Mark expanded cells on the map")
	fs.Parse(args)

	if fs.NArg() < 2 {
		return fmt.Errorf("usage: terrainctl path [options] x1,z1 x2,z2")
	}
	start, err := parseCoord(fs.Arg(0))
	if err != nil {
		return err
	}
	goal, err := parseCoord(fs.Arg(1))
	if err != nil {
		return err
	}

	ctx := context.Background()
	t, rules, err := tf.load(ctx)
	if err != nil {
		return err
	}
	settings := world.DefaultSettings()
	settings.MapSize = t.Size
	settings.Rules = rules
	w, err := world.New(settings, nil)
	if err != nil {
		return err
	}
	w.LoadTerrain(t)

	res, err := w.FindPathDebug(start, goal)
	if err != nil {
		fmt.Printf("No path from %v to %v: %v (explored %d cells)\n", start, goal, err, len(res.Explored))
		return nil
	}

	fmt.Printf("Path %v -> %v: %d waypoints, cost %.2f, explored %d cells\n",
		start, goal, len(res.Path), res.Cost, len(res.Explored))
	if !*explored {
		res.Explored = nil
	}
	fmt.Print(renderMap(t, &res))
	return nil
}

func cmdSave(args []string) error {
	fs := flag.NewFlagSet("save", flag.ExitOnError)
	tf := addTerrainFlags(fs)
	dir := fs.String("dir", "snapshots", "Snapshot directory")
	dbPath := fs.String("db", "", "Catalog database (default <dir>/catalog.db)")
	fs.Parse(args)

	ctx := context.Background()
	t, _, err := tf.load(ctx)
	if err != nil {
		return err
	}
	if *dbPath == "" {
		*dbPath = filepath.Join(*dir, "catalog.db")
	}
	db, err := catalogdb.Open(*dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	path := filepath.Join(*dir, snapshot.Filename(t.Seed, t.Size))
	if err := game.SaveSnapshot(ctx, t, path, db); err != nil {
		return err
	}
	fmt.Printf("Saved %s (seed %d, %dx%d)\n", path, t.Seed, t.Size, t.Size)
	return nil
}

func cmdLoad(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: terrainctl load <snapshot>")
	}
	h, err := snapshot.ReadHeader(args[0])
	if err != nil {
		return err
	}
	fmt.Printf("Snapshot: %s (format v%d)\n", args[0], h.Version)
	t, err := game.LoadSnapshot(args[0], terrain.DefaultCatalog())
	if err != nil {
		return err
	}
	printSummary(t)
	return nil
}

func cmdList(args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	dbPath := fs.String("db", "snapshots/catalog.db", "Catalog database")
	fs.Parse(args)

	db, err := catalogdb.Open(*dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	entries, err := db.List(context.Background())
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No snapshots recorded")
		return nil
	}
	fmt.Printf("%-20s %6s  %-20s %s\n", "SEED", "SIZE", "CREATED", "PATH")
	for _, e := range entries {
		fmt.Printf("%-20d %6d  %-20s %s\n", e.Seed, e.Size, e.CreatedAt.Local().Format("2006-01-02 15:04:05"), e.Path)
	}
	return nil
}

// parseCoord parses "x,z" into a grid coordinate.
func parseCoord(s string) (grid.Coord, error) {
	xs, zs, ok := strings.Cut(s, ",")
	if !ok {
		return grid.Coord{}, fmt.Errorf("invalid coordinate %q, want x,z", s)
	}
	x, err := strconv.Atoi(strings.TrimSpace(xs))
	if err != nil {
		return grid.Coord{}, fmt.Errorf("invalid coordinate %q: %w", s, err)
	}
	z, err := strconv.Atoi(strings.TrimSpace(zs))
	if err != nil {
		return grid.Coord{}, fmt.Errorf("invalid coordinate %q: %w", s, err)
	}
	return grid.C(x, z), nil
}

var biomeGlyphs = map[string]byte{
	terrain.BiomeGrass:        '.',
	terrain.BiomeWater:        '~',
	terrain.BiomeSand:         ':',
	terrain.BiomeMountain:     '^',
	terrain.BiomeMountainSnow: '*',
	terrain.BiomeVoid:         ' ',
}

// renderMap draws one character per tile, north (low z) first. When res is
// set, explored cells are 'o', the path '#', and its ends 'S' and 'G'.
func renderMap(t *terrain.Terrain, res *pathfind.Result) string {
	rows := make([][]byte, t.Size)
	for i, b := range t.Biomes {
		x, z := t.CoordAt(i)
		if rows[z+t.Half] == nil {
			rows[z+t.Half] = make([]byte, t.Size)
		}
		g, ok := biomeGlyphs[b.Name]
		if !ok {
			g = '?'
		}
		rows[z+t.Half][x+t.Half] = g
	}

	mark := func(c grid.Coord, g byte) {
		if t.InBounds(c.X, c.Z) {
			rows[c.Z+t.Half][c.X+t.Half] = g
		}
	}
	if res != nil {
		for _, c := range res.Explored {
			mark(c, 'o')
		}
		for _, c := range res.Path {
			mark(c, '#')
		}
		if n := len(res.Path); n > 0 {
			mark(res.Path[0], 'S')
			mark(res.Path[n-1], 'G')
		}
	}

	var sb strings.Builder
	for _, row := range rows {
		sb.Write(row)
		sb.WriteByte('\n')
	}
	return sb.String()
}
