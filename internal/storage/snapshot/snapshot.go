// Package snapshot persists generated terrain as a zstd stream holding a JSON
// header line followed by a gob body.
package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"github.com/Faultbox/midgard-sim/internal/terrain"
)

// Version is the format version written by Write.
const Version = 1

// ErrVersion is returned when a snapshot was written by an unknown format version.
var ErrVersion = errors.New("snapshot: unsupported version")

// Header is stored both as the leading JSON line and inside the gob body.
type Header struct {
	Version int   `json:"version"`
	Seed    int64 `json:"seed"`
	Size    int   `json:"size"`
}

// TerrainV1 is the stored form of a terrain. Biomes are stored by name and
// resolved against a catalog on load.
type TerrainV1 struct {
	Header  Header
	Heights []float64
	Heats   []float64
	Biomes  []string
}

// FromTerrain captures t.
func FromTerrain(t *terrain.Terrain) TerrainV1 {
	names := make([]string, len(t.Biomes))
	for i, b := range t.Biomes {
		names[i] = b.Name
	}
	return TerrainV1{
		Header:  Header{Version: Version, Seed: t.Seed, Size: t.Size},
		Heights: append([]float64(nil), t.Heights...),
		Heats:   append([]float64(nil), t.Heats...),
		Biomes:  names,
	}
}

// ToTerrain rebuilds the terrain, resolving biome names in catalog.
func (s TerrainV1) ToTerrain(catalog *terrain.Catalog) (*terrain.Terrain, error) {
	if s.Header.Version != Version {
		return nil, fmt.Errorf("%w: %d", ErrVersion, s.Header.Version)
	}
	size := s.Header.Size
	if size <= 0 || size%2 != 0 {
		return nil, fmt.Errorf("snapshot: invalid map size %d", size)
	}
	n := size * size
	if len(s.Heights) != n || len(s.Heats) != n || len(s.Biomes) != n {
		return nil, fmt.Errorf("snapshot: field lengths %d/%d/%d do not match size %d",
			len(s.Heights), len(s.Heats), len(s.Biomes), size)
	}

	biomes := make([]*terrain.Biome, n)
	for i, name := range s.Biomes {
		b, ok := catalog.Get(name)
		if !ok {
			return nil, fmt.Errorf("snapshot: tile %d references unknown biome %q", i, name)
		}
		biomes[i] = b
	}
	return &terrain.Terrain{
		Seed:    s.Header.Seed,
		Size:    size,
		Half:    size / 2,
		Heights: append([]float64(nil), s.Heights...),
		Heats:   append([]float64(nil), s.Heats...),
		Biomes:  biomes,
	}, nil
}

// Write stores snap at path, creating parent directories. The file is
// written to a temporary name and renamed so readers never see a partial snapshot.
func Write(path string, snap TerrainV1) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	var enc *zstd.Encoder
	defer func() {
		if err != nil {
			if enc != nil {
				enc.Close()
			}
			f.Close()
			os.Remove(tmp)
		}
	}()

	enc, err = zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, err := json.Marshal(snap.Header)
	if err != nil {
		return err
	}
	if _, err := bw.Write(append(hb, '\n')); err != nil {
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("zstd close: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Read loads a snapshot written by Write.
func Read(path string) (TerrainV1, error) {
	var snap TerrainV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)
	if _, err := readHeader(br); err != nil {
		return snap, err
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("%w: %d", ErrVersion, snap.Header.Version)
	}
	return snap, nil
}

// ReadHeader decodes only the leading header line.
func ReadHeader(path string) (Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return Header{}, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return Header{}, err
	}
	defer dec.Close()
	return readHeader(bufio.NewReader(dec))
}

func readHeader(br *bufio.Reader) (Header, error) {
	var h Header
	line, err := br.ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("snapshot header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("snapshot header: %w", err)
	}
	return h, nil
}

// Filename is the conventional snapshot name for a seed and size.
func Filename(seed int64, size int) string {
	return fmt.Sprintf("terrain_%d_%d.zst", seed, size)
}
