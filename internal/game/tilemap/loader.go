package tilemap

import (
	"fmt"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
	"gopkg.in/yaml.v3"
)

// CompressedSuffix marks map and tileset files stored zstd-compressed.
const CompressedSuffix = ".zst"

// yamlMapFile is the top-level YAML structure for map files.
type yamlMapFile struct {
	Map yamlMap `yaml:"map"`
}

type yamlMap struct {
	Name           string      `yaml:"name"`
	Width          int         `yaml:"width"`
	Height         int         `yaml:"height"`
	TileSize       int         `yaml:"tile_size"`
	CollisionLayer string      `yaml:"collision_layer"`
	Spawn          *yamlPoint  `yaml:"spawn"`
	Layers         []yamlLayer `yaml:"layers"`
}

type yamlPoint struct {
	X int `yaml:"x"`
	Y int `yaml:"y"`
}

type yamlLayer struct {
	Name string     `yaml:"name"`
	Rows [][]uint32 `yaml:"rows"`
}

// yamlTilesetFile is the top-level YAML structure for tileset files.
type yamlTilesetFile struct {
	Tileset yamlTileset `yaml:"tileset"`
}

type yamlTileset struct {
	Name      string     `yaml:"name"`
	FirstGID  uint32     `yaml:"first_gid"`
	TileCount uint32     `yaml:"tile_count"`
	Tiles     []yamlTile `yaml:"tiles"`
}

type yamlTile struct {
	ID         uint32            `yaml:"id"`
	Properties map[string]string `yaml:"properties"`
}

// LoadMap reads a map file and its tileset file and validates the result.
// Either path may end in CompressedSuffix.
//
// Precondition: both paths name readable files.
// Postcondition: Returns a validated Map or a non-nil error. Never panics.
func LoadMap(mapPath, tilesetPath string) (*Map, error) {
	mapData, err := readAsset(mapPath)
	if err != nil {
		return nil, fmt.Errorf("reading map file %s: %w", mapPath, err)
	}
	tsData, err := readAsset(tilesetPath)
	if err != nil {
		return nil, fmt.Errorf("reading tileset file %s: %w", tilesetPath, err)
	}
	m, err := LoadMapFromBytes(mapData, tsData)
	if err != nil {
		return nil, fmt.Errorf("loading map %s: %w", mapPath, err)
	}
	return m, nil
}

// LoadMapFromBytes parses and validates a map and its tileset from YAML.
//
// Postcondition: Returns a validated Map or a non-nil error.
func LoadMapFromBytes(mapData, tilesetData []byte) (*Map, error) {
	ts, err := LoadTilesetFromBytes(tilesetData)
	if err != nil {
		return nil, err
	}

	var file yamlMapFile
	if err := yaml.Unmarshal(mapData, &file); err != nil {
		return nil, fmt.Errorf("parsing map YAML: %w", err)
	}
	m := convertYAMLMap(file.Map)
	m.Tileset = ts
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("validating map: %w", err)
	}
	return m, nil
}

// LoadTilesetFromBytes parses a tileset from YAML.
func LoadTilesetFromBytes(data []byte) (*Tileset, error) {
	var file yamlTilesetFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing tileset YAML: %w", err)
	}
	yt := file.Tileset
	ts := &Tileset{
		Name:      yt.Name,
		FirstGID:  yt.FirstGID,
		TileCount: yt.TileCount,
		Tiles:     make(map[uint32]map[string]string, len(yt.Tiles)),
	}
	if ts.FirstGID == 0 {
		ts.FirstGID = 1
	}
	for _, tile := range yt.Tiles {
		if _, dup := ts.Tiles[tile.ID]; dup {
			return nil, fmt.Errorf("tileset %q: duplicate tile id %d", ts.Name, tile.ID)
		}
		ts.Tiles[tile.ID] = tile.Properties
	}
	return ts, nil
}

func convertYAMLMap(ym yamlMap) *Map {
	m := &Map{
		Name:           ym.Name,
		Width:          ym.Width,
		Height:         ym.Height,
		TileSize:       ym.TileSize,
		CollisionLayer: ym.CollisionLayer,
		Spawn:          TilePoint{X: 1, Y: 1},
	}
	if m.TileSize == 0 {
		m.TileSize = DefaultTileSize
	}
	if ym.Spawn != nil {
		m.Spawn = TilePoint{X: ym.Spawn.X, Y: ym.Spawn.Y}
	}
	for _, yl := range ym.Layers {
		m.Layers = append(m.Layers, Layer{Name: yl.Name, Rows: yl.Rows})
	}
	if m.CollisionLayer == "" && len(m.Layers) > 0 {
		m.CollisionLayer = m.Layers[len(m.Layers)-1].Name
	}
	return m
}

// readAsset reads path, transparently decompressing zstd files.
func readAsset(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(path, CompressedSuffix) {
		return data, nil
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}
	defer dec.Close()
	out, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decompressing %s: %w", path, err)
	}
	return out, nil
}
