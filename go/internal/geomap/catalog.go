package geomap

import (
	"fmt"
	"math/rand"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/panoquest/panoquest/go/internal/models"
)

// WorldMapID is always present in a catalog.
const WorldMapID = "world"

var ErrUnknownMap = fmt.Errorf("unknown map")

// Bounds is a latitude/longitude bounding box.
type Bounds struct {
	North float64 `yaml:"north"`
	South float64 `yaml:"south"`
	East  float64 `yaml:"east"`
	West  float64 `yaml:"west"`
}

// Map is a named playing area made of one or more bounding regions.
type Map struct {
	ID     string   `yaml:"id"`
	Label  string   `yaml:"label"`
	Bounds []Bounds `yaml:"bounds"`
}

// Catalog holds the maps a game session can be constrained to.
type Catalog struct {
	maps map[string]Map
}

type catalogFile struct {
	Maps []Map `yaml:"maps"`
}

// DefaultCatalog returns a catalog containing only the world map.
func DefaultCatalog() *Catalog {
	world := Map{
		ID:    WorldMapID,
		Label: "World",
		Bounds: []Bounds{
			{North: 85, South: -85, East: 180, West: -180},
		},
	}
	return &Catalog{maps: map[string]Map{WorldMapID: world}}
}

// LoadCatalog reads extra maps from a YAML file on top of the defaults.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read map catalog: %w", err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse map catalog: %w", err)
	}

	c := DefaultCatalog()
	for _, m := range file.Maps {
		if m.ID == "" || len(m.Bounds) == 0 {
			return nil, fmt.Errorf("map %q must have an id and at least one bounds entry", m.Label)
		}
		c.maps[m.ID] = m
	}
	return c, nil
}

// Get returns the map with the given ID.
func (c *Catalog) Get(id string) (Map, error) {
	m, ok := c.maps[id]
	if !ok {
		return Map{}, fmt.Errorf("%w: %s", ErrUnknownMap, id)
	}
	return m, nil
}

// IDs lists the available map IDs.
func (c *Catalog) IDs() []string {
	ids := make([]string, 0, len(c.maps))
	for id := range c.maps {
		ids = append(ids, id)
	}
	return ids
}

// RandomPoint picks a uniform random position inside the map, weighting
// regions by their angular area.
func (m Map) RandomPoint(r *rand.Rand) models.LatLng {
	b := m.Bounds[0]
	if len(m.Bounds) > 1 {
		total := 0.0
		areas := make([]float64, len(m.Bounds))
		for i, region := range m.Bounds {
			areas[i] = region.area()
			total += areas[i]
		}
		pick := r.Float64() * total
		for i, area := range areas {
			if pick < area {
				b = m.Bounds[i]
				break
			}
			pick -= area
		}
	}
	return models.LatLng{
		Lat: b.South + r.Float64()*(b.North-b.South),
		Lng: b.West + r.Float64()*(b.East-b.West),
	}
}

func (b Bounds) area() float64 {
	return (b.North - b.South) * (b.East - b.West)
}
