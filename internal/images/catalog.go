package images

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/spf13/viper"

	"guessduel/internal/scoring"
)

// Catalog is an in-memory Provider, used when no database is configured.
type Catalog struct {
	mu     sync.RWMutex
	images []Image
	skip   func(n int) int
}

func NewCatalog(imgs ...Image) *Catalog {
	return &Catalog{images: imgs, skip: randomSkip}
}

type catalogEntry struct {
	ID     string  `mapstructure:"id"`
	URL    string  `mapstructure:"image"`
	X      float64 `mapstructure:"x"`
	Y      float64 `mapstructure:"y"`
	Status string  `mapstructure:"status"`
}

// LoadCatalog reads a YAML or JSON file with a top-level "images" list.
// Entries whose status is not "approved" are skipped.
func LoadCatalog(path string) (*Catalog, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading image catalogue: %w", err)
	}

	var file struct {
		Images []catalogEntry `mapstructure:"images"`
	}
	if err := v.Unmarshal(&file); err != nil {
		return nil, fmt.Errorf("decoding image catalogue: %w", err)
	}

	c := NewCatalog()
	for i, e := range file.Images {
		if e.Status != StatusApproved {
			continue
		}
		if e.URL == "" {
			return nil, fmt.Errorf("image catalogue entry %d: missing image url", i)
		}
		id := e.ID
		if id == "" {
			id = e.URL
		}
		c.images = append(c.images, Image{ID: id, URL: e.URL, Answer: scoring.Coordinate{X: e.X, Y: e.Y}})
	}
	return c, nil
}

func (c *Catalog) Add(img Image) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.images = append(c.images, img)
}

func (c *Catalog) CountApproved(ctx context.Context) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.images), nil
}

func (c *Catalog) RandomApproved(ctx context.Context, exclude []string) (Image, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	candidates := make([]Image, 0, len(c.images))
	for _, img := range c.images {
		if !slices.Contains(exclude, img.URL) {
			candidates = append(candidates, img)
		}
	}
	if len(candidates) == 0 {
		return Image{}, ErrNoApprovedImages
	}
	return candidates[c.skip(len(candidates))], nil
}
