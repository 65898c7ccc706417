// Package ranking holds the built-in catalog of platform ranking boards.
// The catalog is static platform metadata; it never depends on which
// source scripts are installed.
package ranking

import (
	_ "embed"
	"fmt"

	"github.com/goccy/go-yaml"
)

//go:embed catalog.yaml
var catalogYAML []byte

// Board is one ranking list on a platform
type Board struct {
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
}

// Platform groups the boards of one platform
type Platform struct {
	SourceID   string  `yaml:"sourceId" json:"sourceId"`
	SourceName string  `yaml:"sourceName" json:"sourceName"`
	List       []Board `yaml:"list" json:"list"`
}

// Catalog is an immutable set of platforms
type Catalog struct {
	platforms []Platform
	index     map[string]int
}

// Parse decodes a YAML catalog
func Parse(data []byte) (*Catalog, error) {
	var platforms []Platform
	if err := yaml.Unmarshal(data, &platforms); err != nil {
		return nil, fmt.Errorf("failed to parse ranking catalog: %w", err)
	}

	c := &Catalog{platforms: platforms, index: make(map[string]int, len(platforms))}
	for i, p := range platforms {
		if p.SourceID == "" {
			return nil, fmt.Errorf("ranking catalog entry %d has no sourceId", i)
		}
		if _, dup := c.index[p.SourceID]; dup {
			return nil, fmt.Errorf("ranking catalog lists %s twice", p.SourceID)
		}
		c.index[p.SourceID] = i
	}
	return c, nil
}

// Builtin returns the embedded catalog
func Builtin() *Catalog {
	c, err := Parse(catalogYAML)
	if err != nil {
		panic(err)
	}
	return c
}

// Platforms returns a copy of every platform in catalog order
func (c *Catalog) Platforms() []Platform {
	out := make([]Platform, len(c.platforms))
	for i, p := range c.platforms {
		p.List = append([]Board(nil), p.List...)
		out[i] = p
	}
	return out
}

// Platform looks up one platform by id
func (c *Catalog) Platform(sourceID string) (Platform, bool) {
	i, ok := c.index[sourceID]
	if !ok {
		return Platform{}, false
	}
	return c.platforms[i], true
}

// Board looks up a board; ok is false for boards outside the catalog
func (c *Catalog) Board(sourceID, boardID string) (Board, bool) {
	p, ok := c.Platform(sourceID)
	if !ok {
		return Board{}, false
	}
	for _, b := range p.List {
		if b.ID == boardID {
			return b, true
		}
	}
	return Board{}, false
}
