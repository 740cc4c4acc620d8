// Package catalog lists the models offered in the arena.
package catalog

import (
	_ "embed"
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"llm-arena/server/models"
)

//go:embed models.yaml
var defaultModels []byte

type Catalog struct {
	list []models.ModelInfo
	byID map[string]models.ModelInfo
}

type file struct {
	Models []models.ModelInfo `yaml:"models"`
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := Parse(defaultModels)
	if err != nil {
		panic(errors.Wrap(err, "embedded catalog"))
	}
	return c
}

// Load reads a catalog file. An empty path yields the built-in catalog.
func Load(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read catalog %s", path)
	}
	c, err := Parse(b)
	return c, errors.Wrapf(err, "catalog %s", path)
}

func Parse(b []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, errors.Wrap(err, "parse yaml")
	}
	if len(f.Models) == 0 {
		return nil, errors.New("no models listed")
	}
	c := &Catalog{byID: make(map[string]models.ModelInfo, len(f.Models))}
	for i, m := range f.Models {
		m.ID = strings.TrimSpace(m.ID)
		m.Name = strings.TrimSpace(m.Name)
		if m.ID == "" {
			return nil, errors.Errorf("model %d has no id", i)
		}
		if _, dup := c.byID[m.ID]; dup {
			return nil, errors.Errorf("duplicate model %q", m.ID)
		}
		if m.Name == "" {
			m.Name = m.ID
		}
		c.byID[m.ID] = m
		c.list = append(c.list, m)
	}
	return c, nil
}

// All returns the catalog in file order.
func (c *Catalog) All() []models.ModelInfo {
	return append([]models.ModelInfo(nil), c.list...)
}

func (c *Catalog) Get(id string) (models.ModelInfo, bool) {
	m, ok := c.byID[id]
	return m, ok
}

func (c *Catalog) Contains(id string) bool {
	_, ok := c.byID[id]
	return ok
}

func (c *Catalog) Len() int { return len(c.list) }
