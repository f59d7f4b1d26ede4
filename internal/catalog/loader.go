package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Catalog is the loaded set of adapter descriptors, keyed by name.
type Catalog struct {
	descriptors map[string]*Descriptor
}

// LoadDir reads every .yaml/.yml file in dir as one descriptor. Descriptor
// names must be unique across the directory.
func LoadDir(dir string) (*Catalog, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("catalog: read descriptor dir: %w", err)
	}
	cat := &Catalog{descriptors: map[string]*Descriptor{}}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		desc, err := loadFile(path)
		if err != nil {
			return nil, err
		}
		if _, dup := cat.descriptors[desc.Name]; dup {
			return nil, fmt.Errorf("catalog: duplicate descriptor name %q in %s", desc.Name, entry.Name())
		}
		cat.descriptors[desc.Name] = desc
	}
	if len(cat.descriptors) == 0 {
		return nil, fmt.Errorf("catalog: no descriptors found in %s", dir)
	}
	return cat, nil
}

func loadFile(path string) (*Descriptor, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	var desc Descriptor
	if err := yaml.Unmarshal(raw, &desc); err != nil {
		return nil, fmt.Errorf("catalog: parse %s: %w", path, err)
	}
	if err := desc.Validate(); err != nil {
		return nil, fmt.Errorf("%w (in %s)", err, path)
	}
	return &desc, nil
}

// Get returns the descriptor with the given name.
func (c *Catalog) Get(name string) (*Descriptor, bool) {
	desc, ok := c.descriptors[name]
	return desc, ok
}

// List returns all descriptors sorted by name.
func (c *Catalog) List() []*Descriptor {
	out := make([]*Descriptor, 0, len(c.descriptors))
	for _, desc := range c.descriptors {
		out = append(out, desc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len reports how many descriptors are loaded.
func (c *Catalog) Len() int {
	return len(c.descriptors)
}
