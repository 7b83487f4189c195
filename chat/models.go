package chat

import (
	"errors"
	"fmt"
	"strings"

	"vermithor/config"
)

var ErrUnknownModel = errors.New("unknown model")

// Model pairs the display name shown in the dropdown with the provider model id
type Model struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// Catalog is the fixed, ordered set of selectable models
type Catalog struct {
	models   []Model
	fallback Model
}

// NewCatalog builds a catalog. defaultKey may be a model id or display name;
// empty selects the first model.
func NewCatalog(models []Model, defaultKey string) (*Catalog, error) {
	if len(models) == 0 {
		return nil, fmt.Errorf("model catalog is empty")
	}
	seen := make(map[string]bool, len(models))
	for _, m := range models {
		if strings.TrimSpace(m.Name) == "" || strings.TrimSpace(m.ID) == "" {
			return nil, fmt.Errorf("model catalog entry %+v needs both name and id", m)
		}
		if seen[m.ID] {
			return nil, fmt.Errorf("duplicate model id %s", m.ID)
		}
		seen[m.ID] = true
	}

	c := &Catalog{models: append([]Model(nil), models...), fallback: models[0]}
	if defaultKey != "" {
		m, ok := c.Resolve(defaultKey)
		if !ok {
			return nil, fmt.Errorf("%w: default %s", ErrUnknownModel, defaultKey)
		}
		c.fallback = m
	}
	return c, nil
}

func (c *Catalog) All() []Model {
	return append([]Model(nil), c.models...)
}

func (c *Catalog) Default() Model {
	return c.fallback
}

// Resolve finds a model by provider id first, then by display name
func (c *Catalog) Resolve(key string) (Model, bool) {
	key = strings.TrimSpace(key)
	for _, m := range c.models {
		if m.ID == key {
			return m, true
		}
	}
	for _, m := range c.models {
		if m.Name == key {
			return m, true
		}
	}
	return Model{}, false
}

// CatalogFromConfig builds the catalog from the chat section
func CatalogFromConfig(cfg config.ChatConfig) (*Catalog, error) {
	models := make([]Model, 0, len(cfg.Models))
	for _, m := range cfg.Models {
		models = append(models, Model{Name: m.Name, ID: m.ID})
	}
	return NewCatalog(models, cfg.DefaultModel)
}
