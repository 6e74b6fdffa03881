// Package mentor holds the mentor catalog, each mentor's persisted memory,
// and the engine that turns both into model calls.
package mentor

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// JournalingID is the mentor whose conversations feed every other mentor's
// context and the daily relevance scoring
const JournalingID = "journaling"

// ErrUnknownMentor is returned for ids missing from the catalog
var ErrUnknownMentor = errors.New("unknown mentor")

//go:embed catalog.yaml
var builtinCatalog []byte

var idPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

// Definition is the static description of one mentor
type Definition struct {
	ID                string `yaml:"id" json:"id"`
	Name              string `yaml:"name" json:"name"`
	Icon              string `yaml:"icon" json:"icon"`
	SystemPrompt      string `yaml:"system_prompt" json:"systemPrompt"`
	CheckInPeriodDays int    `yaml:"check_in_period_days" json:"checkInPeriodDays"`
	FirstMessage      string `yaml:"first_message" json:"firstMessage"`
}

// Catalog is the ordered, immutable set of mentor definitions
type Catalog struct {
	defs []Definition
	byID map[string]int
}

// LoadCatalog reads a catalog file, or the built-in catalog when path is
// empty
func LoadCatalog(path string) (*Catalog, error) {
	data := builtinCatalog
	if path != "" {
		var err error
		if data, err = os.ReadFile(path); err != nil {
			return nil, fmt.Errorf("failed to read mentor catalog: %w", err)
		}
	}
	return ParseCatalog(data)
}

// DefaultCatalog returns the built-in catalog
func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(builtinCatalog)
	if err != nil {
		panic(fmt.Sprintf("built-in mentor catalog: %v", err))
	}
	return c
}

// ParseCatalog parses and validates catalog YAML
func ParseCatalog(data []byte) (*Catalog, error) {
	var file struct {
		Mentors []Definition `yaml:"mentors"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse mentor catalog: %w", err)
	}
	return NewCatalog(file.Mentors)
}

// NewCatalog validates defs and keeps their order
func NewCatalog(defs []Definition) (*Catalog, error) {
	c := &Catalog{byID: make(map[string]int, len(defs))}
	for _, d := range defs {
		switch {
		case !idPattern.MatchString(d.ID):
			return nil, fmt.Errorf("mentor catalog: invalid id %q", d.ID)
		case d.Name == "":
			return nil, fmt.Errorf("mentor catalog: %s has no name", d.ID)
		case d.SystemPrompt == "":
			return nil, fmt.Errorf("mentor catalog: %s has no system prompt", d.ID)
		case d.FirstMessage == "":
			return nil, fmt.Errorf("mentor catalog: %s has no first message", d.ID)
		case d.CheckInPeriodDays <= 0:
			return nil, fmt.Errorf("mentor catalog: %s check-in period must be positive", d.ID)
		}
		if _, dup := c.byID[d.ID]; dup {
			return nil, fmt.Errorf("mentor catalog: duplicate id %q", d.ID)
		}
		c.byID[d.ID] = len(c.defs)
		c.defs = append(c.defs, d)
	}
	if _, ok := c.byID[JournalingID]; !ok {
		return nil, fmt.Errorf("mentor catalog: %q mentor is required", JournalingID)
	}
	return c, nil
}

// Get returns the definition for id
func (c *Catalog) Get(id string) (Definition, error) {
	i, ok := c.byID[id]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %q", ErrUnknownMentor, id)
	}
	return c.defs[i], nil
}

// Has reports whether id is in the catalog
func (c *Catalog) Has(id string) bool {
	_, ok := c.byID[id]
	return ok
}

// All returns every definition in catalog order
func (c *Catalog) All() []Definition {
	return append([]Definition(nil), c.defs...)
}

// IDs returns every mentor id in catalog order
func (c *Catalog) IDs() []string {
	ids := make([]string, len(c.defs))
	for i, d := range c.defs {
		ids[i] = d.ID
	}
	return ids
}
