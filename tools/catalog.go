// Tool catalog.
//
// Agent specs refer to toolsets by name. The catalog turns those names into
// fresh tool instances for every run, so stateful toolsets never leak state
// across runs.

package tools

import (
	"fmt"
	"net/http"
	"sort"
)

// Deps are the shared resources toolsets may use.
type Deps struct {
	// HTTPClient is used by tools that make outbound requests.
	HTTPClient *http.Client
}

// Toolset builds the tools of one named toolset.
type Toolset struct {
	Name        string
	Description string
	New         func(deps Deps) []Tool
}

// Catalog maps toolset names to their constructors.
type Catalog struct {
	toolsets map[string]Toolset
}

// NewCatalog creates a catalog holding toolsets.
func NewCatalog(toolsets ...Toolset) *Catalog {
	c := &Catalog{toolsets: make(map[string]Toolset)}
	for _, ts := range toolsets {
		c.toolsets[ts.Name] = ts
	}
	return c
}

// DefaultCatalog returns the toolsets available to agent specs.
func DefaultCatalog() *Catalog {
	return NewCatalog(
		Toolset{
			Name:        "todo",
			Description: "A private todo list: add_todo, complete_todo, add_notes_to_todo, list_todos",
			New: func(Deps) []Tool {
				return NewTodoList().Tools()
			},
		},
		Toolset{
			Name:        "http_request",
			Description: "HTTP GET/POST through the retrying client",
			New: func(deps Deps) []Tool {
				return []Tool{NewHTTPTool(deps.HTTPClient)}
			},
		},
	)
}

// Has reports whether name is a known toolset.
func (c *Catalog) Has(name string) bool {
	_, ok := c.toolsets[name]
	return ok
}

// Toolsets returns all toolsets sorted by name.
func (c *Catalog) Toolsets() []Toolset {
	result := make([]Toolset, 0, len(c.toolsets))
	for _, ts := range c.toolsets {
		result = append(result, ts)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// Tools creates fresh instances of the named toolsets, in order.
func (c *Catalog) Tools(names []string, deps Deps) ([]Tool, error) {
	var result []Tool
	for _, name := range names {
		ts, ok := c.toolsets[name]
		if !ok {
			return nil, fmt.Errorf("unknown toolset %q", name)
		}
		result = append(result, ts.New(deps)...)
	}
	return result, nil
}

// Build creates a registry with fresh instances of the named toolsets.
func (c *Catalog) Build(names []string, deps Deps) (*Registry, error) {
	toolList, err := c.Tools(names, deps)
	if err != nil {
		return nil, err
	}
	registry := NewRegistry()
	for _, tool := range toolList {
		if err := registry.Register(tool); err != nil {
			return nil, err
		}
	}
	return registry, nil
}
