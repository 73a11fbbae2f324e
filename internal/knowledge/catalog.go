// Package knowledge loads the catalog of system preambles and opt-in knowledge
// contexts that conversations fold into their system message.
package knowledge

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrUnknownContext is returned when a requested context is not in the catalog.
var ErrUnknownContext = errors.New("knowledge: unknown context")

// DefaultBaseSystemMessage is used when the catalog does not set one.
const DefaultBaseSystemMessage = "You are a helpful assistant for our team. Answer concisely and say so when you do not know something."

// Context is a named slice of team knowledge a user can opt into.
type Context struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description,omitempty"`
	Text        string `yaml:"text" json:"-"`
}

type catalogFile struct {
	BaseSystemMessage string    `yaml:"base_system_message"`
	Contexts          []Context `yaml:"contexts"`
}

// Catalog is the loaded knowledge catalog. It is read-only after loading.
type Catalog struct {
	base     string
	contexts map[string]Context
	order    []string
}

// Load reads a YAML catalog from path.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read knowledge catalog %s: %w", path, err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse knowledge catalog %s: %w", path, err)
	}
	log.Printf("[Knowledge] Loaded %d context(s) from %s", len(c.order), path)
	return c, nil
}

// Parse builds a catalog from YAML bytes. Context names must be unique and non-empty.
func Parse(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}

	c := &Catalog{
		base:     strings.TrimSpace(file.BaseSystemMessage),
		contexts: make(map[string]Context, len(file.Contexts)),
	}
	if c.base == "" {
		c.base = DefaultBaseSystemMessage
	}
	for i, ctx := range file.Contexts {
		name := strings.TrimSpace(ctx.Name)
		if name == "" {
			return nil, fmt.Errorf("context #%d has no name", i+1)
		}
		if _, dup := c.contexts[name]; dup {
			return nil, fmt.Errorf("context %q is defined twice", name)
		}
		ctx.Name = name
		c.contexts[name] = ctx
		c.order = append(c.order, name)
	}
	return c, nil
}

// Empty returns a catalog with the default preamble and no contexts.
func Empty() *Catalog {
	return &Catalog{base: DefaultBaseSystemMessage, contexts: map[string]Context{}}
}

// BaseSystemMessage returns the preamble every conversation starts with.
func (c *Catalog) BaseSystemMessage() string {
	return c.base
}

// Contexts lists the contexts in catalog order.
func (c *Catalog) Contexts() []Context {
	out := make([]Context, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.contexts[name])
	}
	return out
}

// Has reports whether name is a known context.
func (c *Catalog) Has(name string) bool {
	_, ok := c.contexts[name]
	return ok
}

// AggregateContexts renders the named contexts, in request order and each once,
// followed by the free-text user context. It returns an empty string when both
// are empty.
func (c *Catalog) AggregateContexts(names []string, freeText string) (string, error) {
	var parts []string
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true
		ctx, ok := c.contexts[name]
		if !ok {
			return "", fmt.Errorf("%w: %s", ErrUnknownContext, name)
		}
		title := ctx.Description
		if title == "" {
			title = ctx.Name
		}
		parts = append(parts, fmt.Sprintf("## %s\n%s", title, strings.TrimSpace(ctx.Text)))
	}
	if free := strings.TrimSpace(freeText); free != "" {
		parts = append(parts, "Additional context from the user:\n"+free)
	}
	return strings.Join(parts, "\n\n"), nil
}
