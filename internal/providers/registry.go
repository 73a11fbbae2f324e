package providers

import (
	"fmt"
	"log"
	"sort"
)

// Registry holds the mapping between provider names and their Client implementations.
type Registry struct {
	clients     map[string]Client
	defaultName string
}

// NewRegistry creates a new provider registry. defaultName is used when a
// request does not name a provider.
func NewRegistry(defaultName string) *Registry {
	return &Registry{
		clients:     make(map[string]Client),
		defaultName: defaultName,
	}
}

// Register adds a provider client to the registry.
func (r *Registry) Register(name string, client Client) {
	if _, exists := r.clients[name]; exists {
		log.Printf("WARN [ProviderRegistry] Provider '%s' is already registered. Overwriting.", name)
	}
	r.clients[name] = client
	log.Printf("[ProviderRegistry] Registered provider: %s", name)
}

// Get retrieves a provider client by name. An empty name resolves to the default provider.
func (r *Registry) Get(name string) (Client, error) {
	if name == "" {
		name = r.defaultName
	}
	client, exists := r.clients[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return client, nil
}

// MustGet retrieves a provider client, panicking if not found.
// Useful during initialization if a provider is expected to be present.
func (r *Registry) MustGet(name string) Client {
	client, err := r.Get(name)
	if err != nil {
		panic(fmt.Sprintf("FATAL [ProviderRegistry] %v", err))
	}
	return client
}

// Names returns the registered provider names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultName returns the provider used when none is requested.
func (r *Registry) DefaultName() string {
	return r.defaultName
}
