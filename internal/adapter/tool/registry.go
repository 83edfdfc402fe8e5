package tool

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"agentforge/internal/domain"
)

// Registry holds named tools. Schemas returns entries in registration order
// so the tool list presented to the model is stable across rounds.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]domain.Tool
	order  []string
	logger *slog.Logger
}

// NewRegistry creates an empty tool registry.
// If logger is non-nil, tools are wrapped with schema validation on Register.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		tools:  make(map[string]domain.Tool),
		logger: logger,
	}
}

// Register adds a tool. Returns an error if the name is already registered
// or the tool's schema fails to compile; both are startup-time bugs, so
// callers treat a Register failure as fatal.
func (r *Registry) Register(t domain.Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := t.Name()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %q already registered", name)
	}

	if r.logger != nil {
		wrapped, err := WithSchemaValidation(t)
		if err != nil {
			return fmt.Errorf("schema for tool %q: %w", name, err)
		}
		t = wrapped
	}

	r.tools[name] = t
	r.order = append(r.order, name)
	return nil
}

// RegisterDescriptors compiles and registers a set of tool descriptors
// sharing one injectables table.
func (r *Registry) RegisterDescriptors(descs []Descriptor, inj Injectables, logger *slog.Logger) error {
	for _, d := range descs {
		t, err := NewDescriptorTool(d, inj, logger)
		if err != nil {
			return err
		}
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) (domain.Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[name]
	if !ok {
		return nil, domain.NewDomainError("Registry.Get", domain.ErrToolNotFound, name)
	}
	return t, nil
}

// List returns all registered tools sorted by name.
func (r *Registry) List() []domain.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.order))
	copy(names, r.order)
	sort.Strings(names)

	tools := make([]domain.Tool, 0, len(names))
	for _, name := range names {
		tools = append(tools, r.tools[name])
	}
	return tools
}

// Schemas returns all tool schemas for LLM function-calling, in registration
// order.
func (r *Registry) Schemas() []domain.ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	schemas := make([]domain.ToolSchema, 0, len(r.order))
	for _, name := range r.order {
		schemas = append(schemas, r.tools[name].Schema())
	}
	return schemas
}
