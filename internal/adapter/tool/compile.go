package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"agentforge/internal/domain"
	"agentforge/internal/infra/tracer"
)

// Parameter types accepted by the schema compiler. These are JSON Schema
// primitive type names; anything else is a programming error caught at
// startup.
const (
	TypeString  = "string"
	TypeInteger = "integer"
	TypeNumber  = "number"
	TypeBoolean = "boolean"
	TypeObject  = "object"
	TypeArray   = "array"
)

var schemaTypes = map[string]bool{
	TypeString:  true,
	TypeInteger: true,
	TypeNumber:  true,
	TypeBoolean: true,
	TypeObject:  true,
	TypeArray:   true,
}

// ParamSpec declares one parameter of a tool. Parameters whose name starts
// with an underscore are hidden: they never appear in the published schema
// and are injected from the Injectables table at call time.
type ParamSpec struct {
	Name        string
	Type        string
	Description string
	Required    bool
	// Items is the element type for array parameters. Defaults to string.
	Items string
}

// Args holds a tool call's parsed arguments with typed accessors.
type Args map[string]any

// String returns the named argument as a string, or "" if absent.
func (a Args) String(name string) string {
	v, _ := a[name].(string)
	return v
}

// StringOr returns the named argument as a string, or def if absent or empty.
func (a Args) StringOr(name, def string) string {
	if v, ok := a[name].(string); ok && v != "" {
		return v
	}
	return def
}

// Int returns the named argument as an int, or def if absent.
// JSON numbers decode as float64, so both forms are accepted.
func (a Args) Int(name string, def int) int {
	switch v := a[name].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return def
}

// Bool returns the named argument as a bool, or def if absent.
func (a Args) Bool(name string, def bool) bool {
	if v, ok := a[name].(bool); ok {
		return v
	}
	return def
}

// Value returns the raw argument value, or nil if absent.
func (a Args) Value(name string) any { return a[name] }

// Handler executes a tool call. The returned string is the result fed back
// to the model; expected failures are reported as "Error: ..." strings, a
// non-nil error marks an unexpected failure.
type Handler func(ctx context.Context, args Args) (string, error)

// Descriptor declares a tool: its name, description, parameters, and handler.
// The schema compiler turns the parameter list into the JSON schema published
// to the model.
type Descriptor struct {
	Name        string
	Description string
	Params      []ParamSpec
	Handler     Handler
}

// Injectables supplies values for hidden parameters, keyed by parameter name.
type Injectables map[string]any

// CompileSchema builds the JSON schema for a descriptor's visible parameters.
// Hidden parameters are excluded. An unsupported parameter type is a fatal
// configuration error.
func CompileSchema(d Descriptor) (json.RawMessage, error) {
	props := make(map[string]any, len(d.Params))
	var required []string

	for _, p := range d.Params {
		if strings.HasPrefix(p.Name, "_") {
			continue
		}
		if !schemaTypes[p.Type] {
			return nil, domain.NewDomainError("CompileSchema", domain.ErrConfigInvalid,
				fmt.Sprintf("tool %q: parameter %q has unsupported type %q", d.Name, p.Name, p.Type))
		}

		prop := map[string]any{"type": p.Type}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if p.Type == TypeArray {
			items := p.Items
			if items == "" {
				items = TypeString
			}
			if !schemaTypes[items] {
				return nil, domain.NewDomainError("CompileSchema", domain.ErrConfigInvalid,
					fmt.Sprintf("tool %q: parameter %q has unsupported item type %q", d.Name, p.Name, items))
			}
			prop["items"] = map[string]any{"type": items}
		}
		props[p.Name] = prop

		if p.Required {
			required = append(required, p.Name)
		}
	}
	sort.Strings(required)

	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}

	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("marshal schema for %q: %w", d.Name, err)
	}
	return raw, nil
}

// descriptorTool adapts a Descriptor into a domain.Tool. Execute follows the
// standard pipeline: parse params, start trace span, inject hidden values,
// run the handler, format the result.
type descriptorTool struct {
	desc   Descriptor
	schema json.RawMessage
	hidden []string
	inj    Injectables
	logger *slog.Logger
}

// NewDescriptorTool compiles a descriptor's schema and binds its hidden
// parameters to the injectables table. A hidden parameter with no matching
// injectable is a fatal configuration error.
func NewDescriptorTool(d Descriptor, inj Injectables, logger *slog.Logger) (domain.Tool, error) {
	schema, err := CompileSchema(d)
	if err != nil {
		return nil, err
	}

	var hidden []string
	for _, p := range d.Params {
		if !strings.HasPrefix(p.Name, "_") {
			continue
		}
		if _, ok := inj[p.Name]; !ok {
			return nil, domain.NewDomainError("NewDescriptorTool", domain.ErrConfigInvalid,
				fmt.Sprintf("tool %q: no injectable bound for hidden parameter %q", d.Name, p.Name))
		}
		hidden = append(hidden, p.Name)
	}

	return &descriptorTool{
		desc:   d,
		schema: schema,
		hidden: hidden,
		inj:    inj,
		logger: logger,
	}, nil
}

func (t *descriptorTool) Name() string        { return t.desc.Name }
func (t *descriptorTool) Description() string { return t.desc.Description }

func (t *descriptorTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.desc.Name,
		Description: t.desc.Description,
		Parameters:  t.schema,
	}
}

func (t *descriptorTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	ctx, span := tracer.StartSpan(ctx, "tool."+t.desc.Name,
		trace.WithAttributes(tracer.StringAttr("tool.name", t.desc.Name)),
	)
	defer span.End()

	args := Args{}
	if len(params) > 0 {
		if err := json.Unmarshal(params, (*map[string]any)(&args)); err != nil {
			tracer.RecordError(span, err)
			return &domain.ToolResult{IsError: true, Content: fmt.Sprintf("invalid params: %v", err)}, nil
		}
	}
	// Hidden values always come from the injectables table, never the model.
	for _, name := range t.hidden {
		args[name] = t.inj[name]
	}

	content, err := t.desc.Handler(ctx, args)
	if err != nil {
		tracer.RecordError(span, err)
		t.logger.Warn("tool failed", "tool", t.desc.Name, "error", err)
		return &domain.ToolResult{IsError: true, Content: err.Error()}, nil
	}

	// Expected failures come back as "Error: ..." result strings.
	isErr := strings.HasPrefix(content, "Error")
	if isErr {
		tracer.RecordError(span, fmt.Errorf("%s", content))
	} else {
		tracer.SetOK(span)
	}
	return &domain.ToolResult{Content: content, IsError: isErr}, nil
}
