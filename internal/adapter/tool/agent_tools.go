package tool

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"agentforge/internal/domain"
)

// storeParam is the hidden parameter carrying the agent store.
const storeParam = "_store"

func storeFrom(args Args) domain.AgentStore {
	store, _ := args.Value(storeParam).(domain.AgentStore)
	return store
}

// AgentDescriptors returns the agent lifecycle tools. All of them take the
// agent store through the hidden _store parameter.
func AgentDescriptors() []Descriptor {
	return []Descriptor{
		{
			Name:        "create_agent",
			Description: "Create a new agent with a description, capabilities, and optional custom system prompt.",
			Params: []ParamSpec{
				{Name: "name", Type: TypeString, Description: "Agent name (used as filename)", Required: true},
				{Name: "description", Type: TypeString, Description: "Brief description of what the agent does", Required: true},
				{Name: "capabilities", Type: TypeArray, Description: "List of capability names to grant (default: none)"},
				{Name: "system_prompt", Type: TypeString, Description: "Custom system prompt for the agent"},
				{Name: storeParam, Type: TypeObject},
			},
			Handler: handleCreateAgent,
		},
		{
			Name:        "modify_agent",
			Description: "Modify an existing agent's description, capabilities, system prompt, or configuration.",
			Params: []ParamSpec{
				{Name: "name", Type: TypeString, Description: "Agent name to modify", Required: true},
				{Name: "description", Type: TypeString, Description: "New agent description"},
				{Name: "capabilities", Type: TypeArray, Description: "New capability list (replaces existing)"},
				{Name: "system_prompt", Type: TypeString, Description: "New system prompt"},
				{Name: "config", Type: TypeObject, Description: "Configuration updates (merged with existing)"},
				{Name: storeParam, Type: TypeObject},
			},
			Handler: handleModifyAgent,
		},
		{
			Name:        "delete_agent",
			Description: "Delete an agent.",
			Params: []ParamSpec{
				{Name: "name", Type: TypeString, Description: "Agent name to delete", Required: true},
				{Name: storeParam, Type: TypeObject},
			},
			Handler: handleDeleteAgent,
		},
		{
			Name:        "list_agents",
			Description: "List all available agents.",
			Params: []ParamSpec{
				{Name: storeParam, Type: TypeObject},
			},
			Handler: handleListAgents,
		},
		{
			Name:        "get_agent_details",
			Description: "Get detailed information about a specific agent, including capabilities and configuration.",
			Params: []ParamSpec{
				{Name: "name", Type: TypeString, Description: "Name of the agent to get details for", Required: true},
				{Name: storeParam, Type: TypeObject},
			},
			Handler: handleAgentDetails,
		},
	}
}

func handleCreateAgent(_ context.Context, args Args) (string, error) {
	store := storeFrom(args)
	name := args.String("name")

	if store.Exists(name) {
		return fmt.Sprintf("Error: Agent '%s' already exists", name), nil
	}

	caps := stringSlice(args.Value("capabilities"))
	record := domain.NewAgentRecord(name, args.String("description"), caps, args.String("system_prompt"))
	if err := store.Save(record); err != nil {
		return "", err
	}

	capsStr := "none (chat only)"
	if len(caps) > 0 {
		capsStr = strings.Join(caps, ", ")
	}
	return fmt.Sprintf("✓ Created agent '%s'\nCapabilities: %s", name, capsStr), nil
}

func handleModifyAgent(_ context.Context, args Args) (string, error) {
	store := storeFrom(args)
	name := args.String("name")

	record, err := store.Load(name)
	if err != nil {
		if errors.Is(err, domain.ErrAgentNotFound) {
			return fmt.Sprintf("Error: Agent '%s' not found", name), nil
		}
		return "", err
	}

	if v, ok := args["description"].(string); ok {
		record.Description = v
	}
	if _, ok := args["capabilities"]; ok {
		record.Capabilities = stringSlice(args.Value("capabilities"))
	}
	if v, ok := args["system_prompt"].(string); ok {
		record.SystemPrompt = v
	}
	if cfg, ok := args["config"].(map[string]any); ok {
		applyConfig(&record.Config, cfg)
	}

	if err := store.Save(record); err != nil {
		return "", err
	}
	return fmt.Sprintf("✓ Updated agent '%s'", name), nil
}

func handleDeleteAgent(_ context.Context, args Args) (string, error) {
	store := storeFrom(args)
	name := args.String("name")

	if !store.Exists(name) {
		return fmt.Sprintf("Error: Agent '%s' not found", name), nil
	}
	if name == domain.BootstrapAgentName {
		return "Error: Cannot delete the agent-builder", nil
	}

	if err := store.Delete(name); err != nil {
		return "", err
	}
	return fmt.Sprintf("✓ Deleted agent '%s'", name), nil
}

func handleListAgents(_ context.Context, args Args) (string, error) {
	store := storeFrom(args)

	names, err := store.List()
	if err != nil {
		return "", err
	}
	if len(names) == 0 {
		return "No agents found.", nil
	}
	sort.Strings(names)

	lastAgent, _ := store.LastAgent()

	lines := []string{"Available agents:"}
	for _, name := range names {
		prefix := " "
		if name == lastAgent {
			prefix = "*"
		}
		record, err := store.Load(name)
		if err != nil {
			lines = append(lines, fmt.Sprintf("%s %s", prefix, name))
			continue
		}
		caps := "[chat only]"
		if len(record.Capabilities) > 0 {
			caps = "[" + strings.Join(record.Capabilities, ", ") + "]"
		}
		lines = append(lines, fmt.Sprintf("%s %s - %s %s", prefix, name, record.Description, caps))
	}
	return strings.Join(lines, "\n"), nil
}

func handleAgentDetails(_ context.Context, args Args) (string, error) {
	store := storeFrom(args)
	name := args.String("name")

	record, err := store.Load(name)
	if err != nil {
		if errors.Is(err, domain.ErrAgentNotFound) {
			return fmt.Sprintf("Error: Agent '%s' not found", name), nil
		}
		return fmt.Sprintf("Error loading agent '%s': %v", name, err), nil
	}

	lines := []string{
		fmt.Sprintf("Agent: %s", record.Name),
		fmt.Sprintf("Description: %s", record.Description),
		fmt.Sprintf("Created: %s", record.Created.Format(time.RFC3339)),
		fmt.Sprintf("Last used: %s", record.LastUsed.Format(time.RFC3339)),
		fmt.Sprintf("Version: %s", record.Version),
		"",
		"Capabilities:",
	}

	if len(record.Capabilities) > 0 {
		for _, cap := range record.Capabilities {
			lines = append(lines, "  - "+cap)
		}
	} else {
		lines = append(lines, "  (none - chat only)")
	}

	lines = append(lines, "", "Configuration:")
	lines = append(lines, configLines(record.Config)...)

	if record.SystemPrompt != "" {
		preview := record.SystemPrompt
		if len(preview) > 200 {
			preview = preview[:200] + "..."
		}
		lines = append(lines, "", "System Prompt:", "  "+preview)
	}

	if len(record.Metadata) > 0 {
		lines = append(lines, "", "Metadata:")
		keys := make([]string, 0, len(record.Metadata))
		for k := range record.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			lines = append(lines, fmt.Sprintf("  %s: %s", k, record.Metadata[k]))
		}
	}

	return strings.Join(lines, "\n"), nil
}

// stringSlice converts a decoded JSON array into []string, skipping
// non-string elements.
func stringSlice(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// applyConfig merges a loosely-typed config update into an AgentConfig.
func applyConfig(cfg *domain.AgentConfig, updates map[string]any) {
	if v, ok := updates["model"].(string); ok {
		cfg.Model = v
	}
	if v, ok := updates["temperature"].(float64); ok {
		cfg.Temperature = v
	}
	if v, ok := updates["preserve_history"].(bool); ok {
		cfg.PreserveHistory = v
	}
}

// configLines formats the config fields for display.
func configLines(cfg domain.AgentConfig) []string {
	return []string{
		"  model: " + cfg.Model,
		fmt.Sprintf("  temperature: %g", cfg.Temperature),
		fmt.Sprintf("  preserve_history: %t", cfg.PreserveHistory),
	}
}
