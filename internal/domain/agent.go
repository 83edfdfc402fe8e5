package domain

import "time"

// DefaultModel is used when an agent record does not pin one.
const DefaultModel = "openai/gpt-4o-mini"

// BootstrapAgentName is the meta-agent created on first run. It can create
// other agents and is protected from deletion.
const BootstrapAgentName = "agent-builder"

// AgentBuilderSystemPrompt is the base prompt of the bootstrap agent.
const AgentBuilderSystemPrompt = `You are an expert agent designer. You help users:

1. Design new agents by understanding their needs
2. Create agent JSON definitions with appropriate capabilities
3. Generate code scaffolds for agents
4. Refine and improve existing agents

When creating agents, use minimal capabilities by default. Only add capabilities
the agent truly needs.

Available capabilities:
- agent-creation: Create and modify other agents
- file-operations: Read/write files
- code-execution: Run Python/shell commands
- web-access: Search and fetch web content

Most agents should start with NO capabilities and just use the language model for
conversation. Only grant capabilities when the agent's purpose specifically requires them.

When a user asks you to create an agent, use the create_agent tool to write the agent
JSON file. Be thoughtful about which capabilities to grant.`

// AgentConfig holds the per-agent runtime configuration.
type AgentConfig struct {
	Model           string  `json:"model"`
	Temperature     float64 `json:"temperature"`
	PreserveHistory bool    `json:"preserve_history"`
}

// AgentRecord is a self-contained agent definition.
//
// Agents are minimal by default with no capabilities. Capabilities must be
// explicitly granted to enable file operations, code execution, web access, etc.
type AgentRecord struct {
	Name         string            `json:"name"`
	Description  string            `json:"description"`
	Version      string            `json:"version"`
	Created      time.Time         `json:"created"`
	LastUsed     time.Time         `json:"last_used"`
	Capabilities []string          `json:"capabilities"`
	SystemPrompt string            `json:"system_prompt"`
	Config       AgentConfig       `json:"config"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// NewAgentRecord creates an agent with default config.
func NewAgentRecord(name, description string, capabilities []string, systemPrompt string) *AgentRecord {
	now := time.Now()
	if capabilities == nil {
		capabilities = []string{}
	}
	return &AgentRecord{
		Name:         name,
		Description:  description,
		Version:      "1.0",
		Created:      now,
		LastUsed:     now,
		Capabilities: capabilities,
		SystemPrompt: systemPrompt,
		Config: AgentConfig{
			Model:           DefaultModel,
			Temperature:     0.7,
			PreserveHistory: true,
		},
	}
}

// AgentStore persists agent definitions and per-agent conversation history.
type AgentStore interface {
	Load(name string) (*AgentRecord, error)
	Save(agent *AgentRecord) error
	Delete(name string) error
	List() ([]string, error)
	Exists(name string) bool

	LastAgent() (string, error)
	SetLastAgent(name string) error

	LoadHistory(name string) ([]HistoryEntry, error)
	SaveHistory(name string, entries []HistoryEntry) error
}
