package domain

// Capability bundles a named set of tools with the system prompt fragment
// that teaches the model how to use them. Capability values are immutable;
// agents reference them by name.
type Capability struct {
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	Tools          []string `json:"tools"`
	PromptAddition string   `json:"prompt_addition"`
}

// Built-in capability names.
const (
	CapAgentCreation  = "agent-creation"
	CapFileOperations = "file-operations"
	CapCodeExecution  = "code-execution"
	CapWebAccess      = "web-access"
)

// capabilities is the registry of all available capabilities.
var capabilities = map[string]Capability{
	CapAgentCreation: {
		Name:        CapAgentCreation,
		Description: "Create and modify agent definitions",
		Tools:       []string{"create_agent", "modify_agent", "delete_agent", "list_agents", "get_agent_details"},
		PromptAddition: "You can create new agents by specifying their name, description, and capabilities. " +
			"New agents should have minimal capabilities by default - only add what they truly need. " +
			"Use the create_agent tool to create new agents as JSON files.\n\n" +
			"Available capabilities to grant agents:\n" +
			"- agent-creation: Create and modify other agents\n" +
			"- file-operations: Read and write files\n" +
			"- code-execution: Execute Python and shell commands\n" +
			"- web-access: Search and fetch web content\n\n" +
			"Most agents should start with NO capabilities and just use the language model for chat.\n\n" +
			"IMPORTANT: These tools only manage agent definition files. You CANNOT switch to or run " +
			"other agents from within this chat session. If the user wants to use a different agent, " +
			"they must exit this session and start a new one with that agent.",
	},
	CapFileOperations: {
		Name:        CapFileOperations,
		Description: "Read and write files on the local system",
		Tools:       []string{"read_file", "write_file", "list_files", "delete_file"},
		PromptAddition: "You can read and write files using the file operation tools. " +
			"Always be careful when writing files - explain what you're doing and ask for confirmation " +
			"if the operation might be destructive.",
	},
	CapCodeExecution: {
		Name:        CapCodeExecution,
		Description: "Execute Python and shell commands",
		Tools:       []string{"exec_python", "exec_shell"},
		PromptAddition: "You can execute Python code and shell commands using the code execution tools. " +
			"Always explain what code will do before executing it. " +
			"Never execute destructive commands without explicit user confirmation.",
	},
	CapWebAccess: {
		Name:        CapWebAccess,
		Description: "Search and fetch web content",
		Tools:       []string{"web_search", "web_fetch"},
		PromptAddition: "You can search the web and fetch content from URLs using the web access tools. " +
			"This is useful for gathering information, researching topics, or checking documentation.",
	},
}

// CapabilityByName returns the named capability from the registry.
func CapabilityByName(name string) (Capability, bool) {
	c, ok := capabilities[name]
	return c, ok
}

// CapabilityNames returns all registered capability names in a fixed order.
func CapabilityNames() []string {
	return []string{CapAgentCreation, CapFileOperations, CapCodeExecution, CapWebAccess}
}
