package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"agentforge/internal/domain"
)

// Compile-time interface check.
var _ domain.AgentStore = (*FileStore)(nil)

// agentNamePattern restricts agent names to filesystem-safe identifiers.
// Names become filenames, so path separators and dots are rejected outright.
var agentNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

// maxAgentNameLen bounds agent name length.
const maxAgentNameLen = 64

// FileStore persists agents and conversation history as JSON files under a
// base directory:
//
//	<base>/agents/<name>.json   agent definitions
//	<base>/history/<name>.json  per-agent conversation history
//	<base>/config.json          app state (last used agent)
type FileStore struct {
	mu         sync.Mutex
	baseDir    string
	agentsDir  string
	historyDir string
	configFile string
	logger     *slog.Logger
}

// New creates a FileStore rooted at baseDir, creating the directory layout
// if needed.
func New(baseDir string, logger *slog.Logger) (*FileStore, error) {
	s := &FileStore{
		baseDir:    baseDir,
		agentsDir:  filepath.Join(baseDir, "agents"),
		historyDir: filepath.Join(baseDir, "history"),
		configFile: filepath.Join(baseDir, "config.json"),
		logger:     logger,
	}
	for _, dir := range []string{s.agentsDir, s.historyDir} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}
	return s, nil
}

// DefaultBaseDir returns the per-user data directory (~/.agentforge).
func DefaultBaseDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".agentforge"
	}
	return filepath.Join(home, ".agentforge")
}

func validateName(name string) error {
	if name == "" || len(name) > maxAgentNameLen || !agentNamePattern.MatchString(name) {
		return domain.NewDomainError("store.validateName", domain.ErrAgentNotFound,
			fmt.Sprintf("invalid agent name %q", name))
	}
	return nil
}

// Load reads an agent definition. Returns ErrAgentNotFound if absent.
func (s *FileStore) Load(name string) (*domain.AgentRecord, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(s.agentsDir, name+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.NewDomainError("FileStore.Load", domain.ErrAgentNotFound, name)
		}
		return nil, fmt.Errorf("read agent %q: %w", name, err)
	}

	var record domain.AgentRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("parse agent %q: %w", name, err)
	}
	return &record, nil
}

// Save writes an agent definition atomically.
func (s *FileStore) Save(agent *domain.AgentRecord) error {
	if err := validateName(agent.Name); err != nil {
		return err
	}

	data, err := json.MarshalIndent(agent, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal agent %q: %w", agent.Name, err)
	}
	return s.writeAtomic(filepath.Join(s.agentsDir, agent.Name+".json"), data)
}

// Delete removes an agent definition and its history. Deleting an absent
// agent is not an error.
func (s *FileStore) Delete(name string) error {
	if err := validateName(name); err != nil {
		return err
	}

	for _, path := range []string{
		filepath.Join(s.agentsDir, name+".json"),
		filepath.Join(s.historyDir, name+".json"),
	} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("delete %q: %w", path, err)
		}
	}
	return nil
}

// List returns all agent names, sorted.
func (s *FileStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.agentsDir)
	if err != nil {
		return nil, fmt.Errorf("read agents dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		names = append(names, strings.TrimSuffix(entry.Name(), ".json"))
	}
	return names, nil
}

// Exists reports whether an agent definition file is present.
func (s *FileStore) Exists(name string) bool {
	if validateName(name) != nil {
		return false
	}
	_, err := os.Stat(filepath.Join(s.agentsDir, name+".json"))
	return err == nil
}

// appConfig is the persisted shape of config.json.
type appConfig struct {
	LastAgent string `json:"last_agent,omitempty"`
}

// LastAgent returns the name of the last used agent, or "" if none is set.
func (s *FileStore) LastAgent() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := s.readConfig()
	if err != nil {
		return "", err
	}
	return cfg.LastAgent, nil
}

// SetLastAgent records the last used agent.
func (s *FileStore) SetLastAgent(name string) error {
	if err := validateName(name); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := s.readConfig()
	if err != nil {
		return err
	}
	cfg.LastAgent = name

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return s.writeAtomic(s.configFile, data)
}

func (s *FileStore) readConfig() (appConfig, error) {
	var cfg appConfig
	data, err := os.ReadFile(s.configFile)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// LoadHistory reads an agent's persisted conversation history. A missing
// file means no history yet.
func (s *FileStore) LoadHistory(name string) ([]domain.HistoryEntry, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(s.historyDir, name+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read history %q: %w", name, err)
	}

	var entries []domain.HistoryEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		// Corrupt history should not brick the agent; start fresh.
		s.logger.Warn("discarding unreadable history", "agent", name, "error", err)
		return nil, nil
	}
	return entries, nil
}

// SaveHistory writes an agent's conversation history atomically.
func (s *FileStore) SaveHistory(name string, entries []domain.HistoryEntry) error {
	if err := validateName(name); err != nil {
		return err
	}
	if entries == nil {
		entries = []domain.HistoryEntry{}
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal history %q: %w", name, err)
	}
	return s.writeAtomic(filepath.Join(s.historyDir, name+".json"), data)
}

// Bootstrap creates the default agent-builder on first run and marks it as
// the last used agent. Idempotent: an existing agent-builder is left alone.
func (s *FileStore) Bootstrap() (*domain.AgentRecord, error) {
	if s.Exists(domain.BootstrapAgentName) {
		return s.Load(domain.BootstrapAgentName)
	}

	record := domain.NewAgentRecord(
		domain.BootstrapAgentName,
		"Meta-agent that helps design and create other agents",
		[]string{"agent-creation", "file-operations", "code-execution"},
		domain.AgentBuilderSystemPrompt,
	)
	if err := s.Save(record); err != nil {
		return nil, err
	}
	if err := s.SetLastAgent(record.Name); err != nil {
		return nil, err
	}
	if s.logger != nil {
		s.logger.Info("bootstrapped default agent", "agent", record.Name)
	}
	return record, nil
}

// writeAtomic writes data to path via a temp file and rename so readers
// never observe a partial file.
func (s *FileStore) writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename %q: %w", path, err)
	}
	return nil
}
