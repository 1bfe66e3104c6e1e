package config

import (
	"fmt"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Agent names recognized by the LLM configuration. The rebuilder and the
// quality scan run on the developer's model.
const (
	AgentPlanner   = "planner"
	AgentAssembler = "assembler"
	AgentDeveloper = "developer"
	AgentReviewer  = "reviewer"
)

// AgentLLMConfig holds one agent's model identity and credentials.
type AgentLLMConfig struct {
	Model       string  `yaml:"model"`
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

// AgentsConfig maps agent name to its LLM configuration. Immutable after
// Initialize; safe for concurrent reads.
type AgentsConfig struct {
	Agents map[string]AgentLLMConfig `yaml:"agents"`
}

// builtinAgentsYAML is the default agent configuration. Credentials come
// from the environment via {{.VAR}} expansion.
const builtinAgentsYAML = `
agents:
  planner:
    model: "{{.PLANNER_MODEL}}"
    api_key: "{{.PLANNER_KEY}}"
    base_url: "{{.PLANNER_URL}}"
    max_tokens: 4096
    temperature: 0.2
  assembler:
    model: "{{.ASSEMBLER_MODEL}}"
    api_key: "{{.ASSEMBLER_KEY}}"
    base_url: "{{.ASSEMBLER_URL}}"
    max_tokens: 8192
    temperature: 0.1
  developer:
    model: "{{.DEVELOPER_MODEL}}"
    api_key: "{{.DEVELOPER_KEY}}"
    base_url: "{{.DEVELOPER_URL}}"
    max_tokens: 8192
    temperature: 0.2
  reviewer:
    model: "{{.REVIEWER_MODEL}}"
    api_key: "{{.REVIEWER_KEY}}"
    base_url: "{{.REVIEWER_URL}}"
    max_tokens: 4096
    temperature: 0.0
`

// LoadAgentsConfig parses the builtin agent configuration, merges an
// optional user overlay on top, and expands {{.VAR}} environment
// references in both.
func LoadAgentsConfig(userYAML []byte) (*AgentsConfig, error) {
	base := &AgentsConfig{}
	if err := yaml.Unmarshal(ExpandEnv([]byte(builtinAgentsYAML)), base); err != nil {
		return nil, fmt.Errorf("failed to parse builtin agents config: %w", err)
	}

	if len(userYAML) > 0 {
		overlay := &AgentsConfig{}
		if err := yaml.Unmarshal(ExpandEnv(userYAML), overlay); err != nil {
			return nil, fmt.Errorf("failed to parse user agents config: %w", err)
		}
		if err := mergo.Merge(base, overlay, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge agents config: %w", err)
		}
	}

	for _, name := range []string{AgentPlanner, AgentAssembler, AgentDeveloper, AgentReviewer} {
		if _, ok := base.Agents[name]; !ok {
			return nil, fmt.Errorf("agents config missing agent %q", name)
		}
	}
	return base, nil
}

// ForAgent returns the configuration for a logical agent name. Unknown
// names fall back to the developer's configuration so auxiliary callers
// (rebuilder, quality scan) share its model.
func (c *AgentsConfig) ForAgent(name string) AgentLLMConfig {
	if cfg, ok := c.Agents[name]; ok {
		return cfg
	}
	return c.Agents[AgentDeveloper]
}
