package steps

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var defaultPromptsYAML []byte

type PromptMessages struct {
	EmptyKnowledgeBase string `yaml:"empty_knowledge_base"`
	NoMatch            string `yaml:"no_match"`
	GenerationFailed   string `yaml:"generation_failed"`
	NotInContext       string `yaml:"not_in_context"`
}

type PromptTemplates struct {
	ChatSystem        string `yaml:"chat_system"`
	ProjectChatSystem string `yaml:"project_chat_system"`
	AgentSystem       string `yaml:"agent_system"`
	ClusterNameSystem string `yaml:"cluster_name_system"`
	ClusterNameUser   string `yaml:"cluster_name_user"`
}

// Prompts holds model instructions and the fixed user-facing messages.
type Prompts struct {
	Version  int             `yaml:"version"`
	Messages PromptMessages  `yaml:"messages"`
	Prompts  PromptTemplates `yaml:"prompts"`
}

var (
	defaultPromptsOnce sync.Once
	defaultPrompts     *Prompts
)

// DefaultPrompts returns the embedded catalog.
func DefaultPrompts() *Prompts {
	defaultPromptsOnce.Do(func() {
		p, err := parsePrompts(defaultPromptsYAML)
		if err != nil {
			panic(fmt.Sprintf("embedded prompts.yaml: %v", err))
		}
		defaultPrompts = p
	})
	return defaultPrompts
}

// LoadPrompts overlays the YAML file at path onto the embedded catalog. Fields
// missing from the file keep their defaults. An empty path returns the defaults.
func LoadPrompts(path string) (*Prompts, error) {
	base := *DefaultPrompts()
	path = strings.TrimSpace(path)
	if path == "" {
		return &base, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompts %q: %w", path, err)
	}
	var override Prompts
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, fmt.Errorf("parse prompts %q: %w", path, err)
	}
	mergeString(&base.Messages.EmptyKnowledgeBase, override.Messages.EmptyKnowledgeBase)
	mergeString(&base.Messages.NoMatch, override.Messages.NoMatch)
	mergeString(&base.Messages.GenerationFailed, override.Messages.GenerationFailed)
	mergeString(&base.Messages.NotInContext, override.Messages.NotInContext)
	mergeString(&base.Prompts.ChatSystem, override.Prompts.ChatSystem)
	mergeString(&base.Prompts.ProjectChatSystem, override.Prompts.ProjectChatSystem)
	mergeString(&base.Prompts.AgentSystem, override.Prompts.AgentSystem)
	mergeString(&base.Prompts.ClusterNameSystem, override.Prompts.ClusterNameSystem)
	mergeString(&base.Prompts.ClusterNameUser, override.Prompts.ClusterNameUser)
	if override.Version > 0 {
		base.Version = override.Version
	}
	return &base, nil
}

func parsePrompts(data []byte) (*Prompts, error) {
	var p Prompts
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	required := map[string]string{
		"messages.empty_knowledge_base": p.Messages.EmptyKnowledgeBase,
		"messages.no_match":             p.Messages.NoMatch,
		"messages.generation_failed":    p.Messages.GenerationFailed,
		"messages.not_in_context":       p.Messages.NotInContext,
		"prompts.chat_system":           p.Prompts.ChatSystem,
		"prompts.project_chat_system":   p.Prompts.ProjectChatSystem,
		"prompts.agent_system":          p.Prompts.AgentSystem,
		"prompts.cluster_name_system":   p.Prompts.ClusterNameSystem,
		"prompts.cluster_name_user":     p.Prompts.ClusterNameUser,
	}
	for key, val := range required {
		if strings.TrimSpace(val) == "" {
			return nil, fmt.Errorf("missing %s", key)
		}
	}
	return &p, nil
}

func mergeString(dst *string, val string) {
	if strings.TrimSpace(val) != "" {
		*dst = val
	}
}

// render substitutes {{key}} placeholders.
func render(tmpl string, vars map[string]string) string {
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{{"+k+"}}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

func promptsOrDefault(p *Prompts) *Prompts {
	if p == nil {
		return DefaultPrompts()
	}
	return p
}
