package steps

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultPromptsComplete(t *testing.T) {
	p := DefaultPrompts()
	if p.Version < 1 {
		t.Fatalf("version = %d", p.Version)
	}
	for name, tmpl := range map[string]string{
		"chat":    p.Prompts.ChatSystem,
		"project": p.Prompts.ProjectChatSystem,
		"agent":   p.Prompts.AgentSystem,
	} {
		if !strings.Contains(tmpl, "{{context}}") || !strings.Contains(tmpl, "{{not_in_context}}") {
			t.Fatalf("%s prompt lacks placeholders", name)
		}
	}
	if !strings.Contains(p.Prompts.ClusterNameUser, "{{titles}}") {
		t.Fatalf("cluster prompt lacks titles placeholder")
	}
}

func TestLoadPromptsOverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	body := "version: 2\nmessages:\n  no_match: \"Nothing found.\"\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	p, err := LoadPrompts(path)
	if err != nil {
		t.Fatalf("LoadPrompts: %v", err)
	}
	if p.Version != 2 || p.Messages.NoMatch != "Nothing found." {
		t.Fatalf("override not applied: %+v", p.Messages)
	}
	if p.Messages.EmptyKnowledgeBase != DefaultPrompts().Messages.EmptyKnowledgeBase {
		t.Fatalf("missing fields should keep defaults")
	}
	if DefaultPrompts().Messages.NoMatch == "Nothing found." {
		t.Fatalf("override leaked into the defaults")
	}
}

func TestLoadPromptsErrors(t *testing.T) {
	if _, err := LoadPrompts(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
	path := filepath.Join(t.TempDir(), "bad.yaml")
	_ = os.WriteFile(path, []byte("messages: [unterminated"), 0o600)
	if _, err := LoadPrompts(path); err == nil {
		t.Fatalf("expected parse error")
	}
	p, err := LoadPrompts("  ")
	if err != nil || p.Prompts.ChatSystem == "" {
		t.Fatalf("empty path should return defaults: %v", err)
	}
}

func TestRender(t *testing.T) {
	got := render("Hi {{name}}, {{name}} from {{org}} {{unknown}}", map[string]string{"name": "Ada", "org": "Acme"})
	if got != "Hi Ada, Ada from Acme {{unknown}}" {
		t.Fatalf("got %q", got)
	}
}
