package review

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Rules is a rules pack loaded from --rules or the rules_file config key.
type Rules struct {
	Focus    []string        `json:"focus,omitempty" yaml:"focus,omitempty"`
	Ignore   []string        `json:"ignore,omitempty" yaml:"ignore,omitempty"`
	Required []RequiredCheck `json:"required,omitempty" yaml:"required,omitempty"`
}

// RequiredCheck is a policy check that should always be evaluated.
type RequiredCheck struct {
	ID   string `json:"id" yaml:"id"`
	Text string `json:"text" yaml:"text"`
}

// LoadRules loads a rules file from disk. YAML is used for .yaml and .yml
// files, JSON otherwise. Returns nil Rules and nil error if path is empty.
func LoadRules(path string) (*Rules, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rules file: %w", err)
	}
	var rules Rules
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &rules)
	default:
		err = json.Unmarshal(data, &rules)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing rules file %s: %w", path, err)
	}
	for i, req := range rules.Required {
		if strings.TrimSpace(req.Text) == "" {
			return nil, fmt.Errorf("parsing rules file %s: required check %d has no text", path, i+1)
		}
	}
	return &rules, nil
}

// BuildRulesPromptSection returns additional prompt instructions derived from rules.
func BuildRulesPromptSection(rules *Rules) string {
	if rules == nil {
		return ""
	}

	var b strings.Builder

	if len(rules.Focus) > 0 {
		fmt.Fprintf(&b, "\nFocus areas: %s. Prioritize findings in these areas.\n",
			strings.Join(rules.Focus, ", "))
	}

	if len(rules.Ignore) > 0 {
		fmt.Fprintf(&b, "\nDo not report on: %s.\n", strings.Join(rules.Ignore, ", "))
	}

	if len(rules.Required) > 0 {
		b.WriteString("\nRequired checks (always evaluate these):\n")
		for _, req := range rules.Required {
			if req.ID == "" {
				fmt.Fprintf(&b, "- %s\n", req.Text)
				continue
			}
			fmt.Fprintf(&b, "- [%s] %s\n", req.ID, req.Text)
		}
	}

	return b.String()
}
