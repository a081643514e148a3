package review

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/alecthomas/chroma/v2/lexers"
)

// Metadata defaults applied in the Building state.
const (
	DefaultKind  = "unknown"
	DefaultFocus = "general"
)

const systemPrompt = `You are a senior code and document reviewer.

You receive a document and metadata, and must produce a structured review as a single JSON object.

Use exactly these keys:
{
  "issues": [{"title": "Short title", "summary": "What is wrong and why it matters", "lines": "12-18"}],
  "simplifications": [{"title": "Short title", "summary": "How the code could be simpler"}],
  "deferred": [{"title": "Short title", "summary": "Worth doing later, not now"}],
  "observations": ["General note"]
}

Rules:
- Each summary must be SHORT and FOCUSED (1-3 sentences max).
- Do NOT repeat the document.
- Focus on actionable insights.
- Include "lines" for issues when relevant; omit it otherwise.
- Use an empty array for a category with nothing to report.

You MUST respond with ONLY the JSON object. No markdown, no explanation, no preamble.`

// SystemPrompt returns the system prompt for a file review.
func SystemPrompt() string {
	return systemPrompt
}

// PromptInput carries everything the user prompt is built from.
type PromptInput struct {
	Filename string
	Content  string
	Kind     string
	Focus    string
	Language string
	Rules    *Rules
}

// withDefaults fills the metadata defaults.
func (in PromptInput) withDefaults() PromptInput {
	if strings.TrimSpace(in.Kind) == "" {
		in.Kind = DefaultKind
	}
	if strings.TrimSpace(in.Focus) == "" {
		in.Focus = DefaultFocus
	}
	return in
}

// BuildUserPrompt renders the metadata header, optional rules, and the
// document body.
func BuildUserPrompt(in PromptInput) string {
	in = in.withDefaults()
	var b strings.Builder

	fmt.Fprintf(&b, "**File**: %s\n", in.Filename)
	fmt.Fprintf(&b, "**Kind**: %s\n", in.Kind)
	fmt.Fprintf(&b, "**Review Focus**: %s\n", in.Focus)
	if in.Language != "" {
		fmt.Fprintf(&b, "**Language**: %s\n", in.Language)
	}

	if section := BuildRulesPromptSection(in.Rules); section != "" {
		b.WriteString(section)
	}

	b.WriteString("\n**Document Content**:\n")
	b.WriteString(in.Content)
	b.WriteString("\n\nProvide your structured review as the JSON object described above.")

	return b.String()
}

// DetectLanguage names the language of filename, or "" when unknown.
func DetectLanguage(filename string) string {
	lexer := lexers.Match(filepath.Base(filename))
	if lexer == nil {
		if ext := filepath.Ext(filename); ext != "" {
			lexer = lexers.Match("file" + ext)
		}
	}
	if lexer == nil {
		return ""
	}
	return lexer.Config().Name
}
