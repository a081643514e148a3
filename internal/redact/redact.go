package redact

import (
	"path/filepath"
	"regexp"
	"strings"
)

// Placeholder replaces every redacted span.
const Placeholder = "[REDACTED]"

// DefaultSensitivePaths are withheld entirely unless the caller overrides them.
var DefaultSensitivePaths = []string{
	"**/.env",
	"**/.env.local",
	"**/.env.production",
	"**/*.pem",
	"**/*.key",
	"**/id_rsa",
	"**/id_ed25519",
	".git/config",
	"**/*secrets*.json",
	"**/*secrets*.yaml",
	"**/*secrets*.yml",
	"**/*secrets*.toml",
}

// secretPatterns are regex heuristics for common secret shapes.
var secretPatterns = []*regexp.Regexp{
	// key/secret assignments with a long value
	regexp.MustCompile(`(?i)(api[_-]?key|apikey|api[_-]?secret)\s*[:=]\s*["']?([A-Za-z0-9/+=_-]{20,})["']?`),
	regexp.MustCompile(`AKIA[0-9A-Z]{16}`),
	regexp.MustCompile(`(?i)(aws[_-]?secret[_-]?access[_-]?key)\s*[:=]\s*["']?([A-Za-z0-9/+=]{40})["']?`),
	regexp.MustCompile(`(?i)(secret|token|password|passwd|credential)\s*[:=]\s*["']([^"']{8,})["']`),
	regexp.MustCompile(`(?i)Bearer\s+[A-Za-z0-9._-]{20,}`),
	// JWT
	regexp.MustCompile(`eyJ[A-Za-z0-9_-]{10,}\.eyJ[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}`),
	regexp.MustCompile(`-----BEGIN\s+(RSA\s+|EC\s+|OPENSSH\s+)?PRIVATE KEY-----`),
	// connection strings with inline credentials
	regexp.MustCompile(`(?i)\b(postgres|postgresql|mysql|mongodb(\+srv)?|redis|amqp)://[^\s:/@]+:[^\s@]+@`),
	regexp.MustCompile(`gh[pousr]_[A-Za-z0-9_]{36,}`),
	regexp.MustCompile(`xox[bporas]-[A-Za-z0-9-]{10,}`),
	regexp.MustCompile(`sk-ant-[A-Za-z0-9_-]{20,}`),
	regexp.MustCompile(`sk-[A-Za-z0-9]{20,}`),
	regexp.MustCompile(`(?i)(key|secret|token)\s*[:=]\s*["']?[0-9a-f]{32,}["']?`),
}

// Policy controls what Apply removes.
type Policy struct {
	Secrets bool
	Paths   []string
}

// Outcome describes what Apply changed.
type Outcome struct {
	// Withheld is set when path policy replaced the whole content.
	Withheld bool
	// Secrets counts regex replacements.
	Secrets int
}

// Changed reports whether anything was redacted.
func (o Outcome) Changed() bool { return o.Withheld || o.Secrets > 0 }

// Apply returns content with the policy enforced for path.
func (p Policy) Apply(path, content string) (string, Outcome) {
	if MatchPath(path, p.Paths) {
		return Placeholder + " (file content withheld by path policy)\n", Outcome{Withheld: true}
	}
	if !p.Secrets {
		return content, Outcome{}
	}
	out, n := scrub(content)
	return out, Outcome{Secrets: n}
}

func scrub(text string) (string, int) {
	n := 0
	for _, pat := range secretPatterns {
		text = pat.ReplaceAllStringFunc(text, func(string) string {
			n++
			return Placeholder
		})
	}
	return text, n
}

// MatchPath reports whether path matches any pattern. Patterns are matched
// against the slash-separated path; a "**/" prefix also matches the base name
// at any depth.
func MatchPath(path string, patterns []string) bool {
	path = filepath.ToSlash(filepath.Clean(path))
	base := filepath.Base(path)
	for _, pattern := range patterns {
		if ok, err := filepath.Match(pattern, path); err == nil && ok {
			return true
		}
		if rest, found := strings.CutPrefix(pattern, "**/"); found {
			if ok, err := filepath.Match(rest, base); err == nil && ok {
				return true
			}
			continue
		}
		// anchored patterns also match as a path suffix
		if strings.HasSuffix(path, "/"+pattern) {
			return true
		}
	}
	return false
}
