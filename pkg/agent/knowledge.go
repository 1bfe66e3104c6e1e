package agent

import "strings"

// KnowledgeBase is the read-only registry of coding standards and security
// guidelines consulted by the reviewer. Missing entries fall back to
// general best practice without error.
type KnowledgeBase struct {
	security  string
	standards map[string]string
}

const generalBestPractice = "Apply general software engineering best practice: " +
	"clear naming, small functions, explicit error handling, no dead code, " +
	"input validation at trust boundaries."

const defaultSecurityGuidelines = `Never embed secrets or credentials in source.
Validate and sanitize all external input.
Use parameterized queries; never build SQL by string concatenation.
Avoid eval/exec on untrusted data.
Handle errors without leaking internal details to callers.`

// NewKnowledgeBase returns the builtin registry.
func NewKnowledgeBase() *KnowledgeBase {
	return &KnowledgeBase{
		security: defaultSecurityGuidelines,
		standards: map[string]string{
			"python": "Follow PEP 8: snake_case names, 4-space indentation, docstrings " +
				"on public functions, explicit imports, no mutable default arguments.",
			"javascript": "Use const/let over var, strict equality, modules over globals, " +
				"and consistent semicolon usage.",
			"go": "Follow Effective Go: gofmt formatting, error values checked at every " +
				"call site, exported identifiers documented.",
			"html": "Use semantic elements, quote attribute values, declare the doctype " +
				"and language.",
			"css": "Prefer classes over ids for styling, group related rules, avoid " +
				"!important.",
		},
	}
}

// SecurityGuidelines returns the security rules for the review prompt.
func (k *KnowledgeBase) SecurityGuidelines() string {
	return k.security
}

// StandardsFor returns the coding standards for the given file types,
// falling back to general best practice for unknown types.
func (k *KnowledgeBase) StandardsFor(fileTypes []string) string {
	var sections []string
	seen := map[string]bool{}
	for _, t := range fileTypes {
		key := strings.ToLower(strings.TrimSpace(t))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		if rules, ok := k.standards[key]; ok {
			sections = append(sections, rules)
		}
	}
	if len(sections) == 0 {
		return generalBestPractice
	}
	return strings.Join(sections, "\n")
}
