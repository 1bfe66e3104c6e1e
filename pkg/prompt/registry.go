// Package prompt holds the named prompt templates used by the agents.
// Templates are read-only at runtime; substitution is plain {{name}}
// replacement so a missing variable stays visible in the rendered output.
package prompt

import (
	"fmt"
	"strings"
)

// Registry resolves template names to their text and renders them.
type Registry struct {
	templates map[string]string
}

// NewRegistry returns a registry preloaded with the builtin templates.
func NewRegistry() *Registry {
	return &Registry{templates: builtinTemplates()}
}

// Format renders the named template, substituting {{key}} placeholders.
// An unknown template name is an error; a missing variable is left as
// literal text so a stale prompt is detectable in model output.
func (r *Registry) Format(name string, vars map[string]string) (string, error) {
	tmpl, ok := r.templates[name]
	if !ok {
		return "", fmt.Errorf("unknown prompt template %q", name)
	}
	for key, value := range vars {
		tmpl = strings.ReplaceAll(tmpl, "{{"+key+"}}", value)
	}
	return tmpl, nil
}

// Names returns the registered template names, unordered.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.templates))
	for name := range r.templates {
		names = append(names, name)
	}
	return names
}
