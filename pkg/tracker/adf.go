package tracker

import "strings"

// blockNodes are ADF node types that terminate a line when flattened.
var blockNodes = map[string]bool{
	"paragraph": true,
	"heading":   true,
	"listItem":  true,
}

// FlattenDescription normalizes an issue description that may arrive either
// as plain text or as a nested structured document (Atlassian document
// format). Structured input is flattened by concatenating textual leaves,
// inserting a newline at paragraph, heading and list-item boundaries, and
// collapsing runs of three or more blank lines.
func FlattenDescription(raw any) string {
	switch v := raw.(type) {
	case nil:
		return ""
	case string:
		return collapseBlankRuns(v)
	case map[string]any:
		var b strings.Builder
		flattenNode(v, &b)
		return collapseBlankRuns(strings.TrimSpace(b.String()))
	default:
		return ""
	}
}

func flattenNode(node map[string]any, b *strings.Builder) {
	if text, ok := node["text"].(string); ok {
		b.WriteString(text)
	}
	if content, ok := node["content"].([]any); ok {
		for _, child := range content {
			if m, ok := child.(map[string]any); ok {
				flattenNode(m, b)
			}
		}
	}
	if typ, ok := node["type"].(string); ok && blockNodes[typ] {
		b.WriteString("\n")
	}
}

func collapseBlankRuns(s string) string {
	for strings.Contains(s, "\n\n\n") {
		s = strings.ReplaceAll(s, "\n\n\n", "\n\n")
	}
	return s
}
