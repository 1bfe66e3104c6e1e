package agent

import (
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/taskforge/taskforge/pkg/models"
)

// StoredFile is one remembered artifact with its origin issue.
type StoredFile struct {
	IssueKey  string
	Content   string
	CreatedAt time.Time
}

// ProjectMemory is the soft cache of prior generated files, inferred file
// relationships and review feedback outcomes. It is owned by one pipeline
// and guarded by its own mutex; callers only see copies.
type ProjectMemory struct {
	mu            sync.Mutex
	files         map[string]StoredFile
	relationships map[string][]string
	cumulative    []string
	resolved      []string
	issueHistory  []string
}

// NewProjectMemory returns an empty memory.
func NewProjectMemory() *ProjectMemory {
	return &ProjectMemory{
		files:         make(map[string]StoredFile),
		relationships: make(map[string][]string),
	}
}

var importPattern = regexp.MustCompile(`(?m)^\s*(?:from|import|require|include)[\s(]+['"]?([\w./-]+)`)

// AddFiles stores newly generated files, infers each file's references to
// other stored files and appends the issue to history.
func (m *ProjectMemory) AddFiles(issueKey string, files models.GeneratedFileSet) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	for name, content := range files {
		m.files[name] = StoredFile{IssueKey: issueKey, Content: content, CreatedAt: now}
	}
	for name, content := range files {
		m.relationships[name] = m.inferReferences(name, content)
	}
	m.issueHistory = append(m.issueHistory, issueKey)
}

// inferReferences matches import-like tokens against known filename stems.
// Caller holds the lock.
func (m *ProjectMemory) inferReferences(self, content string) []string {
	var refs []string
	seen := map[string]bool{}
	matches := importPattern.FindAllStringSubmatch(content, -1)
	for other := range m.files {
		if other == self {
			continue
		}
		stem := fileStem(other)
		for _, match := range matches {
			token := strings.ToLower(match[1])
			if strings.Contains(token, stem) && !seen[other] {
				seen[other] = true
				refs = append(refs, other)
			}
		}
	}
	return refs
}

// RelatedFiles returns stored files whose names share a keyword with the
// issue title, as read-only prompt context.
func (m *ProjectMemory) RelatedFiles(issueTitle string) map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()

	keywords := titleKeywords(issueTitle)
	out := make(map[string]string)
	for name, file := range m.files {
		lower := strings.ToLower(name)
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				out[name] = file.Content
				break
			}
		}
	}
	return out
}

// Relationships returns a copy of one file's inferred references.
func (m *ProjectMemory) Relationships(name string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	refs := m.relationships[name]
	out := make([]string, len(refs))
	copy(out, refs)
	return out
}

// AddMistakes merges feedback into the cumulative set, deduplicated, and
// returns the current cumulative list.
func (m *ProjectMemory) AddMistakes(feedback []string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[string]bool, len(m.cumulative))
	for _, mistake := range m.cumulative {
		seen[mistake] = true
	}
	for _, mistake := range feedback {
		if mistake != "" && !seen[mistake] {
			seen[mistake] = true
			m.cumulative = append(m.cumulative, mistake)
		}
	}
	out := make([]string, len(m.cumulative))
	copy(out, m.cumulative)
	return out
}

// ResolveMistakes moves the applied feedback items from the cumulative set
// to the resolved set.
func (m *ProjectMemory) ResolveMistakes(applied []string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	appliedSet := make(map[string]bool, len(applied))
	for _, mistake := range applied {
		appliedSet[mistake] = true
	}
	var remaining []string
	for _, mistake := range m.cumulative {
		if appliedSet[mistake] {
			m.resolved = append(m.resolved, mistake)
		} else {
			remaining = append(remaining, mistake)
		}
	}
	m.cumulative = remaining
}

// CumulativeMistakes returns a copy of the unresolved feedback.
func (m *ProjectMemory) CumulativeMistakes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.cumulative))
	copy(out, m.cumulative)
	return out
}

// ResolvedMistakes returns a copy of the resolved feedback.
func (m *ProjectMemory) ResolvedMistakes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.resolved))
	copy(out, m.resolved)
	return out
}

// IssueHistory returns the ordered issue keys seen so far.
func (m *ProjectMemory) IssueHistory() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.issueHistory))
	copy(out, m.issueHistory)
	return out
}

func fileStem(name string) string {
	base := name
	if idx := strings.LastIndexByte(base, '/'); idx >= 0 {
		base = base[idx+1:]
	}
	if idx := strings.LastIndexByte(base, '.'); idx > 0 {
		base = base[:idx]
	}
	return strings.ToLower(base)
}

func titleKeywords(title string) []string {
	fields := strings.FieldsFunc(strings.ToLower(title), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	var out []string
	for _, field := range fields {
		if len(field) > 2 {
			out = append(out, field)
		}
	}
	return out
}
