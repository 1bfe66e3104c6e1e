package models

// DeploymentDocument is the structured plan produced by the assembler and
// consumed by the developer. Required: Metadata, ProjectOverview,
// ImplementationPlan, FileStructure. Optional fields are tolerated as empty.
type DeploymentDocument struct {
	Metadata                Metadata           `json:"metadata"`
	ProjectOverview         ProjectOverview    `json:"project_overview"`
	ImplementationPlan      []Phase            `json:"implementation_plan"`
	FileStructure           FileStructure      `json:"file_structure"`
	TechnicalSpecifications map[string]string  `json:"technical_specifications,omitempty"`
	DeploymentInstructions  []string           `json:"deployment_instructions,omitempty"`
}

// Metadata identifies the document.
type Metadata struct {
	IssueKey  string `json:"issue_key"`
	Version   string `json:"version"`
	Timestamp string `json:"timestamp"`
}

// ProjectOverview summarizes what is being built.
type ProjectOverview struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	ProjectType  string `json:"project_type"`
	Architecture string `json:"architecture"`
}

// Phase is one ordered step of the implementation plan.
type Phase struct {
	Phase string   `json:"phase"`
	Tasks []string `json:"tasks"`
}

// FileStructure lists the files the developer must generate.
type FileStructure struct {
	Files     []FileEntry `json:"files"`
	FileTypes []string    `json:"file_types,omitempty"`
}

// FileEntry describes one file to generate.
type FileEntry struct {
	Filename    string `json:"filename"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

// GeneratedFileSet maps filename to source text. Filenames are
// case-preserved and used verbatim.
type GeneratedFileSet map[string]string

// Filenames returns the filenames in the set, unordered.
func (s GeneratedFileSet) Filenames() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	return names
}
