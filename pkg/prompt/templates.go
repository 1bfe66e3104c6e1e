package prompt

// Template names used by the agents.
const (
	PlannerMethod        = "planner.method"
	PlannerLinear        = "planner.linear"
	PlannerGenerate      = "planner.generate"
	PlannerScore         = "planner.score"
	PlannerMerge         = "planner.merge"
	AssemblerDocument    = "assembler.document"
	DeveloperFile        = "developer.file"
	DeveloperCorrection  = "developer.correction"
	ReviewerLint         = "reviewer.lint"
	ReviewerCompleteness = "reviewer.completeness"
	ReviewerSecurity     = "reviewer.security"
	ReviewerStandards    = "reviewer.standards"
)

func builtinTemplates() map[string]string {
	return map[string]string{
		PlannerMethod:        plannerMethodTemplate,
		PlannerLinear:        plannerLinearTemplate,
		PlannerGenerate:      plannerGenerateTemplate,
		PlannerScore:         plannerScoreTemplate,
		PlannerMerge:         plannerMergeTemplate,
		AssemblerDocument:    assemblerDocumentTemplate,
		DeveloperFile:        developerFileTemplate,
		DeveloperCorrection:  developerCorrectionTemplate,
		ReviewerLint:         reviewerLintTemplate,
		ReviewerCompleteness: reviewerCompletenessTemplate,
		ReviewerSecurity:     reviewerSecurityTemplate,
		ReviewerStandards:    reviewerStandardsTemplate,
	}
}

const plannerMethodTemplate = `You are a planning strategist. Classify the following issue by the planning
method it needs.

Issue title: {{title}}
Issue description:
{{description}}

Answer with a single JSON object:
{"method": "linear" | "graph", "reasoning": "<one sentence>"}

Use "linear" for straightforward, single-component work. Use "graph" for
multi-component or interdependent work.`

const plannerLinearTemplate = `You are a software planning agent. Decompose the issue below into an ordered
list of concrete implementation subtasks.

Issue title: {{title}}
Issue description:
{{description}}

Respond with JSON only:
{"subtasks": [{"id": 1, "description": "...", "priority": 1,
"requirements_covered": [0], "reasoning": "..."}]}

Priorities are integers 1 (highest) to 5. requirements_covered lists the
indices of the issue requirements each subtask addresses. Keep the list
between 2 and 7 subtasks.`

const plannerGenerateTemplate = `You are a software planning agent using graph-of-thought decomposition.
Generate the subtask nodes for the issue below. If ordering between
subtasks matters beyond their id order, include explicit edges.

Issue title: {{title}}
Issue description:
{{description}}

Respond with JSON only:
{"subtasks": [{"id": 1, "description": "...", "priority": 1,
"requirements_covered": [0], "reasoning": "..."}],
"edges": [{"from": 1, "to": 2}]}

The "edges" field is optional. Generate between 3 and 10 subtasks.`

const plannerScoreTemplate = `You are a planning critic. Score every subtask below for how well it
advances the issue. Score each on a 0-10 scale.

Issue title: {{title}}

Subtasks:
{{subtasks}}

Respond with JSON only, one entry per subtask id:
[{"id": 1, "score": 8.5, "reasoning": "...", "requirements_covered": [0]}]`

const plannerMergeTemplate = `You are a planning consolidator. Merge the scored subtasks below into a
smaller ordered list of main subtasks. Each merged subtask must list the
source subtask ids it absorbs in "covered_subtasks".

Issue title: {{title}}

Scored subtasks:
{{subtasks}}

Respond with JSON only:
{"subtasks": [{"id": 1, "description": "...", "priority": 1,
"covered_subtasks": [1, 3], "reasoning": "..."}]}`

const assemblerDocumentTemplate = `You are a deployment architect. Build a deployment document for the issue
below from its approved subtasks.

Issue key: {{issue_key}}
Issue title: {{title}}
Issue description:
{{description}}

Approved subtasks:
{{subtasks}}

Respond with JSON only, exactly this shape:
{
  "metadata": {"issue_key": "{{issue_key}}", "version": "1.0", "timestamp": "{{timestamp}}"},
  "project_overview": {"title": "...", "description": "...", "project_type": "...", "architecture": "..."},
  "implementation_plan": [{"phase": "...", "tasks": ["..."]}],
  "file_structure": {"files": [{"filename": "...", "type": "...", "description": "..."}], "file_types": ["..."]},
  "technical_specifications": {"<filename>": "<spec>"},
  "deployment_instructions": ["..."]
}

Every filename in technical_specifications must appear in
file_structure.files. List at least one file.`

const developerFileTemplate = `You are a senior developer. Write the complete content of one file.

Filename: {{filename}}
File type: {{file_type}}
File specification:
{{spec}}

Implementation plan:
{{plan}}

Full file structure:
{{file_structure}}

Related existing files (read-only context):
{{related_files}}

Output only the file content. Do not add explanations before or after the
code.`

const developerCorrectionTemplate = `You are a senior developer fixing review findings. Rewrite the file below
so that every applicable finding is resolved. Keep behavior that was not
flagged.

Filename: {{filename}}
Current content:
{{content}}

Review findings to address:
{{feedback}}

Other files in the project (read-only context):
{{other_files}}

Output only the corrected file content. Do not add explanations.`

const reviewerLintTemplate = `You are a code reviewer. The static analyzer reported the findings below
for this file set. Judge their severity and produce a 0-100 lint quality
score (100 = clean).

Findings:
{{findings}}

Respond with JSON only:
{"score": 95, "reasoning": "..."}`

const reviewerCompletenessTemplate = `You are a code reviewer checking completeness. Decide how completely the
files below implement the described project.

Project description:
{{description}}

Files:
{{files}}

Respond with JSON only:
{"score": 90, "mistakes": ["..."], "reasoning": "..."}

Score 0-100. List concrete gaps as mistakes; an empty list means complete.`

const reviewerSecurityTemplate = `You are a security reviewer. Audit the files below against these
guidelines.

Security guidelines:
{{guidelines}}

Files:
{{files}}

Respond with JSON only:
{"score": 90, "mistakes": ["..."], "reasoning": "..."}

Score 0-100. List concrete vulnerabilities or risky patterns as mistakes.`

const reviewerStandardsTemplate = `You are a code reviewer checking coding standards. Evaluate the files
below against these language standards.

Coding standards:
{{standards}}

Files:
{{files}}

Respond with JSON only:
{"score": 90, "mistakes": ["..."], "reasoning": "..."}

Score 0-100. List concrete standards violations as mistakes.`
