package models

import "math"

// DimensionResult holds one review dimension's outcome.
type DimensionResult struct {
	Score     float64  `json:"score"`
	Mistakes  []string `json:"mistakes,omitempty"`
	Reasoning string   `json:"reasoning,omitempty"`
}

// ReviewResult aggregates the reviewer's dimensional analyses.
// Lint is reported but carries no weight in Overall by default.
type ReviewResult struct {
	Completeness DimensionResult `json:"completeness"`
	Security     DimensionResult `json:"security"`
	Standards    DimensionResult `json:"standards"`
	Lint         DimensionResult `json:"lint"`
	Overall      float64         `json:"overall"`
	Approved     bool            `json:"approved"`
	Mistakes     []string        `json:"mistakes,omitempty"`
	TokensUsed   int             `json:"tokens_used"`
	Iteration    int             `json:"iteration"`
}

// OverallScore computes the weighted aggregate, rounded to one decimal:
// 0.4·completeness + 0.4·security + 0.2·standards.
func OverallScore(completeness, security, standards float64) float64 {
	return Round1(0.4*completeness + 0.4*security + 0.2*standards)
}

// Round1 rounds to one decimal place.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// LintFinding is one static-analysis result from the lint port.
type LintFinding struct {
	File      string `json:"file"`
	Line      int    `json:"line"`
	Column    int    `json:"column"`
	Severity  string `json:"severity"`
	Message   string `json:"message"`
	Symbol    string `json:"symbol"`
	MessageID string `json:"message_id"`
}
