package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/reviewpilot/api/internal/model"
)

// ChatCompleter is the slice of the LLM client the analyzers need.
type ChatCompleter interface {
	ChatCompletion(ctx context.Context, system, user string) (string, error)
}

// Analyzer inspects one file's text for a single category of issue.
// Implementations never depend on each other's output.
type Analyzer interface {
	Category() model.FindingCategory
	Analyze(ctx context.Context, code, filename string) ([]model.Finding, error)
}

// focus describes what a single analyzer variant is instructed to look for.
type focus struct {
	expertise string
	subject   string
	hints     string
}

var focusTable = map[model.FindingCategory]focus{
	model.CategoryStyle: {
		expertise: "code style",
		subject:   "STYLE and FORMATTING issues",
		hints:     "long lines, indentation, spacing, naming conventions",
	},
	model.CategoryDefect: {
		expertise: "code defect detection",
		subject:   "DEFECTS and ERROR-PRONE code",
		hints:     "null pointer risks, uncaught errors, logic errors, off-by-one errors",
	},
	model.CategoryPerformance: {
		expertise: "performance optimization",
		subject:   "PERFORMANCE issues",
		hints:     "inefficient algorithms, N+1 queries, memory leaks, unnecessary loops",
	},
	model.CategoryConvention: {
		expertise: "code best practices",
		subject:   "CONVENTION and BEST PRACTICE violations",
		hints:     "repeated code, missing error handling, security issues, bad imports",
	},
}

// focusAnalyzer is the single implementation behind all four variants;
// the focus area is data, not structure.
type focusAnalyzer struct {
	llm      ChatCompleter
	category model.FindingCategory
	focus    focus
}

// New creates an analyzer for one finding category.
func New(llm ChatCompleter, category model.FindingCategory) Analyzer {
	return &focusAnalyzer{
		llm:      llm,
		category: category,
		focus:    focusTable[category],
	}
}

// DefaultAnalyzers returns the four analyzer variants in their fixed
// invocation order.
func DefaultAnalyzers(llm ChatCompleter) []Analyzer {
	analyzers := make([]Analyzer, 0, len(model.AnalysisOrder))
	for _, category := range model.AnalysisOrder {
		analyzers = append(analyzers, New(llm, category))
	}
	return analyzers
}

func (a *focusAnalyzer) Category() model.FindingCategory {
	return a.category
}

// Analyze asks the generation service for findings in this analyzer's
// focus area. The response is untrusted: the first JSON array found in
// it is parsed, and anything unusable yields an error for the caller to
// degrade to an empty result.
func (a *focusAnalyzer) Analyze(ctx context.Context, code, filename string) ([]model.Finding, error) {
	system := fmt.Sprintf("You are a %s expert. Return ONLY valid JSON, no other text.", a.focus.expertise)
	user := fmt.Sprintf(`Analyze this code file for %s only. Return JSON array.

File: %s
Code:
%s

Return ONLY this JSON format (array of objects with: line, category, description, suggestion):
[]

Look for: %s.`, a.focus.subject, filename, code, a.focus.hints)

	response, err := a.llm.ChatCompletion(ctx, system, user)
	if err != nil {
		return nil, fmt.Errorf("%s analysis failed: %w", a.category, err)
	}

	return parseFindings(response)
}

// parseFindings extracts the first JSON array from a model response and
// decodes it. Findings without a description are dropped; unknown or
// negative line numbers are normalized to 0.
func parseFindings(response string) ([]model.Finding, error) {
	start := strings.Index(response, "[")
	end := strings.LastIndex(response, "]")
	if start == -1 || end == -1 || end < start {
		return nil, fmt.Errorf("no JSON array in response")
	}

	var raw []model.Finding
	if err := json.Unmarshal([]byte(response[start:end+1]), &raw); err != nil {
		return nil, fmt.Errorf("invalid findings JSON: %w", err)
	}

	findings := make([]model.Finding, 0, len(raw))
	for _, f := range raw {
		if strings.TrimSpace(f.Description) == "" {
			continue
		}
		if f.Line < 0 {
			f.Line = 0
		}
		findings = append(findings, f)
	}
	return findings, nil
}
