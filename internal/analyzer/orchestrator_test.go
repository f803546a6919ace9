package analyzer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reviewpilot/api/internal/model"
)

// stubAnalyzer returns canned findings and records the code it saw.
type stubAnalyzer struct {
	category model.FindingCategory
	findings []model.Finding
	err      error

	mu       sync.Mutex
	seenCode []string
}

func (s *stubAnalyzer) Category() model.FindingCategory { return s.category }

func (s *stubAnalyzer) Analyze(ctx context.Context, code, filename string) ([]model.Finding, error) {
	s.mu.Lock()
	s.seenCode = append(s.seenCode, code)
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.findings, nil
}

func findingAt(line int, description string) model.Finding {
	return model.Finding{Line: line, Description: description}
}

func newTestOrchestrator(perCategory map[model.FindingCategory][]model.Finding) *Orchestrator {
	analyzers := make([]Analyzer, 0, len(model.AnalysisOrder))
	for _, cat := range model.AnalysisOrder {
		analyzers = append(analyzers, &stubAnalyzer{category: cat, findings: perCategory[cat]})
	}
	return NewOrchestrator(analyzers)
}

func TestAnalyzeFile_MergesInFixedOrder(t *testing.T) {
	o := newTestOrchestrator(map[model.FindingCategory][]model.Finding{
		model.CategoryStyle:       {findingAt(1, "style issue")},
		model.CategoryDefect:      {findingAt(2, "defect issue")},
		model.CategoryPerformance: {findingAt(3, "perf issue")},
		model.CategoryConvention:  {findingAt(4, "convention issue")},
	})

	result := o.AnalyzeFile(context.Background(), "code", "main.go")

	require.Len(t, result.Findings, 4)
	assert.Equal(t, model.CategoryStyle, result.Findings[0].Category)
	assert.Equal(t, model.CategoryDefect, result.Findings[1].Category)
	assert.Equal(t, model.CategoryPerformance, result.Findings[2].Category)
	assert.Equal(t, model.CategoryConvention, result.Findings[3].Category)
}

func TestAnalyzeFile_TieBreakKeepsFirstVariant(t *testing.T) {
	// Same (line, description) reported by two variants: the first in
	// the fixed order wins, so the survivor carries its category.
	o := newTestOrchestrator(map[model.FindingCategory][]model.Finding{
		model.CategoryDefect:     {findingAt(12, "duplicated logic")},
		model.CategoryConvention: {findingAt(12, "duplicated logic")},
	})

	result := o.AnalyzeFile(context.Background(), "code", "main.go")

	require.Len(t, result.Findings, 1)
	assert.Equal(t, model.CategoryDefect, result.Findings[0].Category)
}

func TestAnalyzeFile_OverridesReportedCategory(t *testing.T) {
	o := newTestOrchestrator(map[model.FindingCategory][]model.Finding{
		model.CategoryStyle: {{Line: 5, Category: model.CategoryDefect, Description: "misreported"}},
	})

	result := o.AnalyzeFile(context.Background(), "code", "main.go")

	require.Len(t, result.Findings, 1)
	assert.Equal(t, model.CategoryStyle, result.Findings[0].Category)
}

func TestAnalyzeFile_CapsAtTenFindings(t *testing.T) {
	var many []model.Finding
	for i := 1; i <= 8; i++ {
		many = append(many, findingAt(i, fmt.Sprintf("style %d", i)))
	}
	var defects []model.Finding
	for i := 1; i <= 8; i++ {
		defects = append(defects, findingAt(i, fmt.Sprintf("defect %d", i)))
	}

	o := newTestOrchestrator(map[model.FindingCategory][]model.Finding{
		model.CategoryStyle:  many,
		model.CategoryDefect: defects,
	})

	result := o.AnalyzeFile(context.Background(), "code", "main.go")

	require.Len(t, result.Findings, MaxFindingsPerFile)
	// All style findings survive; the cap cuts into the defect block.
	for i := 0; i < 8; i++ {
		assert.Equal(t, model.CategoryStyle, result.Findings[i].Category)
	}
	assert.Equal(t, model.CategoryDefect, result.Findings[8].Category)
	assert.Equal(t, model.CategoryDefect, result.Findings[9].Category)
}

func TestAnalyzeFile_DeduplicationIsIdempotent(t *testing.T) {
	perCategory := map[model.FindingCategory][]model.Finding{
		model.CategoryStyle:  {findingAt(1, "dup"), findingAt(1, "dup"), findingAt(2, "other")},
		model.CategoryDefect: {findingAt(1, "dup")},
	}

	first := newTestOrchestrator(perCategory).AnalyzeFile(context.Background(), "code", "a.go")
	second := newTestOrchestrator(perCategory).AnalyzeFile(context.Background(), "code", "a.go")

	assert.Equal(t, first, second)
	require.Len(t, first.Findings, 2)
}

func TestAnalyzeFile_AnalyzerErrorDegradesToEmpty(t *testing.T) {
	analyzers := []Analyzer{
		&stubAnalyzer{category: model.CategoryStyle, err: errors.New("timeout")},
		&stubAnalyzer{category: model.CategoryDefect, findings: []model.Finding{findingAt(9, "real")}},
	}
	o := NewOrchestrator(analyzers)

	result := o.AnalyzeFile(context.Background(), "code", "main.go")

	require.Len(t, result.Findings, 1)
	assert.Equal(t, "real", result.Findings[0].Description)
}

func TestAnalyzePR_SkipsIneligibleFiles(t *testing.T) {
	o := newTestOrchestrator(map[model.FindingCategory][]model.Finding{
		model.CategoryStyle: {findingAt(1, "issue")},
	})

	filenames := []string{"README.md", "missing.go", "empty.go", "main.go"}
	contents := map[string]string{
		"README.md": "# readme",
		"empty.go":  "",
		"main.go":   "package main",
	}

	result := o.AnalyzePR(context.Background(), filenames, contents)

	require.Len(t, result.Files, 1)
	assert.Equal(t, "main.go", result.Files[0].Name)
	assert.Equal(t, 1, result.Summary.TotalFiles)
	assert.Equal(t, 1, result.Summary.TotalFindings)
}

func TestAnalyzePR_ExcludesCleanFiles(t *testing.T) {
	// No analyzer reports anything: clean files never appear in the result.
	o := newTestOrchestrator(nil)

	result := o.AnalyzePR(context.Background(), []string{"main.go"}, map[string]string{"main.go": "package main"})

	assert.Empty(t, result.Files)
	assert.Equal(t, 0, result.Summary.TotalFiles)
	assert.Equal(t, 0, result.Summary.TotalFindings)
	assert.Equal(t, 0, result.Summary.DefectCount)
}

func TestAnalyzePR_TruncatesLongContent(t *testing.T) {
	stub := &stubAnalyzer{category: model.CategoryStyle, findings: []model.Finding{findingAt(1, "x")}}
	o := NewOrchestrator([]Analyzer{stub})

	long := strings.Repeat("a", MaxFileBytes+2500)
	o.AnalyzePR(context.Background(), []string{"big.go"}, map[string]string{"big.go": long})

	require.Len(t, stub.seenCode, 1)
	assert.Len(t, stub.seenCode[0], MaxFileBytes)
}

func TestAnalyzePR_Summary(t *testing.T) {
	o := newTestOrchestrator(map[model.FindingCategory][]model.Finding{
		model.CategoryStyle:  {findingAt(1, "s1")},
		model.CategoryDefect: {findingAt(2, "d1"), findingAt(3, "d2")},
	})

	filenames := []string{"a.go", "b.py"}
	contents := map[string]string{"a.go": "x", "b.py": "y"}

	result := o.AnalyzePR(context.Background(), filenames, contents)

	assert.Equal(t, 2, result.Summary.TotalFiles)
	assert.Equal(t, 6, result.Summary.TotalFindings)
	assert.Equal(t, 4, result.Summary.DefectCount)
	assert.LessOrEqual(t, result.Summary.DefectCount, result.Summary.TotalFindings)

	total := 0
	for _, f := range result.Files {
		total += len(f.Findings)
	}
	assert.Equal(t, result.Summary.TotalFindings, total)
}

func TestIsSourceFile(t *testing.T) {
	assert.True(t, IsSourceFile("main.go"))
	assert.True(t, IsSourceFile("app/Main.Java"))
	assert.True(t, IsSourceFile("script.sh"))
	assert.False(t, IsSourceFile("README.md"))
	assert.False(t, IsSourceFile("Dockerfile"))
	assert.False(t, IsSourceFile("notes.txt"))
}
