package analyzer

import (
	"context"
	"log"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/reviewpilot/api/internal/model"
)

const (
	// MaxFindingsPerFile caps a single file's surviving findings.
	MaxFindingsPerFile = 10
	// MaxFileBytes is the content ceiling handed to any analyzer.
	// Longer files are analyzed on this prefix only.
	MaxFileBytes = 10000
)

var sourceExtensions = map[string]bool{
	".py": true, ".js": true, ".ts": true, ".tsx": true, ".jsx": true,
	".java": true, ".go": true, ".rs": true, ".cpp": true, ".c": true,
	".rb": true, ".php": true, ".swift": true, ".kt": true, ".scala": true,
	".sh": true,
}

// IsSourceFile reports whether a filename has a recognized source-code
// extension.
func IsSourceFile(filename string) bool {
	return sourceExtensions[strings.ToLower(filepath.Ext(filename))]
}

// Orchestrator fans one file out to every analyzer and merges the
// results into a deduplicated, capped finding list.
type Orchestrator struct {
	analyzers []Analyzer
}

// NewOrchestrator creates an orchestrator over the given analyzers.
// Slice order is the merge and tie-break order.
func NewOrchestrator(analyzers []Analyzer) *Orchestrator {
	return &Orchestrator{analyzers: analyzers}
}

// AnalyzeFile runs all analyzers over one file concurrently and merges
// their findings in the fixed analyzer order. Duplicate findings keyed
// by (line, description) keep their first occurrence, so the analyzer
// order is the tie-break. The result is capped at MaxFindingsPerFile.
//
// A failed analyzer degrades to zero findings; it never fails the file.
func (o *Orchestrator) AnalyzeFile(ctx context.Context, code, filename string) model.FileResult {
	perAnalyzer := make([][]model.Finding, len(o.analyzers))

	g, gctx := errgroup.WithContext(ctx)
	for i, a := range o.analyzers {
		i, a := i, a
		g.Go(func() error {
			findings, err := a.Analyze(gctx, code, filename)
			if err != nil {
				log.Printf("Analyzer %s error for %s: %v", a.Category(), filename, err)
				return nil
			}
			perAnalyzer[i] = findings
			return nil
		})
	}
	_ = g.Wait()

	type findingKey struct {
		line        int
		description string
	}

	seen := make(map[findingKey]bool)
	merged := make([]model.Finding, 0)

	for i, a := range o.analyzers {
		for _, f := range perAnalyzer[i] {
			// The invoking analyzer's category wins over whatever the
			// generation service claimed.
			f.Category = a.Category()

			key := findingKey{line: f.Line, description: f.Description}
			if seen[key] {
				continue
			}
			seen[key] = true
			merged = append(merged, f)
		}
	}

	if len(merged) > MaxFindingsPerFile {
		merged = merged[:MaxFindingsPerFile]
	}

	return model.FileResult{
		Name:     filename,
		Findings: merged,
	}
}

// AnalyzePR analyzes a change set's files in list order and aggregates
// the per-file results. Non-source files are skipped silently; files
// with missing or empty content are skipped with a log line. Content
// longer than MaxFileBytes is truncated before analysis. Files with no
// surviving findings are excluded from the result.
func (o *Orchestrator) AnalyzePR(ctx context.Context, filenames []string, contents map[string]string) *model.AnalysisResult {
	files := make([]model.FileResult, 0)
	totalFindings := 0
	defectCount := 0

	for _, name := range filenames {
		if !IsSourceFile(name) {
			continue
		}

		code, ok := contents[name]
		if !ok {
			log.Printf("No content available for %s", name)
			continue
		}
		if code == "" {
			log.Printf("Empty file: %s", name)
			continue
		}

		if len(code) > MaxFileBytes {
			code = code[:MaxFileBytes]
			log.Printf("Truncated %s to %d bytes for analysis", name, MaxFileBytes)
		}

		result := o.AnalyzeFile(ctx, code, name)
		if len(result.Findings) == 0 {
			continue
		}

		files = append(files, result)
		totalFindings += len(result.Findings)
		for _, f := range result.Findings {
			if f.Category == model.CategoryDefect {
				defectCount++
			}
		}
	}

	return &model.AnalysisResult{
		Files: files,
		Summary: model.AnalysisSummary{
			TotalFiles:    len(files),
			TotalFindings: totalFindings,
			DefectCount:   defectCount,
		},
	}
}
