package model

// Finding categories
type FindingCategory string

const (
	CategoryStyle       FindingCategory = "style"
	CategoryDefect      FindingCategory = "defect"
	CategoryPerformance FindingCategory = "performance"
	CategoryConvention  FindingCategory = "convention"
)

// AnalysisOrder is the fixed invocation order of the analyzers. It is also
// the tie-break order when two analyzers report the same finding.
var AnalysisOrder = []FindingCategory{
	CategoryStyle, CategoryDefect, CategoryPerformance, CategoryConvention,
}

// Finding is one reported issue in a reviewed file. Line is 1-based;
// 0 means the line is unknown.
type Finding struct {
	Line        int             `json:"line"`
	Category    FindingCategory `json:"category"`
	Description string          `json:"description"`
	Suggestion  string          `json:"suggestion,omitempty"`
}

// FileResult holds the surviving findings for a single file.
type FileResult struct {
	Name     string    `json:"name"`
	Findings []Finding `json:"findings"`
}

// AnalysisSummary aggregates counts over all files in a result.
type AnalysisSummary struct {
	TotalFiles    int `json:"totalFiles"`
	TotalFindings int `json:"totalFindings"`
	DefectCount   int `json:"defectCount"`
}

// AnalysisResult is the terminal payload of a completed review job.
// Only files with at least one finding appear in Files.
type AnalysisResult struct {
	Files   []FileResult    `json:"files"`
	Summary AnalysisSummary `json:"summary"`
}
