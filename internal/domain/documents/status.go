package documents

const (
	StatusPending    = "PENDING"
	StatusProcessing = "PROCESSING"
	StatusCompleted  = "COMPLETED"
	StatusFailed     = "FAILED"
)

// Statuses lists every document status in lifecycle order.
var Statuses = []string{StatusPending, StatusProcessing, StatusCompleted, StatusFailed}

func ValidStatus(s string) bool {
	for _, st := range Statuses {
		if st == s {
			return true
		}
	}
	return false
}

// IsTerminal reports COMPLETED and FAILED.
func IsTerminal(s string) bool {
	return s == StatusCompleted || s == StatusFailed
}

const (
	StageExtraction = "extraction"
	StageAnalysis   = "analysis"
	StageTaxonomy   = "taxonomy"
	StageEmbedding  = "embedding"

	// StageRecovery marks failures recorded by an operator action.
	StageRecovery = "recovery"
)

// Stages is the fixed pipeline order.
var Stages = []string{StageExtraction, StageAnalysis, StageTaxonomy, StageEmbedding}

// StageIndex returns the position of stage in Stages, or -1.
func StageIndex(stage string) int {
	for i, s := range Stages {
		if s == stage {
			return i
		}
	}
	return -1
}
