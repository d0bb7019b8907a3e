package jobrun

const (
	// WorkflowName must match the name the job service starts.
	WorkflowName    = "job_run"
	ActivityExecute = "job_run_execute"
)

type TickResult struct {
	JobID    string `json:"job_id"`
	Status   string `json:"status"`
	Stage    string `json:"stage,omitempty"`
	Progress int    `json:"progress,omitempty"`
	Message  string `json:"message,omitempty"`
}

// Terminal reports whether the job_run row reached a final status.
func (r TickResult) Terminal() bool {
	switch r.Status {
	case "succeeded", "failed", "canceled":
		return true
	}
	return false
}
