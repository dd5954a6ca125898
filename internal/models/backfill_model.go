package models

// MaxBackfillErrors caps the error details kept on a BackfillResult.
const MaxBackfillErrors = 20

// BackfillResult summarises one backfill run. It is not persisted.
type BackfillResult struct {
	RunID              string   `json:"run_id"`
	Downloaded         int      `json:"downloaded"`
	SkippedDuplicate   int      `json:"skipped_duplicate"`
	SkippedUnsupported int      `json:"skipped_unsupported"`
	Failed             int      `json:"failed"`
	TotalAPIItems      int      `json:"total_api_items"`
	Errors             []string `json:"errors,omitempty"`
	DryRun             bool     `json:"dry_run"`
}

func (r *BackfillResult) TotalProcessed() int {
	return r.Downloaded + r.SkippedDuplicate + r.SkippedUnsupported + r.Failed
}

// AddError counts a failed unit and keeps its detail while under the cap.
func (r *BackfillResult) AddError(detail string) {
	r.Failed++
	r.Note(detail)
}

// Note keeps a detail without counting a failed unit.
func (r *BackfillResult) Note(detail string) {
	if len(r.Errors) < MaxBackfillErrors {
		r.Errors = append(r.Errors, detail)
	}
}
