package entities

// Cleanup exit codes.
const (
	CleanupOK        = 0
	CleanupAborted   = 1
	CleanupNoTargets = 2
	CleanupPartial   = 3
)

// CleanupPlan lists everything a cleanup run would delete.
type CleanupPlan struct {
	Targets           []string          `json:"targets"`
	BaseNames         []string          `json:"base_names"`
	DataFiles         []string          `json:"data_files"`
	SchemaFiles       []string          `json:"schema_files"`
	SchemaTables      map[string]string `json:"schema_tables"` // schema path -> table_name
	Tables            []string          `json:"tables"`        // sorted, unique
	UnreadableSchemas []string          `json:"unreadable_schemas,omitempty"`
}

// Empty reports whether the plan has no targets at all.
func (p *CleanupPlan) Empty() bool {
	return p == nil || len(p.Targets) == 0
}

// CleanupOutcome summarizes an executed (or skipped) cleanup.
type CleanupOutcome struct {
	ExitCode         int      `json:"exit_code"`
	DryRun           bool     `json:"dry_run"`
	Dropped          []string `json:"dropped_tables"`
	RemovedSchemas   []string `json:"removed_schema_files"`
	RemovedDataFiles []string `json:"removed_data_files"`
	Errors           []string `json:"errors,omitempty"`
}
