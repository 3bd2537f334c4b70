package audit

import "time"

// Source tags which front end ran a pipeline.
type Source string

const (
	SourceCLI    Source = "cli"
	SourceScript Source = "script"
	SourceMCP    Source = "mcp"
)

// Entry represents a single audit log record: one chain waited on.
type Entry struct {
	Seq         uint64    `json:"seq"`
	Time        time.Time `json:"ts"`
	PrevHash    string    `json:"prev_hash"`
	RunID       string    `json:"run_id"`                // one per front-end invocation
	Source      Source    `json:"source"`                // cli, script or mcp
	Command     string    `json:"command"`               // shell rendering of the chain
	Stages      []string  `json:"stages"`                // program of each stage
	ExitCodes   []int     `json:"exit_codes"`            // per stage, -1 if unknown
	FailedStage int       `json:"failed_stage"`          // index of the reported stage, -1 if none
	ExitCode    int       `json:"exit_code"`             // 0 = success
	Error       string    `json:"error,omitempty"`       // error message if failed
	Duration    float64   `json:"duration_ms"`           // execution time in milliseconds
	Cwd         string    `json:"cwd"`                   // working directory
	ClearedEnv  bool      `json:"cleared_env,omitempty"` // true if stages ran without the ambient env
	Hash        string    `json:"hash"`                  // SHA-256 of this entry (with hash field empty)
}

// Run is what a front end reports about one chain.
type Run struct {
	Command     string
	Stages      []string
	ExitCodes   []int
	FailedStage int
	ExitCode    int
	Err         error
	Duration    time.Duration
	ClearedEnv  bool
}
