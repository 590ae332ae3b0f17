package task

import (
	"fmt"
	"time"
)

type ResultState int32

const (
	_ ResultState = iota
	ResultStateSuccess
	ResultStatePartial
	ResultStateFailed
)

func (r ResultState) String() string {
	switch r {
	case ResultStateSuccess:
		return "SUCCESS"
	case ResultStatePartial:
		return "PARTIAL"
	case ResultStateFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("UNKNOWN TYPE %d", r)
	}
}

// ItemResult is the per-item outcome of a batch. When Fallback is true the
// item failed and OutputPath is the original source path, so the batch never
// shrinks and ordering is never disturbed.
type ItemResult struct {
	Index      int    `json:"index"`
	OutputPath string `json:"output_path"`
	Fallback   bool   `json:"fallback"`
	Message    string `json:"message,omitempty"`

	SHA3        string `json:"sha3,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Size        int    `json:"size,omitempty"`
}

// Result is the outcome of one whole batch.
type Result struct {
	StartedAt   time.Time    `json:"started_at"`
	FinishedAt  time.Time    `json:"finished_at"`
	State       ResultState  `json:"state"`
	Items       []ItemResult `json:"items"`
	FailedCount int          `json:"failed_count"`
}

// Outputs returns the artifact paths ordered by the original batch index.
// The slice length always equals the submitted batch length.
func (r Result) Outputs() []string {
	out := make([]string, len(r.Items))
	for i, item := range r.Items {
		out[i] = item.OutputPath
	}

	return out
}
