// Package protocol defines the message formats exchanged over Kafka
// between the batch jobs and the notification service.
package protocol

import (
	"encoding/json"
	"time"
)

// RunState is the terminal state of a precomputation run.
type RunState string

const (
	RunStateDone   RunState = "done"
	RunStateFailed RunState = "failed"
)

// Job identifies which batch job produced a summary.
const (
	JobPipeline = "pipeline"
	JobWarmer   = "warmer"
)

// RunSummary reports the outcome of one precomputation or warmer run.
// It is returned to the caller, published to the run topic, and rendered
// into the operator email on failure.
type RunSummary struct {
	RunID           string    `json:"run_id"`
	Job             string    `json:"job"`
	State           RunState  `json:"state"`
	RoutesProcessed int       `json:"routes_processed"`
	DatesPerRoute   int       `json:"dates_per_route"`
	TotalWarmed     int       `json:"total_warmed"`
	TotalFailed     int       `json:"total_failed"`
	PrunedKeys      int       `json:"pruned_keys"`
	StartedAt       time.Time `json:"started_at"`
	DurationSeconds float64   `json:"duration_seconds"`
	Error           string    `json:"error,omitempty"`
}

// EncodeRunSummary encodes a RunSummary to JSON.
func EncodeRunSummary(summary *RunSummary) ([]byte, error) {
	return json.Marshal(summary)
}

// DecodeRunSummary decodes JSON to a RunSummary.
func DecodeRunSummary(data []byte) (*RunSummary, error) {
	var summary RunSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}
