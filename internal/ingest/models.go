// Package ingest implements bulk CSV ingestion of residences. A batch is
// parsed and screened as a whole, then processed row by row: one row's
// failure never blocks the rest, but duplicate unit numbers inside the batch
// reject it before anything commits.
package ingest

import (
	"fmt"
	"strings"
	"time"

	"villageops/pkg/domain"
)

// Batch status values stored in the import report.
const (
	BatchCompleted = "completed"
	BatchRejected  = "rejected"
)

// Row is one structurally parsed CSV record. Line is the 1-based data row
// number (the header is line 0).
type Row struct {
	Line   int
	Key    string
	Fields map[string]any
}

// RowError is one isolated row failure inside an otherwise processed batch.
type RowError struct {
	Line    int    `json:"line"`
	Key     string `json:"key,omitempty"`
	Message string `json:"message"`
}

// BatchResult is the import report for one batch run.
//
// Invariant: Succeeded + Failed == Total for a completed batch; a rejected
// batch commits nothing and both counters stay zero.
type BatchResult struct {
	BatchID     domain.BatchID     `json:"batch_id"`
	CommunityID domain.CommunityID `json:"community_id"`
	Status      string             `json:"status"`
	Total       int                `json:"total"`
	Succeeded   int                `json:"succeeded"`
	Failed      int                `json:"failed"`
	Errors      []RowError         `json:"errors,omitempty"`
	StartedAt   time.Time          `json:"started_at"`
	CompletedAt time.Time          `json:"completed_at"`
}

// BatchRejectedError reports duplicate unit numbers found inside one batch.
// The whole batch is refused before any row commits: letting some duplicates
// in and not others would make the outcome depend on row order.
type BatchRejectedError struct {
	Duplicates []string
}

func (e *BatchRejectedError) Error() string {
	return fmt.Sprintf("batch rejected, duplicate unit numbers: %s", strings.Join(e.Duplicates, ", "))
}
