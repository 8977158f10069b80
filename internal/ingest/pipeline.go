package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"villageops/internal/lifecycle"
	"villageops/internal/platform/metrics"
	"villageops/pkg/domain"
	dErrors "villageops/pkg/domain-errors"
	"villageops/pkg/requestcontext"
)

// Creator runs the residence create transition. Satisfied by
// *lifecycle.Engine.
type Creator interface {
	Create(ctx context.Context, kind lifecycle.Kind, communityID domain.CommunityID, fields map[string]any) (*lifecycle.Entity, error)
}

// Pipeline turns a CSV batch into residence create transitions.
type Pipeline struct {
	engine  Creator
	reports ReportStore
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithPipelineLogger attaches a structured logger.
func WithPipelineLogger(logger *slog.Logger) PipelineOption {
	return func(p *Pipeline) { p.logger = logger }
}

// WithPipelineMetrics attaches import metrics.
func WithPipelineMetrics(m *metrics.Metrics) PipelineOption {
	return func(p *Pipeline) { p.metrics = m }
}

// NewPipeline constructs the ingestion pipeline.
func NewPipeline(engine Creator, reports ReportStore, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		engine:  engine,
		reports: reports,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ImportResidences runs one batch. The sequence is fixed: structural parse,
// intra-batch duplicate screen, then row-by-row creation.
//
// Duplicate unit numbers inside the batch reject it before any row commits;
// the rejection report is still saved so the batch stays queryable. Rows that
// fail individually (validation, an existing residence with the same unit
// number) are recorded and skipped; every other row still commits.
func (p *Pipeline) ImportResidences(ctx context.Context, communityID domain.CommunityID, r io.Reader) (*BatchResult, error) {
	result := &BatchResult{
		BatchID:     domain.NewBatchID(),
		CommunityID: communityID,
		StartedAt:   requestcontext.Now(ctx),
	}

	rows, rowErrs, err := ParseCSV(r)
	if err != nil {
		return nil, err
	}
	result.Total = len(rows) + len(rowErrs)

	if dups := duplicateKeys(rows); len(dups) > 0 {
		result.Status = BatchRejected
		result.CompletedAt = requestcontext.Now(ctx)
		p.saveReport(ctx, result)
		p.logger.WarnContext(ctx, "import batch rejected",
			"batch_id", result.BatchID.String(), "duplicates", dups)
		return result, &BatchRejectedError{Duplicates: dups}
	}

	// Walk parse failures and parsed rows as one line-ordered sequence so the
	// error list always matches input order, whatever mix of parse and commit
	// failures the batch produces.
	ri, pi := 0, 0
	for ri < len(rows) || pi < len(rowErrs) {
		if pi < len(rowErrs) && (ri >= len(rows) || rowErrs[pi].Line < rows[ri].Line) {
			result.Failed++
			result.Errors = append(result.Errors, rowErrs[pi])
			p.observeRow("failed")
			pi++
			continue
		}

		row := rows[ri]
		ri++
		if _, err := p.engine.Create(ctx, lifecycle.KindResidence, communityID, row.Fields); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, RowError{
				Line:    row.Line,
				Key:     row.Key,
				Message: rowMessage(err),
			})
			p.observeRow("failed")
			continue
		}
		result.Succeeded++
		p.observeRow("succeeded")
	}

	result.Status = BatchCompleted
	result.CompletedAt = requestcontext.Now(ctx)
	p.saveReport(ctx, result)

	p.logger.InfoContext(ctx, "import batch completed",
		"batch_id", result.BatchID.String(),
		"total", result.Total, "succeeded", result.Succeeded, "failed", result.Failed)
	return result, nil
}

// Report returns a stored batch report.
func (p *Pipeline) Report(ctx context.Context, batchID domain.BatchID) (*BatchResult, error) {
	return p.reports.Find(ctx, batchID)
}

// saveReport is best effort: losing the report loses a convenience lookup,
// not the committed residences or their audit trail.
func (p *Pipeline) saveReport(ctx context.Context, result *BatchResult) {
	if p.reports == nil {
		return
	}
	if err := p.reports.Save(ctx, result); err != nil {
		p.logger.WarnContext(ctx, "failed to save import report",
			"batch_id", result.BatchID.String(), "error", err)
	}
}

func (p *Pipeline) observeRow(outcome string) {
	if p.metrics != nil {
		p.metrics.ObserveImportRow(outcome)
	}
}

// rowMessage keeps the user-safe message and drops wrapped causes.
func rowMessage(err error) string {
	var de *dErrors.Error
	if errors.As(err, &de) {
		return de.Message
	}
	return err.Error()
}

func duplicateKeys(rows []Row) []string {
	seen := make(map[string]int, len(rows))
	var dups []string
	for _, row := range rows {
		if row.Key == "" {
			continue
		}
		seen[row.Key]++
		if seen[row.Key] == 2 {
			dups = append(dups, row.Key)
		}
	}
	return dups
}
