package progress

import (
	"context"
	"errors"
	"log/slog"

	"github.com/poiesic/docpipe/core"
)

// Update is one progress report for a job.
type Update struct {
	Stage    core.Stage
	Progress int
	Status   core.Status
	Error    string
}

// Terminal reports whether the update ends the job.
func (u Update) Terminal() bool {
	return u.Status == core.StatusCompleted || u.Status == core.StatusFailed || u.Status == core.StatusCancelled
}

// Reporter receives progress for ingestion jobs.
// Implementations must be safe for concurrent use.
type Reporter interface {
	// Initialize announces a new job.
	Initialize(ctx context.Context, docID, filename string) error
	// Update reports a stage transition or intermediate progress.
	Update(ctx context.Context, docID string, update Update) error
}

type noop struct{}

func (noop) Initialize(context.Context, string, string) error { return nil }
func (noop) Update(context.Context, string, Update) error     { return nil }

// Noop discards every report.
var Noop Reporter = noop{}

type multi []Reporter

// Multi fans reports out to every reporter. All reporters are called even
// when some fail; their errors are joined.
func Multi(reporters ...Reporter) Reporter {
	var m multi
	for _, r := range reporters {
		if r != nil {
			m = append(m, r)
		}
	}
	return m
}

func (m multi) Initialize(ctx context.Context, docID, filename string) error {
	var errs []error
	for _, r := range m {
		errs = append(errs, r.Initialize(ctx, docID, filename))
	}
	return errors.Join(errs...)
}

func (m multi) Update(ctx context.Context, docID string, update Update) error {
	var errs []error
	for _, r := range m {
		errs = append(errs, r.Update(ctx, docID, update))
	}
	return errors.Join(errs...)
}

// LogReporter writes reports to a structured logger.
type LogReporter struct {
	logger *slog.Logger
}

// NewLogReporter creates a reporter logging through logger, or slog.Default
// when logger is nil.
func NewLogReporter(logger *slog.Logger) *LogReporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogReporter{logger: logger.With("component", "progress")}
}

func (r *LogReporter) Initialize(ctx context.Context, docID, filename string) error {
	r.logger.InfoContext(ctx, "ingestion started", "doc", docID, "filename", filename)
	return nil
}

func (r *LogReporter) Update(ctx context.Context, docID string, update Update) error {
	attrs := []any{"doc", docID, "stage", update.Stage, "progress", update.Progress, "status", update.Status}
	switch update.Status {
	case core.StatusFailed:
		r.logger.WarnContext(ctx, "ingestion failed", append(attrs, "err", update.Error)...)
	case core.StatusCancelled:
		r.logger.InfoContext(ctx, "ingestion cancelled", attrs...)
	case core.StatusCompleted:
		r.logger.InfoContext(ctx, "ingestion completed", attrs...)
	default:
		r.logger.DebugContext(ctx, "ingestion progress", attrs...)
	}
	return nil
}
