package ledger

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"assent/internal/ledger/models"
	"assent/internal/platform/tracer"
	dErrors "assent/pkg/domain-errors"
)

// ExportDocument is the portable serialization of a user's full consent
// data, suitable for data-portability downloads.
type ExportDocument struct {
	GeneratedAt   time.Time               `json:"generatedAt"`
	UserID        string                  `json:"userId"`
	PolicyVersion string                  `json:"policyVersion"`
	HasPrompted   bool                    `json:"hasShownBanner"`
	LastUpdated   *time.Time              `json:"lastUpdated,omitempty"`
	Preferences   models.Preferences      `json:"preferences"`
	Records       []models.Record         `json:"records"`
	Statuses      []models.CategoryStatus `json:"categoryStatuses"`
}

// Export assembles the full consent document. The snapshot and the derived
// per-category statuses are gathered concurrently; each goroutine writes to
// its own field, results are assembled after the wait.
func (l *Ledger) Export(ctx context.Context, userID string) (*ExportDocument, error) {
	ctx, span := l.tracer.Start(ctx, tracer.SpanLedgerExport)
	var err error
	defer func() { span.End(err) }()

	if userID == "" {
		err = dErrors.New(dErrors.CodeUnauthorized, "missing user context")
		return nil, err
	}

	var (
		snapshot *models.State
		statuses []models.CategoryStatus
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		st, serr := l.Snapshot(gctx, userID)
		if serr != nil {
			return serr
		}
		snapshot = st
		return nil
	})
	g.Go(func() error {
		out := make([]models.CategoryStatus, 0, len(models.AllCategories))
		for _, c := range models.AllCategories {
			status, serr := l.CategoryStatus(gctx, userID, c)
			if serr != nil {
				return serr
			}
			out = append(out, status)
		}
		statuses = out
		return nil
	})
	if err = g.Wait(); err != nil {
		return nil, err
	}

	doc := &ExportDocument{
		GeneratedAt:   l.now(),
		UserID:        userID,
		PolicyVersion: snapshot.PolicyVersion,
		HasPrompted:   snapshot.HasPrompted,
		LastUpdated:   snapshot.LastUpdated,
		Preferences:   snapshot.Preferences,
		Records:       snapshot.Records,
		Statuses:      statuses,
	}

	if l.auditor != nil {
		l.auditor.DataExported(ctx, userID)
	}
	if l.metrics != nil {
		l.metrics.IncExports()
	}
	span.SetAttributes(tracer.Int64(tracer.AttrRecordCount, int64(len(doc.Records))))
	return doc, nil
}
