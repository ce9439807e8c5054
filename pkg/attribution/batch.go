package attribution

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/hotdash/actionqueue/pkg/otelhelper"
	"github.com/hotdash/actionqueue/pkg/persistence"
)

// Batch runs the nightly attribution refresh over every action that is
// approved or later but not yet learned, oldest first. The shared limiter
// paces the whole batch, not each action.
type Batch struct {
	persistence persistence.Persistence
	reranker    *Reranker
	tracer      trace.Tracer
	logger      *slog.Logger
}

func NewBatch(p persistence.Persistence, reranker *Reranker, tracer trace.Tracer, logger *slog.Logger) *Batch {
	return &Batch{
		persistence: p,
		reranker:    reranker,
		tracer:      tracer,
		logger:      logger.With("module", "attribution_batch"),
	}
}

// RunOnce refreshes the whole pending-attribution set. Per-action failures
// (including all-windows-failed) are logged and skipped; the next nightly
// run retries them.
func (b *Batch) RunOnce(ctx context.Context) error {
	actions, err := b.persistence.ActionRepository().PendingAttribution(ctx)
	if err != nil {
		return fmt.Errorf("failed to load attribution candidates: %w", err)
	}

	ctx, span := otelhelper.StartSpan(ctx, b.tracer, "attribution.batch",
		attribute.Int(otelhelper.BatchSizeKey, len(actions)))
	defer span.End()

	b.logger.InfoContext(ctx, "attribution batch started", "actions", len(actions))

	var refreshed, failed int

	for _, action := range actions {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if _, err := b.reranker.Refresh(ctx, action); err != nil {
			failed++

			otelhelper.SetError(span, err, attribute.String(otelhelper.ActionIDKey, action.ID))
			b.logger.ErrorContext(ctx, "attribution refresh failed",
				"action_id", action.ID, "error", err)

			continue
		}

		refreshed++
	}

	b.logger.InfoContext(ctx, "attribution batch finished",
		"refreshed", refreshed, "failed", failed)

	return nil
}
