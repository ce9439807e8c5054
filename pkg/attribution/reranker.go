package attribution

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hotdash/actionqueue/pkg/eventbus"
	"github.com/hotdash/actionqueue/pkg/events"
	"github.com/hotdash/actionqueue/pkg/models"
	"github.com/hotdash/actionqueue/pkg/persistence"
)

// queryTimeout bounds one analytics query; one retry follows a transient
// failure before the window is written off for this run.
const queryTimeout = 10 * time.Second

// queueCapacity absorbs bursts of on-demand refresh requests while the
// limiter drains them one query per second.
const queueCapacity = 128

// RankInvalidator drops cached ranked listings after realized ROI changes.
type RankInvalidator interface {
	Invalidate(ctx context.Context)
}

// Reranker refreshes realized-ROI observations per action. All analytics
// traffic flows through the shared Limiter, whether it originates from the
// API or the nightly batch.
type Reranker struct {
	persistence persistence.Persistence
	client      Client
	limiter     Limiter
	rankings    RankInvalidator
	publisher   eventbus.EventPublisher
	logger      *slog.Logger
	queue       chan string
}

// NewReranker creates a reranker. rankings and publisher may be nil.
func NewReranker(
	p persistence.Persistence,
	client Client,
	limiter Limiter,
	rankings RankInvalidator,
	publisher eventbus.EventPublisher,
	logger *slog.Logger,
) *Reranker {
	return &Reranker{
		persistence: p,
		client:      client,
		limiter:     limiter,
		rankings:    rankings,
		publisher:   publisher,
		logger:      logger.With("module", "attribution"),
		queue:       make(chan string, queueCapacity),
	}
}

// Refresh queries each attribution window for the action and upserts every
// observation it gets. A window that fails (after one retry) keeps its
// existing value; only all three failing is an error.
func (r *Reranker) Refresh(ctx context.Context, action *models.Action) (map[models.AttributionWindow]float64, error) {
	observed := make(map[models.AttributionWindow]float64)
	failed := make([]models.AttributionWindow, 0)

	for _, window := range models.Windows() {
		delta, err := r.queryWindow(ctx, action.ID, window)
		if err != nil {
			failed = append(failed, window)

			r.logger.WarnContext(ctx, "attribution window failed, keeping existing value",
				"action_id", action.ID, "window", window, "error", err)

			continue
		}

		if err := r.persistence.ActionRepository().UpdateRealizedROI(ctx, action.ID, window, delta); err != nil {
			return nil, fmt.Errorf("failed to record realized ROI: %w", err)
		}

		action.SetRealizedROI(window, delta)
		observed[window] = delta
	}

	if len(observed) == 0 {
		return nil, &UnavailableError{ActionID: action.ID, Windows: failed}
	}

	r.publishRefreshed(ctx, action, failed)

	if r.rankings != nil {
		r.rankings.Invalidate(ctx)
	}

	return observed, nil
}

// RefreshByID loads the action and refreshes it.
func (r *Reranker) RefreshByID(ctx context.Context, actionID string) (map[models.AttributionWindow]float64, error) {
	action, err := r.persistence.ActionRepository().GetByID(ctx, actionID)
	if err != nil {
		return nil, err
	}

	if action == nil {
		return nil, persistence.NewActionError("RefreshByID", actionID, persistence.ErrActionNotFound)
	}

	return r.Refresh(ctx, action)
}

// queryWindow performs one rate-limited analytics query with one retry.
func (r *Reranker) queryWindow(ctx context.Context, key string, window models.AttributionWindow) (float64, error) {
	var lastErr error

	for attempt := 0; attempt < 2; attempt++ {
		if err := r.limiter.Wait(ctx); err != nil {
			return 0, err
		}

		queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
		delta, err := r.client.QueryConversionsByKey(queryCtx, key, window)

		cancel()

		if err == nil {
			return delta, nil
		}

		lastErr = err
	}

	return 0, lastErr
}

// Enqueue queues one on-demand refresh. It blocks while the queue is full
// rather than dropping the request.
func (r *Reranker) Enqueue(ctx context.Context, actionID string) error {
	select {
	case r.queue <- actionID:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run drains the refresh queue until the context is cancelled.
func (r *Reranker) Run(ctx context.Context) {
	for {
		select {
		case actionID := <-r.queue:
			if _, err := r.RefreshByID(ctx, actionID); err != nil {
				r.logger.ErrorContext(ctx, "queued attribution refresh failed",
					"action_id", actionID, "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (r *Reranker) publishRefreshed(ctx context.Context, action *models.Action, failed []models.AttributionWindow) {
	if r.publisher == nil {
		return
	}

	event := events.AttributionRefreshed{
		BaseEvent:     events.NewBaseEvent(events.AttributionRefreshedEvent, action.ID),
		Kind:          action.Kind,
		RealizedROI:   action.RealizedROI,
		FailedWindows: failed,
	}

	if err := r.publisher.Publish(ctx, action.ID, event); err != nil {
		r.logger.ErrorContext(ctx, "failed to publish attribution event",
			"action_id", action.ID, "error", err)
	}
}
