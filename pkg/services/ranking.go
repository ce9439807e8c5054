package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hotdash/actionqueue/pkg/cache"
	"github.com/hotdash/actionqueue/pkg/models"
	"github.com/hotdash/actionqueue/pkg/persistence"
	"github.com/hotdash/actionqueue/pkg/ranking"
)

// rankCacheTTL bounds staleness of cached ranked listings. Transitions
// invalidate eagerly; the TTL only covers writers that bypass the service.
const rankCacheTTL = 30 * time.Second

// maxRankedSet caps how many pending actions one ranking pass scores.
const maxRankedSet = 100

// RankedListResponse is a scored ordering of the review queue.
type RankedListResponse struct {
	Version     ranking.Version      `json:"version"`
	Ranked      []ranking.Ranked     `json:"ranked"`
	Diagnostics []ranking.Diagnostic `json:"diagnostics,omitempty"`
}

// Ranking serves scored listings of the pending review queue, cached per
// version and page size.
type Ranking struct {
	persistence persistence.Persistence
	engine      *ranking.Engine
	cache       cache.Cache
	logger      *slog.Logger
}

// NewRanking creates a new ranking service. cache may be nil.
func NewRanking(p persistence.Persistence, engine *ranking.Engine, c cache.Cache, logger *slog.Logger) *Ranking {
	return &Ranking{
		persistence: p,
		engine:      engine,
		cache:       c,
		logger:      logger.With("module", "ranking_service"),
	}
}

// RankPending scores the pending-review queue under the selected version and
// returns the top limit entries.
func (s *Ranking) RankPending(ctx context.Context, version ranking.Version, limit int) (*RankedListResponse, error) {
	if !version.Valid() {
		return nil, NewValidationError(
			"RankPending",
			"INVALID_RANKING_VERSION",
			fmt.Sprintf("invalid ranking version '%s'", version),
			ErrInvalidRankingVersion,
		)
	}

	if limit <= 0 || limit > maxRankedSet {
		limit = 20
	}

	key := fmt.Sprintf("%s%s:%d", RankCachePrefix, version, limit)

	if cached, ok := s.fromCache(ctx, key); ok {
		return cached, nil
	}

	state := models.ActionStatePendingReview

	result, err := s.persistence.ActionRepository().List(ctx, persistence.ListActionsOptions{
		Limit:     maxRankedSet,
		State:     &state,
		SortBy:    "created_at",
		SortOrder: "asc",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load review queue: %w", err)
	}

	var successRates map[models.ActionKind]float64

	if version == ranking.VersionV3ML {
		successRates, err = s.persistence.ActionRepository().SuccessRates(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load success rates: %w", err)
		}
	}

	ranked, diagnostics, err := s.engine.Rank(result.Actions, version, successRates)
	if err != nil {
		return nil, err
	}

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	response := &RankedListResponse{
		Version:     version,
		Ranked:      ranked,
		Diagnostics: diagnostics,
	}

	s.toCache(ctx, key, response)

	return response, nil
}

// Invalidate drops every cached ranked listing. The attribution refresher
// calls this after recording new realized-ROI observations.
func (s *Ranking) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}

	if err := s.cache.Invalidate(ctx, RankCachePrefix); err != nil {
		s.logger.WarnContext(ctx, "failed to invalidate ranking cache", "error", err)
	}
}

func (s *Ranking) fromCache(ctx context.Context, key string) (*RankedListResponse, bool) {
	if s.cache == nil {
		return nil, false
	}

	payload, found, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.WarnContext(ctx, "ranking cache read failed", "key", key, "error", err)

		return nil, false
	}

	if !found {
		return nil, false
	}

	var response RankedListResponse

	if err := json.Unmarshal(payload, &response); err != nil {
		s.logger.WarnContext(ctx, "ranking cache entry corrupt", "key", key, "error", err)

		return nil, false
	}

	return &response, true
}

func (s *Ranking) toCache(ctx context.Context, key string, response *RankedListResponse) {
	if s.cache == nil {
		return
	}

	payload, err := json.Marshal(response)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to marshal ranked listing", "key", key, "error", err)

		return
	}

	if err := s.cache.Set(ctx, key, payload, rankCacheTTL); err != nil {
		s.logger.WarnContext(ctx, "ranking cache write failed", "key", key, "error", err)
	}
}
