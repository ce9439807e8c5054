package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/hotdash/actionqueue/pkg/models"
	"github.com/hotdash/actionqueue/pkg/persistence"
)

// ActionRepository stores one JSON document per Action under
// <root>/actions/. A process-wide mutex stands in for row-level locking, so
// CompareAndSwap keeps its at-most-one-winner semantics within a process.
type ActionRepository struct {
	root string
	mu   sync.Mutex
}

// NewActionRepository creates a new file-backed action repository.
func NewActionRepository(root string) *ActionRepository {
	return &ActionRepository{root: root}
}

func (r *ActionRepository) dir() string {
	return filepath.Join(r.root, "actions")
}

func (r *ActionRepository) path(id string) string {
	return filepath.Join(r.dir(), id+".json")
}

func (r *ActionRepository) read(id string) (*models.Action, error) {
	data, err := os.ReadFile(r.path(id))
	if os.IsNotExist(err) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read action file: %w", err)
	}

	var action models.Action
	if err := json.Unmarshal(data, &action); err != nil {
		return nil, fmt.Errorf("failed to unmarshal action %s: %w", id, err)
	}

	if action.DeletedAt != nil {
		return nil, nil
	}

	return &action, nil
}

func (r *ActionRepository) write(action *models.Action) error {
	if err := os.MkdirAll(r.dir(), 0o755); err != nil {
		return fmt.Errorf("failed to create actions directory: %w", err)
	}

	data, err := json.MarshalIndent(action, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal action %s: %w", action.ID, err)
	}

	if err := os.WriteFile(r.path(action.ID), data, 0o644); err != nil {
		return fmt.Errorf("failed to write action file: %w", err)
	}

	return nil
}

func (r *ActionRepository) all() ([]*models.Action, error) {
	root := os.DirFS(r.dir())

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list action files: %w", err)
	}

	actions := make([]*models.Action, 0, len(jsonFiles))

	for _, name := range jsonFiles {
		action, err := r.read(name[:len(name)-5])
		if err != nil {
			return nil, err
		}

		if action != nil {
			actions = append(actions, action)
		}
	}

	return actions, nil
}

// List returns paginated and filtered actions with in-memory operations.
func (r *ActionRepository) List(ctx context.Context, opts persistence.ListActionsOptions) (*persistence.ListActionsResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if opts.Limit <= 0 || opts.Limit > 100 {
		opts.Limit = 20
	}

	if opts.SortBy == "" {
		opts.SortBy = "created_at"
	}

	if opts.SortOrder == "" {
		opts.SortOrder = "desc"
	}

	allowedSorts := map[string]bool{
		"created_at": true,
		"updated_at": true,
	}
	if !allowedSorts[opts.SortBy] {
		return nil, persistence.NewActionError("List", "", persistence.ErrInvalidSortField)
	}

	all, err := r.all()
	if err != nil {
		return nil, err
	}

	filtered := make([]*models.Action, 0, len(all))

	for _, action := range all {
		if opts.State != nil && action.State != *opts.State {
			continue
		}

		if opts.Kind != nil && action.Kind != *opts.Kind {
			continue
		}

		if opts.Agent != "" && action.Agent != opts.Agent {
			continue
		}

		filtered = append(filtered, action)
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		var before bool

		switch opts.SortBy {
		case "updated_at":
			before = filtered[i].UpdatedAt.Before(filtered[j].UpdatedAt)
		default:
			before = filtered[i].CreatedAt.Before(filtered[j].CreatedAt)
		}

		if opts.SortOrder == "desc" {
			return !before
		}

		return before
	})

	totalCount := int64(len(filtered))

	startIdx := opts.Offset
	if startIdx >= len(filtered) {
		return &persistence.ListActionsResult{
			Actions:     make([]*models.Action, 0),
			TotalCount:  totalCount,
			HasNextPage: false,
		}, nil
	}

	endIdx := startIdx + opts.Limit
	if endIdx > len(filtered) {
		endIdx = len(filtered)
	}

	return &persistence.ListActionsResult{
		Actions:     filtered[startIdx:endIdx],
		TotalCount:  totalCount,
		HasNextPage: endIdx < len(filtered),
	}, nil
}

func (r *ActionRepository) GetByID(ctx context.Context, id string) (*models.Action, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.read(id)
}

func (r *ActionRepository) Save(ctx context.Context, action *models.Action) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, err := r.read(action.ID)
	if err != nil {
		return err
	}

	if current != nil {
		mergeRealizedROI(action, current)
	}

	return r.write(action)
}

// mergeRealizedROI carries the stored realized ROI over into action.
// Attribution upserts the map without bumping the version, so a writer's
// snapshot may lag; the stored values win over the stale ones.
func mergeRealizedROI(action, current *models.Action) {
	for window, delta := range current.RealizedROI {
		if action.RealizedROI == nil {
			action.RealizedROI = make(map[models.AttributionWindow]float64)
		}

		action.RealizedROI[window] = delta
	}
}

func (r *ActionRepository) CompareAndSwap(ctx context.Context, action *models.Action, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, err := r.read(action.ID)
	if err != nil {
		return err
	}

	if current == nil {
		return persistence.NewActionError("CompareAndSwap", action.ID, persistence.ErrActionNotFound)
	}

	if current.Version != expectedVersion {
		return persistence.NewActionError("CompareAndSwap", action.ID, persistence.ErrVersionConflict)
	}

	mergeRealizedROI(action, current)

	action.Version = expectedVersion + 1

	return r.write(action)
}

func (r *ActionRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	action, err := r.read(id)
	if err != nil {
		return err
	}

	if action == nil {
		return persistence.NewActionError("Delete", id, persistence.ErrActionNotFound)
	}

	now := time.Now().UTC()
	action.DeletedAt = &now

	return r.write(action)
}

func (r *ActionRepository) CountByState(ctx context.Context) (persistence.StateCounts, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	all, err := r.all()
	if err != nil {
		return nil, err
	}

	counts := make(persistence.StateCounts)
	for _, action := range all {
		counts[action.State]++
	}

	return counts, nil
}

func (r *ActionRepository) SuccessRates(ctx context.Context) (map[models.ActionKind]float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	all, err := r.all()
	if err != nil {
		return nil, err
	}

	learned := make(map[models.ActionKind]int)
	positive := make(map[models.ActionKind]int)

	for _, action := range all {
		if action.State != models.ActionStateLearned {
			continue
		}

		learned[action.Kind]++

		if _, roi, ok := action.LongestRealizedWindow(); ok && roi > 0 {
			positive[action.Kind]++
		}
	}

	rates := make(map[models.ActionKind]float64, len(learned))
	for kind, total := range learned {
		rates[kind] = float64(positive[kind]) / float64(total)
	}

	return rates, nil
}

func (r *ActionRepository) PendingAttribution(ctx context.Context) ([]*models.Action, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	all, err := r.all()
	if err != nil {
		return nil, err
	}

	pending := make([]*models.Action, 0)

	for _, action := range all {
		switch action.State {
		case models.ActionStateApproved, models.ActionStateApplied, models.ActionStateAudited:
			pending = append(pending, action)
		}
	}

	sort.SliceStable(pending, func(i, j int) bool {
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})

	return pending, nil
}

func (r *ActionRepository) UpdateRealizedROI(ctx context.Context, id string, window models.AttributionWindow, revenueDelta float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	action, err := r.read(id)
	if err != nil {
		return err
	}

	if action == nil {
		return persistence.NewActionError("UpdateRealizedROI", id, persistence.ErrActionNotFound)
	}

	action.SetRealizedROI(window, revenueDelta)
	action.UpdatedAt = time.Now().UTC()

	return r.write(action)
}
