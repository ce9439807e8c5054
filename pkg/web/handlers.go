// Package web provides the HTTP handlers for the action queue REST API.
package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/hotdash/actionqueue/pkg/attribution"
	"github.com/hotdash/actionqueue/pkg/models"
	"github.com/hotdash/actionqueue/pkg/ranking"
	"github.com/hotdash/actionqueue/pkg/services"
)

type APIHandlers struct {
	actionService  *services.Action
	rankingService *services.Ranking
	reranker       *attribution.Reranker
	validator      *validator.Validate
}

func NewAPIHandlers(
	actionService *services.Action,
	rankingService *services.Ranking,
	reranker *attribution.Reranker,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		actionService:  actionService,
		rankingService: rankingService,
		reranker:       reranker,
		validator:      validator,
	}
}

// GetActions lists the queue. With ?rank=<version> it returns the scored
// ordering of the pending-review set instead of the raw listing.
func (h *APIHandlers) GetActions(c fiber.Ctx) error {
	if version := c.Query("rank"); version != "" {
		return h.getRankedActions(c, ranking.Version(version))
	}

	req, err := h.parseListActionsRequest(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	result, err := h.actionService.List(c.Context(), *req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"actions":       result.Actions,
		"total_count":   result.TotalCount,
		"has_next_page": result.HasNextPage,
		"pagination": fiber.Map{
			"limit":  req.Limit,
			"offset": req.Offset,
		},
		"sorting": fiber.Map{
			"sort_by":    req.SortBy,
			"sort_order": req.SortOrder,
		},
	})
}

func (h *APIHandlers) getRankedActions(c fiber.Ctx, version ranking.Version) error {
	limit := 0

	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil {
			return badRequest(c, "Invalid limit: "+err.Error())
		}

		limit = parsed
	}

	result, err := h.rankingService.RankPending(c.Context(), version, limit)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(result)
}

// parseListActionsRequest parses and validates query parameters for listing actions.
func (h *APIHandlers) parseListActionsRequest(c fiber.Ctx) (*services.ListActionsRequest, error) {
	req := &services.ListActionsRequest{}

	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			return nil, err
		}

		req.Limit = limit
	}

	if offsetStr := c.Query("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil {
			return nil, err
		}

		req.Offset = offset
	}

	if stateStr := c.Query("state"); stateStr != "" {
		state := models.ActionState(stateStr)
		req.State = &state
	}

	if kindStr := c.Query("kind"); kindStr != "" {
		kind := models.ActionKind(kindStr)
		req.Kind = &kind
	}

	req.Agent = c.Query("agent")
	req.SortBy = c.Query("sort_by")
	req.SortOrder = c.Query("sort_order")

	return req, nil
}

func (h *APIHandlers) CreateAction(c fiber.Ctx) error {
	var req CreateActionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.actionService.Create(c.Context(), services.CreateActionRequest{
		Kind:     models.ActionKind(req.Kind),
		Draft:    req.Draft,
		Agent:    req.Agent,
		Evidence: req.Evidence,
		Impact:   req.Impact,
		Risk:     req.Risk,
		Rollback: req.Rollback,
		Factors:  req.Factors,
		Calls:    req.Calls,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) GetAction(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Action ID is required")
	}

	action, err := h.actionService.FetchByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(action)
}

func (h *APIHandlers) GetActionsSummary(c fiber.Ctx) error {
	counts, err := h.actionService.Summary(c.Context())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"counts": counts})
}

// ValidateAction runs the evidence and rollback gate without transitioning.
func (h *APIHandlers) ValidateAction(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Action ID is required")
	}

	result, err := h.actionService.Validate(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	if !result.OK {
		return c.Status(fiber.StatusBadRequest).JSON(TransformValidateResponse(result))
	}

	return c.JSON(TransformValidateResponse(result))
}

func (h *APIHandlers) GetActionDecisions(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Action ID is required")
	}

	decisions, err := h.actionService.Decisions(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"decisions": decisions})
}

func (h *APIHandlers) SubmitAction(c fiber.Ctx) error {
	return h.decide(c, func(id string, req DecisionRequest) (*models.Action, error) {
		return h.actionService.Submit(c.Context(), id, req.Actor)
	})
}

func (h *APIHandlers) ApproveAction(c fiber.Ctx) error {
	return h.decide(c, func(id string, req DecisionRequest) (*models.Action, error) {
		return h.actionService.Approve(c.Context(), id, req.Actor, req.Reason)
	})
}

func (h *APIHandlers) RejectAction(c fiber.Ctx) error {
	return h.decide(c, func(id string, req DecisionRequest) (*models.Action, error) {
		return h.actionService.Reject(c.Context(), id, req.Actor, req.Reason)
	})
}

func (h *APIHandlers) RequestChangesAction(c fiber.Ctx) error {
	return h.decide(c, func(id string, req DecisionRequest) (*models.Action, error) {
		return h.actionService.RequestChanges(c.Context(), id, req.Actor, req.Reason)
	})
}

func (h *APIHandlers) AuditAction(c fiber.Ctx) error {
	return h.decide(c, func(id string, req DecisionRequest) (*models.Action, error) {
		return h.actionService.Audit(c.Context(), id, req.Actor)
	})
}

func (h *APIHandlers) LearnAction(c fiber.Ctx) error {
	return h.decide(c, func(id string, req DecisionRequest) (*models.Action, error) {
		return h.actionService.Learn(c.Context(), id, req.Actor)
	})
}

// decide is the shared shape of every transition endpoint: parse the
// decision body, run the transition, return the updated action.
func (h *APIHandlers) decide(c fiber.Ctx, transition func(id string, req DecisionRequest) (*models.Action, error)) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Action ID is required")
	}

	var req DecisionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	action, err := transition(id, req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(action)
}

func (h *APIHandlers) ApplyAction(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Action ID is required")
	}

	var req ApplyRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	action, err := h.actionService.Apply(c.Context(), id, req.Actor, req.SkipDryRun)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(action)
}

// RefreshAttribution queues an on-demand realized-ROI refresh. The rate
// limiter drains the queue; the caller polls the action for results.
func (h *APIHandlers) RefreshAttribution(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Action ID is required")
	}

	if _, err := h.actionService.FetchByID(c.Context(), id); err != nil {
		return handleServiceError(c, err)
	}

	if err := h.reranker.Enqueue(c.Context(), id); err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"action_id": id,
		"status":    "queued",
	})
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, repOk := h.actionService.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Action queue API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if repOk {
		status = "healthy"
		message = "Action queue API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}
