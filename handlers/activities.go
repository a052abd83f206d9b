package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rafaaw/ActivityPro-sub000/engine"
	"github.com/rafaaw/ActivityPro-sub000/models"
	"github.com/rafaaw/ActivityPro-sub000/types"
)

// UserDirectory resolves authenticated user IDs to collaborator records.
// Satisfied by repository.UsersRepository; tests supply a stub.
type UserDirectory interface {
	GetUserByID(ctx context.Context, id int) (*models.Collaborator, error)
}

type ActivitiesHandler struct {
	engine *engine.Engine
	users  UserDirectory
}

func NewActivitiesHandler(eng *engine.Engine, users UserDirectory) *ActivitiesHandler {
	return &ActivitiesHandler{engine: eng, users: users}
}

// writeEngineError maps domain errors from the engine onto the API
// envelope. Every expected condition gets a distinct code and enough detail
// for a precise user-facing message.
func writeEngineError(c *gin.Context, err error) {
	var (
		validation *engine.ValidationError
		transition *engine.InvalidTransitionError
		active     *engine.AlreadyActiveError
		subtasks   *engine.IncompleteSubtasksError
		timeErr    *engine.InsufficientTimeError
		retro      *engine.InvalidRetroactiveRangeError
		locked     *engine.ActivityLockedError
		adjust     *engine.AdjustmentNotAllowedError
	)
	switch {
	case errors.Is(err, engine.ErrNotFound):
		c.JSON(http.StatusNotFound, types.NewErrorResponse(types.ErrorCodeNotFound, "Activity not found"))
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.ErrorCodeValidation, validation.Error()))
	case errors.As(err, &retro):
		c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.ErrorCodeInvalidRetroactive, retro.Error()))
	case errors.As(err, &active):
		c.JSON(http.StatusConflict, types.NewErrorResponseWithDetails(
			types.ErrorCodeAlreadyActive, active.Error(),
			map[string]interface{}{"activeActivityId": active.ActiveID}))
	case errors.As(err, &transition):
		c.JSON(http.StatusConflict, types.NewErrorResponseWithDetails(
			types.ErrorCodeInvalidTransition, transition.Error(),
			map[string]interface{}{"from": transition.From, "to": transition.To}))
	case errors.As(err, &subtasks):
		c.JSON(http.StatusConflict, types.NewErrorResponseWithDetails(
			types.ErrorCodeIncompleteSubtasks, subtasks.Error(),
			map[string]interface{}{"remaining": subtasks.Remaining}))
	case errors.As(err, &timeErr):
		c.JSON(http.StatusConflict, types.NewErrorResponseWithDetails(
			types.ErrorCodeInsufficientTime, timeErr.Error(),
			map[string]interface{}{"available": timeErr.Available}))
	case errors.As(err, &locked):
		c.JSON(http.StatusConflict, types.NewErrorResponse(types.ErrorCodeActivityLocked, locked.Error()))
	case errors.As(err, &adjust):
		c.JSON(http.StatusConflict, types.NewErrorResponse(types.ErrorCodeAdjustmentForbidden, adjust.Error()))
	default:
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse(types.ErrorCodeInternal, err.Error()))
	}
}

func pathID(c *gin.Context, name string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.ErrorCodeValidation, "Invalid "+name))
		return 0, false
	}
	return id, true
}

func (h *ActivitiesHandler) CreateActivity(c *gin.Context) {
	var req struct {
		Title      string     `json:"title"`
		Kind       string     `json:"kind"`
		Priority   string     `json:"priority"`
		Plant      string     `json:"plant"`
		Subtasks   []string   `json:"subtasks"`
		StartNow   bool       `json:"startNow"`
		RetroStart *time.Time `json:"retroStart"`
		RetroEnd   *time.Time `json:"retroEnd"`
		Notes      *string    `json:"completionNotes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.ErrorCodeValidation, err.Error()))
		return
	}
	userID := c.GetInt("userId")
	user, err := h.users.GetUserByID(c.Request.Context(), userID)
	if err != nil || user == nil {
		c.JSON(http.StatusUnauthorized, types.NewErrorResponse(types.ErrorCodeUnauthorized, "Unknown user"))
		return
	}
	created, err := h.engine.CreateActivity(c.Request.Context(), engine.CreateParams{
		Title:           req.Title,
		Kind:            models.Kind(req.Kind),
		Priority:        models.Priority(req.Priority),
		Plant:           req.Plant,
		OwnerID:         userID,
		SectorID:        user.SectorID,
		ActorID:         userID,
		Subtasks:        req.Subtasks,
		StartNow:        req.StartNow,
		RetroStart:      req.RetroStart,
		RetroEnd:        req.RetroEnd,
		CompletionNotes: req.Notes,
	})
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusCreated, types.NewSuccessResponse(created))
}

func (h *ActivitiesHandler) GetActivity(c *gin.Context) {
	id, ok := pathID(c, "activityId")
	if !ok {
		return
	}
	activity, err := h.engine.GetActivity(c.Request.Context(), id)
	if err != nil {
		writeEngineError(c, err)
		return
	}
	// The open session rides along so clients can compute the live elapsed
	// display locally: total + (now - openSession.startedAt).
	open, err := h.engine.GetOpenSession(c.Request.Context(), id)
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, types.NewSuccessResponse(gin.H{
		"activity":    activity,
		"openSession": open,
	}))
}

func (h *ActivitiesHandler) ListActivities(c *gin.Context) {
	userID := c.GetInt("userId")
	if c.Query("all") == "1" {
		user, err := h.users.GetUserByID(c.Request.Context(), userID)
		if err != nil || user == nil {
			c.JSON(http.StatusUnauthorized, types.NewErrorResponse(types.ErrorCodeUnauthorized, "Unknown user"))
			return
		}
		if !user.IsAdmin {
			c.JSON(http.StatusForbidden, types.NewErrorResponse(types.ErrorCodeForbidden, "Admin access required"))
			return
		}
		activities, err := h.engine.ListAll(c.Request.Context())
		if err != nil {
			writeEngineError(c, err)
			return
		}
		c.JSON(http.StatusOK, types.NewSuccessResponse(activities))
		return
	}
	activities, err := h.engine.ListByCollaborator(c.Request.Context(), userID)
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, types.NewSuccessResponse(activities))
}

func (h *ActivitiesHandler) ListBySector(c *gin.Context) {
	sectorID, ok := pathID(c, "sectorId")
	if !ok {
		return
	}
	activities, err := h.engine.ListBySector(c.Request.Context(), sectorID)
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, types.NewSuccessResponse(activities))
}

func (h *ActivitiesHandler) UpdateActivity(c *gin.Context) {
	id, ok := pathID(c, "activityId")
	if !ok {
		return
	}
	var req struct {
		Title    string `json:"title"`
		Priority string `json:"priority"`
		Plant    string `json:"plant"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.ErrorCodeValidation, err.Error()))
		return
	}
	updated, err := h.engine.UpdateDetails(c.Request.Context(), id, c.GetInt("userId"), req.Title, models.Priority(req.Priority), req.Plant)
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, types.NewSuccessResponse(updated))
}

// transition is the shared body of the start/pause/complete/cancel/revert
// endpoints.
func (h *ActivitiesHandler) transition(c *gin.Context, target models.Status, extra engine.TransitionExtra) {
	id, ok := pathID(c, "activityId")
	if !ok {
		return
	}
	updated, err := h.engine.Transition(c.Request.Context(), id, c.GetInt("userId"), target, extra)
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, types.NewSuccessResponse(updated))
}

func (h *ActivitiesHandler) StartActivity(c *gin.Context) {
	h.transition(c, models.StatusInProgress, engine.TransitionExtra{})
}

func (h *ActivitiesHandler) PauseActivity(c *gin.Context) {
	h.transition(c, models.StatusPaused, engine.TransitionExtra{})
}

func (h *ActivitiesHandler) CompleteActivity(c *gin.Context) {
	var req struct {
		Notes      *string `json:"completionNotes"`
		EvidenceID *string `json:"evidenceId"`
	}
	// ContentLength is -1 for chunked requests, which still carry a body.
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.ErrorCodeValidation, err.Error()))
			return
		}
	}
	h.transition(c, models.StatusCompleted, engine.TransitionExtra{
		CompletionNotes: req.Notes,
		EvidenceID:      req.EvidenceID,
	})
}

func (h *ActivitiesHandler) CancelActivity(c *gin.Context) {
	var req struct {
		Reason string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.ErrorCodeValidation, err.Error()))
		return
	}
	h.transition(c, models.StatusCancelled, engine.TransitionExtra{CancelReason: req.Reason})
}

// RevertActivity is the administrative completed -> paused revert.
func (h *ActivitiesHandler) RevertActivity(c *gin.Context) {
	h.transition(c, models.StatusPaused, engine.TransitionExtra{})
}

func (h *ActivitiesHandler) AdjustTime(c *gin.Context) {
	id, ok := pathID(c, "activityId")
	if !ok {
		return
	}
	var req struct {
		Amount    int64  `json:"amountSeconds"`
		Direction string `json:"direction"`
		Reason    string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.ErrorCodeValidation, err.Error()))
		return
	}
	updated, err := h.engine.AdjustTime(c.Request.Context(), id, c.GetInt("userId"), req.Amount, engine.Direction(req.Direction), req.Reason)
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, types.NewSuccessResponse(updated))
}

func (h *ActivitiesHandler) ToggleSubtask(c *gin.Context) {
	id, ok := pathID(c, "subtaskId")
	if !ok {
		return
	}
	var req struct {
		Completed *bool `json:"completed"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Completed == nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.ErrorCodeValidation, "completed is required"))
		return
	}
	updated, err := h.engine.ToggleSubtask(c.Request.Context(), id, c.GetInt("userId"), *req.Completed)
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, types.NewSuccessResponse(updated))
}

func (h *ActivitiesHandler) ListSubtasks(c *gin.Context) {
	id, ok := pathID(c, "activityId")
	if !ok {
		return
	}
	subtasks, err := h.engine.ListSubtasks(c.Request.Context(), id)
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, types.NewSuccessResponse(subtasks))
}

func (h *ActivitiesHandler) ListSessions(c *gin.Context) {
	id, ok := pathID(c, "activityId")
	if !ok {
		return
	}
	sessions, err := h.engine.ListSessions(c.Request.Context(), id)
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, types.NewSuccessResponse(sessions))
}

func (h *ActivitiesHandler) ListActivityLog(c *gin.Context) {
	id, ok := pathID(c, "activityId")
	if !ok {
		return
	}
	log, err := h.engine.ListActivityLog(c.Request.Context(), id)
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, types.NewSuccessResponse(log))
}

func (h *ActivitiesHandler) ListTimeAdjustments(c *gin.Context) {
	id, ok := pathID(c, "activityId")
	if !ok {
		return
	}
	entries, err := h.engine.ListTimeAdjustments(c.Request.Context(), id)
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, types.NewSuccessResponse(entries))
}
