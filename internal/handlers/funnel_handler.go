package handlers

import (
	"errors"
	"log"
	"net/http"

	"match-service/internal/dto"
	"match-service/internal/models"
	"match-service/internal/service"

	"github.com/gin-gonic/gin"
)

type FunnelHandler struct {
	funnelService *service.FunnelService
}

func NewFunnelHandler(funnelService *service.FunnelService) *FunnelHandler {
	return &FunnelHandler{
		funnelService: funnelService,
	}
}

// GateSubmit handles POST /quizzes/:quizID/versions/:versionID/leads.
// Validation failures are 400 with the offending field; nothing is persisted
// on failure.
func (h *FunnelHandler) GateSubmit(c *gin.Context) {
	workspaceID := c.Query("workspace")
	if workspaceID == "" {
		dto.JsonError(c, http.StatusBadRequest, "workspace query parameter is required")
		return
	}

	var req service.GateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.JsonError(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.funnelService.GateSubmit(
		c.Request.Context(),
		c.Param("quizID"),
		c.Param("versionID"),
		workspaceID,
		&req,
	)
	if err != nil {
		var vErr *service.ValidationError
		if errors.As(err, &vErr) {
			dto.JsonFieldError(c, http.StatusBadRequest, vErr.Field, vErr.Message)
			return
		}
		dto.JsonError(c, http.StatusInternalServerError, err.Error())
		return
	}

	c.JSON(http.StatusCreated, result)
}

// SaveProgress handles PUT /leads/:leadID/progress. The payload is a full
// snapshot; the stored state is replaced wholesale.
func (h *FunnelHandler) SaveProgress(c *gin.Context) {
	var snapshot service.ProgressSnapshot
	if err := c.ShouldBindJSON(&snapshot); err != nil {
		dto.JsonError(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	err := h.funnelService.SaveProgress(c.Request.Context(), c.Param("leadID"), &snapshot)
	if err != nil {
		var vErr *service.ValidationError
		if errors.As(err, &vErr) {
			dto.JsonFieldError(c, http.StatusBadRequest, vErr.Field, vErr.Message)
			return
		}
		dto.JsonError(c, http.StatusInternalServerError, err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "saved"})
}

// SaveProgressBeacon handles POST /leads/:leadID/progress/beacon, the unload
// path. Always 204: the sender is gone by the time we answer, so failures are
// only logged. Same payload shape as the regular save.
func (h *FunnelHandler) SaveProgressBeacon(c *gin.Context) {
	var snapshot service.ProgressSnapshot
	if err := c.ShouldBindJSON(&snapshot); err != nil {
		c.Status(http.StatusNoContent)
		return
	}

	if err := h.funnelService.SaveProgress(c.Request.Context(), c.Param("leadID"), &snapshot); err != nil {
		log.Printf("Warning: beacon save failed for lead %s: %v", c.Param("leadID"), err)
	}

	c.Status(http.StatusNoContent)
}

// Resume handles GET /resume?lead_id=&token=. 410 means the link is dead and
// the client should offer a fresh start.
func (h *FunnelHandler) Resume(c *gin.Context) {
	leadID := c.Query("lead_id")
	tokenString := c.Query("token")
	if leadID == "" || tokenString == "" {
		dto.JsonError(c, http.StatusBadRequest, "lead_id and token query parameters are required")
		return
	}

	state, err := h.funnelService.Resume(c.Request.Context(), leadID, tokenString)
	if err != nil {
		if errors.Is(err, service.ErrResumeUnavailable) {
			dto.JsonError(c, http.StatusGone, "This resume link is no longer valid")
			return
		}
		dto.JsonError(c, http.StatusInternalServerError, err.Error())
		return
	}

	c.JSON(http.StatusOK, state)
}

type scoreRequest struct {
	Responses map[string]models.Answer `json:"responses"`
}

// Score handles POST /leads/:leadID/score. Catalog problems are 422 so a
// config bug never masquerades as "no matches".
func (h *FunnelHandler) Score(c *gin.Context) {
	var req scoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.JsonError(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	outcome, err := h.funnelService.ScoreAndRecordOutcome(c.Request.Context(), c.Param("leadID"), req.Responses)
	if err != nil {
		dto.JsonError(c, http.StatusUnprocessableEntity, err.Error())
		return
	}

	c.JSON(http.StatusOK, outcome)
}

func (h *FunnelHandler) StartReadiness(c *gin.Context) {
	err := h.funnelService.StartReadiness(c.Request.Context(), c.Param("leadID"), c.Param("programID"))
	if err != nil {
		var vErr *service.ValidationError
		if errors.As(err, &vErr) {
			dto.JsonFieldError(c, http.StatusBadRequest, vErr.Field, vErr.Message)
			return
		}
		dto.JsonError(c, http.StatusInternalServerError, err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "started"})
}

type readinessRequest struct {
	Responses map[string]models.Answer `json:"responses"`
}

func (h *FunnelHandler) CompleteReadiness(c *gin.Context) {
	var req readinessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.JsonError(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	readiness, err := h.funnelService.CompleteReadiness(c.Request.Context(), c.Param("leadID"), c.Param("programID"), req.Responses)
	if err != nil {
		var vErr *service.ValidationError
		if errors.As(err, &vErr) {
			dto.JsonFieldError(c, http.StatusBadRequest, vErr.Field, vErr.Message)
			return
		}
		dto.JsonError(c, http.StatusUnprocessableEntity, err.Error())
		return
	}

	c.JSON(http.StatusOK, readiness)
}

func (h *FunnelHandler) ResendResumeEmail(c *gin.Context) {
	if err := h.funnelService.ResendResumeEmail(c.Request.Context(), c.Param("leadID")); err != nil {
		dto.JsonError(c, http.StatusInternalServerError, err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "sent"})
}

// ClientEvent handles POST /events: client-side funnel analytics such as
// gate_viewed. Fire-and-forget from the client's perspective.
func (h *FunnelHandler) ClientEvent(c *gin.Context) {
	var event models.FunnelEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		dto.JsonError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if event.Event == "" {
		dto.JsonError(c, http.StatusBadRequest, "event name is required")
		return
	}

	h.funnelService.PublishClientEvent(c.Request.Context(), &event)

	c.Status(http.StatusAccepted)
}

// PublishQuizVersion handles POST /admin/quizzes/:quizID/versions/:versionID.
// The body is the full quiz configuration; it is validated before anything is
// stored.
func (h *FunnelHandler) PublishQuizVersion(c *gin.Context) {
	workspaceID := c.Query("workspace")
	if workspaceID == "" {
		dto.JsonError(c, http.StatusBadRequest, "workspace query parameter is required")
		return
	}

	body, err := c.GetRawData()
	if err != nil {
		dto.JsonError(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	err = h.funnelService.PublishQuizVersion(
		c.Request.Context(),
		c.Param("quizID"),
		c.Param("versionID"),
		workspaceID,
		body,
	)
	if err != nil {
		dto.JsonError(c, http.StatusUnprocessableEntity, err.Error())
		return
	}

	c.JSON(http.StatusCreated, gin.H{"status": "published"})
}

// EmbedConfig handles GET /embed/config: the public bootstrap payload for the
// script-tag and iframe deployments. Scoring weights are stripped.
func (h *FunnelHandler) EmbedConfig(c *gin.Context) {
	quizID := c.Query("quiz")
	versionID := c.Query("version")
	workspaceID := c.Query("workspace")
	if quizID == "" || versionID == "" || workspaceID == "" {
		dto.JsonError(c, http.StatusBadRequest, "quiz, version, and workspace query parameters are required")
		return
	}

	view, err := h.funnelService.GetEmbedConfig(c.Request.Context(), quizID, versionID, workspaceID)
	if err != nil {
		dto.JsonError(c, http.StatusNotFound, err.Error())
		return
	}

	c.JSON(http.StatusOK, view)
}
