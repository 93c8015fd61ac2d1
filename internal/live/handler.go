package live

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pulse-live/backend/internal/middleware"
	"github.com/pulse-live/backend/internal/models"
	"github.com/pulse-live/backend/pkg/response"
)

// Handler handles live session HTTP endpoints.
type Handler struct {
	svc *Service
}

// NewHandler creates a live session handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// callerID returns the authenticated user ID, or "" for anonymous callers.
func callerID(c *gin.Context) string {
	if v, ok := c.Get(middleware.ContextUserID); ok {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

// Create handles POST /live/activities (host).
func (h *Handler) Create(c *gin.Context) {
	var req CreateSessionInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	sess, err := h.svc.CreateSession(c.Request.Context(), callerID(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, sess)
}

// ListByHost handles GET /live/activities/host.
func (h *Handler) ListByHost(c *gin.Context) {
	sessions, err := h.svc.SessionsByHost(c.Request.Context(), callerID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, sessions)
}

// UpdateDetailsRequest is the body for PATCH /live/activities/:id/details.
type UpdateDetailsRequest struct {
	Title       string                  `json:"title"`
	Description string                  `json:"description"`
	Settings    *models.SessionSettings `json:"settings"`
}

// UpdateDetails handles PATCH /live/activities/:id/details (host).
func (h *Handler) UpdateDetails(c *gin.Context) {
	var req UpdateDetailsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	sess, err := h.svc.UpdateDetails(c.Request.Context(), c.Param("id"), callerID(c), req.Title, req.Description, req.Settings)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, sess)
}

// GetByPIN handles GET /live/activities/pin/:pin (public).
func (h *Handler) GetByPIN(c *gin.Context) {
	summary, err := h.svc.SessionByPIN(c.Request.Context(), c.Param("pin"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, summary)
}

// ToggleLive handles PATCH /live/activities/:id/toggle (host).
func (h *Handler) ToggleLive(c *gin.Context) {
	sess, err := h.svc.ToggleLive(c.Request.Context(), c.Param("id"), callerID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"id": sess.ID, "isLive": sess.IsLive, "currentQuestionIndex": sess.CurrentQuestionIndex})
}

// NavigateRequest is the body for PATCH /live/activities/:id/navigate.
type NavigateRequest struct {
	QuestionIndex *int   `json:"questionIndex"`
	QuestionID    string `json:"questionId"`
}

// Navigate handles PATCH /live/activities/:id/navigate (host).
func (h *Handler) Navigate(c *gin.Context) {
	var req NavigateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	index := -1
	if req.QuestionIndex != nil {
		index = *req.QuestionIndex
	}
	res, err := h.svc.Navigate(c.Request.Context(), c.Param("id"), callerID(c), index, req.QuestionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, res)
}

// JoinRequest is the body for POST /live/activities/:id/join.
type JoinRequest struct {
	Nickname    string `json:"nickname"`
	IsAnonymous bool   `json:"isAnonymous"`
}

// Join handles POST /live/activities/:id/join. Token optional: identified
// callers upsert on rejoin, anonymous callers get a fresh participant.
func (h *Handler) Join(c *gin.Context) {
	var req JoinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	res, err := h.svc.Join(c.Request.Context(), c.Param("id"), callerID(c), req.Nickname, req.IsAnonymous)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, res)
}

// GetParticipant handles GET /live/participants/:participantId.
func (h *Handler) GetParticipant(c *gin.Context) {
	p, err := h.svc.ParticipantInfo(c.Request.Context(), c.Param("participantId"), callerID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, p)
}

// SubmitResponseRequest is the body for POST /live/activities/:id/responses.
type SubmitResponseRequest struct {
	ParticipantID string `json:"participantId" binding:"required"`
	QuestionID    string `json:"questionId"`
	QuestionIndex int    `json:"questionIndex"`
	Answer        string `json:"answer" binding:"required"`
	ResponseTime  int64  `json:"responseTime"`
}

// SubmitResponse handles POST /live/activities/:id/responses.
func (h *Handler) SubmitResponse(c *gin.Context) {
	var req SubmitResponseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	err := h.svc.SubmitResponse(c.Request.Context(), c.Param("id"), req.ParticipantID, ResponseInput{
		QuestionID:     req.QuestionID,
		QuestionIndex:  req.QuestionIndex,
		Answer:         req.Answer,
		ResponseTimeMs: req.ResponseTime,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"recorded": true})
}

// CreatePoll handles POST /live/activities/:id/polls (host).
func (h *Handler) CreatePoll(c *gin.Context) {
	var req PollInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	res, err := h.svc.AppendPoll(c.Request.Context(), c.Param("id"), callerID(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, res)
}

// VoteRequest is the body for POST /live/activities/:id/vote.
type VoteRequest struct {
	ParticipantID string `json:"participantId" binding:"required"`
	PollID        string `json:"pollId" binding:"required"`
	Option        string `json:"option" binding:"required"`
}

// Vote handles POST /live/activities/:id/vote.
func (h *Handler) Vote(c *gin.Context) {
	var req VoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if err := h.svc.SubmitVote(c.Request.Context(), c.Param("id"), req.ParticipantID, req.PollID, req.Option); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"recorded": true})
}

// ListActivePolls handles GET /live/activities/:id/polls.
func (h *Handler) ListActivePolls(c *gin.Context) {
	polls, err := h.svc.ActivePolls(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"polls": polls, "count": len(polls)})
}

// PollResults handles GET /live/activities/:id/polls/:pollId/results.
func (h *Handler) PollResults(c *gin.Context) {
	res, err := h.svc.ItemResults(c.Request.Context(), c.Param("id"), c.Param("pollId"), callerID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, res)
}

// Results handles GET /live/activities/:id/results and
// /live/activities/:id/results/:index. Without an index the current
// question is aggregated.
func (h *Handler) Results(c *gin.Context) {
	index := -1
	if raw := c.Param("index"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			response.BadRequest(c, "invalid question index")
			return
		}
		index = n
	}
	res, err := h.svc.Results(c.Request.Context(), c.Param("id"), index, callerID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, res)
}

// ReactRequest is the body for POST /live/activities/:id/react.
type ReactRequest struct {
	ParticipantID string              `json:"participantId" binding:"required"`
	QuestionIndex int                 `json:"questionIndex"`
	Reaction      models.ReactionKind `json:"reaction" binding:"required"`
}

// React handles POST /live/activities/:id/react.
func (h *Handler) React(c *gin.Context) {
	var req ReactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if err := h.svc.SubmitReaction(c.Request.Context(), c.Param("id"), req.ParticipantID, req.QuestionIndex, req.Reaction); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"recorded": true})
}

// Reactions handles GET /live/activities/:id/questions/:questionId/reactions.
// The path segment is the question index; it shares the :questionId name
// with the Q&A routes because the router requires one wildcard per position.
func (h *Handler) Reactions(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("questionId"))
	if err != nil {
		response.BadRequest(c, "invalid question index")
		return
	}
	summary, err := h.svc.Reactions(c.Request.Context(), c.Param("id"), index)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, summary)
}

// Status handles GET /live/activities/:id/status?since=RFC3339. A missing or
// malformed cursor forces a full update.
func (h *Handler) Status(c *gin.Context) {
	var since time.Time
	if raw := c.Query("since"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			since = t
		}
	}
	st, err := h.svc.Status(c.Request.Context(), c.Param("id"), since)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, st)
}

// Export handles GET /live/activities/:id/export (host). Streams CSV.
func (h *Handler) Export(c *gin.Context) {
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "session-"+c.Param("id")+".csv"))
	if err := h.svc.ExportCSV(c.Request.Context(), c.Param("id"), callerID(c), c.Writer); err != nil {
		response.Error(c, err)
		return
	}
}
