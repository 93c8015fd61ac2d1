package qa

import (
	"github.com/gin-gonic/gin"

	"github.com/pulse-live/backend/internal/middleware"
	"github.com/pulse-live/backend/internal/models"
	"github.com/pulse-live/backend/pkg/response"
)

// Handler handles Q&A HTTP endpoints.
type Handler struct {
	svc *Service
}

// NewHandler creates a Q&A handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func hostID(c *gin.Context) string {
	if v, ok := c.Get(middleware.ContextUserID); ok {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

// SubmitRequest is the body for question and reply submission.
type SubmitRequest struct {
	ParticipantID string `json:"participantId"`
	Nickname      string `json:"nickname"`
	Question      string `json:"question" binding:"required"`
	IsAnonymous   bool   `json:"isAnonymous"`
}

// Submit handles POST /live/activities/:id/questions.
func (h *Handler) Submit(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	q, err := h.svc.Submit(c.Request.Context(), c.Param("id"), SubmitInput{
		ParticipantID: req.ParticipantID,
		Nickname:      req.Nickname,
		Question:      req.Question,
		IsAnonymous:   req.IsAnonymous,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, q)
}

// Reply handles POST /live/activities/:id/questions/:questionId/replies.
func (h *Handler) Reply(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	q, err := h.svc.Reply(c.Request.Context(), c.Param("id"), c.Param("questionId"), SubmitInput{
		ParticipantID: req.ParticipantID,
		Nickname:      req.Nickname,
		Question:      req.Question,
		IsAnonymous:   req.IsAnonymous,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, q)
}

// List handles GET /live/activities/:id/questions?status=&threaded=.
func (h *Handler) List(c *gin.Context) {
	threads, err := h.svc.List(c.Request.Context(), c.Param("id"), ListInput{
		Status:   models.QAStatus(c.Query("status")),
		Threaded: c.Query("threaded") == "true",
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"questions": threads, "count": len(threads)})
}

// UpvoteRequest is the body for POST .../questions/:questionId/upvote.
type UpvoteRequest struct {
	ParticipantID string `json:"participantId" binding:"required"`
}

// Upvote handles POST /live/activities/:id/questions/:questionId/upvote.
func (h *Handler) Upvote(c *gin.Context) {
	var req UpvoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	res, err := h.svc.Upvote(c.Request.Context(), c.Param("id"), c.Param("questionId"), req.ParticipantID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, res)
}

// AnswerRequest is the body for POST .../questions/:questionId/answer.
type AnswerRequest struct {
	Answer string `json:"answer" binding:"required"`
}

// Answer handles POST /live/activities/:id/questions/:questionId/answer (host).
func (h *Handler) Answer(c *gin.Context) {
	var req AnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	q, err := h.svc.Answer(c.Request.Context(), c.Param("id"), c.Param("questionId"), hostID(c), req.Answer)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, q)
}

// Dismiss handles POST /live/activities/:id/questions/:questionId/dismiss (host).
func (h *Handler) Dismiss(c *gin.Context) {
	q, err := h.svc.Dismiss(c.Request.Context(), c.Param("id"), c.Param("questionId"), hostID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, q)
}
