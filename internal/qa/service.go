// Package qa implements the audience question flow: submission, two-level
// threaded replies, upvote toggling and host moderation. Q&A documents are
// persisted independently of the session so moderation can continue after a
// session stops.
package qa

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pulse-live/backend/internal/apperr"
	"github.com/pulse-live/backend/internal/models"
	"github.com/pulse-live/backend/internal/store"
)

// Service executes Q&A operations against the shared store.
type Service struct {
	store  store.Store
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates the Q&A service.
func NewService(st store.Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: st, logger: logger, now: time.Now}
}

// SubmitInput is an audience question or reply.
type SubmitInput struct {
	ParticipantID string `json:"participantId"`
	Nickname      string `json:"nickname"`
	Question      string `json:"question"`
	IsAnonymous   bool   `json:"isAnonymous"`
}

// Submit records a new top-level question. The session must allow questions,
// and a supplied participant ID must belong to a participant of this session.
func (s *Service) Submit(ctx context.Context, activityID string, in SubmitInput) (*models.QAQuestion, error) {
	sess, err := s.store.Session(ctx, activityID)
	if err != nil {
		return nil, err
	}
	if !sess.Settings.AllowQuestions {
		return nil, apperr.Forbidden("questions are disabled for this session")
	}
	if err := s.verifyParticipant(ctx, activityID, in.ParticipantID); err != nil {
		return nil, err
	}

	q, err := s.newQuestion(activityID, in, "qa")
	if err != nil {
		return nil, err
	}
	if err := s.store.InsertQA(ctx, q); err != nil {
		return nil, err
	}
	return q, nil
}

// Reply records a reply under an existing top-level question of the same
// session. Threads stay two levels deep: replying to a reply is rejected.
func (s *Service) Reply(ctx context.Context, activityID, parentID string, in SubmitInput) (*models.QAQuestion, error) {
	parent, err := s.store.QAQuestionInActivity(ctx, activityID, parentID)
	if err != nil {
		return nil, err
	}
	if parent.IsReply {
		return nil, apperr.InvalidArgument("cannot reply to a reply")
	}
	if err := s.verifyParticipant(ctx, activityID, in.ParticipantID); err != nil {
		return nil, err
	}

	q, err := s.newQuestion(activityID, in, "reply")
	if err != nil {
		return nil, err
	}
	q.ParentQuestionID = parent.ID
	q.IsReply = true
	if err := s.store.InsertQA(ctx, q); err != nil {
		return nil, err
	}
	return q, nil
}

func (s *Service) newQuestion(activityID string, in SubmitInput, prefix string) (*models.QAQuestion, error) {
	text := strings.TrimSpace(in.Question)
	if text == "" {
		return nil, apperr.InvalidArgument("question text is required")
	}
	nickname := in.Nickname
	if in.IsAnonymous || nickname == "" {
		nickname = "Anonymous"
	}
	now := s.now()
	return &models.QAQuestion{
		ID:            fmt.Sprintf("%s_%d_%s", prefix, now.UnixMilli(), uuid.NewString()[:8]),
		ActivityID:    activityID,
		ParticipantID: in.ParticipantID,
		Nickname:      nickname,
		IsAnonymous:   in.IsAnonymous,
		Question:      text,
		Status:        models.QAPending,
		Upvotes:       []string{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// verifyParticipant checks that a supplied participant ID names a participant
// of this session. An empty ID is an anonymous author and passes.
func (s *Service) verifyParticipant(ctx context.Context, activityID, participantID string) error {
	if participantID == "" {
		return nil
	}
	p, err := s.store.Participant(ctx, participantID)
	if err != nil {
		return err
	}
	if p.ActivityID != activityID {
		return apperr.Forbidden("participant does not belong to this session")
	}
	return nil
}

// UpvoteResult reports the post-toggle state.
type UpvoteResult struct {
	QuestionID string `json:"questionId"`
	Upvoted    bool   `json:"upvoted"`
	Upvotes    int    `json:"upvotes"`
}

// Upvote toggles the participant's upvote on a question.
func (s *Service) Upvote(ctx context.Context, activityID, questionID, participantID string) (*UpvoteResult, error) {
	if participantID == "" {
		return nil, apperr.InvalidArgument("participantId is required")
	}
	q, err := s.store.QAQuestionInActivity(ctx, activityID, questionID)
	if err != nil {
		return nil, err
	}
	upvoted := q.ToggleUpvote(participantID)
	if err := s.store.SaveQA(ctx, q); err != nil {
		return nil, err
	}
	return &UpvoteResult{QuestionID: q.ID, Upvoted: upvoted, Upvotes: q.UpvoteCount()}, nil
}

// Answer records a host's answer and marks the question answered.
func (s *Service) Answer(ctx context.Context, activityID, questionID, hostID, text string) (*models.QAQuestion, error) {
	if strings.TrimSpace(text) == "" {
		return nil, apperr.InvalidArgument("answer text is required")
	}
	q, err := s.moderated(ctx, activityID, questionID, hostID)
	if err != nil {
		return nil, err
	}
	q.Answer = &models.QAAnswer{Text: text, AnsweredBy: hostID, AnsweredAt: s.now()}
	q.Status = models.QAAnswered
	if err := s.store.SaveQA(ctx, q); err != nil {
		return nil, err
	}
	return q, nil
}

// Dismiss marks a question dismissed without answering it.
func (s *Service) Dismiss(ctx context.Context, activityID, questionID, hostID string) (*models.QAQuestion, error) {
	q, err := s.moderated(ctx, activityID, questionID, hostID)
	if err != nil {
		return nil, err
	}
	q.Status = models.QADismissed
	if err := s.store.SaveQA(ctx, q); err != nil {
		return nil, err
	}
	return q, nil
}

// moderated loads a question after verifying the caller hosts its session.
func (s *Service) moderated(ctx context.Context, activityID, questionID, hostID string) (*models.QAQuestion, error) {
	sess, err := s.store.Session(ctx, activityID)
	if err != nil {
		return nil, err
	}
	if !sess.IsHost(hostID) {
		return nil, apperr.Forbidden("host access required")
	}
	return s.store.QAQuestionInActivity(ctx, activityID, questionID)
}

// Thread is a top-level question with its replies attached.
type Thread struct {
	models.QAQuestion
	UpvoteCount int                 `json:"upvoteCount"`
	Replies     []models.QAQuestion `json:"replies,omitempty"`
}

// ListInput narrows a Q&A listing.
type ListInput struct {
	Status   models.QAStatus
	Threaded bool
}

// List returns the session's questions sorted by upvotes descending then
// newest first. Threaded listings attach each question's replies in
// chronological order; flat listings interleave questions and replies.
func (s *Service) List(ctx context.Context, activityID string, in ListInput) ([]Thread, error) {
	if in.Status != "" && !models.ValidQAStatus(in.Status) {
		return nil, apperr.InvalidArgument("invalid status filter")
	}
	if _, err := s.store.Session(ctx, activityID); err != nil {
		return nil, err
	}

	questions, err := s.store.QAQuestions(ctx, activityID, store.QAFilter{
		Status:       in.Status,
		TopLevelOnly: in.Threaded,
	})
	if err != nil {
		return nil, err
	}

	out := make([]Thread, 0, len(questions))
	for _, q := range questions {
		t := Thread{QAQuestion: *q, UpvoteCount: q.UpvoteCount()}
		if in.Threaded {
			replies, err := s.store.QAReplies(ctx, q.ID)
			if err != nil {
				return nil, err
			}
			for _, r := range replies {
				t.Replies = append(t.Replies, *r)
			}
		}
		out = append(out, t)
	}
	return out, nil
}
