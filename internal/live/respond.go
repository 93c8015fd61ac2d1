package live

import (
	"context"

	"go.uber.org/zap"

	"github.com/pulse-live/backend/internal/apperr"
	"github.com/pulse-live/backend/internal/models"
)

// ResponseInput is one answer to a pre-authored question.
type ResponseInput struct {
	QuestionID     string `json:"questionId"`
	QuestionIndex  int    `json:"questionIndex"`
	Answer         string `json:"answer"`
	ResponseTimeMs int64  `json:"responseTime"`
}

// SubmitResponse records a participant's answer to a pre-authored question.
// The participant document is the canonical store for this path. A previous
// answer to the same index is replaced unless the item allows multiple.
func (s *Service) SubmitResponse(ctx context.Context, sessionID, participantID string, in ResponseInput) error {
	participant, err := s.store.Participant(ctx, participantID)
	if err != nil {
		return err
	}
	if participant.ActivityID != sessionID {
		return apperr.Forbidden("participant not in this session")
	}
	sess, err := s.store.Session(ctx, sessionID)
	if err != nil {
		return err
	}
	if in.QuestionIndex < 0 || in.QuestionIndex >= len(sess.Items) {
		return apperr.InvalidArgument("invalid question index")
	}
	item := &sess.Items[in.QuestionIndex]

	now := s.now()
	participant.SetResponse(models.Response{
		QuestionID:    in.QuestionID,
		QuestionIndex: in.QuestionIndex,
		Answer:        in.Answer,
		ResponseTime:  in.ResponseTimeMs,
		Timestamp:     now,
	}, item.Settings.AllowMultiple)
	participant.LastActivity = now

	if err := s.store.SaveParticipant(ctx, participant); err != nil {
		return err
	}

	s.bumpResponseCounter(ctx, sessionID)
	return nil
}

// SubmitVote records a vote on an item by ID. Votes land on the session
// document, and every item gates on its lazily-derived activity state.
func (s *Service) SubmitVote(ctx context.Context, sessionID, participantID, itemID, option string) error {
	sess, err := s.store.Session(ctx, sessionID)
	if err != nil {
		return err
	}
	participant, err := s.store.Participant(ctx, participantID)
	if err != nil {
		return err
	}
	if participant.ActivityID != sessionID {
		return apperr.Forbidden("participant not in this session")
	}
	item, _ := sess.ItemByID(itemID)
	if item == nil {
		return apperr.NotFound("item not found")
	}
	if !item.EffectivelyActive(s.now()) {
		return apperr.PollInactive("item is not accepting votes")
	}
	if (item.Kind == models.KindMultiChoice || item.Kind == models.KindMultiVote) && !item.HasOption(option) {
		return apperr.InvalidArgument("invalid option selected")
	}

	err = s.store.ReplaceItemResponse(ctx, sessionID, itemID, models.ItemResponse{
		ParticipantID: participant.ID,
		Nickname:      participant.Nickname,
		Response:      option,
		Timestamp:     s.now(),
	}, item.Settings.AllowMultiple)
	if err != nil {
		return err
	}

	s.bumpResponseCounter(ctx, sessionID)
	return nil
}

// bumpResponseCounter advances the best-effort totalResponses counter.
// Failures are logged and never surfaced: the counter is not authoritative.
func (s *Service) bumpResponseCounter(ctx context.Context, sessionID string) {
	if err := s.store.IncTotalResponses(ctx, sessionID, 1); err != nil {
		s.logger.Warn("response counter update failed", zap.String("session", sessionID), zap.Error(err))
	}
}

// SubmitReaction records a participant's reaction to a question index. One
// reaction per participant per index; resubmitting replaces it.
func (s *Service) SubmitReaction(ctx context.Context, sessionID, participantID string, questionIndex int, kind models.ReactionKind) error {
	participant, err := s.store.Participant(ctx, participantID)
	if err != nil {
		return err
	}
	if participant.ActivityID != sessionID {
		return apperr.Forbidden("participant not in this session")
	}
	if !models.ValidReactionKind(kind) {
		return apperr.InvalidArgument("invalid reaction type")
	}
	now := s.now()
	participant.SetReaction(questionIndex, kind, now)
	participant.LastActivity = now
	return s.store.SaveParticipant(ctx, participant)
}

// ReactionDetail is one participant's reaction in a summary.
type ReactionDetail struct {
	ParticipantID string              `json:"participantId"`
	Nickname      string              `json:"nickname"`
	Kind          models.ReactionKind `json:"type"`
}

// ReactionSummary aggregates reactions for one question index.
type ReactionSummary struct {
	QuestionIndex int                         `json:"questionIndex"`
	Counts        map[models.ReactionKind]int `json:"counts"`
	Total         int                         `json:"total"`
	Details       []ReactionDetail            `json:"details"`
}

// Reactions summarizes all participants' reactions to a question index.
// Anonymous participants are masked in the detail list.
func (s *Service) Reactions(ctx context.Context, sessionID string, questionIndex int) (*ReactionSummary, error) {
	participants, err := s.store.Participants(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	summary := &ReactionSummary{
		QuestionIndex: questionIndex,
		Counts:        make(map[models.ReactionKind]int, len(models.ReactionKinds)),
		Details:       []ReactionDetail{},
	}
	for _, k := range models.ReactionKinds {
		summary.Counts[k] = 0
	}
	for _, p := range participants {
		r := p.ReactionFor(questionIndex)
		if r == nil {
			continue
		}
		summary.Counts[r.Kind]++
		summary.Details = append(summary.Details, ReactionDetail{
			ParticipantID: p.ID,
			Nickname:      p.DisplayName(),
			Kind:          r.Kind,
		})
	}
	summary.Total = len(summary.Details)
	return summary, nil
}
