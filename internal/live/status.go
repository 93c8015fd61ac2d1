package live

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/pulse-live/backend/internal/models"
)

// recentQALimit caps the reply batch delivered with a status delta.
const recentQALimit = 10

// StatusData is the unconditional snapshot inside every status response.
type StatusData struct {
	IsLive               bool             `json:"isLive"`
	CurrentQuestionIndex int              `json:"currentQuestionIndex"`
	CurrentQuestion      *models.Item     `json:"currentQuestion"`
	ParticipantCount     int              `json:"participantCount"`
	Analytics            models.Analytics `json:"analytics"`
}

// Status is the polling sync payload. HasUpdates compares the session's
// last modification against the client's cursor; the snapshot is present
// either way so a client that lost its cursor can resync in one round trip.
type Status struct {
	HasUpdates      bool                 `json:"hasUpdates"`
	Timestamp       time.Time            `json:"timestamp"`
	Data            StatusData           `json:"data"`
	RecentQuestions []*models.QAQuestion `json:"recentQuestions,omitempty"`
}

// Status answers one poll cycle. since is the client's cursor from the
// previous response; the zero value forces hasUpdates true.
func (s *Service) Status(ctx context.Context, sessionID string, since time.Time) (*Status, error) {
	sess, err := s.store.Session(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	count, err := s.store.CountConnected(ctx, sessionID)
	if err != nil {
		s.logger.Warn("participant count failed", zap.String("session", sessionID), zap.Error(err))
		count = 0
	}

	st := &Status{
		HasUpdates: sess.UpdatedAt.After(since),
		Timestamp:  s.now(),
		Data: StatusData{
			IsLive:               sess.IsLive,
			CurrentQuestionIndex: sess.CurrentQuestionIndex,
			CurrentQuestion:      sess.CurrentItem(),
			ParticipantCount:     count,
			Analytics:            sess.Analytics,
		},
	}

	if st.HasUpdates {
		recent, err := s.store.QAUpdatedSince(ctx, sessionID, since, recentQALimit)
		if err != nil {
			s.logger.Warn("recent questions lookup failed", zap.String("session", sessionID), zap.Error(err))
		} else {
			st.RecentQuestions = recent
		}
	}
	return st, nil
}
