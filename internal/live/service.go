// Package live implements the session coordination engine: the state
// machine for host-led sessions, response and vote recording, lazy poll
// expiry, on-demand result aggregation and the status polling probe.
package live

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pulse-live/backend/internal/apperr"
	"github.com/pulse-live/backend/internal/models"
	"github.com/pulse-live/backend/internal/store"
	"github.com/pulse-live/backend/pkg/queue"
)

// pinAttempts bounds PIN regeneration on uniqueness collisions.
const pinAttempts = 5

// Service executes all session operations. Safe for concurrent use: every
// operation is an independent read-validate-update against the store, and
// session mutations use the store's per-field atomic updates.
type Service struct {
	store  store.Store
	queue  *queue.Queue // nil disables summary notifications
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates the live session service. The queue may be nil when no
// notification worker is deployed.
func NewService(st store.Store, q *queue.Queue, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: st, queue: q, logger: logger, now: time.Now}
}

// ItemInput describes one pre-authored question at session creation.
type ItemInput struct {
	Kind        models.ItemKind     `json:"type"`
	Text        string              `json:"text"`
	Description string              `json:"description"`
	Options     []string            `json:"options"`
	Settings    models.ItemSettings `json:"settings"`
}

// CreateSessionInput is the host's session definition.
type CreateSessionInput struct {
	Title       string                  `json:"title"`
	Description string                  `json:"description"`
	Items       []ItemInput             `json:"questions"`
	Settings    *models.SessionSettings `json:"settings"`
}

// CreateSession creates a session with a fresh ID and a unique 6-digit PIN.
// PIN collisions are resolved internally by regeneration.
func (s *Service) CreateSession(ctx context.Context, hostID string, in CreateSessionInput) (*models.Session, error) {
	if in.Title == "" {
		return nil, apperr.InvalidArgument("title is required")
	}
	now := s.now()

	items := make([]models.Item, 0, len(in.Items))
	for i, q := range in.Items {
		item, err := buildItem(q, fmt.Sprintf("q_%d", i), hostID, now)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	settings := models.DefaultSessionSettings()
	if in.Settings != nil {
		settings = *in.Settings
	}

	sess := &models.Session{
		ID:          "live_" + uuid.NewString(),
		Title:       in.Title,
		Description: in.Description,
		HostIDs:     []string{hostID},
		Items:       items,
		Settings:    settings,
		Analytics:   models.Analytics{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	var err error
	for attempt := 0; attempt < pinAttempts; attempt++ {
		sess.PIN = generatePIN()
		if err = s.store.InsertSession(ctx, sess); err == nil {
			return sess, nil
		}
		if !apperr.IsKind(err, apperr.KindConflict) {
			return nil, err
		}
	}
	return nil, apperr.Internal("could not allocate a unique pin", err)
}

func buildItem(in ItemInput, id, hostID string, now time.Time) (models.Item, error) {
	if in.Text == "" {
		return models.Item{}, apperr.InvalidArgument("question text is required")
	}
	if !models.ValidItemKind(in.Kind) {
		return models.Item{}, apperr.Newf(apperr.KindInvalidArgument, "unknown question type %q", in.Kind)
	}
	options := in.Options
	switch in.Kind {
	case models.KindMultiChoice, models.KindMultiVote:
		if len(options) < 2 {
			return models.Item{}, apperr.InvalidArgument("at least two options are required")
		}
	case models.KindRating:
		if len(options) == 0 {
			options = []string{"1", "2", "3", "4", "5"}
		}
	}
	settings := in.Settings
	settings.AllowMultiple = settings.AllowMultiple || in.Kind == models.KindMultiVote
	return models.Item{
		ID:          id,
		Kind:        in.Kind,
		Text:        in.Text,
		Description: in.Description,
		Options:     options,
		IsActive:    false,
		IsPoll:      false,
		CreatedBy:   hostID,
		CreatedAt:   now,
		Responses:   []models.ItemResponse{},
		Settings:    settings,
	}, nil
}

func generatePIN() string {
	return fmt.Sprintf("%06d", 100000+rand.Intn(900000))
}

// UpdateDetails lets a host edit a session's title, description and
// settings. The items timeline is append-only and not editable here.
func (s *Service) UpdateDetails(ctx context.Context, sessionID, callerID, title, description string, settings *models.SessionSettings) (*models.Session, error) {
	sess, err := s.hostSession(ctx, sessionID, callerID)
	if err != nil {
		return nil, err
	}
	if title == "" {
		return nil, apperr.InvalidArgument("title is required")
	}
	newSettings := sess.Settings
	if settings != nil {
		newSettings = *settings
	}
	if err := s.store.SetSessionDetails(ctx, sessionID, title, description, newSettings); err != nil {
		return nil, err
	}
	sess.Title = title
	sess.Description = description
	sess.Settings = newSettings
	return sess, nil
}

// SessionsByHost lists a host's sessions, newest first.
func (s *Service) SessionsByHost(ctx context.Context, hostID string) ([]*models.Session, error) {
	return s.store.SessionsByHost(ctx, hostID)
}

// SessionSummary is the participant-facing view of a session.
type SessionSummary struct {
	ID                   string                 `json:"id"`
	Title                string                 `json:"title"`
	Description          string                 `json:"description,omitempty"`
	PIN                  string                 `json:"pin"`
	CurrentQuestionIndex int                    `json:"currentQuestionIndex"`
	CurrentQuestion      *models.Item           `json:"currentQuestion,omitempty"`
	TotalQuestions       int                    `json:"totalQuestions"`
	Settings             models.SessionSettings `json:"settings"`
	ParticipantCount     int                    `json:"participantCount"`
	HostIDs              []string               `json:"hostIds"`
}

// SessionByPIN resolves a PIN to a live session summary. A wrong PIN and a
// paused session both return NotFound; callers cannot tell them apart.
func (s *Service) SessionByPIN(ctx context.Context, pin string) (*SessionSummary, error) {
	sess, err := s.store.SessionByPIN(ctx, pin)
	if err != nil {
		return nil, err
	}
	if !sess.IsLive {
		return nil, apperr.NotFound("session not found")
	}
	count, err := s.store.CountConnected(ctx, sess.ID)
	if err != nil {
		s.logger.Warn("participant count failed", zap.String("session", sess.ID), zap.Error(err))
		count = 0
	}
	return &SessionSummary{
		ID:                   sess.ID,
		Title:                sess.Title,
		Description:          sess.Description,
		PIN:                  sess.PIN,
		CurrentQuestionIndex: sess.CurrentQuestionIndex,
		CurrentQuestion:      sess.CurrentItem(),
		TotalQuestions:       len(sess.Items),
		Settings:             sess.Settings,
		ParticipantCount:     count,
		HostIDs:              sess.HostIDs,
	}, nil
}

// ToggleLive flips the session's liveness. Going live resets the current
// index to 0; stopping enqueues a best-effort summary notification.
func (s *Service) ToggleLive(ctx context.Context, sessionID, callerID string) (*models.Session, error) {
	sess, err := s.hostSession(ctx, sessionID, callerID)
	if err != nil {
		return nil, err
	}
	newLive := !sess.IsLive
	index := sess.CurrentQuestionIndex
	if newLive {
		index = 0
	}
	if err := s.store.SetLive(ctx, sessionID, newLive, index); err != nil {
		return nil, err
	}
	sess.IsLive = newLive
	sess.CurrentQuestionIndex = index

	if !newLive {
		s.notifyStopped(ctx, sess)
	}
	return sess, nil
}

func (s *Service) notifyStopped(ctx context.Context, sess *models.Session) {
	if s.queue == nil {
		return
	}
	err := s.queue.EnqueueSessionSummary(ctx, queue.SessionSummaryPayload{
		ActivityID:        sess.ID,
		Title:             sess.Title,
		HostIDs:           sess.HostIDs,
		TotalParticipants: sess.Analytics.TotalParticipants,
		TotalResponses:    sess.Analytics.TotalResponses,
		StoppedAt:         s.now(),
	})
	if err != nil {
		s.logger.Warn("session summary enqueue failed", zap.String("session", sess.ID), zap.Error(err))
	}
}

// NavigateResult reports the index and item after navigation.
type NavigateResult struct {
	CurrentQuestionIndex int          `json:"currentQuestionIndex"`
	CurrentQuestion      *models.Item `json:"currentQuestion,omitempty"`
}

// Navigate moves the session's current-question pointer. targetIndex wins
// when both it and itemID are given; itemID alone is resolved to an index.
// Navigating to the already-current index is a no-op success. Authorization
// is checked before the index is validated, so a non-host never learns
// whether an index is valid.
func (s *Service) Navigate(ctx context.Context, sessionID, callerID string, targetIndex int, itemID string) (*NavigateResult, error) {
	sess, err := s.hostSession(ctx, sessionID, callerID)
	if err != nil {
		return nil, err
	}
	if targetIndex < 0 && itemID != "" {
		_, idx := sess.ItemByID(itemID)
		if idx < 0 {
			return nil, apperr.NotFound("item not found")
		}
		targetIndex = idx
	}
	if targetIndex < 0 || targetIndex >= len(sess.Items) {
		return nil, apperr.InvalidArgument("invalid question index")
	}
	if err := s.store.SetCurrentIndex(ctx, sessionID, targetIndex); err != nil {
		return nil, err
	}
	sess.CurrentQuestionIndex = targetIndex
	return &NavigateResult{
		CurrentQuestionIndex: targetIndex,
		CurrentQuestion:      sess.CurrentItem(),
	}, nil
}

// PollInput is a host-improvised poll definition.
type PollInput struct {
	Question      string          `json:"question"`
	Description   string          `json:"description"`
	Kind          models.ItemKind `json:"type"`
	Options       []string        `json:"options"`
	Duration      int             `json:"duration"` // seconds; default 300
	AllowMultiple bool            `json:"allowMultiple"`
}

// AppendPollResult is the created poll plus its timeline index.
type AppendPollResult struct {
	Item          models.Item `json:"poll"`
	QuestionIndex int         `json:"questionIndex"`
}

// AppendPoll appends a timed poll to the session's items timeline.
// expiresAt is fixed at creation to createdAt + duration and never changes;
// deactivation happens lazily on read.
func (s *Service) AppendPoll(ctx context.Context, sessionID, hostID string, in PollInput) (*AppendPollResult, error) {
	sess, err := s.hostSession(ctx, sessionID, hostID)
	if err != nil {
		return nil, err
	}
	if in.Question == "" {
		return nil, apperr.InvalidArgument("poll question is required")
	}
	kind := in.Kind
	if kind == "" {
		kind = models.KindMultiChoice
	}
	if !models.ValidItemKind(kind) {
		return nil, apperr.Newf(apperr.KindInvalidArgument, "unknown poll type %q", kind)
	}
	options := in.Options
	if len(options) == 0 {
		switch kind {
		case models.KindRating:
			options = []string{"1", "2", "3", "4", "5"}
		case models.KindOpenText:
			options = []string{"Response"}
		default:
			return nil, apperr.InvalidArgument("options are required for this poll type")
		}
	}
	duration := in.Duration
	if duration <= 0 {
		duration = 300
	}

	now := s.now()
	expiresAt := now.Add(time.Duration(duration) * time.Second)
	item := models.Item{
		ID:          fmt.Sprintf("poll_%d_%s", now.UnixMilli(), uuid.NewString()[:8]),
		Kind:        kind,
		Text:        in.Question,
		Description: in.Description,
		Options:     options,
		IsActive:    true,
		IsPoll:      true,
		CreatedBy:   hostID,
		CreatedAt:   now,
		Responses:   []models.ItemResponse{},
		Settings: models.ItemSettings{
			AllowMultiple:   in.AllowMultiple || kind == models.KindMultiVote,
			Required:        false,
			Duration:        duration,
			ExpiresAt:       &expiresAt,
			ShowResultsLive: true,
		},
	}
	if err := s.store.AppendItem(ctx, sessionID, item); err != nil {
		return nil, err
	}
	return &AppendPollResult{Item: item, QuestionIndex: len(sess.Items)}, nil
}

// JoinResult acknowledges a join with the participant's ID and the current
// position in the timeline.
type JoinResult struct {
	ParticipantID        string       `json:"participantId"`
	CurrentQuestion      *models.Item `json:"currentQuestion,omitempty"`
	CurrentQuestionIndex int          `json:"currentQuestionIndex"`
}

// Join adds a participant to a live session. Identified joins are
// idempotent upserts keyed by (session, user); anonymous joins always
// create a fresh participant. totalParticipants only ever rises.
func (s *Service) Join(ctx context.Context, sessionID, userID, nickname string, anonymous bool) (*JoinResult, error) {
	sess, err := s.store.Session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.IsLive {
		return nil, apperr.NotFound("session not found or not live")
	}
	if userID == "" && !sess.Settings.AllowAnonymous {
		return nil, apperr.Forbidden("anonymous participation is disabled")
	}

	now := s.now()
	var participant *models.Participant
	if userID != "" {
		participant, err = s.store.ParticipantByUser(ctx, sessionID, userID)
		if err != nil && !apperr.IsKind(err, apperr.KindNotFound) {
			return nil, err
		}
	}

	if participant == nil {
		if nickname == "" {
			nickname = "Guest"
		}
		participant = &models.Participant{
			ID:           uuid.NewString(),
			ActivityID:   sessionID,
			UserID:       userID,
			Nickname:     nickname,
			IsAnonymous:  anonymous || userID == "",
			Responses:    []models.Response{},
			Comments:     []models.Comment{},
			Reactions:    []models.Reaction{},
			JoinedAt:     now,
			LastActivity: now,
			IsConnected:  true,
		}
		if err := s.store.InsertParticipant(ctx, participant); err != nil {
			return nil, err
		}
	} else {
		participant.IsConnected = true
		participant.LastActivity = now
		participant.IsAnonymous = anonymous
		if nickname != "" {
			participant.Nickname = nickname
		}
		if err := s.store.SaveParticipant(ctx, participant); err != nil {
			return nil, err
		}
	}

	// Best-effort monotonic counter; a failure never blocks the join.
	if count, err := s.store.CountConnected(ctx, sessionID); err == nil {
		if err := s.store.RaiseTotalParticipants(ctx, sessionID, count); err != nil {
			s.logger.Warn("participant counter update failed", zap.String("session", sessionID), zap.Error(err))
		}
	} else {
		s.logger.Warn("participant count failed", zap.String("session", sessionID), zap.Error(err))
	}

	return &JoinResult{
		ParticipantID:        participant.ID,
		CurrentQuestion:      sess.CurrentItem(),
		CurrentQuestionIndex: sess.CurrentQuestionIndex,
	}, nil
}

// ParticipantInfo returns a participant's own record. Identified
// participants may only read their own document.
func (s *Service) ParticipantInfo(ctx context.Context, participantID, callerUserID string) (*models.Participant, error) {
	p, err := s.store.Participant(ctx, participantID)
	if err != nil {
		return nil, err
	}
	if p.UserID != "" && p.UserID != callerUserID {
		return nil, apperr.Forbidden("not authorized to access this participant")
	}
	return p, nil
}

// hostSession loads a session and verifies the caller may control it.
func (s *Service) hostSession(ctx context.Context, sessionID, callerID string) (*models.Session, error) {
	sess, err := s.store.Session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.IsHost(callerID) {
		return nil, apperr.Forbidden("not authorized to control this session")
	}
	return sess, nil
}
