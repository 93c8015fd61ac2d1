// Package memory provides an in-process Store used by tests and by dev runs
// without a MongoDB instance. All methods are safe for concurrent use.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pulse-live/backend/internal/apperr"
	"github.com/pulse-live/backend/internal/models"
	"github.com/pulse-live/backend/internal/store"
)

// Store keeps every document in maps guarded by one mutex. Documents are
// deep-copied on the way in and out so callers never alias stored state.
type Store struct {
	mu           sync.RWMutex
	sessions     map[string]*models.Session
	pins         map[string]string // pin -> session id
	participants map[string]*models.Participant
	qa           map[string]*models.QAQuestion
}

var _ store.Store = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		sessions:     make(map[string]*models.Session),
		pins:         make(map[string]string),
		participants: make(map[string]*models.Participant),
		qa:           make(map[string]*models.QAQuestion),
	}
}

// InsertSession stores a new session, rejecting duplicate IDs and PINs.
func (s *Store) InsertSession(_ context.Context, sess *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.ID]; ok {
		return apperr.Conflict("session id already exists")
	}
	if _, ok := s.pins[sess.PIN]; ok {
		return apperr.Conflict("pin already in use")
	}
	s.sessions[sess.ID] = cloneSession(sess)
	s.pins[sess.PIN] = sess.ID
	return nil
}

func (s *Store) Session(_ context.Context, id string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, apperr.NotFound("session not found")
	}
	return cloneSession(sess), nil
}

func (s *Store) SessionByPIN(_ context.Context, pin string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.pins[pin]
	if !ok {
		return nil, apperr.NotFound("session not found")
	}
	return cloneSession(s.sessions[id]), nil
}

func (s *Store) SessionsByHost(_ context.Context, hostID string) ([]*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Session
	for _, sess := range s.sessions {
		if sess.IsHost(hostID) {
			out = append(out, cloneSession(sess))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) SetLive(_ context.Context, id string, isLive bool, currentIndex int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return apperr.NotFound("session not found")
	}
	sess.IsLive = isLive
	sess.CurrentQuestionIndex = currentIndex
	sess.UpdatedAt = time.Now()
	return nil
}

func (s *Store) SetCurrentIndex(_ context.Context, id string, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return apperr.NotFound("session not found")
	}
	sess.CurrentQuestionIndex = index
	sess.UpdatedAt = time.Now()
	return nil
}

func (s *Store) SetSessionDetails(_ context.Context, id, title, description string, settings models.SessionSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return apperr.NotFound("session not found")
	}
	sess.Title = title
	sess.Description = description
	sess.Settings = settings
	sess.UpdatedAt = time.Now()
	return nil
}

func (s *Store) AppendItem(_ context.Context, id string, item models.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return apperr.NotFound("session not found")
	}
	sess.Items = append(sess.Items, cloneItem(&item))
	sess.UpdatedAt = time.Now()
	return nil
}

func (s *Store) DeactivateItem(_ context.Context, sessionID, itemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return apperr.NotFound("session not found")
	}
	item, _ := sess.ItemByID(itemID)
	if item == nil {
		return apperr.NotFound("item not found")
	}
	item.IsActive = false
	sess.UpdatedAt = time.Now()
	return nil
}

func (s *Store) ReplaceItemResponse(_ context.Context, sessionID, itemID string, r models.ItemResponse, allowMultiple bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return apperr.NotFound("session not found")
	}
	item, _ := sess.ItemByID(itemID)
	if item == nil {
		return apperr.NotFound("item not found")
	}
	if !allowMultiple {
		kept := item.Responses[:0]
		for _, old := range item.Responses {
			if old.ParticipantID != r.ParticipantID {
				kept = append(kept, old)
			}
		}
		item.Responses = kept
	}
	item.Responses = append(item.Responses, r)
	sess.UpdatedAt = time.Now()
	return nil
}

func (s *Store) IncTotalResponses(_ context.Context, id string, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return apperr.NotFound("session not found")
	}
	sess.Analytics.TotalResponses += delta
	return nil
}

func (s *Store) RaiseTotalParticipants(_ context.Context, id string, count int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return apperr.NotFound("session not found")
	}
	if count > sess.Analytics.TotalParticipants {
		sess.Analytics.TotalParticipants = count
	}
	return nil
}

func (s *Store) InsertParticipant(_ context.Context, p *models.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.participants[p.ID]; ok {
		return apperr.Conflict("participant id already exists")
	}
	s.participants[p.ID] = cloneParticipant(p)
	return nil
}

func (s *Store) Participant(_ context.Context, id string) (*models.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.participants[id]
	if !ok {
		return nil, apperr.NotFound("participant not found")
	}
	return cloneParticipant(p), nil
}

func (s *Store) ParticipantByUser(_ context.Context, activityID, userID string) (*models.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.participants {
		if p.ActivityID == activityID && p.UserID != "" && p.UserID == userID {
			return cloneParticipant(p), nil
		}
	}
	return nil, apperr.NotFound("participant not found")
}

func (s *Store) SaveParticipant(_ context.Context, p *models.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.participants[p.ID]; !ok {
		return apperr.NotFound("participant not found")
	}
	s.participants[p.ID] = cloneParticipant(p)
	return nil
}

func (s *Store) Participants(_ context.Context, activityID string) ([]*models.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Participant
	for _, p := range s.participants {
		if p.ActivityID == activityID {
			out = append(out, cloneParticipant(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out, nil
}

func (s *Store) ParticipantsWithResponse(_ context.Context, activityID string, questionIndex int) ([]*models.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Participant
	for _, p := range s.participants {
		if p.ActivityID != activityID {
			continue
		}
		for _, r := range p.Responses {
			if r.QuestionIndex == questionIndex {
				out = append(out, cloneParticipant(p))
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out, nil
}

func (s *Store) CountConnected(_ context.Context, activityID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, p := range s.participants {
		if p.ActivityID == activityID && p.IsConnected {
			n++
		}
	}
	return n, nil
}

func (s *Store) InsertQA(_ context.Context, q *models.QAQuestion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.qa[q.ID]; ok {
		return apperr.Conflict("question id already exists")
	}
	s.qa[q.ID] = cloneQA(q)
	return nil
}

func (s *Store) QAQuestion(_ context.Context, id string) (*models.QAQuestion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.qa[id]
	if !ok {
		return nil, apperr.NotFound("question not found")
	}
	return cloneQA(q), nil
}

func (s *Store) QAQuestionInActivity(_ context.Context, activityID, id string) (*models.QAQuestion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.qa[id]
	if !ok || q.ActivityID != activityID {
		return nil, apperr.NotFound("question not found")
	}
	return cloneQA(q), nil
}

func (s *Store) SaveQA(_ context.Context, q *models.QAQuestion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.qa[q.ID]; !ok {
		return apperr.NotFound("question not found")
	}
	cp := cloneQA(q)
	cp.UpdatedAt = time.Now()
	s.qa[q.ID] = cp
	return nil
}

func (s *Store) QAQuestions(_ context.Context, activityID string, f store.QAFilter) ([]*models.QAQuestion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.QAQuestion
	for _, q := range s.qa {
		if q.ActivityID != activityID {
			continue
		}
		if f.Status != "" && q.Status != f.Status {
			continue
		}
		if f.TopLevelOnly && q.ParentQuestionID != "" {
			continue
		}
		out = append(out, cloneQA(q))
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i].Upvotes) != len(out[j].Upvotes) {
			return len(out[i].Upvotes) > len(out[j].Upvotes)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) QAReplies(_ context.Context, parentID string) ([]*models.QAQuestion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.QAQuestion
	for _, q := range s.qa {
		if q.ParentQuestionID == parentID {
			out = append(out, cloneQA(q))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) QAUpdatedSince(_ context.Context, activityID string, since time.Time, limit int) ([]*models.QAQuestion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.QAQuestion
	for _, q := range s.qa {
		if q.ActivityID == activityID && q.UpdatedAt.After(since) {
			out = append(out, cloneQA(q))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func cloneSession(s *models.Session) *models.Session {
	cp := *s
	cp.HostIDs = append([]string(nil), s.HostIDs...)
	cp.Items = make([]models.Item, len(s.Items))
	for i := range s.Items {
		cp.Items[i] = cloneItem(&s.Items[i])
	}
	return &cp
}

func cloneItem(it *models.Item) models.Item {
	cp := *it
	cp.Options = append([]string(nil), it.Options...)
	cp.Responses = append([]models.ItemResponse(nil), it.Responses...)
	if it.Settings.ExpiresAt != nil {
		t := *it.Settings.ExpiresAt
		cp.Settings.ExpiresAt = &t
	}
	return cp
}

func cloneParticipant(p *models.Participant) *models.Participant {
	cp := *p
	cp.Responses = append([]models.Response(nil), p.Responses...)
	cp.Comments = make([]models.Comment, len(p.Comments))
	for i, c := range p.Comments {
		cp.Comments[i] = c
		cp.Comments[i].LikedBy = append([]string(nil), c.LikedBy...)
	}
	cp.Reactions = append([]models.Reaction(nil), p.Reactions...)
	return &cp
}

func cloneQA(q *models.QAQuestion) *models.QAQuestion {
	cp := *q
	cp.Upvotes = append([]string(nil), q.Upvotes...)
	if q.Answer != nil {
		a := *q.Answer
		cp.Answer = &a
	}
	return &cp
}
