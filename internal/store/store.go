// Package store defines the persistence contract of the live engine. The
// backing store is a document store: finds by filter, atomic field updates
// ($set/$push/$pull/$inc/$max) and whole-document replace are the only
// concurrency primitives assumed; there are no multi-document transactions.
package store

import (
	"context"
	"time"

	"github.com/pulse-live/backend/internal/models"
)

// QAFilter narrows Q&A listings.
type QAFilter struct {
	Status       models.QAStatus // empty = any status
	TopLevelOnly bool            // exclude replies
}

// SessionStore persists session documents. Mutations use targeted field
// updates rather than whole-document replace, so concurrent host actions on
// one session cannot lose each other's writes. Every mutation also advances
// the document's updatedAt, which drives the status polling probe.
type SessionStore interface {
	InsertSession(ctx context.Context, s *models.Session) error
	Session(ctx context.Context, id string) (*models.Session, error)
	SessionByPIN(ctx context.Context, pin string) (*models.Session, error)
	SessionsByHost(ctx context.Context, hostID string) ([]*models.Session, error) // newest first

	SetLive(ctx context.Context, id string, isLive bool, currentIndex int) error
	SetCurrentIndex(ctx context.Context, id string, index int) error
	SetSessionDetails(ctx context.Context, id, title, description string, settings models.SessionSettings) error
	AppendItem(ctx context.Context, id string, item models.Item) error
	DeactivateItem(ctx context.Context, sessionID, itemID string) error

	// ReplaceItemResponse removes the participant's previous response on the
	// item (unless allowMultiple) and appends r. The two steps are separate
	// array updates, not one atomic operation.
	ReplaceItemResponse(ctx context.Context, sessionID, itemID string, r models.ItemResponse, allowMultiple bool) error

	// IncTotalResponses and RaiseTotalParticipants update the best-effort
	// analytics counters ($inc and $max). Approximate by design.
	IncTotalResponses(ctx context.Context, id string, delta int) error
	RaiseTotalParticipants(ctx context.Context, id string, count int) error
}

// ParticipantStore persists participant documents. Each document is
// single-writer, so whole-document replace is safe here.
type ParticipantStore interface {
	InsertParticipant(ctx context.Context, p *models.Participant) error
	Participant(ctx context.Context, id string) (*models.Participant, error)
	ParticipantByUser(ctx context.Context, activityID, userID string) (*models.Participant, error)
	SaveParticipant(ctx context.Context, p *models.Participant) error
	Participants(ctx context.Context, activityID string) ([]*models.Participant, error)
	ParticipantsWithResponse(ctx context.Context, activityID string, questionIndex int) ([]*models.Participant, error)
	CountConnected(ctx context.Context, activityID string) (int, error)
}

// QAStore persists threaded Q&A documents, keyed by question ID.
type QAStore interface {
	InsertQA(ctx context.Context, q *models.QAQuestion) error
	QAQuestion(ctx context.Context, id string) (*models.QAQuestion, error)
	QAQuestionInActivity(ctx context.Context, activityID, id string) (*models.QAQuestion, error)
	SaveQA(ctx context.Context, q *models.QAQuestion) error

	// QAQuestions lists questions for an activity sorted by upvote count
	// descending then createdAt descending.
	QAQuestions(ctx context.Context, activityID string, f QAFilter) ([]*models.QAQuestion, error)
	// QAReplies lists replies to a question sorted by createdAt ascending.
	QAReplies(ctx context.Context, parentID string) ([]*models.QAQuestion, error)
	// QAUpdatedSince lists recently changed questions, newest first.
	QAUpdatedSince(ctx context.Context, activityID string, since time.Time, limit int) ([]*models.QAQuestion, error)
}

// Store is the full persistence surface consumed by the engine.
type Store interface {
	SessionStore
	ParticipantStore
	QAStore
}
