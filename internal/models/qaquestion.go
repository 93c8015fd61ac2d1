package models

import (
	"time"
)

// QAStatus is the moderation state of a Q&A question.
type QAStatus string

const (
	QAPending   QAStatus = "pending"
	QAAnswered  QAStatus = "answered"
	QADismissed QAStatus = "dismissed"
)

// ValidQAStatus reports whether s is a recognized status.
func ValidQAStatus(s QAStatus) bool {
	switch s {
	case QAPending, QAAnswered, QADismissed:
		return true
	}
	return false
}

// QAAnswer is a host's answer to a Q&A question.
type QAAnswer struct {
	Text       string    `bson:"text" json:"text"`
	AnsweredBy string    `bson:"answeredBy" json:"answeredBy"`
	AnsweredAt time.Time `bson:"answeredAt" json:"answeredAt"`
}

// QAQuestion is an audience question or a reply, persisted independently of
// the session's items so hosts can moderate and answer asynchronously.
// Threads are two levels deep: a reply's ParentQuestionID names a top-level
// question, never another reply.
type QAQuestion struct {
	ID            string `bson:"_id" json:"id"`
	ActivityID    string `bson:"activityId" json:"activityId"`
	ParticipantID string `bson:"participantId,omitempty" json:"participantId,omitempty"` // empty for anonymous
	Nickname      string `bson:"nickname" json:"nickname"`
	IsAnonymous   bool   `bson:"isAnonymous" json:"isAnonymous"`

	Question string `bson:"question" json:"question"`

	ParentQuestionID string `bson:"parentQuestionId,omitempty" json:"parentQuestionId,omitempty"`
	IsReply          bool   `bson:"isReply" json:"isReply"`

	Status  QAStatus  `bson:"status" json:"status"`
	Upvotes []string  `bson:"upvotes" json:"upvotes"` // participant IDs
	Answer  *QAAnswer `bson:"answer,omitempty" json:"answer,omitempty"`

	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// UpvoteCount is always derived from the upvote set.
func (q *QAQuestion) UpvoteCount() int {
	return len(q.Upvotes)
}

// HasUpvoted reports whether the participant has upvoted this question.
func (q *QAQuestion) HasUpvoted(participantID string) bool {
	for _, id := range q.Upvotes {
		if id == participantID {
			return true
		}
	}
	return false
}

// ToggleUpvote adds the participant's upvote if absent and removes it if
// present. Returns whether the participant holds an upvote afterwards.
func (q *QAQuestion) ToggleUpvote(participantID string) bool {
	for i, id := range q.Upvotes {
		if id == participantID {
			q.Upvotes = append(q.Upvotes[:i], q.Upvotes[i+1:]...)
			return false
		}
	}
	q.Upvotes = append(q.Upvotes, participantID)
	return true
}
