package models

import (
	"time"
)

// Response is one answer to a pre-authored question, embedded in the owning
// participant document. At most one response per question index unless the
// item allows multiple; enforced by replace-on-write, not a constraint.
type Response struct {
	QuestionID    string    `bson:"questionId" json:"questionId"`
	QuestionIndex int       `bson:"questionIndex" json:"questionIndex"`
	Answer        string    `bson:"answer" json:"answer"`
	ResponseTime  int64     `bson:"responseTime" json:"responseTime"` // milliseconds
	Timestamp     time.Time `bson:"timestamp" json:"timestamp"`
	IsCorrect     bool      `bson:"isCorrect" json:"isCorrect"`
}

// Comment is a participant comment on a question.
type Comment struct {
	ID            string    `bson:"id" json:"id"`
	QuestionIndex int       `bson:"questionIndex" json:"questionIndex"`
	Text          string    `bson:"text" json:"text"`
	Timestamp     time.Time `bson:"timestamp" json:"timestamp"`
	IsApproved    bool      `bson:"isApproved" json:"isApproved"`
	Likes         int       `bson:"likes" json:"likes"`
	LikedBy       []string  `bson:"likedBy" json:"likedBy"`
}

// ReactionKind is an emoji-style reaction to a question.
type ReactionKind string

const (
	ReactionLike     ReactionKind = "like"
	ReactionLove     ReactionKind = "love"
	ReactionLaugh    ReactionKind = "laugh"
	ReactionWow      ReactionKind = "wow"
	ReactionConfused ReactionKind = "confused"
	ReactionClap     ReactionKind = "clap"
)

// ReactionKinds lists every recognized reaction, in display order.
var ReactionKinds = []ReactionKind{
	ReactionLike, ReactionLove, ReactionLaugh, ReactionWow, ReactionConfused, ReactionClap,
}

// ValidReactionKind reports whether k is a recognized reaction.
func ValidReactionKind(k ReactionKind) bool {
	for _, v := range ReactionKinds {
		if k == v {
			return true
		}
	}
	return false
}

// Reaction is one participant's reaction to a question index. One per
// participant per index; the latest wins.
type Reaction struct {
	QuestionIndex int          `bson:"questionIndex" json:"questionIndex"`
	Kind          ReactionKind `bson:"type" json:"type"`
	Timestamp     time.Time    `bson:"timestamp" json:"timestamp"`
}

// Participant is one joined attendee (identified or anonymous) and their
// accumulated responses, comments and reactions. The document is
// single-writer: only the owning participant mutates it.
type Participant struct {
	ID          string `bson:"_id" json:"id"`
	ActivityID  string `bson:"activityId" json:"activityId"`
	UserID      string `bson:"userId,omitempty" json:"userId,omitempty"` // empty for anonymous
	Nickname    string `bson:"nickname" json:"nickname"`
	IsAnonymous bool   `bson:"isAnonymous" json:"isAnonymous"`

	Responses []Response `bson:"responses" json:"responses"`
	Comments  []Comment  `bson:"comments" json:"comments"`
	Reactions []Reaction `bson:"reactions" json:"reactions"`

	JoinedAt     time.Time `bson:"joinedAt" json:"joinedAt"`
	LastActivity time.Time `bson:"lastActivity" json:"lastActivity"`
	IsConnected  bool      `bson:"isConnected" json:"isConnected"`

	TotalResponseTime   int64   `bson:"totalResponseTime" json:"totalResponseTime"`
	AverageResponseTime float64 `bson:"averageResponseTime" json:"averageResponseTime"`
}

// DisplayName returns the nickname, masked when the participant is anonymous.
func (p *Participant) DisplayName() string {
	if p.IsAnonymous {
		return "Anonymous"
	}
	return p.Nickname
}

// SetResponse records r, first dropping any existing response for the same
// question index unless multiple answers are allowed.
func (p *Participant) SetResponse(r Response, allowMultiple bool) {
	if !allowMultiple {
		kept := p.Responses[:0]
		for _, old := range p.Responses {
			if old.QuestionIndex != r.QuestionIndex {
				kept = append(kept, old)
			}
		}
		p.Responses = kept
	}
	p.Responses = append(p.Responses, r)
	p.recalcResponseStats()
}

// SetReaction records a reaction for the question index, replacing any
// existing one.
func (p *Participant) SetReaction(questionIndex int, kind ReactionKind, now time.Time) {
	for i := range p.Reactions {
		if p.Reactions[i].QuestionIndex == questionIndex {
			p.Reactions[i].Kind = kind
			p.Reactions[i].Timestamp = now
			return
		}
	}
	p.Reactions = append(p.Reactions, Reaction{QuestionIndex: questionIndex, Kind: kind, Timestamp: now})
}

// ReactionFor returns the participant's reaction for the question index, if any.
func (p *Participant) ReactionFor(questionIndex int) *Reaction {
	for i := range p.Reactions {
		if p.Reactions[i].QuestionIndex == questionIndex {
			return &p.Reactions[i]
		}
	}
	return nil
}

// ResponseFor returns the first response for the question index, if any.
func (p *Participant) ResponseFor(questionIndex int) *Response {
	for i := range p.Responses {
		if p.Responses[i].QuestionIndex == questionIndex {
			return &p.Responses[i]
		}
	}
	return nil
}

func (p *Participant) recalcResponseStats() {
	if len(p.Responses) == 0 {
		p.TotalResponseTime = 0
		p.AverageResponseTime = 0
		return
	}
	var total int64
	for _, r := range p.Responses {
		total += r.ResponseTime
	}
	p.TotalResponseTime = total
	p.AverageResponseTime = float64(total) / float64(len(p.Responses))
}
