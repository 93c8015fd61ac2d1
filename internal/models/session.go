package models

import (
	"time"
)

// ItemKind classifies a session item.
type ItemKind string

const (
	KindMultiChoice ItemKind = "MultiChoice"
	KindMultiVote   ItemKind = "MultiVote"
	KindOpenText    ItemKind = "OpenText"
	KindRating      ItemKind = "Rating"
)

// ValidItemKind reports whether k is a recognized item kind.
func ValidItemKind(k ItemKind) bool {
	switch k {
	case KindMultiChoice, KindMultiVote, KindOpenText, KindRating:
		return true
	}
	return false
}

// ItemResponse is one vote/answer embedded in a poll-kind item. Poll-kind
// items store their responses on the session document; pre-authored
// questions store theirs on the participant document.
type ItemResponse struct {
	ParticipantID string    `bson:"participantId" json:"participantId"`
	Nickname      string    `bson:"nickname" json:"nickname"`
	Response      string    `bson:"response" json:"response"`
	Timestamp     time.Time `bson:"timestamp" json:"timestamp"`
}

// ItemSettings holds per-item timing and answer rules.
type ItemSettings struct {
	TimeLimit       int        `bson:"timeLimit" json:"timeLimit"` // seconds, 0 = no limit
	AllowMultiple   bool       `bson:"allowMultiple" json:"allowMultiple"`
	Required        bool       `bson:"required" json:"required"`
	Duration        int        `bson:"duration" json:"duration"` // seconds, poll-kind only
	ExpiresAt       *time.Time `bson:"expiresAt,omitempty" json:"expiresAt,omitempty"`
	ShowResultsLive bool       `bson:"showResultsLive" json:"showResultsLive"`
}

// Item is one unit of session content: a pre-authored question or a
// host-improvised timed poll. Both share one lifecycle and one results path.
type Item struct {
	ID          string         `bson:"id" json:"id"`
	Kind        ItemKind       `bson:"type" json:"type"`
	Text        string         `bson:"text" json:"text"`
	Description string         `bson:"description,omitempty" json:"description,omitempty"`
	Options     []string       `bson:"options" json:"options"`
	IsActive    bool           `bson:"isActive" json:"isActive"`
	IsPoll      bool           `bson:"isPoll" json:"isPoll"`
	CreatedBy   string         `bson:"createdBy,omitempty" json:"createdBy,omitempty"`
	CreatedAt   time.Time      `bson:"createdAt" json:"createdAt"`
	Responses   []ItemResponse `bson:"responses" json:"responses"`
	Settings    ItemSettings   `bson:"settings" json:"settings"`
}

// EffectivelyActive reports whether the item accepts votes at now. ExpiresAt
// is immutable once set; activity state is derived here, not pushed by a timer.
func (it *Item) EffectivelyActive(now time.Time) bool {
	if !it.IsActive {
		return false
	}
	return it.Settings.ExpiresAt == nil || !now.After(*it.Settings.ExpiresAt)
}

// HasOption reports whether opt is one of the item's declared options.
func (it *Item) HasOption(opt string) bool {
	for _, o := range it.Options {
		if o == opt {
			return true
		}
	}
	return false
}

// SessionSettings holds recognized session-level options.
type SessionSettings struct {
	AllowAnonymous  bool `bson:"allowAnonymous" json:"allowAnonymous"`
	AllowComments   bool `bson:"allowComments" json:"allowComments"`
	AllowQuestions  bool `bson:"allowQuestions" json:"allowQuestions"`
	ShowResultsLive bool `bson:"showResultsLive" json:"showResultsLive"`
	ModerateQA      bool `bson:"moderateQA" json:"moderateQA"`
}

// DefaultSessionSettings returns the settings applied when a host omits them.
func DefaultSessionSettings() SessionSettings {
	return SessionSettings{
		AllowAnonymous:  true,
		AllowComments:   true,
		AllowQuestions:  true,
		ShowResultsLive: true,
		ModerateQA:      false,
	}
}

// Analytics holds best-effort running counters. They are updated via atomic
// increments decoupled from the writes they count, so they are approximate
// and monotonic, never authoritative.
type Analytics struct {
	TotalParticipants int `bson:"totalParticipants" json:"totalParticipants"`
	TotalResponses    int `bson:"totalResponses" json:"totalResponses"`
}

// Session is one live interactive event: a PIN-addressed activity with an
// ordered, append-only items timeline.
type Session struct {
	ID                   string          `bson:"_id" json:"id"`
	Title                string          `bson:"title" json:"title"`
	Description          string          `bson:"description,omitempty" json:"description,omitempty"`
	PIN                  string          `bson:"pin" json:"pin"`
	HostIDs              []string        `bson:"hostIds" json:"hostIds"`
	IsLive               bool            `bson:"isLive" json:"isLive"`
	CurrentQuestionIndex int             `bson:"currentQuestionIndex" json:"currentQuestionIndex"`
	Items                []Item          `bson:"items" json:"items"`
	Settings             SessionSettings `bson:"settings" json:"settings"`
	Analytics            Analytics       `bson:"analytics" json:"analytics"`
	CreatedAt            time.Time       `bson:"createdAt" json:"createdAt"`
	UpdatedAt            time.Time       `bson:"updatedAt" json:"updatedAt"`
}

// IsHost reports whether userID may control this session.
func (s *Session) IsHost(userID string) bool {
	for _, id := range s.HostIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// CurrentItem returns the item at the current index, or nil when the
// timeline is empty or the index is out of range.
func (s *Session) CurrentItem() *Item {
	if s.CurrentQuestionIndex < 0 || s.CurrentQuestionIndex >= len(s.Items) {
		return nil
	}
	return &s.Items[s.CurrentQuestionIndex]
}

// ItemByID returns the item with the given id and its index, or nil and -1.
func (s *Session) ItemByID(id string) (*Item, int) {
	for i := range s.Items {
		if s.Items[i].ID == id {
			return &s.Items[i], i
		}
	}
	return nil, -1
}
