package live

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pulse-live/backend/internal/apperr"
	"github.com/pulse-live/backend/internal/models"
)

// wordCloudLimit caps the word-frequency table returned for OpenText items.
const wordCloudLimit = 50

// ResponseView is one response flattened for aggregation, independent of
// which document stored it.
type ResponseView struct {
	ParticipantID string    `json:"participantId"`
	Nickname      string    `json:"nickname"`
	Answer        string    `json:"answer"`
	ResponseTime  int64     `json:"responseTime"`
	Timestamp     time.Time `json:"timestamp"`
}

// OptionTally is the aggregate for one declared option.
type OptionTally struct {
	Count      int            `json:"count"`
	Percentage int            `json:"percentage"`
	Responders []ResponderRef `json:"responses,omitempty"`
}

// ResponderRef identifies who picked an option, for the detailed payload.
type ResponderRef struct {
	Nickname  string    `json:"nickname"`
	Timestamp time.Time `json:"timestamp"`
}

// WordCount is one entry of the word-frequency table.
type WordCount struct {
	Text  string `json:"text"`
	Value int    `json:"value"`
}

// Results is the aggregate payload for one item. Options is populated for
// choice and rating kinds; Responses and WordCloud for open text. Responses
// and per-option responder lists are withheld in the summary shape.
type Results struct {
	QuestionID          string                  `json:"questionId"`
	Question            string                  `json:"question"`
	Kind                models.ItemKind         `json:"type"`
	IsPoll              bool                    `json:"isPoll"`
	QuestionIndex       int                     `json:"questionIndex"`
	TotalResponses      int                     `json:"totalResponses"`
	Options             map[string]*OptionTally `json:"results,omitempty"`
	Responses           []ResponseView          `json:"responses,omitempty"`
	WordCloud           []WordCount             `json:"wordCloud,omitempty"`
	AverageResponseTime float64                 `json:"averageResponseTime"`
	IsActive            bool                    `json:"isActive"`
}

// ComputeResults aggregates responses for an item. Percentages are rounded
// and all zero when there are no responses. IsActive is recomputed from the
// expiry window on every call, independent of any sweep. When detailed is
// false the per-participant payload is withheld; aggregates remain.
func ComputeResults(item *models.Item, index int, responses []ResponseView, now time.Time, detailed bool) *Results {
	res := &Results{
		QuestionID:     item.ID,
		Question:       item.Text,
		Kind:           item.Kind,
		IsPoll:         item.IsPoll,
		QuestionIndex:  index,
		TotalResponses: len(responses),
		IsActive:       item.EffectivelyActive(now),
	}

	if len(responses) > 0 {
		var total int64
		for _, r := range responses {
			total += r.ResponseTime
		}
		res.AverageResponseTime = float64(total) / float64(len(responses))
	}

	if item.Kind == models.KindOpenText {
		if detailed {
			res.Responses = responses
		}
		res.WordCloud = wordFrequencies(responses)
		return res
	}

	res.Options = make(map[string]*OptionTally, len(item.Options))
	for _, opt := range item.Options {
		res.Options[opt] = &OptionTally{}
	}
	for _, r := range responses {
		tally, ok := res.Options[r.Answer]
		if !ok {
			continue // answer no longer matches a declared option
		}
		tally.Count++
		if detailed {
			tally.Responders = append(tally.Responders, ResponderRef{Nickname: r.Nickname, Timestamp: r.Timestamp})
		}
	}
	if res.TotalResponses > 0 {
		for _, tally := range res.Options {
			tally.Percentage = int(math.Round(float64(tally.Count) / float64(res.TotalResponses) * 100))
		}
	}
	return res
}

// wordFrequencies builds the word-cloud table: lower-cased whitespace
// tokens longer than two characters, most frequent first, capped at 50.
func wordFrequencies(responses []ResponseView) []WordCount {
	freq := make(map[string]int)
	for _, r := range responses {
		for _, word := range strings.Fields(strings.ToLower(r.Answer)) {
			if len(word) > 2 {
				freq[word]++
			}
		}
	}
	out := make([]WordCount, 0, len(freq))
	for word, count := range freq {
		out = append(out, WordCount{Text: word, Value: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Value != out[j].Value {
			return out[i].Value > out[j].Value
		}
		return out[i].Text < out[j].Text
	})
	if len(out) > wordCloudLimit {
		out = out[:wordCloudLimit]
	}
	return out
}

// Results aggregates the item at questionIndex (current item when negative).
// The canonical response source depends on the item kind: poll-kind items
// read their embedded votes, pre-authored questions read participant
// documents. The detailed shape requires host rights or live results.
func (s *Service) Results(ctx context.Context, sessionID string, questionIndex int, callerID string) (*Results, error) {
	sess, err := s.store.Session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if questionIndex < 0 {
		questionIndex = sess.CurrentQuestionIndex
	}
	if questionIndex < 0 || questionIndex >= len(sess.Items) {
		return nil, apperr.NotFound("question not found")
	}
	item := &sess.Items[questionIndex]
	return s.computeItemResults(ctx, sess, item, questionIndex, sess.IsHost(callerID))
}

// ItemResults aggregates an item addressed by ID.
func (s *Service) ItemResults(ctx context.Context, sessionID, itemID, callerID string) (*Results, error) {
	sess, err := s.store.Session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	item, index := sess.ItemByID(itemID)
	if item == nil {
		return nil, apperr.NotFound("item not found")
	}
	return s.computeItemResults(ctx, sess, item, index, sess.IsHost(callerID))
}

func (s *Service) computeItemResults(ctx context.Context, sess *models.Session, item *models.Item, index int, callerIsHost bool) (*Results, error) {
	var responses []ResponseView
	if item.IsPoll {
		responses = make([]ResponseView, 0, len(item.Responses))
		for _, r := range item.Responses {
			responses = append(responses, ResponseView{
				ParticipantID: r.ParticipantID,
				Nickname:      r.Nickname,
				Answer:        r.Response,
				Timestamp:     r.Timestamp,
			})
		}
	} else {
		participants, err := s.store.ParticipantsWithResponse(ctx, sess.ID, index)
		if err != nil {
			return nil, err
		}
		for _, p := range participants {
			for _, r := range p.Responses {
				if r.QuestionIndex != index {
					continue
				}
				responses = append(responses, ResponseView{
					ParticipantID: p.ID,
					Nickname:      p.Nickname,
					Answer:        r.Answer,
					ResponseTime:  r.ResponseTime,
					Timestamp:     r.Timestamp,
				})
			}
		}
	}

	showLive := sess.Settings.ShowResultsLive
	if item.IsPoll {
		showLive = item.Settings.ShowResultsLive
	}
	detailed := callerIsHost || showLive
	return ComputeResults(item, index, responses, s.now(), detailed), nil
}

// PollSummary is the listing view of an active poll.
type PollSummary struct {
	ID            string          `json:"id"`
	Question      string          `json:"question"`
	Kind          models.ItemKind `json:"type"`
	Options       []string        `json:"options"`
	IsActive      bool            `json:"isActive"`
	CreatedAt     time.Time       `json:"createdAt"`
	ExpiresAt     *time.Time      `json:"expiresAt,omitempty"`
	AllowMultiple bool            `json:"allowMultiple"`
	QuestionIndex int             `json:"questionIndex"`
}

// ActivePolls lists the session's active polls, newest first. The expire
// sweep runs first, so an expired poll is deactivated and persisted before
// filtering. Readers between expiry and the next sweep may still see a poll
// as active; that staleness window is part of the design.
func (s *Service) ActivePolls(ctx context.Context, sessionID string) ([]PollSummary, error) {
	sess, err := s.store.Session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	s.expireSweep(ctx, sess)

	var out []PollSummary
	for i := range sess.Items {
		item := &sess.Items[i]
		if !item.IsPoll || !item.EffectivelyActive(s.now()) {
			continue
		}
		out = append(out, PollSummary{
			ID:            item.ID,
			Question:      item.Text,
			Kind:          item.Kind,
			Options:       item.Options,
			IsActive:      true,
			CreatedAt:     item.CreatedAt,
			ExpiresAt:     item.Settings.ExpiresAt,
			AllowMultiple: item.Settings.AllowMultiple,
			QuestionIndex: i,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// expireSweep deactivates and persists every poll whose window has elapsed.
// Persistence failures are logged and the sweep continues; the next read
// retries.
func (s *Service) expireSweep(ctx context.Context, sess *models.Session) {
	now := s.now()
	for i := range sess.Items {
		item := &sess.Items[i]
		if !item.IsPoll || !item.IsActive {
			continue
		}
		if item.Settings.ExpiresAt != nil && now.After(*item.Settings.ExpiresAt) {
			if err := s.store.DeactivateItem(ctx, sess.ID, item.ID); err != nil {
				s.logger.Warn("poll expiry persist failed",
					zap.String("session", sess.ID), zap.String("item", item.ID), zap.Error(err))
				continue
			}
			item.IsActive = false
		}
	}
}
