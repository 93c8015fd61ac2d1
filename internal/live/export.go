package live

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/pulse-live/backend/internal/store"
)

// ExportCSV streams a host-only CSV report of a finished or running session:
// session info, per-participant responses, poll votes, Q&A and a participant
// summary, as stacked sections with blank separator rows.
func (s *Service) ExportCSV(ctx context.Context, sessionID, userID string, w io.Writer) error {
	sess, err := s.hostSession(ctx, sessionID, userID)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)

	write := func(record ...string) error { return cw.Write(record) }
	blank := func() error { return cw.Write([]string{""}) }

	if err := write("Session", sess.Title); err != nil {
		return err
	}
	if err := write("PIN", sess.PIN); err != nil {
		return err
	}
	if err := write("Created", sess.CreatedAt.Format(time.RFC3339)); err != nil {
		return err
	}
	if err := write("Total Participants", fmt.Sprint(sess.Analytics.TotalParticipants)); err != nil {
		return err
	}
	if err := write("Total Responses", fmt.Sprint(sess.Analytics.TotalResponses)); err != nil {
		return err
	}

	participants, err := s.store.Participants(ctx, sessionID)
	if err != nil {
		return err
	}

	if err := blank(); err != nil {
		return err
	}
	if err := write("Responses"); err != nil {
		return err
	}
	if err := write("Question Index", "Question", "Participant", "Answer", "Response Time (ms)", "Submitted At"); err != nil {
		return err
	}
	for _, p := range participants {
		for _, r := range p.Responses {
			question := r.QuestionID
			if r.QuestionIndex >= 0 && r.QuestionIndex < len(sess.Items) {
				question = sess.Items[r.QuestionIndex].Text
			}
			if err := write(
				fmt.Sprint(r.QuestionIndex),
				question,
				p.DisplayName(),
				r.Answer,
				fmt.Sprint(r.ResponseTime),
				r.Timestamp.Format(time.RFC3339),
			); err != nil {
				return err
			}
		}
	}

	if err := blank(); err != nil {
		return err
	}
	if err := write("Poll Votes"); err != nil {
		return err
	}
	if err := write("Poll", "Participant", "Option", "Submitted At"); err != nil {
		return err
	}
	for i := range sess.Items {
		item := &sess.Items[i]
		if !item.IsPoll {
			continue
		}
		for _, v := range item.Responses {
			if err := write(item.Text, v.Nickname, v.Response, v.Timestamp.Format(time.RFC3339)); err != nil {
				return err
			}
		}
	}

	questions, err := s.store.QAQuestions(ctx, sessionID, store.QAFilter{})
	if err != nil {
		return err
	}

	if err := blank(); err != nil {
		return err
	}
	if err := write("Q&A"); err != nil {
		return err
	}
	if err := write("Question", "Asked By", "Status", "Upvotes", "Answer", "Asked At"); err != nil {
		return err
	}
	for _, q := range questions {
		answer := ""
		if q.Answer != nil {
			answer = q.Answer.Text
		}
		if err := write(
			q.Question,
			q.Nickname,
			string(q.Status),
			fmt.Sprint(q.UpvoteCount()),
			answer,
			q.CreatedAt.Format(time.RFC3339),
		); err != nil {
			return err
		}
	}

	if err := blank(); err != nil {
		return err
	}
	if err := write("Participants"); err != nil {
		return err
	}
	if err := write("Nickname", "Joined At", "Responses", "Correct", "Avg Response Time (ms)"); err != nil {
		return err
	}
	for _, p := range participants {
		correct := 0
		for _, r := range p.Responses {
			if r.IsCorrect {
				correct++
			}
		}
		if err := write(
			p.DisplayName(),
			p.JoinedAt.Format(time.RFC3339),
			fmt.Sprint(len(p.Responses)),
			fmt.Sprint(correct),
			fmt.Sprintf("%.0f", p.AverageResponseTime),
		); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}
