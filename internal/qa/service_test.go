package qa

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/pulse-live/backend/internal/apperr"
	"github.com/pulse-live/backend/internal/models"
	"github.com/pulse-live/backend/internal/store/memory"
)

func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	st := memory.New()
	return NewService(st, zap.NewNop()), st
}

func seedSession(t *testing.T, st *memory.Store, allowQuestions bool) *models.Session {
	t.Helper()
	settings := models.DefaultSessionSettings()
	settings.AllowQuestions = allowQuestions
	sess := &models.Session{
		ID:       "live_test",
		Title:    "Test",
		PIN:      "123456",
		HostIDs:  []string{"host-1"},
		IsLive:   true,
		Settings: settings,
	}
	if err := st.InsertSession(context.Background(), sess); err != nil {
		t.Fatalf("InsertSession: %v", err)
	}
	return sess
}

func seedParticipant(t *testing.T, st *memory.Store, activityID, id string) {
	t.Helper()
	err := st.InsertParticipant(context.Background(), &models.Participant{
		ID:         id,
		ActivityID: activityID,
		Nickname:   "Ann",
	})
	if err != nil {
		t.Fatalf("InsertParticipant: %v", err)
	}
}

func TestSubmit(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	sess := seedSession(t, st, true)
	seedParticipant(t, st, sess.ID, "p1")

	q, err := svc.Submit(ctx, sess.ID, SubmitInput{
		ParticipantID: "p1", Nickname: "Ann", Question: "Why polling?",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if q.Status != models.QAPending {
		t.Fatalf("status = %s, want pending", q.Status)
	}
	if q.IsReply {
		t.Fatal("top-level question flagged as reply")
	}
}

func TestSubmitAnonymousMasksNickname(t *testing.T) {
	svc, st := newTestService(t)
	sess := seedSession(t, st, true)

	q, err := svc.Submit(context.Background(), sess.ID, SubmitInput{
		Nickname: "Ann", Question: "Secret question", IsAnonymous: true,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if q.Nickname != "Anonymous" {
		t.Fatalf("nickname = %q, want Anonymous", q.Nickname)
	}
}

func TestSubmitDisabled(t *testing.T) {
	svc, st := newTestService(t)
	sess := seedSession(t, st, false)

	_, err := svc.Submit(context.Background(), sess.ID, SubmitInput{Question: "Allowed?"})
	if !apperr.IsKind(err, apperr.KindForbidden) {
		t.Fatalf("err = %v, want Forbidden", err)
	}
}

func TestSubmitValidation(t *testing.T) {
	svc, st := newTestService(t)
	sess := seedSession(t, st, true)

	_, err := svc.Submit(context.Background(), sess.ID, SubmitInput{Question: "   "})
	if !apperr.IsKind(err, apperr.KindInvalidArgument) {
		t.Fatalf("blank question err = %v, want InvalidArgument", err)
	}
}

func TestReplyToMissingParent(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	sess := seedSession(t, st, true)

	_, err := svc.Reply(ctx, sess.ID, "qa_missing", SubmitInput{Question: "A reply"})
	if !apperr.IsKind(err, apperr.KindNotFound) {
		t.Fatalf("err = %v, want NotFound", err)
	}

	// Nothing was created.
	questions, err := svc.List(ctx, sess.ID, ListInput{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(questions) != 0 {
		t.Fatalf("questions = %d, want 0", len(questions))
	}
}

func TestReplyThreadDepth(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	sess := seedSession(t, st, true)

	parent, err := svc.Submit(ctx, sess.ID, SubmitInput{Question: "Parent"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	reply, err := svc.Reply(ctx, sess.ID, parent.ID, SubmitInput{Question: "Child"})
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if !reply.IsReply || reply.ParentQuestionID != parent.ID {
		t.Fatalf("reply = %+v, want child of %s", reply, parent.ID)
	}

	// Two levels only.
	_, err = svc.Reply(ctx, sess.ID, reply.ID, SubmitInput{Question: "Grandchild"})
	if !apperr.IsKind(err, apperr.KindInvalidArgument) {
		t.Fatalf("reply-to-reply err = %v, want InvalidArgument", err)
	}
}

func TestReplyParentInOtherSession(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	a := seedSession(t, st, true)

	settings := models.DefaultSessionSettings()
	other := &models.Session{ID: "live_other", Title: "Other", PIN: "654321", HostIDs: []string{"host-2"}, Settings: settings}
	if err := st.InsertSession(ctx, other); err != nil {
		t.Fatalf("InsertSession: %v", err)
	}

	parent, err := svc.Submit(ctx, a.ID, SubmitInput{Question: "In A"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	_, err = svc.Reply(ctx, other.ID, parent.ID, SubmitInput{Question: "From B"})
	if !apperr.IsKind(err, apperr.KindNotFound) {
		t.Fatalf("cross-session reply err = %v, want NotFound", err)
	}
}

func TestUpvoteToggle(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	sess := seedSession(t, st, true)

	q, err := svc.Submit(ctx, sess.ID, SubmitInput{Question: "Toggle me"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	up, err := svc.Upvote(ctx, sess.ID, q.ID, "p1")
	if err != nil {
		t.Fatalf("Upvote: %v", err)
	}
	if !up.Upvoted || up.Upvotes != 1 {
		t.Fatalf("first toggle = %+v, want upvoted with count 1", up)
	}

	down, err := svc.Upvote(ctx, sess.ID, q.ID, "p1")
	if err != nil {
		t.Fatalf("Upvote: %v", err)
	}
	if down.Upvoted || down.Upvotes != 0 {
		t.Fatalf("second toggle = %+v, want removed with count 0", down)
	}
}

func TestAnswerHostOnly(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	sess := seedSession(t, st, true)

	q, err := svc.Submit(ctx, sess.ID, SubmitInput{Question: "Answer me"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if _, err := svc.Answer(ctx, sess.ID, q.ID, "stranger", "No."); !apperr.IsKind(err, apperr.KindForbidden) {
		t.Fatalf("non-host answer err = %v, want Forbidden", err)
	}

	answered, err := svc.Answer(ctx, sess.ID, q.ID, "host-1", "Because polling is simple.")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if answered.Status != models.QAAnswered || answered.Answer == nil {
		t.Fatalf("answered = %+v, want answered status with answer", answered)
	}
	if answered.Answer.AnsweredBy != "host-1" {
		t.Fatalf("answeredBy = %s, want host-1", answered.Answer.AnsweredBy)
	}
}

func TestDismiss(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	sess := seedSession(t, st, true)

	q, err := svc.Submit(ctx, sess.ID, SubmitInput{Question: "Off topic"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	dismissed, err := svc.Dismiss(ctx, sess.ID, q.ID, "host-1")
	if err != nil {
		t.Fatalf("Dismiss: %v", err)
	}
	if dismissed.Status != models.QADismissed {
		t.Fatalf("status = %s, want dismissed", dismissed.Status)
	}
}

func TestListSortedByUpvotes(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	sess := seedSession(t, st, true)

	low, err := svc.Submit(ctx, sess.ID, SubmitInput{Question: "Low"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	high, err := svc.Submit(ctx, sess.ID, SubmitInput{Question: "High"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	for _, voter := range []string{"p1", "p2"} {
		if _, err := svc.Upvote(ctx, sess.ID, high.ID, voter); err != nil {
			t.Fatalf("Upvote: %v", err)
		}
	}

	threads, err := svc.List(ctx, sess.ID, ListInput{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(threads) != 2 {
		t.Fatalf("threads = %d, want 2", len(threads))
	}
	if threads[0].ID != high.ID || threads[0].UpvoteCount != 2 {
		t.Fatalf("threads[0] = %s (%d upvotes), want %s with 2", threads[0].ID, threads[0].UpvoteCount, high.ID)
	}
	if threads[1].ID != low.ID {
		t.Fatalf("threads[1] = %s, want %s", threads[1].ID, low.ID)
	}
}

func TestListThreaded(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	sess := seedSession(t, st, true)

	parent, err := svc.Submit(ctx, sess.ID, SubmitInput{Question: "Parent"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := svc.Reply(ctx, sess.ID, parent.ID, SubmitInput{Question: "Child"}); err != nil {
		t.Fatalf("Reply: %v", err)
	}

	threads, err := svc.List(ctx, sess.ID, ListInput{Threaded: true})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(threads) != 1 {
		t.Fatalf("top-level threads = %d, want 1", len(threads))
	}
	if len(threads[0].Replies) != 1 || threads[0].Replies[0].Question != "Child" {
		t.Fatalf("replies = %+v, want the one child", threads[0].Replies)
	}
}

func TestListStatusFilter(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	sess := seedSession(t, st, true)

	q1, err := svc.Submit(ctx, sess.ID, SubmitInput{Question: "One"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := svc.Submit(ctx, sess.ID, SubmitInput{Question: "Two"}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := svc.Answer(ctx, sess.ID, q1.ID, "host-1", "Done"); err != nil {
		t.Fatalf("Answer: %v", err)
	}

	answered, err := svc.List(ctx, sess.ID, ListInput{Status: models.QAAnswered})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(answered) != 1 || answered[0].ID != q1.ID {
		t.Fatalf("answered = %+v, want only %s", answered, q1.ID)
	}

	if _, err := svc.List(ctx, sess.ID, ListInput{Status: "bogus"}); !apperr.IsKind(err, apperr.KindInvalidArgument) {
		t.Fatalf("bogus status err = %v, want InvalidArgument", err)
	}
}
