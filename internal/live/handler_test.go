package live

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pulse-live/backend/internal/auth"
	"github.com/pulse-live/backend/internal/middleware"
	"github.com/pulse-live/backend/internal/store/memory"
)

type testServer struct {
	router *gin.Engine
	svc    *Service
	jwt    *auth.JWTService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st := memory.New()
	svc := NewService(st, nil, zap.NewNop())
	handler := NewHandler(svc)
	jwtService := auth.NewJWTService("test-secret", 1)

	router := gin.New()
	router.GET("/live/activities/pin/:pin", handler.GetByPIN)
	router.POST("/live/activities/:id/join", middleware.OptionalJWT(jwtService), handler.Join)
	router.POST("/live/activities/:id/responses", handler.SubmitResponse)
	router.POST("/live/activities/:id/vote", handler.Vote)
	router.GET("/live/activities/:id/status", handler.Status)
	router.GET("/live/activities/:id/results", middleware.OptionalJWT(jwtService), handler.Results)
	router.GET("/live/activities/:id/polls", handler.ListActivePolls)

	host := router.Group("")
	host.Use(middleware.JWT(jwtService), middleware.RequireRole("admin", "staff", "instructor"))
	{
		host.POST("/live/activities", handler.Create)
		host.PATCH("/live/activities/:id/toggle", handler.ToggleLive)
		host.PATCH("/live/activities/:id/navigate", handler.Navigate)
		host.POST("/live/activities/:id/polls", handler.CreatePoll)
		host.GET("/live/activities/:id/export", handler.Export)
	}

	return &testServer{router: router, svc: svc, jwt: jwtService}
}

func (ts *testServer) token(t *testing.T, userID, role string) string {
	t.Helper()
	tok, err := ts.jwt.Generate(userID, role, "Host")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	return tok
}

func (ts *testServer) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	var env struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   string          `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v (%s)", err, w.Body.String())
	}
	if !env.Success {
		t.Fatalf("response not successful: %s", env.Error)
	}
	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			t.Fatalf("decode data: %v", err)
		}
	}
}

func createAndStart(t *testing.T, ts *testServer) (id, pin, hostToken string) {
	t.Helper()
	hostToken = ts.token(t, "host-1", "admin")
	w := ts.do(t, http.MethodPost, "/live/activities", hostToken, gin.H{
		"title": "HTTP Test",
		"questions": []gin.H{
			{"type": "MultiChoice", "text": "Q1", "options": []string{"A", "B"}},
		},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", w.Code, w.Body.String())
	}
	var created struct {
		ID  string `json:"id"`
		PIN string `json:"pin"`
	}
	decodeData(t, w, &created)

	if w := ts.do(t, http.MethodPatch, "/live/activities/"+created.ID+"/toggle", hostToken, nil); w.Code != http.StatusOK {
		t.Fatalf("toggle status = %d: %s", w.Code, w.Body.String())
	}
	return created.ID, created.PIN, hostToken
}

func joinHTTP(t *testing.T, ts *testServer, activityID string) string {
	t.Helper()
	w := ts.do(t, http.MethodPost, "/live/activities/"+activityID+"/join", "", gin.H{"nickname": "Ann", "isAnonymous": true})
	if w.Code != http.StatusOK {
		t.Fatalf("join status = %d: %s", w.Code, w.Body.String())
	}
	var joined struct {
		ParticipantID string `json:"participantId"`
	}
	decodeData(t, w, &joined)
	return joined.ParticipantID
}

func TestCreateRequiresHostRole(t *testing.T) {
	ts := newTestServer(t)

	if w := ts.do(t, http.MethodPost, "/live/activities", "", gin.H{"title": "x"}); w.Code != http.StatusUnauthorized {
		t.Fatalf("no token status = %d, want 401", w.Code)
	}
	attendee := ts.token(t, "u1", "attendee")
	if w := ts.do(t, http.MethodPost, "/live/activities", attendee, gin.H{"title": "x"}); w.Code != http.StatusForbidden {
		t.Fatalf("attendee status = %d, want 403", w.Code)
	}
}

func TestPINLookupFlow(t *testing.T) {
	ts := newTestServer(t)
	id, pin, _ := createAndStart(t, ts)

	w := ts.do(t, http.MethodGet, "/live/activities/pin/"+pin, "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("pin lookup status = %d: %s", w.Code, w.Body.String())
	}
	var summary struct {
		ID string `json:"id"`
	}
	decodeData(t, w, &summary)
	if summary.ID != id {
		t.Fatalf("summary.ID = %s, want %s", summary.ID, id)
	}

	if w := ts.do(t, http.MethodGet, "/live/activities/pin/000000", "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("bad pin status = %d, want 404", w.Code)
	}
}

func TestResponseAndResultsFlow(t *testing.T) {
	ts := newTestServer(t)
	id, _, hostToken := createAndStart(t, ts)
	pid := joinHTTP(t, ts, id)

	w := ts.do(t, http.MethodPost, "/live/activities/"+id+"/responses", "", gin.H{
		"participantId": pid, "questionId": "q_0", "questionIndex": 0, "answer": "A",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("response status = %d: %s", w.Code, w.Body.String())
	}

	w = ts.do(t, http.MethodGet, "/live/activities/"+id+"/results", hostToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("results status = %d: %s", w.Code, w.Body.String())
	}
	var res struct {
		TotalResponses int `json:"totalResponses"`
	}
	decodeData(t, w, &res)
	if res.TotalResponses != 1 {
		t.Fatalf("totalResponses = %d, want 1", res.TotalResponses)
	}
}

func TestVoteOnExpiredPollReturnsGone(t *testing.T) {
	ts := newTestServer(t)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	now := base
	ts.svc.now = func() time.Time { return now }

	id, _, hostToken := createAndStart(t, ts)
	pid := joinHTTP(t, ts, id)

	w := ts.do(t, http.MethodPost, "/live/activities/"+id+"/polls", hostToken, gin.H{
		"question": "Quick", "options": []string{"Yes", "No"}, "duration": 1,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create poll status = %d: %s", w.Code, w.Body.String())
	}
	var created struct {
		Item struct {
			ID string `json:"id"`
		} `json:"poll"`
	}
	decodeData(t, w, &created)

	now = base.Add(5 * time.Second)
	w = ts.do(t, http.MethodPost, "/live/activities/"+id+"/vote", "", gin.H{
		"participantId": pid, "pollId": created.Item.ID, "option": "Yes",
	})
	if w.Code != http.StatusGone {
		t.Fatalf("expired vote status = %d, want 410: %s", w.Code, w.Body.String())
	}
}

func TestStatusEndpoint(t *testing.T) {
	ts := newTestServer(t)
	id, _, _ := createAndStart(t, ts)

	w := ts.do(t, http.MethodGet, "/live/activities/"+id+"/status", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var st struct {
		HasUpdates bool      `json:"hasUpdates"`
		Timestamp  time.Time `json:"timestamp"`
		Data       struct {
			IsLive bool `json:"isLive"`
		} `json:"data"`
	}
	decodeData(t, w, &st)
	if !st.HasUpdates || !st.Data.IsLive {
		t.Fatalf("status body = %+v", st)
	}

	// A cursor past the server's timestamp reports no updates.
	quietPath := fmt.Sprintf("/live/activities/%s/status?since=%s", id, st.Timestamp.Add(time.Second).UTC().Format(time.RFC3339))
	w = ts.do(t, http.MethodGet, quietPath, "", nil)
	var quiet struct {
		HasUpdates bool `json:"hasUpdates"`
	}
	decodeData(t, w, &quiet)
	if quiet.HasUpdates {
		t.Fatal("future cursor still reported updates")
	}
}

func TestExportRequiresHost(t *testing.T) {
	ts := newTestServer(t)
	id, _, hostToken := createAndStart(t, ts)

	other := ts.token(t, "host-2", "admin")
	if w := ts.do(t, http.MethodGet, "/live/activities/"+id+"/export", other, nil); w.Code != http.StatusForbidden {
		t.Fatalf("non-host export status = %d, want 403", w.Code)
	}

	w := ts.do(t, http.MethodGet, "/live/activities/"+id+"/export", hostToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("export status = %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/csv" {
		t.Fatalf("content type = %q, want text/csv", ct)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte("HTTP Test")) {
		t.Fatal("export missing session title")
	}
}

func TestUnknownSessionIs404(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodGet, "/live/activities/live_missing/status", "", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}
