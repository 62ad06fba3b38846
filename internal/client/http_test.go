package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alfredjeanlab/threadlive/internal/model"
	"github.com/alfredjeanlab/threadlive/internal/vote"
)

// testHandler captures the incoming request details and returns a canned response.
type testHandler struct {
	// captured from the request
	method  string
	path    string
	query   url.Values
	body    string
	headers http.Header

	// canned response
	statusCode   int
	contentType  string
	responseBody string
}

func (h *testHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.method = r.Method
	h.path = r.URL.Path
	h.query = r.URL.Query()
	h.headers = r.Header.Clone()
	if r.Body != nil {
		data, _ := io.ReadAll(r.Body)
		h.body = string(data)
	}

	ct := h.contentType
	if ct == "" {
		ct = "application/json"
	}
	w.Header().Set("Content-Type", ct)
	if h.statusCode != 0 {
		w.WriteHeader(h.statusCode)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	if h.responseBody != "" {
		_, _ = w.Write([]byte(h.responseBody))
	}
}

// newTestClient creates an HTTPClient pointed at a test server with the given handler.
func newTestClient(h http.Handler) (*HTTPClient, *httptest.Server) {
	srv := httptest.NewServer(h)
	c := NewHTTPClient(srv.URL, "secret", Identity{UserID: 7, Capabilities: "moderate", ViewerID: "v-test"})
	return c, srv
}

func TestFetch_Query(t *testing.T) {
	h := &testHandler{responseBody: `{"success":true,"events":[{"event":"new_answer","thread_id":42,"timestamp":100,"id":3,"data":{}}],"timestamp":101}`}
	c, srv := newTestClient(h)
	defer srv.Close()

	b, err := c.Fetch(context.Background(), 42, 90, 10)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if h.method != http.MethodGet || h.path != "/v1/poll" {
		t.Fatalf("request = %s %s", h.method, h.path)
	}
	for k, want := range map[string]string{"thread_id": "42", "last_event_timestamp": "90", "longpoll": "false", "limit": "10"} {
		if got := h.query.Get(k); got != want {
			t.Errorf("query %s = %q, want %q", k, got, want)
		}
	}
	if len(b.Events) != 1 || b.Events[0].ID != 3 || b.Timestamp != 101 {
		t.Fatalf("batch = %+v", b)
	}
}

func TestWait_Query(t *testing.T) {
	h := &testHandler{responseBody: `{"success":true,"events":[],"timestamp":5}`}
	c, srv := newTestClient(h)
	defer srv.Close()

	b, err := c.Wait(context.Background(), 42, 0, 25*time.Second)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if h.query.Get("longpoll") != "true" || h.query.Get("timeout") != "25" {
		t.Fatalf("query = %v", h.query)
	}
	if b.Events == nil || len(b.Events) != 0 {
		t.Fatalf("events = %#v, want empty slice", b.Events)
	}
}

func TestIdentityHeaders(t *testing.T) {
	h := &testHandler{responseBody: `{"status":"ok"}`}
	c, srv := newTestClient(h)
	defer srv.Close()

	if _, err := c.Health(context.Background()); err != nil {
		t.Fatalf("Health: %v", err)
	}
	want := map[string]string{
		"Authorization":       "Bearer secret",
		"X-User-Id":           "7",
		"X-User-Capabilities": "moderate",
		"X-Viewer-Id":         "v-test",
	}
	for k, v := range want {
		if got := h.headers.Get(k); got != v {
			t.Errorf("header %s = %q, want %q", k, got, v)
		}
	}
}

func TestAPIError_MapsSentinels(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusBadRequest, model.ErrInvalidArgument},
		{http.StatusForbidden, model.ErrPermissionDenied},
		{http.StatusNotFound, model.ErrNotFound},
		{http.StatusConflict, model.ErrConflict},
		{http.StatusTooManyRequests, model.ErrRateLimited},
		{http.StatusServiceUnavailable, model.ErrUnavailable},
	}
	for _, tc := range cases {
		h := &testHandler{statusCode: tc.status, responseBody: `{"success":false,"error":"nope"}`}
		c, srv := newTestClient(h)
		_, err := c.Fetch(context.Background(), 1, 0, 0)
		srv.Close()

		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("status %d: err = %v, want APIError", tc.status, err)
		}
		if apiErr.Message != "nope" {
			t.Errorf("status %d: message = %q", tc.status, apiErr.Message)
		}
		if !errors.Is(err, tc.want) {
			t.Errorf("status %d: errors.Is(%v) = false", tc.status, tc.want)
		}
	}
}

func TestTransportError_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewHTTPClient(url, "", Identity{})
	_, err := c.Fetch(context.Background(), 1, 0, 0)
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want TransportError", err)
	}
}

func TestCastVote(t *testing.T) {
	h := &testHandler{responseBody: `{"applied":true,"action":"added","user_vote":1,"counts":{"votes_up":1,"votes_down":0}}`}
	c, srv := newTestClient(h)
	defer srv.Close()

	res, err := c.CastVote(context.Background(), vote.CastVoteRequest{SubjectType: model.SubjectAnswer, SubjectID: 7, Value: 1})
	if err != nil {
		t.Fatalf("CastVote: %v", err)
	}
	if h.method != http.MethodPost || h.path != "/v1/votes" {
		t.Fatalf("request = %s %s", h.method, h.path)
	}
	if !strings.Contains(h.body, `"subject_id":7`) || !strings.Contains(h.body, `"value":1`) {
		t.Errorf("body = %s", h.body)
	}
	if !res.Applied || res.UserVote != 1 {
		t.Errorf("result = %+v", res)
	}
}

func TestSubmitAnswer_Path(t *testing.T) {
	h := &testHandler{statusCode: http.StatusCreated, responseBody: `{"id":9,"question_id":42,"body":"hi"}`}
	c, srv := newTestClient(h)
	defer srv.Close()

	a, err := c.SubmitAnswer(context.Background(), 42, "hi")
	if err != nil {
		t.Fatalf("SubmitAnswer: %v", err)
	}
	if h.path != "/v1/questions/42/answers" || a.ID != 9 {
		t.Fatalf("path = %s, answer = %+v", h.path, a)
	}
}

func TestMarkBestAndCursor(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/answers/{id}/best", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"question_id":42,"answer_id":` + r.PathValue("id") + `,"previous_answer_id":3}`))
	})
	mux.HandleFunc("GET /v1/threads/{id}/cursor", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"thread_id":42,"timestamp":1234}`))
	})
	c, srv := newTestClient(mux)
	defer srv.Close()

	res, err := c.MarkBest(context.Background(), 8)
	if err != nil {
		t.Fatalf("MarkBest: %v", err)
	}
	if res.AnswerID != 8 || res.PreviousAnswerID != 3 {
		t.Errorf("result = %+v", res)
	}
	cur, err := c.ThreadCursor(context.Background(), 42)
	if err != nil {
		t.Fatalf("ThreadCursor: %v", err)
	}
	if cur != 1234 {
		t.Errorf("cursor = %d, want 1234", cur)
	}
}
