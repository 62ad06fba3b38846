package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/alfredjeanlab/threadlive/internal/model"
	"github.com/alfredjeanlab/threadlive/internal/vote"
)

func TestPoll_EmptyThread(t *testing.T) {
	env := newTestServer(t)
	h := env.srv.NewHTTPHandler("")

	before := time.Now().Unix()
	rec := doRequest(t, h, http.MethodGet, "/v1/poll?thread_id=42&last_event_timestamp=0&longpoll=false", 0, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp pollResponse
	decodeBody(t, rec, &resp)
	if !resp.Success || resp.Events == nil || len(resp.Events) != 0 {
		t.Fatalf("unexpected response %+v", resp)
	}
	if resp.Timestamp < before {
		t.Fatalf("timestamp %d before request time %d", resp.Timestamp, before)
	}
	if !strings.Contains(rec.Body.String(), `"events":[]`) {
		t.Fatalf("events must encode as an empty array: %s", rec.Body.String())
	}
}

func TestPoll_LongpollTimesOutEmpty(t *testing.T) {
	env := newTestServer(t)
	h := env.srv.NewHTTPHandler("")

	start := time.Now()
	rec := doRequest(t, h, http.MethodGet, "/v1/poll?thread_id=42", 0, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if elapsed := time.Since(start); elapsed < 250*time.Millisecond {
		t.Fatalf("longpoll returned after %v, expected to wait", elapsed)
	}
	var resp pollResponse
	decodeBody(t, rec, &resp)
	if !resp.Success || len(resp.Events) != 0 {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestPoll_LongpollWakesOnAnswer(t *testing.T) {
	env := newTestServer(t)
	q, _ := env.seedThread(t, 1, 2)
	h := env.srv.NewHTTPHandler("")

	go func() {
		time.Sleep(50 * time.Millisecond)
		if _, err := env.srv.SubmitAnswer(context.Background(), user(3), q.ID, "Use a select with a default case."); err != nil {
			t.Errorf("SubmitAnswer: %v", err)
		}
	}()

	rec := doRequest(t, h, http.MethodGet, fmt.Sprintf("/v1/poll?thread_id=%d&timeout=1", q.ID), 0, "", nil)
	var resp pollResponse
	decodeBody(t, rec, &resp)
	if len(resp.Events) != 1 || resp.Events[0].Event != model.EventNewAnswer {
		t.Fatalf("expected one new_answer event, got %+v", resp.Events)
	}
	if resp.Events[0].ThreadID != q.ID || resp.Events[0].ID == 0 {
		t.Fatalf("envelope missing thread or id: %+v", resp.Events[0])
	}
}

func TestPoll_BadArguments(t *testing.T) {
	env := newTestServer(t)
	h := env.srv.NewHTTPHandler("")

	for _, path := range []string{
		"/v1/poll",
		"/v1/poll?thread_id=abc",
		"/v1/poll?thread_id=-1",
		"/v1/poll?thread_id=1&last_event_timestamp=yesterday",
		"/v1/poll?thread_id=1&last_event_timestamp=-5",
	} {
		rec := doRequest(t, h, http.MethodGet, path, 0, "", nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", path, rec.Code)
		}
		if !strings.Contains(rec.Body.String(), `"error"`) {
			t.Errorf("%s: missing error body: %s", path, rec.Body.String())
		}
	}
}

func TestPoll_TracksViewer(t *testing.T) {
	env := newTestServer(t)
	h := env.srv.NewHTTPHandler("")

	doRequest(t, h, http.MethodGet, "/v1/poll?thread_id=42&longpoll=false", 7, "", nil)
	rec := doRequest(t, h, http.MethodGet, "/v1/threads/42/viewers", 0, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		Count   int `json:"count"`
		Viewers []struct {
			Viewer    string `json:"viewer"`
			UserID    int64  `json:"user_id"`
			Transport string `json:"transport"`
		} `json:"viewers"`
	}
	decodeBody(t, rec, &resp)
	if resp.Count != 1 {
		t.Fatalf("expected 1 viewer, got %d", resp.Count)
	}
	if resp.Viewers[0].Viewer != "user:7" || resp.Viewers[0].Transport != transportTimedPoll {
		t.Fatalf("unexpected viewer %+v", resp.Viewers[0])
	}
}

func TestPoll_AnonymousViewerGetsID(t *testing.T) {
	env := newTestServer(t)
	h := env.srv.NewHTTPHandler("")

	rec := doRequest(t, h, http.MethodGet, "/v1/poll?thread_id=42&longpoll=false", 0, "", nil)
	if id := rec.Header().Get(HeaderViewerID); !strings.HasPrefix(id, "v-") {
		t.Fatalf("expected generated viewer id header, got %q", id)
	}
}

func TestThreadCursor(t *testing.T) {
	env := newTestServer(t)
	q, a := env.seedThread(t, 1, 2)
	h := env.srv.NewHTTPHandler("")

	rec := doRequest(t, h, http.MethodGet, fmt.Sprintf("/v1/threads/%d/cursor", q.ID), 0, "", nil)
	var resp map[string]int64
	decodeBody(t, rec, &resp)
	if resp["timestamp"] != 0 {
		t.Fatalf("expected cursor 0 for a thread without events, got %d", resp["timestamp"])
	}

	if _, err := env.srv.votes.CastVote(context.Background(), user(5, "vote"), vote.CastVoteRequest{SubjectType: model.SubjectAnswer, SubjectID: a.ID, Value: 1}); err != nil {
		t.Fatalf("CastVote: %v", err)
	}
	rec = doRequest(t, h, http.MethodGet, fmt.Sprintf("/v1/threads/%d/cursor", q.ID), 0, "", nil)
	decodeBody(t, rec, &resp)
	if resp["timestamp"] == 0 || resp["thread_id"] != q.ID {
		t.Fatalf("unexpected cursor response %+v", resp)
	}
}

func TestCastVote_HTTP(t *testing.T) {
	env := newTestServer(t)
	_, a := env.seedThread(t, 1, 2)
	h := env.srv.NewHTTPHandler("")
	body := vote.CastVoteRequest{SubjectType: model.SubjectAnswer, SubjectID: a.ID, Value: 1}

	rec := doRequest(t, h, http.MethodPost, "/v1/votes", 5, "vote", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var res vote.CastVoteResult
	decodeBody(t, rec, &res)
	if res.Action != model.VoteAdded || res.Counts.Up != 1 {
		t.Fatalf("unexpected result %+v", res)
	}

	rec = doRequest(t, h, http.MethodGet, fmt.Sprintf("/v1/votes?subject_type=answer&subject_id=%d", a.ID), 5, "", nil)
	var counts map[string]any
	decodeBody(t, rec, &counts)
	if counts["votes_up"] != float64(1) || counts["user_vote"] != float64(1) {
		t.Fatalf("unexpected counts %+v", counts)
	}

	// Second identical vote toggles off.
	rec = doRequest(t, h, http.MethodPost, "/v1/votes", 5, "vote", body)
	decodeBody(t, rec, &res)
	if res.Action != model.VoteRemoved || res.Counts.Up != 0 {
		t.Fatalf("unexpected toggle result %+v", res)
	}
}

func TestCastVote_ErrorStatuses(t *testing.T) {
	env := newTestServer(t)
	_, a := env.seedThread(t, 1, 2)
	h := env.srv.NewHTTPHandler("")

	tests := []struct {
		name   string
		userID int64
		caps   string
		body   vote.CastVoteRequest
		want   int
	}{
		{"anonymous", 0, "", vote.CastVoteRequest{SubjectType: model.SubjectAnswer, SubjectID: a.ID, Value: 1}, http.StatusForbidden},
		{"no capability", 5, "", vote.CastVoteRequest{SubjectType: model.SubjectAnswer, SubjectID: a.ID, Value: 1}, http.StatusForbidden},
		{"self vote", 2, "vote", vote.CastVoteRequest{SubjectType: model.SubjectAnswer, SubjectID: a.ID, Value: 1}, http.StatusForbidden},
		{"bad value", 5, "vote", vote.CastVoteRequest{SubjectType: model.SubjectAnswer, SubjectID: a.ID, Value: 2}, http.StatusBadRequest},
		{"missing subject", 5, "vote", vote.CastVoteRequest{SubjectType: model.SubjectAnswer, SubjectID: 999, Value: 1}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, h, http.MethodPost, "/v1/votes", tt.userID, tt.caps, tt.body)
			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestMarkBest_HTTP(t *testing.T) {
	env := newTestServer(t)
	_, a := env.seedThread(t, 1, 2)
	h := env.srv.NewHTTPHandler("")

	rec := doRequest(t, h, http.MethodPost, fmt.Sprintf("/v1/answers/%d/best", a.ID), 3, "", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("non-author: expected 403, got %d", rec.Code)
	}
	rec = doRequest(t, h, http.MethodPost, fmt.Sprintf("/v1/answers/%d/best", a.ID), 1, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("author: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	rec = doRequest(t, h, http.MethodPost, "/v1/answers/999/best", 1, "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing answer: expected 404, got %d", rec.Code)
	}
}

func TestQuestionLifecycle_HTTP(t *testing.T) {
	env := newTestServer(t)
	h := env.srv.NewHTTPHandler("")

	rec := doRequest(t, h, http.MethodPost, "/v1/questions", 0, "", map[string]string{"title": "Anonymous?"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("anonymous create: expected 403, got %d", rec.Code)
	}
	rec = doRequest(t, h, http.MethodPost, "/v1/questions", 1, "", map[string]string{"title": "  "})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty title: expected 400, got %d", rec.Code)
	}

	rec = doRequest(t, h, http.MethodPost, "/v1/questions", 1, "", map[string]string{"title": "Why does my goroutine leak?"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var q model.Question
	decodeBody(t, rec, &q)

	rec = doRequest(t, h, http.MethodPatch, fmt.Sprintf("/v1/questions/%d", q.ID), 2, "", map[string]string{"title": "Hijacked"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("non-author edit: expected 403, got %d", rec.Code)
	}
	rec = doRequest(t, h, http.MethodPatch, fmt.Sprintf("/v1/questions/%d", q.ID), 1, "", map[string]string{"title": "Why does my goroutine block?"})
	if rec.Code != http.StatusOK {
		t.Fatalf("author edit: expected 200, got %d", rec.Code)
	}

	rec = doRequest(t, h, http.MethodPost, fmt.Sprintf("/v1/questions/%d/answers", q.ID), 2, "", map[string]string{"body": "Nobody is receiving from the channel."})
	if rec.Code != http.StatusCreated {
		t.Fatalf("answer: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, h, http.MethodGet, fmt.Sprintf("/v1/poll?thread_id=%d&longpoll=false", q.ID), 0, "", nil)
	var resp pollResponse
	decodeBody(t, rec, &resp)
	if len(resp.Events) != 2 || resp.Events[0].Event != model.EventQuestionUpdate || resp.Events[1].Event != model.EventNewAnswer {
		t.Fatalf("unexpected events %+v", resp.Events)
	}
}

func TestModerate_HTTP(t *testing.T) {
	env := newTestServer(t)
	q, a := env.seedThread(t, 1, 2)
	h := env.srv.NewHTTPHandler("")
	body := ModerateRequest{SubjectType: model.SubjectAnswer, SubjectID: a.ID, Action: model.ActionUnpublish, Reason: "spam"}

	rec := doRequest(t, h, http.MethodPost, "/v1/moderation", 1, "", body)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("non-moderator: expected 403, got %d", rec.Code)
	}
	rec = doRequest(t, h, http.MethodPost, "/v1/moderation", 9, "moderate", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("moderator: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var env2 model.Envelope
	decodeBody(t, rec, &env2)
	if env2.Event != model.EventModeration || env2.ThreadID != q.ID {
		t.Fatalf("unexpected envelope %+v", env2)
	}
	got, err := env.store.GetAnswer(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("GetAnswer: %v", err)
	}
	if got.State != model.StateUnpublished {
		t.Fatalf("answer state = %s", got.State)
	}

	body.Action = "delete"
	rec = doRequest(t, h, http.MethodPost, "/v1/moderation", 9, "moderate", body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown action: expected 400, got %d", rec.Code)
	}
}

func TestEventStats_HTTP(t *testing.T) {
	env := newTestServer(t)
	q, _ := env.seedThread(t, 1, 2)
	if _, err := env.srv.SubmitAnswer(context.Background(), user(3), q.ID, "Close the channel when done."); err != nil {
		t.Fatalf("SubmitAnswer: %v", err)
	}
	h := env.srv.NewHTTPHandler("")

	rec := doRequest(t, h, http.MethodGet, "/v1/stats/events?days=1", 0, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var stats model.EventStats
	decodeBody(t, rec, &stats)
	if stats.Total != 1 || stats.ByType[string(model.EventNewAnswer)] != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	rec = doRequest(t, h, http.MethodGet, "/v1/stats/events?days=0", 0, "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("days=0: expected 400, got %d", rec.Code)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestServer(t)
	h := env.srv.NewHTTPHandler("secret")

	rec := doRequest(t, h, http.MethodGet, "/v1/health", 0, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("health: expected 200, got %d", rec.Code)
	}

	// Generate one fetch so the request counter has a sample.
	env.srv.delivery.Fetch(context.Background(), 42, 0, 10)
	rec = doRequest(t, h, http.MethodGet, "/metrics", 0, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics: expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "threadlive_delivery_requests_total") {
		t.Fatalf("metrics output missing delivery counters:\n%s", rec.Body.String())
	}

	rec = doRequest(t, h, http.MethodGet, "/v1/poll?thread_id=1", 0, "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("poll without token: expected 401, got %d", rec.Code)
	}
}

func TestHTTPStatusMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{model.ErrInvalidArgument, http.StatusBadRequest},
		{&model.ValidationError{}, http.StatusBadRequest},
		{model.ErrPermissionDenied, http.StatusForbidden},
		{model.ErrSelfVote, http.StatusForbidden},
		{fmt.Errorf("wrapped: %w", model.ErrNotFound), http.StatusNotFound},
		{model.ErrConflict, http.StatusConflict},
		{model.ErrRateLimited, http.StatusTooManyRequests},
		{model.ErrUnavailable, http.StatusServiceUnavailable},
		{fmt.Errorf("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := httpStatus(tt.err); got != tt.want {
			t.Errorf("httpStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
