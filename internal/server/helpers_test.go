package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/alfredjeanlab/threadlive/internal/delivery"
	"github.com/alfredjeanlab/threadlive/internal/eventlog"
	"github.com/alfredjeanlab/threadlive/internal/events"
	"github.com/alfredjeanlab/threadlive/internal/model"
	"github.com/alfredjeanlab/threadlive/internal/store/memory"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// testCfg keeps long-lived requests short.
var testCfg = delivery.Config{
	PollInterval:      20 * time.Millisecond,
	StreamInterval:    10 * time.Millisecond,
	HeartbeatInterval: 50 * time.Millisecond,
	MaxStreamDuration: 300 * time.Millisecond,
	DefaultWait:       300 * time.Millisecond,
	MaxWait:           time.Second,
}

type testEnv struct {
	srv   *Server
	store *memory.Store
	reg   *prometheus.Registry
}

func newTestServer(t *testing.T) *testEnv {
	t.Helper()
	return newTestServerWith(t, testCfg, Options{})
}

func newTestServerWith(t *testing.T, cfg delivery.Config, opts Options) *testEnv {
	t.Helper()
	st := memory.New()
	hub := events.NewHub()
	log := eventlog.New(st, hub, discard)
	reg := prometheus.NewRegistry()
	d := delivery.New(log, hub, cfg, delivery.MustNewMetrics(reg), discard)
	opts.Logger = discard
	opts.Gatherer = reg
	return &testEnv{srv: New(st, log, d, opts), store: st, reg: reg}
}

// seedThread creates a question by author and an answer by answerer.
func (e *testEnv) seedThread(t *testing.T, author, answerer int64) (*model.Question, *model.Answer) {
	t.Helper()
	ctx := context.Background()
	q := &model.Question{Title: "How do I drain a channel?", AuthorID: author, State: model.StatePublished}
	if err := e.store.CreateQuestion(ctx, q); err != nil {
		t.Fatalf("CreateQuestion: %v", err)
	}
	a := &model.Answer{QuestionID: q.ID, AuthorID: answerer, Body: "Range over it until closed.", State: model.StatePublished}
	if err := e.store.CreateAnswer(ctx, a); err != nil {
		t.Fatalf("CreateAnswer: %v", err)
	}
	return q, a
}

func user(id int64, caps ...string) model.Principal {
	p := model.Principal{UserID: id, Authenticated: true}
	for _, c := range caps {
		p = p.WithCapabilities(c)
	}
	return p
}

// doRequest performs a request against the handler as the given user (0 = anonymous).
func doRequest(t *testing.T, h http.Handler, method, path string, userID int64, caps string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != 0 {
		req.Header.Set(HeaderUserID, strconv.FormatInt(userID, 10))
	}
	if caps != "" {
		req.Header.Set(HeaderCapabilities, caps)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
}
