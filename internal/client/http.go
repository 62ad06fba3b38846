package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alfredjeanlab/threadlive/internal/bestanswer"
	"github.com/alfredjeanlab/threadlive/internal/model"
	"github.com/alfredjeanlab/threadlive/internal/vote"
)

// HTTPClient talks to the threadlive HTTP/JSON API.
type HTTPClient struct {
	baseURL    string
	token      string
	identity   Identity
	httpClient *http.Client
	streamIdle time.Duration
}

var _ EventSource = (*HTTPClient)(nil)

// NewHTTPClient creates a new HTTP client targeting the given base URL
// (e.g. "http://localhost:8080"). When token is non-empty, an Authorization
// header is set on every request.
func NewHTTPClient(baseURL, token string, id Identity) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		identity:   id,
		httpClient: &http.Client{},
		streamIdle: DefaultStreamIdleTimeout,
	}
}

// SetStreamIdleTimeout changes how long Stream waits for data before it
// gives up on a silent connection. Zero or less restores the default.
func (c *HTTPClient) SetStreamIdleTimeout(d time.Duration) {
	if d <= 0 {
		d = DefaultStreamIdleTimeout
	}
	c.streamIdle = d
}

// Close is a no-op for the HTTP client.
func (c *HTTPClient) Close() error { return nil }

// --- Events ---

type pollResponse struct {
	Success   bool             `json:"success"`
	Events    []model.Envelope `json:"events"`
	Timestamp int64            `json:"timestamp"`
}

func (c *HTTPClient) poll(ctx context.Context, q url.Values) (*Batch, error) {
	var resp pollResponse
	if err := c.doJSON(ctx, http.MethodGet, "/v1/poll?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	if resp.Events == nil {
		resp.Events = []model.Envelope{}
	}
	return &Batch{Events: resp.Events, Timestamp: resp.Timestamp}, nil
}

func pollQuery(threadID int64, cursor model.Cursor) url.Values {
	q := url.Values{}
	q.Set("thread_id", strconv.FormatInt(threadID, 10))
	q.Set("last_event_timestamp", cursor.String())
	return q
}

func (c *HTTPClient) Fetch(ctx context.Context, threadID int64, cursor model.Cursor, limit int) (*Batch, error) {
	q := pollQuery(threadID, cursor)
	q.Set("longpoll", "false")
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return c.poll(ctx, q)
}

func (c *HTTPClient) Wait(ctx context.Context, threadID int64, cursor model.Cursor, timeout time.Duration) (*Batch, error) {
	q := pollQuery(threadID, cursor)
	q.Set("longpoll", "true")
	if secs := int(timeout / time.Second); secs > 0 {
		q.Set("timeout", strconv.Itoa(secs))
	}
	return c.poll(ctx, q)
}

// Stream reads the thread's SSE stream. A connection that sends nothing,
// not even a heartbeat, for the idle timeout fails with a TransportError
// wrapping ErrStreamIdle.
func (c *HTTPClient) Stream(ctx context.Context, threadID int64, cursor model.Cursor, cb StreamCallbacks) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	watch := newIdleWatch(c.streamIdle, cancel)
	defer watch.stop()

	req, err := c.newRequest(ctx, http.MethodGet, "/v1/stream?"+pollQuery(threadID, cursor).Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if watch.expired() {
			return &TransportError{Op: "open stream", Err: ErrStreamIdle}
		}
		return &TransportError{Op: "open stream", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return apiError(resp.StatusCode, body)
	}
	watch.kick()
	cb.open()
	err = readSSE(idleReader{r: resp.Body, w: watch}, cb)
	if err != nil && watch.expired() {
		return &TransportError{Op: "read stream", Err: ErrStreamIdle}
	}
	return err
}

// ThreadCursor returns the newest event timestamp of a thread.
func (c *HTTPClient) ThreadCursor(ctx context.Context, threadID int64) (model.Cursor, error) {
	var resp struct {
		Timestamp int64 `json:"timestamp"`
	}
	path := "/v1/threads/" + strconv.FormatInt(threadID, 10) + "/cursor"
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return 0, err
	}
	return model.Cursor(resp.Timestamp), nil
}

// ViewersResponse lists the current viewers of a thread.
type ViewersResponse struct {
	ThreadID int64    `json:"thread_id"`
	Count    int      `json:"count"`
	Viewers  []Viewer `json:"viewers"`
}

// Viewer is one entry of ViewersResponse.
type Viewer struct {
	Viewer      string    `json:"viewer"`
	UserID      int64     `json:"user_id,omitempty"`
	Transport   string    `json:"transport"`
	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`
	IdleSecs    float64   `json:"idle_secs"`
	Requests    int64     `json:"requests"`
	OpenStreams int       `json:"open_streams,omitempty"`
}

// Viewers lists who is watching a thread.
func (c *HTTPClient) Viewers(ctx context.Context, threadID int64) (*ViewersResponse, error) {
	var resp ViewersResponse
	path := "/v1/threads/" + strconv.FormatInt(threadID, 10) + "/viewers"
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// EventStats summarizes the last days of activity.
func (c *HTTPClient) EventStats(ctx context.Context, days int) (*model.EventStats, error) {
	var stats model.EventStats
	path := "/v1/stats/events"
	if days > 0 {
		path += "?days=" + strconv.Itoa(days)
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// --- Threads ---

func (c *HTTPClient) CreateQuestion(ctx context.Context, title string) (*model.Question, error) {
	var q model.Question
	if err := c.doJSON(ctx, http.MethodPost, "/v1/questions", map[string]string{"title": title}, &q); err != nil {
		return nil, err
	}
	return &q, nil
}

func (c *HTTPClient) UpdateQuestion(ctx context.Context, id int64, title string) (*model.Question, error) {
	var q model.Question
	path := "/v1/questions/" + strconv.FormatInt(id, 10)
	if err := c.doJSON(ctx, http.MethodPatch, path, map[string]string{"title": title}, &q); err != nil {
		return nil, err
	}
	return &q, nil
}

func (c *HTTPClient) SubmitAnswer(ctx context.Context, questionID int64, body string) (*model.Answer, error) {
	var a model.Answer
	path := "/v1/questions/" + strconv.FormatInt(questionID, 10) + "/answers"
	if err := c.doJSON(ctx, http.MethodPost, path, map[string]string{"body": body}, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// --- Votes and selection ---

func (c *HTTPClient) CastVote(ctx context.Context, req vote.CastVoteRequest) (*vote.CastVoteResult, error) {
	var res vote.CastVoteResult
	if err := c.doJSON(ctx, http.MethodPost, "/v1/votes", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// VoteSummary is the body of GET /v1/votes.
type VoteSummary struct {
	SubjectType model.SubjectType `json:"subject_type"`
	SubjectID   int64             `json:"subject_id"`
	VotesUp     int               `json:"votes_up"`
	VotesDown   int               `json:"votes_down"`
	Score       int               `json:"score"`
	UserVote    *int              `json:"user_vote,omitempty"`
}

func (c *HTTPClient) Votes(ctx context.Context, typ model.SubjectType, id int64) (*VoteSummary, error) {
	q := url.Values{}
	q.Set("subject_type", string(typ))
	q.Set("subject_id", strconv.FormatInt(id, 10))
	var resp VoteSummary
	if err := c.doJSON(ctx, http.MethodGet, "/v1/votes?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) MarkBest(ctx context.Context, answerID int64) (*bestanswer.MarkBestResult, error) {
	var resp bestanswer.MarkBestResult
	path := "/v1/answers/" + strconv.FormatInt(answerID, 10) + "/best"
	if err := c.doJSON(ctx, http.MethodPost, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ModerateRequest is the body of POST /v1/moderation.
type ModerateRequest struct {
	SubjectType model.SubjectType      `json:"subject_type"`
	SubjectID   int64                  `json:"subject_id"`
	Action      model.ModerationAction `json:"action"`
	Reason      string                 `json:"reason,omitempty"`
}

func (c *HTTPClient) Moderate(ctx context.Context, req ModerateRequest) (*model.Envelope, error) {
	var env model.Envelope
	if err := c.doJSON(ctx, http.MethodPost, "/v1/moderation", req, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

// --- Health ---

func (c *HTTPClient) Health(ctx context.Context) (string, error) {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/health", nil, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

// --- plumbing ---

func (c *HTTPClient) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.identity.UserID > 0 {
		req.Header.Set("X-User-ID", strconv.FormatInt(c.identity.UserID, 10))
	}
	if c.identity.Capabilities != "" {
		req.Header.Set("X-User-Capabilities", c.identity.Capabilities)
	}
	if c.identity.ViewerID != "" {
		req.Header.Set("X-Viewer-ID", c.identity.ViewerID)
	}
	return req, nil
}

func apiError(status int, body []byte) error {
	var errResp struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
		return &APIError{StatusCode: status, Message: errResp.Error}
	}
	return &APIError{StatusCode: status, Message: strings.TrimSpace(string(body))}
}

// doJSON performs an HTTP request with optional JSON body and decodes the JSON response.
// A nil result discards the response body.
func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body any, result any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Op: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	// 204 No Content: success with no body.
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Op: "read response", Err: err}
	}

	if resp.StatusCode >= 400 {
		return apiError(resp.StatusCode, respBody)
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}

	return nil
}
