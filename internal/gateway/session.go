package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// ErrNoQuestions is returned when the backend starts a session with an empty
// question list. The sequencer refuses to run such a session.
var ErrNoQuestions = errors.New("gateway: session has no questions")

// Session is one interview session as the backend sees it. The question list
// is fixed for the session's lifetime.
type Session struct {
	ID            string   `json:"session_id"`
	CandidateName string   `json:"candidate_name"`
	JobRole       string   `json:"job_role"`
	Questions     []string `json:"questions"`
}

// StartSessionRequest is the payload for starting a new interview.
type StartSessionRequest struct {
	CandidateName string `json:"candidate_name,omitempty"`
	JobRole       string `json:"job_role,omitempty"`
	NumQuestions  int    `json:"num_questions,omitempty"`
}

// Results is the aggregate scoring payload returned once an interview is
// complete. Fetched best-effort; callers must tolerate failure.
type Results struct {
	AverageScore float64 `json:"average_score"`
	Summary      string  `json:"summary"`
}

// StartSession creates a new interview session and returns its question list.
func (c *Client) StartSession(ctx context.Context, req StartSessionRequest) (*Session, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("gateway: marshal start request: %w", err)
	}

	var sess Session
	if err := c.doJSON(ctx, http.MethodPost, "/interview/start", "application/json", bytes.NewReader(body), &sess); err != nil {
		return nil, err
	}
	if len(sess.Questions) == 0 {
		return nil, ErrNoQuestions
	}
	return &sess, nil
}

// Session fetches an existing session by ID.
func (c *Client) Session(ctx context.Context, sessionID string) (*Session, error) {
	var sess Session
	if err := c.doJSON(ctx, http.MethodGet, "/interview/"+url.PathEscape(sessionID), "", nil, &sess); err != nil {
		return nil, err
	}
	if sess.ID == "" {
		sess.ID = sessionID
	}
	if len(sess.Questions) == 0 {
		return nil, ErrNoQuestions
	}
	return &sess, nil
}

// SubmitAnswer persists one answer by referencing a stored transcript. An
// empty transcriptID marks the question as skipped.
func (c *Client) SubmitAnswer(ctx context.Context, sessionID string, questionIndex int, transcriptID string) error {
	form := url.Values{}
	form.Set("session_id", sessionID)
	form.Set("question_index", strconv.Itoa(questionIndex))
	if transcriptID != "" {
		form.Set("transcript_id", transcriptID)
	}

	return c.doJSON(ctx, http.MethodPost, "/interview/submit",
		"application/x-www-form-urlencoded", strings.NewReader(form.Encode()), nil)
}

// Results fetches the aggregate scoring for a completed session.
func (c *Client) Results(ctx context.Context, sessionID string) (*Results, error) {
	var res Results
	if err := c.doJSON(ctx, http.MethodGet, "/interview/"+url.PathEscape(sessionID)+"/results", "", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Health pings the backend's health endpoint. Used by the readiness probe.
func (c *Client) Health(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodGet, "/health", "", nil, nil)
}

// doJSON performs a request and decodes a JSON response into out (when out is
// non-nil). Non-2xx responses become *APIError.
func (c *Client) doJSON(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.url(path), body)
	if err != nil {
		return fmt.Errorf("gateway: build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gateway: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("gateway: decode %s response: %w", path, err)
	}
	return nil
}
