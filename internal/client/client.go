// Package client talks to the pushups HTTP API. A Client without a token
// reads through the public endpoints and refuses writes.
package client

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
	"sync"
	"time"

	"github.com/pavelanni/pushups/internal/model"
	"github.com/pavelanni/pushups/internal/practice"
)

// ErrNotSignedIn is returned by writes made without a token.
var ErrNotSignedIn = errors.New("client: not signed in")

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned status %d", e.Status)
	}
	return fmt.Sprintf("server returned status %d: %s", e.Status, e.Message)
}

// Client is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	lang    string

	mu    sync.RWMutex
	token string
	user  *model.User
}

var _ practice.Backend = (*Client)(nil)

// New creates a client for the server at baseURL. lang, when set, is sent as
// Accept-Language so server errors come back localized.
func New(baseURL, lang string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		lang:    lang,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

type loginResponse struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      *model.User `json:"user"`
}

// Login exchanges credentials for a token and keeps it for later calls.
func (c *Client) Login(ctx context.Context, username, password string) (*model.User, error) {
	body := map[string]string{"username": username, "password": password}
	var out loginResponse
	if err := c.do(ctx, http.MethodPost, "/api/login", body, &out); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	c.mu.Lock()
	c.token, c.user = out.Token, out.User
	c.mu.Unlock()
	return out.User, nil
}

// Logout revokes the token. The client is a guest afterwards even when the
// server call fails.
func (c *Client) Logout(ctx context.Context) error {
	if !c.Authenticated() {
		return nil
	}
	err := c.do(ctx, http.MethodPost, "/api/logout", nil, nil)
	c.mu.Lock()
	c.token, c.user = "", nil
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// Authenticated reports whether the client holds a token.
func (c *Client) Authenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token != ""
}

// User is the signed-in user, or nil.
func (c *Client) User() *model.User {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.user
}

// Health checks that the server is up.
func (c *Client) Health(ctx context.Context) error {
	var out map[string]string
	if err := c.do(ctx, http.MethodGet, "/health", nil, &out); err != nil {
		return err
	}
	if out["status"] != "ok" {
		return fmt.Errorf("unexpected health status %q", out["status"])
	}
	return nil
}

// ListSets returns all question sets with the caller's progress.
func (c *Client) ListSets(ctx context.Context) ([]model.QuestionSet, error) {
	var out struct {
		Sets []model.QuestionSet `json:"question_sets"`
	}
	if err := c.do(ctx, http.MethodGet, c.readPath("/question-sets"), nil, &out); err != nil {
		return nil, fmt.Errorf("list sets: %w", err)
	}
	return out.Sets, nil
}

func (c *Client) LoadQuestions(ctx context.Context, setID model.SetID) (model.QuestionList, error) {
	var out model.QuestionList
	path := c.readPath(fmt.Sprintf("/question-sets/%d/questions", setID))
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return model.QuestionList{}, err
	}
	return out, nil
}

func (c *Client) LoadMixedQuestions(ctx context.Context, filter model.Filter) (model.MixedList, error) {
	return c.MixedQuestions(ctx, filter, 0)
}

// MixedQuestions loads a random-mode pool. limit 0 leaves the size to the
// server.
func (c *Client) MixedQuestions(ctx context.Context, filter model.Filter, limit int) (model.MixedList, error) {
	q := url.Values{"filter": {string(filter)}}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out model.MixedList
	if err := c.do(ctx, http.MethodGet, c.readPath("/questions/mixed")+"?"+q.Encode(), nil, &out); err != nil {
		return model.MixedList{}, err
	}
	return out, nil
}

func (c *Client) ReportOpened(ctx context.Context, setID model.SetID) error {
	return c.write(ctx, fmt.Sprintf("/api/question-sets/%d/mark-opened", setID), nil, nil)
}

func (c *Client) ReportProgress(ctx context.Context, id model.QuestionID, attempted bool, correct *bool) error {
	body := struct {
		Attempted bool  `json:"attempted"`
		Correct   *bool `json:"correct"`
	}{attempted, correct}
	return c.write(ctx, fmt.Sprintf("/api/questions/%d/progress", id), body, nil)
}

func (c *Client) MarkMissed(ctx context.Context, id model.QuestionID) error {
	return c.write(ctx, fmt.Sprintf("/api/questions/%d/mark-missed", id), nil, nil)
}

func (c *Client) UnmarkMissed(ctx context.Context, id model.QuestionID) error {
	return c.write(ctx, fmt.Sprintf("/api/questions/%d/unmark-missed", id), nil, nil)
}

func (c *Client) ToggleBookmark(ctx context.Context, id model.QuestionID) error {
	_, err := c.Bookmark(ctx, id)
	return err
}

// Bookmark toggles a bookmark and returns the new state.
func (c *Client) Bookmark(ctx context.Context, id model.QuestionID) (bool, error) {
	var out struct {
		Bookmarked bool `json:"bookmarked"`
	}
	if err := c.write(ctx, fmt.Sprintf("/api/questions/%d/bookmark", id), nil, &out); err != nil {
		return false, err
	}
	return out.Bookmarked, nil
}

// Stats returns the lifetime statistics of the signed-in user.
func (c *Client) Stats(ctx context.Context) (model.UserStats, error) {
	if !c.Authenticated() {
		return model.UserStats{}, ErrNotSignedIn
	}
	var out model.UserStats
	if err := c.do(ctx, http.MethodGet, "/api/stats", nil, &out); err != nil {
		return model.UserStats{}, fmt.Errorf("stats: %w", err)
	}
	return out, nil
}

// MissedQuestions returns the signed-in user's missed questions.
func (c *Client) MissedQuestions(ctx context.Context) ([]model.Question, error) {
	if !c.Authenticated() {
		return nil, ErrNotSignedIn
	}
	var out struct {
		Questions []model.Question `json:"missed_questions"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/missed-questions", nil, &out); err != nil {
		return nil, fmt.Errorf("missed questions: %w", err)
	}
	return out.Questions, nil
}

// readPath picks the authenticated or the public variant of a read endpoint.
func (c *Client) readPath(p string) string {
	if c.Authenticated() {
		return "/api" + p
	}
	return "/api/public" + p
}

func (c *Client) write(ctx context.Context, path string, body, out any) error {
	if !c.Authenticated() {
		return ErrNotSignedIn
	}
	return c.do(ctx, http.MethodPost, path, body, out)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.lang != "" {
		req.Header.Set("Accept-Language", c.lang)
	}
	c.mu.RLock()
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	c.mu.RUnlock()

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		var e struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&e) == nil {
			apiErr.Message = e.Error
		}
		return apiErr
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
