package social

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
)

// HTTPClient talks to the platform's REST surface with a bearer key.
type HTTPClient struct {
	client  *http.Client
	baseURL string
	apiKey  string
	handle  string
}

// NewHTTPClient builds the platform client.
func NewHTTPClient(baseURL, apiKey, handle string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPClient{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		handle:  handle,
	}
}

// SelfHandle returns the agent's own handle, used to skip self posts.
func (c *HTTPClient) SelfHandle() string { return c.handle }

// PublishPost publishes a short post and returns its id.
func (c *HTTPClient) PublishPost(ctx context.Context, body string) (string, error) {
	if len(body) > MaxPostLength {
		body = body[:MaxPostLength]
	}
	var out struct {
		ID string `json:"id"`
	}
	err := c.do(ctx, http.MethodPost, "/api/v1/posts", map[string]string{"body": body}, &out)
	if err != nil {
		return "", err
	}
	return out.ID, nil
}

// PublishArticle publishes a long-form article and returns its id.
func (c *HTTPClient) PublishArticle(ctx context.Context, title, body string) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	err := c.do(ctx, http.MethodPost, "/api/v1/articles", map[string]string{"title": title, "body": body}, &out)
	if err != nil {
		return "", err
	}
	return out.ID, nil
}

// Reply replies to a post and returns the reply id.
func (c *HTTPClient) Reply(ctx context.Context, postID, body string) (string, error) {
	if len(body) > MaxPostLength {
		body = body[:MaxPostLength]
	}
	var out struct {
		ID string `json:"id"`
	}
	path := "/api/v1/posts/" + url.PathEscape(postID) + "/replies"
	if err := c.do(ctx, http.MethodPost, path, map[string]string{"body": body}, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// Like upvotes a post.
func (c *HTTPClient) Like(ctx context.Context, postID string) error {
	path := "/api/v1/posts/" + url.PathEscape(postID) + "/like"
	return c.do(ctx, http.MethodPost, path, nil, nil)
}

// Feed reads the global feed in the requested ordering.
func (c *HTTPClient) Feed(ctx context.Context, ordering string, limit int) ([]Post, error) {
	var out struct {
		Posts []Post `json:"posts"`
	}
	path := "/api/v1/feed?order=" + url.QueryEscape(ordering) + "&limit=" + strconv.Itoa(limit)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Posts, nil
}

// Mentions reads posts that tag the agent.
func (c *HTTPClient) Mentions(ctx context.Context) ([]Post, error) {
	var out struct {
		Posts []Post `json:"posts"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/mentions", nil, &out); err != nil {
		return nil, err
	}
	return out.Posts, nil
}

// Inbox reads the direct-message inbox.
func (c *HTTPClient) Inbox(ctx context.Context) ([]Message, error) {
	var out struct {
		Messages []Message `json:"messages"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/inbox", nil, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// Search finds posts matching a phrase.
func (c *HTTPClient) Search(ctx context.Context, phrase string, limit int) ([]Post, error) {
	var out struct {
		Posts []Post `json:"posts"`
	}
	path := "/api/v1/search?q=" + url.QueryEscape(phrase) + "&limit=" + strconv.Itoa(limit)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Posts, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("social %s %s: status %d: %s", method, path, resp.StatusCode, truncateBody(raw))
	}
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("social %s %s: decode: %w", method, path, err)
		}
	}
	return nil
}

func truncateBody(raw []byte) string {
	const n = 200
	if len(raw) <= n {
		return string(raw)
	}
	return string(raw[:n]) + "..."
}
