package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/ricirt/adpromo/internal/domain"
	"github.com/ricirt/adpromo/internal/ratelimiter"
)

// maxErrorBody caps how much of a failed response is kept for error reporting.
const maxErrorBody = 4 << 10

// Limiter throttles outbound calls per target.
type Limiter interface {
	Wait(ctx context.Context, target string) error
}

// PostRequest is the JSON body for post creation.
type PostRequest struct {
	Title         string  `json:"title"`
	Content       string  `json:"content"`
	Status        string  `json:"status"`
	Categories    []int64 `json:"categories"`
	FeaturedMedia int64   `json:"featured_media,omitempty"`
	Slug          string  `json:"slug,omitempty"`
}

// Post is the subset of the created post the pipeline uses.
type Post struct {
	ID   int64  `json:"id"`
	Link string `json:"link"`
}

type category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Client talks to a WordPress-style REST API authenticated with an
// application password over HTTP basic auth.
type Client struct {
	baseURL    string
	user       string
	password   string
	httpClient *http.Client
	limiter    Limiter
}

func NewClient(baseURL, user, password string, timeout time.Duration, limiter Limiter) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		user:     user,
		password: password,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter: limiter,
	}
}

// ListCategories returns the backend's category name -> id map.
func (c *Client) ListCategories(ctx context.Context) (map[string]int64, error) {
	resp, err := c.do(ctx, http.MethodGet, "/categories?per_page=100", nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list categories: unexpected status %d", resp.StatusCode)
	}

	var cats []category
	if err := json.NewDecoder(resp.Body).Decode(&cats); err != nil {
		return nil, fmt.Errorf("decode categories: %w", err)
	}

	out := make(map[string]int64, len(cats))
	for _, cat := range cats {
		out[cat.Name] = cat.ID
	}
	return out, nil
}

// UploadMedia stores a file on the backend. Any failure is a *domain.MediaError.
func (c *Client) UploadMedia(ctx context.Context, up *domain.Upload) (*domain.Media, error) {
	filename := up.Filename
	if filename == "" {
		filename = "upload"
	}
	headers := map[string]string{
		"Content-Disposition": mime.FormatMediaType("attachment", map[string]string{"filename": filename}),
		"Content-Type":        up.ContentType,
	}

	resp, err := c.do(ctx, http.MethodPost, "/media", bytes.NewReader(up.Data), headers)
	if err != nil {
		return nil, &domain.MediaError{Op: "upload", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, &domain.MediaError{Op: "upload", Status: resp.StatusCode, Body: readBody(resp.Body)}
	}

	var media domain.Media
	if err := json.NewDecoder(resp.Body).Decode(&media); err != nil {
		return nil, &domain.MediaError{Op: "upload", Err: fmt.Errorf("decode response: %w", err)}
	}
	return &media, nil
}

// CreatePost publishes a post. Any failure is a *domain.PublishError.
func (c *Client) CreatePost(ctx context.Context, req PostRequest) (*Post, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, &domain.PublishError{Err: fmt.Errorf("marshal request: %w", err)}
	}

	resp, err := c.do(ctx, http.MethodPost, "/posts", bytes.NewReader(body),
		map[string]string{"Content-Type": "application/json"})
	if err != nil {
		return nil, &domain.PublishError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, &domain.PublishError{Status: resp.StatusCode, Body: readBody(resp.Body)}
	}

	var post Post
	if err := json.NewDecoder(resp.Body).Decode(&post); err != nil {
		return nil, &domain.PublishError{Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return &post, nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, headers map[string]string) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, ratelimiter.TargetBackend); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(c.user, c.password)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	return resp, nil
}

func readBody(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	return strings.TrimSpace(string(b))
}
