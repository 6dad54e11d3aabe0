package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ricirt/adpromo/internal/domain"
	"github.com/ricirt/adpromo/internal/ratelimiter"
)

// Limiter throttles outbound calls per target.
type Limiter interface {
	Wait(ctx context.Context, target string) error
}

// WebhookPoster posts messages as JSON to a webhook-style endpoint. The URL
// is injected from config so tests can point it at a local server.
type WebhookPoster struct {
	url        string
	token      string
	httpClient *http.Client
	limiter    Limiter
}

func NewWebhookPoster(url, token string, timeout time.Duration, limiter Limiter) *WebhookPoster {
	return &WebhookPoster{
		url:   url,
		token: token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter: limiter,
	}
}

// Post sends the message once. Any 2xx is success; everything else is a
// *domain.SocialPostError.
func (p *WebhookPoster) Post(ctx context.Context, msg Message) (*PostResult, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx, ratelimiter.TargetSocial); err != nil {
			return nil, &domain.SocialPostError{Err: fmt.Errorf("rate limit: %w", err)}
		}
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return nil, &domain.SocialPostError{Err: fmt.Errorf("marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return nil, &domain.SocialPostError{Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, &domain.SocialPostError{Err: fmt.Errorf("send request: %w", err)}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &domain.SocialPostError{Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	var result PostResult
	if len(bytes.TrimSpace(raw)) > 0 {
		// Services that answer with something other than a JSON object
		// still count as a successful post.
		_ = json.Unmarshal(raw, &result)
	}
	return &result, nil
}

// compile-time check that WebhookPoster implements Poster
var _ Poster = (*WebhookPoster)(nil)
