package provider

import (
	"context"
	"strings"

	"github.com/ricirt/adpromo/internal/domain"
)

// Message is the text posted to the social service.
type Message struct {
	Text string `json:"text"`
}

// PostResult maps the social service's success response. ID may be empty
// when the service does not return one.
type PostResult struct {
	ID string `json:"id"`
}

// Poster abstracts the social-posting service. Mocking this interface in
// tests gives full control over success and failure without real HTTP calls.
type Poster interface {
	Post(ctx context.Context, msg Message) (*PostResult, error)
}

// ComposeMessage builds the promotion text for an entry: title, promotion
// text, hashtags and media URL separated by blank lines. Empty parts are
// left out.
func ComposeMessage(e *domain.Entry) Message {
	parts := []string{
		strings.TrimSpace(e.Title),
		strings.TrimSpace(e.PromotionText),
		Hashtags(e.Tags),
		strings.TrimSpace(e.MediaURL),
	}

	kept := parts[:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return Message{Text: strings.Join(kept, "\n\n")}
}

// Hashtags renders tags as space-separated #tokens. Inner whitespace is
// removed since hashtags cannot contain it.
func Hashtags(tags []string) string {
	tokens := make([]string, 0, len(tags))
	for _, t := range domain.NormalizeTags(tags) {
		t = strings.Join(strings.Fields(t), "")
		tokens = append(tokens, "#"+t)
	}
	return strings.Join(tokens, " ")
}
