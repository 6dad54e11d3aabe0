package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/ricirt/adpromo/internal/backend"
	"github.com/ricirt/adpromo/internal/domain"
)

// PostCreator is the backend capability the publisher needs, usually *backend.Client.
type PostCreator interface {
	CreatePost(ctx context.Context, req backend.PostRequest) (*backend.Post, error)
}

// Publisher turns an entry and its resolved media into a published post.
type Publisher struct {
	backend    PostCreator
	uniqueSlug bool
}

func NewPublisher(b PostCreator, uniqueSlug bool) *Publisher {
	return &Publisher{backend: b, uniqueSlug: uniqueSlug}
}

// Publish creates the post. thumb and video may be nil. Every failure is
// a *domain.PublishError.
func (p *Publisher) Publish(
	ctx context.Context,
	e *domain.Entry,
	categoryID int64,
	thumb, video *domain.Media,
) (*backend.Post, error) {
	videoURL := ""
	if video != nil {
		videoURL = video.SourceURL
	}

	req := backend.PostRequest{
		Title:      e.Title,
		Content:    BuildContent(e.PromotionText, e.Payload, videoURL),
		Status:     "publish",
		Categories: []int64{categoryID},
	}
	if thumb != nil && thumb.ID != 0 {
		req.FeaturedMedia = thumb.ID
	}
	if p.uniqueSlug {
		req.Slug = UniqueSlug(e.Title)
	}

	post, err := p.backend.CreatePost(ctx, req)
	if err != nil {
		var perr *domain.PublishError
		if errors.As(err, &perr) {
			return nil, perr
		}
		return nil, &domain.PublishError{Err: err}
	}
	return post, nil
}

// BuildContent renders the post body: the promotion text as an escaped
// paragraph, a blank line, the raw payload, and a playback tag when a video
// was uploaded.
func BuildContent(promotionText, payload, videoURL string) string {
	var b strings.Builder

	p := &html.Node{Type: html.ElementNode, Data: "p", DataAtom: atom.P}
	p.AppendChild(&html.Node{Type: html.TextNode, Data: promotionText})
	_ = html.Render(&b, p)

	b.WriteString("\n\n")
	b.WriteString(payload)

	if videoURL != "" {
		v := &html.Node{
			Type:     html.ElementNode,
			Data:     "video",
			DataAtom: atom.Video,
			Attr: []html.Attribute{
				{Key: "controls"},
				{Key: "src", Val: videoURL},
			},
		}
		b.WriteString("\n\n")
		_ = html.Render(&b, v)
	}
	return b.String()
}

// UniqueSlug derives a URL slug from the title with a random suffix, so
// entries whose titles slugify identically still get distinct URLs.
// Non-Latin titles are transliterated to ASCII.
func UniqueSlug(title string) string {
	suffix := uuid.New().String()[:8]
	if base := slug.Make(title); base != "" {
		return base + "-" + suffix
	}
	return suffix
}
