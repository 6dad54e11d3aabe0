package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ricirt/adpromo/internal/domain"
	"github.com/ricirt/adpromo/internal/repository"
)

// CategoryResolver maps category labels to backend ids, usually
// *backend.CategoryDirectory.
type CategoryResolver interface {
	Categories(ctx context.Context) map[string]int64
	Resolve(ctx context.Context, label string) int64
}

// MediaResolver uploads thumbnails and videos, usually *media.Resolver.
type MediaResolver interface {
	Resolve(ctx context.Context, payload string, explicit *domain.Upload) (*domain.Media, error)
	UploadVideo(ctx context.Context, v *domain.Upload) (*domain.Media, error)
}

// PipelineOptions selects the optional registration stages.
type PipelineOptions struct {
	// ResolveMedia enables thumbnail extraction from the payload.
	// Operator-supplied images are uploaded either way.
	ResolveMedia bool
}

// SubmitRequest is a registration plus optional operator uploads.
type SubmitRequest struct {
	domain.RegisterRequest
	Image *domain.Upload `json:"image,omitempty"`
	Video *domain.Upload `json:"video,omitempty"`
}

// SubmitResult reports a published and persisted entry.
type SubmitResult struct {
	Entry         *domain.Entry `json:"entry"`
	PostID        int64         `json:"post_id"`
	PostLink      string        `json:"post_link,omitempty"`
	MediaWarnings []string      `json:"media_warnings,omitempty"`
}

// EntryService owns the registration path: validate, resolve media,
// publish, persist. It is the only writer that appends to the queue.
type EntryService struct {
	repo       repository.EntryRepository
	categories CategoryResolver
	media      MediaResolver
	publisher  *Publisher
	opts       PipelineOptions
	hooks      MetricHooks
	logger     *zap.Logger

	// mu and the store's LockRegistration serialize submissions, in this
	// process and across processes, from duplicate check to append.
	mu  sync.Mutex
	now func() time.Time
}

func NewEntryService(
	repo repository.EntryRepository,
	categories CategoryResolver,
	media MediaResolver,
	publisher *Publisher,
	opts PipelineOptions,
	hooks MetricHooks,
	logger *zap.Logger,
) *EntryService {
	return &EntryService{
		repo:       repo,
		categories: categories,
		media:      media,
		publisher:  publisher,
		opts:       opts,
		hooks:      hooks,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Register validates req and checks the title against the queue. The
// returned entry is not persisted.
func (s *EntryService) Register(ctx context.Context, req domain.RegisterRequest) (*domain.Entry, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	_, err := s.repo.FindByTitle(ctx, req.Title)
	switch {
	case err == nil:
		return nil, domain.ErrDuplicateEntry
	case !errors.Is(err, domain.ErrNotFound):
		return nil, fmt.Errorf("duplicate lookup: %w", err)
	}

	return &domain.Entry{
		Title:         req.Title,
		Category:      req.Category,
		PromotionText: req.PromotionText,
		Payload:       req.Payload,
		Tags:          req.Tags,
		CreatedAt:     s.now(),
	}, nil
}

// Submit runs the full pipeline. Media failures degrade to warnings; a
// publish failure aborts before anything is persisted.
func (s *EntryService) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	release, err := s.repo.Lock(ctx, repository.LockRegistration)
	if err != nil {
		return nil, fmt.Errorf("registration lock: %w", err)
	}
	defer release()

	e, err := s.Register(ctx, req.RegisterRequest)
	if err != nil {
		return nil, err
	}
	log := s.logger.With(zap.String("title", e.Title))

	categoryID := s.categories.Resolve(ctx, e.Category)
	result := &SubmitResult{Entry: e}

	payload := e.Payload
	if !s.opts.ResolveMedia {
		payload = ""
	}
	thumb, err := s.media.Resolve(ctx, payload, req.Image)
	switch {
	case err != nil:
		log.Warn("thumbnail unavailable, publishing without it", zap.Error(err))
		result.MediaWarnings = append(result.MediaWarnings, err.Error())
		s.hooks.media(MediaFailed)
	case thumb == nil:
		s.hooks.media(MediaNone)
	default:
		s.hooks.media(MediaResolved)
	}

	var video *domain.Media
	if req.Video != nil {
		video, err = s.media.UploadVideo(ctx, req.Video)
		if err != nil {
			log.Warn("video upload failed, publishing without it", zap.Error(err))
			result.MediaWarnings = append(result.MediaWarnings, err.Error())
			s.hooks.media(MediaFailed)
			video = nil
		}
	}

	post, err := s.publisher.Publish(ctx, e, categoryID, thumb, video)
	if err != nil {
		s.hooks.publishFailed()
		log.Error("publish failed, entry not persisted", zap.Error(err))
		return nil, err
	}
	result.PostID = post.ID
	result.PostLink = post.Link

	switch {
	case video != nil:
		e.MediaURL = video.SourceURL
	case thumb != nil:
		e.MediaURL = thumb.SourceURL
	}

	if err := s.repo.Append(ctx, e); err != nil {
		log.Error("post published but queue append failed",
			zap.Int64("post_id", post.ID), zap.Error(err))
		return nil, fmt.Errorf("persist entry: %w", err)
	}

	s.hooks.registered()
	log.Info("entry published and queued", zap.Int64("post_id", post.ID))
	return result, nil
}

// List returns the queue in order, optionally filtered by promoted state.
func (s *EntryService) List(ctx context.Context, promoted *bool) ([]*domain.Entry, error) {
	entries, err := s.repo.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load queue: %w", err)
	}
	if promoted == nil {
		return entries, nil
	}
	out := make([]*domain.Entry, 0, len(entries))
	for _, e := range entries {
		if e.Promoted == *promoted {
			out = append(out, e)
		}
	}
	return out, nil
}

// Categories returns the backend category map, or the default mapping
// when the backend is unreachable.
func (s *EntryService) Categories(ctx context.Context) map[string]int64 {
	return s.categories.Categories(ctx)
}
