package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ricirt/adpromo/internal/domain"
	"github.com/ricirt/adpromo/internal/provider"
	"github.com/ricirt/adpromo/internal/repository"
)

// PromotionMode selects how a successful promotion is committed.
type PromotionMode string

const (
	// ModeFlag sets promoted=true and keeps the entry in the queue.
	ModeFlag PromotionMode = "flag"
	// ModeRemoveHead drops the promoted entry from the front of the queue.
	ModeRemoveHead PromotionMode = "remove-head"
)

// PromotionService runs promotion cycles: select one unpromoted entry,
// post it once, commit. It is the only writer of the promoted state.
type PromotionService struct {
	repo   repository.EntryRepository
	poster provider.Poster
	mode   PromotionMode
	hooks  MetricHooks
	logger *zap.Logger

	// mu serializes cycles in this process and guards uncommitted; the
	// store's LockPromotion extends that to other processes.
	mu sync.Mutex

	// uncommitted holds titles that were posted but whose commit failed.
	// They are never selected again and their commit is retried first
	// on every later cycle.
	uncommitted map[string]struct{}
}

func NewPromotionService(
	repo repository.EntryRepository,
	poster provider.Poster,
	mode PromotionMode,
	hooks MetricHooks,
	logger *zap.Logger,
) *PromotionService {
	if mode == "" {
		mode = ModeFlag
	}
	return &PromotionService{
		repo:        repo,
		poster:      poster,
		mode:        mode,
		hooks:       hooks,
		logger:      logger,
		uncommitted: make(map[string]struct{}),
	}
}

// PromoteNext promotes the first unpromoted entry in queue order.
// ErrNothingToPromote when every entry has been promoted; the social
// service is not called in that case.
func (s *PromotionService) PromoteNext(ctx context.Context) (*domain.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	release, err := s.repo.Lock(ctx, repository.LockPromotion)
	if err != nil {
		return nil, fmt.Errorf("promotion lock: %w", err)
	}
	defer release()

	s.retryCommits(ctx)

	entries, err := s.repo.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load queue: %w", err)
	}
	entries = s.dropPromotedHead(ctx, entries)

	candidates := s.candidates(entries)
	if len(candidates) == 0 {
		s.hooks.promotion(PromotionEmpty, 0)
		s.hooks.pending(0)
		return nil, domain.ErrNothingToPromote
	}

	return s.promote(ctx, candidates[0], entries, len(candidates))
}

// PromoteByTitle promotes the named entry directly. In remove-head mode only
// the first unpromoted entry may be chosen.
func (s *PromotionService) PromoteByTitle(ctx context.Context, title string) (*domain.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	release, err := s.repo.Lock(ctx, repository.LockPromotion)
	if err != nil {
		return nil, fmt.Errorf("promotion lock: %w", err)
	}
	defer release()

	s.retryCommits(ctx)

	if _, posted := s.uncommitted[title]; posted {
		return nil, domain.ErrAlreadyPromoted
	}

	entries, err := s.repo.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load queue: %w", err)
	}

	var target *domain.Entry
	for _, e := range entries {
		if e.Title == title {
			target = e
			break
		}
	}
	if target == nil {
		return nil, domain.ErrNotFound
	}
	if target.Promoted {
		return nil, domain.ErrAlreadyPromoted
	}
	entries = s.dropPromotedHead(ctx, entries)

	candidates := s.candidates(entries)
	if s.mode == ModeRemoveHead && candidates[0].Title != title {
		return nil, domain.ErrNotHead
	}

	return s.promote(ctx, target, entries, len(candidates))
}

// dropPromotedHead removes promoted rows from the front of the queue in
// remove-head mode. Such rows are left behind by flag mode; while one sits at
// the head no later promotion could remove its own row.
func (s *PromotionService) dropPromotedHead(ctx context.Context, entries []*domain.Entry) []*domain.Entry {
	if s.mode != ModeRemoveHead {
		return entries
	}
	for len(entries) > 0 && entries[0].Promoted {
		title := entries[0].Title
		if err := s.repo.RemoveHead(ctx, title); err != nil {
			s.logger.Warn("promoted entry blocks the queue head, commits will flag instead of remove",
				zap.String("title", title), zap.Error(err))
			break
		}
		s.logger.Info("dropped already promoted entry from queue head", zap.String("title", title))
		entries = entries[1:]
	}
	return entries
}

// candidates returns unpromoted entries in order, excluding titles whose
// commit is still outstanding.
func (s *PromotionService) candidates(entries []*domain.Entry) []*domain.Entry {
	out := make([]*domain.Entry, 0, len(entries))
	for _, e := range domain.Unpromoted(entries) {
		if _, posted := s.uncommitted[e.Title]; posted {
			continue
		}
		out = append(out, e)
	}
	return out
}

func (s *PromotionService) promote(
	ctx context.Context,
	e *domain.Entry,
	entries []*domain.Entry,
	pending int,
) (*domain.Entry, error) {
	log := s.logger.With(zap.String("title", e.Title), zap.String("mode", string(s.mode)))
	start := time.Now()

	res, err := s.poster.Post(ctx, provider.ComposeMessage(e))
	if err != nil {
		s.hooks.promotion(PromotionFailed, time.Since(start))
		s.hooks.pending(pending)
		log.Error("social post failed, entry stays unpromoted", zap.Error(err))

		var serr *domain.SocialPostError
		if !errors.As(err, &serr) {
			err = &domain.SocialPostError{Err: err}
		}
		return nil, err
	}
	latency := time.Since(start)

	isHead := len(entries) > 0 && entries[0].Title == e.Title
	if err := s.commit(ctx, e.Title, isHead); err != nil {
		s.uncommitted[e.Title] = struct{}{}
		s.hooks.promotion(PromotionUncommitted, latency)
		s.hooks.pending(pending - 1)
		log.Error("posted but commit failed, commit will be retried next cycle", zap.Error(err))
		return nil, fmt.Errorf("commit promotion: %w", err)
	}

	s.hooks.promotion(PromotionPromoted, latency)
	s.hooks.pending(pending - 1)
	log.Info("entry promoted", zap.String("post_id", res.ID), zap.Duration("latency", latency))

	promoted := *e
	promoted.Promoted = true
	return &promoted, nil
}

// commit records a successful post. In remove-head mode the head row is
// dropped; an entry that is no longer the head is flagged instead.
func (s *PromotionService) commit(ctx context.Context, title string, isHead bool) error {
	if s.mode == ModeRemoveHead && isHead {
		err := s.repo.RemoveHead(ctx, title)
		if !errors.Is(err, domain.ErrStaleHead) {
			return err
		}
	}
	return s.repo.UpdatePromoted(ctx, title, true)
}

func (s *PromotionService) retryCommits(ctx context.Context) {
	for title := range s.uncommitted {
		err := s.commit(ctx, title, true)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn("outstanding promotion commit failed again",
				zap.String("title", title), zap.Error(err))
			continue
		}
		delete(s.uncommitted, title)
		s.logger.Info("outstanding promotion committed", zap.String("title", title))
	}
}
