package service_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/ricirt/adpromo/internal/domain"
	"github.com/ricirt/adpromo/internal/repository"
	"github.com/ricirt/adpromo/internal/service"
)

type entryFixture struct {
	svc   *service.EntryService
	repo  *repository.MockEntryRepository
	media *fakeMedia
	cms   *fakeBackend
}

func newEntryService(opts service.PipelineOptions, seed ...*domain.Entry) entryFixture {
	f := entryFixture{
		repo:  repository.NewMockEntryRepository(seed...),
		media: &fakeMedia{},
		cms:   &fakeBackend{},
	}
	cats := &fakeCategories{cats: map[string]int64{"Deals": 7}}
	pub := service.NewPublisher(f.cms, false)
	f.svc = service.NewEntryService(f.repo, cats, f.media, pub, opts, service.MetricHooks{}, zap.NewNop())
	return f
}

var validSubmit = service.SubmitRequest{
	RegisterRequest: domain.RegisterRequest{
		Title:         "Summer sale",
		Category:      "Deals",
		PromotionText: "Half price",
		Payload:       `<a href="https://ad.example/?img=https://cdn.example/a.jpg">x</a>`,
		Tags:          []string{"#sale"},
	},
}

func TestEntryService_Register(t *testing.T) {
	f := newEntryService(service.PipelineOptions{ResolveMedia: true})
	ctx := context.Background()

	e, err := f.svc.Register(ctx, validSubmit.RegisterRequest)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.Promoted || e.MediaURL != "" {
		t.Fatalf("new entry should be unpromoted with no media, got %+v", e)
	}
	if len(e.Tags) != 1 || e.Tags[0] != "sale" {
		t.Fatalf("expected normalized tags, got %v", e.Tags)
	}
	if f.repo.AppendCalls != 0 {
		t.Fatal("Register must not persist")
	}
}

func TestEntryService_Register_Duplicate(t *testing.T) {
	f := newEntryService(service.PipelineOptions{}, &domain.Entry{Title: "Summer sale"})

	_, err := f.svc.Register(context.Background(), validSubmit.RegisterRequest)
	if !errors.Is(err, domain.ErrDuplicateEntry) {
		t.Fatalf("expected ErrDuplicateEntry, got %v", err)
	}
}

func TestEntryService_Register_CaseSensitiveTitles(t *testing.T) {
	f := newEntryService(service.PipelineOptions{}, &domain.Entry{Title: "summer sale"})

	if _, err := f.svc.Register(context.Background(), validSubmit.RegisterRequest); err != nil {
		t.Fatalf("titles differing in case are distinct, got %v", err)
	}
}

func TestEntryService_Submit_HappyPath(t *testing.T) {
	f := newEntryService(service.PipelineOptions{ResolveMedia: true})
	f.media.thumb = &domain.Media{ID: 5, SourceURL: "https://cms.example/thumb.jpg"}

	res, err := f.svc.Submit(context.Background(), validSubmit)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.PostID != 99 || len(res.MediaWarnings) != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}

	req := f.cms.requests[0]
	if req.FeaturedMedia != 5 {
		t.Fatalf("expected featured_media=5, got %d", req.FeaturedMedia)
	}
	if len(req.Categories) != 1 || req.Categories[0] != 7 {
		t.Fatalf("expected category 7, got %v", req.Categories)
	}
	if req.Status != "publish" {
		t.Fatalf("expected status publish, got %q", req.Status)
	}

	stored, err := f.repo.FindByTitle(context.Background(), "Summer sale")
	if err != nil {
		t.Fatalf("entry should be persisted: %v", err)
	}
	if stored.MediaURL != "https://cms.example/thumb.jpg" || stored.Promoted {
		t.Fatalf("unexpected stored entry: %+v", stored)
	}
}

func TestEntryService_Submit_UnknownCategoryUsesDefault(t *testing.T) {
	f := newEntryService(service.PipelineOptions{})
	req := validSubmit
	req.Category = "Gadgets"

	if _, err := f.svc.Submit(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := f.cms.requests[0].Categories[0]; got != domain.DefaultCategoryID {
		t.Fatalf("expected default category, got %d", got)
	}
}

func TestEntryService_Submit_MediaFailureIsNonFatal(t *testing.T) {
	f := newEntryService(service.PipelineOptions{ResolveMedia: true})
	f.media.thumbErr = &domain.MediaError{Op: "fetch", Err: errors.New("timeout")}

	res, err := f.svc.Submit(context.Background(), validSubmit)
	if err != nil {
		t.Fatalf("media failure must not abort, got %v", err)
	}
	if len(res.MediaWarnings) != 1 {
		t.Fatalf("expected one media warning, got %v", res.MediaWarnings)
	}
	if f.cms.requests[0].FeaturedMedia != 0 {
		t.Fatal("featured_media must be absent without a thumbnail")
	}
	if f.repo.AppendCalls != 1 {
		t.Fatalf("expected entry to be appended once, got %d", f.repo.AppendCalls)
	}
}

func TestEntryService_Submit_PublishFailureNotPersisted(t *testing.T) {
	f := newEntryService(service.PipelineOptions{})
	f.cms.err = &domain.PublishError{Status: 500, Body: "db down"}

	_, err := f.svc.Submit(context.Background(), validSubmit)
	var perr *domain.PublishError
	if !errors.As(err, &perr) || perr.Status != 500 {
		t.Fatalf("expected PublishError with status 500, got %v", err)
	}
	if f.repo.AppendCalls != 0 {
		t.Fatal("nothing may be persisted after a publish failure")
	}
}

func TestEntryService_Submit_DuplicateHasNoSideEffects(t *testing.T) {
	f := newEntryService(service.PipelineOptions{ResolveMedia: true}, &domain.Entry{Title: "Summer sale"})

	_, err := f.svc.Submit(context.Background(), validSubmit)
	if !errors.Is(err, domain.ErrDuplicateEntry) {
		t.Fatalf("expected ErrDuplicateEntry, got %v", err)
	}
	if len(f.cms.requests) != 0 || len(f.media.payloads) != 0 {
		t.Fatal("duplicate must be rejected before media or publish")
	}
}

func TestEntryService_Submit_ResolveMediaDisabled(t *testing.T) {
	f := newEntryService(service.PipelineOptions{ResolveMedia: false})

	if _, err := f.svc.Submit(context.Background(), validSubmit); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.media.payloads[0] != "" {
		t.Fatal("payload must not be scanned when media resolution is disabled")
	}
}

func TestEntryService_Submit_VideoPreferredForMediaURL(t *testing.T) {
	f := newEntryService(service.PipelineOptions{ResolveMedia: true})
	f.media.thumb = &domain.Media{ID: 5, SourceURL: "https://cms.example/thumb.jpg"}
	f.media.video = &domain.Media{ID: 6, SourceURL: "https://cms.example/clip.mp4"}

	req := validSubmit
	req.Video = &domain.Upload{Filename: "clip.mp4", Data: []byte("v")}
	if _, err := f.svc.Submit(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(f.cms.requests[0].Content, `<video controls="" src="https://cms.example/clip.mp4"></video>`) {
		t.Fatalf("expected playback tag in content, got %q", f.cms.requests[0].Content)
	}
	stored, _ := f.repo.FindByTitle(context.Background(), "Summer sale")
	if stored.MediaURL != "https://cms.example/clip.mp4" {
		t.Fatalf("expected video URL as media_url, got %q", stored.MediaURL)
	}
}

func TestEntryService_List(t *testing.T) {
	f := newEntryService(service.PipelineOptions{},
		&domain.Entry{Title: "a", Promoted: true},
		&domain.Entry{Title: "b"},
	)
	ctx := context.Background()

	all, _ := f.svc.List(ctx, nil)
	if len(all) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(all))
	}

	no := false
	pending, _ := f.svc.List(ctx, &no)
	if len(pending) != 1 || pending[0].Title != "b" {
		t.Fatalf("expected only b, got %+v", pending)
	}
}

func TestEntryService_Submit_SeparateStoreHandlesPublishOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "entries.csv")
	cms := &fakeBackend{}
	cats := &fakeCategories{cats: map[string]int64{"Deals": 7}}

	newSvc := func() *service.EntryService {
		return service.NewEntryService(repository.NewCSVEntryRepository(path), cats, &fakeMedia{},
			service.NewPublisher(cms, false), service.PipelineOptions{}, service.MetricHooks{}, zap.NewNop())
	}
	services := []*service.EntryService{newSvc(), newSvc()}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		ok, dupes int
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(svc *service.EntryService) {
			defer wg.Done()
			_, err := svc.Submit(context.Background(), validSubmit)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, domain.ErrDuplicateEntry):
				dupes++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(services[i%2])
	}
	wg.Wait()

	if ok != 1 || dupes != 3 {
		t.Fatalf("expected 1 success and 3 duplicates, got %d and %d", ok, dupes)
	}
	if len(cms.requests) != 1 {
		t.Fatalf("duplicates must not publish, got %d CMS posts", len(cms.requests))
	}
}
