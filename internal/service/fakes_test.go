package service_test

import (
	"context"
	"sync"

	"github.com/ricirt/adpromo/internal/backend"
	"github.com/ricirt/adpromo/internal/domain"
	"github.com/ricirt/adpromo/internal/provider"
)

type fakePoster struct {
	mu       sync.Mutex
	messages []provider.Message
	err      error
}

func (f *fakePoster) Post(_ context.Context, msg provider.Message) (*provider.PostResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, msg)
	if f.err != nil {
		return nil, f.err
	}
	return &provider.PostResult{ID: "p1"}, nil
}

func (f *fakePoster) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

type fakeCategories struct {
	cats map[string]int64
}

func (f *fakeCategories) Categories(context.Context) map[string]int64 { return f.cats }

func (f *fakeCategories) Resolve(_ context.Context, label string) int64 {
	if id, ok := f.cats[label]; ok {
		return id
	}
	return domain.DefaultCategoryID
}

type fakeMedia struct {
	thumb    *domain.Media
	thumbErr error
	video    *domain.Media
	videoErr error

	mu       sync.Mutex
	payloads []string
}

func (f *fakeMedia) Resolve(_ context.Context, payload string, _ *domain.Upload) (*domain.Media, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, payload)
	return f.thumb, f.thumbErr
}

func (f *fakeMedia) UploadVideo(_ context.Context, _ *domain.Upload) (*domain.Media, error) {
	return f.video, f.videoErr
}

type fakeBackend struct {
	mu       sync.Mutex
	requests []backend.PostRequest
	err      error
}

func (f *fakeBackend) CreatePost(_ context.Context, req backend.PostRequest) (*backend.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &backend.Post{ID: 99, Link: "https://cms.example/?p=99"}, nil
}
