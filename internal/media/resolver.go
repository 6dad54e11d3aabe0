package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/ricirt/adpromo/internal/domain"
)

const thumbnailName = "thumbnail.jpg"

// videoTypes covers containers missing from mime's builtin table.
var videoTypes = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/mp4",
	".mov":  "video/quicktime",
	".webm": "video/webm",
}

// Uploader stores a file on the content backend, usually *backend.Client.
type Uploader interface {
	UploadMedia(ctx context.Context, up *domain.Upload) (*domain.Media, error)
}

// Resolver turns an ad payload or an operator-supplied image into an
// uploaded thumbnail. Every failure is a *domain.MediaError, which callers
// treat as a warning rather than a reason to abort.
type Resolver struct {
	uploader   Uploader
	httpClient *http.Client
	maxBytes   int64
}

// NewResolver builds a Resolver. fetchTimeout bounds each image download and
// maxBytes caps its size.
func NewResolver(uploader Uploader, fetchTimeout time.Duration, maxBytes int64) *Resolver {
	return &Resolver{
		uploader: uploader,
		httpClient: &http.Client{
			Timeout: fetchTimeout,
		},
		maxBytes: maxBytes,
	}
}

// Resolve uploads explicit when given, otherwise the first img= reference in
// payload. It returns (nil, nil) when there is nothing to resolve.
func (r *Resolver) Resolve(ctx context.Context, payload string, explicit *domain.Upload) (*domain.Media, error) {
	var data []byte
	switch {
	case explicit != nil && len(explicit.Data) > 0:
		data = explicit.Data
	default:
		url, ok := ExtractImageURL(payload)
		if !ok {
			return nil, nil
		}
		fetched, err := r.fetch(ctx, url)
		if err != nil {
			return nil, &domain.MediaError{Op: "fetch", Err: err}
		}
		data = fetched
	}

	jpg, err := Normalize(data)
	if err != nil {
		return nil, &domain.MediaError{Op: "decode", Err: err}
	}

	return r.upload(ctx, &domain.Upload{
		Filename:    thumbnailName,
		ContentType: "image/jpeg",
		Data:        jpg,
	})
}

// UploadVideo stores an operator-supplied video unchanged.
func (r *Resolver) UploadVideo(ctx context.Context, v *domain.Upload) (*domain.Media, error) {
	if v == nil || len(v.Data) == 0 {
		return nil, nil
	}

	up := *v
	if up.Filename == "" {
		up.Filename = "video.mp4"
	}
	ext := strings.ToLower(filepath.Ext(up.Filename))
	if up.ContentType == "" {
		up.ContentType = videoTypes[ext]
	}
	if up.ContentType == "" {
		up.ContentType = mime.TypeByExtension(ext)
	}
	if up.ContentType == "" {
		up.ContentType = http.DetectContentType(up.Data)
	}
	return r.upload(ctx, &up)
}

func (r *Resolver) upload(ctx context.Context, up *domain.Upload) (*domain.Media, error) {
	m, err := r.uploader.UploadMedia(ctx, up)
	if err != nil {
		var merr *domain.MediaError
		if errors.As(err, &merr) {
			return nil, merr
		}
		return nil, &domain.MediaError{Op: "upload", Err: err}
	}
	return m, nil
}

func (r *Resolver) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get %s: unexpected status %d", url, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, r.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	if int64(len(data)) > r.maxBytes {
		return nil, fmt.Errorf("image at %s exceeds %d bytes", url, r.maxBytes)
	}
	return data, nil
}
