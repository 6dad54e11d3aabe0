package repository

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ricirt/adpromo/internal/domain"
)

// Canonical column order written by the CSV store.
var csvHeader = []string{
	"title", "category", "promotion_text", "payload",
	"media_url", "tags", "promoted", "created_at",
}

// csvAliases maps header names written by earlier versions of the queue
// file onto canonical columns.
var csvAliases = map[string]string{
	"tweet_text":    "promotion_text",
	"script":        "payload",
	"thumbnail_url": "media_url",
	"video_url":     "media_url",
	"posted":        "promoted",
}

type csvEntryRepository struct {
	path string
	mu   sync.Mutex
}

// NewCSVEntryRepository returns an EntryRepository backed by a flat CSV file.
// Every mutation rewrites the file through a temp file and rename while
// holding an advisory lock on path+".lock", so readers in other processes
// never observe a partial write.
func NewCSVEntryRepository(path string) EntryRepository {
	return &csvEntryRepository{path: path}
}

func (r *csvEntryRepository) Load(ctx context.Context) ([]*domain.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	unlock, err := lockFile(r.path, false)
	if err != nil {
		return nil, err
	}
	defer unlock()

	return r.read()
}

func (r *csvEntryRepository) FindByTitle(ctx context.Context, title string) (*domain.Entry, error) {
	entries, err := r.Load(ctx)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.Title == title {
			return e, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *csvEntryRepository) Append(ctx context.Context, e *domain.Entry) error {
	return r.mutate(func(entries []*domain.Entry) ([]*domain.Entry, error) {
		for _, existing := range entries {
			if existing.Title == e.Title {
				return nil, domain.ErrDuplicateEntry
			}
		}
		clone := *e
		return append(entries, &clone), nil
	})
}

func (r *csvEntryRepository) UpdatePromoted(ctx context.Context, title string, promoted bool) error {
	return r.mutate(func(entries []*domain.Entry) ([]*domain.Entry, error) {
		for _, e := range entries {
			if e.Title != title {
				continue
			}
			if e.Promoted && !promoted {
				return nil, domain.ErrPromotedMonotonic
			}
			e.Promoted = promoted
			return entries, nil
		}
		return nil, domain.ErrNotFound
	})
}

func (r *csvEntryRepository) RemoveHead(ctx context.Context, expectedTitle string) error {
	return r.mutate(func(entries []*domain.Entry) ([]*domain.Entry, error) {
		if len(entries) == 0 {
			return nil, domain.ErrNotFound
		}
		if entries[0].Title != expectedTitle {
			return nil, domain.ErrStaleHead
		}
		return entries[1:], nil
	})
}

// Lock takes an exclusive flock on "<path>.<scope>.lock", separate from the
// per-mutation lock, so it can be held across Load and later mutations.
func (r *csvEntryRepository) Lock(ctx context.Context, scope LockScope) (func(), error) {
	return lockFileContext(ctx, scopeLockPath(r.path, scope))
}

// mutate runs fn over the current contents under both locks and persists
// the result atomically. When fn fails the file is left untouched.
func (r *csvEntryRepository) mutate(fn func([]*domain.Entry) ([]*domain.Entry, error)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	unlock, err := lockFile(r.path, true)
	if err != nil {
		return err
	}
	defer unlock()

	entries, err := r.read()
	if err != nil {
		return err
	}
	updated, err := fn(entries)
	if err != nil {
		return err
	}
	return r.write(updated)
}

func (r *csvEntryRepository) read() ([]*domain.Entry, error) {
	f, err := os.Open(r.path)
	if errors.Is(err, os.ErrNotExist) {
		return []*domain.Entry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open queue file: %w", err)
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return []*domain.Entry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read queue header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		if canonical, ok := csvAliases[name]; ok {
			name = canonical
		}
		if _, seen := cols[name]; !seen {
			cols[name] = i
		}
	}
	if _, ok := cols["title"]; !ok {
		return nil, fmt.Errorf("queue file %s has no title column", r.path)
	}

	field := func(rec []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return rec[i]
	}

	entries := []*domain.Entry{}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read queue row: %w", err)
		}

		e := &domain.Entry{
			Title:         field(rec, "title"),
			Category:      field(rec, "category"),
			PromotionText: field(rec, "promotion_text"),
			Payload:       field(rec, "payload"),
			MediaURL:      field(rec, "media_url"),
			Tags:          domain.ParseTags(field(rec, "tags")),
		}
		e.Promoted, _ = strconv.ParseBool(strings.TrimSpace(field(rec, "promoted")))
		if ts := field(rec, "created_at"); ts != "" {
			e.CreatedAt, _ = time.Parse(time.RFC3339, ts)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (r *csvEntryRepository) write(entries []*domain.Entry) error {
	dir := filepath.Dir(r.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(r.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp queue file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	cw := csv.NewWriter(tmp)
	if err := cw.Write(csvHeader); err != nil {
		tmp.Close()
		return fmt.Errorf("write queue header: %w", err)
	}
	for _, e := range entries {
		created := ""
		if !e.CreatedAt.IsZero() {
			created = e.CreatedAt.UTC().Format(time.RFC3339)
		}
		rec := []string{
			e.Title, e.Category, e.PromotionText, e.Payload,
			e.MediaURL, domain.JoinTags(e.Tags), strconv.FormatBool(e.Promoted), created,
		}
		if err := cw.Write(rec); err != nil {
			tmp.Close()
			return fmt.Errorf("write queue row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("flush queue file: %w", err)
	}
	if err := tmp.Chmod(r.fileMode()); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod queue file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync queue file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close queue file: %w", err)
	}
	if err := os.Rename(tmpName, r.path); err != nil {
		return fmt.Errorf("replace queue file: %w", err)
	}
	return nil
}

// fileMode keeps the permissions of an existing queue file across rewrites.
func (r *csvEntryRepository) fileMode() os.FileMode {
	if fi, err := os.Stat(r.path); err == nil {
		return fi.Mode().Perm()
	}
	return 0o644
}
