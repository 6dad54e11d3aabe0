package repository

import (
	"context"

	"github.com/ricirt/adpromo/internal/domain"
)

// EntryRepository is the durable queue of entries. Insertion order is
// promotion order. Implementations live in csv_entry_repo.go,
// sqlite_entry_repo.go and pg_entry_repo.go; tests use a hand-written mock.
type EntryRepository interface {
	// Load returns every entry in insertion order. Rows persisted before
	// tags/promoted existed come back with empty tags and promoted=false.
	Load(ctx context.Context) ([]*domain.Entry, error)

	// Append writes exactly one entry. ErrDuplicateEntry if the title exists.
	Append(ctx context.Context, e *domain.Entry) error

	// UpdatePromoted sets the flag on the first entry with the exact title.
	// ErrNotFound if absent, ErrPromotedMonotonic for a true -> false change.
	UpdatePromoted(ctx context.Context, title string, promoted bool) error

	// RemoveHead drops the first entry if its title is expectedTitle,
	// ErrStaleHead otherwise, ErrNotFound when the queue is empty.
	RemoveHead(ctx context.Context, expectedTitle string) error

	FindByTitle(ctx context.Context, title string) (*domain.Entry, error)

	// Lock takes the store-wide lock for scope and blocks until it is held
	// or ctx is done. The lock excludes other processes sharing the store,
	// so it may span several calls. release must be called exactly once.
	Lock(ctx context.Context, scope LockScope) (release func(), err error)
}

// LockScope names an independent store-wide lock.
type LockScope string

const (
	// LockPromotion covers select, post and commit of one promotion cycle.
	LockPromotion LockScope = "promote"
	// LockRegistration covers duplicate check, publish and append.
	LockRegistration LockScope = "register"
)
