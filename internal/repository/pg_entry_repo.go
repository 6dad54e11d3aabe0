package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ricirt/adpromo/internal/domain"
)

type pgEntryRepository struct {
	pool *pgxpool.Pool
}

// NewPgEntryRepository returns an EntryRepository backed by PostgreSQL.
// The schema is owned by the migrations in internal/db.
func NewPgEntryRepository(pool *pgxpool.Pool) EntryRepository {
	return &pgEntryRepository{pool: pool}
}

const selectEntryColumns = `
	SELECT title, category, promotion_text, payload, media_url, tags, promoted, created_at
	FROM entries`

func (r *pgEntryRepository) Load(ctx context.Context) ([]*domain.Entry, error) {
	rows, err := r.pool.Query(ctx, selectEntryColumns+" ORDER BY seq")
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	entries := []*domain.Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *pgEntryRepository) FindByTitle(ctx context.Context, title string) (*domain.Entry, error) {
	row := r.pool.QueryRow(ctx, selectEntryColumns+" WHERE title = $1", title)
	e, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return e, err
}

func (r *pgEntryRepository) Append(ctx context.Context, e *domain.Entry) error {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO entries
			(title, category, promotion_text, payload, media_url, tags, promoted, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (title) DO NOTHING`,
		e.Title, e.Category, e.PromotionText, e.Payload,
		e.MediaURL, domain.JoinTags(e.Tags), e.Promoted, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrDuplicateEntry
	}
	return nil
}

func (r *pgEntryRepository) UpdatePromoted(ctx context.Context, title string, promoted bool) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var current bool
		err := tx.QueryRow(ctx,
			`SELECT promoted FROM entries WHERE title = $1 FOR UPDATE`, title).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lock entry: %w", err)
		}
		if current && !promoted {
			return domain.ErrPromotedMonotonic
		}
		if _, err := tx.Exec(ctx,
			`UPDATE entries SET promoted = $2 WHERE title = $1`, title, promoted); err != nil {
			return fmt.Errorf("update promoted: %w", err)
		}
		return nil
	})
}

func (r *pgEntryRepository) RemoveHead(ctx context.Context, expectedTitle string) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var (
			seq   int64
			title string
		)
		err := tx.QueryRow(ctx,
			`SELECT seq, title FROM entries ORDER BY seq LIMIT 1 FOR UPDATE`).Scan(&seq, &title)
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lock head: %w", err)
		}
		if title != expectedTitle {
			return domain.ErrStaleHead
		}
		if _, err := tx.Exec(ctx, `DELETE FROM entries WHERE seq = $1`, seq); err != nil {
			return fmt.Errorf("delete head: %w", err)
		}
		return nil
	})
}

// advisoryKeys are the pg_advisory_lock keys per scope.
var advisoryKeys = map[LockScope]int64{
	LockPromotion:    0x6164_7072_6f6d_0001,
	LockRegistration: 0x6164_7072_6f6d_0002,
}

// Lock holds a session-level advisory lock on a dedicated pooled connection
// until release, so it spans the statements the caller issues in between.
func (r *pgEntryRepository) Lock(ctx context.Context, scope LockScope) (func(), error) {
	key, ok := advisoryKeys[scope]
	if !ok {
		return nil, fmt.Errorf("unknown lock scope %q", scope)
	}

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire lock connection: %w", err)
	}
	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, key); err != nil {
		conn.Release()
		return nil, fmt.Errorf("advisory lock %s: %w", scope, err)
	}

	return func() {
		// A failed unlock leaves the session holding the lock; closing
		// the connection drops it.
		if _, err := conn.Exec(context.Background(), `SELECT pg_advisory_unlock($1)`, key); err != nil {
			_ = conn.Conn().Close(context.Background())
		}
		conn.Release()
	}, nil
}

// scanner is satisfied by both pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (*domain.Entry, error) {
	var (
		e    domain.Entry
		tags string
	)
	if err := s.Scan(
		&e.Title, &e.Category, &e.PromotionText, &e.Payload,
		&e.MediaURL, &tags, &e.Promoted, &e.CreatedAt,
	); err != nil {
		return nil, err
	}
	e.Tags = domain.ParseTags(tags)
	return &e, nil
}
