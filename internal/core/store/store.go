// Package store persists extracted entities.
//
// Entities are keyed by (website, external id); tags by (website, name).
// Saving an entity that already exists replaces every column, so newer
// fetches overwrite older data and lists (tags, pool post ids) are replaced
// wholesale rather than merged.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/solatis/boorukeeper/internal/core/db"
	"github.com/solatis/boorukeeper/internal/types"
)

// ErrNotFound indicates no stored entity has the requested key.
var ErrNotFound = errors.New("entity not found")

// Store writes and reads entities through named queries.
type Store struct {
	db      *sqlx.DB
	queries *db.Queries
	logger  *slog.Logger
	now     func() time.Time
}

// New wraps an open, migrated database.
func New(database *sqlx.DB, logger *slog.Logger) (*Store, error) {
	queries, err := db.LoadQueries(database)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{db: database, queries: queries, logger: logger, now: time.Now}, nil
}

// FetchRecord is one row of the fetch log.
type FetchRecord struct {
	ID        types.FetchID `db:"fetch_id"`
	Website   types.Website `db:"website"`
	Operation string        `db:"operation"`
	URL       string        `db:"url"`
	ItemCount int           `db:"item_count"`
	Error     string        `db:"error"`
	FetchedAt time.Time     `db:"fetched_at"`
}

// SavePosts upserts posts in one transaction.
func (s *Store) SavePosts(ctx context.Context, posts []types.Post) error {
	fetchedAt := s.now().UTC()
	return s.inTx(ctx, func(q *db.Queries) error {
		for _, p := range posts {
			variants, err := json.Marshal(p.Variants)
			if err != nil {
				return fmt.Errorf("encoding variants of post %d: %w", p.Key.ID, err)
			}
			tags, err := json.Marshal(p.Tags)
			if err != nil {
				return fmt.Errorf("encoding tags of post %d: %w", p.Key.ID, err)
			}
			if _, err := q.Exec(ctx, "upsert-post",
				string(p.Key.Website), p.Key.ID, string(p.Rating), string(p.FileKind), p.FileExt, p.MD5,
				p.Uploader, nullInt(p.Score), p.Source, nullFloat(p.Duration),
				string(variants), string(tags), nullTime(p.CreatedAt), fetchedAt,
			); err != nil {
				return fmt.Errorf("saving post %s/%d: %w", p.Key.Website, p.Key.ID, err)
			}
		}
		return nil
	})
}

// SavePools upserts pools in one transaction.
func (s *Store) SavePools(ctx context.Context, pools []types.Pool) error {
	fetchedAt := s.now().UTC()
	return s.inTx(ctx, func(q *db.Queries) error {
		for _, p := range pools {
			ids := p.PostIDs
			if ids == nil {
				ids = []int64{}
			}
			postIDs, err := json.Marshal(ids)
			if err != nil {
				return fmt.Errorf("encoding post ids of pool %d: %w", p.Key.ID, err)
			}
			if _, err := q.Exec(ctx, "upsert-pool",
				string(p.Key.Website), p.Key.ID, p.Name, p.Description, p.PostCount, string(postIDs),
				p.Creator, nullTime(p.CreatedAt), nullTime(p.UpdatedAt), fetchedAt,
			); err != nil {
				return fmt.Errorf("saving pool %s/%d: %w", p.Key.Website, p.Key.ID, err)
			}
		}
		return nil
	})
}

// SaveTags upserts tags in one transaction.
func (s *Store) SaveTags(ctx context.Context, tags []types.Tag) error {
	fetchedAt := s.now().UTC()
	return s.inTx(ctx, func(q *db.Queries) error {
		for _, t := range tags {
			if _, err := q.Exec(ctx, "upsert-tag",
				string(t.Key.Website), t.Key.Name, t.ExternalID, t.Count, string(t.Category),
				nullTime(t.CreatedAt), nullTime(t.UpdatedAt), fetchedAt,
			); err != nil {
				return fmt.Errorf("saving tag %s/%s: %w", t.Key.Website, t.Key.Name, err)
			}
		}
		return nil
	})
}

// SaveUsers upserts users in one transaction.
func (s *Store) SaveUsers(ctx context.Context, users []types.User) error {
	fetchedAt := s.now().UTC()
	return s.inTx(ctx, func(q *db.Queries) error {
		for _, u := range users {
			if _, err := q.Exec(ctx, "upsert-user",
				string(u.Key.Website), u.Key.ID, u.Name,
				nullTime(u.CreatedAt), nullTime(u.UpdatedAt), fetchedAt,
			); err != nil {
				return fmt.Errorf("saving user %s/%d: %w", u.Key.Website, u.Key.ID, err)
			}
		}
		return nil
	})
}

// RecordFetch appends a fetch log row and returns its id. A zero
// FetchedAt is set to the current time.
func (s *Store) RecordFetch(ctx context.Context, rec FetchRecord) (types.FetchID, error) {
	if rec.ID == "" {
		rec.ID = types.NewFetchID()
	}
	if rec.FetchedAt.IsZero() {
		rec.FetchedAt = s.now()
	}
	if _, err := s.queries.Exec(ctx, "insert-fetch",
		string(rec.ID), string(rec.Website), rec.Operation, rec.URL, rec.ItemCount, rec.Error, rec.FetchedAt.UTC(),
	); err != nil {
		return "", fmt.Errorf("recording fetch: %w", err)
	}
	return rec.ID, nil
}

// ListFetches returns up to limit fetch log rows for website, newest first.
func (s *Store) ListFetches(ctx context.Context, website types.Website, limit int) ([]FetchRecord, error) {
	var recs []FetchRecord
	if err := s.queries.Select(ctx, "list-fetches", &recs, string(website), limit); err != nil {
		return nil, fmt.Errorf("listing fetches: %w", err)
	}
	return recs, nil
}

func (s *Store) inTx(ctx context.Context, fn func(q *db.Queries) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(s.queries.WithTx(tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Warn("rollback failed", "error", rbErr)
		}
		return err
	}
	return tx.Commit()
}

func nullInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
