package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/solatis/boorukeeper/internal/types"
)

type postRow struct {
	Website   string          `db:"website"`
	ID        int64           `db:"external_id"`
	Rating    string          `db:"rating"`
	FileKind  string          `db:"file_kind"`
	FileExt   string          `db:"file_ext"`
	MD5       string          `db:"md5"`
	Uploader  string          `db:"uploader"`
	Score     sql.NullInt64   `db:"score"`
	Source    string          `db:"source"`
	Duration  sql.NullFloat64 `db:"duration"`
	Variants  []byte          `db:"variants"`
	Tags      []byte          `db:"tags"`
	CreatedAt sql.NullTime    `db:"created_at"`
	FetchedAt time.Time       `db:"fetched_at"`
}

type poolRow struct {
	Website     string       `db:"website"`
	ID          int64        `db:"external_id"`
	Name        string       `db:"name"`
	Description string       `db:"description"`
	PostCount   int64        `db:"post_count"`
	PostIDs     []byte       `db:"post_ids"`
	Creator     string       `db:"creator"`
	CreatedAt   sql.NullTime `db:"created_at"`
	UpdatedAt   sql.NullTime `db:"updated_at"`
	FetchedAt   time.Time    `db:"fetched_at"`
}

type tagRow struct {
	Website   string       `db:"website"`
	Name      string       `db:"name"`
	ID        int64        `db:"external_id"`
	Count     int64        `db:"post_count"`
	Category  string       `db:"category"`
	CreatedAt sql.NullTime `db:"created_at"`
	UpdatedAt sql.NullTime `db:"updated_at"`
	FetchedAt time.Time    `db:"fetched_at"`
}

type userRow struct {
	Website   string       `db:"website"`
	ID        int64        `db:"external_id"`
	Name      string       `db:"name"`
	CreatedAt sql.NullTime `db:"created_at"`
	UpdatedAt sql.NullTime `db:"updated_at"`
	FetchedAt time.Time    `db:"fetched_at"`
}

// GetPost loads a stored post.
func (s *Store) GetPost(ctx context.Context, key types.EntityKey) (types.Post, error) {
	var row postRow
	if err := s.get(ctx, "get-post", &row, string(key.Website), key.ID); err != nil {
		return types.Post{}, fmt.Errorf("post %s/%d: %w", key.Website, key.ID, err)
	}
	p := types.Post{
		Key:       types.EntityKey{Website: types.Website(row.Website), ID: row.ID},
		Rating:    types.Rating(row.Rating),
		FileKind:  types.FileKind(row.FileKind),
		FileExt:   row.FileExt,
		MD5:       row.MD5,
		Uploader:  row.Uploader,
		Source:    row.Source,
		CreatedAt: timeOf(row.CreatedAt),
	}
	if row.Score.Valid {
		p.Score = &row.Score.Int64
	}
	if row.Duration.Valid {
		p.Duration = &row.Duration.Float64
	}
	if err := json.Unmarshal(row.Variants, &p.Variants); err != nil {
		return types.Post{}, fmt.Errorf("decoding variants of post %d: %w", row.ID, err)
	}
	if err := json.Unmarshal(row.Tags, &p.Tags); err != nil {
		return types.Post{}, fmt.Errorf("decoding tags of post %d: %w", row.ID, err)
	}
	return p, nil
}

// GetPool loads a stored pool.
func (s *Store) GetPool(ctx context.Context, key types.EntityKey) (types.Pool, error) {
	var row poolRow
	if err := s.get(ctx, "get-pool", &row, string(key.Website), key.ID); err != nil {
		return types.Pool{}, fmt.Errorf("pool %s/%d: %w", key.Website, key.ID, err)
	}
	p := types.Pool{
		Key:         types.EntityKey{Website: types.Website(row.Website), ID: row.ID},
		Name:        row.Name,
		Description: row.Description,
		PostCount:   row.PostCount,
		Creator:     row.Creator,
		CreatedAt:   timeOf(row.CreatedAt),
		UpdatedAt:   timeOf(row.UpdatedAt),
	}
	if err := json.Unmarshal(row.PostIDs, &p.PostIDs); err != nil {
		return types.Pool{}, fmt.Errorf("decoding post ids of pool %d: %w", row.ID, err)
	}
	return p, nil
}

// GetTag loads a stored tag.
func (s *Store) GetTag(ctx context.Context, key types.TagKey) (types.Tag, error) {
	var row tagRow
	if err := s.get(ctx, "get-tag", &row, string(key.Website), key.Name); err != nil {
		return types.Tag{}, fmt.Errorf("tag %s/%s: %w", key.Website, key.Name, err)
	}
	return types.Tag{
		Key:        types.TagKey{Website: types.Website(row.Website), Name: row.Name},
		ExternalID: row.ID,
		Count:      row.Count,
		Category:   types.TagCategory(row.Category),
		CreatedAt:  timeOf(row.CreatedAt),
		UpdatedAt:  timeOf(row.UpdatedAt),
	}, nil
}

// GetUser loads a stored user.
func (s *Store) GetUser(ctx context.Context, key types.EntityKey) (types.User, error) {
	var row userRow
	if err := s.get(ctx, "get-user", &row, string(key.Website), key.ID); err != nil {
		return types.User{}, fmt.Errorf("user %s/%d: %w", key.Website, key.ID, err)
	}
	return types.User{
		Key:       types.EntityKey{Website: types.Website(row.Website), ID: row.ID},
		Name:      row.Name,
		CreatedAt: timeOf(row.CreatedAt),
		UpdatedAt: timeOf(row.UpdatedAt),
	}, nil
}

// CountPosts returns the number of stored posts for website.
func (s *Store) CountPosts(ctx context.Context, website types.Website) (int, error) {
	var n int
	if err := s.queries.Get(ctx, "count-posts", &n, string(website)); err != nil {
		return 0, fmt.Errorf("counting posts: %w", err)
	}
	return n, nil
}

func (s *Store) get(ctx context.Context, name string, dest any, args ...any) error {
	err := s.queries.Get(ctx, name, dest, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func timeOf(t sql.NullTime) time.Time {
	if !t.Valid {
		return time.Time{}
	}
	return t.Time.UTC()
}
