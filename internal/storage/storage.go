// internal/storage/storage.go
package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github-trends/internal/model"
)

// trackedPageSize bounds each keyset page of the watch-set read.
const trackedPageSize = 1000

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx, so the same Storage can run
// against the pool for reads and inside a transaction for writes.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Storage performs chunked, conflict-tolerant bulk writes and the read
// queries over the five tables. Transaction boundaries belong to the caller.
type Storage struct {
	db        DBTX
	batchSize int
}

// New creates a Storage over db, chunking bulk writes by batchSize.
func New(db DBTX, batchSize int) *Storage {
	return &Storage{db: db, batchSize: batchSize}
}

const insertOwnerSQL = `
	INSERT INTO owners (owner_id, login_name, owner_type, created_at)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (owner_id) DO NOTHING`

// BulkInsertOwners inserts owner rows, first-write-wins on owner_id.
func (s *Storage) BulkInsertOwners(ctx context.Context, owners []model.Owner) error {
	for _, part := range chunk(owners, s.batchSize) {
		b := &pgx.Batch{}
		for _, o := range part {
			b.Queue(insertOwnerSQL, o.OwnerID, o.LoginName, o.OwnerType, o.CreatedAt)
		}
		if err := s.db.SendBatch(ctx, b).Close(); err != nil {
			return fmt.Errorf("bulk insert owners: %w", err)
		}
	}
	return nil
}

const insertRepositorySQL = `
	INSERT INTO repositories (
		repo_id, owner_id, full_name, html_url, repo_language,
		created_at, updated_at, pushed_at, size_kb,
		is_fork, has_issues, has_wiki, has_downloads, has_pages, has_discussions
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	ON CONFLICT (repo_id) DO NOTHING`

// BulkInsertRepositories inserts repository rows, first-write-wins on repo_id.
func (s *Storage) BulkInsertRepositories(ctx context.Context, repos []model.Repository) error {
	for _, part := range chunk(repos, s.batchSize) {
		b := &pgx.Batch{}
		for _, r := range part {
			b.Queue(insertRepositorySQL,
				r.RepoID, r.OwnerID, r.FullName, r.HTMLURL, r.RepoLanguage,
				r.CreatedAt, r.UpdatedAt, r.PushedAt, r.SizeKB,
				r.IsFork, r.HasIssues, r.HasWiki, r.HasDownloads, r.HasPages, r.HasDiscussions)
		}
		if err := s.db.SendBatch(ctx, b).Close(); err != nil {
			return fmt.Errorf("bulk insert repositories: %w", err)
		}
	}
	return nil
}

const insertOwnerSnapshotSQL = `
	INSERT INTO owners_snapshots (owner_id, collected_at, followers, public_repos)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (owner_id, collected_at) DO NOTHING`

// BulkInsertOwnerSnapshots appends owner observations; duplicate
// (owner_id, collected_at) pairs are dropped, never merged.
func (s *Storage) BulkInsertOwnerSnapshots(ctx context.Context, snapshots []model.OwnerSnapshot) error {
	for _, part := range chunk(snapshots, s.batchSize) {
		b := &pgx.Batch{}
		for _, snap := range part {
			b.Queue(insertOwnerSnapshotSQL, snap.OwnerID, snap.CollectedAt, snap.Followers, snap.PublicRepos)
		}
		if err := s.db.SendBatch(ctx, b).Close(); err != nil {
			return fmt.Errorf("bulk insert owner snapshots: %w", err)
		}
	}
	return nil
}

const insertRepositorySnapshotSQL = `
	INSERT INTO repositories_snapshots (
		repo_id, collected_at, stars, forks, watchers, open_issues, size_kb, pushed_at
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (repo_id, collected_at) DO NOTHING`

// BulkInsertRepositorySnapshots appends repository observations; duplicate
// (repo_id, collected_at) pairs are dropped, never merged.
func (s *Storage) BulkInsertRepositorySnapshots(ctx context.Context, snapshots []model.RepositorySnapshot) error {
	for _, part := range chunk(snapshots, s.batchSize) {
		b := &pgx.Batch{}
		for _, snap := range part {
			b.Queue(insertRepositorySnapshotSQL,
				snap.RepoID, snap.CollectedAt, snap.Stars, snap.Forks,
				snap.Watchers, snap.OpenIssues, snap.SizeKB, snap.PushedAt)
		}
		if err := s.db.SendBatch(ctx, b).Close(); err != nil {
			return fmt.Errorf("bulk insert repository snapshots: %w", err)
		}
	}
	return nil
}

const insertTrackedRepositorySQL = `
	INSERT INTO tracked_repositories (repo_id, tracking_started_at, reason)
	VALUES ($1, $2, $3)
	ON CONFLICT (repo_id) DO NOTHING`

// BulkInsertTrackedRepositories admits repositories into the watch set.
// A repository already tracked keeps its original marker.
func (s *Storage) BulkInsertTrackedRepositories(ctx context.Context, tracked []model.TrackedRepository) error {
	for _, part := range chunk(tracked, s.batchSize) {
		b := &pgx.Batch{}
		for _, t := range part {
			b.Queue(insertTrackedRepositorySQL, t.RepoID, t.TrackingStartedAt, t.Reason)
		}
		if err := s.db.SendBatch(ctx, b).Close(); err != nil {
			return fmt.Errorf("bulk insert tracked repositories: %w", err)
		}
	}
	return nil
}

const trackedFullNamesSQL = `
	SELECT r.repo_id, r.full_name
	FROM repositories r
	INNER JOIN tracked_repositories t ON t.repo_id = r.repo_id
	WHERE r.repo_id > $1
	ORDER BY r.repo_id
	LIMIT $2`

// TrackedFullNames returns the full names of exactly the watch set: the
// inner join of repositories and tracked_repositories. Reads are keyset
// paged by repo_id so one query never materializes the whole tracked set.
func (s *Storage) TrackedFullNames(ctx context.Context) ([]string, error) {
	var fullNames []string
	var lastID int64
	for {
		rows, err := s.db.Query(ctx, trackedFullNamesSQL, lastID, trackedPageSize)
		if err != nil {
			return nil, fmt.Errorf("query tracked full names: %w", err)
		}

		n := 0
		for rows.Next() {
			var fullName string
			if err := rows.Scan(&lastID, &fullName); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan tracked full name: %w", err)
			}
			fullNames = append(fullNames, fullName)
			n++
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("read tracked full names: %w", err)
		}
		if n < trackedPageSize {
			return fullNames, nil
		}
	}
}

// chunk splits rows into batchSize-long pieces. Chunking only batches the
// write; it never changes which rows land.
func chunk[T any](rows []T, size int) [][]T {
	if len(rows) == 0 {
		return nil
	}
	parts := make([][]T, 0, (len(rows)+size-1)/size)
	for start := 0; start < len(rows); start += size {
		end := start + size
		if end > len(rows) {
			end = len(rows)
		}
		parts = append(parts, rows[start:end])
	}
	return parts
}
