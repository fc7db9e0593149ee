// internal/storage/queries.go
package storage

import (
	"context"

	"github-trends/internal/model"
)

const repositoryByFullNameSQL = `
	SELECT repo_id, owner_id, full_name, html_url, repo_language,
	       created_at, updated_at, pushed_at, size_kb,
	       is_fork, has_issues, has_wiki, has_downloads, has_pages, has_discussions
	FROM repositories
	WHERE full_name = $1`

// GetRepositoryByFullName looks up one repository by its unique full name.
// Returns pgx.ErrNoRows when absent.
func (s *Storage) GetRepositoryByFullName(ctx context.Context, fullName string) (model.Repository, error) {
	var r model.Repository
	err := s.db.QueryRow(ctx, repositoryByFullNameSQL, fullName).Scan(
		&r.RepoID, &r.OwnerID, &r.FullName, &r.HTMLURL, &r.RepoLanguage,
		&r.CreatedAt, &r.UpdatedAt, &r.PushedAt, &r.SizeKB,
		&r.IsFork, &r.HasIssues, &r.HasWiki, &r.HasDownloads, &r.HasPages, &r.HasDiscussions)
	return r, err
}

const repositorySnapshotsSQL = `
	SELECT repo_id, collected_at, stars, forks, watchers, open_issues, size_kb, pushed_at
	FROM repositories_snapshots
	WHERE repo_id = $1
	ORDER BY collected_at DESC`

// RepositorySnapshots returns the observation history for one repository,
// newest first.
func (s *Storage) RepositorySnapshots(ctx context.Context, repoID int64) ([]model.RepositorySnapshot, error) {
	rows, err := s.db.Query(ctx, repositorySnapshotsSQL, repoID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snapshots []model.RepositorySnapshot
	for rows.Next() {
		var snap model.RepositorySnapshot
		if err := rows.Scan(&snap.RepoID, &snap.CollectedAt, &snap.Stars, &snap.Forks,
			&snap.Watchers, &snap.OpenIssues, &snap.SizeKB, &snap.PushedAt); err != nil {
			return nil, err
		}
		snapshots = append(snapshots, snap)
	}
	return snapshots, rows.Err()
}

const ownerByLoginSQL = `
	SELECT owner_id, login_name, owner_type, created_at
	FROM owners
	WHERE login_name = $1`

// GetOwnerByLogin looks up one owner by its unique login name.
// Returns pgx.ErrNoRows when absent.
func (s *Storage) GetOwnerByLogin(ctx context.Context, login string) (model.Owner, error) {
	var o model.Owner
	err := s.db.QueryRow(ctx, ownerByLoginSQL, login).Scan(
		&o.OwnerID, &o.LoginName, &o.OwnerType, &o.CreatedAt)
	return o, err
}

const ownerSnapshotsSQL = `
	SELECT owner_id, collected_at, followers, public_repos
	FROM owners_snapshots
	WHERE owner_id = $1
	ORDER BY collected_at DESC`

// OwnerSnapshots returns the observation history for one owner, newest first.
func (s *Storage) OwnerSnapshots(ctx context.Context, ownerID int64) ([]model.OwnerSnapshot, error) {
	rows, err := s.db.Query(ctx, ownerSnapshotsSQL, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snapshots []model.OwnerSnapshot
	for rows.Next() {
		var snap model.OwnerSnapshot
		if err := rows.Scan(&snap.OwnerID, &snap.CollectedAt, &snap.Followers, &snap.PublicRepos); err != nil {
			return nil, err
		}
		snapshots = append(snapshots, snap)
	}
	return snapshots, rows.Err()
}
