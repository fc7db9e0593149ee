// internal/model/models.go
package model

import "time"

// Owner represents a GitHub user or organization that owns repositories.
// Identity fields are immutable once stored; only snapshots accumulate.
type Owner struct {
	OwnerID   int64
	LoginName string
	OwnerType string
	CreatedAt time.Time
}

// OwnerSnapshot is one timestamped observation of an owner's volatile metrics.
// Keyed by (OwnerID, CollectedAt); rows are never updated or deleted.
type OwnerSnapshot struct {
	OwnerID     int64
	CollectedAt time.Time
	Followers   int
	PublicRepos int
}

// Repository holds the descriptive, immutable attributes of a repository.
type Repository struct {
	RepoID         int64
	OwnerID        *int64 // nil when the owner record is absent or was deleted
	FullName       string
	HTMLURL        string
	RepoLanguage   *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	PushedAt       time.Time
	SizeKB         int
	IsFork         bool
	HasIssues      bool
	HasWiki        bool
	HasDownloads   bool
	HasPages       bool
	HasDiscussions bool
}

// RepositorySnapshot is one timestamped observation of a repository's
// volatile metrics. Keyed by (RepoID, CollectedAt), append-only.
type RepositorySnapshot struct {
	RepoID      int64
	CollectedAt time.Time
	Stars       int
	Forks       int
	Watchers    int
	OpenIssues  int
	SizeKB      int
	PushedAt    time.Time
}

// TrackedRepository marks a repository as a member of the watch set that the
// update flow refreshes. Reason records which discovery query admitted it.
type TrackedRepository struct {
	RepoID            int64
	TrackingStartedAt time.Time
	Reason            string
}
