//go:build integration

// cmd/service/integration_test.go
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github-trends/internal/collector"
	"github-trends/internal/config"
	"github-trends/internal/github"
	"github-trends/internal/model"
	"github-trends/internal/ratelimit"
	"github-trends/internal/storage"
)

func setupTestDatabase(ctx context.Context, t *testing.T) *pgxpool.Pool {
	t.Helper()

	pgContainer, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("test-db"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, pgContainer.Terminate(context.Background()))
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	m, err := migrate.New("file://../../migrations", connStr)
	require.NoError(t, err)
	require.NoError(t, m.Up())

	dbpool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(dbpool.Close)

	return dbpool
}

// fakeGithub serves a fixed set of repositories and owners in the GitHub
// REST shapes the client understands.
func fakeGithub(t *testing.T, rateLimited map[string]bool) *httptest.Server {
	t.Helper()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rateLimited[r.URL.Path] {
			w.Header().Set("X-RateLimit-Limit", "5000")
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", time.Now().Add(time.Hour).Unix()))
			w.WriteHeader(http.StatusForbidden)
			fmt.Fprintln(w, `{"message": "API rate limit exceeded"}`)
			return
		}

		switch r.URL.Path {
		case "/search/repositories":
			fmt.Fprintln(w, `{"total_count": 2, "incomplete_results": false, "items": [
				{"id": 101, "full_name": "alice/alpha"},
				{"id": 102, "full_name": "alice/beta"}
			]}`)
		case "/users/alice":
			fmt.Fprintln(w, `{"id": 11, "login": "alice", "type": "User", "created_at": "2019-05-01T00:00:00Z", "followers": 120, "public_repos": 14}`)
		case "/repos/alice/alpha":
			fmt.Fprintln(w, `{"id": 101, "full_name": "alice/alpha", "owner": {"id": 11, "login": "alice"},
				"html_url": "https://github.com/alice/alpha", "language": "Python",
				"created_at": "2021-01-01T00:00:00Z", "updated_at": "2026-01-01T00:00:00Z", "pushed_at": "2026-02-01T00:00:00Z",
				"size": 1200, "fork": false, "has_issues": true, "has_wiki": true,
				"stargazers_count": 42, "forks_count": 5, "subscribers_count": 7, "open_issues_count": 3}`)
		case "/repos/alice/beta":
			fmt.Fprintln(w, `{"id": 102, "full_name": "alice/beta", "owner": {"id": 11, "login": "alice"},
				"html_url": "https://github.com/alice/beta", "language": "Go",
				"created_at": "2022-01-01T00:00:00Z", "updated_at": "2026-01-01T00:00:00Z", "pushed_at": "2026-02-01T00:00:00Z",
				"size": 300, "fork": false, "has_issues": true, "has_wiki": false,
				"stargazers_count": 9, "forks_count": 1, "subscribers_count": 2, "open_issues_count": 0}`)
		default:
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprintln(w, `{"message": "Not Found"}`)
		}
	})

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func newTestCollector(t *testing.T, dbpool *pgxpool.Pool, serverURL string, batchSize int) *collector.Collector {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	ghClient, err := github.NewClient("", "", logger)
	require.NoError(t, err)
	require.NoError(t, ghClient.OverrideBaseURL(serverURL))

	cfg := &config.Config{BatchSize: batchSize, PerPage: 100, MaxPages: 3}
	return collector.New(dbpool, ghClient, ratelimit.New(1000, time.Second), logger, cfg)
}

func countRows(ctx context.Context, t *testing.T, dbpool *pgxpool.Pool, table string) int {
	t.Helper()
	var n int
	require.NoError(t, dbpool.QueryRow(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func TestPipeline_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	dbpool := setupTestDatabase(ctx, t)
	server := fakeGithub(t, nil)
	coll := newTestCollector(t, dbpool, server.URL, 500)
	query := config.DiscoveryQuery{Name: "test-load", Query: "stars:>1"}

	// Initial load lands owners, repositories and tracking markers.
	require.NoError(t, coll.Init(ctx, query))
	assert.Equal(t, 1, countRows(ctx, t, dbpool, "owners"))
	assert.Equal(t, 2, countRows(ctx, t, dbpool, "repositories"))
	assert.Equal(t, 2, countRows(ctx, t, dbpool, "tracked_repositories"))

	// Re-running the same init leaves every table's row count unchanged.
	require.NoError(t, coll.Init(ctx, query))
	assert.Equal(t, 1, countRows(ctx, t, dbpool, "owners"))
	assert.Equal(t, 2, countRows(ctx, t, dbpool, "repositories"))
	assert.Equal(t, 2, countRows(ctx, t, dbpool, "tracked_repositories"))

	// The watch set is exactly the tracked repositories, excluding
	// untracked rows.
	_, err := dbpool.Exec(ctx, `
		INSERT INTO repositories (repo_id, full_name, html_url, created_at, updated_at, pushed_at,
			size_kb, is_fork, has_issues, has_wiki, has_downloads, has_pages, has_discussions)
		VALUES (999, 'stranger/untracked', 'https://github.com/stranger/untracked',
			now(), now(), now(), 1, false, true, true, true, false, false)`)
	require.NoError(t, err)

	store := storage.New(dbpool, 500)
	fullNames, err := store.TrackedFullNames(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice/alpha", "alice/beta"}, fullNames)

	// The update flow appends one snapshot per owner and tracked repository.
	require.NoError(t, coll.Update(ctx))
	assert.Equal(t, 1, countRows(ctx, t, dbpool, "owners_snapshots"))
	assert.Equal(t, 2, countRows(ctx, t, dbpool, "repositories_snapshots"))
}

func TestSnapshotAppendOnly_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	dbpool := setupTestDatabase(ctx, t)
	server := fakeGithub(t, nil)
	coll := newTestCollector(t, dbpool, server.URL, 500)
	require.NoError(t, coll.Init(ctx, config.DiscoveryQuery{Name: "test-load", Query: "stars:>1"}))

	store := storage.New(dbpool, 500)
	at := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	snap := model.RepositorySnapshot{RepoID: 101, CollectedAt: at, Stars: 42, Forks: 5, Watchers: 7, OpenIssues: 3, SizeKB: 1200, PushedAt: at}

	// Same collected_at twice: the second insert is a no-op.
	require.NoError(t, store.BulkInsertRepositorySnapshots(ctx, []model.RepositorySnapshot{snap}))
	require.NoError(t, store.BulkInsertRepositorySnapshots(ctx, []model.RepositorySnapshot{snap}))
	assert.Equal(t, 1, countRows(ctx, t, dbpool, "repositories_snapshots"))

	// A distinct collected_at appends a second observation.
	snap.CollectedAt = at.Add(time.Second)
	require.NoError(t, store.BulkInsertRepositorySnapshots(ctx, []model.RepositorySnapshot{snap}))
	assert.Equal(t, 2, countRows(ctx, t, dbpool, "repositories_snapshots"))
}

func TestChunkingInvariance_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	dbpool := setupTestDatabase(ctx, t)

	owners := make([]model.Owner, 23)
	for i := range owners {
		owners[i] = model.Owner{
			OwnerID:   int64(i + 1),
			LoginName: fmt.Sprintf("owner%d", i+1),
			OwnerType: "User",
			CreatedAt: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		}
	}

	var baseline []string
	for _, batchSize := range []int{1, 7, 10000} {
		_, err := dbpool.Exec(ctx, "TRUNCATE owners CASCADE")
		require.NoError(t, err)

		store := storage.New(dbpool, batchSize)
		require.NoError(t, store.BulkInsertOwners(ctx, owners))

		rows, err := dbpool.Query(ctx, "SELECT login_name FROM owners ORDER BY owner_id")
		require.NoError(t, err)
		var logins []string
		for rows.Next() {
			var login string
			require.NoError(t, rows.Scan(&login))
			logins = append(logins, login)
		}
		rows.Close()
		require.NoError(t, rows.Err())

		if baseline == nil {
			baseline = logins
		}
		assert.Equal(t, baseline, logins, "batch_size=%d", batchSize)
		assert.Len(t, logins, 23)
	}
}

func TestFatalRollback_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	dbpool := setupTestDatabase(ctx, t)

	// Successful initial load first.
	okServer := fakeGithub(t, nil)
	coll := newTestCollector(t, dbpool, okServer.URL, 500)
	require.NoError(t, coll.Init(ctx, config.DiscoveryQuery{Name: "test-load", Query: "stars:>1"}))

	// One repository fetch in the update batch hits the rate limit: the
	// whole flow fails and zero snapshot rows are committed, even though
	// the sibling fetches succeeded.
	limitedServer := fakeGithub(t, map[string]bool{"/repos/alice/beta": true})
	limitedColl := newTestCollector(t, dbpool, limitedServer.URL, 500)

	err := limitedColl.Update(ctx)
	require.Error(t, err)
	assert.Equal(t, 0, countRows(ctx, t, dbpool, "owners_snapshots"))
	assert.Equal(t, 0, countRows(ctx, t, dbpool, "repositories_snapshots"))
}
