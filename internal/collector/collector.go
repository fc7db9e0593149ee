// internal/collector/collector.go
package collector

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github-trends/internal/config"
	"github-trends/internal/errs"
	"github-trends/internal/github"
	"github-trends/internal/model"
	"github-trends/internal/ratelimit"
	"github-trends/internal/storage"
)

// repoPair is one (owner, name) identifier derived from a full name.
type repoPair struct {
	Owner string
	Name  string
}

// Collector composes search discovery, rate-limited concurrent fetching and
// transactional bulk persistence into the init and update flows.
type Collector struct {
	pool    *pgxpool.Pool
	gh      *github.Client
	limiter *ratelimit.Limiter
	logger  *slog.Logger

	batchSize int
	perPage   int
	maxPages  int
}

// New creates a Collector. The limiter is shared across every fetch the
// collector fans out.
func New(pool *pgxpool.Pool, gh *github.Client, limiter *ratelimit.Limiter, logger *slog.Logger, cfg *config.Config) *Collector {
	return &Collector{
		pool:      pool,
		gh:        gh,
		limiter:   limiter,
		logger:    logger,
		batchSize: cfg.BatchSize,
		perPage:   cfg.PerPage,
		maxPages:  cfg.MaxPages,
	}
}

// InitAll runs the discovery+load flow once per configured discovery query,
// sequentially. Each query's load is its own transaction, so a failure in
// one load does not corrupt another's.
func (c *Collector) InitAll(ctx context.Context, queries []config.DiscoveryQuery) error {
	for _, q := range queries {
		if err := c.Init(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

// Init discovers repositories for one named query, fetches owner and
// repository details concurrently under the rate budget, and loads entities
// plus their tracking markers in one transaction.
func (c *Collector) Init(ctx context.Context, q config.DiscoveryQuery) error {
	logger := c.logger.With("query", q.Name)
	logger.Info("Searching repositories", "q", q.Query)

	fullNames, err := c.gh.SearchRepositories(ctx, q.Query, c.perPage, c.maxPages)
	if err != nil {
		return err
	}
	logger.Info("Search finished", "full_names", len(fullNames))

	pairs, uniqueOwners := c.splitFullNames(fullNames)
	logger.Info("Derived fetch targets", "repositories", len(pairs), "unique_owners", len(uniqueOwners))

	logger.Info("Fetching owners")
	owners, err := gather(ctx, c.limiter, uniqueOwners, c.gh.FetchOwner)
	if err != nil {
		return err
	}

	logger.Info("Fetching repositories")
	repos, err := gather(ctx, c.limiter, pairs, func(ctx context.Context, p repoPair) (*model.Repository, error) {
		return c.gh.FetchRepository(ctx, p.Owner, p.Name)
	})
	if err != nil {
		return err
	}
	logger.Info("Fetch stage finished", "owners", len(owners), "repositories", len(repos))

	now := time.Now().UTC()
	tracked := make([]model.TrackedRepository, len(repos))
	for i, r := range repos {
		tracked[i] = model.TrackedRepository{
			RepoID:            r.RepoID,
			TrackingStartedAt: now,
			Reason:            q.Name,
		}
	}

	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // Rollback is a no-op if the transaction is already committed.

	st := storage.New(tx, c.batchSize)
	if err := st.BulkInsertOwners(ctx, owners); err != nil {
		return err
	}
	if err := st.BulkInsertRepositories(ctx, repos); err != nil {
		return err
	}
	if err := st.BulkInsertTrackedRepositories(ctx, tracked); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	logger.Info("Initial load committed", "owners", len(owners), "repositories", len(repos))
	return nil
}

// Update refreshes snapshots for the whole watch set: one owner snapshot per
// unique owner and one repository snapshot per tracked repository, persisted
// in a single transaction.
func (c *Collector) Update(ctx context.Context) error {
	st := storage.New(c.pool, c.batchSize)
	fullNames, err := st.TrackedFullNames(ctx)
	if err != nil {
		return err
	}
	pairs, uniqueOwners := c.splitFullNames(fullNames)
	c.logger.Info("Refreshing watch set", "repositories", len(pairs), "unique_owners", len(uniqueOwners))

	// One observation time per invocation keeps the composite snapshot key
	// deterministic across the batch.
	collectedAt := time.Now().UTC().Truncate(time.Second)

	c.logger.Info("Fetching owner snapshots")
	ownerSnaps, err := gather(ctx, c.limiter, uniqueOwners, func(ctx context.Context, login string) (*model.OwnerSnapshot, error) {
		return c.gh.FetchOwnerSnapshot(ctx, login, collectedAt)
	})
	if err != nil {
		return err
	}

	c.logger.Info("Fetching repository snapshots")
	repoSnaps, err := gather(ctx, c.limiter, pairs, func(ctx context.Context, p repoPair) (*model.RepositorySnapshot, error) {
		return c.gh.FetchRepositorySnapshot(ctx, p.Owner, p.Name, collectedAt)
	})
	if err != nil {
		return err
	}

	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	txStore := storage.New(tx, c.batchSize)
	if err := txStore.BulkInsertOwnerSnapshots(ctx, ownerSnaps); err != nil {
		return err
	}
	if err := txStore.BulkInsertRepositorySnapshots(ctx, repoSnaps); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	c.logger.Info("Snapshot refresh committed",
		"collected_at", collectedAt,
		"owner_snapshots", len(ownerSnaps),
		"repository_snapshots", len(repoSnaps))
	return nil
}

// splitFullNames parses 'owner/name' identifiers into deduplicated
// (owner, name) pairs and the set of unique owners, both in first-seen
// order. A malformed full name is a recoverable per-item failure.
func (c *Collector) splitFullNames(fullNames []string) ([]repoPair, []string) {
	seenPairs := make(map[repoPair]struct{}, len(fullNames))
	seenOwners := make(map[string]struct{})

	var pairs []repoPair
	var owners []string
	for _, fullName := range fullNames {
		owner, name, ok := strings.Cut(fullName, "/")
		if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
			c.logger.Warn("Skipping identifier", "error", &errs.ErrInvalidFullName{FullName: fullName})
			continue
		}

		pair := repoPair{Owner: owner, Name: name}
		if _, ok := seenPairs[pair]; ok {
			continue
		}
		seenPairs[pair] = struct{}{}
		pairs = append(pairs, pair)

		if _, ok := seenOwners[owner]; !ok {
			seenOwners[owner] = struct{}{}
			owners = append(owners, owner)
		}
	}
	return pairs, owners
}

// gather fans out one rate-limited fetch per input and collects the non-nil
// records. Results correlate to inputs positionally; nil records (items
// unavailable this cycle) are filtered out. The first fatal error cancels
// the group context and propagates; in-flight siblings finish on their own.
func gather[In any, R any](ctx context.Context, limiter *ratelimit.Limiter, inputs []In, fetch func(context.Context, In) (*R, error)) ([]R, error) {
	results := make([]*R, len(inputs))

	g, gctx := errgroup.WithContext(ctx)
	for i, in := range inputs {
		i, in := i, in
		g.Go(func() error {
			if err := limiter.Wait(gctx); err != nil {
				return err
			}
			rec, err := fetch(gctx, in)
			if err != nil {
				return err
			}
			results[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	records := make([]R, 0, len(results))
	for _, rec := range results {
		if rec != nil {
			records = append(records, *rec)
		}
	}
	return records, nil
}
