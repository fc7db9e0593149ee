// internal/github/client.go
package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v62/github"
	"golang.org/x/oauth2"

	"github-trends/internal/errs"
	"github-trends/internal/model"
)

const (
	connectTimeout = 3 * time.Second
	requestTimeout = 10 * time.Second

	// lowQuotaWatermark is the remaining-quota level below which a warning
	// is logged. The client never throttles on it; only an actual
	// rate-limit response aborts a run.
	lowQuotaWatermark = 50

	defaultBaseURL = "https://api.github.com"
)

// Client is a wrapper around the go-github client. It translates API
// responses into internal models and classifies failures: a rate-limit
// response is fatal and propagates, every other per-item failure is logged
// and reported as a nil record.
type Client struct {
	gh     *github.Client
	logger *slog.Logger
}

// NewClient creates and configures a new Client instance.
// The provided token is used to create an authenticated http.Client with a
// bounded connect and total request timeout.
func NewClient(baseURL, token string, logger *slog.Logger) (*Client, error) {
	base := &http.Transport{
		DialContext: (&net.Dialer{Timeout: connectTimeout}).DialContext,
	}
	httpClient := &http.Client{
		Timeout: requestTimeout,
		Transport: &oauth2.Transport{
			Base:   base,
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}),
		},
	}

	gh := github.NewClient(httpClient)
	if baseURL != "" && baseURL != defaultBaseURL {
		var err error
		gh, err = gh.WithEnterpriseURLs(baseURL, baseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid API base URL %q: %w", baseURL, err)
		}
	}

	return &Client{gh: gh, logger: logger}, nil
}

// OverrideBaseURL points the client at an arbitrary base URL without the
// enterprise path rewriting. Test support.
func (c *Client) OverrideBaseURL(raw string) error {
	if !strings.HasSuffix(raw, "/") {
		raw += "/"
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	c.gh.BaseURL = u
	return nil
}

// SearchPage fetches one page of repository search results and returns the
// full names it carries plus a short-read flag (fewer items than perPage
// means the result set is exhausted). A recoverable page failure is reported
// as an empty short read; only a rate-limit failure returns an error.
func (c *Client) SearchPage(ctx context.Context, query, sort, order string, perPage, page int) ([]string, bool, error) {
	opts := &github.SearchOptions{
		Sort:  sort,
		Order: order,
		ListOptions: github.ListOptions{
			PerPage: perPage,
			Page:    page,
		},
	}
	result, resp, err := c.gh.Search.Repositories(ctx, query, opts)
	c.observeQuota(resp)
	if err != nil {
		return nil, true, c.classify("/search/repositories", err)
	}

	fullNames := make([]string, 0, len(result.Repositories))
	for _, repo := range result.Repositories {
		if repo.GetFullName() != "" {
			fullNames = append(fullNames, repo.GetFullName())
		}
	}
	return fullNames, len(result.Repositories) < perPage, nil
}

// FetchOwner fetches owner details. Returns (nil, nil) when the owner is
// unavailable this cycle.
func (c *Client) FetchOwner(ctx context.Context, login string) (*model.Owner, error) {
	endpoint := "/users/" + login
	user, resp, err := c.gh.Users.Get(ctx, login)
	c.observeQuota(resp)
	if err != nil {
		return nil, c.classify(endpoint, err)
	}

	owner, err := toOwner(user)
	if err != nil {
		c.logger.Warn("Discarding malformed owner record", "endpoint", endpoint, "error", err)
		return nil, nil
	}
	return owner, nil
}

// FetchRepository fetches the descriptive repository record. Returns
// (nil, nil) when the repository is unavailable this cycle.
func (c *Client) FetchRepository(ctx context.Context, owner, name string) (*model.Repository, error) {
	endpoint := "/repos/" + owner + "/" + name
	repo, resp, err := c.gh.Repositories.Get(ctx, owner, name)
	c.observeQuota(resp)
	if err != nil {
		return nil, c.classify(endpoint, err)
	}

	rec, err := toRepository(repo)
	if err != nil {
		c.logger.Warn("Discarding malformed repository record", "endpoint", endpoint, "error", err)
		return nil, nil
	}
	return rec, nil
}

// FetchOwnerSnapshot fetches only the volatile owner metrics, stamped with
// the caller-supplied observation time.
func (c *Client) FetchOwnerSnapshot(ctx context.Context, login string, collectedAt time.Time) (*model.OwnerSnapshot, error) {
	endpoint := "/users/" + login
	user, resp, err := c.gh.Users.Get(ctx, login)
	c.observeQuota(resp)
	if err != nil {
		return nil, c.classify(endpoint, err)
	}
	if user.GetID() == 0 {
		c.logger.Warn("Discarding malformed owner snapshot", "endpoint", endpoint)
		return nil, nil
	}

	return &model.OwnerSnapshot{
		OwnerID:     user.GetID(),
		CollectedAt: collectedAt,
		Followers:   user.GetFollowers(),
		PublicRepos: user.GetPublicRepos(),
	}, nil
}

// FetchRepositorySnapshot fetches only the volatile repository metrics,
// stamped with the caller-supplied observation time.
func (c *Client) FetchRepositorySnapshot(ctx context.Context, owner, name string, collectedAt time.Time) (*model.RepositorySnapshot, error) {
	endpoint := "/repos/" + owner + "/" + name
	repo, resp, err := c.gh.Repositories.Get(ctx, owner, name)
	c.observeQuota(resp)
	if err != nil {
		return nil, c.classify(endpoint, err)
	}
	if repo.GetID() == 0 {
		c.logger.Warn("Discarding malformed repository snapshot", "endpoint", endpoint)
		return nil, nil
	}

	return &model.RepositorySnapshot{
		RepoID:      repo.GetID(),
		CollectedAt: collectedAt,
		Stars:       repo.GetStargazersCount(),
		Forks:       repo.GetForksCount(),
		Watchers:    repo.GetSubscribersCount(),
		OpenIssues:  repo.GetOpenIssuesCount(),
		SizeKB:      repo.GetSize(),
		PushedAt:    repo.GetPushedAt().Time,
	}, nil
}

// classify sorts a fetch failure into the two-level taxonomy. A rate-limit
// response comes back wrapped in errs.ErrRateLimited and must abort the run;
// anything else is logged and absorbed (nil), dropping the single item.
func (c *Client) classify(endpoint string, err error) error {
	var rateErr *github.RateLimitError
	var abuseErr *github.AbuseRateLimitError
	var respErr *github.ErrorResponse

	switch {
	case errors.As(err, &rateErr), errors.As(err, &abuseErr):
		c.logger.Error("GitHub API rate limit exceeded", "endpoint", endpoint, "error", err)
		return fmt.Errorf("%s: %w", endpoint, errs.ErrRateLimited)
	case errors.As(err, &respErr) && respErr.Response != nil && respErr.Response.StatusCode == http.StatusForbidden:
		c.logger.Error("GitHub API request forbidden", "endpoint", endpoint, "error", err)
		return fmt.Errorf("%s: %w", endpoint, errs.ErrRateLimited)
	default:
		c.logger.Warn("GitHub fetch failed, item unavailable this cycle", "endpoint", endpoint, "error", err)
		return nil
	}
}

// observeQuota surfaces the server-reported remaining quota when it falls
// below the low-water mark.
func (c *Client) observeQuota(resp *github.Response) {
	if resp == nil || resp.Rate.Limit == 0 {
		return
	}
	if resp.Rate.Remaining < lowQuotaWatermark {
		c.logger.Warn("GitHub API quota running low",
			"remaining", resp.Rate.Remaining,
			"limit", resp.Rate.Limit,
			"reset", resp.Rate.Reset.Time)
	}
}

// toOwner translates a github.User object to our internal model.Owner.
func toOwner(u *github.User) (*model.Owner, error) {
	if u.GetID() == 0 || u.GetLogin() == "" {
		return nil, errors.New("owner record missing id or login")
	}
	return &model.Owner{
		OwnerID:   u.GetID(),
		LoginName: u.GetLogin(),
		OwnerType: u.GetType(),
		CreatedAt: u.GetCreatedAt().Time,
	}, nil
}

// toRepository translates a github.Repository object to our internal
// model.Repository.
func toRepository(r *github.Repository) (*model.Repository, error) {
	if r.GetID() == 0 || r.GetFullName() == "" {
		return nil, errors.New("repository record missing id or full name")
	}

	var ownerID *int64
	if r.GetOwner().GetID() != 0 {
		id := r.GetOwner().GetID()
		ownerID = &id
	}

	return &model.Repository{
		RepoID:         r.GetID(),
		OwnerID:        ownerID,
		FullName:       r.GetFullName(),
		HTMLURL:        r.GetHTMLURL(),
		RepoLanguage:   r.Language,
		CreatedAt:      r.GetCreatedAt().Time,
		UpdatedAt:      r.GetUpdatedAt().Time,
		PushedAt:       r.GetPushedAt().Time,
		SizeKB:         r.GetSize(),
		IsFork:         r.GetFork(),
		HasIssues:      r.GetHasIssues(),
		HasWiki:        r.GetHasWiki(),
		HasDownloads:   r.GetHasDownloads(),
		HasPages:       r.GetHasPages(),
		HasDiscussions: r.GetHasDiscussions(),
	}, nil
}
