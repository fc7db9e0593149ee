// internal/github/search.go
package github

import "context"

const (
	searchSort  = "stars"
	searchOrder = "desc"
)

// SearchRepositories pages through search results for query, accumulating
// repository full names. Pages are issued sequentially because page N's
// existence is unknown until page N-1 returns. A short read or a recoverable
// page failure ends pagination with the names gathered so far; only a
// rate-limit failure is returned as an error.
//
// Duplicate full names are preserved; deduplication is the collector's job.
func (c *Client) SearchRepositories(ctx context.Context, query string, perPage, maxPages int) ([]string, error) {
	var all []string
	for page := 1; page <= maxPages; page++ {
		c.logger.Debug("Fetching search page", "query", query, "page", page)

		names, shortRead, err := c.SearchPage(ctx, query, searchSort, searchOrder, perPage, page)
		if err != nil {
			return nil, err
		}
		all = append(all, names...)
		if shortRead {
			break
		}
	}
	return all, nil
}
