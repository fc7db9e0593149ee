// internal/errs/errs.go
package errs

import (
	"errors"
	"fmt"
)

// ErrRateLimited marks a server-signaled rate-limit violation. It is fatal
// for the current flow invocation: callers must abort rather than continue
// issuing requests against an exhausted quota.
var ErrRateLimited = errors.New("github api rate limit exceeded")

// ErrInvalidFullName is returned when a repository full name is not in
// 'owner/name' format.
type ErrInvalidFullName struct {
	FullName string
}

func (e *ErrInvalidFullName) Error() string {
	return fmt.Sprintf("invalid repository full name: %q, expected 'owner/name'", e.FullName)
}
