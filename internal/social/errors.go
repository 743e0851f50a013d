package social

import (
	"errors"
	"sort"
	"strings"

	"example.com/tweetgraph/internal/validation"
)

var (
	ErrSelfReference      = errors.New("users cannot follow or unfollow themselves")
	ErrAlreadyFollowing   = errors.New("already following this user")
	ErrNotFollowing       = errors.New("not following this user")
	ErrUserNotFound       = errors.New("user not found")
	ErrTweetNotFound      = errors.New("tweet not found")
	ErrForbidden          = errors.New("only the author may delete this tweet")
	ErrInvalidCredentials = errors.New("invalid username or password")
)

// ValidationError carries per-field messages. Err, when set, names the
// underlying rejection so callers can match it with errors.Is.
type ValidationError struct {
	Fields validation.Errors
	Err    error
}

func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.Fields))
	for f := range e.Fields {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return "validation failed: " + strings.Join(fields, ", ")
}

func (e *ValidationError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is one of the not-found errors.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrUserNotFound) || errors.Is(err, ErrTweetNotFound)
}
