// Package processors holds the query rewrite passes. Logical processors run
// against the entity query before translation; storage processors run
// against the ClickHouse query after it. Both mutate in place and are
// stateless across queries.
package processors

import (
	"context"
	"errors"
	"fmt"

	"github.com/getsentry/snuba/pkg/clickhouse"
	"github.com/getsentry/snuba/pkg/query"
)

type (
	// Logical processors rewrite the entity-level query.
	Logical interface {
		Process(ctx context.Context, q *query.Query, settings query.RequestSettings) error
	}

	// Storage processors rewrite the table-level query.
	Storage interface {
		Process(ctx context.Context, q *clickhouse.Query, settings query.RequestSettings) error
	}

	// Error distinguishes bad input (reported to the caller as theirs to
	// fix) from internal failures.
	Error struct {
		Message    string
		UserFacing bool
	}
)

func (e *Error) Error() string { return e.Message }

// NewUserError reports a problem with the query as submitted.
func NewUserError(format string, args ...any) *Error {
	return &Error{Message: fmt.Sprintf(format, args...), UserFacing: true}
}

// IsUserError reports whether err traces back to caller input.
func IsUserError(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.UserFacing
}
