package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/surrealdb/surrealdb.go"
)

var (
	// ErrAlreadyExists indicates a record with the same ID already exists.
	ErrAlreadyExists = errors.New("record already exists")

	// ErrTransactionConflict is returned when concurrent imports flip the
	// current flag of the same dataset. MarkCurrent retries it.
	ErrTransactionConflict = errors.New("transaction conflict")
)

// conflictAttempts bounds retries of conflicting transactions.
const conflictAttempts = 5

// wrapQueryError maps known SurrealDB query errors onto the sentinels above.
// Other errors are returned unchanged.
func wrapQueryError(err error) error {
	if err == nil {
		return nil
	}

	var queryErr *surrealdb.QueryError
	if !errors.As(err, &queryErr) {
		return err
	}
	switch msg := queryErr.Message; {
	case strings.Contains(msg, "already exists"):
		return fmt.Errorf("%w: %s", ErrAlreadyExists, msg)
	case strings.Contains(msg, "Transaction conflict"):
		return fmt.Errorf("%w: %s", ErrTransactionConflict, msg)
	}
	return err
}

// retryConflicts runs op again while it fails with ErrTransactionConflict.
func retryConflicts(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 20 * time.Millisecond
	b.MaxInterval = 500 * time.Millisecond

	return backoff.Retry(func() error {
		err := wrapQueryError(op())
		if err != nil && !errors.Is(err, ErrTransactionConflict) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(b, conflictAttempts-1), ctx))
}
