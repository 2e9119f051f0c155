package dbretry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"
)

const (
	maxElapsedTime  = 15 * time.Second
	initialInterval = 250 * time.Millisecond
	maxInterval     = 3 * time.Second
	maxRetries      = uint64(4)
)

// retryableClasses lists the SQLSTATE classes that indicate a transient failure.
var retryableClasses = map[string]struct{}{
	"08": {}, // connection exception
	"40": {}, // transaction rollback (serialization failure, deadlock)
	"53": {}, // insufficient resources
	"57": {}, // operator intervention (shutdown, cannot connect now)
}

// retryableCodes lists individual SQLSTATE codes outside those classes.
var retryableCodes = map[string]struct{}{
	"55P03": {}, // lock_not_available
	"55006": {}, // object_in_use
}

// IsRetryableError reports whether the operation that produced err may
// succeed if attempted again.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	// Caller gave up, retrying would only fail again
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	if errors.Is(err, sql.ErrNoRows) || errors.Is(err, sql.ErrTxDone) {
		return false
	}

	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		code := pgErr.Field('C')
		if _, ok := retryableCodes[code]; ok {
			return true
		}

		if len(code) >= 2 {
			_, ok := retryableClasses[code[:2]]
			return ok
		}

		return false
	}

	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

// newBackOff builds the retry schedule shared by all operations.
func newBackOff(ctx context.Context) backoff.BackOffContext {
	return backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(
		backoff.WithMaxElapsedTime(maxElapsedTime),
		backoff.WithInitialInterval(initialInterval),
		backoff.WithMaxInterval(maxInterval),
	), maxRetries), ctx)
}

// Operation runs a database operation returning a value, retrying transient failures.
func Operation[T any](ctx context.Context, operation func(context.Context) (T, error)) (T, error) {
	return backoff.RetryWithData(func() (T, error) {
		result, err := operation(ctx)
		if err != nil && !IsRetryableError(err) {
			return result, backoff.Permanent(err)
		}

		return result, err
	}, newBackOff(ctx))
}

// NoResult runs a database operation without a result, retrying transient failures.
func NoResult(ctx context.Context, operation func(context.Context) error) error {
	_, err := Operation(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, operation(ctx)
	})

	return err
}

// Transaction runs fn inside a transaction, retrying the whole transaction
// on transient failures.
func Transaction(ctx context.Context, db *bun.DB, fn func(context.Context, bun.Tx) error) error {
	err := NoResult(ctx, func(ctx context.Context) error {
		return db.RunInTx(ctx, nil, fn)
	})
	if err != nil {
		return fmt.Errorf("transaction failed: %w", err)
	}

	return nil
}
