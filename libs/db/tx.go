package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5"
)

// ErrRetriesExhausted wraps the last conflict error once every attempt has failed.
var ErrRetriesExhausted = errors.New("transaction retries exhausted")

type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts: 5,
	BaseDelay:   10 * time.Millisecond,
	MaxDelay:    250 * time.Millisecond,
}

// Retry runs fn until it succeeds, returns a non-retryable error, or runs out of attempts.
func Retry(ctx context.Context, policy RetryPolicy, retryable func(error) bool, fn func(context.Context) error) error {
	if policy.MaxAttempts <= 0 {
		policy = DefaultRetryPolicy
	}
	b := backoff.NewExponentialBackOff()
	if policy.BaseDelay > 0 {
		b.InitialInterval = policy.BaseDelay
	}
	if policy.MaxDelay > 0 {
		b.MaxInterval = policy.MaxDelay
	}

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := fn(ctx)
		if err != nil && !retryable(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(uint(policy.MaxAttempts)))
	if err == nil {
		return nil
	}

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Err
	}
	if retryable(err) {
		return fmt.Errorf("%w: %w", ErrRetriesExhausted, err)
	}
	return err
}

// InSerializableTx runs fn inside a SERIALIZABLE transaction and retries serialization failures.
func (p *Pool) InSerializableTx(ctx context.Context, policy RetryPolicy, fn func(context.Context, pgx.Tx) error) error {
	return Retry(ctx, policy, IsSerializationFailure, func(ctx context.Context) error {
		return pgx.BeginTxFunc(ctx, p.Pool, pgx.TxOptions{IsoLevel: pgx.Serializable}, func(tx pgx.Tx) error {
			return fn(ctx, tx)
		})
	})
}
