package instrument

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
)

// RetryPolicy says how often and how patiently a timed-out exchange is
// repeated.
type RetryPolicy struct {
	Attempts int
	Initial  time.Duration
	Max      time.Duration
}

func (p RetryPolicy) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if p.Initial > 0 {
		b.InitialInterval = p.Initial
	}
	if p.Max > 0 {
		b.MaxInterval = p.Max
	}
	return b
}

type retryConn struct {
	conn   Conn
	policy RetryPolicy
	logger zerolog.Logger
}

// WithRetry wraps conn so that Write and Query are repeated with exponential
// backoff while they time out. Other errors, and cancellation of the
// caller's context, end the exchange at once.
func WithRetry(conn Conn, policy RetryPolicy, logger zerolog.Logger) Conn {
	if policy.Attempts < 1 {
		policy.Attempts = 1
	}
	return &retryConn{conn: conn, policy: policy, logger: logger}
}

func (r *retryConn) Write(ctx context.Context, cmd string) error {
	_, err := retry(ctx, r, cmd, func() (struct{}, error) {
		return struct{}{}, r.conn.Write(ctx, cmd)
	})
	return err
}

func (r *retryConn) Query(ctx context.Context, cmd string) (string, error) {
	return retry(ctx, r, cmd, func() (string, error) {
		return r.conn.Query(ctx, cmd)
	})
}

func (r *retryConn) Close() error {
	return r.conn.Close()
}

func retry[T any](ctx context.Context, r *retryConn, cmd string, op func() (T, error)) (T, error) {
	attempt := 0
	return backoff.Retry(ctx, func() (T, error) {
		attempt++
		v, err := op()
		if err == nil {
			return v, nil
		}
		if !IsTimeout(err) {
			return v, backoff.Permanent(err)
		}
		r.logger.Warn().Err(err).Str("cmd", cmd).Int("attempt", attempt).Msg("instrument timed out")
		return v, err
	},
		backoff.WithBackOff(r.policy.backOff()),
		backoff.WithMaxTries(uint(r.policy.Attempts)),
	)
}
