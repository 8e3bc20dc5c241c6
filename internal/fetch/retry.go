package fetch

import (
	"context"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sirupsen/logrus"
)

const (
	backoffMultiplier  = 2
	backoffMaxInterval = 30 * time.Second
)

// Retry 在网络错误时按指数退避重试，只作用于无请求体的幂等请求。
// 状态码错误不重试：上游已经给出了明确答复。重试用尽后返回最后一次的错误。
type Retry struct {
	next       Fetcher
	maxRetries int
	backoff    time.Duration
	logger     *logrus.Logger
	// notify 在每次等待前调用，参数为本次失败与即将等待的时长。
	notify func(err error, wait time.Duration)
}

// WithRetry 包装 next；maxRetries 为 0 时直接返回 next。
func WithRetry(next Fetcher, maxRetries int, initialBackoff time.Duration, logger *logrus.Logger) Fetcher {
	if maxRetries <= 0 {
		return next
	}
	return &Retry{
		next:       next,
		maxRetries: maxRetries,
		backoff:    initialBackoff,
		logger:     logger,
	}
}

// Fetch 实现 Fetcher。
func (r *Retry) Fetch(ctx context.Context, req *http.Request) (*http.Response, error) {
	if req.Body != nil && req.Body != http.NoBody {
		return r.next.Fetch(ctx, req)
	}

	attempt := 0
	operation := func() (*http.Response, error) {
		attempt++
		resp, err := r.next.Fetch(ctx, req)
		if err != nil && ctx.Err() != nil {
			return nil, backoff.Permanent(err)
		}
		return resp, err
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(r.newBackOff()),
		backoff.WithMaxTries(uint(r.maxRetries+1)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, wait time.Duration) {
			if r.logger != nil {
				r.logger.WithError(err).WithFields(logrus.Fields{
					"action":  "fetch_retry",
					"url":     req.URL.String(),
					"attempt": attempt,
					"wait":    wait.String(),
				}).Warn("network fetch failed")
			}
			if r.notify != nil {
				r.notify(err, wait)
			}
		}),
	)
}

func (r *Retry) newBackOff() *backoff.ExponentialBackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     r.backoff,
		RandomizationFactor: 0,
		Multiplier:          backoffMultiplier,
		MaxInterval:         backoffMaxInterval,
	}
	b.Reset()
	return b
}
