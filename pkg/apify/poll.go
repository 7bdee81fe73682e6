package apify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const (
	defaultPollInterval = 10 * time.Second
	defaultPollTimeout  = 10 * time.Minute
)

// PollOption configures polling behavior.
type PollOption func(*pollConfig)

type pollConfig struct {
	interval time.Duration
	timeout  time.Duration
}

// WithPollInterval overrides the poll interval.
func WithPollInterval(d time.Duration) PollOption {
	return func(c *pollConfig) {
		c.interval = d
	}
}

// WithPollTimeout overrides the default timeout (applied only if the parent
// context has no deadline).
func WithPollTimeout(d time.Duration) PollOption {
	return func(c *pollConfig) {
		c.timeout = d
	}
}

// PollRun polls GetRun until the run reaches a terminal state or the context
// expires. Transient poll errors are logged and retried on the next tick;
// credential and not-found errors (401/403/404) abort immediately.
func PollRun(ctx context.Context, client Client, runID string, opts ...PollOption) (*ActorRun, error) {
	cfg := pollConfig{
		interval: defaultPollInterval,
		timeout:  defaultPollTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.timeout)
		defer cancel()
	}

	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil, eris.Wrap(ctx.Err(), fmt.Sprintf("apify: poll run %s", runID))
		case <-time.After(cfg.interval):
		}

		run, err := client.GetRun(ctx, runID)
		if err != nil {
			if fatal, code := fatalPollError(err); fatal {
				return nil, eris.Wrap(err, fmt.Sprintf("apify: poll run %s: fatal API error %d", runID, code))
			}
			if ctx.Err() != nil {
				return nil, eris.Wrap(ctx.Err(), fmt.Sprintf("apify: poll run %s", runID))
			}
			zap.L().Warn("apify: poll error, retrying",
				zap.String("run_id", runID),
				zap.Error(err),
			)
			continue
		}

		zap.L().Debug("apify: run status",
			zap.String("run_id", runID),
			zap.String("status", run.Status),
			zap.Duration("elapsed", time.Since(start)),
		)

		if TerminalStatus(run.Status) {
			return run, nil
		}
	}
}

// fatalPollError reports whether err is a non-retryable API error and, if
// so, its status code. Bad credentials and missing runs never recover.
func fatalPollError(err error) (bool, int) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 401, 403, 404:
			return true, apiErr.StatusCode
		}
	}
	return false, 0
}
