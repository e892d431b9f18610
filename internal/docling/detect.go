package docling

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/rotationalio/oscar/internal/config"
	"github.com/rotationalio/oscar/internal/observability"
)

// Startup check intervals.
const (
	DetectInitialInterval = 500 * time.Millisecond
	DetectMaxInterval     = 5 * time.Second
)

// Detect selects the Converter described by cfg.
//
// With no URL configured it returns Unavailable. Otherwise it pings the
// backend up to cfg.StartupAttempts times with exponential backoff. A backend
// that never answers is still returned, since it may come up later; requests
// made while it is down fail with ErrBackend.
func Detect(ctx context.Context, cfg config.DoclingConfig, logger *observability.Logger) (Converter, error) {
	log := logger.WithComponent("docling")

	if cfg.URL == "" {
		log.Info("document conversion disabled: no docling backend configured")
		return Unavailable{}, nil
	}

	remote, err := NewRemote(cfg.URL, cfg.APIKey, cfg.Timeout)
	if err != nil {
		return nil, err
	}

	attempts := cfg.StartupAttempts
	if attempts < 1 {
		attempts = 1
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = DetectInitialInterval
	policy.MaxInterval = DetectMaxInterval

	notify := func(err error, wait time.Duration) {
		log.Debug("docling backend not ready", zap.Error(err), zap.Duration("retry_in", wait))
	}

	err = backoff.RetryNotify(
		func() error { return remote.Ping(ctx) },
		backoff.WithContext(backoff.WithMaxRetries(policy, uint64(attempts-1)), ctx),
		notify,
	)
	if err != nil {
		log.Warn("docling backend unreachable, conversion requests will fail until it is up",
			zap.String("url", remote.BaseURL),
			zap.Error(err),
		)
		return remote, nil
	}

	log.Info("docling backend available", zap.String("url", remote.BaseURL))
	return remote, nil
}
