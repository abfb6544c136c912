package retry

import (
	"time"

	"github.com/niels/nweb/pkg/config"
)

// FromConfig creates retry options from the application configuration.
// The classifier defaults to IsTransient.
func FromConfig(cfg *config.Config) Options {
	if !cfg.Retry.Enabled {
		return Options{
			MaxRetries:      0,
			IsRetryableFunc: IsTransient,
		}
	}

	return Options{
		MaxRetries:      cfg.Retry.MaxRetries,
		InitialDelay:    time.Duration(cfg.Retry.InitialDelay) * time.Millisecond,
		MaxDelay:        time.Duration(cfg.Retry.MaxDelay) * time.Millisecond,
		BackoffFactor:   cfg.Retry.BackoffFactor,
		JitterFactor:    cfg.Retry.JitterFactor,
		IsRetryableFunc: IsTransient,
	}
}
