package resilience

import (
	"time"
)

// FromRetryConfig converts config values (in seconds) to a RetryConfig
// that retries every error without jitter.
func FromRetryConfig(maxAttempts, initialBackoffSecs int, multiplier float64) RetryConfig {
	cfg := RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 5 * time.Second,
		MaxBackoff:     5 * time.Minute,
		Multiplier:     2.0,
		ShouldRetry:    AlwaysRetry,
	}
	if maxAttempts > 0 {
		cfg.MaxAttempts = maxAttempts
	}
	if initialBackoffSecs > 0 {
		cfg.InitialBackoff = time.Duration(initialBackoffSecs) * time.Second
	}
	if multiplier > 0 {
		cfg.Multiplier = multiplier
	}
	return cfg
}

// FromCircuitConfig converts config values to a CircuitBreakerConfig.
// A zero threshold disables the breaker and returns ok=false.
func FromCircuitConfig(failureThreshold, resetTimeoutSecs int) (cfg CircuitBreakerConfig, ok bool) {
	if failureThreshold <= 0 {
		return CircuitBreakerConfig{}, false
	}
	cfg = DefaultCircuitBreakerConfig()
	cfg.FailureThreshold = failureThreshold
	if resetTimeoutSecs > 0 {
		cfg.ResetTimeout = time.Duration(resetTimeoutSecs) * time.Second
	}
	return cfg, true
}
