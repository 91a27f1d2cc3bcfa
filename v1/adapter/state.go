package adapter

import (
	"context"
	"sync"
	"time"
)

// ConnState tracks the shared connection bookkeeping every backend adapter
// carries: the connected flag, the last successful config (for reconnects)
// and health-probe throttling. Backends embed it and guard pool swaps with
// its lock.
type ConnState struct {
	mu              sync.RWMutex
	connected       bool
	cfg             Config
	hasCfg          bool
	lastHealthCheck time.Time
	interval        time.Duration
}

// MarkConnected records a successful Connect with the effective config.
func (s *ConnState) MarkConnected(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = true
	s.cfg = cfg
	s.hasCfg = true
	s.interval = cfg.HealthCheckInterval
	s.lastHealthCheck = time.Now()
}

// MarkClosed clears the connected flag. The last config is kept so a later
// query can reconnect.
func (s *ConnState) MarkClosed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
}

// Connected reports the current flag.
func (s *ConnState) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// LastConfig returns the config of the most recent successful Connect.
func (s *ConnState) LastConfig() (Config, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg, s.hasCfg
}

// ShouldProbe reports whether the health-check interval has elapsed and, if
// so, advances the timestamp so concurrent callers do not all probe.
func (s *ConnState) ShouldProbe() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.interval <= 0 || !s.connected {
		return false
	}
	if time.Since(s.lastHealthCheck) < s.interval {
		return false
	}
	s.lastHealthCheck = time.Now()
	return true
}

// Retry runs attempt up to 1+maxRetries times with linear backoff
// (delay * attempt number between tries). It returns nil on the first
// success and the last failure otherwise. Context cancellation cuts the
// wait short and returns the context error wrapped with the last attempt's
// failure when one exists.
func Retry(ctx context.Context, maxRetries int, delay time.Duration, attempt func(ctx context.Context) error) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if i > 0 {
			select {
			case <-time.After(delay * time.Duration(i)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if lastErr = attempt(ctx); lastErr == nil {
			return nil
		}
	}
	return lastErr
}

// WaitTimeout runs fn and waits at most d for it to finish. It returns
// fn's error, or context.DeadlineExceeded when the bound elapses first.
// fn keeps running on its goroutine after a timeout; callers use this for
// shutdown paths where local state is already clean and a hanging native
// drain must not hold the process.
func WaitTimeout(d time.Duration, fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		return err
	case <-time.After(d):
		return context.DeadlineExceeded
	}
}
