package auth

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrClientLocked is returned when a client address is locked out due to
	// too many failed logons.
	ErrClientLocked = errors.New("client locked out")

	// ErrTrackerUnavailable is returned when the tracker backend cannot be reached.
	ErrTrackerUnavailable = errors.New("failure tracker backend unavailable")
)

const (
	// DefaultMaxFailures is the number of failed logons allowed per address
	// before it is locked out.
	DefaultMaxFailures = 5

	// DefaultLockoutDuration is how long an address stays locked.
	DefaultLockoutDuration = 60 * time.Second

	// CleanupThreshold is how long to keep trackers for inactive addresses.
	CleanupThreshold = 5 * time.Minute

	// CleanupIntervalRateLimit is how often inactive trackers are purged.
	CleanupIntervalRateLimit = 2 * time.Minute
)

//go:generate go tool mockgen -source=ratelimit.go -destination=mock_ratelimit.go -package=auth

// FailureTracker counts failed logons per client address and reports lockouts.
type FailureTracker interface {
	// Check returns ErrClientLocked and the remaining lockout while the
	// address is locked.
	Check(ctx context.Context, clientIP string) (time.Duration, error)

	// RecordFailure counts a failed logon and returns the failure count.
	RecordFailure(ctx context.Context, clientIP string) (int, error)

	// Reset clears the failures for an address after a successful logon.
	Reset(ctx context.Context, clientIP string) error

	// Close releases background resources.
	Close() error
}

// TrackerConfig configures lockout thresholds.
type TrackerConfig struct {
	MaxFailures     int
	LockoutDuration time.Duration
}

func (c TrackerConfig) withDefaults() TrackerConfig {
	if c.MaxFailures <= 0 {
		c.MaxFailures = DefaultMaxFailures
	}
	if c.LockoutDuration <= 0 {
		c.LockoutDuration = DefaultLockoutDuration
	}
	return c
}

// AttemptTracker tracks failed logons for a single client address.
type AttemptTracker struct {
	Count       int       // Number of consecutive failed attempts
	LastFailed  time.Time // Timestamp of last failed attempt
	LockedUntil time.Time // Timestamp when lockout expires (zero if not locked)
}

// IsLocked returns true if the client is currently locked out.
func (at *AttemptTracker) IsLocked() bool {
	return time.Now().Before(at.LockedUntil)
}

// TimeUntilUnlock returns the duration until the lockout expires.
// Returns 0 if not locked.
func (at *AttemptTracker) TimeUntilUnlock() time.Duration {
	if !at.IsLocked() {
		return 0
	}
	return time.Until(at.LockedUntil)
}

// MemoryTracker is an in-process FailureTracker with background cleanup.
type MemoryTracker struct {
	mu       sync.RWMutex
	attempts map[string]*AttemptTracker // key: client IP address
	config   TrackerConfig
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewMemoryTracker creates a tracker and starts its cleanup goroutine.
func NewMemoryTracker(cfg TrackerConfig) *MemoryTracker {
	mt := &MemoryTracker{
		attempts: make(map[string]*AttemptTracker),
		config:   cfg.withDefaults(),
		stopCh:   make(chan struct{}),
	}

	go mt.cleanupInactiveClients()

	return mt
}

// Check implements FailureTracker.
func (mt *MemoryTracker) Check(_ context.Context, clientIP string) (time.Duration, error) {
	mt.mu.RLock()
	defer mt.mu.RUnlock()

	tracker, exists := mt.attempts[clientIP]
	if !exists {
		return 0, nil
	}

	if tracker.IsLocked() {
		return tracker.TimeUntilUnlock(), ErrClientLocked
	}

	return 0, nil
}

// RecordFailure implements FailureTracker. Reaching MaxFailures starts a
// lockout; the count keeps growing while locked.
func (mt *MemoryTracker) RecordFailure(_ context.Context, clientIP string) (int, error) {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	tracker, exists := mt.attempts[clientIP]
	if !exists {
		tracker = &AttemptTracker{}
		mt.attempts[clientIP] = tracker
	}

	// An expired lockout starts a fresh window.
	if !tracker.LockedUntil.IsZero() && !tracker.IsLocked() {
		tracker.Count = 0
		tracker.LockedUntil = time.Time{}
	}

	tracker.Count++
	tracker.LastFailed = time.Now()

	if tracker.Count >= mt.config.MaxFailures {
		tracker.LockedUntil = time.Now().Add(mt.config.LockoutDuration)
	}

	return tracker.Count, nil
}

// Reset implements FailureTracker.
func (mt *MemoryTracker) Reset(_ context.Context, clientIP string) error {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	delete(mt.attempts, clientIP)
	return nil
}

// GetAttemptCount returns the current failure count for a client address.
func (mt *MemoryTracker) GetAttemptCount(clientIP string) int {
	mt.mu.RLock()
	defer mt.mu.RUnlock()

	tracker, exists := mt.attempts[clientIP]
	if !exists {
		return 0
	}
	return tracker.Count
}

// GetTrackedClientCount returns the number of addresses currently tracked.
func (mt *MemoryTracker) GetTrackedClientCount() int {
	mt.mu.RLock()
	defer mt.mu.RUnlock()

	return len(mt.attempts)
}

// Close stops the background cleanup goroutine.
func (mt *MemoryTracker) Close() error {
	mt.stopOnce.Do(func() { close(mt.stopCh) })
	return nil
}

func (mt *MemoryTracker) cleanupInactiveClients() {
	ticker := time.NewTicker(CleanupIntervalRateLimit)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			mt.performCleanup()
		case <-mt.stopCh:
			return
		}
	}
}

func (mt *MemoryTracker) performCleanup() {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	cutoff := time.Now().Add(-CleanupThreshold)

	for clientIP, tracker := range mt.attempts {
		if tracker.LastFailed.Before(cutoff) && !tracker.IsLocked() {
			delete(mt.attempts, clientIP)
		}
	}
}
