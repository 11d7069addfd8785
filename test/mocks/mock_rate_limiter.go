package mocks

import (
	"context"
	"sync"

	"github.com/recurpay/billing-gateway/internal/domain/ports"
)

// MockRateLimiter is a scriptable ports.RateLimiter. Decision and Err
// are returned as-is; identifiers are recorded for assertion.
type MockRateLimiter struct {
	mu       sync.Mutex
	Decision ports.RateDecision
	Err      error
	calls    []string
}

// NewMockRateLimiter allows everything by default
func NewMockRateLimiter() *MockRateLimiter {
	return &MockRateLimiter{
		Decision: ports.RateDecision{Allowed: true, Remaining: 10},
	}
}

// IsAllowed implements ports.RateLimiter
func (m *MockRateLimiter) IsAllowed(ctx context.Context, identifier string, limitPerHour, burst int) (ports.RateDecision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, identifier)
	return m.Decision, m.Err
}

// Calls returns the identifiers checked so far
func (m *MockRateLimiter) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}
