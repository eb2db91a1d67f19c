// Package health aggregates readiness checks for the service.
package health

import (
	"context"
	"fmt"
)

// Pinger checks row store connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PreloadChecker reports whether hash reference data finished loading.
type PreloadChecker interface {
	Ready() bool
}

// Service runs the readiness checks.
type Service struct {
	store   Pinger
	preload PreloadChecker
}

// New creates a health service.
func New(store Pinger, preload PreloadChecker) *Service {
	return &Service{store: store, preload: preload}
}

// Check returns nil when the service can serve traffic.
func (s *Service) Check(ctx context.Context) error {
	if s.store != nil {
		if err := s.store.Ping(ctx); err != nil {
			return fmt.Errorf("row store: %w", err)
		}
	}
	if s.preload != nil && !s.preload.Ready() {
		return fmt.Errorf("hash reference data not loaded")
	}
	return nil
}
