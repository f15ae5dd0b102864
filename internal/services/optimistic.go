package services

import (
	"context"

	"github.com/huangang/scanboard/pkg/logger"
)

// Optimistic describes one local-first mutation. Capture snapshots the fields
// about to change, Apply writes the new values locally, Remote confirms them
// with the backend and Restore puts the snapshot back. Reconcile, when set,
// receives the remote result so an authoritative value can replace the guess.
type Optimistic[S, R any] struct {
	Capture   func() S
	Apply     func() error
	Remote    func(ctx context.Context) (R, error)
	Restore   func(S) error
	Reconcile func(R) error
}

// WithOptimisticUpdate runs op. On remote failure the captured state is
// restored exactly and the remote error is returned. Once the remote call has
// succeeded the update stands: a failing Reconcile is logged and the local
// values are kept.
func WithOptimisticUpdate[S, R any](ctx context.Context, op Optimistic[S, R]) (R, error) {
	var zero R
	prev := op.Capture()

	if err := op.Apply(); err != nil {
		return zero, err
	}

	result, err := op.Remote(ctx)
	if err != nil {
		if rerr := op.Restore(prev); rerr != nil {
			logger.Error().Err(rerr).Msg("optimistic rollback failed")
		}
		return zero, err
	}

	if op.Reconcile != nil {
		if err := op.Reconcile(result); err != nil {
			logger.Warn().Err(err).Msg("optimistic reconcile failed, keeping local values")
		}
	}
	return result, nil
}
