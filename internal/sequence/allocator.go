package sequence

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Store opens an atomic unit exposing the counter primitive.
type Store interface {
	WithCounter(ctx context.Context, fn func(context.Context, Counter) error) error
}

// Allocator hands out ids in their own atomic unit. The checkout path does
// not use it; it calls Claim inside the transaction that inserts the header.
type Allocator struct {
	store Store
	loc   *time.Location
	clock func() time.Time
}

// NewAllocator builds an Allocator that derives business dates in loc.
func NewAllocator(store Store, loc *time.Location) *Allocator {
	if loc == nil {
		loc = time.Local
	}
	return &Allocator{store: store, loc: loc, clock: time.Now}
}

// Next allocates the next id for the business date of at; a zero at means now.
func (a *Allocator) Next(ctx context.Context, at time.Time) (string, error) {
	if at.IsZero() {
		at = a.clock()
	}
	key := DateKey(at, a.loc)
	var id string
	err := a.store.WithCounter(ctx, func(ctx context.Context, c Counter) error {
		claimed, err := Claim(ctx, c, key)
		if err != nil {
			return err
		}
		id = claimed
		return nil
	})
	switch {
	case err == nil:
		return id, nil
	case errors.Is(err, ErrSequenceExhausted), errors.Is(err, ErrStorageUnavailable):
		return "", err
	default:
		return "", fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
}
