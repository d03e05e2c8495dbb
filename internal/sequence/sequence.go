// Package sequence allocates daily transaction numbers of the form
// YYYYMMDDNNN. Each business date owns a durable counter that storage
// backends increment atomically inside the caller's transaction, so a
// number is claimed and used in the same commit or not at all.
package sequence

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"
)

const (
	// MaxPerDay is the last sequence that fits the three digit suffix.
	MaxPerDay = 999
	// DateLayout formats a business date key.
	DateLayout = "20060102"

	idLength = len(DateLayout) + 3
)

var (
	// ErrSequenceExhausted is returned once a business date has used all
	// MaxPerDay numbers.
	ErrSequenceExhausted = errors.New("daily transaction sequence exhausted")
	// ErrStorageUnavailable wraps failures of the counter increment itself.
	ErrStorageUnavailable = errors.New("sequence storage unavailable")
	// ErrInvalidID reports a malformed transaction id.
	ErrInvalidID = errors.New("invalid transaction id")
)

// Counter is the storage primitive behind allocation: increment the counter
// row for businessDate (creating it at 1) and return the new value. It must
// run inside the caller's transaction and hold the row until commit.
type Counter interface {
	NextSequence(ctx context.Context, businessDate string) (int, error)
}

// DateKey renders t in loc as a YYYYMMDD business date key.
func DateKey(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(DateLayout)
}

// FormatID joins a business date key and a sequence into an id.
func FormatID(businessDate string, seq int) string {
	return fmt.Sprintf("%s%03d", businessDate, seq)
}

// ParseID splits an id into its business date key and sequence.
func ParseID(id string) (string, int, error) {
	if len(id) != idLength {
		return "", 0, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	datePart, seqPart := id[:len(DateLayout)], id[len(DateLayout):]
	if _, err := time.Parse(DateLayout, datePart); err != nil {
		return "", 0, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	seq, err := strconv.Atoi(seqPart)
	if err != nil || seq < 1 {
		return "", 0, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return datePart, seq, nil
}

// Claim takes the next number for businessDate through c. When the counter
// passes MaxPerDay the caller's transaction must be rolled back; the
// increment is undone with it.
func Claim(ctx context.Context, c Counter, businessDate string) (string, error) {
	if _, err := time.Parse(DateLayout, businessDate); err != nil {
		return "", fmt.Errorf("sequence: business date %q: %w", businessDate, err)
	}
	seq, err := c.NextSequence(ctx, businessDate)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	if seq < 1 {
		return "", fmt.Errorf("%w: counter returned %d", ErrStorageUnavailable, seq)
	}
	if seq > MaxPerDay {
		return "", fmt.Errorf("%w: %s", ErrSequenceExhausted, businessDate)
	}
	return FormatID(businessDate, seq), nil
}
