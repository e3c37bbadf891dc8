// Package calculator computes per-participant amounts for a split session.
// All arithmetic is on int64 minor currency units so allocations always
// sum exactly to the total.
package calculator

import (
	"errors"
	"fmt"
)

var (
	ErrNegativeTotal  = errors.New("total cannot be negative")
	ErrNoParticipants = errors.New("must have at least one participant")
	ErrNegativeAmount = errors.New("allocations cannot be negative")
)

// ValidationError reports that custom allocations do not sum to the
// session total. Remaining is what still has to be assigned; it is
// negative when too much was entered. The caller must correct the
// amounts, nothing is auto-adjusted.
type ValidationError struct {
	Total     int64
	Sum       int64
	Remaining int64
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("allocations sum to %d, total is %d (remaining %d)", e.Sum, e.Total, e.Remaining)
}

// EvenAmounts divides total across n participants in list order.
// base = total/n; the first total%n participants get base+1, the rest get
// base, so the amounts sum to total exactly for any n >= 1 and differ by
// at most one minor unit.
func EvenAmounts(total int64, n int) ([]int64, error) {
	if total < 0 {
		return nil, ErrNegativeTotal
	}
	if n < 1 {
		return nil, ErrNoParticipants
	}

	base := total / int64(n)
	remainder := total % int64(n)

	amounts := make([]int64, n)
	for i := range amounts {
		amounts[i] = base
		if int64(i) < remainder {
			amounts[i]++
		}
	}
	return amounts, nil
}

// ValidateCustom checks caller-supplied allocations against the total.
// Returns a *ValidationError when the sum does not match exactly.
func ValidateCustom(total int64, amounts []int64) error {
	if total < 0 {
		return ErrNegativeTotal
	}
	if len(amounts) == 0 {
		return ErrNoParticipants
	}

	var sum int64
	for _, a := range amounts {
		if a < 0 {
			return ErrNegativeAmount
		}
		sum += a
	}
	if sum != total {
		return &ValidationError{Total: total, Sum: sum, Remaining: total - sum}
	}
	return nil
}
