// Package split computes per-participant shares for a group payment.
// All amounts are integer minor-currency units (cents); the package never
// touches floating point for share amounts, so sums are exact.
package split

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

var (
	// ErrInvalidParticipantCount is returned when a split is requested for
	// zero or a negative number of participants.
	ErrInvalidParticipantCount = errors.New("participant count must be positive")

	// ErrSplitMismatch is returned by CustomSplit when the supplied amounts
	// do not sum to the total exactly.
	ErrSplitMismatch = errors.New("custom amounts do not sum to total")
)

// ValidationError reports invalid split input. It is returned before any
// persistence happens so the caller can fix the request and retry.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// FeeMode selects who absorbs the processor fee.
type FeeMode string

const (
	// FeeOrganizer: the organizer absorbs all fees; participant shares are
	// unchanged.
	FeeOrganizer FeeMode = "organizer"
	// FeeParticipants: the per-transaction fee is added to every share.
	FeeParticipants FeeMode = "participants"
	// FeeSplit: the fee total is distributed evenly across shares, rounding
	// up so the fee is never under-collected.
	FeeSplit FeeMode = "split"
)

// ParseFeeMode validates a fee handling mode string.
func ParseFeeMode(s string) (FeeMode, error) {
	switch FeeMode(s) {
	case FeeOrganizer, FeeParticipants, FeeSplit:
		return FeeMode(s), nil
	}
	return "", &ValidationError{Field: "fee_handling", Reason: fmt.Sprintf("unknown mode %q", s)}
}

// Participant identifies one member of the group at creation time.
type Participant struct {
	UserID string
	Name   string
	Email  string
}

// EqualSplit divides total into n equal shares using integer floor division,
// then hands the remainder out one unit at a time to the first participants.
// The organizer counts as an extra share when includeOrganizer is true.
// Guarantees sum(shares) == total and max(share)-min(share) <= 1.
func EqualSplit(total int64, n int, includeOrganizer bool) ([]int64, error) {
	if n <= 0 {
		return nil, ErrInvalidParticipantCount
	}
	shares := n
	if includeOrganizer {
		shares = n + 1
	}

	base := total / int64(shares)
	remainder := total % int64(shares)

	out := make([]int64, shares)
	for i := range out {
		out[i] = base
		if int64(i) < remainder {
			out[i]++
		}
	}
	return out, nil
}

// CustomSplit accepts caller-supplied amounts and verifies they cover the
// total exactly.
func CustomSplit(total int64, amounts []int64) ([]int64, error) {
	if len(amounts) == 0 {
		return nil, ErrInvalidParticipantCount
	}
	var sum int64
	for _, a := range amounts {
		if a < 0 {
			return nil, &ValidationError{Field: "amounts", Reason: "negative share amount"}
		}
		sum += a
	}
	if sum != total {
		return nil, fmt.Errorf("%w: amounts sum to %d, total is %d", ErrSplitMismatch, sum, total)
	}
	out := make([]int64, len(amounts))
	copy(out, amounts)
	return out, nil
}

// FeeBreakdown reports how a processor fee was allocated across the group.
type FeeBreakdown struct {
	// PerShareFee is added on top of every share (participants and split
	// modes); zero when the organizer absorbs the fee.
	PerShareFee int64
	// OrganizerFee is the portion the organizer absorbs.
	OrganizerFee int64
	// TotalFees is the full processor fee for the group.
	TotalFees int64
}

// WithFees computes a fixed-plus-percentage processor fee per transaction on
// baseAmount and allocates the group's fee total according to mode. Pure and
// deterministic.
func WithFees(baseAmount int64, n int, mode FeeMode, fixed int64, percent float64) (FeeBreakdown, error) {
	if n <= 0 {
		return FeeBreakdown{}, ErrInvalidParticipantCount
	}
	perTxn := fixed + int64(math.Round(float64(baseAmount)*percent))
	total := perTxn * int64(n)

	switch mode {
	case FeeOrganizer:
		return FeeBreakdown{OrganizerFee: total, TotalFees: total}, nil
	case FeeParticipants:
		return FeeBreakdown{PerShareFee: perTxn, TotalFees: total}, nil
	case FeeSplit:
		// Ceiling division so the collected fees always cover the total.
		perShare := (total + int64(n) - 1) / int64(n)
		return FeeBreakdown{PerShareFee: perShare, TotalFees: total}, nil
	default:
		return FeeBreakdown{}, &ValidationError{Field: "fee_handling", Reason: fmt.Sprintf("unknown mode %q", mode)}
	}
}

// Validate rejects bad creation input before anything is persisted: zero or
// negative totals, empty participant lists, groups over maxGroupSize, and
// duplicate participants by user id or email.
func Validate(total int64, participants []Participant, maxGroupSize int) error {
	if total <= 0 {
		return &ValidationError{Field: "total_amount", Reason: "must be positive"}
	}
	if len(participants) == 0 {
		return &ValidationError{Field: "participants", Reason: "at least one participant required"}
	}
	if maxGroupSize > 0 && len(participants) > maxGroupSize {
		return &ValidationError{
			Field:  "participants",
			Reason: fmt.Sprintf("group size %d exceeds maximum %d", len(participants), maxGroupSize),
		}
	}

	seenID := make(map[string]bool, len(participants))
	seenEmail := make(map[string]bool, len(participants))
	for _, p := range participants {
		if p.UserID == "" {
			return &ValidationError{Field: "participants", Reason: "participant missing user id"}
		}
		if seenID[p.UserID] {
			return &ValidationError{Field: "participants", Reason: fmt.Sprintf("duplicate participant %s", p.UserID)}
		}
		seenID[p.UserID] = true

		if p.Email != "" {
			email := strings.ToLower(p.Email)
			if seenEmail[email] {
				return &ValidationError{Field: "participants", Reason: fmt.Sprintf("duplicate participant email %s", p.Email)}
			}
			seenEmail[email] = true
		}
	}
	return nil
}
