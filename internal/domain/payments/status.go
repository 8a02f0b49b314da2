package payments

// IndividualStatus is the lifecycle state of one participant's payment.
// Transitions only move forward:
//
//	pending -> processing -> paid
//	pending -> processing -> failed -> pending (retryable)
//	pending -> expired (deadline passed, never paid)
//	paid -> refunded (cascade only)
type IndividualStatus string

const (
	IndividualPending    IndividualStatus = "pending"
	IndividualProcessing IndividualStatus = "processing"
	IndividualPaid       IndividualStatus = "paid"
	IndividualFailed     IndividualStatus = "failed"
	IndividualExpired    IndividualStatus = "expired"
	IndividualRefunded   IndividualStatus = "refunded"
)

// Terminal reports whether no further transition is possible for a child.
func (s IndividualStatus) Terminal() bool {
	return s == IndividualExpired || s == IndividualRefunded
}

// CanTransitionTo reports whether the status machine permits moving from s
// to next.
func (s IndividualStatus) CanTransitionTo(next IndividualStatus) bool {
	switch s {
	case IndividualPending:
		return next == IndividualProcessing || next == IndividualExpired || next == IndividualPaid
	case IndividualProcessing:
		return next == IndividualPaid || next == IndividualFailed || next == IndividualPending
	case IndividualFailed:
		return next == IndividualPending || next == IndividualProcessing
	case IndividualPaid:
		return next == IndividualRefunded
	default:
		return false
	}
}

// SplitStatus is the derived state of the aggregate. It is a monotone
// function of the children's statuses and never regresses.
type SplitStatus string

const (
	SplitPending               SplitStatus = "pending"
	SplitPartiallyPaid         SplitStatus = "partially_paid"
	SplitCompleted             SplitStatus = "completed"
	SplitCompletedPartial      SplitStatus = "completed_partial"
	SplitCancelledInsufficient SplitStatus = "cancelled_insufficient"
)

// Terminal reports whether enforcement or completion already settled the
// aggregate.
func (s SplitStatus) Terminal() bool {
	switch s {
	case SplitCompleted, SplitCompletedPartial, SplitCancelledInsufficient:
		return true
	}
	return false
}

// DeriveStatus recomputes the aggregate status from the current child rows.
// It is pure and idempotent: two racing recomputations over the same rows
// converge on the same value. Post-deadline outcomes (completed_partial,
// cancelled_insufficient) are decided by enforcement, not here.
func DeriveStatus(current SplitStatus, children []IndividualPayment) SplitStatus {
	if current.Terminal() {
		return current
	}
	if len(children) == 0 {
		return current
	}

	paid := 0
	for _, c := range children {
		if c.Status == IndividualPaid {
			paid++
		}
	}

	switch {
	case paid == len(children):
		return SplitCompleted
	case paid > 0:
		return SplitPartiallyPaid
	default:
		return current
	}
}

// Stats aggregates the children of one SplitPayment.
type Stats struct {
	TotalDue             int64
	TotalPaid            int64
	Remaining            int64
	CountByStatus        map[IndividualStatus]int
	CompletionPercentage float64
	// MeetsMinimumThreshold is true when the collected fraction of the total
	// reaches the configured minimum (default 0.8).
	MeetsMinimumThreshold bool
}

// ComputeStats derives payment statistics from child rows. Pure; a child is
// counted as paid exactly once regardless of how often it was confirmed.
func ComputeStats(children []IndividualPayment, threshold float64) Stats {
	s := Stats{CountByStatus: make(map[IndividualStatus]int, 6)}
	for _, c := range children {
		s.TotalDue += c.AmountDue
		s.CountByStatus[c.Status]++
		if c.Status == IndividualPaid {
			s.TotalPaid += c.AmountPaid
		}
	}
	s.Remaining = s.TotalDue - s.TotalPaid
	if s.TotalDue > 0 {
		s.CompletionPercentage = float64(s.TotalPaid) / float64(s.TotalDue) * 100
		s.MeetsMinimumThreshold = float64(s.TotalPaid)/float64(s.TotalDue) >= threshold
	}
	return s
}
