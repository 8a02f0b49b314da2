package payments

// Outcome is the enforcement decision for an aggregate whose deadline passed
// without full collection.
type Outcome string

const (
	// OutcomeProceedPartial: enough was collected; the group proceeds with
	// partial funds and the booking is marked paid.
	OutcomeProceedPartial Outcome = "proceed_partial"
	// OutcomeCancelRefund: collection fell short; every paid child is
	// refunded and the booking is cancelled.
	OutcomeCancelRefund Outcome = "cancel_refund"
)

// Decide is the enforcement policy: given the aggregate's fresh statistics it
// returns exactly one of the two outcomes. Pure, total, no I/O. Callers must
// not invoke it for aggregates already in a terminal status.
func Decide(stats Stats) Outcome {
	if stats.MeetsMinimumThreshold {
		return OutcomeProceedPartial
	}
	return OutcomeCancelRefund
}
