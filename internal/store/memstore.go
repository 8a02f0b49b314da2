package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"splitpay/internal/domain/payments"
)

// MemStore is an in-memory Store with the same conditional-update semantics
// as GormStore. It backs the engine's tests and is safe for concurrent use.
type MemStore struct {
	mu       sync.Mutex
	splits   map[string]*payments.SplitPayment
	children map[string]*payments.IndividualPayment
	tokens   map[string]*payments.PaymentToken
	// childOrder preserves creation order per aggregate.
	childOrder map[string][]string

	// Now overrides the clock used for row timestamps.
	Now func() time.Time
}

var _ Store = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{
		splits:     make(map[string]*payments.SplitPayment),
		children:   make(map[string]*payments.IndividualPayment),
		tokens:     make(map[string]*payments.PaymentToken),
		childOrder: make(map[string][]string),
	}
}

func (s *MemStore) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *MemStore) CreateSplitPayment(ctx context.Context, sp *payments.SplitPayment, children []payments.IndividualPayment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	cp := *sp
	cp.Children = nil
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	s.splits[cp.ID] = &cp

	for i := range children {
		c := children[i]
		if c.CreatedAt.IsZero() {
			c.CreatedAt = now
		}
		if c.UpdatedAt.IsZero() {
			c.UpdatedAt = now
		}
		s.children[c.ID] = &c
		s.childOrder[cp.ID] = append(s.childOrder[cp.ID], c.ID)
	}
	return nil
}

func (s *MemStore) GetSplitPayment(ctx context.Context, id string) (*payments.SplitPayment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sp, ok := s.splits[id]
	if !ok {
		return nil, payments.ErrNotFound
	}
	cp := *sp
	cp.Children = s.childrenOf(id)
	return &cp, nil
}

func (s *MemStore) ListSplitPaymentsByOrganizer(ctx context.Context, organizerID string) ([]payments.SplitPayment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []payments.SplitPayment
	for _, sp := range s.splits {
		if sp.OrganizerID == organizerID {
			out = append(out, *sp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemStore) ListChildren(ctx context.Context, splitPaymentID string) ([]payments.IndividualPayment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.childrenOf(splitPaymentID), nil
}

// childrenOf returns copies in creation order. Callers hold the lock.
func (s *MemStore) childrenOf(splitPaymentID string) []payments.IndividualPayment {
	var out []payments.IndividualPayment
	for _, id := range s.childOrder[splitPaymentID] {
		out = append(out, *s.children[id])
	}
	return out
}

func (s *MemStore) GetIndividualPayment(ctx context.Context, id string) (*payments.IndividualPayment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.children[id]
	if !ok {
		return nil, payments.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *MemStore) TransitionIndividual(ctx context.Context, id string, from []payments.IndividualStatus, to payments.IndividualStatus, updates map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.children[id]
	if !ok {
		return payments.ErrNotFound
	}
	if !statusIn(c.Status, from) {
		return payments.ErrConcurrencyConflict
	}
	c.Status = to
	applyIndividualUpdates(c, updates)
	c.UpdatedAt = s.now()
	return nil
}

func statusIn(s payments.IndividualStatus, set []payments.IndividualStatus) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

func applyIndividualUpdates(c *payments.IndividualPayment, updates map[string]any) {
	for k, v := range updates {
		switch k {
		case "amount_paid":
			c.AmountPaid = v.(int64)
		case "paid_at":
			t := v.(time.Time)
			c.PaidAt = &t
		case "refunded_at":
			t := v.(time.Time)
			c.RefundedAt = &t
		case "gateway_intent_id":
			c.GatewayIntentID = v.(string)
		case "gateway_client_secret":
			c.GatewayClientSecret = v.(string)
		case "gateway_confirmation_id":
			c.GatewayConfirmationID = v.(string)
		case "gateway_refund_id":
			c.GatewayRefundID = v.(string)
		case "refund_error":
			c.RefundError = v.(string)
		}
	}
}

func (s *MemStore) TransitionSplit(ctx context.Context, id string, from []payments.SplitStatus, to payments.SplitStatus, updates map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sp, ok := s.splits[id]
	if !ok {
		return payments.ErrNotFound
	}
	matched := false
	for _, f := range from {
		if sp.Status == f {
			matched = true
		}
	}
	if !matched {
		return payments.ErrConcurrencyConflict
	}
	sp.Status = to
	for k, v := range updates {
		switch k {
		case "booking_status":
			sp.BookingStatus = v.(payments.BookingStatus)
		case "enforced_at":
			t := v.(time.Time)
			sp.EnforcedAt = &t
		}
	}
	sp.UpdatedAt = s.now()
	return nil
}

func (s *MemStore) ListRemindersDue(ctx context.Context, now time.Time, maxOffset time.Duration, maxReminders int) ([]payments.IndividualPayment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []payments.IndividualPayment
	for _, c := range s.children {
		if c.Status != payments.IndividualPending {
			continue
		}
		if !c.PaymentDeadline.After(now) || c.PaymentDeadline.After(now.Add(maxOffset)) {
			continue
		}
		if c.ReminderCount >= maxReminders {
			continue
		}
		out = append(out, *c)
	}
	return out, nil
}

func (s *MemStore) SetReminderSent(ctx context.Context, id string, expectedCount int, sentAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.children[id]
	if !ok || c.ReminderCount != expectedCount {
		return payments.ErrConcurrencyConflict
	}
	c.ReminderCount = expectedCount + 1
	c.LastReminderSent = &sentAt
	c.UpdatedAt = s.now()
	return nil
}

func (s *MemStore) ListExpiredSplits(ctx context.Context, now time.Time) ([]payments.SplitPayment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []payments.SplitPayment
	for _, sp := range s.splits {
		if sp.PaymentDeadline.After(now) {
			continue
		}
		if sp.Status == payments.SplitPending || sp.Status == payments.SplitPartiallyPaid {
			out = append(out, *sp)
		}
	}
	return out, nil
}

func (s *MemStore) ListStuckProcessing(ctx context.Context, olderThan time.Time) ([]payments.IndividualPayment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []payments.IndividualPayment
	for _, c := range s.children {
		if c.Status == payments.IndividualProcessing && c.UpdatedAt.Before(olderThan) {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (s *MemStore) SetRefundError(ctx context.Context, id string, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.children[id]
	if !ok || c.Status != payments.IndividualPaid {
		return payments.ErrConcurrencyConflict
	}
	c.RefundError = message
	c.UpdatedAt = s.now()
	return nil
}

func (s *MemStore) CreatePaymentToken(ctx context.Context, t *payments.PaymentToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *t
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = s.now()
	}
	s.tokens[cp.Token] = &cp
	return nil
}

func (s *MemStore) GetPaymentToken(ctx context.Context, token string) (*payments.PaymentToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[token]
	if !ok {
		return nil, payments.ErrTokenInvalid
	}
	cp := *t
	return &cp, nil
}

func (s *MemStore) MarkTokenUsed(ctx context.Context, token string, usedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[token]
	if !ok || t.UsedAt != nil {
		return payments.ErrTokenInvalid
	}
	t.UsedAt = &usedAt
	return nil
}
