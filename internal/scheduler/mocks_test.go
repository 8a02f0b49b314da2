package scheduler

import (
	"context"
	"sync"
	"time"

	"splitpay/config"
	"splitpay/internal/domain/split"
	"splitpay/internal/infra/notify"
	"splitpay/internal/infra/stripegw"
	"splitpay/internal/ledger"
	"splitpay/internal/refund"
	"splitpay/internal/store"
)

type fakeGateway struct {
	mu           sync.Mutex
	refundCalls  []string
	intentStates map[string]stripegw.Confirmation
	confirmPolls []string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{intentStates: make(map[string]stripegw.Confirmation)}
}

func (g *fakeGateway) CreateIntent(ctx context.Context, req stripegw.CreateIntentRequest) (*stripegw.Intent, error) {
	return &stripegw.Intent{
		IntentID:     "pi_" + req.IdempotencyKey,
		ClientSecret: "secret_" + req.IdempotencyKey,
	}, nil
}

func (g *fakeGateway) ConfirmIntent(ctx context.Context, intentID string) (*stripegw.Confirmation, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.confirmPolls = append(g.confirmPolls, intentID)
	if conf, ok := g.intentStates[intentID]; ok {
		return &conf, nil
	}
	return &stripegw.Confirmation{State: stripegw.IntentProcessing}, nil
}

func (g *fakeGateway) Refund(ctx context.Context, confirmationID string, amount int64, reason string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refundCalls = append(g.refundCalls, confirmationID)
	return "re_" + confirmationID, nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []notify.Reminder
	err  error
}

func (n *fakeNotifier) SendReminder(ctx context.Context, r notify.Reminder) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, r)
	return nil
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

type fixture struct {
	sched    *DeadlineScheduler
	ledger   *ledger.PaymentLedger
	store    *store.MemStore
	gateway  *fakeGateway
	notifier *fakeNotifier
	clock    *time.Time
}

// newFixture wires a scheduler over the in-memory store. The ledger keeps the
// real clock (deadlines in these tests are relative to time.Now), while the
// scheduler's scan clock is controllable.
func newFixture() *fixture {
	st := store.NewMemStore()
	gw := newFakeGateway()
	nt := &fakeNotifier{}
	cfg := &config.Config{
		AppURL:                  "http://localhost:8080",
		MaxGroupSize:            20,
		MinPaymentDeadlineHours: 24,
		MaxPaymentDeadlineHours: 168,
		ReminderScheduleHours:   []int{72, 24, 2},
		MinimumPaymentThreshold: 0.8,
		FeeHandling:             split.FeeOrganizer,
		PaymentTokenTTL:         48 * time.Hour,
		SchedulerInterval:       time.Minute,
		ProcessingGrace:         30 * time.Minute,
	}

	lg := ledger.New(st, gw, refund.NewCascade(st, gw), cfg)
	sched := New(st, lg, nt, gw, cfg)

	now := time.Now()
	clock := &now
	sched.now = func() time.Time { return *clock }

	return &fixture{sched: sched, ledger: lg, store: st, gateway: gw, notifier: nt, clock: clock}
}

// createGroup persists a 4-way equal split of 1000 with the given deadline.
func (f *fixture) createGroup(deadline time.Time) (*ledger.CreateResult, error) {
	participants := []split.Participant{
		{UserID: "user-0", Name: "User 0", Email: "user0@example.com"},
		{UserID: "user-1", Name: "User 1", Email: "user1@example.com"},
		{UserID: "user-2", Name: "User 2", Email: "user2@example.com"},
		{UserID: "user-3", Name: "User 3", Email: "user3@example.com"},
	}
	return f.ledger.CreateSplitPayment(context.Background(), ledger.CreateRequest{
		BookingRef:   "booking-7",
		OrganizerID:  "user-0",
		TotalAmount:  1000,
		Currency:     "usd",
		SplitType:    "equal",
		Participants: participants,
		Deadline:     deadline,
		Description:  "Boat rental",
	})
}

func (f *fixture) payShares(res *ledger.CreateResult, indexes ...int) error {
	ctx := context.Background()
	for _, i := range indexes {
		child := res.Children[i]
		if _, err := f.ledger.ProcessIndividualPayment(ctx, child.ID, child.UserID); err != nil {
			return err
		}
		if err := f.ledger.ConfirmPayment(ctx, child.ID, "ch_"+child.ID); err != nil {
			return err
		}
	}
	return nil
}
