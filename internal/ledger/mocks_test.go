package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"splitpay/config"
	"splitpay/internal/domain/split"
	"splitpay/internal/infra/stripegw"
	"splitpay/internal/refund"
	"splitpay/internal/store"
)

// fakeGateway records calls and lets tests script outcomes per payment.
type fakeGateway struct {
	mu sync.Mutex

	createCalls  int
	createErr    error
	refundCalls  []string
	refundFail   map[string]error
	intentStates map[string]stripegw.Confirmation
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		refundFail:   make(map[string]error),
		intentStates: make(map[string]stripegw.Confirmation),
	}
}

func (g *fakeGateway) CreateIntent(ctx context.Context, req stripegw.CreateIntentRequest) (*stripegw.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.createCalls++
	if g.createErr != nil {
		return nil, g.createErr
	}
	return &stripegw.Intent{
		IntentID:     "pi_" + req.IdempotencyKey,
		ClientSecret: "secret_" + req.IdempotencyKey,
	}, nil
}

func (g *fakeGateway) ConfirmIntent(ctx context.Context, intentID string) (*stripegw.Confirmation, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if conf, ok := g.intentStates[intentID]; ok {
		return &conf, nil
	}
	return &stripegw.Confirmation{State: stripegw.IntentProcessing}, nil
}

func (g *fakeGateway) Refund(ctx context.Context, confirmationID string, amount int64, reason string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refundCalls = append(g.refundCalls, confirmationID)
	if err, ok := g.refundFail[confirmationID]; ok {
		return "", err
	}
	return "re_" + confirmationID, nil
}

var errGatewayDown = errors.New("gateway unavailable")

func testConfig() *config.Config {
	return &config.Config{
		AppURL:                  "http://localhost:8080",
		MaxGroupSize:            20,
		MinPaymentDeadlineHours: 24,
		MaxPaymentDeadlineHours: 168,
		ReminderScheduleHours:   []int{72, 24, 2},
		MinimumPaymentThreshold: 0.8,
		FeeHandling:             split.FeeOrganizer,
		FeeFixedCents:           30,
		FeePercent:              0.029,
		PaymentTokenTTL:         48 * time.Hour,
		SchedulerInterval:       time.Minute,
		ProcessingGrace:         30 * time.Minute,
	}
}

// testLedger wires a ledger over the in-memory store with a scriptable
// gateway and a controllable clock.
func testLedger() (*PaymentLedger, *store.MemStore, *fakeGateway, *time.Time) {
	st := store.NewMemStore()
	gw := newFakeGateway()
	cfg := testConfig()

	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	clock := &now
	st.Now = func() time.Time { return *clock }

	lg := New(st, gw, refund.NewCascade(st, gw), cfg)
	lg.now = func() time.Time { return *clock }
	return lg, st, gw, clock
}

// createGroup persists a 4-way equal split of 1000 due in 48h and returns the
// result.
func createGroup(lg *PaymentLedger, clock *time.Time) (*CreateResult, error) {
	participants := make([]split.Participant, 4)
	for i := range participants {
		participants[i] = split.Participant{
			UserID: fmt.Sprintf("user-%d", i),
			Name:   fmt.Sprintf("User %d", i),
			Email:  fmt.Sprintf("user%d@example.com", i),
		}
	}
	return lg.CreateSplitPayment(context.Background(), CreateRequest{
		BookingRef:   "booking-42",
		OrganizerID:  "user-0",
		TotalAmount:  1000,
		Currency:     "usd",
		SplitType:    "equal",
		Participants: participants,
		Deadline:     clock.Add(48 * time.Hour),
		Description:  "Cabin weekend",
	})
}
