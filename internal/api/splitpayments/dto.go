package splitpayments

import (
	"time"

	"splitpay/internal/domain/payments"
	"splitpay/internal/ledger"
)

type participantInput struct {
	UserID string `json:"user_id" binding:"required"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	// Amount is the participant's share in minor units, custom splits only.
	Amount int64 `json:"amount"`
}

type createRequest struct {
	BookingRef      string             `json:"booking_ref" binding:"required"`
	VendorAccountID string             `json:"vendor_account_id"`
	TotalAmount     int64              `json:"total_amount" binding:"required"`
	Currency        string             `json:"currency" binding:"required"`
	SplitType       string             `json:"split_type" binding:"required"`
	Participants    []participantInput `json:"participants" binding:"required"`
	PaymentDeadline time.Time          `json:"payment_deadline" binding:"required"`
	Description     string             `json:"description"`
}

type childResponse struct {
	ID               string     `json:"id"`
	UserID           string     `json:"user_id"`
	ParticipantName  string     `json:"participant_name,omitempty"`
	ParticipantEmail string     `json:"participant_email,omitempty"`
	AmountDue        int64      `json:"amount_due"`
	AmountPaid       int64      `json:"amount_paid"`
	Status           string     `json:"status"`
	PaymentDeadline  time.Time  `json:"payment_deadline"`
	ReminderCount    int        `json:"reminder_count"`
	PaidAt           *time.Time `json:"paid_at,omitempty"`
	RefundedAt       *time.Time `json:"refunded_at,omitempty"`
}

type statsResponse struct {
	TotalDue              int64          `json:"total_due"`
	TotalPaid             int64          `json:"total_paid"`
	Remaining             int64          `json:"remaining"`
	CountByStatus         map[string]int `json:"count_by_status"`
	CompletionPercentage  float64        `json:"completion_percentage"`
	MeetsMinimumThreshold bool           `json:"meets_minimum_threshold"`
}

type splitPaymentResponse struct {
	ID               string          `json:"id"`
	BookingRef       string          `json:"booking_ref"`
	OrganizerID      string          `json:"organizer_id"`
	TotalAmount      int64           `json:"total_amount"`
	Currency         string          `json:"currency"`
	SplitType        string          `json:"split_type"`
	ParticipantCount int             `json:"participant_count"`
	Status           string          `json:"status"`
	BookingStatus    string          `json:"booking_status"`
	Description      string          `json:"description,omitempty"`
	PaymentDeadline  time.Time       `json:"payment_deadline"`
	CreatedAt        time.Time       `json:"created_at"`
	Children         []childResponse `json:"children,omitempty"`
	Stats            *statsResponse  `json:"stats,omitempty"`
}

func toChildResponse(c payments.IndividualPayment) childResponse {
	return childResponse{
		ID:               c.ID,
		UserID:           c.UserID,
		ParticipantName:  c.ParticipantName,
		ParticipantEmail: c.ParticipantEmail,
		AmountDue:        c.AmountDue,
		AmountPaid:       c.AmountPaid,
		Status:           string(c.Status),
		PaymentDeadline:  c.PaymentDeadline,
		ReminderCount:    c.ReminderCount,
		PaidAt:           c.PaidAt,
		RefundedAt:       c.RefundedAt,
	}
}

func toStatsResponse(s payments.Stats) *statsResponse {
	counts := make(map[string]int, len(s.CountByStatus))
	for k, v := range s.CountByStatus {
		counts[string(k)] = v
	}
	return &statsResponse{
		TotalDue:              s.TotalDue,
		TotalPaid:             s.TotalPaid,
		Remaining:             s.Remaining,
		CountByStatus:         counts,
		CompletionPercentage:  s.CompletionPercentage,
		MeetsMinimumThreshold: s.MeetsMinimumThreshold,
	}
}

func toSplitPaymentResponse(sp *payments.SplitPayment) splitPaymentResponse {
	return splitPaymentResponse{
		ID:               sp.ID,
		BookingRef:       sp.BookingRef,
		OrganizerID:      sp.OrganizerID,
		TotalAmount:      sp.TotalAmount,
		Currency:         sp.Currency,
		SplitType:        string(sp.SplitType),
		ParticipantCount: sp.ParticipantCount,
		Status:           string(sp.Status),
		BookingStatus:    string(sp.BookingStatus),
		Description:      sp.Description,
		PaymentDeadline:  sp.PaymentDeadline,
		CreatedAt:        sp.CreatedAt,
	}
}

func toViewResponse(v *ledger.View) splitPaymentResponse {
	out := toSplitPaymentResponse(v.SplitPayment)
	out.Children = make([]childResponse, len(v.Children))
	for i, c := range v.Children {
		out.Children[i] = toChildResponse(c)
	}
	out.Stats = toStatsResponse(v.Stats)
	return out
}
