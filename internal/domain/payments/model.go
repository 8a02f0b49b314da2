// Package payments holds the persistent model and the pure domain logic of
// the group-payment engine: status machines, aggregate derivation, statistics
// and the deadline enforcement decision.
package payments

import (
	"encoding/json"
	"time"
)

// SplitPayment is the aggregate root: one group's obligation to cover a
// booking's total cost. It is never deleted, only terminally transitioned.
type SplitPayment struct {
	ID               string `gorm:"type:uuid;primaryKey"`
	BookingRef       string `gorm:"index;not null"`
	OrganizerID      string `gorm:"index;not null"`
	VendorAccountID  string
	TotalAmount      int64  `gorm:"not null"`
	Currency         string `gorm:"type:varchar(3);not null"`
	SplitType        SplitType
	ParticipantCount int
	Status           SplitStatus `gorm:"type:varchar(32);index;not null"`
	// BookingStatus records the outcome handed to the external booking
	// system: pending, paid or cancelled.
	BookingStatus   BookingStatus `gorm:"type:varchar(16);not null;default:'pending'"`
	Description     string
	Metadata        json.RawMessage `gorm:"type:jsonb"`
	PaymentDeadline time.Time       `gorm:"index;not null"`
	EnforcedAt      *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time

	Children []IndividualPayment `gorm:"foreignKey:SplitPaymentID"`
}

// IndividualPayment is one participant's share and its payment lifecycle.
// Its deadline is always at or before the owning aggregate's deadline.
type IndividualPayment struct {
	ID               string `gorm:"type:uuid;primaryKey"`
	SplitPaymentID   string `gorm:"type:uuid;index;not null"`
	UserID           string `gorm:"index;not null"`
	ParticipantName  string
	ParticipantEmail string
	AmountDue        int64            `gorm:"not null"`
	AmountPaid       int64            `gorm:"not null;default:0"`
	Status           IndividualStatus `gorm:"type:varchar(32);index;not null"`
	PaymentDeadline  time.Time        `gorm:"index;not null"`

	ReminderCount    int `gorm:"not null;default:0"`
	LastReminderSent *time.Time

	GatewayIntentID       string `gorm:"index"`
	GatewayClientSecret   string
	GatewayConfirmationID string
	GatewayRefundID       string
	RefundError           string

	PaidAt     *time.Time
	RefundedAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// PaymentToken is a single-use, expiring reference that lets a participant
// pay without authentication. It becomes invalid once used, once expired, or
// once the referenced payment reaches a terminal status.
type PaymentToken struct {
	Token               string `gorm:"primaryKey"`
	IndividualPaymentID string `gorm:"type:uuid;index;not null"`
	ExpiresAt           time.Time
	UsedAt              *time.Time
	CreatedAt           time.Time
}

// SplitType distinguishes equal from caller-supplied splits.
type SplitType string

const (
	SplitEqual  SplitType = "equal"
	SplitCustom SplitType = "custom"
)

// BookingStatus is the outcome recorded for the external booking.
type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingPaid      BookingStatus = "paid"
	BookingCancelled BookingStatus = "cancelled"
)

// SplitSnapshot is stored in SplitPayment.Metadata at creation time so the
// computed split survives independently of the child rows.
type SplitSnapshot struct {
	Shares       []int64 `json:"shares"`
	PerShareFee  int64   `json:"per_share_fee,omitempty"`
	OrganizerFee int64   `json:"organizer_fee,omitempty"`
	TotalFees    int64   `json:"total_fees,omitempty"`
	FeeHandling  string  `json:"fee_handling,omitempty"`
}
