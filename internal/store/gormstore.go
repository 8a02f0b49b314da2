package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"splitpay/internal/domain/payments"
)

// GormStore implements Store on a relational database through gorm.
type GormStore struct {
	db *gorm.DB
}

var _ Store = (*GormStore)(nil)

// NewGormStore wraps an initialized gorm connection.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) CreateSplitPayment(ctx context.Context, sp *payments.SplitPayment, children []payments.IndividualPayment) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(sp).Error; err != nil {
			return err
		}
		return tx.Create(&children).Error
	})
	if err != nil {
		return &payments.PersistenceError{Op: "create split payment", Err: err}
	}
	return nil
}

func (s *GormStore) GetSplitPayment(ctx context.Context, id string) (*payments.SplitPayment, error) {
	var sp payments.SplitPayment
	err := s.db.WithContext(ctx).
		Preload("Children").
		Where("id = ?", id).
		First(&sp).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, payments.ErrNotFound
		}
		return nil, &payments.PersistenceError{Op: "get split payment", Err: err}
	}
	return &sp, nil
}

func (s *GormStore) ListSplitPaymentsByOrganizer(ctx context.Context, organizerID string) ([]payments.SplitPayment, error) {
	var out []payments.SplitPayment
	err := s.db.WithContext(ctx).
		Where("organizer_id = ?", organizerID).
		Order("created_at DESC").
		Find(&out).Error
	if err != nil {
		return nil, &payments.PersistenceError{Op: "list split payments", Err: err}
	}
	return out, nil
}

func (s *GormStore) ListChildren(ctx context.Context, splitPaymentID string) ([]payments.IndividualPayment, error) {
	var out []payments.IndividualPayment
	err := s.db.WithContext(ctx).
		Where("split_payment_id = ?", splitPaymentID).
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, &payments.PersistenceError{Op: "list children", Err: err}
	}
	return out, nil
}

func (s *GormStore) GetIndividualPayment(ctx context.Context, id string) (*payments.IndividualPayment, error) {
	var ip payments.IndividualPayment
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&ip).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, payments.ErrNotFound
		}
		return nil, &payments.PersistenceError{Op: "get individual payment", Err: err}
	}
	return &ip, nil
}

func (s *GormStore) TransitionIndividual(ctx context.Context, id string, from []payments.IndividualStatus, to payments.IndividualStatus, updates map[string]any) error {
	if updates == nil {
		updates = map[string]any{}
	}
	updates["status"] = to

	res := s.db.WithContext(ctx).
		Model(&payments.IndividualPayment{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return &payments.PersistenceError{Op: "transition individual payment", Err: res.Error}
	}
	if res.RowsAffected == 0 {
		return s.conflictOrNotFound(ctx, &payments.IndividualPayment{}, id)
	}
	return nil
}

func (s *GormStore) TransitionSplit(ctx context.Context, id string, from []payments.SplitStatus, to payments.SplitStatus, updates map[string]any) error {
	if updates == nil {
		updates = map[string]any{}
	}
	updates["status"] = to

	res := s.db.WithContext(ctx).
		Model(&payments.SplitPayment{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return &payments.PersistenceError{Op: "transition split payment", Err: res.Error}
	}
	if res.RowsAffected == 0 {
		return s.conflictOrNotFound(ctx, &payments.SplitPayment{}, id)
	}
	return nil
}

// conflictOrNotFound distinguishes a lost race from a missing row after a
// conditional update matched nothing.
func (s *GormStore) conflictOrNotFound(ctx context.Context, model any, id string) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(model).Where("id = ?", id).Count(&count).Error; err != nil {
		return &payments.PersistenceError{Op: "recheck row", Err: err}
	}
	if count == 0 {
		return payments.ErrNotFound
	}
	return payments.ErrConcurrencyConflict
}

func (s *GormStore) ListRemindersDue(ctx context.Context, now time.Time, maxOffset time.Duration, maxReminders int) ([]payments.IndividualPayment, error) {
	var out []payments.IndividualPayment
	err := s.db.WithContext(ctx).
		Where("status = ?", payments.IndividualPending).
		Where("payment_deadline > ? AND payment_deadline <= ?", now, now.Add(maxOffset)).
		Where("reminder_count < ?", maxReminders).
		Order("payment_deadline ASC").
		Find(&out).Error
	if err != nil {
		return nil, &payments.PersistenceError{Op: "list reminders due", Err: err}
	}
	return out, nil
}

func (s *GormStore) SetReminderSent(ctx context.Context, id string, expectedCount int, sentAt time.Time) error {
	res := s.db.WithContext(ctx).
		Model(&payments.IndividualPayment{}).
		Where("id = ? AND reminder_count = ?", id, expectedCount).
		Updates(map[string]any{
			"reminder_count":     expectedCount + 1,
			"last_reminder_sent": sentAt,
		})
	if res.Error != nil {
		return &payments.PersistenceError{Op: "set reminder sent", Err: res.Error}
	}
	if res.RowsAffected == 0 {
		return payments.ErrConcurrencyConflict
	}
	return nil
}

func (s *GormStore) ListExpiredSplits(ctx context.Context, now time.Time) ([]payments.SplitPayment, error) {
	var out []payments.SplitPayment
	err := s.db.WithContext(ctx).
		Where("payment_deadline <= ?", now).
		Where("status IN ?", []payments.SplitStatus{payments.SplitPending, payments.SplitPartiallyPaid}).
		Order("payment_deadline ASC").
		Find(&out).Error
	if err != nil {
		return nil, &payments.PersistenceError{Op: "list expired splits", Err: err}
	}
	return out, nil
}

func (s *GormStore) ListStuckProcessing(ctx context.Context, olderThan time.Time) ([]payments.IndividualPayment, error) {
	var out []payments.IndividualPayment
	err := s.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", payments.IndividualProcessing, olderThan).
		Find(&out).Error
	if err != nil {
		return nil, &payments.PersistenceError{Op: "list stuck processing", Err: err}
	}
	return out, nil
}

func (s *GormStore) SetRefundError(ctx context.Context, id string, message string) error {
	res := s.db.WithContext(ctx).
		Model(&payments.IndividualPayment{}).
		Where("id = ? AND status = ?", id, payments.IndividualPaid).
		Update("refund_error", message)
	if res.Error != nil {
		return &payments.PersistenceError{Op: "set refund error", Err: res.Error}
	}
	if res.RowsAffected == 0 {
		return payments.ErrConcurrencyConflict
	}
	return nil
}

func (s *GormStore) CreatePaymentToken(ctx context.Context, t *payments.PaymentToken) error {
	if err := s.db.WithContext(ctx).Create(t).Error; err != nil {
		return &payments.PersistenceError{Op: "create payment token", Err: err}
	}
	return nil
}

func (s *GormStore) GetPaymentToken(ctx context.Context, token string) (*payments.PaymentToken, error) {
	var t payments.PaymentToken
	err := s.db.WithContext(ctx).Where("token = ?", token).First(&t).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, payments.ErrTokenInvalid
		}
		return nil, &payments.PersistenceError{Op: "get payment token", Err: err}
	}
	return &t, nil
}

func (s *GormStore) MarkTokenUsed(ctx context.Context, token string, usedAt time.Time) error {
	res := s.db.WithContext(ctx).
		Model(&payments.PaymentToken{}).
		Where("token = ? AND used_at IS NULL", token).
		Update("used_at", usedAt)
	if res.Error != nil {
		return &payments.PersistenceError{Op: "mark token used", Err: res.Error}
	}
	if res.RowsAffected == 0 {
		return payments.ErrTokenInvalid
	}
	return nil
}
