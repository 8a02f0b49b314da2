// Package database opens the Postgres connection and migrates the payment
// schema.
package database

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"splitpay/internal/domain/payments"
)

// Init connects to Postgres and auto-migrates the engine's tables:
// split_payments, individual_payments and payment_tokens.
func Init(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS pgcrypto;`).Error; err != nil {
		return nil, fmt.Errorf("enable pgcrypto extension: %w", err)
	}

	if err := db.AutoMigrate(
		&payments.SplitPayment{},
		&payments.IndividualPayment{},
		&payments.PaymentToken{},
	); err != nil {
		return nil, fmt.Errorf("auto-migrate: %w", err)
	}

	return db, nil
}
