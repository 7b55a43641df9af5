// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the PremiumKey
// model (the single-use key store).
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-premium-bot/internal/domain"
)

// CreateKey persists a freshly issued key. Token generation happens in the
// service layer; the repository only stores the pair. A duplicate token is
// surfaced as the driver's unique-constraint error.
func CreateKey(ctx context.Context, db *gorm.DB, token string, expiresAt time.Time) (*domain.PremiumKey, error) {
	k := &domain.PremiumKey{
		Token:     token,
		ExpiresAt: expiresAt.UTC(),
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(k).Error; err != nil {
		return nil, err
	}
	return k, nil
}

// PeekKey is a read-only existence check. It returns the stored key without
// mutating the store, or ErrNotFound when the token is unknown.
func PeekKey(ctx context.Context, db *gorm.DB, token string) (*domain.PremiumKey, error) {
	var k domain.PremiumKey
	if err := db.WithContext(ctx).First(&k, "token = ?", token).Error; err != nil {
		return nil, err
	}
	return &k, nil
}

// ConsumeKey atomically looks up and removes a key in a single transaction.
// Exactly one of several concurrent consumers of the same token observes the
// key; the rest get ErrNotFound. Correctness hinges on the DELETE row count,
// not on the preceding read: a concurrent transaction that wins the write
// lock leaves the loser with zero affected rows.
func ConsumeKey(ctx context.Context, db *gorm.DB, token string) (*domain.PremiumKey, error) {
	var k domain.PremiumKey
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&k, "token = ?", token).Error; err != nil {
			return err
		}
		res := tx.Where("token = ?", token).Delete(&domain.PremiumKey{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &k, nil
}

// CountKeys returns the number of keys still awaiting consumption.
func CountKeys(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.PremiumKey{}).Count(&total).Error
	return total, err
}
