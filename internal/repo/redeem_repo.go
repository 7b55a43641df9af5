// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the append-only audit log of redeem
// requests. The core never reads these rows back; they exist for the admin
// and for accountability.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-premium-bot/internal/domain"
)

// CreateRedeemRequest appends one audit row for a submitted redeem request.
func CreateRedeemRequest(ctx context.Context, db *gorm.DB, userID int64, displayName, details string) (*domain.RedeemRequest, error) {
	r := &domain.RedeemRequest{
		UserID:      userID,
		DisplayName: displayName,
		Details:     details,
		CreatedAt:   time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(r).Error; err != nil {
		return nil, err
	}
	return r, nil
}
