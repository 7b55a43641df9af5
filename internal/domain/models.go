// Package domain defines the persistence models for user accounts, premium
// keys, and redeem requests. These types are mapped with GORM and form the
// core data layer of the entitlement bot.
package domain

import "time"

// PendingMode is the closed set of inputs a user session may be waiting for.
// The zero value (PendingNone) means the session is idle. Values are stored
// as strings in the users table; the router handles every member explicitly
// and resets unknown values instead of letting them fall through.
type PendingMode string

const (
	// PendingNone means no input is expected; the next free-text message
	// simply re-sends the menu.
	PendingNone PendingMode = ""
	// PendingRedeemDetails means the next free-text message is treated as
	// the details of a redeem request.
	PendingRedeemDetails PendingMode = "redeem_details"
	// PendingKey means the next free-text message is treated as a premium
	// key to activate.
	PendingKey PendingMode = "await_key"
)

// Valid reports whether m is a member of the closed PendingMode set.
func (m PendingMode) Valid() bool {
	switch m {
	case PendingNone, PendingRedeemDetails, PendingKey:
		return true
	}
	return false
}

// UserAccount represents a bot user and the entitlement state attached to it.
//
// Fields:
//   - ID: external Telegram user id, immutable primary key.
//   - DisplayName: refreshed on every observed interaction.
//   - Banned: once set, all commands are rejected until an admin unban.
//   - FreeRedeemUsed: set after the first accepted redeem request while
//     not premium; never cleared.
//   - PremiumUntil: entitlement is active iff present and strictly in the
//     future. NULL means the user never activated a key.
//   - PendingMode: transient session state, cleared when the awaited input
//     is resolved.
type UserAccount struct {
	ID             int64       `json:"id"               gorm:"primaryKey;autoIncrement:false"`
	DisplayName    string      `json:"display_name"     gorm:"type:varchar(128);not null;default:''"`
	Banned         bool        `json:"banned"           gorm:"not null;default:false"`
	FreeRedeemUsed bool        `json:"free_redeem_used" gorm:"not null;default:false"`
	PremiumUntil   *time.Time  `json:"premium_until,omitempty"`
	PendingMode    PendingMode `json:"pending_mode"     gorm:"type:varchar(32);not null;default:''"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// TableName returns the database table name for UserAccount.
func (UserAccount) TableName() string { return "users" }

// PremiumKey is a single-use redemption token issued by the admin. A key
// exists in the keys table until its first successful consumption, which
// removes the row permanently. ExpiresAt bounds the entitlement window
// granted on activation, not the consumability of the key itself.
type PremiumKey struct {
	Token     string    `json:"token"      gorm:"type:varchar(64);primaryKey"`
	ExpiresAt time.Time `json:"expires_at" gorm:"not null"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for PremiumKey.
func (PremiumKey) TableName() string { return "keys" }

// RedeemRequest is an append-only audit record of a redeem submission. It is
// forwarded to the admin and retained for accountability; the core logic
// never reads it back.
type RedeemRequest struct {
	ID          uint      `json:"id"           gorm:"primaryKey;autoIncrement"`
	UserID      int64     `json:"user_id"      gorm:"not null;index"`
	DisplayName string    `json:"display_name" gorm:"type:varchar(128);not null;default:''"`
	Details     string    `json:"details"      gorm:"type:text;not null"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName returns the database table name for RedeemRequest.
func (RedeemRequest) TableName() string { return "redeem_requests" }
