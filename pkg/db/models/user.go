package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/grocerybid-backend/pkg/enums"
)

// User represents the canonical identity entity together with its wallet.
// WalletBalance and ReferralRewards only move through atomic increments.
type User struct {
	ID              uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Email           string          `gorm:"type:text;not null;uniqueIndex"`
	PasswordHash    string          `gorm:"column:password_hash;not null"`
	Name            string          `gorm:"column:name;not null"`
	Phone           *string         `gorm:"column:phone"`
	Role            enums.UserRole  `gorm:"column:role;type:user_role_enum;not null"`
	IsActive        bool            `gorm:"column:is_active;not null;default:true"`
	WalletBalance   decimal.Decimal `gorm:"column:wallet_balance;type:numeric(14,2);not null;default:0"`
	ReferralCode    string          `gorm:"column:referral_code;not null;uniqueIndex"`
	ReferredBy      *uuid.UUID      `gorm:"column:referred_by;type:uuid"`
	ReferralRewards decimal.Decimal `gorm:"column:referral_rewards;type:numeric(14,2);not null;default:0"`
	LastLoginAt     *time.Time      `gorm:"column:last_login_at"`
	CreatedAt       time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (u *User) BeforeCreate(*gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}
