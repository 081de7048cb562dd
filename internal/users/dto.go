package users

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/grocerybid-backend/internal/wallet"
	"github.com/angelmondragon/grocerybid-backend/pkg/db/models"
	"github.com/angelmondragon/grocerybid-backend/pkg/enums"
	"github.com/angelmondragon/grocerybid-backend/pkg/types"
)

// RegisterInput is the body of POST /auth/register.
type RegisterInput struct {
	Email        string         `json:"email" validate:"required,email"`
	Password     string         `json:"password" validate:"required,min=8"`
	Name         string         `json:"name" validate:"required"`
	Phone        *string        `json:"phone,omitempty"`
	Role         enums.UserRole `json:"role,omitempty"`
	ReferralCode *string        `json:"referralCode,omitempty"`
}

// UserDTO is the transport shape that omits sensitive credentials.
type UserDTO struct {
	ID              uuid.UUID      `json:"id"`
	Email           string         `json:"email"`
	Name            string         `json:"name"`
	Phone           *string        `json:"phone,omitempty"`
	Role            enums.UserRole `json:"role"`
	IsActive        bool           `json:"isActive"`
	WalletBalance   types.Money    `json:"walletBalance"`
	ReferralCode    string         `json:"referralCode"`
	ReferredBy      *uuid.UUID     `json:"referredBy,omitempty"`
	ReferralRewards types.Money    `json:"referralRewards"`
	LastLoginAt     *time.Time     `json:"lastLoginAt,omitempty"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
}

// ReferralSummary is returned by GET /users/referrals.
type ReferralSummary struct {
	ReferralCode  string      `json:"referralCode"`
	Rewards       types.Money `json:"rewards"`
	ReferredCount int64       `json:"referredCount"`
}

// ConvertResult is returned by POST /users/referrals/convert.
type ConvertResult struct {
	Converted   types.Money            `json:"converted"`
	Balance     types.Money            `json:"balance"`
	Transaction *wallet.TransactionDTO `json:"transaction"`
}

// CreateUserDTO holds the data required by the repo to persist a new user.
type CreateUserDTO struct {
	Email           string
	PasswordHash    string
	Name            string
	Phone           *string
	Role            enums.UserRole
	ReferralCode    string
	ReferredBy      *uuid.UUID
	ReferralRewards decimal.Decimal
	IsActive        *bool
}

func FromModel(u *models.User) *UserDTO {
	if u == nil {
		return nil
	}

	return &UserDTO{
		ID:              u.ID,
		Email:           u.Email,
		Name:            u.Name,
		Phone:           u.Phone,
		Role:            u.Role,
		IsActive:        u.IsActive,
		WalletBalance:   types.NewMoney(u.WalletBalance),
		ReferralCode:    u.ReferralCode,
		ReferredBy:      u.ReferredBy,
		ReferralRewards: types.NewMoney(u.ReferralRewards),
		LastLoginAt:     u.LastLoginAt,
		CreatedAt:       u.CreatedAt,
		UpdatedAt:       u.UpdatedAt,
	}
}

func (c CreateUserDTO) ToModel() *models.User {
	isActive := true
	if c.IsActive != nil {
		isActive = *c.IsActive
	}

	return &models.User{
		Email:           c.Email,
		PasswordHash:    c.PasswordHash,
		Name:            c.Name,
		Phone:           c.Phone,
		Role:            c.Role,
		IsActive:        isActive,
		ReferralCode:    c.ReferralCode,
		ReferredBy:      c.ReferredBy,
		ReferralRewards: c.ReferralRewards,
	}
}
