package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/angelmondragon/grocerybid-backend/internal/wallet"
	"github.com/angelmondragon/grocerybid-backend/pkg/config"
	"github.com/angelmondragon/grocerybid-backend/pkg/db"
	"github.com/angelmondragon/grocerybid-backend/pkg/db/models"
	"github.com/angelmondragon/grocerybid-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/grocerybid-backend/pkg/errors"
	"github.com/angelmondragon/grocerybid-backend/pkg/logger"
	"github.com/angelmondragon/grocerybid-backend/pkg/outbox"
	"github.com/angelmondragon/grocerybid-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/grocerybid-backend/pkg/security"
	"github.com/angelmondragon/grocerybid-backend/pkg/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	referralCodeLength   = 8
	referralCodeAttempts = 5
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type rewardsLedger interface {
	GrantRewards(ctx context.Context, tx *gorm.DB, userID uuid.UUID, points decimal.Decimal) error
	RecordTransaction(ctx context.Context, tx *gorm.DB, txn *models.Transaction) error
	ConvertRewards(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*models.Transaction, decimal.Decimal, error)
}

// Service covers account creation, profile reads and referral rewards.
type Service interface {
	Register(ctx context.Context, input RegisterInput) (*models.User, error)
	Me(ctx context.Context, userID uuid.UUID) (*UserDTO, error)
	Referrals(ctx context.Context, userID uuid.UUID) (*ReferralSummary, error)
	ConvertRewards(ctx context.Context, userID uuid.UUID) (*ConvertResult, error)
}

// ServiceParams groups the collaborators of the users service.
type ServiceParams struct {
	Repo        *Repository
	Tx          txRunner
	Wallet      rewardsLedger
	Outbox      outboxPublisher
	Password    config.PasswordConfig
	Marketplace config.MarketplaceConfig
	Logger      *logger.Logger
}

type service struct {
	repo        *Repository
	tx          txRunner
	wallet      rewardsLedger
	outbox      outboxPublisher
	passwordCfg config.PasswordConfig
	bonuses     config.MarketplaceConfig
	logg        *logger.Logger
}

// NewService wires the users service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("users repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Wallet == nil {
		return nil, fmt.Errorf("wallet service required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{
		repo:        params.Repo,
		tx:          params.Tx,
		wallet:      params.Wallet,
		outbox:      params.Outbox,
		passwordCfg: params.Password,
		bonuses:     params.Marketplace,
		logg:        params.Logger,
	}, nil
}

// Register creates the account and, when a referral code is supplied, grants
// both sides their bonus points in the same transaction.
func (s *service) Register(ctx context.Context, input RegisterInput) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	role := input.Role
	if role == "" {
		role = enums.UserRoleBuyer
	}
	if role != enums.UserRoleBuyer && role != enums.UserRoleVendor {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "role must be buyer or vendor")
	}
	code := ""
	if input.ReferralCode != nil {
		code = strings.ToUpper(strings.TrimSpace(*input.ReferralCode))
	}

	passwordHash, err := security.HashPassword(input.Password, s.passwordCfg)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}

	var created *models.User
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		if _, err := repo.FindByEmail(ctx, email); err == nil {
			return pkgerrors.New(pkgerrors.CodeConflict, "email already registered")
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check user email")
		}

		var referrer *models.User
		if code != "" {
			found, err := repo.FindByReferralCode(ctx, code)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return pkgerrors.New(pkgerrors.CodeValidation, "invalid referral code")
				}
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve referral code")
			}
			referrer = found
		}

		ownCode, err := s.uniqueReferralCode(ctx, repo)
		if err != nil {
			return err
		}

		dto := CreateUserDTO{
			Email:        email,
			PasswordHash: passwordHash,
			Name:         name,
			Phone:        input.Phone,
			Role:         role,
			ReferralCode: ownCode,
		}
		if referrer != nil {
			dto.ReferredBy = &referrer.ID
			dto.ReferralRewards = s.bonuses.NewUserBonus
		}
		user, err := repo.Create(ctx, dto)
		if err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.New(pkgerrors.CodeConflict, "email already registered")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create user")
		}
		created = user

		if referrer == nil {
			return nil
		}
		return s.applyReferral(ctx, tx, user, referrer)
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *service) applyReferral(ctx context.Context, tx *gorm.DB, user, referrer *models.User) error {
	if err := s.wallet.GrantRewards(ctx, tx, referrer.ID, s.bonuses.ReferrerBonus); err != nil {
		return err
	}

	audit := []models.Transaction{
		{
			UserID:      referrer.ID,
			Amount:      s.bonuses.ReferrerBonus,
			Type:        enums.TransactionReferralCommission,
			ReferenceID: &user.ID,
			Description: strPtr("referral bonus points for inviting " + user.Email),
		},
		{
			UserID:      user.ID,
			Amount:      s.bonuses.NewUserBonus,
			Type:        enums.TransactionDeposit,
			ReferenceID: &referrer.ID,
			Description: strPtr("referral signup bonus points"),
		},
	}
	for i := range audit {
		audit[i].Status = enums.TransactionStatusCompleted
		if err := s.wallet.RecordTransaction(ctx, tx, &audit[i]); err != nil {
			return err
		}
	}

	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventReferralRegistered,
		AggregateType: enums.AggregateUser,
		AggregateID:   user.ID,
		Actor:         &outbox.ActorRef{UserID: user.ID, Role: string(user.Role)},
		Data: payloads.ReferralRegisteredEvent{
			UserID:        user.ID,
			ReferrerID:    referrer.ID,
			NewUserBonus:  s.bonuses.NewUserBonus,
			ReferrerBonus: s.bonuses.ReferrerBonus,
		},
	})
}

func (s *service) uniqueReferralCode(ctx context.Context, repo *Repository) (string, error) {
	for attempt := 0; attempt < referralCodeAttempts; attempt++ {
		code, err := security.GenerateReferralCode(referralCodeLength)
		if err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate referral code")
		}
		taken, err := repo.ReferralCodeTaken(ctx, code)
		if err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check referral code")
		}
		if !taken {
			return code, nil
		}
	}
	return "", pkgerrors.New(pkgerrors.CodeConflict, "could not allocate a referral code")
}

func (s *service) Me(ctx context.Context, userID uuid.UUID) (*UserDTO, error) {
	user, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	return FromModel(user), nil
}

func (s *service) Referrals(ctx context.Context, userID uuid.UUID) (*ReferralSummary, error) {
	user, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	count, err := s.repo.CountReferred(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count referrals")
	}
	return &ReferralSummary{
		ReferralCode:  user.ReferralCode,
		Rewards:       types.NewMoney(user.ReferralRewards),
		ReferredCount: count,
	}, nil
}

// ConvertRewards moves every reward point into the wallet balance.
func (s *service) ConvertRewards(ctx context.Context, userID uuid.UUID) (*ConvertResult, error) {
	var (
		txn     *models.Transaction
		balance decimal.Decimal
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		txn, balance, err = s.wallet.ConvertRewards(ctx, tx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"user_id":   userID.String(),
			"converted": txn.Amount.StringFixed(2),
		})
		s.logg.Info(logCtx, "referral rewards converted")
	}
	return &ConvertResult{
		Converted:   types.NewMoney(txn.Amount),
		Balance:     types.NewMoney(balance),
		Transaction: wallet.FromModel(txn),
	}, nil
}

func (s *service) load(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
	}
	return user, nil
}

func strPtr(value string) *string {
	return &value
}
