package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/grocerybid-backend/internal/users"
	pkgAuth "github.com/angelmondragon/grocerybid-backend/pkg/auth"
	"github.com/angelmondragon/grocerybid-backend/pkg/config"
	"github.com/angelmondragon/grocerybid-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/grocerybid-backend/pkg/errors"
	"github.com/angelmondragon/grocerybid-backend/pkg/security"
)

// Service signs users in and registers new accounts.
type Service interface {
	Login(ctx context.Context, req LoginRequest) (*TokenResponse, error)
	Register(ctx context.Context, req users.RegisterInput) (*TokenResponse, error)
}

type credentialStore interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
}

type registrar interface {
	Register(ctx context.Context, input users.RegisterInput) (*models.User, error)
}

type ServiceParams struct {
	UserRepo  credentialStore
	Registrar registrar
	JWTConfig config.JWTConfig
	// Password sets the cost of the decoy hash checked for unknown emails.
	Password config.PasswordConfig
}

type service struct {
	store     credentialStore
	registrar registrar
	jwt       config.JWTConfig
	decoy     func() string
	now       func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	var missing []error
	if params.UserRepo == nil {
		missing = append(missing, errors.New("user repository is required"))
	}
	if params.Registrar == nil {
		missing = append(missing, errors.New("registrar is required"))
	}
	if err := errors.Join(missing...); err != nil {
		return nil, err
	}
	pw := params.Password
	return &service{
		store:     params.UserRepo,
		registrar: params.Registrar,
		jwt:       params.JWTConfig,
		decoy: sync.OnceValue(func() string {
			hash, _ := security.HashPassword(uuid.NewString(), pw)
			return hash
		}),
		now: time.Now,
	}, nil
}

func errBadCredentials() error {
	return pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid credentials")
}

func (s *service) Login(ctx context.Context, req LoginRequest) (*TokenResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" {
		return nil, errBadCredentials()
	}

	user, err := s.store.FindByEmail(ctx, email)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		// burn one hash check so a missing account answers as slowly as a wrong password
		_, _ = security.VerifyPassword(req.Password, s.decoy())
		return nil, errBadCredentials()
	case err != nil:
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup user")
	}

	ok, err := security.VerifyPassword(req.Password, user.PasswordHash)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify password")
	}
	if !ok || !user.IsActive {
		return nil, errBadCredentials()
	}

	at := s.now().UTC()
	if err := s.store.UpdateLastLogin(ctx, user.ID, at); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update last login")
	}
	user.LastLoginAt = &at
	return s.tokenFor(user, at)
}

// Register creates the account through the users service and signs the
// new user in.
func (s *service) Register(ctx context.Context, req users.RegisterInput) (*TokenResponse, error) {
	user, err := s.registrar.Register(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.tokenFor(user, s.now().UTC())
}

func (s *service) tokenFor(user *models.User, at time.Time) (*TokenResponse, error) {
	token, err := pkgAuth.MintAccessToken(s.jwt, at, pkgAuth.AccessTokenPayload{UserID: user.ID, Role: user.Role})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint jwt")
	}
	return &TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   s.jwt.ExpirationMinutes * 60,
		User:        users.FromModel(user),
	}, nil
}
