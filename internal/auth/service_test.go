package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/angelmondragon/grocerybid-backend/internal/users"
	pkgAuth "github.com/angelmondragon/grocerybid-backend/pkg/auth"
	"github.com/angelmondragon/grocerybid-backend/pkg/config"
	"github.com/angelmondragon/grocerybid-backend/pkg/db/models"
	"github.com/angelmondragon/grocerybid-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/grocerybid-backend/pkg/errors"
	"github.com/angelmondragon/grocerybid-backend/pkg/security"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var testJWTConfig = config.JWTConfig{
	Secret:            "secret",
	Issuer:            "grocerybid",
	ExpirationMinutes: 30,
}

func TestServiceLoginIssuesRoleClaim(t *testing.T) {
	password := "vendor-secret"
	user := &models.User{
		ID:           uuid.New(),
		Email:        "vendor@example.com",
		PasswordHash: mustHashPassword(t, password),
		Name:         "Vendor",
		Role:         enums.UserRoleVendor,
		IsActive:     true,
	}
	repo := &stubUserRepo{user: user}
	svc := buildTestService(t, repo, &stubRegistrar{})

	resp, err := svc.Login(context.Background(), LoginRequest{
		Email:    "  VENDOR@example.com ",
		Password: password,
	})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if repo.lookedUp != "vendor@example.com" {
		t.Fatalf("expected normalized email lookup, got %q", repo.lookedUp)
	}

	claims, err := pkgAuth.ParseAccessToken(testJWTConfig, resp.AccessToken)
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}
	if claims.Role != enums.UserRoleVendor {
		t.Fatalf("expected vendor role claim, got %s", claims.Role)
	}
	if claims.UserID != user.ID {
		t.Fatalf("expected user id claim %s, got %s", user.ID, claims.UserID)
	}
	if resp.ExpiresIn != 1800 {
		t.Fatalf("expected 1800 seconds, got %d", resp.ExpiresIn)
	}
	if user.LastLoginAt == nil {
		t.Fatalf("expected last login to be recorded")
	}
}

func TestServiceLoginRejectsBadCredentials(t *testing.T) {
	user := &models.User{
		ID:           uuid.New(),
		Email:        "buyer@example.com",
		PasswordHash: mustHashPassword(t, "right"),
		Role:         enums.UserRoleBuyer,
		IsActive:     true,
	}

	cases := map[string]struct {
		repo     *stubUserRepo
		password string
	}{
		"wrong password": {repo: &stubUserRepo{user: user}, password: "wrong"},
		"unknown email":  {repo: &stubUserRepo{err: gorm.ErrRecordNotFound}, password: "right"},
		"inactive user": {repo: &stubUserRepo{user: &models.User{
			ID: uuid.New(), Email: "off@example.com", PasswordHash: user.PasswordHash, Role: enums.UserRoleBuyer,
		}}, password: "right"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			svc := buildTestService(t, tc.repo, &stubRegistrar{})
			_, err := svc.Login(context.Background(), LoginRequest{Email: "buyer@example.com", Password: tc.password})
			if !pkgerrors.Is(err, pkgerrors.CodeUnauthorized) {
				t.Fatalf("expected unauthorized error, got %v", err)
			}
		})
	}
}

func TestServiceRegisterReturnsToken(t *testing.T) {
	created := &models.User{ID: uuid.New(), Email: "new@example.com", Role: enums.UserRoleBuyer, IsActive: true}
	svc := buildTestService(t, &stubUserRepo{}, &stubRegistrar{user: created})

	resp, err := svc.Register(context.Background(), users.RegisterInput{Email: "new@example.com", Password: "password1", Name: "New"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	claims, err := pkgAuth.ParseAccessToken(testJWTConfig, resp.AccessToken)
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}
	if claims.UserID != created.ID {
		t.Fatalf("expected claims for the new user")
	}
	if resp.User == nil || resp.User.Email != "new@example.com" {
		t.Fatalf("expected user in response, got %+v", resp.User)
	}
}

func TestServiceRegisterPropagatesErrors(t *testing.T) {
	conflict := pkgerrors.New(pkgerrors.CodeConflict, "email already registered")
	svc := buildTestService(t, &stubUserRepo{}, &stubRegistrar{err: conflict})

	_, err := svc.Register(context.Background(), users.RegisterInput{Email: "dup@example.com"})
	if !errors.Is(err, conflict) {
		t.Fatalf("expected registrar error, got %v", err)
	}
}

func TestServiceLoginChecksDecoyForUnknownEmail(t *testing.T) {
	svc := buildTestService(t, &stubUserRepo{err: gorm.ErrRecordNotFound}, &stubRegistrar{}).(*service)
	decoys := 0
	hash := mustHashPassword(t, "unused")
	svc.decoy = func() string { decoys++; return hash }

	_, err := svc.Login(context.Background(), LoginRequest{Email: "ghost@example.com", Password: "guess"})
	if !pkgerrors.Is(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized error, got %v", err)
	}
	if decoys != 1 {
		t.Fatalf("expected one decoy verification, got %d", decoys)
	}

	_, err = svc.Login(context.Background(), LoginRequest{Email: "   ", Password: "guess"})
	if !pkgerrors.Is(err, pkgerrors.CodeUnauthorized) || decoys != 1 {
		t.Fatalf("blank email should fail before lookup, err=%v decoys=%d", err, decoys)
	}
}

func TestServiceLoginSurfacesStoreFailures(t *testing.T) {
	svc := buildTestService(t, &stubUserRepo{err: errors.New("connection refused")}, &stubRegistrar{})
	_, err := svc.Login(context.Background(), LoginRequest{Email: "buyer@example.com", Password: "x"})
	if !pkgerrors.Is(err, pkgerrors.CodeInternal) {
		t.Fatalf("expected internal error, got %v", err)
	}
}

func TestNewServiceListsMissingDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{})
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"user repository", "registrar"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q does not mention %s", err, want)
		}
	}
}

func buildTestService(t *testing.T, repo *stubUserRepo, reg *stubRegistrar) Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		UserRepo:  repo,
		Registrar: reg,
		JWTConfig: testJWTConfig,
	})
	if err != nil {
		t.Fatalf("build service: %v", err)
	}
	return svc
}

func mustHashPassword(t *testing.T, password string) string {
	t.Helper()
	hash, err := security.HashPassword(password, config.PasswordConfig{})
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return hash
}

type stubUserRepo struct {
	user     *models.User
	err      error
	lookedUp string
}

func (s *stubUserRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	s.lookedUp = email
	if s.err != nil {
		return nil, s.err
	}
	return s.user, nil
}

func (s *stubUserRepo) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	if s.user != nil && s.user.ID == id {
		s.user.LastLoginAt = &at
	}
	return nil
}

type stubRegistrar struct {
	user *models.User
	err  error
}

func (s *stubRegistrar) Register(ctx context.Context, input users.RegisterInput) (*models.User, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.user, nil
}
