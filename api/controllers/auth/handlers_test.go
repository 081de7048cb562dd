package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/grocerybid-backend/internal/auth"
	"github.com/angelmondragon/grocerybid-backend/internal/users"
	"github.com/angelmondragon/grocerybid-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/grocerybid-backend/pkg/errors"
)

type stubAuthService struct {
	resp       *auth.TokenResponse
	err        error
	registered users.RegisterInput
}

func (s *stubAuthService) Login(ctx context.Context, req auth.LoginRequest) (*auth.TokenResponse, error) {
	return s.resp, s.err
}

func (s *stubAuthService) Register(ctx context.Context, req users.RegisterInput) (*auth.TokenResponse, error) {
	s.registered = req
	return s.resp, s.err
}

func TestAuthLoginSuccess(t *testing.T) {
	userID := uuid.New()
	svc := &stubAuthService{resp: &auth.TokenResponse{
		AccessToken: "token",
		TokenType:   "Bearer",
		ExpiresIn:   3600,
		User:        &users.UserDTO{ID: userID, Email: "buyer@example.com", Role: enums.UserRoleBuyer},
	}}

	body := bytes.NewBufferString(`{"email":"buyer@example.com","password":"secret123"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", body)
	rec := httptest.NewRecorder()
	AuthLogin(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	var envelope struct {
		Data auth.TokenResponse `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Data.AccessToken != "token" || envelope.Data.User.ID != userID {
		t.Fatalf("unexpected payload %+v", envelope.Data)
	}
}

func TestAuthLoginValidation(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewBufferString(`{"email":"not-an-email"}`))
	rec := httptest.NewRecorder()
	AuthLogin(&stubAuthService{}, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestAuthLoginBadCredentials(t *testing.T) {
	svc := &stubAuthService{err: pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid credentials")}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewBufferString(`{"email":"a@example.com","password":"wrong"}`))
	rec := httptest.NewRecorder()
	AuthLogin(svc, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rec.Code)
	}
}

func TestAuthRegisterPassesReferralCode(t *testing.T) {
	svc := &stubAuthService{resp: &auth.TokenResponse{AccessToken: "token", User: &users.UserDTO{ID: uuid.New()}}}
	body := bytes.NewBufferString(`{"email":"new@example.com","password":"password1","name":"New User","role":"vendor","referralCode":"ABCD2345"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", body)
	rec := httptest.NewRecorder()
	AuthRegister(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.registered.ReferralCode == nil || *svc.registered.ReferralCode != "ABCD2345" {
		t.Fatalf("expected referral code forwarded, got %v", svc.registered.ReferralCode)
	}
	if svc.registered.Role != enums.UserRoleVendor {
		t.Fatalf("expected vendor role forwarded, got %s", svc.registered.Role)
	}
}

func TestAuthRegisterConflict(t *testing.T) {
	svc := &stubAuthService{err: pkgerrors.New(pkgerrors.CodeConflict, "email already registered")}
	body := bytes.NewBufferString(`{"email":"dup@example.com","password":"password1","name":"Dup"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", body)
	rec := httptest.NewRecorder()
	AuthRegister(svc, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", rec.Code)
	}
}
