package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/grocerybid-backend/pkg/auth"
	"github.com/angelmondragon/grocerybid-backend/pkg/config"
	"github.com/angelmondragon/grocerybid-backend/pkg/enums"
	"github.com/angelmondragon/grocerybid-backend/pkg/types"
)

var testJWT = config.JWTConfig{Secret: "secret", Issuer: "issuer", ExpirationMinutes: 60}

func signedFor(t *testing.T, cfg config.JWTConfig, userID uuid.UUID, role enums.UserRole, at time.Time) string {
	t.Helper()
	token, err := auth.MintAccessToken(cfg, at, auth.AccessTokenPayload{UserID: userID, Role: role, JTI: uuid.NewString()})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func TestAuthTurnsAwayBadCredentials(t *testing.T) {
	foreign := config.JWTConfig{Secret: "other", Issuer: "issuer", ExpirationMinutes: 60}
	stale := time.Now().Add(-3 * time.Hour)

	cases := map[string]string{
		"no header":      "",
		"basic scheme":   "Basic dXNlcjpwYXNz",
		"not a jwt":      "Bearer invalid",
		"foreign secret": "Bearer " + signedFor(t, foreign, uuid.New(), enums.UserRoleBuyer, time.Now()),
		"expired":        "Bearer " + signedFor(t, testJWT, uuid.New(), enums.UserRoleBuyer, stale),
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			reached := false
			h := Auth(testJWT, nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { reached = true }))

			req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if reached {
				t.Fatal("handler ran without credentials")
			}
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", rec.Code)
			}
			var env types.ErrorEnvelope
			if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil || env.Error.Code != "UNAUTHORIZED" {
				t.Fatalf("body = %s (%v)", rec.Body.String(), err)
			}
		})
	}
}

func TestAuthPutsActorOnContext(t *testing.T) {
	userID := uuid.New()
	token := signedFor(t, testJWT, userID, enums.UserRoleVendor, time.Now())

	var gotUser uuid.UUID
	var gotRole enums.UserRole
	h := Auth(testJWT, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var err error
		gotUser, gotRole, err = Actor(r.Context())
		if err != nil {
			t.Errorf("actor: %v", err)
		}
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if gotUser != userID || gotRole != enums.UserRoleVendor {
		t.Fatalf("actor = %s/%s, want %s/vendor", gotUser, gotRole, userID)
	}
}

func TestRequireRole(t *testing.T) {
	h := RequireRole(nil, enums.UserRoleBuyer, enums.UserRoleAdmin)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	for role, want := range map[string]int{
		string(enums.UserRoleBuyer):  http.StatusOK,
		string(enums.UserRoleAdmin):  http.StatusOK,
		string(enums.UserRoleVendor): http.StatusForbidden,
		"":                           http.StatusForbidden,
	} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req.WithContext(WithRole(req.Context(), role)))
		if rec.Code != want {
			t.Fatalf("role %q: status = %d, want %d", role, rec.Code, want)
		}
	}
}
