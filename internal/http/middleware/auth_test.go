package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/primestride/atlas-backend/internal/platform/ctxutil"
	"github.com/primestride/atlas-backend/internal/platform/logger"
)

const testSecret = "test-secret"

func signToken(t *testing.T, method jwt.SigningMethod, key any, claims Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func validClaims(userID, orgID uuid.UUID, role string, teams ...string) Claims {
	return Claims{
		OrganizationID: orgID.String(),
		Role:           role,
		TeamIDs:        teams,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
}

func authRouter(am *AuthMiddleware, seen **ctxutil.RequestData) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(am.RequireAuth())
	r.GET("/me", func(c *gin.Context) {
		*seen = ctxutil.GetRequestData(c.Request.Context())
		c.Status(http.StatusOK)
	})
	r.POST("/admin", am.RequireAdmin(), func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestRequireAuthPopulatesRequestData(t *testing.T) {
	am := NewAuthMiddleware(logger.Nop(), testSecret)
	var seen *ctxutil.RequestData
	r := authRouter(am, &seen)

	userID, orgID, team := uuid.New(), uuid.New(), uuid.New()
	token := signToken(t, jwt.SigningMethodHS256, []byte(testSecret), validClaims(userID, orgID, "member", team.String()))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	if seen == nil || seen.UserID != userID || seen.OrganizationID != orgID || seen.Role != ctxutil.RoleMember {
		t.Fatalf("request data = %+v", seen)
	}
	if len(seen.TeamIDs) != 1 || seen.TeamIDs[0] != team {
		t.Fatalf("team ids = %v", seen.TeamIDs)
	}
}

func TestRequireAuthRejects(t *testing.T) {
	am := NewAuthMiddleware(logger.Nop(), testSecret)
	var seen *ctxutil.RequestData
	r := authRouter(am, &seen)
	userID, orgID := uuid.New(), uuid.New()

	expired := validClaims(userID, orgID, "admin")
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	noExpiry := validClaims(userID, orgID, "admin")
	noExpiry.ExpiresAt = nil
	badOrg := validClaims(userID, orgID, "admin")
	badOrg.OrganizationID = "acme"

	cases := map[string]string{
		"missing":      "",
		"garbage":      "Bearer not-a-token",
		"wrong secret": "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte("other"), validClaims(userID, orgID, "admin")),
		"wrong alg":    "Bearer " + signToken(t, jwt.SigningMethodHS512, []byte(testSecret), validClaims(userID, orgID, "admin")),
		"expired":      "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret), expired),
		"no expiry":    "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret), noExpiry),
		"bad org":      "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret), badOrg),
	}
	for name, header := range cases {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: status = %d, want 401", name, rec.Code)
		}
	}
}

func TestRequireAdmin(t *testing.T) {
	am := NewAuthMiddleware(logger.Nop(), testSecret)
	var seen *ctxutil.RequestData
	r := authRouter(am, &seen)
	userID, orgID := uuid.New(), uuid.New()

	for role, want := range map[string]int{"admin": http.StatusOK, "member": http.StatusForbidden, "owner": http.StatusForbidden} {
		token := signToken(t, jwt.SigningMethodHS256, []byte(testSecret), validClaims(userID, orgID, role))
		req := httptest.NewRequest(http.MethodPost, "/admin?token="+token, nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != want {
			t.Fatalf("role %s: status = %d, want %d", role, rec.Code, want)
		}
	}
}
