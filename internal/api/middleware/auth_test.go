package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/nsvirk/attendanceapi/internal/models"
	"github.com/nsvirk/attendanceapi/internal/service"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

func TestParseToken(t *testing.T) {
	actor := service.Actor{UserID: "u1", Username: "asha", Role: models.RoleAdmin, Department: "ops"}
	tok, err := IssueToken(secret, actor, time.Hour)
	require.NoError(t, err)

	claims, err := ParseToken(secret, tok)
	require.NoError(t, err)
	require.Equal(t, actor, claims.Actor())

	_, err = ParseToken("other-secret", tok)
	require.ErrorIs(t, err, ErrInvalidToken)

	expired, err := IssueToken(secret, actor, -time.Minute)
	require.NoError(t, err)
	_, err = ParseToken(secret, expired)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseToken_RejectsOtherAlgorithms(t *testing.T) {
	claims := Claims{UserID: "u1", Role: models.RoleAdmin}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = ParseToken(secret, tok)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestClaims_DefaultRoleIsStaff(t *testing.T) {
	claims := &Claims{UserID: "u1"}
	require.Equal(t, models.RoleStaff, claims.Actor().Role)
	require.False(t, claims.Actor().IsAdmin())
}

func TestAuthMiddleware_TokenSources(t *testing.T) {
	tok, err := IssueToken(secret, service.Actor{UserID: "u1", Role: models.RoleStaff}, time.Hour)
	require.NoError(t, err)

	e := echo.New()
	handler := AuthMiddleware(secret)(func(c echo.Context) error {
		actor, ok := ActorFrom(c)
		require.True(t, ok)
		return c.String(http.StatusOK, actor.UserID)
	})

	cases := []struct {
		name   string
		header string
		query  string
		code   int
	}{
		{"bearer header", "Bearer " + tok, "", http.StatusOK},
		{"query parameter", "", "?token=" + tok, http.StatusOK},
		{"missing", "", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + tok, "", http.StatusUnauthorized},
		{"garbage", "Bearer abc", "", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/"+tc.query, nil)
			if tc.header != "" {
				req.Header.Set(echo.HeaderAuthorization, tc.header)
			}
			rec := httptest.NewRecorder()
			require.NoError(t, handler(e.NewContext(req, rec)))
			require.Equal(t, tc.code, rec.Code)
		})
	}
}

func TestServiceKeyOrAdmin_EmptyHashRejectsKeys(t *testing.T) {
	e := echo.New()
	handler := ServiceKeyOrAdmin(secret, "")(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("X-Service-Key", "anything")
	rec := httptest.NewRecorder()
	require.NoError(t, handler(e.NewContext(req, rec)))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}
