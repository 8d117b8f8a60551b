package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/nsvirk/attendanceapi/internal/models"
	"github.com/nsvirk/attendanceapi/internal/service"
	"github.com/nsvirk/attendanceapi/pkg/utils/response"
	"golang.org/x/crypto/bcrypt"
)

const (
	actorKey      = "actor"
	serviceKeyHdr = "X-Service-Key"
	tokenIssuer   = "attendanceapi"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims is the payload of an access token
type Claims struct {
	UserID     string `json:"user_id"`
	Username   string `json:"username"`
	Role       string `json:"role"`
	Department string `json:"department,omitempty"`
	Position   string `json:"position,omitempty"`
	jwt.RegisteredClaims
}

// Actor converts the claims into the caller of a session operation
func (c *Claims) Actor() service.Actor {
	role := c.Role
	if role == "" {
		role = models.RoleStaff
	}
	return service.Actor{
		UserID:     c.UserID,
		Username:   c.Username,
		Role:       role,
		Department: c.Department,
		Position:   c.Position,
	}
}

// IssueToken signs an access token for actor valid for ttl
func IssueToken(secret string, actor service.Actor, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:     actor.UserID,
		Username:   actor.Username,
		Role:       actor.Role,
		Department: actor.Department,
		Position:   actor.Position,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.UserID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseToken verifies an access token and returns its claims
func ParseToken(secret, tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// HashServiceKey returns the bcrypt hash stored in ATT_API_SWEEPER_KEY_HASH
func HashServiceKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// AuthMiddleware creates a new authorization middleware. The token is read
// from the `Authorization: Bearer` header, or from the `token` query
// parameter for websockets and unload beacons which cannot set headers.
func AuthMiddleware(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tokenString := bearerToken(c)
			if tokenString == "" {
				return response.ErrorResponse(c, http.StatusUnauthorized, response.AuthorizationException, "Missing Authorization header")
			}
			claims, err := ParseToken(secret, tokenString)
			if err != nil {
				return response.ErrorResponse(c, http.StatusUnauthorized, response.AuthorizationException, "Invalid or expired token")
			}
			c.Set(actorKey, claims.Actor())
			return next(c)
		}
	}
}

// AdminOnly rejects callers without the admin role. It runs after AuthMiddleware.
func AdminOnly(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		actor, ok := ActorFrom(c)
		if !ok || !actor.IsAdmin() {
			return response.ErrorResponse(c, http.StatusForbidden, response.PermissionException, "Admin role required")
		}
		return next(c)
	}
}

// ServiceKeyOrAdmin admits either a scheduler presenting the service key or
// an admin token
func ServiceKeyOrAdmin(secret, keyHash string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if key := c.Request().Header.Get(serviceKeyHdr); key != "" {
				if keyHash == "" || bcrypt.CompareHashAndPassword([]byte(keyHash), []byte(key)) != nil {
					return response.ErrorResponse(c, http.StatusUnauthorized, response.AuthorizationException, "Invalid service key")
				}
				return next(c)
			}
			return AuthMiddleware(secret)(AdminOnly(next))(c)
		}
	}
}

// ActorFrom returns the authenticated caller set by AuthMiddleware
func ActorFrom(c echo.Context) (service.Actor, bool) {
	actor, ok := c.Get(actorKey).(service.Actor)
	return actor, ok
}

func bearerToken(c echo.Context) string {
	auth := c.Request().Header.Get("Authorization")
	if auth != "" {
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	return c.QueryParam("token")
}
