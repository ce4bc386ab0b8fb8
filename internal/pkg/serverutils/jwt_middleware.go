package serverutils

import (
	"fmt"
	"strings"
	"time"

	"erp-notification-be/internal/pkg/apperror"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	LocalUserID = "user_id"
	LocalRole   = "role"
)

// Identity is the caller as established by the bearer token.
type Identity struct {
	UserID uuid.UUID
	Role   string
}

func (i Identity) IsAdmin() bool {
	return i.Role == "admin"
}

// ParseToken verifies an HS256 token and extracts the caller identity.
func ParseToken(tokenStr, secret string) (Identity, error) {
	if secret == "" {
		return Identity{}, fmt.Errorf("%w: signing secret not configured", apperror.ErrUnauthorized)
	}

	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		// Ensure Signing Method is HMAC
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return Identity{}, fmt.Errorf("%w: invalid token", apperror.ErrUnauthorized)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, fmt.Errorf("%w: invalid claims", apperror.ErrUnauthorized)
	}

	userIDStr, ok := claims["user_id"].(string)
	if !ok {
		return Identity{}, fmt.Errorf("%w: token missing user_id", apperror.ErrUnauthorized)
	}
	userID, err := uuid.Parse(userIDStr)
	if err != nil || userID == uuid.Nil {
		return Identity{}, fmt.Errorf("%w: invalid user id in token", apperror.ErrUnauthorized)
	}

	role, _ := claims["role"].(string)
	return Identity{UserID: userID, Role: role}, nil
}

// IssueToken mints a token the middleware accepts. Used by the seeder and tests;
// production tokens come from the identity provider.
func IssueToken(secret string, userID uuid.UUID, role string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"user_id": userID.String(),
		"role":    role,
		"iat":     time.Now().Unix(),
		"exp":     time.Now().Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// BearerToken reads "Authorization: Bearer <token>", falling back to the
// "token" query parameter which browsers use for WebSocket handshakes.
func BearerToken(ctx *fiber.Ctx, allowQuery bool) string {
	authHeader := ctx.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	if allowQuery {
		return ctx.Query("token")
	}
	return ""
}

func JwtMiddleware(secret string) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		tokenStr := BearerToken(ctx, false)
		if tokenStr == "" {
			return fmt.Errorf("%w: missing token", apperror.ErrUnauthorized)
		}

		identity, err := ParseToken(tokenStr, secret)
		if err != nil {
			return err
		}

		ctx.Locals(LocalUserID, identity.UserID)
		ctx.Locals(LocalRole, identity.Role)
		return ctx.Next()
	}
}

// CurrentIdentity returns the identity stored by JwtMiddleware.
func CurrentIdentity(ctx *fiber.Ctx) (Identity, error) {
	userID, ok := ctx.Locals(LocalUserID).(uuid.UUID)
	if !ok || userID == uuid.Nil {
		return Identity{}, apperror.ErrUnauthorized
	}
	role, _ := ctx.Locals(LocalRole).(string)
	return Identity{UserID: userID, Role: role}, nil
}
