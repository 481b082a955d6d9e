package middleware

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/teamhive/collab-api/internal/utils"
)

// JWTProtected returns a middleware that validates JWT bearer tokens and
// binds the authenticated principal to the request. Fail-closed: requests
// without a resolvable user ID never reach the handler, which also covers
// websocket upgrades routed through this middleware.
func JWTProtected(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authorization := c.Get("Authorization")
		if authorization == "" {
			return utils.SendError(c, fiber.StatusUnauthorized, "authorization header missing")
		}

		const bearer = "Bearer "
		if !strings.HasPrefix(strings.ToLower(authorization), strings.ToLower(bearer)) {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid authorization header")
		}

		tokenString := strings.TrimSpace(authorization[len(bearer):])
		if tokenString == "" {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid token")
		}

		token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method")
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid token")
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid token claims")
		}

		userID := extractStringClaim(claims, "sub", "user_id", "id")
		if userID == "" {
			return utils.SendError(c, fiber.StatusUnauthorized, "token missing subject")
		}

		c.Locals("user_id", userID)
		if name := extractStringClaim(claims, "name", "display_name"); name != "" {
			c.Locals("user_name", name)
		}
		if role := extractStringClaim(claims, "role"); role != "" {
			c.Locals("user_role", strings.ToLower(role))
		}

		return c.Next()
	}
}

func extractStringClaim(claims jwt.MapClaims, keys ...string) string {
	for _, key := range keys {
		value, ok := claims[key]
		if !ok {
			continue
		}
		switch v := value.(type) {
		case string:
			if trimmed := strings.TrimSpace(v); trimmed != "" {
				return trimmed
			}
		case float64:
			return fmt.Sprintf("%d", int64(v))
		}
	}
	return ""
}

// UserID returns the authenticated user ID bound by JWTProtected.
func UserID(c *fiber.Ctx) string {
	if value, ok := c.Locals("user_id").(string); ok {
		return strings.TrimSpace(value)
	}
	return ""
}
