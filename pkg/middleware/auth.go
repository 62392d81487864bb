package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// Auth verifies a bearer token minted by the external identity provider
// and stashes the caller's identity in locals. Turf never issues tokens
// itself.
func Auth(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		auth := c.Get("Authorization")
		if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
			return c.Status(401).JSON(fiber.Map{"error": "missing token"})
		}

		userID, username, ok := ParseToken(auth[7:], secret)
		if !ok {
			return c.Status(401).JSON(fiber.Map{"error": "invalid token"})
		}

		c.Locals("user_id", userID)
		c.Locals("username", username)
		return c.Next()
	}
}

// OptionalAuth resolves the caller's identity when a token is present
// but lets anonymous requests through.
func OptionalAuth(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		auth := c.Get("Authorization")
		if strings.HasPrefix(auth, "Bearer ") {
			if userID, username, ok := ParseToken(auth[7:], secret); ok {
				c.Locals("user_id", userID)
				c.Locals("username", username)
			}
		}
		return c.Next()
	}
}

// ParseToken extracts the identity claims from a JWT. Returns ok=false on
// any validation failure.
func ParseToken(tokenStr, secret string) (userID, username string, ok bool) {
	token, err := jwt.ParseWithClaims(tokenStr, &jwt.MapClaims{}, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return "", "", false
	}

	claims := token.Claims.(*jwt.MapClaims)
	userID, _ = (*claims)["user_id"].(string)
	if userID == "" {
		userID, _ = (*claims)["sub"].(string)
	}
	username, _ = (*claims)["username"].(string)
	if userID == "" {
		return "", "", false
	}
	return userID, username, true
}

// Admin gates moderation endpoints on the shared admin key.
func Admin(adminKey string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Get("X-Admin-Key") != adminKey {
			return c.Status(403).JSON(fiber.Map{"error": "admin key required"})
		}
		return c.Next()
	}
}
