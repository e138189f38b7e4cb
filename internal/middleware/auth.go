package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/Majdabbassi/chellymobil-sub000/pkg/utils"
)

// AuthRequired validates the guardian's bearer token. The raw token is kept
// in locals because the club backend accepts the same credential; clubapi
// forwards it on every collaborator call.
func AuthRequired(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing authorization header",
			})
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid authorization header format",
			})
		}

		tokenString := parts[1]
		claims, err := utils.ValidateToken(tokenString, secret)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired token",
			})
		}

		c.Locals("guardian_id", claims.GuardianID)
		c.Locals("token", tokenString)

		return c.Next()
	}
}
