package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/sede-open/Scope3EApi-sub000/services/policy"
)

// JWT validates the bearer token and stores the actor identity in locals.
// The secret is injected at route setup time, not read from the environment
// on every request.
func JWT(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing authorization header"})
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid token"})
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid token claims"})
		}

		userID, uok := claims["user_id"].(float64)
		companyID, cok := claims["company_id"].(float64)
		role, rok := claims["role"].(string)
		if !uok || !cok || !rok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid token claims"})
		}

		c.Locals("actor", policy.Actor{
			UserID:    uint(userID),
			CompanyID: uint(companyID),
			Role:      role,
		})
		return c.Next()
	}
}

// ActorFromCtx returns the actor stored by the JWT middleware.
func ActorFromCtx(c *fiber.Ctx) policy.Actor {
	actor, _ := c.Locals("actor").(policy.Actor)
	return actor
}
