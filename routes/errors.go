package routes

import (
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/sede-open/Scope3EApi-sub000/services/apperr"
)

// renderError maps the service error taxonomy to HTTP responses. Forbidden
// errors stay distinguishable from validation/not-found so clients can render
// "no access" rather than "bad request"; aggregation inconsistencies are
// logged with detail but surfaced generically.
func renderError(c *fiber.Ctx, err error) error {
	switch apperr.KindOf(err) {
	case apperr.KindForbidden:
		body := fiber.Map{"error": err.Error()}
		if code := apperr.CodeOf(err); code != "" {
			body["code"] = code
		}
		return c.Status(fiber.StatusForbidden).JSON(body)
	case apperr.KindNotFound:
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case apperr.KindValidation, apperr.KindInvalidTransition:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case apperr.KindAggregationInconsistency:
		log.Printf("[ERROR] aggregation inconsistency: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
	default:
		log.Printf("[ERROR] unhandled error: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
	}
}
