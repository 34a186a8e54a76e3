package routes

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/sede-open/Scope3EApi-sub000/database"
	"github.com/sede-open/Scope3EApi-sub000/middleware"
	"github.com/sede-open/Scope3EApi-sub000/models"
	"github.com/sede-open/Scope3EApi-sub000/services/ledger"
	"github.com/sede-open/Scope3EApi-sub000/services/policy"
)

func SetupEmissionRoutes(app *fiber.App, jwtSecret string) {
	group := app.Group("/emissions", middleware.JWT(jwtSecret))
	group.Post("/", createEmission)
	group.Get("/", listEmissions)
	group.Patch("/:id", updateEmission)
}

type emissionPayload struct {
	Year   int    `json:"year"`
	Type   string `json:"type"`
	Scope1 string `json:"scope1"`
	Scope2 string `json:"scope2"`
	Scope3 string `json:"scope3"`
	Offset string `json:"offset"`

	ScopeOneTwo     bool `json:"scope_one_two"`
	ScopeThree      bool `json:"scope_three"`
	CarbonOffsets   bool `json:"carbon_offsets"`
	CarbonIntensity bool `json:"carbon_intensity"`
	PublicLink      bool `json:"public_link"`
}

func parseScope(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(raw)
}

func requireEditor(c *fiber.Ctx) (policy.Actor, bool) {
	actor := middleware.ActorFromCtx(c)
	if actor.Role != models.RoleSupplierEditor {
		return actor, false
	}
	return actor, true
}

func createEmission(c *fiber.Ctx) error {
	actor, ok := requireEditor(c)
	if !ok {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "role may not manage emissions"})
	}

	var body emissionPayload
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid payload"})
	}

	scope1, err1 := parseScope(body.Scope1)
	scope2, err2 := parseScope(body.Scope2)
	scope3, err3 := parseScope(body.Scope3)
	offset, err4 := parseScope(body.Offset)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "scope values must be decimal numbers"})
	}

	emType := body.Type
	if emType == "" {
		emType = models.EmissionTypeActual
	}

	em := models.CorporateEmission{
		CompanyID: actor.CompanyID,
		Year:      body.Year,
		Type:      emType,
		Scope1:    scope1,
		Scope2:    scope2,
		Scope3:    scope3,
		Offset:    offset,
		Access: models.CorporateEmissionAccess{
			ScopeOneTwo:     body.ScopeOneTwo,
			ScopeThree:      body.ScopeThree,
			CarbonOffsets:   body.CarbonOffsets,
			CarbonIntensity: body.CarbonIntensity,
			PublicLink:      body.PublicLink,
		},
	}
	if err := database.DB.Create(&em).Error; err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "could not create emission record"})
	}
	return c.Status(fiber.StatusCreated).JSON(em)
}

// updateEmission edits the manually entered baseline. The submitted scope3 is
// the baseline value; allocation contributions already folded into the total
// ride on top, so the stored scope3 becomes baseline plus contributions.
func updateEmission(c *fiber.Ctx) error {
	actor, ok := requireEditor(c)
	if !ok {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "role may not manage emissions"})
	}

	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid emission id"})
	}

	var body emissionPayload
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid payload"})
	}

	scope1, err1 := parseScope(body.Scope1)
	scope2, err2 := parseScope(body.Scope2)
	scope3Baseline, err3 := parseScope(body.Scope3)
	offset, err4 := parseScope(body.Offset)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "scope values must be decimal numbers"})
	}

	var em models.CorporateEmission
	err = database.DB.Transaction(func(tx *gorm.DB) error {
		if err := database.ForUpdate(tx).First(&em, uint(id)).Error; err != nil {
			return err
		}
		if em.CompanyID != actor.CompanyID {
			return gorm.ErrRecordNotFound
		}

		contributions, err := ledger.ContributionTotal(tx, em.ID)
		if err != nil {
			return err
		}

		em.Scope1 = scope1
		em.Scope2 = scope2
		em.Scope3 = scope3Baseline.Add(contributions)
		em.Offset = offset
		return tx.Save(&em).Error
	})
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "emission record not found"})
	}
	return c.JSON(em)
}

func listEmissions(c *fiber.Ctx) error {
	actor := middleware.ActorFromCtx(c)

	var emissions []models.CorporateEmission
	database.DB.Preload("Access").
		Where("company_id = ?", actor.CompanyID).
		Order("year DESC").
		Find(&emissions)
	return c.JSON(fiber.Map{"emissions": emissions})
}
