package routes

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/sede-open/Scope3EApi-sub000/middleware"
	"github.com/sede-open/Scope3EApi-sub000/services/allocation"
)

func SetupAllocationRoutes(app *fiber.App, svc *allocation.Service, jwtSecret string) {
	group := app.Group("/allocations", middleware.JWT(jwtSecret))
	group.Post("/", createAllocation(svc))
	group.Get("/", listAllocations(svc))
	group.Patch("/:id", updateAllocation(svc))
	group.Delete("/:id", deleteAllocation(svc))
}

type allocationCreatePayload struct {
	SupplierID         uint    `json:"supplier_id"`
	CustomerID         uint    `json:"customer_id"`
	Year               int     `json:"year"`
	Emissions          *string `json:"emissions"`
	AllocationMethod   string  `json:"allocation_method"`
	Note               string  `json:"note"`
	SupplierEmissionID *uint   `json:"supplier_emission_id"`
}

type allocationUpdatePayload struct {
	Status                    string  `json:"status"`
	Emissions                 *string `json:"emissions"`
	AllocationMethod          string  `json:"allocation_method"`
	Note                      string  `json:"note"`
	Category                  *string `json:"category"`
	AddedToCustomerScopeTotal bool    `json:"added_to_customer_scope_total"`
	SupplierEmissionID        *uint   `json:"supplier_emission_id"`
}

func parseEmissions(raw *string) (*decimal.Decimal, error) {
	if raw == nil {
		return nil, nil
	}
	d, err := decimal.NewFromString(*raw)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func createAllocation(svc *allocation.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body allocationCreatePayload
		if err := c.BodyParser(&body); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid payload"})
		}

		emissions, err := parseEmissions(body.Emissions)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "emissions must be a decimal number"})
		}

		a, err := svc.Create(c.Context(), middleware.ActorFromCtx(c), allocation.CreateInput{
			SupplierID:         body.SupplierID,
			CustomerID:         body.CustomerID,
			Year:               body.Year,
			Emissions:          emissions,
			AllocationMethod:   body.AllocationMethod,
			Note:               body.Note,
			SupplierEmissionID: body.SupplierEmissionID,
		})
		if err != nil {
			return renderError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(a)
	}
}

func updateAllocation(svc *allocation.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := strconv.ParseUint(c.Params("id"), 10, 64)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid allocation id"})
		}

		var body allocationUpdatePayload
		if err := c.BodyParser(&body); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid payload"})
		}

		emissions, err := parseEmissions(body.Emissions)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "emissions must be a decimal number"})
		}

		a, err := svc.Update(c.Context(), middleware.ActorFromCtx(c), uint(id), allocation.UpdateInput{
			Status:                    body.Status,
			Emissions:                 emissions,
			AllocationMethod:          body.AllocationMethod,
			Note:                      body.Note,
			Category:                  body.Category,
			AddedToCustomerScopeTotal: body.AddedToCustomerScopeTotal,
			SupplierEmissionID:        body.SupplierEmissionID,
		})
		if err != nil {
			return renderError(c, err)
		}
		return c.JSON(a)
	}
}

func deleteAllocation(svc *allocation.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := strconv.ParseUint(c.Params("id"), 10, 64)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid allocation id"})
		}

		if err := svc.Delete(c.Context(), middleware.ActorFromCtx(c), uint(id)); err != nil {
			return renderError(c, err)
		}
		return c.JSON(fiber.Map{"deleted": true})
	}
}

func listAllocations(svc *allocation.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor := middleware.ActorFromCtx(c)

		companyID := actor.CompanyID
		if raw := c.Query("company_id"); raw != "" {
			parsed, err := strconv.ParseUint(raw, 10, 64)
			if err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid company_id"})
			}
			companyID = uint(parsed)
		}

		year, _ := strconv.Atoi(c.Query("year"))

		allocs, err := svc.List(c.Context(), actor, companyID, allocation.ListFilter{
			Direction: c.Query("direction"),
			Year:      year,
		})
		if err != nil {
			return renderError(c, err)
		}
		return c.JSON(fiber.Map{"allocations": allocs})
	}
}
