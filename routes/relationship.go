package routes

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/sede-open/Scope3EApi-sub000/database"
	"github.com/sede-open/Scope3EApi-sub000/middleware"
	"github.com/sede-open/Scope3EApi-sub000/models"
	"github.com/sede-open/Scope3EApi-sub000/services/dispatch"
	"github.com/sede-open/Scope3EApi-sub000/services/policy"
	"github.com/sede-open/Scope3EApi-sub000/utils"
)

func SetupRelationshipRoutes(app *fiber.App, dispatcher *dispatch.Dispatcher, jwtSecret string) {
	group := app.Group("/relationships", middleware.JWT(jwtSecret))
	group.Post("/", inviteRelationship(dispatcher))
	group.Get("/", listRelationships)
	group.Patch("/:id", respondToRelationship)
}

type invitePayload struct {
	CompanyID  uint   `json:"company_id"`
	InviteType string `json:"invite_type"` // CUSTOMER_INVITED or SUPPLIER_INVITED
}

type respondPayload struct {
	Approve bool `json:"approve"`
}

// inviteRelationship creates the directed invitation: the inviter names the
// counterparty and whether they are inviting them as their customer or their
// supplier. The invited side holds the pending approval.
func inviteRelationship(dispatcher *dispatch.Dispatcher) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor := middleware.ActorFromCtx(c)
		if actor.Role != models.RoleSupplierEditor {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "role may not send invitations"})
		}

		var body invitePayload
		if err := c.BodyParser(&body); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid payload"})
		}
		if body.CompanyID == actor.CompanyID {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "cannot invite your own company"})
		}

		var own models.Company
		if err := database.DB.First(&own, actor.CompanyID).Error; err != nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "company not found"})
		}
		if err := policy.CheckCompanyTransactable(own.Status); err != nil {
			return renderError(c, err)
		}

		var invited models.Company
		if err := database.DB.First(&invited, body.CompanyID).Error; err != nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "invited company not found"})
		}

		rel := models.CompanyRelationship{
			InviteCode: utils.GenerateInviteCode(),
			InviteType: body.InviteType,
		}
		switch body.InviteType {
		case models.InviteTypeCustomerInvited:
			// Inviter acts as supplier; the invited customer must approve.
			rel.SupplierID = actor.CompanyID
			rel.CustomerID = body.CompanyID
			rel.Status = models.RelationshipStatusAwaitingCustomerApproval
		case models.InviteTypeSupplierInvited:
			rel.SupplierID = body.CompanyID
			rel.CustomerID = actor.CompanyID
			rel.Status = models.RelationshipStatusAwaitingSupplierApproval
		default:
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid invite_type"})
		}

		if err := database.DB.Create(&rel).Error; err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "relationship already exists"})
		}

		dispatcher.RelationshipInvited(c.Context(), &rel, actor.CompanyID)
		return c.Status(fiber.StatusCreated).JSON(rel)
	}
}

// respondToRelationship lets the awaited side approve or decline.
func respondToRelationship(c *fiber.Ctx) error {
	actor := middleware.ActorFromCtx(c)
	if actor.Role != models.RoleSupplierEditor {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "role may not respond to invitations"})
	}

	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid relationship id"})
	}

	var body respondPayload
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid payload"})
	}

	var rel models.CompanyRelationship
	err = database.DB.Transaction(func(tx *gorm.DB) error {
		if err := database.ForUpdate(tx).First(&rel, uint(id)).Error; err != nil {
			return err
		}

		switch rel.Status {
		case models.RelationshipStatusAwaitingCustomerApproval:
			if actor.CompanyID != rel.CustomerID {
				return fiber.ErrForbidden
			}
		case models.RelationshipStatusAwaitingSupplierApproval:
			if actor.CompanyID != rel.SupplierID {
				return fiber.ErrForbidden
			}
		default:
			return fiber.ErrBadRequest
		}

		if body.Approve {
			rel.Status = models.RelationshipStatusApproved
		} else {
			rel.Status = models.RelationshipStatusDeclined
		}
		return tx.Save(&rel).Error
	})
	if err != nil {
		switch err {
		case fiber.ErrForbidden:
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "not the awaited party"})
		case fiber.ErrBadRequest:
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invitation already settled"})
		default:
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "relationship not found"})
		}
	}
	return c.JSON(rel)
}

func listRelationships(c *fiber.Ctx) error {
	actor := middleware.ActorFromCtx(c)

	var rels []models.CompanyRelationship
	database.DB.
		Where("supplier_id = ? OR customer_id = ?", actor.CompanyID, actor.CompanyID).
		Order("created_at DESC").
		Find(&rels)
	return c.JSON(fiber.Map{"relationships": rels})
}
