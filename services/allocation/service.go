package allocation

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/sede-open/Scope3EApi-sub000/database"
	"github.com/sede-open/Scope3EApi-sub000/models"
	"github.com/sede-open/Scope3EApi-sub000/services/apperr"
	"github.com/sede-open/Scope3EApi-sub000/services/dispatch"
	"github.com/sede-open/Scope3EApi-sub000/services/ledger"
	"github.com/sede-open/Scope3EApi-sub000/services/policy"
)

// Service runs allocation mutations: policy gate, relationship gate, status
// transition, and scope3 arithmetic all inside one transaction, with outbound
// effects dispatched strictly after commit.
type Service struct {
	db         *gorm.DB
	dispatcher *dispatch.Dispatcher
}

func NewService(db *gorm.DB, dispatcher *dispatch.Dispatcher) *Service {
	return &Service{db: db, dispatcher: dispatcher}
}

type CreateInput struct {
	SupplierID         uint
	CustomerID         uint
	Year               int
	Emissions          *decimal.Decimal
	AllocationMethod   string
	Note               string
	SupplierEmissionID *uint
}

// UpdateInput expresses the requested transition as a target status plus the
// fields the transition needs, matching the mutation surface.
type UpdateInput struct {
	Status                    string
	Emissions                 *decimal.Decimal
	AllocationMethod          string
	Note                      string
	Category                  *string
	AddedToCustomerScopeTotal bool
	SupplierEmissionID        *uint
}

type ListFilter struct {
	Direction string // "supplier", "customer", or "" for both
	Year      int    // 0 for all years
}

// Create starts an allocation: a supplier submitting a value directly, or a
// customer requesting one. The actor's company must be one of the two sides.
func (s *Service) Create(ctx context.Context, actor policy.Actor, in CreateInput) (*models.EmissionAllocation, error) {
	if !policy.CanCreateAllocations(actor) {
		return nil, apperr.Forbidden(apperr.CodeAccessDenied, "role may not create allocations")
	}
	if in.SupplierID == in.CustomerID {
		return nil, apperr.Validation("supplier and customer must differ")
	}

	var asSupplier bool
	switch actor.CompanyID {
	case in.SupplierID:
		asSupplier = true
	case in.CustomerID:
		asSupplier = false
	default:
		return nil, apperr.Forbidden(apperr.CodeAccessDenied, "actor company is not a party to this allocation")
	}

	a := &models.EmissionAllocation{
		SupplierID: in.SupplierID,
		CustomerID: in.CustomerID,
		Year:       in.Year,
	}

	var res Result
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.checkCompanyStanding(tx, actor.CompanyID); err != nil {
			return err
		}
		if err := s.checkApprovedRelationship(tx, in.SupplierID, in.CustomerID); err != nil {
			return err
		}

		var existing models.EmissionAllocation
		err := tx.Where("supplier_id = ? AND customer_id = ? AND year = ?",
			in.SupplierID, in.CustomerID, in.Year).First(&existing).Error
		if err == nil {
			return apperr.Forbidden(apperr.CodeAllocationExists,
				"an allocation for this supplier, customer and year already exists")
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		ev := Event{ActorUserID: actor.UserID, Note: in.Note}
		if asSupplier {
			ev.Kind = EventSupplierSubmit
			ev.Emissions = in.Emissions
			ev.AllocationMethod = in.AllocationMethod
			ev.SupplierEmissionID = in.SupplierEmissionID
		} else {
			ev.Kind = EventCustomerRequest
		}

		res, err = Transition(a, ev)
		if err != nil {
			return err
		}
		for _, op := range res.Ops {
			if _, err := ledger.ApplyToScope3(tx, op.EmissionID, op.Delta); err != nil {
				return err
			}
		}
		return tx.Create(a).Error
	})
	if err != nil {
		return nil, err
	}

	s.dispatcher.AllocationChanged(ctx, res.Effect, a, actor.CompanyID)
	return a, nil
}

// Update applies a status transition to an existing allocation.
func (s *Service) Update(ctx context.Context, actor policy.Actor, id uint, in UpdateInput) (*models.EmissionAllocation, error) {
	var a models.EmissionAllocation
	var res Result

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := database.ForUpdate(tx).First(&a, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("allocation")
			}
			return err
		}

		// Policy first: actors without mutation rights (admins included) get
		// Forbidden, not a standing error for a company they don't have.
		if !policy.CanMutateAllocation(actor, &a) {
			return apperr.Forbidden(apperr.CodeAccessDenied, "actor may not mutate this allocation")
		}
		if err := s.checkCompanyStanding(tx, actor.CompanyID); err != nil {
			return err
		}

		ev, err := s.eventForUpdate(actor, &a, in)
		if err != nil {
			return err
		}

		// Transitions into approval states still require an approved
		// relationship between the two sides.
		if in.Status == models.AllocationStatusAwaitingApproval || in.Status == models.AllocationStatusApproved {
			if err := s.checkApprovedRelationship(tx, a.SupplierID, a.CustomerID); err != nil {
				return err
			}
		}

		// The customer's target emission for the allocation year is resolved
		// here, inside the transaction, and handed to the transition.
		if ev.Kind == EventCustomerAccept {
			var target models.CorporateEmission
			err := database.ForUpdate(tx).
				Where("company_id = ? AND year = ?", a.CustomerID, a.Year).
				First(&target).Error
			switch {
			case err == nil:
				targetID := target.ID
				ev.CustomerEmissionID = &targetID
			case errors.Is(err, gorm.ErrRecordNotFound):
				if in.AddedToCustomerScopeTotal {
					return apperr.AggregationInconsistency(err,
						"customer %d has no corporate emission for year %d", a.CustomerID, a.Year)
				}
			default:
				return err
			}
		}

		res, err = Transition(&a, ev)
		if err != nil {
			return err
		}
		for _, op := range res.Ops {
			if _, err := ledger.ApplyToScope3(tx, op.EmissionID, op.Delta); err != nil {
				return err
			}
		}
		return tx.Save(&a).Error
	})
	if err != nil {
		return nil, err
	}

	s.dispatcher.AllocationChanged(ctx, res.Effect, &a, actor.CompanyID)
	return &a, nil
}

// Delete removes an allocation, reversing its scope3 contribution first when
// it was folded into the customer's total.
func (s *Service) Delete(ctx context.Context, actor policy.Actor, id uint) error {
	var a models.EmissionAllocation

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := database.ForUpdate(tx).First(&a, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("allocation")
			}
			return err
		}

		if !policy.CanMutateAllocation(actor, &a) {
			return apperr.Forbidden(apperr.CodeAccessDenied, "actor may not delete this allocation")
		}
		if err := s.checkCompanyStanding(tx, actor.CompanyID); err != nil {
			return err
		}

		for _, op := range DeleteOps(&a) {
			if _, err := ledger.ApplyToScope3(tx, op.EmissionID, op.Delta); err != nil {
				return err
			}
		}
		// Hard delete: a soft-deleted row would keep the (supplier, customer,
		// year) slot occupied and block a later re-creation. The ledger
		// reversal above already settled the scope3 side.
		return tx.Unscoped().Delete(&a).Error
	})
	if err != nil {
		return err
	}

	s.dispatcher.AllocationChanged(ctx, dispatch.EffectDeleted, &a, actor.CompanyID)
	return nil
}

// List returns the allocations a company is party to, newest first.
func (s *Service) List(ctx context.Context, actor policy.Actor, companyID uint, f ListFilter) ([]models.EmissionAllocation, error) {
	if !policy.CanAccessAllocations(actor, companyID) {
		return nil, apperr.Forbidden(apperr.CodeAccessDenied, "actor may not read this company's allocations")
	}
	// Admins act platform-wide and have no trading company to vet.
	if actor.Role != models.RoleAdmin {
		if err := s.checkCompanyStanding(s.db.WithContext(ctx), actor.CompanyID); err != nil {
			return nil, err
		}
	}

	q := s.db.WithContext(ctx)
	switch f.Direction {
	case "supplier":
		q = q.Where("supplier_id = ?", companyID)
	case "customer":
		q = q.Where("customer_id = ?", companyID)
	default:
		q = q.Where("supplier_id = ? OR customer_id = ?", companyID, companyID)
	}
	if f.Year != 0 {
		q = q.Where("year = ?", f.Year)
	}

	var allocs []models.EmissionAllocation
	if err := q.Order("created_at DESC").Find(&allocs).Error; err != nil {
		return nil, err
	}
	return allocs, nil
}

// eventForUpdate maps the requested target status to a state-machine event,
// checking that the actor sits on the right side of the allocation for it.
func (s *Service) eventForUpdate(actor policy.Actor, a *models.EmissionAllocation, in UpdateInput) (Event, error) {
	supplierSide := actor.CompanyID == a.SupplierID
	customerSide := actor.CompanyID == a.CustomerID

	ev := Event{ActorUserID: actor.UserID, Note: in.Note}

	switch in.Status {
	case models.AllocationStatusAwaitingApproval:
		if !supplierSide {
			return Event{}, apperr.Forbidden(apperr.CodeAccessDenied, "only the supplier may submit or edit the value")
		}
		ev.Kind = EventSupplierSubmit
		ev.Emissions = in.Emissions
		ev.AllocationMethod = in.AllocationMethod
		ev.SupplierEmissionID = in.SupplierEmissionID
	case models.AllocationStatusRequestDismissed:
		if !supplierSide {
			return Event{}, apperr.Forbidden(apperr.CodeAccessDenied, "only the supplier may dismiss a request")
		}
		ev.Kind = EventSupplierDismiss
	case models.AllocationStatusRequested:
		if !customerSide {
			return Event{}, apperr.Forbidden(apperr.CodeAccessDenied, "only the customer may request a value")
		}
		ev.Kind = EventCustomerRequest
	case models.AllocationStatusApproved:
		if !customerSide {
			return Event{}, apperr.Forbidden(apperr.CodeAccessDenied, "only the customer may accept the value")
		}
		ev.Kind = EventCustomerAccept
		ev.Category = in.Category
		ev.AddedToCustomerScopeTotal = in.AddedToCustomerScopeTotal
	case models.AllocationStatusRejected:
		if !customerSide {
			return Event{}, apperr.Forbidden(apperr.CodeAccessDenied, "only the customer may reject the value")
		}
		ev.Kind = EventCustomerReject
	default:
		return Event{}, apperr.Validation("unknown target status %q", in.Status)
	}

	return ev, nil
}

func (s *Service) checkCompanyStanding(tx *gorm.DB, companyID uint) error {
	var company models.Company
	if err := tx.First(&company, companyID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("company")
		}
		return err
	}
	return policy.CheckCompanyTransactable(company.Status)
}

func (s *Service) checkApprovedRelationship(tx *gorm.DB, supplierID, customerID uint) error {
	var rel models.CompanyRelationship
	err := tx.Where("supplier_id = ? AND customer_id = ? AND status = ?",
		supplierID, customerID, models.RelationshipStatusApproved).
		First(&rel).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.Forbidden(apperr.CodeNoRelationship,
				"no approved relationship between supplier and customer")
		}
		return err
	}
	return nil
}
