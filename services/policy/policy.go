// Package policy holds the pure access predicates gating allocation reads and
// writes: actor role, company membership, and company standing.
package policy

import (
	"github.com/sede-open/Scope3EApi-sub000/models"
	"github.com/sede-open/Scope3EApi-sub000/services/apperr"
)

// Actor is the authenticated caller, as extracted from the JWT.
type Actor struct {
	UserID    uint
	CompanyID uint
	Role      string
}

// IsTransactableCompanyStatus reports whether a company in the given status
// may take part in allocation traffic at all.
func IsTransactableCompanyStatus(status string) bool {
	return status == models.CompanyStatusActive ||
		status == models.CompanyStatusPendingUserActivation
}

// CanAccessAllocations reports whether the actor may read allocations scoped
// to companyID. Admins read platform-wide; everyone else reads only their own
// company's allocations.
func CanAccessAllocations(actor Actor, companyID uint) bool {
	if actor.Role == models.RoleAdmin {
		return true
	}
	return actor.CompanyID == companyID
}

// CanMutateAllocation reports whether the actor may create, update, or delete
// the given allocation. Admins act platform-wide, not as a trading party, so
// mutation is denied to them.
func CanMutateAllocation(actor Actor, a *models.EmissionAllocation) bool {
	if actor.Role != models.RoleSupplierEditor {
		return false
	}
	return actor.CompanyID == a.SupplierID || actor.CompanyID == a.CustomerID
}

// CanCreateAllocations reports whether the actor's role permits creating
// allocations at all; company-side checks happen against the input.
func CanCreateAllocations(actor Actor) bool {
	return actor.Role == models.RoleSupplierEditor
}

// CheckCompanyTransactable converts a non-transactable standing into the
// caller-facing forbidden error.
func CheckCompanyTransactable(status string) error {
	if IsTransactableCompanyStatus(status) {
		return nil
	}
	return apperr.Forbidden(apperr.CodeCompanyNotApproved, "company is not approved to transact")
}
