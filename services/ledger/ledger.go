// Package ledger maintains the scope3 aggregate on CorporateEmission rows.
// All arithmetic is exact decimal addition; callers decide when a delta is
// due (the AddedToCustomerScopeTotal flag lives with the allocation, not
// here), and every read-modify-write runs inside the caller's transaction so
// concurrent approvals targeting the same emission serialize on the row lock.
package ledger

import (
	"errors"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/sede-open/Scope3EApi-sub000/database"
	"github.com/sede-open/Scope3EApi-sub000/models"
	"github.com/sede-open/Scope3EApi-sub000/services/apperr"
)

// ApplyToScope3 adds delta to the emission's scope3 total and returns the
// updated value. A missing target is fatal for the transition: the caller
// must roll back the whole transaction.
func ApplyToScope3(tx *gorm.DB, emissionID uint, delta decimal.Decimal) (decimal.Decimal, error) {
	var em models.CorporateEmission
	if err := database.ForUpdate(tx).First(&em, emissionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, apperr.AggregationInconsistency(err, "scope3 target emission %d not found", emissionID)
		}
		return decimal.Zero, apperr.AggregationInconsistency(err, "scope3 target emission %d could not be locked", emissionID)
	}

	updated := em.Scope3.Add(delta)
	if err := tx.Model(&em).Update("scope3", updated).Error; err != nil {
		return decimal.Zero, apperr.AggregationInconsistency(err, "scope3 update failed for emission %d", emissionID)
	}
	return updated, nil
}

// ReverseFromScope3 subtracts a previously applied delta.
func ReverseFromScope3(tx *gorm.DB, emissionID uint, delta decimal.Decimal) (decimal.Decimal, error) {
	return ApplyToScope3(tx, emissionID, delta.Neg())
}

// ContributionTotal sums the emissions of all allocations currently folded
// into the given emission's scope3. Used when a baseline edit must preserve
// the derived invariant, and by tests asserting it.
func ContributionTotal(db *gorm.DB, emissionID uint) (decimal.Decimal, error) {
	var allocs []models.EmissionAllocation
	err := db.
		Where("customer_emission_id = ? AND added_to_customer_scope_total = ?", emissionID, true).
		Find(&allocs).Error
	if err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for _, a := range allocs {
		if a.Emissions != nil {
			total = total.Add(*a.Emissions)
		}
	}
	return total, nil
}
