package models

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	AllocationStatusRequested        = "REQUESTED"
	AllocationStatusAwaitingApproval = "AWAITING_APPROVAL"
	AllocationStatusApproved         = "APPROVED"
	AllocationStatusRejected         = "REJECTED"
	AllocationStatusRequestDismissed = "REQUEST_DISMISSED"

	AllocationMethodPhysical  = "PHYSICAL"
	AllocationMethodFinancial = "FINANCIAL"
	AllocationMethodUnknown   = "UNKNOWN"
)

// EmissionAllocation attributes a quantity of emissions from a supplier
// company to a customer company for a given year.
//
// AddedToCustomerScopeTotal may only be true while Status is APPROVED; the
// transition logic owns that invariant together with the scope3 arithmetic
// on the customer's CorporateEmission.
type EmissionAllocation struct {
	gorm.Model
	SupplierID       uint             `gorm:"index:idx_allocation_triple,unique" json:"supplier_id"`
	CustomerID       uint             `gorm:"index:idx_allocation_triple,unique" json:"customer_id"`
	Year             int              `gorm:"index:idx_allocation_triple,unique" json:"year"`
	Emissions        *decimal.Decimal `gorm:"type:DECIMAL(20,8)" json:"emissions"`
	AllocationMethod string           `json:"allocation_method"`
	Status           string           `gorm:"index" json:"status"`
	Note             string           `json:"note"`
	Category         *string          `json:"category"`

	SupplierEmissionID *uint `json:"supplier_emission_id"`
	CustomerEmissionID *uint `json:"customer_emission_id"`

	AddedToCustomerScopeTotal bool `json:"added_to_customer_scope_total"`

	SupplierApproverID *uint `json:"supplier_approver_id"`
	CustomerApproverID *uint `json:"customer_approver_id"`

	Supplier Company `gorm:"foreignKey:SupplierID;constraint:OnDelete:CASCADE" json:"-"`
	Customer Company `gorm:"foreignKey:CustomerID;constraint:OnDelete:CASCADE" json:"-"`
}
