package models

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	EmissionTypeBaseline = "BASELINE"
	EmissionTypeActual   = "ACTUAL"
)

// CorporateEmission is a company's yearly scope 1/2/3 (+ offset) record.
//
// Scope3 is derived-but-mutable: it always equals the manually entered
// baseline plus the sum of emissions over allocations pointing at this record
// via CustomerEmissionID with AddedToCustomerScopeTotal set. The ledger
// maintains that invariant transactionally; it is never recomputed on read.
type CorporateEmission struct {
	gorm.Model
	CompanyID uint            `gorm:"index:idx_emission_company_year,unique" json:"company_id"`
	Year      int             `gorm:"index:idx_emission_company_year,unique" json:"year"`
	Type      string          `json:"type"`
	Scope1    decimal.Decimal `gorm:"type:DECIMAL(20,8)" json:"scope1"`
	Scope2    decimal.Decimal `gorm:"type:DECIMAL(20,8)" json:"scope2"`
	Scope3    decimal.Decimal `gorm:"type:DECIMAL(20,8)" json:"scope3"`
	Offset    decimal.Decimal `gorm:"type:DECIMAL(20,8)" json:"offset"`

	Company Company                 `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Access  CorporateEmissionAccess `gorm:"foreignKey:CorporateEmissionID" json:"access"`
}

// CorporateEmissionAccess governs which parts of an emission record are
// visible to trading partners or the public.
type CorporateEmissionAccess struct {
	gorm.Model
	CorporateEmissionID uint `gorm:"uniqueIndex" json:"corporate_emission_id"`
	ScopeOneTwo         bool `json:"scope_one_two"`
	ScopeThree          bool `json:"scope_three"`
	CarbonOffsets       bool `json:"carbon_offsets"`
	CarbonIntensity     bool `json:"carbon_intensity"`
	PublicLink          bool `json:"public_link"`
}
