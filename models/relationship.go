package models

import "gorm.io/gorm"

const (
	RelationshipStatusAwaitingSupplierApproval = "AWAITING_SUPPLIER_APPROVAL"
	RelationshipStatusAwaitingCustomerApproval = "AWAITING_CUSTOMER_APPROVAL"
	RelationshipStatusApproved                 = "APPROVED"
	RelationshipStatusDeclined                 = "DECLINED"

	InviteTypeCustomerInvited = "CUSTOMER_INVITED"
	InviteTypeSupplierInvited = "SUPPLIER_INVITED"
)

// CompanyRelationship is the directed invitation/approval record linking a
// supplier company to a customer company. Allocations may only flow along an
// APPROVED relationship, in the same direction.
type CompanyRelationship struct {
	gorm.Model
	SupplierID uint   `gorm:"index:idx_relationship_pair,unique" json:"supplier_id"`
	CustomerID uint   `gorm:"index:idx_relationship_pair,unique" json:"customer_id"`
	Status     string `json:"status"`
	InviteType string `json:"invite_type"`
	InviteCode string `json:"invite_code"`

	Supplier Company `gorm:"foreignKey:SupplierID;constraint:OnDelete:CASCADE" json:"-"`
	Customer Company `gorm:"foreignKey:CustomerID;constraint:OnDelete:CASCADE" json:"-"`
}
