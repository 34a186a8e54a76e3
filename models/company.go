package models

import "gorm.io/gorm"

const (
	CompanyStatusActive                  = "ACTIVE"
	CompanyStatusPendingUserActivation   = "PENDING_USER_ACTIVATION"
	CompanyStatusPendingUserConfirmation = "PENDING_USER_CONFIRMATION"
	CompanyStatusVettingInProgress       = "VETTING_IN_PROGRESS"
	CompanyStatusVetoed                  = "VETOED"
	CompanyStatusInvitationDeclined      = "INVITATION_DECLINED"

	RoleAdmin          = "ADMIN"
	RoleSupplierEditor = "SUPPLIER_EDITOR"
	RoleSupplierViewer = "SUPPLIER_VIEWER"
)

type Company struct {
	gorm.Model
	Name   string `json:"name"`
	Slug   string `gorm:"uniqueIndex" json:"slug"`
	Status string `json:"status"`
}

type User struct {
	gorm.Model
	Name      string `json:"name"`
	Email     string `gorm:"uniqueIndex" json:"email"`
	Password  string `json:"-"`
	Role      string `json:"role"`
	CompanyID uint   `json:"company_id"`

	Company Company `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}
