package policy

import (
	"testing"

	"github.com/sede-open/Scope3EApi-sub000/models"
	"github.com/sede-open/Scope3EApi-sub000/services/apperr"
)

func TestIsTransactableCompanyStatus(t *testing.T) {
	cases := []struct {
		status string
		want   bool
	}{
		{models.CompanyStatusActive, true},
		{models.CompanyStatusPendingUserActivation, true},
		{models.CompanyStatusPendingUserConfirmation, false},
		{models.CompanyStatusVettingInProgress, false},
		{models.CompanyStatusVetoed, false},
		{models.CompanyStatusInvitationDeclined, false},
		{"", false},
	}
	for _, c := range cases {
		if got := IsTransactableCompanyStatus(c.status); got != c.want {
			t.Errorf("IsTransactableCompanyStatus(%q) = %v, want %v", c.status, got, c.want)
		}
	}
}

func TestCanAccessAllocations(t *testing.T) {
	cases := []struct {
		name      string
		actor     Actor
		companyID uint
		want      bool
	}{
		{"admin reads any company", Actor{Role: models.RoleAdmin, CompanyID: 0}, 42, true},
		{"editor reads own company", Actor{Role: models.RoleSupplierEditor, CompanyID: 7}, 7, true},
		{"editor denied other company", Actor{Role: models.RoleSupplierEditor, CompanyID: 7}, 8, false},
		{"viewer reads own company", Actor{Role: models.RoleSupplierViewer, CompanyID: 7}, 7, true},
		{"viewer denied other company", Actor{Role: models.RoleSupplierViewer, CompanyID: 7}, 8, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := CanAccessAllocations(c.actor, c.companyID); got != c.want {
				t.Errorf("got %v, want %v", got, c.want)
			}
		})
	}
}

func TestCanMutateAllocation(t *testing.T) {
	alloc := &models.EmissionAllocation{SupplierID: 1, CustomerID: 2}

	cases := []struct {
		name  string
		actor Actor
		want  bool
	}{
		{"supplier editor", Actor{Role: models.RoleSupplierEditor, CompanyID: 1}, true},
		{"customer editor", Actor{Role: models.RoleSupplierEditor, CompanyID: 2}, true},
		{"third-party editor", Actor{Role: models.RoleSupplierEditor, CompanyID: 3}, false},
		{"viewer on supplier side", Actor{Role: models.RoleSupplierViewer, CompanyID: 1}, false},
		{"admin", Actor{Role: models.RoleAdmin, CompanyID: 1}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := CanMutateAllocation(c.actor, alloc); got != c.want {
				t.Errorf("got %v, want %v", got, c.want)
			}
		})
	}
}

func TestCanCreateAllocations(t *testing.T) {
	if !CanCreateAllocations(Actor{Role: models.RoleSupplierEditor}) {
		t.Error("editor should create")
	}
	if CanCreateAllocations(Actor{Role: models.RoleSupplierViewer}) {
		t.Error("viewer should not create")
	}
	if CanCreateAllocations(Actor{Role: models.RoleAdmin}) {
		t.Error("admin should not create")
	}
}

func TestCheckCompanyTransactable(t *testing.T) {
	if err := CheckCompanyTransactable(models.CompanyStatusActive); err != nil {
		t.Errorf("active: %v", err)
	}
	err := CheckCompanyTransactable(models.CompanyStatusVetoed)
	if !apperr.IsKind(err, apperr.KindForbidden) {
		t.Fatalf("vetoed: err = %v, want Forbidden", err)
	}
	if apperr.CodeOf(err) != apperr.CodeCompanyNotApproved {
		t.Errorf("code = %q, want COMPANY_NOT_APPROVED", apperr.CodeOf(err))
	}
}
