package allocation

import (
	"context"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/sede-open/Scope3EApi-sub000/database"
	"github.com/sede-open/Scope3EApi-sub000/models"
	"github.com/sede-open/Scope3EApi-sub000/queue"
	"github.com/sede-open/Scope3EApi-sub000/services/apperr"
	"github.com/sede-open/Scope3EApi-sub000/services/dispatch"
	"github.com/sede-open/Scope3EApi-sub000/services/ledger"
	"github.com/sede-open/Scope3EApi-sub000/services/policy"
)

type fixture struct {
	db  *gorm.DB
	q   *queue.MemoryQueue
	svc *Service

	supplier models.Company
	customer models.Company

	supplierEditor policy.Actor
	customerEditor policy.Actor

	customerEmission models.CorporateEmission
}

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	db, err := database.Connect(dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	return db
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testDB(t)

	f := &fixture{db: db, q: queue.NewMemoryQueue()}
	dispatcher := dispatch.NewDispatcher(db, f.q, dispatch.Capabilities{})
	f.svc = NewService(db, dispatcher)

	f.supplier = models.Company{Name: "Alpha Fuels", Slug: "alpha-fuels", Status: models.CompanyStatusActive}
	f.customer = models.Company{Name: "Beta Logistics", Slug: "beta-logistics", Status: models.CompanyStatusActive}
	if err := db.Create(&f.supplier).Error; err != nil {
		t.Fatalf("create supplier: %v", err)
	}
	if err := db.Create(&f.customer).Error; err != nil {
		t.Fatalf("create customer: %v", err)
	}

	supplierUser := models.User{Name: "Sam", Email: "sam@alpha.example", Role: models.RoleSupplierEditor, CompanyID: f.supplier.ID}
	customerUser := models.User{Name: "Cato", Email: "cato@beta.example", Role: models.RoleSupplierEditor, CompanyID: f.customer.ID}
	if err := db.Create(&supplierUser).Error; err != nil {
		t.Fatalf("create supplier user: %v", err)
	}
	if err := db.Create(&customerUser).Error; err != nil {
		t.Fatalf("create customer user: %v", err)
	}

	f.supplierEditor = policy.Actor{UserID: supplierUser.ID, CompanyID: f.supplier.ID, Role: models.RoleSupplierEditor}
	f.customerEditor = policy.Actor{UserID: customerUser.ID, CompanyID: f.customer.ID, Role: models.RoleSupplierEditor}

	rel := models.CompanyRelationship{
		SupplierID: f.supplier.ID,
		CustomerID: f.customer.ID,
		Status:     models.RelationshipStatusApproved,
		InviteType: models.InviteTypeSupplierInvited,
	}
	if err := db.Create(&rel).Error; err != nil {
		t.Fatalf("create relationship: %v", err)
	}

	f.customerEmission = models.CorporateEmission{
		CompanyID: f.customer.ID,
		Year:      2023,
		Type:      models.EmissionTypeActual,
		Scope1:    decimal.RequireFromString("100"),
		Scope2:    decimal.RequireFromString("200"),
		Scope3:    decimal.RequireFromString("1000"),
	}
	if err := db.Create(&f.customerEmission).Error; err != nil {
		t.Fatalf("create customer emission: %v", err)
	}

	return f
}

func (f *fixture) scope3(t *testing.T) decimal.Decimal {
	t.Helper()
	var em models.CorporateEmission
	if err := f.db.First(&em, f.customerEmission.ID).Error; err != nil {
		t.Fatalf("reload emission: %v", err)
	}
	return em.Scope3
}

// checkScope3Invariant asserts the derived-value invariant: stored scope3
// equals the baseline plus the contributions of all added allocations.
func (f *fixture) checkScope3Invariant(t *testing.T, baseline string) {
	t.Helper()
	contributions, err := ledger.ContributionTotal(f.db, f.customerEmission.ID)
	if err != nil {
		t.Fatalf("contribution total: %v", err)
	}
	want := decimal.RequireFromString(baseline).Add(contributions)
	if got := f.scope3(t); !got.Equal(want) {
		t.Fatalf("scope3 = %s, want baseline %s + contributions %s = %s", got, baseline, contributions, want)
	}
}

func TestRequestSubmitApproveEditReapprove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Customer requests 2023 data.
	a, err := f.svc.Create(ctx, f.customerEditor, CreateInput{
		SupplierID: f.supplier.ID,
		CustomerID: f.customer.ID,
		Year:       2023,
		Note:       "please share your 2023 number",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if a.Status != models.AllocationStatusRequested {
		t.Fatalf("status = %s, want REQUESTED", a.Status)
	}

	// Supplier submits 500 tCO2e, physical method.
	a, err = f.svc.Update(ctx, f.supplierEditor, a.ID, UpdateInput{
		Status:           models.AllocationStatusAwaitingApproval,
		Emissions:        dec("500"),
		AllocationMethod: models.AllocationMethodPhysical,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if a.Status != models.AllocationStatusAwaitingApproval {
		t.Fatalf("status = %s, want AWAITING_APPROVAL", a.Status)
	}

	// Customer approves into their scope3 total.
	a, err = f.svc.Update(ctx, f.customerEditor, a.ID, UpdateInput{
		Status:                    models.AllocationStatusApproved,
		Category:                  strptr("CAT_1"),
		AddedToCustomerScopeTotal: true,
	})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if !a.AddedToCustomerScopeTotal {
		t.Fatal("AddedToCustomerScopeTotal not set after approval")
	}
	if a.CustomerEmissionID == nil || *a.CustomerEmissionID != f.customerEmission.ID {
		t.Fatalf("customer emission reference = %v, want %d", a.CustomerEmissionID, f.customerEmission.ID)
	}
	if got := f.scope3(t); !got.Equal(decimal.RequireFromString("1500")) {
		t.Fatalf("scope3 = %s, want 1500 after +500", got)
	}
	f.checkScope3Invariant(t, "1000")

	// Supplier edits to 650: approval reopens and the 500 is reversed.
	a, err = f.svc.Update(ctx, f.supplierEditor, a.ID, UpdateInput{
		Status:    models.AllocationStatusAwaitingApproval,
		Emissions: dec("650"),
	})
	if err != nil {
		t.Fatalf("edit after approval: %v", err)
	}
	if a.Status != models.AllocationStatusAwaitingApproval {
		t.Fatalf("status = %s, want AWAITING_APPROVAL after edit", a.Status)
	}
	if a.AddedToCustomerScopeTotal {
		t.Fatal("flag should be cleared when approval reopens")
	}
	if got := f.scope3(t); !got.Equal(decimal.RequireFromString("1000")) {
		t.Fatalf("scope3 = %s, want baseline 1000 after reversal", got)
	}
	f.checkScope3Invariant(t, "1000")

	// Customer re-approves at 650.
	a, err = f.svc.Update(ctx, f.customerEditor, a.ID, UpdateInput{
		Status:                    models.AllocationStatusApproved,
		Category:                  strptr("CAT_1"),
		AddedToCustomerScopeTotal: true,
	})
	if err != nil {
		t.Fatalf("re-approve: %v", err)
	}
	if got := f.scope3(t); !got.Equal(decimal.RequireFromString("1650")) {
		t.Fatalf("scope3 = %s, want 1650 after +650", got)
	}
	f.checkScope3Invariant(t, "1000")

	// Flag only true under Approved.
	if a.Status != models.AllocationStatusApproved || !a.AddedToCustomerScopeTotal {
		t.Fatalf("final state %s/%v, want APPROVED with flag set", a.Status, a.AddedToCustomerScopeTotal)
	}
}

func TestRejectNeverApprovedLeavesScope3Untouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.svc.Create(ctx, f.supplierEditor, CreateInput{
		SupplierID:       f.supplier.ID,
		CustomerID:       f.customer.ID,
		Year:             2023,
		Emissions:        dec("75.25"),
		AllocationMethod: models.AllocationMethodFinancial,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	a, err = f.svc.Update(ctx, f.customerEditor, a.ID, UpdateInput{
		Status: models.AllocationStatusRejected,
		Note:   "numbers look off",
	})
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if a.Status != models.AllocationStatusRejected {
		t.Fatalf("status = %s, want REJECTED", a.Status)
	}
	if a.CustomerEmissionID != nil {
		t.Error("CustomerEmissionID should be nil after rejection")
	}
	if got := f.scope3(t); !got.Equal(decimal.RequireFromString("1000")) {
		t.Fatalf("scope3 = %s, want unchanged 1000", got)
	}
}

func TestApproveThenRejectRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.svc.Create(ctx, f.supplierEditor, CreateInput{
		SupplierID: f.supplier.ID,
		CustomerID: f.customer.ID,
		Year:       2023,
		Emissions:  dec("300"),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err = f.svc.Update(ctx, f.customerEditor, a.ID, UpdateInput{
		Status:                    models.AllocationStatusApproved,
		Category:                  strptr("CAT_4"),
		AddedToCustomerScopeTotal: true,
	}); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if got := f.scope3(t); !got.Equal(decimal.RequireFromString("1300")) {
		t.Fatalf("scope3 = %s, want 1300", got)
	}

	// Reopen via supplier edit, then reject: scope3 must return to the
	// pre-approval value exactly.
	if _, err = f.svc.Update(ctx, f.supplierEditor, a.ID, UpdateInput{
		Status:    models.AllocationStatusAwaitingApproval,
		Emissions: dec("300"),
	}); err != nil {
		t.Fatalf("edit: %v", err)
	}
	if _, err = f.svc.Update(ctx, f.customerEditor, a.ID, UpdateInput{
		Status: models.AllocationStatusRejected,
	}); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if got := f.scope3(t); !got.Equal(decimal.RequireFromString("1000")) {
		t.Fatalf("scope3 = %s, want restored 1000", got)
	}
}

func TestDeleteReversesContribution(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.svc.Create(ctx, f.supplierEditor, CreateInput{
		SupplierID: f.supplier.ID,
		CustomerID: f.customer.ID,
		Year:       2023,
		Emissions:  dec("250"),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err = f.svc.Update(ctx, f.customerEditor, a.ID, UpdateInput{
		Status:                    models.AllocationStatusApproved,
		Category:                  strptr("CAT_1"),
		AddedToCustomerScopeTotal: true,
	}); err != nil {
		t.Fatalf("approve: %v", err)
	}

	if err := f.svc.Delete(ctx, f.customerEditor, a.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got := f.scope3(t); !got.Equal(decimal.RequireFromString("1000")) {
		t.Fatalf("scope3 = %s, want 1000 after delete reversal", got)
	}

	var count int64
	f.db.Model(&models.EmissionAllocation{}).Where("id = ?", a.ID).Count(&count)
	if count != 0 {
		t.Error("allocation row should be gone")
	}

	// The customer deleted, so the deletion notice goes to the supplier.
	var deletionJob *queue.Job
	for {
		job, err := f.q.Dequeue(ctx)
		if err != nil {
			t.Fatalf("dequeue: %v", err)
		}
		if job == nil {
			break
		}
		if job.Kind == dispatch.JobDeletedEmission {
			deletionJob = job
		}
	}
	if deletionJob == nil {
		t.Fatal("no deletion job enqueued")
	}
	if got := deletionJob.Payload["recipient_email"]; got != "sam@alpha.example" {
		t.Errorf("deletion notice addressed to %v, want the supplier contact", got)
	}
}

func TestRecreateAfterDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := CreateInput{
		SupplierID: f.supplier.ID,
		CustomerID: f.customer.ID,
		Year:       2023,
		Emissions:  dec("40"),
	}
	a, err := f.svc.Create(ctx, f.supplierEditor, in)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := f.svc.Delete(ctx, f.supplierEditor, a.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	// The deleted row must fully release the (supplier, customer, year) slot.
	if _, err := f.svc.Create(ctx, f.supplierEditor, in); err != nil {
		t.Fatalf("re-create after delete: %v", err)
	}
}

func TestDeleteNonContributingLeavesScope3(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.svc.Create(ctx, f.supplierEditor, CreateInput{
		SupplierID: f.supplier.ID,
		CustomerID: f.customer.ID,
		Year:       2023,
		Emissions:  dec("250"),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := f.svc.Delete(ctx, f.supplierEditor, a.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got := f.scope3(t); !got.Equal(decimal.RequireFromString("1000")) {
		t.Fatalf("scope3 = %s, want unchanged 1000", got)
	}
}

func TestViewerRoleIsForbidden(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	viewer := policy.Actor{UserID: 99, CompanyID: f.supplier.ID, Role: models.RoleSupplierViewer}

	if _, err := f.svc.Create(ctx, viewer, CreateInput{
		SupplierID: f.supplier.ID,
		CustomerID: f.customer.ID,
		Year:       2023,
		Emissions:  dec("10"),
	}); !apperr.IsKind(err, apperr.KindForbidden) {
		t.Errorf("create as viewer: err = %v, want Forbidden", err)
	}

	a, err := f.svc.Create(ctx, f.supplierEditor, CreateInput{
		SupplierID: f.supplier.ID,
		CustomerID: f.customer.ID,
		Year:       2023,
		Emissions:  dec("10"),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := f.svc.Update(ctx, viewer, a.ID, UpdateInput{
		Status:    models.AllocationStatusAwaitingApproval,
		Emissions: dec("20"),
	}); !apperr.IsKind(err, apperr.KindForbidden) {
		t.Errorf("update as viewer: err = %v, want Forbidden", err)
	}

	if err := f.svc.Delete(ctx, viewer, a.ID); !apperr.IsKind(err, apperr.KindForbidden) {
		t.Errorf("delete as viewer: err = %v, want Forbidden", err)
	}

	// Reads within the viewer's own company are allowed.
	if _, err := f.svc.List(ctx, viewer, f.supplier.ID, ListFilter{}); err != nil {
		t.Errorf("list as viewer: %v", err)
	}
}

func TestNonTransactableCompanyIsLockedOut(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.db.Model(&models.Company{}).Where("id = ?", f.supplier.ID).
		Update("status", models.CompanyStatusVettingInProgress).Error; err != nil {
		t.Fatalf("set status: %v", err)
	}

	_, err := f.svc.Create(ctx, f.supplierEditor, CreateInput{
		SupplierID: f.supplier.ID,
		CustomerID: f.customer.ID,
		Year:       2023,
		Emissions:  dec("10"),
	})
	if !apperr.IsKind(err, apperr.KindForbidden) || apperr.CodeOf(err) != apperr.CodeCompanyNotApproved {
		t.Errorf("create: err = %v, want Forbidden/COMPANY_NOT_APPROVED", err)
	}

	_, err = f.svc.List(ctx, f.supplierEditor, f.supplier.ID, ListFilter{})
	if !apperr.IsKind(err, apperr.KindForbidden) || apperr.CodeOf(err) != apperr.CodeCompanyNotApproved {
		t.Errorf("list: err = %v, want Forbidden/COMPANY_NOT_APPROVED", err)
	}
}

func TestCreateRequiresApprovedRelationship(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.db.Model(&models.CompanyRelationship{}).
		Where("supplier_id = ?", f.supplier.ID).
		Update("status", models.RelationshipStatusAwaitingCustomerApproval).Error; err != nil {
		t.Fatalf("downgrade relationship: %v", err)
	}

	_, err := f.svc.Create(ctx, f.supplierEditor, CreateInput{
		SupplierID: f.supplier.ID,
		CustomerID: f.customer.ID,
		Year:       2023,
		Emissions:  dec("10"),
	})
	if !apperr.IsKind(err, apperr.KindForbidden) || apperr.CodeOf(err) != apperr.CodeNoRelationship {
		t.Errorf("err = %v, want Forbidden/NO_APPROVED_RELATIONSHIP", err)
	}
}

func TestCreateRejectsWrongDirection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// The approved relationship runs supplier->customer; creating with the
	// roles swapped must fail.
	_, err := f.svc.Create(ctx, f.supplierEditor, CreateInput{
		SupplierID: f.customer.ID,
		CustomerID: f.supplier.ID,
		Year:       2023,
	})
	if !apperr.IsKind(err, apperr.KindForbidden) {
		t.Errorf("err = %v, want Forbidden", err)
	}
}

func TestDuplicateAllocationRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := CreateInput{
		SupplierID: f.supplier.ID,
		CustomerID: f.customer.ID,
		Year:       2023,
		Emissions:  dec("10"),
	}
	if _, err := f.svc.Create(ctx, f.supplierEditor, in); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := f.svc.Create(ctx, f.supplierEditor, in); apperr.CodeOf(err) != apperr.CodeAllocationExists {
		t.Errorf("second create: err = %v, want ALLOCATION_EXISTS", err)
	}
}

func TestAdminReadsButNeverMutates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	admin := policy.Actor{UserID: 1000, CompanyID: 0, Role: models.RoleAdmin}

	a, err := f.svc.Create(ctx, f.supplierEditor, CreateInput{
		SupplierID: f.supplier.ID,
		CustomerID: f.customer.ID,
		Year:       2023,
		Emissions:  dec("10"),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := f.svc.List(ctx, admin, f.supplier.ID, ListFilter{}); err != nil {
		t.Errorf("admin list: %v", err)
	}
	if _, err := f.svc.Update(ctx, admin, a.ID, UpdateInput{
		Status: models.AllocationStatusRejected,
	}); !apperr.IsKind(err, apperr.KindForbidden) {
		t.Errorf("admin update: err = %v, want Forbidden", err)
	}
	if err := f.svc.Delete(ctx, admin, a.ID); !apperr.IsKind(err, apperr.KindForbidden) {
		t.Errorf("admin delete: err = %v, want Forbidden", err)
	}
}

func TestAcceptWithoutTotalTracksCategoryOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.svc.Create(ctx, f.supplierEditor, CreateInput{
		SupplierID: f.supplier.ID,
		CustomerID: f.customer.ID,
		Year:       2023,
		Emissions:  dec("42"),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	a, err = f.svc.Update(ctx, f.customerEditor, a.ID, UpdateInput{
		Status:   models.AllocationStatusApproved,
		Category: strptr("CAT_9"),
	})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if a.AddedToCustomerScopeTotal {
		t.Error("flag should stay false")
	}
	if a.Category == nil || *a.Category != "CAT_9" {
		t.Errorf("category = %v, want CAT_9", a.Category)
	}
	if got := f.scope3(t); !got.Equal(decimal.RequireFromString("1000")) {
		t.Fatalf("scope3 = %s, want unchanged 1000", got)
	}
}

func TestApproveWithTotalNeedsTargetEmission(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.svc.Create(ctx, f.supplierEditor, CreateInput{
		SupplierID: f.supplier.ID,
		CustomerID: f.customer.ID,
		Year:       2024, // no corporate emission for 2024
		Emissions:  dec("42"),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	_, err = f.svc.Update(ctx, f.customerEditor, a.ID, UpdateInput{
		Status:                    models.AllocationStatusApproved,
		Category:                  strptr("CAT_1"),
		AddedToCustomerScopeTotal: true,
	})
	if !apperr.IsKind(err, apperr.KindAggregationInconsistency) {
		t.Fatalf("err = %v, want AggregationInconsistency", err)
	}

	// The whole transaction rolled back: still awaiting approval.
	var reloaded models.EmissionAllocation
	if err := f.db.First(&reloaded, a.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Status != models.AllocationStatusAwaitingApproval {
		t.Errorf("status = %s, want AWAITING_APPROVAL after rollback", reloaded.Status)
	}
}

func TestOneNotificationJobPerMutation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.svc.Create(ctx, f.customerEditor, CreateInput{
		SupplierID: f.supplier.ID,
		CustomerID: f.customer.ID,
		Year:       2023,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if got := f.q.Len(); got != 1 {
		t.Fatalf("jobs after create = %d, want 1", got)
	}

	if _, err := f.svc.Update(ctx, f.supplierEditor, a.ID, UpdateInput{
		Status:    models.AllocationStatusAwaitingApproval,
		Emissions: dec("5"),
	}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if got := f.q.Len(); got != 2 {
		t.Fatalf("jobs after submit = %d, want 2", got)
	}

	job, err := f.q.Dequeue(ctx)
	if err != nil || job == nil {
		t.Fatalf("dequeue: %v %v", job, err)
	}
	if job.Kind != dispatch.JobRequestEmission {
		t.Errorf("first job kind = %s, want request-emission", job.Kind)
	}
	if job.Payload["recipient_email"] != "sam@alpha.example" {
		t.Errorf("request notification addressed to %v, want the supplier contact", job.Payload["recipient_email"])
	}
}

func TestFailedTransitionEnqueuesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.svc.Create(ctx, f.supplierEditor, CreateInput{
		SupplierID: f.supplier.ID,
		CustomerID: f.customer.ID,
		Year:       2023,
		Emissions:  dec("5"),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	queued := f.q.Len()

	if _, err := f.svc.Update(ctx, f.customerEditor, a.ID, UpdateInput{
		Status: models.AllocationStatusRequested,
	}); !apperr.IsKind(err, apperr.KindInvalidTransition) {
		t.Fatalf("err = %v, want InvalidTransition", err)
	}
	if got := f.q.Len(); got != queued {
		t.Errorf("jobs = %d, want unchanged %d after failed transition", got, queued)
	}
}
