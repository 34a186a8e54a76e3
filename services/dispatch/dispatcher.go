// Package dispatch turns committed state changes into queued side effects.
// It runs strictly after the owning transaction has committed, enqueues at
// most one notification job per allocation mutation, and treats enqueue
// failures as log-only: the authoritative state change already happened.
package dispatch

import (
	"context"
	"log"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sede-open/Scope3EApi-sub000/models"
	"github.com/sede-open/Scope3EApi-sub000/queue"
)

// Notification job kinds. Payloads are flat and self-contained: by the time
// a worker runs, the allocation may have changed again.
const (
	JobRequestEmission    = "request-emission"
	JobSubmissionEmission = "submission-emission"
	JobAcceptedEmission   = "accepted-emission"
	JobRejectedEmission   = "rejected-emission"
	JobUpdatedEmission    = "updated-emission"
	JobDeletedEmission    = "deleted-emission"
	JobInvitationEmail    = "invitation-email"
	JobCRMFirstInvitation = "crm-first-invitation"
)

// Effects describe what just happened to an allocation. The state machine
// reports one of these per committed transition.
const (
	EffectRequested   = "requested"
	EffectReRequested = "re-requested"
	EffectSubmitted   = "submitted"
	EffectEdited      = "edited"
	EffectAccepted    = "accepted"
	EffectRejected    = "rejected"
	EffectDismissed   = "dismissed"
	EffectDeleted     = "deleted"
	EffectNone        = ""
)

// Capabilities are resolved once at startup from config and injected; there
// is no global feature-flag client.
type Capabilities struct {
	CRMEnabled bool
}

type Dispatcher struct {
	db   *gorm.DB
	q    queue.Queue
	caps Capabilities
}

func NewDispatcher(db *gorm.DB, q queue.Queue, caps Capabilities) *Dispatcher {
	return &Dispatcher{db: db, q: q, caps: caps}
}

// AllocationChanged picks the notification job for the committed effect and
// enqueues it, addressed to the counterparty of the company that acted.
// Deletion in particular is legal from either side, so the recipient depends
// on the actor, not the effect.
func (d *Dispatcher) AllocationChanged(ctx context.Context, effect string, a *models.EmissionAllocation, actorCompanyID uint) {
	var kind string

	switch effect {
	case EffectRequested, EffectReRequested:
		kind = JobRequestEmission
	case EffectSubmitted:
		kind = JobSubmissionEmission
	case EffectEdited:
		kind = JobUpdatedEmission
	case EffectAccepted:
		kind = JobAcceptedEmission
	case EffectRejected:
		kind = JobRejectedEmission
	case EffectDeleted:
		kind = JobDeletedEmission
	default:
		// Dismissals and unknown effects notify nobody.
		return
	}

	recipientCompanyID := a.SupplierID
	if actorCompanyID == a.SupplierID {
		recipientCompanyID = a.CustomerID
	}

	payload := d.allocationPayload(a, recipientCompanyID)
	d.enqueue(ctx, kind, payload)
}

// RelationshipInvited enqueues the invitation email for a freshly created
// relationship and, when this is the inviter's first outbound invitation and
// CRM sync is enabled, a CRM touch recording it.
func (d *Dispatcher) RelationshipInvited(ctx context.Context, rel *models.CompanyRelationship, inviterCompanyID uint) {
	invitedCompanyID := rel.SupplierID
	if inviterCompanyID == rel.SupplierID {
		invitedCompanyID = rel.CustomerID
	}

	payload := map[string]interface{}{
		"relationship_id": rel.ID,
		"invite_type":     rel.InviteType,
		"invite_code":     rel.InviteCode,
	}
	d.addCompanyNames(payload, rel.SupplierID, rel.CustomerID)
	d.addRecipient(payload, invitedCompanyID)

	supplierName, _ := payload["supplier_name"].(string)
	customerName, _ := payload["customer_name"].(string)
	inviterName, invitedName := supplierName, customerName
	if inviterCompanyID == rel.CustomerID {
		inviterName, invitedName = customerName, supplierName
	}
	payload["inviter_company_name"] = inviterName
	payload["invited_company_name"] = invitedName

	d.enqueue(ctx, JobInvitationEmail, payload)

	if d.caps.CRMEnabled && d.isFirstInvitation(inviterCompanyID, rel.ID) {
		d.enqueue(ctx, JobCRMFirstInvitation, payload)
	}
}

func (d *Dispatcher) allocationPayload(a *models.EmissionAllocation, recipientCompanyID uint) map[string]interface{} {
	payload := map[string]interface{}{
		"allocation_id": a.ID,
		"year":          a.Year,
		"status":        a.Status,
	}
	if a.Emissions != nil {
		payload["emissions"] = a.Emissions.String()
	}
	d.addCompanyNames(payload, a.SupplierID, a.CustomerID)
	d.addRecipient(payload, recipientCompanyID)
	return payload
}

func (d *Dispatcher) addCompanyNames(payload map[string]interface{}, supplierID, customerID uint) {
	var supplier, customer models.Company
	if err := d.db.First(&supplier, supplierID).Error; err == nil {
		payload["supplier_name"] = supplier.Name
	}
	if err := d.db.First(&customer, customerID).Error; err == nil {
		payload["customer_name"] = customer.Name
	}
}

// addRecipient resolves the counterparty contact: the first editor of the
// recipient company, falling back to its first user.
func (d *Dispatcher) addRecipient(payload map[string]interface{}, companyID uint) {
	var contact models.User
	err := d.db.
		Where("company_id = ? AND role = ?", companyID, models.RoleSupplierEditor).
		Order("id").
		First(&contact).Error
	if err != nil {
		err = d.db.Where("company_id = ?", companyID).Order("id").First(&contact).Error
	}
	if err != nil {
		return
	}
	payload["recipient_email"] = contact.Email
	payload["recipient_name"] = contact.Name
}

func (d *Dispatcher) isFirstInvitation(inviterCompanyID, relationshipID uint) bool {
	var count int64
	err := d.db.Model(&models.CompanyRelationship{}).
		Where("(supplier_id = ? OR customer_id = ?) AND id <> ?", inviterCompanyID, inviterCompanyID, relationshipID).
		Count(&count).Error
	return err == nil && count == 0
}

func (d *Dispatcher) enqueue(ctx context.Context, kind string, payload map[string]interface{}) {
	job := queue.Job{
		Kind:     kind,
		DedupKey: uuid.NewString(),
		Payload:  payload,
	}
	if err := d.q.Enqueue(ctx, job); err != nil {
		// Best effort; the state change already committed.
		log.Printf("[ERROR] dispatch: failed to enqueue %s job: %v", kind, err)
	}
}
