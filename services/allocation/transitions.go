// Package allocation owns the emission-allocation workflow: the status
// state machine and the transactional service applying it together with the
// scope3 ledger arithmetic.
package allocation

import (
	"github.com/shopspring/decimal"

	"github.com/sede-open/Scope3EApi-sub000/models"
	"github.com/sede-open/Scope3EApi-sub000/services/apperr"
	"github.com/sede-open/Scope3EApi-sub000/services/dispatch"
)

type EventKind int

const (
	// EventSupplierSubmit covers the supplier sending a value: fulfilling a
	// request, first submission, and edits before or after approval.
	EventSupplierSubmit EventKind = iota + 1
	// EventSupplierDismiss declines to fulfil a pending request.
	EventSupplierDismiss
	// EventCustomerRequest asks the supplier for data; also re-requests
	// after a dismissal.
	EventCustomerRequest
	// EventCustomerAccept approves a submitted value, optionally folding it
	// into the customer's scope3 total.
	EventCustomerAccept
	// EventCustomerReject declines a submitted value.
	EventCustomerReject
)

// Event carries everything a transition may need. The service resolves
// entity references (like the target CorporateEmission) before calling
// Transition, so the transition itself stays pure.
type Event struct {
	Kind        EventKind
	ActorUserID uint

	// Supplier submit fields.
	Emissions          *decimal.Decimal
	AllocationMethod   string
	SupplierEmissionID *uint

	// Customer request/accept fields.
	Note                      string
	Category                  *string
	AddedToCustomerScopeTotal bool
	CustomerEmissionID        *uint
}

// LedgerOp is a scope3 delta the service must apply in the same transaction
// as the allocation write.
type LedgerOp struct {
	EmissionID uint
	Delta      decimal.Decimal
}

// Result describes a validated transition: the mutated statuses, the ledger
// arithmetic it requires, and the effect the dispatcher should announce.
type Result struct {
	From   string
	To     string
	Ops    []LedgerOp
	Effect string
}

// Transition validates ev against the allocation's current status and, when
// legal, mutates the allocation in place and reports the required ledger
// deltas. An empty current status means the allocation is being created.
// It is the single authoritative transition function: anything not in the
// table here is an InvalidTransition.
func Transition(a *models.EmissionAllocation, ev Event) (Result, error) {
	from := a.Status

	switch ev.Kind {
	case EventSupplierSubmit:
		return supplierSubmit(a, ev, from)
	case EventSupplierDismiss:
		return supplierDismiss(a, ev, from)
	case EventCustomerRequest:
		return customerRequest(a, ev, from)
	case EventCustomerAccept:
		return customerAccept(a, ev, from)
	case EventCustomerReject:
		return customerReject(a, ev, from)
	default:
		return Result{}, apperr.Validation("unknown allocation event")
	}
}

func supplierSubmit(a *models.EmissionAllocation, ev Event, from string) (Result, error) {
	switch from {
	case "", models.AllocationStatusRequested, models.AllocationStatusAwaitingApproval, models.AllocationStatusApproved:
	default:
		return Result{}, apperr.InvalidTransition(from, models.AllocationStatusAwaitingApproval)
	}

	if ev.Emissions == nil {
		return Result{}, apperr.Validation("emissions value is required")
	}
	if ev.Emissions.IsNegative() {
		return Result{}, apperr.Validation("emissions must be non-negative")
	}

	res := Result{From: from, To: models.AllocationStatusAwaitingApproval}

	// Editing an approved allocation reopens it for approval; if the old
	// value was contributing to the customer's scope3 total, that
	// contribution is no longer agreed and must be reversed now.
	if from == models.AllocationStatusApproved && a.AddedToCustomerScopeTotal {
		if a.CustomerEmissionID == nil || a.Emissions == nil {
			return Result{}, apperr.AggregationInconsistency(nil,
				"allocation %d marked added-to-total without emission reference or value", a.ID)
		}
		res.Ops = append(res.Ops, LedgerOp{EmissionID: *a.CustomerEmissionID, Delta: a.Emissions.Neg()})
		a.AddedToCustomerScopeTotal = false
	}

	switch from {
	case "", models.AllocationStatusRequested:
		res.Effect = dispatch.EffectSubmitted
	default:
		res.Effect = dispatch.EffectEdited
	}

	v := *ev.Emissions
	a.Emissions = &v
	if ev.AllocationMethod != "" {
		a.AllocationMethod = ev.AllocationMethod
	} else if a.AllocationMethod == "" {
		a.AllocationMethod = models.AllocationMethodUnknown
	}
	if ev.SupplierEmissionID != nil {
		a.SupplierEmissionID = ev.SupplierEmissionID
	}
	actor := ev.ActorUserID
	a.SupplierApproverID = &actor
	a.Status = models.AllocationStatusAwaitingApproval

	return res, nil
}

func supplierDismiss(a *models.EmissionAllocation, ev Event, from string) (Result, error) {
	if from != models.AllocationStatusRequested {
		return Result{}, apperr.InvalidTransition(from, models.AllocationStatusRequestDismissed)
	}

	actor := ev.ActorUserID
	a.SupplierApproverID = &actor
	a.Status = models.AllocationStatusRequestDismissed

	return Result{From: from, To: a.Status, Effect: dispatch.EffectDismissed}, nil
}

func customerRequest(a *models.EmissionAllocation, ev Event, from string) (Result, error) {
	effect := dispatch.EffectRequested
	switch from {
	case "":
	case models.AllocationStatusRequestDismissed:
		effect = dispatch.EffectReRequested
	default:
		return Result{}, apperr.InvalidTransition(from, models.AllocationStatusRequested)
	}

	if ev.Note != "" {
		a.Note = ev.Note
	}
	actor := ev.ActorUserID
	a.CustomerApproverID = &actor
	a.Status = models.AllocationStatusRequested

	return Result{From: from, To: a.Status, Effect: effect}, nil
}

func customerAccept(a *models.EmissionAllocation, ev Event, from string) (Result, error) {
	if from != models.AllocationStatusAwaitingApproval {
		return Result{}, apperr.InvalidTransition(from, models.AllocationStatusApproved)
	}

	// A category is required even when the customer keeps the allocation out
	// of their total.
	if ev.Category == nil || *ev.Category == "" {
		return Result{}, apperr.Validation("a scope3 category is required to accept an allocation")
	}

	res := Result{From: from, To: models.AllocationStatusApproved, Effect: dispatch.EffectAccepted}

	if ev.CustomerEmissionID != nil {
		a.CustomerEmissionID = ev.CustomerEmissionID
	}

	if ev.AddedToCustomerScopeTotal {
		if a.Emissions == nil {
			return Result{}, apperr.Validation("allocation has no emissions value to add to the scope3 total")
		}
		if a.CustomerEmissionID == nil {
			return Result{}, apperr.AggregationInconsistency(nil,
				"no target corporate emission to receive allocation %d", a.ID)
		}
		res.Ops = append(res.Ops, LedgerOp{EmissionID: *a.CustomerEmissionID, Delta: *a.Emissions})
		a.AddedToCustomerScopeTotal = true
	}

	a.Category = ev.Category
	actor := ev.ActorUserID
	a.CustomerApproverID = &actor
	a.Status = models.AllocationStatusApproved

	return res, nil
}

func customerReject(a *models.EmissionAllocation, ev Event, from string) (Result, error) {
	if from != models.AllocationStatusAwaitingApproval {
		return Result{}, apperr.InvalidTransition(from, models.AllocationStatusRejected)
	}

	res := Result{From: from, To: models.AllocationStatusRejected, Effect: dispatch.EffectRejected}

	// Reverse a lingering contribution if one somehow exists on this path.
	if a.AddedToCustomerScopeTotal && a.CustomerEmissionID != nil && a.Emissions != nil {
		res.Ops = append(res.Ops, LedgerOp{EmissionID: *a.CustomerEmissionID, Delta: a.Emissions.Neg()})
	}
	a.AddedToCustomerScopeTotal = false

	// Rejected allocations are not associated with any yearly record.
	a.CustomerEmissionID = nil

	if ev.Note != "" {
		a.Note = ev.Note
	}
	actor := ev.ActorUserID
	a.CustomerApproverID = &actor
	a.Status = models.AllocationStatusRejected

	return res, nil
}

// DeleteOps reports the ledger reversal a deletion requires. Deleting a
// contributing allocation must subtract its emissions from the customer's
// scope3 before the row disappears.
func DeleteOps(a *models.EmissionAllocation) []LedgerOp {
	if a.AddedToCustomerScopeTotal && a.CustomerEmissionID != nil && a.Emissions != nil {
		return []LedgerOp{{EmissionID: *a.CustomerEmissionID, Delta: a.Emissions.Neg()}}
	}
	return nil
}
