/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:
  Provides pre-built scenarios that populate the store with records at
  interesting points of the approval chain, so each review screen has
  something to act on right after startup.

AVAILABLE SCENARIOS:
  manager-queue:  Fresh submissions waiting on mgr-1
  hr-review:      Manager-approved records waiting on HR
  payout:         Fully approved claims ready to be marked paid
  mixed:          Every status, across both queues and two managers

HOW SCENARIOS WORK:
 1. Reset the store (clear all records)
 2. Submit records through the engine as their employees
 3. Replay approvals/rejections as the named approvers

  Records go through Engine.Submit/Approve/Reject, so the loaded chain
  configuration decides which levels each record needs.

USAGE VIA API:
  POST /api/scenarios/load
  {"scenario_id": "hr-review"}

NOTE:
  Scenarios reset the store. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Record endpoints
  - configs/chains.yaml: Chain definitions
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/approval-engine/approval"
	"github.com/warp/approval-engine/regularization"
	"github.com/warp/approval-engine/reimbursement"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "manager-queue",
		Name:        "Manager Queue",
		Description: "New regularizations and claims waiting on manager mgr-1",
	},
	{
		ID:          "hr-review",
		Name:        "HR Review",
		Description: "Manager-approved records waiting on HR",
	},
	{
		ID:          "payout",
		Name:        "Payout",
		Description: "Approved reimbursement claims ready to be marked paid",
	},
	{
		ID:          "mixed",
		Name:        "Mixed",
		Description: "Pending, approved, rejected and paid records across two teams",
	},
}

// Demo identities. Tokens for them come from `reviewer token`.
var (
	demoManager  = approval.Actor{EmployeeID: "mgr-1", Role: approval.RoleManager}
	demoManager2 = approval.Actor{EmployeeID: "mgr-2", Role: approval.RoleManager}
	demoHR       = approval.Actor{EmployeeID: "hr-1", Role: approval.RoleHR}
	demoAdmin    = approval.Actor{EmployeeID: "admin-1", Role: approval.RoleAdmin}
)

// ListScenarios returns available scenarios.
// GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "scenarios": scenarios})
}

// GetCurrentScenario returns the currently loaded scenario, if any.
// GET /api/scenarios/current
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()
	writeJSON(w, http.StatusOK, ScenarioResponse{Success: true, Scenario: current})
}

// LoadScenario resets the store and loads a scenario.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	if _, _, ok := h.authorize(w, r, ActScenarios); !ok {
		return
	}
	var req LoadScenarioRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	n, err := h.loadScenario(r.Context(), req.ScenarioID)
	if err != nil {
		if errors.Is(err, errUnknownScenario) {
			writeError(w, http.StatusNotFound, "Unknown scenario", fmt.Errorf("%s", req.ScenarioID))
			return
		}
		h.writeEngineError(w, r, err)
		return
	}

	h.Logger.Info("scenario loaded", zap.String("scenario", req.ScenarioID), zap.Int("records", n))
	writeJSON(w, http.StatusOK, ScenarioResponse{
		Success:  true,
		Message:  fmt.Sprintf("Loaded %d records", n),
		Scenario: req.ScenarioID,
		Records:  n,
	})
}

// ResetScenario clears every record.
// POST /api/scenarios/reset
func (h *Handler) ResetScenario(w http.ResponseWriter, r *http.Request) {
	if _, _, ok := h.authorize(w, r, ActScenarios); !ok {
		return
	}
	if err := h.reset(r.Context()); err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ScenarioResponse{Success: true, Message: "All records cleared"})
}

// =============================================================================
// LOADERS
// =============================================================================

var errUnknownScenario = errors.New("unknown scenario")

func (h *Handler) reset(ctx context.Context) error {
	resetter, ok := h.Engine.Store.(approval.Resetter)
	if !ok {
		return fmt.Errorf("store does not support reset")
	}
	if err := resetter.Reset(ctx); err != nil {
		return fmt.Errorf("failed to reset store: %w", err)
	}
	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()
	return nil
}

func (h *Handler) loadScenario(ctx context.Context, id string) (int, error) {
	var load func(*scenarioLoader) error
	switch id {
	case "manager-queue":
		load = loadManagerQueue
	case "hr-review":
		load = loadHRReview
	case "payout":
		load = loadPayout
	case "mixed":
		load = loadMixed
	default:
		return 0, errUnknownScenario
	}

	if err := h.reset(ctx); err != nil {
		return 0, err
	}
	l := &scenarioLoader{ctx: ctx, eng: h.Engine}
	if err := load(l); err != nil {
		return l.count, err
	}

	h.mu.Lock()
	h.currentScenario = id
	h.mu.Unlock()
	return l.count, nil
}

// scenarioLoader submits records and replays actions on them. The first
// error sticks and later calls are no-ops.
type scenarioLoader struct {
	ctx   context.Context
	eng   *approval.Engine
	count int
	err   error
}

func (l *scenarioLoader) regularization(emp, mgr approval.EmployeeID, date, in, out, reason string) approval.Record {
	if l.err != nil {
		return approval.Record{}
	}
	rec, err := regularization.NewRecord(emp, mgr, regularization.Request{
		Date: date, CheckIn: in, CheckOut: out, Reason: reason,
	})
	if err != nil {
		l.err = fmt.Errorf("scenario regularization: %w", err)
		return approval.Record{}
	}
	return l.submit(rec)
}

func (l *scenarioLoader) claim(emp, mgr approval.EmployeeID, cat reimbursement.Category, amount, date, desc string) approval.Record {
	if l.err != nil {
		return approval.Record{}
	}
	rec, err := reimbursement.NewRecord(emp, mgr, reimbursement.Claim{
		Category:    cat,
		Amount:      decimal.RequireFromString(amount),
		ExpenseDate: date,
		Description: desc,
	})
	if err != nil {
		l.err = fmt.Errorf("scenario claim: %w", err)
		return approval.Record{}
	}
	return l.submit(rec)
}

func (l *scenarioLoader) submit(rec approval.Record) approval.Record {
	out, err := l.eng.Submit(l.ctx, approval.Actor{EmployeeID: rec.EmployeeID, Role: approval.RoleEmployee}, rec)
	if err != nil {
		l.err = err
		return approval.Record{}
	}
	l.count++
	return out
}

// approve walks rec up the chain with the given approvers, skipping levels
// the record does not require.
func (l *scenarioLoader) approve(rec approval.Record, actors ...approval.Actor) approval.Record {
	for _, a := range actors {
		if l.err != nil || rec.Status != approval.StatusPending {
			return rec
		}
		level := approval.RoleLevel(a.Role)
		if _, required := rec.StepFor(level); !required {
			continue
		}
		rec, l.err = l.eng.Approve(l.ctx, a, rec.Kind, rec.ID, level, "")
	}
	return rec
}

func (l *scenarioLoader) reject(rec approval.Record, a approval.Actor, reason string) {
	if l.err != nil {
		return
	}
	_, l.err = l.eng.Reject(l.ctx, a, rec.Kind, rec.ID, approval.RoleLevel(a.Role), reason)
}

func (l *scenarioLoader) paid(rec approval.Record) {
	if l.err != nil || rec.Status != approval.StatusApproved {
		return
	}
	_, l.err = l.eng.MarkPaid(l.ctx, demoAdmin, rec.Kind, rec.ID)
}

func loadManagerQueue(l *scenarioLoader) error {
	l.regularization("emp-1", "mgr-1", "2025-03-03", "09:40", "18:30", "Badge reader was down")
	l.regularization("emp-2", "mgr-1", "2025-03-04", "10:05", "19:00", "Client visit in the morning")
	l.regularization("emp-3", "mgr-1", "2025-03-05", "09:00", "17:45", "Forgot to punch in")
	l.claim("emp-1", "mgr-1", reimbursement.CategoryTravel, "1250.50", "2025-03-01", "Cab to client office")
	l.claim("emp-2", "mgr-1", reimbursement.CategoryFood, "640.00", "2025-03-02", "Team lunch")
	l.claim("emp-4", "mgr-1", reimbursement.CategoryInternet, "999.00", "2025-02-28", "February broadband")
	return l.err
}

func loadHRReview(l *scenarioLoader) error {
	l.approve(l.regularization("emp-1", "mgr-1", "2025-03-06", "09:30", "18:00", "Network outage at home"), demoManager)
	l.approve(l.regularization("emp-3", "mgr-1", "2025-03-07", "08:55", "17:30", "Badge not detected"), demoManager)
	l.approve(l.claim("emp-2", "mgr-1", reimbursement.CategoryAccommodation, "7800.00", "2025-02-20", "Hotel for onsite week"), demoManager)
	l.approve(l.claim("emp-4", "mgr-1", reimbursement.CategoryFuel, "2100.00", "2025-02-25", "Fuel for field visits"), demoManager)
	l.regularization("emp-2", "mgr-1", "2025-03-08", "10:00", "18:45", "Doctor appointment")
	return l.err
}

func loadPayout(l *scenarioLoader) error {
	chain := []approval.Actor{demoManager, demoHR, demoAdmin}
	l.approve(l.claim("emp-1", "mgr-1", reimbursement.CategoryTravel, "3400.00", "2025-02-10", "Flight to Pune"), chain...)
	l.approve(l.claim("emp-2", "mgr-1", reimbursement.CategoryMedical, "1800.00", "2025-02-12", "Pharmacy"), chain...)
	l.approve(l.claim("emp-3", "mgr-1", reimbursement.CategoryOther, "450.00", "2025-02-14", "Stationery for workshop"), chain...)
	l.paid(l.approve(l.claim("emp-4", "mgr-1", reimbursement.CategoryFood, "300.00", "2025-02-01", "Working dinner"), chain...))
	return l.err
}

func loadMixed(l *scenarioLoader) error {
	chain := []approval.Actor{demoManager, demoHR, demoAdmin}

	l.regularization("emp-1", "mgr-1", "2025-03-10", "09:20", "18:10", "Late train")
	l.approve(l.regularization("emp-2", "mgr-1", "2025-03-11", "09:00", "18:00", "Biometric failure"), chain...)
	l.reject(l.regularization("emp-3", "mgr-1", "2025-03-12", "11:30", "20:00", "Worked late"), demoManager, "No overtime was approved")
	l.regularization("emp-5", "mgr-2", "2025-03-12", "09:10", "18:05", "Visitor pass issue")

	l.claim("emp-1", "mgr-1", reimbursement.CategoryTravel, "560.00", "2025-03-05", "Auto to airport")
	l.approve(l.claim("emp-4", "mgr-1", reimbursement.CategoryInternet, "799.00", "2025-03-01", "March broadband"), demoManager)
	hrReject := l.approve(l.claim("emp-2", "mgr-1", reimbursement.CategoryOther, "12000.00", "2025-02-27", "Conference ticket"), demoManager)
	l.reject(hrReject, demoHR, "insufficient documentation")
	l.approve(l.claim("emp-3", "mgr-1", reimbursement.CategoryMedical, "2300.00", "2025-02-18", "Clinic visit"), chain...)
	l.paid(l.approve(l.claim("emp-1", "mgr-1", reimbursement.CategoryFood, "420.00", "2025-02-08", "Client lunch"), chain...))
	l.approve(l.claim("emp-5", "mgr-2", reimbursement.CategoryFuel, "1500.00", "2025-03-03", "Site visit fuel"), demoManager2)
	return l.err
}
