/*
chain.go - Sequential approval chain state machine

STATES:
  pending(manager) ──approve──▶ pending(hr) ──approve──▶ pending(admin) ──approve──▶ approved
        │                            │                         │                        │
        └──reject──┐      ┌──reject──┘        ┌──reject────────┘              markPaid (payable kinds,
                   ▼      ▼                   ▼                                admin/superadmin)
                          rejected (terminal)                                           │
                                                                                        ▼
                                                                                  paid (terminal)

  Levels that a record's chain does not require are absent from its Flow and
  are skipped. A record whose chain requires no level is approved on
  submission.

REQUIRED LEVELS:
  A ChainPolicy decides which levels a record needs. FullChain requires all
  three; factory.ChainFactory builds conditional chains from YAML.
*/
package approval

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// ChainPolicy decides which levels must approve a record.
type ChainPolicy interface {
	RequiredLevels(rec Record) ([]Level, error)
}

// ChainPolicyFunc adapts a function to ChainPolicy.
type ChainPolicyFunc func(rec Record) ([]Level, error)

func (f ChainPolicyFunc) RequiredLevels(rec Record) ([]Level, error) { return f(rec) }

// FullChain requires manager, hr and admin for every record.
var FullChain ChainPolicy = ChainPolicyFunc(func(Record) ([]Level, error) {
	return append([]Level(nil), Levels...), nil
})

// NewFlow builds a pending flow for the given levels. Unknown and duplicate
// levels are rejected.
func NewFlow(levels []Level) (Flow, error) {
	flow := make(Flow, len(levels))
	for _, l := range levels {
		if !l.Valid() {
			return nil, fmt.Errorf("%w: unknown level %q", ErrInvalidTransition, l)
		}
		if _, dup := flow[l]; dup {
			return nil, fmt.Errorf("%w: duplicate level %q", ErrInvalidTransition, l)
		}
		flow[l] = Step{Status: StepPending}
	}
	return flow, nil
}

// CurrentLevelOf returns the lowest level in chain order whose step is not
// yet approved, or LevelNone when every required level approved.
func CurrentLevelOf(flow Flow) Level {
	for _, l := range Levels {
		step, ok := flow[l]
		if !ok {
			continue
		}
		if step.Status != StepApproved {
			return l
		}
	}
	return LevelNone
}

// Initialize puts a freshly submitted record at the start of its chain.
func Initialize(rec *Record, levels []Level, at time.Time) error {
	flow, err := NewFlow(levels)
	if err != nil {
		return err
	}
	rec.Flow = flow
	rec.RejectionReason = ""
	rec.CreatedAt = at
	rec.UpdatedAt = at
	rec.CurrentLevel = CurrentLevelOf(flow)
	if rec.CurrentLevel == LevelNone {
		rec.Status = StatusApproved
	} else {
		rec.Status = StatusPending
	}
	return nil
}

// checkActor verifies that actor may act on rec at level.
func checkActor(rec *Record, actor Actor, level Level) error {
	if rec.Status != StatusPending {
		return fmt.Errorf("%w: record %s is %s", ErrInvalidTransition, rec.ID, rec.Status)
	}
	if !level.Valid() || RoleLevel(actor.Role) != level {
		return fmt.Errorf("%w: role %q cannot act at level %q", ErrForbidden, actor.Role, level)
	}
	if rec.CurrentLevel != level {
		return fmt.Errorf("%w: record %s is waiting on %q", ErrNotActionable, rec.ID, rec.CurrentLevel)
	}
	return nil
}

// ApplyApprove records level's approval and advances the chain.
func ApplyApprove(rec *Record, actor Actor, level Level, comment string, at time.Time) error {
	if err := checkActor(rec, actor, level); err != nil {
		return err
	}
	step, ok := rec.Flow[level]
	if !ok {
		return fmt.Errorf("%w: level %q not in chain", ErrNotActionable, level)
	}

	step.Status = StepApproved
	step.ActedAt = &at
	step.ActedBy = actor.EmployeeID
	step.Comment = comment
	rec.Flow[level] = step

	rec.CurrentLevel = CurrentLevelOf(rec.Flow)
	if rec.CurrentLevel == LevelNone {
		rec.Status = StatusApproved
	}
	rec.UpdatedAt = at
	return nil
}

// ApplyReject ends the chain. Any pending level may reject.
func ApplyReject(rec *Record, actor Actor, level Level, reason string, at time.Time) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return &ValidationError{Field: "reason", Message: "rejection reason is required"}
	}
	if err := checkActor(rec, actor, level); err != nil {
		return err
	}

	step := rec.Flow[level]
	step.Status = StepRejected
	step.ActedAt = &at
	step.ActedBy = actor.EmployeeID
	step.Comment = reason
	rec.Flow[level] = step

	rec.Status = StatusRejected
	rec.RejectionReason = reason
	rec.CurrentLevel = LevelNone
	rec.UpdatedAt = at
	return nil
}

// ApplyPaid moves an approved, payable record to paid.
func ApplyPaid(rec *Record, actor Actor, at time.Time) error {
	if rec.Kind == nil || !rec.Kind.Payable() {
		return fmt.Errorf("%w: %s records cannot be paid", ErrInvalidTransition, kindID(rec.Kind))
	}
	if !actor.Role.IsAdmin() {
		return fmt.Errorf("%w: role %q cannot mark records as paid", ErrForbidden, actor.Role)
	}
	if rec.Status != StatusApproved {
		return fmt.Errorf("%w: record %s is %s, not approved", ErrInvalidTransition, rec.ID, rec.Status)
	}
	rec.Status = StatusPaid
	rec.UpdatedAt = at
	return nil
}

// CheckInvariants reports the first violated chain invariant, if any.
func CheckInvariants(rec Record) error {
	if !rec.Status.Valid() {
		return fmt.Errorf("unknown status %q", rec.Status)
	}
	if rec.Status == StatusPaid && (rec.Kind == nil || !rec.Kind.Payable()) {
		return fmt.Errorf("status paid on non-payable kind %s", kindID(rec.Kind))
	}

	rejected := false
	for _, l := range sortedLevels(rec.Flow) {
		if rec.Flow[l].Status == StepRejected {
			rejected = true
		}
	}

	switch rec.Status {
	case StatusApproved, StatusPaid:
		for _, l := range sortedLevels(rec.Flow) {
			if rec.Flow[l].Status != StepApproved {
				return fmt.Errorf("%s record has %s level %s", rec.Status, rec.Flow[l].Status, l)
			}
		}
	case StatusRejected:
		if !rejected {
			return fmt.Errorf("rejected record has no rejected level")
		}
	case StatusPending:
		if rejected {
			return fmt.Errorf("pending record has a rejected level")
		}
		if want := CurrentLevelOf(rec.Flow); rec.CurrentLevel != want || want == LevelNone {
			return fmt.Errorf("pending record points at %q, expected %q", rec.CurrentLevel, want)
		}
	}
	return nil
}

func sortedLevels(flow Flow) []Level {
	out := make([]Level, 0, len(flow))
	for l := range flow {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rank() < out[j].Rank() })
	return out
}

func kindID(k Kind) string {
	if k == nil {
		return "unknown"
	}
	return k.KindID()
}
