/*
resolver.go - Approval state resolver

PURPOSE:
  Derives what a viewer sees and may do for a record. The same pending
  record shows "approved (by you)" to the manager who already signed off,
  "pending" to the HR reviewer it is waiting on, and "pending" to an admin
  whose level has not been reached. Status is therefore a function of
  (record, viewer role), not of the record alone.

  Every function here is pure and total. Unknown roles degrade to "may not
  act"; nothing returns an error.
*/
package approval

// RoleLevel maps a viewer role to the chain level it approves at.
// Roles without approval capability map to LevelNone.
func RoleLevel(role Role) Level {
	switch role {
	case RoleHR:
		return LevelHR
	case RoleManager:
		return LevelManager
	case RoleAdmin, RoleSuperAdmin:
		return LevelAdmin
	}
	return LevelNone
}

// HasApproved reports whether the viewer's own level already approved.
func HasApproved(rec Record, role Role) bool {
	level := RoleLevel(role)
	if level == LevelNone {
		return false
	}
	step, ok := rec.Flow[level]
	return ok && step.Status == StepApproved
}

// CanAct reports whether the viewer may approve or reject rec right now.
func CanAct(rec Record, role Role) bool {
	level := RoleLevel(role)
	return rec.Status == StatusPending &&
		level != LevelNone &&
		!HasApproved(rec, role) &&
		rec.CurrentLevel == level
}

// DisplayStatus returns the status shown to a viewer with the given role.
func DisplayStatus(rec Record, role Role) Status {
	switch rec.Status {
	case StatusRejected, StatusApproved, StatusPaid:
		return rec.Status
	}
	if HasApproved(rec, role) {
		return StatusApproved
	}
	return StatusPending
}

// View is the resolved, per-viewer projection of a record used by listings.
type View struct {
	Record        Record
	Status        Status
	Actionable    bool
	ApprovedByYou bool
}

func Resolve(rec Record, role Role) View {
	return View{
		Record:        rec,
		Status:        DisplayStatus(rec, role),
		Actionable:    CanAct(rec, role),
		ApprovedByYou: rec.Status == StatusPending && HasApproved(rec, role),
	}
}

// Label renders the status the way the review screens print it.
func (v View) Label() string {
	if v.ApprovedByYou {
		return string(v.Status) + " (You approved)"
	}
	return string(v.Status)
}
