/*
selection.go - Bulk selection restricted to actionable records

INVARIANT:
  selected ⊆ { id : CanAct(record(id), viewer) } for the current page.

  Only actionable records can enter the set, and the set is rebuilt from
  scratch whenever the page content changes (Reset), so ids from a previous
  fetch never survive a refresh.

Selection is not safe for concurrent use; Board guards it.
*/
package approval

// Selection tracks the records checked for a bulk operation on one page.
type Selection struct {
	role     Role
	page     []Record
	selected map[RecordID]struct{}
	all      bool
}

func NewSelection(role Role) *Selection {
	return &Selection{role: role, selected: make(map[RecordID]struct{})}
}

// Reset replaces the visible page and clears the selection.
func (s *Selection) Reset(page []Record) {
	s.page = page
	s.selected = make(map[RecordID]struct{})
	s.all = false
}

// Clear empties the selection but keeps the page.
func (s *Selection) Clear() {
	s.selected = make(map[RecordID]struct{})
	s.all = false
}

// ToggleOne flips membership of id. Non-actionable records are refused and
// the selection is left unchanged.
func (s *Selection) ToggleOne(id RecordID) error {
	rec, ok := s.find(id)
	if !ok {
		return &SelectionDeniedError{ID: id, Reason: "record is not on the current page"}
	}
	if !CanAct(rec, s.role) {
		return &SelectionDeniedError{ID: id, Reason: "you can only select records awaiting your approval"}
	}

	if _, on := s.selected[id]; on {
		delete(s.selected, id)
	} else {
		s.selected[id] = struct{}{}
	}
	s.recompute()
	return nil
}

// ToggleAll clears a full selection, otherwise selects exactly the
// actionable records on the page.
func (s *Selection) ToggleAll() {
	if s.all {
		s.Clear()
		return
	}
	s.selected = make(map[RecordID]struct{})
	for _, rec := range s.page {
		if CanAct(rec, s.role) {
			s.selected[rec.ID] = struct{}{}
		}
	}
	s.recompute()
}

func (s *Selection) recompute() {
	n := s.actionableCount()
	s.all = n > 0 && len(s.selected) == n
}

func (s *Selection) actionableCount() int {
	n := 0
	for _, rec := range s.page {
		if CanAct(rec, s.role) {
			n++
		}
	}
	return n
}

func (s *Selection) find(id RecordID) (Record, bool) {
	for _, rec := range s.page {
		if rec.ID == id {
			return rec, true
		}
	}
	return Record{}, false
}

// AllSelected is the derived "select all" checkbox state.
func (s *Selection) AllSelected() bool { return s.all }

func (s *Selection) Len() int { return len(s.selected) }

func (s *Selection) Contains(id RecordID) bool {
	_, ok := s.selected[id]
	return ok
}

// Selected returns the selected ids in page order.
func (s *Selection) Selected() []RecordID {
	out := make([]RecordID, 0, len(s.selected))
	for _, rec := range s.page {
		if _, ok := s.selected[rec.ID]; ok {
			out = append(out, rec.ID)
		}
	}
	return out
}
