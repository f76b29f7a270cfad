/*
kind.go - Record kind registration and lookup

PURPOSE:
  The coordinator is written once and instantiated per record kind.
  Domain packages (regularization, reimbursement) define their Kind and
  register it here so stores and transport layers can turn the stored
  kind string back into the concrete type.

USAGE:
  // In reimbursement/types.go
  func init() {
      approval.RegisterKind(Kind)
  }

  // In a store
  kind := approval.GetOrCreateKind("reimbursement")

SEE ALSO:
  - regularization/types.go
  - reimbursement/types.go
*/
package approval

import (
	"encoding/json"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
)

// Kind identifies what sort of record moves through the chain.
type Kind interface {
	// KindID returns the stable identifier stored with each record.
	KindID() string

	// Payable reports whether approved records may transition to paid.
	Payable() bool

	// ValidatePayload checks the kind-specific payload on submission.
	ValidatePayload(payload json.RawMessage) error

	// Summary renders a one-line description of a payload for listings.
	Summary(payload json.RawMessage) string
}

// Totaler is implemented by kinds whose payload carries an amount. Stats
// report per-status totals for them.
type Totaler interface {
	Totals(recs []Record) map[Status]decimal.Decimal
}

var (
	kindRegistry = make(map[string]Kind)
	kindMu       sync.RWMutex
)

// RegisterKind adds a kind to the global registry.
func RegisterKind(k Kind) {
	kindMu.Lock()
	defer kindMu.Unlock()
	kindRegistry[k.KindID()] = k
}

// LookupKind finds a registered kind by ID. Returns nil if not found.
func LookupKind(id string) Kind {
	kindMu.RLock()
	defer kindMu.RUnlock()
	return kindRegistry[id]
}

// ListKinds returns registered kinds sorted by ID.
func ListKinds() []Kind {
	kindMu.RLock()
	defer kindMu.RUnlock()
	out := make([]Kind, 0, len(kindRegistry))
	for _, k := range kindRegistry {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].KindID() < out[j].KindID() })
	return out
}

// =============================================================================
// STRING KIND - For testing and fallback
// =============================================================================

// StringKind is a kind with no payload rules. Use in tests, or as a
// fallback when a stored kind is not registered in this process.
type StringKind struct {
	ID     string
	CanPay bool
}

func (k StringKind) KindID() string                        { return k.ID }
func (k StringKind) Payable() bool                         { return k.CanPay }
func (k StringKind) ValidatePayload(json.RawMessage) error { return nil }
func (k StringKind) Summary(p json.RawMessage) string      { return string(p) }

// GetOrCreateKind looks up a kind, or returns a StringKind fallback.
func GetOrCreateKind(id string) Kind {
	if k := LookupKind(id); k != nil {
		return k
	}
	return StringKind{ID: id}
}
