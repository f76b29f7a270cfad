/*
authz.go - Role capability table

PURPOSE:
  One casbin policy decides what each role may do on each record kind,
  instead of scattering role checks through the handlers. The engine still
  enforces the state machine (whose turn it is, who is in whose team); this
  table only answers "is this kind of request ever allowed for this role".

SUBJECTS:
  role:<role>, with inheritance
    superadmin > admin > approver > employee
    manager, hr           > approver

ACTIONS:
  list, view, submit                      every role
  notes, stats, approve:<level>, ...      approvers
  mark-paid                               admin, payable kinds only
  scenarios                               admin
*/
package api

import (
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"

	"github.com/warp/approval-engine/approval"
)

const authzModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && (p.obj == "*" || r.obj == p.obj) && r.act == p.act
`

// Action names checked against the policy.
const (
	ActList      = "list"
	ActView      = "view"
	ActSubmit    = "submit"
	ActNotes     = "notes"
	ActStats     = "stats"
	ActMarkPaid  = "mark-paid"
	ActScenarios = "scenarios"
)

// LevelAction names a level-scoped action, e.g. "approve:hr".
func LevelAction(verb string, level approval.Level) string {
	return verb + ":" + string(level)
}

type Authorizer struct {
	enforcer *casbin.Enforcer
}

// NewAuthorizer builds the enforcer from the built-in policy. payable lists
// the kinds whose records can be marked as paid.
func NewAuthorizer(payable ...approval.Kind) (*Authorizer, error) {
	m, err := model.NewModelFromString(authzModel)
	if err != nil {
		return nil, fmt.Errorf("authz: model: %w", err)
	}
	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("authz: enforcer: %w", err)
	}

	var policies [][]string
	for _, act := range []string{ActList, ActView, ActSubmit} {
		policies = append(policies, []string{Subject(approval.RoleEmployee), "*", act})
	}
	for _, act := range []string{ActNotes, ActStats} {
		policies = append(policies, []string{"role:approver", "*", act})
	}
	for _, role := range []approval.Role{approval.RoleManager, approval.RoleHR, approval.RoleAdmin} {
		level := approval.RoleLevel(role)
		for _, verb := range []string{"approve", "reject", "bulk"} {
			policies = append(policies, []string{Subject(role), "*", LevelAction(verb, level)})
		}
	}
	for _, k := range payable {
		policies = append(policies, []string{Subject(approval.RoleAdmin), k.KindID(), ActMarkPaid})
	}
	policies = append(policies, []string{Subject(approval.RoleAdmin), "*", ActScenarios})
	if _, err := e.AddPolicies(policies); err != nil {
		return nil, fmt.Errorf("authz: policies: %w", err)
	}

	groups := [][]string{
		{"role:approver", Subject(approval.RoleEmployee)},
		{Subject(approval.RoleManager), "role:approver"},
		{Subject(approval.RoleHR), "role:approver"},
		{Subject(approval.RoleAdmin), "role:approver"},
		{Subject(approval.RoleSuperAdmin), Subject(approval.RoleAdmin)},
	}
	if _, err := e.AddGroupingPolicies(groups); err != nil {
		return nil, fmt.Errorf("authz: roles: %w", err)
	}
	return &Authorizer{enforcer: e}, nil
}

func Subject(role approval.Role) string {
	if role == "" {
		return "role:anonymous"
	}
	return "role:" + string(role)
}

// Allow reports whether role may perform act on records of kind. obj is a
// kind ID, or "*" for endpoints that are not kind-scoped.
func (a *Authorizer) Allow(role approval.Role, obj, act string) (bool, error) {
	return a.enforcer.Enforce(Subject(role), obj, act)
}
