package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/warp/approval-engine/approval"
	"github.com/warp/approval-engine/approval/store"
	"github.com/warp/approval-engine/reimbursement"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

const testSecret = "test-secret"

type testServer struct {
	t      *testing.T
	router *chi.Mux
	eng    *approval.Engine
	auth   *Authenticator
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	eng := approval.NewEngine(store.NewMemory())
	auth := NewAuthenticator(testSecret, time.Hour)
	h, err := NewHandler(eng, auth, nil)
	require.NoError(t, err)
	h.Scenarios = true
	return &testServer{t: t, router: NewRouter(h), eng: eng, auth: auth}
}

func (s *testServer) token(emp approval.EmployeeID, role approval.Role) string {
	s.t.Helper()
	tok, err := s.auth.IssueToken(emp, role)
	require.NoError(s.t, err)
	return tok
}

func (s *testServer) do(method, path, token string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

var claimPayload = map[string]any{
	"payload": map[string]any{
		"category":     "travel",
		"amount":       "1250.50",
		"expense_date": "2025-03-01",
	},
	"manager_id": "mgr-1",
}

// submitClaim submits a claim as emp-1 and returns its id.
func (s *testServer) submitClaim() string {
	s.t.Helper()
	rr := s.do("POST", "/api/reimbursements", s.token("emp-1", approval.RoleEmployee), claimPayload)
	require.Equal(s.t, http.StatusCreated, rr.Code, rr.Body.String())
	resp := decode[RecordResponse](s.t, rr)
	require.NotNil(s.t, resp.Record)
	return resp.Record.ID
}

// =============================================================================
// AUTH
// =============================================================================

func TestAuth_MissingToken(t *testing.T) {
	s := newTestServer(t)
	rr := s.do("GET", "/api/reimbursements", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	resp := decode[ErrorResponse](t, rr)
	assert.False(t, resp.Success)
	assert.Equal(t, "unauthorized", resp.Code)
}

func TestAuth_RejectsForeignSignature(t *testing.T) {
	s := newTestServer(t)
	tok, err := IssueToken("other-secret", "mgr-1", approval.RoleManager, time.Hour)
	require.NoError(t, err)
	rr := s.do("GET", "/api/reimbursements", tok, nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestAuthenticator_ExpiredToken(t *testing.T) {
	auth := NewAuthenticator(testSecret, time.Minute)
	auth.now = func() time.Time { return time.Now().Add(-time.Hour) }
	tok, err := auth.IssueToken("mgr-1", approval.RoleManager)
	require.NoError(t, err)

	_, err = NewAuthenticator(testSecret, time.Minute).Verify(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthenticator_RoundTrip(t *testing.T) {
	auth := NewAuthenticator(testSecret, time.Hour)
	tok, err := auth.IssueToken("hr-1", approval.RoleHR)
	require.NoError(t, err)

	actor, err := auth.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, approval.Actor{EmployeeID: "hr-1", Role: approval.RoleHR}, actor)

	_, err = auth.IssueToken("x", "intern")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthorizer_Table(t *testing.T) {
	authz, err := NewAuthorizer(reimbursement.Reimbursement)
	require.NoError(t, err)

	tests := []struct {
		role approval.Role
		obj  string
		act  string
		want bool
	}{
		{approval.RoleEmployee, "reimbursement", ActList, true},
		{approval.RoleEmployee, "reimbursement", ActSubmit, true},
		{approval.RoleEmployee, "reimbursement", LevelAction("approve", approval.LevelManager), false},
		{approval.RoleEmployee, "reimbursement", ActNotes, false},
		{approval.RoleManager, "regularization", LevelAction("approve", approval.LevelManager), true},
		{approval.RoleManager, "regularization", LevelAction("approve", approval.LevelHR), false},
		{approval.RoleManager, "regularization", ActSubmit, true},
		{approval.RoleHR, "reimbursement", LevelAction("reject", approval.LevelHR), true},
		{approval.RoleHR, "reimbursement", ActMarkPaid, false},
		{approval.RoleAdmin, "reimbursement", ActMarkPaid, true},
		{approval.RoleAdmin, "regularization", ActMarkPaid, false},
		{approval.RoleSuperAdmin, "reimbursement", ActMarkPaid, true},
		{approval.RoleSuperAdmin, "reimbursement", LevelAction("bulk", approval.LevelAdmin), true},
		{approval.RoleAdmin, "*", ActScenarios, true},
		{approval.RoleHR, "*", ActScenarios, false},
		{"", "reimbursement", ActList, false},
	}
	for _, tt := range tests {
		got, err := authz.Allow(tt.role, tt.obj, tt.act)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "%s %s %s", tt.role, tt.obj, tt.act)
	}
}

// =============================================================================
// SUBMIT / LIST / GET
// =============================================================================

func TestSubmitAndList(t *testing.T) {
	s := newTestServer(t)
	id := s.submitClaim()

	rr := s.do("GET", "/api/reimbursements?status=pending", s.token("mgr-1", approval.RoleManager), nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	list := decode[ListResponse](t, rr)
	assert.True(t, list.Success)
	assert.Equal(t, 1, list.Total)
	assert.Equal(t, 1, list.TotalPages)
	require.Len(t, list.Items, 1)
	item := list.Items[0]
	assert.Equal(t, id, item.ID)
	assert.Equal(t, "manager", item.CurrentLevel)
	assert.Equal(t, "pending", item.DisplayStatus)
	assert.True(t, item.Actionable)
	assert.Equal(t, "travel 1250.50 INR on 2025-03-01", item.Summary)

	// another manager's queue is empty
	rr = s.do("GET", "/api/reimbursements", s.token("mgr-2", approval.RoleManager), nil)
	assert.Equal(t, 0, decode[ListResponse](t, rr).Total)

	// the employee sees their own claim but cannot act on it
	rr = s.do("GET", "/api/reimbursements", s.token("emp-1", approval.RoleEmployee), nil)
	list = decode[ListResponse](t, rr)
	require.Len(t, list.Items, 1)
	assert.False(t, list.Items[0].Actionable)
}

func TestSubmit_InvalidPayload(t *testing.T) {
	s := newTestServer(t)
	body := map[string]any{"payload": map[string]any{"category": "yacht", "amount": "10", "expense_date": "2025-03-01"}}
	rr := s.do("POST", "/api/reimbursements", s.token("emp-1", approval.RoleEmployee), body)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, decode[ErrorResponse](t, rr).Message, "unknown category")

	rr = s.do("POST", "/api/reimbursements", s.token("emp-1", approval.RoleEmployee), map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "payload is required", decode[ErrorResponse](t, rr).Message)
}

func TestSubmit_EmployeeCannotSubmitForOthers(t *testing.T) {
	s := newTestServer(t)
	body := map[string]any{
		"employee_id": "emp-9",
		"payload":     map[string]any{"date": "2025-03-03", "check_in": "09:00", "check_out": "18:00", "reason": "x"},
	}
	rr := s.do("POST", "/api/regularizations", s.token("emp-1", approval.RoleEmployee), body)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestList_BadQuery(t *testing.T) {
	s := newTestServer(t)
	tok := s.token("hr-1", approval.RoleHR)
	assert.Equal(t, http.StatusBadRequest, s.do("GET", "/api/reimbursements?status=lost", tok, nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do("GET", "/api/reimbursements?page=abc", tok, nil).Code)
	assert.Equal(t, http.StatusOK, s.do("GET", "/api/reimbursements?status=all", tok, nil).Code)
}

func TestGetRecord(t *testing.T) {
	s := newTestServer(t)
	id := s.submitClaim()

	rr := s.do("GET", "/api/reimbursements/"+id, s.token("hr-1", approval.RoleHR), nil)
	require.Equal(t, http.StatusOK, rr.Code)
	resp := decode[RecordResponse](t, rr)
	assert.Equal(t, "reimbursement", resp.Record.Kind)
	assert.Len(t, resp.Record.Flow, 3)

	rr = s.do("GET", "/api/reimbursements/missing", s.token("hr-1", approval.RoleHR), nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "not_found", decode[ErrorResponse](t, rr).Code)

	rr = s.do("GET", "/api/reimbursements/"+id, s.token("emp-2", approval.RoleEmployee), nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

// =============================================================================
// APPROVE / REJECT
// =============================================================================

func TestApprove_ManagerThenViewerSeesYouApproved(t *testing.T) {
	s := newTestServer(t)
	id := s.submitClaim()
	mgr := s.token("mgr-1", approval.RoleManager)

	rr := s.do("PATCH", "/api/reimbursements/"+id+"/manager-approve", mgr, map[string]string{"comment": "ok"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	resp := decode[RecordResponse](t, rr)
	assert.True(t, resp.Success)
	assert.Equal(t, "hr", resp.Record.CurrentLevel)
	assert.Equal(t, "pending", resp.Record.Status)
	assert.Equal(t, "approved", resp.Record.DisplayStatus)
	assert.True(t, resp.Record.ApprovedByYou)
	assert.False(t, resp.Record.Actionable)
	assert.Equal(t, "ok", resp.Record.Flow[approval.LevelManager].Comment)

	// second approval at the same level is a conflict
	rr = s.do("PATCH", "/api/reimbursements/"+id+"/manager-approve", mgr, nil)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "not_actionable", decode[ErrorResponse](t, rr).Code)
}

func TestApprove_WrongLevelForRole(t *testing.T) {
	s := newTestServer(t)
	id := s.submitClaim()

	rr := s.do("PATCH", "/api/reimbursements/"+id+"/hr-approve", s.token("mgr-1", approval.RoleManager), nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	// right role, but the record is still waiting on the manager
	rr = s.do("PATCH", "/api/reimbursements/"+id+"/hr-approve", s.token("hr-1", approval.RoleHR), nil)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = s.do("PATCH", "/api/reimbursements/"+id+"/ceo-approve", s.token("hr-1", approval.RoleHR), nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestApprove_OtherTeamForbidden(t *testing.T) {
	s := newTestServer(t)
	id := s.submitClaim()
	rr := s.do("PATCH", "/api/reimbursements/"+id+"/manager-approve", s.token("mgr-2", approval.RoleManager), nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestReject_AtHR(t *testing.T) {
	s := newTestServer(t)
	id := s.submitClaim()
	s.do("PATCH", "/api/reimbursements/"+id+"/manager-approve", s.token("mgr-1", approval.RoleManager), nil)

	hr := s.token("hr-1", approval.RoleHR)
	rr := s.do("PATCH", "/api/reimbursements/"+id+"/reject", hr, map[string]string{"reason": ""})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "reason is required", decode[ErrorResponse](t, rr).Message)

	rr = s.do("PATCH", "/api/reimbursements/"+id+"/reject", hr, map[string]string{"reason": "insufficient documentation"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	rec := decode[RecordResponse](t, rr).Record
	assert.Equal(t, "rejected", rec.Status)
	assert.Equal(t, "insufficient documentation", rec.RejectionReason)
	assert.False(t, rec.Actionable)

	rr = s.do("GET", "/api/reimbursements/"+id, s.token("admin-1", approval.RoleAdmin), nil)
	rec = decode[RecordResponse](t, rr).Record
	assert.Equal(t, "rejected", rec.DisplayStatus)
	assert.False(t, rec.Actionable)
}

func TestReject_EmployeeForbidden(t *testing.T) {
	s := newTestServer(t)
	id := s.submitClaim()
	rr := s.do("PATCH", "/api/reimbursements/"+id+"/reject", s.token("emp-1", approval.RoleEmployee), map[string]string{"reason": "no"})
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

// =============================================================================
// BULK
// =============================================================================

func TestBulk_ApproveReportsFailures(t *testing.T) {
	s := newTestServer(t)
	a, b := s.submitClaim(), s.submitClaim()

	rr := s.do("POST", "/api/reimbursements/bulk", s.token("mgr-1", approval.RoleManager), map[string]any{
		"ids":    []string{a, b, "missing"},
		"action": "approve",
		"level":  "manager",
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	resp := decode[BulkResponse](t, rr)
	assert.True(t, resp.Success)
	assert.Equal(t, 2, resp.Processed)
	assert.Equal(t, 1, resp.Failed)
	assert.Equal(t, []string{"missing"}, resp.FailedIDs)

	for _, id := range []string{a, b} {
		rec, err := s.eng.Get(context.Background(), approval.Actor{Role: approval.RoleHR}, reimbursement.Reimbursement, approval.RecordID(id))
		require.NoError(t, err)
		assert.Equal(t, approval.LevelHR, rec.CurrentLevel)
	}
}

func TestBulk_RejectNeedsReason(t *testing.T) {
	s := newTestServer(t)
	a := s.submitClaim()
	rr := s.do("POST", "/api/reimbursements/bulk", s.token("mgr-1", approval.RoleManager), map[string]any{
		"ids":    []string{a},
		"action": "reject",
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "reason is required", decode[ErrorResponse](t, rr).Message)
}

func TestBulk_Validation(t *testing.T) {
	s := newTestServer(t)
	tok := s.token("mgr-1", approval.RoleManager)

	rr := s.do("POST", "/api/reimbursements/bulk", tok, map[string]any{"ids": []string{}, "action": "approve"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = s.do("POST", "/api/reimbursements/bulk", tok, map[string]any{"ids": []string{"a"}, "action": "escalate"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, decode[ErrorResponse](t, rr).Message, "action must be one of")

	rr = s.do("POST", "/api/reimbursements/bulk", tok, map[string]any{"ids": []string{"a"}, "action": "approve", "level": "hr"})
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestBulk_NothingProcessed(t *testing.T) {
	s := newTestServer(t)
	rr := s.do("POST", "/api/reimbursements/bulk", s.token("hr-1", approval.RoleHR), map[string]any{
		"ids":    []string{s.submitClaim()},
		"action": "approve",
	})
	require.Equal(t, http.StatusOK, rr.Code)
	resp := decode[BulkResponse](t, rr)
	assert.False(t, resp.Success)
	assert.Equal(t, 0, resp.Processed)
	assert.Equal(t, 1, resp.Failed)
}

// =============================================================================
// MARK PAID / NOTES / STATS
// =============================================================================

func TestMarkPaid(t *testing.T) {
	s := newTestServer(t)
	id := s.submitClaim()
	admin := s.token("admin-1", approval.RoleAdmin)

	rr := s.do("PATCH", "/api/reimbursements/"+id+"/mark-paid", admin, nil)
	assert.Equal(t, http.StatusConflict, rr.Code, "pending claims cannot be paid")

	s.do("PATCH", "/api/reimbursements/"+id+"/manager-approve", s.token("mgr-1", approval.RoleManager), nil)
	s.do("PATCH", "/api/reimbursements/"+id+"/hr-approve", s.token("hr-1", approval.RoleHR), nil)
	rr = s.do("PATCH", "/api/reimbursements/"+id+"/admin-approve", admin, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "approved", decode[RecordResponse](t, rr).Record.Status)

	rr = s.do("PATCH", "/api/reimbursements/"+id+"/mark-paid", s.token("hr-1", approval.RoleHR), nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = s.do("PATCH", "/api/reimbursements/"+id+"/mark-paid", admin, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	rec := decode[RecordResponse](t, rr).Record
	assert.Equal(t, "paid", rec.Status)
	assert.Equal(t, "paid", rec.DisplayStatus)
	assert.False(t, rec.Actionable)
}

func TestMarkPaid_NotRoutedForRegularizations(t *testing.T) {
	s := newTestServer(t)
	rr := s.do("PATCH", "/api/regularizations/r1/mark-paid", s.token("admin-1", approval.RoleAdmin), nil)
	assert.Contains(t, []int{http.StatusNotFound, http.StatusMethodNotAllowed}, rr.Code)
}

func TestUpdateNotes(t *testing.T) {
	s := newTestServer(t)
	id := s.submitClaim()

	rr := s.do("PATCH", "/api/reimbursements/"+id+"/notes", s.token("hr-1", approval.RoleHR), map[string]string{"notes": "check receipt"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rec, err := s.eng.Get(context.Background(), approval.Actor{Role: approval.RoleHR}, reimbursement.Reimbursement, approval.RecordID(id))
	require.NoError(t, err)
	assert.Equal(t, "check receipt", rec.Notes)

	rr = s.do("PATCH", "/api/reimbursements/"+id+"/notes", s.token("emp-1", approval.RoleEmployee), map[string]string{"notes": "x"})
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestStats(t *testing.T) {
	s := newTestServer(t)
	s.submitClaim()
	s.submitClaim()

	rr := s.do("GET", "/api/reimbursements/stats", s.token("hr-1", approval.RoleHR), nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	resp := decode[StatsResponse](t, rr)
	assert.Equal(t, map[string]int{"pending": 2}, resp.Counts)
	assert.Equal(t, map[string]string{"pending": "2501.00"}, resp.Totals)

	rr = s.do("GET", "/api/regularizations/stats", s.token("hr-1", approval.RoleHR), nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Nil(t, decode[StatsResponse](t, rr).Totals)
}

func TestStats_ScopedToManagerTeam(t *testing.T) {
	s := newTestServer(t)
	s.submitClaim()
	s.submitClaim()

	rr := s.do("GET", "/api/reimbursements/stats", s.token("mgr-1", approval.RoleManager), nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	resp := decode[StatsResponse](t, rr)
	assert.Equal(t, map[string]int{"pending": 2}, resp.Counts)
	assert.Equal(t, map[string]string{"pending": "2501.00"}, resp.Totals)

	other := s.token("mgr-2", approval.RoleManager)
	rr = s.do("GET", "/api/reimbursements", other, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 0, decode[ListResponse](t, rr).Total)

	rr = s.do("GET", "/api/reimbursements/stats", other, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	resp = decode[StatsResponse](t, rr)
	assert.Empty(t, resp.Counts)
	assert.Empty(t, resp.Totals)
}

func TestRefusedRequestsLogAtDebug(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	eng := approval.NewEngine(store.NewMemory())
	auth := NewAuthenticator(testSecret, time.Hour)
	h, err := NewHandler(eng, auth, zap.New(core))
	require.NoError(t, err)
	s := &testServer{t: t, router: NewRouter(h), eng: eng, auth: auth}
	hrTok := s.token("hr-1", approval.RoleHR)

	rr := s.do("GET", "/api/reimbursements/missing", hrTok, nil)
	require.Equal(t, http.StatusNotFound, rr.Code)

	id := s.submitClaim()
	rr = s.do("PATCH", "/api/reimbursements/"+id+"/hr-approve", hrTok, nil)
	require.Equal(t, http.StatusConflict, rr.Code, rr.Body.String())

	refused := logs.FilterMessage("request refused")
	assert.Equal(t, 2, refused.Len())
	for _, e := range refused.All() {
		assert.Equal(t, zap.DebugLevel, e.Level)
	}
	assert.Zero(t, logs.FilterMessage("request failed").Len())
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rr := s.do("GET", "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

// =============================================================================
// SCENARIOS
// =============================================================================

func TestScenarios_LoadAndReset(t *testing.T) {
	s := newTestServer(t)
	admin := s.token("admin-1", approval.RoleAdmin)

	rr := s.do("POST", "/api/scenarios/load", s.token("mgr-1", approval.RoleManager), map[string]string{"scenario_id": "mixed"})
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = s.do("POST", "/api/scenarios/load", admin, map[string]string{"scenario_id": "nope"})
	assert.Equal(t, http.StatusNotFound, rr.Code)

	for _, sc := range scenarios {
		rr = s.do("POST", "/api/scenarios/load", admin, map[string]string{"scenario_id": sc.ID})
		require.Equal(t, http.StatusOK, rr.Code, "%s: %s", sc.ID, rr.Body.String())
		assert.Positive(t, decode[ScenarioResponse](t, rr).Records, sc.ID)
	}

	rr = s.do("GET", "/api/scenarios/current", admin, nil)
	assert.Equal(t, "mixed", decode[ScenarioResponse](t, rr).Scenario)

	// mixed leaves two claims waiting on HR, one per team; the conference
	// ticket was already rejected there.
	rr = s.do("GET", "/api/reimbursements?status=pending", s.token("hr-1", approval.RoleHR), nil)
	list := decode[ListResponse](t, rr)
	actionable := 0
	for _, it := range list.Items {
		if it.Actionable {
			actionable++
		}
	}
	assert.Equal(t, 2, actionable)

	rr = s.do("POST", "/api/scenarios/reset", admin, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	rr = s.do("GET", "/api/reimbursements", admin, nil)
	assert.Equal(t, 0, decode[ListResponse](t, rr).Total)
}
