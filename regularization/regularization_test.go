package regularization_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/approval-engine/approval"
	"github.com/warp/approval-engine/regularization"
)

func validRequest() regularization.Request {
	return regularization.Request{
		Date:     "2025-03-10",
		CheckIn:  "09:15",
		CheckOut: "18:30",
		Reason:   "Biometric device was down",
	}
}

func TestRequest_Validate(t *testing.T) {
	require.NoError(t, validRequest().Validate())

	tests := []struct {
		name   string
		mutate func(*regularization.Request)
	}{
		{"bad date", func(r *regularization.Request) { r.Date = "10/03/2025" }},
		{"bad check in", func(r *regularization.Request) { r.CheckIn = "9am" }},
		{"bad check out", func(r *regularization.Request) { r.CheckOut = "25:00" }},
		{"out before in", func(r *regularization.Request) { r.CheckOut = "08:00" }},
		{"same time", func(r *regularization.Request) { r.CheckOut = r.CheckIn }},
		{"blank reason", func(r *regularization.Request) { r.Reason = "  " }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validRequest()
			tt.mutate(&r)
			assert.Error(t, r.Validate())
		})
	}
}

func TestRequest_Worked(t *testing.T) {
	d, err := validRequest().Worked()
	require.NoError(t, err)
	assert.Equal(t, 9*time.Hour+15*time.Minute, d)
}

func TestKind_Registered(t *testing.T) {
	k := approval.LookupKind("regularization")
	require.NotNil(t, k)
	assert.False(t, k.Payable(), "regularizations are never paid")
}

func TestNewRecordAndDecode(t *testing.T) {
	rec, err := regularization.NewRecord("emp-1", "mgr-1", validRequest())
	require.NoError(t, err)
	assert.Equal(t, "regularization", rec.Kind.KindID())
	assert.Equal(t, approval.EmployeeID("mgr-1"), rec.ManagerID)

	got, err := regularization.Decode(rec)
	require.NoError(t, err)
	assert.Equal(t, validRequest(), got)

	assert.Equal(t, "2025-03-10 09:15-18:30: Biometric device was down", rec.Kind.Summary(rec.Payload))

	_, err = regularization.Decode(approval.Record{Kind: approval.StringKind{ID: "reimbursement"}})
	assert.ErrorIs(t, err, approval.ErrUnknownKind)
}

func TestKind_ValidatePayload(t *testing.T) {
	k := regularization.Regularization
	assert.Error(t, k.ValidatePayload(nil))
	assert.Error(t, k.ValidatePayload(json.RawMessage(`{"date":`)))
	assert.Error(t, k.ValidatePayload(json.RawMessage(`{"date":"2025-03-10"}`)))

	good, err := json.Marshal(validRequest())
	require.NoError(t, err)
	assert.NoError(t, k.ValidatePayload(good))
}

func TestPaidNeverReachable(t *testing.T) {
	rec, err := regularization.NewRecord("emp-1", "mgr-1", validRequest())
	require.NoError(t, err)
	require.NoError(t, approval.Initialize(&rec, nil, time.Now()))

	err = approval.ApplyPaid(&rec, approval.Actor{EmployeeID: "adm", Role: approval.RoleSuperAdmin}, time.Now())
	assert.ErrorIs(t, err, approval.ErrInvalidTransition)
	for _, role := range []approval.Role{approval.RoleManager, approval.RoleHR, approval.RoleAdmin, approval.RoleEmployee} {
		assert.NotEqual(t, approval.StatusPaid, approval.DisplayStatus(rec, role))
	}
}
