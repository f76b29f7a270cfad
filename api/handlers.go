/*
handlers.go - HTTP request handlers for the approval API

PURPOSE:
  Implements the REST endpoints of every approval queue. Each handler
  follows the same pattern:
  1. Resolve the actor (auth middleware) and the kind (route)
  2. Check the capability table (authz.go)
  3. Parse and validate the request
  4. Call the engine
  5. Return a JSON response resolved for the caller's role

ENDPOINTS (per kind, {kinds} = regularizations | reimbursements):
  Listing:
    GET    /api/{kinds}?status=&page=&limit=   One page for the caller
    GET    /api/{kinds}/stats                  Counts (and totals) per status
    GET    /api/{kinds}/{id}                   One record

  Submission:
    POST   /api/{kinds}                        Submit a new record

  Approval:
    PATCH  /api/{kinds}/{id}/{level}-approve   Approve at level
    PATCH  /api/{kinds}/{id}/reject            Reject (reason required)
    POST   /api/{kinds}/bulk                   Approve/reject many
    PATCH  /api/{kinds}/{id}/notes             Save approver notes
    PATCH  /api/reimbursements/{id}/mark-paid  Approved → paid (admin)

  Operations:
    GET    /healthz

ERROR HANDLING:
  - 400: Malformed body, failed validation, unknown kind
  - 401: Missing or invalid token
  - 403: Role may not perform the action
  - 404: Record not found
  - 409: Record not waiting on this level, or invalid transition
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response types
  - server.go: Route definitions
  - approval/engine.go: Transitions
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/warp/approval-engine/approval"
)

// Handler handles HTTP requests.
type Handler struct {
	Engine *approval.Engine
	Auth   *Authenticator
	Authz  *Authorizer
	Logger *zap.Logger

	// CORSOrigins is passed to the cors middleware.
	CORSOrigins []string
	// Scenarios mounts the demo scenario endpoints.
	Scenarios bool

	validate *validator.Validate

	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a handler. The authorizer allows mark-paid on every
// registered payable kind.
func NewHandler(eng *approval.Engine, auth *Authenticator, logger *zap.Logger) (*Handler, error) {
	var payable []approval.Kind
	for _, k := range approval.ListKinds() {
		if k.Payable() {
			payable = append(payable, k)
		}
	}
	authz, err := NewAuthorizer(payable...)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Engine:   eng,
		Auth:     auth,
		Authz:    authz,
		Logger:   logger,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}, nil
}

// CollectionName is the URL segment of a kind: "reimbursement" → "reimbursements".
func CollectionName(kind approval.Kind) string {
	return kind.KindID() + "s"
}

type kindKey struct{}

func withKind(kind approval.Kind) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), kindKey{}, kind)))
		})
	}
}

func kindFrom(ctx context.Context) (approval.Kind, bool) {
	k, ok := ctx.Value(kindKey{}).(approval.Kind)
	return k, ok
}

// =============================================================================
// LISTING
// =============================================================================

// ListRecords returns one page of the caller's queue.
// GET /api/{kinds}?status=pending&page=1&limit=10
func (h *Handler) ListRecords(w http.ResponseWriter, r *http.Request) {
	actor, kind, ok := h.authorize(w, r, ActList)
	if !ok {
		return
	}

	q := approval.Query{Status: approval.Status(r.URL.Query().Get("status"))}
	if q.Status == "all" {
		q.Status = ""
	}
	var err error
	if q.Page, err = intParam(r, "page"); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid page", err)
		return
	}
	if q.Limit, err = intParam(r, "limit"); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid limit", err)
		return
	}
	if q.Limit > 100 {
		q.Limit = 100
	}

	page, err := h.Engine.List(r.Context(), actor, kind, q)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	items := make([]RecordDTO, 0, len(page.Items))
	for _, rec := range page.Items {
		items = append(items, toRecordDTO(rec, actor.Role))
	}
	writeJSON(w, http.StatusOK, ListResponse{
		Success:    true,
		Items:      items,
		Page:       page.Page,
		TotalPages: page.TotalPages,
		Total:      page.Total,
	})
}

// GetRecord returns a single record.
// GET /api/{kinds}/{id}
func (h *Handler) GetRecord(w http.ResponseWriter, r *http.Request) {
	actor, kind, ok := h.authorize(w, r, ActView)
	if !ok {
		return
	}
	rec, err := h.Engine.Get(r.Context(), actor, kind, recordID(r))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	dto := toRecordDTO(rec, actor.Role)
	writeJSON(w, http.StatusOK, RecordResponse{Success: true, Record: &dto})
}

// Stats counts the caller's queue per status. Kinds with amounts also get
// per-status totals.
// GET /api/{kinds}/stats
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	actor, kind, ok := h.authorize(w, r, ActStats)
	if !ok {
		return
	}
	st, err := h.Engine.Stats(r.Context(), actor, kind)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	resp := StatsResponse{Success: true, Kind: kind.KindID(), Counts: make(map[string]int, len(st.Counts))}
	for s, n := range st.Counts {
		resp.Counts[string(s)] = n
	}
	if st.Totals != nil {
		resp.Totals = make(map[string]string, len(st.Totals))
		for s, total := range st.Totals {
			resp.Totals[string(s)] = total.StringFixed(2)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// SUBMISSION
// =============================================================================

// SubmitRecord creates a record at the start of its approval chain.
// POST /api/{kinds}
func (h *Handler) SubmitRecord(w http.ResponseWriter, r *http.Request) {
	actor, kind, ok := h.authorize(w, r, ActSubmit)
	if !ok {
		return
	}
	var req SubmitRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	rec := approval.Record{
		Kind:       kind,
		EmployeeID: approval.EmployeeID(req.EmployeeID),
		ManagerID:  approval.EmployeeID(req.ManagerID),
		Payload:    req.Payload,
	}
	if rec.EmployeeID != "" && rec.EmployeeID != actor.EmployeeID && approval.RoleLevel(actor.Role) == approval.LevelNone {
		writeError(w, http.StatusForbidden, "Employees may only submit their own records", approval.ErrForbidden)
		return
	}

	rec, err := h.Engine.Submit(r.Context(), actor, rec)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	dto := toRecordDTO(rec, actor.Role)
	writeJSON(w, http.StatusCreated, RecordResponse{Success: true, Message: "Submitted", Record: &dto})
}

// =============================================================================
// APPROVAL
// =============================================================================

// ApproveRecord approves a record at the level named in the path.
// PATCH /api/{kinds}/{id}/{level}-approve
func (h *Handler) ApproveRecord(w http.ResponseWriter, r *http.Request) {
	level, valid := approval.ParseLevel(chi.URLParam(r, "level"))
	if !valid {
		writeError(w, http.StatusNotFound, "Unknown approval level", nil)
		return
	}
	actor, kind, ok := h.authorize(w, r, LevelAction("approve", level))
	if !ok {
		return
	}
	var req ApproveRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	rec, err := h.Engine.Approve(r.Context(), actor, kind, recordID(r), level, req.Comment)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	dto := toRecordDTO(rec, actor.Role)
	writeJSON(w, http.StatusOK, RecordResponse{
		Success: true,
		Message: fmt.Sprintf("Approved at %s level", level),
		Record:  &dto,
	})
}

// RejectRecord rejects a record. The level defaults to the caller's.
// PATCH /api/{kinds}/{id}/reject
func (h *Handler) RejectRecord(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required", ErrMissingToken)
		return
	}
	var req RejectRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	level := approval.Level(req.Level)
	if level == approval.LevelNone {
		level = approval.RoleLevel(actor.Role)
	}
	_, kind, ok := h.authorize(w, r, LevelAction("reject", level))
	if !ok {
		return
	}

	rec, err := h.Engine.Reject(r.Context(), actor, kind, recordID(r), level, req.Reason)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	dto := toRecordDTO(rec, actor.Role)
	writeJSON(w, http.StatusOK, RecordResponse{Success: true, Message: "Rejected", Record: &dto})
}

// BulkAction approves or rejects many records in one transaction.
// POST /api/{kinds}/bulk
func (h *Handler) BulkAction(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required", ErrMissingToken)
		return
	}
	var req BulkActionRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	level := approval.Level(req.Level)
	if level == approval.LevelNone {
		level = approval.RoleLevel(actor.Role)
	}
	_, kind, ok := h.authorize(w, r, LevelAction("bulk", level))
	if !ok {
		return
	}

	ids := make([]approval.RecordID, len(req.IDs))
	for i, id := range req.IDs {
		ids[i] = approval.RecordID(id)
	}
	res, err := h.Engine.Bulk(r.Context(), actor, kind, approval.BulkRequest{
		IDs:     ids,
		Action:  approval.Action(req.Action),
		Level:   level,
		Reason:  req.Reason,
		Comment: req.Comment,
	})
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	failed := make([]string, 0, len(res.FailedIDs))
	for _, id := range res.FailedIDs {
		failed = append(failed, string(id))
	}
	writeJSON(w, http.StatusOK, BulkResponse{
		Success:   res.Success,
		Message:   res.Message,
		Processed: res.Processed,
		Failed:    res.Failed,
		FailedIDs: failed,
	})
}

// MarkPaid moves an approved claim to paid.
// PATCH /api/reimbursements/{id}/mark-paid
func (h *Handler) MarkPaid(w http.ResponseWriter, r *http.Request) {
	actor, kind, ok := h.authorize(w, r, ActMarkPaid)
	if !ok {
		return
	}
	rec, err := h.Engine.MarkPaid(r.Context(), actor, kind, recordID(r))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	dto := toRecordDTO(rec, actor.Role)
	writeJSON(w, http.StatusOK, RecordResponse{Success: true, Message: "Marked as paid", Record: &dto})
}

// UpdateNotes replaces the approver notes of a record.
// PATCH /api/{kinds}/{id}/notes
func (h *Handler) UpdateNotes(w http.ResponseWriter, r *http.Request) {
	actor, kind, ok := h.authorize(w, r, ActNotes)
	if !ok {
		return
	}
	var req NotesRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	if _, err := h.Engine.UpdateNotes(r.Context(), actor, kind, recordID(r), req.Notes); err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, RecordResponse{Success: true, Message: "Notes saved"})
}

// =============================================================================
// OPERATIONS
// =============================================================================

type pinger interface {
	Ping(ctx context.Context) error
}

// Health reports whether the store is reachable.
// GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if p, ok := h.Engine.Store.(pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "Database unavailable", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

// authorize resolves actor and kind and checks act against the capability
// table. It writes the error response and returns false on failure.
func (h *Handler) authorize(w http.ResponseWriter, r *http.Request, act string) (approval.Actor, approval.Kind, bool) {
	actor, ok := ActorFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required", ErrMissingToken)
		return approval.Actor{}, nil, false
	}
	obj := "*"
	kind, hasKind := kindFrom(r.Context())
	if hasKind {
		obj = kind.KindID()
	}
	allowed, err := h.Authz.Allow(actor.Role, obj, act)
	if err != nil {
		h.Logger.Error("authorization failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Authorization failed", nil)
		return approval.Actor{}, nil, false
	}
	if !allowed {
		writeErrorCode(w, http.StatusForbidden, "forbidden",
			fmt.Sprintf("Role %s may not %s", actor.Role, act), nil)
		return approval.Actor{}, nil, false
	}
	return actor, kind, true
}

// decodeAndValidate decodes the JSON body into dst and runs the validator.
// An empty body decodes as the zero value.
func (h *Handler) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeErrorCode(w, http.StatusBadRequest, "bad_request", "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "validation_failed", validationMessage(err), err)
		return false
	}
	return true
}

// validationMessage renders the first failed field as a sentence.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "Invalid request"
	}
	fe := verrs[0]
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required", "required_if":
		return field + " is required"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s is too long (max %s)", field, fe.Param())
	case "min":
		return fmt.Sprintf("%s needs at least %s item(s)", field, fe.Param())
	}
	return fmt.Sprintf("%s is invalid", field)
}

// writeEngineError maps engine errors onto HTTP statuses.
func (h *Handler) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	if approval.IsClientError(err) || approval.IsNotFound(err) {
		h.Logger.Debug("request refused",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	var verr *approval.ValidationError
	switch {
	case errors.As(err, &verr):
		writeErrorCode(w, http.StatusBadRequest, "validation_failed", verr.Error(), nil)
	case errors.Is(err, approval.ErrValidation), errors.Is(err, approval.ErrUnknownKind):
		writeErrorCode(w, http.StatusBadRequest, "bad_request", err.Error(), nil)
	case errors.Is(err, approval.ErrRecordNotFound):
		writeErrorCode(w, http.StatusNotFound, "not_found", "Record not found", nil)
	case errors.Is(err, approval.ErrForbidden):
		writeErrorCode(w, http.StatusForbidden, "forbidden", err.Error(), nil)
	case errors.Is(err, approval.ErrNotActionable):
		writeErrorCode(w, http.StatusConflict, "not_actionable", err.Error(), nil)
	case errors.Is(err, approval.ErrInvalidTransition):
		writeErrorCode(w, http.StatusConflict, "invalid_transition", err.Error(), nil)
	default:
		h.Logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "Internal server error", nil)
	}
}

func recordID(r *http.Request) approval.RecordID {
	return approval.RecordID(chi.URLParam(r, "id"))
}

func intParam(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer: %q", name, raw)
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	writeErrorCode(w, status, "", message, err)
}

func writeErrorCode(w http.ResponseWriter, status int, code, message string, err error) {
	if code == "" {
		code = strings.ReplaceAll(strings.ToLower(http.StatusText(status)), " ", "_")
	}
	resp := ErrorResponse{Success: false, Message: message, Code: code}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
