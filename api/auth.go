/*
auth.go - Bearer token identity

PURPOSE:
  Every /api request carries "Authorization: Bearer <JWT>". The token is
  HS256-signed with the server secret and holds two claims the engine
  needs: employee_id and role. The middleware turns it into an
  approval.Actor on the request context.

CLAIMS:
  employee_id  string  (required)
  role         string  employee | manager | hr | admin | superadmin
  exp, iat     unix seconds

USAGE:
  auth := api.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
  token, _ := auth.IssueToken("mgr-1", approval.RoleManager)

SEE ALSO:
  - authz.go: what each role may do once identified
  - cmd/reviewer: "token" subcommand
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/warp/approval-engine/approval"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
)

type Authenticator struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewAuthenticator(secret string, ttl time.Duration) *Authenticator {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Authenticator{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// IssueToken signs a token for the given identity.
func (a *Authenticator) IssueToken(employeeID approval.EmployeeID, role approval.Role) (string, error) {
	if employeeID == "" {
		return "", fmt.Errorf("%w: employee id is required", ErrInvalidToken)
	}
	if !validRole(role) {
		return "", fmt.Errorf("%w: unknown role %q", ErrInvalidToken, role)
	}
	now := a.now()
	claims := jwt.MapClaims{
		"employee_id": string(employeeID),
		"role":        string(role),
		"exp":         now.Add(a.ttl).Unix(),
		"iat":         now.Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// IssueToken is a convenience for tools that only hold the shared secret.
func IssueToken(secret string, employeeID approval.EmployeeID, role approval.Role, ttl time.Duration) (string, error) {
	return NewAuthenticator(secret, ttl).IssueToken(employeeID, role)
}

// Verify parses and validates a token and returns the actor it names.
func (a *Authenticator) Verify(tokenString string) (approval.Actor, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithTimeFunc(a.now))
	if err != nil {
		return approval.Actor{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return approval.Actor{}, ErrInvalidToken
	}
	emp, _ := claims["employee_id"].(string)
	if emp == "" {
		return approval.Actor{}, fmt.Errorf("%w: missing employee_id", ErrInvalidToken)
	}
	roleStr, _ := claims["role"].(string)
	role := approval.Role(roleStr)
	if !validRole(role) {
		return approval.Actor{}, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, roleStr)
	}
	return approval.Actor{EmployeeID: approval.EmployeeID(emp), Role: role}, nil
}

func validRole(role approval.Role) bool {
	switch role {
	case approval.RoleEmployee, approval.RoleManager, approval.RoleHR,
		approval.RoleAdmin, approval.RoleSuperAdmin:
		return true
	}
	return false
}

// =============================================================================
// MIDDLEWARE
// =============================================================================

type actorKey struct{}

// Middleware rejects requests without a valid bearer token.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			writeError(w, http.StatusUnauthorized, "Authentication required", ErrMissingToken)
			return
		}
		actor, err := a.Verify(strings.TrimSpace(raw))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid or expired token", err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
	})
}

func WithActor(ctx context.Context, actor approval.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom returns the authenticated actor of a request.
func ActorFrom(ctx context.Context) (approval.Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(approval.Actor)
	return actor, ok
}
