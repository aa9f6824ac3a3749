package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// =============================================================================
// ROLES
// =============================================================================

type Role string

const (
	RoleSuperAdmin  Role = "superadmin"
	RoleAdmin       Role = "admin"
	RoleProcurement Role = "procurement"
	RoleInventory   Role = "inventory"
	RoleAccounting  Role = "accounting"
	RoleViewer      Role = "viewer"
)

var (
	// stockWriters may create items and record movements.
	stockWriters = []Role{RoleSuperAdmin, RoleAdmin, RoleProcurement, RoleInventory}
	// administrators may restore items, rebuild and load scenarios.
	administrators = []Role{RoleSuperAdmin, RoleAdmin}
)

// Principal is the caller attached to a request.
type Principal struct {
	Username string
	Role     Role
}

type principalKey struct{}

func withPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the caller, or an anonymous viewer.
func PrincipalFrom(ctx context.Context) Principal {
	if p, ok := ctx.Value(principalKey{}).(Principal); ok {
		return p
	}
	return Principal{Username: "anonymous", Role: RoleViewer}
}

// =============================================================================
// AUTHENTICATOR
// =============================================================================

// UserClaims are the JWT claims issued to users.
type UserClaims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Authenticator resolves the caller. With a signing key, a valid HS256
// bearer token is required. Without one, the caller is taken from the
// X-Actor and X-Role headers, for local development.
type Authenticator struct {
	SigningKey []byte
}

func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := a.resolve(r)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "Unauthorized", Code: "unauthorized", Details: err.Error()})
			return
		}
		next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), p)))
	})
}

func (a *Authenticator) resolve(r *http.Request) (Principal, error) {
	if len(a.SigningKey) == 0 {
		p := Principal{Username: strings.TrimSpace(r.Header.Get("X-Actor")), Role: Role(r.Header.Get("X-Role"))}
		if p.Username == "" {
			p.Username = "anonymous"
		}
		if p.Role == "" {
			p.Role = RoleAdmin
		}
		return p, nil
	}

	header := r.Header.Get("Authorization")
	tokenString, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || tokenString == "" {
		return Principal{}, errors.New("missing bearer token")
	}
	claims := &UserClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.SigningKey, nil
	})
	if err != nil || !token.Valid {
		return Principal{}, fmt.Errorf("invalid token: %w", err)
	}
	if claims.Username == "" {
		return Principal{}, errors.New("token has no username")
	}
	return Principal{Username: claims.Username, Role: Role(claims.Role)}, nil
}

// IssueToken signs a token for the given user. Used by tests and tooling.
func (a *Authenticator) IssueToken(username string, role Role, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := UserClaims{
		Username: username,
		Role:     string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.SigningKey)
}

// RequireRole rejects callers whose role is not listed.
func RequireRole(roles ...Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := PrincipalFrom(r.Context())
			if !slices.Contains(roles, p.Role) {
				writeJSON(w, http.StatusForbidden, ErrorResponse{
					Error:   "Forbidden",
					Code:    "forbidden",
					Details: fmt.Sprintf("role %q may not perform this action", p.Role),
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
