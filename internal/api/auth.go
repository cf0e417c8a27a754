package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/clinicore/cabinet-scheduling/internal/access"
)

const actorKey contextKey = "actor"

// SessionClaims are the claims the authentication service puts in its HS256
// session tokens. This core only decodes them into an actor; it never
// authenticates credentials.
type SessionClaims struct {
	jwt.RegisteredClaims
	Role     string   `json:"role"`
	Cabinets []string `json:"cabinets"`
	Grants   []string `json:"grants,omitempty"`
}

// ActorAuth builds the per-request TenantActor from the session token. The
// actor is immutable for the request's duration.
func ActorAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" || !strings.HasPrefix(header, "Bearer ") {
				writeError(w, http.StatusUnauthorized, "missing_token", "Authorization bearer token is required")
				return
			}
			tokenString := strings.TrimPrefix(header, "Bearer ")

			claims := &SessionClaims{}
			token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
				}
				return []byte(secret), nil
			}, jwt.WithExpirationRequired())
			if err != nil || !token.Valid {
				writeError(w, http.StatusUnauthorized, "invalid_token", "session token is invalid or expired")
				return
			}

			actor, err := actorFromClaims(claims)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid_token", err.Error())
				return
			}

			ctx := context.WithValue(r.Context(), actorKey, actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func actorFromClaims(claims *SessionClaims) (access.Actor, error) {
	if claims.Subject == "" {
		return access.Actor{}, fmt.Errorf("token has no subject")
	}

	role := access.Role(claims.Role)
	switch role {
	case access.RoleAdmin, access.RoleManager, access.RolePractitioner, access.RoleAssistant:
	default:
		return access.Actor{}, fmt.Errorf("unknown role %q", claims.Role)
	}

	cabinets := make([]uuid.UUID, 0, len(claims.Cabinets))
	for _, raw := range claims.Cabinets {
		id, err := uuid.Parse(raw)
		if err != nil {
			return access.Actor{}, fmt.Errorf("invalid cabinet id %q", raw)
		}
		cabinets = append(cabinets, id)
	}

	return access.Actor{
		UserID:           claims.Subject,
		Role:             role,
		AssignedCabinets: cabinets,
		Grants:           claims.Grants,
	}, nil
}

// ActorFromContext returns the authenticated actor placed by ActorAuth.
func ActorFromContext(ctx context.Context) (access.Actor, bool) {
	actor, ok := ctx.Value(actorKey).(access.Actor)
	return actor, ok
}
