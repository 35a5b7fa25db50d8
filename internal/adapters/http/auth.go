package httpadapter

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/kirillkom/docflow/internal/core/domain"
)

type actorContextKey struct{}

// tokenClaims is the minimal claim set: sub names the actor, role its RBAC role.
type tokenClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// JWTAuth verifies HS256 bearer tokens issued elsewhere. Issuing tokens is out
// of scope for this service.
type JWTAuth struct {
	secret []byte
	issuer string
}

func NewJWTAuth(secret, issuer string) *JWTAuth {
	return &JWTAuth{secret: []byte(secret), issuer: issuer}
}

func (a *JWTAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, err := a.authenticate(r)
		if err != nil {
			slog.Debug("auth_rejected", "request_id", requestIDFromContext(r.Context()), "error", err)
			writeError(w, r, domain.WrapError(domain.ErrUnauthorized, "authenticate", err))
			return
		}
		if meta := requestMetaFromContext(r.Context()); meta != nil {
			meta.actorID = actor.ID
		}
		ctx := context.WithValue(r.Context(), actorContextKey{}, actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *JWTAuth) authenticate(r *http.Request) (domain.Actor, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return domain.Actor{}, errors.New("missing authorization header")
	}
	scheme, raw, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(raw) == "" {
		return domain.Actor{}, errors.New("expected Bearer <token>")
	}
	if len(a.secret) == 0 {
		return domain.Actor{}, errors.New("token verification is not configured")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	claims := &tokenClaims{}
	token, err := jwt.ParseWithClaims(strings.TrimSpace(raw), claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return domain.Actor{}, err
	}
	if !token.Valid {
		return domain.Actor{}, errors.New("invalid token")
	}

	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return domain.Actor{}, errors.New("token has no subject")
	}
	role := domain.Role(strings.ToLower(strings.TrimSpace(claims.Role)))
	if !role.Valid() {
		return domain.Actor{}, errors.New("token carries an unknown role")
	}
	return domain.Actor{ID: subject, Role: role}, nil
}

func actorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// requirePermission must run after JWTAuth.Middleware.
func requirePermission(p domain.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := actorFromContext(r.Context())
			if !ok {
				writeError(w, r, domain.WrapError(domain.ErrUnauthorized, "authorize", errors.New("no authenticated actor")))
				return
			}
			if !actor.Role.HasPermission(p) {
				writeError(w, r, domain.WrapError(domain.ErrForbidden, "authorize",
					errors.New("role "+string(actor.Role)+" lacks permission "+string(p))))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
