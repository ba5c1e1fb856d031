package web

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// AnonymousActor is recorded when dev mode lets a request through without
// a token.
const AnonymousActor = "unknown_user"

type Actor struct {
	ID    string
	Email string
}

// Name is the identity recorded as approved_by.
func (a Actor) Name() string {
	if a.Email != "" {
		return a.Email
	}
	if a.ID != "" {
		return a.ID
	}
	return AnonymousActor
}

type actorKey struct{}

func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(Actor)
	return actor, ok
}

type AuthConfig struct {
	Secret   string
	Issuer   string
	Audience string
	DevMode  bool
}

type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

var errMissingBearer = errors.New("missing bearer token")

func ParseBearer(r *http.Request) (string, error) {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if h == "" {
		return "", errMissingBearer
	}
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", errors.New("malformed authorization header")
	}
	return strings.TrimSpace(token), nil
}

// ParseToken verifies an HS256 token against cfg.
func ParseToken(cfg AuthConfig, tokenStr string) (*Claims, error) {
	if cfg.Secret == "" {
		return nil, errors.New("jwt secret not configured")
	}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		return []byte(cfg.Secret), nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// AuthMiddleware puts the caller's Actor on the request context. In dev
// mode a request without a token proceeds as AnonymousActor; a bad token is
// always rejected.
func AuthMiddleware(cfg AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := ParseBearer(r)
			if errors.Is(err, errMissingBearer) && cfg.DevMode {
				next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), Actor{})))
				return
			}
			if err != nil {
				writeError(w, http.StatusUnauthorized, CodeUnauthorized, "unauthorized")
				return
			}
			claims, err := ParseToken(cfg, token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, CodeUnauthorized, "unauthorized")
				return
			}
			actor := Actor{ID: claims.Subject, Email: claims.Email}
			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}
