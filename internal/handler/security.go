package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/golang-jwt/jwt/v5"

	"github.com/xenking/pos-checkout/internal/domain/auth"
	"github.com/xenking/pos-checkout/internal/domain/checkout"
)

// ErrUnauthorized is returned for missing, malformed or expired tokens.
var ErrUnauthorized = errors.New("unauthorized")

type actorClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// SecurityHandler authenticates requests with HS256 bearer tokens issued by
// the identity service. The token subject is the actor id.
type SecurityHandler struct {
	secret []byte
	issuer string
}

// NewSecurityHandler creates a SecurityHandler. When issuer is set, tokens
// from other issuers are rejected.
func NewSecurityHandler(secret []byte, issuer string) *SecurityHandler {
	return &SecurityHandler{secret: secret, issuer: issuer}
}

// Authenticate verifies a raw token and returns the actor it names.
func (s *SecurityHandler) Authenticate(token string) (auth.Actor, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	claims := &actorClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, opts...)
	if err != nil || !parsed.Valid {
		return auth.Actor{}, errors.Wrap(ErrUnauthorized, "invalid or expired token")
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return auth.Actor{}, errors.Wrap(ErrUnauthorized, "token has no subject")
	}
	role := auth.Role(claims.Role)
	if role != auth.RoleAdmin && role != auth.RoleCashier {
		return auth.Actor{}, errors.Wrapf(ErrUnauthorized, "unknown role %q", claims.Role)
	}
	return auth.Actor{ID: sub, Role: role}, nil
}

// Sign issues a token for actor valid for ttl.
func (s *SecurityHandler) Sign(actor auth.Actor, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, actorClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: string(actor.Role),
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", errors.Wrap(err, "sign token")
	}
	return signed, nil
}

// Middleware rejects requests without a valid bearer token and stores the
// actor in the request context.
func (s *SecurityHandler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || raw == "" {
			writeError(w, r, http.StatusUnauthorized, "", ErrUnauthorized)
			return
		}
		actor, err := s.Authenticate(strings.TrimSpace(raw))
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, "", err)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithActor(r.Context(), actor)))
	})
}

// RequireAdmin rejects actors without the admin role. It must run after
// Middleware.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if actor, ok := auth.ActorFromContext(r.Context()); !ok || !actor.IsAdmin() {
			writeEngineError(w, r, checkout.ErrForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
