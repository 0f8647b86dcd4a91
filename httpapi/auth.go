package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrUnauthorized = errors.New("invalid or missing credentials")
	ErrForbidden    = errors.New("admin access required")
)

type adminClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// AdminAuth grants admin access to bearer tokens signed with the shared
// HS256 secret whose email claim is on the admin list.
type AdminAuth struct {
	secret []byte
	admins map[string]bool
}

// NewAdminAuth returns nil when no secret is configured, which denies every
// admin request.
func NewAdminAuth(secret string, adminEmails []string) *AdminAuth {
	if strings.TrimSpace(secret) == "" {
		return nil
	}
	admins := make(map[string]bool, len(adminEmails))
	for _, email := range adminEmails {
		if e := normalizeEmail(email); e != "" {
			admins[e] = true
		}
	}
	return &AdminAuth{secret: []byte(secret), admins: admins}
}

// Authorize checks the Authorization header and returns the admin's email.
func (a *AdminAuth) Authorize(header string) (string, error) {
	if a == nil {
		return "", ErrUnauthorized
	}
	raw, err := bearerTokenFromHeader(header)
	if err != nil {
		return "", err
	}
	parsed, err := jwt.ParseWithClaims(raw, &adminClaims{}, func(token *jwt.Token) (any, error) {
		if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %s", token.Method.Alg())
		}
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithLeeway(30*time.Second))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	claims, ok := parsed.Claims.(*adminClaims)
	if !ok || !parsed.Valid {
		return "", ErrUnauthorized
	}
	email := normalizeEmail(claims.Email)
	if email == "" || !a.admins[email] {
		return "", ErrForbidden
	}
	return email, nil
}

func (h *Handler) adminMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		email, err := h.auth.Authorize(r.Header.Get("Authorization"))
		switch {
		case errors.Is(err, ErrForbidden):
			writeError(w, http.StatusForbidden, "FORBIDDEN", err.Error())
			return
		case err != nil:
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", ErrUnauthorized.Error())
			return
		}
		ctx := context.WithValue(r.Context(), ctxKeyAdmin, email)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func adminFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(ctxKeyAdmin).(string); ok {
		return s
	}
	return ""
}

func bearerTokenFromHeader(header string) (string, error) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", ErrUnauthorized
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if token == "" {
		return "", ErrUnauthorized
	}
	return token, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
