package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/RobinCoderZhao/portal-autopost/internal/user"
)

type contextKey string

const claimsContextKey = contextKey("claims")

// Claims represents the JWT payload.
type Claims struct {
	ProfileID int64  `json:"profile_id"`
	Role      string `json:"role"`
	jwt.RegisteredClaims
}

// generateToken creates a new JWT for a profile.
func (s *Server) generateToken(p *user.Profile) (string, error) {
	now := time.Now()
	claims := &Claims{
		ProfileID: p.ID,
		Role:      p.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(p.ID, 10),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.opts.TokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

func (s *Server) parseToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	return claims, nil
}

// requireAuth lets through requests carrying a valid token, from the
// Authorization header (Bearer) or the "token" cookie.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return s.requireRoles(next)
}

func (s *Server) requireEditor(next http.Handler) http.Handler {
	return s.requireRoles(next, user.RoleAdmin, user.RoleEditor)
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return s.requireRoles(next, user.RoleAdmin)
}

// requireRoles authenticates the request and, when roles are given, checks
// the token's role against them.
func (s *Server) requireRoles(next http.Handler, roles ...string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var tokenString string
		if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
			tokenString = strings.TrimPrefix(h, "Bearer ")
		}
		if tokenString == "" {
			if cookie, err := r.Cookie("token"); err == nil {
				tokenString = cookie.Value
			}
		}
		if tokenString == "" {
			respondError(w, http.StatusUnauthorized, "missing authentication token")
			return
		}

		claims, err := s.parseToken(tokenString)
		if err != nil {
			respondError(w, http.StatusUnauthorized, "invalid authentication token")
			return
		}
		if len(roles) > 0 && !hasRole(claims.Role, roles) {
			respondError(w, http.StatusForbidden, "insufficient role")
			return
		}

		ctx := context.WithValue(r.Context(), claimsContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func hasRole(role string, roles []string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// getClaims extracts the token claims from the request context.
func getClaims(r *http.Request) *Claims {
	if c, ok := r.Context().Value(claimsContextKey).(*Claims); ok {
		return c
	}
	return &Claims{}
}
