package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mind-engage/mindengage-exams/internal/rbac"
)

type AuthService struct {
	hmac []byte
	ttl  time.Duration
	now  func() time.Time
}

func NewAuthService(secret string, ttl time.Duration) *AuthService {
	if ttl <= 0 {
		ttl = 8 * time.Hour
	}
	return &AuthService{hmac: []byte(secret), ttl: ttl, now: time.Now}
}

type Claims struct {
	Sub  string `json:"sub"`
	Role string `json:"role"` // "Teacher" or "Student"
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

const issuer = "mindengage-exams"

func (a *AuthService) IssueJWT(sub, role, name string) (string, time.Time, error) {
	now := a.now()
	exp := now.Add(a.ttl)
	claims := &Claims{
		Sub:  sub,
		Role: role,
		Name: name,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   sub,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := t.SignedString(a.hmac)
	return s, exp, err
}

func (a *AuthService) Parse(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return a.hmac, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return nil, err
	}
	c, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	if c.Sub == "" {
		return nil, fmt.Errorf("token without subject")
	}
	return c, nil
}

// JWTMiddleware requires a valid bearer token and puts its subject and role in
// the request context.
func JWTMiddleware(a *AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := r.Header.Get("Authorization")
			if !strings.HasPrefix(h, "Bearer ") {
				writeError(w, http.StatusUnauthorized, "missing bearer")
				return
			}
			c, err := a.Parse(strings.TrimPrefix(h, "Bearer "))
			if err != nil {
				writeError(w, http.StatusUnauthorized, "bad token")
				return
			}
			ctx := WithSubject(r.Context(), c.Sub)
			ctx = rbac.WithRole(ctx, c.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
