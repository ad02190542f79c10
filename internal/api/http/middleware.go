package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/render"
	"github.com/golang-jwt/jwt/v5"
	"github.com/shortlyhq/shortly/internal/models"
	"github.com/shortlyhq/shortly/pkg/response"
	"golang.org/x/time/rate"
)

// ErrInvalidToken is returned when a bearer token is missing required
// claims, expired or signed with the wrong key.
var ErrInvalidToken = errors.New("invalid or expired token")

// TokenVerifier turns a bearer token into a caller identity. The identity
// provider itself is external; only verification happens here.
type TokenVerifier interface {
	Verify(token string) (*models.Identity, error)
}

type identityClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// JWTVerifier verifies HMAC-signed tokens issued by the identity service.
type JWTVerifier struct {
	secret []byte
}

func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

func (v *JWTVerifier) Verify(token string) (*models.Identity, error) {
	const op = "api.http.JWTVerifier.Verify"

	claims := new(identityClaims)
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid || claims.Subject == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	return &models.Identity{
		UserID: claims.Subject,
		Email:  claims.Email,
	}, nil
}

type ctxKey int

const identityKey ctxKey = iota

// identityFrom extracts the authenticated identity threaded through the
// request context, nil for anonymous requests.
func identityFrom(ctx context.Context) *models.Identity {
	identity, _ := ctx.Value(identityKey).(*models.Identity)
	return identity
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if token, found := strings.CutPrefix(header, "Bearer "); found {
		return token
	}
	return ""
}

// optionalAuth attaches an identity to the context when a valid bearer
// token is present, and lets the request through anonymously otherwise.
func optionalAuth(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token := bearerToken(r); token != "" {
				if identity, err := verifier.Verify(token); err == nil {
					r = r.WithContext(context.WithValue(r.Context(), identityKey, identity))
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

// requireAuth rejects requests without a valid bearer token.
func requireAuth(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.ErrorResponse("Access token required"))
				return
			}

			identity, err := verifier.Verify(token)
			if err != nil {
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.ErrorResponse("Invalid or expired token"))
				return
			}

			r = r.WithContext(context.WithValue(r.Context(), identityKey, identity))
			next.ServeHTTP(w, r)
		})
	}
}

const visitorTTL = 3 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter applies a per-IP token bucket. Each endpoint tier keeps its
// own limiter so redirects and API calls have independent budgets. Idle
// entries are swept during lookups, at most once per TTL, so no background
// goroutine is needed.
type rateLimiter struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	rps       rate.Limit
	burst     int
	lastSweep time.Time
}

func newRateLimiter(rps float64, burst int) *rateLimiter {
	return &rateLimiter{
		visitors:  make(map[string]*visitor),
		rps:       rate.Limit(rps),
		burst:     burst,
		lastSweep: time.Now(),
	}
}

func (l *rateLimiter) limiterFor(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if time.Since(l.lastSweep) > visitorTTL {
		for ip, v := range l.visitors {
			if time.Since(v.lastSeen) > visitorTTL {
				delete(l.visitors, ip)
			}
		}
		l.lastSweep = time.Now()
	}

	if v, ok := l.visitors[ip]; ok {
		v.lastSeen = time.Now()
		return v.limiter
	}

	limiter := rate.NewLimiter(l.rps, l.burst)
	l.visitors[ip] = &visitor{
		limiter:  limiter,
		lastSeen: time.Now(),
	}

	return limiter
}

func (l *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.limiterFor(clientIP(r)).Allow() {
			render.Status(r, http.StatusTooManyRequests)
			render.JSON(w, r, response.ErrorResponse("Too many requests, please try again later"))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// clientIP relies on the RealIP middleware having rewritten RemoteAddr.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
