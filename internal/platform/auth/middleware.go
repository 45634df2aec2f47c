package auth

import (
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/partner-storefront/api/internal/platform/httpx"
	"github.com/partner-storefront/api/internal/platform/requestctx"
)

const (
	defaultCustomerClaim = "customer_id"
	defaultEmailClaim    = "email"
)

// Verifier validates bearer tokens issued for storefront customers and
// attaches the resolved principal to the request context.
type Verifier struct {
	cache    *JWKSCache
	issuer   string
	audience string

	customerClaim string
	emailClaim    string
	now           func() time.Time
}

// VerifierOption customises Verifier behaviour.
type VerifierOption func(*Verifier)

// WithCustomerClaim overrides the claim carrying the partner customer identifier.
func WithCustomerClaim(claim string) VerifierOption {
	return func(v *Verifier) {
		claim = strings.TrimSpace(claim)
		if claim != "" {
			v.customerClaim = claim
		}
	}
}

// WithEmailClaim overrides the claim used to populate the principal email.
func WithEmailClaim(claim string) VerifierOption {
	return func(v *Verifier) {
		claim = strings.TrimSpace(claim)
		if claim != "" {
			v.emailClaim = claim
		}
	}
}

// WithVerifierClock injects a custom clock (primarily for testing).
func WithVerifierClock(now func() time.Time) VerifierOption {
	return func(v *Verifier) {
		if now != nil {
			v.now = now
		}
	}
}

// NewVerifier constructs a Verifier backed by the given JWKS cache.
func NewVerifier(cache *JWKSCache, issuer, audience string, opts ...VerifierOption) *Verifier {
	verifier := &Verifier{
		cache:         cache,
		issuer:        strings.TrimSpace(issuer),
		audience:      strings.TrimSpace(audience),
		customerClaim: defaultCustomerClaim,
		emailClaim:    defaultEmailClaim,
		now:           time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(verifier)
		}
	}
	return verifier
}

// RequireCustomer enforces a valid bearer token carrying a customer identity.
func (v *Verifier) RequireCustomer() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "bearer token missing", http.StatusUnauthorized))
				return
			}

			if v == nil || v.cache == nil {
				httpx.WriteError(ctx, w, httpx.NewError("verification_unavailable", "token verification unavailable", http.StatusServiceUnavailable))
				return
			}

			parserOpts := []jwt.ParserOption{
				jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
				jwt.WithTimeFunc(v.now),
			}
			if v.issuer != "" {
				parserOpts = append(parserOpts, jwt.WithIssuer(v.issuer))
			}
			if v.audience != "" {
				parserOpts = append(parserOpts, jwt.WithAudience(v.audience))
			}

			claims := jwt.MapClaims{}
			if _, err := jwt.NewParser(parserOpts...).ParseWithClaims(token, claims, v.cache.Keyfunc(ctx)); err != nil {
				status := http.StatusUnauthorized
				code := "invalid_token"
				if strings.Contains(err.Error(), ErrJWKSFetchFailed.Error()) {
					status = http.StatusServiceUnavailable
					code = "verification_unavailable"
				}
				httpx.WriteError(ctx, w, httpx.NewError(code, "token verification failed", status))
				return
			}

			customerID, _ := claims[v.customerClaim].(string)
			email, _ := claims[v.emailClaim].(string)
			if strings.TrimSpace(customerID) == "" {
				httpx.WriteError(ctx, w, httpx.NewError("invalid_token", "token missing customer identity", http.StatusForbidden))
				return
			}

			principal := requestctx.Principal{
				CustomerID: strings.TrimSpace(customerID),
				Email:      strings.TrimSpace(email),
			}
			next.ServeHTTP(w, r.WithContext(requestctx.WithPrincipal(ctx, principal)))
		})
	}
}

func bearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}
	return token, true
}
