package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrUnauthorized covers missing, malformed, expired, or mis-signed tokens.
var ErrUnauthorized = errors.New("auth: unauthorized")

// Identity is the authenticated principal attached to a request or stream.
type Identity struct {
	ID    string
	Admin bool
}

type claims struct {
	jwt.RegisteredClaims
	Role string `json:"role,omitempty"`
}

// Verifier validates HMAC-signed bearer tokens. The subject claim carries
// the identity, the role claim grants admin standing.
type Verifier struct {
	secret []byte
	issuer string
}

// NewVerifier builds a Verifier for the shared secret. issuer is enforced
// when non-empty.
func NewVerifier(secret, issuer string) *Verifier {
	return &Verifier{secret: []byte(secret), issuer: issuer}
}

// Verify parses and validates a compact JWT and returns its identity.
func (v *Verifier) Verify(token string) (Identity, error) {
	var c claims
	parsed, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return Identity{}, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if v.issuer != "" && c.Issuer != v.issuer {
		return Identity{}, fmt.Errorf("%w: issuer %q", ErrUnauthorized, c.Issuer)
	}
	if c.Subject == "" {
		return Identity{}, fmt.Errorf("%w: missing subject", ErrUnauthorized)
	}
	return Identity{ID: c.Subject, Admin: c.Role == "admin"}, nil
}

// FromRequest extracts and verifies the bearer token from an HTTP request.
// Browser EventSource clients cannot set headers, so a token query parameter
// is accepted as a fallback.
func (v *Verifier) FromRequest(r *http.Request) (Identity, error) {
	token := ""
	if h := r.Header.Get("Authorization"); h != "" {
		const prefix = "Bearer "
		if !strings.HasPrefix(h, prefix) {
			return Identity{}, fmt.Errorf("%w: malformed authorization header", ErrUnauthorized)
		}
		token = strings.TrimSpace(h[len(prefix):])
	} else {
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		return Identity{}, fmt.Errorf("%w: no credentials", ErrUnauthorized)
	}
	return v.Verify(token)
}

// Sign mints a token for identity, used by the CLI and by tests.
func (v *Verifier) Sign(id Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.ID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if id.Admin {
		c.Role = "admin"
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(v.secret)
}
