package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	HeaderSubject   = "X-Cascade-Subject"
	HeaderEmail     = "X-Cascade-Email"
	HeaderRoles     = "X-Cascade-Roles"
	HeaderTimestamp = "X-Cascade-Auth-Ts"
	HeaderSignature = "X-Cascade-Auth-Sig"
)

var (
	errBadSignature = errors.New("gateway signature mismatch")
	errStale        = errors.New("gateway timestamp outside allowed skew")
)

// GatewayAuthenticator trusts identity headers from the fronting gateway
// when they carry a fresh HMAC-SHA256 over the request line and identity.
// A zero MaxSkew disables the freshness check.
type GatewayAuthenticator struct {
	Secret  string
	MaxSkew time.Duration
	now     func() time.Time
}

// assertion is the signed content of a gateway request.
type assertion struct {
	unix      int64
	method    string
	path      string
	requestID string
	subject   string
	email     string
	roles     string
}

func (a assertion) sign(secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d\n%s\n%s\n%s\n%s\n%s\n%s",
		a.unix, strings.ToUpper(a.method), a.path, a.requestID, a.subject, a.email, a.roles)
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func requestAssertion(r *http.Request) assertion {
	return assertion{
		method:    r.Method,
		path:      r.URL.Path,
		requestID: strings.TrimSpace(r.Header.Get("X-Request-Id")),
		subject:   strings.TrimSpace(r.Header.Get(HeaderSubject)),
		email:     strings.TrimSpace(r.Header.Get(HeaderEmail)),
		roles:     strings.TrimSpace(r.Header.Get(HeaderRoles)),
	}
}

func (a *GatewayAuthenticator) Authenticate(ctx context.Context, r *http.Request) (Identity, error) {
	claim := requestAssertion(r)
	ts := strings.TrimSpace(r.Header.Get(HeaderTimestamp))
	sig := strings.TrimSpace(r.Header.Get(HeaderSignature))
	if claim.subject == "" || ts == "" || sig == "" {
		return Identity{}, ErrUnauthenticated
	}
	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return Identity{}, fmt.Errorf("gateway timestamp %q: %w", ts, err)
	}
	claim.unix = unix

	if a.MaxSkew > 0 {
		now := time.Now
		if a.now != nil {
			now = a.now
		}
		skew := now().Sub(time.Unix(unix, 0))
		if skew > a.MaxSkew || skew < -a.MaxSkew {
			return Identity{}, errStale
		}
	}
	if !hmac.Equal([]byte(claim.sign(a.Secret)), []byte(sig)) {
		return Identity{}, errBadSignature
	}
	return Identity{
		Subject: claim.subject,
		Email:   claim.email,
		Roles:   normalizeRoles(strings.Split(claim.roles, ",")),
	}, nil
}

// SignRequest sets the identity and signature headers a GatewayAuthenticator
// with the same secret accepts. Set X-Request-Id before signing.
func SignRequest(r *http.Request, secret string, identity Identity, now time.Time) error {
	if strings.TrimSpace(secret) == "" {
		return errors.New("sign request: secret is required")
	}
	claim := assertion{
		unix:      now.Unix(),
		method:    r.Method,
		path:      r.URL.Path,
		requestID: strings.TrimSpace(r.Header.Get("X-Request-Id")),
		subject:   strings.TrimSpace(identity.Subject),
		email:     strings.TrimSpace(identity.Email),
		roles:     strings.Join(identity.Roles, ","),
	}
	if claim.subject == "" {
		return errors.New("sign request: subject is required")
	}
	r.Header.Set(HeaderSubject, claim.subject)
	if claim.email != "" {
		r.Header.Set(HeaderEmail, claim.email)
	}
	if claim.roles != "" {
		r.Header.Set(HeaderRoles, claim.roles)
	}
	r.Header.Set(HeaderTimestamp, strconv.FormatInt(claim.unix, 10))
	r.Header.Set(HeaderSignature, claim.sign(secret))
	return nil
}
