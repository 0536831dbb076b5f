package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
)

// OIDCAuthenticator verifies bearer ID tokens against the issuer's published
// keys. Tokens are obtained out of band; there is no login flow.
type OIDCAuthenticator struct {
	verifier   *oidc.IDTokenVerifier
	rolesClaim string
	emailClaim string
}

func NewOIDCAuthenticator(ctx context.Context, cfg Config) (*OIDCAuthenticator, error) {
	provider, err := oidc.NewProvider(ctx, cfg.OIDCIssuerURL)
	if err != nil {
		return nil, fmt.Errorf("oidc discovery %s: %w", cfg.OIDCIssuerURL, err)
	}
	return &OIDCAuthenticator{
		verifier:   provider.Verifier(&oidc.Config{ClientID: cfg.OIDCClientID}),
		rolesClaim: cfg.RolesClaim,
		emailClaim: cfg.EmailClaim,
	}, nil
}

func (a *OIDCAuthenticator) Authenticate(ctx context.Context, r *http.Request) (Identity, error) {
	raw := bearerToken(r)
	if raw == "" {
		return Identity{}, ErrUnauthenticated
	}
	token, err := a.verifier.Verify(ctx, raw)
	if err != nil {
		return Identity{}, err
	}
	var claims map[string]any
	if err := token.Claims(&claims); err != nil {
		return Identity{}, fmt.Errorf("decode claims: %w", err)
	}
	return claimsIdentity(token.Subject, claims, a.rolesClaim, a.emailClaim), nil
}

func claimsIdentity(subject string, claims map[string]any, rolesClaim, emailClaim string) Identity {
	email, _ := claims[emailClaim].(string)
	var roles []string
	switch v := claims[rolesClaim].(type) {
	case string:
		roles = strings.Split(v, ",")
	case []string:
		roles = v
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				roles = append(roles, s)
			}
		}
	}
	identity := Identity{Subject: subject, Email: strings.TrimSpace(email)}
	if roles != nil {
		identity.Roles = normalizeRoles(roles)
	}
	return identity
}

// bearerToken returns the token of an "Authorization: Bearer" header.
func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
