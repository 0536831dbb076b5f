// Package auth authenticates API callers and decides which role a request
// needs. Callers present HMAC-signed gateway headers or an OIDC bearer
// token; AUTH_MODE=disabled assigns one fixed identity for local runs.
package auth

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/animus-labs/cascade/internal/platform/env"
)

type Mode string

const (
	ModeGateway  Mode = "gateway"
	ModeOIDC     Mode = "oidc"
	ModeDisabled Mode = "disabled"
)

var ErrUnauthenticated = errors.New("unauthenticated")

type Config struct {
	Mode Mode

	// Gateway mode.
	InternalAuthSecret string
	MaxSkew            time.Duration

	// OIDC mode. RolesClaim may hold a list or a comma separated string.
	OIDCIssuerURL string
	OIDCClientID  string
	RolesClaim    string
	EmailClaim    string

	// Disabled mode.
	DisabledSubject string
	DisabledRoles   []string
}

func ConfigFromEnv() (Config, error) {
	maxSkew, err := env.Duration("CASCADE_INTERNAL_AUTH_MAX_SKEW", 5*time.Minute)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		Mode:               Mode(strings.ToLower(strings.TrimSpace(env.String("AUTH_MODE", string(ModeGateway))))),
		InternalAuthSecret: env.String("CASCADE_INTERNAL_AUTH_SECRET", ""),
		MaxSkew:            maxSkew,
		OIDCIssuerURL:      strings.TrimSpace(env.String("OIDC_ISSUER_URL", "")),
		OIDCClientID:       strings.TrimSpace(env.String("OIDC_CLIENT_ID", "")),
		RolesClaim:         env.String("AUTH_ROLES_CLAIM", "roles"),
		EmailClaim:         env.String("AUTH_EMAIL_CLAIM", "email"),
		DisabledSubject:    strings.TrimSpace(env.String("AUTH_DISABLED_SUBJECT", "local")),
		DisabledRoles:      normalizeRoles(env.CSV("AUTH_DISABLED_ROLES", []string{RoleViewer})),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var required []string
	switch c.Mode {
	case ModeGateway:
		if strings.TrimSpace(c.InternalAuthSecret) == "" {
			required = append(required, "CASCADE_INTERNAL_AUTH_SECRET")
		}
		if c.MaxSkew < 0 {
			return errors.New("CASCADE_INTERNAL_AUTH_MAX_SKEW must be >= 0")
		}
	case ModeOIDC:
		if c.OIDCIssuerURL == "" {
			required = append(required, "OIDC_ISSUER_URL")
		}
		if c.OIDCClientID == "" {
			required = append(required, "OIDC_CLIENT_ID")
		}
		if strings.TrimSpace(c.RolesClaim) == "" {
			required = append(required, "AUTH_ROLES_CLAIM")
		}
	case ModeDisabled:
		if c.DisabledSubject == "" {
			required = append(required, "AUTH_DISABLED_SUBJECT")
		}
	default:
		return fmt.Errorf("AUTH_MODE must be gateway, oidc or disabled, got %q", c.Mode)
	}
	if len(required) > 0 {
		return fmt.Errorf("AUTH_MODE=%s requires %s", c.Mode, strings.Join(required, ", "))
	}
	return nil
}

// NewAuthenticator builds the authenticator for cfg.Mode. OIDC mode
// contacts the issuer for discovery.
func NewAuthenticator(ctx context.Context, cfg Config) (Authenticator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Mode {
	case ModeGateway:
		return &GatewayAuthenticator{Secret: cfg.InternalAuthSecret, MaxSkew: cfg.MaxSkew}, nil
	case ModeOIDC:
		return NewOIDCAuthenticator(ctx, cfg)
	default:
		return NewStaticAuthenticator(cfg), nil
	}
}

// normalizeRoles lowercases, trims and dedupes role names, keeping order.
func normalizeRoles(roles []string) []string {
	out := make([]string, 0, len(roles))
	for _, role := range roles {
		role = strings.ToLower(strings.TrimSpace(role))
		if role == "" || slices.Contains(out, role) {
			continue
		}
		out = append(out, role)
	}
	return out
}
