package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/odyssey-erp/nomina/internal/rbac"
	"github.com/odyssey-erp/nomina/internal/shared"
)

// Provider validates an identity against an external authority.
type Provider interface {
	Authenticate(ctx context.Context, identity, secret string) (Grant, error)
}

// PolicyConfig tunes the session policy.
type PolicyConfig struct {
	IdleTimeout time.Duration
	Clock       shared.Clock
	Logger      *slog.Logger
}

// Policy enforces credential structure, expiry and inactivity rules. It keeps no
// per-session state of its own; everything lives in the CredentialStore.
type Policy struct {
	provider    Provider
	store       CredentialStore
	engine      *rbac.Engine
	idleTimeout time.Duration
	clock       shared.Clock
	logger      *slog.Logger
}

// NewPolicy constructs a Policy.
func NewPolicy(provider Provider, store CredentialStore, engine *rbac.Engine, cfg PolicyConfig) *Policy {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if engine == nil {
		engine = rbac.NewEngine(nil)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Policy{
		provider:    provider,
		store:       store,
		engine:      engine,
		idleTimeout: cfg.IdleTimeout,
		clock:       cfg.Clock,
		logger:      logger,
	}
}

// Authenticate asks the provider to verify identity and opens a session.
func (p *Policy) Authenticate(ctx context.Context, identity, secret string) (*Session, error) {
	if p.provider == nil {
		return nil, fmt.Errorf("auth: authenticate: %w", shared.ErrCollaboratorUnavailable)
	}
	grant, err := p.provider.Authenticate(ctx, identity, secret)
	if err != nil {
		return nil, err
	}
	claims, err := p.Validate(grant.Credential)
	if err != nil {
		return nil, err
	}
	now := p.clock.Now()
	issuedAt := now
	if claims.IssuedAt != nil {
		issuedAt = claims.IssuedAt.Time.UTC()
	}
	principal := grant.Principal
	sess := &Session{
		ID:             sessionKey(grant.Credential, claims),
		Credential:     grant.Credential,
		Principal:      principal,
		IssuedAt:       issuedAt,
		ExpiresAt:      claims.ExpiresAt.Time.UTC(),
		LastActivityAt: now,
	}
	if err := p.store.Save(ctx, sess); err != nil {
		return nil, err
	}
	p.logger.Info("session opened", slog.String("principal", principal.ID), slog.String("role", string(principal.Role)))
	return sess, nil
}

// Validate checks credential structure and expiry.
func (p *Policy) Validate(credential string) (*Claims, error) {
	claims, err := ParseCredential(credential)
	if err != nil {
		return nil, err
	}
	if !p.clock.Now().Before(claims.ExpiresAt.Time) {
		return nil, fmt.Errorf("auth: validate: %w", shared.ErrExpired)
	}
	return claims, nil
}

// Touch records activity for the session behind credential. A gap above the idle
// timeout invalidates the session and returns ErrIdleTimedOut.
func (p *Policy) Touch(ctx context.Context, credential string) (*Session, error) {
	sess, err := p.current(ctx, credential)
	if err != nil {
		return nil, err
	}
	return p.touch(ctx, sess)
}

// Logout clears the session unconditionally.
func (p *Policy) Logout(ctx context.Context, credential string) error {
	if credential == "" {
		return nil
	}
	claims, _ := ParseCredential(credential)
	return p.store.Clear(ctx, sessionKey(credential, claims))
}

// State reports the lifecycle state of the session behind credential without
// recording activity.
func (p *Policy) State(ctx context.Context, credential string) State {
	sess, err := p.current(ctx, credential)
	switch {
	case errors.Is(err, shared.ErrExpired):
		return StateExpired
	case err != nil:
		return StateUnauthenticated
	case p.idle(sess):
		return StateIdleTimedOut
	default:
		return StateAuthenticated
	}
}

// CanEnter decides whether the holder of credential may open a route requiring
// required (empty for any authenticated principal). Authentication failures redirect
// to the login page and drop the session; a valid session with an insufficient role
// is sent to the dashboard.
func (p *Policy) CanEnter(ctx context.Context, credential string, required rbac.Role) Decision {
	sess, err := p.current(ctx, credential)
	if err == nil && p.idle(sess) {
		err = shared.ErrIdleTimedOut
	}
	if err != nil {
		if !errors.Is(err, shared.ErrCollaboratorUnavailable) {
			if clearErr := p.Logout(ctx, credential); clearErr != nil {
				p.logger.Warn("clear session", slog.Any("error", clearErr))
			}
		}
		return Decision{Redirect: LoginRoute, Reason: err}
	}
	principal := sess.Principal
	if !p.engine.MeetsRouteRequirement(&principal, required) {
		return Decision{Redirect: DashboardRoute, Reason: shared.ErrInsufficientPermission, Principal: &principal}
	}
	if _, err := p.touch(ctx, sess); err != nil {
		return Decision{Redirect: LoginRoute, Reason: err}
	}
	return Decision{Allow: true, Principal: &principal}
}

func (p *Policy) current(ctx context.Context, credential string) (*Session, error) {
	if credential == "" {
		return nil, shared.ErrUnauthenticated
	}
	claims, err := p.Validate(credential)
	if err != nil {
		return nil, err
	}
	sess, err := p.store.Load(ctx, sessionKey(credential, claims))
	if err != nil {
		return nil, err
	}
	if sess == nil || sess.Credential != credential {
		return nil, shared.ErrUnauthenticated
	}
	return sess, nil
}

func (p *Policy) idle(sess *Session) bool {
	return p.clock.Now().Sub(sess.LastActivityAt) > p.idleTimeout
}

func (p *Policy) touch(ctx context.Context, sess *Session) (*Session, error) {
	if p.idle(sess) {
		if err := p.store.Clear(ctx, sess.ID); err != nil {
			p.logger.Warn("clear idle session", slog.Any("error", err))
		}
		p.logger.Info("session idle timeout", slog.String("principal", sess.Principal.ID))
		return nil, fmt.Errorf("auth: touch: %w", shared.ErrIdleTimedOut)
	}
	last, err := p.store.Touch(ctx, sess.ID, p.clock.Now())
	if err != nil {
		return nil, err
	}
	sess.LastActivityAt = last
	return sess, nil
}

// sessionKey prefers the credential id claim and falls back to a digest of the
// credential for tokens issued without one.
func sessionKey(credential string, claims *Claims) string {
	if claims != nil && claims.ID != "" {
		return claims.ID
	}
	sum := sha256.Sum256([]byte(credential))
	return hex.EncodeToString(sum[:])
}
