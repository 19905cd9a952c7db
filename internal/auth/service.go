package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/storefront/internal/identity"
	"github.com/angelmondragon/storefront/internal/users"
	pkgAuth "github.com/angelmondragon/storefront/pkg/auth"
	"github.com/angelmondragon/storefront/pkg/auth/session"
	"github.com/angelmondragon/storefront/pkg/config"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/google/uuid"
)

// Service orchestrates sign-in flows against the identity provider and the user registry.
type Service interface {
	SignIn(ctx context.Context, req SignInRequest, cartSessionID string) (*SessionResponse, error)
	SignUp(ctx context.Context, req SignUpRequest, cartSessionID string) (*SessionResponse, error)
	OAuthStart(ctx context.Context, provider string) (*OAuthStartResponse, error)
	OAuthCallback(ctx context.Context, code, cartSessionID string) (*SessionResponse, error)
	SendMagicLink(ctx context.Context, req MagicLinkRequest) error
	VerifyMagicLink(ctx context.Context, token, cartSessionID string) (*SessionResponse, error)
	ResetPassword(ctx context.Context, req PasswordResetRequest) error
	Refresh(ctx context.Context, accessID, refreshToken string) (*SessionResponse, error)
	SignOut(ctx context.Context, accessID string) error
}

type sessionManager interface {
	Generate(ctx context.Context, accessID string, rec session.Record) (string, error)
	Rotate(ctx context.Context, oldAccessID, provided string) (string, session.Record, error)
	Lookup(ctx context.Context, accessID string) (*session.Record, error)
	Revoke(ctx context.Context, accessID string) error
}

type registry interface {
	Register(ctx context.Context, dto users.CreateUserDTO) (*users.UserDTO, error)
	Resolve(ctx context.Context, identityID, email string) (*users.UserDTO, error)
}

type cartCache interface {
	Forget(ctx context.Context, sessionID string) error
}

// ServiceParams bundles the dependencies required to build an auth service.
type ServiceParams struct {
	Identity       identity.Provider
	Users          registry
	SessionManager sessionManager
	JWTConfig      config.JWTConfig
	RedirectURL    string
	MagicLinks     bool
	Carts          cartCache
	Logger         *logger.Logger
}

type service struct {
	identity    identity.Provider
	users       registry
	session     sessionManager
	jwtCfg      config.JWTConfig
	redirectURL string
	magicLinks  bool
	carts       cartCache
	logg        *logger.Logger
	now         func() time.Time
}

// NewService constructs the auth service with the provided dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Identity == nil {
		return nil, fmt.Errorf("identity provider is required")
	}
	if params.Users == nil {
		return nil, fmt.Errorf("user registry is required")
	}
	if params.SessionManager == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &service{
		identity:    params.Identity,
		users:       params.Users,
		session:     params.SessionManager,
		jwtCfg:      params.JWTConfig,
		redirectURL: params.RedirectURL,
		magicLinks:  params.MagicLinks,
		carts:       params.Carts,
		logg:        params.Logger,
		now:         time.Now,
	}, nil
}

func (s *service) SignIn(ctx context.Context, req SignInRequest, cartSessionID string) (*SessionResponse, error) {
	ident, err := s.identity.SignInWithPassword(ctx, normalizeEmail(req.Email), req.Password)
	if err != nil {
		return nil, err
	}
	return s.establish(ctx, ident, cartSessionID)
}

// SignUp creates the identity provider account and then the registry record. When the
// provider requires email confirmation no session is issued yet.
func (s *service) SignUp(ctx context.Context, req SignUpRequest, cartSessionID string) (*SessionResponse, error) {
	email := normalizeEmail(req.Email)
	meta := identity.SignUpMetadata{Name: strings.TrimSpace(req.Name)}
	if req.Phone != nil {
		meta.Phone = strings.TrimSpace(*req.Phone)
	}

	ident, err := s.identity.SignUp(ctx, email, req.Password, meta)
	if err != nil {
		return nil, err
	}

	user, err := s.users.Register(ctx, users.CreateUserDTO{
		IdentityID: ident.ID,
		Email:      email,
		Name:       req.Name,
		Phone:      req.Phone,
	})
	if err != nil {
		s.logg.Error(s.logg.WithField(ctx, "identity_id", ident.ID), "auth.sign_up.registry_failed", err)
		return nil, err
	}

	if ident.AccessToken == "" {
		return &SessionResponse{ConfirmationRequired: true, User: user}, nil
	}
	return s.issue(ctx, user, ident.AccessToken, cartSessionID)
}

func (s *service) OAuthStart(ctx context.Context, provider string) (*OAuthStartResponse, error) {
	url, err := s.identity.AuthorizeURL(provider, s.redirectURL)
	if err != nil {
		return nil, err
	}
	return &OAuthStartResponse{URL: url}, nil
}

func (s *service) OAuthCallback(ctx context.Context, code, cartSessionID string) (*SessionResponse, error) {
	if strings.TrimSpace(code) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "authorization code is required")
	}
	ident, err := s.identity.ExchangeCode(ctx, code)
	if err != nil {
		return nil, err
	}
	return s.establish(ctx, ident, cartSessionID)
}

func (s *service) SendMagicLink(ctx context.Context, req MagicLinkRequest) error {
	if !s.magicLinks {
		return pkgerrors.New(pkgerrors.CodeForbidden, "magic link sign-in is disabled")
	}
	return s.identity.SendMagicLink(ctx, normalizeEmail(req.Email), s.redirectURL)
}

func (s *service) VerifyMagicLink(ctx context.Context, token, cartSessionID string) (*SessionResponse, error) {
	if !s.magicLinks {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "magic link sign-in is disabled")
	}
	ident, err := s.identity.VerifyMagicLink(ctx, strings.TrimSpace(token))
	if err != nil {
		return nil, err
	}
	return s.establish(ctx, ident, cartSessionID)
}

func (s *service) ResetPassword(ctx context.Context, req PasswordResetRequest) error {
	return s.identity.ResetPassword(ctx, normalizeEmail(req.Email), s.redirectURL)
}

// Refresh rotates the refresh token and re-mints the access token for the same cart session.
func (s *service) Refresh(ctx context.Context, accessID, refreshToken string) (*SessionResponse, error) {
	newAccessID, rec, err := s.session.Rotate(ctx, accessID, refreshToken)
	if err != nil {
		if errors.Is(err, session.ErrInvalidRefreshToken) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid refresh token")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "rotate session")
	}
	userID, err := uuid.Parse(rec.UserID)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid refresh token")
	}
	accessToken, err := pkgAuth.MintAccessToken(s.jwtCfg, s.now(), pkgAuth.AccessTokenPayload{
		UserID:        userID,
		CartSessionID: rec.CartSessionID,
		JTI:           newAccessID,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint jwt")
	}
	return &SessionResponse{
		AccessToken:   accessToken,
		RefreshToken:  rec.RefreshToken,
		CartSessionID: rec.CartSessionID,
	}, nil
}

// SignOut ends the identity provider session and revokes the storefront session.
// Identity provider failures are logged; the local session is revoked regardless.
func (s *service) SignOut(ctx context.Context, accessID string) error {
	if strings.TrimSpace(accessID) == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "missing session id")
	}
	rec, err := s.session.Lookup(ctx, accessID)
	switch {
	case err == nil:
		if err := s.identity.SignOut(ctx, rec.IdentityToken); err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "auth.sign_out.identity_failed")
		}
		if s.carts != nil && rec.CartSessionID != "" {
			if err := s.carts.Forget(ctx, rec.CartSessionID); err != nil {
				s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "auth.sign_out.cart_cache_failed")
			}
		}
	case errors.Is(err, session.ErrInvalidRefreshToken):
	default:
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load session")
	}

	if err := s.session.Revoke(ctx, accessID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "revoke session")
	}
	return nil
}

func (s *service) establish(ctx context.Context, ident *identity.Identity, cartSessionID string) (*SessionResponse, error) {
	user, err := s.users.Resolve(ctx, ident.ID, ident.Email)
	if err != nil {
		return nil, err
	}
	return s.issue(ctx, user, ident.AccessToken, cartSessionID)
}

// issue mints the storefront token pair. The guest cart session is carried over so the
// cart follows the shopper after sign-in.
func (s *service) issue(ctx context.Context, user *users.UserDTO, identityToken, cartSessionID string) (*SessionResponse, error) {
	cartSessionID = strings.TrimSpace(cartSessionID)
	if cartSessionID == "" {
		cartSessionID = uuid.NewString()
	}

	accessID := session.NewAccessID()
	refreshToken, err := s.session.Generate(ctx, accessID, session.Record{
		UserID:        user.ID.String(),
		IdentityToken: identityToken,
		CartSessionID: cartSessionID,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "store refresh token")
	}

	accessToken, err := pkgAuth.MintAccessToken(s.jwtCfg, s.now(), pkgAuth.AccessTokenPayload{
		UserID:        user.ID,
		CartSessionID: cartSessionID,
		JTI:           accessID,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint jwt")
	}

	s.logg.Info(s.logg.WithUserID(ctx, user.ID.String()), "auth.session.issued")
	return &SessionResponse{
		AccessToken:   accessToken,
		RefreshToken:  refreshToken,
		CartSessionID: cartSessionID,
		User:          user,
	}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
