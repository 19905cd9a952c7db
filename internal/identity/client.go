package identity

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/remote"
)

// Identity is an authenticated identity provider account.
type Identity struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	AccessToken string `json:"-"`
}

// SignUpMetadata is stored with the identity provider account.
type SignUpMetadata struct {
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
}

// Provider delegates credential handling to the identity provider.
type Provider interface {
	SignInWithPassword(ctx context.Context, email, password string) (*Identity, error)
	SignUp(ctx context.Context, email, password string, meta SignUpMetadata) (*Identity, error)
	AuthorizeURL(provider, redirectTo string) (string, error)
	ExchangeCode(ctx context.Context, code string) (*Identity, error)
	SendMagicLink(ctx context.Context, email, redirectTo string) error
	VerifyMagicLink(ctx context.Context, token string) (*Identity, error)
	ResetPassword(ctx context.Context, email, redirectTo string) error
	SignOut(ctx context.Context, accessToken string) error
}

// SupportedProviders lists the OAuth providers the storefront offers.
var SupportedProviders = map[string]struct{}{
	"google": {},
	"github": {},
	"apple":  {},
}

type requester interface {
	Do(ctx context.Context, req remote.Request, out any) error
	URL(path string, query url.Values) string
}

type client struct {
	http requester
}

// NewClient wraps a remote client pointed at the identity provider.
func NewClient(rc *remote.Client) (Provider, error) {
	if rc == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "identity remote client required")
	}
	return &client{http: rc}, nil
}

type sessionResponse struct {
	AccessToken string `json:"access_token"`
	User        struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

func (r sessionResponse) identity() (*Identity, error) {
	if r.User.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "identity provider returned no user")
	}
	return &Identity{ID: r.User.ID, Email: strings.ToLower(r.User.Email), AccessToken: r.AccessToken}, nil
}

func (c *client) SignInWithPassword(ctx context.Context, email, password string) (*Identity, error) {
	var out sessionResponse
	err := c.http.Do(ctx, remote.Request{
		Method:    http.MethodPost,
		Path:      "/token",
		Query:     url.Values{"grant_type": {"password"}},
		Body:      map[string]string{"email": email, "password": password},
		Operation: "sign_in_password",
	}, &out)
	if err != nil {
		return nil, credentialError(err, "invalid email or password")
	}
	return out.identity()
}

func (c *client) SignUp(ctx context.Context, email, password string, meta SignUpMetadata) (*Identity, error) {
	var out sessionResponse
	err := c.http.Do(ctx, remote.Request{
		Method: http.MethodPost,
		Path:   "/signup",
		Body: map[string]any{
			"email":    email,
			"password": password,
			"data":     meta,
		},
		Operation: "sign_up",
	}, &out)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "email already registered")
		}
		return nil, err
	}
	return out.identity()
}

func (c *client) AuthorizeURL(provider, redirectTo string) (string, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if _, ok := SupportedProviders[provider]; !ok {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "unsupported oauth provider")
	}
	query := url.Values{"provider": {provider}}
	if redirectTo != "" {
		query.Set("redirect_to", redirectTo)
	}
	return c.http.URL("/authorize", query), nil
}

func (c *client) ExchangeCode(ctx context.Context, code string) (*Identity, error) {
	var out sessionResponse
	err := c.http.Do(ctx, remote.Request{
		Method:    http.MethodPost,
		Path:      "/token",
		Query:     url.Values{"grant_type": {"authorization_code"}},
		Body:      map[string]string{"auth_code": code},
		Operation: "exchange_code",
	}, &out)
	if err != nil {
		return nil, credentialError(err, "authorization code rejected")
	}
	return out.identity()
}

func (c *client) SendMagicLink(ctx context.Context, email, redirectTo string) error {
	body := map[string]any{"email": email, "create_user": true}
	if redirectTo != "" {
		body["redirect_to"] = redirectTo
	}
	return c.http.Do(ctx, remote.Request{
		Method:    http.MethodPost,
		Path:      "/otp",
		Body:      body,
		Operation: "send_magic_link",
	}, nil)
}

func (c *client) VerifyMagicLink(ctx context.Context, token string) (*Identity, error) {
	var out sessionResponse
	err := c.http.Do(ctx, remote.Request{
		Method:    http.MethodPost,
		Path:      "/verify",
		Body:      map[string]string{"type": "magiclink", "token_hash": token},
		Operation: "verify_magic_link",
	}, &out)
	if err != nil {
		return nil, credentialError(err, "link is invalid or has expired")
	}
	return out.identity()
}

func (c *client) ResetPassword(ctx context.Context, email, redirectTo string) error {
	body := map[string]string{"email": email}
	if redirectTo != "" {
		body["redirect_to"] = redirectTo
	}
	return c.http.Do(ctx, remote.Request{
		Method:    http.MethodPost,
		Path:      "/recover",
		Body:      body,
		Operation: "reset_password",
	}, nil)
}

func (c *client) SignOut(ctx context.Context, accessToken string) error {
	if accessToken == "" {
		return nil
	}
	return c.http.Do(ctx, remote.Request{
		Method:    http.MethodPost,
		Path:      "/logout",
		Header:    http.Header{"Authorization": {"Bearer " + accessToken}},
		Operation: "sign_out",
	}, nil)
}

// credentialError maps rejected credentials to an unauthorized error with a user-facing message.
func credentialError(err error, message string) error {
	switch pkgerrors.CodeOf(err) {
	case pkgerrors.CodeValidation, pkgerrors.CodeUnauthorized, pkgerrors.CodeForbidden:
		return pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, message)
	default:
		return err
	}
}
