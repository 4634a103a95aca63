package conjur

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/arwahdevops/conjursecrets/internal/transport"
)

// Requester sends a single request and returns the response body.
// *transport.Transport satisfies it.
type Requester interface {
	Do(ctx context.Context, req transport.Request) ([]byte, error)
}

// AuthClient exchanges a Credential for an AccessToken.
type AuthClient struct {
	requester Requester
	logger    *zap.Logger
}

func NewAuthClient(requester Requester, baseLogger *zap.Logger) *AuthClient {
	return &AuthClient{requester: requester, logger: baseLogger.Named("authn")}
}

// Authenticate performs the API-key exchange. Other schemes fail with
// ErrUnsupportedAuthScheme before any request is made.
func (c *AuthClient) Authenticate(ctx context.Context, endpoint Endpoint, cred Credential) (AccessToken, error) {
	switch cred.Scheme {
	case SchemeAPIKey:
	case SchemeManagedIdentity:
		return "", fmt.Errorf("%w: '%s' is not implemented", ErrUnsupportedAuthScheme, cred.Scheme)
	default:
		return "", fmt.Errorf("%w: '%s'. Valid types are '%s'", ErrUnsupportedAuthScheme, cred.Scheme, SchemeAPIKey)
	}

	path := fmt.Sprintf("/authn/%s/%s/authenticate", endpoint.Account, url.PathEscape(cred.Identity))
	c.logger.Info("Authenticating",
		zap.String("host", endpoint.Hostname),
		zap.String("account", endpoint.Account),
		zap.String("identity", cred.Identity),
	)

	body, err := c.requester.Do(ctx, transport.Request{
		Hostname:         endpoint.Hostname,
		Path:             path,
		Method:           http.MethodPost,
		Body:             cred.Secret,
		AllowInsecureTLS: endpoint.AllowInsecureTLS,
	})
	if err != nil {
		return "", fmt.Errorf("authenticating '%s' against account '%s': %w", cred.Identity, endpoint.Account, err)
	}
	return AccessToken(body), nil
}

// SecretClient fetches variable values with an AccessToken.
type SecretClient struct {
	requester Requester
	logger    *zap.Logger
}

func NewSecretClient(requester Requester, baseLogger *zap.Logger) *SecretClient {
	return &SecretClient{requester: requester, logger: baseLogger.Named("secrets")}
}

// FetchSecret retrieves the value of the variable at secretPath.
func (c *SecretClient) FetchSecret(ctx context.Context, endpoint Endpoint, token AccessToken, secretPath string) (SecretValue, error) {
	path := fmt.Sprintf("/secrets/%s/variable/%s", endpoint.Account, escapeVariablePath(secretPath))
	c.logger.Debug("Fetching secret", zap.String("path", secretPath))

	body, err := c.requester.Do(ctx, transport.Request{
		Hostname:         endpoint.Hostname,
		Path:             path,
		Method:           http.MethodGet,
		Authorization:    TokenHeader(token),
		AllowInsecureTLS: endpoint.AllowInsecureTLS,
	})
	if err != nil {
		return "", fmt.Errorf("fetching secret '%s': %w", secretPath, err)
	}
	return SecretValue(body), nil
}

// escapeVariablePath escapes the segments of a variable id that would not
// survive URL parsing (a stray '%'). Segments that already parse are sent
// as written, so pre-escaped ids keep working.
func escapeVariablePath(secretPath string) string {
	segments := strings.Split(secretPath, "/")
	for i, seg := range segments {
		if _, err := url.PathUnescape(seg); err != nil {
			segments[i] = url.PathEscape(seg)
		}
	}
	return strings.Join(segments, "/")
}

// TokenHeader builds the Authorization header value for token.
func TokenHeader(token AccessToken) string {
	return `Token token="` + base64.StdEncoding.EncodeToString([]byte(token.Reveal())) + `"`
}
