// Package conjur implements the two Conjur REST calls needed to resolve
// secrets: API-key authentication and variable retrieval.
package conjur

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupportedAuthScheme is returned for any authentication scheme other
// than the API-key exchange.
var ErrUnsupportedAuthScheme = errors.New("unsupported authentication scheme")

// Endpoint identifies a Conjur appliance and account.
type Endpoint struct {
	Hostname string // normalized: no scheme, no trailing slash
	Account  string

	// AllowInsecureTLS disables certificate verification on every request
	// made to this endpoint, and nowhere else.
	AllowInsecureTLS bool
}

// NewEndpoint returns an Endpoint with a normalized hostname.
func NewEndpoint(hostname, account string) Endpoint {
	return Endpoint{Hostname: NormalizeHostname(hostname), Account: account}
}

// NormalizeHostname strips trailing slashes and any leading http(s)://
// prefix. It is idempotent.
func NormalizeHostname(hostname string) string {
	for {
		next := strings.TrimPrefix(hostname, "https://")
		next = strings.TrimPrefix(next, "http://")
		next = strings.TrimRight(next, "/")
		// Removing a scheme can expose new trailing slashes or a new scheme.
		if next == hostname {
			return next
		}
		hostname = next
	}
}

// AuthScheme is the closed set of authentication schemes the task knows.
type AuthScheme string

const (
	SchemeAPIKey          AuthScheme = "apiKey"
	SchemeManagedIdentity AuthScheme = "azure-managed-identity"
)

// ParseAuthScheme maps the authntype input to a scheme, ignoring case.
// Empty selects the API-key scheme.
func ParseAuthScheme(s string) (AuthScheme, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "apikey", "api-key", "api_key":
		return SchemeAPIKey, nil
	case string(SchemeManagedIdentity), "azuremanagedidentity":
		return SchemeManagedIdentity, nil
	default:
		return "", fmt.Errorf("%w: '%s'. Valid types are '%s'", ErrUnsupportedAuthScheme, s, SchemeAPIKey)
	}
}

// Credential is the identity exchanged for an access token.
type Credential struct {
	Identity string
	Secret   string
	Scheme   AuthScheme
}

const redactedMarker = "[REDACTED]"

// AccessToken is the opaque token returned by authentication. It formats as
// a redaction marker.
type AccessToken string

func (t AccessToken) Reveal() string   { return string(t) }
func (t AccessToken) String() string   { return redactedMarker }
func (t AccessToken) GoString() string { return redactedMarker }

// SecretValue is a resolved secret. It formats as a redaction marker.
type SecretValue string

func (v SecretValue) Reveal() string   { return string(v) }
func (v SecretValue) String() string   { return redactedMarker }
func (v SecretValue) GoString() string { return redactedMarker }
