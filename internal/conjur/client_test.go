package conjur

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/arwahdevops/conjursecrets/internal/transport"
)

type recordingRequester struct {
	mu       sync.Mutex
	requests []transport.Request
	body     string
	err      error
}

func (r *recordingRequester) Do(_ context.Context, req transport.Request) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, req)
	return []byte(r.body), r.err
}

func TestNormalizeHostname(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"Plain", "conjur.example.com", "conjur.example.com"},
		{"Single Trailing Slash", "vault.example.com/", "vault.example.com"},
		{"Many Trailing Slashes", "vault.example.com///", "vault.example.com"},
		{"HTTPS Prefix", "https://conjur.example.com", "conjur.example.com"},
		{"HTTP Prefix And Slashes", "http://conjur.example.com//", "conjur.example.com"},
		{"Port Kept", "https://conjur.example.com:8443/", "conjur.example.com:8443"},
		{"Scheme Only", "https://", ""},
		{"Repeated Scheme", "https://http://conjur.example.com/", "conjur.example.com"},
		{"Scheme Inside Kept", "conjur.example.com/https://x", "conjur.example.com/https://x"},
		{"Empty", "", ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			once := NormalizeHostname(tc.input)
			assert.Equal(t, tc.expected, once)
			assert.Equal(t, once, NormalizeHostname(once), "normalization must be idempotent")
		})
	}
}

func TestParseAuthScheme(t *testing.T) {
	testCases := []struct {
		input    string
		expected AuthScheme
	}{
		{"", SchemeAPIKey},
		{"apiKey", SchemeAPIKey},
		{"ApiKey", SchemeAPIKey},
		{"APIKEY", SchemeAPIKey},
		{" api-key ", SchemeAPIKey},
		{"azure-managed-identity", SchemeManagedIdentity},
		{"AzureManagedIdentity", SchemeManagedIdentity},
	}
	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			s, err := ParseAuthScheme(tc.input)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, s)
		})
	}

	_, err := ParseAuthScheme("kerberos")
	assert.ErrorIs(t, err, ErrUnsupportedAuthScheme)
}

func TestAuthenticateAPIKey(t *testing.T) {
	req := &recordingRequester{body: "tok1"}
	client := NewAuthClient(req, zaptest.NewLogger(t))

	token, err := client.Authenticate(context.Background(),
		NewEndpoint("https://vault.example.com/", "myorg"),
		Credential{Identity: "host/app 1", Secret: "k1", Scheme: SchemeAPIKey})
	require.NoError(t, err)
	assert.Equal(t, "tok1", token.Reveal())

	require.Len(t, req.requests, 1)
	got := req.requests[0]
	assert.Equal(t, "vault.example.com", got.Hostname)
	assert.Equal(t, http.MethodPost, got.Method)
	assert.Equal(t, "/authn/myorg/host%2Fapp%201/authenticate", got.Path)
	assert.Equal(t, "k1", got.Body)
	assert.Empty(t, got.Authorization)
	assert.False(t, got.AllowInsecureTLS)
}

func TestAuthenticateUnsupportedSchemeMakesNoRequest(t *testing.T) {
	req := &recordingRequester{body: "unused"}
	client := NewAuthClient(req, zap.NewNop())

	_, err := client.Authenticate(context.Background(),
		NewEndpoint("conjur", "acct"),
		Credential{Identity: "admin", Secret: "k", Scheme: SchemeManagedIdentity})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedAuthScheme)
	assert.Empty(t, req.requests)
}

func TestAuthenticatePropagatesStatusError(t *testing.T) {
	req := &recordingRequester{body: "denied", err: &transport.StatusError{StatusCode: 401, Body: "denied"}}
	client := NewAuthClient(req, zap.NewNop())

	endpoint := NewEndpoint("conjur", "acct")
	endpoint.AllowInsecureTLS = true
	token, err := client.Authenticate(context.Background(), endpoint,
		Credential{Identity: "admin", Secret: "bad", Scheme: SchemeAPIKey})
	require.Error(t, err)
	assert.Empty(t, token.Reveal())
	assert.True(t, transport.IsStatus(err, 401))
	assert.True(t, req.requests[0].AllowInsecureTLS)
}

func TestFetchSecret(t *testing.T) {
	req := &recordingRequester{body: "s3cr3t"}
	client := NewSecretClient(req, zaptest.NewLogger(t))

	endpoint := Endpoint{Hostname: "vault.example.com", Account: "myorg", AllowInsecureTLS: true}
	value, err := client.FetchSecret(context.Background(), endpoint, AccessToken("tok1"), "db/password")
	require.NoError(t, err)
	assert.Equal(t, "s3cr3t", value.Reveal())

	require.Len(t, req.requests, 1)
	got := req.requests[0]
	assert.Equal(t, http.MethodGet, got.Method)
	assert.Equal(t, "/secrets/myorg/variable/db/password", got.Path)
	assert.Equal(t, `Token token="dG9rMQ=="`, got.Authorization)
	assert.Empty(t, got.Body)
	assert.True(t, got.AllowInsecureTLS)
}

func TestFetchSecretEscapesInvalidPercent(t *testing.T) {
	testCases := []struct {
		name     string
		path     string
		expected string
	}{
		{"Plain", "db/password", "/secrets/myorg/variable/db/password"},
		{"Stray Percent", "app/p%zz", "/secrets/myorg/variable/app/p%25zz"},
		{"Already Escaped", "app/a%2Fb", "/secrets/myorg/variable/app/a%2Fb"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := &recordingRequester{body: "v"}
			_, err := NewSecretClient(req, zap.NewNop()).FetchSecret(context.Background(),
				Endpoint{Hostname: "conjur", Account: "myorg"}, AccessToken("t"), tc.path)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, req.requests[0].Path)
		})
	}
}

func TestRedactedFormatting(t *testing.T) {
	v := SecretValue("hunter2")
	tok := AccessToken("tok")
	out := fmt.Sprintf("%v %s %#v %v %#v", v, v, v, tok, tok)
	assert.NotContains(t, out, "hunter2")
	assert.NotContains(t, out, "tok ")
	assert.Equal(t, "[REDACTED] [REDACTED] [REDACTED] [REDACTED] [REDACTED]", out)
}

func TestClientsAgainstConjurServer(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.EscapedPath() == "/authn/myorg/admin/authenticate":
			b, _ := io.ReadAll(r.Body)
			if string(b) != "k1" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_, _ = w.Write([]byte("tok1"))
		case r.Method == http.MethodGet && r.URL.Path == "/secrets/myorg/variable/db/password":
			if r.Header.Get("Authorization") != `Token token="dG9rMQ=="` {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_, _ = w.Write([]byte("s3cr3t"))
		case r.Method == http.MethodGet && r.URL.Path == "/secrets/myorg/variable/app/p%zz":
			_, _ = w.Write([]byte("pct"))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte("not found"))
		}
	}))
	defer srv.Close()

	tr := transport.New(zaptest.NewLogger(t))
	endpoint := NewEndpoint(srv.URL+"/", "myorg")
	endpoint.AllowInsecureTLS = true
	assert.False(t, strings.HasPrefix(endpoint.Hostname, "https"))

	token, err := NewAuthClient(tr, zap.NewNop()).Authenticate(context.Background(), endpoint,
		Credential{Identity: "admin", Secret: "k1", Scheme: SchemeAPIKey})
	require.NoError(t, err)

	secrets := NewSecretClient(tr, zap.NewNop())
	value, err := secrets.FetchSecret(context.Background(), endpoint, token, "db/password")
	require.NoError(t, err)
	assert.Equal(t, "s3cr3t", value.Reveal())

	value, err = secrets.FetchSecret(context.Background(), endpoint, token, "app/p%zz")
	require.NoError(t, err)
	assert.Equal(t, "pct", value.Reveal())

	_, err = secrets.FetchSecret(context.Background(), endpoint, token, "missing")
	var statusErr *transport.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
}
