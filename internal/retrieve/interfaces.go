package retrieve

import (
	"context"
	"iter"

	"github.com/arwahdevops/conjursecrets/internal/conjur"
	"github.com/arwahdevops/conjursecrets/internal/manifest"
)

// ConfigSource supplies the task inputs.
type ConfigSource interface {
	// Input returns the named input. A required input that is unset is an
	// error.
	Input(name string, required bool) (string, error)
	// BoolInput returns the named boolean input, false when unset.
	BoolInput(name string) (bool, error)
}

// VariableSink receives resolved secrets. secret=true asks the host to mask
// the value from any later output.
type VariableSink interface {
	Publish(name, value string, secret bool) error
}

// FailureReporter marks the task as failed. It does not stop running work
// and may be called from several goroutines.
type FailureReporter interface {
	ReportFailure(message string)
}

// Authenticator is satisfied by *conjur.AuthClient.
type Authenticator interface {
	Authenticate(ctx context.Context, endpoint conjur.Endpoint, cred conjur.Credential) (conjur.AccessToken, error)
}

// SecretFetcher is satisfied by *conjur.SecretClient.
type SecretFetcher interface {
	FetchSecret(ctx context.Context, endpoint conjur.Endpoint, token conjur.AccessToken, secretPath string) (conjur.SecretValue, error)
}

// ManifestFunc streams the references of the manifest at path.
type ManifestFunc func(path string) iter.Seq2[manifest.SecretReference, error]
