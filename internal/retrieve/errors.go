package retrieve

import (
	"errors"

	"github.com/arwahdevops/conjursecrets/internal/conjur"
	"github.com/arwahdevops/conjursecrets/internal/manifest"
	"github.com/arwahdevops/conjursecrets/internal/transport"
)

// Failure kinds, used as the "kind" metric label.
const (
	KindUnsupportedAuthScheme  = "unsupported_auth_scheme"
	KindMalformedManifestLine  = "malformed_manifest_line"
	KindRemoteNonSuccessStatus = "remote_non_success_status"
	KindNetworkFailure         = "network_failure"
	KindTaskFailure            = "task_failure"
)

// ErrorKind classifies err into one of the failure kinds. Anything
// unrecognised is a task failure.
func ErrorKind(err error) string {
	var (
		statusErr  *transport.StatusError
		networkErr *transport.NetworkError
	)
	switch {
	case errors.Is(err, conjur.ErrUnsupportedAuthScheme):
		return KindUnsupportedAuthScheme
	case errors.Is(err, manifest.ErrMalformedManifestLine):
		return KindMalformedManifestLine
	case errors.As(err, &statusErr):
		return KindRemoteNonSuccessStatus
	case errors.As(err, &networkErr):
		return KindNetworkFailure
	default:
		return KindTaskFailure
	}
}
