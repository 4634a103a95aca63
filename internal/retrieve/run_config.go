package retrieve

import (
	"errors"
	"fmt"

	"github.com/arwahdevops/conjursecrets/internal/conjur"
)

// Task input names.
const (
	InputApplianceURL = "conjurapplianceurl"
	InputAccount      = "conjuraccount"
	InputUsername     = "conjurusername"
	InputAPIKey       = "conjurapikey"
	InputSecretsYml   = "secretsyml"
	InputAuthnType    = "authntype"
	InputIgnoreSSL    = "ignoressl"
)

// DefaultManifestPath is used when secretsyml is not set.
const DefaultManifestPath = "./secrets.yml"

// ErrTaskFailure marks failures while setting up the run.
var ErrTaskFailure = errors.New("task failure")

// RunConfig is everything one run needs, read once and never changed.
type RunConfig struct {
	Endpoint     conjur.Endpoint
	Credential   conjur.Credential
	ManifestPath string
}

// LoadRunConfig reads the task inputs from src and applies defaults.
func LoadRunConfig(src ConfigSource) (RunConfig, error) {
	var (
		values = map[string]string{}
		err    error
	)
	for _, name := range []string{InputApplianceURL, InputAccount, InputUsername, InputAPIKey} {
		if values[name], err = src.Input(name, true); err != nil {
			return RunConfig{}, fmt.Errorf("%w: %w", ErrTaskFailure, err)
		}
	}
	for _, name := range []string{InputSecretsYml, InputAuthnType} {
		if values[name], err = src.Input(name, false); err != nil {
			return RunConfig{}, fmt.Errorf("%w: %w", ErrTaskFailure, err)
		}
	}
	ignoreSSL, err := src.BoolInput(InputIgnoreSSL)
	if err != nil {
		return RunConfig{}, fmt.Errorf("%w: %w", ErrTaskFailure, err)
	}

	scheme, err := conjur.ParseAuthScheme(values[InputAuthnType])
	if err != nil {
		return RunConfig{}, err
	}

	manifestPath := values[InputSecretsYml]
	if manifestPath == "" {
		manifestPath = DefaultManifestPath
	}

	endpoint := conjur.NewEndpoint(values[InputApplianceURL], values[InputAccount])
	endpoint.AllowInsecureTLS = ignoreSSL

	return RunConfig{
		Endpoint: endpoint,
		Credential: conjur.Credential{
			Identity: values[InputUsername],
			Secret:   values[InputAPIKey],
			Scheme:   scheme,
		},
		ManifestPath: manifestPath,
	}, nil
}
