// Package azdo adapts the retrieval task to an Azure Pipelines agent: task
// inputs arrive as INPUT_* environment variables and results leave as
// ##vso logging commands on stdout.
package azdo

import (
	"fmt"
	"os"
	"strings"
)

// Inputs reads task inputs the way the agent passes them.
type Inputs struct {
	environ map[string]string
}

// NewInputs reads inputs from environ.
func NewInputs(environ map[string]string) *Inputs {
	return &Inputs{environ: environ}
}

// NewInputsFromEnvironment snapshots the process environment.
func NewInputsFromEnvironment() *Inputs {
	environ := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			environ[k] = v
		}
	}
	return NewInputs(environ)
}

// inputKey maps an input name to its environment variable.
func inputKey(name string) string {
	return "INPUT_" + strings.ToUpper(strings.ReplaceAll(name, " ", "_"))
}

// Input returns the trimmed input value.
func (in *Inputs) Input(name string, required bool) (string, error) {
	value := strings.TrimSpace(in.environ[inputKey(name)])
	if value == "" && required {
		return "", fmt.Errorf("input required: %s", name)
	}
	return value, nil
}

// BoolInput is true only for a case-insensitive "true".
func (in *Inputs) BoolInput(name string) (bool, error) {
	value, err := in.Input(name, false)
	if err != nil {
		return false, err
	}
	return strings.EqualFold(value, "true"), nil
}
