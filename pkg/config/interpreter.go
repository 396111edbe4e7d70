package config

import (
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"

	"github.com/aretw0/arepl/pkg/domain"
)

var envVar = regexp.MustCompile(`\$\{env:([A-Za-z_][A-Za-z0-9_]*)\}`)

// Substitute replaces ${env:NAME} references using lookup. Unknown names
// become empty strings.
func Substitute(value string, lookup func(string) (string, bool)) string {
	return envVar.ReplaceAllStringFunc(value, func(ref string) string {
		name := envVar.FindStringSubmatch(ref)[1]
		v, _ := lookup(name)
		return v
	})
}

// ResolveInterpreter returns the absolute interpreter path for s. An empty
// pythonPath falls back to python3, then python, on PATH.
func ResolveInterpreter(s Settings) (string, error) {
	path := strings.TrimSpace(Substitute(s.PythonPath, os.LookupEnv))

	candidates := []string{path}
	if path == "" {
		candidates = []string{"python3", "python"}
	}

	for _, candidate := range candidates {
		if resolved, err := exec.LookPath(candidate); err == nil {
			return resolved, nil
		}
	}

	if path == "" {
		return "", fmt.Errorf("%w: no python interpreter found on PATH, set pythonPath", domain.ErrConfiguration)
	}
	return "", fmt.Errorf("%w: python interpreter %q not found", domain.ErrConfiguration, path)
}

// ResolveEnvFile substitutes env references in the envFile setting.
func ResolveEnvFile(s Settings) string {
	return strings.TrimSpace(Substitute(s.EnvFile, os.LookupEnv))
}
