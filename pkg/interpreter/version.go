package interpreter

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"

	"github.com/aretw0/arepl/pkg/domain"
	"golang.org/x/mod/semver"
)

// RequiredMajor is the interpreter major version the backend is written for.
const RequiredMajor = "v3"

var versionPattern = regexp.MustCompile(`(\d+)\.(\d+)(?:\.(\d+))?`)

// ParseVersion extracts a canonical semver ("v3.11.4") from the output of
// `python --version`. Pre-release suffixes such as "rc1" are ignored.
func ParseVersion(output string) (string, bool) {
	m := versionPattern.FindStringSubmatch(output)
	if m == nil {
		return "", false
	}
	v := "v" + m[1] + "." + m[2]
	if m[3] != "" {
		v += "." + m[3]
	}
	v = semver.Canonical(v)
	return v, v != ""
}

// Compatible reports whether version has the required major version.
func Compatible(version string) bool {
	return semver.Major(version) == RequiredMajor
}

// CheckVersion runs `<python> --version`. A failure to run the binary is a
// spawn error; an unparseable answer is returned as an empty version.
func CheckVersion(ctx context.Context, pythonPath string) (string, error) {
	cmd := exec.CommandContext(ctx, pythonPath, "--version")
	var out bytes.Buffer
	cmd.Stdout = &out
	// Python 2 prints its version on stderr.
	cmd.Stderr = &out

	if err := cmd.Run(); err != nil {
		return "", &domain.ProcessError{Op: "version", Kind: domain.ErrSpawn, Err: err}
	}

	v, ok := ParseVersion(out.String())
	if !ok {
		return "", nil
	}
	return v, nil
}

func incompatibleWarning(pythonPath, version string) string {
	if version == "" {
		return fmt.Sprintf("could not determine the version of %s; evaluation will still be attempted", pythonPath)
	}
	return fmt.Sprintf("%s is %s but a %s.x interpreter is required; evaluation will still be attempted",
		pythonPath, version, RequiredMajor)
}
