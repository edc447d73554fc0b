package packaging

import (
	"bytes"
	"context"
	"strings"

	"github.com/Masterminds/semver"
	"github.com/pkg/errors"
)

// parseVersionOutput pulls a version out of `<exe> --version` output.
// The first line looks like `TermiCOM 1.0.0`; the version is the last
// field.
func parseVersionOutput(output string) (string, error) {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	fields := strings.Fields(lines[0])
	if len(fields) == 0 {
		return "", errors.New("unable to parse app version from empty output")
	}

	version := fields[len(fields)-1]
	if _, err := semver.NewVersion(version); err != nil {
		return "", errors.Wrapf(err, "detected version %q is not semver", version)
	}

	return version, nil
}

func (p *PackageOptions) execOut(ctx context.Context, argv0 string, args ...string) (string, error) {
	cmd := p.execCC(ctx, argv0, args...)
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	cmd.Stdout, cmd.Stderr = stdout, stderr
	if err := cmd.Run(); err != nil {
		return "", errors.Wrapf(err, "run command %s %v, stderr=%s", argv0, args, stderr)
	}
	return strings.TrimSpace(stdout.String()), nil
}
