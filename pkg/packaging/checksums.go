package packaging

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/go-kit/kit/log/level"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/wolfwire/termicom-builder/pkg/contexts/ctxlog"
)

// ChecksumsFilename is written into the distribution directory, in the
// usual sha256sum format so `sha256sum -c` can verify a release.
const ChecksumsFilename = "SHA256SUMS"

// WriteChecksums hashes every file in the distribution and writes the
// sum file alongside them. Output is sorted by path, so re-running on an
// unchanged tree produces byte-identical output.
func (p *PackageOptions) WriteChecksums(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)

	var paths []string
	err := afero.Walk(p.fs, p.DistDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || filepath.Base(path) == ChecksumsFilename {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "walking distribution %s", p.DistDir)
	}
	sort.Strings(paths)

	var out bytes.Buffer
	for _, path := range paths {
		sum, err := p.checksumFile(path)
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(p.DistDir, path)
		if err != nil {
			return err
		}
		fmt.Fprintf(&out, "%s  %s\n", sum, filepath.ToSlash(rel))
	}

	sumPath := filepath.Join(p.DistDir, ChecksumsFilename)
	if err := afero.WriteFile(p.fs, sumPath, out.Bytes(), FileMode); err != nil {
		return errors.Wrapf(err, "writing %s", sumPath)
	}

	level.Debug(logger).Log(
		"msg", "wrote checksums",
		"path", sumPath,
		"files", len(paths),
	)

	return nil
}

func (p *PackageOptions) checksumFile(path string) (string, error) {
	f, err := p.fs.Open(path)
	if err != nil {
		return "", errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", errors.Wrapf(err, "hashing %s", path)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
