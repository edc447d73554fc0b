// Package packaging stages a built distribution into a package root
// according to the manifest's declarative file rules, and derives
// release metadata (version, checksums) from the staged artifacts.
package packaging

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/wolfwire/termicom-builder/pkg/contexts/ctxlog"
	"github.com/wolfwire/termicom-builder/pkg/manifest"
)

const (
	DirMode  = 0755
	FileMode = 0644
)

type PackageOptions struct {
	Name        string
	Version     string
	ExeName     string
	DistDir     string // output of the packaging tool
	PackageRoot string // staging destination referenced by the installer script
	Rules       []manifest.StagingRule

	target PlatformFlavor
	fs     afero.Fs
	execCC func(context.Context, string, ...string) *exec.Cmd
}

func NewPackageOptions(m *manifest.Manifest, distDir, packageRoot string) *PackageOptions {
	return &PackageOptions{
		Name:        m.App.Name,
		Version:     m.App.Version,
		ExeName:     m.App.ExeName,
		DistDir:     distDir,
		PackageRoot: packageRoot,
		Rules:       m.Staging,

		target: Windows,
		fs:     afero.NewOsFs(),
		execCC: exec.CommandContext,
	}
}

// Stage copies the distribution into the package root, rule by rule.
// Staging an empty distribution is refused; an installer compiled from
// one would install nothing and fail silently at the end of the
// pipeline, which is much harder to diagnose than failing here.
func (p *PackageOptions) Stage(ctx context.Context) error {
	logger := log.With(ctxlog.FromContext(ctx), "library", "stage")

	entries, err := afero.ReadDir(p.fs, p.DistDir)
	if err != nil {
		return errors.Wrapf(err, "reading distribution dir %s", p.DistDir)
	}
	if len(entries) == 0 {
		return errors.Errorf("refusing to stage empty distribution %s", p.DistDir)
	}

	if err := p.fs.MkdirAll(p.PackageRoot, DirMode); err != nil {
		return errors.Wrapf(err, "create package root %s", p.PackageRoot)
	}

	for _, rule := range p.Rules {
		src := filepath.Join(p.DistDir, rule.Source)
		dest := p.PackageRoot
		if rule.Dest != "." {
			dest = filepath.Join(p.PackageRoot, rule.Dest)
		}

		level.Debug(logger).Log(
			"msg", "applying staging rule",
			"src", src,
			"dest", dest,
			"recursive", rule.Recursive,
		)

		if rule.Recursive {
			err = p.copyTree(src, dest)
		} else {
			err = p.copyFile(src, filepath.Join(dest, filepath.Base(rule.Source)))
		}
		if err != nil {
			return errors.Wrapf(err, "staging %s", rule.Source)
		}
	}

	return nil
}

// DetectVersion runs the packaged executable to find its version. Only
// meaningful when the manifest defers with version "auto".
func (p *PackageOptions) DetectVersion(ctx context.Context) error {
	logger := log.With(ctxlog.FromContext(ctx), "library", "detectVersion")

	if p.Version != manifest.VersionAuto {
		return nil
	}

	level.Debug(logger).Log("msg", "attempting version autodetection")

	exeName := p.target.PlatformBinaryName(strings.TrimSuffix(p.ExeName, ".exe"))
	exePath := filepath.Join(p.DistDir, exeName)
	stdout, err := p.execOut(ctx, exePath, "--version")
	if err != nil {
		return errors.Wrapf(err, "failed to exec %s. Can't autodetect while cross packaging", exePath)
	}

	version, err := parseVersionOutput(stdout)
	if err != nil {
		return err
	}

	level.Debug(logger).Log("msg", "detected version", "version", version)
	p.Version = version
	return nil
}

func (p *PackageOptions) copyTree(src, dest string) error {
	return afero.Walk(p.fs, src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, rel)

		if info.IsDir() {
			return p.fs.MkdirAll(target, DirMode)
		}
		return p.copyFile(path, target)
	})
}

func (p *PackageOptions) copyFile(src, dest string) error {
	content, err := afero.ReadFile(p.fs, src)
	if err != nil {
		return err
	}
	if err := p.fs.MkdirAll(filepath.Dir(dest), DirMode); err != nil {
		return err
	}
	return afero.WriteFile(p.fs, dest, content, FileMode)
}
