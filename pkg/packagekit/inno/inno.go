// Package inno wraps the Inno Setup command line compiler (ISCC). The
// compiler itself is treated as an opaque external binary; this package
// stages the script, invokes it, and hands back the produced setup
// executable.
package inno

import (
	"bytes"
	"context"
	"fmt"
	"io/ioutil"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/go-kit/kit/log/level"
	"github.com/pkg/errors"
	"github.com/wolfwire/termicom-builder/pkg/contexts/ctxlog"
)

// DefaultISCCPath is where a stock Inno Setup 6 install puts the
// compiler.
const DefaultISCCPath = `C:\Program Files (x86)\Inno Setup 6\ISCC.exe`

type innoTool struct {
	isccPath    string // where the ISCC binary lives
	packageRoot string // distribution directory the script's sources reference
	buildDir    string // scratch dir the script is written into
	outputDir   string // where ISCC should leave the setup executable
	outputBase  string // basename (no extension) of the expected artifact
	dockerImage string // if set, run ISCC under wine in this image
	cleanDirs   []string

	execCC func(context.Context, string, ...string) *exec.Cmd // Allows test overrides
}

type InnoOpt func(*innoTool)

func WithISCC(path string) InnoOpt {
	return func(it *innoTool) {
		it.isccPath = path
	}
}

func WithBuildDir(path string) InnoOpt {
	return func(it *innoTool) {
		it.buildDir = path
	}
}

func WithOutputDir(path string) InnoOpt {
	return func(it *innoTool) {
		it.outputDir = path
	}
}

// If you don't have a windows machine handy, wine compiles iss scripts
// just fine.
func WithDocker(image string) InnoOpt {
	return func(it *innoTool) {
		it.dockerImage = image
	}
}

// New takes a packageRoot of distribution files and the rendered iss
// content, and returns a struct suitable for compiling installers with.
func New(packageRoot string, outputBase string, mainIssContent []byte, innoOpts ...InnoOpt) (*innoTool, error) {
	// ISCC resolves relative paths against its own working directory,
	// which is the scratch build dir, not the caller's. Docker bind
	// mounts reject relative paths outright. Everything handed across
	// must be absolute.
	packageRoot, err := filepath.Abs(packageRoot)
	if err != nil {
		return nil, errors.Wrapf(err, "absolute path for packageRoot %s", packageRoot)
	}

	it := &innoTool{
		isccPath:    DefaultISCCPath,
		packageRoot: packageRoot,
		outputBase:  outputBase,

		execCC: exec.CommandContext,
	}

	for _, opt := range innoOpts {
		opt(it)
	}

	if err := isDirectory(it.packageRoot); err != nil {
		return nil, err
	}

	if it.buildDir == "" {
		it.buildDir, err = ioutil.TempDir("", "inno-build-dir")
		if err != nil {
			return nil, errors.Wrap(err, "making temp inno-build-dir")
		}
		it.cleanDirs = append(it.cleanDirs, it.buildDir)
	} else {
		it.buildDir, err = filepath.Abs(it.buildDir)
		if err != nil {
			return nil, errors.Wrapf(err, "absolute path for buildDir %s", it.buildDir)
		}
	}

	if it.outputDir == "" {
		it.outputDir = it.buildDir
	} else {
		it.outputDir, err = filepath.Abs(it.outputDir)
		if err != nil {
			return nil, errors.Wrapf(err, "absolute path for outputDir %s", it.outputDir)
		}
	}

	mainIssPath := filepath.Join(it.buildDir, "installer.iss")

	if err := ioutil.WriteFile(
		mainIssPath,
		mainIssContent,
		0644); err != nil {
		return nil, errors.Wrapf(err, "writing %s", mainIssPath)
	}

	return it, nil
}

// Cleanup removes temp directories. Meant to be called in a defer.
func (it *innoTool) Cleanup() {
	for _, d := range it.cleanDirs {
		os.RemoveAll(d)
	}
}

// ScriptPath returns the location of the staged iss script.
func (it *innoTool) ScriptPath() string {
	return filepath.Join(it.buildDir, "installer.iss")
}

// Compile invokes ISCC against the staged script and returns the path
// of the produced setup executable.
//
// Unlike the dependency ensurer, nothing installs ISCC for us, so its
// presence is verified before the invocation rather than after a
// confusing exec failure.
func (it *innoTool) Compile(ctx context.Context) (string, error) {
	if it.dockerImage == "" {
		if _, err := os.Stat(it.isccPath); err != nil {
			return "", errors.Wrapf(err, "inno setup compiler not found at %s", it.isccPath)
		}
	}

	_, err := it.execOut(ctx,
		it.isccPath,
		"/Qp",
		"/O"+it.outputDir,
		it.ScriptPath(),
	)
	if err != nil {
		return "", errors.Wrap(err, "running ISCC")
	}

	setupPath := filepath.Join(it.outputDir, it.outputBase+".exe")
	if _, err := os.Stat(setupPath); err != nil {
		return "", errors.Wrapf(err, "ISCC reported success but %s is missing", setupPath)
	}

	return setupPath, nil
}

func (it *innoTool) execOut(ctx context.Context, argv0 string, args ...string) (string, error) {
	logger := ctxlog.FromContext(ctx)

	dockerArgs := []string{
		"run",
		"--entrypoint", "",
		"-v", fmt.Sprintf("%s:%s", it.packageRoot, it.packageRoot),
		"-v", fmt.Sprintf("%s:%s", it.buildDir, it.buildDir),
		"-w", it.buildDir,
		it.dockerImage,
		"wine",
		argv0,
	}

	dockerArgs = append(dockerArgs, args...)

	if it.dockerImage != "" {
		argv0 = "docker"
		args = dockerArgs
	}

	cmd := it.execCC(ctx, argv0, args...)

	level.Debug(logger).Log(
		"msg", "execing",
		"cmd", strings.Join(cmd.Args, " "),
	)

	cmd.Dir = it.buildDir
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	cmd.Stdout, cmd.Stderr = stdout, stderr
	if err := cmd.Run(); err != nil {
		return "", errors.Wrapf(err, "run command %s %v\nstdout=%s\nstderr=%s", argv0, args, stdout, stderr)
	}
	return strings.TrimSpace(stdout.String()), nil
}

func isDirectory(d string) error {
	dStat, err := os.Stat(d)

	if os.IsNotExist(err) {
		return errors.Wrapf(err, "missing packageRoot %s", d)
	}

	if err != nil {
		return errors.Wrapf(err, "stat packageRoot %s", d)
	}

	if !dStat.IsDir() {
		return errors.Errorf("packageRoot (%s) isn't a directory", d)
	}

	return nil
}
