/* Package build drives the TermiCOM packaging pipeline.

This used to be a windows batch file. Moving it into go gives us real
error handling (the batch file happily kept going after a failed
pyinstaller run) and lets the same tool run under wine or CI.
*/

package build

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver"
	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/kolide/kit/fsutil"
	"github.com/wolfwire/termicom-builder/pkg/contexts/ctxlog"

	"go.opencensus.io/trace"
	"golang.org/x/sync/errgroup"
)

// pythonConstraint is the oldest interpreter the app (and pyinstaller)
// still supports.
const pythonConstraint = ">= 3.8"

type Builder struct {
	sourceDir  string // tree of application sources, copied wholesale into buildDir
	buildDir   string // scratch dir, deleted and recreated every run
	assetsDir  string // icons etc, copied into the produced dist
	entryPoint string // application entry point within sourceDir
	appName    string // explicit executable name for the onefile variant
	iconPath   string // icon handed to pyinstaller, relative to the invoking cwd

	pythonPath         string
	githubActionOutput bool

	cmdEnv   []string
	execCC   func(context.Context, string, ...string) *exec.Cmd
	lookPath func(string) (string, error)
}

type Option func(*Builder)

func WithSourceDir(dir string) Option {
	return func(b *Builder) {
		b.sourceDir = dir
	}
}

func WithBuildDir(dir string) Option {
	return func(b *Builder) {
		b.buildDir = dir
	}
}

func WithAssetsDir(dir string) Option {
	return func(b *Builder) {
		b.assetsDir = dir
	}
}

func WithEntryPoint(file string) Option {
	return func(b *Builder) {
		b.entryPoint = file
	}
}

func WithAppName(name string) Option {
	return func(b *Builder) {
		b.appName = name
	}
}

func WithIcon(path string) Option {
	return func(b *Builder) {
		b.iconPath = path
	}
}

func WithPython(path string) Option {
	return func(b *Builder) {
		b.pythonPath = path
	}
}

func WithGithubActionOutput() Option {
	return func(b *Builder) {
		b.githubActionOutput = true
	}
}

func New(opts ...Option) *Builder {
	b := Builder{
		sourceDir:  "source_files",
		buildDir:   "build",
		assetsDir:  "assets",
		entryPoint: "main.py",
		appName:    "WolfWire",
		iconPath:   filepath.Join("assets", "icon.ico"),
		pythonPath: "python",

		execCC:   exec.CommandContext,
		lookPath: exec.LookPath,
	}

	for _, opt := range opts {
		opt(&b)
	}

	// pip is noisy about version checks, and the output pollutes CI logs
	cmdEnv := os.Environ()
	cmdEnv = append(cmdEnv, "PIP_DISABLE_PIP_VERSION_CHECK=1")
	b.cmdEnv = cmdEnv

	return &b
}

// DistDir is where pyinstaller leaves its output, underneath the build
// directory.
func (b *Builder) DistDir() string {
	return filepath.Join(b.buildDir, "dist")
}

// PlatformBinaryName is a helper to return the platform specific output name.
func (b *Builder) PlatformBinaryName(input string) string {
	return strings.TrimSuffix(input, ".exe") + ".exe"
}

func (b *Builder) pythonVersionCompatible(ctx context.Context, logger log.Logger) error {
	out, err := b.execOut(ctx, b.pythonPath, "--version")
	if err != nil {
		return fmt.Errorf("run %s --version: %w", b.pythonPath, err)
	}

	pyVer, err := parsePythonVersion(out)
	if err != nil {
		return err
	}

	level.Debug(logger).Log(
		"msg", "detected python",
		"path", b.pythonPath,
		"version", pyVer,
	)

	c, _ := semver.NewConstraint(pythonConstraint)
	if !c.Check(pyVer) {
		return fmt.Errorf("pipeline requires python %s, have %s", pythonConstraint, pyVer)
	}
	return nil
}

// parsePythonVersion pulls the version out of `python --version` output,
// which looks like `Python 3.11.4`.
func parsePythonVersion(output string) (*semver.Version, error) {
	fields := strings.Fields(strings.TrimSpace(output))
	if len(fields) == 0 {
		return nil, fmt.Errorf("no python version in empty output")
	}
	raw := fields[len(fields)-1]

	pyVer, err := semver.NewVersion(raw)
	if err != nil {
		return nil, fmt.Errorf("parse python version %q as semver: %w", raw, err)
	}
	return pyVer, nil
}

// DepsPython verifies the interpreter and its package manager are usable
// before anything destructive happens.
func (b *Builder) DepsPython(ctx context.Context) error {
	ctx, span := trace.StartSpan(ctx, "build.DepsPython")
	defer span.End()

	logger := ctxlog.FromContext(ctx)

	level.Debug(logger).Log(
		"cmd", "deps-python",
		"msg", "Starting",
	)

	if err := b.pythonVersionCompatible(ctx, logger); err != nil {
		return err
	}

	out, err := b.execOut(ctx, b.pythonPath, "-m", "pip", "--version")
	if err != nil {
		return fmt.Errorf("pip is not usable via %s -m pip: %w", b.pythonPath, err)
	}

	level.Debug(logger).Log(
		"cmd", "deps-python",
		"msg", "Finished",
		"pip", out,
	)

	return nil
}

// InstallTools makes sure the packaging tools exist on PATH, installing
// any that are missing. Already-present tools are left untouched.
func (b *Builder) InstallTools(ctx context.Context) error {
	ctx, span := trace.StartSpan(ctx, "build.InstallTools")
	defer span.End()

	logger := ctxlog.FromContext(ctx)

	level.Debug(logger).Log(
		"cmd", "Install Tools",
		"msg", "Starting",
	)

	var g errgroup.Group
	for _, tool := range []string{"pyinstaller"} {
		tool := tool
		path, err := b.lookPath(tool)
		if err == nil {
			level.Debug(logger).Log(
				"target", "install tools",
				"tool", tool,
				"exists", true,
				"path", path,
			)
			continue
		}

		g.Go(func() error {
			return b.installTool(ctx, tool)
		})
	}
	err := g.Wait()

	level.Debug(logger).Log(
		"cmd", "Install Tools",
		"msg", "Finished",
	)

	if err != nil {
		return fmt.Errorf("install tools: %w", err)
	}

	return nil
}

func (b *Builder) installTool(ctx context.Context, name string) error {
	ctx, span := trace.StartSpan(ctx, "build.installTool")
	defer span.End()

	cmd := b.execCC(ctx, b.pythonPath, "-m", "pip", "install", name)
	cmd.Env = append(cmd.Env, b.cmdEnv...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("run pip install %s, output=%s: %w", name, out, err)
	}
	level.Debug(ctxlog.FromContext(ctx)).Log("target", "install tool", "tool", name, "output", string(out))
	return nil
}

// Clean removes the build directory. There is no backup; every run
// starts from a fresh tree.
func (b *Builder) Clean(ctx context.Context) error {
	_, span := trace.StartSpan(ctx, "build.Clean")
	defer span.End()

	logger := ctxlog.FromContext(ctx)

	if err := os.RemoveAll(b.buildDir); err != nil {
		return fmt.Errorf("remove build dir %s: %w", b.buildDir, err)
	}

	level.Debug(logger).Log(
		"cmd", "clean",
		"msg", "Finished",
		"dir", b.buildDir,
	)

	return nil
}

// Assemble copies the application source tree into the build directory.
// A missing source tree is an error, not an empty distribution.
func (b *Builder) Assemble(ctx context.Context) error {
	_, span := trace.StartSpan(ctx, "build.Assemble")
	defer span.End()

	logger := ctxlog.FromContext(ctx)

	srcStat, err := os.Stat(b.sourceDir)
	if os.IsNotExist(err) {
		return fmt.Errorf("source dir %s does not exist", b.sourceDir)
	} else if err != nil {
		return fmt.Errorf("stat source dir %s: %w", b.sourceDir, err)
	}
	if !srcStat.IsDir() {
		return fmt.Errorf("source dir %s is not a directory", b.sourceDir)
	}

	if err := os.MkdirAll(b.buildDir, 0755); err != nil {
		return fmt.Errorf("make build dir %s: %w", b.buildDir, err)
	}

	if err := fsutil.CopyDir(b.sourceDir, b.buildDir); err != nil {
		return fmt.Errorf("copy %s to %s: %w", b.sourceDir, b.buildDir, err)
	}

	level.Debug(logger).Log(
		"cmd", "assemble",
		"msg", "Finished",
		"src", b.sourceDir,
		"dest", b.buildDir,
	)

	return nil
}

// pyinstallerArgs returns the argument list for the two packaging
// variants. Both exist in the release process: the default spec build,
// and the explicitly named onefile windowed build that ships. iconPath
// arrives already resolved, since pyinstaller runs inside the build
// directory.
func (b *Builder) pyinstallerArgs(onefile bool, iconPath string) []string {
	args := []string{"--noconfirm"}

	if onefile {
		args = append(args,
			"--onefile",
			"--windowed",
			"--icon", iconPath,
			"--name", b.appName,
		)
	}

	return append(args, b.entryPoint)
}

// Package runs the default pyinstaller build against the entry point.
func (b *Builder) Package(ctx context.Context) error {
	ctx, span := trace.StartSpan(ctx, "build.Package")
	defer span.End()

	return b.runPyinstaller(ctx, false)
}

// PackageOnefile runs the single-file windowed build that produces the
// shipping executable.
func (b *Builder) PackageOnefile(ctx context.Context) error {
	ctx, span := trace.StartSpan(ctx, "build.PackageOnefile")
	defer span.End()

	return b.runPyinstaller(ctx, true)
}

func (b *Builder) runPyinstaller(ctx context.Context, onefile bool) error {
	logger := ctxlog.FromContext(ctx)

	// pyinstaller runs with the build dir as its cwd, so a
	// caller-relative icon path would resolve against the wrong
	// directory there.
	iconPath := b.iconPath
	if !filepath.IsAbs(iconPath) {
		abs, err := filepath.Abs(iconPath)
		if err != nil {
			return fmt.Errorf("absolute path for icon %s: %w", iconPath, err)
		}
		iconPath = abs
	}

	args := b.pyinstallerArgs(onefile, iconPath)

	cmd := b.execCC(ctx, "pyinstaller", args...)
	cmd.Dir = b.buildDir
	cmd.Env = append(cmd.Env, b.cmdEnv...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	level.Debug(logger).Log(
		"msg", "packaging executable",
		"onefile", onefile,
		"args", strings.Join(args, " "),
		"dir", b.buildDir,
	)

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("run pyinstaller %s: %w", strings.Join(args, " "), err)
	}

	// Tell github where we're at
	if b.githubActionOutput && onefile {
		fmt.Printf("::set-output name=binary::%s\n", filepath.Join(b.DistDir(), b.PlatformBinaryName(b.appName)))
	}

	return nil
}

// CopyAssets copies the asset tree into the produced distribution so the
// packaged executable can find it next to itself.
func (b *Builder) CopyAssets(ctx context.Context) error {
	_, span := trace.StartSpan(ctx, "build.CopyAssets")
	defer span.End()

	logger := ctxlog.FromContext(ctx)

	dest := filepath.Join(b.DistDir(), filepath.Base(b.assetsDir))

	if err := os.MkdirAll(dest, 0755); err != nil {
		return fmt.Errorf("make asset dir %s: %w", dest, err)
	}

	if err := fsutil.CopyDir(b.assetsDir, dest); err != nil {
		return fmt.Errorf("copy assets %s to %s: %w", b.assetsDir, dest, err)
	}

	level.Debug(logger).Log(
		"cmd", "copy-assets",
		"msg", "Finished",
		"dest", dest,
	)

	return nil
}

func (b *Builder) execOut(ctx context.Context, argv0 string, args ...string) (string, error) {
	cmd := b.execCC(ctx, argv0, args...)
	cmd.Env = append(cmd.Env, b.cmdEnv...)
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	cmd.Stdout, cmd.Stderr = stdout, stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("run command %s %v, stderr=%s: %w", argv0, args, stderr, err)
	}
	return strings.TrimSpace(stdout.String()), nil
}
