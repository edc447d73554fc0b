package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-kit/kit/log/level"
	"github.com/kolide/kit/logutil"
	"github.com/peterbourgon/ff/v3"
	"github.com/wolfwire/termicom-builder/pkg/build"
	"github.com/wolfwire/termicom-builder/pkg/contexts/ctxlog"
	"github.com/wolfwire/termicom-builder/pkg/manifest"
	"github.com/wolfwire/termicom-builder/pkg/packagekit"
	"github.com/wolfwire/termicom-builder/pkg/packagekit/inno"
	"github.com/wolfwire/termicom-builder/pkg/packaging"
)

func main() {
	targets := pipelineTargets()
	buildAll := strings.Join(targets, ",")

	fs := flag.NewFlagSet("make", flag.ExitOnError)

	var (
		flTargets      = fs.String("targets", buildAll, "comma separated list of targets")
		flDebug        = fs.Bool("debug", false, "use a debug logger")
		flManifest     = fs.String("manifest", "release.yaml", "path to the release manifest")
		flSrcDir       = fs.String("src", "source_files", "directory of application sources")
		flBuildDir     = fs.String("build", "build", "scratch build directory. Deleted by the clean target.")
		flAssetsDir    = fs.String("assets", "assets", "directory of application assets")
		flISCC         = fs.String("iscc", "", "path to the Inno Setup compiler. Defaults to the stock install location.")
		flDocker       = fs.String("docker", "", "docker image to run the installer compiler in, via wine")
		flGithubOutput = fs.Bool("github", os.Getenv("GITHUB_ACTIONS") != "", "Include github action output")
		flListTargets  = fs.Bool("list-targets", false, "list the available targets and exit")
	)

	ffOpts := []ff.Option{
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
		ff.WithEnvVarPrefix("MAKE"),
	}

	if err := ff.Parse(fs, os.Args[1:], ffOpts...); err != nil {
		logger := logutil.NewCLILogger(true)
		logutil.Fatal(logger, "msg", "Error parsing flags", "err", err)
	}

	logger := logutil.NewCLILogger(*flDebug)
	ctx := context.Background()
	ctx = ctxlog.NewContext(ctx, logger)

	// listing needs no manifest
	if *flListTargets {
		fmt.Println("Available targets:")
		for _, target := range targets {
			fmt.Printf("  %s\n", target)
		}
		os.Exit(0)
	}

	m, err := manifest.Load(*flManifest)
	if err != nil {
		logutil.Fatal(logger, "msg", "Error loading manifest", "err", err)
	}

	opts := []build.Option{
		build.WithSourceDir(*flSrcDir),
		build.WithBuildDir(*flBuildDir),
		build.WithAssetsDir(*flAssetsDir),
		build.WithEntryPoint(m.App.EntryPoint),
		build.WithAppName(strings.TrimSuffix(m.App.ExeName, ".exe")),
	}
	if m.App.Icon != "" {
		opts = append(opts, build.WithIcon(m.App.Icon))
	}
	if *flGithubOutput {
		opts = append(opts, build.WithGithubActionOutput())
	}

	b := build.New(opts...)

	po := packaging.NewPackageOptions(m, b.DistDir(), filepath.Join(*flBuildDir, "pkgroot"))

	targetSet := map[string]func(context.Context) error{
		"deps-python":     b.DepsPython,
		"install-tools":   b.InstallTools,
		"clean":           b.Clean,
		"assemble":        b.Assemble,
		"package":         b.Package,
		"package-onefile": b.PackageOnefile,
		"copy-assets":     b.CopyAssets,
		"checksums":       po.WriteChecksums,
		"installer": func(ctx context.Context) error {
			return makeInstaller(ctx, m, po, *flBuildDir, *flISCC, *flDocker)
		},
	}

	for _, target := range strings.Split(*flTargets, ",") {
		target = strings.TrimSpace(target)
		if target == "" {
			continue
		}

		fn, ok := targetSet[target]
		if !ok {
			logutil.Fatal(logger, "msg", "target does not exist", "target", target)
		}

		level.Debug(logger).Log("msg", "starting target", "target", target)
		if err := fn(ctx); err != nil {
			logutil.Fatal(logger, "msg", "target failed", "target", target, "err", err)
		}
		level.Info(logger).Log("msg", "target finished", "target", target)
	}
}

func makeInstaller(ctx context.Context, m *manifest.Manifest, po *packaging.PackageOptions, buildDir, isccPath, dockerImage string) error {
	logger := ctxlog.FromContext(ctx)

	if err := po.DetectVersion(ctx); err != nil {
		return err
	}

	if err := po.Stage(ctx); err != nil {
		return err
	}

	// the compiler resolves the script's [Files] sources against its
	// own working directory, so the rendered root must be absolute
	absRoot, err := filepath.Abs(po.PackageRoot)
	if err != nil {
		return fmt.Errorf("absolute path for package root %s: %w", po.PackageRoot, err)
	}

	pko := &packagekit.PackageOptions{
		Name:            m.App.Name,
		Version:         po.Version,
		Publisher:       m.App.Publisher,
		Author:          m.App.Author,
		URL:             m.App.URL,
		AppID:           m.App.AppID,
		ExeName:         m.App.ExeName,
		Root:            absRoot,
		Rules:           fileRules(m.Staging),
		DesktopIcon:     m.Shortcuts.DesktopTask,
		RunAfterInstall: m.RunAfterInstall,
	}

	var issBuf bytes.Buffer
	if err := packagekit.RenderInnoSetup(ctx, &issBuf, pko); err != nil {
		return err
	}

	outputDir := filepath.Join(buildDir, "out")
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("make output dir %s: %w", outputDir, err)
	}

	innoOpts := []inno.InnoOpt{
		inno.WithOutputDir(outputDir),
	}
	if isccPath != "" {
		innoOpts = append(innoOpts, inno.WithISCC(isccPath))
	}
	if dockerImage != "" {
		innoOpts = append(innoOpts, inno.WithDocker(dockerImage))
	}

	it, err := inno.New(absRoot, pko.OutputBaseFilename(), issBuf.Bytes(), innoOpts...)
	if err != nil {
		return err
	}
	defer it.Cleanup()

	setupPath, err := it.Compile(ctx)
	if err != nil {
		return err
	}

	level.Info(logger).Log(
		"msg", "created installer",
		"path", setupPath,
	)

	return nil
}

// pipelineTargets is the full default run, in pipeline order.
func pipelineTargets() []string {
	return []string{
		"deps-python",
		"install-tools",
		"clean",
		"assemble",
		"package",
		"package-onefile",
		"copy-assets",
		"checksums",
		"installer",
	}
}

func fileRules(rules []manifest.StagingRule) []packagekit.FileRule {
	out := make([]packagekit.FileRule, 0, len(rules))
	for _, rule := range rules {
		out = append(out, packagekit.FileRule{
			Source:    rule.Source,
			Dest:      rule.Dest,
			Recursive: rule.Recursive,
		})
	}
	return out
}
