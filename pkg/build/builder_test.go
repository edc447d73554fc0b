package build

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPyinstallerArgs(t *testing.T) {
	t.Parallel()

	iconPath := filepath.Join("/stage", "assets", "icon.ico")

	var tests = []struct {
		onefile bool
		out     []string
	}{
		{
			onefile: false,
			out:     []string{"--noconfirm", "main.py"},
		},
		{
			onefile: true,
			out: []string{
				"--noconfirm",
				"--onefile",
				"--windowed",
				"--icon", iconPath,
				"--name", "WolfWire",
				"main.py",
			},
		},
	}

	b := New()
	for _, tt := range tests {
		require.Equal(t, tt.out, b.pyinstallerArgs(tt.onefile, iconPath))
	}
}

func TestPackageOnefileIconPath(t *testing.T) {
	t.Parallel()

	b := New(WithBuildDir(t.TempDir()))

	var gotArgs []string
	b.execCC = func(ctx context.Context, argv0 string, args ...string) *exec.Cmd {
		gotArgs = args
		return helperCommandContext(ctx, argv0, args...)
	}

	require.NoError(t, b.PackageOnefile(context.TODO()))

	iconIdx := -1
	for i, arg := range gotArgs {
		if arg == "--icon" {
			iconIdx = i
		}
	}
	require.NotEqual(t, -1, iconIdx)

	// pyinstaller's cwd is the build dir, so the default
	// caller-relative icon path must cross over absolutized
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.True(t, filepath.IsAbs(gotArgs[iconIdx+1]))
	require.Equal(t, filepath.Join(wd, "assets", "icon.ico"), gotArgs[iconIdx+1])
}

func TestParsePythonVersion(t *testing.T) {
	t.Parallel()

	var tests = []struct {
		in    string
		out   string
		isErr bool
	}{
		{
			in:  "Python 3.11.4",
			out: "3.11.4",
		},
		{
			in:  "Python 3.8.0\n",
			out: "3.8.0",
		},
		{
			in:    "Python three",
			isErr: true,
		},
	}

	for _, tt := range tests {
		v, err := parsePythonVersion(tt.in)
		if tt.isErr {
			require.Error(t, err)
			continue
		}
		require.NoError(t, err)
		require.Equal(t, tt.out, v.String())
	}
}

func TestDepsPython(t *testing.T) {
	t.Parallel()

	b := New()
	b.execCC = helperCommandContext

	require.NoError(t, b.DepsPython(context.TODO()))
}

func TestInstallToolsPresentIsNoop(t *testing.T) {
	t.Parallel()

	b := New()
	b.lookPath = func(name string) (string, error) {
		return filepath.Join("/usr/bin", name), nil
	}
	b.execCC = func(ctx context.Context, argv0 string, args ...string) *exec.Cmd {
		t.Fatalf("unexpected exec of %s %v with tool already on PATH", argv0, args)
		return nil
	}

	require.NoError(t, b.InstallTools(context.TODO()))
}

func TestInstallToolsMissing(t *testing.T) {
	t.Parallel()

	b := New()
	b.lookPath = func(name string) (string, error) {
		return "", exec.ErrNotFound
	}
	b.execCC = helperCommandContext

	require.NoError(t, b.InstallTools(context.TODO()))
}

func TestAssembleMissingSourceDir(t *testing.T) {
	t.Parallel()

	b := New(
		WithSourceDir(filepath.Join(t.TempDir(), "nonesuch")),
		WithBuildDir(t.TempDir()),
	)

	err := b.Assemble(context.TODO())
	require.Error(t, err)
	require.Contains(t, err.Error(), "does not exist")
}

func TestCleanAssemble(t *testing.T) {
	t.Parallel()

	scratch := t.TempDir()
	sourceDir := filepath.Join(scratch, "source_files")
	buildDir := filepath.Join(scratch, "build")

	require.NoError(t, os.MkdirAll(sourceDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(sourceDir, "main.py"), []byte("print('hi')\n"), 0644))

	// stale content that Clean must remove
	require.NoError(t, os.MkdirAll(buildDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(buildDir, "stale.txt"), []byte("old"), 0644))

	b := New(
		WithSourceDir(sourceDir),
		WithBuildDir(buildDir),
	)

	require.NoError(t, b.Clean(context.TODO()))
	require.NoError(t, b.Assemble(context.TODO()))

	_, err := os.Stat(filepath.Join(buildDir, "stale.txt"))
	require.True(t, os.IsNotExist(err))

	copied, err := os.ReadFile(filepath.Join(buildDir, "main.py"))
	require.NoError(t, err)
	require.Equal(t, "print('hi')\n", string(copied))
}

func TestDistDir(t *testing.T) {
	t.Parallel()

	b := New(WithBuildDir("build"))
	require.Equal(t, filepath.Join("build", "dist"), b.DistDir())

	require.Equal(t, "WolfWire.exe", b.PlatformBinaryName("WolfWire"))
	require.Equal(t, "WolfWire.exe", b.PlatformBinaryName("WolfWire.exe"))
}

// helperCommandContext swaps real commands for TestHelperProcess, per
// the os/exec test convention.
func helperCommandContext(ctx context.Context, command string, args ...string) *exec.Cmd {
	cs := []string{"-test.run=TestHelperProcess", "--", command}
	cs = append(cs, args...)
	cmd := exec.CommandContext(ctx, os.Args[0], cs...)
	cmd.Env = []string{"GO_WANT_HELPER_PROCESS=1"}
	return cmd
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	defer os.Exit(0)

	args := os.Args
	for len(args) > 0 {
		if args[0] == "--" {
			args = args[1:]
			break
		}
		args = args[1:]
	}

	if len(args) == 0 {
		fmt.Fprintf(os.Stderr, "No command\n")
		os.Exit(2)
	}

	cmd, args := args[0], args[1:]
	argStr := strings.Join(args, " ")

	switch {
	case cmd == "python" && argStr == "--version":
		fmt.Println("Python 3.11.4")
	case cmd == "python" && argStr == "-m pip --version":
		fmt.Println("pip 23.2.1 from /usr/lib/python3.11/site-packages/pip (python 3.11)")
	case cmd == "python" && strings.HasPrefix(argStr, "-m pip install"):
		fmt.Println("Successfully installed pyinstaller")
	case cmd == "pyinstaller":
		fmt.Println("Building EXE from EXE-00.toc completed successfully.")
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q %q\n", cmd, argStr)
		os.Exit(2)
	}
}
