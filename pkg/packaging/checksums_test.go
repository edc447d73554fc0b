package packaging

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

func TestWriteChecksums(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	p := testPackageOptions(fs)
	setupDist(t, fs, p.DistDir)

	require.NoError(t, p.WriteChecksums(context.TODO()))

	raw, err := afero.ReadFile(fs, filepath.Join(p.DistDir, ChecksumsFilename))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	require.Len(t, lines, 3)

	exeSum := sha256.Sum256([]byte("MZ fake exe"))
	require.Contains(t, lines, fmt.Sprintf("%s  WolfWire.exe", hex.EncodeToString(exeSum[:])))

	iconSum := sha256.Sum256([]byte("icon bytes"))
	require.Contains(t, lines, fmt.Sprintf("%s  assets/icon.ico", hex.EncodeToString(iconSum[:])))
}

func TestWriteChecksumsIdempotent(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	p := testPackageOptions(fs)
	setupDist(t, fs, p.DistDir)

	require.NoError(t, p.WriteChecksums(context.TODO()))
	first, err := afero.ReadFile(fs, filepath.Join(p.DistDir, ChecksumsFilename))
	require.NoError(t, err)

	// the sum file itself must not end up in the second run's output
	require.NoError(t, p.WriteChecksums(context.TODO()))
	second, err := afero.ReadFile(fs, filepath.Join(p.DistDir, ChecksumsFilename))
	require.NoError(t, err)

	require.Equal(t, first, second)
	require.NotContains(t, string(second), ChecksumsFilename)
}

func TestPlatformBinaryName(t *testing.T) {
	t.Parallel()

	var tests = []struct {
		platform PlatformFlavor
		in       string
		out      string
	}{
		{
			platform: Windows,
			in:       "WolfWire",
			out:      "WolfWire.exe",
		},
		{
			platform: Linux,
			in:       "WolfWire",
			out:      "WolfWire",
		},
		{
			platform: Darwin,
			in:       "WolfWire",
			out:      "WolfWire",
		},
	}

	for _, tt := range tests {
		require.Equal(t, tt.out, tt.platform.PlatformBinaryName(tt.in))
	}
}
