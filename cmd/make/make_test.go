package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPipelineTargets(t *testing.T) {
	t.Parallel()

	targets := pipelineTargets()

	// pipeline order: verification first, installer last
	require.Equal(t, "deps-python", targets[0])
	require.Equal(t, "installer", targets[len(targets)-1])

	seen := map[string]bool{}
	for _, target := range targets {
		require.False(t, seen[target], "duplicate target %s", target)
		require.NotContains(t, target, " ")
		require.Equal(t, strings.ToLower(target), target)
		seen[target] = true
	}
}
