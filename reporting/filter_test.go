package reporting

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-testrun/execution"
)

func TestNoiseFilterDefaults(t *testing.T) {
	f, err := NewNoiseFilter(nil)
	require.NoError(t, err)

	noise := []string{
		"[ ERROR ] Error in file 'x': Importing listener 'allure_console_listener' failed",
		"PYTHONPATH: /opt/libs",
		"/usr/lib/python3/site-packages/urllib3/connectionpool.py:1061: InsecureRequestWarning: Unverified HTTPS request",
		"  warnings.warn(",
		"Traceback (most recent call last):",
		"  None  ",
		"\x1b[31mDebugLibrary not found\x1b[0m",
	}
	for _, line := range noise {
		assert.True(t, f.IsNoise(line), line)
	}

	kept := []string{
		"Login Test                                                     | FAIL |",
		"AssertionError: expected 200 but got 500",
		"None of the elements matched",
		"",
	}
	for _, line := range kept {
		assert.False(t, f.IsNoise(line), line)
	}
}

func TestNoiseFilterExtraPatterns(t *testing.T) {
	f, err := NewNoiseFilter([]string{`^DeprecationWarning:`, `ResourceWarning`})
	require.NoError(t, err)
	assert.True(t, f.IsNoise("DeprecationWarning: old api"))
	assert.True(t, f.IsNoise("sys:1: ResourceWarning: unclosed file"))
	assert.False(t, f.IsNoise("see DeprecationWarning: above"))

	_, err = NewNoiseFilter([]string{"("})
	require.ErrorContains(t, err, "invalid noise pattern")
}

func TestNoiseFilterApplyLeavesOriginal(t *testing.T) {
	f, err := NewNoiseFilter(nil)
	require.NoError(t, err)

	res := &execution.Result{
		Stdout: []execution.Line{{Stream: execution.Stdout, Text: "urllib3 in stdout is kept"}},
		Stderr: []execution.Line{
			{Stream: execution.Stderr, Text: "PYTHONPATH: x", Index: 0},
			{Stream: execution.Stderr, Text: "real error", Index: 1},
		},
		ExitCode: 1,
	}
	filtered := f.Apply(res)

	require.Len(t, filtered.Stderr, 1)
	assert.Equal(t, "real error", filtered.Stderr[0].Text)
	assert.Equal(t, 1, filtered.Stderr[0].Index, "indexes keep their original position")
	assert.Len(t, filtered.Stdout, 1)
	assert.Equal(t, 1, filtered.ExitCode)
	assert.Len(t, res.Stderr, 2, "original result is untouched")

	var nilFilter *NoiseFilter
	assert.Same(t, res, nilFilter.Apply(res))
}
