package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubstituteArgs(t *testing.T) {
	p := Placeholders{ResultsDir: "/tmp/results/testrun-abc", RunID: "abc"}
	got := SubstituteArgs([]string{"robot", "--outputdir", "{results}/{suite}", "--name", "{suite}-{run_id}", "plain"}, "smoke", p)
	assert.Equal(t, []string{"robot", "--outputdir", "/tmp/results/testrun-abc/smoke", "--name", "smoke-abc", "plain"}, got)
}

func TestSuiteMetadataCommandSpec(t *testing.T) {
	s := SuiteMetadata{
		Name:    "api",
		Argv:    []string{"pabot", "--outputdir", "{results}"},
		Env:     map[string]string{"REPORT": "{results}/{suite}.xml", "FIXED": "1"},
		Dir:     "/work/{suite}",
		Timeout: time.Minute,
		Emit:    false,
	}
	spec := s.CommandSpec(Placeholders{ResultsDir: "/r", RunID: "id"})

	assert.Equal(t, []string{"pabot", "--outputdir", "/r"}, spec.Argv)
	assert.Equal(t, map[string]string{"REPORT": "/r/api.xml", "FIXED": "1"}, spec.Env)
	assert.Equal(t, "/work/api", spec.Dir)
	assert.False(t, spec.Emit)

	// The metadata itself is untouched.
	assert.Equal(t, "{results}/{suite}.xml", s.Env["REPORT"])
	require.Equal(t, "pabot --outputdir {results}", s.CommandLine())
}
