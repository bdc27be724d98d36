package flags

import (
	"testing"
	"time"

	opservice "github.com/ethereum-optimism/optimism/op-service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

// TestOptionalFlagsDontSetRequired asserts that all flags deemed optional set
// the Required field to false.
func TestOptionalFlagsDontSetRequired(t *testing.T) {
	for _, flag := range optionalFlags {
		reqFlag, ok := flag.(cli.RequiredFlag)
		require.True(t, ok)
		require.False(t, reqFlag.IsRequired())
	}
}

// TestUniqueFlags asserts that all flag names are unique, to avoid accidental conflicts between the many flags.
func TestUniqueFlags(t *testing.T) {
	seenCLI := make(map[string]struct{})
	for _, flag := range Flags {
		name := flag.Names()[0]
		if _, ok := seenCLI[name]; ok {
			t.Errorf("duplicate flag %s", name)
			continue
		}
		seenCLI[name] = struct{}{}
	}
}

func TestEnvVarFormat(t *testing.T) {
	for _, flag := range Flags {
		flagName := flag.Names()[0]

		t.Run(flagName, func(t *testing.T) {
			envFlagGetter, ok := flag.(interface {
				GetEnvVars() []string
			})
			require.True(t, ok, "must be able to cast the flag to an EnvVar interface")
			envFlags := envFlagGetter.GetEnvVars()
			require.Equal(t, 1, len(envFlags), "flags should have exactly one env var")
			require.Equal(t, opservice.FlagNameToEnvVarName(flagName, EnvVarPrefix), envFlags[0])
		})
	}
}

func TestCheckRequired(t *testing.T) {
	testCases := []struct {
		name        string
		args        []string
		shouldError bool
	}{
		{"suites set", []string{"app", "--suites", "suites.yaml"}, false},
		{"suites missing", []string{"app"}, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var checkErr error
			app := &cli.App{
				Flags: []cli.Flag{SuitesFile},
				Action: func(ctx *cli.Context) error {
					checkErr = CheckRequired(ctx)
					return nil
				},
			}
			require.NoError(t, app.Run(tc.args))
			if tc.shouldError {
				assert.ErrorContains(t, checkErr, "flag suites is required")
			} else {
				assert.NoError(t, checkErr)
			}
		})
	}
}

func TestExecutionTimingDefaults(t *testing.T) {
	app := &cli.App{
		Flags: ExecFlags,
		Action: func(ctx *cli.Context) error {
			assert.Equal(t, 100*time.Millisecond, ctx.Duration(PollInterval.Name))
			assert.Equal(t, 5*time.Second, ctx.Duration(JoinTimeout.Name))
			assert.Equal(t, 5*time.Second, ctx.Duration(TerminateGrace.Name))
			return nil
		},
	}
	require.NoError(t, app.Run([]string{"app"}))
}
