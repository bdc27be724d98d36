package testrun

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-testrun/types"
)

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
}

func testConfig(t *testing.T, suitesYAML string) *Config {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "suites.yaml")
	require.NoError(t, os.WriteFile(path, []byte(suitesYAML), 0o644))
	return &Config{
		SuitesFile:     path,
		ResultsDir:     filepath.Join(dir, "results"),
		RunOnce:        true,
		PollInterval:   20 * time.Millisecond,
		JoinTimeout:    time.Second,
		TerminateGrace: 500 * time.Millisecond,
		HealthzAddr:    "127.0.0.1:0",
		Log:            log.NewLogger(log.DiscardHandler()),
	}
}

func newTestRun(t *testing.T, cfg *Config, shutdown func(error)) *testRun {
	t.Helper()
	if shutdown == nil {
		shutdown = func(error) {}
	}
	tr, err := New(context.Background(), cfg, "test", shutdown)
	require.NoError(t, err)
	tr.formatter = NewConsoleResultFormatter(cfg.Log, io.Discard, false)
	t.Cleanup(func() { _ = tr.Stop(context.Background()) })
	return tr
}

func TestNewRequiresConfig(t *testing.T) {
	_, err := New(context.Background(), nil, "test", nil)
	require.Error(t, err)
}

func TestNewFailsOnBadSuitesFile(t *testing.T) {
	cfg := testConfig(t, "suites: []\n")
	_, err := New(context.Background(), cfg, "test", nil)
	require.ErrorContains(t, err, "failed to create registry")
}

func TestRunOncePass(t *testing.T) {
	requireShell(t)
	var shutdownCalled atomic.Bool
	tr := newTestRun(t, testConfig(t, `
suites:
  - name: ok
    argv: ["/bin/sh", "-c", "echo fine"]
`), func(error) { shutdownCalled.Store(true) })

	require.NoError(t, tr.Start(context.Background()))
	require.Eventually(t, shutdownCalled.Load, 5*time.Second, 10*time.Millisecond)

	result := tr.LastResult()
	require.NotNil(t, result)
	assert.Equal(t, types.TestStatusPass, result.Status)
}

func TestRunOnceExitCodes(t *testing.T) {
	requireShell(t)
	tests := []struct {
		name      string
		suites    string
		isFailure bool
		isRuntime bool
	}{
		{
			name: "test failures",
			suites: `
suites:
  - name: partial
    argv: ["/bin/sh", "-c", "exit 1"]
`,
			isFailure: true,
		},
		{
			name: "fatal suite",
			suites: `
suites:
  - name: ok
    argv: ["/bin/sh", "-c", "true"]
  - name: crashed
    argv: ["/bin/sh", "-c", "exit 5"]
`,
			isRuntime: true,
		},
		{
			name: "launch failure",
			suites: `
suites:
  - name: missing
    argv: ["/definitely/not/a/real/binary"]
`,
			isRuntime: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := newTestRun(t, testConfig(t, tt.suites), nil)
			err := tr.Start(context.Background())
			require.Error(t, err)
			assert.Equal(t, tt.isFailure, IsTestFailureError(err))
			assert.Equal(t, tt.isRuntime, IsRuntimeError(err))
		})
	}
}

func TestContinuousModeRunsRepeatedly(t *testing.T) {
	requireShell(t)
	cfg := testConfig(t, `
suites:
  - name: tick
    argv: ["/bin/sh", "-c", "echo tick"]
`)
	cfg.RunOnce = false
	cfg.RunInterval = 50 * time.Millisecond
	tr := newTestRun(t, cfg, nil)

	require.NoError(t, tr.Start(context.Background()))
	first := tr.LastResult()
	require.NotNil(t, first)

	require.Eventually(t, func() bool {
		return tr.LastResult().RunID != first.RunID
	}, 10*time.Second, 20*time.Millisecond)

	require.NoError(t, tr.Stop(context.Background()))
	assert.True(t, tr.Stopped())
	require.NoError(t, tr.Stop(context.Background()))
}

func TestLiveRequestTriggersRun(t *testing.T) {
	requireShell(t)
	cfg := testConfig(t, `
suites:
  - name: tick
    argv: ["/bin/sh", "-c", "echo tick"]
`)
	cfg.RunOnce = false
	cfg.RunInterval = time.Hour
	cfg.Live = LiveConfig{Enabled: true, Addr: "127.0.0.1:0"}
	tr := newTestRun(t, cfg, nil)

	require.NoError(t, tr.Start(context.Background()))
	first := tr.LastResult()
	require.NotNil(t, first)

	tr.requestRun()
	tr.requestRun() // coalesced with the pending request
	require.Eventually(t, func() bool {
		return tr.LastResult().RunID != first.RunID
	}, 10*time.Second, 20*time.Millisecond)
}

func TestStopCancelsRunningSuite(t *testing.T) {
	requireShell(t)
	cfg := testConfig(t, `
suites:
  - name: quick
    argv: ["/bin/sh", "-c", "true"]
`)
	cfg.RunOnce = false
	cfg.RunInterval = 10 * time.Millisecond
	tr := newTestRun(t, cfg, nil)
	require.NoError(t, tr.Start(context.Background()))

	start := time.Now()
	require.NoError(t, tr.Stop(context.Background()))
	assert.Less(t, time.Since(start), 10*time.Second)
}
