package testrun

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorTypes(t *testing.T) {
	base := errors.New("suites file missing")
	rt := NewRuntimeError(base)
	wrapped := fmt.Errorf("failed to start: %w", rt)

	assert.True(t, IsRuntimeError(wrapped))
	assert.False(t, IsTestFailureError(wrapped))
	assert.ErrorIs(t, wrapped, base)
	assert.Equal(t, "runtime error: suites file missing", rt.Error())

	tf := NewTestFailureError("2 suites failed")
	assert.True(t, IsTestFailureError(fmt.Errorf("run: %w", tf)))
	assert.False(t, IsRuntimeError(tf))
	assert.Equal(t, "test failure: 2 suites failed", tf.Error())

	assert.False(t, IsRuntimeError(nil))
	assert.False(t, IsTestFailureError(nil))
}
