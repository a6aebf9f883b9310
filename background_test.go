package bgtask

import (
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestLaunchFailingTaskDoesNotRaise(t *testing.T) {
	runner, logBuf, _, _ := newTestRunner(t, false)

	var task *BackgroundTask
	require.NotPanics(t, func() {
		task = runner.Launch(func() error { return errors.New("immediate failure") })
	})
	require.NotNil(t, task)
	assert.Len(t, task.ID(), 8)

	require.Eventually(t, func() bool {
		return strings.Contains(logBuf.String(), "call failed")
	}, 2*time.Second, 10*time.Millisecond, "error record must eventually reach the logger")
}

func TestLaunchStringRunsShellCommand(t *testing.T) {
	runner, logBuf, _, _ := newTestRunner(t, false)
	marker := t.TempDir() + "/done"

	start := time.Now()
	task := runner.Launch("sleep 0.2 && touch "+marker, "these", "args", "are", "ignored")
	elapsed := time.Since(start)

	require.NotNil(t, task)
	assert.Less(t, elapsed, 150*time.Millisecond, "constructor must not wait for the command")

	require.Eventually(t, func() bool {
		return fileExists(marker)
	}, 3*time.Second, 20*time.Millisecond)
	assert.NotContains(t, logBuf.String(), "call failed")
}

func TestLaunchManyFailingTasks(t *testing.T) {
	runner, logBuf, _, _ := newTestRunner(t, false)

	const n = 50
	for i := 0; i < n; i++ {
		runner.Launch(func() error { return errors.New("worker bee error") })
	}

	require.Eventually(t, func() bool {
		return strings.Count(logBuf.String(), "call failed") == n
	}, 5*time.Second, 20*time.Millisecond)

	// Every line is intact: one msg per line, no interleaved fragments.
	for _, line := range strings.Split(strings.TrimSpace(logBuf.String()), "\n") {
		assert.Equal(t, 1, strings.Count(line, "msg="), "corrupted log line: %q", line)
	}
}
