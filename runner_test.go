package bgtask

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ── helpers ──────────────────────────────────────────────────────────────────

// syncBuffer is a goroutine-safe bytes.Buffer for capturing log output from
// concurrently running tasks.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestRunner(t *testing.T, verbose bool) (*Runner, *syncBuffer, *syncBuffer, string) {
	t.Helper()
	logFile := filepath.Join(t.TempDir(), "test.log")
	logBuf := &syncBuffer{}
	stdout := &syncBuffer{}
	sink := NewSink(WithLogFile(logFile), WithConsoleWriter(logBuf))
	t.Cleanup(func() { _ = sink.Close() })
	runner := NewRunner(WithSink(sink), WithVerbose(verbose), WithStdout(stdout))
	return runner, logBuf, stdout, logFile
}

func add(a, b int) int { return a + b }

func failing() error { return errors.New("boom") }

// ── Call ─────────────────────────────────────────────────────────────────────

func TestCallSuccess(t *testing.T) {
	runner, logBuf, stdout, _ := newTestRunner(t, true)

	res := runner.Call(add, 2, 3)

	require.Equal(t, StatusOK, res.Status)
	assert.True(t, res.OK())
	assert.Equal(t, 5, res.Value)
	assert.Contains(t, res.FuncName, "add")
	assert.Equal(t, "(2, 3)", res.ArgsRepr)
	assert.NoError(t, res.Err())

	// No error fields and no logging side effect on success.
	assert.Empty(t, res.Traceback)
	assert.Empty(t, res.ErrorType)
	assert.Zero(t, res.TimeEpoch)
	assert.Empty(t, logBuf.String())
	assert.Empty(t, stdout.String())
}

func TestCallErrorReturn(t *testing.T) {
	runner, logBuf, stdout, logFile := newTestRunner(t, true)

	res := runner.Call(failing)

	require.Equal(t, StatusError, res.Status)
	assert.Nil(t, res.Value)
	assert.Equal(t, "boom", res.ErrorValue)
	assert.Contains(t, res.ErrorType, "errorString")
	assert.Contains(t, res.Traceback, "boom")
	assert.Contains(t, res.Traceback, "goroutine")
	assert.NotEmpty(t, res.Host)
	assert.NotZero(t, res.TimeEpoch)
	assert.NotEmpty(t, res.TimeLabel)
	assert.EqualError(t, res.Err(), res.FuncName+": boom")

	assert.Contains(t, logBuf.String(), "call failed")
	assert.Contains(t, logBuf.String(), "func=")
	assert.Contains(t, stdout.String(), strings.Repeat("=", 70))
	assert.Contains(t, stdout.String(), "boom")

	// Raw trace is appended to the sink's file destination.
	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "boom")
}

func TestCallPanicIsCaptured(t *testing.T) {
	runner, logBuf, _, _ := newTestRunner(t, false)

	var res *Result
	require.NotPanics(t, func() {
		res = runner.Call(func() { panic("kaboom") })
	})

	require.Equal(t, StatusError, res.Status)
	assert.Contains(t, res.ErrorValue, "kaboom")
	assert.Contains(t, res.Traceback, "kaboom")
	assert.Contains(t, logBuf.String(), "call failed")
}

func TestCallNotInvocable(t *testing.T) {
	runner, _, _, _ := newTestRunner(t, false)

	res := runner.Call(42)

	require.Equal(t, StatusError, res.Status)
	assert.Equal(t, "int", res.FuncName)
	assert.Contains(t, res.ErrorValue, "not invocable")
}

func TestCallArityMismatchIsCaptured(t *testing.T) {
	runner, _, _, _ := newTestRunner(t, false)

	var res *Result
	require.NotPanics(t, func() {
		res = runner.Call(add, 1)
	})
	require.Equal(t, StatusError, res.Status)
}

func TestCallVerboseOff(t *testing.T) {
	runner, logBuf, stdout, _ := newTestRunner(t, false)

	res := runner.Call(failing)

	require.Equal(t, StatusError, res.Status)
	assert.Empty(t, stdout.String(), "verbose off must not print separator or trace")
	assert.Contains(t, logBuf.String(), "call failed", "structured line still reaches the logger")
}

func TestCallKwargs(t *testing.T) {
	runner, logBuf, _, _ := newTestRunner(t, false)

	fn := func(name string, kw Kwargs) (string, error) {
		if kw["fail"] == true {
			return "", fmt.Errorf("told to fail for %s", name)
		}
		return name, nil
	}

	res := runner.Call(fn, "job", Kwargs{"fail": false})
	require.Equal(t, StatusOK, res.Status)
	assert.Equal(t, "job", res.Value)
	assert.Equal(t, `("job")`, res.ArgsRepr)
	assert.Contains(t, res.KwargsRepr, "fail")

	res = runner.Call(fn, "job", Kwargs{"fail": true})
	require.Equal(t, StatusError, res.Status)
	assert.Contains(t, logBuf.String(), "kwargs=")
}

func TestCallReturnConventions(t *testing.T) {
	runner, _, _, _ := newTestRunner(t, false)

	res := runner.Call(func() {})
	require.Equal(t, StatusOK, res.Status)
	assert.Nil(t, res.Value)

	res = runner.Call(func() error { return nil })
	require.Equal(t, StatusOK, res.Status)
	assert.Nil(t, res.Value)

	res = runner.Call(func() (int, string) { return 7, "x" })
	require.Equal(t, StatusOK, res.Status)
	assert.Equal(t, []any{7, "x"}, res.Value)

	res = runner.Call(func() (int, error) { return 7, nil })
	require.Equal(t, StatusOK, res.Status)
	assert.Equal(t, 7, res.Value)
}

func TestCallNilArgument(t *testing.T) {
	runner, _, _, _ := newTestRunner(t, false)

	res := runner.Call(func(err error) bool { return err == nil }, nil)
	require.Equal(t, StatusOK, res.Status)
	assert.Equal(t, true, res.Value)
}

func TestErrorTimesMonotonic(t *testing.T) {
	runner, _, _, _ := newTestRunner(t, false)

	prev := 0.0
	for i := 0; i < 5; i++ {
		res := runner.Call(failing)
		require.Equal(t, StatusError, res.Status)
		assert.GreaterOrEqual(t, res.TimeEpoch, prev)
		prev = res.TimeEpoch
	}
}

func TestIdempotentRecordsMatchExceptTiming(t *testing.T) {
	runner, _, _, _ := newTestRunner(t, false)

	res1 := runner.Call(failing)
	res2 := runner.Call(failing)

	assert.Equal(t, res1.FuncName, res2.FuncName)
	assert.Equal(t, res1.ArgsRepr, res2.ArgsRepr)
	assert.Equal(t, res1.Status, res2.Status)
	assert.Equal(t, res1.ErrorType, res2.ErrorType)
	assert.Equal(t, res1.ErrorValue, res2.ErrorValue)
	assert.Equal(t, res1.Host, res2.Host)
}

func TestSinkFailureDoesNotMaskRecord(t *testing.T) {
	// A console-only sink has no file destination: the trace append is
	// skipped and the record is still complete.
	logBuf := &syncBuffer{}
	sink := NewSink(WithConsoleWriter(logBuf))
	runner := NewRunner(WithSink(sink), WithVerbose(false))

	res := runner.Call(failing)

	require.Equal(t, StatusError, res.Status)
	assert.Empty(t, sink.FilePaths())
	assert.Contains(t, logBuf.String(), "call failed")
}
