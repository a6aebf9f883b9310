package bgtask

import (
	"github.com/google/uuid"

	"github.com/tvandergeer/bgtask/telemetry"
)

// BackgroundTask is the handle for one detached unit of work. It is fire and
// forget: there is no way to join, cancel, or fetch the result. Failures are
// visible only through the runner's sink.
type BackgroundTask struct {
	id   string
	fn   any
	args []any
}

// ID returns the task's short correlation id.
func (t *BackgroundTask) ID() string { return t.id }

// Launch runs fn with args on the process-wide default Runner, detached from
// the caller. See (*Runner).Launch.
func Launch(fn any, args ...any) *BackgroundTask {
	defaultRunnerOnce.Do(func() { defaultRunner = NewRunner() })
	return defaultRunner.Launch(fn, args...)
}

// Launch schedules fn with args on its own goroutine and returns immediately.
// If fn is a string it is run as a shell command instead, and any args are
// ignored (the command replaces the function). The goroutine invokes Call and
// discards the result; it does not block process exit and its completion is
// never reported back.
func (r *Runner) Launch(fn any, args ...any) *BackgroundTask {
	t := &BackgroundTask{
		id:   uuid.New().String()[:8],
		fn:   fn,
		args: args,
	}
	if cmd, ok := fn.(string); ok {
		t.fn = func() int { return Run(cmd) }
		t.args = nil
	}

	telemetry.BackgroundTasksLaunched.Inc()

	// Detached on purpose: the result is owned by the sink, not the caller.
	go func() {
		_ = r.Call(t.fn, t.args...)
	}()

	return t
}
