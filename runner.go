// Package bgtask runs units of work (Go functions or shell commands) and
// turns whatever happens to them into a uniform result record. Failures are
// captured, logged, and returned as data; they never propagate past the
// Runner. Launch schedules the same execution on a detached goroutine for
// fire-and-forget use.
package bgtask

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"reflect"
	"runtime"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/tvandergeer/bgtask/telemetry"
)

const separator = "======================================================================"

// Runner executes units of work and records the outcome. It is the single
// boundary where raised failures become data: nothing that happens inside the
// unit of work (a returned error, a panic, a value that is not even callable)
// escapes a Call.
type Runner struct {
	sink    *Sink
	verbose bool
	stdout  io.Writer
}

// Option configures a Runner.
type Option func(*Runner)

// WithSink directs failure records to the given sink instead of the
// process-wide default.
func WithSink(s *Sink) Option { return func(r *Runner) { r.sink = s } }

// WithVerbose controls whether failures also print a separator and the full
// trace to the runner's stdout (default true).
func WithVerbose(v bool) Option { return func(r *Runner) { r.verbose = v } }

// WithStdout redirects the verbose separator/trace output (default os.Stdout).
func WithStdout(w io.Writer) Option { return func(r *Runner) { r.stdout = w } }

// NewRunner constructs a Runner.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{verbose: true, stdout: os.Stdout}
	for _, opt := range opts {
		opt(r)
	}
	if r.sink == nil {
		r.sink = DefaultSink()
	}
	return r
}

var (
	defaultRunner     *Runner
	defaultRunnerOnce sync.Once
)

// Call runs fn with args on the process-wide default Runner.
func Call(fn any, args ...any) *Result {
	defaultRunnerOnce.Do(func() { defaultRunner = NewRunner() })
	return defaultRunner.Call(fn, args...)
}

// Call invokes fn with args synchronously in the calling goroutine and
// returns a fresh Result. On success the result carries fn's return value and
// nothing is logged. On any failure (returned error, panic, or fn not being
// invocable) the result carries the full failure record, one structured
// error line goes to the sink, and when verbose a separator plus the trace
// go to stdout. Failures never propagate past this call.
func (r *Runner) Call(fn any, args ...any) (res *Result) {
	args, kwargs := splitKwargs(args)
	res = &Result{
		FuncName:   funcName(fn),
		ArgsRepr:   renderArgs(args),
		KwargsRepr: renderKwargs(kwargs),
	}
	if kwargs != nil {
		args = append(args, kwargs)
	}

	defer func() {
		if p := recover(); p != nil {
			r.recordFailure(res, fn, fmt.Sprintf("panic: %v", p), typeName(p))
		}
		telemetry.CallsTotal.WithLabelValues(string(res.Status)).Inc()
	}()

	value, err := invoke(fn, args)
	if err != nil {
		r.recordFailure(res, fn, err.Error(), typeName(err))
		return res
	}

	res.Status = StatusOK
	res.Value = value
	return res
}

// recordFailure fills the error branch of res and performs the logging side
// effects. The timestamps are taken here, at the moment the failure is
// observed.
func (r *Runner) recordFailure(res *Result, fn any, errText, errType string) {
	now := time.Now()
	res.Status = StatusError
	res.Value = nil
	res.Traceback = errText + "\n\n" + string(debug.Stack())
	res.ErrorType = errType
	res.ErrorValue = errText
	res.Doc = docOf(fn)
	res.OriginModule = originModule(res.FuncName)
	res.Host = hostFQDN()
	res.TimeEpoch = float64(now.UnixNano()) / 1e9
	res.TimeLabel = now.Format("2006_0102-Mon-150405")

	if r.verbose {
		fmt.Fprintln(r.stdout, separator)
	}
	r.sink.Logger().Error("call failed",
		slog.String("func", res.FuncName),
		slog.String("args", res.ArgsRepr),
		slog.String("kwargs", res.KwargsRepr),
	)
	if r.verbose {
		fmt.Fprintln(r.stdout, res.Traceback)
	}
	r.sink.AppendRaw(res.Traceback)
}

// invoke calls fn with args via reflection. The trailing return value is
// split off as the error when fn declares one. Arity or type mismatches make
// reflect panic; the caller's recover turns that into the error branch.
func invoke(fn any, args []any) (any, error) {
	v := reflect.ValueOf(fn)
	if !v.IsValid() || v.Kind() != reflect.Func {
		return nil, fmt.Errorf("not invocable: %s", funcName(fn))
	}

	in := make([]reflect.Value, len(args))
	t := v.Type()
	for i, a := range args {
		if a == nil {
			// Untyped nil needs the parameter's declared type.
			var pt reflect.Type
			if t.IsVariadic() && i >= t.NumIn()-1 {
				pt = t.In(t.NumIn() - 1).Elem()
			} else if i < t.NumIn() {
				pt = t.In(i)
			} else {
				pt = reflect.TypeOf((*any)(nil)).Elem()
			}
			in[i] = reflect.Zero(pt)
			continue
		}
		in[i] = reflect.ValueOf(a)
	}

	out := v.Call(in)

	if n := len(out); n > 0 {
		if last := out[n-1]; last.Type() == errorInterface {
			if !last.IsNil() {
				return nil, last.Interface().(error)
			}
			out = out[:n-1]
		}
	}
	switch len(out) {
	case 0:
		return nil, nil
	case 1:
		return out[0].Interface(), nil
	default:
		values := make([]any, len(out))
		for i, o := range out {
			values[i] = o.Interface()
		}
		return values, nil
	}
}

var errorInterface = reflect.TypeOf((*error)(nil)).Elem()

// splitKwargs pulls a trailing Kwargs value out of args.
func splitKwargs(args []any) ([]any, Kwargs) {
	if n := len(args); n > 0 {
		if kw, ok := args[n-1].(Kwargs); ok {
			return args[:n-1], kw
		}
	}
	return args, nil
}

// funcName resolves a display name for fn: the runtime function name when fn
// is introspectable, otherwise a description of its type.
func funcName(fn any) string {
	v := reflect.ValueOf(fn)
	if v.IsValid() && v.Kind() == reflect.Func {
		if f := runtime.FuncForPC(v.Pointer()); f != nil {
			name := f.Name()
			if i := strings.LastIndex(name, "/"); i >= 0 {
				name = name[i+1:]
			}
			return name
		}
	}
	return fmt.Sprintf("%T", fn)
}

// originModule extracts the package portion of a resolved function name.
func originModule(name string) string {
	if i := strings.Index(name, "."); i > 0 {
		return name[:i]
	}
	return ""
}

func docOf(fn any) string {
	if d, ok := fn.(Documented); ok {
		return d.Doc()
	}
	return ""
}

func typeName(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%T", v)
}

func renderArgs(args []any) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = fmt.Sprintf("%#v", a)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

func renderKwargs(kw Kwargs) string {
	if len(kw) == 0 {
		return ""
	}
	return fmt.Sprintf("%v", map[string]any(kw))
}

// hostFQDN returns the fully qualified host name, falling back to the bare
// hostname when reverse lookup is unavailable.
func hostFQDN() string {
	host, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	addrs, err := net.LookupHost(host)
	if err != nil {
		return host
	}
	for _, addr := range addrs {
		names, err := net.LookupAddr(addr)
		if err != nil || len(names) == 0 {
			continue
		}
		if name := strings.TrimSuffix(names[0], "."); name != "" {
			return name
		}
	}
	return host
}
