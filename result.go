package bgtask

import "fmt"

// Status is the outcome of a recorded call.
type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// Kwargs carries named arguments for a unit of work. Go has no keyword
// arguments, so a trailing Kwargs value passed to Call is rendered into the
// result's KwargsRepr and then handed to the function as a regular argument.
type Kwargs map[string]any

// Documented is implemented by units of work that carry a self-description.
// The description ends up in Result.Doc on the error path.
type Documented interface {
	Doc() string
}

// Result records a single execution of a unit of work. Exactly one of the
// value branch (Status == StatusOK, Value set) or the error branch (Status ==
// StatusError, Traceback/ErrorType/... set) is populated. A Result is created
// fresh for every call and is never mutated after it is returned.
type Result struct {
	FuncName   string `json:"func_name"`
	ArgsRepr   string `json:"args_repr"`
	KwargsRepr string `json:"kwargs_repr,omitempty"`
	Status     Status `json:"status"`

	// Set when Status == StatusOK.
	Value any `json:"value,omitempty"`

	// Set when Status == StatusError. TimeEpoch/TimeLabel are captured at
	// the moment the failure is observed, not at invocation start.
	Traceback    string  `json:"traceback,omitempty"`
	ErrorType    string  `json:"error_type,omitempty"`
	ErrorValue   string  `json:"error_value,omitempty"`
	Doc          string  `json:"doc,omitempty"`
	OriginModule string  `json:"origin_module,omitempty"`
	Host         string  `json:"host,omitempty"`
	TimeEpoch    float64 `json:"time_epoch,omitempty"`
	TimeLabel    string  `json:"time_label,omitempty"`
}

// OK reports whether the call returned normally.
func (r *Result) OK() bool { return r.Status == StatusOK }

// Err returns the failure as an error, or nil when the call succeeded.
func (r *Result) Err() error {
	if r.Status != StatusError {
		return nil
	}
	return fmt.Errorf("%s: %s", r.FuncName, r.ErrorValue)
}
