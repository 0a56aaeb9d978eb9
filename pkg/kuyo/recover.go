// recover.go normalizes panic values and non-error failures into errors.

package kuyo

import (
	"errors"
	"fmt"
	"runtime/debug"
)

// PanicError wraps a recovered panic value together with the stack of the
// panicking goroutine.
type PanicError struct {
	Value any
	stack string
}

// NewPanicError records the current stack. Call it from the deferred function
// that recovered value so the stack still includes the panic site.
func NewPanicError(value any) *PanicError {
	return &PanicError{Value: value, stack: string(debug.Stack())}
}

func (e *PanicError) Error() string {
	return formatRecovered(e.Value)
}

// Stack returns the goroutine stack captured at recovery.
func (e *PanicError) Stack() string {
	return e.stack
}

// Unwrap exposes the panic value when it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// NormalizeError turns any failure value into an error. Errors are returned
// unchanged; nil and other values become a synthetic error describing them.
func NormalizeError(v any) error {
	switch val := v.(type) {
	case nil:
		return errors.New("unknown error (nil)")
	case error:
		return val
	case string:
		return errors.New(val)
	default:
		return fmt.Errorf("non-error value: %v", val)
	}
}

// stackOf returns the first stack carried by err's chain.
func stackOf(err error) (string, bool) {
	var st interface{ Stack() string }
	if errors.As(err, &st) {
		if s := st.Stack(); s != "" {
			return s, true
		}
	}
	return "", false
}

// Recover captures a panic through c and returns the recovered value.
// Unlike the adapter guards, Recover does NOT re-panic.
//
// Use in defer:
//
//	func worker() {
//	    defer kuyo.Recover(engine, nil)
//	    // code that might panic
//	}
func Recover(c Capturer, extra map[string]any) any {
	r := recover()
	if r == nil {
		return nil
	}

	ex := copyMap(extra)
	if ex == nil {
		ex = make(map[string]any, 1)
	}
	if _, ok := ex["source"]; !ok {
		ex["source"] = "recover"
	}

	c.CaptureException(NewPanicError(r), ex)
	return r
}

// formatRecovered formats a recovered panic value as a string.
func formatRecovered(recovered any) string {
	if recovered == nil {
		return "<nil>"
	}
	if err, ok := recovered.(error); ok {
		return err.Error()
	}
	return fmt.Sprintf("%v", recovered)
}
