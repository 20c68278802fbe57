package button

import "github.com/cjeanneret/SweepGo/internal/debug"

// Dispatcher is the platform's per-button default handling, invoked on
// every press edge while the program has not claimed the buttons.
type Dispatcher interface {
	Dispatch(r Reading)
}

// DispatchFunc adapts a function to Dispatcher.
type DispatchFunc func(r Reading)

func (f DispatchFunc) Dispatch(r Reading) { f(r) }

type noDispatch struct{}

func (noDispatch) Dispatch(Reading) {}

// NoDispatch is the explicit "no default action" dispatcher installed when
// the buttons are claimed.
var NoDispatch Dispatcher = noDispatch{}

// LogDispatch stands in for the platform default button action on hosts
// that have none: it records the press.
type LogDispatch struct{}

func (LogDispatch) Dispatch(r Reading) {
	debug.Live("default action for %s button", r)
}
