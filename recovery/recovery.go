// Package recovery decides how the pipeline reacts when a stage fails for
// one page: abort the run, or degrade that page and keep going.
package recovery

// Strategy is consulted once per failure. Implementations must be safe for
// concurrent use; page workers report failures in parallel.
type Strategy interface {
	OnError(err error, location Location) Action
}

// Location identifies where a failure happened.
type Location struct {
	Page      int
	Component string
}

// Action is a Strategy's verdict.
type Action int

const (
	// ActionFail aborts the whole run.
	ActionFail Action = iota
	// ActionSkip degrades the page to an empty result and continues.
	ActionSkip
)
