// Package hooks keeps the teacher's lifecycle-hook extensibility point
// (custom instrumentation callbacks a user can attach to a cached
// function) and adds the verbosity-gated state logging required by
// spec.md §6/§4.6: a log line of the form " <STATE> <call_id>" for
// MEMORIZING, REMEMBERED, and CORRUPTED, emitted through logrus; colors are
// turned off when the NO_COLOR environment variable is set.
package hooks

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

// HookFunc is called on lifecycle events with the call's argument.
type HookFunc func(arg any) error

// HookFuncError is called whenever another hook errors or panics. It must
// never panic itself.
type HookFuncError func(err error)

// Hooks holds the set of lifecycle hooks plus the verbosity-controlled
// state logger.
type Hooks struct {
	OnSet     HookFunc      // called when a Set operation starts
	OnGet     HookFunc      // called when a Get operation starts
	OnExecute HookFunc      // called just before the wrapped function runs (EXECUTE branch entered)
	OnDone    HookFunc      // called after a function execution completes
	LogError  HookFuncError // called on any hook error or panic, and on a panic in the wrapped function

	// Verbosity gates the MEMORIZING/REMEMBERED state log lines: 0 = quiet,
	// 1 = log refresh events, 2 = also log cache hits (spec.md §3).
	Verbosity int
}

// State names the three cache-engine events a CachedFunction can log, per
// spec.md §4.6/§6.
type State string

const (
	Memorizing State = "MEMORIZING"
	Remembered State = "REMEMBERED"
	Corrupted  State = "CORRUPTED"
)

var log = newDefaultLogger()

func newDefaultLogger() *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{
		DisableColors:    os.Getenv("NO_COLOR") != "",
		FullTimestamp:    true,
		DisableTimestamp: false,
	})
	return l
}

// LogState emits " <STATE> <call_id>" at the verbosity threshold named in
// spec.md §6: MEMORIZING/CORRUPTED require Verbosity>=1, REMEMBERED
// requires Verbosity>=2.
func (h *Hooks) LogState(state State, callID string) {
	threshold := 1
	if state == Remembered {
		threshold = 2
	}
	if h.Verbosity < threshold {
		return
	}
	msg := fmt.Sprintf(" %s %s", state, callID)
	switch state {
	case Corrupted:
		log.Warn(msg)
	default:
		log.Info(msg)
	}
}

// Run executes fn with arg, recovering from a panic or error and routing it
// through LogError without ever panicking itself.
func (h *Hooks) Run(fn HookFunc, arg any) {
	if fn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			h.safeLogError(toError(r))
		}
	}()
	if err := fn(arg); err != nil {
		h.safeLogError(err)
	}
}

func (h *Hooks) safeLogError(err error) {
	if h.LogError == nil {
		return
	}
	defer func() { recover() }()
	h.LogError(err)
}

func toError(r any) error {
	switch v := r.(type) {
	case error:
		return v
	case string:
		return fmt.Errorf("%s", v)
	default:
		return fmt.Errorf("%v", v)
	}
}
