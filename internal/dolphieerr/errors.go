// Copyright © 2024 Dolphie-Go Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package dolphieerr defines the structured error taxonomy used across
// Dolphie: every error that crosses a component boundary (sampler to tab
// runtime, command dispatcher to UI contract) carries a Kind so callers can
// classify without string matching.
package dolphieerr

import "fmt"

// Kind classifies an error per the propagation policy: the Tab Runtime
// reconnects on QueryTransient/Connection, terminates on Configuration,
// surfaces a notification and otherwise no-ops on QueryCommand/PrivilegeOptional,
// and resets the Metric Store on Invariant.
type Kind string

const (
	// Configuration errors are fatal at startup: malformed URI, invalid
	// refresh interval, bad heartbeat-table syntax, unreadable TLS material,
	// unknown panel name.
	Configuration Kind = "configuration"
	// Connection errors are non-fatal: initial connect failure or
	// connection loss mid-poll. The tab survives and may retry.
	Connection Kind = "connection"
	// QueryTransient aborts the in-flight sample cycle and schedules a
	// reconnect on the next tick.
	QueryTransient Kind = "query_transient"
	// QueryCommand is an informational command failure; it never reaches
	// the sampler and never changes sampling state.
	QueryCommand Kind = "query_command"
	// PrivilegeOptional marks an optional query unavailable until the
	// underlying variable or grant changes; logged once.
	PrivilegeOptional Kind = "privilege_optional"
	// ReplayFormat covers schema-version mismatches and malformed replay
	// payloads.
	ReplayFormat Kind = "replay_format"
	// Invariant is an internal consistency violation (e.g. a MetricSeries
	// whose length has diverged from the shared timestamp buffer).
	Invariant Kind = "invariant"
)

// Error is the concrete error type threaded through every component. It is
// deliberately narrower than a generic "error bag": Suggestion is the one
// piece of user-facing remediation text, everything else is for logs.
type Error struct {
	kind       Kind
	message    string
	suggestion string
	cause      error
}

// New creates an Error of the given Kind with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{kind: kind, message: message}
}

// Wrap creates an Error of the given Kind wrapping cause.
func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{kind: kind, message: message, cause: cause}
}

// WithSuggestion attaches remediation text shown to the user alongside the
// notification: every non-fatal condition produces exactly one
// notification with a severity and a title.
func (e *Error) WithSuggestion(s string) *Error {
	e.suggestion = s
	return e
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap satisfies the standard errors.Is/errors.As wrapping protocol.
func (e *Error) Unwrap() error { return e.cause }

// Kind returns the error's classification.
func (e *Error) Kind() Kind { return e.kind }

// Suggestion returns remediation text, possibly empty.
func (e *Error) Suggestion() string { return e.suggestion }

// Message returns the core, user-facing message without the wrapped cause.
func (e *Error) Message() string { return e.message }

// Is reports whether target is a *Error with the same Kind, so callers can
// write `errors.Is(err, dolphieerr.New(dolphieerr.Connection, ""))`-style
// comparisons, but in practice most callers use Classify + a switch.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.kind == other.kind
}

// Classify extracts the Kind from err if it is (or wraps) a *Error,
// defaulting to Connection for unrecognized errors reaching the Tab Runtime
// boundary, which is the conservative choice: an unrecognized DB error is
// treated the same as a dropped connection, triggering reconnect rather than
// silently continuing.
func Classify(err error) Kind {
	var de *Error
	for err != nil {
		if e, ok := err.(*Error); ok {
			de = e
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	if de == nil {
		return Connection
	}
	return de.kind
}
