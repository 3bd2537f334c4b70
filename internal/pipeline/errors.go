// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyCommand is wrapped by the ConfigError returned for an empty argv.
	ErrEmptyCommand = errors.New("empty command")
	// ErrStageStarted is wrapped when a materialized stage is reconfigured.
	ErrStageStarted = errors.New("stage already started")
	// ErrStdoutConsumed is wrapped when a stage's stdout already has a reader.
	ErrStdoutConsumed = errors.New("stdout already consumed")
	// ErrStdinClosed is wrapped when the input writer is requested after
	// the chain's input was closed.
	ErrStdinClosed = errors.New("stdin already closed")
)

// ConfigError reports an invalid argv, route or environment policy. It is
// returned before anything is spawned.
type ConfigError struct {
	Msg string
	Err error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *ConfigError) Unwrap() error { return e.Err }

func configErrorf(format string, args ...any) error {
	return &ConfigError{Msg: fmt.Sprintf(format, args...)}
}

// StateError reports an operation that the stage's lifecycle forbids,
// such as redirecting a stage that is already running.
type StateError struct {
	Stage *Stage
	Msg   string
	Err   error
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s: %s", e.Stage.name(), e.Msg)
}

func (e *StateError) Unwrap() error { return e.Err }

// AttachError reports a pipe that can't be made, usually because one side
// is already running or its stdout is already spoken for.
type AttachError struct {
	From, To *Stage
	Msg      string
	Err      error
}

func (e *AttachError) Error() string {
	from, to := "?", "?"
	if e.From != nil {
		from = e.From.name()
	}
	if e.To != nil {
		to = e.To.name()
	}
	return fmt.Sprintf("can't pipe %s into %s: %s", from, to, e.Msg)
}

func (e *AttachError) Unwrap() error { return e.Err }

// ProcessError is returned by Wait when a stage of the chain exited
// non-zero. Stage is the first failing stage found scanning from the tail
// toward the head; Stdout and Stderr are the tail's captured output.
type ProcessError struct {
	Code   int
	Stage  *Stage
	Stdout []byte
	Stderr []byte
}

func (e *ProcessError) Error() string {
	if e.Code < 0 {
		return fmt.Sprintf("command %s died with signal %d", e.Stage.name(), -e.Code)
	}
	return fmt.Sprintf("command %s returned non-zero exit status %d", e.Stage.name(), e.Code)
}

// ExitCode returns the failing stage's exit code.
func (e *ProcessError) ExitCode() int { return e.Code }

// IsConfig reports whether err is a ConfigError.
func IsConfig(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
