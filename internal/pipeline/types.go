// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

package pipeline

// Unicode operators used in pipeline syntax.
// These are not shell metacharacters, so they survive unquoted in bash/zsh/fish.
const (
	OpPipe        = "¦" // U+00A6 BROKEN BAR: pipe (stdout → stdin)
	OpRedirectIn  = "‹" // U+2039 SINGLE LEFT-POINTING ANGLE QUOTATION MARK: redirect stdin from file
	OpRedirectOut = "›" // U+203A SINGLE RIGHT-POINTING ANGLE QUOTATION MARK: redirect stdout to file

	OpAndThen    = "＆＆" // U+FF06 ×2 FULLWIDTH AMPERSAND: and-then (short-circuit)
	OpOrElse     = "‖"  // U+2016 DOUBLE VERTICAL LINE: or-else (run if previous fails)
	OpSequential = "；"  // U+FF1B FULLWIDTH SEMICOLON: sequential (run regardless of exit code)
)

// Operator joins two pipelines in a compound command.
type Operator string

// Segment represents a single command in a parsed pipeline.
type Segment struct {
	Env  map[string]string // leading NAME=value assignments, nil if none
	Args []string          // argv, Args[0] is the program
}

// Pipeline represents a parsed pipeline with optional redirects.
type Pipeline struct {
	Segments    []Segment
	RedirectIn  string // file path for stdin redirect (‹), empty if none
	RedirectOut string // file path for stdout redirect (›), empty if none
}

// CommandStep is one pipeline of a compound command together with the
// operator that links it to the next step (empty for the last step).
type CommandStep struct {
	Pipeline *Pipeline
	Op       Operator
}

// Command is a sequence of pipelines joined by compound operators.
type Command struct {
	Steps []CommandStep
}

// RouteKind identifies where a stage's stdin, stdout or stderr is wired.
type RouteKind int

const (
	RouteInherit  RouteKind = iota // the caller's own descriptor
	RoutePipe                      // a pipe whose other end the caller holds
	RouteFile                      // a file handle supplied by the caller
	RouteUpstream                  // the stdout of the previous stage
)

func (k RouteKind) String() string {
	switch k {
	case RouteInherit:
		return "inherit"
	case RoutePipe:
		return "pipe"
	case RouteFile:
		return "file"
	case RouteUpstream:
		return "upstream"
	default:
		return "unknown"
	}
}

// State is the lifecycle of a stage's OS process.
type State int

const (
	NotStarted State = iota // not materialized yet
	Running                 // spawned, exit not observed
	Exited                  // exit observed and cached
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not-started"
	case Running:
		return "running"
	case Exited:
		return "exited"
	default:
		return "unknown"
	}
}
