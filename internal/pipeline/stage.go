// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"bytes"
	"io"
	"os"
	"os/exec"
	"slices"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// newPipe creates the descriptors behind piped routes.
var newPipe = os.Pipe

// Stage is one command of a chain. Its process is spawned lazily, the
// first time something needs the live handle: reading its output, writing
// the chain's input, polling its exit code or waiting.
//
// A Stage is not safe for concurrent use.
type Stage struct {
	argv   []string
	env    EnvPolicy
	stdin  Route
	stdout Route
	stderr Route
	log    *zap.Logger

	chain  *Chain
	proc   process
	reader *outputReader
	result *waitResult
}

// Option configures a stage at construction.
type Option func(*Stage)

// WithStdin sets the stage's input. From(u) is the same as u.Attach.
func WithStdin(r Route) Option { return func(s *Stage) { s.stdin = r } }

// WithStdout sets where the stage's output goes. The default is a pipe
// read through Stdout or Wait.
func WithStdout(r Route) Option { return func(s *Stage) { s.stdout = r } }

// WithStderr sets where the stage's stderr goes. The default is inherited.
func WithStderr(r Route) Option { return func(s *Stage) { s.stderr = r } }

// WithEnv sets the stage's environment policy.
func WithEnv(p EnvPolicy) Option { return func(s *Stage) { s.env = p } }

// WithLogger sets the logger for spawn and exit events.
func WithLogger(l *zap.Logger) Option {
	return func(s *Stage) {
		if l != nil {
			s.log = l
		}
	}
}

// Run prepares a command without spawning it.
//
//	s, _ := pipeline.Run([]string{"echo", "-n", "hello world"})
//	out, _ := io.ReadAll(must(s.Stdout())) // "hello world"
func Run(argv []string, opts ...Option) (*Stage, error) {
	if len(argv) == 0 || argv[0] == "" {
		return nil, &ConfigError{Msg: "run", Err: ErrEmptyCommand}
	}
	s := &Stage{
		argv:   slices.Clone(argv),
		stdin:  Piped(),
		stdout: Piped(),
		stderr: Inherit(),
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.stdin.validate("stdin"); err != nil {
		return nil, err
	}
	if err := s.stdout.validate("stdout"); err != nil {
		return nil, err
	}
	if err := s.stderr.validate("stderr"); err != nil {
		return nil, err
	}
	if err := s.env.validate(); err != nil {
		return nil, err
	}

	var up *Stage
	if s.stdin.kind == RouteUpstream {
		up, s.stdin = s.stdin.stage, Piped()
	}
	s.chain = &Chain{stages: []*Stage{s}}
	if up != nil {
		if _, err := up.Attach(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Args returns a copy of the stage's argv.
func (s *Stage) Args() []string { return slices.Clone(s.argv) }

// Env returns the stage's environment policy.
func (s *Stage) Env() EnvPolicy { return s.env }

// Chain returns the chain the stage currently belongs to.
func (s *Stage) Chain() *Chain { return s.chain }

// State reports the lifecycle state without polling.
func (s *Stage) State() State { return s.proc.state }

// Pid returns the OS process id, or 0 if the stage hasn't been spawned.
func (s *Stage) Pid() int { return s.proc.pid() }

// Running reports whether the process has been spawned and hasn't exited.
func (s *Stage) Running() bool {
	if s.proc.state == NotStarted {
		return false
	}
	_, exited := s.proc.poll()
	return !exited
}

// ExitCode polls the process without blocking. ok is false until the
// process has exited and been observed. A process killed by a signal
// reports the negated signal number.
func (s *Stage) ExitCode() (code int, ok bool) {
	return s.proc.poll()
}

// Stderr returns the captured stderr of a stage whose stderr is piped,
// once it has exited.
func (s *Stage) Stderr() []byte { return s.proc.capturedStderr() }

func (s *Stage) started() bool {
	return s.proc.state != NotStarted || s.proc.err != nil
}

func (s *Stage) upstream() *Stage {
	if s.stdin.kind == RouteUpstream {
		return s.stdin.stage
	}
	return nil
}

func (s *Stage) downstream() *Stage {
	i := s.chain.Index(s)
	if i < 0 || i+1 >= len(s.chain.stages) {
		return nil
	}
	return s.chain.stages[i+1]
}

// Materialize spawns the process and, first, every upstream stage that
// hasn't been spawned yet. It is idempotent: a stage is spawned at most
// once and a launch failure is returned again on every call.
func (s *Stage) Materialize() error { return s.materialize() }

func (s *Stage) materialize() error {
	if s.started() {
		return s.proc.err
	}

	cmd := exec.Command(s.argv[0], s.argv[1:]...)
	cmd.Env = s.env.resolve()

	var closeAfterStart []*os.File
	fail := func(err error) error {
		for _, f := range closeAfterStart {
			f.Close()
		}
		s.proc.closeStdin()
		s.proc.closeStdout()
		s.proc.err = err
		return err
	}

	if up := s.upstream(); up != nil {
		if err := up.materialize(); err != nil {
			return err
		}
		r := up.proc.stdout
		if r == nil {
			return &AttachError{From: up, To: s, Msg: "upstream stdout is no longer available", Err: ErrStdoutConsumed}
		}
		up.proc.stdout = nil
		cmd.Stdin = r
		closeAfterStart = append(closeAfterStart, r)
	} else {
		switch s.stdin.kind {
		case RoutePipe:
			r, w, err := newPipe()
			if err != nil {
				return fail(err)
			}
			cmd.Stdin = r
			closeAfterStart = append(closeAfterStart, r)
			s.proc.stdin = w
		case RouteFile:
			cmd.Stdin = s.stdin.file
		case RouteInherit:
			cmd.Stdin = os.Stdin
		}
	}

	switch s.stdout.kind {
	case RoutePipe:
		r, w, err := newPipe()
		if err != nil {
			return fail(err)
		}
		cmd.Stdout = w
		closeAfterStart = append(closeAfterStart, w)
		s.proc.stdout = r
	case RouteFile:
		cmd.Stdout = s.stdout.file
	case RouteInherit:
		cmd.Stdout = os.Stdout
	}

	switch s.stderr.kind {
	case RoutePipe:
		s.proc.stderr = new(bytes.Buffer)
		cmd.Stderr = s.proc.stderr
	case RouteFile:
		cmd.Stderr = s.stderr.file
	case RouteInherit:
		cmd.Stderr = os.Stderr
	}

	if err := s.proc.start(cmd, closeAfterStart); err != nil {
		s.log.Debug("launch failed", zap.Strings("argv", s.argv), zap.Error(err))
		return err
	}
	s.log.Debug("spawned", zap.Strings("argv", s.argv), zap.Int("pid", s.proc.pid()))
	return nil
}

// Stdin returns the writer feeding the chain's first stage, spawning it
// if needed. The writer is nil when that stage's stdin isn't piped.
//
// Once handed out, the writer belongs to the caller: Wait and reading the
// output no longer close it, and the chain sees EOF only when the caller
// closes it.
func (s *Stage) Stdin() (io.WriteCloser, error) {
	head := s.chain.Head()
	if err := head.materialize(); err != nil {
		return nil, err
	}
	if head.stdin.kind != RoutePipe {
		return nil, nil
	}
	if head.proc.stdin == nil {
		return nil, &StateError{Stage: head, Msg: "the input has already been closed", Err: ErrStdinClosed}
	}
	head.proc.stdinTaken = true
	return head.proc.stdin, nil
}

// SetStdin changes the input of the chain. On a stage that isn't the
// head the assignment goes to the head. From(u) splices u's chain in
// front; any other route spawns the head right away.
func (s *Stage) SetStdin(r Route) error {
	if err := r.validate("stdin"); err != nil {
		return err
	}
	if s.started() {
		return &StateError{Stage: s, Msg: "can't attach stdin to a running process", Err: ErrStageStarted}
	}
	if head := s.chain.Head(); head != s {
		return head.SetStdin(r)
	}
	if r.kind == RouteUpstream {
		_, err := r.stage.Attach(s)
		return err
	}
	s.stdin = r
	return s.materialize()
}

// Stdout returns a reader over the stage's output. Nothing is spawned
// until the first Read, which also closes the chain's input pipe if the
// caller left it open. If the output isn't piped the reader is empty.
func (s *Stage) Stdout() (io.ReadCloser, error) {
	if s.downstream() != nil {
		return nil, &StateError{Stage: s, Msg: "stdout feeds the next stage", Err: ErrStdoutConsumed}
	}
	if s.reader == nil {
		s.reader = &outputReader{stage: s}
	}
	return s.reader, nil
}

// SetStdout redirects the stage's output and spawns it.
func (s *Stage) SetStdout(r Route) error {
	if err := r.validate("stdout"); err != nil {
		return err
	}
	if s.started() {
		return &StateError{Stage: s, Msg: "can't change stdout of a running process", Err: ErrStageStarted}
	}
	if down := s.downstream(); down != nil {
		return &AttachError{From: s, To: down, Msg: "stdout feeds the next stage", Err: ErrStdoutConsumed}
	}
	s.stdout = r
	return s.materialize()
}

// SetStderr redirects the stage's stderr. It doesn't spawn anything.
func (s *Stage) SetStderr(r Route) error {
	if err := r.validate("stderr"); err != nil {
		return err
	}
	if s.started() {
		return &StateError{Stage: s, Msg: "can't change stderr of a running process", Err: ErrStageStarted}
	}
	s.stderr = r
	return nil
}

// Pipe runs argv with this stage's output as its input and returns the
// new downstream stage.
func (s *Stage) Pipe(argv []string, opts ...Option) (*Stage, error) {
	if len(argv) == 0 {
		return nil, &ConfigError{Msg: "pipe needs at least one argument", Err: ErrEmptyCommand}
	}
	next, err := Run(argv, opts...)
	if err != nil {
		return nil, err
	}
	return s.Attach(next)
}

// Attach feeds this stage's output into next, splicing next's whole
// chain behind this one, and returns next.
//
// A stage's output can be attached once. Neither side may be running,
// and next's chain must not have its own input.
func (s *Stage) Attach(next *Stage) (*Stage, error) {
	if next == nil {
		return nil, configErrorf("pipe: nil stage")
	}
	if err := s.checkAttach(next); err != nil {
		return nil, err
	}
	s.link(next)
	return next, nil
}

// checkAttach reports whether next can be attached to s without changing
// either chain.
func (s *Stage) checkAttach(next *Stage) error {
	fail := func(msg string, err error) error {
		return &AttachError{From: s, To: next, Msg: msg, Err: err}
	}
	if next.chain == s.chain {
		return fail("both stages are in the same chain", nil)
	}
	for _, st := range next.chain.stages {
		if st.started() {
			return fail("can't attach the output to the input of a running process", ErrStageStarted)
		}
	}
	head := next.chain.Head()
	if head.stdin.kind != RoutePipe {
		return fail("its input is already set to "+head.stdin.kind.String(), nil)
	}
	if s.downstream() != nil {
		return fail("stdout already feeds another stage", ErrStdoutConsumed)
	}
	if s.stdout.kind != RoutePipe {
		return fail("stdout is redirected to "+s.stdout.kind.String(), ErrStdoutConsumed)
	}
	if s.reader != nil || s.result != nil {
		return fail("stdout has already been read", ErrStdoutConsumed)
	}
	if s.proc.err != nil {
		return fail("it failed to launch", s.proc.err)
	}
	if s.Running() {
		return fail("can't attach the output of a running process", ErrStageStarted)
	}
	return nil
}

// link splices next's chain behind s. The caller has checked it.
func (s *Stage) link(next *Stage) {
	head := next.chain.Head()
	s.chain.splice(next.chain)
	head.stdin = From(s)
}

// Wait waits for the whole chain ending at this stage. See Chain.Wait.
func (s *Stage) Wait() (stdout, stderr []byte, err error) {
	if s.downstream() != nil {
		return nil, nil, &StateError{Stage: s, Msg: "stdout feeds the next stage; wait on the last stage", Err: ErrStdoutConsumed}
	}
	return s.chain.Wait()
}

// String renders the chain up to this stage as a POSIX shell command.
func (s *Stage) String() string {
	i := s.chain.Index(s)
	parts := make([]string, 0, i+1)
	for _, st := range s.chain.stages[:i+1] {
		parts = append(parts, st.command())
	}
	return strings.Join(parts, " | ")
}

// command renders this stage alone, with its env prefix.
func (s *Stage) command() string {
	tokens := append(s.env.prefix(), s.argv...)
	quoted := make([]string, len(tokens))
	for i, t := range tokens {
		quoted[i] = Quote(t)
	}
	return strings.Join(quoted, " ")
}

func (s *Stage) name() string {
	if s == nil {
		return "<nil>"
	}
	return strconv.Quote(s.command())
}

// outputReader defers spawning until the first Read.
type outputReader struct {
	stage   *Stage
	started bool
	closed  bool
}

func (r *outputReader) Read(p []byte) (int, error) {
	if r.closed {
		return 0, os.ErrClosed
	}
	if !r.started {
		r.started = true
		if err := r.stage.materialize(); err != nil {
			return 0, err
		}
		r.stage.chain.closeInput()
	}
	f := r.stage.proc.stdout
	if f == nil {
		return 0, io.EOF
	}
	return f.Read(p)
}

func (r *outputReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.stage.proc.closeStdout()
}
