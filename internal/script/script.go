// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

// Package script runs Starlark files that build pipelines.
//
//	src = run("git", "log", "--oneline")
//	pipeline = src.pipe("head", "-5")
//
// The value bound to the global "pipeline" is handed back to the caller.
package script

import (
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
	"go.uber.org/zap"

	"github.com/marcelocantos/spm/internal/audit"
	"github.com/marcelocantos/spm/internal/pipeline"
)

// ResultGlobal is the global a script binds its final stage to.
const ResultGlobal = "pipeline"

// Session holds the state of one script run: the files it opened and the
// chains it waited on. Close releases the files.
type Session struct {
	env    pipeline.EnvPolicy
	log    *zap.Logger
	audit  *audit.Logger
	out    io.Writer
	files  []*os.File
	logged map[*pipeline.Chain]bool
}

// Option configures a Session.
type Option func(*Session)

// WithEnv sets the policy for stages whose env argument is None.
func WithEnv(p pipeline.EnvPolicy) Option { return func(s *Session) { s.env = p } }

// WithLogger sets the logger handed to every stage.
func WithLogger(l *zap.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.log = l
		}
	}
}

// WithAudit records every chain the script waits on.
func WithAudit(l *audit.Logger) Option { return func(s *Session) { s.audit = l } }

// WithOutput sets where print() writes. The default is stderr.
func WithOutput(w io.Writer) Option { return func(s *Session) { s.out = w } }

// New creates a session.
func New(opts ...Option) *Session {
	s := &Session{
		log:    zap.NewNop(),
		out:    os.Stderr,
		logged: make(map[*pipeline.Chain]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ExecFile runs the script at path. See Exec.
func (s *Session) ExecFile(path string) (*pipeline.Stage, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	return s.Exec(path, src)
}

// Exec runs a script and returns the stage bound to "pipeline", or nil if
// the script didn't bind one. Errors raised by builtins, such as a
// *pipeline.ProcessError from wait(), can be recovered with errors.As.
func (s *Session) Exec(filename string, src []byte) (*pipeline.Stage, error) {
	thread := &starlark.Thread{
		Name: filename,
		Print: func(_ *starlark.Thread, msg string) {
			fmt.Fprintln(s.out, msg)
		},
	}
	globals, err := starlark.ExecFileOptions(&syntax.FileOptions{}, thread, filename, src, s.predeclared())
	if err != nil {
		return nil, err
	}
	s.log.Debug("script finished", zap.String("file", filename), zap.Int("globals", len(globals)))

	v, ok := globals[ResultGlobal]
	if !ok || v == starlark.None {
		return nil, nil
	}
	sv, ok := v.(*stageValue)
	if !ok {
		return nil, fmt.Errorf("%s: global %q is a %s, not a stage", filename, ResultGlobal, v.Type())
	}
	return sv.stage, nil
}

// Record writes a finished chain to the audit log once.
func (s *Session) Record(c *pipeline.Chain, err error, d time.Duration) {
	if c == nil || s.logged[c] {
		return
	}
	s.logged[c] = true
	if aerr := s.audit.LogChain(c, err, d); aerr != nil {
		s.log.Warn("audit write failed", zap.Error(aerr))
	}
}

// Close closes every file the script opened.
func (s *Session) Close() error {
	var errs []error
	for _, f := range s.files {
		if err := f.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			errs = append(errs, err)
		}
	}
	s.files = nil
	return errors.Join(errs...)
}

func (s *Session) predeclared() starlark.StringDict {
	return starlark.StringDict{
		"run":     starlark.NewBuiltin("run", s.run),
		"pipe":    starlark.NewBuiltin("pipe", s.pipe),
		"cleared": starlark.NewBuiltin("cleared", s.cleared),
		"open":    starlark.NewBuiltin("open", s.open),
		"PIPE":    routeConst{name: "PIPE", route: pipeline.Piped()},
		"INHERIT": routeConst{name: "INHERIT", route: pipeline.Inherit()},
	}
}

func (s *Session) wrap(st *pipeline.Stage) *stageValue {
	return &stageValue{sess: s, stage: st}
}

// run(*argv, env=None, stdin=None, stdout=None, stderr=None)
func (s *Session) run(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var env, stdin, stdout, stderr starlark.Value = starlark.None, starlark.None, starlark.None, starlark.None
	if err := starlark.UnpackArgs(b.Name(), nil, kwargs,
		"env?", &env, "stdin?", &stdin, "stdout?", &stdout, "stderr?", &stderr); err != nil {
		return nil, err
	}
	argv, err := toArgv(b.Name(), args)
	if err != nil {
		return nil, err
	}
	opts, err := s.stageOptions(env)
	if err != nil {
		return nil, err
	}
	for _, r := range []struct {
		name string
		v    starlark.Value
		opt  func(pipeline.Route) pipeline.Option
	}{
		{"stdin", stdin, pipeline.WithStdin},
		{"stdout", stdout, pipeline.WithStdout},
		{"stderr", stderr, pipeline.WithStderr},
	} {
		if r.v == starlark.None {
			continue
		}
		route, err := toRoute(r.name, r.v)
		if err != nil {
			return nil, err
		}
		opts = append(opts, r.opt(route))
	}
	st, err := pipeline.Run(argv, opts...)
	if err != nil {
		return nil, err
	}
	return s.wrap(st), nil
}

// pipe(*steps, env=None): each step is a list of strings or a stage.
func (s *Session) pipe(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var env starlark.Value = starlark.None
	if err := starlark.UnpackArgs(b.Name(), nil, kwargs, "env?", &env); err != nil {
		return nil, err
	}
	policy, err := s.envPolicy(env)
	if err != nil {
		return nil, err
	}
	steps := make([]pipeline.Step, len(args))
	for i, arg := range args {
		var seq starlark.Indexable
		switch v := arg.(type) {
		case *stageValue:
			steps[i] = v.stage
			continue
		case *starlark.List:
			seq = v
		case starlark.Tuple:
			seq = v
		default:
			return nil, &pipeline.ConfigError{Msg: fmt.Sprintf("%s: step %d must be a list of strings or a stage, not %s", b.Name(), i, arg.Type())}
		}
		argv, err := toArgv(fmt.Sprintf("%s: step %d", b.Name(), i), indexableTuple(seq))
		if err != nil {
			return nil, err
		}
		st, err := pipeline.Run(argv, pipeline.WithEnv(policy), pipeline.WithLogger(s.log))
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		steps[i] = st
	}
	tail, err := pipeline.Pipe(steps...)
	if err != nil {
		return nil, err
	}
	return s.wrap(tail), nil
}

// cleared(vars=None)
func (s *Session) cleared(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var vars starlark.Value = starlark.None
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "vars?", &vars); err != nil {
		return nil, err
	}
	var m map[string]string
	switch v := vars.(type) {
	case starlark.NoneType:
	case *starlark.Dict:
		var err error
		if m, err = dictVars(b.Name(), v); err != nil {
			return nil, err
		}
	default:
		return nil, &pipeline.ConfigError{Msg: fmt.Sprintf("%s: vars must be a dict, not %s", b.Name(), vars.Type())}
	}
	return &envValue{policy: pipeline.ClearedEnv(m)}, nil
}

// open(path, mode="r")
func (s *Session) open(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var path string
	mode := "r"
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "path", &path, "mode?", &mode); err != nil {
		return nil, err
	}
	var f *os.File
	var err error
	switch mode {
	case "r":
		f, err = os.Open(path)
	case "w":
		f, err = os.Create(path)
	case "a":
		f, err = os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	default:
		return nil, &pipeline.ConfigError{Msg: fmt.Sprintf("%s: unsupported mode %q", b.Name(), mode)}
	}
	if err != nil {
		return nil, err
	}
	s.files = append(s.files, f)
	return &fileValue{route: pipeline.File(f), mode: mode}, nil
}

func (s *Session) stageOptions(env starlark.Value) ([]pipeline.Option, error) {
	policy, err := s.envPolicy(env)
	if err != nil {
		return nil, err
	}
	return []pipeline.Option{pipeline.WithEnv(policy), pipeline.WithLogger(s.log)}, nil
}

// envPolicy converts an env argument: None keeps the session policy, a
// dict is merged over it and cleared() replaces it.
func (s *Session) envPolicy(v starlark.Value) (pipeline.EnvPolicy, error) {
	switch v := v.(type) {
	case starlark.NoneType:
		return s.env, nil
	case *envValue:
		return v.policy, nil
	case *starlark.Dict:
		m, err := dictVars("env", v)
		if err != nil {
			return pipeline.EnvPolicy{}, err
		}
		p := s.env
		for _, k := range slices.Sorted(maps.Keys(m)) {
			p = p.With(k, m[k])
		}
		return p, nil
	default:
		return pipeline.EnvPolicy{}, &pipeline.ConfigError{Msg: fmt.Sprintf("env must be None, a dict or cleared(), not %s", v.Type())}
	}
}

func toRoute(stream string, v starlark.Value) (pipeline.Route, error) {
	switch v := v.(type) {
	case routeConst:
		return v.route, nil
	case *fileValue:
		return v.route, nil
	case *stageValue:
		return pipeline.From(v.stage), nil
	default:
		return pipeline.Route{}, &pipeline.ConfigError{Msg: fmt.Sprintf("%s must be PIPE, INHERIT, a file or a stage, not %s", stream, v.Type())}
	}
}

func toArgv(fn string, args starlark.Tuple) ([]string, error) {
	argv := make([]string, len(args))
	for i, a := range args {
		s, ok := starlark.AsString(a)
		if !ok {
			return nil, &pipeline.ConfigError{Msg: fmt.Sprintf("%s: argument %d must be a string, not %s", fn, i, a.Type())}
		}
		argv[i] = s
	}
	return argv, nil
}

func indexableTuple(v starlark.Indexable) starlark.Tuple {
	t := make(starlark.Tuple, v.Len())
	for i := range t {
		t[i] = v.Index(i)
	}
	return t
}

func dictVars(fn string, d *starlark.Dict) (map[string]string, error) {
	m := make(map[string]string, d.Len())
	for _, item := range d.Items() {
		k, kok := starlark.AsString(item[0])
		v, vok := starlark.AsString(item[1])
		if !kok || !vok {
			return nil, &pipeline.ConfigError{Msg: fmt.Sprintf("%s: variables must map strings to strings", fn)}
		}
		m[k] = v
	}
	return m, nil
}
