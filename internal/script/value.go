// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

package script

import (
	"errors"
	"fmt"
	"io"
	"time"

	"go.starlark.net/starlark"

	"github.com/marcelocantos/spm/internal/pipeline"
)

// stageValue exposes a *pipeline.Stage to scripts.
type stageValue struct {
	sess  *Session
	stage *pipeline.Stage
}

var (
	_ starlark.Value    = (*stageValue)(nil)
	_ starlark.HasAttrs = (*stageValue)(nil)
)

func (v *stageValue) String() string        { return v.stage.String() }
func (v *stageValue) Type() string          { return "stage" }
func (v *stageValue) Freeze()               {}
func (v *stageValue) Truth() starlark.Bool  { return starlark.True }
func (v *stageValue) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: stage") }

func (v *stageValue) AttrNames() []string {
	return []string{"args", "pid", "pipe", "read", "returncode", "running", "wait"}
}

func (v *stageValue) Attr(name string) (starlark.Value, error) {
	switch name {
	case "args":
		return stringTuple(v.stage.Args()), nil
	case "pid":
		return starlark.MakeInt(v.stage.Pid()), nil
	case "returncode":
		code, ok := v.stage.ExitCode()
		if !ok {
			return starlark.None, nil
		}
		return starlark.MakeInt(code), nil
	case "running":
		return starlark.Bool(v.stage.Running()), nil
	case "pipe":
		return starlark.NewBuiltin("pipe", v.pipe), nil
	case "wait":
		return starlark.NewBuiltin("wait", v.wait), nil
	case "read":
		return starlark.NewBuiltin("read", v.read), nil
	}
	return nil, nil
}

// pipe(*argv, env=None, stderr=None) or pipe(stage)
func (v *stageValue) pipe(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var env, stderr starlark.Value = starlark.None, starlark.None
	if err := starlark.UnpackArgs(b.Name(), nil, kwargs, "env?", &env, "stderr?", &stderr); err != nil {
		return nil, err
	}
	if len(args) == 1 {
		if next, ok := args[0].(*stageValue); ok {
			if env != starlark.None || stderr != starlark.None {
				return nil, &pipeline.ConfigError{Msg: "pipe: env and stderr don't apply to an existing stage"}
			}
			tail, err := v.stage.Attach(next.stage)
			if err != nil {
				return nil, err
			}
			return v.sess.wrap(tail), nil
		}
	}
	argv, err := toArgv(b.Name(), args)
	if err != nil {
		return nil, err
	}
	opts, err := v.sess.stageOptions(env)
	if err != nil {
		return nil, err
	}
	if stderr != starlark.None {
		r, err := toRoute("stderr", stderr)
		if err != nil {
			return nil, err
		}
		opts = append(opts, pipeline.WithStderr(r))
	}
	next, err := v.stage.Pipe(argv, opts...)
	if err != nil {
		return nil, err
	}
	return v.sess.wrap(next), nil
}

// wait(check=True) returns (stdout, stderr). With check=False a non-zero
// exit doesn't stop the script; inspect returncode instead.
func (v *stageValue) wait(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	check := true
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "check?", &check); err != nil {
		return nil, err
	}
	start := time.Now()
	stdout, stderr, err := v.stage.Wait()
	v.sess.Record(v.stage.Chain(), err, time.Since(start))
	if err != nil {
		var pe *pipeline.ProcessError
		if check || !errors.As(err, &pe) {
			return nil, err
		}
		stdout, stderr = pe.Stdout, pe.Stderr
	}
	return starlark.Tuple{optionalString(stdout), optionalString(stderr)}, nil
}

// read() returns everything the stage writes to stdout.
func (v *stageValue) read(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackArgs(b.Name(), args, kwargs); err != nil {
		return nil, err
	}
	r, err := v.stage.Stdout()
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return starlark.String(data), nil
}

// envValue is the result of cleared().
type envValue struct {
	policy pipeline.EnvPolicy
}

func (v *envValue) String() string {
	return fmt.Sprintf("cleared(%v)", v.policy.Vars())
}
func (v *envValue) Type() string          { return "env" }
func (v *envValue) Freeze()               {}
func (v *envValue) Truth() starlark.Bool  { return starlark.True }
func (v *envValue) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: env") }

// fileValue is a file opened by open(), usable as a route.
type fileValue struct {
	route pipeline.Route
	mode  string
}

func (v *fileValue) String() string {
	return fmt.Sprintf("<file %q mode %q>", v.route.Handle().Name(), v.mode)
}
func (v *fileValue) Type() string          { return "file" }
func (v *fileValue) Freeze()               {}
func (v *fileValue) Truth() starlark.Bool  { return starlark.True }
func (v *fileValue) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: file") }

// routeConst is PIPE or INHERIT.
type routeConst struct {
	name  string
	route pipeline.Route
}

func (v routeConst) String() string        { return v.name }
func (v routeConst) Type() string          { return "route" }
func (v routeConst) Freeze()               {}
func (v routeConst) Truth() starlark.Bool  { return starlark.True }
func (v routeConst) Hash() (uint32, error) { return starlark.String(v.name).Hash() }

func stringTuple(ss []string) starlark.Tuple {
	t := make(starlark.Tuple, len(ss))
	for i, s := range ss {
		t[i] = starlark.String(s)
	}
	return t
}

func optionalString(b []byte) starlark.Value {
	if b == nil {
		return starlark.None
	}
	return starlark.String(b)
}
