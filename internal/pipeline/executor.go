// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"errors"
	"io"
	"maps"
	"os"
	"slices"
	"time"
)

// StepResult is the outcome of one step of a compound command. Chain is
// nil for a step that was skipped or couldn't be built.
type StepResult struct {
	Chain    *Chain
	Err      error
	Duration time.Duration
	Skipped  bool
}

// ExecuteCommand runs a compound command, evaluating each pipeline step
// sequentially and applying the compound operator logic.
// Returns one result per step and the error from the last-executed
// pipeline (or nil).
func ExecuteCommand(cmd *Command, env EnvPolicy, stdin io.Reader, stdout, stderr io.Writer, opts ...Option) ([]StepResult, error) {
	var lastErr error
	results := make([]StepResult, len(cmd.Steps))

	for i, step := range cmd.Steps {
		if i > 0 {
			prevOp := cmd.Steps[i-1].Op
			switch prevOp {
			case Operator(OpAndThen):
				if lastErr != nil {
					results[i].Skipped = true
					continue
				}
			case Operator(OpOrElse):
				if lastErr == nil {
					results[i].Skipped = true
					continue
				}
			case Operator(OpSequential):
				// Always run.
			}
		}

		start := time.Now()
		chain, err := Execute(step.Pipeline, env, stdin, stdout, stderr, opts...)
		results[i] = StepResult{Chain: chain, Err: err, Duration: time.Since(start)}
		lastErr = err
	}

	return results, lastErr
}

// Build turns a parsed pipeline into a lazy chain and returns its tail.
// Redirect files are opened here and closed by the returned closer once
// the chain has been waited on. opts apply to every stage.
func (p *Pipeline) Build(env EnvPolicy, opts ...Option) (*Stage, io.Closer, error) {
	return p.build(env, Piped(), Piped(), opts)
}

func (p *Pipeline) build(env EnvPolicy, in, out Route, opts []Option) (*Stage, io.Closer, error) {
	if len(p.Segments) == 0 {
		return nil, nil, &ConfigError{Msg: "pipeline has no segments", Err: ErrEmptyCommand}
	}

	var files fileCloser
	if p.RedirectIn != "" {
		f, err := os.Open(p.RedirectIn)
		if err != nil {
			return nil, nil, err
		}
		files = append(files, f)
		in = File(f)
	}
	if p.RedirectOut != "" {
		f, err := os.Create(p.RedirectOut)
		if err != nil {
			files.Close()
			return nil, nil, err
		}
		files = append(files, f)
		out = File(f)
	}

	var tail *Stage
	last := len(p.Segments) - 1
	for i, seg := range p.Segments {
		segEnv := env
		for _, k := range slices.Sorted(maps.Keys(seg.Env)) {
			segEnv = segEnv.With(k, seg.Env[k])
		}
		stageOpts := append(slices.Clone(opts), WithEnv(segEnv))
		if i == 0 {
			stageOpts = append(stageOpts, WithStdin(in))
		}
		if i == last {
			stageOpts = append(stageOpts, WithStdout(out))
		}

		s, err := Run(seg.Args, stageOpts...)
		if err != nil {
			files.Close()
			return nil, nil, err
		}
		if tail != nil {
			if s, err = tail.Attach(s); err != nil {
				files.Close()
				return nil, nil, err
			}
		}
		tail = s
	}
	return tail, files, nil
}

// Execute runs one parsed pipeline to completion. stdin feeds the first
// stage and the last stage's output goes to stdout. *os.File streams are
// handed to the processes directly; other readers and writers are
// connected through pipes. stderr of every stage goes to stderr, in
// chain order when it has to be captured.
func Execute(p *Pipeline, env EnvPolicy, stdin io.Reader, stdout, stderr io.Writer, opts ...Option) (*Chain, error) {
	in, out := Piped(), Piped()
	var feed *os.File // read end handed to the head when stdin isn't a file
	var feedDone chan error

	switch r := stdin.(type) {
	case nil:
	case *os.File:
		in = File(r)
	default:
		pr, pw, err := os.Pipe()
		if err != nil {
			return nil, err
		}
		feed, in = pr, File(pr)
		feedDone = make(chan error, 1)
		go func() {
			_, err := io.Copy(pw, r)
			pw.Close()
			feedDone <- err
		}()
	}
	if f, ok := stdout.(*os.File); ok {
		out = File(f)
	}

	errRoute := Inherit()
	switch w := stderr.(type) {
	case nil:
	case *os.File:
		errRoute = File(w)
	default:
		errRoute = Piped()
	}
	opts = append(slices.Clone(opts), WithStderr(errRoute))

	tail, files, err := p.build(env, in, out, opts)
	if err != nil {
		if feed != nil {
			feed.Close()
		}
		return nil, err
	}
	defer files.Close()

	var copyErr error
	if out.kind == RoutePipe && p.RedirectOut == "" && stdout != nil {
		r, err := tail.Stdout()
		if err != nil {
			return tail.Chain(), err
		}
		_, copyErr = io.Copy(stdout, r)
	}

	_, _, err = tail.Wait()
	if feed != nil {
		// The head had its own copy; ours would keep the feeder blocked.
		feed.Close()
	}

	if errRoute.kind == RoutePipe {
		for _, s := range tail.Chain().Stages() {
			stderr.Write(s.Stderr())
		}
	}
	if feedDone != nil {
		// A stage that stops reading early makes the copy fail with EPIPE;
		// that is the stage's business, not ours.
		<-feedDone
	}

	if err == nil && copyErr != nil {
		err = copyErr
	}
	return tail.Chain(), err
}

type fileCloser []*os.File

func (fc fileCloser) Close() error {
	var errs []error
	for _, f := range fc {
		if err := f.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
